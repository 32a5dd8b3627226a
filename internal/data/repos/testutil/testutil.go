package testutil

import (
	"sync"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/edustack/knowledge-backend/internal/platform/logger"
	"github.com/edustack/knowledge-backend/internal/types"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a fresh in-memory database with the knowledge schema migrated.
// Each call returns an isolated database, so tests never share state.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()

	database, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to open sqlite: %v", err)
	}
	// A second pool connection would see its own empty in-memory database.
	sqlDB, err := database.DB()
	if err != nil {
		tb.Fatalf("failed to access sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(&types.KnowledgeDocument{}, &types.KnowledgeChunk{}); err != nil {
		tb.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}
