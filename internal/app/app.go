package app

import (
	"errors"
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/edustack/knowledge-backend/internal/data/db"
	"github.com/edustack/knowledge-backend/internal/data/repos/knowledge"
	"github.com/edustack/knowledge-backend/internal/embedding"
	"github.com/edustack/knowledge-backend/internal/ingestion/chunker"
	"github.com/edustack/knowledge-backend/internal/platform/logger"
	"github.com/edustack/knowledge-backend/internal/platform/milvus"
	"github.com/edustack/knowledge-backend/internal/services"
)

type Repos struct {
	Chunks    knowledge.ChunkRepo
	Documents knowledge.DocumentRepo
}

type Services struct {
	VectorIndex services.VectorIndexService
	Knowledge   services.KnowledgeService
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Engine   embedding.Engine
	Repos    Repos
	Services Services
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.Migrate(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres migration: %w", err)
	}
	theDB := pg.DB()

	engine, err := embedding.New(log, cfg.Embedding)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init embedding engine: %w", err)
	}

	milvusCfg, err := resolveMilvusConfig(engine)
	if err != nil {
		engine.Close()
		log.Sync()
		return nil, fmt.Errorf("milvus config: %w", err)
	}
	index, err := milvus.NewIndex(log, milvusCfg)
	if err != nil {
		engine.Close()
		log.Sync()
		return nil, fmt.Errorf("init milvus index: %w", err)
	}

	log.Info("Setting up Repos...")
	reposet := Repos{
		Chunks:    knowledge.NewChunkRepo(theDB, log),
		Documents: knowledge.NewDocumentRepo(theDB, log),
	}

	log.Info("Setting up Services...")
	vectorIndex := services.NewVectorIndexService(index, engine, log)
	knowledgeSvc := services.NewKnowledgeService(
		theDB,
		log,
		reposet.Chunks,
		reposet.Documents,
		vectorIndex,
		chunker.Config{MaxChunkSize: cfg.ChunkMaxSize},
	)

	return &App{
		Log:    log,
		DB:     theDB,
		Cfg:    cfg,
		Engine: engine,
		Repos:  reposet,
		Services: Services{
			VectorIndex: vectorIndex,
			Knowledge:   knowledgeSvc,
		},
	}, nil
}

// resolveMilvusConfig reads the Milvus env config, defaulting the vector
// dimension to what the embedding engine produces when MILVUS_VECTOR_DIM
// is unset.
func resolveMilvusConfig(engine embedding.Engine) (milvus.Config, error) {
	cfg, err := milvus.ResolveConfigFromEnv()
	if err == nil {
		if cfg.VectorDim != engine.Dimension() {
			return milvus.Config{}, fmt.Errorf(
				"MILVUS_VECTOR_DIM=%d disagrees with embedding dimension %d",
				cfg.VectorDim,
				engine.Dimension(),
			)
		}
		return cfg, nil
	}

	var cfgErr *milvus.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != milvus.ConfigErrorMissingVectorDim {
		return milvus.Config{}, err
	}
	cfg.VectorDim = engine.Dimension()
	if vErr := milvus.ValidateConfig(cfg, true); vErr != nil {
		return milvus.Config{}, vErr
	}
	return cfg, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			a.Log.Warn("embedding engine close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
