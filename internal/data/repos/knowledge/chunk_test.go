package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edustack/knowledge-backend/internal/data/repos/testutil"
	"github.com/edustack/knowledge-backend/internal/types"
)

func newChunk(tenantID int64, fileName string, index int, processed bool) *types.KnowledgeChunk {
	return &types.KnowledgeChunk{
		ID:         uuid.New(),
		TenantID:   tenantID,
		ChunkID:    uuid.NewString(),
		FileName:   fileName,
		Content:    "内容片段",
		ChunkIndex: index,
		Processed:  processed,
	}
}

func TestChunkCreateAndGetByTenant(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()

	chunks := []*types.KnowledgeChunk{
		newChunk(1, "b.txt", 0, false),
		newChunk(1, "a.txt", 1, false),
		newChunk(1, "a.txt", 0, false),
		newChunk(2, "c.txt", 0, false),
	}
	if _, err := repo.Create(ctx, nil, chunks); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.GetByTenant(ctx, nil, 1)
	if err != nil {
		t.Fatalf("GetByTenant: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("want 3 chunks for tenant 1, got %d", len(got))
	}
	if got[0].FileName != "a.txt" || got[0].ChunkIndex != 0 {
		t.Fatalf("ordering: first=%s/%d", got[0].FileName, got[0].ChunkIndex)
	}
	if got[2].FileName != "b.txt" {
		t.Fatalf("ordering: last=%s", got[2].FileName)
	}
}

func TestChunkCreateEmptySlice(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	got, err := repo.Create(context.Background(), nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty result, got %d", len(got))
	}
}

func TestChunkGetByChunkIDNotFound(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	_, err := repo.GetByChunkID(context.Background(), nil, "missing")
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound, got %v", err)
	}
}

func TestChunkMarkProcessed(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()

	a := newChunk(1, "a.txt", 0, false)
	b := newChunk(1, "a.txt", 1, false)
	c := newChunk(1, "a.txt", 2, false)
	if _, err := repo.Create(ctx, nil, []*types.KnowledgeChunk{a, b, c}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.MarkProcessed(ctx, nil, []string{a.ChunkID, b.ChunkID}, true); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	processed, err := repo.GetByTenantAndProcessed(ctx, nil, 1, true)
	if err != nil {
		t.Fatalf("GetByTenantAndProcessed: %v", err)
	}
	if len(processed) != 2 {
		t.Fatalf("want 2 processed, got %d", len(processed))
	}
	pending, err := repo.GetByTenantAndProcessed(ctx, nil, 1, false)
	if err != nil {
		t.Fatalf("GetByTenantAndProcessed: %v", err)
	}
	if len(pending) != 1 || pending[0].ChunkID != c.ChunkID {
		t.Fatalf("want only %s pending, got %d rows", c.ChunkID, len(pending))
	}
}

func TestChunkUpdateContent(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()

	chunk := newChunk(1, "a.txt", 0, true)
	if _, err := repo.Create(ctx, nil, []*types.KnowledgeChunk{chunk}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.UpdateContent(ctx, nil, chunk.ChunkID, "修改后的内容"); err != nil {
		t.Fatalf("UpdateContent: %v", err)
	}
	got, err := repo.GetByChunkID(ctx, nil, chunk.ChunkID)
	if err != nil {
		t.Fatalf("GetByChunkID: %v", err)
	}
	if got.Content != "修改后的内容" {
		t.Fatalf("content: got=%q", got.Content)
	}

	if err := repo.UpdateContent(ctx, nil, "missing", "x"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("want ErrRecordNotFound for unknown chunk, got %v", err)
	}
}

func TestChunkDelete(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()

	chunk := newChunk(1, "a.txt", 0, true)
	if _, err := repo.Create(ctx, nil, []*types.KnowledgeChunk{chunk}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := repo.DeleteByChunkID(ctx, nil, chunk.ChunkID); err != nil {
		t.Fatalf("DeleteByChunkID: %v", err)
	}
	if err := repo.DeleteByChunkID(ctx, nil, chunk.ChunkID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("second delete: want ErrRecordNotFound, got %v", err)
	}
}

func TestChunkDeleteByTenant(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()

	if _, err := repo.Create(ctx, nil, []*types.KnowledgeChunk{
		newChunk(1, "a.txt", 0, true),
		newChunk(1, "a.txt", 1, true),
		newChunk(2, "b.txt", 0, true),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := repo.DeleteByTenant(ctx, nil, 1)
	if err != nil {
		t.Fatalf("DeleteByTenant: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted rows: want=2 got=%d", n)
	}
	remaining, err := repo.GetByTenant(ctx, nil, 2)
	if err != nil {
		t.Fatalf("GetByTenant: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("tenant 2 should be untouched, got %d rows", len(remaining))
	}
}

func TestChunkCountByTenant(t *testing.T) {
	repo := NewChunkRepo(testutil.DB(t), testutil.Logger(t))
	ctx := context.Background()

	if _, err := repo.Create(ctx, nil, []*types.KnowledgeChunk{
		newChunk(1, "a.txt", 0, true),
		newChunk(1, "a.txt", 1, false),
		newChunk(1, "a.txt", 2, true),
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	total, err := repo.CountByTenant(ctx, nil, 1, nil)
	if err != nil {
		t.Fatalf("CountByTenant: %v", err)
	}
	if total != 3 {
		t.Fatalf("total: want=3 got=%d", total)
	}
	processed := true
	n, err := repo.CountByTenant(ctx, nil, 1, &processed)
	if err != nil {
		t.Fatalf("CountByTenant processed: %v", err)
	}
	if n != 2 {
		t.Fatalf("processed: want=2 got=%d", n)
	}
}
