package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/edustack/knowledge-backend/internal/data/repos/knowledge"
	"github.com/edustack/knowledge-backend/internal/ingestion/chunker"
	"github.com/edustack/knowledge-backend/internal/ingestion/extract"
	"github.com/edustack/knowledge-backend/internal/platform/logger"
	"github.com/edustack/knowledge-backend/internal/types"
)

// UploadedFile is one source document handed to ingest.
type UploadedFile struct {
	Name     string
	MimeType string
	Data     []byte
}

type IngestResult struct {
	ChunkCount int
}

type Stats struct {
	TotalChunks     int64
	ProcessedChunks int64
	FileCount       int64
	TotalSize       int64
}

type KnowledgeService interface {
	// IngestDocument runs the full pipeline for one file: ensure the
	// tenant's index, extract text, chunk it, persist chunk rows
	// unprocessed, write vectors, then flip the rows to processed. When
	// the vector write fails the rows stay unprocessed for reimport.
	IngestDocument(ctx context.Context, tenantID int64, file UploadedFile) (IngestResult, error)

	SearchKnowledge(ctx context.Context, tenantID int64, query string, topK int) ([]Match, error)

	// EditChunk updates metadata first, then the index. An index failure
	// after the metadata write is logged as a divergence and returned;
	// the metadata update is not rolled back.
	EditChunk(ctx context.Context, chunkID string, newContent string) error

	// DeleteChunk removes metadata first, then the vector. An index
	// failure leaves an orphan vector behind, which is harmless, so it is
	// logged but not returned.
	DeleteChunk(ctx context.Context, chunkID string) error

	// DeleteTenantKnowledge wipes the tenant's documents, chunks and
	// index. A failed index drop does not undo the metadata deletion.
	DeleteTenantKnowledge(ctx context.Context, tenantID int64) error

	// ReimportTenantKnowledge rebuilds the tenant's vectors from the
	// chunk rows, picking up unprocessed leftovers along the way. It
	// returns the number of chunks written.
	ReimportTenantKnowledge(ctx context.Context, tenantID int64) (int, error)

	KnowledgeStats(ctx context.Context, tenantID int64) (Stats, error)
	ListChunks(ctx context.Context, tenantID int64) ([]*types.KnowledgeChunk, error)
	GetChunk(ctx context.Context, chunkID string) (*types.KnowledgeChunk, error)
}

type knowledgeService struct {
	db        *gorm.DB
	log       *logger.Logger
	chunks    knowledge.ChunkRepo
	documents knowledge.DocumentRepo
	index     VectorIndexService
	chunkCfg  chunker.Config

	// Ingest and reimport for one tenant never run concurrently.
	mu          sync.Mutex
	tenantLocks map[int64]*sync.Mutex
}

func NewKnowledgeService(
	db *gorm.DB,
	baseLog *logger.Logger,
	chunks knowledge.ChunkRepo,
	documents knowledge.DocumentRepo,
	index VectorIndexService,
	chunkCfg chunker.Config,
) KnowledgeService {
	serviceLog := baseLog.With("service", "KnowledgeService")
	return &knowledgeService{
		db:          db,
		log:         serviceLog,
		chunks:      chunks,
		documents:   documents,
		index:       index,
		chunkCfg:    chunkCfg,
		tenantLocks: make(map[int64]*sync.Mutex),
	}
}

func (s *knowledgeService) IngestDocument(ctx context.Context, tenantID int64, file UploadedFile) (IngestResult, error) {
	if strings.TrimSpace(file.Name) == "" {
		return IngestResult{}, fmt.Errorf("file name is required")
	}

	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.index.EnsureTenantIndex(ctx, tenantID); err != nil {
		return IngestResult{}, err
	}

	text, err := extract.Text(file.Name, file.MimeType, file.Data)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %s: %v", ErrExtractionFailed, file.Name, err)
	}
	candidates := chunker.SplitWithConfig(text, file.Name, s.chunkCfg)
	if len(candidates) == 0 {
		return IngestResult{}, fmt.Errorf("%w: %s produced no chunks", ErrExtractionFailed, file.Name)
	}

	rows := make([]*types.KnowledgeChunk, len(candidates))
	inputs := make([]ChunkInput, len(candidates))
	chunkIDs := make([]string, len(candidates))
	for i, c := range candidates {
		rows[i] = &types.KnowledgeChunk{
			ID:         uuid.New(),
			TenantID:   tenantID,
			ChunkID:    c.ID,
			FileName:   file.Name,
			Content:    c.Content,
			ChunkIndex: c.Index,
			Oversized:  c.Oversized,
		}
		inputs[i] = ChunkInput{ChunkID: c.ID, Content: c.Content}
		chunkIDs[i] = c.ID
	}
	document := &types.KnowledgeDocument{
		ID:         uuid.New(),
		TenantID:   tenantID,
		FileName:   file.Name,
		FileSize:   int64(len(file.Data)),
		ChunkCount: len(candidates),
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.chunks.Create(ctx, tx, rows); err != nil {
			return err
		}
		_, err := s.documents.Create(ctx, tx, document)
		return err
	}); err != nil {
		return IngestResult{}, fmt.Errorf("persist chunks failed: %w", err)
	}

	if err := s.index.InsertBatch(ctx, tenantID, inputs); err != nil {
		s.log.Error(
			"vector insert failed, chunks retained unprocessed",
			"tenant_id", tenantID,
			"file_name", file.Name,
			"chunk_count", len(inputs),
			"error", err,
		)
		return IngestResult{}, err
	}

	if err := s.chunks.MarkProcessed(ctx, nil, chunkIDs, true); err != nil {
		return IngestResult{}, fmt.Errorf("mark chunks processed failed: %w", err)
	}
	if err := s.documents.MarkProcessed(ctx, nil, document.ID, true); err != nil {
		return IngestResult{}, fmt.Errorf("mark document processed failed: %w", err)
	}

	s.log.Info(
		"document ingested",
		"tenant_id", tenantID,
		"file_name", file.Name,
		"chunk_count", len(candidates),
	)
	return IngestResult{ChunkCount: len(candidates)}, nil
}

func (s *knowledgeService) SearchKnowledge(ctx context.Context, tenantID int64, query string, topK int) ([]Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	return s.index.Search(ctx, tenantID, query, topK)
}

func (s *knowledgeService) EditChunk(ctx context.Context, chunkID string, newContent string) error {
	if strings.TrimSpace(newContent) == "" {
		return fmt.Errorf("chunk content is required")
	}

	chunk, err := s.chunks.GetByChunkID(ctx, nil, chunkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
		}
		return err
	}
	if err := s.chunks.UpdateContent(ctx, nil, chunkID, newContent); err != nil {
		return err
	}

	if err := s.index.Update(ctx, chunk.TenantID, chunkID, newContent); err != nil {
		s.log.Error(
			"metadata updated but index update failed",
			"tenant_id", chunk.TenantID,
			"chunk_id", chunkID,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *knowledgeService) DeleteChunk(ctx context.Context, chunkID string) error {
	chunk, err := s.chunks.GetByChunkID(ctx, nil, chunkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
		}
		return err
	}
	if err := s.chunks.DeleteByChunkID(ctx, nil, chunkID); err != nil {
		return err
	}

	if err := s.index.Delete(ctx, chunk.TenantID, chunkID); err != nil {
		s.log.Error(
			"metadata deleted but index delete failed, orphan vector remains",
			"tenant_id", chunk.TenantID,
			"chunk_id", chunkID,
			"error", err,
		)
	}
	return nil
}

func (s *knowledgeService) DeleteTenantKnowledge(ctx context.Context, tenantID int64) error {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	var chunkCount, docCount int64
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if chunkCount, err = s.chunks.DeleteByTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		docCount, err = s.documents.DeleteByTenant(ctx, tx, tenantID)
		return err
	}); err != nil {
		return fmt.Errorf("delete tenant metadata failed: %w", err)
	}

	if err := s.index.DropTenantIndex(ctx, tenantID); err != nil {
		s.log.Error(
			"metadata deleted but index drop failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}

	s.log.Info(
		"tenant knowledge deleted",
		"tenant_id", tenantID,
		"chunks", chunkCount,
		"documents", docCount,
	)
	return nil
}

func (s *knowledgeService) ReimportTenantKnowledge(ctx context.Context, tenantID int64) (int, error) {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	rows, err := s.chunks.GetByTenant(ctx, nil, tenantID)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	if err := s.index.EnsureTenantIndex(ctx, tenantID); err != nil {
		return 0, err
	}

	inputs := make([]ChunkInput, len(rows))
	var pending []string
	for i, row := range rows {
		inputs[i] = ChunkInput{ChunkID: row.ChunkID, Content: row.Content}
		if !row.Processed {
			pending = append(pending, row.ChunkID)
		}
	}
	if err := s.index.InsertBatch(ctx, tenantID, inputs); err != nil {
		return 0, err
	}

	// Rows left unprocessed by an earlier failed ingest are now indexed.
	if err := s.chunks.MarkProcessed(ctx, nil, pending, true); err != nil {
		return 0, fmt.Errorf("mark recovered chunks processed failed: %w", err)
	}

	s.log.Info(
		"tenant knowledge reimported",
		"tenant_id", tenantID,
		"chunk_count", len(rows),
		"recovered", len(pending),
	)
	return len(rows), nil
}

func (s *knowledgeService) KnowledgeStats(ctx context.Context, tenantID int64) (Stats, error) {
	var stats Stats
	processed := true

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.chunks.CountByTenant(gctx, nil, tenantID, nil)
		if err != nil {
			return err
		}
		stats.TotalChunks = n
		return nil
	})
	g.Go(func() error {
		n, err := s.chunks.CountByTenant(gctx, nil, tenantID, &processed)
		if err != nil {
			return err
		}
		stats.ProcessedChunks = n
		return nil
	})
	g.Go(func() error {
		agg, err := s.documents.AggregateByTenant(gctx, nil, tenantID)
		if err != nil {
			return err
		}
		stats.FileCount = agg.FileCount
		stats.TotalSize = agg.TotalSize
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

func (s *knowledgeService) ListChunks(ctx context.Context, tenantID int64) ([]*types.KnowledgeChunk, error) {
	return s.chunks.GetByTenant(ctx, nil, tenantID)
}

func (s *knowledgeService) GetChunk(ctx context.Context, chunkID string) (*types.KnowledgeChunk, error) {
	chunk, err := s.chunks.GetByChunkID(ctx, nil, chunkID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: chunk %s", ErrNotFound, chunkID)
		}
		return nil, err
	}
	return chunk, nil
}

func (s *knowledgeService) tenantLock(tenantID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.tenantLocks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.tenantLocks[tenantID] = lock
	}
	return lock
}
