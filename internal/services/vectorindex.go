package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/edustack/knowledge-backend/internal/embedding"
	"github.com/edustack/knowledge-backend/internal/platform/logger"
	"github.com/edustack/knowledge-backend/internal/platform/milvus"
)

// ChunkInput is one chunk to embed and index.
type ChunkInput struct {
	ChunkID string
	Content string
}

// Match is one similarity-search result.
type Match struct {
	ChunkID string
	Content string
	Score   float64
}

type VectorIndexService interface {
	// EnsureTenantIndex makes the tenant's collection exist and be loaded
	// for search. It is idempotent.
	EnsureTenantIndex(ctx context.Context, tenantID int64) error

	// InsertBatch embeds every chunk first and writes them in one batch:
	// an embedding failure aborts before anything reaches the index.
	InsertBatch(ctx context.Context, tenantID int64, chunks []ChunkInput) error

	// Search returns the top matches for the query. A tenant without an
	// index yields an empty result, not an error.
	Search(ctx context.Context, tenantID int64, query string, topK int) ([]Match, error)

	// Update replaces the vector and content of one chunk by deleting the
	// old entry and inserting the new one. An insert failure after the
	// delete leaves the chunk missing from the index; the error is
	// returned for the caller to surface.
	Update(ctx context.Context, tenantID int64, chunkID string, newContent string) error

	// Delete removes one chunk. Deleting a chunk the index does not hold
	// succeeds as a no-op.
	Delete(ctx context.Context, tenantID int64, chunkID string) error

	DropTenantIndex(ctx context.Context, tenantID int64) error
}

// Collection lifecycle as the service tracks it per tenant. Creation
// builds and loads the collection, so created means searchable once a
// load is confirmed.
type tenantIndexState int

const (
	indexStateUnknown tenantIndexState = iota
	indexStateAbsent
	indexStateLoaded
)

type vectorIndexService struct {
	log    *logger.Logger
	index  milvus.Index
	engine embedding.Engine

	mu     sync.Mutex
	states map[int64]tenantIndexState
}

func NewVectorIndexService(index milvus.Index, engine embedding.Engine, baseLog *logger.Logger) VectorIndexService {
	serviceLog := baseLog.With("service", "VectorIndexService")
	return &vectorIndexService{
		log:    serviceLog,
		index:  index,
		engine: engine,
		states: make(map[int64]tenantIndexState),
	}
}

func (s *vectorIndexService) EnsureTenantIndex(ctx context.Context, tenantID int64) error {
	if s.state(tenantID) == indexStateLoaded {
		return nil
	}

	has, err := s.index.HasCollection(ctx, tenantID)
	if err != nil {
		return s.wrap("ensure index failed", tenantID, err)
	}
	if !has {
		if err := s.index.CreateCollection(ctx, tenantID); err != nil {
			return s.wrap("create index failed", tenantID, err)
		}
		s.log.Info("tenant index created", "tenant_id", tenantID, "collection", s.index.CollectionName(tenantID))
	}
	if err := s.index.LoadCollection(ctx, tenantID); err != nil {
		return s.wrap("load index failed", tenantID, err)
	}
	s.setState(tenantID, indexStateLoaded)
	return nil
}

func (s *vectorIndexService) InsertBatch(ctx context.Context, tenantID int64, chunks []ChunkInput) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.requireLoaded(ctx, tenantID); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.engine.EncodeBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch failed: %w", err)
	}

	rows := make([]milvus.Row, len(chunks))
	for i, c := range chunks {
		rows[i] = milvus.Row{
			ChunkID:  c.ChunkID,
			TenantID: tenantID,
			Content:  c.Content,
			Vector:   vectors[i],
		}
	}
	if err := s.index.Insert(ctx, tenantID, rows); err != nil {
		return s.wrap("insert batch failed", tenantID, err)
	}
	s.log.Info("vectors inserted", "tenant_id", tenantID, "count", len(rows))
	return nil
}

func (s *vectorIndexService) Search(ctx context.Context, tenantID int64, query string, topK int) ([]Match, error) {
	loaded, err := s.checkLoaded(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !loaded {
		return nil, nil
	}

	vector, err := s.engine.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query failed: %w", err)
	}
	hits, err := s.index.Search(ctx, tenantID, vector, topK)
	if err != nil {
		if milvus.IsNotFound(err) {
			return nil, nil
		}
		return nil, s.wrap("search failed", tenantID, err)
	}

	out := make([]Match, len(hits))
	for i, h := range hits {
		out[i] = Match{ChunkID: h.ChunkID, Content: h.Content, Score: h.Score}
	}
	return out, nil
}

func (s *vectorIndexService) Update(ctx context.Context, tenantID int64, chunkID string, newContent string) error {
	if err := s.requireLoaded(ctx, tenantID); err != nil {
		return err
	}
	if err := s.index.DeleteByChunkID(ctx, tenantID, chunkID); err != nil && !milvus.IsNotFound(err) {
		return s.wrap("update delete failed", tenantID, err)
	}
	if err := s.InsertBatch(ctx, tenantID, []ChunkInput{{ChunkID: chunkID, Content: newContent}}); err != nil {
		s.log.Error(
			"chunk vector lost between delete and reinsert",
			"tenant_id", tenantID,
			"chunk_id", chunkID,
			"error", err,
		)
		return err
	}
	return nil
}

func (s *vectorIndexService) Delete(ctx context.Context, tenantID int64, chunkID string) error {
	loaded, err := s.checkLoaded(ctx, tenantID)
	if err != nil {
		return err
	}
	if !loaded {
		return nil
	}
	if err := s.index.DeleteByChunkID(ctx, tenantID, chunkID); err != nil && !milvus.IsNotFound(err) {
		return s.wrap("delete failed", tenantID, err)
	}
	return nil
}

func (s *vectorIndexService) DropTenantIndex(ctx context.Context, tenantID int64) error {
	if err := s.index.DropCollection(ctx, tenantID); err != nil && !milvus.IsNotFound(err) {
		return s.wrap("drop index failed", tenantID, err)
	}
	s.setState(tenantID, indexStateAbsent)
	s.log.Info("tenant index dropped", "tenant_id", tenantID)
	return nil
}

// requireLoaded admits mutating operations only for tenants whose index
// exists, loading it on first touch. An absent index is a typed not-found
// failure: callers must ensure first.
func (s *vectorIndexService) requireLoaded(ctx context.Context, tenantID int64) error {
	loaded, err := s.checkLoaded(ctx, tenantID)
	if err != nil {
		return err
	}
	if !loaded {
		return fmt.Errorf("%w: tenant %d has no vector index", ErrNotFound, tenantID)
	}
	return nil
}

func (s *vectorIndexService) checkLoaded(ctx context.Context, tenantID int64) (bool, error) {
	if s.state(tenantID) == indexStateLoaded {
		return true, nil
	}
	has, err := s.index.HasCollection(ctx, tenantID)
	if err != nil {
		return false, s.wrap("index lookup failed", tenantID, err)
	}
	if !has {
		s.setState(tenantID, indexStateAbsent)
		return false, nil
	}
	if err := s.index.LoadCollection(ctx, tenantID); err != nil {
		return false, s.wrap("load index failed", tenantID, err)
	}
	s.setState(tenantID, indexStateLoaded)
	return true, nil
}

func (s *vectorIndexService) state(tenantID int64) tenantIndexState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[tenantID]
}

func (s *vectorIndexService) setState(tenantID int64, state tenantIndexState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[tenantID] = state
}

func (s *vectorIndexService) wrap(msg string, tenantID int64, err error) error {
	if milvus.IsUnavailable(err) {
		return fmt.Errorf("%s for tenant %d: %w: %w", msg, tenantID, ErrIndexUnavailable, err)
	}
	return fmt.Errorf("%s for tenant %d: %w", msg, tenantID, err)
}
