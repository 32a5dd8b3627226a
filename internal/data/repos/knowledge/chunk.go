package knowledge

import (
	"context"

	"gorm.io/gorm"

	"github.com/edustack/knowledge-backend/internal/platform/logger"
	"github.com/edustack/knowledge-backend/internal/types"
)

type ChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.KnowledgeChunk) ([]*types.KnowledgeChunk, error)
	GetByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) ([]*types.KnowledgeChunk, error)
	GetByTenantAndProcessed(ctx context.Context, tx *gorm.DB, tenantID int64, processed bool) ([]*types.KnowledgeChunk, error)
	GetByChunkID(ctx context.Context, tx *gorm.DB, chunkID string) (*types.KnowledgeChunk, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, chunkIDs []string, processed bool) error
	UpdateContent(ctx context.Context, tx *gorm.DB, chunkID string, content string) error
	DeleteByChunkID(ctx context.Context, tx *gorm.DB, chunkID string) error
	DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) (int64, error)
	CountByTenant(ctx context.Context, tx *gorm.DB, tenantID int64, processed *bool) (int64, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	repoLog := baseLog.With("repo", "ChunkRepo")
	return &chunkRepo{db: db, log: repoLog}
}

func (r *chunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.KnowledgeChunk) ([]*types.KnowledgeChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.KnowledgeChunk{}, nil
	}

	// Keep batches small because Content is large
	const batchSize = 100

	if err := transaction.WithContext(ctx).CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *chunkRepo) GetByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) ([]*types.KnowledgeChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.KnowledgeChunk
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("file_name, chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetByTenantAndProcessed(ctx context.Context, tx *gorm.DB, tenantID int64, processed bool) ([]*types.KnowledgeChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.KnowledgeChunk
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND processed = ?", tenantID, processed).
		Order("file_name, chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *chunkRepo) GetByChunkID(ctx context.Context, tx *gorm.DB, chunkID string) (*types.KnowledgeChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.KnowledgeChunk
	if err := transaction.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *chunkRepo) MarkProcessed(ctx context.Context, tx *gorm.DB, chunkIDs []string, processed bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunkIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.KnowledgeChunk{}).
		Where("chunk_id IN ?", chunkIDs).
		Update("processed", processed).Error
}

func (r *chunkRepo) UpdateContent(ctx context.Context, tx *gorm.DB, chunkID string, content string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	result := transaction.WithContext(ctx).
		Model(&types.KnowledgeChunk{}).
		Where("chunk_id = ?", chunkID).
		Update("content", content)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chunkRepo) DeleteByChunkID(ctx context.Context, tx *gorm.DB, chunkID string) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	result := transaction.WithContext(ctx).
		Where("chunk_id = ?", chunkID).
		Delete(&types.KnowledgeChunk{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *chunkRepo) DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	result := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&types.KnowledgeChunk{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *chunkRepo) CountByTenant(ctx context.Context, tx *gorm.DB, tenantID int64, processed *bool) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	query := transaction.WithContext(ctx).
		Model(&types.KnowledgeChunk{}).
		Where("tenant_id = ?", tenantID)
	if processed != nil {
		query = query.Where("processed = ?", *processed)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
