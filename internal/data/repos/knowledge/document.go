package knowledge

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/edustack/knowledge-backend/internal/platform/logger"
	"github.com/edustack/knowledge-backend/internal/types"
)

// DocumentAggregate is the per-tenant rollup the stats endpoint reads.
type DocumentAggregate struct {
	FileCount int64
	TotalSize int64
}

type DocumentRepo interface {
	Create(ctx context.Context, tx *gorm.DB, doc *types.KnowledgeDocument) (*types.KnowledgeDocument, error)
	GetByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) ([]*types.KnowledgeDocument, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, id uuid.UUID, processed bool) error
	DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) (int64, error)
	AggregateByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) (DocumentAggregate, error)
}

type documentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRepo {
	repoLog := baseLog.With("repo", "DocumentRepo")
	return &documentRepo{db: db, log: repoLog}
}

func (r *documentRepo) Create(ctx context.Context, tx *gorm.DB, doc *types.KnowledgeDocument) (*types.KnowledgeDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *documentRepo) GetByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) ([]*types.KnowledgeDocument, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.KnowledgeDocument
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *documentRepo) MarkProcessed(ctx context.Context, tx *gorm.DB, id uuid.UUID, processed bool) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	result := transaction.WithContext(ctx).
		Model(&types.KnowledgeDocument{}).
		Where("id = ?", id).
		Update("processed", processed)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *documentRepo) DeleteByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	result := transaction.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&types.KnowledgeDocument{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *documentRepo) AggregateByTenant(ctx context.Context, tx *gorm.DB, tenantID int64) (DocumentAggregate, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var agg struct {
		FileCount int64
		TotalSize *int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.KnowledgeDocument{}).
		Select("COUNT(*) AS file_count, SUM(file_size) AS total_size").
		Where("tenant_id = ?", tenantID).
		Scan(&agg).Error; err != nil {
		return DocumentAggregate{}, err
	}
	out := DocumentAggregate{FileCount: agg.FileCount}
	if agg.TotalSize != nil {
		out.TotalSize = *agg.TotalSize
	}
	return out, nil
}
