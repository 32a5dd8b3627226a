package types

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeDocument records one uploaded source file per tenant.
type KnowledgeDocument struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   int64     `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	FileName   string    `gorm:"column:file_name;not null" json:"file_name"`
	FileSize   int64     `gorm:"column:file_size;not null" json:"file_size"`
	ChunkCount int       `gorm:"column:chunk_count;not null" json:"chunk_count"`
	Processed  bool      `gorm:"column:processed;not null;default:false" json:"processed"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (KnowledgeDocument) TableName() string {
	return "knowledge_document"
}
