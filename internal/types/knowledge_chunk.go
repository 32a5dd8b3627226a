package types

import (
	"time"

	"github.com/google/uuid"
)

// KnowledgeChunk is the relational record of one embedded chunk. ChunkID
// is the stable identifier shared with the vector index; Processed tracks
// whether the chunk's vector has been written there.
type KnowledgeChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID   int64     `gorm:"column:tenant_id;not null;index" json:"tenant_id"`
	ChunkID    string    `gorm:"column:chunk_id;not null;uniqueIndex" json:"chunk_id"`
	FileName   string    `gorm:"column:file_name;not null" json:"file_name"`
	Content    string    `gorm:"column:content;not null" json:"content"`
	ChunkIndex int       `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Oversized  bool      `gorm:"column:oversized;not null;default:false" json:"oversized"`
	Processed  bool      `gorm:"column:processed;not null;default:false;index" json:"processed"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (KnowledgeChunk) TableName() string {
	return "knowledge_chunk"
}
