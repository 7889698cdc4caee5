package rollup

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RollupRecord is the persisted form of a CompositeRecord. Rows are matched by
// (source_type, identity_key); the index is intentionally not unique so that a
// duplicated identity is detected instead of silently absorbed.
type RollupRecord struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceType  string         `gorm:"column:source_type;not null;index:idx_rollup_identity,priority:1" json:"source_type"`
	IdentityKey string         `gorm:"column:identity_key;not null;index:idx_rollup_identity,priority:2" json:"identity_key"`
	Identity    datatypes.JSON `gorm:"column:identity;type:jsonb" json:"identity"`
	Header      datatypes.JSON `gorm:"column:header;type:jsonb" json:"header"`
	Items       datatypes.JSON `gorm:"column:items;type:jsonb" json:"items"`
	Categories  datatypes.JSON `gorm:"column:categories;type:jsonb" json:"categories"`
	ItemTotal   int64          `gorm:"column:item_total;not null;default:0" json:"item_total"`
	LoadedAt    time.Time      `gorm:"column:loaded_at;not null;index" json:"loaded_at"`
	Version     int            `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (RollupRecord) TableName() string { return "rollup_records" }

// SourceDocument is one raw source row. ID doubles as the ingestion sequence that
// defines "first value seen" for SQL-backed sources.
type SourceDocument struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Collection string         `gorm:"column:collection;not null;index" json:"collection"`
	Doc        datatypes.JSON `gorm:"column:doc;type:jsonb;not null" json:"doc"`
	IngestedAt time.Time      `gorm:"column:ingested_at;not null" json:"ingested_at"`
}

func (SourceDocument) TableName() string { return "source_documents" }
