package kg

import (
	"time"

	"github.com/google/uuid"
)

const (
	SyncKindEntity   = "entity"
	SyncKindRelation = "relation"
)

// GraphSyncEvent is a durable outbox row. It is appended in the same
// transaction as the primary write and drained by the graph indexer, so the
// Neo4j projection is eventually consistent rather than best-effort.
type GraphSyncEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        string     `gorm:"column:kind;not null;index" json:"kind"`
	RecordID    uuid.UUID  `gorm:"type:uuid;column:record_id;not null;index" json:"record_id"`
	Attempts    int        `gorm:"column:attempts;not null" json:"attempts"`
	LastError   string     `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	AvailableAt time.Time  `gorm:"column:available_at;not null;index" json:"available_at"`
	ProcessedAt *time.Time `gorm:"column:processed_at;index" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (GraphSyncEvent) TableName() string { return "kg_sync_event" }
