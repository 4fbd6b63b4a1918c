package kg

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entity is a node of the knowledge graph. The Postgres row is authoritative;
// the Neo4j projection is derived from it and can always be rebuilt.
//
// IsValid is the soft-deletion marker: invalidated entities are retained for
// audit traceability and never physically removed.
type Entity struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string         `gorm:"column:name;index" json:"name"`
	Type             string         `gorm:"column:type;index" json:"type"`
	Description      string         `gorm:"column:description;type:text" json:"description,omitempty"`
	Properties       datatypes.JSON `gorm:"column:properties;type:jsonb" json:"properties,omitempty"`
	Confidence       float64        `gorm:"column:confidence;not null" json:"confidence_score"`
	IsValid          bool           `gorm:"column:is_valid;not null;index" json:"is_valid"`
	SourceDocumentID string         `gorm:"column:source_document_id;index" json:"source_document_id,omitempty"`
	DocumentID       string         `gorm:"column:document_id;index" json:"document_id,omitempty"`
	UserID           string         `gorm:"column:user_id;index" json:"user_id,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (Entity) TableName() string { return "kg_entity" }
