package kg

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Relation is a directed typed edge between two entities. The cached
// source/target names are display-only; the ids are authoritative and may
// dangle (flagged by audit, never rejected at write time).
type Relation struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SourceEntityID   uuid.UUID      `gorm:"type:uuid;column:source_entity_id;index" json:"source_entity_id"`
	TargetEntityID   uuid.UUID      `gorm:"type:uuid;column:target_entity_id;index" json:"target_entity_id"`
	SourceEntityName string         `gorm:"column:source_entity_name" json:"source_entity_name,omitempty"`
	TargetEntityName string         `gorm:"column:target_entity_name" json:"target_entity_name,omitempty"`
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

func (Relation) TableName() string { return "kg_relation" }
