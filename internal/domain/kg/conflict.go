package kg

type ConflictType string

const (
	ConflictEmptyEntityName     ConflictType = "empty_entity_name"
	ConflictEmptyEntityType     ConflictType = "empty_entity_type"
	ConflictLowConfidenceEntity ConflictType = "low_confidence_entity"
	ConflictMissingSourceEntity ConflictType = "missing_source_entity"
	ConflictMissingTargetEntity ConflictType = "missing_target_entity"
	ConflictEmptyRelationType   ConflictType = "empty_relation_type"
	ConflictEntityTypeConflict  ConflictType = "entity_type_conflict"
	ConflictSemanticConflict    ConflictType = "semantic_conflict"
	ConflictTemporalConflict    ConflictType = "temporal_conflict"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict is a defect found by one audit pass. Entities/Relations point into
// the audited snapshot so the corrector can mutate the same records the
// detector saw. Conflicts are never persisted.
type Conflict struct {
	ID                  string       `json:"conflict_id"`
	Type                ConflictType `json:"type"`
	Entities            []*Entity    `json:"entities,omitempty"`
	Relations           []*Relation  `json:"relations,omitempty"`
	Description         string       `json:"description"`
	Severity            Severity     `json:"severity"`
	SuggestedResolution string       `json:"suggested_resolution"`
}
