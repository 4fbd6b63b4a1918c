package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/data/repos"
	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/pkg/dbctx"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/logger"
)

// Quality score weights: completeness and accuracy dominate, consistency
// refines.
const (
	weightCompleteness = 0.4
	weightAccuracy     = 0.4
	weightConsistency  = 0.2
)

type QualityScore struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Consistency  float64 `json:"consistency"`
	Overall      float64 `json:"overall"`
}

type AuditReport struct {
	GeneratedAt      time.Time                `json:"generated_at"`
	DocumentID       string                   `json:"document_id,omitempty"`
	EntityCount      int                      `json:"entity_count"`
	RelationCount    int                      `json:"relation_count"`
	TotalConflicts   int                      `json:"total_conflicts"`
	CountsByType     map[types.ConflictType]int `json:"counts_by_type"`
	CountsBySeverity map[types.Severity]int     `json:"counts_by_severity"`
	Quality          QualityScore             `json:"quality"`
	Recommendations  []string                 `json:"recommendations"`
}

// AuditReporter turns a conflict list into an aggregate report with quality
// scores and threshold-derived recommendations.
type AuditReporter interface {
	// Generate audits the given document (or the whole graph when documentID
	// is empty) and builds the report for it.
	Generate(ctx context.Context, documentID string) (*AuditReport, []*types.Conflict, error)
}

type auditReporter struct {
	auditor      GraphAuditor
	entityRepo   repos.EntityRepo
	relationRepo repos.RelationRepo
	log          *logger.Logger
}

func NewAuditReporter(
	auditor GraphAuditor,
	entityRepo repos.EntityRepo,
	relationRepo repos.RelationRepo,
	baseLog *logger.Logger,
) AuditReporter {
	return &auditReporter{
		auditor:      auditor,
		entityRepo:   entityRepo,
		relationRepo: relationRepo,
		log:          baseLog.With("service", "AuditReporter"),
	}
}

func (s *auditReporter) Generate(ctx context.Context, documentID string) (*AuditReport, []*types.Conflict, error) {
	var (
		conflicts []*types.Conflict
		err       error
	)
	if documentID == "" {
		conflicts, err = s.auditor.AuditAll(ctx)
	} else {
		conflicts, err = s.auditor.AuditDocument(ctx, documentID)
	}
	if err != nil {
		return nil, nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	var (
		entities  []*types.Entity
		relations []*types.Relation
	)
	if documentID == "" {
		entities, err = s.entityRepo.ListAll(dbc)
		if err != nil {
			return nil, nil, err
		}
		relations, err = s.relationRepo.ListAll(dbc)
	} else {
		entities, err = s.entityRepo.GetByDocument(dbc, documentID)
		if err != nil {
			return nil, nil, err
		}
		relations, err = s.relationRepo.GetByDocument(dbc, documentID)
	}
	if err != nil {
		return nil, nil, err
	}

	report := BuildReport(documentID, conflicts, validEntities(entities), validRelations(relations))
	s.log.Info("audit report generated",
		"document_id", documentID,
		"conflicts", report.TotalConflicts,
		"overall_quality", report.Quality.Overall,
	)
	return report, conflicts, nil
}

// BuildReport is the pure aggregation step.
func BuildReport(documentID string, conflicts []*types.Conflict, entities []*types.Entity, relations []*types.Relation) *AuditReport {
	report := &AuditReport{
		GeneratedAt:      time.Now().UTC(),
		DocumentID:       documentID,
		EntityCount:      len(entities),
		RelationCount:    len(relations),
		TotalConflicts:   len(conflicts),
		CountsByType:     map[types.ConflictType]int{},
		CountsBySeverity: map[types.Severity]int{},
	}
	for _, c := range conflicts {
		if c == nil {
			continue
		}
		report.CountsByType[c.Type]++
		report.CountsBySeverity[c.Severity]++
	}
	report.Quality = scoreQuality(conflicts, entities, relations)
	report.Recommendations = recommendations(report.Quality, report.CountsBySeverity)
	return report
}

func scoreQuality(conflicts []*types.Conflict, entities []*types.Entity, relations []*types.Relation) QualityScore {
	total := len(entities) + len(relations)
	if total == 0 {
		return QualityScore{Completeness: 1, Accuracy: 1, Consistency: 1, Overall: 1}
	}

	complete := 0
	var confidenceSum float64
	for _, e := range entities {
		if strings.TrimSpace(e.Name) != "" && strings.TrimSpace(e.Type) != "" {
			complete++
		}
		confidenceSum += e.Confidence
	}
	for _, rel := range relations {
		if strings.TrimSpace(rel.Type) != "" {
			complete++
		}
		confidenceSum += rel.Confidence
	}

	score := QualityScore{
		Completeness: float64(complete) / float64(total),
		Accuracy:     confidenceSum / float64(total),
		Consistency:  1 - float64(len(conflicts))/float64(total),
	}
	if score.Consistency < 0 {
		score.Consistency = 0
	}
	score.Overall = weightCompleteness*score.Completeness +
		weightAccuracy*score.Accuracy +
		weightConsistency*score.Consistency
	return score
}

func recommendations(q QualityScore, bySeverity map[types.Severity]int) []string {
	var out []string
	if n := bySeverity[kg.SeverityHigh]; n > 0 {
		out = append(out, fmt.Sprintf("resolve the %d high-severity conflicts first; they break referential integrity or leave records unidentifiable", n))
	}
	if q.Completeness < 0.9 {
		out = append(out, "fill in missing entity names, entity types and relation types to raise completeness")
	}
	if q.Accuracy < 0.8 {
		out = append(out, "review low-confidence records; re-extract or confirm them to raise accuracy")
	}
	if q.Consistency < 0.95 {
		out = append(out, "run auto-correction to reduce detected conflicts and raise consistency")
	}
	if len(out) == 0 {
		out = append(out, "graph quality is healthy; no action required")
	}
	return out
}
