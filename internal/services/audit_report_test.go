package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	types "github.com/jzy12306/lingtuzhipu-sub000/internal/domain"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
)

func TestBuildReportEmptyGraph(t *testing.T) {
	report := BuildReport("", nil, nil, nil)
	require.Zero(t, report.TotalConflicts)
	require.Equal(t, 1.0, report.Quality.Overall)
	require.Equal(t, []string{"graph quality is healthy; no action required"}, report.Recommendations)
}

func TestBuildReportCountsAndWeights(t *testing.T) {
	complete := testEntity("Alice", "Person", 1.0)
	incomplete := testEntity("", "Person", 1.0)
	rel := testRelation(complete.ID, incomplete.ID, "knows")
	rel.Confidence = 1.0

	conflicts := entityQualityPass([]*types.Entity{complete, incomplete})
	require.Len(t, conflicts, 1)

	report := BuildReport("doc-1", conflicts,
		[]*types.Entity{complete, incomplete},
		[]*types.Relation{rel},
	)

	require.Equal(t, 1, report.TotalConflicts)
	require.Equal(t, 1, report.CountsByType[kg.ConflictEmptyEntityName])
	require.Equal(t, 1, report.CountsBySeverity[kg.SeverityHigh])
	require.Equal(t, 2, report.EntityCount)
	require.Equal(t, 1, report.RelationCount)

	// 3 records: 2 complete, all confidence 1.0, 1 conflict.
	require.InDelta(t, 2.0/3.0, report.Quality.Completeness, 1e-9)
	require.InDelta(t, 1.0, report.Quality.Accuracy, 1e-9)
	require.InDelta(t, 2.0/3.0, report.Quality.Consistency, 1e-9)
	expected := 0.4*(2.0/3.0) + 0.4*1.0 + 0.2*(2.0/3.0)
	require.InDelta(t, expected, report.Quality.Overall, 1e-9)
}

func TestBuildReportRecommendations(t *testing.T) {
	incomplete := testEntity("", "Person", 0.2)
	conflicts := entityQualityPass([]*types.Entity{incomplete})
	require.Len(t, conflicts, 2) // empty name + low confidence

	report := BuildReport("", conflicts, []*types.Entity{incomplete}, nil)
	require.GreaterOrEqual(t, len(report.Recommendations), 3)

	joined := ""
	for _, r := range report.Recommendations {
		joined += r + "\n"
	}
	require.Contains(t, joined, "high-severity")
	require.Contains(t, joined, "completeness")
	require.Contains(t, joined, "accuracy")
	require.Contains(t, joined, "consistency")
}
