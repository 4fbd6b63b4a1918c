package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
)

func TestLoadRuleTableDefaults(t *testing.T) {
	rules, err := LoadRuleTable()
	require.NoError(t, err)
	require.Greater(t, rules.Len(), 0)

	sev, ok := rules.Lookup("belongs-to", "Person", "Person")
	require.True(t, ok)
	require.Equal(t, kg.SeverityMedium, sev)
}

func TestRuleTableNormalization(t *testing.T) {
	rules, err := ParseRuleTable([]byte(`
rules:
  - relation: BELONGS_TO
    source: person
    target: PERSON
`))
	require.NoError(t, err)

	// case and separator insensitive, severity defaults to medium
	sev, ok := rules.Lookup("belongs-to", "Person", "Person")
	require.True(t, ok)
	require.Equal(t, kg.SeverityMedium, sev)

	_, ok = rules.Lookup("belongs-to", "Person", "Location")
	require.False(t, ok)
}

func TestParseRuleTableRejectsBadRows(t *testing.T) {
	_, err := ParseRuleTable([]byte(`
rules:
  - relation: belongs-to
    source: Person
`))
	require.Error(t, err)

	_, err = ParseRuleTable([]byte(`
rules:
  - relation: belongs-to
    source: Person
    target: Person
    severity: catastrophic
`))
	require.Error(t, err)
}
