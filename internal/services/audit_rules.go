package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jzy12306/lingtuzhipu-sub000/internal/domain/kg"
	"github.com/jzy12306/lingtuzhipu-sub000/internal/platform/envutil"
)

//go:embed semantic_rules.yaml
var defaultSemanticRules []byte

// SemanticRule marks one (relation type, source type, target type) triple as
// incompatible.
type SemanticRule struct {
	Relation string `yaml:"relation"`
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	Severity string `yaml:"severity"`
}

type semanticRulesFile struct {
	Rules []SemanticRule `yaml:"rules"`
}

// RuleTable answers semantic incompatibility lookups. Keys are normalized so
// "BELONGS_TO" and "belongs-to" behave identically.
type RuleTable struct {
	rules map[string]kg.Severity
}

func ruleKey(relationType, sourceType, targetType string) string {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.ReplaceAll(s, "_", "-")
	}
	return norm(relationType) + "|" + norm(sourceType) + "|" + norm(targetType)
}

// LoadRuleTable reads the embedded rule set, or the file named by
// KG_SEMANTIC_RULES_PATH when set.
func LoadRuleTable() (*RuleTable, error) {
	raw := defaultSemanticRules
	if path := envutil.String("KG_SEMANTIC_RULES_PATH", ""); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read semantic rules %s: %w", path, err)
		}
		raw = b
	}
	return ParseRuleTable(raw)
}

func ParseRuleTable(raw []byte) (*RuleTable, error) {
	var f semanticRulesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse semantic rules: %w", err)
	}
	t := &RuleTable{rules: make(map[string]kg.Severity, len(f.Rules))}
	for i, r := range f.Rules {
		if r.Relation == "" || r.Source == "" || r.Target == "" {
			return nil, fmt.Errorf("semantic rule %d: relation, source and target are required", i)
		}
		sev := kg.Severity(strings.ToLower(strings.TrimSpace(r.Severity)))
		switch sev {
		case kg.SeverityLow, kg.SeverityMedium, kg.SeverityHigh:
		case "":
			sev = kg.SeverityMedium
		default:
			return nil, fmt.Errorf("semantic rule %d: unknown severity %q", i, r.Severity)
		}
		t.rules[ruleKey(r.Relation, r.Source, r.Target)] = sev
	}
	return t, nil
}

// Lookup reports whether the triple is incompatible and at what severity.
func (t *RuleTable) Lookup(relationType, sourceType, targetType string) (kg.Severity, bool) {
	if t == nil {
		return "", false
	}
	sev, ok := t.rules[ruleKey(relationType, sourceType, targetType)]
	return sev, ok
}

func (t *RuleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}
