package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fastbreak-labs/courtguard/pkg/types"
)

// Config enumerates the recognized pattern families. Empty families fall
// back to the built-in tables in data.go.
type Config struct {
	InjectionPatterns  []string `mapstructure:"injection_patterns"`
	ExtractionPatterns []string `mapstructure:"extraction_patterns"`
	SQLPatterns        []string `mapstructure:"sql_patterns"`
	ScriptPatterns     []string `mapstructure:"script_patterns"`
}

type family struct {
	category types.ThreatCategory
	patterns []*regexp.Regexp
}

// Matcher classifies query text against the configured pattern families.
// It holds only compiled patterns, so a single instance is safe for
// concurrent use without synchronization.
type Matcher struct {
	families []family
}

func NewMatcher(cfg Config) (*Matcher, error) {
	sources := []struct {
		category types.ThreatCategory
		raw      []string
		fallback []string
	}{
		{types.PromptInjection, cfg.InjectionPatterns, defaultInjectionPatterns},
		{types.InfoExtraction, cfg.ExtractionPatterns, defaultExtractionPatterns},
		{types.SQLInjection, cfg.SQLPatterns, defaultSQLPatterns},
		{types.ScriptInjection, cfg.ScriptPatterns, defaultScriptPatterns},
	}

	m := &Matcher{families: make([]family, 0, len(sources))}
	for _, src := range sources {
		raw := src.raw
		if len(raw) == 0 {
			raw = src.fallback
		}
		compiled := make([]*regexp.Regexp, 0, len(raw))
		for _, p := range raw {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid %s pattern %q: %w", src.category, p, err)
			}
			compiled = append(compiled, re)
		}
		m.families = append(m.families, family{category: src.category, patterns: compiled})
	}
	return m, nil
}

// Classify returns the set of threat categories matched by text. Matching
// short-circuits within a family but always evaluates every family, so a
// query can carry multiple categories at once. Empty or whitespace-only
// input yields the empty set.
func (m *Matcher) Classify(text string) []types.ThreatCategory {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}

	var categories []types.ThreatCategory
	for _, f := range m.families {
		for _, re := range f.patterns {
			if re.MatchString(normalized) {
				categories = append(categories, f.category)
				break
			}
		}
	}
	return categories
}
