package redactor

import (
	"fmt"
	"regexp"
	"strings"
)

const DefaultFallbackMessage = "I can only share fantasy basketball advice. " +
	"Ask me about players, matchups, or your roster!"

const LeakageReason = "potential prompt leakage"

type Rule struct {
	Name        string `mapstructure:"name"`
	Pattern     string `mapstructure:"pattern"`
	Placeholder string `mapstructure:"placeholder"`
	Reason      string `mapstructure:"reason"`
}

type Config struct {
	Rules           []Rule   `mapstructure:"rules"`
	LeakPhrases     []string `mapstructure:"leak_phrases"`
	FallbackMessage string   `mapstructure:"fallback_message"`
}

// Result carries the redacted text plus one reason per rule that matched,
// in rule order.
type Result struct {
	Text    string
	Reasons []string
}

type compiledRule struct {
	name        string
	re          *regexp.Regexp
	placeholder string
	reason      string
}

// Redactor masks sensitive substrings in executor responses. Each rule has
// a fixed placeholder; a second pass replaces the entire text with the
// fallback sentence when a leak-indicating phrase is present.
type Redactor struct {
	rules       []compiledRule
	leakPhrases []string
	fallback    string
}

func New(cfg Config) (*Redactor, error) {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = defaultRules
	}
	leakPhrases := cfg.LeakPhrases
	if len(leakPhrases) == 0 {
		leakPhrases = defaultLeakPhrases
	}
	fallback := cfg.FallbackMessage
	if fallback == "" {
		fallback = DefaultFallbackMessage
	}

	r := &Redactor{
		rules:       make([]compiledRule, 0, len(rules)),
		leakPhrases: make([]string, 0, len(leakPhrases)),
		fallback:    fallback,
	}
	for _, rule := range rules {
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", rule.Pattern, err)
		}
		r.rules = append(r.rules, compiledRule{
			name:        rule.Name,
			re:          re,
			placeholder: rule.Placeholder,
			reason:      rule.Reason,
		})
	}
	for _, phrase := range leakPhrases {
		r.leakPhrases = append(r.leakPhrases, strings.ToLower(phrase))
	}
	return r, nil
}

// Redact applies every rule in order, then the leakage pass. The leakage
// pass takes precedence: it discards partial redactions and returns the
// fixed fallback sentence. Unmatched text passes through unchanged.
func (r *Redactor) Redact(text string) Result {
	result := Result{Text: text}

	for _, rule := range r.rules {
		if !rule.re.MatchString(result.Text) {
			continue
		}
		result.Text = rule.re.ReplaceAllString(result.Text, rule.placeholder)
		result.Reasons = append(result.Reasons, rule.reason)
	}

	lowered := strings.ToLower(text)
	for _, phrase := range r.leakPhrases {
		if strings.Contains(lowered, phrase) {
			return Result{Text: r.fallback, Reasons: append(result.Reasons, LeakageReason)}
		}
	}

	return result
}
