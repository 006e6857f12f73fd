package sanitizer

import "strings"

const (
	DefaultMaxLength       = 500
	DefaultDisallowedChars = "<>{}`\\"
)

type Config struct {
	MaxLength       int    `mapstructure:"max_query_length"`
	DisallowedChars string `mapstructure:"disallowed_chars"`
}

// Sanitizer strips disallowed characters and truncates query text. It is a
// pure transform with no failure mode: the result is always a string,
// possibly empty.
type Sanitizer struct {
	maxLength  int
	disallowed map[rune]struct{}
}

func New(cfg Config) *Sanitizer {
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	chars := cfg.DisallowedChars
	if chars == "" {
		chars = DefaultDisallowedChars
	}

	disallowed := make(map[rune]struct{}, len(chars))
	for _, r := range chars {
		disallowed[r] = struct{}{}
	}
	return &Sanitizer{maxLength: maxLength, disallowed: disallowed}
}

// Sanitize removes disallowed characters, truncates to the maximum length,
// and trims surrounding whitespace after truncation.
func (s *Sanitizer) Sanitize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if _, drop := s.disallowed[r]; drop {
			continue
		}
		b.WriteRune(r)
	}

	cleaned := []rune(b.String())
	if len(cleaned) > s.maxLength {
		cleaned = cleaned[:s.maxLength]
	}
	return strings.TrimSpace(string(cleaned))
}
