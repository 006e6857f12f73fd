package redactor

// Built-in redaction rules, applied when not overridden by configuration.
// Order matters: key-value credential shapes are matched before bare token
// shapes so the placeholder swallows the whole assignment.
var defaultRules = []Rule{
	{
		Name:        "email",
		Pattern:     `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`,
		Placeholder: "[REDACTED]",
		Reason:      "email address",
	},
	{
		Name:        "credential",
		Pattern:     `(?i)\b(?:api[\s_-]?key|access[\s_-]?token|secret|password|credential)s?\b\s*[:=]?\s*\S+`,
		Placeholder: "[REDACTED_CREDENTIAL]",
		Reason:      "credential",
	},
	{
		Name:        "api_token",
		Pattern:     `\b(?:sk|pk|rk)-[A-Za-z0-9]{8,}\b`,
		Placeholder: "[REDACTED_CREDENTIAL]",
		Reason:      "api token",
	},
	{
		Name:        "ssn",
		Pattern:     `\b\d{3}-\d{2}-\d{4}\b`,
		Placeholder: "[REDACTED_SSN]",
		Reason:      "ssn-shaped number",
	},
	{
		Name:        "card_number",
		Pattern:     `\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`,
		Placeholder: "[REDACTED_CARD]",
		Reason:      "16-digit number",
	},
}

var defaultLeakPhrases = []string{
	"my instructions",
	"my system prompt",
	"system message",
	"i was instructed",
	"my prompt says",
	"according to my guidelines",
}
