package types

import (
	"context"
	"time"
)

// ThreatCategory tags a query with the pattern family it matched.
type ThreatCategory string

const (
	PromptInjection ThreatCategory = "prompt_injection"
	InfoExtraction  ThreatCategory = "info_extraction"
	SQLInjection    ThreatCategory = "sql_injection"
	ScriptInjection ThreatCategory = "script_injection"
)

// SecurityVerdict is the authoritative outcome of a processed request.
type SecurityVerdict string

const (
	VerdictAllowed        SecurityVerdict = "allowed"
	VerdictRateLimited    SecurityVerdict = "rate_limited"
	VerdictBlocked        SecurityVerdict = "blocked"
	VerdictThreatDetected SecurityVerdict = "threat_detected"
)

// PipelineResult is what callers receive for every processed query. Content
// is always safe to show to the end user: a fixed template or the redacted
// executor response, never raw model output.
type PipelineResult struct {
	Verdict          SecurityVerdict  `json:"verdict"`
	Content          string           `json:"content"`
	Categories       []ThreatCategory `json:"categories,omitempty"`
	RedactionReasons []string         `json:"redaction_reasons,omitempty"`
	RetryAfter       time.Duration    `json:"retry_after,omitempty"`
}

// AdmissionResult is the outcome of a rate-limit check. Denial is normal
// control flow, not an error.
type AdmissionResult struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// BlockDecision reports whether a threat recording escalated into a block.
type BlockDecision struct {
	NowBlocked   bool
	BlockedUntil time.Time
}

// UserSecurityStatus is the operator-facing view of a user's record.
type UserSecurityStatus struct {
	UserID              string         `json:"user_id"`
	ThreatScore         int            `json:"threat_score"`
	BlockedUntil        *time.Time     `json:"blocked_until,omitempty"`
	RecentRequestCounts map[string]int `json:"recent_request_counts"`
}

// SecurityEvent is the append-only observability record, one per processed
// request. The pipeline writes it and never reads it back.
type SecurityEvent struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Timestamp        time.Time        `json:"timestamp"`
	Verdict          SecurityVerdict  `json:"verdict"`
	Categories       []ThreatCategory `json:"categories,omitempty"`
	RedactionReasons []string         `json:"redaction_reasons,omitempty"`
	ExecutorFailed   bool             `json:"executor_failed,omitempty"`
	LatencyMicros    int64            `json:"latency_micros"`
}

// QueryExecutor is the external collaborator that answers a sanitized query,
// typically an LLM agent call. It may be slow and may fail; the pipeline
// treats it as opaque.
type QueryExecutor interface {
	Execute(ctx context.Context, sanitizedQuery string) (string, error)
}

// ExecutorError wraps an operational failure of the query executor
// (timeout, network error, upstream rejection). It never mutates
// threat or rate state.
type ExecutorError struct {
	Message string
	Err     error
}

func (e *ExecutorError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}
