package ratelimit

import (
	"context"
	"time"

	"github.com/fastbreak-labs/courtguard/pkg/types"
)

// Window is one sliding rate-limit window: at most Limit admitted requests
// within the trailing Duration.
type Window struct {
	Name     string
	Limit    int
	Duration time.Duration
}

// Escalation maps accumulated threat score to timed blocks. The score
// resets to zero after each escalation; the lifetime threat total (reset
// only by ResetUser) drives the extended tier.
type Escalation struct {
	BlockThreshold        int
	BlockDuration         time.Duration
	ExtendedThreshold     int
	ExtendedBlockDuration time.Duration
}

// Limiter owns all per-user security state. Operations on a single user id
// are linearizable; operations across users proceed concurrently.
//
// Admission denial is a normal outcome, not an error: the error return is
// reserved for backing-store failures (the in-memory limiter never fails).
type Limiter interface {
	CheckAdmission(ctx context.Context, userID string, now time.Time) (types.AdmissionResult, error)
	RecordThreat(ctx context.Context, userID string, categories []types.ThreatCategory, now time.Time) (types.BlockDecision, error)
	ResetUser(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string, now time.Time) (types.UserSecurityStatus, error)
}

const (
	ReasonBlocked           = "blocked"
	reasonRateLimitedPrefix = "rate_limited:"
)

// RateLimitedReason names the window that denied admission.
func RateLimitedReason(window string) string {
	return reasonRateLimitedPrefix + window
}
