package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/fastbreak-labs/courtguard/pkg/types"
)

type userState struct {
	mu           sync.Mutex
	windows      map[string][]time.Time
	threatScore  int
	threatTotal  int
	blockedUntil time.Time
}

// MemoryLimiter keeps all user records in process memory. Each record is
// guarded by its own mutex, so admission checks for distinct users never
// contend; checks for the same user serialize, which is what makes the
// threshold exact under concurrent requests.
type MemoryLimiter struct {
	mu         sync.RWMutex
	users      map[string]*userState
	windows    []Window
	escalation Escalation
}

func NewMemoryLimiter(windows []Window, escalation Escalation) *MemoryLimiter {
	return &MemoryLimiter{
		users:      make(map[string]*userState),
		windows:    windows,
		escalation: escalation,
	}
}

func (l *MemoryLimiter) getOrCreate(userID string) *userState {
	l.mu.RLock()
	state, ok := l.users[userID]
	l.mu.RUnlock()
	if ok {
		return state
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if state, ok = l.users[userID]; ok {
		return state
	}
	state = &userState{windows: make(map[string][]time.Time, len(l.windows))}
	l.users[userID] = state
	return state
}

// prune drops timestamps older than the window's lookback. Called with the
// user's mutex held.
func prune(timestamps []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(timestamps) && !timestamps[idx].After(cutoff) {
		idx++
	}
	return timestamps[idx:]
}

func (l *MemoryLimiter) CheckAdmission(_ context.Context, userID string, now time.Time) (types.AdmissionResult, error) {
	state := l.getOrCreate(userID)
	state.mu.Lock()
	defer state.mu.Unlock()

	if !state.blockedUntil.IsZero() {
		if now.Before(state.blockedUntil) {
			return types.AdmissionResult{
				Allowed:    false,
				Reason:     ReasonBlocked,
				RetryAfter: state.blockedUntil.Sub(now),
			}, nil
		}
		state.blockedUntil = time.Time{}
	}

	for _, w := range l.windows {
		remaining := prune(state.windows[w.Name], now.Add(-w.Duration))
		state.windows[w.Name] = remaining
		if len(remaining) >= w.Limit {
			// Oldest surviving timestamp leaves the window first.
			retryAfter := remaining[0].Add(w.Duration).Sub(now)
			return types.AdmissionResult{
				Allowed:    false,
				Reason:     RateLimitedReason(w.Name),
				RetryAfter: retryAfter,
			}, nil
		}
	}

	for _, w := range l.windows {
		state.windows[w.Name] = append(state.windows[w.Name], now)
	}
	return types.AdmissionResult{Allowed: true}, nil
}

func (l *MemoryLimiter) RecordThreat(_ context.Context, userID string, _ []types.ThreatCategory, now time.Time) (types.BlockDecision, error) {
	state := l.getOrCreate(userID)
	state.mu.Lock()
	defer state.mu.Unlock()

	state.threatScore++
	state.threatTotal++

	var blockFor time.Duration
	switch {
	case state.threatTotal >= l.escalation.ExtendedThreshold:
		blockFor = l.escalation.ExtendedBlockDuration
	case state.threatScore >= l.escalation.BlockThreshold:
		blockFor = l.escalation.BlockDuration
	default:
		return types.BlockDecision{}, nil
	}

	state.blockedUntil = now.Add(blockFor)
	state.threatScore = 0
	return types.BlockDecision{NowBlocked: true, BlockedUntil: state.blockedUntil}, nil
}

func (l *MemoryLimiter) ResetUser(_ context.Context, userID string) error {
	l.mu.Lock()
	state, ok := l.users[userID]
	l.mu.Unlock()
	if !ok {
		return nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	state.windows = make(map[string][]time.Time, len(l.windows))
	state.threatScore = 0
	state.threatTotal = 0
	state.blockedUntil = time.Time{}
	return nil
}

func (l *MemoryLimiter) Status(_ context.Context, userID string, now time.Time) (types.UserSecurityStatus, error) {
	status := types.UserSecurityStatus{
		UserID:              userID,
		RecentRequestCounts: make(map[string]int, len(l.windows)),
	}

	// Introspection must not allocate a record for a user that has none.
	l.mu.RLock()
	state, ok := l.users[userID]
	l.mu.RUnlock()
	if !ok {
		for _, w := range l.windows {
			status.RecentRequestCounts[w.Name] = 0
		}
		return status, nil
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	status.ThreatScore = state.threatScore
	if !state.blockedUntil.IsZero() && now.Before(state.blockedUntil) {
		until := state.blockedUntil
		status.BlockedUntil = &until
	}
	for _, w := range l.windows {
		remaining := prune(state.windows[w.Name], now.Add(-w.Duration))
		state.windows[w.Name] = remaining
		status.RecentRequestCounts[w.Name] = len(remaining)
	}
	return status, nil
}
