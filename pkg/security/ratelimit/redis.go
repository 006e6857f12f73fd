package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/fastbreak-labs/courtguard/pkg/types"
)

const (
	blockKeyPrefix       = "courtguard:block:"
	threatScoreKeyPrefix = "courtguard:threat:"
	threatTotalKeyPrefix = "courtguard:threat_total:"
	windowKeyPrefix      = "courtguard:rl:"
)

// RedisLimiter backs user security state with Redis so that multiple
// instances share one source of truth. Sliding windows are ZSets scored by
// unix seconds; admission prunes, counts, and appends in a single Lua
// script, so concurrent requests for one user serialize on the Redis side
// and the window threshold stays exact across instances. Blocks are keys
// whose TTL matches the block duration.
type RedisLimiter struct {
	redis        *redis.Client
	windows      []Window
	escalation   Escalation
	uuidProvider func() uuid.UUID
}

type RedisLimiterOpts struct {
	UuidProvider func() uuid.UUID
}

func NewRedisLimiter(redisClient *redis.Client, windows []Window, escalation Escalation, opts *RedisLimiterOpts) *RedisLimiter {
	uuidProvider := uuid.New
	if opts != nil && opts.UuidProvider != nil {
		uuidProvider = opts.UuidProvider
	}
	return &RedisLimiter{
		redis:        redisClient,
		windows:      windows,
		escalation:   escalation,
		uuidProvider: uuidProvider,
	}
}

func blockKey(userID string) string       { return blockKeyPrefix + userID }
func threatScoreKey(userID string) string { return threatScoreKeyPrefix + userID }
func threatTotalKey(userID string) string { return threatTotalKeyPrefix + userID }

func windowKey(userID, window string) string {
	return fmt.Sprintf("%s%s:%s", windowKeyPrefix, userID, window)
}

// admissionScript prunes every window, checks every limit, and appends the
// new timestamp in one atomic step. Splitting the count and the append into
// separate round trips would let two concurrent requests both observe
// limit-1 and both record, overshooting the threshold. Denials record
// nothing and return the violating window index plus its oldest surviving
// score, from which the caller derives the retry hint.
//
// KEYS: one ZSet per window. ARGV: now (unix seconds), member, then per
// window its limit and duration in seconds.
const admissionScript = `for i, key in ipairs(KEYS) do
	local limit = tonumber(ARGV[2*i+1])
	local duration = tonumber(ARGV[2*i+2])
	redis.call('ZREMRANGEBYSCORE', key, 0, tonumber(ARGV[1]) - duration)
	if redis.call('ZCARD', key) >= limit then
		local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
		return {0, i, oldest[2]}
	end
end
for i, key in ipairs(KEYS) do
	redis.call('ZADD', key, tonumber(ARGV[1]), ARGV[2])
	redis.call('EXPIRE', key, tonumber(ARGV[2*i+2]))
end
return {1}`

func (l *RedisLimiter) CheckAdmission(ctx context.Context, userID string, now time.Time) (types.AdmissionResult, error) {
	blocked, retryAfter, err := l.blockStatus(ctx, userID, now)
	if err != nil {
		return types.AdmissionResult{}, err
	}
	if blocked {
		return types.AdmissionResult{Allowed: false, Reason: ReasonBlocked, RetryAfter: retryAfter}, nil
	}

	member := fmt.Sprintf("%d:%s", now.Unix(), l.uuidProvider().String())
	keys := make([]string, 0, len(l.windows))
	args := make([]interface{}, 0, 2+2*len(l.windows))
	args = append(args, now.Unix(), member)
	for _, w := range l.windows {
		keys = append(keys, windowKey(userID, w.Name))
		args = append(args, int64(w.Limit), int64(w.Duration/time.Second))
	}

	raw, err := l.redis.Eval(ctx, admissionScript, keys, args...).Result()
	if err != nil {
		return types.AdmissionResult{}, fmt.Errorf("failed to run admission script: %w", err)
	}
	reply, ok := raw.([]interface{})
	if !ok || len(reply) == 0 {
		return types.AdmissionResult{}, fmt.Errorf("unexpected admission script reply: %v", raw)
	}
	if admitted, _ := reply[0].(int64); admitted == 1 {
		return types.AdmissionResult{Allowed: true}, nil
	}
	if len(reply) != 3 {
		return types.AdmissionResult{}, fmt.Errorf("unexpected admission script reply: %v", raw)
	}
	idx, _ := reply[1].(int64)
	if idx < 1 || idx > int64(len(l.windows)) {
		return types.AdmissionResult{}, fmt.Errorf("admission script returned window index %d of %d", idx, len(l.windows))
	}
	w := l.windows[idx-1]

	retry := w.Duration
	if oldest, parseErr := strconv.ParseFloat(fmt.Sprint(reply[2]), 64); parseErr == nil {
		retry = time.Unix(int64(oldest), 0).Add(w.Duration).Sub(now)
	}
	return types.AdmissionResult{
		Allowed:    false,
		Reason:     RateLimitedReason(w.Name),
		RetryAfter: retry,
	}, nil
}

func (l *RedisLimiter) blockStatus(ctx context.Context, userID string, now time.Time) (bool, time.Duration, error) {
	val, err := l.redis.Get(ctx, blockKey(userID)).Result()
	if err == redis.Nil {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read block state: %w", err)
	}

	until, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("malformed block state for %s: %w", userID, err)
	}
	if now.Unix() < until {
		return true, time.Unix(until, 0).Sub(now), nil
	}

	// TTL normally clears the key; this covers clock drift.
	if err := l.redis.Del(ctx, blockKey(userID)).Err(); err != nil {
		return false, 0, fmt.Errorf("failed to clear expired block: %w", err)
	}
	return false, 0, nil
}

func (l *RedisLimiter) RecordThreat(ctx context.Context, userID string, _ []types.ThreatCategory, now time.Time) (types.BlockDecision, error) {
	score, err := l.redis.Incr(ctx, threatScoreKey(userID)).Result()
	if err != nil {
		return types.BlockDecision{}, fmt.Errorf("failed to increment threat score: %w", err)
	}
	total, err := l.redis.Incr(ctx, threatTotalKey(userID)).Result()
	if err != nil {
		return types.BlockDecision{}, fmt.Errorf("failed to increment threat total: %w", err)
	}

	var blockFor time.Duration
	switch {
	case total >= int64(l.escalation.ExtendedThreshold):
		blockFor = l.escalation.ExtendedBlockDuration
	case score >= int64(l.escalation.BlockThreshold):
		blockFor = l.escalation.BlockDuration
	default:
		return types.BlockDecision{}, nil
	}

	until := now.Add(blockFor)
	if err := l.redis.Set(ctx, blockKey(userID), strconv.FormatInt(until.Unix(), 10), blockFor).Err(); err != nil {
		return types.BlockDecision{}, fmt.Errorf("failed to activate block: %w", err)
	}
	if err := l.redis.Del(ctx, threatScoreKey(userID)).Err(); err != nil {
		return types.BlockDecision{}, fmt.Errorf("failed to reset threat score: %w", err)
	}

	return types.BlockDecision{NowBlocked: true, BlockedUntil: until}, nil
}

func (l *RedisLimiter) ResetUser(ctx context.Context, userID string) error {
	keys := []string{blockKey(userID), threatScoreKey(userID), threatTotalKey(userID)}
	for _, w := range l.windows {
		keys = append(keys, windowKey(userID, w.Name))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset user %s: %w", userID, err)
	}
	return nil
}

func (l *RedisLimiter) Status(ctx context.Context, userID string, now time.Time) (types.UserSecurityStatus, error) {
	status := types.UserSecurityStatus{
		UserID:              userID,
		RecentRequestCounts: make(map[string]int, len(l.windows)),
	}

	score, err := l.redis.Get(ctx, threatScoreKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return types.UserSecurityStatus{}, fmt.Errorf("failed to read threat score: %w", err)
	}
	if err == nil {
		parsed, parseErr := strconv.Atoi(score)
		if parseErr != nil {
			return types.UserSecurityStatus{}, fmt.Errorf("malformed threat score for %s: %w", userID, parseErr)
		}
		status.ThreatScore = parsed
	}

	val, err := l.redis.Get(ctx, blockKey(userID)).Result()
	if err != nil && err != redis.Nil {
		return types.UserSecurityStatus{}, fmt.Errorf("failed to read block state: %w", err)
	}
	if err == nil {
		untilUnix, parseErr := strconv.ParseInt(val, 10, 64)
		if parseErr != nil {
			return types.UserSecurityStatus{}, fmt.Errorf("malformed block state for %s: %w", userID, parseErr)
		}
		if now.Unix() < untilUnix {
			until := time.Unix(untilUnix, 0)
			status.BlockedUntil = &until
		}
	}

	for _, w := range l.windows {
		count, err := l.redis.ZCount(ctx, windowKey(userID, w.Name),
			strconv.FormatInt(now.Add(-w.Duration).Unix(), 10),
			strconv.FormatInt(now.Unix(), 10)).Result()
		if err != nil {
			return types.UserSecurityStatus{}, fmt.Errorf("failed to count window %s: %w", w.Name, err)
		}
		status.RecentRequestCounts[w.Name] = int(count)
	}

	return status, nil
}
