package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/infra/events"
	"github.com/fastbreak-labs/courtguard/pkg/infra/httpx"
	"github.com/fastbreak-labs/courtguard/pkg/infra/prometheus"
	"github.com/fastbreak-labs/courtguard/pkg/security/patterns"
	"github.com/fastbreak-labs/courtguard/pkg/security/ratelimit"
	"github.com/fastbreak-labs/courtguard/pkg/security/redactor"
	"github.com/fastbreak-labs/courtguard/pkg/security/sanitizer"
	"github.com/fastbreak-labs/courtguard/pkg/types"
)

const (
	// Every user-visible message is one of these fixed templates or the
	// redacted executor output. Pattern-match details are never exposed.
	BlockedMessage        = "Your access is temporarily suspended because of repeated policy violations. Please try again in %s."
	RateLimitedMessage    = "You're sending requests too quickly. Please try again in %d seconds."
	ThreatRedirectMessage = "I can only help with fantasy basketball questions. Ask me about players, matchups, or your roster!"
	GenericRetryMessage   = "Something went wrong while answering your question. Please try again in a moment."

	DefaultExecutorTimeout = 30 * time.Second
)

type DI struct {
	Matcher   *patterns.Matcher
	Sanitizer *sanitizer.Sanitizer
	Redactor  *redactor.Redactor
	Limiter   ratelimit.Limiter
	Executor  types.QueryExecutor
	Breaker   httpx.CircuitBreaker
	Sink      events.Sink
	Logger    *logrus.Logger
	Timeout   time.Duration
}

// Pipeline runs the full admission and content-security sequence for one
// query: rate-limit check, threat classification, sanitization, executor
// call, redaction. Detected threats never reach the executor and raw
// executor output never reaches the caller.
type Pipeline struct {
	matcher   *patterns.Matcher
	sanitizer *sanitizer.Sanitizer
	redactor  *redactor.Redactor
	limiter   ratelimit.Limiter
	executor  types.QueryExecutor
	breaker   httpx.CircuitBreaker
	sink      events.Sink
	logger    *logrus.Logger
	timeout   time.Duration
}

func New(di DI) *Pipeline {
	timeout := di.Timeout
	if timeout <= 0 {
		timeout = DefaultExecutorTimeout
	}
	return &Pipeline{
		matcher:   di.Matcher,
		sanitizer: di.Sanitizer,
		redactor:  di.Redactor,
		limiter:   di.Limiter,
		executor:  di.Executor,
		breaker:   di.Breaker,
		sink:      di.Sink,
		logger:    di.Logger,
		timeout:   timeout,
	}
}

// Process evaluates one query for one user. Every branch emits exactly one
// SecurityEvent and returns a result whose Content is safe to show.
func (p *Pipeline) Process(ctx context.Context, userID, rawQuery string, now time.Time) types.PipelineResult {
	start := time.Now()

	admission, err := p.limiter.CheckAdmission(ctx, userID, now)
	if err != nil {
		// Backing-store failure: fail closed and ask the caller to back off.
		p.logger.WithError(err).WithField("user_id", userID).Error("admission check failed")
		result := types.PipelineResult{
			Verdict:    types.VerdictRateLimited,
			Content:    fmt.Sprintf(RateLimitedMessage, 60),
			RetryAfter: time.Minute,
		}
		p.finish(userID, now, start, result, false)
		return result
	}

	if !admission.Allowed {
		result := p.denialResult(admission)
		p.finish(userID, now, start, result, false)
		return result
	}

	if categories := p.matcher.Classify(rawQuery); len(categories) > 0 {
		if _, err := p.limiter.RecordThreat(ctx, userID, categories, now); err != nil {
			p.logger.WithError(err).WithField("user_id", userID).Error("failed to record threat")
		}
		for _, c := range categories {
			prometheus.ThreatsDetected.WithLabelValues(string(c)).Inc()
		}
		result := types.PipelineResult{
			Verdict:    types.VerdictThreatDetected,
			Content:    ThreatRedirectMessage,
			Categories: categories,
		}
		p.finish(userID, now, start, result, false)
		return result
	}

	sanitized := p.sanitizer.Sanitize(rawQuery)

	response, err := p.execute(ctx, sanitized)
	if err != nil {
		// Operational failure, not a security event: threat and rate state
		// stay exactly as committed before the executor call.
		p.logger.WithError(err).WithField("user_id", userID).Error("executor call failed")
		prometheus.ExecutorFailures.Inc()
		result := types.PipelineResult{
			Verdict: types.VerdictAllowed,
			Content: GenericRetryMessage,
		}
		p.finish(userID, now, start, result, true)
		return result
	}

	redacted := p.redactor.Redact(response)
	result := types.PipelineResult{
		Verdict:          types.VerdictAllowed,
		Content:          redacted.Text,
		RedactionReasons: redacted.Reasons,
	}
	p.finish(userID, now, start, result, false)
	return result
}

func (p *Pipeline) denialResult(admission types.AdmissionResult) types.PipelineResult {
	if admission.Reason == ratelimit.ReasonBlocked {
		return types.PipelineResult{
			Verdict:    types.VerdictBlocked,
			Content:    fmt.Sprintf(BlockedMessage, admission.RetryAfter.Round(time.Second)),
			RetryAfter: admission.RetryAfter,
		}
	}
	seconds := int(math.Ceil(admission.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return types.PipelineResult{
		Verdict:    types.VerdictRateLimited,
		Content:    fmt.Sprintf(RateLimitedMessage, seconds),
		RetryAfter: admission.RetryAfter,
	}
}

func (p *Pipeline) execute(ctx context.Context, sanitizedQuery string) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var response string
	run := func() error {
		resp, err := p.executor.Execute(execCtx, sanitizedQuery)
		if err != nil {
			return err
		}
		response = resp
		return nil
	}

	var err error
	if p.breaker != nil {
		err = p.breaker.Execute(run)
	} else {
		err = run()
	}
	if err != nil {
		return "", &types.ExecutorError{Message: "query executor failed", Err: err}
	}
	return response, nil
}

func (p *Pipeline) finish(userID string, now, start time.Time, result types.PipelineResult, executorFailed bool) {
	latency := time.Since(start)
	prometheus.RequestsTotal.WithLabelValues(string(result.Verdict)).Inc()
	prometheus.PipelineLatency.Observe(float64(latency.Milliseconds()))

	p.sink.Emit(types.SecurityEvent{
		ID:               uuid.New().String(),
		UserID:           userID,
		Timestamp:        now,
		Verdict:          result.Verdict,
		Categories:       result.Categories,
		RedactionReasons: result.RedactionReasons,
		ExecutorFailed:   executorFailed,
		LatencyMicros:    latency.Microseconds(),
	})
}
