package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fastbreak-labs/courtguard/pkg/infra/prometheus"
	"github.com/fastbreak-labs/courtguard/pkg/types"
)

// Store persists security events. Implementations must tolerate concurrent
// Save calls; the sink serializes them through a single worker anyway.
type Store interface {
	Save(ctx context.Context, event types.SecurityEvent) error
}

// Sink receives one SecurityEvent per processed request. Emit must never
// block the request path.
type Sink interface {
	Emit(event types.SecurityEvent)
	Close()
}

type asyncSink struct {
	logger    *logrus.Logger
	store     Store
	eventChan chan types.SecurityEvent
	done      chan struct{}
	wg        sync.WaitGroup
	closed    atomic.Bool
	dropped   atomic.Int64
}

// NewAsyncSink drains events to the structured log and, when store is
// non-nil, to the backing store. The buffer is bounded: when it is full the
// new event is dropped with a warning rather than stalling request handling.
func NewAsyncSink(logger *logrus.Logger, store Store, bufferSize int) Sink {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	s := &asyncSink{
		logger:    logger,
		store:     store,
		eventChan: make(chan types.SecurityEvent, bufferSize),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

func (s *asyncSink) Emit(event types.SecurityEvent) {
	if s.closed.Load() {
		return
	}
	select {
	case s.eventChan <- event:
	default:
		s.dropped.Add(1)
		prometheus.EventsDropped.Inc()
		s.logger.WithField("user_id", event.UserID).Warn("security event dropped: sink buffer full")
	}
}

func (s *asyncSink) drain() {
	defer s.wg.Done()
	for {
		select {
		case event := <-s.eventChan:
			s.record(event)
		case <-s.done:
			for {
				select {
				case event := <-s.eventChan:
					s.record(event)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) record(event types.SecurityEvent) {
	fields := logrus.Fields{
		"event_id":       event.ID,
		"user_id":        event.UserID,
		"verdict":        event.Verdict,
		"latency_micros": event.LatencyMicros,
	}
	if len(event.Categories) > 0 {
		fields["categories"] = event.Categories
	}
	if len(event.RedactionReasons) > 0 {
		fields["redaction_reasons"] = event.RedactionReasons
	}
	if event.ExecutorFailed {
		fields["executor_failed"] = true
	}
	s.logger.WithFields(fields).Info("security event")

	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, event); err != nil {
		s.logger.WithError(err).Error("failed to persist security event")
	}
}

func (s *asyncSink) Close() {
	if s.closed.Swap(true) {
		return
	}
	close(s.done)
	s.wg.Wait()
}
