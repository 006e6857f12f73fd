package events_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastbreak-labs/courtguard/pkg/infra/events"
	"github.com/fastbreak-labs/courtguard/pkg/types"
)

type memoryStore struct {
	mu    sync.Mutex
	saved []types.SecurityEvent
}

func (m *memoryStore) Save(_ context.Context, event types.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, event)
	return nil
}

func (m *memoryStore) all() []types.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.SecurityEvent(nil), m.saved...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestAsyncSink_PersistsEvents(t *testing.T) {
	store := &memoryStore{}
	sink := events.NewAsyncSink(quietLogger(), store, 10)

	sink.Emit(types.SecurityEvent{ID: "e1", UserID: "user-1", Verdict: types.VerdictAllowed})
	sink.Emit(types.SecurityEvent{ID: "e2", UserID: "user-1", Verdict: types.VerdictThreatDetected})
	sink.Close()

	saved := store.all()
	require.Len(t, saved, 2)
	assert.Equal(t, "e1", saved[0].ID)
	assert.Equal(t, "e2", saved[1].ID)
}

func TestAsyncSink_NilStore(t *testing.T) {
	sink := events.NewAsyncSink(quietLogger(), nil, 10)

	sink.Emit(types.SecurityEvent{ID: "e1", Verdict: types.VerdictAllowed})
	sink.Close()
}

func TestAsyncSink_EmitAfterCloseIsNoop(t *testing.T) {
	store := &memoryStore{}
	sink := events.NewAsyncSink(quietLogger(), store, 10)
	sink.Close()

	sink.Emit(types.SecurityEvent{ID: "late", Verdict: types.VerdictAllowed})
	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, store.all())
}

func TestAsyncSink_CloseIsIdempotent(t *testing.T) {
	sink := events.NewAsyncSink(quietLogger(), nil, 10)
	sink.Close()
	sink.Close()
}
