package analytics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowvana/backend/internal/storage/models"
)

type memStore struct {
	mu      sync.Mutex
	entries []*models.RequestLog
	err     error
	block   chan struct{}
}

func (s *memStore) InsertRequestLog(entry *models.RequestLog) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestRecorderWritesEntries(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 2, 16)

	for i := 0; i < 5; i++ {
		r.Record(&models.RequestLog{RequestID: "req", TenantID: "t1", Query: "q", Type: "chat"})
	}
	r.Close()

	assert.Equal(t, 5, store.count())
}

func TestRecorderSetsCreatedAt(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 1, 4)

	r.Record(&models.RequestLog{RequestID: "req-1"})
	r.Close()

	require.Equal(t, 1, store.count())
	assert.False(t, store.entries[0].CreatedAt.IsZero())
}

func TestRecorderPreservesExplicitCreatedAt(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 1, 4)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r.Record(&models.RequestLog{RequestID: "req-1", CreatedAt: ts})
	r.Close()

	require.Equal(t, 1, store.count())
	assert.Equal(t, ts, store.entries[0].CreatedAt)
}

func TestRecorderDropsWhenQueueFull(t *testing.T) {
	block := make(chan struct{})
	store := &memStore{block: block}
	r := NewRecorder(store, 1, 2)

	// The worker parks on the first entry; two more fill the queue, the rest
	// must drop without blocking.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Record(&models.RequestLog{RequestID: "req"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	close(block)
	r.Close()

	assert.LessOrEqual(t, store.count(), 4)
	assert.Greater(t, store.count(), 0)
}

func TestRecorderSwallowsStoreErrors(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	r := NewRecorder(store, 1, 4)

	assert.NotPanics(t, func() {
		r.Record(&models.RequestLog{RequestID: "req"})
		r.Close()
	})
}

func TestRecorderCloseIdempotent(t *testing.T) {
	r := NewRecorder(&memStore{}, 1, 4)

	assert.NotPanics(t, func() {
		r.Close()
		r.Close()
	})
}

func TestRecorderDropsAfterClose(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 1, 4)
	r.Close()

	// A dispatch finishing during shutdown may still try to log; the entry is
	// dropped rather than sent on the closed queue.
	assert.NotPanics(t, func() {
		r.Record(&models.RequestLog{RequestID: "req-late"})
	})
	assert.Equal(t, 0, store.count())
}

func TestRecorderDrainsQueueOnClose(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, 1, 64)

	for i := 0; i < 50; i++ {
		r.Record(&models.RequestLog{RequestID: "req"})
	}
	r.Close()

	assert.Equal(t, 50, store.count())
}
