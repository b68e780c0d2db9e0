package index

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowvana/backend/internal/storage/models"
)

type stubSource struct {
	navs []models.Navigation
	err  error
}

func (s *stubSource) ListAllNavigations() ([]models.Navigation, error) {
	return s.navs, s.err
}

type stubEmbedder struct {
	dim      int
	failText string
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if e.failText != "" && text == e.failText {
			return nil, errors.New("embedding rejected")
		}
		vec := make([]float32, e.dim)
		vec[0] = float32(len(text))
		out = append(out, vec)
	}
	return out, nil
}

type recordingStore struct {
	mu        sync.Mutex
	snapshots map[string]*Snapshot
	failFor   string
}

func newRecordingStore() *recordingStore {
	return &recordingStore{snapshots: make(map[string]*Snapshot)}
}

func (s *recordingStore) Replace(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap.TenantID == s.failFor {
		return errors.New("publish failed")
	}
	s.snapshots[snap.TenantID] = snap
	return nil
}

func (s *recordingStore) Search(context.Context, string, []float32, int) ([]Hit, error) {
	return nil, nil
}

func (s *recordingStore) Count(_ context.Context, tenantID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.snapshots[tenantID]; ok {
		return len(snap.Rows), nil
	}
	return 0, nil
}

func (s *recordingStore) Close() error { return nil }

func nav(tenant, id, url string, phrases ...string) models.Navigation {
	return models.Navigation{TenantID: tenant, NavigationID: id, URL: url, Title: "Title " + id, Phrases: phrases}
}

func TestBuildAll(t *testing.T) {
	source := &stubSource{navs: []models.Navigation{
		nav("tenant-a", "n1", "/billing", "view invoices", "billing overview"),
		nav("tenant-a", "n2", "/settings", "account settings"),
		nav("tenant-b", "n3", "/home", "go home"),
	}}
	store := newRecordingStore()
	b := NewBuilder(source, &stubEmbedder{dim: 4}, store)

	summary, err := b.BuildAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Built)
	assert.Equal(t, 4, summary.Rows)
	assert.Empty(t, summary.FailedTenants)

	snapA := store.snapshots["tenant-a"]
	require.NotNil(t, snapA)
	require.Len(t, snapA.Rows, 3)
	assert.Len(t, snapA.Vectors, 3)
	// Record order within a tenant is preserved.
	assert.Equal(t, "view invoices", snapA.Rows[0].Phrase)
	assert.Equal(t, "billing overview", snapA.Rows[1].Phrase)
	assert.Equal(t, "account settings", snapA.Rows[2].Phrase)
	assert.Equal(t, "/billing", snapA.Rows[0].URL)

	snapB := store.snapshots["tenant-b"]
	require.NotNil(t, snapB)
	assert.Len(t, snapB.Rows, 1)
}

func TestBuildAllIsolatesTenantFailures(t *testing.T) {
	source := &stubSource{navs: []models.Navigation{
		nav("tenant-good", "n1", "/a", "alpha"),
		nav("tenant-bad", "n2", "/b", "poison phrase"),
	}}
	store := newRecordingStore()
	b := NewBuilder(source, &stubEmbedder{dim: 4, failText: "poison phrase"}, store)

	summary, err := b.BuildAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Built)
	assert.Equal(t, []string{"tenant-bad"}, summary.FailedTenants)
	assert.NotNil(t, store.snapshots["tenant-good"])
	assert.Nil(t, store.snapshots["tenant-bad"])
}

func TestBuildAllIsolatesPublishFailures(t *testing.T) {
	source := &stubSource{navs: []models.Navigation{
		nav("tenant-a", "n1", "/a", "alpha"),
		nav("tenant-b", "n2", "/b", "beta"),
	}}
	store := newRecordingStore()
	store.failFor = "tenant-b"
	b := NewBuilder(source, &stubEmbedder{dim: 4}, store)

	summary, err := b.BuildAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Built)
	assert.Equal(t, []string{"tenant-b"}, summary.FailedTenants)
}

func TestBuildAllSourceFailure(t *testing.T) {
	b := NewBuilder(&stubSource{err: errors.New("db gone")}, &stubEmbedder{dim: 4}, newRecordingStore())

	_, err := b.BuildAll(context.Background())
	assert.Error(t, err)
}

func TestBuildAllEmptySnapshot(t *testing.T) {
	store := newRecordingStore()
	b := NewBuilder(&stubSource{}, &stubEmbedder{dim: 4}, store)

	summary, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Built)
	assert.Empty(t, store.snapshots)
}

func TestBuildAllSkipsBlankTenant(t *testing.T) {
	source := &stubSource{navs: []models.Navigation{
		nav("", "orphan", "/x", "phrase"),
		nav("tenant-a", "n1", "/a", "alpha"),
	}}
	store := newRecordingStore()
	b := NewBuilder(source, &stubEmbedder{dim: 4}, store)

	summary, err := b.BuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Built)
	assert.Equal(t, 1, summary.Rows)
}

func TestBuildTenant(t *testing.T) {
	store := newRecordingStore()
	b := NewBuilder(&stubSource{}, &stubEmbedder{dim: 4}, store)

	err := b.BuildTenant(context.Background(), "tenant-a", []models.Navigation{
		nav("tenant-a", "n1", "/billing", "view invoices"),
	})
	require.NoError(t, err)

	snap := store.snapshots["tenant-a"]
	require.NotNil(t, snap)
	assert.Equal(t, "tenant-a", snap.TenantID)
	assert.Len(t, snap.Rows, 1)
	assert.Len(t, snap.Vectors, 1)
	assert.False(t, snap.BuiltAt.IsZero())
}

func TestGroupByTenantOrder(t *testing.T) {
	grouped := groupByTenant([]models.Navigation{
		nav("b", "n1", "/1", "one"),
		nav("a", "n2", "/2", "two"),
		nav("b", "n3", "/3", "three"),
	})

	assert.Equal(t, []string{"b", "a"}, grouped.order)
	assert.Len(t, grouped.rows["b"], 2)
	assert.Len(t, grouped.rows["a"], 1)
}
