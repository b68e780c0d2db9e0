package index

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// Persister stores snapshots across process restarts. Nil disables
// persistence, leaving a purely in-memory store.
type Persister interface {
	SaveIndexSnapshot(tenantID string, rows []models.IndexRow, vectors [][]float32, builtAt time.Time) error
	LoadIndexSnapshot(tenantID string) ([]models.IndexRow, [][]float32, time.Time, bool, error)
}

// LocalStore keeps tenant snapshots in memory and scans them exhaustively
// with an inner-product comparison. Snapshots load lazily from the persister
// on first access; Replace swaps the published snapshot atomically under the
// write lock, so readers never observe partial state.
type LocalStore struct {
	persister Persister

	mu      sync.RWMutex
	tenants map[string]*Snapshot
}

func NewLocalStore(persister Persister) *LocalStore {
	return &LocalStore{
		persister: persister,
		tenants:   make(map[string]*Snapshot),
	}
}

func (s *LocalStore) Replace(ctx context.Context, snap *Snapshot) error {
	if s.persister != nil {
		if err := s.persister.SaveIndexSnapshot(snap.TenantID, snap.Rows, snap.Vectors, snap.BuiltAt); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.tenants[snap.TenantID] = snap
	s.mu.Unlock()

	logger.Info("tenant index published",
		zap.String("tenant_id", snap.TenantID),
		zap.Int("rows", len(snap.Rows)),
	)
	return nil
}

func (s *LocalStore) Search(ctx context.Context, tenantID string, vector []float32, topK int) ([]Hit, error) {
	snap := s.snapshot(tenantID)
	if snap == nil || len(snap.Rows) == 0 || topK <= 0 {
		return nil, nil
	}

	hits := make([]Hit, 0, len(snap.Rows))
	for i, rowVec := range snap.Vectors {
		hits = append(hits, Hit{Row: snap.Rows[i], Score: dot(vector, rowVec)})
	}

	// Ties keep original row order.
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *LocalStore) Count(ctx context.Context, tenantID string) (int, error) {
	snap := s.snapshot(tenantID)
	if snap == nil {
		return 0, nil
	}
	return len(snap.Rows), nil
}

func (s *LocalStore) Close() error {
	return nil
}

// snapshot returns the published snapshot, loading it from the persister the
// first time a tenant is asked for. A load failure degrades to "no index".
func (s *LocalStore) snapshot(tenantID string) *Snapshot {
	s.mu.RLock()
	snap, ok := s.tenants[tenantID]
	s.mu.RUnlock()
	if ok {
		return snap
	}

	if s.persister == nil {
		return nil
	}

	rows, vectors, builtAt, found, err := s.persister.LoadIndexSnapshot(tenantID)
	if err != nil {
		logger.Warn("failed to load persisted index",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return nil
	}
	if !found {
		return nil
	}

	snap = &Snapshot{TenantID: tenantID, Rows: rows, Vectors: vectors, BuiltAt: builtAt}

	s.mu.Lock()
	// Another goroutine may have loaded or rebuilt meanwhile; first publish wins.
	if existing, ok := s.tenants[tenantID]; ok {
		snap = existing
	} else {
		s.tenants[tenantID] = snap
	}
	s.mu.Unlock()

	return snap
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
