package index

import (
	"context"
	"time"

	"github.com/flowvana/backend/internal/storage/models"
)

// Snapshot is one tenant's built index: phrase metadata rows paired with
// their embeddings. Row i pairs with vector i. Snapshots are immutable once
// published; a rebuild replaces the whole snapshot.
type Snapshot struct {
	TenantID string
	Rows     []models.IndexRow
	Vectors  [][]float32
	BuiltAt  time.Time
}

// Hit is one nearest-neighbor candidate. Score is the inner product of
// unit-normalized vectors, so cosine similarity in [0,1] for non-degenerate
// inputs.
type Hit struct {
	Row   models.IndexRow
	Score float64
}

// Store holds built tenant indexes behind a backend-neutral contract. The
// builder writes with Replace (wholesale, build-then-publish); the search
// executor only reads. Count of zero means "no semantic index for this
// tenant", which is a state, not an error.
type Store interface {
	Replace(ctx context.Context, snap *Snapshot) error
	Search(ctx context.Context, tenantID string, vector []float32, topK int) ([]Hit, error)
	Count(ctx context.Context, tenantID string) (int, error)
	Close() error
}
