package index

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// NavigationSource supplies the full cross-tenant navigation snapshot.
type NavigationSource interface {
	ListAllNavigations() ([]models.Navigation, error)
}

// Embedder is the embedding collaborator contract.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Builder turns the navigation records of every tenant into published index
// snapshots. It runs at startup and on the explicit rebuild trigger; live
// navigation edits are not observed until the next run.
type Builder struct {
	source   NavigationSource
	embedder Embedder
	store    Store
}

// Summary reports one builder run. Failed tenants are skipped, never fatal.
type Summary struct {
	Built         int
	Rows          int
	FailedTenants []string
}

func NewBuilder(source NavigationSource, embedder Embedder, store Store) *Builder {
	return &Builder{source: source, embedder: embedder, store: store}
}

// BuildAll rebuilds every tenant's index. Tenants build concurrently and
// independently: one tenant failing its embedding or publish step is logged
// and skipped without touching the others.
func (b *Builder) BuildAll(ctx context.Context) (Summary, error) {
	navs, err := b.source.ListAllNavigations()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to load navigation snapshot: %w", err)
	}

	grouped := groupByTenant(navs)
	if len(grouped.order) == 0 {
		logger.Info("no navigation records, nothing to index")
		return Summary{}, nil
	}

	var (
		mu      sync.Mutex
		summary Summary
		wg      sync.WaitGroup
	)

	for _, tenantID := range grouped.order {
		tenantID := tenantID
		rows := grouped.rows[tenantID]

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.buildTenant(ctx, tenantID, rows); err != nil {
				logger.Warn("tenant index build failed, skipping tenant",
					zap.String("tenant_id", tenantID), zap.Error(err))
				mu.Lock()
				summary.FailedTenants = append(summary.FailedTenants, tenantID)
				mu.Unlock()
				return
			}
			mu.Lock()
			summary.Built++
			summary.Rows += len(rows)
			mu.Unlock()
		}()
	}
	wg.Wait()

	logger.Info("index build finished",
		zap.Int("tenants_built", summary.Built),
		zap.Int("rows", summary.Rows),
		zap.Strings("failed_tenants", summary.FailedTenants),
	)
	return summary, nil
}

// BuildTenant rebuilds a single tenant, for the administrative trigger.
func (b *Builder) BuildTenant(ctx context.Context, tenantID string, navs []models.Navigation) error {
	return b.buildTenant(ctx, tenantID, flatten(navs))
}

func (b *Builder) buildTenant(ctx context.Context, tenantID string, rows []models.IndexRow) error {
	phrases := make([]string, len(rows))
	for i, row := range rows {
		phrases[i] = row.Phrase
	}

	vectors, err := b.embedder.EmbedBatch(ctx, phrases)
	if err != nil {
		return fmt.Errorf("failed to embed phrases: %w", err)
	}
	if len(vectors) != len(rows) {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), len(rows))
	}

	snap := &Snapshot{
		TenantID: tenantID,
		Rows:     rows,
		Vectors:  vectors,
		BuiltAt:  time.Now(),
	}
	if err := b.store.Replace(ctx, snap); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

type tenantRows struct {
	order []string
	rows  map[string][]models.IndexRow
}

// groupByTenant flattens each record's phrases into individual index rows,
// preserving record order within a tenant.
func groupByTenant(navs []models.Navigation) tenantRows {
	grouped := tenantRows{rows: make(map[string][]models.IndexRow)}
	for _, nav := range navs {
		if nav.TenantID == "" {
			continue
		}
		if _, seen := grouped.rows[nav.TenantID]; !seen {
			grouped.order = append(grouped.order, nav.TenantID)
		}
		grouped.rows[nav.TenantID] = append(grouped.rows[nav.TenantID], flatten([]models.Navigation{nav})...)
	}
	return grouped
}

func flatten(navs []models.Navigation) []models.IndexRow {
	var rows []models.IndexRow
	for _, nav := range navs {
		for _, phrase := range nav.Phrases {
			rows = append(rows, models.IndexRow{
				URL:          nav.URL,
				Title:        nav.Title,
				NavigationID: nav.NavigationID,
				Phrase:       phrase,
			})
		}
	}
	return rows
}
