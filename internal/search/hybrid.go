package search

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/index"
	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

const (
	SourceSemantic = "semantic"
	SourceFuzzy    = "fuzzy"
)

// Result is one ranked navigation target. Within one call's output each URL
// appears at most once. Semantic scores live in [0,1] and fuzzy scores in
// [0,100]; they are never compared across sources.
type Result struct {
	URL          string
	Title        string
	NavigationID string
	BestPhrase   string
	Score        float64
	Source       string
}

// QueryEmbedder embeds a single query string.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NavigationLister supplies a tenant's records for the fuzzy path.
type NavigationLister interface {
	ListNavigations(tenantID string) ([]models.Navigation, error)
}

// Options carries the per-call-site score thresholds.
type Options struct {
	// FuzzyCutoff drops fuzzy matches scoring below it (0-100 scale).
	FuzzyCutoff float64
}

// Executor resolves queries against a tenant's index, falling back to fuzzy
// phrase matching when the tenant has no semantic index.
type Executor struct {
	store    index.Store
	embedder QueryEmbedder
	navs     NavigationLister
	opts     Options
}

func NewExecutor(store index.Store, embedder QueryEmbedder, navs NavigationLister, opts Options) *Executor {
	if opts.FuzzyCutoff <= 0 {
		opts.FuzzyCutoff = 60
	}
	return &Executor{store: store, embedder: embedder, navs: navs, opts: opts}
}

// Search returns up to limit deduplicated results ordered by score. The
// semantic path runs when the tenant has an index; otherwise, or when the
// semantic collaborators fail, the fuzzy path answers instead.
func (e *Executor) Search(ctx context.Context, tenantID, query string, limit int, scoreThreshold float64) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	corpusSize, err := e.store.Count(ctx, tenantID)
	if err != nil {
		logger.Warn("index lookup failed, using fuzzy path",
			zap.String("tenant_id", tenantID), zap.Error(err))
		corpusSize = 0
	}
	if corpusSize == 0 {
		return e.FuzzySearch(ctx, tenantID, query, limit, e.opts.FuzzyCutoff)
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn("query embedding failed, using fuzzy path",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return e.FuzzySearch(ctx, tenantID, query, limit, e.opts.FuzzyCutoff)
	}

	// Over-fetch to leave headroom for URL dedup.
	topK := limit * 2
	if topK > corpusSize {
		topK = corpusSize
	}

	hits, err := e.store.Search(ctx, tenantID, vector, topK)
	if err != nil {
		logger.Warn("semantic search failed, using fuzzy path",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return e.FuzzySearch(ctx, tenantID, query, limit, e.opts.FuzzyCutoff)
	}

	results := make([]Result, 0, limit)
	seen := make(map[string]struct{})
	for _, hit := range hits {
		if hit.Score < scoreThreshold {
			continue
		}
		// Candidates arrive in descending score order, so the first
		// occurrence of a URL is its best phrase.
		if _, dup := seen[hit.Row.URL]; dup {
			continue
		}
		seen[hit.Row.URL] = struct{}{}
		results = append(results, Result{
			URL:          hit.Row.URL,
			Title:        hit.Row.Title,
			NavigationID: hit.Row.NavigationID,
			BestPhrase:   hit.Row.Phrase,
			Score:        hit.Score,
			Source:       SourceSemantic,
		})
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// FuzzySearch matches the query against every phrase of every record and
// keeps each record's best-scoring phrase, cutoff applied per phrase.
func (e *Executor) FuzzySearch(ctx context.Context, tenantID, query string, limit int, cutoff float64) ([]Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	navs, err := e.navs.ListNavigations(tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load navigations: %w", err)
	}

	var results []Result
	for _, nav := range navs {
		best := -1.0
		bestPhrase := ""
		for _, phrase := range nav.Phrases {
			score := FuzzyScore(query, phrase)
			if score < cutoff {
				continue
			}
			if score > best {
				best = score
				bestPhrase = phrase
			}
		}
		if best < 0 {
			continue
		}
		results = append(results, Result{
			URL:          nav.URL,
			Title:        nav.Title,
			NavigationID: nav.NavigationID,
			BestPhrase:   bestPhrase,
			Score:        best,
			Source:       SourceFuzzy,
		})
	}

	// Stable: tied records keep their original order.
	sort.SliceStable(results, func(a, b int) bool { return results[a].Score > results[b].Score })

	// Two records can share a URL; keep the best-scoring one.
	deduped := results[:0]
	seen := make(map[string]struct{})
	for _, r := range results {
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}
		deduped = append(deduped, r)
		if len(deduped) >= limit {
			break
		}
	}
	return deduped, nil
}
