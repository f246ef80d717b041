package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/internal/engine"
	"github.com/utafrali/showcase-search/internal/translit"
)

// Engine is an in-memory implementation of the SearchEngine interface.
// Every query token must appear in the lowercased product name.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu       sync.RWMutex
	products map[int64]domain.ProductRecord
}

var _ engine.SearchEngine = (*Engine)(nil)

// New creates a new in-memory search engine.
func New() *Engine {
	return &Engine{
		products: make(map[int64]domain.ProductRecord),
	}
}

// Index adds or updates a single product card in the in-memory index.
func (e *Engine) Index(_ context.Context, record *domain.ProductRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.products[record.ProductID] = *record
	return nil
}

// Delete removes a product card from the in-memory index.
func (e *Engine) Delete(_ context.Context, productID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.products, productID)
	return nil
}

// BulkIndex adds or updates multiple product cards in the in-memory index.
func (e *Engine) BulkIndex(_ context.Context, records []domain.ProductRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range records {
		e.products[records[i].ProductID] = records[i]
	}
	return nil
}

// Ping always succeeds.
func (e *Engine) Ping(context.Context) error { return nil }

// SearchProducts executes a product query against the in-memory index.
// Matches are ordered by product ID.
func (e *Engine) SearchProducts(ctx context.Context, query domain.ProductQuery) (*domain.ProductSearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	matched := e.collect(query)

	counts := make(map[string]int)
	for _, p := range matched {
		for _, tok := range engine.NameTokens(p.Name) {
			counts[tok]++
		}
	}

	total := len(matched)
	limit, offset := engine.Page(query)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	return &domain.ProductSearchResult{
		Records:       matched[offset:end],
		Total:         total,
		Transliterate: total == 0 && translit.ShouldTransliterate(strings.Join(query.Tokens, " ")),
		Facets:        engine.PrefixFacets(counts, query.FacetPrefix),
		TookMs:        time.Since(start).Milliseconds(),
	}, nil
}

// GroupCategoriesByHitCount counts matches per category.
func (e *Engine) GroupCategoriesByHitCount(ctx context.Context, query domain.ProductQuery) ([]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make(map[int64]int)
	for _, p := range e.collect(query) {
		hits[p.CategoryID]++
	}

	ids := make([]int64, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if hits[ids[i]] != hits[ids[j]] {
			return hits[ids[i]] > hits[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

func (e *Engine) collect(query domain.ProductQuery) []domain.ProductRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tokens := make([]string, 0, len(query.Tokens))
	if !query.IsMatchAll() {
		for _, t := range query.Tokens {
			tokens = append(tokens, strings.ToLower(t))
		}
	}

	matched := make([]domain.ProductRecord, 0)
	for _, p := range e.products {
		if !matches(p, query, tokens) {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ProductID < matched[j].ProductID
	})
	return matched
}

// matches checks whether a product card satisfies the text and filter clauses.
func matches(p domain.ProductRecord, query domain.ProductQuery, tokens []string) bool {
	nameLower := strings.ToLower(p.Name)
	for _, t := range tokens {
		if !strings.Contains(nameLower, t) {
			return false
		}
	}

	if len(query.CategoryIDs) > 0 && !slices.Contains(query.CategoryIDs, p.CategoryID) {
		return false
	}
	if len(query.FeedIDs) > 0 && !slices.Contains(query.FeedIDs, p.FeedID) {
		return false
	}
	if len(query.Statuses) > 0 && !slices.Contains(query.Statuses, p.Status) {
		return false
	}
	if query.Marketplace > 0 && p.MarketplaceID != query.Marketplace {
		return false
	}
	return query.Price.Contains(p.Price)
}
