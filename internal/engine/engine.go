package engine

import (
	"context"
	"strings"

	"github.com/utafrali/showcase-search/internal/domain"
)

// SearchEngine defines the interface for indexing and searching product cards.
// Implementations may use Elasticsearch, bleve, in-memory storage, or other backends.
type SearchEngine interface {
	// SearchProducts executes a product query and returns the matching page,
	// the total hit count, the transliteration hint and name-token facets.
	SearchProducts(ctx context.Context, query domain.ProductQuery) (*domain.ProductSearchResult, error)

	// GroupCategoriesByHitCount returns category IDs of all matching products
	// ordered by hit count descending, ties by ID ascending.
	GroupCategoriesByHitCount(ctx context.Context, query domain.ProductQuery) ([]int64, error)

	// Index adds or updates a single product card in the search index.
	Index(ctx context.Context, record *domain.ProductRecord) error

	// Delete removes a product card from the search index by its product ID.
	Delete(ctx context.Context, productID int64) error

	// BulkIndex adds or updates multiple product cards in the search index.
	BulkIndex(ctx context.Context, records []domain.ProductRecord) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// NameTokens splits a product name into the lowercased tokens used for
// facet counting.
func NameTokens(name string) []string {
	fields := strings.Fields(strings.ToLower(name))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// PrefixFacets keeps the counts whose token starts with prefix. An empty
// prefix yields nil.
func PrefixFacets(counts map[string]int, prefix string) map[string]int {
	if prefix == "" {
		return nil
	}
	out := make(map[string]int)
	for token, n := range counts {
		if strings.HasPrefix(token, prefix) {
			out[token] = n
		}
	}
	return out
}

// Page clamps limit and offset the same way for every backend.
func Page(q domain.ProductQuery) (limit, offset int) {
	return domain.SearchParams{Limit: q.Limit, Offset: q.Offset}.Page()
}
