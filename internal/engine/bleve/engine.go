// Package bleve is an embedded full-text SearchEngine backed by bleve. It
// serves single-node deployments that run without an Elasticsearch cluster.
package bleve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	unicodetok "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/internal/engine"
	"github.com/utafrali/showcase-search/internal/translit"
)

const (
	nameAnalyzer = "showcase_name"

	maxFacetTerms    = 1000
	maxCategoryTerms = 1000
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("bleve index is closed")

var storedFields = []string{
	"product_id", "product_card_id", "category_id", "name",
	"price", "feed", "marketplace", "status",
}

// Engine is a bleve-backed implementation of the SearchEngine interface.
type Engine struct {
	mu     sync.RWMutex
	index  bleve.Index
	closed bool
	logger *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

// New opens the index at path, creating it when absent. An empty path
// creates an in-memory index.
func New(path string, logger *slog.Logger) (*Engine, error) {
	indexMapping, err := buildIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("bleve: build mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("bleve: create directory: %w", err)
		}
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			logger.Info("creating bleve index", "path", path)
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("bleve: open index: %w", err)
	}

	return &Engine{index: idx, logger: logger}, nil
}

// buildIndexMapping maps product cards: name is analyzed for matching, the
// keyword fields back filters and facets, numeric fields back range and sort.
func buildIndexMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(nameAnalyzer, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicodetok.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, err
	}

	keywordField := func() *mapping.FieldMapping {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		return fm
	}

	name := bleve.NewTextFieldMapping()
	name.Analyzer = nameAnalyzer

	doc := bleve.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt("name", name)
	doc.AddFieldMappingsAt("name_tokens", keywordField())
	doc.AddFieldMappingsAt("category", keywordField())
	doc.AddFieldMappingsAt("feed", keywordField())
	doc.AddFieldMappingsAt("marketplace", keywordField())
	doc.AddFieldMappingsAt("status", keywordField())
	for _, f := range []string{"product_id", "product_card_id", "category_id", "price"} {
		doc.AddFieldMappingsAt(f, bleve.NewNumericFieldMapping())
	}

	im.DefaultMapping = doc
	return im, nil
}

func toDocument(r *domain.ProductRecord) map[string]interface{} {
	return map[string]interface{}{
		"product_id":      float64(r.ProductID),
		"product_card_id": float64(r.ProductCardID),
		"category_id":     float64(r.CategoryID),
		"category":        strconv.FormatInt(r.CategoryID, 10),
		"name":            r.Name,
		"name_tokens":     engine.NameTokens(r.Name),
		"price":           r.Price,
		"feed":            strconv.FormatInt(r.FeedID, 10),
		"marketplace":     strconv.FormatInt(r.MarketplaceID, 10),
		"status":          r.Status,
	}
}

func fromFields(fields map[string]interface{}) domain.ProductRecord {
	num := func(k string) float64 {
		v, _ := fields[k].(float64)
		return v
	}
	str := func(k string) string {
		v, _ := fields[k].(string)
		return v
	}
	id := func(k string) int64 {
		v, _ := strconv.ParseInt(str(k), 10, 64)
		return v
	}
	return domain.ProductRecord{
		ProductID:     int64(num("product_id")),
		ProductCardID: int64(num("product_card_id")),
		CategoryID:    int64(num("category_id")),
		Name:          str("name"),
		Price:         num("price"),
		FeedID:        id("feed"),
		MarketplaceID: id("marketplace"),
		Status:        str("status"),
	}
}

func docID(productID int64) string {
	return strconv.FormatInt(productID, 10)
}

// Index adds or updates a single product card.
func (e *Engine) Index(ctx context.Context, record *domain.ProductRecord) error {
	return e.BulkIndex(ctx, []domain.ProductRecord{*record})
}

// BulkIndex adds or updates product cards in one batch.
func (e *Engine) BulkIndex(_ context.Context, records []domain.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	batch := e.index.NewBatch()
	for i := range records {
		if err := batch.Index(docID(records[i].ProductID), toDocument(&records[i])); err != nil {
			return fmt.Errorf("bleve index %d: %w", records[i].ProductID, err)
		}
	}
	if err := e.index.Batch(batch); err != nil {
		return fmt.Errorf("bleve batch: %w", err)
	}

	e.logger.Debug("indexed product cards", "count", len(records))
	return nil
}

// Delete removes a product card. A missing document is not an error.
func (e *Engine) Delete(_ context.Context, productID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if err := e.index.Delete(docID(productID)); err != nil {
		return fmt.Errorf("bleve delete %d: %w", productID, err)
	}
	return nil
}

// Ping reports whether the index is open.
func (e *Engine) Ping(context.Context) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return ErrClosed
	}
	_, err := e.index.DocCount()
	return err
}

// Close closes the underlying index. It is safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	return e.index.Close()
}

// SearchProducts executes a product query. Name-token facets are requested
// from bleve and narrowed to the facet prefix afterwards.
func (e *Engine) SearchProducts(ctx context.Context, q domain.ProductQuery) (*domain.ProductSearchResult, error) {
	limit, offset := engine.Page(q)

	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, offset, false)
	req.Fields = storedFields
	req.SortBy([]string{"-_score", "product_id"})
	if q.FacetPrefix != "" {
		req.AddFacet("name_tokens", bleve.NewFacetRequest("name_tokens", maxFacetTerms))
	}

	res, err := e.search(ctx, req)
	if err != nil {
		return nil, err
	}

	records := make([]domain.ProductRecord, 0, len(res.Hits))
	for _, hit := range res.Hits {
		records = append(records, fromFields(hit.Fields))
	}

	var facets map[string]int
	if f, ok := res.Facets["name_tokens"]; ok && f.Terms != nil {
		counts := make(map[string]int)
		for _, t := range f.Terms.Terms() {
			counts[t.Term] = t.Count
		}
		facets = engine.PrefixFacets(counts, q.FacetPrefix)
	}

	total := int(res.Total)
	return &domain.ProductSearchResult{
		Records:       records,
		Total:         total,
		Transliterate: total == 0 && translit.ShouldTransliterate(strings.Join(q.Tokens, " ")),
		Facets:        facets,
		TookMs:        res.Took.Milliseconds(),
	}, nil
}

// GroupCategoriesByHitCount returns matching category IDs by hit count
// descending, ties by ID ascending.
func (e *Engine) GroupCategoriesByHitCount(ctx context.Context, q domain.ProductQuery) ([]int64, error) {
	req := bleve.NewSearchRequestOptions(buildQuery(q), 0, 0, false)
	req.AddFacet("category", bleve.NewFacetRequest("category", maxCategoryTerms))

	res, err := e.search(ctx, req)
	if err != nil {
		return nil, err
	}

	f, ok := res.Facets["category"]
	if !ok || f.Terms == nil {
		return []int64{}, nil
	}

	hits := make(map[int64]int)
	ids := make([]int64, 0)
	for _, t := range f.Terms.Terms() {
		id, err := strconv.ParseInt(t.Term, 10, 64)
		if err != nil {
			e.logger.Warn("skipping non-numeric category term", "term", t.Term)
			continue
		}
		hits[id] = t.Count
		ids = append(ids, id)
	}
	sort.SliceStable(ids, func(i, j int) bool {
		if hits[ids[i]] != hits[ids[j]] {
			return hits[ids[i]] > hits[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids, nil
}

func (e *Engine) search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return nil, ErrClosed
	}
	res, err := e.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	return res, nil
}

// buildQuery conjoins one match query per token (or match-all) with the
// filter clauses.
func buildQuery(q domain.ProductQuery) query.Query {
	var clauses []query.Query

	if q.IsMatchAll() {
		clauses = append(clauses, bleve.NewMatchAllQuery())
	} else {
		for _, t := range q.Tokens {
			mq := bleve.NewMatchQuery(t)
			mq.SetField("name")
			clauses = append(clauses, mq)
		}
	}

	if len(q.CategoryIDs) > 0 {
		clauses = append(clauses, anyTerm("category", formatIDs(q.CategoryIDs)))
	}
	if len(q.FeedIDs) > 0 {
		clauses = append(clauses, anyTerm("feed", formatIDs(q.FeedIDs)))
	}
	if len(q.Statuses) > 0 {
		clauses = append(clauses, anyTerm("status", q.Statuses))
	}
	if q.Marketplace > 0 {
		clauses = append(clauses, anyTerm("marketplace", formatIDs([]int64{q.Marketplace})))
	}
	if q.Price != nil {
		inclusive := true
		rq := bleve.NewNumericRangeInclusiveQuery(q.Price.From, q.Price.To, &inclusive, &inclusive)
		rq.SetField("price")
		clauses = append(clauses, rq)
	}

	if len(clauses) == 1 {
		return clauses[0]
	}
	return bleve.NewConjunctionQuery(clauses...)
}

func anyTerm(field string, terms []string) query.Query {
	qs := make([]query.Query, 0, len(terms))
	for _, t := range terms {
		tq := bleve.NewTermQuery(t)
		tq.SetField(field)
		qs = append(qs, tq)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

func formatIDs(ids []int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = strconv.FormatInt(id, 10)
	}
	return out
}
