package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/internal/engine"
	"github.com/utafrali/showcase-search/internal/engine/memory"
	"github.com/utafrali/showcase-search/internal/hierarchy"
	apperrors "github.com/utafrali/showcase-search/pkg/errors"
)

// ─── fakes ──────────────────────────────────────────────────────────────────

type fakeResolver struct {
	result domain.ResolutionResult
	err    error
	calls  []domain.SearchParams
}

func (f *fakeResolver) Resolve(_ context.Context, params domain.SearchParams) (domain.ResolutionResult, error) {
	f.calls = append(f.calls, params)
	if id, ok := params.PinnedCategory(); ok {
		return domain.ResolutionResult{CandidateIDs: []int64{id}}, nil
	}
	return f.result, f.err
}

type fakeCategories struct {
	data map[int64]domain.CategoryCandidate
	asks [][]int64
	err  error
}

func (f *fakeCategories) GetCategoriesByIDs(_ context.Context, ids []int64, limit int) ([]domain.CategoryCandidate, error) {
	f.asks = append(f.asks, ids)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.CategoryCandidate
	// Reverse order to prove the service reorders by rank.
	for i := len(ids) - 1; i >= 0; i-- {
		if c, ok := f.data[ids[i]]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeProducts struct {
	links map[int64]string
	cards []domain.ProductRecord
	err   error
	block bool
}

func (f *fakeProducts) GetProductLinks(_ context.Context, ids []int64) (map[int64]string, error) {
	return f.links, f.err
}

func (f *fakeProducts) ListProductCards(ctx context.Context, afterID int64, limit int) ([]domain.ProductRecord, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.ProductRecord
	for _, c := range f.cards {
		if c.ProductID > afterID && len(out) < limit {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeReviews struct {
	aggs []domain.ReviewAggregate
}

func (f *fakeReviews) GetAverageAndCountReviews(_ context.Context, _ []int64) ([]domain.ReviewAggregate, error) {
	return f.aggs, nil
}

type fakeProperties struct {
	valuesFor   []int64
	categoryIDs [][]int64
}

func (f *fakeProperties) GetCategoryProperties(_ context.Context, ids []int64) ([]domain.Property, error) {
	f.categoryIDs = append(f.categoryIDs, ids)
	return []domain.Property{{ID: 1, CategoryID: ids[0], Code: "color"}}, nil
}

func (f *fakeProperties) GetPropertyValues(_ context.Context, categoryID, _ int64) ([]domain.Property, error) {
	f.valuesFor = append(f.valuesFor, categoryID)
	return []domain.Property{{ID: 1, CategoryID: categoryID, Values: []domain.PropertyValue{{Value: "black", Count: 1}}}}, nil
}

type fakeTree struct {
	nodes    map[int64]domain.Node
	siblings map[int64][]domain.Node
}

func (f *fakeTree) GetNode(_ context.Context, id int64) (domain.Node, error) {
	n, ok := f.nodes[id]
	if !ok {
		return domain.Node{}, apperrors.NotFound("category", "x")
	}
	return n, nil
}

func (f *fakeTree) GetSiblingBranch(_ context.Context, node domain.Node) ([]domain.Node, error) {
	return f.siblings[node.ID], nil
}

// scriptedEngine returns queued results and records every query.
type scriptedEngine struct {
	engine.SearchEngine

	mu      sync.Mutex
	results []*domain.ProductSearchResult
	queries  []domain.ProductQuery
	groups   []int64
	groupErr error
	block    bool
}

func (e *scriptedEngine) SearchProducts(ctx context.Context, q domain.ProductQuery) (*domain.ProductSearchResult, error) {
	if e.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queries = append(e.queries, q)
	r := e.results[0]
	if len(e.results) > 1 {
		e.results = e.results[1:]
	}
	return r, nil
}

func (e *scriptedEngine) GroupCategoriesByHitCount(context.Context, domain.ProductQuery) ([]int64, error) {
	return e.groups, e.groupErr
}

// ─── fixture ────────────────────────────────────────────────────────────────

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	svc        *SearchService
	engine     engine.SearchEngine
	resolver   *fakeResolver
	categories *fakeCategories
	products   *fakeProducts
	properties *fakeProperties
}

func newFixture(t *testing.T, eng engine.SearchEngine) *fixture {
	t.Helper()
	f := &fixture{
		engine:   eng,
		resolver: &fakeResolver{},
		categories: &fakeCategories{data: map[int64]domain.CategoryCandidate{
			10: {ID: 10, Name: "Phones"},
			20: {ID: 20, Name: "Cases"},
			42: {ID: 42, Name: "Smartphones"},
			43: {ID: 43, Name: "Tablets"},
		}},
		products:   &fakeProducts{links: map[int64]string{1: "/p/1"}},
		properties: &fakeProperties{},
	}
	tree := &fakeTree{
		nodes:    map[int64]domain.Node{42: {ID: 42}},
		siblings: map[int64][]domain.Node{42: {{ID: 43}, {ID: 44}}},
	}
	f.svc = NewSearchService(Dependencies{
		Engine:     eng,
		Resolver:   f.resolver,
		Categories: f.categories,
		Products:   f.products,
		Reviews:    &fakeReviews{aggs: []domain.ReviewAggregate{{ProductCardID: 101, Rating: 4.26, CountReviews: 3}}},
		Properties: f.properties,
		Hierarchy:  hierarchy.NewReorderer(tree),
	}, time.Second, newTestLogger())
	return f
}

func seededEngine(t *testing.T, records ...domain.ProductRecord) *memory.Engine {
	t.Helper()
	eng := memory.New()
	require.NoError(t, eng.BulkIndex(context.Background(), records))
	return eng
}

func card(id, categoryID int64, name string) domain.ProductRecord {
	return domain.ProductRecord{ProductID: id, ProductCardID: id + 100, CategoryID: categoryID, Name: name, Price: float64(id)}
}

func int64Ptr(n int64) *int64 { return &n }

// ─── search ─────────────────────────────────────────────────────────────────

func TestSearch_EnrichesCardsAndAssemblesPayload(t *testing.T) {
	eng := seededEngine(t,
		card(1, 10, "Телефон Samsung"),
		card(2, 10, "Телефон Xiaomi"),
		card(3, 20, "Чехол для телефона"),
	)
	f := newFixture(t, eng)
	f.resolver.result = domain.ResolutionResult{CandidateIDs: []int64{10, 20}}

	payload, total, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "телефон", Lang: "EN"})
	require.NoError(t, err)

	assert.Equal(t, 3, total)
	assert.Equal(t, "телефон", payload.QueryEcho)
	require.Len(t, payload.ProductCards, 3)

	first := payload.ProductCards[0]
	assert.Equal(t, "/p/1", first.Link)
	require.NotNil(t, first.Rating)
	assert.Equal(t, 4.3, *first.Rating)
	assert.Equal(t, 3, *first.CountReviews)

	second := payload.ProductCards[1]
	assert.Equal(t, "", second.Link)
	assert.Nil(t, second.Rating)
	assert.Nil(t, second.CountReviews)

	require.Len(t, payload.CategoryFacets, 2)
	assert.Equal(t, int64(10), payload.CategoryFacets[0].ID)
	assert.Equal(t, 1, payload.CategoryFacets[0].Rank)
	assert.Equal(t, int64(20), payload.CategoryFacets[1].ID)

	assert.Equal(t, []int64{20}, f.properties.valuesFor, "product properties come from the last candidate")
	assert.Equal(t, [][]int64{{10, 20}}, f.properties.categoryIDs)
	assert.NotNil(t, payload.ProductProperties)
	assert.NotNil(t, payload.CategoryProperties)

	require.Len(t, f.resolver.calls, 1)
	assert.Equal(t, "En", f.resolver.calls[0].Lang)
}

func TestSearch_CandidateFilterRestrictsCards(t *testing.T) {
	eng := seededEngine(t,
		card(1, 10, "Телефон Samsung"),
		card(3, 20, "Чехол для телефона"),
	)
	f := newFixture(t, eng)
	f.resolver.result = domain.ResolutionResult{CandidateIDs: []int64{20}}

	payload, total, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "телефон"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, int64(3), payload.ProductCards[0].ProductID)
}

func TestSearch_AutocompleteNullsFacetSections(t *testing.T) {
	f := newFixture(t, seededEngine(t, card(1, 10, "Телефон Samsung")))
	f.resolver.result = domain.ResolutionResult{CandidateIDs: []int64{10}}

	payload, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "телефон", IsAutocomplete: true})
	require.NoError(t, err)
	assert.Nil(t, payload.CategoryFacets)
	assert.Nil(t, payload.ProductProperties)
	assert.Nil(t, payload.CategoryProperties)
	assert.Empty(t, f.properties.valuesFor)
}

func TestSearch_AutocompletePromotesPartialFacetMatches(t *testing.T) {
	eng := &scriptedEngine{results: []*domain.ProductSearchResult{{
		Total: 3,
		Records: []domain.ProductRecord{
			card(1, 10, "Чехол для смартфона"),
			card(2, 10, "Смарт часы"),
			card(3, 10, "Смартфон Honor"),
		},
		Facets: map[string]int{"смарт": 2},
	}}}
	f := newFixture(t, eng)

	payload, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "смартфо", IsAutocomplete: true})
	require.NoError(t, err)

	ids := []int64{}
	for _, c := range payload.ProductCards {
		ids = append(ids, c.ProductID)
	}
	assert.Equal(t, []int64{2, 3, 1}, ids)
	assert.Equal(t, "смартф", eng.queries[0].FacetPrefix)
}

func TestSearch_TransliterationRetryFindsCards(t *testing.T) {
	f := newFixture(t, seededEngine(t, card(1, 10, "Телефон Samsung")))

	payload, total, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "ntktajy"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "телефон", payload.QueryEcho)
}

func TestSearch_TransliterationRetryUsesLayoutMapping(t *testing.T) {
	eng := &scriptedEngine{results: []*domain.ProductSearchResult{
		{Total: 0, Transliterate: true},
		{Total: 1, Records: []domain.ProductRecord{card(1, 10, "еудуащт")}},
	}}
	f := newFixture(t, eng)

	payload, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "telefon"})
	require.NoError(t, err)

	require.Len(t, eng.queries, 2)
	assert.Equal(t, []string{"telefon"}, eng.queries[0].Tokens)
	assert.Equal(t, []string{"еудуащт"}, eng.queries[1].Tokens)
	assert.Equal(t, "еудуащт", payload.QueryEcho)
}

func TestSearch_TransliterationRetryIsNotRecursive(t *testing.T) {
	eng := &scriptedEngine{results: []*domain.ProductSearchResult{{Total: 0, Transliterate: true}}}
	f := newFixture(t, eng)

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "telefon"})
	nr, ok := domain.IsNoResults(err)
	require.True(t, ok)
	assert.Equal(t, "еудуащт", nr.Query)
	assert.Len(t, eng.queries, 2)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
}

func TestSearch_NoHintNoRetry(t *testing.T) {
	eng := &scriptedEngine{results: []*domain.ProductSearchResult{{Total: 0}}}
	f := newFixture(t, eng)

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "чайник"})
	_, ok := domain.IsNoResults(err)
	assert.True(t, ok)
	assert.Len(t, eng.queries, 1)
}

func TestSearch_EmptyQueryMatchesEverything(t *testing.T) {
	eng := &scriptedEngine{results: []*domain.ProductSearchResult{{Total: 1, Records: []domain.ProductRecord{card(1, 10, "x")}}}}
	f := newFixture(t, eng)

	payload, _, err := f.svc.Search(context.Background(), domain.SearchParams{})
	require.NoError(t, err)
	assert.Equal(t, []string{domain.WildcardToken}, eng.queries[0].Tokens)
	assert.Empty(t, eng.queries[0].FacetPrefix)
	assert.Nil(t, payload.CategoryProperties)
	assert.Empty(t, f.properties.valuesFor)
}

func TestSearch_PinnedCategory(t *testing.T) {
	eng := &scriptedEngine{
		results: []*domain.ProductSearchResult{{Total: 1, Records: []domain.ProductRecord{card(1, 7, "x")}}},
		groups:  []int64{10, 20},
	}
	f := newFixture(t, eng)

	payload, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "чехол синий", Category: int64Ptr(7)})
	require.NoError(t, err)

	assert.Empty(t, payload.CategoryFacets)
	assert.NotNil(t, payload.CategoryFacets)
	assert.Equal(t, []int64{7}, eng.queries[0].CategoryIDs)
	assert.Equal(t, []string{"чехол", "синий"}, eng.queries[0].Tokens)
	assert.Empty(t, f.categories.asks)
}

func TestSearch_ExactCategoryReordersByHierarchy(t *testing.T) {
	eng := &scriptedEngine{results: []*domain.ProductSearchResult{{
		Total: 4,
		Records: []domain.ProductRecord{
			card(1, 43, "a"), card(2, 42, "b"), card(3, 99, "c"), card(4, 42, "d"),
		},
	}}}
	f := newFixture(t, eng)
	f.resolver.result = domain.ResolutionResult{CandidateIDs: []int64{4, 42}, ExactID: int64Ptr(42)}

	payload, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "смартфоны"})
	require.NoError(t, err)

	cats := []int64{}
	for _, c := range payload.ProductCards {
		cats = append(cats, c.CategoryID)
	}
	assert.Equal(t, []int64{42, 42, 43, 99}, cats)
	assert.Equal(t, []int64{2, 4}, []int64{payload.ProductCards[0].ProductID, payload.ProductCards[1].ProductID})
	assert.Equal(t, []string{domain.WildcardToken}, eng.queries[0].Tokens)
	assert.Equal(t, []int64{42}, eng.queries[0].CategoryIDs)
}

func TestSearch_ResolverFailurePropagates(t *testing.T) {
	f := newFixture(t, memory.New())
	f.resolver.err = errors.New("resolver down")

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, f.resolver.err)
}

func TestSearch_BackendDeadlineIsUnavailable(t *testing.T) {
	eng := &scriptedEngine{block: true}
	f := newFixture(t, eng)
	f.svc.backendTimeout = 10 * time.Millisecond

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "x", Category: int64Ptr(1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.HTTPStatus(err))
}

func TestSearch_LinkFailurePropagates(t *testing.T) {
	f := newFixture(t, seededEngine(t, card(1, 10, "x")))
	f.products.err = errors.New("pg down")

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "x"})
	assert.ErrorIs(t, err, f.products.err)
}

func TestSearch_AutocompleteSkipsCategoryAggregation(t *testing.T) {
	f := newFixture(t, seededEngine(t, card(1, 10, "Телефон Samsung")))
	f.categories.err = errors.New("postgres down")

	payload, total, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "телефон", IsAutocomplete: true})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Nil(t, payload.CategoryFacets)
	assert.Empty(t, f.categories.asks)
}

func TestSearch_AggregationFailurePropagates(t *testing.T) {
	f := newFixture(t, seededEngine(t, card(1, 10, "Телефон Samsung")))
	f.categories.err = errors.New("postgres down")

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "телефон"})
	assert.ErrorIs(t, err, f.categories.err)
}

func TestSearch_AggregationFailureWaitsForTransliterationRetry(t *testing.T) {
	groupErr := errors.New("es down")
	eng := &scriptedEngine{
		results: []*domain.ProductSearchResult{
			{Total: 0, Transliterate: true},
			{Total: 1, Records: []domain.ProductRecord{card(1, 10, "телефон")}},
		},
		groupErr: groupErr,
	}
	f := newFixture(t, eng)

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "ntktajy"})
	assert.ErrorIs(t, err, groupErr)
	require.Len(t, eng.queries, 2)
	assert.Equal(t, []string{"телефон"}, eng.queries[1].Tokens)
}

func TestSearch_NoResultsTakesPriorityOverAggregationFailure(t *testing.T) {
	eng := &scriptedEngine{
		results:  []*domain.ProductSearchResult{{Total: 0}},
		groupErr: errors.New("es down"),
	}
	f := newFixture(t, eng)

	_, _, err := f.svc.Search(context.Background(), domain.SearchParams{Query: "чайник"})
	_, ok := domain.IsNoResults(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusNotFound, apperrors.HTTPStatus(err))
}

// ─── aggregation ────────────────────────────────────────────────────────────

func TestAggregateCategories_PreservesBackendOrderAndSkipsMissing(t *testing.T) {
	eng := &scriptedEngine{groups: []int64{43, 99, 10, 42}}
	f := newFixture(t, eng)

	ids, cats, err := f.svc.AggregateCategories(context.Background(), domain.SearchParams{Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, []int64{43, 99, 10, 42}, ids)

	got := []int64{}
	ranks := []int{}
	for _, c := range cats {
		got = append(got, c.ID)
		ranks = append(ranks, c.Rank)
	}
	assert.Equal(t, []int64{43, 10, 42}, got)
	assert.Equal(t, []int{1, 3, 4}, ranks)
}

func TestAggregateCategories_TruncatesBeforeLookup(t *testing.T) {
	groups := make([]int64, 40)
	for i := range groups {
		groups[i] = int64(i + 1)
	}
	f := newFixture(t, &scriptedEngine{groups: groups})

	ids, _, err := f.svc.AggregateCategories(context.Background(), domain.SearchParams{Query: "x"})
	require.NoError(t, err)
	assert.Len(t, ids, domain.MaxCategoryFacets)
	require.Len(t, f.categories.asks, 1)
	assert.Len(t, f.categories.asks[0], domain.MaxCategoryFacets)
}

func TestAggregateCategories_PinnedCategoryReturnsEmptyLists(t *testing.T) {
	f := newFixture(t, &scriptedEngine{groups: []int64{1}})

	ids, cats, err := f.svc.AggregateCategories(context.Background(), domain.SearchParams{Category: int64Ptr(5)})
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.Empty(t, cats)
}

// ─── helpers ────────────────────────────────────────────────────────────────

func TestFacetPrefix(t *testing.T) {
	assert.Equal(t, "телеф", facetPrefix("Телефон"))
	assert.Equal(t, "", facetPrefix("ab"))
	assert.Equal(t, "", facetPrefix("   "))
}

func TestRoundRating(t *testing.T) {
	assert.Equal(t, 4.3, roundRating(4.26))
	assert.Equal(t, 4.2, roundRating(4.24))
}
