package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/internal/engine"
	"github.com/utafrali/showcase-search/internal/facet"
	"github.com/utafrali/showcase-search/internal/repository"
	"github.com/utafrali/showcase-search/internal/resolver"
	"github.com/utafrali/showcase-search/internal/translit"
	apperrors "github.com/utafrali/showcase-search/pkg/errors"
	"github.com/utafrali/showcase-search/pkg/tracing"
)

const tracerName = "github.com/utafrali/showcase-search/internal/service"

// DefaultBackendTimeout bounds every search backend call when no timeout is configured.
const DefaultBackendTimeout = 3 * time.Second

// CategoryResolution resolves a request to its candidate categories.
type CategoryResolution interface {
	Resolve(ctx context.Context, params domain.SearchParams) (domain.ResolutionResult, error)
}

// HierarchyReorderer ranks records by their distance from an exact category.
type HierarchyReorderer interface {
	ReorderByHierarchy(ctx context.Context, records []domain.ProductRecord, exactID int64) ([]domain.ProductRecord, error)
}

// Dependencies are the collaborators of a SearchService.
type Dependencies struct {
	Engine     engine.SearchEngine
	Resolver   CategoryResolution
	Categories repository.CategoryRepository
	Products   repository.ProductRepository
	Reviews    repository.ReviewRepository
	Properties repository.PropertyRepository
	Hierarchy  HierarchyReorderer
}

// SearchService orchestrates product card searches and keeps the search
// index in sync.
type SearchService struct {
	engine     engine.SearchEngine
	resolver   CategoryResolution
	categories repository.CategoryRepository
	products   repository.ProductRepository
	reviews    repository.ReviewRepository
	properties repository.PropertyRepository
	hierarchy  HierarchyReorderer

	backendTimeout time.Duration
	reindexBatch   int
	reindexing     atomic.Bool
	logger         *slog.Logger

	// Background work (reindex runs) lives until Shutdown.
	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// NewSearchService creates a new search service. A non-positive
// backendTimeout falls back to DefaultBackendTimeout.
func NewSearchService(deps Dependencies, backendTimeout time.Duration, logger *slog.Logger) *SearchService {
	if backendTimeout <= 0 {
		backendTimeout = DefaultBackendTimeout
	}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &SearchService{
		engine:         deps.Engine,
		resolver:       deps.Resolver,
		categories:     deps.Categories,
		products:       deps.Products,
		reviews:        deps.Reviews,
		properties:     deps.Properties,
		hierarchy:      deps.Hierarchy,
		backendTimeout: backendTimeout,
		reindexBatch:   DefaultReindexBatchSize,
		logger:         logger,
		bgCtx:          bgCtx,
		bgCancel:       bgCancel,
	}
}

// cardsPage is one backend answer after link enrichment.
type cardsPage struct {
	records []domain.ProductRecord
	total   int
	facets  map[string]int
	query   string
}

// Search runs the full pipeline for one request: category resolution, the
// concurrent category aggregation and card search, a single transliterated
// retry when the backend hints at a wrong keyboard layout, enrichment and
// payload assembly. It returns the payload and the total hit count.
func (s *SearchService) Search(ctx context.Context, params domain.SearchParams) (payload *domain.ResultPayload, total int, err error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracerName, "SearchService.Search",
		attribute.String("search.query", params.Query),
		attribute.Int64("search.marketplace", params.Marketplace),
		attribute.Bool("search.autocomplete", params.IsAutocomplete),
	)
	defer func() {
		outcome := outcomeOK
		if _, ok := domain.IsNoResults(err); ok {
			outcome = outcomeNoResults
			tracing.EndSpan(span, nil)
		} else {
			if err != nil {
				outcome = outcomeError
			}
			tracing.EndSpan(span, err)
		}
		searchesTotal.WithLabelValues(outcome, strconv.FormatBool(params.IsAutocomplete)).Inc()
		searchDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	params.Lang = resolver.NormalizeLang(params.Lang)

	res, err := s.resolver.Resolve(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}

	var (
		categories []domain.CategoryCandidate
		aggErr     error
		page       *cardsPage
		noResults  error
	)

	// Autocomplete payloads carry no category facets. An aggregation failure
	// is held back until the card search has settled so the card outcome
	// (including the transliterated retry) wins.
	g, gctx := errgroup.WithContext(ctx)
	if !params.IsAutocomplete {
		g.Go(func() error {
			_, categories, aggErr = s.AggregateCategories(gctx, params)
			return nil
		})
	}
	g.Go(func() error {
		var err error
		page, err = s.searchCards(gctx, params, params.Query, res)
		if _, ok := domain.IsNoResults(err); ok {
			noResults = err
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}

	if noResults != nil {
		nr, _ := domain.IsNoResults(noResults)
		if !nr.Transliterate {
			return nil, 0, noResults
		}

		alt := translit.TransliterateKeyboardLayout(params.Query)
		transliterationRetries.Inc()
		s.logger.InfoContext(ctx, "retrying search with transliterated query",
			slog.String("query", params.Query),
			slog.String("transliterated", alt),
		)

		page, err = s.searchCards(ctx, params, alt, res)
		if err != nil {
			return nil, 0, err
		}
	}

	if aggErr != nil {
		return nil, 0, fmt.Errorf("search: %w", aggErr)
	}

	cards, err := s.attachReviews(ctx, page.records)
	if err != nil {
		return nil, 0, fmt.Errorf("search: %w", err)
	}

	if params.IsAutocomplete {
		cards = facet.Promote(cards, func(r domain.ProductRecord) string { return r.Name }, strings.Fields(page.query), page.facets)
	}

	if exactID, ok := res.Exact(); ok {
		cards, err = s.hierarchy.ReorderByHierarchy(ctx, cards, exactID)
		if err != nil {
			return nil, 0, fmt.Errorf("search: %w", err)
		}
	}

	payload = &domain.ResultPayload{
		QueryEcho:    page.query,
		ProductCards: cards,
	}
	if !params.IsAutocomplete {
		payload.CategoryFacets = categories
		if payload.ProductProperties, err = s.productProperties(ctx, res, params.Marketplace); err != nil {
			return nil, 0, fmt.Errorf("search: %w", err)
		}
		if payload.CategoryProperties, err = s.categoryProperties(ctx, res.CandidateIDs); err != nil {
			return nil, 0, fmt.Errorf("search: %w", err)
		}
	}

	s.logger.DebugContext(ctx, "search executed",
		slog.String("query", page.query),
		slog.Int("total", page.total),
		slog.Int("cards", len(cards)),
	)

	return payload, page.total, nil
}

// searchCards performs one backend product search for text and attaches
// product links. Zero hits yield a NoResultsError carrying the backend's
// transliteration hint.
func (s *SearchService) searchCards(ctx context.Context, params domain.SearchParams, text string, res domain.ResolutionResult) (*cardsPage, error) {
	limit, offset := params.Page()
	q := domain.ProductQuery{
		Tokens:      cardTokens(text, res),
		FacetPrefix: facetPrefix(text),
		CategoryIDs: res.CategoryFilter(),
		Price:       params.PriceRange(),
		FeedIDs:     feedFilter(params),
		Statuses:    statusFilter(params),
		Marketplace: params.Marketplace,
		Limit:       limit,
		Offset:      offset,
	}

	result, err := s.searchBackend(ctx, q)
	if err != nil {
		return nil, backendError("search products", err)
	}
	if result.Total <= 0 {
		return nil, &domain.NoResultsError{Query: text, Transliterate: result.Transliterate}
	}

	records, err := s.attachLinks(ctx, result.Records)
	if err != nil {
		return nil, err
	}

	return &cardsPage{
		records: records,
		total:   result.Total,
		facets:  result.Facets,
		query:   text,
	}, nil
}

func (s *SearchService) searchBackend(ctx context.Context, q domain.ProductQuery) (*domain.ProductSearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	defer cancel()
	return s.engine.SearchProducts(ctx, q)
}

// AggregateCategories returns the backend's category ranking for the request,
// truncated to domain.MaxCategoryFacets, and the matching metadata in the
// same order. A pinned category yields two empty lists. Ranked IDs without
// metadata are skipped.
func (s *SearchService) AggregateCategories(ctx context.Context, params domain.SearchParams) ([]int64, []domain.CategoryCandidate, error) {
	if _, ok := params.PinnedCategory(); ok {
		return []int64{}, []domain.CategoryCandidate{}, nil
	}

	q := domain.ProductQuery{
		Tokens:      splitQuery(params.Query),
		Price:       params.PriceRange(),
		FeedIDs:     feedFilter(params),
		Statuses:    statusFilter(params),
		Marketplace: params.Marketplace,
	}

	bctx, cancel := context.WithTimeout(ctx, s.backendTimeout)
	ranked, err := s.engine.GroupCategoriesByHitCount(bctx, q)
	cancel()
	if err != nil {
		return nil, nil, backendError("group categories", err)
	}

	if len(ranked) > domain.MaxCategoryFacets {
		ranked = ranked[:domain.MaxCategoryFacets]
	}
	if len(ranked) == 0 {
		return []int64{}, []domain.CategoryCandidate{}, nil
	}

	meta, err := s.categories.GetCategoriesByIDs(ctx, ranked, domain.MaxCategoryFacets)
	if err != nil {
		return nil, nil, fmt.Errorf("get categories: %w", err)
	}

	byID := make(map[int64]domain.CategoryCandidate, len(meta))
	for _, c := range meta {
		byID[c.ID] = c
	}

	ordered := make([]domain.CategoryCandidate, 0, len(ranked))
	for i, id := range ranked {
		c, ok := byID[id]
		if !ok {
			categoryInconsistencies.Inc()
			s.logger.WarnContext(ctx, "ranked category has no metadata",
				slog.Int64("category_id", id),
				slog.String("error", domain.ErrDataInconsistency.Error()),
			)
			continue
		}
		c.Rank = i + 1
		ordered = append(ordered, c)
	}

	return ranked, ordered, nil
}

// attachLinks sets each record's storefront link; records without one get "".
func (s *SearchService) attachLinks(ctx context.Context, records []domain.ProductRecord) ([]domain.ProductRecord, error) {
	if len(records) == 0 {
		return records, nil
	}

	ids := make([]int64, len(records))
	for i, r := range records {
		ids[i] = r.ProductID
	}

	links, err := s.products.GetProductLinks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get product links: %w", err)
	}

	for i := range records {
		records[i].Link = links[records[i].ProductID]
	}
	return records, nil
}

// attachReviews joins review aggregates onto cards by product card ID.
func (s *SearchService) attachReviews(ctx context.Context, cards []domain.ProductRecord) ([]domain.ProductRecord, error) {
	if len(cards) == 0 {
		return cards, nil
	}

	ids := make([]int64, len(cards))
	for i, c := range cards {
		ids[i] = c.ProductCardID
	}

	aggs, err := s.reviews.GetAverageAndCountReviews(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get review aggregates: %w", err)
	}

	byCard := make(map[int64]domain.ReviewAggregate, len(aggs))
	for _, a := range aggs {
		byCard[a.ProductCardID] = a
	}

	for i := range cards {
		a, ok := byCard[cards[i].ProductCardID]
		if !ok {
			continue
		}
		rating := roundRating(a.Rating)
		count := a.CountReviews
		cards[i].Rating = &rating
		cards[i].CountReviews = &count
	}
	return cards, nil
}

// productProperties returns the property facets of the last candidate category.
func (s *SearchService) productProperties(ctx context.Context, res domain.ResolutionResult, marketplace int64) ([]domain.Property, error) {
	id, ok := res.LastCandidate()
	if !ok {
		return []domain.Property{}, nil
	}
	props, err := s.properties.GetPropertyValues(ctx, id, marketplace)
	if err != nil {
		return nil, fmt.Errorf("get property values: %w", err)
	}
	return props, nil
}

// categoryProperties returns the property definitions of ids, or nil for no ids.
func (s *SearchService) categoryProperties(ctx context.Context, ids []int64) ([]domain.Property, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	props, err := s.properties.GetCategoryProperties(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get category properties: %w", err)
	}
	return props, nil
}

// backendError wraps a search backend failure; an expired deadline is
// reported as the backend being unavailable.
func backendError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, apperrors.Unavailable("search backend", err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// splitQuery splits text on whitespace; an empty text matches everything.
func splitQuery(text string) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return []string{domain.WildcardToken}
	}
	return tokens
}

// cardTokens is splitQuery, except that an exact category match drops the
// text constraint.
func cardTokens(text string, res domain.ResolutionResult) []string {
	if _, ok := res.Exact(); ok {
		return []string{domain.WildcardToken}
	}
	return splitQuery(text)
}

// facetPrefix is the lowercased text without its last two runes.
func facetPrefix(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	runes := []rune(strings.ToLower(text))
	if len(runes) <= 2 {
		return ""
	}
	return string(runes[:len(runes)-2])
}

func feedFilter(params domain.SearchParams) []int64 {
	if params.FeedID == nil {
		return nil
	}
	return []int64{*params.FeedID}
}

func statusFilter(params domain.SearchParams) []string {
	if params.Status == nil {
		return nil
	}
	return []string{*params.Status}
}

func roundRating(r float64) float64 {
	return math.Round(r*10) / 10
}
