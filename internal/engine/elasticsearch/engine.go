package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/internal/engine"
	"github.com/utafrali/showcase-search/internal/translit"
)

// Engine is an Elasticsearch-backed implementation of the SearchEngine interface.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	logger    *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

// document is the indexed form of a product card.
type document struct {
	ProductID     int64    `json:"product_id"`
	ProductCardID int64    `json:"product_card_id"`
	CategoryID    int64    `json:"category_id"`
	Name          string   `json:"name"`
	NameTokens    []string `json:"name_tokens"`
	Price         float64  `json:"price"`
	FeedID        int64    `json:"feed_id"`
	MarketplaceID int64    `json:"marketplace_id"`
	Status        string   `json:"status"`
}

func toDocument(r *domain.ProductRecord) document {
	return document{
		ProductID:     r.ProductID,
		ProductCardID: r.ProductCardID,
		CategoryID:    r.CategoryID,
		Name:          r.Name,
		NameTokens:    engine.NameTokens(r.Name),
		Price:         r.Price,
		FeedID:        r.FeedID,
		MarketplaceID: r.MarketplaceID,
		Status:        r.Status,
	}
}

func (d document) record() domain.ProductRecord {
	return domain.ProductRecord{
		ProductID:     d.ProductID,
		ProductCardID: d.ProductCardID,
		CategoryID:    d.CategoryID,
		Name:          d.Name,
		Price:         d.Price,
		FeedID:        d.FeedID,
		MarketplaceID: d.MarketplaceID,
		Status:        d.Status,
	}
}

type termsBucket[K any] struct {
	Key      K   `json:"key"`
	DocCount int `json:"doc_count"`
}

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		NameTokens struct {
			Buckets []termsBucket[string] `json:"buckets"`
		} `json:"name_tokens"`
		Categories struct {
			Buckets []termsBucket[int64] `json:"buckets"`
		} `json:"categories"`
	} `json:"aggregations"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates a new Elasticsearch engine connected to the given URL.
// It ensures the product cards index exists, creating it if necessary.
// If indexName is empty, DefaultIndexName is used.
func New(esURL string, indexName string, logger *slog.Logger) (*Engine, error) {
	if indexName == "" {
		indexName = DefaultIndexName
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{esURL},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to create client: %w", err)
	}

	e := &Engine{
		client:    client,
		indexName: indexName,
		logger:    logger,
	}

	if err := e.ensureIndex(); err != nil {
		return nil, fmt.Errorf("elasticsearch: failed to ensure index: %w", err)
	}

	return e, nil
}

// responseError decodes an Elasticsearch error body into an error for op.
func responseError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	if decErr := json.NewDecoder(res.Body).Decode(&errResp); decErr == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// ensureIndex checks whether the product cards index exists and creates it if not.
func (e *Engine) ensureIndex() error {
	res, err := e.client.Indices.Exists([]string{e.indexName})
	if err != nil {
		return fmt.Errorf("check index exists: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusOK {
		e.logger.Info("elasticsearch index already exists", "index", e.indexName)
		return nil
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("create index", res)
	}

	e.logger.Info("elasticsearch index created", "index", e.indexName)
	return nil
}

// Index adds or updates a single product card in the Elasticsearch index.
func (e *Engine) Index(ctx context.Context, record *domain.ProductRecord) error {
	data, err := json.Marshal(toDocument(record))
	if err != nil {
		return fmt.Errorf("elasticsearch index: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(strconv.FormatInt(record.ProductID, 10)),
		e.client.Index.WithRefresh("true"),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch index", res)
	}

	e.logger.Debug("indexed product card", "product_id", record.ProductID, "name", record.Name)
	return nil
}

// Delete removes a product card from the index by its product ID.
// A missing document is not an error.
func (e *Engine) Delete(ctx context.Context, productID int64) error {
	res, err := e.client.Delete(
		e.indexName,
		strconv.FormatInt(productID, 10),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete", res)
	}

	e.logger.Debug("deleted product card", "product_id", productID)
	return nil
}

// SearchProducts executes a product query against Elasticsearch. Facets are
// read from a terms aggregation over name_tokens limited to the facet prefix.
func (e *Engine) SearchProducts(ctx context.Context, query domain.ProductQuery) (*domain.ProductSearchResult, error) {
	limit, offset := engine.Page(query)

	body := map[string]interface{}{
		"query":            buildBoolQuery(query),
		"from":             offset,
		"size":             limit,
		"track_total_hits": true,
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"product_id": "asc"},
		},
	}
	if query.FacetPrefix != "" {
		body["aggs"] = map[string]interface{}{
			"name_tokens": map[string]interface{}{
				"terms": map[string]interface{}{
					"field":   "name_tokens",
					"size":    maxFacetBuckets,
					"include": escapeRegexp(query.FacetPrefix) + ".*",
				},
			},
		}
	}

	esResp, err := e.search(ctx, "elasticsearch search", body)
	if err != nil {
		return nil, err
	}

	records := make([]domain.ProductRecord, 0, len(esResp.Hits.Hits))
	for _, hit := range esResp.Hits.Hits {
		records = append(records, hit.Source.record())
	}

	var facets map[string]int
	if query.FacetPrefix != "" {
		facets = make(map[string]int, len(esResp.Aggregations.NameTokens.Buckets))
		for _, b := range esResp.Aggregations.NameTokens.Buckets {
			facets[b.Key] = b.DocCount
		}
	}

	total := esResp.Hits.Total.Value
	return &domain.ProductSearchResult{
		Records:       records,
		Total:         total,
		Transliterate: total == 0 && translit.ShouldTransliterate(strings.Join(query.Tokens, " ")),
		Facets:        facets,
		TookMs:        int64(esResp.Took),
	}, nil
}

// GroupCategoriesByHitCount runs a size-0 search with a terms aggregation on
// category_id ordered by document count, ties by category ID.
func (e *Engine) GroupCategoriesByHitCount(ctx context.Context, query domain.ProductQuery) ([]int64, error) {
	body := map[string]interface{}{
		"query": buildBoolQuery(query),
		"size":  0,
		"aggs": map[string]interface{}{
			"categories": map[string]interface{}{
				"terms": map[string]interface{}{
					"field": "category_id",
					"size":  maxCategoryBuckets,
					"order": []interface{}{
						map[string]interface{}{"_count": "desc"},
						map[string]interface{}{"_key": "asc"},
					},
				},
			},
		},
	}

	esResp, err := e.search(ctx, "elasticsearch group categories", body)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(esResp.Aggregations.Categories.Buckets))
	for _, b := range esResp.Aggregations.Categories.Buckets {
		ids = append(ids, b.Key)
	}
	return ids, nil
}

func (e *Engine) search(ctx context.Context, op string, body map[string]interface{}) (*esSearchResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal query: %w", op, err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return nil, responseError(op, res)
	}

	var esResp esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("%s: decode response: %w", op, err)
	}
	return &esResp, nil
}

// buildBoolQuery constructs the bool query DSL: one match clause per token
// (or match_all) plus the filter clauses.
func buildBoolQuery(query domain.ProductQuery) map[string]interface{} {
	var must []interface{}
	if query.IsMatchAll() {
		must = append(must, map[string]interface{}{
			"match_all": map[string]interface{}{},
		})
	} else {
		for _, t := range query.Tokens {
			must = append(must, map[string]interface{}{
				"match": map[string]interface{}{
					"name": map[string]interface{}{"query": t},
				},
			})
		}
	}

	boolQuery := map[string]interface{}{
		"must": must,
	}
	if filters := buildFilters(query); len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]interface{}{"bool": boolQuery}
}

// buildFilters constructs the filter clauses of a product query.
func buildFilters(query domain.ProductQuery) []interface{} {
	var filters []interface{}

	if len(query.CategoryIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"category_id": query.CategoryIDs},
		})
	}

	if query.Price != nil {
		rangeFilter := map[string]interface{}{}
		if query.Price.From != nil {
			rangeFilter["gte"] = *query.Price.From
		}
		if query.Price.To != nil {
			rangeFilter["lte"] = *query.Price.To
		}
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"price": rangeFilter},
		})
	}

	if len(query.FeedIDs) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"feed_id": query.FeedIDs},
		})
	}

	if len(query.Statuses) > 0 {
		filters = append(filters, map[string]interface{}{
			"terms": map[string]interface{}{"status": query.Statuses},
		})
	}

	if query.Marketplace > 0 {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"marketplace_id": query.Marketplace},
		})
	}

	return filters
}

// escapeRegexp escapes Lucene regular expression operators.
func escapeRegexp(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`.?+*|{}[]()"\#@&<>~`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DeleteIndex removes the entire Elasticsearch index.
// It is intended for testing and administrative operations only.
// A 404 response is treated as success (index already absent).
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return responseError("elasticsearch delete index", res)
	}

	e.logger.Info("elasticsearch index deleted", "index", e.indexName)
	return nil
}

// BulkIndex adds or updates multiple product cards using the bulk NDJSON API.
func (e *Engine) BulkIndex(ctx context.Context, records []domain.ProductRecord) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)

	for i := range records {
		action := map[string]interface{}{
			"index": map[string]interface{}{
				"_index": e.indexName,
				"_id":    strconv.FormatInt(records[i].ProductID, 10),
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode action: %w", err)
		}
		if err := enc.Encode(toDocument(&records[i])); err != nil {
			return fmt.Errorf("elasticsearch bulk index: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh("true"),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch bulk index: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.IsError() {
		return responseError("elasticsearch bulk index", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return fmt.Errorf("elasticsearch bulk index: decode response: %w", err)
	}

	if bulkResp.Errors {
		var errMsgs []string
		for _, item := range bulkResp.Items {
			if item.Index.Error.Type != "" {
				errMsgs = append(errMsgs, fmt.Sprintf("id=%s: %s: %s", item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return fmt.Errorf("elasticsearch bulk index: partial errors: %s", strings.Join(errMsgs, "; "))
	}

	e.logger.Info("bulk indexed product cards", "count", len(records))
	return nil
}
