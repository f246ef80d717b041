package elasticsearch

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/showcase-search/internal/domain"
)

// fakeCluster answers the handful of endpoints the engine uses.
type fakeCluster struct {
	mu         sync.Mutex
	searchBody map[string]interface{}
	searchResp string
	created    bool
	bulkLines  int
}

func (f *fakeCluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodHead:
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodPut && !strings.Contains(r.URL.Path, "_doc"):
		f.created = true
		_, _ = io.WriteString(w, `{"acknowledged":true}`)
	case strings.HasSuffix(r.URL.Path, "/_search"):
		raw, _ := io.ReadAll(r.Body)
		f.searchBody = map[string]interface{}{}
		_ = json.Unmarshal(raw, &f.searchBody)
		_, _ = io.WriteString(w, f.searchResp)
	case strings.HasSuffix(r.URL.Path, "/_bulk"):
		raw, _ := io.ReadAll(r.Body)
		f.bulkLines = strings.Count(string(raw), "\n")
		_, _ = io.WriteString(w, `{"errors":true,"items":[{"index":{"_id":"2","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad price"}}}]}`)
	case r.Method == http.MethodDelete:
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"result":"not_found"}`)
	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"type":"illegal_argument_exception","reason":"unexpected"},"status":400}`)
	}
}

func newFakeEngine(t *testing.T, searchResp string) (*Engine, *fakeCluster) {
	t.Helper()
	fake := &fakeCluster{searchResp: searchResp}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	eng, err := New(srv.URL, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return eng, fake
}

func TestNew_CreatesMissingIndex(t *testing.T) {
	eng, fake := newFakeEngine(t, `{}`)
	assert.True(t, fake.created)
	assert.Equal(t, DefaultIndexName, eng.indexName)
}

func TestSearchProducts_DecodesHitsAndFacets(t *testing.T) {
	eng, fake := newFakeEngine(t, `{
		"took": 4,
		"hits": {"total": {"value": 2}, "hits": [
			{"_source": {"product_id": 1, "product_card_id": 11, "category_id": 5, "name": "Телефон", "price": 9.5}},
			{"_source": {"product_id": 2, "product_card_id": 12, "category_id": 5, "name": "Телефоны", "price": 3}}
		]},
		"aggregations": {"name_tokens": {"buckets": [{"key": "телефон", "doc_count": 1}, {"key": "телефоны", "doc_count": 1}]}}
	}`)

	from := 1.0
	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{
		Tokens:      []string{"телефон"},
		FacetPrefix: "телеф",
		CategoryIDs: []int64{5},
		Price:       &domain.PriceRange{From: &from},
		Marketplace: 3,
		Limit:       10,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, int64(4), result.TookMs)
	require.Len(t, result.Records, 2)
	assert.Equal(t, int64(11), result.Records[0].ProductCardID)
	assert.Equal(t, map[string]int{"телефон": 1, "телефоны": 1}, result.Facets)
	assert.False(t, result.Transliterate)

	assert.EqualValues(t, 10, fake.searchBody["size"])
	aggs := fake.searchBody["aggs"].(map[string]interface{})
	terms := aggs["name_tokens"].(map[string]interface{})["terms"].(map[string]interface{})
	assert.Equal(t, "телеф.*", terms["include"])

	boolQuery := fake.searchBody["query"].(map[string]interface{})["bool"].(map[string]interface{})
	assert.Len(t, boolQuery["must"], 1)
	assert.Len(t, boolQuery["filter"], 3)
}

func TestSearchProducts_ZeroHitsSetsTransliterateHint(t *testing.T) {
	eng, fake := newFakeEngine(t, `{"took":1,"hits":{"total":{"value":0},"hits":[]}}`)

	result, err := eng.SearchProducts(context.Background(), domain.ProductQuery{Tokens: []string{"telefon"}})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Total)
	assert.True(t, result.Transliterate)
	assert.Nil(t, result.Facets)
	assert.NotContains(t, fake.searchBody, "aggs")
}

func TestSearchProducts_WildcardUsesMatchAll(t *testing.T) {
	eng, fake := newFakeEngine(t, `{"hits":{"total":{"value":0},"hits":[]}}`)

	_, err := eng.SearchProducts(context.Background(), domain.ProductQuery{Tokens: []string{domain.WildcardToken}})
	require.NoError(t, err)

	boolQuery := fake.searchBody["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].([]interface{})
	require.Len(t, must, 1)
	assert.Contains(t, must[0], "match_all")
	assert.NotContains(t, boolQuery, "filter")
}

func TestGroupCategoriesByHitCount_KeepsBucketOrder(t *testing.T) {
	eng, fake := newFakeEngine(t, `{"hits":{"total":{"value":6},"hits":[]},
		"aggregations":{"categories":{"buckets":[{"key":42,"doc_count":3},{"key":7,"doc_count":2},{"key":9,"doc_count":1}]}}}`)

	ids, err := eng.GroupCategoriesByHitCount(context.Background(), domain.ProductQuery{Tokens: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, []int64{42, 7, 9}, ids)
	assert.EqualValues(t, 0, fake.searchBody["size"])
}

func TestBulkIndex_ReportsPartialErrors(t *testing.T) {
	eng, fake := newFakeEngine(t, `{}`)

	err := eng.BulkIndex(context.Background(), []domain.ProductRecord{
		{ProductID: 1, Name: "a"},
		{ProductID: 2, Name: "b"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
	assert.Equal(t, 4, fake.bulkLines)
}

func TestDelete_IgnoresNotFound(t *testing.T) {
	eng, _ := newFakeEngine(t, `{}`)
	assert.NoError(t, eng.Delete(context.Background(), 99))
}

func TestEscapeRegexp(t *testing.T) {
	assert.Equal(t, `a\.b\*c`, escapeRegexp("a.b*c"))
	assert.Equal(t, "телеф", escapeRegexp("телеф"))
}
