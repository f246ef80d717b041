package resolver

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/utafrali/showcase-search/internal/domain"
)

// JSONGetter issues a GET and decodes the JSON body. Satisfied by
// *httpclient.CircuitBreakerClient.
type JSONGetter interface {
	GetJSON(ctx context.Context, url string, out any) error
}

// HTTPClient calls the category-resolution service over HTTP.
type HTTPClient struct {
	baseURL string
	http    JSONGetter
}

// NewHTTPClient creates an adapter for the service at baseURL.
func NewHTTPClient(baseURL string, getter JSONGetter) *HTTPClient {
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), http: getter}
}

type resolveResponse struct {
	Data struct {
		CategoryIDs     []int64 `json:"category_ids"`
		ExactCategoryID *int64  `json:"exact_category_id"`
	} `json:"data"`
}

// ResolveCategoryFromQuery implements CategoryResolver.
func (c *HTTPClient) ResolveCategoryFromQuery(ctx context.Context, text, lang string, marketplace int64, marketTypeIndividual bool) (domain.ResolutionResult, error) {
	q := url.Values{}
	q.Set("q", text)
	q.Set("lang", lang)
	q.Set("marketplace", strconv.FormatInt(marketplace, 10))
	q.Set("market_type_individual", strconv.FormatBool(marketTypeIndividual))

	var resp resolveResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/api/v1/categories/resolve?"+q.Encode(), &resp); err != nil {
		return domain.ResolutionResult{}, err
	}

	res := domain.ResolutionResult{CandidateIDs: resp.Data.CategoryIDs}
	if id := resp.Data.ExactCategoryID; id != nil && *id > 0 {
		res.ExactID = id
	}
	return res, nil
}
