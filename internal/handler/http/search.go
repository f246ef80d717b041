package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/internal/service"
	"github.com/utafrali/showcase-search/pkg/httputil"
	"github.com/utafrali/showcase-search/pkg/validator"
)

// SearchHandler handles HTTP requests for search endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request / response DTOs ---

// searchRequest is the parsed query string of a product card search.
type searchRequest struct {
	Query                string
	Lang                 string
	Category             *int64
	PriceFrom            *float64 `validate:"omitempty,gte=0"`
	PriceTo              *float64 `validate:"omitempty,gte=0"`
	FeedID               *int64
	Status               *string
	Marketplace          int64 `validate:"gte=0"`
	MarketTypeIndividual bool
	IsAutocomplete       bool
	Limit                int `validate:"gte=0"`
	Offset               int `validate:"gte=0"`
}

func (r *searchRequest) params() domain.SearchParams {
	return domain.SearchParams{
		Lang:                 r.Lang,
		Query:                r.Query,
		Category:             r.Category,
		PriceFrom:            r.PriceFrom,
		PriceTo:              r.PriceTo,
		FeedID:               r.FeedID,
		Status:               r.Status,
		Marketplace:          r.Marketplace,
		MarketTypeIndividual: r.MarketTypeIndividual,
		IsAutocomplete:       r.IsAutocomplete,
		Limit:                r.Limit,
		Offset:               r.Offset,
	}
}

// searchResponse is the result payload plus the total hit count.
type searchResponse struct {
	*domain.ResultPayload
	TotalCount int `json:"total_count"`
}

// BulkIndexRequest is the JSON request body for bulk indexing product cards.
type BulkIndexRequest struct {
	Products []service.IndexProductInput `json:"products" validate:"required,min=1,max=500"`
}

// --- Handlers ---

// Search handles GET /api/v1/search/products
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := parseSearchRequest(w, r.URL.Query())
	if !ok {
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	payload, total, err := h.service.Search(r.Context(), req.params())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: searchResponse{ResultPayload: payload, TotalCount: total}})
}

// parseSearchRequest reads the search query string. On a malformed parameter
// it writes a 400 response and returns false.
func parseSearchRequest(w http.ResponseWriter, q url.Values) (*searchRequest, bool) {
	req := &searchRequest{
		Query: strings.TrimSpace(q.Get("q")),
		Lang:  q.Get("lang"),
	}

	var ok bool
	if req.Category, ok = optionalInt64(w, q, "category"); !ok {
		return nil, false
	}
	if req.FeedID, ok = optionalInt64(w, q, "feed_id"); !ok {
		return nil, false
	}
	if req.PriceFrom, ok = optionalFloat(w, q, "price_from"); !ok {
		return nil, false
	}
	if req.PriceTo, ok = optionalFloat(w, q, "price_to"); !ok {
		return nil, false
	}
	if req.PriceFrom != nil && req.PriceTo != nil && *req.PriceFrom > *req.PriceTo {
		httputil.WriteInvalidParameter(w, "price_from must not exceed price_to")
		return nil, false
	}
	if v := q.Get("status"); v != "" {
		req.Status = &v
	}

	if v := q.Get("marketplace"); v != "" {
		m, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httputil.WriteInvalidParameter(w, "marketplace must be an integer")
			return nil, false
		}
		req.Marketplace = m
	}

	for name, dst := range map[string]*bool{
		"market_type_individual": &req.MarketTypeIndividual,
		"autocomplete":           &req.IsAutocomplete,
	} {
		if v := q.Get(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				httputil.WriteInvalidParameter(w, name+" must be a boolean")
				return nil, false
			}
			*dst = b
		}
	}

	for name, dst := range map[string]*int{"limit": &req.Limit, "offset": &req.Offset} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				httputil.WriteInvalidParameter(w, name+" must be an integer")
				return nil, false
			}
			*dst = n
		}
	}

	return req, true
}

func optionalInt64(w http.ResponseWriter, q url.Values, name string) (*int64, bool) {
	v := q.Get(name)
	if v == "" {
		return nil, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		httputil.WriteInvalidParameter(w, name+" must be an integer")
		return nil, false
	}
	return &n, true
}

func optionalFloat(w http.ResponseWriter, q url.Values, name string) (*float64, bool) {
	v := q.Get(name)
	if v == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		httputil.WriteInvalidParameter(w, name+" must be a valid number")
		return nil, false
	}
	return &f, true
}

// IndexProduct handles POST /api/v1/search/index
func (h *SearchHandler) IndexProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var input service.IndexProductInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := h.service.IndexProduct(r.Context(), &input); err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"product_id": input.ProductID, "status": "indexed"}})
}

// DeleteProduct handles DELETE /api/v1/search/{id}
func (h *SearchHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseID(w, "id", chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{"product_id": id, "status": "deleted"}})
}

// BulkIndex handles POST /api/v1/search/bulk
func (h *SearchHandler) BulkIndex(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)

	var req BulkIndexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	n, err := h.service.BulkIndex(r.Context(), req.Products)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]any{
		"indexed": n,
		"skipped": len(req.Products) - n,
		"status":  "ok",
	}})
}

// Reindex handles POST /api/v1/search/reindex
func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StartReindex(); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, httputil.Response{Data: map[string]string{"status": "reindex started"}})
}

func (h *SearchHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteValidationError(w, err)
		return
	}
	httputil.WriteError(w, r, err, h.logger)
}
