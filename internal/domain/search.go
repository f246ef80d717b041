package domain

// Supported request languages.
const (
	LangRu      = "ru"
	LangEn      = "en"
	LangCn      = "cn"
	DefaultLang = LangRu
)

// Paging and facet limits.
const (
	DefaultLimit      = 20
	MaxLimit          = 100
	MaxCategoryFacets = 25
)

// WildcardToken matches every document when used as the only query token.
const WildcardToken = "*"

// SearchParams is one product-card search request after HTTP parsing.
type SearchParams struct {
	Lang                 string
	Query                string
	Category             *int64
	PriceFrom            *float64
	PriceTo              *float64
	FeedID               *int64
	Status               *string
	Marketplace          int64
	MarketTypeIndividual bool
	IsAutocomplete       bool
	Limit                int
	Offset               int
}

// PinnedCategory reports the explicit positive category of the request.
func (p SearchParams) PinnedCategory() (int64, bool) {
	if p.Category != nil && *p.Category > 0 {
		return *p.Category, true
	}
	return 0, false
}

// PriceRange returns the price filter, or nil when neither bound is set.
// Absent bounds stay nil rather than defaulting to zero.
func (p SearchParams) PriceRange() *PriceRange {
	if p.PriceFrom == nil && p.PriceTo == nil {
		return nil
	}
	return &PriceRange{From: p.PriceFrom, To: p.PriceTo}
}

// Page returns limit and offset with defaults and the upper cap applied.
func (p SearchParams) Page() (limit, offset int) {
	limit, offset = p.Limit, p.Offset
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// PriceRange is an inclusive price filter with optional bounds.
type PriceRange struct {
	From *float64
	To   *float64
}

// Contains reports whether price satisfies both present bounds.
func (r *PriceRange) Contains(price float64) bool {
	if r == nil {
		return true
	}
	if r.From != nil && price < *r.From {
		return false
	}
	if r.To != nil && price > *r.To {
		return false
	}
	return true
}

// ProductRecord is one product card as returned by a search backend and
// enriched by the orchestrator.
type ProductRecord struct {
	ProductID     int64    `json:"productId"`
	ProductCardID int64    `json:"productCardId"`
	CategoryID    int64    `json:"categoryId"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	Link          string   `json:"link"`
	Rating        *float64 `json:"rating"`
	CountReviews  *int     `json:"countReviews"`

	FeedID        int64  `json:"-"`
	MarketplaceID int64  `json:"-"`
	Status        string `json:"-"`
}

// CategoryCandidate is a category facet entry; Rank is its position in the
// backend's hit-count ordering.
type CategoryCandidate struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	ParentID     *int64 `json:"parentId"`
	Level        int    `json:"level"`
	ProductCount int    `json:"productCount"`
	Rank         int    `json:"rank"`
}

// ReviewAggregate is the review summary of one product card.
type ReviewAggregate struct {
	ProductCardID int64
	Rating        float64
	CountReviews  int
}

// ResolutionResult is the outcome of category resolution for one request.
// It is passed by value through the pipeline.
type ResolutionResult struct {
	CandidateIDs []int64
	ExactID      *int64
}

// Exact returns the exact category, if one was resolved.
func (r ResolutionResult) Exact() (int64, bool) {
	if r.ExactID == nil {
		return 0, false
	}
	return *r.ExactID, true
}

// CategoryFilter returns the IDs to restrict a product search to: the exact
// category when known, otherwise every candidate.
func (r ResolutionResult) CategoryFilter() []int64 {
	if id, ok := r.Exact(); ok {
		return []int64{id}
	}
	return r.CandidateIDs
}

// LastCandidate returns the final, most specific candidate ID.
func (r ResolutionResult) LastCandidate() (int64, bool) {
	if len(r.CandidateIDs) == 0 {
		return 0, false
	}
	return r.CandidateIDs[len(r.CandidateIDs)-1], true
}

// Property is a category property definition, or a product property facet
// when Values is set.
type Property struct {
	ID         int64           `json:"id"`
	CategoryID int64           `json:"categoryId"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Type       string          `json:"type"`
	SortOrder  int             `json:"sortOrder"`
	Values     []PropertyValue `json:"values,omitempty"`
}

// PropertyValue is one distinct property value and how many products carry it.
type PropertyValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Node is a category hierarchy node.
type Node struct {
	ID       int64
	ParentID *int64
	Level    int
	Name     string
}

// ProductQuery is the request sent to a search backend.
type ProductQuery struct {
	Tokens      []string
	FacetPrefix string
	CategoryIDs []int64
	Price       *PriceRange
	FeedIDs     []int64
	Statuses    []string
	Marketplace int64
	Limit       int
	Offset      int
}

// IsMatchAll reports whether the query carries no text constraint.
func (q ProductQuery) IsMatchAll() bool {
	return len(q.Tokens) == 0 || (len(q.Tokens) == 1 && q.Tokens[0] == WildcardToken)
}

// ProductSearchResult is a backend's answer to a ProductQuery. Facets holds
// name-token counts restricted to the query's facet prefix.
type ProductSearchResult struct {
	Records       []ProductRecord
	Total         int
	Transliterate bool
	Facets        map[string]int
	TookMs        int64
}

// ResultPayload is the assembled search response. The three facet sections
// are nil in autocomplete mode.
type ResultPayload struct {
	QueryEcho          string              `json:"_name"`
	ProductCards       []ProductRecord     `json:"products_cards"`
	CategoryFacets     []CategoryCandidate `json:"products_categories"`
	ProductProperties  []Property          `json:"products_properties"`
	CategoryProperties []Property          `json:"categories_properties"`
}
