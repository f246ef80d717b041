// Package resolver maps free-text queries to candidate product categories.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/utafrali/showcase-search/internal/domain"
)

// CategoryResolver is the category-resolution collaborator.
type CategoryResolver interface {
	ResolveCategoryFromQuery(ctx context.Context, text, lang string, marketplace int64, marketTypeIndividual bool) (domain.ResolutionResult, error)
}

// NormalizeLang lowercases lang, substitutes the default for unsupported
// values and capitalises the result ("ru" becomes "Ru").
func NormalizeLang(lang string) string {
	l := strings.ToLower(strings.TrimSpace(lang))
	switch l {
	case domain.LangRu, domain.LangEn, domain.LangCn:
	default:
		l = domain.DefaultLang
	}
	return strings.ToUpper(l[:1]) + l[1:]
}

// Resolver wraps a CategoryResolver with request-level short cuts.
type Resolver struct {
	collaborator CategoryResolver
}

// New creates a Resolver.
func New(collaborator CategoryResolver) *Resolver {
	return &Resolver{collaborator: collaborator}
}

// Resolve returns the categories the request should be searched in. A pinned
// category wins without consulting the collaborator and an empty query
// resolves to nothing. Collaborator failures are returned wrapped.
func (r *Resolver) Resolve(ctx context.Context, params domain.SearchParams) (domain.ResolutionResult, error) {
	if id, ok := params.PinnedCategory(); ok {
		return domain.ResolutionResult{CandidateIDs: []int64{id}}, nil
	}

	query := strings.TrimSpace(params.Query)
	if query == "" {
		return domain.ResolutionResult{}, nil
	}

	res, err := r.collaborator.ResolveCategoryFromQuery(ctx, query, NormalizeLang(params.Lang), params.Marketplace, params.MarketTypeIndividual)
	if err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("resolve category for %q: %w", query, err)
	}
	return res, nil
}
