package repository

import (
	"context"

	"github.com/utafrali/showcase-search/internal/domain"
)

// CategoryRepository defines read access to category metadata.
type CategoryRepository interface {
	// GetCategoriesByIDs returns metadata for at most limit of the given IDs,
	// in no particular order. Unknown IDs are silently absent.
	GetCategoriesByIDs(ctx context.Context, ids []int64, limit int) ([]domain.CategoryCandidate, error)
}

// ProductRepository defines read access to product data outside the search index.
type ProductRepository interface {
	// GetProductLinks returns the storefront link of each product ID that has one.
	GetProductLinks(ctx context.Context, productIDs []int64) (map[int64]string, error)

	// ListProductCards returns up to limit indexable product cards with a
	// product ID greater than afterID, ordered by product ID.
	ListProductCards(ctx context.Context, afterID int64, limit int) ([]domain.ProductRecord, error)
}

// ReviewRepository defines read access to review aggregates.
type ReviewRepository interface {
	// GetAverageAndCountReviews returns one aggregate per product card that
	// has reviews. Ratings are rounded to one decimal place.
	GetAverageAndCountReviews(ctx context.Context, productCardIDs []int64) ([]domain.ReviewAggregate, error)
}

// PropertyRepository defines read access to category properties.
type PropertyRepository interface {
	// GetCategoryProperties returns the property definitions of the given categories.
	GetCategoryProperties(ctx context.Context, categoryIDs []int64) ([]domain.Property, error)

	// GetPropertyValues returns the property facets of one category's
	// products, each with its distinct values and product counts. A zero
	// marketplace disables the marketplace restriction.
	GetPropertyValues(ctx context.Context, categoryID, marketplace int64) ([]domain.Property, error)
}
