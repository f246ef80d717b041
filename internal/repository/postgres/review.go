package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/pkg/database"
)

// ReviewRepository implements review aggregate reads using PostgreSQL.
type ReviewRepository struct {
	pool database.DBTX
}

// NewReviewRepository creates a new PostgreSQL-backed review repository.
func NewReviewRepository(pool database.DBTX) *ReviewRepository {
	return &ReviewRepository{pool: pool}
}

// GetAverageAndCountReviews returns the average rating and review count of
// every product card in productCardIDs that has reviews.
func (r *ReviewRepository) GetAverageAndCountReviews(ctx context.Context, productCardIDs []int64) (aggs []domain.ReviewAggregate, err error) {
	if len(productCardIDs) == 0 {
		return []domain.ReviewAggregate{}, nil
	}

	query := `
		SELECT product_card_id, COALESCE(AVG(rating), 0)::float8, COUNT(*)
		FROM product_reviews
		WHERE product_card_id = ANY($1)
		GROUP BY product_card_id`
	ctx, end := database.TraceQuery(ctx, "GetAverageAndCountReviews", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, productCardIDs)
	if err != nil {
		return nil, fmt.Errorf("query review aggregates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.ReviewAggregate
		if err := rows.Scan(&a.ProductCardID, &a.Rating, &a.CountReviews); err != nil {
			return nil, fmt.Errorf("scan review aggregate row: %w", err)
		}
		// Round average rating to one decimal place.
		a.Rating = math.Round(a.Rating*10) / 10
		aggs = append(aggs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate review aggregate rows: %w", err)
	}

	if aggs == nil {
		aggs = []domain.ReviewAggregate{}
	}
	return aggs, nil
}
