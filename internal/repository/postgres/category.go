package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/pkg/database"
)

// categoryColumns is the standard SELECT column list for category facets.
const categoryColumns = `id, name, slug, parent_id, level, product_count`

// CategoryRepository implements category metadata reads using PostgreSQL.
type CategoryRepository struct {
	pool database.DBTX
}

// NewCategoryRepository creates a new PostgreSQL-backed category repository.
func NewCategoryRepository(pool database.DBTX) *CategoryRepository {
	return &CategoryRepository{pool: pool}
}

// GetCategoriesByIDs returns metadata for at most limit of ids in one round-trip.
func (r *CategoryRepository) GetCategoriesByIDs(ctx context.Context, ids []int64, limit int) (cats []domain.CategoryCandidate, err error) {
	if len(ids) == 0 || limit <= 0 {
		return []domain.CategoryCandidate{}, nil
	}

	query := `SELECT ` + categoryColumns + `
		FROM categories
		WHERE id = ANY($1)
		LIMIT $2`
	ctx, end := database.TraceQuery(ctx, "GetCategoriesByIDs", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, ids, limit)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.CategoryCandidate
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.ParentID, &c.Level, &c.ProductCount); err != nil {
			return nil, fmt.Errorf("scan category row: %w", err)
		}
		cats = append(cats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category rows: %w", err)
	}

	if cats == nil {
		cats = []domain.CategoryCandidate{}
	}
	return cats, nil
}
