package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/pkg/database"
)

const propertyColumns = `cp.id, cp.category_id, cp.code, cp.name, cp.type, cp.sort_order`

// PropertyRepository implements category property reads using PostgreSQL.
type PropertyRepository struct {
	pool database.DBTX
}

// NewPropertyRepository creates a new PostgreSQL-backed property repository.
func NewPropertyRepository(pool database.DBTX) *PropertyRepository {
	return &PropertyRepository{pool: pool}
}

// GetCategoryProperties returns the property definitions of categoryIDs
// ordered by category, sort order and ID.
func (r *PropertyRepository) GetCategoryProperties(ctx context.Context, categoryIDs []int64) (props []domain.Property, err error) {
	if len(categoryIDs) == 0 {
		return []domain.Property{}, nil
	}

	query := `SELECT ` + propertyColumns + `
		FROM category_properties cp
		WHERE cp.category_id = ANY($1)
		ORDER BY cp.category_id, cp.sort_order, cp.id`
	ctx, end := database.TraceQuery(ctx, "GetCategoryProperties", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("query category properties: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Property
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Code, &p.Name, &p.Type, &p.SortOrder); err != nil {
			return nil, fmt.Errorf("scan category property row: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category property rows: %w", err)
	}

	if props == nil {
		props = []domain.Property{}
	}
	return props, nil
}

// GetPropertyValues returns each property of categoryID together with the
// distinct values its products carry. Values are ordered by product count
// descending, then value.
func (r *PropertyRepository) GetPropertyValues(ctx context.Context, categoryID, marketplace int64) (props []domain.Property, err error) {
	query := `SELECT ` + propertyColumns + `, ppv.value, COUNT(DISTINCT ppv.product_id) AS product_count
		FROM category_properties cp
		JOIN product_property_values ppv ON ppv.property_id = cp.id
		JOIN products p ON p.id = ppv.product_id
		WHERE cp.category_id = $1 AND ($2::bigint = 0 OR p.marketplace_id = $2)
		GROUP BY cp.id, cp.category_id, cp.code, cp.name, cp.type, cp.sort_order, ppv.value
		ORDER BY cp.sort_order, cp.id, product_count DESC, ppv.value`
	ctx, end := database.TraceQuery(ctx, "GetPropertyValues", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, categoryID, marketplace)
	if err != nil {
		return nil, fmt.Errorf("query property values: %w", err)
	}
	defer rows.Close()

	props = []domain.Property{}
	for rows.Next() {
		var (
			p domain.Property
			v domain.PropertyValue
		)
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Code, &p.Name, &p.Type, &p.SortOrder, &v.Value, &v.Count); err != nil {
			return nil, fmt.Errorf("scan property value row: %w", err)
		}
		// Rows arrive grouped by property.
		if n := len(props); n > 0 && props[n-1].ID == p.ID {
			props[n-1].Values = append(props[n-1].Values, v)
			continue
		}
		p.Values = []domain.PropertyValue{v}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate property value rows: %w", err)
	}

	return props, nil
}
