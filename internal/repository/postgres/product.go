package postgres

import (
	"context"
	"fmt"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/pkg/database"
)

// ProductRepository implements product link and card reads using PostgreSQL.
type ProductRepository struct {
	pool database.DBTX
}

// NewProductRepository creates a new PostgreSQL-backed product repository.
func NewProductRepository(pool database.DBTX) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetProductLinks returns the storefront link of every product in productIDs
// that has one.
func (r *ProductRepository) GetProductLinks(ctx context.Context, productIDs []int64) (links map[int64]string, err error) {
	links = make(map[int64]string, len(productIDs))
	if len(productIDs) == 0 {
		return links, nil
	}

	query := `SELECT product_id, link FROM product_links WHERE product_id = ANY($1)`
	ctx, end := database.TraceQuery(ctx, "GetProductLinks", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("query product links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			link string
		)
		if err := rows.Scan(&id, &link); err != nil {
			return nil, fmt.Errorf("scan product link row: %w", err)
		}
		links[id] = link
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product link rows: %w", err)
	}

	return links, nil
}

// ListProductCards returns the next page of product cards after afterID
// using keyset pagination on the product ID.
func (r *ProductRepository) ListProductCards(ctx context.Context, afterID int64, limit int) (cards []domain.ProductRecord, err error) {
	query := `
		SELECT p.id, pc.id, p.category_id, pc.name, pc.price, p.feed_id, p.marketplace_id, p.status
		FROM product_cards pc
		JOIN products p ON p.id = pc.product_id
		WHERE p.id > $1
		ORDER BY p.id
		LIMIT $2`
	ctx, end := database.TraceQuery(ctx, "ListProductCards", query)
	defer func() { end(err) }()

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list product cards: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.ProductRecord
		if err := rows.Scan(
			&c.ProductID,
			&c.ProductCardID,
			&c.CategoryID,
			&c.Name,
			&c.Price,
			&c.FeedID,
			&c.MarketplaceID,
			&c.Status,
		); err != nil {
			return nil, fmt.Errorf("scan product card row: %w", err)
		}
		cards = append(cards, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product card rows: %w", err)
	}

	if cards == nil {
		cards = []domain.ProductRecord{}
	}
	return cards, nil
}
