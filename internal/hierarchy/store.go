package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/showcase-search/internal/domain"
	"github.com/utafrali/showcase-search/pkg/database"
	apperrors "github.com/utafrali/showcase-search/pkg/errors"
)

const nodeColumns = `id, parent_id, level, name`

// Store reads the category tree from Postgres. Nodes and branches are cached
// in bounded LRUs since the tree changes rarely.
type Store struct {
	db       database.DBTX
	nodes    *lru.Cache[int64, domain.Node]
	branches *lru.Cache[int64, []domain.Node]
}

// NewStore creates a Store caching up to cacheSize nodes and branches.
func NewStore(db database.DBTX, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	nodes, err := lru.New[int64, domain.Node](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create node cache: %w", err)
	}
	branches, err := lru.New[int64, []domain.Node](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create branch cache: %w", err)
	}
	return &Store{db: db, nodes: nodes, branches: branches}, nil
}

// GetNode returns the category node with the given ID.
func (s *Store) GetNode(ctx context.Context, categoryID int64) (n domain.Node, err error) {
	if cached, ok := s.nodes.Get(categoryID); ok {
		return cached, nil
	}

	query := `SELECT ` + nodeColumns + ` FROM categories WHERE id = $1`
	ctx, end := database.TraceQuery(ctx, "GetNode", query)
	defer func() { end(err) }()

	err = s.db.QueryRow(ctx, query, categoryID).Scan(&n.ID, &n.ParentID, &n.Level, &n.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Node{}, apperrors.NotFound("category", strconv.FormatInt(categoryID, 10))
		}
		return domain.Node{}, fmt.Errorf("get category node: %w", err)
	}

	s.nodes.Add(categoryID, n)
	return n, nil
}

// GetSiblingBranch returns the other children of node's parent together
// with node's own direct children. Root nodes use the other roots.
func (s *Store) GetSiblingBranch(ctx context.Context, node domain.Node) (branch []domain.Node, err error) {
	if cached, ok := s.branches.Get(node.ID); ok {
		return append([]domain.Node(nil), cached...), nil
	}

	query := `SELECT ` + nodeColumns + `
		FROM categories
		WHERE (parent_id IS NOT DISTINCT FROM $1 AND id <> $2) OR parent_id = $2
		ORDER BY level, id`
	ctx, end := database.TraceQuery(ctx, "GetSiblingBranch", query)
	defer func() { end(err) }()

	rows, err := s.db.Query(ctx, query, node.ParentID, node.ID)
	if err != nil {
		return nil, fmt.Errorf("query sibling branch: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n domain.Node
		if err := rows.Scan(&n.ID, &n.ParentID, &n.Level, &n.Name); err != nil {
			return nil, fmt.Errorf("scan sibling node: %w", err)
		}
		branch = append(branch, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sibling nodes: %w", err)
	}

	s.branches.Add(node.ID, branch)
	return append([]domain.Node(nil), branch...), nil
}

// Purge drops every cached node and branch.
func (s *Store) Purge() {
	s.nodes.Purge()
	s.branches.Purge()
}
