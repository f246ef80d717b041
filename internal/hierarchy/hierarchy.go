// Package hierarchy reorders search results around a resolved category:
// cards of that category first, then cards from its sibling branch, then
// everything else.
package hierarchy

import (
	"context"
	"fmt"

	"github.com/utafrali/showcase-search/internal/domain"
)

// Source looks up category nodes and the branch next to a node.
type Source interface {
	GetNode(ctx context.Context, categoryID int64) (domain.Node, error)
	GetSiblingBranch(ctx context.Context, node domain.Node) ([]domain.Node, error)
}

// Partition splits records into three stable buckets (exact category,
// sibling branch, rest) in one pass and returns their concatenation.
func Partition(records []domain.ProductRecord, exactID int64, siblings map[int64]struct{}) []domain.ProductRecord {
	exact := make([]domain.ProductRecord, 0, len(records))
	branch := make([]domain.ProductRecord, 0, len(records))
	rest := make([]domain.ProductRecord, 0, len(records))

	for _, rec := range records {
		switch {
		case rec.CategoryID == exactID:
			exact = append(exact, rec)
		case contains(siblings, rec.CategoryID):
			branch = append(branch, rec)
		default:
			rest = append(rest, rec)
		}
	}

	out := append(exact, branch...)
	return append(out, rest...)
}

func contains(set map[int64]struct{}, id int64) bool {
	_, ok := set[id]
	return ok
}

// Reorderer applies Partition using a Source for the sibling set.
type Reorderer struct {
	source Source
}

// NewReorderer creates a Reorderer.
func NewReorderer(source Source) *Reorderer {
	return &Reorderer{source: source}
}

// ReorderByHierarchy performs one node lookup and one branch lookup, then
// partitions records. An empty input is returned without lookups.
func (r *Reorderer) ReorderByHierarchy(ctx context.Context, records []domain.ProductRecord, exactID int64) ([]domain.ProductRecord, error) {
	if len(records) == 0 {
		return records, nil
	}

	node, err := r.source.GetNode(ctx, exactID)
	if err != nil {
		return nil, fmt.Errorf("get hierarchy node %d: %w", exactID, err)
	}

	branch, err := r.source.GetSiblingBranch(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("get sibling branch of %d: %w", exactID, err)
	}

	siblings := make(map[int64]struct{}, len(branch))
	for _, n := range branch {
		siblings[n.ID] = struct{}{}
	}

	return Partition(records, exactID, siblings), nil
}
