// Package hierarchy serves parent-referencing tables (departments, menus) as trees.
package hierarchy

import (
	"cmp"
	"context"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/postgresql"
	"github.com/qolzam/kinit-dal/internal/tree"
)

// Service reads the full visible set of a table in one query and assembles it in memory.
type Service[T any, K cmp.Ordered] struct {
	repo     *postgresql.Repository[T]
	accessor tree.Accessor[T, K]
	label    func(T) string
}

func NewService[T any, K cmp.Ordered](repo *postgresql.Repository[T], accessor tree.Accessor[T, K], label func(T) string) *Service[T, K] {
	return &Service[T, K]{repo: repo, accessor: accessor, label: label}
}

func (s *Service[T, K]) all(ctx context.Context, params filter.Params) ([]T, error) {
	page, err := s.repo.List(ctx, 1, 0, &postgresql.Query[T]{Filters: params})
	if err != nil {
		return nil, err
	}
	return page.Items, nil
}

// Tree returns the full node tree of the rows matching params.
func (s *Service[T, K]) Tree(ctx context.Context, params filter.Params) ([]*tree.Node[T], error) {
	records, err := s.all(ctx, params)
	if err != nil {
		return nil, err
	}
	return tree.Build(records, s.accessor), nil
}

// Options returns the selection tree of the rows matching params.
func (s *Service[T, K]) Options(ctx context.Context, params filter.Params) ([]*tree.Option[K], error) {
	records, err := s.all(ctx, params)
	if err != nil {
		return nil, err
	}
	return tree.BuildOptions(records, s.accessor, s.label), nil
}

// DescendantIDs returns roots and the ids of every visible row below them, typically to
// expand a department filter to its sub-departments.
func (s *Service[T, K]) DescendantIDs(ctx context.Context, roots ...K) ([]K, error) {
	if len(roots) == 0 {
		return []K{}, nil
	}
	records, err := s.all(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tree.Descendants(records, s.accessor, roots...), nil
}
