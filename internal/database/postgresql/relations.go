// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgresql

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Relation is either a join used by filters or an eager load run after the primary fetch.
type Relation[T any] interface {
	apply(sb sq.SelectBuilder) sq.SelectBuilder
	load(ctx context.Context, q sqlx.QueryerContext, parents []*T) error
}

type joinKind int

const (
	innerJoin joinKind = iota
	leftJoin
)

type joinRelation[T any] struct {
	kind   joinKind
	clause string
	args   []interface{}
}

// Join adds "JOIN <clause>" so filters and Query.Where can reach the joined table.
func Join[T any](clause string, args ...interface{}) Relation[T] {
	return joinRelation[T]{kind: innerJoin, clause: clause, args: args}
}

// LeftJoin adds "LEFT JOIN <clause>".
func LeftJoin[T any](clause string, args ...interface{}) Relation[T] {
	return joinRelation[T]{kind: leftJoin, clause: clause, args: args}
}

func (j joinRelation[T]) apply(sb sq.SelectBuilder) sq.SelectBuilder {
	if j.kind == leftJoin {
		return sb.LeftJoin(j.clause, j.args...)
	}
	return sb.Join(j.clause, j.args...)
}

func (joinRelation[T]) load(context.Context, sqlx.QueryerContext, []*T) error { return nil }

type hasMany[T, C any, K comparable] struct {
	table      string
	foreignKey string
	parentKey  func(*T) K
	childKey   func(*C) K
	assign     func(*T, []C)
}

// HasMany eager-loads rows of table whose foreignKey equals the parent key, in id order.
func HasMany[T, C any, K comparable](table, foreignKey string, parentKey func(*T) K, childKey func(*C) K, assign func(*T, []C)) Relation[T] {
	return hasMany[T, C, K]{table: table, foreignKey: foreignKey, parentKey: parentKey, childKey: childKey, assign: assign}
}

func (hasMany[T, C, K]) apply(sb sq.SelectBuilder) sq.SelectBuilder { return sb }

func (h hasMany[T, C, K]) load(ctx context.Context, q sqlx.QueryerContext, parents []*T) error {
	keys := distinctKeys(parents, h.parentKey)
	if len(keys) == 0 {
		return nil
	}

	query, args, err := psql.Select("*").
		From(h.table).
		Where(sq.Eq{h.foreignKey: keys}).
		OrderBy(ColumnID + " ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s preload: %w", h.table, err)
	}

	var children []C
	if err := sqlx.SelectContext(ctx, q, &children, query, args...); err != nil {
		return fmt.Errorf("preload %s: %w", h.table, err)
	}

	grouped := make(map[K][]C, len(keys))
	for i := range children {
		k := h.childKey(&children[i])
		grouped[k] = append(grouped[k], children[i])
	}
	for _, p := range parents {
		items := grouped[h.parentKey(p)]
		if items == nil {
			items = []C{}
		}
		h.assign(p, items)
	}
	return nil
}

type linkRow[K comparable] struct {
	Owner  K `db:"owner"`
	Target K `db:"target"`
}

type manyToMany[T, C any, K comparable] struct {
	table        string
	through      string
	ownerColumn  string
	targetColumn string
	parentKey    func(*T) K
	childKey     func(*C) K
	assign       func(*T, []C)
}

// ManyToMany eager-loads rows of table linked through a join table whose ownerColumn holds
// the parent key and targetColumn the child id.
func ManyToMany[T, C any, K comparable](table, through, ownerColumn, targetColumn string, parentKey func(*T) K, childKey func(*C) K, assign func(*T, []C)) Relation[T] {
	return manyToMany[T, C, K]{
		table: table, through: through, ownerColumn: ownerColumn, targetColumn: targetColumn,
		parentKey: parentKey, childKey: childKey, assign: assign,
	}
}

func (manyToMany[T, C, K]) apply(sb sq.SelectBuilder) sq.SelectBuilder { return sb }

func (m manyToMany[T, C, K]) load(ctx context.Context, q sqlx.QueryerContext, parents []*T) error {
	keys := distinctKeys(parents, m.parentKey)
	if len(keys) == 0 {
		return nil
	}

	query, args, err := psql.Select(m.ownerColumn+" AS owner", m.targetColumn+" AS target").
		From(m.through).
		Where(sq.Eq{m.ownerColumn: keys}).
		OrderBy(m.targetColumn + " ASC").
		ToSql()
	if err != nil {
		return fmt.Errorf("build %s links: %w", m.through, err)
	}
	var links []linkRow[K]
	if err := sqlx.SelectContext(ctx, q, &links, query, args...); err != nil {
		return fmt.Errorf("preload %s links: %w", m.through, err)
	}

	byID := make(map[K]C)
	if len(links) > 0 {
		targets := make([]K, 0, len(links))
		seen := make(map[K]struct{}, len(links))
		for _, l := range links {
			if _, ok := seen[l.Target]; !ok {
				seen[l.Target] = struct{}{}
				targets = append(targets, l.Target)
			}
		}
		query, args, err = psql.Select("*").From(m.table).Where(sq.Eq{ColumnID: targets}).ToSql()
		if err != nil {
			return fmt.Errorf("build %s preload: %w", m.table, err)
		}
		var children []C
		if err := sqlx.SelectContext(ctx, q, &children, query, args...); err != nil {
			return fmt.Errorf("preload %s: %w", m.table, err)
		}
		for i := range children {
			byID[m.childKey(&children[i])] = children[i]
		}
	}

	grouped := make(map[K][]C, len(keys))
	for _, l := range links {
		if child, ok := byID[l.Target]; ok {
			grouped[l.Owner] = append(grouped[l.Owner], child)
		}
	}
	for _, p := range parents {
		items := grouped[m.parentKey(p)]
		if items == nil {
			items = []C{}
		}
		m.assign(p, items)
	}
	return nil
}

func distinctKeys[T any, K comparable](parents []*T, key func(*T) K) []K {
	seen := make(map[K]struct{}, len(parents))
	keys := make([]K, 0, len(parents))
	for _, p := range parents {
		k := key(p)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}
