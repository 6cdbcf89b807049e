// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgresql

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// predicate translates one compiled clause for a qualified column. between compares exact
// timestamps; date and month compare the formatted calendar value.
func predicate(column string, c filter.Clause) (sq.Sqlizer, error) {
	switch c.Op {
	case filter.OpEqual:
		return sq.Eq{column: c.Value}, nil
	case filter.OpLike:
		return sq.ILike{column: "%" + likeEscaper.Replace(fmt.Sprint(c.Value)) + "%"}, nil
	case filter.OpIn:
		return sq.Eq{column: c.Values()}, nil
	case filter.OpBetween:
		v := c.Values()
		return sq.Expr(column+" BETWEEN ? AND ?", v[0], v[1]), nil
	case filter.OpDate:
		return sq.Expr("to_char("+column+", 'YYYY-MM-DD') = ?", c.Value), nil
	case filter.OpMonth:
		return sq.Expr("to_char("+column+", 'YYYY-MM') = ?", c.Value), nil
	case filter.OpNotEqual:
		return sq.NotEq{column: c.Value}, nil
	case filter.OpGreater:
		return sq.Gt{column: c.Value}, nil
	case filter.OpGreaterOrEqual:
		return sq.GtOrEq{column: c.Value}, nil
	case filter.OpLessOrEqual:
		return sq.LtOrEq{column: c.Value}, nil
	case filter.OpIsNull:
		return sq.Eq{column: nil}, nil
	case filter.OpNotNull:
		return sq.NotEq{column: nil}, nil
	}
	return nil, interfaces.InvalidFilter("field %q: unsupported operator %q", c.Field, c.Op)
}

// orderBy renders the ordering rules: an explicit field sorts by field then id in the same
// direction, a bare descending request sorts by id descending, anything else by id ascending.
func orderBy(idColumn string, fieldColumn string, desc bool) []string {
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	if fieldColumn == "" || fieldColumn == idColumn {
		return []string{idColumn + " " + dir}
	}
	return []string{fieldColumn + " " + dir, idColumn + " " + dir}
}
