// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/reflectx"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/pagination"
	"github.com/qolzam/kinit-dal/internal/database/postgres"
	"github.com/qolzam/kinit-dal/internal/pkg/log"
)

var (
	psql   = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	mapper = reflectx.NewMapperFunc("db", strings.ToLower)
)

// Query carries the optional parts of a read. The zero value reads visible rows ordered by id.
type Query[T any] struct {
	// Filters are compiled against the table's columns.
	Filters filter.Params
	// Where adds raw predicates, typically on joined tables.
	Where []sq.Sqlizer
	// Base replaces the default "SELECT <table>.* FROM <table>" and disables the implicit
	// not-deleted predicate.
	Base *sq.SelectBuilder
	// IncludeDeleted keeps the default base but returns soft-deleted rows too.
	IncludeDeleted bool
	Relations      []Relation[T]
	Order          *interfaces.Order
	Distinct       bool
	// ReturnNone makes Get return (nil, nil) instead of a not-found error.
	ReturnNone bool
	// Count makes a paged List fill Page.Total.
	Count bool
	// ExpireAll empties the session identity cache before reading.
	ExpireAll bool
}

func (q *Query[T]) plain() bool {
	return len(q.Filters) == 0 && len(q.Where) == 0 && q.Base == nil &&
		!q.IncludeDeleted && len(q.Relations) == 0
}

// Repository is the generic CRUD contract over one table. T must map every column of the
// table through `db` tags since writes scan RETURNING *.
type Repository[T any] struct {
	client  *postgres.Client
	table   Table
	schema  *filter.Schema
	columns map[string]struct{}
	now     func() time.Time
}

func NewRepository[T any](client *postgres.Client, table Table) *Repository[T] {
	columns := make(map[string]struct{}, len(table.Columns)+1)
	columns[ColumnID] = struct{}{}
	for _, c := range table.Columns {
		columns[c] = struct{}{}
	}
	names := make([]string, 0, len(columns))
	for c := range columns {
		names = append(names, c)
	}

	return &Repository[T]{
		client:  client,
		table:   table,
		schema:  filter.NewSchema(names...),
		columns: columns,
		now:     time.Now,
	}
}

// WithClock replaces the audit timestamp source.
func (r *Repository[T]) WithClock(now func() time.Time) *Repository[T] {
	r.now = now
	return r
}

func (r *Repository[T]) Table() Table {
	return r.table
}

func (r *Repository[T]) has(column string) bool {
	_, ok := r.columns[column]
	return ok
}

func (r *Repository[T]) col(name string) string {
	return r.table.Name + "." + name
}

func (r *Repository[T]) softDelete() bool {
	return r.has(ColumnIsDelete)
}

// Get returns the single row matching id (when non-nil) and q. Inside a session a plain
// lookup by id is answered from the identity cache when possible.
func (r *Repository[T]) Get(ctx context.Context, id interface{}, q *Query[T]) (*T, error) {
	if q == nil {
		q = &Query[T]{}
	}

	session, inSession := postgres.SessionFromContext(ctx)
	if inSession && q.ExpireAll {
		session.ExpireAll()
	}
	cacheable := inSession && id != nil && q.plain()
	if cacheable {
		if cached, ok := session.Cached(r.table.Name, id); ok {
			if item, ok := cached.(*T); ok {
				return item, nil
			}
		}
	}

	sb, err := r.selectBuilder(q)
	if err != nil {
		return nil, err
	}
	if id != nil {
		sb = sb.Where(sq.Eq{r.col(ColumnID): id})
	}
	if sb, err = r.ordered(sb, q.Order); err != nil {
		return nil, err
	}
	query, args, err := sb.Limit(1).ToSql()
	if err != nil {
		return nil, interfaces.InvalidFilter("build query: %v", err)
	}

	item := new(T)
	if err := sqlx.GetContext(ctx, r.client.Executor(ctx), item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if q.ReturnNone {
				return nil, nil
			}
			return nil, interfaces.NotFound(r.table.Name, id)
		}
		log.ErrorWithContext(ctx, "get %s failed: %v", r.table.Name, err)
		return nil, postgres.MapError("get "+r.table.Name, err)
	}

	if err := r.preload(ctx, q.Relations, []*T{item}); err != nil {
		return nil, err
	}
	if cacheable {
		session.Remember(r.table.Name, id, item)
	}
	return item, nil
}

// List returns one page. A zero limit returns every matching row and sets Total to their
// number; otherwise Total is computed only when q.Count is set, over the same filtered query.
func (r *Repository[T]) List(ctx context.Context, page, limit int, q *Query[T]) (*pagination.Page[T], error) {
	if q == nil {
		q = &Query[T]{}
	}
	p := pagination.New(page, limit)

	sb, err := r.selectBuilder(q)
	if err != nil {
		return nil, err
	}
	if sb, err = r.ordered(sb, q.Order); err != nil {
		return nil, err
	}

	exec := r.client.Executor(ctx)
	var total int64
	if q.Count && !p.Unlimited() {
		if total, err = r.count(ctx, exec, sb); err != nil {
			return nil, err
		}
	}
	if !p.Unlimited() {
		sb = sb.Offset(uint64(p.Offset())).Limit(uint64(p.Limit))
	}

	query, args, err := sb.ToSql()
	if err != nil {
		return nil, interfaces.InvalidFilter("build query: %v", err)
	}
	var items []T
	if err := sqlx.SelectContext(ctx, exec, &items, query, args...); err != nil {
		log.ErrorWithContext(ctx, "list %s failed: %v", r.table.Name, err)
		return nil, postgres.MapError("list "+r.table.Name, err)
	}
	if p.Unlimited() {
		total = int64(len(items))
	}

	pointers := make([]*T, len(items))
	for i := range items {
		pointers[i] = &items[i]
	}
	if err := r.preload(ctx, q.Relations, pointers); err != nil {
		return nil, err
	}
	return pagination.NewPage(items, total), nil
}

// Count returns the size of the filtered set.
func (r *Repository[T]) Count(ctx context.Context, q *Query[T]) (int64, error) {
	if q == nil {
		q = &Query[T]{}
	}
	sb, err := r.selectBuilder(q)
	if err != nil {
		return 0, err
	}
	return r.count(ctx, r.client.Executor(ctx), sb)
}

func (r *Repository[T]) count(ctx context.Context, exec sqlx.QueryerContext, filtered sq.SelectBuilder) (int64, error) {
	query, args, err := psql.Select("count(*)").FromSelect(filtered, "filtered").ToSql()
	if err != nil {
		return 0, interfaces.InvalidFilter("build count: %v", err)
	}
	var total int64
	if err := sqlx.GetContext(ctx, exec, &total, query, args...); err != nil {
		log.ErrorWithContext(ctx, "count %s failed: %v", r.table.Name, err)
		return 0, postgres.MapError("count "+r.table.Name, err)
	}
	return total, nil
}

// Create inserts one row. Audit columns the caller did not supply are stamped.
func (r *Repository[T]) Create(ctx context.Context, payload map[string]interface{}) (*T, error) {
	values, err := r.insertValues(ctx, payload)
	if err != nil {
		return nil, err
	}

	columns := sortedKeys(values)
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		row[i] = values[c]
	}
	query, args, err := psql.Insert(r.table.Name).
		Columns(columns...).
		Values(row...).
		Suffix("RETURNING *").
		ToSql()
	if err != nil {
		return nil, interfaces.InvalidPayload("build insert: %v", err)
	}

	item := new(T)
	if err := sqlx.GetContext(ctx, r.client.Executor(ctx), item, query, args...); err != nil {
		log.ErrorWithContext(ctx, "create %s failed: %v", r.table.Name, err)
		return nil, postgres.MapError("create "+r.table.Name, err)
	}
	r.remember(ctx, item)
	return item, nil
}

// CreateBatch inserts all payloads in one statement. Columns missing from a payload take
// their database default.
func (r *Repository[T]) CreateBatch(ctx context.Context, payloads []map[string]interface{}) ([]T, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	rows := make([]map[string]interface{}, len(payloads))
	union := map[string]interface{}{}
	for i, payload := range payloads {
		values, err := r.insertValues(ctx, payload)
		if err != nil {
			return nil, err
		}
		rows[i] = values
		for c := range values {
			union[c] = nil
		}
	}

	columns := sortedKeys(union)
	ib := psql.Insert(r.table.Name).Columns(columns...)
	for _, values := range rows {
		row := make([]interface{}, len(columns))
		for i, c := range columns {
			if v, ok := values[c]; ok {
				row[i] = v
			} else {
				row[i] = sq.Expr("DEFAULT")
			}
		}
		ib = ib.Values(row...)
	}
	query, args, err := ib.Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, interfaces.InvalidPayload("build insert: %v", err)
	}

	var items []T
	if err := sqlx.SelectContext(ctx, r.client.Executor(ctx), &items, query, args...); err != nil {
		log.ErrorWithContext(ctx, "batch create %s failed: %v", r.table.Name, err)
		return nil, postgres.MapError("create "+r.table.Name, err)
	}
	for i := range items {
		r.remember(ctx, &items[i])
	}
	return items, nil
}

// Update writes payload onto the visible row id and returns the new state.
func (r *Repository[T]) Update(ctx context.Context, id interface{}, payload map[string]interface{}) (*T, error) {
	if err := r.checkColumns(payload); err != nil {
		return nil, err
	}
	if _, ok := payload[ColumnID]; ok {
		return nil, interfaces.InvalidPayload("%s: id cannot be updated", r.table.Name)
	}

	values := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		values[k] = v
	}
	r.stamp(values, ColumnUpdateDatetime, r.now())
	if actor, ok := interfaces.ActorFromContext(ctx); ok {
		r.stamp(values, ColumnUpdateUser, actor)
	}
	if len(values) == 0 {
		return r.Get(ctx, id, nil)
	}

	ub := psql.Update(r.table.Name)
	for _, c := range sortedKeys(values) {
		ub = ub.Set(c, values[c])
	}
	ub = ub.Where(sq.Eq{ColumnID: id})
	if r.softDelete() {
		ub = ub.Where(sq.Eq{ColumnIsDelete: false})
	}
	query, args, err := ub.Suffix("RETURNING *").ToSql()
	if err != nil {
		return nil, interfaces.InvalidPayload("build update: %v", err)
	}

	item := new(T)
	if err := sqlx.GetContext(ctx, r.client.Executor(ctx), item, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.NotFound(r.table.Name, id)
		}
		log.ErrorWithContext(ctx, "update %s failed: %v", r.table.Name, err)
		return nil, postgres.MapError("update "+r.table.Name, err)
	}
	r.remember(ctx, item)
	return item, nil
}

// Delete soft-deletes ids unless hard is set or the table has no is_delete column.
// Association rows are removed first and guards are checked before anything changes.
// Soft-deleting a row that is already deleted leaves it untouched. Ids with no matching row
// are skipped, so unlike the document repository Delete never returns ErrNotFound.
func (r *Repository[T]) Delete(ctx context.Context, ids []interface{}, hard bool) error {
	if len(ids) == 0 {
		return nil
	}

	return r.client.RunInSession(ctx, func(ctx context.Context) error {
		exec := r.client.Executor(ctx)
		if err := r.checkGuards(ctx, exec, ids); err != nil {
			return err
		}

		for _, a := range r.table.Associations {
			query, args, err := psql.Delete(a.Table).Where(sq.Eq{a.Column: ids}).ToSql()
			if err != nil {
				return interfaces.InvalidPayload("build detach: %v", err)
			}
			if _, err := exec.ExecContext(ctx, query, args...); err != nil {
				log.ErrorWithContext(ctx, "detach %s from %s failed: %v", a.Table, r.table.Name, err)
				return postgres.MapError("detach "+a.Table, err)
			}
		}

		var stmt sq.Sqlizer
		if hard || !r.softDelete() {
			stmt = psql.Delete(r.table.Name).Where(sq.Eq{ColumnID: ids})
		} else {
			ub := psql.Update(r.table.Name).Set(ColumnIsDelete, true)
			if r.has(ColumnDeleteDatetime) {
				ub = ub.Set(ColumnDeleteDatetime, r.now())
			}
			if actor, ok := interfaces.ActorFromContext(ctx); ok && r.has(ColumnDeleteUser) {
				ub = ub.Set(ColumnDeleteUser, actor)
			}
			stmt = ub.Where(sq.Eq{ColumnID: ids}).Where(sq.Eq{ColumnIsDelete: false})
		}
		query, args, err := stmt.ToSql()
		if err != nil {
			return interfaces.InvalidPayload("build delete: %v", err)
		}
		if _, err := exec.ExecContext(ctx, query, args...); err != nil {
			log.ErrorWithContext(ctx, "delete %s failed: %v", r.table.Name, err)
			return postgres.MapError("delete "+r.table.Name, err)
		}

		if session, ok := postgres.SessionFromContext(ctx); ok {
			for _, id := range ids {
				session.Expire(r.table.Name, id)
			}
		}
		return nil
	})
}

func (r *Repository[T]) checkGuards(ctx context.Context, exec sqlx.QueryerContext, ids []interface{}) error {
	for _, g := range r.table.Guards {
		sb := psql.Select("count(*)").From(g.Table).Where(sq.Eq{g.Column: ids})
		if g.SoftDelete {
			sb = sb.Where(sq.Eq{ColumnIsDelete: false})
		}
		query, args, err := sb.ToSql()
		if err != nil {
			return interfaces.InvalidFilter("build guard: %v", err)
		}
		var n int64
		if err := sqlx.GetContext(ctx, exec, &n, query, args...); err != nil {
			return postgres.MapError("guard "+g.Table, err)
		}
		if n > 0 {
			return interfaces.Referenced(r.table.Name, g.Table)
		}
	}
	return nil
}

func (r *Repository[T]) selectBuilder(q *Query[T]) (sq.SelectBuilder, error) {
	var sb sq.SelectBuilder
	if q.Base != nil {
		sb = q.Base.PlaceholderFormat(sq.Dollar)
	} else {
		sb = psql.Select(r.table.Name + ".*").From(r.table.Name)
	}
	if q.Distinct {
		sb = sb.Distinct()
	}
	for _, rel := range q.Relations {
		sb = rel.apply(sb)
	}
	if q.Base == nil && !q.IncludeDeleted && r.softDelete() {
		sb = sb.Where(sq.Eq{r.col(ColumnIsDelete): false})
	}

	clauses, err := filter.Compile(r.schema, q.Filters)
	if err != nil {
		return sb, err
	}
	for _, c := range clauses {
		p, err := predicate(r.col(c.Field), c)
		if err != nil {
			return sb, err
		}
		sb = sb.Where(p)
	}
	for _, w := range q.Where {
		sb = sb.Where(w)
	}
	return sb, nil
}

func (r *Repository[T]) ordered(sb sq.SelectBuilder, o *interfaces.Order) (sq.SelectBuilder, error) {
	field, desc := "", false
	if o != nil {
		desc = o.Desc
		if o.Field != "" {
			if !r.has(o.Field) {
				return sb, interfaces.InvalidFilter("unknown order field %q", o.Field)
			}
			field = r.col(o.Field)
		}
	}
	return sb.OrderBy(orderBy(r.col(ColumnID), field, desc)...), nil
}

func (r *Repository[T]) preload(ctx context.Context, relations []Relation[T], items []*T) error {
	if len(items) == 0 || len(relations) == 0 {
		return nil
	}
	exec := r.client.Executor(ctx)
	for _, rel := range relations {
		if err := rel.load(ctx, exec, items); err != nil {
			log.ErrorWithContext(ctx, "preload on %s failed: %v", r.table.Name, err)
			return postgres.MapError("preload "+r.table.Name, err)
		}
	}
	return nil
}

func (r *Repository[T]) insertValues(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
	if err := r.checkColumns(payload); err != nil {
		return nil, err
	}
	values := make(map[string]interface{}, len(payload)+5)
	for k, v := range payload {
		values[k] = v
	}
	if v, ok := values[ColumnID]; ok && v == nil {
		delete(values, ColumnID)
	}

	now := r.now()
	r.stamp(values, ColumnCreateDatetime, now)
	r.stamp(values, ColumnUpdateDatetime, now)
	r.stamp(values, ColumnIsDelete, false)
	if actor, ok := interfaces.ActorFromContext(ctx); ok {
		r.stamp(values, ColumnCreateUser, actor)
		r.stamp(values, ColumnUpdateUser, actor)
	}
	return values, nil
}

func (r *Repository[T]) stamp(values map[string]interface{}, column string, v interface{}) {
	if !r.has(column) {
		return
	}
	if _, ok := values[column]; !ok {
		values[column] = v
	}
}

func (r *Repository[T]) checkColumns(payload map[string]interface{}) error {
	var unknown []string
	for k := range payload {
		if !r.has(k) {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return interfaces.InvalidPayload("%s: unknown fields %s", r.table.Name, strings.Join(unknown, ", "))
	}
	return nil
}

func (r *Repository[T]) remember(ctx context.Context, item *T) {
	session, ok := postgres.SessionFromContext(ctx)
	if !ok {
		return
	}
	if id := idOf(item); id != nil {
		session.Remember(r.table.Name, id, item)
	}
}

func idOf(item interface{}) interface{} {
	v := reflect.ValueOf(item)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	fi, ok := mapper.TypeMap(v.Type()).Names[ColumnID]
	if !ok {
		return nil
	}
	return reflectx.FieldByIndexesReadOnly(v, fi.Index).Interface()
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
