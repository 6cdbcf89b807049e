// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package postgresql

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/observability"
	"github.com/qolzam/kinit-dal/internal/database/postgres"
)

type user struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
}

type dept struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	IsDelete bool   `db:"is_delete"`
	Users    []user `db:"-"`
}

var (
	fixedNow  = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	deptTable = Table{
		Name:         "dept",
		Columns:      []string{"name", "parent_id", ColumnIsDelete, ColumnDeleteDatetime, ColumnCreateDatetime, ColumnUpdateDatetime},
		Associations: []Association{{Table: "dept_users", Column: "dept_id"}},
		Guards:       []Reference{{Table: "menu", Column: "dept_id", SoftDelete: true}},
	}
)

func newDeptRepo(t *testing.T) (*Repository[dept], *postgres.Client, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := postgres.NewClientFromDB(sqlx.NewDb(db, "postgres")).WithMetrics(observability.NewMetricsCollector())
	repo := NewRepository[dept](client, deptTable).WithClock(func() time.Time { return fixedNow })
	return repo, client, mock
}

func deptRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "is_delete"})
}

func exact(query string) string {
	return "^" + regexp.QuoteMeta(query) + "$"
}

func buildSelect(t *testing.T, repo *Repository[dept], q *Query[dept]) (string, []interface{}) {
	t.Helper()
	sb, err := repo.selectBuilder(q)
	require.NoError(t, err)
	sb, err = repo.ordered(sb, q.Order)
	require.NoError(t, err)
	query, args, err := sb.ToSql()
	require.NoError(t, err)
	return query, args
}

func TestSelect_LikeFilterHidesDeletedRows(t *testing.T) {
	repo := NewRepository[dept](nil, deptTable)

	query, args := buildSelect(t, repo, &Query[dept]{Filters: filter.Params{"name": filter.Like("Sal")}})

	assert.Equal(t, "SELECT dept.* FROM dept WHERE dept.is_delete = $1 AND dept.name ILIKE $2 ORDER BY dept.id ASC", query)
	assert.Equal(t, []interface{}{false, "%Sal%"}, args)
}

func TestSelect_IncludeDeletedAndBaseSkipVisibility(t *testing.T) {
	repo := NewRepository[dept](nil, deptTable)

	query, _ := buildSelect(t, repo, &Query[dept]{IncludeDeleted: true, Filters: filter.Params{"name": "Sales"}})
	assert.Equal(t, "SELECT dept.* FROM dept WHERE dept.name = $1 ORDER BY dept.id ASC", query)

	base := sq.Select("dept.id", "dept.name").From("dept")
	query, _ = buildSelect(t, repo, &Query[dept]{Base: &base})
	assert.Equal(t, "SELECT dept.id, dept.name FROM dept ORDER BY dept.id ASC", query)
}

func TestSelect_EscapesLikeWildcards(t *testing.T) {
	repo := NewRepository[dept](nil, deptTable)

	_, args := buildSelect(t, repo, &Query[dept]{Filters: filter.Params{"name": filter.Like("50%_off")}})

	assert.Equal(t, `%50\%\_off%`, args[1])
}

func TestSelect_OperatorsAndJoins(t *testing.T) {
	repo := NewRepository[dept](nil, deptTable)

	query, args := buildSelect(t, repo, &Query[dept]{
		Filters: filter.New().
			In("name", "a", "b").
			IsNull("parent_id").
			Between("create_datetime", "2024-01-01", "2024-01-31").
			Params(),
		Relations: []Relation[dept]{Join[dept]("dept_users ON dept_users.dept_id = dept.id")},
		Where:     []sq.Sqlizer{sq.Eq{"dept_users.user_id": 3}},
		Distinct:  true,
	})

	assert.Equal(t, "SELECT DISTINCT dept.* FROM dept JOIN dept_users ON dept_users.dept_id = dept.id"+
		" WHERE dept.is_delete = $1"+
		" AND dept.create_datetime BETWEEN $2 AND $3"+
		" AND dept.name IN ($4,$5)"+
		" AND dept.parent_id IS NULL"+
		" AND dept_users.user_id = $6"+
		" ORDER BY dept.id ASC", query)
	assert.Equal(t, []interface{}{false, "2024-01-01", "2024-01-31", "a", "b", 3}, args)
}

func TestOrdering(t *testing.T) {
	repo := NewRepository[dept](nil, deptTable)

	cases := []struct {
		order *interfaces.Order
		want  string
	}{
		{nil, "ORDER BY dept.id ASC"},
		{&interfaces.Order{Desc: true}, "ORDER BY dept.id DESC"},
		{&interfaces.Order{Field: "name"}, "ORDER BY dept.name ASC, dept.id ASC"},
		{&interfaces.Order{Field: "name", Desc: true}, "ORDER BY dept.name DESC, dept.id DESC"},
	}
	for _, tc := range cases {
		query, _ := buildSelect(t, repo, &Query[dept]{Order: tc.order})
		assert.Contains(t, query, tc.want)
	}

	_, err := repo.ordered(psql.Select("*").From("dept"), &interfaces.Order{Field: "salary"})
	assert.ErrorIs(t, err, interfaces.ErrInvalidFilter)
}

func TestList_UnknownFilterField(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	_, err := repo.List(context.Background(), 1, 10, &Query[dept]{Filters: filter.Params{"salary": 1}})

	require.ErrorIs(t, err, interfaces.ErrInvalidFilter)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_PagedWithCount(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectQuery(exact("SELECT count(*) FROM (SELECT dept.* FROM dept WHERE dept.is_delete = $1 ORDER BY dept.id ASC) AS filtered")).
		WithArgs(false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(exact("SELECT dept.* FROM dept WHERE dept.is_delete = $1 ORDER BY dept.id ASC LIMIT 1 OFFSET 1")).
		WithArgs(false).
		WillReturnRows(deptRows().AddRow(2, "Sales", false))

	page, err := repo.List(context.Background(), 2, 1, &Query[dept]{Count: true})

	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Sales", page.Items[0].Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_ZeroLimitReturnsEverything(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectQuery(exact("SELECT dept.* FROM dept WHERE dept.is_delete = $1 ORDER BY dept.id ASC")).
		WithArgs(false).
		WillReturnRows(deptRows().AddRow(1, "Sales", false).AddRow(2, "Ops", false))

	page, err := repo.List(context.Background(), 1, 0, &Query[dept]{Count: true})

	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Items, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestList_EmptyResultIsEmptySlice(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectQuery(exact("SELECT dept.* FROM dept WHERE dept.is_delete = $1 ORDER BY dept.id ASC LIMIT 10 OFFSET 0")).
		WillReturnRows(deptRows())

	page, err := repo.List(context.Background(), 1, -1, nil)

	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestList_PreloadsManyToMany(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	users := ManyToMany[dept, user, int64]("users", "dept_users", "dept_id", "user_id",
		func(d *dept) int64 { return d.ID },
		func(u *user) int64 { return u.ID },
		func(d *dept, us []user) { d.Users = us },
	)

	mock.ExpectQuery(exact("SELECT dept.* FROM dept WHERE dept.is_delete = $1 ORDER BY dept.id ASC")).
		WillReturnRows(deptRows().AddRow(1, "Sales", false).AddRow(2, "Ops", false))
	mock.ExpectQuery(exact("SELECT dept_id AS owner, user_id AS target FROM dept_users WHERE dept_id IN ($1,$2) ORDER BY user_id ASC")).
		WithArgs(int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"owner", "target"}).AddRow(1, 10).AddRow(1, 11))
	mock.ExpectQuery(exact("SELECT * FROM users WHERE id IN ($1,$2)")).
		WithArgs(int64(10), int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(10, "ann").AddRow(11, "bob"))

	page, err := repo.List(context.Background(), 1, 0, &Query[dept]{Relations: []Relation[dept]{users}})

	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, []user{{ID: 10, Name: "ann"}, {ID: 11, Name: "bob"}}, page.Items[0].Users)
	assert.NotNil(t, page.Items[1].Users)
	assert.Empty(t, page.Items[1].Users)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFoundAndReturnNone(t *testing.T) {
	repo, _, mock := newDeptRepo(t)
	getQuery := exact("SELECT dept.* FROM dept WHERE dept.is_delete = $1 AND dept.id = $2 ORDER BY dept.id ASC LIMIT 1")

	mock.ExpectQuery(getQuery).WithArgs(false, 9).WillReturnRows(deptRows())
	_, err := repo.Get(context.Background(), 9, nil)
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	mock.ExpectQuery(getQuery).WithArgs(false, 9).WillReturnRows(deptRows())
	item, err := repo.Get(context.Background(), 9, &Query[dept]{ReturnNone: true})
	require.NoError(t, err)
	assert.Nil(t, item)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_SessionIdentityCache(t *testing.T) {
	repo, client, mock := newDeptRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery(exact("SELECT dept.* FROM dept WHERE dept.is_delete = $1 AND dept.id = $2 ORDER BY dept.id ASC LIMIT 1")).
		WillReturnRows(deptRows().AddRow(1, "Sales", false))
	mock.ExpectCommit()

	err := client.RunInSession(context.Background(), func(ctx context.Context) error {
		first, err := repo.Get(ctx, int64(1), nil)
		require.NoError(t, err)
		second, err := repo.Get(ctx, 1, nil)
		require.NoError(t, err)
		assert.Same(t, first, second)
		return nil
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_StampsAuditColumns(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectQuery(exact("INSERT INTO dept (create_datetime,is_delete,name,update_datetime) VALUES ($1,$2,$3,$4) RETURNING *")).
		WithArgs(fixedNow, false, "Sales", fixedNow).
		WillReturnRows(deptRows().AddRow(7, "Sales", false))

	item, err := repo.Create(context.Background(), map[string]interface{}{"name": "Sales"})

	require.NoError(t, err)
	assert.Equal(t, int64(7), item.ID)
	assert.False(t, item.IsDelete)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_RejectsUnknownKeys(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	_, err := repo.Create(context.Background(), map[string]interface{}{"name": "x", "salary": 1})

	require.ErrorIs(t, err, interfaces.ErrInvalidPayload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBatch_FillsMissingColumnsWithDefault(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectQuery(exact("INSERT INTO dept (create_datetime,is_delete,name,parent_id,update_datetime)" +
		" VALUES ($1,$2,$3,$4,$5),($6,$7,$8,DEFAULT,$9) RETURNING *")).
		WithArgs(fixedNow, false, "Sales", 1, fixedNow, fixedNow, false, "Ops", fixedNow).
		WillReturnRows(deptRows().AddRow(2, "Sales", false).AddRow(3, "Ops", false))

	items, err := repo.CreateBatch(context.Background(), []map[string]interface{}{
		{"name": "Sales", "parent_id": 1},
		{"name": "Ops"},
	})

	require.NoError(t, err)
	assert.Len(t, items, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate(t *testing.T) {
	repo, _, mock := newDeptRepo(t)
	updateQuery := exact("UPDATE dept SET name = $1, update_datetime = $2 WHERE id = $3 AND is_delete = $4 RETURNING *")

	mock.ExpectQuery(updateQuery).
		WithArgs("Ops", fixedNow, 1, false).
		WillReturnRows(deptRows().AddRow(1, "Ops", false))
	item, err := repo.Update(context.Background(), 1, map[string]interface{}{"name": "Ops"})
	require.NoError(t, err)
	assert.Equal(t, "Ops", item.Name)

	mock.ExpectQuery(updateQuery).WillReturnRows(deptRows())
	_, err = repo.Update(context.Background(), 1, map[string]interface{}{"name": "Ops"})
	require.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = repo.Update(context.Background(), 1, map[string]interface{}{"id": 2})
	require.ErrorIs(t, err, interfaces.ErrInvalidPayload)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectGuard(mock sqlmock.Sqlmock, count int) {
	mock.ExpectQuery(exact("SELECT count(*) FROM menu WHERE dept_id IN ($1,$2) AND is_delete = $3")).
		WithArgs(int64(1), int64(2), false).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(count))
}

func TestDelete_SoftDeleteDetachesAssociations(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectBegin()
	expectGuard(mock, 0)
	mock.ExpectExec(exact("DELETE FROM dept_users WHERE dept_id IN ($1,$2)")).
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(exact("UPDATE dept SET is_delete = $1, delete_datetime = $2 WHERE id IN ($3,$4) AND is_delete = $5")).
		WithArgs(true, fixedNow, int64(1), int64(2), false).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), []interface{}{int64(1), int64(2)}, false)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_SoftDeleteTwiceIsNoop(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectBegin()
	expectGuard(mock, 0)
	mock.ExpectExec("DELETE FROM dept_users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("UPDATE dept SET is_delete").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := repo.Delete(context.Background(), []interface{}{int64(1), int64(2)}, false)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_BlockedByGuard(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectBegin()
	expectGuard(mock, 1)
	mock.ExpectRollback()

	err := repo.Delete(context.Background(), []interface{}{int64(1), int64(2)}, true)

	require.ErrorIs(t, err, interfaces.ErrReferenced)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_HardAndTablesWithoutSoftDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	client := postgres.NewClientFromDB(sqlx.NewDb(db, "postgres")).WithMetrics(observability.NewMetricsCollector())
	repo := NewRepository[user](client, Table{Name: "users", Columns: []string{"name"}})

	mock.ExpectBegin()
	mock.ExpectExec(exact("DELETE FROM users WHERE id IN ($1)")).
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, repo.Delete(context.Background(), []interface{}{int64(5)}, false))

	mock.ExpectQuery(exact("SELECT users.* FROM users WHERE users.id = $1 ORDER BY users.id ASC LIMIT 1")).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	_, err = repo.Get(context.Background(), int64(5), nil)
	require.ErrorIs(t, err, interfaces.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_MissingIdsAreNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	client := postgres.NewClientFromDB(sqlx.NewDb(db, "postgres")).WithMetrics(observability.NewMetricsCollector())
	repo := NewRepository[user](client, Table{Name: "users", Columns: []string{"name"}})

	mock.ExpectBegin()
	mock.ExpectExec(exact("DELETE FROM users WHERE id IN ($1,$2)")).
		WithArgs(int64(404), int64(405)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = repo.Delete(context.Background(), []interface{}{int64(404), int64(405)}, true)

	assert.NoError(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCount(t *testing.T) {
	repo, _, mock := newDeptRepo(t)

	mock.ExpectQuery(exact("SELECT count(*) FROM (SELECT dept.* FROM dept WHERE dept.is_delete = $1 AND dept.name = $2) AS filtered")).
		WithArgs(false, "Sales").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.Count(context.Background(), &Query[dept]{Filters: filter.Params{"name": "Sales"}})

	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIdOf(t *testing.T) {
	assert.Equal(t, int64(4), idOf(&dept{ID: 4}))
	assert.Nil(t, idOf((*dept)(nil)))
	assert.Nil(t, idOf(&struct{ Name string }{}))
}
