package hierarchy

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qolzam/kinit-dal/internal/database/filter"
	"github.com/qolzam/kinit-dal/internal/database/interfaces"
	"github.com/qolzam/kinit-dal/internal/database/postgres"
	"github.com/qolzam/kinit-dal/internal/database/postgresql"
	"github.com/qolzam/kinit-dal/internal/tree"
)

type dept struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	ParentID *int64 `db:"parent_id"`
	Order    int    `db:"order"`
}

func newService(t *testing.T) (*Service[dept, int64], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	client := postgres.NewClientFromDB(sqlx.NewDb(db, "postgres"))
	repo := postgresql.NewRepository[dept](client, postgresql.Table{
		Name:    "dept",
		Columns: []string{"name", "parent_id", "order", "disabled", "is_delete"},
	})
	accessor := tree.Accessor[dept, int64]{
		ID:     func(d dept) int64 { return d.ID },
		Parent: func(d dept) *int64 { return d.ParentID },
		Order:  func(d dept) int { return d.Order },
	}
	return NewService(repo, accessor, func(d dept) string { return d.Name }), mock
}

func rows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "parent_id", "order"}).
		AddRow(1, "HQ", nil, 1).
		AddRow(2, "Ops", 1, 2).
		AddRow(3, "Sales", 1, 1).
		AddRow(4, "Inside sales", 3, 1)
}

func TestOptions_FetchesEverythingOnce(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT dept.* FROM dept WHERE dept.is_delete = $1 AND dept.disabled = $2 ORDER BY dept.id ASC")).
		WithArgs(false, false).
		WillReturnRows(rows())

	options, err := svc.Options(context.Background(), filter.Params{"disabled": false})

	require.NoError(t, err)
	require.Len(t, options, 1)
	assert.Equal(t, "HQ", options[0].Label)
	require.Len(t, options[0].Children, 2)
	assert.Equal(t, int64(3), options[0].Children[0].Value)
	assert.Equal(t, int64(2), options[0].Children[1].Value)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTree(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT dept.* FROM dept WHERE dept.is_delete = $1 ORDER BY dept.id ASC")).
		WillReturnRows(rows())

	roots, err := svc.Tree(context.Background(), nil)

	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Inside sales", roots[0].Children[0].Children[0].Record.Name)
}

func TestDescendantIDs(t *testing.T) {
	svc, mock := newService(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT dept.* FROM dept WHERE dept.is_delete = $1 ORDER BY dept.id ASC")).
		WillReturnRows(rows())

	ids, err := svc.DescendantIDs(context.Background(), 1)

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 2, 4}, ids)

	ids, err = svc.DescendantIDs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestTree_PropagatesFilterErrors(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Tree(context.Background(), filter.Params{"salary": 1})

	require.ErrorIs(t, err, interfaces.ErrInvalidFilter)
}
