package orm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/pkg/query"
	"github.com/mesh-intelligence/larder/pkg/types"
)

func testRegistry() *types.Registry {
	return types.NewRegistry().
		MustRegister(types.EntityType{Name: "group", Table: "groups"}).
		MustRegister(types.EntityType{
			Name:  "user",
			Table: "users",
			Constructor: func(e *types.Entity) {
				e.Set("role", "member")
			},
		})
}

func TestNewRepositoryUnknownType(t *testing.T) {
	_, err := NewRepository(&fakeConn{}, testRegistry(), "nope")
	assert.ErrorIs(t, err, types.ErrUnknownEntityType)
}

func TestRepositoryReplaysInCallOrder(t *testing.T) {
	conn := &fakeConn{}
	repo, err := NewRepository(conn, testRegistry(), "group")
	require.NoError(t, err)

	repo.Where("a", "=", 1).OrWhere("b", "=", 2).OrderBy("c", "")
	_, err = repo.FindAll(context.Background())
	require.NoError(t, err)

	require.Len(t, conn.selects, 1)
	assert.Equal(t, "groups", conn.selects[0].table)
	assert.Equal(t, []string{"where[a = 1]", "or_where[b = 2]", "order_by[c ]"}, conn.selects[0].calls)
}

func TestRepositoryAliases(t *testing.T) {
	repo, err := NewRepository(&fakeConn{}, testRegistry(), "group")
	require.NoError(t, err)

	repo.WhereOpen().Where("a", "=", 1).WhereClose().
		GroupBy("a").HavingOpen().Having("n", ">", 1).HavingClose().
		Cached(time.Minute).Join("x", "left").On("a", "=", "x.a").Using("a").
		Param(":p", 1).Distinct(true).Limit(1).Offset(2)

	want := []query.Call{
		query.AndWhereOpen{},
		query.Where{Column: "a", Op: "=", Value: 1},
		query.AndWhereClose{},
		query.GroupBy{Columns: []string{"a"}},
		query.AndHavingOpen{},
		query.AndHaving{Column: "n", Op: ">", Value: 1},
		query.AndHavingClose{},
		query.Cached{Lifetime: time.Minute},
		query.Join{Table: "x", Kind: "left"},
		query.On{Left: "a", Op: "=", Right: "x.a"},
		query.Using{Columns: []string{"a"}},
		query.Param{Key: ":p", Value: 1},
		query.Distinct{Enabled: true},
		query.Limit{N: 1},
		query.Offset{N: 2},
	}
	assert.Equal(t, want, repo.Pending())
}

func TestFindMissReturnsFreshEntity(t *testing.T) {
	repo, err := NewRepository(&fakeConn{}, testRegistry(), "user")
	require.NoError(t, err)

	e, err := repo.Where("id", "=", 99).Find(context.Background())
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, types.StateNotExists, e.State())
	assert.Equal(t, "users", e.TableName())
	assert.Equal(t, "member", e.Value("role"), "constructor defaults apply")

	e.Set("name", "ada")
	assert.Equal(t, types.StateCreated, e.State())
}

func TestFindHydratesLoadedEntity(t *testing.T) {
	conn := &fakeConn{rows: []query.Row{
		{Columns: []string{"id", "name"}, Values: []any{int64(1), "admins"}},
		{Columns: []string{"id", "name"}, Values: []any{int64(2), "users"}},
	}}
	repo, err := NewRepository(conn, testRegistry(), "group")
	require.NoError(t, err)

	e, err := repo.Find(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StateLoaded, e.State())
	assert.Equal(t, "admins", e.Value("name"))
	assert.Empty(t, e.ChangedFields())

	all, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(2), all[1].Value("id"))
}

func TestFindAllEmpty(t *testing.T) {
	repo, err := NewRepository(&fakeConn{}, testRegistry(), "group")
	require.NoError(t, err)

	all, err := repo.FindAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, all)
	assert.Empty(t, all)
}

func TestCountAllPassesColumnsToCount(t *testing.T) {
	conn := &fakeConn{count: 7}
	repo, err := NewRepository(conn, testRegistry(), "group")
	require.NoError(t, err)

	n, err := repo.Columns("name").Where("a", "=", 1).CountAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, []string{"name"}, conn.selects[0].columns)
	assert.Equal(t, []string{"where[a = 1]", "count[id records_found]"}, conn.selects[0].calls)
}

func TestPendingCallsAreNotReset(t *testing.T) {
	conn := &fakeConn{}
	repo, err := NewRepository(conn, testRegistry(), "group")
	require.NoError(t, err)

	repo.Where("a", "=", 1)
	_, err = repo.FindAll(context.Background())
	require.NoError(t, err)
	_, err = repo.CountAll(context.Background())
	require.NoError(t, err)

	require.Len(t, conn.selects, 2)
	assert.Equal(t, "where[a = 1]", conn.selects[1].calls[0])
}

func TestGetQueuesIDCondition(t *testing.T) {
	conn := &fakeConn{}
	repo, err := NewRepository(conn, testRegistry(), "group")
	require.NoError(t, err)

	_, err = repo.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"where[id = 5]"}, conn.selects[0].calls)
}
