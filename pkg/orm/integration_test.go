package orm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/larder/internal/filter"
	"github.com/mesh-intelligence/larder/internal/sqldb"
	"github.com/mesh-intelligence/larder/internal/validation"
	"github.com/mesh-intelligence/larder/pkg/types"
)

const groupsDDL = `CREATE TABLE groups (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    members INTEGER
);`

func openSQLite(t *testing.T) *sqldb.DB {
	t.Helper()
	db, err := sqldb.Open(types.Config{Backend: types.BackendSQLite, DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.ExecScript(context.Background(), groupsDDL))
	return db
}

func sqliteRegistry() *types.Registry {
	return types.NewRegistry().MustRegister(types.EntityType{
		Name:  "group",
		Table: "groups",
		Fields: []types.FieldSpec{
			{Name: "id", Kind: types.KindInt},
			{Name: "name", Kind: types.KindString},
			{Name: "members", Kind: types.KindInt},
		},
		Rules: map[string][]types.RuleSpec{
			"name": {{Name: "not_empty"}, {Name: "min_length", Args: []any{types.PlaceholderValue, 4}}},
		},
		Filters: map[string][]types.FilterSpec{
			types.WildcardField: {{Name: "trim"}},
		},
	})
}

func sqliteManager(t *testing.T, db *sqldb.DB, reg *types.Registry) *Manager {
	t.Helper()
	m, err := NewManager(db, reg, WithValidator(validation.New()), WithFilters(filter.New()))
	require.NoError(t, err)
	return m
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := sqliteRegistry()

	g, err := reg.Create("group")
	require.NoError(t, err)
	g.Set("name", " admins ").Set("members", 3)

	ok, err := sqliteManager(t, db, reg).Persist(g).Flush(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	id, _ := g.ID()
	assert.Equal(t, int64(1), id)

	repo, err := NewRepository(db, reg, "group")
	require.NoError(t, err)
	found, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateLoaded, found.State())
	assert.Equal(t, "admins", found.Value("name"))

	found.Set("members", 5)
	_, err = sqliteManager(t, db, reg).Persist(found).Flush(ctx)
	require.NoError(t, err)

	repo, err = NewRepository(db, reg, "group")
	require.NoError(t, err)
	n, err := repo.Where("members", ">=", 5).CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = sqliteManager(t, db, reg).Remove(found).Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.StateNotExists, found.State())

	repo, err = NewRepository(db, reg, "group")
	require.NoError(t, err)
	gone, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.StateNotExists, gone.State())
}

func TestSQLiteTransactionalRollback(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := sqliteRegistry()

	var batch []*types.Entity
	for _, name := range []string{"alpha", "bravo", "no"} {
		g, err := reg.Create("group")
		require.NoError(t, err)
		batch = append(batch, g.Set("name", name))
	}

	ok, err := sqliteManager(t, db, reg).Transactional().Persist(batch...).Flush(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, types.ErrEntityValidation)
	assert.False(t, db.InTransaction())

	repo, err := NewRepository(db, reg, "group")
	require.NoError(t, err)
	n, err := repo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "inserts before the failing entity are rolled back")
	assert.Equal(t, types.StateCreated, batch[0].State())
	assert.False(t, batch[0].Has(types.IDField))

	batch[2].Set("name", "charlie")
	m := sqliteManager(t, db, reg).Transactional().Persist(batch...)
	ok, err = m.Flush(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	n, err = repo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestSQLiteFindAllMatchesCountAll(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := sqliteRegistry()

	m := sqliteManager(t, db, reg)
	for i, name := range []string{"alpha", "bravo", "charlie", "delta"} {
		g, err := reg.Create("group")
		require.NoError(t, err)
		m.Persist(g.Set("name", name).Set("members", i))
	}
	_, err := m.Transactional().Flush(ctx)
	require.NoError(t, err)

	repo, err := NewRepository(db, reg, "group")
	require.NoError(t, err)
	repo.Where("members", ">", 0).AndWhereOpen().
		Where("name", "LIKE", "%a%").OrWhere("name", "=", "delta").
		AndWhereClose().OrderBy("name", "desc")

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	n, err := repo.CountAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(len(all)), n)
	require.Len(t, all, 3)
	assert.Equal(t, "delta", all[0].Value("name"))
}

func TestSQLiteGroupedCountMatchesFindAll(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := sqliteRegistry()

	m := sqliteManager(t, db, reg)
	for _, name := range []string{"alpha", "alpha", "bravo", "charlie", "delta"} {
		g, err := reg.Create("group")
		require.NoError(t, err)
		m.Persist(g.Set("name", name))
	}
	_, err := m.Flush(ctx)
	require.NoError(t, err)

	tests := []struct {
		name  string
		build func(r *Repository)
		want  int
	}{
		{"group by", func(r *Repository) { r.Columns("name").GroupBy("name") }, 4},
		{"group by without columns", func(r *Repository) { r.GroupBy("name") }, 4},
		{"distinct", func(r *Repository) { r.Columns("name").Distinct(true) }, 4},
		{"having", func(r *Repository) { r.Columns("name").GroupBy("name").Having("COUNT(id)", ">", 1) }, 1},
		{"paging ignored", func(r *Repository) { r.Columns("name").GroupBy("name").OrderBy("name", "asc").Limit(2) }, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := NewRepository(db, reg, "group")
			require.NoError(t, err)
			tt.build(repo)

			n, err := repo.CountAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(tt.want), n)

			if tt.name != "paging ignored" {
				all, err := repo.FindAll(ctx)
				require.NoError(t, err)
				assert.Len(t, all, tt.want)
			}
		})
	}
}

// Two managers that load the same row and write it back do not detect each
// other: the later flush silently overwrites the earlier one.
func TestSQLiteConcurrentManagersLoseUpdates(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	reg := sqliteRegistry()

	g, err := reg.Create("group")
	require.NoError(t, err)
	_, err = sqliteManager(t, db, reg).Persist(g.Set("name", "shared").Set("members", 10)).Flush(ctx)
	require.NoError(t, err)
	id, _ := g.ID()

	load := func() *types.Entity {
		repo, err := NewRepository(db, reg, "group")
		require.NoError(t, err)
		e, err := repo.Get(ctx, id)
		require.NoError(t, err)
		return e
	}
	first, second := load(), load()

	members := func(e *types.Entity) int64 { return e.Value("members").(int64) }
	first.Set("members", members(first)+1)
	second.Set("members", members(second)+1)

	_, err = sqliteManager(t, db, reg).Persist(first).Flush(ctx)
	require.NoError(t, err)
	_, err = sqliteManager(t, db, reg).Persist(second).Flush(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(11), members(load()), "one increment is lost")
}
