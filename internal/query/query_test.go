package query

import (
	"context"
	"testing"

	"relgraph/internal/dbexec"
	"relgraph/internal/schema"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func musicRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry(nil)
	require.NoError(t, registry.Register(&schema.EntityType{
		Name:       "artist",
		Columns:    []schema.Column{{Name: "id"}, {Name: "name"}},
		PrimaryKey: []string{"id"},
		Associations: []*schema.Association{
			{Name: "albums", Kind: schema.OneToMany},
		},
	}))
	require.NoError(t, registry.Register(&schema.EntityType{
		Name:       "album",
		Columns:    []schema.Column{{Name: "id"}, {Name: "name"}, {Name: "artist_id"}},
		PrimaryKey: []string{"id"},
		Associations: []*schema.Association{
			{Name: "artist", Kind: schema.ManyToOne},
		},
	}))
	require.NoError(t, registry.Finalize())
	return registry
}

func newQuery(t *testing.T, name string) (*Query, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := musicRegistry(t)
	e, err := registry.Entity(name)
	require.NoError(t, err)
	return New(registry, e, dbexec.NewStandardExecutor(db)), mock
}

func TestSQLBaseSelect(t *testing.T) {
	q, _ := newQuery(t, "artist")
	sqlStr, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT `artists`.`id`, `artists`.`name` FROM `artists`", sqlStr)
	assert.Empty(t, args)
}

func TestWhereOrderLimitCompose(t *testing.T) {
	q, _ := newQuery(t, "artist")
	refined := q.Where("`artists`.`name` = ?", "YMO").OrderBy("`artists`.`id` DESC").Limit(5)

	sqlStr, args, err := refined.SQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `artists`.`id`, `artists`.`name` FROM `artists` "+
			"WHERE `artists`.`name` = ? ORDER BY `artists`.`id` DESC LIMIT 5",
		sqlStr)
	assert.Equal(t, []any{"YMO"}, args)

	// The original query is untouched by the refinements.
	base, _, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT `artists`.`id`, `artists`.`name` FROM `artists`", base)
}

func TestWithEagerDoesNotChangeSQL(t *testing.T) {
	q, _ := newQuery(t, "artist")
	eq, err := q.WithEager("albums")
	require.NoError(t, err)

	sqlStr, _, err := eq.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT `artists`.`id`, `artists`.`name` FROM `artists`", sqlStr)
}

func TestWithEagerValidatesUpfront(t *testing.T) {
	q, _ := newQuery(t, "artist")

	_, err := q.WithEager("labels")
	assert.ErrorIs(t, err, schema.ErrUnknownAssociation)

	_, err = q.WithEager(42)
	assert.ErrorIs(t, err, schema.ErrMalformedEagerArgument)
}

func TestWithEagerMerges(t *testing.T) {
	q, _ := newQuery(t, "artist")
	first, err := q.WithEager("albums")
	require.NoError(t, err)
	second, err := first.WithEager(map[string]any{"albums": "artist"})
	require.NoError(t, err)

	assert.Equal(t, []string{"albums"}, second.eagerSpec.Names())
	assert.Equal(t, []string{"artist"}, second.eagerSpec.Branch("albums").Names())
	// The intermediate query keeps its shallower spec.
	assert.True(t, first.eagerSpec.Branch("albums").IsEmpty())
}

func TestWithEagerGraphWeavesJoins(t *testing.T) {
	q, _ := newQuery(t, "artist")
	gq, err := q.WithEagerGraph("albums")
	require.NoError(t, err)

	sqlStr, _, err := gq.SQL()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `artists`.`id`, `artists`.`name`, `albums`.`id`, `albums`.`name`, `albums`.`artist_id` "+
			"FROM `artists` "+
			"LEFT JOIN `albums` AS `albums` ON `albums`.`artist_id` = `artists`.`id`",
		sqlStr)

	// The source query keeps its plain select.
	base, _, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT `artists`.`id`, `artists`.`name` FROM `artists`", base)
}

func TestUnboundQuery(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	q := New(musicRegistry(t), nil, dbexec.NewStandardExecutor(db))

	_, err = q.Entity()
	assert.ErrorIs(t, err, schema.ErrNoEntityBound)
	_, err = q.WithEager("albums")
	assert.ErrorIs(t, err, schema.ErrNoEntityBound)
	_, err = q.WithEagerGraph("albums")
	assert.ErrorIs(t, err, schema.ErrNoEntityBound)
	_, err = q.All(context.Background())
	assert.ErrorIs(t, err, schema.ErrNoEntityBound)
}

func TestAllPlain(t *testing.T) {
	q, mock := newQuery(t, "artist")

	mock.ExpectQuery("SELECT `artists`.`id`, `artists`.`name` FROM `artists`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "YMO").
			AddRow(2, "Can"))

	records, err := q.All(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, records, 2)
	assert.Equal(t, "YMO", records[0].Get("name"))
	assert.False(t, records[0].AssociationLoaded("albums"))
}

func TestAllWithEager(t *testing.T) {
	q, mock := newQuery(t, "artist")
	eq, err := q.WithEager("albums")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT `artists`.`id`, `artists`.`name` FROM `artists`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(1, "YMO").
			AddRow(2, "Can"))
	mock.ExpectQuery("SELECT `id`, `name`, `artist_id` FROM `albums` WHERE `artist_id` IN (?,?)").
		WithArgs(1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "artist_id"}).
			AddRow(10, "BGM", 1).
			AddRow(20, "Ege Bamyasi", 2))

	records, err := eq.All(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, records, 2)
	albums, loaded := records[0].Many("albums")
	require.True(t, loaded)
	require.Len(t, albums, 1)
	assert.Equal(t, "BGM", albums[0].Get("name"))
}

func TestAllWithEagerGraph(t *testing.T) {
	q, mock := newQuery(t, "artist")
	gq, err := q.WithEagerGraph("albums")
	require.NoError(t, err)

	mock.ExpectQuery(
		"SELECT `artists`.`id`, `artists`.`name`, `albums`.`id`, `albums`.`name`, `albums`.`artist_id` "+
			"FROM `artists` "+
			"LEFT JOIN `albums` AS `albums` ON `albums`.`artist_id` = `artists`.`id`").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "id", "name", "artist_id"}).
			AddRow(1, "YMO", 10, "BGM", 1).
			AddRow(1, "YMO", 11, "Technodelic", 1).
			AddRow(2, "Cluster", nil, nil, nil))

	records, err := gq.All(context.Background())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	require.Len(t, records, 2)
	albums, loaded := records[0].Many("albums")
	require.True(t, loaded)
	assert.Len(t, albums, 2)

	empty, loaded := records[1].Many("albums")
	assert.True(t, loaded)
	assert.Empty(t, empty)
}

func TestAllQueryError(t *testing.T) {
	q, mock := newQuery(t, "artist")

	mock.ExpectQuery("SELECT `artists`.`id`, `artists`.`name` FROM `artists`").
		WillReturnError(assert.AnError)

	_, err := q.All(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}
