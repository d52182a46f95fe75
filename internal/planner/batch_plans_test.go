package planner

import (
	"testing"

	"relgraph/internal/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var artistType = &schema.EntityType{
	Name:       "artist",
	Table:      "artists",
	Columns:    []schema.Column{{Name: "id"}, {Name: "name"}},
	PrimaryKey: []string{"id"},
}

var albumType = &schema.EntityType{
	Name:       "album",
	Table:      "albums",
	Columns:    []schema.Column{{Name: "id"}, {Name: "name"}, {Name: "artist_id"}},
	PrimaryKey: []string{"id"},
}

var genreType = &schema.EntityType{
	Name:       "genre",
	Table:      "genres",
	Columns:    []schema.Column{{Name: "id"}, {Name: "name"}},
	PrimaryKey: []string{"id"},
}

func TestPlanManyToOneBatch(t *testing.T) {
	planned, err := PlanManyToOneBatch(artistType, []any{10, 20}, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `id`, `name` FROM `artists` WHERE `id` IN (?,?)",
		planned.SQL,
	)
	assert.Equal(t, []any{10, 20}, planned.Args)
}

func TestPlanManyToOneBatchEmptyKeys(t *testing.T) {
	planned, err := PlanManyToOneBatch(artistType, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, planned.SQL)
}

func TestPlanManyToOneBatchNoPrimaryKey(t *testing.T) {
	noPK := &schema.EntityType{Name: "tag", Table: "tags", Columns: []schema.Column{{Name: "name"}}}
	_, err := PlanManyToOneBatch(noPK, []any{1}, nil)
	assert.ErrorIs(t, err, ErrNoPrimaryKey)
}

func TestPlanOneToManyBatch(t *testing.T) {
	planned, err := PlanOneToManyBatch(albumType, "artist_id", []any{1, 2, 3}, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `id`, `name`, `artist_id` FROM `albums` WHERE `artist_id` IN (?,?,?)",
		planned.SQL,
	)
	assert.Equal(t, []any{1, 2, 3}, planned.Args)
}

func TestPlanOneToManyBatchWithOrder(t *testing.T) {
	order := []schema.Order{{Column: "name"}, {Column: "id", Desc: true}}
	planned, err := PlanOneToManyBatch(albumType, "artist_id", []any{1}, order)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `id`, `name`, `artist_id` FROM `albums` WHERE `artist_id` IN (?) ORDER BY `name`, `id` DESC",
		planned.SQL,
	)
}

func TestPlanOneToManyBatchRequiresForeignKey(t *testing.T) {
	_, err := PlanOneToManyBatch(albumType, "", []any{1}, nil)
	assert.Error(t, err)
}

func TestPlanManyToManyBatch(t *testing.T) {
	planned, err := PlanManyToManyBatch(genreType, "album_genres", "album_id", "genre_id", []any{10, 11}, nil)
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT `genres`.`id`, `genres`.`name`, `album_genres`.`album_id` AS `__owner_key` "+
			"FROM `genres` INNER JOIN `album_genres` ON `album_genres`.`genre_id` = `genres`.`id` "+
			"WHERE `album_genres`.`album_id` IN (?,?)",
		planned.SQL,
	)
	assert.Equal(t, []any{10, 11}, planned.Args)
}

func TestPlanManyToManyBatchWithOrder(t *testing.T) {
	order := []schema.Order{{Column: "name"}}
	planned, err := PlanManyToManyBatch(genreType, "album_genres", "album_id", "genre_id", []any{10}, order)
	require.NoError(t, err)
	assert.Contains(t, planned.SQL, "ORDER BY `genres`.`name`")
}

func TestPlanManyToManyBatchRequiresLinkKeys(t *testing.T) {
	_, err := PlanManyToManyBatch(genreType, "", "album_id", "genre_id", []any{10}, nil)
	assert.Error(t, err)
	_, err = PlanManyToManyBatch(genreType, "album_genres", "", "genre_id", []any{10}, nil)
	assert.Error(t, err)
}
