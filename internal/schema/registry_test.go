package schema

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func musicRegistry(t *testing.T) *Registry {
	t.Helper()
	registry := NewRegistry(nil)

	require.NoError(t, registry.Register(&EntityType{
		Name:       "artist",
		Columns:    []Column{{Name: "id"}, {Name: "name"}},
		PrimaryKey: []string{"id"},
		Associations: []*Association{
			{Name: "albums", Kind: OneToMany},
		},
	}))
	require.NoError(t, registry.Register(&EntityType{
		Name:       "album",
		Columns:    []Column{{Name: "id"}, {Name: "name"}, {Name: "artist_id"}},
		PrimaryKey: []string{"id"},
		Associations: []*Association{
			{Name: "artist", Kind: ManyToOne},
			{Name: "genres", Kind: ManyToMany},
		},
	}))
	require.NoError(t, registry.Register(&EntityType{
		Name:       "genre",
		Columns:    []Column{{Name: "id"}, {Name: "name"}},
		PrimaryKey: []string{"id"},
	}))
	require.NoError(t, registry.Finalize())
	return registry
}

func TestRegisterDefaultsTableName(t *testing.T) {
	registry := NewRegistry(nil)
	entity := &EntityType{Name: "artist", PrimaryKey: []string{"id"}}
	require.NoError(t, registry.Register(entity))
	assert.Equal(t, "artists", entity.Table)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	registry := NewRegistry(nil)
	require.NoError(t, registry.Register(&EntityType{Name: "artist"}))
	assert.Error(t, registry.Register(&EntityType{Name: "artist"}))
}

func TestRegisterRejectsDuplicateAssociationNames(t *testing.T) {
	registry := NewRegistry(nil)
	err := registry.Register(&EntityType{
		Name: "album",
		Associations: []*Association{
			{Name: "artist", Kind: ManyToOne},
			{Name: "artist", Kind: ManyToOne},
		},
	})
	assert.Error(t, err)
}

func TestFinalizeFillsConventionalKeys(t *testing.T) {
	registry := musicRegistry(t)

	artist, err := registry.Entity("artist")
	require.NoError(t, err)
	albums, err := registry.Association(artist, "albums")
	require.NoError(t, err)
	assert.Equal(t, "album", albums.Target)
	assert.Equal(t, "artist_id", albums.ForeignKey)

	album, err := registry.Entity("album")
	require.NoError(t, err)
	artistRef, err := registry.Association(album, "artist")
	require.NoError(t, err)
	assert.Equal(t, "artist", artistRef.Target)
	assert.Equal(t, "artist_id", artistRef.ForeignKey)

	genres, err := registry.Association(album, "genres")
	require.NoError(t, err)
	assert.Equal(t, "genre", genres.Target)
	assert.Equal(t, "albums_genres", genres.LinkTable)
	assert.Equal(t, "album_id", genres.LeftKey)
	assert.Equal(t, "genre_id", genres.RightKey)
}

func TestFinalizeInfersReciprocal(t *testing.T) {
	registry := musicRegistry(t)

	artist, err := registry.Entity("artist")
	require.NoError(t, err)
	albums, err := registry.Association(artist, "albums")
	require.NoError(t, err)
	assert.Equal(t, "artist", albums.Reciprocal)
	assert.Equal(t, "artist", registry.Reciprocal(albums))
}

func TestFinalizeKeepsExplicitReciprocal(t *testing.T) {
	registry := NewRegistry(nil)
	require.NoError(t, registry.Register(&EntityType{
		Name:       "artist",
		PrimaryKey: []string{"id"},
		Columns:    []Column{{Name: "id"}},
		Associations: []*Association{
			{Name: "albums", Kind: OneToMany, Reciprocal: "creator"},
		},
	}))
	require.NoError(t, registry.Register(&EntityType{
		Name:       "album",
		PrimaryKey: []string{"id"},
		Columns:    []Column{{Name: "id"}, {Name: "artist_id"}},
		Associations: []*Association{
			{Name: "creator", Kind: ManyToOne, Target: "artist", ForeignKey: "artist_id"},
		},
	}))
	require.NoError(t, registry.Finalize())

	artist, err := registry.Entity("artist")
	require.NoError(t, err)
	albums, err := registry.Association(artist, "albums")
	require.NoError(t, err)
	assert.Equal(t, "creator", albums.Reciprocal)
}

func TestFinalizeUnknownTarget(t *testing.T) {
	registry := NewRegistry(nil)
	require.NoError(t, registry.Register(&EntityType{
		Name: "artist",
		Associations: []*Association{
			{Name: "albums", Kind: OneToMany},
		},
	}))
	err := registry.Finalize()
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestAssociationUnknownName(t *testing.T) {
	registry := musicRegistry(t)
	artist, err := registry.Entity("artist")
	require.NoError(t, err)

	_, err = registry.Association(artist, "labels")
	assert.ErrorIs(t, err, ErrUnknownAssociation)
}

func TestValidateEagerLoadable(t *testing.T) {
	entity := &EntityType{Name: "artist"}
	plain := &Association{Name: "albums", Kind: OneToMany}
	assert.NoError(t, ValidateEagerLoadable(entity, plain))

	filtered := &Association{
		Name: "recent_albums",
		Kind: OneToMany,
		Filter: func(owner map[string]any) sq.Sqlizer {
			return sq.Gt{"year": owner["founded"]}
		},
	}
	assert.ErrorIs(t, ValidateEagerLoadable(entity, filtered), ErrNotEagerLoadable)
}

func TestValidateEagerSpec(t *testing.T) {
	registry := musicRegistry(t)
	artist, err := registry.Entity("artist")
	require.NoError(t, err)

	t.Run("valid nested spec", func(t *testing.T) {
		spec, err := NewEagerSpec(map[string]any{"albums": map[string]any{"genres": nil}})
		require.NoError(t, err)
		assert.NoError(t, registry.ValidateEagerSpec(artist, spec))
	})

	t.Run("unknown association at depth", func(t *testing.T) {
		spec, err := NewEagerSpec(map[string]any{"albums": "labels"})
		require.NoError(t, err)
		assert.ErrorIs(t, registry.ValidateEagerSpec(artist, spec), ErrUnknownAssociation)
	})

	t.Run("blocked association", func(t *testing.T) {
		blocked := &EntityType{
			Name:       "playlist",
			PrimaryKey: []string{"id"},
			Columns:    []Column{{Name: "id"}},
			Associations: []*Association{
				{
					Name:   "picks",
					Kind:   OneToMany,
					Target: "genre",
					Filter: func(owner map[string]any) sq.Sqlizer { return sq.Eq{"id": owner["pick_id"]} },
				},
			},
		}
		require.NoError(t, registry.Register(blocked))

		spec, err := NewEagerSpec("picks")
		require.NoError(t, err)
		assert.ErrorIs(t, registry.ValidateEagerSpec(blocked, spec), ErrNotEagerLoadable)
	})
}
