package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEagerSpecFromName(t *testing.T) {
	spec, err := NewEagerSpec("albums")
	require.NoError(t, err)
	assert.Equal(t, []string{"albums"}, spec.Names())
	assert.Nil(t, spec.Branch("albums"))
}

func TestNewEagerSpecFromNestedMap(t *testing.T) {
	spec, err := NewEagerSpec(map[string]any{
		"albums": map[string]any{"genres": nil},
		"label":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"albums", "label"}, spec.Names())

	nested := spec.Branch("albums")
	require.NotNil(t, nested)
	assert.Equal(t, []string{"genres"}, nested.Names())
	assert.Nil(t, spec.Branch("label"))
}

func TestNewEagerSpecFromMixedArgs(t *testing.T) {
	spec, err := NewEagerSpec("label", map[string]any{"albums": "genres"}, []any{"tags"})
	require.NoError(t, err)
	assert.Equal(t, []string{"albums", "label", "tags"}, spec.Names())
	assert.Equal(t, []string{"genres"}, spec.Branch("albums").Names())
}

func TestNewEagerSpecMalformed(t *testing.T) {
	tests := []struct {
		name string
		arg  any
	}{
		{"integer", 42},
		{"bool", true},
		{"map with bad nested value", map[string]any{"albums": 7}},
		{"slice with bad element", []any{"albums", 3.14}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEagerSpec(tt.arg)
			assert.ErrorIs(t, err, ErrMalformedEagerArgument)
		})
	}
}

func TestMergeUnionsNestedSpecs(t *testing.T) {
	a, err := NewEagerSpec(map[string]any{"albums": "genres"})
	require.NoError(t, err)
	b, err := NewEagerSpec(map[string]any{"albums": "tracks"}, "label")
	require.NoError(t, err)

	merged := a.Merge(b)
	assert.Equal(t, []string{"albums", "label"}, merged.Names())
	assert.Equal(t, []string{"genres", "tracks"}, merged.Branch("albums").Names())
}

func TestMergeLeafAgainstNested(t *testing.T) {
	leaf, err := NewEagerSpec("albums")
	require.NoError(t, err)
	nested, err := NewEagerSpec(map[string]any{"albums": "genres"})
	require.NoError(t, err)

	// Leaf merged with a nested branch keeps the nested requests.
	assert.Equal(t, []string{"genres"}, leaf.Merge(nested).Branch("albums").Names())
	assert.Equal(t, []string{"genres"}, nested.Merge(leaf).Branch("albums").Names())
}

func TestMergeDoesNotMutateOperands(t *testing.T) {
	a, err := NewEagerSpec("albums")
	require.NoError(t, err)
	b, err := NewEagerSpec("label")
	require.NoError(t, err)

	_ = a.Merge(b)
	assert.Equal(t, []string{"albums"}, a.Names())
	assert.Equal(t, []string{"label"}, b.Names())
}

func TestMergeNilReceiver(t *testing.T) {
	var leaf *EagerSpec
	other, err := NewEagerSpec("albums")
	require.NoError(t, err)
	assert.Equal(t, []string{"albums"}, leaf.Merge(other).Names())
	assert.True(t, leaf.Merge(nil).IsEmpty())
}

func TestIsEmpty(t *testing.T) {
	var nilSpec *EagerSpec
	assert.True(t, nilSpec.IsEmpty())

	empty, err := NewEagerSpec()
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	spec, err := NewEagerSpec("albums")
	require.NoError(t, err)
	assert.False(t, spec.IsEmpty())
}
