package tarantool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vspaceRow(id uint32, name string, format ...map[string]any) []any {
	f := make([]any, len(format))
	for i, m := range format {
		f[i] = m
	}
	return []any{uint64(id), uint64(1), name, "memtx", uint64(len(format)), map[string]any{}, f}
}

func vindexRow(spaceID, indexID uint32, name string, parts ...[]any) []any {
	p := make([]any, len(parts))
	for i, part := range parts {
		p[i] = part
	}
	return []any{uint64(spaceID), uint64(indexID), name, "tree", map[string]any{"unique": true}, p}
}

func TestBuildSpaces(t *testing.T) {
	spaceRows := [][]any{
		vspaceRow(512, "users",
			map[string]any{"name": "id", "type": "NUM"},
			map[string]any{"name": "login", "type": "STR"},
		),
		vspaceRow(513, "counters",
			map[string]any{"name": "key", "type": "STR"},
		),
	}
	indexRows := [][]any{
		vindexRow(512, 0, "primary", []any{uint64(0), "NUM"}),
		vindexRow(512, 1, "login", []any{uint64(1), "STR"}),
		vindexRow(513, 0, "primary", []any{uint64(0), "STR"}),
	}

	spaces, err := buildSpaces(spaceRows, indexRows, FieldStr)
	require.NoError(t, err)
	assert.Equal(t, 2, spaces.Len())

	users, ok := spaces.Space("users")
	require.True(t, ok)
	assert.Equal(t, uint32(512), users.ID)
	require.Len(t, users.Fields, 2)
	assert.Equal(t, FieldNum, users.Fields[0].Type)
	assert.Equal(t, FieldStr, users.Fields[1].Type)

	byID, ok := spaces.SpaceByID(512)
	require.True(t, ok)
	assert.Same(t, users, byID)

	id, err := users.resolveIndex(IndexName("login"))
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
}

func TestBuildSpacesSkipsInternal(t *testing.T) {
	spaceRows := [][]any{
		vspaceRow(280, "_space", map[string]any{"name": "id", "type": "NUM"}),
		vspaceRow(512, "users", map[string]any{"name": "id", "type": "NUM"}),
	}
	indexRows := [][]any{
		vindexRow(512, 0, "primary", []any{uint64(0), "NUM"}),
	}

	spaces, err := buildSpaces(spaceRows, indexRows, FieldStr)
	require.NoError(t, err)
	assert.Equal(t, 1, spaces.Len())
	_, ok := spaces.Space("_space")
	assert.False(t, ok)
}

func TestBuildSpacesExtendsFieldsFromIndexParts(t *testing.T) {
	// The space declares one field; the index references field 2, so
	// the field list grows with the index-derived type.
	spaceRows := [][]any{
		vspaceRow(512, "events", map[string]any{"name": "id", "type": "NUM"}),
	}
	indexRows := [][]any{
		vindexRow(512, 0, "primary", []any{uint64(0), "NUM"}),
		vindexRow(512, 1, "by_ts", []any{uint64(2), "NUM64"}),
	}

	spaces, err := buildSpaces(spaceRows, indexRows, FieldStr)
	require.NoError(t, err)

	events, ok := spaces.Space("events")
	require.True(t, ok)
	require.Len(t, events.Fields, 3)
	assert.Equal(t, FieldNum, events.Fields[0].Type)
	assert.Equal(t, FieldType(""), events.Fields[1].Type)
	assert.Equal(t, FieldNum64, events.Fields[2].Type)
	// unnamed extended field, still addressable by position
	assert.Equal(t, "", events.Fields[2].Name)
}

func TestBuildSpacesRewritesIndexFieldNames(t *testing.T) {
	spaceRows := [][]any{
		vspaceRow(512, "users",
			map[string]any{"name": "id", "type": "NUM"},
			map[string]any{"name": "login", "type": "STR"},
		),
	}
	indexRows := [][]any{
		vindexRow(512, 0, "primary", []any{uint64(0), "NUM"}),
		vindexRow(512, 1, "login", []any{uint64(1), "STR"}),
	}

	spaces, err := buildSpaces(spaceRows, indexRows, FieldStr)
	require.NoError(t, err)

	users, _ := spaces.Space("users")
	login := users.indexesByName["login"]
	require.NotNil(t, login)
	require.Len(t, login.Fields, 1)
	assert.Equal(t, "login", login.Fields[0].Name)
	assert.Equal(t, uint32(1), login.Fields[0].FieldNo)
}

func TestBuildSpacesDropsEmptySpaces(t *testing.T) {
	spaceRows := [][]any{
		vspaceRow(600, "ghost"),
		vspaceRow(512, "users", map[string]any{"name": "id", "type": "NUM"}),
	}
	indexRows := [][]any{
		vindexRow(512, 0, "primary", []any{uint64(0), "NUM"}),
	}

	spaces, err := buildSpaces(spaceRows, indexRows, FieldStr)
	require.NoError(t, err)
	assert.Equal(t, 1, spaces.Len())
	_, ok := spaces.Space("ghost")
	assert.False(t, ok)
}

func TestBuildSpacesModernPartSpellings(t *testing.T) {
	spaceRows := [][]any{
		vspaceRow(512, "users",
			map[string]any{"name": "id", "type": "unsigned"},
			map[string]any{"name": "login", "type": "string"},
		),
	}
	indexRows := [][]any{
		{uint64(512), uint64(0), "primary", "tree", map[string]any{},
			[]any{map[string]any{"field": uint64(0), "type": "unsigned"}}},
	}

	spaces, err := buildSpaces(spaceRows, indexRows, FieldStr)
	require.NoError(t, err)

	users, ok := spaces.Space("users")
	require.True(t, ok)
	assert.Equal(t, FieldNum, users.Fields[0].Type)
	assert.Equal(t, FieldStr, users.Fields[1].Type)
	require.NotNil(t, users.indexesByID[0])
	assert.Equal(t, "id", users.indexesByID[0].Fields[0].Name)
}

func TestNormalizeFieldType(t *testing.T) {
	assert.Equal(t, FieldStr, normalizeFieldType("STR"))
	assert.Equal(t, FieldStr, normalizeFieldType("string"))
	assert.Equal(t, FieldUTF8Str, normalizeFieldType("UTF8STR"))
	assert.Equal(t, FieldNum, normalizeFieldType("NUM"))
	assert.Equal(t, FieldNum, normalizeFieldType("unsigned"))
	assert.Equal(t, FieldNum64, normalizeFieldType("NUM64"))
	assert.Equal(t, FieldStr, normalizeFieldType("whatever"))
}

func TestNewSpacesUniqueness(t *testing.T) {
	_, err := NewSpaces(
		&SpaceDef{ID: 1, Name: "a"},
		&SpaceDef{ID: 2, Name: "a"},
	)
	assert.Error(t, err)

	_, err = NewSpaces(
		&SpaceDef{ID: 1, Name: "a"},
		&SpaceDef{ID: 1, Name: "b"},
	)
	assert.Error(t, err)

	spaces, err := NewSpaces(
		&SpaceDef{ID: 1, Name: "a"},
		&SpaceDef{ID: 2, Name: "b"},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, spaces.Len())
}

func TestSpaceDefFieldHelpers(t *testing.T) {
	def := &SpaceDef{
		ID:   512,
		Name: "users",
		Fields: []FieldDef{
			{Name: "id", Type: FieldNum},
			{Name: "login", Type: FieldStr},
		},
		DefaultType: FieldUTF8Str,
	}

	no, ok := def.fieldNo("login")
	assert.True(t, ok)
	assert.Equal(t, uint32(1), no)

	_, ok = def.fieldNo("missing")
	assert.False(t, ok)

	assert.Equal(t, FieldNum, def.fieldType(0))
	// past the declared prefix, the default applies
	assert.Equal(t, FieldUTF8Str, def.fieldType(5))
}
