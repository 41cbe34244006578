package tarantool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeTupleWithDescriptor(t *testing.T) {
	def := &SpaceDef{
		ID:   512,
		Name: "users",
		Fields: []FieldDef{
			{Name: "id", Type: FieldNum},
			{Name: "login", Type: FieldUTF8Str},
			{Name: "score", Type: FieldNum64},
		},
	}

	tuple, err := decodeTuple(def, []any{
		string([]byte{0x01, 0x00, 0x00, 0x00}),
		"sasha",
		string([]byte{0x05, 0, 0, 0, 0, 0, 0, 0}),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, tuple.Len())
	assert.Equal(t, uint32(1), tuple.Field(0))
	assert.Equal(t, "sasha", tuple.Field(1))
	assert.Equal(t, uint64(5), tuple.Field(2))

	login, ok := tuple.Named("login")
	require.True(t, ok)
	assert.Equal(t, "sasha", login)

	_, ok = tuple.Named("missing")
	assert.False(t, ok)

	m := tuple.Map()
	assert.Equal(t, uint32(1), m["id"])
	assert.Equal(t, "sasha", m["login"])
}

func TestDecodeTupleRaw(t *testing.T) {
	tuple, err := decodeTuple(nil, []any{"abc", string([]byte{0x01, 0x00, 0x00, 0x00})})
	require.NoError(t, err)

	assert.Equal(t, []byte("abc"), tuple.Field(0))
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, tuple.Field(1))

	_, ok := tuple.Named("anything")
	assert.False(t, ok)
	assert.Nil(t, tuple.Field(5))
}

func TestDecodeTupleBadField(t *testing.T) {
	def := &SpaceDef{
		Name:   "users",
		Fields: []FieldDef{{Name: "id", Type: FieldNum}},
	}
	_, err := decodeTuple(def, []any{"not four bytes"})
	assert.Error(t, err)
}

func TestResultIteration(t *testing.T) {
	res := &Result{Tuples: []*Tuple{
		{fields: []any{"a"}},
		{fields: []any{"b"}},
		{fields: []any{"c"}},
	}}

	assert.Equal(t, 3, res.Len())
	assert.Equal(t, "a", res.First().Field(0))

	var seen []string
	res.EachTuple(func(t *Tuple) bool {
		seen = append(seen, t.Field(0).(string))
		return len(seen) < 2
	})
	assert.Equal(t, []string{"a", "b"}, seen)

	empty := &Result{}
	assert.Nil(t, empty.First())
	assert.Equal(t, 0, empty.Len())
}
