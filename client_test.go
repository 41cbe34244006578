package tarantool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/tarantool/internal/testutils"
)

func TestClientPing(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	res, err := client.Ping().Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.Code)
	assert.Equal(t, uint32(1), res.SchemaVersion)
}

func TestClientDiscoversSchema(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	spaces := client.Spaces()
	require.NotNil(t, spaces)
	assert.Equal(t, 2, spaces.Len())
	assert.Equal(t, uint32(1), client.SchemaVersion())

	users, ok := spaces.Space("users")
	require.True(t, ok)
	assert.Equal(t, uint32(512), users.ID)
	require.Len(t, users.Fields, 5)
	assert.Equal(t, FieldNum, users.Fields[0].Type)
	assert.Equal(t, FieldStr, users.Fields[1].Type)
}

// Scenario: insert into a numeric space with pre-packed fields, then
// re-insert the same primary key.
func TestNumericSpaceInsert(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	tuple := []any{u32le(1), []byte("abc"), u32le(1234)}
	res, err := client.Insert(SpaceID(0), tuple).Result(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, res.Len())
	got := res.First()
	assert.Equal(t, u32le(1), got.Field(0))
	assert.Equal(t, []byte("abc"), got.Field(1))

	// duplicate primary key
	_, err = client.Insert(SpaceID(0), tuple).Result(context.Background())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ER_TUPLE_FOUND", se.Name())
	assert.Contains(t, se.Message, "already exists")
}

// Scenario: multi-key select with offset and limit against the numeric
// space, then the same select for keys that match nothing.
func TestNumericSpaceSelectMany(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Insert(SpaceID(0), []any{u32le(1), []byte("abc")}).Result(ctx)
	require.NoError(t, err)
	_, err = client.Insert(SpaceID(0), []any{u32le(2), []byte("cde")}).Result(ctx)
	require.NoError(t, err)

	res, err := client.SelectMany(SpaceID(0), IndexID(0),
		[][]any{{u32le(1)}, {u32le(2)}},
		SelectOptions{Limit: 2, Offset: 0}).Result(ctx)
	require.NoError(t, err)

	require.Equal(t, 2, res.Len())
	assert.Equal(t, []byte("abc"), res.Tuples[0].Field(1))
	assert.Equal(t, []byte("cde"), res.Tuples[1].Field(1))

	empty, err := client.SelectMany(SpaceID(0), IndexID(0),
		[][]any{{u32le(3)}, {u32le(4)}},
		SelectOptions{Limit: 2, Offset: 0}).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestNamedSpaceInsertAndSelect(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	res, err := client.Insert(SpaceName("users"),
		[]any{uint32(7), "sasha", uint32(100), "tag", "note"}).Result(ctx)
	require.NoError(t, err)

	got := res.First()
	require.NotNil(t, got)
	assert.Equal(t, uint32(7), got.Field(0))
	assert.Equal(t, []byte("sasha"), got.Field(1))
	assert.Equal(t, uint32(100), got.Field(2))

	login, ok := got.Named("login")
	require.True(t, ok)
	assert.Equal(t, []byte("sasha"), login)

	sel, err := client.Select(SpaceName("users"), IndexName("primary"),
		[]any{uint32(7)}, SelectOptions{}).Result(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sel.Len())
	assert.Equal(t, uint32(7), sel.First().Field(0))
}

func TestNamedSpaceRequiresKnownNames(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Insert(SpaceName("nope"), []any{uint32(1)}).Result(ctx)
	assert.ErrorContains(t, err, "unknown space")

	_, err = client.Select(SpaceName("users"), IndexName("nope"),
		[]any{uint32(1)}, SelectOptions{}).Result(ctx)
	assert.ErrorContains(t, err, "unknown index")

	// a numeric space refuses a named index
	_, err = client.Select(SpaceID(0), IndexName("primary"),
		[]any{u32le(1)}, SelectOptions{}).Result(ctx)
	assert.ErrorContains(t, err, "numeric index")
}

func TestReplaceAndDelete(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Replace(SpaceName("users"),
		[]any{uint32(1), "old", uint32(0), "", ""}).Result(ctx)
	require.NoError(t, err)

	res, err := client.Replace(SpaceName("users"),
		[]any{uint32(1), "new", uint32(0), "", ""}).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), res.First().Field(1))

	del, err := client.Delete(SpaceName("users"), []any{uint32(1)}).Result(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, del.Len())
	assert.Equal(t, []byte("new"), del.First().Field(1))

	sel, err := client.Select(SpaceName("users"), PrimaryIndex(),
		[]any{uint32(1)}, SelectOptions{}).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sel.Len())
}

// Scenario: the splice/delete/insert update sequence.
func TestUpdateOps(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Insert(SpaceName("users"),
		[]any{uint32(1), "x", uint32(7)}).Result(ctx)
	require.NoError(t, err)

	res, err := client.Update(SpaceName("users"), []any{uint32(1)}, []Op{
		OpSet(FieldNo(1), "abcdef"),
		OpSplice(FieldNo(1), 2, 2, nil),
		OpSplice(FieldNo(1), 100, 1, []byte("tail")),
		OpDelete(FieldNo(2)),
		OpInsert(FieldNo(2), uint32(123)),
		OpInsert(FieldNo(3), "third"),
		OpInsert(FieldNo(4), "fourth"),
	}).Result(ctx)
	require.NoError(t, err)

	got := res.First()
	require.NotNil(t, got)
	assert.Equal(t, []byte("abeftail"), got.Field(1))
	assert.Equal(t, uint32(123), got.Field(2))
	assert.Equal(t, []byte("third"), got.Field(3))
	assert.Equal(t, []byte("fourth"), got.Field(4))
}

// Scenario: bitwise update arithmetic on a NUM field.
func TestUpdateBitwise(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Insert(SpaceName("users"),
		[]any{uint32(1), "x", uint32(4567)}).Result(ctx)
	require.NoError(t, err)

	res, err := client.Update(SpaceName("users"), []any{uint32(1)}, []Op{
		OpSet(Field("login"), "abcdef"),
		OpOr(Field("score"), 23),
		OpAnd(Field("score"), 345),
	}).Result(ctx)
	require.NoError(t, err)

	want := uint32((4567 | 23) & 345)
	assert.Equal(t, want, res.First().Field(2))
	assert.Equal(t, []byte("abcdef"), res.First().Field(1))
}

func TestUpdateArithmetic(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Insert(SpaceName("users"),
		[]any{uint32(1), "x", uint32(10)}).Result(ctx)
	require.NoError(t, err)

	res, err := client.Update(SpaceName("users"), []any{uint32(1)}, []Op{
		OpAdd(Field("score"), 5),
		OpSub(Field("score"), 3),
		OpXor(Field("score"), 1),
	}).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32((10+5-3)^1), res.First().Field(2))
}

func TestUpsert(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	ops := []Op{OpAdd(Field("score"), 1)}

	// first upsert inserts the tuple and returns no data
	res, err := client.Upsert(SpaceName("users"),
		[]any{uint32(9), "counter", uint32(1)}, ops).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	// second upsert applies the ops
	_, err = client.Upsert(SpaceName("users"),
		[]any{uint32(9), "counter", uint32(1)}, ops).Result(ctx)
	require.NoError(t, err)

	sel, err := client.Select(SpaceName("users"), PrimaryIndex(),
		[]any{uint32(9)}, SelectOptions{}).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), sel.First().Field(2))
}

func TestSelectIterators(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	for i := uint32(1); i <= 4; i++ {
		_, err := client.Insert(SpaceName("users"),
			[]any{i, "u", uint32(0)}).Result(ctx)
		require.NoError(t, err)
	}

	tests := []struct {
		it   Iterator
		key  []any
		want int
	}{
		{IterAll, nil, 4},
		{IterEq, []any{uint32(2)}, 1},
		{IterGe, []any{uint32(2)}, 3},
		{IterGt, []any{uint32(2)}, 2},
		{IterLe, []any{uint32(2)}, 2},
		{IterLt, []any{uint32(2)}, 1},
	}
	for _, tt := range tests {
		res, err := client.Select(SpaceName("users"), PrimaryIndex(),
			tt.key, SelectOptions{Iterator: tt.it}).Result(ctx)
		require.NoError(t, err, "iterator %v", tt.it)
		assert.Equal(t, tt.want, res.Len(), "iterator %v", tt.it)
	}

	// limit and offset
	res, err := client.Select(SpaceName("users"), PrimaryIndex(),
		nil, SelectOptions{Iterator: IterAll, Limit: 2, Offset: 1}).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Len())
	assert.Equal(t, uint32(2), res.First().Field(0))
}

func TestCall(t *testing.T) {
	server := startServer(t,
		testutils.WithSpaces(testSpaces()...),
		testutils.WithProc("echo", func(args []any) ([][]any, error) {
			return [][]any{args}, nil
		}),
	)
	client := connectClient(t, server, nil)

	res, err := client.Call("echo", []any{"a", "b"}).Result(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	assert.Equal(t, []byte("a"), res.First().Field(0))
	assert.Equal(t, []byte("b"), res.First().Field(1))

	_, err = client.Call("missing", nil).Result(context.Background())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ER_NO_SUCH_PROC", se.Name())
}

// Scenario: DDL happens server-side between two calls. The client must
// invalidate its cache, re-read the metadata spaces exactly once, and
// fire the user future exactly once with the retry's result.
func TestStaleSchemaRetry(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Insert(SpaceName("users"),
		[]any{uint32(1), "a", uint32(0)}).Result(ctx)
	require.NoError(t, err)

	metaBefore := server.MetaSelects()
	require.Equal(t, uint32(1), client.SchemaVersion())

	server.BumpSchemaVersion()

	// The next call is tagged with version 1, rejected, retried.
	res, err := client.Select(SpaceName("users"), PrimaryIndex(),
		[]any{uint32(1)}, SelectOptions{}).Result(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())

	// discovery ran exactly once: one _vspace plus one _vindex select
	assert.Equal(t, metaBefore+2, server.MetaSelects())
	assert.Equal(t, uint32(2), client.SchemaVersion())

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.SchemaRetries)
	assert.Equal(t, uint64(2), stats.SchemaLoads)
	// the failed attempt is not surfaced as an error
	assert.Equal(t, uint64(0), stats.Errors)
}

func TestStaleSchemaTwiceSurfaces(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Insert(SpaceName("users"),
		[]any{uint32(1), "a", uint32(0)}).Result(ctx)
	require.NoError(t, err)

	// Every tagged request is now rejected: the retry fails too, and
	// the second stale-schema reply surfaces as-is.
	server.ForceStaleTagged(true)
	metaBefore := server.MetaSelects()

	_, err = client.Select(SpaceName("users"), PrimaryIndex(),
		[]any{uint32(1)}, SelectOptions{}).Result(ctx)

	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ER_WRONG_SCHEMA_VERSION", se.Name())
	assert.True(t, se.IsStaleSchema())

	// exactly one discovery ran between the failing reply and the retry
	assert.Equal(t, metaBefore+2, server.MetaSelects())
}

func TestPrebuiltSchemaBypassesDiscovery(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))

	spaces, err := NewSpaces(&SpaceDef{
		ID:   512,
		Name: "users",
		Fields: []FieldDef{
			{Name: "id", Type: FieldNum},
			{Name: "login", Type: FieldStr},
			{Name: "score", Type: FieldNum},
		},
	})
	require.NoError(t, err)

	client := connectClient(t, server, func(cfg *Config) {
		cfg.Spaces = spaces
	})

	assert.Equal(t, 0, server.MetaSelects())

	_, err = client.Insert(SpaceName("users"),
		[]any{uint32(1), "a", uint32(0)}).Result(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, server.MetaSelects())
}

func TestRefreshSchema(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	server.BumpSchemaVersion()
	require.NoError(t, client.RefreshSchema(context.Background()))
	assert.Equal(t, uint32(2), client.SchemaVersion())
}

func TestClientStats(t *testing.T) {
	server := startServer(t, testutils.WithSpaces(testSpaces()...))
	client := connectClient(t, server, nil)

	ctx := context.Background()
	_, err := client.Ping().Result(ctx)
	require.NoError(t, err)
	_, err = client.Insert(SpaceName("users"), []any{uint32(1), "a", uint32(0)}).Result(ctx)
	require.NoError(t, err)
	_, err = client.Insert(SpaceName("users"), []any{uint32(1), "a", uint32(0)}).Result(ctx)
	require.Error(t, err) // duplicate

	stats := client.Stats()
	assert.Equal(t, uint64(1), stats.Pings)
	assert.Equal(t, uint64(1), stats.Inserts)
	assert.Equal(t, uint64(1), stats.Errors)
	assert.Equal(t, uint64(1), stats.SchemaLoads)
}
