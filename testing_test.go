package tarantool

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pior/tarantool/internal/testutils"
)

func u32le(n uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, n)
	return b
}

// testSpaces is the schema served by the fake server in most tests:
// a typed space plus a scratch space at id 0 for numeric-path tests.
func testSpaces() []testutils.SpaceMeta {
	return []testutils.SpaceMeta{
		{
			ID:   0,
			Name: "scratch",
			Fields: []testutils.FieldMeta{
				{Name: "id", Type: "NUM"},
				{Name: "val", Type: "STR"},
			},
			Indexes: []testutils.IndexMeta{
				{ID: 0, Name: "primary", Parts: [][2]any{{uint64(0), "NUM"}}},
			},
		},
		{
			ID:   512,
			Name: "users",
			Fields: []testutils.FieldMeta{
				{Name: "id", Type: "NUM"},
				{Name: "login", Type: "STR"},
				{Name: "score", Type: "NUM"},
				{Name: "tag", Type: "STR"},
				{Name: "note", Type: "STR"},
			},
			Indexes: []testutils.IndexMeta{
				{ID: 0, Name: "primary", Parts: [][2]any{{uint64(0), "NUM"}}},
				{ID: 1, Name: "login", Parts: [][2]any{{uint64(1), "STR"}}},
			},
		},
	}
}

func startServer(t *testing.T, opts ...testutils.Option) *testutils.Server {
	t.Helper()
	server, err := testutils.NewServer(opts...)
	require.NoError(t, err)
	t.Cleanup(server.Close)
	return server
}

func testConfig(server *testutils.Server) Config {
	return Config{
		Host:           server.Host(),
		Port:           server.Port(),
		RequestTimeout: 5 * time.Second,
	}
}

func connectClient(t *testing.T, server *testutils.Server, mutate func(*Config)) *Client {
	t.Helper()
	cfg := testConfig(server)
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := Connect(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

// waitForState polls until the connection reaches the wanted state.
func waitForState(t *testing.T, conn *Connection, want State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if conn.State() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("connection state = %v, want %v", conn.State(), want)
}
