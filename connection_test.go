package tarantool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pior/tarantool/internal/testutils"
	"github.com/pior/tarantool/iproto"
)

func connectTransport(t *testing.T, server *testutils.Server, mutate func(*Config)) *Connection {
	t.Helper()
	cfg := testConfig(server)
	if mutate != nil {
		mutate(&cfg)
	}
	conn, err := NewConnection(cfg)
	require.NoError(t, err)
	require.NoError(t, conn.Connect(context.Background()))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestConnectionPing(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, nil)

	assert.Equal(t, StateReady, conn.State())
	assert.Contains(t, conn.Greeting().Version, "Tarantool")

	resp, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
	assert.Equal(t, iproto.TypePing, resp.Type)
	assert.Equal(t, uint32(1), resp.SchemaVersion)
}

func TestConnectionValidatesConfig(t *testing.T) {
	_, err := NewConnection(Config{})
	assert.Error(t, err)

	_, err = NewConnection(Config{Host: "localhost", Port: -1})
	assert.Error(t, err)
}

func TestConnectFailed(t *testing.T) {
	conn, err := NewConnection(Config{
		Host:            "127.0.0.1",
		Port:            1, // nothing listens here
		ConnectTimeout:  200 * time.Millisecond,
		ConnectAttempts: 2,
	})
	require.NoError(t, err)

	err = conn.Connect(context.Background())
	require.Error(t, err)

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindConnectFailed, ce.Kind)
	assert.Equal(t, StateBroken, conn.State())
	assert.GreaterOrEqual(t, conn.Stats().ConnectErrors, uint64(2))
}

func TestRequestTimeoutReservesSync(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, func(cfg *Config) {
		cfg.RequestTimeout = 100 * time.Millisecond
	})

	// The reply arrives well after the deadline.
	server.DelayNextResponse(400 * time.Millisecond)

	_, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindRequestTimeout, ce.Kind)
	assert.True(t, ce.Timeout())

	// The late reply must be swallowed via the reservation, not
	// reported as an unknown id, and must not complete anything twice.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, uint64(0), conn.Stats().UnknownSyncs)

	// The connection stays usable.
	resp, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
	assert.Equal(t, uint64(1), conn.Stats().Timeouts)
}

func TestRequestTimeoutWithoutReply(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, func(cfg *Config) {
		cfg.RequestTimeout = 100 * time.Millisecond
	})

	server.SwallowNextRequests(1)

	start := time.Now()
	_, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	elapsed := time.Since(start)

	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindRequestTimeout, ce.Kind)
	assert.Less(t, elapsed, time.Second)
}

func TestDisconnectFailsPending(t *testing.T) {
	server := startServer(t)

	var disconnected atomic.Int32
	conn := connectTransport(t, server, func(cfg *Config) {
		cfg.OnDisconnected = func(error) { disconnected.Add(1) }
	})

	server.SwallowNextRequests(3)
	futures := []*RequestFuture{
		conn.Do(iproto.NewPingRequest()),
		conn.Do(iproto.NewPingRequest()),
		conn.Do(iproto.NewPingRequest()),
	}

	// Let the requests reach the server before cutting the socket.
	time.Sleep(100 * time.Millisecond)
	server.DropConnections()

	for _, f := range futures {
		_, err := f.Response(context.Background())
		var ce *ClientError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, KindConnectionLost, ce.Kind)
	}

	waitForState(t, conn, StateBroken, time.Second)
	assert.Equal(t, int32(1), disconnected.Load())

	// While broken, sends fail synchronously and nothing hits the wire.
	_, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindConnectionLost, ce.Kind)
}

func TestReconnect(t *testing.T) {
	server := startServer(t)

	var connects atomic.Int32
	conn := connectTransport(t, server, func(cfg *Config) {
		cfg.ReconnectPeriod = 50 * time.Millisecond
		cfg.OnConnected = func() { connects.Add(1) }
	})
	require.Equal(t, int32(1), connects.Load())

	server.DropConnections()
	waitForState(t, conn, StateBroken, time.Second)
	waitForState(t, conn, StateReady, 2*time.Second)
	assert.Equal(t, int32(2), connects.Load())

	resp, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
	assert.GreaterOrEqual(t, conn.Stats().ReconnectAttempts, uint64(1))
}

func TestNoReconnectWhenDisabled(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, nil) // ReconnectPeriod zero

	server.DropConnections()
	waitForState(t, conn, StateBroken, time.Second)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, StateBroken, conn.State())
	assert.Equal(t, uint64(0), conn.Stats().ReconnectAttempts)
}

func TestMaxPendingRequests(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, func(cfg *Config) {
		cfg.MaxPendingRequests = 2
		cfg.RequestTimeout = 0
	})

	server.SwallowNextRequests(2)
	f1 := conn.Do(iproto.NewPingRequest())
	f2 := conn.Do(iproto.NewPingRequest())

	time.Sleep(100 * time.Millisecond)

	_, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	assert.ErrorIs(t, err, ErrTooManyPending)

	// Draining happens on close; both swallowed requests fail once.
	conn.Close()
	for _, f := range []*RequestFuture{f1, f2} {
		_, err := f.Response(context.Background())
		assert.Error(t, err)
	}
}

func TestConnectionClose(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, nil)

	require.NoError(t, conn.Close())
	assert.Equal(t, StateClosed, conn.State())
	require.NoError(t, conn.Close()) // idempotent

	_, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestAuthSuccess(t *testing.T) {
	server := startServer(t, testutils.WithAuth("sasha", "secret"))
	conn := connectTransport(t, server, func(cfg *Config) {
		cfg.User = "sasha"
		cfg.Password = "secret"
	})

	resp, err := conn.Do(iproto.NewPingRequest()).Response(context.Background())
	require.NoError(t, err)
	assert.True(t, resp.IsOK())
}

func TestAuthFailure(t *testing.T) {
	server := startServer(t, testutils.WithAuth("sasha", "secret"))

	cfg := testConfig(server)
	cfg.User = "sasha"
	cfg.Password = "wrong"
	cfg.ReconnectPeriod = 10 * time.Millisecond // must not be honored

	conn, err := NewConnection(cfg)
	require.NoError(t, err)

	err = conn.Connect(context.Background())
	var ce *ClientError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindAuthFailed, ce.Kind)

	// Auth failure is terminal: no reconnect loop with bad credentials.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateClosed, conn.State())
}

func TestPipelinedRequests(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, nil)

	const n = 50
	futures := make([]*RequestFuture, n)
	for i := range futures {
		futures[i] = conn.Do(iproto.NewPingRequest())
	}

	syncs := make(map[uint32]bool, n)
	for _, f := range futures {
		resp, err := f.Response(context.Background())
		require.NoError(t, err)
		require.True(t, resp.IsOK())
		assert.False(t, syncs[resp.Sync], "sync %d delivered twice", resp.Sync)
		syncs[resp.Sync] = true
	}
	assert.Len(t, syncs, n)

	stats := conn.Stats()
	assert.Equal(t, uint64(n), stats.RequestsSent)
	assert.Equal(t, uint64(n), stats.ResponsesReceived)
}

func TestFutureContextCancellation(t *testing.T) {
	server := startServer(t)
	conn := connectTransport(t, server, func(cfg *Config) {
		cfg.RequestTimeout = 0
	})

	server.SwallowNextRequests(1)
	f := conn.Do(iproto.NewPingRequest())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := f.Response(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
