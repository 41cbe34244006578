package tarantool

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pior/tarantool/iproto"
)

// State is the connection lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateGreeting
	StateAuth
	StateReady
	StateBroken
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateGreeting:
		return "greeting"
	case StateAuth:
		return "auth"
	case StateReady:
		return "ready"
	case StateBroken:
		return "broken"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Connection owns a single TCP connection to one endpoint. It frames
// and writes requests in acceptance order, reads and demultiplexes
// responses by sync id, applies per-request timeouts, and reconnects
// after failures when configured.
//
// All connection state is guarded by mu; the read and write loops are
// the only goroutines touching the socket after the handshake.
type Connection struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	conn     net.Conn
	greeting iproto.Greeting

	sync     uint32
	pending  map[uint32]*pendingRequest
	reserved map[uint32]struct{}

	// per-session channels, recreated on every successful connect
	writeCh chan []byte
	stopCh  chan struct{}

	reconnectTimer *time.Timer
	closed         bool

	lastSchemaVersion uint32

	stats *connStatsCollector
}

type pendingRequest struct {
	future *RequestFuture
	timer  *time.Timer
}

// NewConnection creates an unconnected transport for the endpoint in
// cfg. Call Connect to establish the session.
func NewConnection(cfg Config) (*Connection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	return &Connection{
		cfg:      cfg,
		logger:   cfg.Logger,
		state:    StateIdle,
		pending:  make(map[uint32]*pendingRequest),
		reserved: make(map[uint32]struct{}),
		stats:    newConnStatsCollector(),
	}, nil
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Greeting returns the parsed server banner of the current session.
func (c *Connection) Greeting() iproto.Greeting {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.greeting
}

// SchemaVersion returns the most recent schema version reported by the
// server on this connection, zero before the first reply.
func (c *Connection) SchemaVersion() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSchemaVersion
}

// Stats returns a snapshot of transport statistics.
func (c *Connection) Stats() ConnectionStats {
	return c.stats.snapshot()
}

// Connect establishes the session: TCP connect (up to ConnectAttempts
// tries), greeting, optional authentication. On success the read and
// write loops are running and requests are accepted.
//
// When every attempt fails, the error is returned; with
// ReconnectAlways set, a background reconnect is also scheduled.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.state == StateReady {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < c.cfg.ConnectAttempts; attempt++ {
		lastErr = c.connectOnce(ctx)
		if lastErr == nil {
			return nil
		}
		var ce *ClientError
		if errors.As(lastErr, &ce) && ce.Kind == KindAuthFailed {
			// Auth failure is terminal: wrong credentials will not
			// become right by retrying.
			c.mu.Lock()
			c.state = StateClosed
			c.closed = true
			c.mu.Unlock()
			return lastErr
		}
		if ctx.Err() != nil {
			break
		}
	}

	c.mu.Lock()
	c.state = StateBroken
	if c.cfg.ReconnectAlways && c.cfg.ReconnectPeriod > 0 && !c.closed {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	return lastErr
}

// connectOnce performs one full connect + handshake attempt.
func (c *Connection) connectOnce(ctx context.Context) error {
	dialCtx := ctx
	if c.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.cfg.ConnectTimeout)
		defer cancel()
	}

	netConn, err := c.cfg.Dialer.DialContext(dialCtx, "tcp", c.cfg.Addr())
	if err != nil {
		c.stats.recordConnectError()
		return &ClientError{Kind: KindConnectFailed, Msg: c.cfg.Addr(), Err: err}
	}

	greeting, err := c.handshake(netConn)
	if err != nil {
		netConn.Close()
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		netConn.Close()
		return ErrConnectionClosed
	}
	c.conn = netConn
	c.greeting = greeting
	c.state = StateReady
	c.writeCh = make(chan []byte, c.writeQueueCap())
	c.stopCh = make(chan struct{})
	writeCh, stopCh := c.writeCh, c.stopCh
	c.mu.Unlock()

	c.stats.recordConnect()
	c.logger.Debug("connected", "addr", c.cfg.Addr(), "server", greeting.Version)

	go c.writeLoop(netConn, writeCh, stopCh)
	go c.readLoop(netConn, stopCh)

	if c.cfg.OnConnected != nil {
		c.cfg.OnConnected()
	}
	return nil
}

func (c *Connection) writeQueueCap() int {
	if c.cfg.MaxPendingRequests > 0 {
		return c.cfg.MaxPendingRequests
	}
	return 4096
}

// handshake reads the greeting and, with credentials configured,
// performs the authentication exchange. Runs before the loops start:
// it owns the socket exclusively.
func (c *Connection) handshake(netConn net.Conn) (iproto.Greeting, error) {
	c.setState(StateGreeting)

	if c.cfg.ConnectTimeout > 0 {
		netConn.SetDeadline(time.Now().Add(c.cfg.ConnectTimeout))
		defer netConn.SetDeadline(time.Time{})
	}

	raw := make([]byte, iproto.GreetingSize)
	if _, err := io.ReadFull(netConn, raw); err != nil {
		c.stats.recordConnectError()
		return iproto.Greeting{}, &ClientError{Kind: KindConnectFailed, Msg: "reading greeting", Err: err}
	}
	greeting, err := iproto.ParseGreeting(raw)
	if err != nil {
		c.stats.recordConnectError()
		return iproto.Greeting{}, &ClientError{Kind: KindProtocolError, Msg: "greeting", Err: err}
	}

	if c.cfg.User == "" {
		return greeting, nil
	}

	c.setState(StateAuth)

	req := iproto.NewAuthRequest(c.cfg.User, c.cfg.Password, greeting.Salt)
	c.mu.Lock()
	req.Sync = c.nextSyncLocked()
	c.mu.Unlock()
	if err := iproto.WriteRequest(netConn, req); err != nil {
		return iproto.Greeting{}, &ClientError{Kind: KindConnectFailed, Msg: "sending auth", Err: err}
	}

	resp, err := iproto.ReadResponse(bufio.NewReader(netConn))
	if err != nil {
		return iproto.Greeting{}, &ClientError{Kind: KindConnectFailed, Msg: "reading auth reply", Err: err}
	}
	if resp.Code != 0 {
		c.stats.recordAuthError()
		return iproto.Greeting{}, &ClientError{Kind: KindAuthFailed, Msg: resp.Message}
	}

	return greeting, nil
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Do enqueues a request and returns its completion handle. The caller
// never blocks: transport errors (not ready, table full) complete the
// future synchronously before it is returned.
//
// Do fills req.Sync; everything else is taken as-is.
func (c *Connection) Do(req *iproto.Request) *RequestFuture {
	f := newRequestFuture()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		f.complete(nil, ErrConnectionClosed)
		return f
	}
	if c.state != StateReady {
		c.mu.Unlock()
		f.complete(nil, &ClientError{Kind: KindConnectionLost, Msg: "connection is not ready"})
		return f
	}
	if c.cfg.MaxPendingRequests > 0 && len(c.pending) >= c.cfg.MaxPendingRequests {
		c.mu.Unlock()
		f.complete(nil, ErrTooManyPending)
		return f
	}

	sync := c.nextSyncLocked()
	req.Sync = sync

	var buf bytes.Buffer
	if err := iproto.WriteRequest(&buf, req); err != nil {
		c.mu.Unlock()
		f.complete(nil, &ClientError{Kind: KindProtocolError, Msg: "encoding request", Err: err})
		return f
	}

	entry := &pendingRequest{future: f}
	if c.cfg.RequestTimeout > 0 {
		entry.timer = time.AfterFunc(c.cfg.RequestTimeout, func() {
			c.expire(sync)
		})
	}
	c.pending[sync] = entry
	writeCh, stopCh := c.writeCh, c.stopCh
	c.mu.Unlock()

	select {
	case writeCh <- buf.Bytes():
		c.stats.recordSent()
	case <-stopCh:
		c.abandon(sync, &ClientError{Kind: KindConnectionLost, Msg: "connection broke before send"})
	}
	return f
}

// nextSyncLocked allocates the next request id, skipping ids still
// pending or reserved by a timed-out request.
func (c *Connection) nextSyncLocked() uint32 {
	for {
		c.sync++
		if c.sync == 0 {
			c.sync = 1
		}
		if _, busy := c.pending[c.sync]; busy {
			continue
		}
		if _, busy := c.reserved[c.sync]; busy {
			continue
		}
		return c.sync
	}
}

// expire completes one request with a timeout. The sync id stays
// reserved until its response arrives or the connection tears down, so
// a late reply cannot be mis-routed to a new request.
func (c *Connection) expire(sync uint32) {
	c.mu.Lock()
	entry, ok := c.pending[sync]
	if !ok {
		c.mu.Unlock()
		return
	}
	delete(c.pending, sync)
	c.reserved[sync] = struct{}{}
	c.mu.Unlock()

	c.stats.recordTimeout()
	entry.future.complete(nil, &ClientError{Kind: KindRequestTimeout})
}

// abandon fails one request that never reached the wire.
func (c *Connection) abandon(sync uint32, err error) {
	c.mu.Lock()
	entry, ok := c.pending[sync]
	if ok {
		delete(c.pending, sync)
		if entry.timer != nil {
			entry.timer.Stop()
		}
	}
	c.mu.Unlock()
	if ok {
		entry.future.complete(nil, err)
	}
}

// writeLoop drains the send queue onto the socket, flushing when the
// queue momentarily empties so back-to-back requests coalesce into one
// syscall. Requests hit the wire in acceptance order.
func (c *Connection) writeLoop(netConn net.Conn, writeCh chan []byte, stopCh chan struct{}) {
	w := bufio.NewWriter(netConn)
	for {
		select {
		case <-stopCh:
			return
		case frame := <-writeCh:
			if _, err := w.Write(frame); err != nil {
				c.teardown(&ClientError{Kind: KindConnectionLost, Msg: "write", Err: err})
				return
			}
			if len(writeCh) == 0 {
				if err := w.Flush(); err != nil {
					c.teardown(&ClientError{Kind: KindConnectionLost, Msg: "write flush", Err: err})
					return
				}
			}
		}
	}
}

// readLoop parses response frames and routes them to their issuers.
func (c *Connection) readLoop(netConn net.Conn, stopCh chan struct{}) {
	r := bufio.NewReader(netConn)
	for {
		resp, err := iproto.ReadResponse(r)
		if err != nil {
			select {
			case <-stopCh:
				// teardown already ran; the socket error is fallout.
				return
			default:
			}
			var pe *iproto.ParseError
			if errors.As(err, &pe) {
				c.teardown(&ClientError{Kind: KindProtocolError, Err: err})
			} else {
				c.teardown(&ClientError{Kind: KindConnectionLost, Msg: "read", Err: err})
			}
			return
		}
		c.dispatch(resp)
	}
}

// dispatch completes the pending request matching the echoed sync id.
// Replies for reserved (timed-out) ids release the reservation; replies
// for unknown ids are logged and dropped, never fatal.
func (c *Connection) dispatch(resp *iproto.Response) {
	c.mu.Lock()
	if resp.SchemaVersion != 0 {
		c.lastSchemaVersion = resp.SchemaVersion
	}
	entry, ok := c.pending[resp.Sync]
	if ok {
		delete(c.pending, resp.Sync)
		if entry.timer != nil {
			entry.timer.Stop()
		}
		c.mu.Unlock()
		c.stats.recordReceived()
		entry.future.complete(resp, nil)
		return
	}
	if _, reserved := c.reserved[resp.Sync]; reserved {
		delete(c.reserved, resp.Sync)
		c.mu.Unlock()
		c.logger.Debug("late reply for timed-out request", "sync", resp.Sync)
		return
	}
	c.mu.Unlock()

	c.stats.recordUnknownSync()
	c.logger.Warn("reply with unknown sync dropped", "sync", resp.Sync)
}

// teardown moves the connection to BROKEN: the socket is closed, every
// pending request fails with a connection-lost error, reserved ids are
// released, and a reconnect is scheduled when configured.
func (c *Connection) teardown(cause error) {
	c.mu.Lock()
	if c.state != StateReady {
		c.mu.Unlock()
		return
	}
	c.state = StateBroken
	close(c.stopCh)
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	failed := make([]*pendingRequest, 0, len(c.pending))
	for sync, entry := range c.pending {
		delete(c.pending, sync)
		if entry.timer != nil {
			entry.timer.Stop()
		}
		failed = append(failed, entry)
	}
	c.reserved = make(map[uint32]struct{})

	if !c.closed && c.cfg.ReconnectPeriod > 0 {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.stats.recordDisconnect()
	c.logger.Warn("connection lost", "addr", c.cfg.Addr(), "cause", cause, "failed_requests", len(failed))

	lost := &ClientError{Kind: KindConnectionLost, Err: cause}
	for _, entry := range failed {
		entry.future.complete(nil, lost)
	}

	if c.cfg.OnDisconnected != nil {
		c.cfg.OnDisconnected(cause)
	}
}

// scheduleReconnectLocked arms the single reconnect timer. Callers hold
// c.mu.
func (c *Connection) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.cfg.ReconnectPeriod, c.reconnect)
}

func (c *Connection) reconnect() {
	c.mu.Lock()
	c.reconnectTimer = nil
	if c.closed || c.state == StateReady {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.mu.Unlock()

	c.stats.recordReconnectAttempt()

	err := c.connectOnce(context.Background())
	if err == nil {
		return
	}

	var ce *ClientError
	if errors.As(err, &ce) && ce.Kind == KindAuthFailed {
		// Credentials were valid once and are rejected now. The
		// reconnector keeps trying with the same credentials; see the
		// reconnect policy note in DESIGN.md.
		c.logger.Warn("reconnect authentication failed", "addr", c.cfg.Addr(), "error", err)
	} else {
		c.logger.Debug("reconnect attempt failed", "addr", c.cfg.Addr(), "error", err)
	}

	c.mu.Lock()
	if !c.closed {
		c.state = StateBroken
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()
}

// Close tears the connection down for good: pending requests fail,
// reconnecting stops, and further sends return ErrConnectionClosed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	wasReady := c.state == StateReady
	c.mu.Unlock()

	if wasReady {
		c.teardown(ErrConnectionClosed)
	}

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	return nil
}
