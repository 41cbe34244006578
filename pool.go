package tarantool

import (
	"context"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
)

// PoolStats contains statistics about a client pool.
// All fields are safe for concurrent access.
type PoolStats struct {
	AcquireCount      uint64 // Total acquire attempts
	AcquireWaitCount  uint64 // Acquires that had to wait
	CreatedClients    uint64 // Total clients created
	DestroyedClients  uint64 // Total clients destroyed
	AcquireErrors     uint64 // Acquires canceled by their context
	AcquireWaitTimeNs uint64 // Total nanoseconds spent waiting

	TotalClients  int32 // Clients in the pool (active + idle)
	IdleClients   int32 // Idle clients available
	ActiveClients int32 // Clients currently in use
}

// Pool maintains up to MaxSize connected clients to the same endpoint,
// for callers that want parallel request streams over several sockets.
// Each pooled client still owns exactly one TCP connection.
type Pool struct {
	pool             *puddle.Pool[*Client]
	breaker          CircuitBreaker
	createdClients   atomic.Int64
	destroyedClients atomic.Int64
}

// PoolConfig configures a client pool.
type PoolConfig struct {
	// Client is the configuration every pooled client is created with.
	Client Config

	// MaxSize is the maximum number of clients. Required: must be > 0.
	MaxSize int32

	// Breaker optionally wraps Exec in a circuit breaker; see
	// NewCircuitBreaker.
	Breaker CircuitBreaker
}

// NewPool creates a client pool. Clients are dialed lazily, on first
// acquire.
func NewPool(cfg PoolConfig) (*Pool, error) {
	p := &Pool{breaker: cfg.Breaker}

	poolConfig := &puddle.Config[*Client]{
		Constructor: func(ctx context.Context) (*Client, error) {
			client, err := Connect(ctx, cfg.Client)
			if err == nil {
				p.createdClients.Add(1)
			}
			return client, err
		},
		Destructor: func(c *Client) {
			p.destroyedClients.Add(1)
			_ = c.Close()
		},
		MaxSize: cfg.MaxSize,
	}

	pool, err := puddle.NewPool(poolConfig)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

// Resource is a pooled client checked out of the pool.
type Resource struct {
	res *puddle.Resource[*Client]
}

// Client returns the checked-out client.
func (r *Resource) Client() *Client {
	return r.res.Value()
}

// Release returns the client to the pool for reuse.
func (r *Resource) Release() {
	r.res.Release()
}

// Destroy closes the client and removes it from the pool.
func (r *Resource) Destroy() {
	r.res.Destroy()
}

// Acquire checks a client out of the pool, dialing a new one when the
// pool is below MaxSize and no idle client is available.
func (p *Pool) Acquire(ctx context.Context) (*Resource, error) {
	res, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Resource{res: res}, nil
}

// Exec runs fn with a pooled client. The client is destroyed instead of
// released when fn returns a transport error, so a broken connection is
// not handed to the next caller. With a breaker configured, the whole
// acquire+fn cycle runs through it.
func (p *Pool) Exec(ctx context.Context, fn func(*Client) error) error {
	if p.breaker != nil {
		_, err := p.breaker.Execute(func() (any, error) {
			return nil, p.execDirect(ctx, fn)
		})
		return err
	}
	return p.execDirect(ctx, fn)
}

func (p *Pool) execDirect(ctx context.Context, fn func(*Client) error) error {
	res, err := p.Acquire(ctx)
	if err != nil {
		return err
	}

	err = fn(res.Client())
	if shouldDestroy(err) || res.Client().Connection().State() != StateReady {
		res.Destroy()
	} else {
		res.Release()
	}
	return err
}

// shouldDestroy reports whether the error indicates the pooled client's
// connection is no longer usable. Server errors and timeouts leave the
// connection healthy.
func shouldDestroy(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ServerError:
		return false
	case *ClientError:
		return e.Kind == KindConnectionLost || e.Kind == KindProtocolError
	}
	return err == ErrConnectionClosed
}

// Close destroys all pooled clients and rejects further acquires.
func (p *Pool) Close() {
	p.pool.Close()
}

// Stats returns a snapshot of pool statistics.
func (p *Pool) Stats() PoolStats {
	s := p.pool.Stat()

	return PoolStats{
		TotalClients:      s.TotalResources(),
		IdleClients:       s.IdleResources(),
		ActiveClients:     s.AcquiredResources(),
		AcquireCount:      uint64(s.AcquireCount()),
		AcquireWaitCount:  uint64(s.EmptyAcquireCount()),
		CreatedClients:    uint64(p.createdClients.Load()),
		DestroyedClients:  uint64(p.destroyedClients.Load()),
		AcquireErrors:     uint64(s.CanceledAcquireCount()),
		AcquireWaitTimeNs: uint64(s.EmptyAcquireWaitTime().Nanoseconds()),
	}
}
