package tarantool

import (
	"context"
	"fmt"
	"sync"

	"github.com/pior/tarantool/iproto"
)

// Client is the high-level, schema-aware surface over one Connection.
//
// Every operation is asynchronous: it returns a *Future immediately and
// delivers its result exactly once. Named spaces are resolved through
// the cached schema, values are coded per the discovered field types,
// and a request rejected with ER_WRONG_SCHEMA_VERSION is retried once
// against a freshly fetched schema before the error is surfaced.
type Client struct {
	cfg  Config
	conn *Connection

	// mu guards the schema cache. Discovery runs under it so that a
	// burst of operations after invalidation triggers exactly one
	// re-fetch.
	mu            sync.Mutex
	spaces        *Spaces
	schemaVersion uint32

	stats *clientStatsCollector
}

// Connect establishes a connection and prepares the schema cache. With
// Config.Spaces set, discovery is bypassed; otherwise the metadata
// spaces are read once the handshake completes.
//
// When the initial connect fails and ReconnectAlways is set, the client
// is returned anyway: reconnecting continues in the background and the
// schema is discovered lazily by the first operation that needs it.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	conn, err := NewConnection(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:   conn.cfg, // defaults applied
		conn:  conn,
		stats: newClientStatsCollector(),
	}
	if cfg.Spaces != nil {
		c.spaces = cfg.Spaces
	}

	if err := conn.Connect(ctx); err != nil {
		if cfg.ReconnectAlways && cfg.ReconnectPeriod > 0 {
			return c, nil
		}
		conn.Close()
		return nil, err
	}

	if c.spaces == nil {
		c.mu.Lock()
		err := c.loadSchema(ctx)
		c.mu.Unlock()
		if err != nil {
			conn.Close()
			return nil, err
		}
	} else {
		// Harvest the schema version so requests are tagged from the
		// first operation on.
		resp, err := conn.Do(iproto.NewPingRequest()).Response(ctx)
		if err == nil && resp.Code == 0 {
			c.mu.Lock()
			c.schemaVersion = resp.SchemaVersion
			c.mu.Unlock()
		}
	}

	return c, nil
}

// Close tears down the connection. Pending operations complete with a
// connection-lost error.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Connection returns the underlying transport.
func (c *Client) Connection() *Connection {
	return c.conn
}

// Stats returns a snapshot of client operation statistics.
func (c *Client) Stats() ClientStats {
	return c.stats.snapshot()
}

// Spaces returns the current schema cache, or nil when it has been
// invalidated and not yet re-fetched.
func (c *Client) Spaces() *Spaces {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.spaces
}

// SchemaVersion returns the schema version operations are currently
// tagged with, zero when unknown.
func (c *Client) SchemaVersion() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schemaVersion
}

// RefreshSchema drops the cached schema and re-runs discovery.
func (c *Client) RefreshSchema(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spaces = nil
	c.schemaVersion = 0
	return c.loadSchema(ctx)
}

// invalidateSchema empties the cache; the next operation that needs a
// named lookup re-runs discovery before proceeding.
func (c *Client) invalidateSchema() {
	c.mu.Lock()
	c.spaces = nil
	c.schemaVersion = 0
	c.mu.Unlock()
}

// ensureSpaces returns the schema cache, running discovery when it is
// empty. Exactly one discovery runs between an invalidation and the
// next successful lookup.
func (c *Client) ensureSpaces(ctx context.Context) (*Spaces, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.spaces == nil {
		if err := c.loadSchema(ctx); err != nil {
			return nil, err
		}
	}
	return c.spaces, nil
}

func (c *Client) currentSchemaVersion() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.schemaVersion
}

// resolve maps the space and index references to numeric ids. A named
// space yields its descriptor for value coding; a numeric space applies
// no coding and requires a numeric index.
func (c *Client) resolve(ctx context.Context, space Space, index Index) (*SpaceDef, uint32, uint32, error) {
	if space.IsNumeric() {
		if !index.IsNumeric() {
			return nil, 0, 0, fmt.Errorf("tarantool: %s requires a numeric index, got %s", space, index)
		}
		return nil, space.id, index.id, nil
	}

	spaces, err := c.ensureSpaces(ctx)
	if err != nil {
		return nil, 0, 0, err
	}
	def, ok := spaces.Space(space.name)
	if !ok {
		return nil, 0, 0, fmt.Errorf("tarantool: unknown %s", space)
	}
	indexID, err := def.resolveIndex(index)
	if err != nil {
		return nil, 0, 0, err
	}
	return def, def.ID, indexID, nil
}

// packTuple codes tuple or key values for the wire: per the descriptor
// for a named space, pass-through for a numeric one.
func packTuple(def *SpaceDef, values []any) ([][]byte, error) {
	fields := make([][]byte, len(values))
	for i, v := range values {
		var (
			b   []byte
			err error
		)
		if def == nil {
			b, err = packRaw(v)
		} else {
			b, err = def.fieldType(i).Pack(v)
		}
		if err != nil {
			return nil, err
		}
		fields[i] = b
	}
	return fields, nil
}

// bodyBuilder rebuilds the request body for an attempt. It runs again
// on the stale-schema retry so ids and coding come from the refreshed
// descriptors.
type bodyBuilder func(def *SpaceDef, spaceID, indexID uint32, body *iproto.Body) error

// exec is the per-call state machine: resolve, send, and on a
// stale-schema reply invalidate + reload + re-send exactly once.
func (c *Client) exec(typ iproto.RequestType, space Space, index Index, counter *uint64, build bodyBuilder) (*Result, error) {
	ctx := context.Background()

	for attempt := 0; ; attempt++ {
		def, spaceID, indexID, err := c.resolve(ctx, space, index)
		if err != nil {
			c.stats.recordError()
			return nil, err
		}

		req := iproto.NewRequest(typ)
		req.SchemaVersion = c.currentSchemaVersion()
		if err := build(def, spaceID, indexID, &req.Body); err != nil {
			c.stats.recordError()
			return nil, err
		}

		resp, err := c.conn.Do(req).Response(ctx)
		if err != nil {
			c.stats.recordError()
			return nil, err
		}
		if resp.Code != 0 {
			if resp.IsStaleSchema() && attempt == 0 {
				c.invalidateSchema()
				c.stats.recordSchemaRetry()
				if _, err := c.ensureSpaces(ctx); err != nil {
					c.stats.recordError()
					return nil, err
				}
				continue
			}
			c.stats.recordError()
			return nil, newServerError(resp)
		}

		res, err := decodeResult(def, resp)
		if err != nil {
			c.stats.recordError()
			return nil, err
		}
		c.stats.recordOp(counter)
		return res, nil
	}
}

func (c *Client) execAsync(typ iproto.RequestType, space Space, index Index, counter *uint64, build bodyBuilder) *Future {
	f := newFuture()
	go func() {
		f.complete(c.exec(typ, space, index, counter, build))
	}()
	return f
}

func decodeResult(def *SpaceDef, resp *iproto.Response) (*Result, error) {
	res := &Result{Code: resp.Code, SchemaVersion: resp.SchemaVersion}
	if len(resp.Data) > 0 {
		res.Tuples = make([]*Tuple, 0, len(resp.Data))
		for _, raw := range resp.Data {
			t, err := decodeTuple(def, raw)
			if err != nil {
				return nil, err
			}
			res.Tuples = append(res.Tuples, t)
		}
	}
	return res, nil
}

// Ping round-trips a no-op request. It is untagged: it succeeds
// regardless of the cached schema version. When a schema is cached, its
// reply refreshes the version the client tags subsequent requests with.
func (c *Client) Ping() *Future {
	f := newFuture()
	go func() {
		resp, err := c.conn.Do(iproto.NewPingRequest()).Response(context.Background())
		if err != nil {
			c.stats.recordError()
			f.complete(nil, err)
			return
		}
		if resp.Code != 0 {
			c.stats.recordError()
			f.complete(nil, newServerError(resp))
			return
		}
		if resp.SchemaVersion != 0 {
			c.mu.Lock()
			if c.spaces != nil {
				c.schemaVersion = resp.SchemaVersion
			}
			c.mu.Unlock()
		}
		c.stats.recordOp(&c.stats.stats.Pings)
		f.complete(&Result{SchemaVersion: resp.SchemaVersion}, nil)
	}()
	return f
}

// Insert stores a new tuple; a duplicate primary key is an error. On
// success the stored tuple is returned, decoded.
func (c *Client) Insert(space Space, tuple []any) *Future {
	return c.execAsync(iproto.TypeInsert, space, Index{}, &c.stats.stats.Inserts,
		func(def *SpaceDef, spaceID, _ uint32, body *iproto.Body) error {
			fields, err := packTuple(def, tuple)
			if err != nil {
				return err
			}
			body.AddUint(iproto.KeySpaceID, uint64(spaceID))
			body.AddFields(iproto.KeyTuple, fields)
			return nil
		})
}

// Replace stores a tuple, overwriting any existing one with the same
// primary key.
func (c *Client) Replace(space Space, tuple []any) *Future {
	return c.execAsync(iproto.TypeReplace, space, Index{}, &c.stats.stats.Replaces,
		func(def *SpaceDef, spaceID, _ uint32, body *iproto.Body) error {
			fields, err := packTuple(def, tuple)
			if err != nil {
				return err
			}
			body.AddUint(iproto.KeySpaceID, uint64(spaceID))
			body.AddFields(iproto.KeyTuple, fields)
			return nil
		})
}

// Delete removes the tuple matching the primary key and returns it.
func (c *Client) Delete(space Space, key []any) *Future {
	return c.execAsync(iproto.TypeDelete, space, Index{}, &c.stats.stats.Deletes,
		func(def *SpaceDef, spaceID, indexID uint32, body *iproto.Body) error {
			fields, err := packTuple(def, key)
			if err != nil {
				return err
			}
			body.AddUint(iproto.KeySpaceID, uint64(spaceID))
			body.AddUint(iproto.KeyIndexID, uint64(indexID))
			body.AddFields(iproto.KeyKey, fields)
			return nil
		})
}

// Iterator selects the search direction and inclusivity of a Select.
// The zero value is IterEq.
type Iterator uint8

const (
	IterEq Iterator = iota
	IterGe
	IterGt
	IterLe
	IterLt
	IterAll
)

func (it Iterator) code() iproto.Iter {
	switch it {
	case IterGe:
		return iproto.IterGe
	case IterGt:
		return iproto.IterGt
	case IterLe:
		return iproto.IterLe
	case IterLt:
		return iproto.IterLt
	case IterAll:
		return iproto.IterAll
	}
	return iproto.IterEq
}

func (it Iterator) String() string {
	switch it {
	case IterEq:
		return "EQ"
	case IterGe:
		return "GE"
	case IterGt:
		return "GT"
	case IterLe:
		return "LE"
	case IterLt:
		return "LT"
	case IterAll:
		return "ALL"
	}
	return "unknown"
}

// SelectOptions tunes a Select. A zero Limit means unlimited.
type SelectOptions struct {
	Limit    uint32
	Offset   uint32
	Iterator Iterator
}

func (o SelectOptions) limit() uint64 {
	if o.Limit == 0 {
		return 0xffffffff
	}
	return uint64(o.Limit)
}

// Select reads tuples matching the key from the given index.
func (c *Client) Select(space Space, index Index, key []any, opts SelectOptions) *Future {
	return c.execAsync(iproto.TypeSelect, space, index, &c.stats.stats.Selects,
		func(def *SpaceDef, spaceID, indexID uint32, body *iproto.Body) error {
			fields, err := packTuple(def, key)
			if err != nil {
				return err
			}
			body.AddUint(iproto.KeySpaceID, uint64(spaceID))
			body.AddUint(iproto.KeyIndexID, uint64(indexID))
			body.AddUint(iproto.KeyLimit, opts.limit())
			body.AddUint(iproto.KeyOffset, uint64(opts.Offset))
			body.AddUint(iproto.KeyIterator, uint64(opts.Iterator.code()))
			body.AddFields(iproto.KeyKey, fields)
			return nil
		})
}

// SelectMany issues one select per key and merges the results in key
// order. Opts.Limit bounds the merged result; each underlying select
// carries the same options.
func (c *Client) SelectMany(space Space, index Index, keys [][]any, opts SelectOptions) *Future {
	f := newFuture()
	go func() {
		futures := make([]*Future, len(keys))
		for i, key := range keys {
			futures[i] = c.Select(space, index, key, opts)
		}

		merged := &Result{}
		ctx := context.Background()
		for _, sub := range futures {
			res, err := sub.Result(ctx)
			if err != nil {
				f.complete(nil, err)
				return
			}
			merged.Code = res.Code
			merged.SchemaVersion = res.SchemaVersion
			merged.Tuples = append(merged.Tuples, res.Tuples...)
		}
		if opts.Limit > 0 && uint32(len(merged.Tuples)) > opts.Limit {
			merged.Tuples = merged.Tuples[:opts.Limit]
		}
		f.complete(merged, nil)
	}()
	return f
}

// Update applies the ordered op list to the tuple matching the primary
// key and returns the updated tuple.
func (c *Client) Update(space Space, key []any, ops []Op) *Future {
	return c.execAsync(iproto.TypeUpdate, space, Index{}, &c.stats.stats.Updates,
		func(def *SpaceDef, spaceID, indexID uint32, body *iproto.Body) error {
			fields, err := packTuple(def, key)
			if err != nil {
				return err
			}
			encoded, err := encodeOps(def, ops)
			if err != nil {
				return err
			}
			body.AddUint(iproto.KeySpaceID, uint64(spaceID))
			body.AddUint(iproto.KeyIndexID, uint64(indexID))
			body.AddFields(iproto.KeyKey, fields)
			body.AddRaw(iproto.KeyTuple, encoded)
			return nil
		})
}

// Upsert inserts the tuple, or applies the ops when a tuple with the
// same primary key already exists. Returns no data.
func (c *Client) Upsert(space Space, tuple []any, ops []Op) *Future {
	return c.execAsync(iproto.TypeUpsert, space, Index{}, &c.stats.stats.Upserts,
		func(def *SpaceDef, spaceID, _ uint32, body *iproto.Body) error {
			fields, err := packTuple(def, tuple)
			if err != nil {
				return err
			}
			encoded, err := encodeOps(def, ops)
			if err != nil {
				return err
			}
			body.AddUint(iproto.KeySpaceID, uint64(spaceID))
			body.AddFields(iproto.KeyTuple, fields)
			body.AddRaw(iproto.KeyOps, encoded)
			return nil
		})
}

// Call invokes a server-side stored procedure. Arguments are encoded
// with the generic msgpack rules and returned tuples are raw: no field
// coding is applied in either direction.
func (c *Client) Call(proc string, args []any) *Future {
	f := newFuture()
	go func() {
		ctx := context.Background()
		for attempt := 0; ; attempt++ {
			req := iproto.NewRequest(iproto.TypeCall)
			req.SchemaVersion = c.currentSchemaVersion()
			req.Body.AddString(iproto.KeyFunctionName, proc)
			req.Body.AddValues(iproto.KeyTuple, args)

			resp, err := c.conn.Do(req).Response(ctx)
			if err != nil {
				c.stats.recordError()
				f.complete(nil, err)
				return
			}
			if resp.Code != 0 {
				if resp.IsStaleSchema() && attempt == 0 {
					c.invalidateSchema()
					c.stats.recordSchemaRetry()
					if _, err := c.ensureSpaces(ctx); err != nil {
						c.stats.recordError()
						f.complete(nil, err)
						return
					}
					continue
				}
				c.stats.recordError()
				f.complete(nil, newServerError(resp))
				return
			}

			res, err := decodeResult(nil, resp)
			if err != nil {
				c.stats.recordError()
				f.complete(nil, err)
				return
			}
			c.stats.recordOp(&c.stats.stats.Calls)
			f.complete(res, nil)
			return
		}
	}()
	return f
}
