package tarantool

import (
	"context"
	"sync"

	"github.com/pior/tarantool/iproto"
)

// RequestFuture is the completion handle for a single transport-level
// request. It is completed exactly once: with the server's response,
// or with a transport error.
type RequestFuture struct {
	done chan struct{}
	once sync.Once
	resp *iproto.Response
	err  error
}

func newRequestFuture() *RequestFuture {
	return &RequestFuture{done: make(chan struct{})}
}

func (f *RequestFuture) complete(resp *iproto.Response, err error) {
	f.once.Do(func() {
		f.resp = resp
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the request completes.
func (f *RequestFuture) Done() <-chan struct{} {
	return f.done
}

// Response awaits completion and returns the response envelope. A
// response with a non-zero code is returned as-is, not as an error:
// the caller inspects Response.Code.
func (f *RequestFuture) Response(ctx context.Context) (*iproto.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Future is the completion handle for a client operation. It is
// completed exactly once: with a decoded result, or with an error
// (*ServerError for server-reported failures, *ClientError for
// transport failures).
type Future struct {
	done chan struct{}
	once sync.Once
	res  *Result
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(res *Result, err error) {
	f.once.Do(func() {
		f.res = res
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the operation completes.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result awaits completion and returns the operation result.
func (f *Future) Result(ctx context.Context) (*Result, error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
