package iproto

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// Request represents a protocol request.
// This is a low-level container for request data without framing logic.
// Fields map directly to protocol elements.
type Request struct {
	// Type is the request type code (TypeSelect, TypeInsert, ...).
	Type RequestType

	// Sync is the per-connection request id echoed by the server.
	// Assigned by the transport at send time.
	Sync uint32

	// SchemaVersion tags the request with the schema the sender planned
	// against. Zero means untagged: the server executes unconditionally.
	SchemaVersion uint32

	// Body holds the serialized body map entries.
	Body Body
}

// NewRequest creates a request of the given type with an empty body.
// Use the Body Add* methods to populate it:
//
//	req := NewRequest(TypeSelect)
//	req.Body.AddUint(KeySpaceID, 281)
//	req.Body.AddUint(KeyIndexID, 0)
//	req.Body.AddUint(KeyIterator, uint64(IterAll))
func NewRequest(t RequestType) *Request {
	return &Request{Type: t}
}

// NewPingRequest creates a ping request. It carries no body.
func NewPingRequest() *Request {
	return NewRequest(TypePing)
}

// Body is an append-only builder for the request body map.
//
// The zero value is ready to use.
//
// It accumulates already-encoded key/value pairs so that WriteRequest
// can emit the body with a single map header and one buffer copy.
type Body struct {
	n   int
	buf bytes.Buffer
	enc *msgpack.Encoder
	err error
}

func (b *Body) encoder() *msgpack.Encoder {
	if b.enc == nil {
		b.enc = msgpack.NewEncoder(&b.buf)
	}
	return b.enc
}

// Count returns the number of key/value pairs added.
func (b *Body) Count() int { return b.n }

// Bytes returns the encoded pairs, without the leading map header.
func (b *Body) Bytes() []byte { return b.buf.Bytes() }

// Err returns the first encoding error, if any. WriteRequest refuses
// to emit a body that failed to build.
func (b *Body) Err() error { return b.err }

func (b *Body) Reset() {
	b.n = 0
	b.buf.Reset()
	b.err = nil
}

func (b *Body) key(k Key) *msgpack.Encoder {
	enc := b.encoder()
	b.setErr(enc.EncodeUint(uint64(k)))
	b.n++
	return enc
}

func (b *Body) setErr(err error) {
	if err != nil && b.err == nil {
		b.err = err
	}
}

// AddUint adds an unsigned integer value.
func (b *Body) AddUint(k Key, v uint64) {
	b.setErr(b.key(k).EncodeUint(v))
}

// AddString adds a string value.
func (b *Body) AddString(k Key, s string) {
	b.setErr(b.key(k).EncodeString(s))
}

// AddFields adds an array of binary string fields: a key or a tuple
// whose fields are already packed to their wire representation.
func (b *Body) AddFields(k Key, fields [][]byte) {
	enc := b.key(k)
	b.setErr(enc.EncodeArrayLen(len(fields)))
	for _, f := range fields {
		b.setErr(enc.EncodeString(string(f)))
	}
}

// AddValues adds an array of arbitrary values encoded with the generic
// msgpack rules (call arguments, auth tuple).
func (b *Body) AddValues(k Key, vals []any) {
	enc := b.key(k)
	b.setErr(enc.EncodeArrayLen(len(vals)))
	for _, v := range vals {
		b.setErr(enc.Encode(v))
	}
}

// AddRaw adds a value that is already msgpack-encoded (update op lists).
func (b *Body) AddRaw(k Key, raw []byte) {
	b.key(k)
	_, err := b.buf.Write(raw)
	b.setErr(err)
}
