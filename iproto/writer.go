package iproto

import (
	"bytes"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Buffer pool for building frames
var bufferPool = sync.Pool{
	New: func() any {
		// Typical frame is well under 256 bytes
		return bytes.NewBuffer(make([]byte, 0, 256))
	},
}

func getBuffer() *bytes.Buffer {
	return bufferPool.Get().(*bytes.Buffer)
}

func putBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1<<16 {
		return
	}
	buf.Reset()
	bufferPool.Put(buf)
}

// writeFrame emits the length prefix (0xce + u32 big-endian, always the
// 5-byte form so the prefix size does not depend on the payload) and the
// payload.
func writeFrame(w io.Writer, payload []byte) error {
	n := len(payload)
	prefix := [5]byte{0xce, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}
	if _, err := w.Write(prefix[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// WriteRequest serializes a Request to wire format and writes it to w.
// Frame layout: <len><header map><body map>, all msgpack.
//
// Header keys: KeyRequestType, KeySync, and KeySchemaVersion when the
// request is tagged with a schema version.
func WriteRequest(w io.Writer, req *Request) error {
	if err := req.Body.Err(); err != nil {
		return &ParseError{Message: "building request body", Err: err}
	}

	buf := getBuffer()
	defer putBuffer(buf)

	enc := msgpack.NewEncoder(buf)

	hdrLen := 2
	if req.SchemaVersion != 0 {
		hdrLen = 3
	}
	enc.EncodeMapLen(hdrLen)
	enc.EncodeUint(uint64(KeyRequestType))
	enc.EncodeUint(uint64(req.Type))
	enc.EncodeUint(uint64(KeySync))
	enc.EncodeUint(uint64(req.Sync))
	if req.SchemaVersion != 0 {
		enc.EncodeUint(uint64(KeySchemaVersion))
		enc.EncodeUint(uint64(req.SchemaVersion))
	}

	enc.EncodeMapLen(req.Body.Count())
	buf.Write(req.Body.Bytes())

	return writeFrame(w, buf.Bytes())
}

// WriteResponse serializes a Response to wire format and writes it to w.
// Used by the in-process test server and by round-trip tests; a client
// never sends responses.
//
// When Code is non-zero the header type is ErrorFlag | Code in place of
// the echoed type; the body
// carries KeyError on failure and KeyData when tuples are present.
func WriteResponse(w io.Writer, resp *Response) error {
	buf := getBuffer()
	defer putBuffer(buf)

	enc := msgpack.NewEncoder(buf)

	typ := uint64(resp.Type)
	if resp.Code != 0 {
		typ = uint64(ErrorFlag) | uint64(resp.Code)
	}

	hdrLen := 2
	if resp.SchemaVersion != 0 {
		hdrLen = 3
	}
	enc.EncodeMapLen(hdrLen)
	enc.EncodeUint(uint64(KeyRequestType))
	enc.EncodeUint(typ)
	enc.EncodeUint(uint64(KeySync))
	enc.EncodeUint(uint64(resp.Sync))
	if resp.SchemaVersion != 0 {
		enc.EncodeUint(uint64(KeySchemaVersion))
		enc.EncodeUint(uint64(resp.SchemaVersion))
	}

	bodyLen := 0
	if resp.Code != 0 {
		bodyLen++
	}
	if resp.Data != nil {
		bodyLen++
	}
	enc.EncodeMapLen(bodyLen)
	if resp.Code != 0 {
		enc.EncodeUint(uint64(KeyError))
		enc.EncodeString(resp.Message)
	}
	if resp.Data != nil {
		enc.EncodeUint(uint64(KeyData))
		enc.EncodeArrayLen(len(resp.Data))
		for _, tuple := range resp.Data {
			enc.EncodeArrayLen(len(tuple))
			for _, field := range tuple {
				if err := enc.Encode(field); err != nil {
					return &ParseError{Message: "encoding response tuple", Err: err}
				}
			}
		}
	}

	return writeFrame(w, buf.Bytes())
}
