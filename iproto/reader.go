package iproto

import (
	"bufio"
	"bytes"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize bounds the length prefix accepted from the peer. Frames
// above it are treated as protocol corruption.
const MaxFrameSize = 64 << 20

// readFrame reads the msgpack-uint length prefix and then the whole
// payload. Partial frames are buffered by the bufio.Reader until
// complete; the caller only ever sees whole frames.
func readFrame(r *bufio.Reader) ([]byte, error) {
	c, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	var n uint64
	switch {
	case c <= 0x7f:
		n = uint64(c)
	case c == 0xcc:
		b, err := r.ReadByte()
		if err != nil {
			return nil, eofToParse(err, "frame length")
		}
		n = uint64(b)
	case c == 0xcd:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, eofToParse(err, "frame length")
		}
		n = uint64(b[0])<<8 | uint64(b[1])
	case c == 0xce:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, eofToParse(err, "frame length")
		}
		n = uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3])
	default:
		return nil, &ParseError{Message: "invalid frame length prefix"}
	}

	if n > MaxFrameSize {
		return nil, &ParseError{Message: "frame exceeds maximum size"}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, eofToParse(err, "frame payload")
	}
	return payload, nil
}

// eofToParse converts an EOF in the middle of a frame into a ParseError:
// a clean EOF is only acceptable between frames.
func eofToParse(err error, what string) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &ParseError{Message: "truncated " + what, Err: err}
	}
	return err
}

type header struct {
	typ           uint64
	sync          uint32
	schemaVersion uint32
}

func readHeader(dec *msgpack.Decoder) (header, error) {
	var h header

	pairs, err := dec.DecodeMapLen()
	if err != nil {
		return h, &ParseError{Message: "reading frame header", Err: err}
	}
	for i := 0; i < pairs; i++ {
		k, err := dec.DecodeUint64()
		if err != nil {
			return h, &ParseError{Message: "reading header key", Err: err}
		}
		switch Key(k) {
		case KeyRequestType:
			h.typ, err = dec.DecodeUint64()
		case KeySync:
			var v uint64
			v, err = dec.DecodeUint64()
			h.sync = uint32(v)
		case KeySchemaVersion:
			var v uint64
			v, err = dec.DecodeUint64()
			h.schemaVersion = uint32(v)
		default:
			err = dec.Skip()
		}
		if err != nil {
			return h, &ParseError{Message: "reading header value", Err: err}
		}
	}
	return h, nil
}

// ReadResponse reads and parses a single response frame from r.
//
// A well-formed reply with a non-zero server code is NOT a Go error:
// it is returned as a Response with Code and Message set, and the
// connection stays healthy. Go errors indicate I/O or framing failures:
//
//   - io.EOF: connection closed between frames
//   - *ParseError: malformed frame, connection should be closed
//   - other I/O errors: connection issues, connection should be closed
func ReadResponse(r *bufio.Reader) (*Response, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	dec := msgpack.NewDecoder(bytes.NewReader(payload))

	h, err := readHeader(dec)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Sync:          h.sync,
		SchemaVersion: h.schemaVersion,
	}
	if h.typ&uint64(ErrorFlag) != 0 {
		resp.Code = uint32(h.typ) &^ ErrorFlag
		if resp.Code == 0 {
			// The flag alone, with no class, is still an error.
			resp.Code = ErrorFlag
		}
	} else {
		resp.Type = RequestType(h.typ)
	}

	if _, err := dec.PeekCode(); err == io.EOF {
		return resp, nil
	}
	pairs, err := dec.DecodeMapLen()
	if err != nil {
		return nil, &ParseError{Message: "reading response body", Err: err}
	}
	for i := 0; i < pairs; i++ {
		k, err := dec.DecodeUint64()
		if err != nil {
			return nil, &ParseError{Message: "reading body key", Err: err}
		}
		switch Key(k) {
		case KeyError:
			resp.Message, err = dec.DecodeString()
		case KeyData:
			resp.Data, err = decodeTuples(dec)
		default:
			err = dec.Skip()
		}
		if err != nil {
			return nil, &ParseError{Message: "reading body value", Err: err}
		}
	}

	return resp, nil
}

func decodeTuples(dec *msgpack.Decoder) ([][]any, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, nil
	}
	tuples := make([][]any, 0, n)
	for i := 0; i < n; i++ {
		tuple, err := dec.DecodeSlice()
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

// RequestFrame is a fully decoded request, as seen by the receiving
// side. Used by the in-process test server and by round-trip tests.
type RequestFrame struct {
	Type          RequestType
	Sync          uint32
	SchemaVersion uint32

	// Fields holds the decoded body map.
	Fields map[Key]any
}

// Uint returns the body value for k as an unsigned integer.
func (f *RequestFrame) Uint(k Key) (uint64, bool) {
	return asUint64(f.Fields[k])
}

// String returns the body value for k as a string.
func (f *RequestFrame) String(k Key) (string, bool) {
	s, ok := f.Fields[k].(string)
	return s, ok
}

// Tuple returns the body value for k as a list of binary string fields.
func (f *RequestFrame) Tuple(k Key) ([][]byte, bool) {
	vals, ok := f.Fields[k].([]any)
	if !ok {
		return nil, false
	}
	fields := make([][]byte, 0, len(vals))
	for _, v := range vals {
		switch s := v.(type) {
		case string:
			fields = append(fields, []byte(s))
		case []byte:
			fields = append(fields, s)
		default:
			return nil, false
		}
	}
	return fields, true
}

// Values returns the body value for k as a decoded array.
func (f *RequestFrame) Values(k Key) ([]any, bool) {
	vals, ok := f.Fields[k].([]any)
	return vals, ok
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int16:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int8:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

// ReadRequest reads and parses a single request frame from r. The body
// map is decoded generically: integers, strings, and nested arrays keep
// their msgpack shapes.
func ReadRequest(r *bufio.Reader) (*RequestFrame, error) {
	payload, err := readFrame(r)
	if err != nil {
		return nil, err
	}

	dec := msgpack.NewDecoder(bytes.NewReader(payload))

	h, err := readHeader(dec)
	if err != nil {
		return nil, err
	}

	frame := &RequestFrame{
		Type:          RequestType(h.typ),
		Sync:          h.sync,
		SchemaVersion: h.schemaVersion,
		Fields:        make(map[Key]any),
	}

	if _, err := dec.PeekCode(); err == io.EOF {
		return frame, nil
	}
	pairs, err := dec.DecodeMapLen()
	if err != nil {
		return nil, &ParseError{Message: "reading request body", Err: err}
	}
	for i := 0; i < pairs; i++ {
		k, err := dec.DecodeUint64()
		if err != nil {
			return nil, &ParseError{Message: "reading body key", Err: err}
		}
		v, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return nil, &ParseError{Message: "reading body value", Err: err}
		}
		frame.Fields[Key(k)] = v
	}

	return frame, nil
}
