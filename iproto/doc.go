// Package iproto provides a low-level wire protocol implementation for
// the binary request/response protocol spoken by the tuple store.
//
// This package serves as a foundation for building higher-level clients
// with different properties (pipelining, pooling, schema awareness).
// It focuses on correctness and performance for serialization and
// parsing, without imposing architectural decisions on clients.
//
// # Framing
//
// Each direction of the connection carries a sequence of frames. A frame
// is a msgpack unsigned integer length prefix followed by a header map
// and a body map, both keyed by small numeric constants:
//
//	<len> {KeyRequestType: t, KeySync: id, KeySchemaVersion: v} {body...}
//
// The header of a failed response carries ErrorFlag OR'd into the type
// value; the low bits then hold the error class (see ErrorName).
//
// # Core Types
//
// Request and Response are pure data containers without embedded logic:
//
//   - Request: a request type, sync id, schema tag and an append-built Body
//   - Response: the echoed type, code, schema version, message, and tuples
//   - RequestFrame: a request as decoded by the receiving side
//
// # Serialization and Parsing
//
// WriteRequest serializes requests to wire format:
//
//	req := iproto.NewRequest(iproto.TypeSelect)
//	req.Body.AddUint(iproto.KeySpaceID, 512)
//	err := iproto.WriteRequest(conn, req)
//
// ReadResponse parses responses from wire format:
//
//	resp, err := iproto.ReadResponse(bufio.NewReader(conn))
//	if err != nil {
//	    if iproto.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//
// A reply with a non-zero server code is a valid Response, not a Go
// error: the connection remains usable and the caller decides how to
// surface the failure.
//
// # Handshake
//
// ParseGreeting extracts the challenge salt from the 128-byte banner the
// server sends on connect; NewAuthRequest builds the chap-sha1 response
// to it.
package iproto
