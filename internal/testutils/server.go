// Package testutils provides an in-process server speaking enough of
// the binary protocol for deterministic client tests: greeting, auth,
// the data-plane operations with real storage semantics, metadata
// space selects, and schema version checks.
package testutils

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/pior/tarantool/iproto"
)

// FieldMeta describes one field of a served space format.
type FieldMeta struct {
	Name string
	Type string // "STR", "UTF8STR", "NUM", "NUM64"
}

// IndexMeta describes one index of a served space. Parts reference
// field positions with their types.
type IndexMeta struct {
	ID    uint32
	Name  string
	Parts [][2]any // {field_no, type}
}

// SpaceMeta describes a space served through _vspace/_vindex.
type SpaceMeta struct {
	ID      uint32
	Name    string
	Fields  []FieldMeta
	Indexes []IndexMeta
}

// ProcFunc implements a served stored procedure.
type ProcFunc func(args []any) ([][]any, error)

// Server is an in-process protocol peer bound to 127.0.0.1.
type Server struct {
	ln net.Listener

	// credentials; empty user disables the auth check
	user     string
	password string

	mu            sync.Mutex
	schemaVersion uint32
	meta          []SpaceMeta
	spaces        map[uint32]*spaceStore
	procs         map[string]ProcFunc
	metaSelects   int
	staleTagged   bool
	delayNext     time.Duration
	dropNext      int
	conns         []net.Conn
	closed        bool
}

type spaceStore struct {
	rows map[string][][]byte // primary key bytes -> tuple
}

// Option configures the server.
type Option func(*Server)

// WithAuth requires the chap-sha1 exchange with these credentials.
func WithAuth(user, password string) Option {
	return func(s *Server) {
		s.user = user
		s.password = password
	}
}

// WithSpaces sets the metadata served through _vspace/_vindex and
// creates empty storage for each space.
func WithSpaces(meta ...SpaceMeta) Option {
	return func(s *Server) {
		s.meta = meta
		for _, m := range meta {
			s.spaces[m.ID] = &spaceStore{rows: make(map[string][][]byte)}
		}
	}
}

// WithProc registers a stored procedure.
func WithProc(name string, fn ProcFunc) Option {
	return func(s *Server) {
		s.procs[name] = fn
	}
}

// NewServer starts the server on an ephemeral port.
func NewServer(opts ...Option) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:            ln,
		schemaVersion: 1,
		spaces:        make(map[uint32]*spaceStore),
		procs:         make(map[string]ProcFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the listening address, host:port.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Host and Port split the listening address.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr())
	return host
}

func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.Addr())
	var n int
	fmt.Sscanf(port, "%d", &n)
	return n
}

// Close stops the listener and drops every open connection.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	s.ln.Close()
	for _, c := range conns {
		c.Close()
	}
}

// DropConnections closes every established connection but keeps
// listening, simulating a mid-session connection loss.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// BumpSchemaVersion simulates server-side DDL: requests tagged with the
// previous version are rejected with ER_WRONG_SCHEMA_VERSION.
func (s *Server) BumpSchemaVersion() {
	s.mu.Lock()
	s.schemaVersion++
	s.mu.Unlock()
}

// ForceStaleTagged makes the server reject every version-tagged data
// request with ER_WRONG_SCHEMA_VERSION, regardless of the actual
// version. Untagged requests (discovery, ping) still succeed.
func (s *Server) ForceStaleTagged(v bool) {
	s.mu.Lock()
	s.staleTagged = v
	s.mu.Unlock()
}

// MetaSelects returns how many selects hit the metadata spaces, for
// asserting when discovery ran.
func (s *Server) MetaSelects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metaSelects
}

// DelayNextResponse delays the reply to the next request of any type
// but auth (pings included), for exercising per-request timeouts and
// late replies.
func (s *Server) DelayNextResponse(d time.Duration) {
	s.mu.Lock()
	s.delayNext = d
	s.mu.Unlock()
}

// SwallowNextRequests makes the server read but never answer the next
// n requests of any type but auth (pings included).
func (s *Server) SwallowNextRequests(n int) {
	s.mu.Lock()
	s.dropNext = n
	s.mu.Unlock()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()

	salt := make([]byte, 32)
	rand.Read(salt)
	if err := writeGreeting(conn, salt); err != nil {
		return
	}

	r := bufio.NewReader(conn)
	var writeMu sync.Mutex

	authed := s.user == ""
	for {
		frame, err := iproto.ReadRequest(r)
		if err != nil {
			return
		}

		if frame.Type == iproto.TypeAuth {
			resp := s.handleAuth(frame, salt)
			if resp.Code == 0 {
				authed = true
			}
			writeMu.Lock()
			iproto.WriteResponse(conn, resp)
			writeMu.Unlock()
			continue
		}

		if !authed {
			writeMu.Lock()
			iproto.WriteResponse(conn, errResponse(frame, iproto.ErrAccessDenied, "authentication required"))
			writeMu.Unlock()
			continue
		}

		s.mu.Lock()
		delay := s.delayNext
		s.delayNext = 0
		if s.dropNext > 0 {
			s.dropNext--
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		resp := s.handle(frame)

		go func() {
			if delay > 0 {
				time.Sleep(delay)
			}
			writeMu.Lock()
			iproto.WriteResponse(conn, resp)
			writeMu.Unlock()
		}()
	}
}

func writeGreeting(conn net.Conn, salt []byte) error {
	greeting := make([]byte, iproto.GreetingSize)
	for i := range greeting {
		greeting[i] = ' '
	}
	copy(greeting, "Tarantool 1.6 (Binary) testutils")
	greeting[iproto.GreetingSaltOff-1] = '\n'

	encoded := base64.StdEncoding.EncodeToString(salt)
	copy(greeting[iproto.GreetingSaltOff:], encoded[:iproto.GreetingSaltLen])
	greeting[iproto.GreetingSize-1] = '\n'

	_, err := conn.Write(greeting)
	return err
}

func okResponse(frame *iproto.RequestFrame, version uint32, data [][]any) *iproto.Response {
	return &iproto.Response{
		Type:          frame.Type,
		Sync:          frame.Sync,
		SchemaVersion: version,
		Data:          data,
	}
}

func errResponse(frame *iproto.RequestFrame, code uint32, msg string) *iproto.Response {
	return &iproto.Response{
		Sync:    frame.Sync,
		Code:    code,
		Message: msg,
	}
}

func (s *Server) handleAuth(frame *iproto.RequestFrame, salt []byte) *iproto.Response {
	user, _ := frame.String(iproto.KeyUserName)
	tuple, ok := frame.Tuple(iproto.KeyTuple)
	if !ok || len(tuple) != 2 {
		return errResponse(frame, iproto.ErrIllegalParams, "malformed auth request")
	}
	expected := iproto.Scramble(salt, s.password)
	if user != s.user || !bytes.Equal(tuple[1], expected) {
		return errResponse(frame, iproto.ErrPasswordMismatch, fmt.Sprintf("incorrect password supplied for user '%s'", user))
	}
	return okResponse(frame, 0, nil)
}

func (s *Server) handle(frame *iproto.RequestFrame) *iproto.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frame.Type == iproto.TypePing {
		return okResponse(frame, s.schemaVersion, nil)
	}

	spaceID, _ := frame.Uint(iproto.KeySpaceID)
	isMeta := uint32(spaceID) == iproto.VSpaceID || uint32(spaceID) == iproto.VIndexID

	if frame.SchemaVersion != 0 && !isMeta {
		if s.staleTagged || frame.SchemaVersion != s.schemaVersion {
			return errResponse(frame, iproto.ErrWrongSchemaVersion, "schema version mismatch")
		}
	}

	switch frame.Type {
	case iproto.TypeSelect:
		return s.handleSelect(frame)
	case iproto.TypeInsert:
		return s.handleInsert(frame, false)
	case iproto.TypeReplace:
		return s.handleInsert(frame, true)
	case iproto.TypeDelete:
		return s.handleDelete(frame)
	case iproto.TypeUpdate:
		return s.handleUpdate(frame)
	case iproto.TypeUpsert:
		return s.handleUpsert(frame)
	case iproto.TypeCall:
		return s.handleCall(frame)
	}
	return errResponse(frame, iproto.ErrUnknownRequestType, fmt.Sprintf("unknown request type %d", frame.Type))
}

func (s *Server) handleSelect(frame *iproto.RequestFrame) *iproto.Response {
	spaceID64, _ := frame.Uint(iproto.KeySpaceID)
	spaceID := uint32(spaceID64)

	if spaceID == iproto.VSpaceID {
		s.metaSelects++
		return okResponse(frame, s.schemaVersion, s.vspaceRows())
	}
	if spaceID == iproto.VIndexID {
		s.metaSelects++
		return okResponse(frame, s.schemaVersion, s.vindexRows())
	}

	store, ok := s.spaces[spaceID]
	if !ok {
		return errResponse(frame, iproto.ErrNoSuchSpace, fmt.Sprintf("space %d does not exist", spaceID))
	}

	key, _ := frame.Tuple(iproto.KeyKey)
	iter, _ := frame.Uint(iproto.KeyIterator)
	limit, hasLimit := frame.Uint(iproto.KeyLimit)
	offset, _ := frame.Uint(iproto.KeyOffset)
	if !hasLimit {
		limit = 0xffffffff
	}

	keys := make([]string, 0, len(store.rows))
	for k := range store.rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var want string
	if len(key) > 0 {
		want = string(key[0])
	}

	matched := make([][]any, 0)
	for _, k := range keys {
		hit := false
		switch iproto.Iter(iter) {
		case iproto.IterAll:
			hit = true
		case iproto.IterEq:
			hit = len(key) > 0 && k == want
		case iproto.IterGe:
			hit = k >= want
		case iproto.IterGt:
			hit = k > want
		case iproto.IterLe:
			hit = k <= want
		case iproto.IterLt:
			hit = k < want
		default:
			return errResponse(frame, iproto.ErrIteratorType, "unknown iterator type")
		}
		if !hit {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		if uint64(len(matched)) >= limit {
			break
		}
		matched = append(matched, tupleToRow(store.rows[k]))
	}

	return okResponse(frame, s.schemaVersion, matched)
}

func (s *Server) handleInsert(frame *iproto.RequestFrame, replace bool) *iproto.Response {
	store, resp := s.storeFor(frame)
	if resp != nil {
		return resp
	}
	tuple, ok := frame.Tuple(iproto.KeyTuple)
	if !ok || len(tuple) == 0 {
		return errResponse(frame, iproto.ErrTupleNotArray, "tuple must be a non-empty array")
	}

	pk := string(tuple[0])
	if _, exists := store.rows[pk]; exists && !replace {
		return errResponse(frame, iproto.ErrTupleFound, "tuple already exists in unique index")
	}
	store.rows[pk] = tuple

	return okResponse(frame, s.schemaVersion, [][]any{tupleToRow(tuple)})
}

func (s *Server) handleDelete(frame *iproto.RequestFrame) *iproto.Response {
	store, resp := s.storeFor(frame)
	if resp != nil {
		return resp
	}
	key, ok := frame.Tuple(iproto.KeyKey)
	if !ok || len(key) == 0 {
		return errResponse(frame, iproto.ErrKeyPartCount, "key must be a non-empty array")
	}

	pk := string(key[0])
	tuple, exists := store.rows[pk]
	if !exists {
		return okResponse(frame, s.schemaVersion, [][]any{})
	}
	delete(store.rows, pk)
	return okResponse(frame, s.schemaVersion, [][]any{tupleToRow(tuple)})
}

func (s *Server) handleUpdate(frame *iproto.RequestFrame) *iproto.Response {
	store, resp := s.storeFor(frame)
	if resp != nil {
		return resp
	}
	key, ok := frame.Tuple(iproto.KeyKey)
	if !ok || len(key) == 0 {
		return errResponse(frame, iproto.ErrKeyPartCount, "key must be a non-empty array")
	}
	ops, ok := frame.Values(iproto.KeyTuple)
	if !ok {
		return errResponse(frame, iproto.ErrIllegalParams, "missing update operations")
	}

	pk := string(key[0])
	tuple, exists := store.rows[pk]
	if !exists {
		return okResponse(frame, s.schemaVersion, [][]any{})
	}

	updated, code, msg := applyOps(tuple, ops)
	if code != 0 {
		return errResponse(frame, code, msg)
	}
	delete(store.rows, pk)
	store.rows[string(updated[0])] = updated

	return okResponse(frame, s.schemaVersion, [][]any{tupleToRow(updated)})
}

func (s *Server) handleUpsert(frame *iproto.RequestFrame) *iproto.Response {
	store, resp := s.storeFor(frame)
	if resp != nil {
		return resp
	}
	tuple, ok := frame.Tuple(iproto.KeyTuple)
	if !ok || len(tuple) == 0 {
		return errResponse(frame, iproto.ErrTupleNotArray, "tuple must be a non-empty array")
	}
	ops, ok := frame.Values(iproto.KeyOps)
	if !ok {
		return errResponse(frame, iproto.ErrIllegalParams, "missing upsert operations")
	}

	pk := string(tuple[0])
	existing, exists := store.rows[pk]
	if !exists {
		store.rows[pk] = tuple
		return okResponse(frame, s.schemaVersion, nil)
	}

	updated, code, msg := applyOps(existing, ops)
	if code != 0 {
		return errResponse(frame, code, msg)
	}
	delete(store.rows, pk)
	store.rows[string(updated[0])] = updated
	return okResponse(frame, s.schemaVersion, nil)
}

func (s *Server) handleCall(frame *iproto.RequestFrame) *iproto.Response {
	name, _ := frame.String(iproto.KeyFunctionName)
	fn, ok := s.procs[name]
	if !ok {
		return errResponse(frame, iproto.ErrNoSuchProc, fmt.Sprintf("procedure '%s' is not defined", name))
	}
	args, _ := frame.Values(iproto.KeyTuple)
	rows, err := fn(args)
	if err != nil {
		return errResponse(frame, iproto.ErrProcLua, err.Error())
	}
	return okResponse(frame, s.schemaVersion, rows)
}

func (s *Server) storeFor(frame *iproto.RequestFrame) (*spaceStore, *iproto.Response) {
	spaceID64, _ := frame.Uint(iproto.KeySpaceID)
	store, ok := s.spaces[uint32(spaceID64)]
	if !ok {
		return nil, errResponse(frame, iproto.ErrNoSuchSpace, fmt.Sprintf("space %d does not exist", spaceID64))
	}
	return store, nil
}

func (s *Server) vspaceRows() [][]any {
	rows := make([][]any, 0, len(s.meta))
	for _, m := range s.meta {
		format := make([]any, 0, len(m.Fields))
		for _, f := range m.Fields {
			format = append(format, map[string]any{"name": f.Name, "type": f.Type})
		}
		rows = append(rows, []any{
			m.ID, uint64(1), m.Name, "memtx", uint64(len(m.Fields)), map[string]any{}, format,
		})
	}
	return rows
}

func (s *Server) vindexRows() [][]any {
	rows := make([][]any, 0)
	for _, m := range s.meta {
		for _, idx := range m.Indexes {
			parts := make([]any, 0, len(idx.Parts))
			for _, p := range idx.Parts {
				parts = append(parts, []any{p[0], p[1]})
			}
			rows = append(rows, []any{
				m.ID, idx.ID, idx.Name, "tree", map[string]any{"unique": true}, parts,
			})
		}
	}
	return rows
}

func tupleToRow(tuple [][]byte) []any {
	row := make([]any, len(tuple))
	for i, f := range tuple {
		row[i] = string(f)
	}
	return row
}

// applyOps applies an ordered op list to a tuple, implementing the
// server-side update semantics the client codes against: value and
// arithmetic operands arrive packed per the field type, splice operands
// arrive as plain integers.
func applyOps(tuple [][]byte, ops []any) ([][]byte, uint32, string) {
	out := make([][]byte, len(tuple))
	copy(out, tuple)

	for _, raw := range ops {
		op, ok := raw.([]any)
		if !ok || len(op) < 2 {
			return nil, iproto.ErrIllegalParams, "malformed update operation"
		}
		code, ok := op[0].(string)
		if !ok {
			return nil, iproto.ErrUnknownUpdateOp, "operation code must be a string"
		}
		fieldNo, ok := asInt(op[1])
		if !ok || fieldNo < 0 {
			return nil, iproto.ErrNoSuchField, "bad field number"
		}

		switch code {
		case "=":
			val, ok := argBytes(op, 2)
			if !ok || fieldNo >= len(out) {
				return nil, iproto.ErrNoSuchField, fmt.Sprintf("no field %d to assign", fieldNo)
			}
			out[fieldNo] = val

		case "!":
			val, ok := argBytes(op, 2)
			if !ok || fieldNo > len(out) {
				return nil, iproto.ErrNoSuchField, fmt.Sprintf("cannot insert at field %d", fieldNo)
			}
			out = append(out[:fieldNo], append([][]byte{val}, out[fieldNo:]...)...)

		case "#":
			if fieldNo >= len(out) {
				return nil, iproto.ErrNoSuchField, fmt.Sprintf("no field %d to delete", fieldNo)
			}
			out = append(out[:fieldNo], out[fieldNo+1:]...)

		case ":":
			if len(op) < 5 || fieldNo >= len(out) {
				return nil, iproto.ErrSplice, "malformed splice operation"
			}
			offset, ok1 := asInt(op[2])
			cut, ok2 := asInt(op[3])
			ins, ok3 := argBytes(op, 4)
			if !ok1 || !ok2 || !ok3 {
				return nil, iproto.ErrSplice, "malformed splice operation"
			}
			out[fieldNo] = splice(out[fieldNo], offset, cut, ins)

		case "+", "-", "&", "|", "^":
			operand, ok := argBytes(op, 2)
			if !ok || fieldNo >= len(out) {
				return nil, iproto.ErrNoSuchField, fmt.Sprintf("no field %d to update", fieldNo)
			}
			res, err := arith(code, out[fieldNo], operand)
			if err != nil {
				return nil, iproto.ErrArgType, err.Error()
			}
			out[fieldNo] = res

		default:
			return nil, iproto.ErrUnknownUpdateOp, fmt.Sprintf("unknown update operation '%s'", code)
		}
	}

	return out, 0, ""
}

func splice(field []byte, offset, cut int, ins []byte) []byte {
	if offset > len(field) {
		offset = len(field)
	}
	end := offset + cut
	if end > len(field) {
		end = len(field)
	}
	out := make([]byte, 0, len(field)-(end-offset)+len(ins))
	out = append(out, field[:offset]...)
	out = append(out, ins...)
	out = append(out, field[end:]...)
	return out
}

// arith computes on little-endian packed numeric fields. Field and
// operand sizes must agree.
func arith(code string, field, operand []byte) ([]byte, error) {
	if len(field) != len(operand) || (len(field) != 4 && len(field) != 8) {
		return nil, fmt.Errorf("arithmetic on non-numeric field")
	}

	var a, b uint64
	if len(field) == 4 {
		a = uint64(binary.LittleEndian.Uint32(field))
		b = uint64(binary.LittleEndian.Uint32(operand))
	} else {
		a = binary.LittleEndian.Uint64(field)
		b = binary.LittleEndian.Uint64(operand)
	}

	var r uint64
	switch code {
	case "+":
		r = a + b
	case "-":
		r = a - b
	case "&":
		r = a & b
	case "|":
		r = a | b
	case "^":
		r = a ^ b
	}

	out := make([]byte, len(field))
	if len(field) == 4 {
		binary.LittleEndian.PutUint32(out, uint32(r))
	} else {
		binary.LittleEndian.PutUint64(out, r)
	}
	return out, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case int:
		return n, true
	case int8:
		return int(n), true
	case uint8:
		return int(n), true
	case int16:
		return int(n), true
	case uint16:
		return int(n), true
	case int32:
		return int(n), true
	case uint32:
		return int(n), true
	}
	return 0, false
}

func argBytes(op []any, i int) ([]byte, bool) {
	if i >= len(op) {
		return nil, false
	}
	switch v := op[i].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	}
	return nil, false
}
