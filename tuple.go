package tarantool

import "fmt"

// Tuple is one returned tuple. When the operation ran against a space
// with a known descriptor, fields are decoded to typed values ([]byte,
// string, uint32, uint64 per the field type) and are addressable by
// name as well as by position. Otherwise fields are the raw decoded
// payload values.
type Tuple struct {
	def    *SpaceDef
	fields []any
}

// Len returns the number of fields.
func (t *Tuple) Len() int {
	return len(t.fields)
}

// Field returns the value at position i, or nil when out of range.
func (t *Tuple) Field(i int) any {
	if i < 0 || i >= len(t.fields) {
		return nil
	}
	return t.fields[i]
}

// Named returns the value of the field with the given name. It reports
// false when the tuple has no descriptor or the name is unknown.
func (t *Tuple) Named(name string) (any, bool) {
	if t.def == nil {
		return nil, false
	}
	no, ok := t.def.fieldNo(name)
	if !ok || int(no) >= len(t.fields) {
		return nil, false
	}
	return t.fields[no], true
}

// Fields returns the decoded field values in order.
func (t *Tuple) Fields() []any {
	return t.fields
}

// Map returns a named view of the tuple: one entry per field that has a
// name in the descriptor. Unnamed trailing fields are omitted.
func (t *Tuple) Map() map[string]any {
	m := make(map[string]any)
	if t.def == nil {
		return m
	}
	for i, f := range t.def.Fields {
		if f.Name == "" || i >= len(t.fields) {
			continue
		}
		m[f.Name] = t.fields[i]
	}
	return m
}

// decodeTuple converts one payload tuple. Raw payload fields arrive as
// strings (the wire's binary string form); with a descriptor each is
// run through the field codec, without one it is kept as bytes.
func decodeTuple(def *SpaceDef, raw []any) (*Tuple, error) {
	fields := make([]any, len(raw))
	for i, v := range raw {
		b, ok := fieldBytes(v)
		if !ok {
			// Metadata rows and call results may carry non-string
			// msgpack values; keep them as decoded.
			fields[i] = v
			continue
		}
		if def == nil {
			fields[i] = b
			continue
		}
		decoded, err := def.fieldType(i).Unpack(b)
		if err != nil {
			return nil, fmt.Errorf("tarantool: decoding field %d of space %q: %w", i, def.Name, err)
		}
		fields[i] = decoded
	}
	return &Tuple{def: def, fields: fields}, nil
}

func fieldBytes(v any) ([]byte, bool) {
	switch s := v.(type) {
	case string:
		return []byte(s), true
	case []byte:
		return s, true
	}
	return nil, false
}

// Result is the successful outcome of a client operation.
type Result struct {
	// Code is the server response code, zero for success.
	Code uint32

	// SchemaVersion is the schema version reported with the reply.
	SchemaVersion uint32

	// Tuples holds the decoded payload, in server order.
	Tuples []*Tuple
}

// Len returns the number of returned tuples.
func (r *Result) Len() int {
	return len(r.Tuples)
}

// First returns the first returned tuple, or nil when the payload is
// empty.
func (r *Result) First() *Tuple {
	if len(r.Tuples) == 0 {
		return nil
	}
	return r.Tuples[0]
}

// EachTuple calls fn for every tuple in order, stopping early when fn
// returns false.
func (r *Result) EachTuple(fn func(*Tuple) bool) {
	for _, t := range r.Tuples {
		if !fn(t) {
			return
		}
	}
}
