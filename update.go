package tarantool

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// FieldRef addresses a tuple field in an update operation, by name
// (resolved through the space descriptor) or by numeric position.
type FieldRef struct {
	name string
	no   uint32
	byNo bool
}

// Field addresses a field by its name in the space format.
func Field(name string) FieldRef {
	return FieldRef{name: name}
}

// FieldNo addresses a field by its numeric position.
func FieldNo(no uint32) FieldRef {
	return FieldRef{no: no, byNo: true}
}

func (f FieldRef) String() string {
	if f.byNo {
		return fmt.Sprintf("field #%d", f.no)
	}
	return fmt.Sprintf("field %q", f.name)
}

func (f FieldRef) resolve(def *SpaceDef) (uint32, error) {
	if f.byNo {
		return f.no, nil
	}
	if def == nil {
		return 0, fmt.Errorf("tarantool: %s needs a space descriptor to resolve", f)
	}
	no, ok := def.fieldNo(f.name)
	if !ok {
		return 0, fmt.Errorf("tarantool: unknown %s in space %q", f, def.Name)
	}
	return no, nil
}

type opKind uint8

const (
	opValue  opKind = iota // (code, field, value) coded per field type
	opArith                // (code, field, operand) coded per field type
	opSplice               // (":", field, offset, count, insert)
	opDelete               // ("#", field, 1)
)

// Op is one update operation. Operations are applied in order.
type Op struct {
	code   string
	field  FieldRef
	kind   opKind
	value  any
	offset uint32
	count  uint32
	insert []byte
}

// OpSet assigns a value to the field.
func OpSet(field FieldRef, value any) Op {
	return Op{code: "=", field: field, kind: opValue, value: value}
}

// OpInsert inserts a new field before the position.
func OpInsert(field FieldRef, value any) Op {
	return Op{code: "!", field: field, kind: opValue, value: value}
}

// OpDelete removes the field.
func OpDelete(field FieldRef) Op {
	return Op{code: "#", field: field, kind: opDelete}
}

// OpAdd adds delta to a numeric field.
func OpAdd(field FieldRef, delta uint64) Op {
	return Op{code: "+", field: field, kind: opArith, value: delta}
}

// OpSub subtracts delta from a numeric field.
func OpSub(field FieldRef, delta uint64) Op {
	return Op{code: "-", field: field, kind: opArith, value: delta}
}

// OpAnd applies a bitwise AND mask to a numeric field.
func OpAnd(field FieldRef, mask uint64) Op {
	return Op{code: "&", field: field, kind: opArith, value: mask}
}

// OpOr applies a bitwise OR mask to a numeric field.
func OpOr(field FieldRef, mask uint64) Op {
	return Op{code: "|", field: field, kind: opArith, value: mask}
}

// OpXor applies a bitwise XOR mask to a numeric field.
func OpXor(field FieldRef, mask uint64) Op {
	return Op{code: "^", field: field, kind: opArith, value: mask}
}

// OpSplice replaces count bytes of a string field at offset with the
// insert bytes. An offset past the end appends.
func OpSplice(field FieldRef, offset, count uint32, insert []byte) Op {
	return Op{code: ":", field: field, kind: opSplice, offset: offset, count: count, insert: insert}
}

// encodeOps serializes an ordered op list to its wire form: an array of
// (code, field_no, args...) arrays. Value arguments are coded per the
// target field's type when a descriptor is available; without one,
// values must be pre-packed strings or byte slices.
func encodeOps(def *SpaceDef, ops []Op) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)

	if err := enc.EncodeArrayLen(len(ops)); err != nil {
		return nil, err
	}
	for _, op := range ops {
		no, err := op.field.resolve(def)
		if err != nil {
			return nil, err
		}

		switch op.kind {
		case opValue, opArith:
			packed, err := packOpValue(def, no, op.value)
			if err != nil {
				return nil, fmt.Errorf("tarantool: op %q on %s: %w", op.code, op.field, err)
			}
			enc.EncodeArrayLen(3)
			enc.EncodeString(op.code)
			enc.EncodeUint(uint64(no))
			if err := enc.EncodeString(string(packed)); err != nil {
				return nil, err
			}

		case opSplice:
			enc.EncodeArrayLen(5)
			enc.EncodeString(op.code)
			enc.EncodeUint(uint64(no))
			enc.EncodeUint(uint64(op.offset))
			enc.EncodeUint(uint64(op.count))
			if err := enc.EncodeString(string(op.insert)); err != nil {
				return nil, err
			}

		case opDelete:
			enc.EncodeArrayLen(3)
			enc.EncodeString(op.code)
			enc.EncodeUint(uint64(no))
			if err := enc.EncodeUint(1); err != nil {
				return nil, err
			}
		}
	}

	return buf.Bytes(), nil
}

func packOpValue(def *SpaceDef, fieldNo uint32, value any) ([]byte, error) {
	if def == nil {
		return packRaw(value)
	}
	return def.fieldType(int(fieldNo)).Pack(value)
}
