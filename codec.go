package tarantool

import (
	"encoding/binary"
	"fmt"
	"math"
)

// FieldType drives the packing of a tuple field to its wire
// representation (a binary string) and back.
type FieldType string

const (
	// FieldStr passes bytes through unchanged. Unpacks to []byte.
	FieldStr FieldType = "STR"

	// FieldUTF8Str passes bytes through unchanged. Unpacks to string.
	FieldUTF8Str FieldType = "UTF8STR"

	// FieldNum is a 32-bit little-endian unsigned integer.
	FieldNum FieldType = "NUM"

	// FieldNum64 is a 64-bit little-endian unsigned integer.
	FieldNum64 FieldType = "NUM64"
)

// Pack encodes a field value to its wire representation.
//
// STR and UTF8STR accept string and []byte. NUM accepts unsigned
// integers and non-negative int, int32 and int64 values up to 32 bits
// (int8 and int16 are rejected), or a pre-packed 4-byte
// slice; NUM64 the same up to 64 bits, or a pre-packed 8-byte slice.
func (t FieldType) Pack(v any) ([]byte, error) {
	switch t {
	case FieldStr, FieldUTF8Str, "":
		switch s := v.(type) {
		case string:
			return []byte(s), nil
		case []byte:
			return s, nil
		}
		return nil, fmt.Errorf("tarantool: cannot pack %T as %s", v, t)

	case FieldNum:
		if b, ok := v.([]byte); ok {
			if len(b) != 4 {
				return nil, fmt.Errorf("tarantool: NUM field needs 4 bytes, got %d", len(b))
			}
			return b, nil
		}
		n, err := packUint(v, math.MaxUint32)
		if err != nil {
			return nil, fmt.Errorf("tarantool: NUM field: %w", err)
		}
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(n))
		return b, nil

	case FieldNum64:
		if b, ok := v.([]byte); ok {
			if len(b) != 8 {
				return nil, fmt.Errorf("tarantool: NUM64 field needs 8 bytes, got %d", len(b))
			}
			return b, nil
		}
		n, err := packUint(v, math.MaxUint64)
		if err != nil {
			return nil, fmt.Errorf("tarantool: NUM64 field: %w", err)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, n)
		return b, nil
	}

	return nil, fmt.Errorf("tarantool: unknown field type %q", string(t))
}

// Unpack decodes a wire representation back to a typed value:
// []byte for STR, string for UTF8STR, uint32 for NUM, uint64 for NUM64.
func (t FieldType) Unpack(b []byte) (any, error) {
	switch t {
	case FieldStr, "":
		return b, nil
	case FieldUTF8Str:
		return string(b), nil
	case FieldNum:
		if len(b) != 4 {
			return nil, fmt.Errorf("tarantool: NUM field needs 4 bytes, got %d", len(b))
		}
		return binary.LittleEndian.Uint32(b), nil
	case FieldNum64:
		if len(b) != 8 {
			return nil, fmt.Errorf("tarantool: NUM64 field needs 8 bytes, got %d", len(b))
		}
		return binary.LittleEndian.Uint64(b), nil
	}
	return nil, fmt.Errorf("tarantool: unknown field type %q", string(t))
}

func packUint(v any, max uint64) (uint64, error) {
	var n uint64
	switch x := v.(type) {
	case uint64:
		n = x
	case uint32:
		n = uint64(x)
	case uint16:
		n = uint64(x)
	case uint8:
		n = uint64(x)
	case uint:
		n = uint64(x)
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	case int32:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	default:
		return 0, fmt.Errorf("cannot pack %T as unsigned integer", v)
	}
	if n > max {
		return 0, fmt.Errorf("value %d overflows field", n)
	}
	return n, nil
}

// packRaw packs a field value for a space without a descriptor: strings
// and byte slices pass through unchanged, nothing else is accepted.
func packRaw(v any) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case []byte:
		return s, nil
	}
	return nil, fmt.Errorf("tarantool: numeric space takes pre-packed fields, got %T", v)
}
