package tarantool

import (
	"fmt"
	"strconv"
)

// Space identifies a space by symbolic name or numeric id. The two
// forms behave differently: a named space is resolved through the
// schema cache and its values are coded per the discovered field types;
// a numeric space bypasses the cache entirely, the index must then also
// be numeric and field values must be pre-packed.
type Space struct {
	name string
	id   uint32
	byID bool
}

// SpaceName identifies a space by its symbolic name.
func SpaceName(name string) Space {
	return Space{name: name}
}

// SpaceID identifies a space by its numeric id.
func SpaceID(id uint32) Space {
	return Space{id: id, byID: true}
}

// ParseSpace is a permissive convenience helper: a string of digits is
// taken as a numeric id, anything else as a name. Prefer the explicit
// SpaceName and SpaceID constructors; a space legitimately named "123"
// cannot be addressed through this helper.
func ParseSpace(s string) Space {
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return SpaceID(uint32(n))
	}
	return SpaceName(s)
}

// IsNumeric reports whether the space is identified by numeric id.
func (s Space) IsNumeric() bool { return s.byID }

func (s Space) String() string {
	if s.byID {
		return fmt.Sprintf("space #%d", s.id)
	}
	return fmt.Sprintf("space %q", s.name)
}

// Index identifies an index by symbolic name or numeric id. The zero
// value is the primary index (id 0).
type Index struct {
	name string
	id   uint32
	byID bool
}

// IndexName identifies an index by its symbolic name.
func IndexName(name string) Index {
	return Index{name: name}
}

// IndexID identifies an index by its numeric id.
func IndexID(id uint32) Index {
	return Index{id: id, byID: true}
}

// PrimaryIndex is the index with numeric id 0.
func PrimaryIndex() Index {
	return IndexID(0)
}

// IsNumeric reports whether the index is identified by numeric id.
// The zero value counts as numeric id 0.
func (i Index) IsNumeric() bool { return i.byID || i.name == "" }

func (i Index) String() string {
	if i.IsNumeric() {
		return fmt.Sprintf("index #%d", i.id)
	}
	return fmt.Sprintf("index %q", i.name)
}
