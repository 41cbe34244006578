package iproto

// RequestType identifies the operation carried by a request frame.
// A successful response echoes the same value in its header; a failed
// one carries ErrorFlag OR'd with the error class there instead.
type RequestType uint32

// Key is a numeric header or body map key.
type Key uint8

// Iter selects the search direction and inclusivity of a select.
type Iter uint32

// Request types.
const (
	// TypeSelect reads tuples from a space.
	//
	// Body keys: KeySpaceID, KeyIndexID, KeyLimit, KeyOffset,
	// KeyIterator, KeyKey.
	TypeSelect RequestType = 1

	// TypeInsert stores a new tuple; duplicate primary key is an error.
	//
	// Body keys: KeySpaceID, KeyTuple.
	TypeInsert RequestType = 2

	// TypeReplace stores a tuple, overwriting any existing one.
	//
	// Body keys: KeySpaceID, KeyTuple.
	TypeReplace RequestType = 3

	// TypeUpdate applies an ordered list of field operations to the
	// tuple matching the key.
	//
	// Body keys: KeySpaceID, KeyIndexID, KeyKey, KeyTuple (the ops).
	TypeUpdate RequestType = 4

	// TypeDelete removes the tuple matching the key.
	//
	// Body keys: KeySpaceID, KeyIndexID, KeyKey.
	TypeDelete RequestType = 5

	// TypeAuth performs the challenge-response authentication step.
	//
	// Body keys: KeyUserName, KeyTuple (mechanism name + scramble).
	TypeAuth RequestType = 7

	// TypeUpsert inserts the tuple, or applies the ops if a tuple with
	// the same primary key already exists. Returns no data.
	//
	// Body keys: KeySpaceID, KeyTuple, KeyOps.
	TypeUpsert RequestType = 9

	// TypeCall invokes a server-side stored procedure.
	//
	// Body keys: KeyFunctionName, KeyTuple (the arguments).
	TypeCall RequestType = 10

	// TypePing is a no-op round trip. It carries no body and is the
	// cheapest way to harvest the current schema version.
	TypePing RequestType = 64
)

// Header map keys.
const (
	KeyRequestType   Key = 0x00
	KeySync          Key = 0x01
	KeySchemaVersion Key = 0x05
)

// Body map keys.
const (
	KeySpaceID      Key = 0x10
	KeyIndexID      Key = 0x11
	KeyLimit        Key = 0x12
	KeyOffset       Key = 0x13
	KeyIterator     Key = 0x14
	KeyKey          Key = 0x20
	KeyTuple        Key = 0x21
	KeyFunctionName Key = 0x22
	KeyUserName     Key = 0x23
	KeyOps          Key = 0x28
	KeyData         Key = 0x30
	KeyError        Key = 0x31
)

// Iterator codes.
const (
	IterEq  Iter = 0 // key == x
	IterReq Iter = 1 // key == x, reverse order
	IterAll Iter = 2 // all tuples
	IterLt  Iter = 3 // key < x
	IterLe  Iter = 4 // key <= x
	IterGe  Iter = 5 // key >= x
	IterGt  Iter = 6 // key > x
)

// Well-known metadata spaces. The numeric ids are part of the wire
// contract: they are readable before any schema is known.
const (
	VSpaceID uint32 = 281 // _vspace: space definitions
	VIndexID uint32 = 289 // _vindex: index definitions
)

// ErrorFlag is set in the response type code when the request failed.
// The remaining bits carry the error class (see ErrorName).
const ErrorFlag uint32 = 0x8000

// Greeting layout. The server sends exactly GreetingSize bytes on
// connect: a version banner line, then a base64 salt line.
const (
	GreetingSize     = 128
	GreetingSaltOff  = 64
	GreetingSaltLen  = 44
	ScrambleSize     = 20 // sha1.Size
	AuthMechChapSha1 = "chap-sha1"
)

func (t RequestType) String() string {
	switch t {
	case TypeSelect:
		return "select"
	case TypeInsert:
		return "insert"
	case TypeReplace:
		return "replace"
	case TypeUpdate:
		return "update"
	case TypeDelete:
		return "delete"
	case TypeAuth:
		return "auth"
	case TypeUpsert:
		return "upsert"
	case TypeCall:
		return "call"
	case TypePing:
		return "ping"
	}
	return "unknown"
}
