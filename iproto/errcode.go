package iproto

import "strconv"

// Server error classes. The response type code of a failed request is
// ErrorFlag | class. The numeric values are the server's wire contract
// and must not be renumbered: clients key retry behavior on
// ErrWrongSchemaVersion.
const (
	ErrUnknown                       uint32 = 0
	ErrIllegalParams                 uint32 = 1
	ErrMemoryIssue                   uint32 = 2
	ErrTupleFound                    uint32 = 3
	ErrTupleNotFound                 uint32 = 4
	ErrUnsupported                   uint32 = 5
	ErrNonmaster                     uint32 = 6
	ErrReadonly                      uint32 = 7
	ErrInjection                     uint32 = 8
	ErrCreateSpace                   uint32 = 9
	ErrSpaceExists                   uint32 = 10
	ErrDropSpace                     uint32 = 11
	ErrAlterSpace                    uint32 = 12
	ErrIndexType                     uint32 = 13
	ErrModifyIndex                   uint32 = 14
	ErrLastDrop                      uint32 = 15
	ErrTupleFormatLimit              uint32 = 16
	ErrDropPrimaryKey                uint32 = 17
	ErrKeyPartType                   uint32 = 18
	ErrExactMatch                    uint32 = 19
	ErrInvalidMsgpack                uint32 = 20
	ErrProcRet                       uint32 = 21
	ErrTupleNotArray                 uint32 = 22
	ErrFieldType                     uint32 = 23
	ErrFieldTypeMismatch             uint32 = 24
	ErrSplice                        uint32 = 25
	ErrArgType                       uint32 = 26
	ErrTupleIsTooLong                uint32 = 27
	ErrUnknownUpdateOp               uint32 = 28
	ErrUpdateField                   uint32 = 29
	ErrFiberStack                    uint32 = 30
	ErrKeyPartCount                  uint32 = 31
	ErrProcLua                       uint32 = 32
	ErrNoSuchProc                    uint32 = 33
	ErrNoSuchTrigger                 uint32 = 34
	ErrNoSuchIndex                   uint32 = 35
	ErrNoSuchSpace                   uint32 = 36
	ErrNoSuchField                   uint32 = 37
	ErrSpaceFieldCount               uint32 = 38
	ErrIndexFieldCount               uint32 = 39
	ErrWalIO                         uint32 = 40
	ErrMoreThanOneTuple              uint32 = 41
	ErrAccessDenied                  uint32 = 42
	ErrCreateUser                    uint32 = 43
	ErrDropUser                      uint32 = 44
	ErrNoSuchUser                    uint32 = 45
	ErrUserExists                    uint32 = 46
	ErrPasswordMismatch              uint32 = 47
	ErrUnknownRequestType            uint32 = 48
	ErrUnknownSchemaObject           uint32 = 49
	ErrCreateFunction                uint32 = 50
	ErrNoSuchFunction                uint32 = 51
	ErrFunctionExists                uint32 = 52
	ErrFunctionAccessDenied          uint32 = 53
	ErrFunctionMax                   uint32 = 54
	ErrSpaceAccessDenied             uint32 = 55
	ErrUserMax                       uint32 = 56
	ErrNoSuchEngine                  uint32 = 57
	ErrReloadCfg                     uint32 = 58
	ErrCfg                           uint32 = 59
	ErrSophia                        uint32 = 60
	ErrLocalServerIsNotActive        uint32 = 61
	ErrUnknownServer                 uint32 = 62
	ErrClusterIDMismatch             uint32 = 63
	ErrInvalidUUID                   uint32 = 64
	ErrClusterIDIsRo                 uint32 = 65
	ErrReserved66                    uint32 = 66
	ErrServerIDIsReserved            uint32 = 67
	ErrInvalidOrder                  uint32 = 68
	ErrMissingRequestField           uint32 = 69
	ErrIdentifier                    uint32 = 70
	ErrDropFunction                  uint32 = 71
	ErrIteratorType                  uint32 = 72
	ErrReplicaMax                    uint32 = 73
	ErrInvalidXlog                   uint32 = 74
	ErrInvalidXlogName               uint32 = 75
	ErrInvalidXlogOrder              uint32 = 76
	ErrNoConnection                  uint32 = 77
	ErrTimeout                       uint32 = 78
	ErrActiveTransaction             uint32 = 79
	ErrNoActiveTransaction           uint32 = 80
	ErrCrossEngineTransaction        uint32 = 81
	ErrNoSuchRole                    uint32 = 82
	ErrRoleExists                    uint32 = 83
	ErrCreateRole                    uint32 = 84
	ErrIndexExists                   uint32 = 85
	ErrTupleRefOverflow              uint32 = 86
	ErrRoleLoop                      uint32 = 87
	ErrGrant                         uint32 = 88
	ErrPrivGranted                   uint32 = 89
	ErrRoleGranted                   uint32 = 90
	ErrPrivNotGranted                uint32 = 91
	ErrRoleNotGranted                uint32 = 92
	ErrMissingSnapshot               uint32 = 93
	ErrCantUpdatePrimaryKey          uint32 = 94
	ErrUpdateIntegerOverflow         uint32 = 95
	ErrGuestUserPassword             uint32 = 96
	ErrTransactionConflict           uint32 = 97
	ErrUnsupportedRolePriv           uint32 = 98
	ErrLoadFunction                  uint32 = 99
	ErrFunctionLanguage              uint32 = 100
	ErrRtreeRect                     uint32 = 101
	ErrProcC                         uint32 = 102
	ErrUnknownRtreeIndexDistanceType uint32 = 103
	ErrProtocol                      uint32 = 104
	ErrUpsertUniqueSecondaryKey      uint32 = 105
	ErrWrongIndexRecord              uint32 = 106
	ErrWrongIndexParts               uint32 = 107
	ErrWrongIndexOptions             uint32 = 108
	ErrWrongSchemaVersion            uint32 = 109
	ErrMemtxMaxTupleSize             uint32 = 110
	ErrWrongSpaceOptions             uint32 = 111
	ErrUnsupportedIndexFeature       uint32 = 112
	ErrViewIsRo                      uint32 = 113
)

var errorNames = map[uint32]string{
	ErrUnknown:                       "ER_UNKNOWN",
	ErrIllegalParams:                 "ER_ILLEGAL_PARAMS",
	ErrMemoryIssue:                   "ER_MEMORY_ISSUE",
	ErrTupleFound:                    "ER_TUPLE_FOUND",
	ErrTupleNotFound:                 "ER_TUPLE_NOT_FOUND",
	ErrUnsupported:                   "ER_UNSUPPORTED",
	ErrNonmaster:                     "ER_NONMASTER",
	ErrReadonly:                      "ER_READONLY",
	ErrInjection:                     "ER_INJECTION",
	ErrCreateSpace:                   "ER_CREATE_SPACE",
	ErrSpaceExists:                   "ER_SPACE_EXISTS",
	ErrDropSpace:                     "ER_DROP_SPACE",
	ErrAlterSpace:                    "ER_ALTER_SPACE",
	ErrIndexType:                     "ER_INDEX_TYPE",
	ErrModifyIndex:                   "ER_MODIFY_INDEX",
	ErrLastDrop:                      "ER_LAST_DROP",
	ErrTupleFormatLimit:              "ER_TUPLE_FORMAT_LIMIT",
	ErrDropPrimaryKey:                "ER_DROP_PRIMARY_KEY",
	ErrKeyPartType:                   "ER_KEY_PART_TYPE",
	ErrExactMatch:                    "ER_EXACT_MATCH",
	ErrInvalidMsgpack:                "ER_INVALID_MSGPACK",
	ErrProcRet:                       "ER_PROC_RET",
	ErrTupleNotArray:                 "ER_TUPLE_NOT_ARRAY",
	ErrFieldType:                     "ER_FIELD_TYPE",
	ErrFieldTypeMismatch:             "ER_FIELD_TYPE_MISMATCH",
	ErrSplice:                        "ER_SPLICE",
	ErrArgType:                       "ER_ARG_TYPE",
	ErrTupleIsTooLong:                "ER_TUPLE_IS_TOO_LONG",
	ErrUnknownUpdateOp:               "ER_UNKNOWN_UPDATE_OP",
	ErrUpdateField:                   "ER_UPDATE_FIELD",
	ErrFiberStack:                    "ER_FIBER_STACK",
	ErrKeyPartCount:                  "ER_KEY_PART_COUNT",
	ErrProcLua:                       "ER_PROC_LUA",
	ErrNoSuchProc:                    "ER_NO_SUCH_PROC",
	ErrNoSuchTrigger:                 "ER_NO_SUCH_TRIGGER",
	ErrNoSuchIndex:                   "ER_NO_SUCH_INDEX",
	ErrNoSuchSpace:                   "ER_NO_SUCH_SPACE",
	ErrNoSuchField:                   "ER_NO_SUCH_FIELD",
	ErrSpaceFieldCount:               "ER_SPACE_FIELD_COUNT",
	ErrIndexFieldCount:               "ER_INDEX_FIELD_COUNT",
	ErrWalIO:                         "ER_WAL_IO",
	ErrMoreThanOneTuple:              "ER_MORE_THAN_ONE_TUPLE",
	ErrAccessDenied:                  "ER_ACCESS_DENIED",
	ErrCreateUser:                    "ER_CREATE_USER",
	ErrDropUser:                      "ER_DROP_USER",
	ErrNoSuchUser:                    "ER_NO_SUCH_USER",
	ErrUserExists:                    "ER_USER_EXISTS",
	ErrPasswordMismatch:              "ER_PASSWORD_MISMATCH",
	ErrUnknownRequestType:            "ER_UNKNOWN_REQUEST_TYPE",
	ErrUnknownSchemaObject:           "ER_UNKNOWN_SCHEMA_OBJECT",
	ErrCreateFunction:                "ER_CREATE_FUNCTION",
	ErrNoSuchFunction:                "ER_NO_SUCH_FUNCTION",
	ErrFunctionExists:                "ER_FUNCTION_EXISTS",
	ErrFunctionAccessDenied:          "ER_FUNCTION_ACCESS_DENIED",
	ErrFunctionMax:                   "ER_FUNCTION_MAX",
	ErrSpaceAccessDenied:             "ER_SPACE_ACCESS_DENIED",
	ErrUserMax:                       "ER_USER_MAX",
	ErrNoSuchEngine:                  "ER_NO_SUCH_ENGINE",
	ErrReloadCfg:                     "ER_RELOAD_CFG",
	ErrCfg:                           "ER_CFG",
	ErrSophia:                        "ER_SOPHIA",
	ErrLocalServerIsNotActive:        "ER_LOCAL_SERVER_IS_NOT_ACTIVE",
	ErrUnknownServer:                 "ER_UNKNOWN_SERVER",
	ErrClusterIDMismatch:             "ER_CLUSTER_ID_MISMATCH",
	ErrInvalidUUID:                   "ER_INVALID_UUID",
	ErrClusterIDIsRo:                 "ER_CLUSTER_ID_IS_RO",
	ErrReserved66:                    "ER_RESERVED66",
	ErrServerIDIsReserved:            "ER_SERVER_ID_IS_RESERVED",
	ErrInvalidOrder:                  "ER_INVALID_ORDER",
	ErrMissingRequestField:           "ER_MISSING_REQUEST_FIELD",
	ErrIdentifier:                    "ER_IDENTIFIER",
	ErrDropFunction:                  "ER_DROP_FUNCTION",
	ErrIteratorType:                  "ER_ITERATOR_TYPE",
	ErrReplicaMax:                    "ER_REPLICA_MAX",
	ErrInvalidXlog:                   "ER_INVALID_XLOG",
	ErrInvalidXlogName:               "ER_INVALID_XLOG_NAME",
	ErrInvalidXlogOrder:              "ER_INVALID_XLOG_ORDER",
	ErrNoConnection:                  "ER_NO_CONNECTION",
	ErrTimeout:                       "ER_TIMEOUT",
	ErrActiveTransaction:             "ER_ACTIVE_TRANSACTION",
	ErrNoActiveTransaction:           "ER_NO_ACTIVE_TRANSACTION",
	ErrCrossEngineTransaction:        "ER_CROSS_ENGINE_TRANSACTION",
	ErrNoSuchRole:                    "ER_NO_SUCH_ROLE",
	ErrRoleExists:                    "ER_ROLE_EXISTS",
	ErrCreateRole:                    "ER_CREATE_ROLE",
	ErrIndexExists:                   "ER_INDEX_EXISTS",
	ErrTupleRefOverflow:              "ER_TUPLE_REF_OVERFLOW",
	ErrRoleLoop:                      "ER_ROLE_LOOP",
	ErrGrant:                         "ER_GRANT",
	ErrPrivGranted:                   "ER_PRIV_GRANTED",
	ErrRoleGranted:                   "ER_ROLE_GRANTED",
	ErrPrivNotGranted:                "ER_PRIV_NOT_GRANTED",
	ErrRoleNotGranted:                "ER_ROLE_NOT_GRANTED",
	ErrMissingSnapshot:               "ER_MISSING_SNAPSHOT",
	ErrCantUpdatePrimaryKey:          "ER_CANT_UPDATE_PRIMARY_KEY",
	ErrUpdateIntegerOverflow:         "ER_UPDATE_INTEGER_OVERFLOW",
	ErrGuestUserPassword:             "ER_GUEST_USER_PASSWORD",
	ErrTransactionConflict:           "ER_TRANSACTION_CONFLICT",
	ErrUnsupportedRolePriv:           "ER_UNSUPPORTED_ROLE_PRIV",
	ErrLoadFunction:                  "ER_LOAD_FUNCTION",
	ErrFunctionLanguage:              "ER_FUNCTION_LANGUAGE",
	ErrRtreeRect:                     "ER_RTREE_RECT",
	ErrProcC:                         "ER_PROC_C",
	ErrUnknownRtreeIndexDistanceType: "ER_UNKNOWN_RTREE_INDEX_DISTANCE_TYPE",
	ErrProtocol:                      "ER_PROTOCOL",
	ErrUpsertUniqueSecondaryKey:      "ER_UPSERT_UNIQUE_SECONDARY_KEY",
	ErrWrongIndexRecord:              "ER_WRONG_INDEX_RECORD",
	ErrWrongIndexParts:               "ER_WRONG_INDEX_PARTS",
	ErrWrongIndexOptions:             "ER_WRONG_INDEX_OPTIONS",
	ErrWrongSchemaVersion:            "ER_WRONG_SCHEMA_VERSION",
	ErrMemtxMaxTupleSize:             "ER_MEMTX_MAX_TUPLE_SIZE",
	ErrWrongSpaceOptions:             "ER_WRONG_SPACE_OPTIONS",
	ErrUnsupportedIndexFeature:       "ER_UNSUPPORTED_INDEX_FEATURE",
	ErrViewIsRo:                      "ER_VIEW_IS_RO",
}

// ErrorName maps an error class to its symbolic name. Classes the
// table does not know are rendered as ER_UNKNOWN_<code> so new server
// versions degrade to a readable value instead of an empty string.
func ErrorName(code uint32) string {
	if name, ok := errorNames[code]; ok {
		return name
	}
	return "ER_UNKNOWN_" + strconv.FormatUint(uint64(code), 10)
}
