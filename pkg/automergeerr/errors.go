// Package automergeerr defines the stable error taxonomy shared across the
// public API. Every error returned to a caller carries a Kind that
// survives wrapping, so callers can dispatch on
// errors.As with a *automergeerr.Error target or errors.Is against the Kind
// sentinels below, rather than string-matching.
package automergeerr

import "fmt"

// Kind is a stable, comparable category for an Error. New Kinds may be
// added; existing ones never change meaning.
type Kind int

const (
	KindUnknown Kind = iota

	// Decoding.
	KindBadMagic
	KindUnknownChunkType
	KindBadHashPrefix
	KindTruncatedInput
	KindOverlongLEB128
	KindInvalidUTF8
	KindActorIndexOutOfRange
	KindColumnLengthMismatch
	KindDuplicateSeq

	// Causality.
	KindMissingDependencies

	// Schema/Type.
	KindNotAnObject
	KindWrongObjectType
	KindCounterRequired
	KindInvalidOpOnRoot
	KindInvalidIndex
	KindInvalidPath

	// Transaction.
	KindNestedTransaction
	KindReadOnly
	KindRollbackOnly

	// Sync.
	KindBadMessageVersion
	KindTruncatedBloom
)

func (k Kind) String() string {
	switch k {
		case KindBadMagic:
		return "BadMagic"
		case KindUnknownChunkType:
		return "UnknownChunkType"
		case KindBadHashPrefix:
		return "BadHashPrefix"
		case KindTruncatedInput:
		return "TruncatedInput"
		case KindOverlongLEB128:
		return "OverlongLEB128"
		case KindInvalidUTF8:
		return "InvalidUtf8"
		case KindActorIndexOutOfRange:
		return "ActorIndexOutOfRange"
		case KindColumnLengthMismatch:
		return "ColumnLengthMismatch"
		case KindDuplicateSeq:
		return "DuplicateSeq"
		case KindMissingDependencies:
		return "MissingDependencies"
		case KindNotAnObject:
		return "NotAnObject"
		case KindWrongObjectType:
		return "WrongObjectType"
		case KindCounterRequired:
		return "CounterRequired"
		case KindInvalidOpOnRoot:
		return "InvalidOpOnRoot"
		case KindInvalidIndex:
		return "InvalidIndex"
		case KindInvalidPath:
		return "InvalidPath"
		case KindNestedTransaction:
		return "NestedTransaction"
		case KindReadOnly:
		return "ReadOnly"
		case KindRollbackOnly:
		return "RollbackOnly"
		case KindBadMessageVersion:
		return "BadMessageVersion"
		case KindTruncatedBloom:
		return "TruncatedBloom"
		default:
		return "Unknown"
	}
}

// Error is the concrete error type returned across the public API. It
// wraps an optional underlying cause (errors.Unwrap-compatible) so
// lower-level decode errors remain inspectable.
type Error struct {
	Kind Kind
	Message string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("automerge: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("automerge: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so
// errors.Is(err, automergeerr.ErrX) matches any error of that Kind; callers
// more commonly use errors.As to recover the full *Error and branch on
// .Kind directly.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Kind == e.Kind
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// sentinels for errors.Is comparisons against a bare Kind, following the
// usual package-level `var Err... = errors.New(...)` convention.
var (
	ErrNestedTransaction = &Error{Kind: KindNestedTransaction, Message: "a transaction is already open on this document"}
	ErrReadOnly = &Error{Kind: KindReadOnly, Message: "operation not permitted in the current transaction state"}
	ErrRollbackOnly = &Error{Kind: KindRollbackOnly, Message: "transaction was marked rollback-only after a schema error"}
	ErrNotAnObject = &Error{Kind: KindNotAnObject, Message: "target is not a known object"}
	ErrInvalidOpOnRoot = &Error{Kind: KindInvalidOpOnRoot, Message: "the root map cannot be deleted or replaced"}
	ErrCounterRequired = &Error{Kind: KindCounterRequired, Message: "increment target is not a counter"}
)
