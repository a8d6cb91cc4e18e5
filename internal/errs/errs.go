// Package errs defines the typed error taxonomy surfaced to clients.
//
// Grounded on ShubhamNegi4-DaemonDB's fmt.Errorf("...: %w", err) wrapping
// style, but made queryable by kind (errors.As) so the statement executor
// can branch on TransactionAbort without string matching.
package errs

import "fmt"

// Kind classifies an error the way spec.md §7 taxonomises failures.
type Kind string

const (
	// Schema
	KindTableExists       Kind = "TableExists"
	KindTableNotFound     Kind = "TableNotFound"
	KindIndexExists       Kind = "IndexExists"
	KindIndexNotFound     Kind = "IndexNotFound"
	KindColumnNotFound    Kind = "ColumnNotFound"
	KindAmbiguousColumn   Kind = "AmbiguousColumn"
	KindInvalidValueCount Kind = "InvalidValueCount"

	// Type
	KindIncompatibleType Kind = "IncompatibleType"
	KindStringOverflow   Kind = "StringOverflow"
	KindInvalidDatetime  Kind = "InvalidDatetime"

	// Storage
	KindPageNotExist   Kind = "PageNotExist"
	KindRecordNotFound Kind = "RecordNotFound"
	KindPoolExhausted  Kind = "PoolExhausted"
	KindNotCached      Kind = "NotCached"
	KindNotPinned      Kind = "NotPinned"

	// Concurrency
	KindTransactionAbort Kind = "TransactionAbort"

	// Integrity
	KindUniqueViolation Kind = "UniqueViolation"

	// I/O / system
	KindUnix Kind = "Unix"

	// Internal
	KindInternal Kind = "Internal"
)

// AbortReason is the payload of a TransactionAbort error.
type AbortReason string

const (
	ReasonDeadlockPrevention AbortReason = "DeadlockPrevention"
	ReasonLockOnShrinking    AbortReason = "LockOnShrinking"
	ReasonUpgrade            AbortReason = "Upgrade"
)

// Error is the concrete typed error value carried through the engine.
type Error struct {
	Kind   Kind
	Reason AbortReason // only meaningful for KindTransactionAbort
	Msg    string
	Cause  error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s(%s): %s: %v", e.Kind, e.Reason, e.Msg, e.Cause)
		}
		return fmt.Sprintf("%s(%s): %s", e.Kind, e.Reason, e.Msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &Error{Kind: KindX}) to match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	if t.Reason != "" && t.Reason != e.Reason {
		return false
	}
	return true
}

// New builds a new typed error.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds a new typed error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches kind to an underlying cause, the way the teacher's
// fmt.Errorf("...: %w", err) chains already do, but queryable by kind.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Abort builds a TransactionAbort error for the given reason.
func Abort(reason AbortReason, msg string) *Error {
	return &Error{Kind: KindTransactionAbort, Reason: reason, Msg: msg}
}

// Of returns (e, true) if err (or something it wraps) is an *Error e,
// and (nil, false) otherwise.
func Of(err error) (*Error, bool) {
	var e *Error
	for err != nil {
		if ee, ok := err.(*Error); ok {
			e = ee
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return nil, false
	}
	return e, true
}
