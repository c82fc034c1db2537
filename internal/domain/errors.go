// internal/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// ErrorKind tags the outcome of a failed lock operation.
type ErrorKind int

const (
	// KindException is a fault of the coordination layer: connectivity,
	// timeouts, codec errors, mutex acquire/release failures.
	KindException ErrorKind = iota
	// KindDenied means a conflicting record from another holder is held.
	KindDenied
	// KindRangeUnavailable means unlock found no matching record.
	KindRangeUnavailable
	// KindInvalid means the request itself is malformed.
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindException:
		return "exception"
	case KindDenied:
		return "denied"
	case KindRangeUnavailable:
		return "range_unavailable"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

var (
	// ErrLockDenied is matched by errors.Is for every KindDenied error.
	ErrLockDenied = errors.New("nlm: lock denied")
	// ErrLockRangeUnavailable is matched by errors.Is for every KindRangeUnavailable error.
	ErrLockRangeUnavailable = errors.New("nlm: no matching lock")
	// ErrLockException is matched by errors.Is for every KindException error.
	ErrLockException = errors.New("nlm: coordination failure")
	// ErrInvalidLock is matched by errors.Is for every KindInvalid error.
	ErrInvalidLock = errors.New("nlm: invalid lock request")
)

// LockError is the error returned by every LockManager operation.
type LockError struct {
	Kind   ErrorKind
	Op     string
	FileID []byte
	Record *LockRecord // the record that was denied or not found, if any
	Msg    string
	Err    error // underlying cause
}

func (e *LockError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	s := fmt.Sprintf("nlm %s %X: %s", e.Op, e.FileID, msg)
	if e.Record != nil {
		s += " " + e.Record.String()
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel belonging to the error's kind.
func (e *LockError) Is(target error) bool {
	switch target {
	case ErrLockDenied:
		return e.Kind == KindDenied
	case ErrLockRangeUnavailable:
		return e.Kind == KindRangeUnavailable
	case ErrLockException:
		return e.Kind == KindException
	case ErrInvalidLock:
		return e.Kind == KindInvalid
	}
	return false
}

// ReleaseError reports that the per-file mutex could not be released after
// the guarded section ran. Cause holds the guarded section's own result,
// nil if it succeeded.
type ReleaseError struct {
	Path  string
	Err   error
	Cause error
}

func (e *ReleaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("failed to release mutex %s: %v (operation result: %v)", e.Path, e.Err, e.Cause)
	}
	return fmt.Sprintf("failed to release mutex %s: %v", e.Path, e.Err)
}

func (e *ReleaseError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// NewDenied builds a KindDenied error for rec.
func NewDenied(op string, fileID []byte, rec LockRecord) *LockError {
	return &LockError{Kind: KindDenied, Op: op, FileID: fileID, Record: &rec, Msg: "locked"}
}

// NewRangeUnavailable builds a KindRangeUnavailable error for rec.
func NewRangeUnavailable(op string, fileID []byte, rec LockRecord) *LockError {
	return &LockError{Kind: KindRangeUnavailable, Op: op, FileID: fileID, Record: &rec, Msg: "no matching locks"}
}

// NewInvalid builds a KindInvalid error.
func NewInvalid(op string, fileID []byte, err error) *LockError {
	return &LockError{Kind: KindInvalid, Op: op, FileID: fileID, Err: err}
}

// WrapException wraps err as a coordination fault unless it already is a
// LockError, which is returned unchanged.
func WrapException(op string, fileID []byte, msg string, err error) error {
	if err == nil {
		return nil
	}
	var le *LockError
	if errors.As(err, &le) {
		return err
	}
	return &LockError{Kind: KindException, Op: op, FileID: fileID, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost LockError in err's chain.
// Errors that carry no LockError are treated as coordination faults.
func KindOf(err error) ErrorKind {
	var le *LockError
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindException
}
