// internal/domain/lock.go
package domain

import (
	"bytes"
	"context"
	"fmt"
	"math"
)

// LockRecord is one held byte-range lock: the region [Offset, Offset+Length)
// owned by Holder. Records are values; a changed lock is an unlock followed
// by a lock.
type LockRecord struct {
	Holder []byte `json:"holder"` // Opaque owner identity, only compared for equality
	Offset uint64 `json:"offset"` // Start of the locked region
	Length uint64 `json:"length"` // Size of the locked region
}

// NewLockRecord builds a record. The holder slice is copied.
func NewLockRecord(holder []byte, offset, length uint64) LockRecord {
	return LockRecord{
		Holder: bytes.Clone(holder),
		Offset: offset,
		Length: length,
	}
}

// Validate checks that the record can be evaluated and persisted. Any
// holder is accepted, including a zero-length owner handle.
func (r LockRecord) Validate() error {
	if r.Length > math.MaxUint64-r.Offset {
		return fmt.Errorf("lock range overflows: offset %d length %d", r.Offset, r.Length)
	}
	return nil
}

// End returns the first byte past the locked region.
func (r LockRecord) End() uint64 {
	return r.Offset + r.Length
}

// Equal reports structural equality over (holder, offset, length).
func (r LockRecord) Equal(other LockRecord) bool {
	return r.Offset == other.Offset &&
		r.Length == other.Length &&
		bytes.Equal(r.Holder, other.Holder)
}

// SameHolder reports whether both records belong to the same owner.
func (r LockRecord) SameHolder(other LockRecord) bool {
	return bytes.Equal(r.Holder, other.Holder)
}

// ConflictsWith reports whether other interferes with r.
//
// The rule is directional: it only checks that other starts before r ends,
// never that r starts before other ends. Callers evaluate it as
// existing.ConflictsWith(requested).
func (r LockRecord) ConflictsWith(other LockRecord) bool {
	return !r.SameHolder(other) && other.Offset < r.End()
}

// Conflicts is ConflictsWith in function form: a is the held record, b the
// candidate.
func Conflicts(a, b LockRecord) bool {
	return a.ConflictsWith(b)
}

func (r LockRecord) String() string {
	return fmt.Sprintf("lock{holder=%x offset=%d length=%d}", r.Holder, r.Offset, r.Length)
}

// HeldLock is a record as found in the coordination service, together with
// the name of the node that stores it.
type HeldLock struct {
	Node   string     `json:"node"`
	Record LockRecord `json:"record"`
}

// LockManager is the NLM lock coordinator surface consumed by protocol
// front-ends.
type LockManager interface {
	// Lock persists rec for fileID unless a conflicting record is held.
	Lock(ctx context.Context, fileID []byte, rec LockRecord) error
	// Unlock removes the first record structurally equal to rec.
	Unlock(ctx context.Context, fileID []byte, rec LockRecord) error
	// Test reports whether rec would be granted, without changing anything.
	Test(ctx context.Context, fileID []byte, rec LockRecord) error
	// List returns the records currently held on fileID.
	List(ctx context.Context, fileID []byte) ([]HeldLock, error)
}

// RecordCodec turns a LockRecord into the payload stored in a lock node and
// back.
type RecordCodec interface {
	Name() string
	Encode(rec LockRecord) ([]byte, error)
	Decode(data []byte) (LockRecord, error)
}
