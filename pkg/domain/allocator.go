package domain

import (
	"fmt"
	"math"
)

// ErrAllocatorExhausted is returned once the id space is used up. It matches
// ErrInvalidEntityID under errors.Is.
var ErrAllocatorExhausted = fmt.Errorf("%w: allocator exhausted", ErrInvalidEntityID)

// MaxEntityID is the largest representable id. It is never issued because
// issuing it would require the counter to move past it.
const MaxEntityID EntityID = math.MaxUint32

// Allocator issues monotonically increasing kitty ids. The zero value starts
// at id 0.
type Allocator struct {
	next EntityID
}

// NewAllocator returns an allocator whose next id is next.
func NewAllocator(next EntityID) Allocator {
	return Allocator{next: next}
}

// Next returns the id the next successful Advance will issue.
func (a Allocator) Next() EntityID {
	return a.next
}

// Advance issues the current id and moves the counter forward. Exhaustion is
// permanent: the counter is left unchanged so later calls keep failing.
func (a *Allocator) Advance() (EntityID, error) {
	if a.next == MaxEntityID {
		return 0, ErrAllocatorExhausted
	}
	id := a.next
	a.next++
	return id, nil
}
