// Package domain defines the kitty entity, ownership and parentage records,
// the domain events emitted by state transitions, and the rule evaluation
// primitives shared by kittycore services and persistence backends.
package domain

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// EntityID identifies a kitty. It is the sole key across the entity, ownership
// and parentage records.
type EntityID uint32

// AccountID identifies a calling account and kitty owner.
type AccountID uint64

// DNASize is the fixed byte length of a kitty DNA value.
const DNASize = 16

// DNA is the opaque fixed-size identity assigned to a kitty at creation.
type DNA [DNASize]byte

// String renders the DNA as lower-case hex.
func (d DNA) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalJSON encodes the DNA as a hex string.
func (d DNA) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a hex string produced by MarshalJSON.
func (d *DNA) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := ParseDNA(s)
	if err != nil {
		return err
	}
	*d = decoded
	return nil
}

// ParseDNA parses a hex encoded DNA value.
func ParseDNA(s string) (DNA, error) {
	var d DNA
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("decode dna: %w", err)
	}
	if len(raw) != DNASize {
		return d, fmt.Errorf("decode dna: want %d bytes, got %d", DNASize, len(raw))
	}
	copy(d[:], raw)
	return d, nil
}

// Kitty is a uniquely identified record with immutable DNA.
type Kitty struct {
	ID  EntityID `json:"id"`
	DNA DNA      `json:"dna"`
}

// Parents records the two kitties combined to breed a child, in the order the
// caller supplied them.
type Parents struct {
	A EntityID `json:"a"`
	B EntityID `json:"b"`
}

// Call carries the per-invocation context supplied by the ledger host.
type Call struct {
	Caller  AccountID
	Entropy []byte
}

// EntityType identifies the record a rule violation refers to.
type EntityType string

// Record kinds referenced by violations.
const (
	EntityKitty     EntityType = "kitty"
	EntityOwnership EntityType = "ownership"
	EntityParentage EntityType = "parentage"
	EntityAllocator EntityType = "allocator"
)

// Errors returned by kitty state transitions. All are validation failures:
// the transition leaves state untouched.
var (
	// ErrInvalidEntityID reports a missing kitty or an exhausted allocator.
	ErrInvalidEntityID = errors.New("invalid kitty id")
	// ErrSameEntityID reports a breed call with identical parents.
	ErrSameEntityID = errors.New("same kitty id")
	// ErrNotOwner reports a transfer attempted by someone other than the owner.
	ErrNotOwner = errors.New("not owner")
)
