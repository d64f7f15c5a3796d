package domain

import "context"

// Ownership pairs a kitty with its current owner.
type Ownership struct {
	ID    EntityID  `json:"id"`
	Owner AccountID `json:"owner"`
}

// Parentage pairs a bred kitty with its parents.
type Parentage struct {
	Child   EntityID `json:"child"`
	Parents Parents  `json:"parents"`
}

// Transaction exposes the mutations a persistence implementation must support
// within an atomic scope. Writes become visible only when the enclosing
// RunInTransaction commits.
type Transaction interface {
	Snapshot() TransactionView
	NextKittyID() EntityID
	AllocateKittyID() (EntityID, error)
	FindKitty(id EntityID) (Kitty, bool)
	OwnerOf(id EntityID) (AccountID, bool)
	InsertKitty(kitty Kitty, owner AccountID, parents *Parents) error
	SetOwner(id EntityID, owner AccountID) error
	Emit(event Event)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	NextKittyID() EntityID
	ListKitties() []Kitty
	ListOwnership() []Ownership
	ListParentage() []Parentage
	FindKitty(id EntityID) (Kitty, bool)
	OwnerOf(id EntityID) (AccountID, bool)
	ParentsOf(id EntityID) (Parents, bool)
}

// PersistentStore is the abstraction over memory and durable backends used by
// the service layer.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	NextKittyID() EntityID
	GetKitty(id EntityID) (Kitty, bool)
	OwnerOf(id EntityID) (AccountID, bool)
	ParentsOf(id EntityID) (Parents, bool)
	ListKitties() []Kitty
}
