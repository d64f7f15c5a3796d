// Package memory provides the in-memory implementation of the kitty
// persistence store. Durable backends embed it and snapshot its state.
package memory

import (
	"context"
	"fmt"
	"kittycore/pkg/domain"
	"sort"
	"sync"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Kitty aliases domain.Kitty.
	Kitty = domain.Kitty
	// Parents aliases domain.Parents.
	Parents = domain.Parents
	// EntityID aliases domain.EntityID.
	EntityID = domain.EntityID
	// AccountID aliases domain.AccountID.
	AccountID = domain.AccountID
	// Result aliases domain.Result summarizing rule evaluation and emitted events.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	allocator domain.Allocator
	kitties   map[EntityID]Kitty
	owners    map[EntityID]AccountID
	parents   map[EntityID]Parents
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	NextID  EntityID               `json:"next_id"`
	Kitties map[EntityID]Kitty     `json:"kitties"`
	Owners  map[EntityID]AccountID `json:"owners"`
	Parents map[EntityID]Parents   `json:"parents"`
}

func newMemoryState() memoryState {
	return memoryState{
		kitties: make(map[EntityID]Kitty),
		owners:  make(map[EntityID]AccountID),
		parents: make(map[EntityID]Parents),
	}
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		allocator: s.allocator,
		kitties:   make(map[EntityID]Kitty, len(s.kitties)),
		owners:    make(map[EntityID]AccountID, len(s.owners)),
		parents:   make(map[EntityID]Parents, len(s.parents)),
	}
	for k, v := range s.kitties {
		cloned.kitties[k] = v
	}
	for k, v := range s.owners {
		cloned.owners[k] = v
	}
	for k, v := range s.parents {
		cloned.parents[k] = v
	}
	return cloned
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	cloned := state.clone()
	return Snapshot{
		NextID:  cloned.allocator.Next(),
		Kitties: cloned.kitties,
		Owners:  cloned.owners,
		Parents: cloned.parents,
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		allocator: domain.NewAllocator(s.NextID),
		kitties:   s.Kitties,
		owners:    s.Owners,
		parents:   s.Parents,
	}
	return state.clone()
}

// migrateSnapshot fills nil maps and realigns kitty ids with their map keys so
// snapshots written by older builds load cleanly.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Kitties == nil {
		snapshot.Kitties = map[EntityID]Kitty{}
	}
	if snapshot.Owners == nil {
		snapshot.Owners = map[EntityID]AccountID{}
	}
	if snapshot.Parents == nil {
		snapshot.Parents = map[EntityID]Parents{}
	}
	for id, kitty := range snapshot.Kitties {
		if kitty.ID != id {
			kitty.ID = id
			snapshot.Kitties[id] = kitty
		}
	}
	return snapshot
}

func sortedIDs[V any](m map[EntityID]V) []EntityID {
	ids := make([]EntityID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Store provides an in-memory transactional store for kitty state.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

type transaction struct {
	state  memoryState
	events []domain.Event
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

func (v transactionView) NextKittyID() EntityID {
	return v.state.allocator.Next()
}

// ListKitties returns all kitties ordered by id.
func (v transactionView) ListKitties() []Kitty {
	ids := sortedIDs(v.state.kitties)
	out := make([]Kitty, 0, len(ids))
	for _, id := range ids {
		out = append(out, v.state.kitties[id])
	}
	return out
}

// ListOwnership returns all ownership records ordered by id.
func (v transactionView) ListOwnership() []domain.Ownership {
	ids := sortedIDs(v.state.owners)
	out := make([]domain.Ownership, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Ownership{ID: id, Owner: v.state.owners[id]})
	}
	return out
}

// ListParentage returns all parentage records ordered by child id.
func (v transactionView) ListParentage() []domain.Parentage {
	ids := sortedIDs(v.state.parents)
	out := make([]domain.Parentage, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Parentage{Child: id, Parents: v.state.parents[id]})
	}
	return out
}

func (v transactionView) FindKitty(id EntityID) (Kitty, bool) {
	k, ok := v.state.kitties[id]
	return k, ok
}

func (v transactionView) OwnerOf(id EntityID) (AccountID, bool) {
	o, ok := v.state.owners[id]
	return o, ok
}

func (v transactionView) ParentsOf(id EntityID) (Parents, bool) {
	p, ok := v.state.parents[id]
	return p, ok
}

// CommitHook receives the state a transaction is about to commit. Returning an
// error aborts the transaction and keeps the previous state.
type CommitHook func(ctx context.Context, next Snapshot) error

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces the committed state only when fn succeeds and no rule
// reports a blocking violation.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	return s.RunInTransactionWithHook(ctx, fn, nil)
}

// RunInTransactionWithHook is RunInTransaction with hook called, under the
// store lock, after rule evaluation and before the copy is swapped in.
func (s *Store) RunInTransactionWithHook(ctx context.Context, fn func(tx Transaction) error, hook CommitHook) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{state: s.state.clone()}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.events)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if hook != nil {
		if err := hook(ctx, snapshotFromMemoryState(tx.state)); err != nil {
			return result, err
		}
	}

	s.state = tx.state
	result.Events = tx.events
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

func (tx *transaction) NextKittyID() EntityID {
	return tx.state.allocator.Next()
}

func (tx *transaction) AllocateKittyID() (EntityID, error) {
	return tx.state.allocator.Advance()
}

func (tx *transaction) FindKitty(id EntityID) (Kitty, bool) {
	k, ok := tx.state.kitties[id]
	return k, ok
}

func (tx *transaction) OwnerOf(id EntityID) (AccountID, bool) {
	o, ok := tx.state.owners[id]
	return o, ok
}

// InsertKitty stores a newly allocated kitty with its owner and optional parents.
func (tx *transaction) InsertKitty(kitty Kitty, owner AccountID, parents *Parents) error {
	if _, exists := tx.state.kitties[kitty.ID]; exists {
		return fmt.Errorf("kitty %d already exists", kitty.ID)
	}
	if kitty.ID >= tx.state.allocator.Next() {
		return fmt.Errorf("kitty %d was not issued by the allocator", kitty.ID)
	}
	tx.state.kitties[kitty.ID] = kitty
	tx.state.owners[kitty.ID] = owner
	if parents != nil {
		tx.state.parents[kitty.ID] = *parents
	}
	return nil
}

// SetOwner overwrites the owner of an existing kitty.
func (tx *transaction) SetOwner(id EntityID, owner AccountID) error {
	if _, ok := tx.state.kitties[id]; !ok {
		return fmt.Errorf("kitty %d not found", id)
	}
	tx.state.owners[id] = owner
	return nil
}

// Emit records an event to be returned once the transaction commits.
func (tx *transaction) Emit(event domain.Event) {
	tx.events = append(tx.events, event)
}

// Read helpers ---------------------------------------------------------------

// NextKittyID returns the id the next successful create or breed will issue.
func (s *Store) NextKittyID() EntityID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.allocator.Next()
}

// GetKitty retrieves a kitty by id from committed state.
func (s *Store) GetKitty(id EntityID) (Kitty, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.state.kitties[id]
	return k, ok
}

// OwnerOf returns the committed owner of a kitty.
func (s *Store) OwnerOf(id EntityID) (AccountID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.state.owners[id]
	return o, ok
}

// ParentsOf returns the committed parentage of a kitty; false for minted kitties.
func (s *Store) ParentsOf(id EntityID) (Parents, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.parents[id]
	return p, ok
}

// ListKitties returns all committed kitties ordered by id.
func (s *Store) ListKitties() []Kitty {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListKitties()
}
