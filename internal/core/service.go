package core

import (
	"context"
	"fmt"
	"kittycore/internal/dna"
	"kittycore/internal/infra/persistence/memory"
	"kittycore/pkg/domain"
	"time"
)

// Service exposes the kitty operations as atomic transactions over a
// persistent store.
type Service struct {
	store   PersistentStore
	engine  *RulesEngine
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
}

// ServiceOption customises a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	engine  *RulesEngine
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		clock:   ClockFunc(nil),
		logger:  noopLogger{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
	}
}

// WithClock overrides the clock used for audit timestamps and durations.
func WithClock(clock Clock) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRecorder sets the metrics recorder.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(o *serviceOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the audit recorder.
func WithAuditRecorder(audit AuditRecorder) ServiceOption {
	return func(o *serviceOptions) {
		if audit != nil {
			o.audit = audit
		}
	}
}

// WithRulesEngine selects the rules engine for NewInMemoryService and the
// engine reported by Service.RulesEngine.
func WithRulesEngine(engine *RulesEngine) ServiceOption {
	return func(o *serviceOptions) {
		if engine != nil {
			o.engine = engine
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	engine := o.engine
	if engine == nil {
		engine = extractRulesEngine(store)
	}
	return &Service{
		store:   store,
		engine:  engine,
		clock:   o.clock,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  o.tracer,
		audit:   o.audit,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store guarded
// by the given rules engine. A nil engine selects the default engine.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.engine != nil {
		engine = o.engine
	}
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), append(opts, WithRulesEngine(engine))...)
}

func extractRulesEngine(store PersistentStore) *RulesEngine {
	if provider, ok := store.(interface{ RulesEngine() *RulesEngine }); ok {
		return provider.RulesEngine()
	}
	return nil
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// RulesEngine returns the engine guarding the store, if known.
func (s *Service) RulesEngine() *RulesEngine {
	return s.engine
}

// Create mints a kitty with synthesized DNA owned by the caller.
func (s *Service) Create(ctx context.Context, call Call) (Kitty, Result, error) {
	var created Kitty
	res, err := s.run(ctx, OperationCreate, call, &created.ID, func(tx Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		created = Kitty{ID: id, DNA: dna.Synthesize(call.Entropy)}
		if err := tx.InsertKitty(created, call.Caller, nil); err != nil {
			return err
		}
		tx.Emit(domain.KittyCreated{Owner: call.Caller, ID: created.ID, DNA: created.DNA})
		return nil
	})
	if err != nil {
		return Kitty{}, res, err
	}
	return created, res, nil
}

// Breed combines two existing kitties into a new child owned by the caller.
// The caller does not need to own either parent.
func (s *Service) Breed(ctx context.Context, call Call, parentA, parentB EntityID) (Kitty, Result, error) {
	var child Kitty
	res, err := s.run(ctx, OperationBreed, call, &child.ID, func(tx Transaction) error {
		if parentA == parentB {
			return fmt.Errorf("breed %d with itself: %w", parentA, domain.ErrSameEntityID)
		}
		a, ok := tx.FindKitty(parentA)
		if !ok {
			return fmt.Errorf("parent %d: %w", parentA, domain.ErrInvalidEntityID)
		}
		b, ok := tx.FindKitty(parentB)
		if !ok {
			return fmt.Errorf("parent %d: %w", parentB, domain.ErrInvalidEntityID)
		}
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		child = Kitty{ID: id, DNA: dna.Combine(a.DNA, b.DNA, call.Entropy)}
		if err := tx.InsertKitty(child, call.Caller, &Parents{A: parentA, B: parentB}); err != nil {
			return err
		}
		tx.Emit(domain.KittyBred{
			Owner:   call.Caller,
			ParentA: parentA,
			ParentB: parentB,
			ChildID: child.ID,
			DNA:     child.DNA,
		})
		return nil
	})
	if err != nil {
		return Kitty{}, res, err
	}
	return child, res, nil
}

// Transfer hands a kitty owned by the caller to another account.
func (s *Service) Transfer(ctx context.Context, call Call, id EntityID, to AccountID) (Result, error) {
	target := id
	return s.run(ctx, OperationTransfer, call, &target, func(tx Transaction) error {
		owner, ok := tx.OwnerOf(id)
		if !ok || owner != call.Caller {
			return fmt.Errorf("kitty %d: %w", id, domain.ErrNotOwner)
		}
		if err := tx.SetOwner(id, to); err != nil {
			return err
		}
		tx.Emit(domain.KittyTransferred{From: call.Caller, To: to, ID: id})
		return nil
	})
}

// NextKittyID reports the id the next successful create or breed will issue.
func (s *Service) NextKittyID() EntityID {
	return s.store.NextKittyID()
}

// Kitty looks up a kitty by id.
func (s *Service) Kitty(id EntityID) (Kitty, bool) {
	return s.store.GetKitty(id)
}

// KittyOwner reports the current owner of a kitty.
func (s *Service) KittyOwner(id EntityID) (AccountID, bool) {
	return s.store.OwnerOf(id)
}

// KittyParents reports the parents of a bred kitty.
func (s *Service) KittyParents(id EntityID) (Parents, bool) {
	return s.store.ParentsOf(id)
}

// ListKitties returns every kitty in ascending id order.
func (s *Service) ListKitties() []Kitty {
	return s.store.ListKitties()
}

// KittiesOwnedBy returns the kitties currently owned by owner in ascending id order.
func (s *Service) KittiesOwnedBy(ctx context.Context, owner AccountID) ([]Kitty, error) {
	var out []Kitty
	err := s.store.View(ctx, func(view TransactionView) error {
		for _, record := range view.ListOwnership() {
			if record.Owner != owner {
				continue
			}
			if kitty, ok := view.FindKitty(record.ID); ok {
				out = append(out, kitty)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kitties owned by %d: %w", owner, err)
	}
	return out, nil
}

// run executes fn in a store transaction and reports the outcome to the
// tracer, metrics recorder, audit recorder and logger. entityID is read after
// fn returns so operations that allocate can report the issued id.
func (s *Service) run(ctx context.Context, op string, call Call, entityID *EntityID, fn func(Transaction) error) (Result, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	res, err := s.store.RunInTransaction(ctx, fn)
	duration := s.clock.Now().Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		Status:    AuditStatusSuccess,
		Caller:    call.Caller,
		EntityID:  *entityID,
		Duration:  duration,
		Timestamp: start,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		s.audit.Record(ctx, entry)
		s.logger.Error("kitty operation failed", "operation", op, "caller", call.Caller, "kitty_id", *entityID, "error", err)
		return res, err
	}
	s.audit.Record(ctx, entry)
	s.logger.Debug("kitty operation committed", "operation", op, "caller", call.Caller, "kitty_id", *entityID, "events", len(res.Events), "duration", duration.Round(time.Microsecond))
	return res, nil
}
