// Package ledger is an in-process reference host for the kitty service. It
// tracks block numbers and a per-block seed, derives call entropy, numbers
// extrinsics and keeps the emitted event log.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"kittycore/internal/archive"
	"kittycore/internal/core"
	"kittycore/pkg/domain"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// SeedSize is the length of a block seed.
const SeedSize = 32

// EntropySize is the length of the payload built by EncodeEntropy.
const EntropySize = SeedSize + 8 + 4 + 8

// Record is one event in the host log.
type Record struct {
	Block uint64
	Index uint32
	Event domain.Event
}

// Host drives a core.Service the way a block-producing chain would.
type Host struct {
	mu           sync.Mutex
	svc          *core.Service
	logger       core.Logger
	archiver     *archive.Archiver
	archiveEvery uint64
	archiveFrom  uint64
	source       archive.StateExporter

	block  uint64
	seed   [SeedSize]byte
	index  uint32
	events []Record
}

// Option configures a Host.
type Option func(*Host)

// WithSeed pins the genesis seed instead of drawing one from crypto/rand.
func WithSeed(seed [SeedSize]byte) Option {
	return func(h *Host) { h.seed = seed }
}

// WithArchiver archives the service state every `every` finalized blocks.
// A zero interval disables archiving.
func WithArchiver(a *archive.Archiver, every uint64) Option {
	return func(h *Host) {
		h.archiver = a
		h.archiveEvery = every
	}
}

// WithArchiveFrom suppresses archives for blocks below block. Hosts that
// replay already committed state use it so blocks finalized during the replay
// are not archived with state from a later height.
func WithArchiveFrom(block uint64) Option {
	return func(h *Host) { h.archiveFrom = block }
}

// WithLogger sets the host logger.
func WithLogger(logger core.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewGenesisSeed draws a random genesis seed.
func NewGenesisSeed() ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("read genesis seed: %w", err)
	}
	return seed, nil
}

// New creates a host at block 0. Without WithSeed a random genesis seed is
// drawn.
func New(svc *core.Service, opts ...Option) (*Host, error) {
	seed, err := NewGenesisSeed()
	if err != nil {
		return nil, err
	}
	h := &Host{svc: svc, seed: seed, logger: nopLogger{}}
	for _, opt := range opts {
		opt(h)
	}
	if h.archiver != nil && h.archiveEvery > 0 {
		src, ok := svc.Store().(archive.StateExporter)
		if !ok {
			return nil, fmt.Errorf("store %T cannot be archived", svc.Store())
		}
		h.source = src
	}
	return h, nil
}

// EncodeEntropy builds the entropy payload for one call:
// seed || block (u64 LE) || extrinsic index (u32 LE) || caller (u64 LE).
func EncodeEntropy(seed [SeedSize]byte, block uint64, index uint32, caller domain.AccountID) []byte {
	out := make([]byte, 0, EntropySize)
	out = append(out, seed[:]...)
	out = binary.LittleEndian.AppendUint64(out, block)
	out = binary.LittleEndian.AppendUint32(out, index)
	out = binary.LittleEndian.AppendUint64(out, uint64(caller))
	return out
}

// NextSeed derives the seed of block from the previous block seed.
func NextSeed(prev [SeedSize]byte, block uint64) [SeedSize]byte {
	buf := make([]byte, 0, SeedSize+8)
	buf = append(buf, prev[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, block)
	return blake2b.Sum256(buf)
}

// Block returns the current block number.
func (h *Host) Block() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.block
}

// Seed returns the current block seed.
func (h *Host) Seed() [SeedSize]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.seed
}

// Service returns the driven service.
func (h *Host) Service() *core.Service {
	return h.svc
}

// RunToBlock finalizes blocks until the current block is n. Finalizing a
// block whose number is a positive multiple of the archive interval writes
// an archive first.
func (h *Host) RunToBlock(ctx context.Context, n uint64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for h.block < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := h.finalize(ctx); err != nil {
			return err
		}
		h.block++
		h.seed = NextSeed(h.seed, h.block)
		h.index = 0
	}
	return nil
}

func (h *Host) finalize(ctx context.Context) error {
	if h.source == nil || h.block == 0 || h.block < h.archiveFrom || h.block%h.archiveEvery != 0 {
		return nil
	}
	info, err := h.archiver.Archive(ctx, h.block, h.source)
	if err != nil {
		return fmt.Errorf("finalize block %d: %w", h.block, err)
	}
	h.logger.Info("block archived", "block", h.block, "key", info.Key)
	return nil
}

// Create mints a kitty for caller.
func (h *Host) Create(ctx context.Context, caller domain.AccountID) (domain.Kitty, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kitty, res, err := h.svc.Create(ctx, h.nextCall(caller))
	h.record(res, err)
	return kitty, err
}

// Breed breeds parentA with parentB on behalf of caller.
func (h *Host) Breed(ctx context.Context, caller domain.AccountID, parentA, parentB domain.EntityID) (domain.Kitty, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	kitty, res, err := h.svc.Breed(ctx, h.nextCall(caller), parentA, parentB)
	h.record(res, err)
	return kitty, err
}

// Transfer moves kitty id from caller to to.
func (h *Host) Transfer(ctx context.Context, caller domain.AccountID, id domain.EntityID, to domain.AccountID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	res, err := h.svc.Transfer(ctx, h.nextCall(caller), id, to)
	h.record(res, err)
	return err
}

func (h *Host) nextCall(caller domain.AccountID) domain.Call {
	return domain.Call{Caller: caller, Entropy: EncodeEntropy(h.seed, h.block, h.index, caller)}
}

// record consumes the extrinsic index of the call. Failed calls consume one
// too but log no events.
func (h *Host) record(res domain.Result, err error) {
	index := h.index
	h.index++
	if err != nil {
		return
	}
	for _, event := range res.Events {
		h.events = append(h.events, Record{Block: h.block, Index: index, Event: event})
	}
}

// Events returns a copy of the event log.
func (h *Host) Events() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.events...)
}

// LastEvent returns the most recent event.
func (h *Host) LastEvent() (domain.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.events) == 0 {
		return nil, false
	}
	return h.events[len(h.events)-1].Event, true
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
