// Package archive writes point-in-time kitty state snapshots to blob storage
// and restores them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"kittycore/internal/blob"
	"kittycore/internal/infra/persistence/memory"
	"kittycore/pkg/domain"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// Prefix is the key prefix shared by every archive.
	Prefix      = "snapshots/"
	keySuffix   = ".json"
	blockPrefix = Prefix + "block-"
	contentType = "application/json"
)

// ErrNoArchive is returned when a restore finds no archive to load.
var ErrNoArchive = errors.New("no archive found")

// StateExporter is implemented by every persistent store backed by the memory
// store.
type StateExporter interface {
	ExportState() memory.Snapshot
}

// Entry describes one stored archive.
type Entry struct {
	Block uint64
	Info  blob.Info
}

type document struct {
	Block      uint64          `json:"block"`
	ArchivedAt time.Time       `json:"archived_at"`
	State      memory.Snapshot `json:"state"`
}

// Archiver persists snapshots under Prefix in a blob store.
type Archiver struct {
	store blob.Store
	now   func() time.Time
}

// NewArchiver returns an archiver writing to store.
func NewArchiver(store blob.Store) *Archiver {
	return &Archiver{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Key returns the blob key of the archive for block. The block number is zero
// padded so lexical and numeric order agree.
func Key(block uint64) string {
	return fmt.Sprintf("%s%020d%s", blockPrefix, block, keySuffix)
}

// ParseKey extracts the block number from an archive key.
func ParseKey(key string) (uint64, bool) {
	if !strings.HasPrefix(key, blockPrefix) || !strings.HasSuffix(key, keySuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(key, blockPrefix), keySuffix)
	if len(digits) != 20 {
		return 0, false
	}
	block, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return block, true
}

// Archive writes the state exported by src as the archive for block. An
// archive that already exists for block is kept and its metadata returned.
func (a *Archiver) Archive(ctx context.Context, block uint64, src StateExporter) (blob.Info, error) {
	doc := document{Block: block, ArchivedAt: a.now(), State: src.ExportState()}
	payload, err := json.Marshal(doc)
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode archive %d: %w", block, err)
	}
	key := Key(block)
	info, err := a.store.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
		ContentType: contentType,
		Metadata: map[string]string{
			"block":   strconv.FormatUint(block, 10),
			"kitties": strconv.Itoa(len(doc.State.Kitties)),
		},
	})
	if errors.Is(err, blob.ErrExists) {
		return a.store.Head(ctx, key)
	}
	if err != nil {
		return blob.Info{}, fmt.Errorf("write archive %d: %w", block, err)
	}
	return info, nil
}

// List returns every archive in ascending block order. Keys under Prefix
// that are not archives are skipped.
func (a *Archiver) List(ctx context.Context) ([]Entry, error) {
	infos, err := a.store.List(ctx, Prefix)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		block, ok := ParseKey(info.Key)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Block: block, Info: info})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Block < entries[j].Block })
	return entries, nil
}

// Load reads the snapshot archived for block.
func (a *Archiver) Load(ctx context.Context, block uint64) (memory.Snapshot, error) {
	_, rc, err := a.store.Get(ctx, Key(block))
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("read archive %d: %w", block, err)
	}
	defer rc.Close()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("read archive %d: %w", block, err)
	}
	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return memory.Snapshot{}, fmt.Errorf("decode archive %d: %w", block, err)
	}
	if doc.Block != block {
		return memory.Snapshot{}, fmt.Errorf("archive %s holds block %d", Key(block), doc.Block)
	}
	return doc.State, nil
}

// RestoreLatest loads the newest archive into a fresh memory store guarded by
// engine. The restored state is checked against engine before it is returned.
func (a *Archiver) RestoreLatest(ctx context.Context, engine *domain.RulesEngine) (*memory.Store, uint64, error) {
	entries, err := a.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	if len(entries) == 0 {
		return nil, 0, ErrNoArchive
	}
	latest := entries[len(entries)-1].Block
	snap, err := a.Load(ctx, latest)
	if err != nil {
		return nil, 0, err
	}
	store := memory.NewStore(engine)
	store.ImportState(snap)
	if engine != nil {
		err := store.View(ctx, func(view domain.TransactionView) error {
			res, err := engine.Evaluate(ctx, view, nil)
			if err != nil {
				return err
			}
			if res.HasBlocking() {
				return domain.RuleViolationError{Result: res}
			}
			return nil
		})
		if err != nil {
			return nil, 0, fmt.Errorf("restore archive %d: %w", latest, err)
		}
	}
	return store, latest, nil
}
