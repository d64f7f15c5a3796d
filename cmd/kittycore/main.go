// Command kittycore runs kitty operations against the configured store. Every
// state-changing command is executed through the reference ledger host at a
// block height derived from the number of issued kitties.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"kittycore/internal/archive"
	"kittycore/internal/blob"
	"kittycore/internal/config"
	"kittycore/internal/core"
	"kittycore/internal/ledger"
	"kittycore/internal/telemetry"
	"kittycore/pkg/domain"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
)

var exitFunc = os.Exit

const usage = `usage: kittycore <command> [flags]

commands:
  create   -caller N
  breed    -caller N -a ID -b ID
  transfer -caller N -id ID -to N
  list     [-owner N]
  archive  -block N
  restore
`

func main() {
	code := cli(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = io.WriteString(stderr, usage)
		return 2
	}
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	if err := run(ctx, cfg, args[0], args[1:], stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		var usageErr usageError
		if errors.As(err, &usageErr) {
			_, _ = fmt.Fprintf(stderr, "%v\n%s", err, usage)
			return 2
		}
		_, _ = fmt.Fprintf(stderr, "kittycore %s: %v\n", args[0], err)
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

type env struct {
	cfg      config.Config
	logger   *slog.Logger
	svc      *core.Service
	archiver *archive.Archiver
	out      *json.Encoder
	report   func()
}

func run(ctx context.Context, cfg config.Config, command string, args []string, stdout, stderr io.Writer) (err error) {
	fs := flag.NewFlagSet("kittycore "+command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	caller := fs.Uint64("caller", 0, "calling account id")
	parentA := fs.Uint("a", 0, "first parent kitty id")
	parentB := fs.Uint("b", 0, "second parent kitty id")
	id := fs.Uint("id", 0, "kitty id")
	to := fs.Uint64("to", 0, "receiving account id")
	owner := fs.Int64("owner", -1, "only list kitties owned by this account")
	block := fs.Uint64("block", 0, "block number of the archive")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return usageError{msg: err.Error()}
	}

	shutdown, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if shutdownErr := shutdown(context.Background()); shutdownErr != nil && err == nil {
			err = fmt.Errorf("telemetry shutdown: %w", shutdownErr)
		}
	}()

	e, closeStore, err := open(ctx, cfg, stdout, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := closeStore(); closeErr != nil && err == nil {
			err = fmt.Errorf("close store: %w", closeErr)
		}
	}()
	defer e.report()

	switch command {
	case "create":
		return e.mutate(ctx, func(h *ledger.Host) error {
			_, err := h.Create(ctx, domain.AccountID(*caller))
			return err
		})
	case "breed":
		return e.mutate(ctx, func(h *ledger.Host) error {
			_, err := h.Breed(ctx, domain.AccountID(*caller), domain.EntityID(*parentA), domain.EntityID(*parentB))
			return err
		})
	case "transfer":
		return e.mutate(ctx, func(h *ledger.Host) error {
			return h.Transfer(ctx, domain.AccountID(*caller), domain.EntityID(*id), domain.AccountID(*to))
		})
	case "list":
		kitties := e.svc.ListKitties()
		if *owner >= 0 {
			owned, err := e.svc.KittiesOwnedBy(ctx, domain.AccountID(*owner))
			if err != nil {
				return err
			}
			kitties = owned
		}
		return e.list(kitties)
	case "archive":
		src, ok := e.svc.Store().(archive.StateExporter)
		if !ok {
			return fmt.Errorf("store %T cannot be archived", e.svc.Store())
		}
		info, err := e.archiver.Archive(ctx, *block, src)
		if err != nil {
			return err
		}
		return e.out.Encode(map[string]any{"archive": info.Key, "block": *block, "size": info.Size})
	case "restore":
		restored, latest, err := e.archiver.RestoreLatest(ctx, core.NewDefaultRulesEngine())
		if err != nil {
			return err
		}
		return e.out.Encode(map[string]any{"block": latest, "next_kitty_id": restored.NextKittyID(), "kitties": len(restored.ListKitties())})
	default:
		return usageError{msg: fmt.Sprintf("unknown command %q", command)}
	}
}

func open(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) (*env, func() error, error) {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	engine := core.NewDefaultRulesEngine()
	store, err := core.OpenPersistentStore(cfg.Storage, engine)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	closeStore := func() error {
		if c, ok := store.(io.Closer); ok {
			return c.Close()
		}
		return nil
	}
	blobs, err := blob.Open(ctx, cfg.Blob)
	if err != nil {
		_ = closeStore()
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}
	opts := []core.ServiceOption{
		core.WithLogger(logger),
		core.WithTracer(core.NewOTelTracer(nil)),
	}
	recorder, report := newMetrics(cfg.Telemetry.Metrics, logger)
	if recorder != nil {
		opts = append(opts, core.WithMetricsRecorder(recorder))
	}
	return &env{
		cfg:      cfg,
		logger:   logger,
		svc:      core.NewService(store, opts...),
		archiver: archive.NewArchiver(blobs),
		out:      json.NewEncoder(stdout),
		report:   report,
	}, closeStore, nil
}

// newMetrics builds the configured recorder and a func that logs its totals.
func newMetrics(kind string, logger *slog.Logger) (core.MetricsRecorder, func()) {
	switch kind {
	case config.MetricsExpvar:
		rec := core.NewExpvarMetricsRecorder("")
		return rec, func() {
			snap := rec.Snapshot()
			for op, outcomes := range snap.Outcomes {
				logger.Info("operation metrics", "operation", op,
					"success", outcomes.Success, "error", outcomes.Error, "duration_ms", snap.DurationsMS[op])
			}
		}
	case config.MetricsPrometheus:
		rec := core.NewPrometheusMetricsRecorder()
		reg := prometheus.NewRegistry()
		reg.MustRegister(rec)
		return rec, func() {
			families, err := reg.Gather()
			if err != nil {
				logger.Warn("gather metrics", "error", err)
				return
			}
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					attrs := []any{"metric", mf.GetName()}
					for _, label := range m.GetLabel() {
						attrs = append(attrs, label.GetName(), label.GetValue())
					}
					switch {
					case m.GetCounter() != nil:
						attrs = append(attrs, "value", m.GetCounter().GetValue())
					case m.GetHistogram() != nil:
						attrs = append(attrs, "count", m.GetHistogram().GetSampleCount())
					}
					logger.Info("metric", attrs...)
				}
			}
		}
	default:
		return nil, func() {}
	}
}

// mutate runs op on a host advanced to one block past the issued id count,
// then prints the emitted events.
func (e *env) mutate(ctx context.Context, op func(*ledger.Host) error) error {
	// The replay recreates block numbers but only the latest committed state,
	// so only the last replayed block may be archived.
	height := uint64(e.svc.NextKittyID())
	opts := []ledger.Option{
		ledger.WithLogger(e.logger),
		ledger.WithArchiver(e.archiver, e.cfg.Host.ArchiveEvery),
		ledger.WithArchiveFrom(height),
	}
	seed, pinned, err := e.cfg.Host.Seed()
	if err != nil {
		return err
	}
	if pinned {
		opts = append(opts, ledger.WithSeed(seed))
	}
	h, err := ledger.New(e.svc, opts...)
	if err != nil {
		return err
	}
	if err := h.RunToBlock(ctx, height+1); err != nil {
		return err
	}
	if err := op(h); err != nil {
		return err
	}
	for _, record := range h.Events() {
		if err := e.out.Encode(eventLine{Block: record.Block, Index: record.Index, Name: record.Event.EventName(), Event: record.Event}); err != nil {
			return err
		}
	}
	return nil
}

type eventLine struct {
	Block uint64       `json:"block"`
	Index uint32       `json:"index"`
	Name  string       `json:"event"`
	Event domain.Event `json:"data"`
}

func (e *env) list(kitties []domain.Kitty) error {
	for _, kitty := range kitties {
		line := map[string]any{"id": kitty.ID, "dna": kitty.DNA}
		if owner, ok := e.svc.KittyOwner(kitty.ID); ok {
			line["owner"] = owner
		}
		if parents, ok := e.svc.KittyParents(kitty.ID); ok {
			line["parents"] = parents
		}
		if err := e.out.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
