package integration

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"kittycore/internal/archive"
	"kittycore/internal/blob"
	"kittycore/internal/config"
	"kittycore/internal/core"
	"kittycore/internal/infra/persistence/postgres"
	"kittycore/internal/infra/persistence/postgres/testutil"
	"kittycore/internal/ledger"
	"kittycore/pkg/domain"
	"path/filepath"
	"testing"
)

// TestIntegrationSmoke runs the create, breed and transfer cycle through the
// ledger host on every storage backend, then archives and restores the
// state through every blob backend.
func TestIntegrationSmoke(t *testing.T) {
	ctx := context.Background()

	coreVariants := []struct {
		name string
		open func(t *testing.T) domain.PersistentStore
	}{
		{
			name: "memory-store",
			open: func(t *testing.T) domain.PersistentStore {
				return openStore(t, config.Storage{Driver: config.StorageMemory})
			},
		},
		{
			name: "sqlite-store",
			open: func(t *testing.T) domain.PersistentStore {
				return openStore(t, config.Storage{Driver: config.StorageSQLite, SQLitePath: filepath.Join(t.TempDir(), "core.db")})
			},
		},
		{
			name: "postgres-stub-store",
			open: func(t *testing.T) domain.PersistentStore {
				db, _ := testutil.NewStubDB()
				t.Cleanup(postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil }))
				return openStore(t, config.Storage{Driver: config.StoragePostgres})
			},
		},
	}

	blobVariants := []struct {
		name string
		open func(t *testing.T) blob.Store
	}{
		{
			name: "memory-blob",
			open: func(t *testing.T) blob.Store { return openBlob(t, config.Blob{Driver: config.BlobMemory}) },
		},
		{
			name: "filesystem-blob",
			open: func(t *testing.T) blob.Store {
				return openBlob(t, config.Blob{Driver: config.BlobFilesystem, FSRoot: t.TempDir()})
			},
		},
		{
			name: "mock-s3-blob",
			open: func(_ *testing.T) blob.Store { return blob.NewMockS3ForTests() },
		},
	}

	for _, cv := range coreVariants {
		for _, bv := range blobVariants {
			t.Run(cv.name+"/"+bv.name, func(t *testing.T) {
				store := cv.open(t)
				metrics := core.NewExpvarMetricsRecorder("")
				var traceBuffer bytes.Buffer
				tracer := core.NewJSONTracer(&traceBuffer)
				svc := core.NewService(store, core.WithMetricsRecorder(metrics), core.WithTracer(tracer))

				archiver := archive.NewArchiver(bv.open(t))
				host, err := ledger.New(svc, ledger.WithSeed([ledger.SeedSize]byte{9}), ledger.WithArchiver(archiver, 2))
				if err != nil {
					t.Fatalf("new host: %v", err)
				}
				if err := host.RunToBlock(ctx, 1); err != nil {
					t.Fatalf("run to block 1: %v", err)
				}
				if _, err := host.Create(ctx, 1); err != nil {
					t.Fatalf("create: %v", err)
				}
				if _, err := host.Create(ctx, 2); err != nil {
					t.Fatalf("create: %v", err)
				}
				child, err := host.Breed(ctx, 1, 0, 1)
				if err != nil {
					t.Fatalf("breed: %v", err)
				}
				if err := host.Transfer(ctx, 1, child.ID, 2); err != nil {
					t.Fatalf("transfer: %v", err)
				}
				if err := host.RunToBlock(ctx, 3); err != nil {
					t.Fatalf("run to block 3: %v", err)
				}

				if owner, ok := store.OwnerOf(child.ID); !ok || owner != 2 {
					t.Fatalf("expected child owned by 2, got %d %v", owner, ok)
				}
				if got := len(host.Events()); got != 4 {
					t.Fatalf("expected 4 events, got %d", got)
				}

				restored, block, err := archiver.RestoreLatest(ctx, core.NewDefaultRulesEngine())
				if err != nil {
					t.Fatalf("restore: %v", err)
				}
				if block != 2 || restored.NextKittyID() != 3 {
					t.Fatalf("unexpected restore block=%d next=%d", block, restored.NextKittyID())
				}
				if parents, ok := restored.ParentsOf(child.ID); !ok || parents != (domain.Parents{A: 0, B: 1}) {
					t.Fatalf("restored parents %+v %v", parents, ok)
				}

				snapshot := metrics.Snapshot()
				if snapshot.Outcomes[core.OperationCreate].Success != 2 || snapshot.Outcomes[core.OperationTransfer].Success != 1 {
					t.Fatalf("unexpected metrics %+v", snapshot.Outcomes)
				}
				if traceBuffer.Len() == 0 || len(tracer.Entries()) != 4 {
					t.Fatalf("expected 4 spans, got %+v", tracer.Entries())
				}
			})
		}
	}
}

func TestBlobVariantsRoundTrip(t *testing.T) {
	ctx := context.Background()
	stores := map[string]blob.Store{
		"memory": openBlob(t, config.Blob{Driver: config.BlobMemory}),
		"fs":     openBlob(t, config.Blob{Driver: config.BlobFilesystem, FSRoot: t.TempDir()}),
		"s3":     blob.NewMockS3ForTests(),
	}
	for name, bs := range stores {
		t.Run(name, func(t *testing.T) {
			key := "alpha/test.txt"
			info, err := bs.Put(ctx, key, bytes.NewReader([]byte("hello")), blob.PutOptions{ContentType: "text/plain"})
			if err != nil {
				t.Fatalf("blob put: %v", err)
			}
			if info.Key != key || info.Size != 5 {
				t.Fatalf("unexpected blob info %+v", info)
			}
			_, rc, err := bs.Get(ctx, key)
			if err != nil {
				t.Fatalf("blob get: %v", err)
			}
			got, err := io.ReadAll(rc)
			_ = rc.Close()
			if err != nil || string(got) != "hello" {
				t.Fatalf("payload mismatch %q %v", got, err)
			}
			if ok, err := bs.Delete(ctx, key); err != nil || !ok {
				t.Fatalf("blob delete: %v ok=%v", err, ok)
			}
		})
	}
}

func openStore(t *testing.T, cfg config.Storage) domain.PersistentStore {
	t.Helper()
	store, err := core.OpenPersistentStore(cfg, core.NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("open %s store: %v", cfg.Driver, err)
	}
	if c, ok := store.(io.Closer); ok {
		t.Cleanup(func() { _ = c.Close() })
	}
	return store
}

func openBlob(t *testing.T, cfg config.Blob) blob.Store {
	t.Helper()
	store, err := blob.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("open %s blob: %v", cfg.Driver, err)
	}
	return store
}
