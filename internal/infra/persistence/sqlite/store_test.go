package sqlite

import (
	"context"
	"errors"
	"kittycore/pkg/domain"
	"path/filepath"
	"testing"
)

func mint(t *testing.T, store *Store, owner domain.AccountID, parents *domain.Parents) domain.Kitty {
	t.Helper()
	var kitty domain.Kitty
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		kitty = domain.Kitty{ID: id, DNA: domain.DNA{0x01, byte(id)}}
		return tx.InsertKitty(kitty, owner, parents)
	}); err != nil {
		t.Fatalf("mint: %v", err)
	}
	return kitty
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	a := mint(t, store, 1, nil)
	b := mint(t, store, 2, nil)
	child := mint(t, store, 1, &domain.Parents{A: a.ID, B: b.ID})
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.SetOwner(a.ID, 9)
	}); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.Path() != path {
		t.Fatalf("expected path %s, got %s", path, reloaded.Path())
	}
	if reloaded.NextKittyID() != 3 {
		t.Fatalf("expected next id 3, got %d", reloaded.NextKittyID())
	}
	if got, ok := reloaded.GetKitty(child.ID); !ok || got != child {
		t.Fatalf("expected child %+v, got %+v", child, got)
	}
	if owner, _ := reloaded.OwnerOf(a.ID); owner != 9 {
		t.Fatalf("expected transferred owner 9, got %d", owner)
	}
	if parents, ok := reloaded.ParentsOf(child.ID); !ok || parents.A != a.ID || parents.B != b.ID {
		t.Fatalf("unexpected parents %+v", parents)
	}
}

func TestSQLiteStoreFailedTransactionNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	mint(t, store, 1, nil)
	boom := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.AllocateKittyID(); err != nil {
			return err
		}
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.NextKittyID() != 1 {
		t.Fatalf("expected next id 1, got %d", reloaded.NextKittyID())
	}
}

func TestSQLiteStoreWriteFailureKeepsState(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	first := mint(t, store, 1, nil)
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		return tx.InsertKitty(domain.Kitty{ID: id, DNA: domain.DNA{0x02}}, 1, nil)
	}); err == nil {
		t.Fatalf("expected write failure on closed database")
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		return tx.SetOwner(first.ID, 5)
	}); err == nil {
		t.Fatalf("expected transfer to fail on closed database")
	}

	if store.NextKittyID() != 1 {
		t.Fatalf("expected next id 1 after failed write, got %d", store.NextKittyID())
	}
	if got := store.ListKitties(); len(got) != 1 || got[0] != first {
		t.Fatalf("expected only the first kitty, got %+v", got)
	}
	if owner, ok := store.OwnerOf(first.ID); !ok || owner != 1 {
		t.Fatalf("expected owner 1 after failed transfer, got %d", owner)
	}
}

func TestSQLiteStoreWritesAllBuckets(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	mint(t, store, 1, nil)

	var count int
	if err := store.DB().QueryRow(`SELECT COUNT(*) FROM state`).Scan(&count); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 buckets, got %d", count)
	}
	var payload string
	if err := store.DB().QueryRow(`SELECT payload FROM state WHERE bucket = ?`, "allocator").Scan(&payload); err != nil {
		t.Fatalf("read allocator: %v", err)
	}
	if payload != "1" {
		t.Fatalf("expected allocator payload 1, got %q", payload)
	}
}

func TestSQLiteStoreRejectsCorruptBucket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	if _, err := store.DB().Exec(`INSERT INTO state(bucket,payload) VALUES(?,?)`, "kitties", []byte("{bad")); err != nil {
		t.Fatalf("seed corrupt bucket: %v", err)
	}
	_ = store.Close()
	if _, err := NewStore(path, nil); err == nil {
		t.Fatalf("expected decode error for corrupt bucket")
	}
}
