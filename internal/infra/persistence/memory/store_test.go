package memory

import (
	"context"
	"errors"
	"kittycore/pkg/domain"
	"strings"
	"testing"
)

func insertKitty(t *testing.T, store *Store, owner AccountID, parents *Parents) Kitty {
	t.Helper()
	var created Kitty
	res, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		created = Kitty{ID: id, DNA: domain.DNA{byte(id), 0xaa}}
		if err := tx.InsertKitty(created, owner, parents); err != nil {
			return err
		}
		tx.Emit(domain.KittyCreated{Owner: owner, ID: id, DNA: created.DNA})
		return nil
	})
	if err != nil {
		t.Fatalf("insert kitty: %v", err)
	}
	if len(res.Events) != 1 {
		t.Fatalf("expected one event, got %d", len(res.Events))
	}
	return created
}

func TestStoreCommitsTransaction(t *testing.T) {
	store := NewStore(nil)
	k := insertKitty(t, store, 1, nil)

	if store.NextKittyID() != 1 {
		t.Fatalf("expected next id 1, got %d", store.NextKittyID())
	}
	got, ok := store.GetKitty(k.ID)
	if !ok || got != k {
		t.Fatalf("expected %+v, got %+v (%v)", k, got, ok)
	}
	if owner, ok := store.OwnerOf(k.ID); !ok || owner != 1 {
		t.Fatalf("expected owner 1, got %d (%v)", owner, ok)
	}
	if _, ok := store.ParentsOf(k.ID); ok {
		t.Fatalf("expected no parents for minted kitty")
	}
}

func TestStoreDiscardsFailedTransaction(t *testing.T) {
	store := NewStore(nil)
	sentinel := errors.New("abort")
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		if err := tx.InsertKitty(Kitty{ID: id}, 9, nil); err != nil {
			return err
		}
		tx.Emit(domain.KittyCreated{Owner: 9, ID: id})
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}
	if store.NextKittyID() != 0 {
		t.Fatalf("allocator advanced despite abort: %d", store.NextKittyID())
	}
	if len(store.ListKitties()) != 0 {
		t.Fatalf("kitty leaked from aborted transaction")
	}
}

func TestCommitHookSeesNextStateAndCanAbort(t *testing.T) {
	store := NewStore(domain.NewRulesEngine())
	first := insertKitty(t, store, 1, nil)

	var seen Snapshot
	hook := func(_ context.Context, next Snapshot) error {
		seen = next
		return nil
	}
	if _, err := store.RunInTransactionWithHook(context.Background(), func(tx Transaction) error {
		return tx.SetOwner(first.ID, 2)
	}, hook); err != nil {
		t.Fatalf("hooked transfer: %v", err)
	}
	if seen.Owners[first.ID] != 2 || seen.NextID != 1 {
		t.Fatalf("hook saw unexpected state %+v", seen)
	}

	boom := errors.New("disk full")
	res, err := store.RunInTransactionWithHook(context.Background(), func(tx Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		if err := tx.InsertKitty(Kitty{ID: id}, 3, nil); err != nil {
			return err
		}
		tx.Emit(domain.KittyCreated{Owner: 3, ID: id})
		return tx.SetOwner(first.ID, 3)
	}, func(context.Context, Snapshot) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if len(res.Events) != 0 {
		t.Fatalf("aborted commit reported events %+v", res.Events)
	}
	if store.NextKittyID() != 1 || len(store.ListKitties()) != 1 {
		t.Fatalf("state changed despite hook error: next=%d kitties=%d", store.NextKittyID(), len(store.ListKitties()))
	}
	if owner, _ := store.OwnerOf(first.ID); owner != 2 {
		t.Fatalf("expected owner 2 to survive aborted commit, got %d", owner)
	}
}

func TestBlockingRuleSkipsCommitHook(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAll{})
	store := NewStore(engine)
	called := false
	_, err := store.RunInTransactionWithHook(context.Background(), func(tx Transaction) error {
		_, err := tx.AllocateKittyID()
		return err
	}, func(context.Context, Snapshot) error {
		called = true
		return nil
	})
	if err == nil || called {
		t.Fatalf("expected violation without hook call, err=%v called=%v", err, called)
	}
}

func TestStoreRecordsParents(t *testing.T) {
	store := NewStore(nil)
	a := insertKitty(t, store, 1, nil)
	b := insertKitty(t, store, 2, nil)
	child := insertKitty(t, store, 1, &Parents{A: b.ID, B: a.ID})

	parents, ok := store.ParentsOf(child.ID)
	if !ok {
		t.Fatalf("expected parents for child %d", child.ID)
	}
	if parents.A != b.ID || parents.B != a.ID {
		t.Fatalf("expected caller order preserved, got %+v", parents)
	}
}

func TestInsertKittyGuards(t *testing.T) {
	store := NewStore(nil)
	k := insertKitty(t, store, 1, nil)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.InsertKitty(k, 2, nil)
	})
	if err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	_, err = store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.InsertKitty(Kitty{ID: 42}, 2, nil)
	})
	if err == nil || !strings.Contains(err.Error(), "not issued") {
		t.Fatalf("expected unissued id error, got %v", err)
	}
}

func TestSetOwner(t *testing.T) {
	store := NewStore(nil)
	k := insertKitty(t, store, 1, nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SetOwner(k.ID, 5)
	}); err != nil {
		t.Fatalf("set owner: %v", err)
	}
	if owner, _ := store.OwnerOf(k.ID); owner != 5 {
		t.Fatalf("expected owner 5, got %d", owner)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.SetOwner(99, 5)
	}); err == nil {
		t.Fatalf("expected error for missing kitty")
	}
}

func TestTransactionSeesOwnWrites(t *testing.T) {
	store := NewStore(nil)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		if err := tx.InsertKitty(Kitty{ID: id}, 3, nil); err != nil {
			return err
		}
		if _, ok := tx.FindKitty(id); !ok {
			t.Fatalf("transaction cannot see its own kitty")
		}
		if owner, ok := tx.OwnerOf(id); !ok || owner != 3 {
			t.Fatalf("transaction cannot see its own owner record")
		}
		if tx.Snapshot().NextKittyID() != 1 || tx.NextKittyID() != 1 {
			t.Fatalf("transaction snapshot does not reflect allocation")
		}
		if store.NextKittyID() != 0 {
			t.Fatalf("uncommitted allocation visible outside the transaction")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction: %v", err)
	}
}

func TestBlockingRuleRollsBack(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockAll{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		id, err := tx.AllocateKittyID()
		if err != nil {
			return err
		}
		return tx.InsertKitty(Kitty{ID: id}, 1, nil)
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if store.NextKittyID() != 0 || len(store.ListKitties()) != 0 {
		t.Fatalf("blocked transaction was committed")
	}
	if store.RulesEngine() != engine {
		t.Fatalf("expected configured engine")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	store := NewStore(nil)
	a := insertKitty(t, store, 1, nil)
	b := insertKitty(t, store, 1, nil)
	insertKitty(t, store, 2, &Parents{A: a.ID, B: b.ID})

	snapshot := store.ExportState()
	snapshot.Owners[a.ID] = 77 // exported snapshot must be detached
	if owner, _ := store.OwnerOf(a.ID); owner != 1 {
		t.Fatalf("export shares maps with live state")
	}

	restored := NewStore(nil)
	restored.ImportState(store.ExportState())
	if restored.NextKittyID() != 3 {
		t.Fatalf("expected next id 3, got %d", restored.NextKittyID())
	}
	if p, ok := restored.ParentsOf(2); !ok || p != (Parents{A: a.ID, B: b.ID}) {
		t.Fatalf("parents not restored: %+v", p)
	}
	if got := restored.ListKitties(); len(got) != 3 || got[0].ID != 0 || got[2].ID != 2 {
		t.Fatalf("unexpected kitties %+v", got)
	}
}

func TestMigrateSnapshotInitialisesAndRealigns(t *testing.T) {
	migrated := migrateSnapshot(Snapshot{Kitties: map[EntityID]Kitty{4: {ID: 9}}})
	if migrated.Owners == nil || migrated.Parents == nil {
		t.Fatalf("expected migrateSnapshot to initialise nil maps")
	}
	if migrated.Kitties[4].ID != 4 {
		t.Fatalf("expected kitty id realigned to key, got %d", migrated.Kitties[4].ID)
	}
}

func TestViewListsAreOrdered(t *testing.T) {
	store := NewStore(nil)
	for i := 0; i < 5; i++ {
		insertKitty(t, store, AccountID(10-i), nil)
	}
	insertKitty(t, store, 1, &Parents{A: 3, B: 1})
	err := store.View(context.Background(), func(v TransactionView) error {
		owners := v.ListOwnership()
		for i := 1; i < len(owners); i++ {
			if owners[i-1].ID >= owners[i].ID {
				t.Fatalf("ownership not ordered: %+v", owners)
			}
		}
		parentage := v.ListParentage()
		if len(parentage) != 1 || parentage[0].Child != 5 {
			t.Fatalf("unexpected parentage %+v", parentage)
		}
		if v.NextKittyID() != 6 {
			t.Fatalf("expected next id 6, got %d", v.NextKittyID())
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}

type blockAll struct{}

func (blockAll) Name() string { return "block_all" }

func (blockAll) Evaluate(context.Context, domain.RuleView, []domain.Event) (Result, error) {
	return Result{Violations: []domain.Violation{{Rule: "block_all", Severity: domain.SeverityBlock}}}, nil
}

func TestSnapshotBuckets(t *testing.T) {
	store := NewStore(nil)
	a := insertKitty(t, store, 1, nil)
	b := insertKitty(t, store, 2, nil)
	insertKitty(t, store, 3, &Parents{A: a.ID, B: b.ID})
	original := store.ExportState()

	var decoded Snapshot
	for _, bucket := range Buckets {
		payload, err := original.EncodeBucket(bucket)
		if err != nil {
			t.Fatalf("encode %s: %v", bucket, err)
		}
		if err := decoded.DecodeBucket(bucket, payload); err != nil {
			t.Fatalf("decode %s: %v", bucket, err)
		}
	}
	if err := decoded.DecodeBucket("legacy", []byte("{")); err != nil {
		t.Fatalf("unknown bucket should be ignored: %v", err)
	}
	if decoded.NextID != 3 || len(decoded.Kitties) != 3 || decoded.Owners[2] != 3 || decoded.Parents[2] != (Parents{A: a.ID, B: b.ID}) {
		t.Fatalf("unexpected decoded snapshot %+v", decoded)
	}
	if decoded.Kitties[0] != original.Kitties[0] {
		t.Fatalf("kitty dna not preserved")
	}
	if _, err := original.EncodeBucket("legacy"); err == nil {
		t.Fatalf("expected unknown bucket error")
	}
	if err := decoded.DecodeBucket(BucketKitties, []byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}
