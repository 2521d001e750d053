package automerge

import (
	"testing"

	"automerge/internal/opgraph"
	"automerge/internal/patch"
	"automerge/internal/types"
)

func mustGet(t *testing.T, d *Document, path []any) types.Value {
	t.Helper()
	v, ok, err := d.Get(path, nil)
	if err != nil {
		t.Fatalf("Get(%v): %v", path, err)
	}
	if !ok {
		t.Fatalf("Get(%v): no value", path)
	}
	return v
}

func TestPutAndGetScalar(t *testing.T) {
	d := New()
	if _, err := d.Transact("set title", func(tx *Transaction) error {
		_, err := tx.Put([]any{"title"}, types.Str("hello"))
		return err
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	v := mustGet(t, d, []any{"title"})
	if v.Str() != "hello" {
		t.Fatalf("got %q", v.Str())
	}
}

func TestNestedMapPutObject(t *testing.T) {
	d := New()
	if _, err := d.Transact("nested", func(tx *Transaction) error {
		if _, err := tx.PutObject([]any{"config"}, types.ObjTypeMap); err != nil {
			return err
		}
		_, err := tx.Put([]any{"config", "align"}, types.Str("left"))
		return err
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	v := mustGet(t, d, []any{"config", "align"})
	if v.Str() != "left" {
		t.Fatalf("got %q", v.Str())
	}
}

func TestListInsertAndLen(t *testing.T) {
	d := New()
	if _, err := d.Transact("seed list", func(tx *Transaction) error {
		if _, err := tx.PutObject([]any{"items"}, types.ObjTypeList); err != nil {
			return err
		}
		if _, err := tx.Insert([]any{"items"}, 0, types.Int(1)); err != nil {
			return err
		}
		if _, err := tx.Insert([]any{"items"}, 1, types.Int(2)); err != nil {
			return err
		}
		_, err := tx.Insert([]any{"items"}, 0, types.Int(0))
		return err
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	n, err := d.Len([]any{"items"}, nil)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected length 3, got %d", n)
	}
	for i, want := range []int64{0, 1, 2} {
		v, ok, err := d.Get([]any{"items", i}, nil)
		if err != nil || !ok {
			t.Fatalf("Get index %d: ok=%v err=%v", i, ok, err)
		}
		if v.Int() != want {
			t.Fatalf("index %d: got %d want %d", i, v.Int(), want)
		}
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	d := New()
	d.Transact("set", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(1))
		return err
	})
	if _, err := d.Transact("delete", func(tx *Transaction) error {
		return tx.Delete([]any{"x"})
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	_, ok, err := d.Get([]any{"x"}, nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected key to be gone after delete")
	}
}

func TestRollbackDiscardsStagedOps(t *testing.T) {
	d := New()
	d.Transact("set", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(1))
		return err
	})
	_, err := d.Transact("bad", func(tx *Transaction) error {
		if _, err := tx.Put([]any{"x"}, types.Int(2)); err != nil {
			return err
		}
		return automergeSentinelErr{}
	})
	if err == nil {
		t.Fatal("expected transaction to fail and roll back")
	}
	v := mustGet(t, d, []any{"x"})
	if v.Int() != 1 {
		t.Fatalf("expected rollback to leave original value 1, got %d", v.Int())
	}
}

type automergeSentinelErr struct{}

func (automergeSentinelErr) Error() string { return "intentional rollback trigger" }

func TestCounterAccumulatesAcrossConcurrentIncrements(t *testing.T) {
	d := New()
	d.Transact("seed counter", func(tx *Transaction) error {
		_, err := tx.Put([]any{"score"}, types.Counter(10))
		return err
	})
	other := d.Fork()

	d.Transact("inc a", func(tx *Transaction) error {
		return tx.Increment([]any{"score"}, 5)
	})
	other.Transact("inc b", func(tx *Transaction) error {
		return tx.Increment([]any{"score"}, 18)
	})

	if err := d.Merge(other); err != nil {
		t.Fatalf("merge: %v", err)
	}
	v := mustGet(t, d, []any{"score"})
	if v.Int() != 33 {
		t.Fatalf("expected merged counter 33, got %d", v.Int())
	}
}

func TestConcurrentMapWritesConflictThenConverge(t *testing.T) {
	d := New()
	d.Transact("seed", func(tx *Transaction) error {
		_, err := tx.PutObject([]any{"config"}, types.ObjTypeMap)
		return err
	})
	other := d.Fork()

	d.Transact("a", func(tx *Transaction) error {
		_, err := tx.Put([]any{"config", "align"}, types.Str("left"))
		return err
	})
	other.Transact("b", func(tx *Transaction) error {
		_, err := tx.Put([]any{"config", "align"}, types.Str("right"))
		return err
	})

	if err := d.Merge(other); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if err := other.Merge(d); err != nil {
		t.Fatalf("merge: %v", err)
	}

	vals, err := d.GetAll([]any{"config", "align"}, nil)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(vals) != 2 {
		t.Fatalf("expected 2 conflicting values, got %d", len(vals))
	}

	winnerD, _, _ := d.Get([]any{"config", "align"}, nil)
	winnerOther, _, _ := other.Get([]any{"config", "align"}, nil)
	if winnerD.Str() != winnerOther.Str() {
		t.Fatalf("replicas diverged: %q vs %q", winnerD.Str(), winnerOther.Str())
	}
}

func TestSpliceAndTextRoundTrip(t *testing.T) {
	d := New()
	d.Transact("seed text", func(tx *Transaction) error {
		_, err := tx.PutObject([]any{"body"}, types.ObjTypeText)
		return err
	})
	if _, err := d.Transact("splice", func(tx *Transaction) error {
		return tx.Splice([]any{"body"}, 0, 0, "hello world")
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	text, err := d.Text([]any{"body"}, nil)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("got %q", text)
	}

	if _, err := d.Transact("splice replace", func(tx *Transaction) error {
		return tx.Splice([]any{"body"}, 6, 5, "there")
	}); err != nil {
		t.Fatalf("transact: %v", err)
	}
	text, err = d.Text([]any{"body"}, nil)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if text != "hello there" {
		t.Fatalf("got %q", text)
	}
}

func TestHistoricalReadAsOfPastHeads(t *testing.T) {
	d := New()
	d.Transact("first", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(1))
		return err
	})
	pastHeads := d.Heads()
	d.Transact("second", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(2))
		return err
	})

	live := mustGet(t, d, []any{"x"})
	if live.Int() != 2 {
		t.Fatalf("expected live value 2, got %d", live.Int())
	}

	hist, ok, err := d.Get([]any{"x"}, pastHeads)
	if err != nil {
		t.Fatalf("historical Get: %v", err)
	}
	if !ok || hist.Int() != 1 {
		t.Fatalf("expected historical value 1, got ok=%v val=%d", ok, hist.Int())
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	d := New()
	d.Transact("seed", func(tx *Transaction) error {
		if _, err := tx.PutObject([]any{"items"}, types.ObjTypeList); err != nil {
			return err
		}
		if _, err := tx.Insert([]any{"items"}, 0, types.Str("a")); err != nil {
			return err
		}
		_, err := tx.Insert([]any{"items"}, 1, types.Str("b"))
		return err
	})
	d.Transact("more", func(tx *Transaction) error {
		_, err := tx.Put([]any{"count"}, types.Int(7))
		return err
	})

	bytes := d.Save()
	loaded, err := Load(bytes)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	n, err := loaded.Len([]any{"items"}, nil)
	if err != nil || n != 2 {
		t.Fatalf("loaded Len: n=%d err=%v", n, err)
	}
	v := mustGet(t, loaded, []any{"count"})
	if v.Int() != 7 {
		t.Fatalf("loaded count: got %d", v.Int())
	}
	if len(loaded.Heads()) != len(d.Heads()) {
		t.Fatalf("heads mismatch after load: got %d want %d", len(loaded.Heads()), len(d.Heads()))
	}
}

func TestLoadThenCommitAssignsFreshSeq(t *testing.T) {
	d := New()
	d.Transact("one", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(1))
		return err
	})
	d.Transact("two", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(2))
		return err
	})
	saved := d.Save()

	reloaded, err := Load(saved, WithActorID(d.ActorID()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	change, err := reloaded.Transact("three", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(3))
		return err
	})
	if err != nil {
		t.Fatalf("transact after load: %v", err)
	}
	if change.Seq != 3 {
		t.Fatalf("expected seq 3 continuing from the loaded history, got %d", change.Seq)
	}
}

func TestSyncConvergesTwoDocuments(t *testing.T) {
	d1 := New()
	d1.Transact("seed", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(1))
		return err
	})
	d2 := d1.Fork()

	d1.Transact("a", func(tx *Transaction) error {
		_, err := tx.Put([]any{"y"}, types.Str("from-1"))
		return err
	})
	d2.Transact("b", func(tx *Transaction) error {
		_, err := tx.Put([]any{"z"}, types.Str("from-2"))
		return err
	})

	s1, s2 := NewSyncState(), NewSyncState()
	for round := 0; round < 5; round++ {
		msg1, ok1 := d1.GenerateSyncMessage(s1)
		msg2, ok2 := d2.GenerateSyncMessage(s2)
		if !ok1 && !ok2 {
			break
		}
		if ok1 {
			if err := d2.ReceiveSyncMessage(s2, msg1); err != nil {
				t.Fatalf("d2 receive: %v", err)
			}
		}
		if ok2 {
			if err := d1.ReceiveSyncMessage(s1, msg2); err != nil {
				t.Fatalf("d1 receive: %v", err)
			}
		}
	}

	for _, path := range [][]any{{"y"}, {"z"}} {
		v1, ok1, _ := d1.Get(path, nil)
		v2, ok2, _ := d2.Get(path, nil)
		if !ok1 || !ok2 {
			t.Fatalf("path %v missing after sync: ok1=%v ok2=%v", path, ok1, ok2)
		}
		if v1.Str() != v2.Str() {
			t.Fatalf("path %v diverged after sync: %q vs %q", path, v1.Str(), v2.Str())
		}
	}
}

func TestCursorSurvivesDeletion(t *testing.T) {
	d := New()
	d.Transact("seed", func(tx *Transaction) error {
		if _, err := tx.PutObject([]any{"items"}, types.ObjTypeList); err != nil {
			return err
		}
		for i, v := range []int64{10, 20, 30} {
			if _, err := tx.Insert([]any{"items"}, i, types.Int(v)); err != nil {
				return err
			}
		}
		return nil
	})

	cur, err := d.MakeCursor([]any{"items"}, 1)
	if err != nil {
		t.Fatalf("MakeCursor: %v", err)
	}

	d.Transact("delete middle", func(tx *Transaction) error {
		return tx.Delete([]any{"items", 1})
	})

	idx, err := d.ResolveCursor(cur)
	if err != nil {
		t.Fatalf("ResolveCursor: %v", err)
	}
	if idx != 0 {
		t.Fatalf("expected cursor to resolve to nearest surviving predecessor index 0, got %d", idx)
	}
}

func TestPatchesAreEmittedForMutations(t *testing.T) {
	d := New()
	d.Transact("set", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(1))
		return err
	})
	patches := d.TakePatches()
	if len(patches) != 1 {
		t.Fatalf("expected 1 patch, got %d", len(patches))
	}
	if patches[0].Kind != patch.KindPut {
		t.Fatalf("unexpected patch kind: %v", patches[0].Kind)
	}
	if more := d.TakePatches(); len(more) != 0 {
		t.Fatalf("expected patches to be drained, got %d remaining", len(more))
	}
}

func TestNestedTransactionRejected(t *testing.T) {
	d := New()
	tx, err := d.BeginTransaction()
	if err != nil {
		t.Fatalf("BeginTransaction: %v", err)
	}
	defer tx.Rollback()
	if _, err := d.BeginTransaction(); err == nil {
		t.Fatal("expected nested transaction to be rejected")
	}
}

func TestApplyChangesBuffersOnMissingDeps(t *testing.T) {
	d1 := New()
	d1.Transact("one", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(1))
		return err
	})
	d1.Transact("two", func(tx *Transaction) error {
		_, err := tx.Put([]any{"x"}, types.Int(2))
		return err
	})

	changes := d1.Changes()
	d2 := New(WithActorID(d1.ActorID()))
	onlySecond := []*opgraph.Change{changes[1]}
	if err := d2.ApplyChanges(onlySecond); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	if len(d2.Heads()) != 0 {
		t.Fatal("expected change with missing dep to stay buffered")
	}
	if err := d2.ApplyChanges([]*opgraph.Change{changes[0]}); err != nil {
		t.Fatalf("ApplyChanges: %v", err)
	}
	if len(d2.Heads()) != 1 {
		t.Fatal("expected both changes to drain once the dependency arrived")
	}
}
