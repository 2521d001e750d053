package opset

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/opgraph"
	"automerge/internal/types"
)

// mkOp builds a globally-actor-indexed op: the OpSet's global actor table
// is just the order actors were interned via InternActor, so an actorIdx of
// 0 here always means "the first actor interned", matching this file's
// convention of interning a before b.
func mkOp(id actor.OpId, action opgraph.Action, obj actor.ObjId, key opgraph.Key, insert bool, value types.Value, pred ...actor.OpId) *opgraph.Op {
	return &opgraph.Op{ID: id, Action: action, ObjID: obj, Key: key, Insert: insert, Value: value, Pred: pred}
}

func TestMapConflictWinnerIsHighestOpID(t *testing.T) {
	os := New()
	// Construct actor ids with a known byte ordering instead of random ones
	// so the Lamport tie-break's winner is deterministic for this test.
	lo := actor.ID{0x00}
	hi := actor.ID{0xff}
	a := os.InternActor(lo)
	b := os.InternActor(hi)

	op1 := mkOp(actor.OpId{Actor: a, Counter: 1}, opgraph.ActionSet, actor.Root, opgraph.MapKey("title"), false, types.Str("from-a"))
	op2 := mkOp(actor.OpId{Actor: b, Counter: 1}, opgraph.ActionSet, actor.Root, opgraph.MapKey("title"), false, types.Str("from-b"))

	if err := os.ApplyOp(op1, 0); err != nil {
		t.Fatalf("apply op1: %v", err)
	}
	if err := os.ApplyOp(op2, 0); err != nil {
		t.Fatalf("apply op2: %v", err)
	}

	root, _ := os.Object(actor.Root)
	visible := os.VisibleAtKey(root, "title")
	if len(visible) != 2 {
		t.Fatalf("expected both concurrent writes to remain conflicting, got %d", len(visible))
	}
	winner := visible[len(visible)-1]
	if winner.Op.ID.Actor != b {
		t.Fatalf("expected actor with the higher id (0xff) to win the tie, got actor %d", winner.Op.ID.Actor)
	}
}

func TestMapPutSupersedesPrior(t *testing.T) {
	os := New()
	a := os.InternActor(actor.NewRandom())

	op1 := mkOp(actor.OpId{Actor: a, Counter: 1}, opgraph.ActionSet, actor.Root, opgraph.MapKey("x"), false, types.Int(1))
	if err := os.ApplyOp(op1, 0); err != nil {
		t.Fatalf("apply op1: %v", err)
	}
	op2 := mkOp(actor.OpId{Actor: a, Counter: 2}, opgraph.ActionSet, actor.Root, opgraph.MapKey("x"), false, types.Int(2), op1.ID)
	if err := os.ApplyOp(op2, 1); err != nil {
		t.Fatalf("apply op2: %v", err)
	}

	root, _ := os.Object(actor.Root)
	visible := os.VisibleAtKey(root, "x")
	if len(visible) != 1 {
		t.Fatalf("expected exactly one visible op after supersession, got %d", len(visible))
	}
	if visible[0].Op.Value.Int() != 2 {
		t.Fatalf("expected surviving value 2, got %d", visible[0].Op.Value.Int())
	}
}

// buildList creates a List object and inserts three elements, the first
// after Head and each later one after the element inserted before it, so
// the visible order is 10, 20, 30.
func buildList(t *testing.T, os *OpSet, a int) (actor.ObjId, []actor.OpId) {
	t.Helper()
	listID := actor.OpId{Actor: a, Counter: 1}
	mk := mkOp(listID, opgraph.ActionMakeList, actor.Root, opgraph.MapKey("items"), false, types.Null())
	mk.ObjType = types.ObjTypeList
	if err := os.ApplyOp(mk, 0); err != nil {
		t.Fatalf("make list: %v", err)
	}

	var ids []actor.OpId
	parent := actor.Head
	for i, v := range []int64{10, 20, 30} {
		id := actor.OpId{Actor: a, Counter: uint64(2 + i)}
		op := mkOp(id, opgraph.ActionSet, listID, opgraph.SeqKey(parent), true, types.Int(v))
		if err := os.ApplyOp(op, 0); err != nil {
			t.Fatalf("insert %d: %v", v, err)
		}
		ids = append(ids, id)
		parent = id
	}
	return listID, ids
}

func TestSeqInsertPreservesOrder(t *testing.T) {
	os := New()
	a := os.InternActor(actor.NewRandom())
	listID, _ := buildList(t, os, a)

	obj, _ := os.Object(listID)
	if os.SeqLen(obj) != 3 {
		t.Fatalf("expected length 3, got %d", os.SeqLen(obj))
	}
	for i, want := range []int64{10, 20, 30} {
		_, op, ok := os.SeqNth(obj, i)
		if !ok {
			t.Fatalf("missing element at %d", i)
		}
		if op.Op.Value.Int() != want {
			t.Fatalf("index %d: got %d want %d", i, op.Op.Value.Int(), want)
		}
	}
}

func TestSeqDeleteTombstones(t *testing.T) {
	os := New()
	a := os.InternActor(actor.NewRandom())
	listID, ids := buildList(t, os, a)
	obj, _ := os.Object(listID)

	del := mkOp(actor.OpId{Actor: a, Counter: 5}, opgraph.ActionDel, listID, opgraph.SeqKey(ids[1]), false, types.Null(), ids[1])
	if err := os.ApplyOp(del, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if os.SeqLen(obj) != 2 {
		t.Fatalf("expected length 2 after delete, got %d", os.SeqLen(obj))
	}
	_, op, ok := os.SeqNth(obj, 1)
	if !ok || op.Op.Value.Int() != 30 {
		t.Fatalf("expected element 30 at index 1 after tombstoning, got ok=%v op=%v", ok, op)
	}

	idx, ok := os.SeqIndexOf(obj, ids[1])
	if !ok {
		t.Fatal("expected cursor resolution for tombstoned element to succeed")
	}
	if idx != 0 {
		t.Fatalf("expected tombstoned cursor to resolve to nearest surviving predecessor index 0, got %d", idx)
	}
}

func TestActiveMarksAt(t *testing.T) {
	os := New()
	a := os.InternActor(actor.NewRandom())
	listID := actor.OpId{Actor: a, Counter: 1}
	mk := mkOp(listID, opgraph.ActionMakeText, actor.Root, opgraph.MapKey("body"), false, types.Null())
	mk.ObjType = types.ObjTypeText
	if err := os.ApplyOp(mk, 0); err != nil {
		t.Fatalf("make text: %v", err)
	}

	parent := actor.Head
	var ids []actor.OpId
	for i := 0; i < 5; i++ {
		id := actor.OpId{Actor: a, Counter: uint64(2 + i)}
		op := mkOp(id, opgraph.ActionSet, listID, opgraph.SeqKey(parent), true, types.Str("x"))
		if err := os.ApplyOp(op, 0); err != nil {
			t.Fatalf("insert char %d: %v", i, err)
		}
		ids = append(ids, id)
		parent = id
	}

	markOp := &opgraph.Op{
		ID:         actor.OpId{Actor: a, Counter: 10},
		Action:     opgraph.ActionMark,
		ObjID:      listID,
		Key:        opgraph.SeqKey(ids[1]),
		MarkName:   "bold",
		MarkValue:  types.Bool(true),
		MarkExpand: opgraph.ExpandNone,
		MarkEnd:    ids[3],
	}
	if err := os.ApplyOp(markOp, 1); err != nil {
		t.Fatalf("apply mark: %v", err)
	}

	obj, _ := os.Object(listID)
	for i := 0; i < 5; i++ {
		marks := obj.ActiveMarksAt(os, i)
		want := i >= 1 && i <= 3
		got := len(marks) == 1 && marks[0].Name == "bold"
		if got != want {
			t.Fatalf("index %d: expected bold=%v, got marks=%v", i, want, marks)
		}
	}
}

func TestHistoricalQueriesIgnoreLaterChanges(t *testing.T) {
	os := New()
	a := os.InternActor(actor.NewRandom())

	op1 := mkOp(actor.OpId{Actor: a, Counter: 1}, opgraph.ActionSet, actor.Root, opgraph.MapKey("x"), false, types.Int(1))
	if err := os.ApplyOp(op1, 0); err != nil {
		t.Fatalf("apply op1: %v", err)
	}
	op2 := mkOp(actor.OpId{Actor: a, Counter: 2}, opgraph.ActionSet, actor.Root, opgraph.MapKey("x"), false, types.Int(2), op1.ID)
	if err := os.ApplyOp(op2, 1); err != nil {
		t.Fatalf("apply op2: %v", err)
	}

	root, _ := os.Object(actor.Root)

	onlyFirst := func(idx int) bool { return idx == 0 }
	hist := os.VisibleAtKeyHistorical(root, "x", onlyFirst)
	if len(hist) != 1 || hist[0].Op.Value.Int() != 1 {
		t.Fatalf("expected historical read to see only the first write, got %+v", hist)
	}

	both := func(idx int) bool { return idx <= 1 }
	cur := os.VisibleAtKeyHistorical(root, "x", both)
	if len(cur) != 1 || cur[0].Op.Value.Int() != 2 {
		t.Fatalf("expected full-prefix read to see the superseding write, got %+v", cur)
	}
}

func TestRollbackOpUndoesStaging(t *testing.T) {
	os := New()
	a := os.InternActor(actor.NewRandom())

	op1 := mkOp(actor.OpId{Actor: a, Counter: 1}, opgraph.ActionSet, actor.Root, opgraph.MapKey("x"), false, types.Int(1))
	if err := os.ApplyOp(op1, 0); err != nil {
		t.Fatalf("apply op1: %v", err)
	}
	op2 := mkOp(actor.OpId{Actor: a, Counter: 2}, opgraph.ActionSet, actor.Root, opgraph.MapKey("x"), false, types.Int(2), op1.ID)
	if err := os.ApplyOp(op2, 1); err != nil {
		t.Fatalf("apply op2: %v", err)
	}

	os.RollbackOp(op2)

	root, _ := os.Object(actor.Root)
	visible := os.VisibleAtKey(root, "x")
	if len(visible) != 1 || visible[0].Op.Value.Int() != 1 {
		t.Fatalf("expected op1 restored to sole winner after rollback, got %+v", visible)
	}
	if _, ok := os.Lookup(op2.ID); ok {
		t.Fatal("expected rolled-back op to be forgotten")
	}
}
