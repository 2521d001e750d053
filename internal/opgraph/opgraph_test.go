package opgraph

import (
	"testing"

	"automerge/internal/actor"
	"automerge/internal/types"
)

func authorTable(a actor.ID) func(int) actor.ID {
	return func(idx int) actor.ID {
		if idx < 0 {
			return nil
		}
		return a
	}
}

func TestChunkRoundTrip(t *testing.T) {
	payload := []byte("hello change payload")
	framed := EncodeChunk(ChunkChange, payload)
	chunk, n, err := DecodeChunk(framed)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if n != len(framed) {
		t.Fatalf("consumed %d, want %d", n, len(framed))
	}
	if string(chunk.Payload) != string(payload) {
		t.Fatalf("payload mismatch: %q", chunk.Payload)
	}
}

func TestChunkCompressedRoundTrip(t *testing.T) {
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i % 7)
	}
	framed := EncodeChunk(ChunkChange, payload)
	chunk, _, err := DecodeChunk(framed)
	if err != nil {
		t.Fatalf("DecodeChunk: %v", err)
	}
	if len(chunk.Payload) != len(payload) {
		t.Fatalf("payload length mismatch: got %d want %d", len(chunk.Payload), len(payload))
	}
}

func TestChunkBadHashRejected(t *testing.T) {
	framed := EncodeChunk(ChunkChange, []byte("abc"))
	framed[10] ^= 0xff // corrupt payload without touching the hash prefix
	if _, _, err := DecodeChunk(framed); err != ErrBadHashPrefix {
		t.Fatalf("expected ErrBadHashPrefix, got %v", err)
	}
}

func TestEncodeDecodeChangeRoundTrip(t *testing.T) {
	author := actor.NewRandom()
	c := &Change{
		Actor:   author,
		Seq:     1,
		StartOp: 1,
		Time:    1000,
		Message: "hello",
		Ops: []Op{
			{ID: actor.OpId{Actor: 0, Counter: 1}, Action: ActionMakeMap, ObjID: actor.Root, Key: MapKey("config")},
			{ID: actor.OpId{Actor: 0, Counter: 2}, Action: ActionSet, ObjID: actor.OpId{Actor: 0, Counter: 1}, Key: MapKey("align"), Value: types.Str("left")},
		},
	}
	payload := EncodeChange(c, authorTable(author))
	decoded, err := DecodeChange(payload)
	if err != nil {
		t.Fatalf("DecodeChange: %v", err)
	}
	if decoded.Seq != c.Seq || decoded.StartOp != c.StartOp || decoded.Message != c.Message {
		t.Fatalf("header mismatch: %+v", decoded)
	}
	if len(decoded.Ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(decoded.Ops))
	}
	if decoded.Ops[1].Value.Str() != "left" {
		t.Fatalf("value mismatch: %q", decoded.Ops[1].Value.Str())
	}
	if !decoded.Actor.Equal(author) {
		t.Fatalf("actor mismatch")
	}
}

func TestGraphBuffersUntilDepsApplied(t *testing.T) {
	g := NewGraph()
	author := actor.NewRandom()

	c1 := &Change{Actor: author, Seq: 1, StartOp: 1, Ops: []Op{{ID: actor.OpId{Actor: 0, Counter: 1}, Action: ActionSet, ObjID: actor.Root, Key: MapKey("a"), Value: types.Int(1)}}}
	EncodeChange(c1, authorTable(author))

	c2 := &Change{Actor: author, Seq: 2, StartOp: 2, Deps: []actor.ChangeHash{c1.Hash}, Ops: []Op{{ID: actor.OpId{Actor: 0, Counter: 2}, Action: ActionSet, ObjID: actor.Root, Key: MapKey("b"), Value: types.Int(2)}}}
	EncodeChange(c2, authorTable(author))

	applied, err := g.Apply(c2)
	if err != nil {
		t.Fatalf("Apply(c2): %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("expected c2 to buffer, got %d applied", len(applied))
	}
	if g.Has(c2.Hash) {
		t.Fatal("c2 should not be applied yet")
	}

	applied, err = g.Apply(c1)
	if err != nil {
		t.Fatalf("Apply(c1): %v", err)
	}
	if len(applied) != 2 {
		t.Fatalf("expected both changes to drain, got %d", len(applied))
	}
	if !g.Has(c1.Hash) || !g.Has(c2.Hash) {
		t.Fatal("both changes should now be applied")
	}
	if g.IndexOf(c1.Hash) != 0 || g.IndexOf(c2.Hash) != 1 {
		t.Fatalf("unexpected topological indices: c1=%d c2=%d", g.IndexOf(c1.Hash), g.IndexOf(c2.Hash))
	}
}

func TestGraphDuplicateApplyIsIdempotent(t *testing.T) {
	g := NewGraph()
	author := actor.NewRandom()
	c := &Change{Actor: author, Seq: 1, StartOp: 1, Ops: []Op{{ID: actor.OpId{Actor: 0, Counter: 1}, Action: ActionSet, ObjID: actor.Root, Key: MapKey("a"), Value: types.Int(1)}}}
	EncodeChange(c, authorTable(author))

	if _, err := g.Apply(c); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	applied, err := g.Apply(c)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(applied) != 0 {
		t.Fatalf("duplicate apply should be a no-op, got %d applied", len(applied))
	}
	if g.Len() != 1 {
		t.Fatalf("expected 1 change stored, got %d", g.Len())
	}
}

func TestGraphDuplicateSeqRejected(t *testing.T) {
	g := NewGraph()
	author := actor.NewRandom()
	c1 := &Change{Actor: author, Seq: 1, StartOp: 1, Ops: []Op{{ID: actor.OpId{Actor: 0, Counter: 1}, Action: ActionSet, ObjID: actor.Root, Key: MapKey("a"), Value: types.Int(1)}}}
	EncodeChange(c1, authorTable(author))
	if _, err := g.Apply(c1); err != nil {
		t.Fatalf("apply c1: %v", err)
	}

	c2 := &Change{Actor: author, Seq: 1, StartOp: 1, Ops: []Op{{ID: actor.OpId{Actor: 0, Counter: 1}, Action: ActionSet, ObjID: actor.Root, Key: MapKey("z"), Value: types.Int(9)}}}
	EncodeChange(c2, authorTable(author))
	if _, err := g.Apply(c2); err == nil {
		t.Fatal("expected ErrDuplicateSeq")
	}
}
