// Package actor defines the identifier types shared across the engine:
// ActorId, OpId, ElemId, ObjId and ChangeHash.
package actor

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// ID is an opaque actor identity, conventionally 16 random bytes (the same
// shape as a google/uuid, though automerge treats it as an opaque byte
// string rather than a formatted UUID).
type ID []byte

// NewRandom returns a fresh 16-byte random actor id, grounded on the random
// byte layout of github.com/google/uuid (used elsewhere in the retrieved
// pack for node/service identities).
func NewRandom() ID {
	u, err := uuid.NewRandom()
	if err != nil {
		// crypto/rand failure is unrecoverable for identity generation.
		var b [16]byte
		_, _ = rand.Read(b[:])
		return ID(b[:])
	}
	return ID(u[:])
}

func (a ID) String() string { return hex.EncodeToString(a) }

func (a ID) Equal(b ID) bool { return bytes.Equal(a, b) }

// Compare gives a total order over actor ids, used as the Lamport tie-break.
func (a ID) Compare(b ID) int { return bytes.Compare(a, b) }

// OpId is a Lamport identifier: (counter, actor-index). The actor is stored
// as an index into a Change/Document's actor table rather than the raw ID,
// matching the columnar wire format and avoiding repeated
// actor-id copies inside the op arena.
type OpId struct {
	Counter uint64
	Actor int // index into the owning actor table; -1 means ROOT/HEAD sentinel
}

// Head is the sentinel ElemId meaning "the start of a sequence".
var Head = OpId{Counter: 0, Actor: -1}

// Root is the sentinel ObjId naming the document's root map.
var Root = OpId{Counter: 0, Actor: -1}

func (o OpId) IsHead() bool { return o.Actor < 0 && o.Counter == 0 }
func (o OpId) IsRoot() bool { return o.Actor < 0 && o.Counter == 0 }

// Less implements the universal Lamport tie-break: counter first, then
// actor id lexicographically. Callers must resolve o.Actor/other.Actor to
// concrete actor IDs via a shared table before calling this on OpIds from
// different tables.
func Less(a OpId, actorA ID, b OpId, actorB ID) bool {
	if a.Counter != b.Counter {
		return a.Counter < b.Counter
	}
	return actorA.Compare(actorB) < 0
}

func (o OpId) String() string {
	if o.Actor < 0 {
		return "_head"
	}
	return fmt.Sprintf("%d@%d", o.Counter, o.Actor)
}

// ElemId names a position in a sequence: either an OpId or Head.
type ElemId = OpId

// ObjId names a container: either an OpId or Root.
type ObjId = OpId

// ChangeHash is a 32-byte SHA-256 digest, content-addressing a Change.
type ChangeHash [32]byte

func (h ChangeHash) String() string { return hex.EncodeToString(h[:]) }

func (h ChangeHash) Less(o ChangeHash) bool { return bytes.Compare(h[:], o[:]) < 0 }

// SortHashes returns a new, ascending-sorted copy of hashes.
func SortHashes(hashes []ChangeHash) []ChangeHash {
	out := make([]ChangeHash, len(hashes))
	copy(out, hashes)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Less(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
