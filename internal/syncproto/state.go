// Package syncproto implements the peer synchronization protocol (spec
// §4.6 "Sync Engine"): bringing two replicas to a common causal frontier
// with a Bloom-filter exchange rather than shipping the full history.
package syncproto

import (
	"automerge/internal/actor"
	"automerge/internal/bloom"
)

// Have is one entry of a Message's have[] column: a last-sync frontier
// plus a Bloom filter over the hashes the sender believes are descended
// from it.
type Have struct {
	LastSync []actor.ChangeHash
	Bloom *bloom.Filter
}

// Message is one sync-protocol envelope.
type Message struct {
	Heads []actor.ChangeHash
	Need []actor.ChangeHash
	Have []Have
	Changes [][]byte // chunk-framed Change bytes
}

// State is the per-peer sync bookkeeping a Document keeps across repeated
// generate/receive rounds.
type State struct {
	SharedHeads []actor.ChangeHash
	LastSentHeads []actor.ChangeHash

	TheirHeads []actor.ChangeHash
	TheirNeed []actor.ChangeHash
	TheirHave []Have

	SentHashes map[actor.ChangeHash]bool
}

// NewState returns a fresh, empty peer state.
func NewState() *State {
	return &State{SentHashes: make(map[actor.ChangeHash]bool)}
}

// Host is the subset of Document behavior the sync engine needs. A
// Document implements this directly; tests may supply a fake.
type Host interface {
	// Heads returns the current local heads.
	Heads() []actor.ChangeHash
	// Has reports whether h is already applied locally.
	Has(h actor.ChangeHash) bool
	// Closure returns the causal closure (inclusive) of the given heads.
	Closure(heads []actor.ChangeHash) map[actor.ChangeHash]bool
	// AllHashes returns every applied change hash, in no particular order.
	AllHashes() []actor.ChangeHash
	// EncodeChange returns the chunk-framed bytes for an applied change.
	EncodeChange(h actor.ChangeHash) ([]byte, error)
	// DecodeChangeHash returns the hash a chunk-framed change's bytes would
	// have without applying it (used to dedupe against SentHashes/need).
	DecodeChangeHash(data []byte) (actor.ChangeHash, error)
	// ApplyChangeBytes decodes and applies one chunk-framed Change,
	// buffering it internally if its deps are not yet satisfied.
	ApplyChangeBytes(data []byte) error
}

func containsHash(set []actor.ChangeHash, h actor.ChangeHash) bool {
	for _, x := range set {
		if x == h {
			return true
		}
	}
	return false
}

func subsetOf(a []actor.ChangeHash, closure map[actor.ChangeHash]bool) bool {
	for _, h := range a {
		if !closure[h] {
			return false
		}
	}
	return true
}
