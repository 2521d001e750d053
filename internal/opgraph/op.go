// Package opgraph defines the atomic mutation record (Op) and its batch
// wrapper (Change), plus the causal graph over Changes.
package opgraph

import (
	"automerge/internal/actor"
	"automerge/internal/types"
)

// Action identifies what kind of mutation an Op performs. The numeric
// values match the wire "action" column; MakeTable is
// reserved for wire compatibility and never produced by a Transaction, but a
// decoded MakeTable op is integrated like the other Make actions, creating
// an object of whatever ObjType it carries.
type Action int

const (
	ActionMakeMap Action = iota
	ActionSet
	ActionMakeList
	ActionDel
	ActionMakeText
	ActionIncrement
	ActionMakeTable
	ActionMark
	ActionUnmark
)

// ExpandPolicy selects sticky behavior for a Mark's boundaries.
type ExpandPolicy int

const (
	ExpandNone ExpandPolicy = iota
	ExpandBefore
	ExpandAfter
	ExpandBoth
)

func (e ExpandPolicy) ExpandsBefore() bool { return e == ExpandBefore || e == ExpandBoth }
func (e ExpandPolicy) ExpandsAfter() bool { return e == ExpandAfter || e == ExpandBoth }

// KeyKind distinguishes a map-key target from a sequence-element target.
type KeyKind int

const (
	KeyMap KeyKind = iota
	KeySeq
)

// Key is an op's target key within its object: a string for maps, or an
// ElemId (possibly Head) for sequences.
type Key struct {
	Kind KeyKind
	Str string
	Elem actor.ElemId
}

func MapKey(s string) Key { return Key{Kind: KeyMap, Str: s} }
func SeqKey(e actor.ElemId) Key { return Key{Kind: KeySeq, Elem: e} }
func HeadKey() Key { return Key{Kind: KeySeq, Elem: actor.Head} }

func (k Key) IsHead() bool { return k.Kind == KeySeq && k.Elem.IsHead() }

// Op is a single mutation record. The Actor field of every embedded OpId is
// an index into an actor table: the Document's global table for ops staged
// in or applied to an OpSet, or the owning Change's local table for ops held
// in Change.Ops. EncodeChange maps global indices to local ones;
// DecodeChange leaves them local, and the Document maps them to global
// indices when it integrates a Change.
type Op struct {
	ID actor.OpId
	Action Action
	ObjID actor.ObjId // container this op mutates
	Key Key
	Insert bool // sequences only: true = insert after Key, false = mutate element at Key

	ObjType types.ObjType // valid when Action is a Make* action
	Value types.Value // valid when Action == ActionSet

	Delta int64 // valid when Action == ActionIncrement

	MarkName string
	MarkValue types.Value
	MarkExpand ExpandPolicy
	MarkEnd actor.ElemId // end of the marked range (start is Key.Elem)

	Pred []actor.OpId // ops this one overwrites
	Succ []actor.OpId // ops that later overwrote this one (derived, mutated in place)
}

// Visible reports whether this op is not (yet) superseded.
func (o *Op) Visible() bool { return len(o.Succ) == 0 }

// AddSucc records that `who` overwrote this op, if not already present.
func (o *Op) AddSucc(who actor.OpId) {
	for _, s := range o.Succ {
		if s == who {
			return
		}
	}
	o.Succ = append(o.Succ, who)
}

// RemoveSucc undoes AddSucc (used when rolling back a staged transaction).
func (o *Op) RemoveSucc(who actor.OpId) {
	for i, s := range o.Succ {
		if s == who {
			o.Succ = append(o.Succ[:i], o.Succ[i+1:]...)
			return
		}
	}
}

// Change is a batch of ops committed by one actor in one transaction.
// Actors is the local actor table used while this Change is being
// built/encoded/decoded: Actors[0] is always the author.
// When a Change is integrated into a Document's OpSet, globally-indexed
// copies of its Ops are applied; the Change itself keeps this local table
// and its local-indexed Ops, which re-encoding and replay rely on.
type Change struct {
	Hash actor.ChangeHash
	Actor actor.ID
	Seq uint64
	StartOp uint64
	Time int64
	Message string
	Deps []actor.ChangeHash

	Actors []actor.ID // local actor table, Actors[0] == Actor
	Ops []Op // Op.ID.Actor/ObjID.Actor/etc index into Actors
}

// MaxOp returns the counter of the last op in this change.
func (c *Change) MaxOp() uint64 {
	if len(c.Ops) == 0 {
		return c.StartOp - 1
	}
	return c.StartOp + uint64(len(c.Ops)) - 1
}
