// Package opset implements the canonical, indexed store of all applied
// ops: per-object map and sequence indices, visibility computation, and
// historical (as-of-heads) queries.
//
// Sequence positions use the RGA integration rule: walk the siblings by
// descending OpId, adapted from a linked list to an index-addressable
// slice so visible-index lookups and path resolution stay simple. A
// persistent B-tree with aggregated metadata is traded here for a plain
// slice rescanned on demand — see DESIGN.md for the rationale; every query
// semantic (visible length, nth-visible lookup, historical reads) is still
// implemented.
package opset

import (
	"sort"

	"automerge/internal/actor"
	"automerge/internal/opgraph"
	"automerge/internal/types"
)

// StoredOp wraps an opgraph.Op with the bookkeeping the OpSet needs: which
// topological change index produced it (for historical queries, spec
// §4.1 item 5) and a back-pointer used for pred/succ maintenance.
type StoredOp struct {
	Op *opgraph.Op
	ChangeIdx int
}

func (s *StoredOp) Visible() bool { return s.Op.Visible() }

// Object is the per-container index state: either a Map (keyed by string)
// or a sequence (List/Text, RGA-ordered positions).
type Object struct {
	ID actor.ObjId
	Type types.ObjType
	mapOps map[string][]*StoredOp // insertion order; visibility computed from Succ
	seq *seqIndex
	marks []*markRange // every Mark op applied to a Text object; visibility is checked at query time
}

func newObject(id actor.ObjId, t types.ObjType) *Object {
	o := &Object{ID: id, Type: t}
	if t == types.ObjTypeMap {
		o.mapOps = make(map[string][]*StoredOp)
	} else {
		o.seq = newSeqIndex()
	}
	return o
}

// OpSet is the authoritative store of all applied ops across all objects.
type OpSet struct {
	Actors []actor.ID
	actorIdx map[string]int

	objects map[actor.ObjId]*Object
	byID map[actor.OpId]*StoredOp

	maxCounter uint64
}

func New() *OpSet {
	os := &OpSet{
		actorIdx: make(map[string]int),
		objects: make(map[actor.ObjId]*Object),
		byID: make(map[actor.OpId]*StoredOp),
	}
	os.objects[actor.Root] = newObject(actor.Root, types.ObjTypeMap)
	return os
}

// InternActor returns the global table index for id, adding it if new.
func (os *OpSet) InternActor(id actor.ID) int {
	key := id.String()
	if idx, ok := os.actorIdx[key]; ok {
		return idx
	}
	idx := len(os.Actors)
	os.Actors = append(os.Actors, id)
	os.actorIdx[key] = idx
	return idx
}

func (os *OpSet) ActorAt(idx int) actor.ID {
	if idx < 0 || idx >= len(os.Actors) {
		return nil
	}
	return os.Actors[idx]
}

func (os *OpSet) MaxCounter() uint64 { return os.maxCounter }

// Object looks up container state by ObjId.
func (os *OpSet) Object(id actor.ObjId) (*Object, bool) {
	o, ok := os.objects[id]
	return o, ok
}

// ApplyOp integrates a single, globally-actor-indexed op into the OpSet:
// it records pred→succ edges, inserts sequence positions via RGA, and registers the op by
// id. changeIdx is the topological application index of the owning
// Change, used later for historical queries.
func (os *OpSet) ApplyOp(op *opgraph.Op, changeIdx int) error {
	stored := &StoredOp{Op: op, ChangeIdx: changeIdx}
	os.byID[op.ID] = stored
	if op.ID.Counter >= os.maxCounter {
		os.maxCounter = op.ID.Counter + 1
	}

	// Resolve pred ops and mark them superseded.
	for _, p := range op.Pred {
		if pred, ok := os.byID[p]; ok {
			pred.Op.AddSucc(op.ID)
		}
	}

	switch op.Action {
		case opgraph.ActionMakeMap, opgraph.ActionMakeList, opgraph.ActionMakeText, opgraph.ActionMakeTable:
		newObjID := op.ID
		os.objects[newObjID] = newObject(newObjID, op.ObjType)
		fallthrough
		case opgraph.ActionSet, opgraph.ActionDel, opgraph.ActionIncrement:
		obj, ok := os.objects[op.ObjID]
		if !ok {
			return ErrNotAnObject
		}
		if obj.Type == types.ObjTypeMap {
			obj.mapOps[op.Key.Str] = append(obj.mapOps[op.Key.Str], stored)
		} else {
			if op.Insert {
				obj.seq.insert(os, op.Key.Elem, op.ID, stored)
			} else {
				obj.seq.addValueOp(op.Key.Elem, stored)
			}
		}
		case opgraph.ActionMark:
		obj, ok := os.objects[op.ObjID]
		if !ok {
			return ErrNotAnObject
		}
		obj.marks = append(obj.marks, &markRange{op: stored})
		case opgraph.ActionUnmark:
		// Unmark's pred already points at the Mark op(s) it cancels; the
		// generic pred/succ loop above makes that Mark op invisible, which
		// is all "a mark is active iff its op is visible"
		// requires. Unmark itself never anchors a range.
		if _, ok := os.objects[op.ObjID]; !ok {
			return ErrNotAnObject
		}
	}
	return nil
}

// RollbackOp undoes ApplyOp for a staged (uncommitted) op: clears the succ
// edges it added to its preds, removes it from its object's index, and
// forgets it. Used by Transaction.Rollback.
func (os *OpSet) RollbackOp(op *opgraph.Op) {
	for _, p := range op.Pred {
		if pred, ok := os.byID[p]; ok {
			pred.Op.RemoveSucc(op.ID)
		}
	}
	delete(os.byID, op.ID)

	switch op.Action {
		case opgraph.ActionMakeMap, opgraph.ActionMakeList, opgraph.ActionMakeText, opgraph.ActionMakeTable:
		delete(os.objects, op.ID)
		case opgraph.ActionMark:
		if obj, ok := os.objects[op.ObjID]; ok {
			for i, m := range obj.marks {
				if m.op.Op.ID == op.ID {
					obj.marks = append(obj.marks[:i], obj.marks[i+1:]...)
					break
				}
			}
		}
	}
	if obj, ok := os.objects[op.ObjID]; ok {
		if obj.Type == types.ObjTypeMap {
			ops := obj.mapOps[op.Key.Str]
			for i, s := range ops {
				if s.Op.ID == op.ID {
					obj.mapOps[op.Key.Str] = append(ops[:i], ops[i+1:]...)
					break
				}
			}
		} else {
			obj.seq.remove(op.ID, op.Insert, op.Key.Elem)
		}
	}
}

// Lookup returns the StoredOp for a global OpId, if known.
func (os *OpSet) Lookup(id actor.OpId) (*StoredOp, bool) {
	s, ok := os.byID[id]
	return s, ok
}

// VisibleAtKey returns the visible ops at a map key, in ascending OpId
// order.
func (os *OpSet) VisibleAtKey(obj *Object, key string) []*StoredOp {
	var out []*StoredOp
	for _, s := range obj.mapOps[key] {
		if s.Visible() {
			out = append(out, s)
		}
	}
	sortStoredOps(os, out)
	return out
}

// Keys returns every map key with at least one visible op, sorted.
func (os *OpSet) Keys(obj *Object) []string {
	var keys []string
	for k, ops := range obj.mapOps {
		for _, s := range ops {
			if s.Visible() {
				keys = append(keys, k)
				break
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// SeqLen returns the visible length of a List/Text object.
func (os *OpSet) SeqLen(obj *Object) int { return obj.seq.VisibleLen(os) }

// SeqTotalLen returns the length including tombstoned elements.
func (os *OpSet) SeqTotalLen(obj *Object) int { return obj.seq.TotalLen() }

// SeqNth returns the i-th visible element of a sequence object (spec
// §4.1 item 2).
func (os *OpSet) SeqNth(obj *Object, n int) (actor.ElemId, *StoredOp, bool) {
	return obj.seq.NthVisible(os, n)
}

// SeqIndexOf resolves an ElemId to its current visible index, or the
// index of its nearest surviving predecessor if tombstoned.
func (os *OpSet) SeqIndexOf(obj *Object, elem actor.ElemId) (int, bool) {
	return obj.seq.VisibleIndexOf(os, elem)
}

// SeqElemAt returns the ElemId currently at visible index n, if any.
func (os *OpSet) SeqElemAt(obj *Object, n int) (actor.ElemId, bool) {
	elem, _, ok := obj.seq.NthVisible(os, n)
	return elem, ok
}

func sortStoredOps(os *OpSet, ops []*StoredOp) {
	sort.Slice(ops, func(i, j int) bool {
			return actor.Less(ops[i].Op.ID, os.ActorAt(ops[i].Op.ID.Actor), ops[j].Op.ID, os.ActorAt(ops[j].Op.ID.Actor))
	})
}
