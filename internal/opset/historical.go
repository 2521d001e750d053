package opset

import (
	"sort"

	"automerge/internal/actor"
)

// InSet is a membership predicate over topological change indices, used to
// answer "applied-in-H" queries. Document builds one from Graph.Closure(heads).
type InSet func(changeIdx int) bool

// visibleAt reports whether s is visible given only ops whose change is in
// the set: s itself must be in the set, and none of its Succ ops that are
// also in the set may exist.
func visibleAt(os *OpSet, s *StoredOp, in InSet) bool {
	if !in(s.ChangeIdx) {
		return false
	}
	for _, succID := range s.Op.Succ {
		if succ, ok := os.byID[succID]; ok && in(succ.ChangeIdx) {
			return false
		}
	}
	return true
}

// VisibleAtKeyHistorical returns the visible ops at a map key as of a
// historical prefix.
func (os *OpSet) VisibleAtKeyHistorical(obj *Object, key string, in InSet) []*StoredOp {
	var out []*StoredOp
	for _, s := range obj.mapOps[key] {
		if visibleAt(os, s, in) {
			out = append(out, s)
		}
	}
	sortStoredOps(os, out)
	return out
}

// KeysHistorical returns the map keys visible as of a historical prefix.
func (os *OpSet) KeysHistorical(obj *Object, in InSet) []string {
	var keys []string
	for k, ops := range obj.mapOps {
		for _, s := range ops {
			if visibleAt(os, s, in) {
				keys = append(keys, k)
				break
			}
		}
	}
	sort.Strings(keys)
	return keys
}

// seqVisibleOpAt returns the winning op at a position as of a historical
// prefix.
func seqVisibleOpAt(os *OpSet, p *position, in InSet) *StoredOp {
	var winner *StoredOp
	for _, s := range p.ops {
		if !visibleAt(os, s, in) {
			continue
		}
		if winner == nil || actor.Less(winner.Op.ID, os.ActorAt(winner.Op.ID.Actor), s.Op.ID, os.ActorAt(s.Op.ID.Actor)) {
			winner = s
		}
	}
	return winner
}

// LenHistorical returns the visible sequence length as of a historical
// prefix. A position only appears at all if its inserting op is in the set.
func (os *OpSet) LenHistorical(obj *Object, in InSet) int {
	n := 0
	for _, p := range obj.seq.Positions() {
		if !in(positionInsertChangeIdx(os, p)) {
			continue
		}
		if seqVisibleOpAt(os, p, in) != nil {
			n++
		}
	}
	return n
}

// NthVisibleHistorical returns the i-th visible element as of a historical
// prefix.
func (os *OpSet) NthVisibleHistorical(obj *Object, n int, in InSet) (actor.ElemId, *StoredOp, bool) {
	count := 0
	for _, p := range obj.seq.Positions() {
		if !in(positionInsertChangeIdx(os, p)) {
			continue
		}
		if op := seqVisibleOpAt(os, p, in); op != nil {
			if count == n {
				return p.elem, op, true
			}
			count++
		}
	}
	return actor.OpId{}, nil, false
}

// positionInsertChangeIdx finds the change index of the op that inserted
// this position (the stored op whose id equals the position's elem).
func positionInsertChangeIdx(os *OpSet, p *position) int {
	if s, ok := os.byID[p.elem]; ok {
		return s.ChangeIdx
	}
	return -1
}
