package opset

import "automerge/internal/actor"

// position is one RGA slot in a sequence: an element identity (the OpId of
// the op that inserted it) plus the set of competing value ops staged at
// it since (puts/deletes targeting this position, insert=false).
type position struct {
	elem actor.ElemId
	parent actor.ElemId // the ElemId this position was inserted after
	ops []*StoredOp
}

func (p *position) visibleOp(os *OpSet) *StoredOp {
	var winner *StoredOp
	for _, s := range p.ops {
		if !s.Visible() {
			continue
		}
		if winner == nil || actor.Less(winner.Op.ID, os.ActorAt(winner.Op.ID.Actor), s.Op.ID, os.ActorAt(s.Op.ID.Actor)) {
			winner = s
		}
	}
	return winner
}

func (p *position) visibleOps(os *OpSet) []*StoredOp {
	var out []*StoredOp
	for _, s := range p.ops {
		if s.Visible() {
			out = append(out, s)
		}
	}
	sortStoredOps(os, out)
	return out
}

// seqIndex is the RGA-ordered position list for one List/Text object.
type seqIndex struct {
	positions []*position
	byElem map[actor.ElemId]int
}

func newSeqIndex() *seqIndex {
	return &seqIndex{byElem: make(map[actor.ElemId]int)}
}

func (s *seqIndex) indexOf(elem actor.ElemId) int {
	if elem.IsHead() {
		return -1
	}
	if i, ok := s.byElem[elem]; ok {
		return i
	}
	return -1
}

// insert integrates a new position after `parent`, using the RGA rule:
// among positions sharing the same immediate parent, higher OpId sorts
// earlier. Counters alone do not total-order OpIds: two actors committing
// concurrently from the same causal point both assign counter = oldMax+1,
// so the actor-id tie-break is load-bearing here, not a corner case.
//
// The position list is a pre-order flattening of the insertion tree: a
// child's whole subtree sits contiguously right after it, before the next
// sibling. So once a direct sibling of `parent` outranks newElem, newElem
// must sort after that sibling's entire subtree, not just after the
// sibling itself — the scan has to walk past every descendant, tracking
// which elems belong to the subtree being skipped, rather than stopping at
// the first position whose parent isn't `parent`.
func (s *seqIndex) insert(os *OpSet, parent actor.ElemId, newElem actor.OpId, op *StoredOp) {
	start := s.indexOf(parent) + 1
	j := start
	var skip map[actor.ElemId]bool
	for j < len(s.positions) {
		p := s.positions[j]
		if skip[p.parent] {
			skip[p.elem] = true
			j++
			continue
		}
		if p.parent != parent {
			break
		}
		if actor.Less(p.elem, os.ActorAt(p.elem.Actor), newElem, os.ActorAt(newElem.Actor)) {
			break
		}
		if skip == nil {
			skip = make(map[actor.ElemId]bool)
		}
		skip[p.elem] = true
		j++
	}
	pos := &position{elem: newElem, parent: parent, ops: []*StoredOp{op}}
	s.positions = append(s.positions, nil)
	copy(s.positions[j+1:], s.positions[j:])
	s.positions[j] = pos
	s.reindex(j)
}

func (s *seqIndex) reindex(from int) {
	for i := from; i < len(s.positions); i++ {
		s.byElem[s.positions[i].elem] = i
	}
}

// addValueOp attaches a competing value/delete op to an existing position.
func (s *seqIndex) addValueOp(elem actor.ElemId, op *StoredOp) {
	i := s.indexOf(elem)
	if i < 0 {
		return
	}
	s.positions[i].ops = append(s.positions[i].ops, op)
}

// remove undoes either insert or addValueOp, used by transaction rollback.
func (s *seqIndex) remove(id actor.OpId, wasInsert bool, key actor.ElemId) {
	if wasInsert {
		i := s.indexOf(id)
		if i < 0 {
			return
		}
		s.positions = append(s.positions[:i], s.positions[i+1:]...)
		delete(s.byElem, id)
		s.reindex(i)
		return
	}
	i := s.indexOf(key)
	if i < 0 {
		return
	}
	ops := s.positions[i].ops
	for j, op := range ops {
		if op.Op.ID == id {
			s.positions[i].ops = append(ops[:j], ops[j+1:]...)
			return
		}
	}
}

// VisibleLen returns the count of positions with at least one visible op.
func (s *seqIndex) VisibleLen(os *OpSet) int {
	n := 0
	for _, p := range s.positions {
		if p.visibleOp(os) != nil {
			n++
		}
	}
	return n
}

// TotalLen returns the count of positions including tombstones.
func (s *seqIndex) TotalLen() int { return len(s.positions) }

// NthVisible returns the ElemId and winning op for the i-th visible
// position (0-based).
func (s *seqIndex) NthVisible(os *OpSet, n int) (actor.ElemId, *StoredOp, bool) {
	count := 0
	for _, p := range s.positions {
		if op := p.visibleOp(os); op != nil {
			if count == n {
				return p.elem, op, true
			}
			count++
		}
	}
	return actor.OpId{}, nil, false
}

// VisibleIndexOf returns the visible-index of elem, or the index of its
// nearest surviving predecessor if elem is tombstoned/unknown.
func (s *seqIndex) VisibleIndexOf(os *OpSet, elem actor.ElemId) (int, bool) {
	i := s.indexOf(elem)
	if i < 0 {
		return 0, false
	}
	count := 0
	for j := 0; j <= i; j++ {
		if s.positions[j].visibleOp(os) != nil {
			if j == i {
				return count, true
			}
			count++
		}
	}
	// elem is tombstoned; count is the number of visible positions before
	// it, so count-1 is the index of the nearest surviving predecessor
	// (clamped to 0 if there is none).
	return max0(count - 1), true
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Positions exposes the raw ordered position list for callers that need to
// walk every position (e.g. mark-range resolution, historical filtering).
func (s *seqIndex) Positions() []*position { return s.positions }
