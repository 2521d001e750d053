package opset

import (
	"automerge/internal/actor"
	"automerge/internal/types"
)

// markRange wraps the Mark op anchoring a named annotation over a Text
// range.
type markRange struct {
	op *StoredOp
}

// ActiveMark is the resolved state of one mark at a queried position.
type ActiveMark struct {
	Name string
	Value types.Value
}

// ActiveMarksAt scans the object's mark history and returns every mark
// active at visible-index position `at`.
//
// Range containment is evaluated in position-index space (the position
// the start/end ElemIds currently resolve to), which already reflects
// insertions/deletions that happened after the mark was created, so that
// the expand policy governs whether new elements at a boundary inherit the
// mark.
func (obj *Object) ActiveMarksAt(os *OpSet, at int) []ActiveMark {
	var out []ActiveMark
	for _, m := range obj.marks {
		if !m.op.Visible() {
			continue
		}
		start, ok1 := obj.seq.VisibleIndexOf(os, m.op.Op.Key.Elem)
		end, ok2 := obj.seq.VisibleIndexOf(os, m.op.Op.MarkEnd)
		if !ok1 || !ok2 {
			continue
		}
		lo, hi := start, end
		if m.op.Op.MarkExpand.ExpandsBefore() {
			lo--
		}
		if m.op.Op.MarkExpand.ExpandsAfter() {
			hi++
		}
		if at >= lo && at <= hi {
			out = append(out, ActiveMark{Name: m.op.Op.MarkName, Value: m.op.Op.MarkValue})
		}
	}
	return out
}

// Marks exposes the raw mark ops for range-listing APIs.
func (obj *Object) Marks() []*markRange { return obj.marks }

func (m *markRange) Name() string { return m.op.Op.MarkName }
func (m *markRange) Value() types.Value { return m.op.Op.MarkValue }
func (m *markRange) Visible() bool { return m.op.Visible() }
func (m *markRange) StartElem() actor.ElemId { return m.op.Op.Key.Elem }
func (m *markRange) EndElem() actor.ElemId { return m.op.Op.MarkEnd }
func (m *markRange) OpID() actor.OpId { return m.op.Op.ID }
