// Package patch defines the observable-delta vocabulary produced when a
// local transaction commits on a Document.
//
// Patches here are emitted by the Transaction as each mutation is staged
// and handed to the Document on commit, rather than by a before/after
// full-state diff — a design decision recorded in DESIGN.md. Changes that
// arrive through Merge, ApplyChanges, LoadIncremental or a sync message
// produce no patches.
package patch

import "automerge/internal/types"

type Kind int

const (
	KindPut Kind = iota
	KindInsert
	KindSplice
	KindDelete
	KindIncrement
	KindMark
	KindUnmark
)

// PathElem is one hop of a path from the document root: either a map key
// or a sequence index.
type PathElem struct {
	Key string
	Index int
	IsIndex bool
}

func MapElem(key string) PathElem { return PathElem{Key: key} }
func SeqElem(index int) PathElem { return PathElem{Index: index, IsIndex: true} }

// Patch is one observable effect of applying a change.
type Patch struct {
	Kind Kind
	Path []PathElem
	Value types.Value
	Values []types.Value
	Text string
	Length int
	Delta int64
	Conflict bool
	MarkName string
	MarkValue types.Value
	RangeStart int
	RangeEnd int
}
