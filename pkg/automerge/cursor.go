package automerge

import (
	"automerge/internal/cursor"
	"automerge/internal/types"
	"automerge/pkg/automergeerr"
)

// Cursor is a stable reference to a sequence position that survives
// concurrent insertions and deletions elsewhere in the sequence.
type Cursor = cursor.Cursor

// MakeCursor captures the element currently at index within the List/Text
// object at path.
func (d *Document) MakeCursor(path []any, index int) (Cursor, error) {
	if err := d.checkReadable(); err != nil {
		return Cursor{}, err
	}
	obj, err := resolveContainer(d.os, path, nil)
	if err != nil {
		return Cursor{}, err
	}
	if obj.Type == types.ObjTypeMap {
		return Cursor{}, automergeerr.New(automergeerr.KindWrongObjectType, "cursor requires a sequence object")
	}
	elem, ok := d.os.SeqElemAt(obj, index)
	if !ok {
		return Cursor{}, automergeerr.New(automergeerr.KindInvalidIndex, "cursor index out of range")
	}
	return Cursor{Obj: obj.ID, Elem: elem}, nil
}

// ResolveCursor returns the cursor's current visible index, or its nearest
// surviving predecessor's index if the element it names was deleted (spec
// §4.8: "a cursor into a deleted run resolves to the position its nearest
// surviving predecessor now occupies").
func (d *Document) ResolveCursor(c Cursor) (int, error) {
	if err := d.checkReadable(); err != nil {
		return 0, err
	}
	obj, ok := d.os.Object(c.Obj)
	if !ok {
		return 0, automergeerr.ErrNotAnObject
	}
	idx, ok := d.os.SeqIndexOf(obj, c.Elem)
	if !ok {
		return 0, automergeerr.New(automergeerr.KindInvalidIndex, "cursor resolves to no position")
	}
	return idx, nil
}
