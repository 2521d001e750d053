package automerge

import (
	"automerge/internal/actor"
	"automerge/internal/opgraph"
	"automerge/internal/opset"
	"automerge/internal/types"
	"automerge/pkg/automergeerr"
)

// Value pairs a resolved value with the OpId that produced it, for
// getAll's conflict listing.
type Value struct {
	Value types.Value
	OpId actor.OpId
}

func inSetFor(d *Document, heads []actor.ChangeHash) opset.InSet {
	if heads == nil {
		return nil
	}
	closure := d.graph.Closure(heads)
	return func(changeIdx int) bool {
		if changeIdx < 0 || changeIdx >= len(d.graph.Changes()) {
			return false
		}
		return closure[d.graph.Changes()[changeIdx].Hash]
	}
}

// Get reads the single deterministic-winner value at path. heads, if non-nil, requests a historical read as of
// that causal frontier; pass nil for the live value.
// ok is false if the path resolves to no value (scenario 4: get(...,
// []) == void).
func (d *Document) Get(path []any, heads []actor.ChangeHash) (types.Value, bool, error) {
	if heads == nil {
		if err := d.checkReadable(); err != nil {
			return types.Value{}, false, err
		}
	}
	in := inSetFor(d, heads)
	parent, key, err := splitPath(d.os, path, in)
	if err != nil {
		return types.Value{}, false, err
	}
	ops, err := opsAtKey(d.os, parent, key, in)
	if err != nil {
		return types.Value{}, false, err
	}
	winner := lastNonIncrement(ops)
	if winner == nil {
		return types.Value{}, false, nil
	}
	return adjustedValue(winner, ops), true, nil
}

// GetAll returns every concurrently-visible value at path.
func (d *Document) GetAll(path []any, heads []actor.ChangeHash) ([]Value, error) {
	if heads == nil {
		if err := d.checkReadable(); err != nil {
			return nil, err
		}
	}
	in := inSetFor(d, heads)
	parent, key, err := splitPath(d.os, path, in)
	if err != nil {
		return nil, err
	}
	ops, err := opsAtKey(d.os, parent, key, in)
	if err != nil {
		return nil, err
	}
	var out []Value
	for _, s := range ops {
		if s.Op.Action == opgraph.ActionIncrement {
			continue
		}
		out = append(out, Value{Value: adjustedValue(s, ops), OpId: s.Op.ID})
	}
	return out, nil
}

// Keys returns the sorted map keys at path.
func (d *Document) Keys(path []any, heads []actor.ChangeHash) ([]string, error) {
	if heads == nil {
		if err := d.checkReadable(); err != nil {
			return nil, err
		}
	}
	in := inSetFor(d, heads)
	obj, err := resolveContainer(d.os, path, in)
	if err != nil {
		return nil, err
	}
	if obj.Type != types.ObjTypeMap {
		return nil, automergeerr.New(automergeerr.KindWrongObjectType, "keys() requires a map object")
	}
	if in != nil {
		return d.os.KeysHistorical(obj, in), nil
	}
	return d.os.Keys(obj), nil
}

// Len returns the visible length of a sequence at path.
func (d *Document) Len(path []any, heads []actor.ChangeHash) (int, error) {
	if heads == nil {
		if err := d.checkReadable(); err != nil {
			return 0, err
		}
	}
	in := inSetFor(d, heads)
	obj, err := resolveContainer(d.os, path, in)
	if err != nil {
		return 0, err
	}
	if obj.Type == types.ObjTypeMap {
		return 0, automergeerr.New(automergeerr.KindWrongObjectType, "len() requires a sequence object")
	}
	if in != nil {
		return d.os.LenHistorical(obj, in), nil
	}
	return d.os.SeqLen(obj), nil
}

// Text materializes a Text object's visible character content.
func (d *Document) Text(path []any, heads []actor.ChangeHash) (string, error) {
	if heads == nil {
		if err := d.checkReadable(); err != nil {
			return "", err
		}
	}
	in := inSetFor(d, heads)
	obj, err := resolveContainer(d.os, path, in)
	if err != nil {
		return "", err
	}
	if obj.Type != types.ObjTypeText {
		return "", automergeerr.New(automergeerr.KindWrongObjectType, "text() requires a Text object")
	}
	n := d.os.SeqLen(obj)
	if in != nil {
		n = d.os.LenHistorical(obj, in)
	}
	var buf []rune
	for i := 0; i < n; i++ {
		var s *opset.StoredOp
		if in != nil {
			_, s, _ = d.os.NthVisibleHistorical(obj, i, in)
		} else {
			_, s, _ = d.os.SeqNth(obj, i)
		}
		if s == nil || s.Op.Action != opgraph.ActionSet {
			continue
		}
		buf = append(buf, []rune(s.Op.Value.Str())...)
	}
	return string(buf), nil
}

func opsAtKey(os *opset.OpSet, obj *opset.Object, key any, in opset.InSet) ([]*opset.StoredOp, error) {
	switch obj.Type {
		case types.ObjTypeMap:
		k, ok := key.(string)
		if !ok {
			return nil, automergeerr.New(automergeerr.KindInvalidPath, "map key must be a string")
		}
		if in != nil {
			return os.VisibleAtKeyHistorical(obj, k, in), nil
		}
		return os.VisibleAtKey(obj, k), nil
		default:
		idx, ok := key.(int)
		if !ok {
			return nil, automergeerr.New(automergeerr.KindInvalidPath, "sequence index must be an int")
		}
		var s *opset.StoredOp
		var found bool
		if in != nil {
			_, s, found = os.NthVisibleHistorical(obj, idx, in)
		} else {
			_, s, found = os.SeqNth(obj, idx)
		}
		if !found {
			return nil, nil
		}
		return []*opset.StoredOp{s}, nil
	}
}

// adjustedValue folds the deltas of any visible Increment ops sharing the
// key into a Counter winner's reported value.
func adjustedValue(winner *opset.StoredOp, ops []*opset.StoredOp) types.Value {
	v := winner.Op.Value
	if v.Kind() != types.KindCounter {
		return v
	}
	var delta int64
	for _, s := range ops {
		if s.Op.Action == opgraph.ActionIncrement {
			delta += s.Op.Delta
		}
	}
	return types.Counter(v.Int() + delta)
}
