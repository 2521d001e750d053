package automerge

import (
	"strconv"
	"strings"

	"automerge/internal/actor"
	"automerge/internal/opgraph"
	"automerge/internal/opset"
	"automerge/internal/types"
	"automerge/pkg/automergeerr"
)

// ParsePath splits a slash-delimited path ("/config/align") into
// components, treating an all-digit component as a sequence index and
// everything else as a map key.
func ParsePath(s string) []any {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	out := make([]any, len(parts))
	for i, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out[i] = n
		} else {
			out[i] = p
		}
	}
	return out
}

// descend walks one hop of a path from a known container into a nested
// object, returning that object's ObjId. key is a string for a Map, or an
// int for a List/Text.
func descend(os *opset.OpSet, obj *opset.Object, key any, in opset.InSet) (actor.ObjId, error) {
	var winner *opset.StoredOp
	switch obj.Type {
		case types.ObjTypeMap:
		k, ok := key.(string)
		if !ok {
			return actor.OpId{}, automergeerr.New(automergeerr.KindInvalidPath, "map key must be a string")
		}
		var ops []*opset.StoredOp
		if in != nil {
			ops = os.VisibleAtKeyHistorical(obj, k, in)
		} else {
			ops = os.VisibleAtKey(obj, k)
		}
		winner = lastNonIncrement(ops)
		default:
		idx, ok := key.(int)
		if !ok {
			return actor.OpId{}, automergeerr.New(automergeerr.KindInvalidPath, "sequence index must be an int")
		}
		var found bool
		if in != nil {
			_, winner, found = os.NthVisibleHistorical(obj, idx, in)
		} else {
			_, winner, found = os.SeqNth(obj, idx)
		}
		if !found {
			return actor.OpId{}, automergeerr.New(automergeerr.KindInvalidIndex, "sequence index out of range")
		}
	}
	if winner == nil {
		return actor.OpId{}, automergeerr.New(automergeerr.KindInvalidPath, "no value at path component")
	}
	switch winner.Op.Action {
		case opgraph.ActionMakeMap, opgraph.ActionMakeList, opgraph.ActionMakeText, opgraph.ActionMakeTable:
		return winner.Op.ID, nil
		default:
		return actor.OpId{}, automergeerr.New(automergeerr.KindWrongObjectType, "path component is not a container")
	}
}

// resolveContainer walks every hop of path as a container descent,
// starting from root, and returns the object reached.
func resolveContainer(os *opset.OpSet, path []any, in opset.InSet) (*opset.Object, error) {
	obj, ok := os.Object(actor.Root)
	if !ok {
		return nil, automergeerr.New(automergeerr.KindNotAnObject, "root object missing")
	}
	for _, hop := range path {
		next, err := descend(os, obj, hop, in)
		if err != nil {
			return nil, err
		}
		obj, ok = os.Object(next)
		if !ok {
			return nil, automergeerr.New(automergeerr.KindNotAnObject, "path component is not a known object")
		}
	}
	return obj, nil
}

// splitPath resolves every hop but the last as a container descent and
// returns the parent object plus the final (unresolved) path component,
// for operations that write or read one leaf.
func splitPath(os *opset.OpSet, path []any, in opset.InSet) (*opset.Object, any, error) {
	if len(path) == 0 {
		return nil, nil, automergeerr.New(automergeerr.KindInvalidPath, "empty path")
	}
	obj, err := resolveContainer(os, path[:len(path)-1], in)
	if err != nil {
		return nil, nil, err
	}
	return obj, path[len(path)-1], nil
}

func lastNonIncrement(ops []*opset.StoredOp) *opset.StoredOp {
	var winner *opset.StoredOp
	for _, s := range ops {
		if s.Op.Action == opgraph.ActionIncrement {
			continue
		}
		winner = s
	}
	return winner
}
