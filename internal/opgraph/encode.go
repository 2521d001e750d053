package opgraph

import (
	"bytes"

	"automerge/internal/actor"
	"automerge/internal/columnar"
	"automerge/internal/types"
	"automerge/internal/varint"
)

// localTable builds the canonical per-change actor table: the author at
// index 0, then every other actor referenced by an op, in first-occurrence
// order.
func localTable(author actor.ID, ops []Op, resolve func(idx int) actor.ID) ([]actor.ID, map[int]int) {
	table := []actor.ID{author}
	index := map[string]int{author.String(): 0}
	remap := make(map[int]int)

	intern := func(globalIdx int) int {
		if globalIdx < 0 {
			return -1 // Root/Head sentinel, not a real actor
		}
		if li, ok := remap[globalIdx]; ok {
			return li
		}
		id := resolve(globalIdx)
		key := id.String()
		li, ok := index[key]
		if !ok {
			li = len(table)
			table = append(table, id)
			index[key] = li
		}
		remap[globalIdx] = li
		return li
	}

	for _, op := range ops {
		intern(op.ID.Actor)
		intern(op.ObjID.Actor)
		if op.Key.Kind == KeySeq {
			intern(op.Key.Elem.Actor)
		}
		if op.Action == ActionMark {
			intern(op.MarkEnd.Actor)
		}
		for _, p := range op.Pred {
			intern(p.Actor)
		}
	}
	return table, remap
}

func localActorIdx(remap map[int]int, globalIdx int) int {
	if globalIdx < 0 {
		return 0 // sentinel; paired counter==0 disambiguates from a real actor 0 ref
	}
	return remap[globalIdx]
}

// EncodeChange serializes c (whose Op actor indices are global, resolved
// via resolve) into the canonical Change payload bytes (header + ops
// columns), then computes and fills in c.Hash.
func EncodeChange(c *Change, resolve func(globalActorIdx int) actor.ID) []byte {
	table, remap := localTable(c.Actor, c.Ops, resolve)
	c.Actors = table

	var buf bytes.Buffer

	// Header.
	writeBytes(&buf, table[0])
	buf.Write(varint.AppendUvarint(nil, c.Seq))
	buf.Write(varint.AppendUvarint(nil, c.StartOp))
	buf.Write(varint.AppendVarint(nil, c.Time))
	writeStr(&buf, c.Message)

	deps := actor.SortHashes(c.Deps)
	buf.Write(varint.AppendUvarint(nil, uint64(len(deps))))
	for _, d := range deps {
		buf.Write(d[:])
	}

	buf.Write(varint.AppendUvarint(nil, uint64(len(table)-1)))
	for _, a := range table[1:] {
		writeBytes(&buf, a)
	}

	// Ops columns.
	n := len(c.Ops)
	objActor := make([]uint64, n)
	objCounter := make([]uint64, n)
	keyIsMap := make([]bool, n)
	keyActor := make([]uint64, n)
	keyCounter := make([]uint64, n)
	keyStrs := make([][]byte, 0, n)
	insert := make([]bool, n)
	action := make([]uint64, n)
	valTag := make([]uint64, n)
	valRaws := make([][]byte, n)
	markNames := make([][]byte, 0)
	markExpand := make([]uint64, 0)
	markEndActor := make([]uint64, 0)
	markEndCounter := make([]uint64, 0)
	predNum := make([]uint64, n)
	var predActor, predCounter []uint64

	for i, op := range c.Ops {
		objActor[i] = uint64(localActorIdx(remap, op.ObjID.Actor))
		objCounter[i] = op.ObjID.Counter
		if op.Key.Kind == KeyMap {
			keyIsMap[i] = true
			keyStrs = append(keyStrs, []byte(op.Key.Str))
		} else {
			keyActor[i] = uint64(localActorIdx(remap, op.Key.Elem.Actor))
			keyCounter[i] = op.Key.Elem.Counter
		}
		insert[i] = op.Insert
		action[i] = uint64(op.Action)

		var tag int
		var raw []byte
		switch op.Action {
			case ActionMakeMap, ActionMakeList, ActionMakeText, ActionMakeTable:
			tag, raw = encodeObjType(op.ObjType)
			case ActionSet:
			tag, raw = encodeScalar(op.Value)
			case ActionIncrement:
			tag, raw = encodeScalar(types.Int(op.Delta))
			case ActionMark:
			tag, raw = encodeScalar(op.MarkValue)
			markNames = append(markNames, []byte(op.MarkName))
			markExpand = append(markExpand, uint64(op.MarkExpand))
			markEndActor = append(markEndActor, uint64(localActorIdx(remap, op.MarkEnd.Actor)))
			markEndCounter = append(markEndCounter, op.MarkEnd.Counter)
			default:
			tag, raw = tagNull, nil
		}
		valTag[i] = encodeValLen(tag, len(raw))
		valRaws[i] = raw

		predNum[i] = uint64(len(op.Pred))
		for _, p := range op.Pred {
			predActor = append(predActor, uint64(localActorIdx(remap, p.Actor)))
			predCounter = append(predCounter, p.Counter)
		}
	}

	writeCol(&buf, columnar.EncodeRLE(objActor))
	writeCol(&buf, columnar.EncodeRLE(objCounter))
	writeCol(&buf, columnar.EncodeBoolean(keyIsMap))
	writeCol(&buf, columnar.EncodeRLE(keyActor))
	writeCol(&buf, columnar.EncodeRLE(keyCounter))
	lens, raw := columnar.EncodeGroup(keyStrs)
	writeCol(&buf, lens)
	writeCol(&buf, raw)
	writeCol(&buf, columnar.EncodeBoolean(insert))
	writeCol(&buf, columnar.EncodeRLE(action))
	writeCol(&buf, columnar.EncodeRLE(valTag))
	var valRaw []byte
	for _, r := range valRaws {
		valRaw = append(valRaw, r...)
	}
	writeCol(&buf, valRaw)

	mnLens, mnRaw := columnar.EncodeGroup(markNames)
	writeCol(&buf, mnLens)
	writeCol(&buf, mnRaw)
	writeCol(&buf, columnar.EncodeRLE(markExpand))
	writeCol(&buf, columnar.EncodeRLE(markEndActor))
	writeCol(&buf, columnar.EncodeRLE(markEndCounter))

	writeCol(&buf, columnar.EncodeRLE(predNum))
	writeCol(&buf, columnar.EncodeRLE(predActor))
	writeCol(&buf, columnar.EncodeRLE(predCounter))

	payload := buf.Bytes()
	c.Hash = actor.ChangeHash(sha256Full(ChunkChange, payload))
	return payload
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	buf.Write(varint.AppendUvarint(nil, uint64(len(b))))
	buf.Write(b)
}

func writeStr(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func writeCol(buf *bytes.Buffer, col []byte) {
	buf.Write(varint.AppendUvarint(nil, uint64(len(col))))
	buf.Write(col)
}
