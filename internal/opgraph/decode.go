package opgraph

import (
	"automerge/internal/actor"
	"automerge/internal/columnar"
	"automerge/internal/varint"
)

// DecodeChange parses a Change payload (the bytes EncodeChange produced,
// i.e. the unwrapped contents of a Change chunk) back into a Change whose
// Ops use LOCAL actor indices into the returned Change.Actors table. The
// caller (Document/OpSet) is responsible for translating those into
// global indices when applying.
func DecodeChange(payload []byte) (*Change, error) {
	c := &Change{}
	pos := 0

	author, n, err := readBytes(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	c.Actor = actor.ID(author)

	c.Seq, n, err = readUvarint(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	c.StartOp, n, err = readUvarint(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	c.Time, n, err = readVarint(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	msg, n, err := readBytes(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	c.Message = string(msg)

	depCount, n, err := readUvarint(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	c.Deps = make([]actor.ChangeHash, depCount)
	for i := range c.Deps {
		if pos+32 > len(payload) {
			return nil, ErrTruncatedInput
		}
		copy(c.Deps[i][:], payload[pos:pos+32])
		pos += 32
	}

	otherCount, n, err := readUvarint(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	c.Actors = make([]actor.ID, otherCount+1)
	c.Actors[0] = c.Actor
	for i := 0; i < int(otherCount); i++ {
		ab, n, err := readBytes(payload, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		c.Actors[i+1] = actor.ID(ab)
	}

	cols := make([][]byte, 17)
	for i := range cols {
		col, n, err := readCol(payload, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		cols[i] = col
	}

	objActor, err := columnar.DecodeRLE(cols[0])
	if err != nil {
		return nil, err
	}
	objCounter, err := columnar.DecodeRLE(cols[1])
	if err != nil {
		return nil, err
	}
	keyIsMap, err := columnar.DecodeBoolean(cols[2])
	if err != nil {
		return nil, err
	}
	keyActor, err := columnar.DecodeRLE(cols[3])
	if err != nil {
		return nil, err
	}
	keyCounter, err := columnar.DecodeRLE(cols[4])
	if err != nil {
		return nil, err
	}
	keyStrs, err := columnar.DecodeGroup(cols[5], cols[6])
	if err != nil {
		return nil, err
	}
	insert, err := columnar.DecodeBoolean(cols[7])
	if err != nil {
		return nil, err
	}
	action, err := columnar.DecodeRLE(cols[8])
	if err != nil {
		return nil, err
	}
	valTag, err := columnar.DecodeRLE(cols[9])
	if err != nil {
		return nil, err
	}
	valRaw := cols[10]
	markNames, err := columnar.DecodeGroup(cols[11], cols[12])
	if err != nil {
		return nil, err
	}
	markExpand, err := columnar.DecodeRLE(cols[13])
	if err != nil {
		return nil, err
	}
	markEndActor, err := columnar.DecodeRLE(cols[14])
	if err != nil {
		return nil, err
	}
	markEndCounter, err := columnar.DecodeRLE(cols[15])
	if err != nil {
		return nil, err
	}
	predNum, err := columnar.DecodeRLE(cols[16])
	if err != nil {
		return nil, err
	}

	// pred actor/counter columns trail the fixed set; re-read them here
	// since they depend on knowing predNum only for length bookkeeping,
	// not for slicing (both are flat arrays of total length sum(predNum)).
	predActorCol, n, err := readCol(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	predCounterCol, n, err := readCol(payload, pos)
	if err != nil {
		return nil, err
	}
	pos += n
	predActor, err := columnar.DecodeRLE(predActorCol)
	if err != nil {
		return nil, err
	}
	predCounter, err := columnar.DecodeRLE(predCounterCol)
	if err != nil {
		return nil, err
	}

	nOps := len(action)
	c.Ops = make([]Op, nOps)
	valPos := 0
	markIdx := 0
	predPos := 0
	for i := 0; i < nOps; i++ {
		op := Op{}
		op.ID = actor.OpId{Actor: 0, Counter: c.StartOp + uint64(i)}

		oa := checkIdx(objActor, i)
		oc := checkIdx(objCounter, i)
		if oa == 0 && oc == 0 {
			op.ObjID = actor.Root
		} else {
			oaIdx, err := actorIdx(oa, len(c.Actors))
			if err != nil {
				return nil, err
			}
			op.ObjID = actor.OpId{Actor: oaIdx, Counter: oc}
		}

		if i < len(keyIsMap) && keyIsMap[i] {
			if len(keyStrs) == 0 {
				return nil, ErrTruncatedInput
			}
			op.Key = MapKey(string(keyStrs[0]))
			keyStrs = keyStrs[1:]
		} else {
			ka := checkIdx(keyActor, i)
			kc := checkIdx(keyCounter, i)
			if ka == 0 && kc == 0 {
				op.Key = HeadKey()
			} else {
				kaIdx, err := actorIdx(ka, len(c.Actors))
				if err != nil {
					return nil, err
				}
				op.Key = SeqKey(actor.ElemId{Actor: kaIdx, Counter: kc})
			}
		}

		if i < len(insert) {
			op.Insert = insert[i]
		}
		op.Action = Action(checkIdx(action, i))

		tag, rawLen := decodeValLen(checkIdx(valTag, i))
		if valPos+rawLen > len(valRaw) {
			return nil, ErrTruncatedInput
		}
		raw := valRaw[valPos : valPos+rawLen]
		valPos += rawLen

		switch op.Action {
		case ActionMakeMap, ActionMakeList, ActionMakeText, ActionMakeTable:
			op.ObjType = decodeObjType(raw)
		case ActionSet:
			op.Value = decodeScalar(tag, raw)
		case ActionIncrement:
			v := decodeScalar(tag, raw)
			op.Delta = v.Int()
		case ActionMark:
			op.MarkValue = decodeScalar(tag, raw)
			if markIdx >= len(markNames) {
				return nil, ErrTruncatedInput
			}
			op.MarkName = string(markNames[markIdx])
			op.MarkExpand = ExpandPolicy(checkIdx(markExpand, markIdx))
			mea := checkIdx(markEndActor, markIdx)
			mec := checkIdx(markEndCounter, markIdx)
			meaIdx, err := actorIdx(mea, len(c.Actors))
			if err != nil {
				return nil, err
			}
			op.MarkEnd = actor.ElemId{Actor: meaIdx, Counter: mec}
			markIdx++
		}

		pn := int(checkIdx(predNum, i))
		op.Pred = make([]actor.OpId, pn)
		for j := 0; j < pn; j++ {
			if predPos >= len(predActor) {
				return nil, ErrTruncatedInput
			}
			predIdx, err := actorIdx(predActor[predPos], len(c.Actors))
			if err != nil {
				return nil, err
			}
			op.Pred[j] = actor.OpId{Actor: predIdx, Counter: predCounter[predPos]}
			predPos++
		}

		c.Ops[i] = op
	}

	return c, nil
}

func checkIdx(s []uint64, i int) uint64 {
	if i < len(s) {
		return s[i]
	}
	return 0
}

// actorIdx validates a decoded actor-table index before it is trusted as a
// slice index anywhere downstream (the local-to-global translation in
// pkg/automerge indexes its actor table with exactly this value).
func actorIdx(v uint64, nActors int) (int, error) {
	if v >= uint64(nActors) {
		return 0, ErrActorIndexOutOfRange
	}
	return int(v), nil
}

func readBytes(buf []byte, pos int) ([]byte, int, error) {
	l, n, err := readUvarint(buf, pos)
	if err != nil {
		return nil, 0, err
	}
	if pos+n+int(l) > len(buf) {
		return nil, 0, ErrTruncatedInput
	}
	return buf[pos+n : pos+n+int(l)], n + int(l), nil
}

func readUvarint(buf []byte, pos int) (uint64, int, error) {
	if pos > len(buf) {
		return 0, 0, ErrTruncatedInput
	}
	v, n := varint.Uvarint(buf[pos:])
	if n <= 0 {
		return 0, 0, ErrTruncatedInput
	}
	return v, n, nil
}

func readVarint(buf []byte, pos int) (int64, int, error) {
	if pos > len(buf) {
		return 0, 0, ErrTruncatedInput
	}
	v, n := varint.Varint(buf[pos:])
	if n <= 0 {
		return 0, 0, ErrTruncatedInput
	}
	return v, n, nil
}

func readCol(buf []byte, pos int) ([]byte, int, error) {
	l, n, err := readUvarint(buf, pos)
	if err != nil {
		return nil, 0, err
	}
	if pos+n+int(l) > len(buf) {
		return nil, 0, ErrTruncatedInput
	}
	return buf[pos+n : pos+n+int(l)], n + int(l), nil
}
