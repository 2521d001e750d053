package automerge

import (
	"time"

	"automerge/internal/actor"
	"automerge/internal/opgraph"
	"automerge/internal/opset"
	"automerge/internal/patch"
	"automerge/internal/types"
	"automerge/pkg/automergeerr"
)

// Transaction borrows exclusive mutation rights to a Document. Every write stages an Op directly into the Document's OpSet
// (changeIdx -1, marking it uncommitted); Commit bundles the staged ops
// into one opgraph.Change and folds them into the causal graph, Rollback
// unwinds them in reverse order.
type Transaction struct {
	doc *Document
	startCtr uint64
	ops []*opgraph.Op
	patches []patch.Patch

	rollbackOnly bool
	done bool
}

// pathElems converts a raw path-style path (the []any a caller passes to
// Put/Insert/etc.) into a patch.PathElem slice for observer reporting.
func pathElems(path []any) []patch.PathElem {
	out := make([]patch.PathElem, len(path))
	for i, p := range path {
		switch v := p.(type) {
		case int:
			out[i] = patch.SeqElem(v)
		case string:
			out[i] = patch.MapElem(v)
		}
	}
	return out
}

const uncommittedChangeIdx = -1

func (tx *Transaction) nextOpID() actor.OpId {
	return actor.OpId{Counter: tx.startCtr + uint64(len(tx.ops)), Actor: tx.doc.os.InternActor(tx.doc.author)}
}

func (tx *Transaction) checkOpen() error {
	if tx.done {
		return automergeerr.ErrReadOnly
	}
	if tx.rollbackOnly {
		return automergeerr.ErrRollbackOnly
	}
	return nil
}

func (tx *Transaction) stage(op *opgraph.Op) error {
	if err := tx.doc.os.ApplyOp(op, uncommittedChangeIdx); err != nil {
		tx.rollbackOnly = true
		tx.doc.log.Debug().Str("op", op.ID.String()).Err(err).Msg("staging op failed")
		return err
	}
	tx.doc.log.Debug().Str("op", op.ID.String()).Int("action", int(op.Action)).Msg("staged op")
	tx.ops = append(tx.ops, op)
	return nil
}

// opsAt returns the visible ops at a resolved (obj,key) target,
// used both to compute a new op's Pred set and to validate target types.
func (tx *Transaction) opsAt(obj *opset.Object, key any) ([]*opset.StoredOp, error) {
	return opsAtKey(tx.doc.os, obj, key, nil)
}

func predOf(ops []*opset.StoredOp) []actor.OpId {
	var pred []actor.OpId
	for _, s := range ops {
		if s.Op.Action == opgraph.ActionIncrement {
			continue
		}
		pred = append(pred, s.Op.ID)
	}
	return pred
}

// Put upserts a scalar value at a map key or replaces the element at a
// sequence's visible index.
func (tx *Transaction) Put(path []any, value types.Value) (actor.OpId, error) {
	if err := tx.checkOpen(); err != nil {
		return actor.OpId{}, err
	}
	obj, key, err := splitPath(tx.doc.os, path, nil)
	if err != nil {
		return actor.OpId{}, err
	}
	keyVal, _, err := tx.resolveKey(obj, key)
	if err != nil {
		return actor.OpId{}, err
	}
	existing, err := tx.opsAt(obj, key)
	if err != nil {
		return actor.OpId{}, err
	}
	if obj.Type != types.ObjTypeMap && len(existing) == 0 {
		return actor.OpId{}, automergeerr.New(automergeerr.KindInvalidIndex, "put index out of range")
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: opgraph.ActionSet,
		ObjID: obj.ID,
		Key: keyVal,
		Insert: false,
		Value: value,
		Pred: predOf(existing),
	}
	if err := tx.stage(op); err != nil {
		return actor.OpId{}, err
	}
	tx.patches = append(tx.patches, patch.Patch{
		Kind: patch.KindPut, Path: pathElems(path), Value: value, Conflict: len(existing) > 0,
	})
	return op.ID, nil
}

// PutObject creates a new nested Map/List/Text at a map key or sequence
// index and returns its ObjId.
func (tx *Transaction) PutObject(path []any, objType types.ObjType) (actor.ObjId, error) {
	if err := tx.checkOpen(); err != nil {
		return actor.OpId{}, err
	}
	obj, key, err := splitPath(tx.doc.os, path, nil)
	if err != nil {
		return actor.OpId{}, err
	}
	keyVal, _, err := tx.resolveKey(obj, key)
	if err != nil {
		return actor.OpId{}, err
	}
	existing, err := tx.opsAt(obj, key)
	if err != nil {
		return actor.OpId{}, err
	}
	if obj.Type != types.ObjTypeMap && len(existing) == 0 {
		return actor.OpId{}, automergeerr.New(automergeerr.KindInvalidIndex, "put_object index out of range")
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: makeAction(objType),
		ObjID: obj.ID,
		Key: keyVal,
		Insert: false,
		ObjType: objType,
		Pred: predOf(existing),
	}
	if err := tx.stage(op); err != nil {
		return actor.OpId{}, err
	}
	tx.patches = append(tx.patches, patch.Patch{
		Kind: patch.KindPut, Path: pathElems(path), Conflict: len(existing) > 0,
	})
	return op.ID, nil
}

// Insert adds a new scalar element before the element currently at index
// (or at the end if index == length).
func (tx *Transaction) Insert(path []any, index int, value types.Value) (actor.OpId, error) {
	obj, parentElem, err := tx.insertAnchor(path, index)
	if err != nil {
		return actor.OpId{}, err
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: opgraph.ActionSet,
		ObjID: obj.ID,
		Key: opgraph.SeqKey(parentElem),
		Insert: true,
		Value: value,
	}
	if err := tx.stage(op); err != nil {
		return actor.OpId{}, err
	}
	tx.patches = append(tx.patches, patch.Patch{
		Kind: patch.KindInsert, Path: append(pathElems(path), patch.SeqElem(index)), Value: value,
	})
	return op.ID, nil
}

// InsertObject is Insert for a new nested container.
func (tx *Transaction) InsertObject(path []any, index int, objType types.ObjType) (actor.ObjId, error) {
	obj, parentElem, err := tx.insertAnchor(path, index)
	if err != nil {
		return actor.OpId{}, err
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: makeAction(objType),
		ObjID: obj.ID,
		Key: opgraph.SeqKey(parentElem),
		Insert: true,
		ObjType: objType,
	}
	if err := tx.stage(op); err != nil {
		return actor.OpId{}, err
	}
	tx.patches = append(tx.patches, patch.Patch{
		Kind: patch.KindInsert, Path: append(pathElems(path), patch.SeqElem(index)),
	})
	return op.ID, nil
}

func (tx *Transaction) insertAnchor(path []any, index int) (*opset.Object, actor.ElemId, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, actor.OpId{}, err
	}
	obj, err := resolveContainer(tx.doc.os, path, nil)
	if err != nil {
		return nil, actor.OpId{}, err
	}
	if obj.Type == types.ObjTypeMap {
		return nil, actor.OpId{}, automergeerr.New(automergeerr.KindWrongObjectType, "insert requires a sequence object")
	}
	if index == 0 {
		return obj, actor.Head, nil
	}
	elem, ok := tx.doc.os.SeqElemAt(obj, index-1)
	if !ok {
		return nil, actor.OpId{}, automergeerr.New(automergeerr.KindInvalidIndex, "insert index out of range")
	}
	return obj, elem, nil
}

// Delete removes a map key or a sequence element.
func (tx *Transaction) Delete(path []any) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	obj, key, err := splitPath(tx.doc.os, path, nil)
	if err != nil {
		return err
	}
	keyVal, _, err := tx.resolveKey(obj, key)
	if err != nil {
		return err
	}
	existing, err := tx.opsAt(obj, key)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return automergeerr.New(automergeerr.KindInvalidIndex, "delete target does not exist")
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: opgraph.ActionDel,
		ObjID: obj.ID,
		Key: keyVal,
		Insert: false,
		Pred: predOf(existing),
	}
	if err := tx.stage(op); err != nil {
		return err
	}
	tx.patches = append(tx.patches, patch.Patch{Kind: patch.KindDelete, Path: pathElems(path)})
	return nil
}

// Increment applies a commutative delta to a Counter value. Concurrent
// increments from different actors on the same counter instance all
// accumulate; the increment op does not supersede the value it targets
// (see DESIGN.md "Counter commutativity").
func (tx *Transaction) Increment(path []any, delta int64) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	obj, key, err := splitPath(tx.doc.os, path, nil)
	if err != nil {
		return err
	}
	keyVal, _, err := tx.resolveKey(obj, key)
	if err != nil {
		return err
	}
	existing, err := tx.opsAt(obj, key)
	if err != nil {
		return err
	}
	winner := lastNonIncrement(existing)
	if winner == nil || winner.Op.Value.Kind() != types.KindCounter {
		return automergeerr.ErrCounterRequired
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: opgraph.ActionIncrement,
		ObjID: obj.ID,
		Key: keyVal,
		Insert: false,
		Delta: delta,
	}
	if err := tx.stage(op); err != nil {
		return err
	}
	tx.patches = append(tx.patches, patch.Patch{Kind: patch.KindIncrement, Path: pathElems(path), Delta: delta})
	return nil
}

// Splice performs an atomic delete+insert of characters on a Text object.
// Values are UTF-8 scalar units (runes); insertText's runes each become
// one op — this engine uses code-point indexing throughout rather than
// UTF-8 byte offsets. List objects splice element-at-a-time via
// Insert/Delete instead, since their elements are arbitrary Values rather
// than characters.
func (tx *Transaction) Splice(path []any, start, delCount int, insertText string) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	obj, err := resolveContainer(tx.doc.os, path, nil)
	if err != nil {
		return err
	}
	if obj.Type != types.ObjTypeText {
		return automergeerr.New(automergeerr.KindWrongObjectType, "splice requires a Text object")
	}
	for i := 0; i < delCount; i++ {
		elem, ok := tx.doc.os.SeqElemAt(obj, start)
		if !ok {
			return automergeerr.New(automergeerr.KindInvalidIndex, "splice delete range out of bounds")
		}
		existing, err := tx.opsAt(obj, start)
		if err != nil {
			return err
		}
		op := &opgraph.Op{
			ID: tx.nextOpID(),
			Action: opgraph.ActionDel,
			ObjID: obj.ID,
			Key: opgraph.SeqKey(elem),
			Pred: predOf(existing),
		}
		if err := tx.stage(op); err != nil {
			return err
		}
	}

	anchor := actor.Head
	if start > 0 {
		elem, ok := tx.doc.os.SeqElemAt(obj, start-1)
		if !ok {
			return automergeerr.New(automergeerr.KindInvalidIndex, "splice insert position out of bounds")
		}
		anchor = elem
	}
	for _, r := range insertText {
		op := &opgraph.Op{
			ID: tx.nextOpID(),
			Action: opgraph.ActionSet,
			ObjID: obj.ID,
			Key: opgraph.SeqKey(anchor),
			Insert: true,
			Value: types.Str(string(r)),
		}
		if err := tx.stage(op); err != nil {
			return err
		}
		anchor = op.ID
	}
	tx.patches = append(tx.patches, patch.Patch{
		Kind: patch.KindSplice, Path: pathElems(path), Text: insertText,
			RangeStart: start, RangeEnd: start + delCount,
	})
	return nil
}

// Mark layers a named annotation over [start,end) of a Text object.
func (tx *Transaction) Mark(path []any, start, end int, name string, value types.Value, expand opgraph.ExpandPolicy) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	obj, err := resolveContainer(tx.doc.os, path, nil)
	if err != nil {
		return err
	}
	if obj.Type != types.ObjTypeText {
		return automergeerr.New(automergeerr.KindWrongObjectType, "mark requires a Text object")
	}
	startElem, ok := tx.doc.os.SeqElemAt(obj, start)
	if !ok {
		return automergeerr.New(automergeerr.KindInvalidIndex, "mark start out of range")
	}
	last := end - 1
	if n := tx.doc.os.SeqLen(obj); last >= n {
		last = n - 1
	}
	endElem, ok := tx.doc.os.SeqElemAt(obj, last)
	if !ok {
		return automergeerr.New(automergeerr.KindInvalidIndex, "mark end out of range")
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: opgraph.ActionMark,
		ObjID: obj.ID,
		Key: opgraph.SeqKey(startElem),
		MarkName: name,
		MarkValue: value,
		MarkExpand: expand,
		MarkEnd: endElem,
	}
	if err := tx.stage(op); err != nil {
		return err
	}
	tx.patches = append(tx.patches, patch.Patch{
		Kind: patch.KindMark, Path: pathElems(path), MarkName: name, MarkValue: value,
			RangeStart: start, RangeEnd: end,
	})
	return nil
}

// Unmark cancels every currently-visible Mark op with the given name whose
// range overlaps [start,end).
func (tx *Transaction) Unmark(path []any, start, end int, name string) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	obj, err := resolveContainer(tx.doc.os, path, nil)
	if err != nil {
		return err
	}
	if obj.Type != types.ObjTypeText {
		return automergeerr.New(automergeerr.KindWrongObjectType, "unmark requires a Text object")
	}
	var toCancel []actor.OpId
	for _, m := range obj.Marks() {
		if !m.Visible() || m.Name() != name {
			continue
		}
		s, ok1 := tx.doc.os.SeqIndexOf(obj, m.StartElem())
		e, ok2 := tx.doc.os.SeqIndexOf(obj, m.EndElem())
		if !ok1 || !ok2 {
			continue
		}
		if s < end && e >= start {
			toCancel = append(toCancel, m.OpID())
		}
	}
	if len(toCancel) == 0 {
		return nil
	}
	op := &opgraph.Op{
		ID: tx.nextOpID(),
		Action: opgraph.ActionUnmark,
		ObjID: obj.ID,
		Pred: toCancel,
	}
	if err := tx.stage(op); err != nil {
		return err
	}
	tx.patches = append(tx.patches, patch.Patch{
		Kind: patch.KindUnmark, Path: pathElems(path), MarkName: name, RangeStart: start, RangeEnd: end,
	})
	return nil
}

// Commit seals the staged ops into one Change, folds it into the causal
// graph, and releases the Document's exclusivity token.
func (tx *Transaction) Commit(message string) (*opgraph.Change, error) {
	if tx.done {
		return nil, automergeerr.ErrReadOnly
	}
	if tx.rollbackOnly {
		return nil, automergeerr.ErrRollbackOnly
	}
	tx.done = true
	defer tx.doc.endTransaction()

	if len(tx.ops) == 0 {
		return nil, nil
	}

	ops := make([]opgraph.Op, len(tx.ops))
	for i, p := range tx.ops {
		ops[i] = *p
	}
	resolve := func(globalIdx int) actor.ID { return tx.doc.os.ActorAt(globalIdx) }
	c := &opgraph.Change{
		Actor: tx.doc.author,
		Seq: tx.doc.nextSeq(),
		StartOp: tx.startCtr,
		Time: time.Now().UnixMilli(),
		Message: message,
		Deps: tx.doc.graph.Heads(),
		Ops: ops,
	}
	// EncodeChange fills c.Actors (the per-change local actor table) and
	// c.Hash from the global-indexed ops above; the in-memory Ops are then
	// relocalized to match c.Actors so this Change is indistinguishable
	// from one produced by DecodeChange (local-indexed Ops).
	opgraph.EncodeChange(c, resolve)
	c.Ops = relocalizeOps(ops, c.Actors, resolve)

	if _, err := tx.doc.graph.Apply(c); err != nil {
		return nil, err
	}
	idx := tx.doc.graph.IndexOf(c.Hash)
	for _, p := range tx.ops {
		if stored, ok := tx.doc.os.Lookup(p.ID); ok {
			stored.ChangeIdx = idx
		}
	}
	tx.doc.pendingPatches = append(tx.doc.pendingPatches, tx.patches...)
	tx.doc.log.Info().
		Str("hash", c.Hash.String()).
		Uint64("seq", c.Seq).
		Int("ops", len(c.Ops)).
		Str("message", message).
		Msg("committed change")
	return c, nil
}

// Rollback discards every staged op; no state mutation remains visible.
func (tx *Transaction) Rollback() {
	if tx.done {
		return
	}
	tx.done = true
	for i := len(tx.ops) - 1; i >= 0; i-- {
		tx.doc.os.RollbackOp(tx.ops[i])
	}
	tx.doc.log.Debug().Int("ops", len(tx.ops)).Msg("rolled back transaction")
	tx.doc.endTransaction()
}

// resolveKey converts a raw path-style key (string or int) into an
// opgraph.Key for the target object, validating its kind against the
// object type.
func (tx *Transaction) resolveKey(obj *opset.Object, key any) (opgraph.Key, actor.ElemId, error) {
	if obj.Type == types.ObjTypeMap {
		k, ok := key.(string)
		if !ok {
			return opgraph.Key{}, actor.OpId{}, automergeerr.New(automergeerr.KindInvalidPath, "map key must be a string")
		}
		return opgraph.MapKey(k), actor.OpId{}, nil
	}
	idx, ok := key.(int)
	if !ok {
		return opgraph.Key{}, actor.OpId{}, automergeerr.New(automergeerr.KindInvalidPath, "sequence index must be an int")
	}
	elem, ok := tx.doc.os.SeqElemAt(obj, idx)
	if !ok {
		return opgraph.Key{}, actor.OpId{}, automergeerr.New(automergeerr.KindInvalidIndex, "index out of range")
	}
	return opgraph.SeqKey(elem), elem, nil
}

// relocalizeOps rewrites ops' global actor-table indices into indices local
// to actors (the per-Change table EncodeChange just produced), so a freshly
// committed Change's in-memory Ops has the same shape DecodeChange produces
// for a wire-received one.
func relocalizeOps(ops []opgraph.Op, actors []actor.ID, resolve func(int) actor.ID) []opgraph.Op {
	localIdx := make(map[string]int, len(actors))
	for i, a := range actors {
		localIdx[a.String()] = i
	}
	local := func(globalIdx int) int {
		if globalIdx < 0 {
			return -1
		}
		return localIdx[resolve(globalIdx).String()]
	}
	out := make([]opgraph.Op, len(ops))
	for i, op := range ops {
		op.ID.Actor = local(op.ID.Actor)
		op.ObjID.Actor = local(op.ObjID.Actor)
		if op.Key.Kind == opgraph.KeySeq {
			op.Key.Elem.Actor = local(op.Key.Elem.Actor)
		}
		if op.Action == opgraph.ActionMark {
			op.MarkEnd.Actor = local(op.MarkEnd.Actor)
		}
		if len(op.Pred) > 0 {
			pred := make([]actor.OpId, len(op.Pred))
			for j, p := range op.Pred {
				p.Actor = local(p.Actor)
				pred[j] = p
			}
			op.Pred = pred
		}
		out[i] = op
	}
	return out
}

func makeAction(t types.ObjType) opgraph.Action {
	switch t {
	case types.ObjTypeList:
		return opgraph.ActionMakeList
	case types.ObjTypeText:
		return opgraph.ActionMakeText
	default:
		return opgraph.ActionMakeMap
	}
}
