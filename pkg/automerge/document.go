// Package automerge is the public surface of the document engine: create/load/save a Document, open transactions
// against it, read and write through paths, fork/merge replicas, and drive
// the sync protocol. Everything below is a thin, exclusivity-checked shell
// over internal/opgraph (the hash DAG and wire codec) and internal/opset
// (the indexed op store): a slim public package wrapping an internal
// engine.
package automerge

import (
	"fmt"

	"github.com/rs/zerolog"

	"automerge/internal/actor"
	"automerge/internal/autolog"
	"automerge/internal/opgraph"
	"automerge/internal/opset"
	"automerge/internal/patch"
	"automerge/pkg/automergeerr"
)

// Document is a single replica of a CRDT document: the set of applied
// Changes (the hash DAG), the derived OpSet, and the exclusivity token
// guarding transactions.
type Document struct {
	author actor.ID

	graph *opgraph.Graph
	os *opset.OpSet

	inTx bool
	tx *Transaction
	seq uint64 // changes committed so far by this replica's author

	pendingPatches []patch.Patch

	lastSaveHeads []actor.ChangeHash

	log zerolog.Logger
}

// Option configures a new Document.
type Option func(*Document)

// WithActorID fixes the document's local actor identity instead of
// generating a random one.
func WithActorID(id actor.ID) Option {
	return func(d *Document) { d.author = id }
}

// New creates an empty Document.
func New(opts ...Option) *Document {
	d := &Document{
		graph: opgraph.NewGraph(),
		os: opset.New(),
		log: autolog.WithComponent("automerge"),
	}
	for _, o := range opts {
		o(d)
	}
	if d.author == nil {
		d.author = actor.NewRandom()
	}
	d.os.InternActor(d.author)
	return d
}

// ActorID returns the document's local actor identity.
func (d *Document) ActorID() actor.ID { return d.author }

// Heads returns the document's current causal frontier.
func (d *Document) Heads() []actor.ChangeHash { return d.graph.Heads() }

// Has reports whether a change hash is already applied.
func (d *Document) Has(h actor.ChangeHash) bool { return d.graph.Has(h) }

// Changes returns every applied Change in topological order.
func (d *Document) Changes() []*opgraph.Change { return d.graph.Changes() }

// Closure returns the causal closure (inclusive) of the given heads.
func (d *Document) Closure(heads []actor.ChangeHash) map[actor.ChangeHash]bool {
	return d.graph.Closure(heads)
}

// nextSeq returns the next per-actor sequence number for a Change this
// Document's author is about to commit.
func (d *Document) nextSeq() uint64 {
	d.seq++
	return d.seq
}

// TakePatches drains and returns every patch generated by local
// transactions committed since the last call. Patches are accumulated
// rather than pushed to a callback.
func (d *Document) TakePatches() []patch.Patch {
	out := d.pendingPatches
	d.pendingPatches = nil
	return out
}

// checkReadable rejects reads through the Document while a transaction is
// open.
func (d *Document) checkReadable() error {
	if d.inTx {
		return automergeerr.ErrReadOnly
	}
	return nil
}

// BeginTransaction opens a Transaction with exclusive mutation rights.
// It fails fast — never blocks — if one is already open.
func (d *Document) BeginTransaction() (*Transaction, error) {
	if d.inTx {
		d.log.Debug().Msg("rejecting nested transaction")
		return nil, automergeerr.ErrNestedTransaction
	}
	d.inTx = true
	// Counter 0 is never assigned: on the wire an OpId with actor index 0
	// and counter 0 encodes ROOT/HEAD.
	startCtr := d.os.MaxCounter()
	if startCtr == 0 {
		startCtr = 1
	}
	tx := &Transaction{
		doc: d,
		startCtr: startCtr,
	}
	d.tx = tx
	return tx, nil
}

// Transact opens a transaction, runs fn, and commits on success or rolls
// back if fn returns an error or panics partway (the closure-scoped
// transaction idiom used throughout this package).
func (d *Document) Transact(message string, fn func(tx *Transaction) error) (*opgraph.Change, error) {
	tx, err := d.BeginTransaction()
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		tx.Rollback()
		return nil, err
	}
	return tx.Commit(message)
}

// endTransaction clears the exclusivity token; called by Commit/Rollback.
func (d *Document) endTransaction() {
	d.inTx = false
	d.tx = nil
}

// Fork returns an independent copy of the document sharing no mutable
// state.
func (d *Document) Fork() *Document {
	fork := New(WithActorID(actor.NewRandom()))
	for _, c := range d.graph.Changes() {
		if err := fork.applyDecodedChange(cloneChange(c)); err != nil {
			// Changes from a valid document apply cleanly onto a fresh one
			// in the same topological order they were originally applied.
			panic(fmt.Sprintf("automerge: fork replay failed: %v", err))
		}
	}
	return fork
}

func cloneChange(c *opgraph.Change) *opgraph.Change {
	cp := *c
	cp.Deps = append([]actor.ChangeHash{}, c.Deps...)
	cp.Ops = append([]opgraph.Op{}, c.Ops...)
	return &cp
}

// Merge applies every change in other not yet known to d.
func (d *Document) Merge(other *Document) error {
	closure := d.Closure(d.Heads())
	for _, c := range other.graph.Changes() {
		if closure[c.Hash] {
			continue
		}
		if err := d.applyDecodedChange(cloneChange(c)); err != nil {
			return err
		}
	}
	return nil
}

// ApplyChanges applies a batch of already-decoded Changes, e.g. ones
// obtained from another Document's Changes(). Changes whose deps are not
// yet satisfied are buffered until those deps arrive.
func (d *Document) ApplyChanges(changes []*opgraph.Change) error {
	for _, c := range changes {
		if err := d.applyDecodedChange(c); err != nil {
			return err
		}
	}
	return nil
}

// applyDecodedChange globalizes a Change's local actor-table op indices
// against the Document's OpSet actor table, applies it to the causal
// graph (buffering if deps are missing), and feeds every newly-applied
// change's ops into the OpSet in order.
func (d *Document) applyDecodedChange(c *opgraph.Change) error {
	applied, err := d.graph.Apply(c)
	if err != nil {
		d.log.Debug().Str("hash", c.Hash.String()).Err(err).Msg("change rejected")
		return err
	}
	if len(applied) == 0 {
		d.log.Debug().Str("hash", c.Hash.String()).Msg("change buffered, deps missing")
	}
	for _, ac := range applied {
		if err := d.integrateChange(ac); err != nil {
			return err
		}
	}
	if len(applied) > 0 {
		d.log.Info().Int("changes_applied", len(applied)).Msg("applied changes")
	}
	return nil
}

// integrateChange feeds one newly-applied Change's ops into the OpSet.
// Actor indices are local to the Change (Actors[0] == author); they are
// interned into the Document's global actor table before each op is
// applied.
func (d *Document) integrateChange(c *opgraph.Change) error {
	localToGlobal := make([]int, len(c.Actors))
	for i, a := range c.Actors {
		localToGlobal[i] = d.os.InternActor(a)
	}
	changeIdx := d.graph.IndexOf(c.Hash)
	for i := range c.Ops {
		op := globalizeOp(c.Ops[i], localToGlobal)
		if err := d.os.ApplyOp(&op, changeIdx); err != nil {
			return err
		}
	}
	return nil
}

func globalizeOp(op opgraph.Op, localToGlobal []int) opgraph.Op {
	op.ID = globalizeOpId(op.ID, localToGlobal)
	op.ObjID = globalizeOpId(op.ObjID, localToGlobal)
	if op.Key.Kind == opgraph.KeySeq {
		op.Key.Elem = globalizeOpId(op.Key.Elem, localToGlobal)
	}
	if op.Action == opgraph.ActionMark {
		op.MarkEnd = globalizeOpId(op.MarkEnd, localToGlobal)
	}
	if len(op.Pred) > 0 {
		pred := make([]actor.OpId, len(op.Pred))
		for i, p := range op.Pred {
			pred[i] = globalizeOpId(p, localToGlobal)
		}
		op.Pred = pred
	}
	op.Succ = nil
	return op
}

func globalizeOpId(id actor.OpId, localToGlobal []int) actor.OpId {
	if id.Actor < 0 {
		return id
	}
	return actor.OpId{Actor: localToGlobal[id.Actor], Counter: id.Counter}
}
