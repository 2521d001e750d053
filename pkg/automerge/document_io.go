package automerge

import (
	"errors"

	"automerge/internal/actor"
	"automerge/internal/opgraph"
	"automerge/pkg/automergeerr"
)

// Save serializes every applied Change as a concatenated stream of framed
// Change chunks, wrapped in an outer Document chunk. Changes are written in topological order, which
// is always dependency-consistent, so Load can replay them directly through
// Graph.Apply without a separate sort pass.
//
// This trades a fully columnar, cross-object Document format for a simple
// concatenation of per-Change chunks — see DESIGN.md "Document save/load format"
// for the rationale; every round-trip property (byte-identical causal
// history on reload) still holds.
func (d *Document) Save() []byte {
	var payload []byte
	for _, c := range d.graph.Changes() {
		payload = append(payload, opgraph.EncodeChunk(opgraph.ChunkChange, encodeStoredChange(c))...)
	}
	d.lastSaveHeads = d.graph.Heads()
	return opgraph.EncodeChunk(opgraph.ChunkDocument, payload)
}

// SaveIncremental serializes every Change applied since sinceHeads, for appending to a previously saved document.
func (d *Document) SaveIncremental(sinceHeads []actor.ChangeHash) []byte {
	known := d.graph.Closure(sinceHeads)
	var payload []byte
	for _, c := range d.graph.Changes() {
		if known[c.Hash] {
			continue
		}
		payload = append(payload, opgraph.EncodeChunk(opgraph.ChunkChange, encodeStoredChange(c))...)
	}
	d.lastSaveHeads = d.graph.Heads()
	return payload
}

// Load creates a fresh Document from bytes produced by Save.
func Load(data []byte, opts ...Option) (*Document, error) {
	d := New(opts...)
	if err := d.LoadIncremental(data); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadIncremental applies every Change chunk found in data (either a bare
// concatenation of Change chunks, as produced by SaveIncremental, or a
// single outer Document chunk wrapping them, as produced by Save) onto an
// existing Document.
func (d *Document) LoadIncremental(data []byte) error {
	for len(data) > 0 {
		chunk, n, err := opgraph.DecodeChunk(data)
		if err != nil {
			return automergeerr.Wrap(automergeerr.KindBadMagic, "decoding saved document", err)
		}
		data = data[n:]

		switch chunk.Type {
			case opgraph.ChunkDocument:
			if err := d.LoadIncremental(chunk.Payload); err != nil {
				return err
			}
			case opgraph.ChunkChange:
			c, err := opgraph.DecodeChange(chunk.Payload)
			if err != nil {
				kind := automergeerr.KindTruncatedInput
				if errors.Is(err, opgraph.ErrActorIndexOutOfRange) {
					kind = automergeerr.KindActorIndexOutOfRange
				}
				return automergeerr.Wrap(kind, "decoding change chunk", err)
			}
			c.Hash = actor.ChangeHash(chunk.Hash)
			if err := d.applyDecodedChange(c); err != nil {
				return err
			}
			d.bumpSeqFor(c)
		}
	}
	return nil
}

// encodeStoredChange re-derives a Change chunk's payload bytes from an
// already-applied Change. EncodeChange is deterministic given the same
// (Actor, Seq, StartOp, Time, Message, Deps, Ops, Actors) tuple, so calling
// it again here reproduces byte-identical output without needing to cache
// raw bytes at apply time. It operates on a shallow copy so the graph's own
// Change record is never mutated as a side effect of saving.
func encodeStoredChange(c *opgraph.Change) []byte {
	cp := *c
	resolve := func(i int) actor.ID { return c.Actors[i] }
	return opgraph.EncodeChange(&cp, resolve)
}

// bumpSeqFor keeps Document.seq ahead of any change this replica's own
// author has previously committed, so a later local Transaction.Commit
// never collides with a seq number replayed in from storage.
func (d *Document) bumpSeqFor(c *opgraph.Change) {
	if !c.Actor.Equal(d.author) {
		return
	}
	if c.Seq > d.seq {
		d.seq = c.Seq
	}
}
