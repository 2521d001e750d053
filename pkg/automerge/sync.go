package automerge

import (
	"errors"

	"automerge/internal/actor"
	"automerge/internal/opgraph"
	"automerge/internal/syncproto"
	"automerge/pkg/automergeerr"
)

// SyncState is a peer's sync bookkeeping, carried across repeated
// Generate/Receive rounds for the lifetime of a connection.
type SyncState = syncproto.State

// SyncMessage is one round-trip envelope of the sync protocol.
type SyncMessage = syncproto.Message

// NewSyncState returns a fresh per-peer sync state.
func NewSyncState() *SyncState { return syncproto.NewState() }

// GenerateSyncMessage produces the next message to send to a peer in the
// given state, or ok == false if there is nothing new to tell them.
// Document implements syncproto.Host directly.
func (d *Document) GenerateSyncMessage(s *SyncState) (*SyncMessage, bool) {
	msg, ok := syncproto.Generate(d, s)
	if ok {
		d.log.Info().Int("changes", len(msg.Changes)).Msg("generated sync message")
	}
	return msg, ok
}

// ReceiveSyncMessage applies an incoming peer message: decoding and
// applying any changes it carries, and updating s to reflect what the peer
// now knows.
func (d *Document) ReceiveSyncMessage(s *SyncState, msg *SyncMessage) error {
	d.log.Debug().Int("changes", len(msg.Changes)).Msg("receiving sync message")
	return syncproto.Receive(d, s, msg)
}

// AllHashes implements syncproto.Host.
func (d *Document) AllHashes() []actor.ChangeHash {
	changes := d.graph.Changes()
	out := make([]actor.ChangeHash, len(changes))
	for i, c := range changes {
		out[i] = c.Hash
	}
	return out
}

// EncodeChange implements syncproto.Host: it re-derives the chunk-framed
// bytes for an already-applied change (see document_io.go's
// encodeStoredChange for why re-encoding reproduces the original bytes).
func (d *Document) EncodeChange(h actor.ChangeHash) ([]byte, error) {
	c, ok := d.graph.Get(h)
	if !ok {
		return nil, automergeerr.New(automergeerr.KindMissingDependencies, "change not found locally")
	}
	return opgraph.EncodeChunk(opgraph.ChunkChange, encodeStoredChange(c)), nil
}

// DecodeChangeHash implements syncproto.Host.
func (d *Document) DecodeChangeHash(data []byte) (actor.ChangeHash, error) {
	chunk, _, err := opgraph.DecodeChunk(data)
	if err != nil {
		return actor.ChangeHash{}, automergeerr.Wrap(automergeerr.KindBadMagic, "decoding sync change", err)
	}
	return actor.ChangeHash(chunk.Hash), nil
}

// ApplyChangeBytes implements syncproto.Host.
func (d *Document) ApplyChangeBytes(data []byte) error {
	chunk, _, err := opgraph.DecodeChunk(data)
	if err != nil {
		return automergeerr.Wrap(automergeerr.KindBadMagic, "decoding sync change", err)
	}
	c, err := opgraph.DecodeChange(chunk.Payload)
	if err != nil {
		kind := automergeerr.KindTruncatedInput
		if errors.Is(err, opgraph.ErrActorIndexOutOfRange) {
			kind = automergeerr.KindActorIndexOutOfRange
		}
		return automergeerr.Wrap(kind, "decoding sync change", err)
	}
	c.Hash = actor.ChangeHash(chunk.Hash)
	if err := d.applyDecodedChange(c); err != nil {
		return err
	}
	d.bumpSeqFor(c)
	return nil
}
