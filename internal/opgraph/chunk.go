package opgraph

import (
	"bytes"
	"compress/flate"
	"crypto/sha256"
	"errors"
	"io"

	"automerge/internal/actor"
	"automerge/internal/varint"
)

// ChunkType identifies the payload of a framed chunk.
type ChunkType byte

const (
	ChunkDocument ChunkType = 0
	ChunkChange ChunkType = 1
	ChunkCompressed ChunkType = 2
)

// Magic is the fixed 4-byte magic prefix of every chunk.
var Magic = [4]byte{0x85, 0x6f, 0x4a, 0x83}

var (
	ErrBadMagic = errors.New("opgraph: invalid magic")
	ErrBadHashPrefix = errors.New("opgraph: chunk hash prefix mismatch")
	ErrUnknownChunkType = errors.New("opgraph: unknown chunk type")
	ErrTruncatedInput = errors.New("opgraph: truncated chunk")
	ErrActorIndexOutOfRange = errors.New("opgraph: actor index out of range")
)

// compressThreshold is the payload size above which Encode deflate-wraps
// the chunk rather than storing it raw.
const compressThreshold = 256

// sha256Full hashes type||length||payload to produce the chunk hash
// prefix, and returns the full 32-byte digest (the first 4 bytes of which
// become the on-wire hash prefix).
func sha256Full(typ ChunkType, payload []byte) [32]byte {
	var lenBuf [varint.MaxLen]byte
	n := varint.PutUvarint(lenBuf[:], uint64(len(payload)))
	h := sha256.New()
	h.Write([]byte{byte(typ)})
	h.Write(lenBuf[:n])
	h.Write(payload)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeChunk frames payload as a single chunk, optionally deflating it if
// it exceeds compressThreshold.
func EncodeChunk(typ ChunkType, payload []byte) []byte {
	if len(payload) > compressThreshold && typ != ChunkCompressed {
		inner := encodeChunkRaw(typ, payload)
		var compressed bytes.Buffer
		w, _ := flate.NewWriter(&compressed, flate.BestSpeed)
		_, _ = w.Write(inner)
		_ = w.Close()
		if compressed.Len() < len(inner) {
			return encodeChunkRaw(ChunkCompressed, compressed.Bytes())
		}
		return inner
	}
	return encodeChunkRaw(typ, payload)
}

func encodeChunkRaw(typ ChunkType, payload []byte) []byte {
	digest := sha256Full(typ, payload)
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.Write(digest[:4])
	buf.WriteByte(byte(typ))
	var lenBuf [varint.MaxLen]byte
	n := varint.PutUvarint(lenBuf[:], uint64(len(payload)))
	buf.Write(lenBuf[:n])
	buf.Write(payload)
	return buf.Bytes()
}

// Chunk is a single decoded, framed unit.
type Chunk struct {
	Type ChunkType
	Payload []byte
	Hash [32]byte // full 32-byte hash of type||length||payload
}

// DecodeChunk reads exactly one chunk from buf, returning the chunk and
// the number of bytes consumed. Type-2 (Compressed) chunks are
// transparently unwrapped; the returned Chunk.Type/Payload/Hash describe
// the inner chunk (spec: "decoders must transparently unwrap").
func DecodeChunk(buf []byte) (*Chunk, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrTruncatedInput
	}
	if !bytes.Equal(buf[:4], Magic[:]) {
		return nil, 0, ErrBadMagic
	}
	if len(buf) < 9 {
		return nil, 0, ErrTruncatedInput
	}
	hashPrefix := buf[4:8]
	typ := ChunkType(buf[8])
	length, n := varint.Uvarint(buf[9:])
	if n <= 0 {
		return nil, 0, ErrTruncatedInput
	}
	start := 9 + n
	if uint64(len(buf)-start) < length {
		return nil, 0, ErrTruncatedInput
	}
	payload := buf[start: start+int(length)]
	consumed := start + int(length)

	digest := sha256Full(typ, payload)
	if !bytes.Equal(digest[:4], hashPrefix) {
		return nil, 0, ErrBadHashPrefix
	}

	if typ == ChunkCompressed {
		r := flate.NewReader(bytes.NewReader(payload))
		defer r.Close()
		inner, err := io.ReadAll(r)
		if err != nil {
			return nil, 0, ErrTruncatedInput
		}
		innerChunk, _, err := DecodeChunk(inner)
		if err != nil {
			return nil, 0, err
		}
		return innerChunk, consumed, nil
	}

	if typ != ChunkDocument && typ != ChunkChange {
		return nil, 0, ErrUnknownChunkType
	}

	return &Chunk{Type: typ, Payload: payload, Hash: digest}, consumed, nil
}

// HashFromChunk converts a chunk's full digest to a ChangeHash.
func HashFromChunk(c *Chunk) actor.ChangeHash {
	return actor.ChangeHash(c.Hash)
}
