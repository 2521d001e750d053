// Package cursor implements stable sequence positions that survive
// concurrent edits.
package cursor

import (
	"encoding/hex"
	"fmt"

	"automerge/internal/actor"
)

// Cursor is the serialized form of an ElemId (plus the owning object),
// resolved back to a live visible index via the sequence index.
type Cursor struct {
	Obj actor.ObjId
	Elem actor.ElemId
}

// String renders a cursor as "<objActor>:<objCounter>/<elemActor>:<elemCounter>",
// a compact colon-delimited identifier.
func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d/%d:%d", c.Obj.Actor, c.Obj.Counter, c.Elem.Actor, c.Elem.Counter)
}

// Encode serializes a cursor to 32 bytes: four fixed-width 8-byte
// big-endian fields (object actor, object counter, element actor, element
// counter), with no varint packing.
func (c Cursor) Encode() []byte {
	buf := make([]byte, 0, 32)
	buf = appendInt(buf, c.Obj.Actor)
	buf = appendUint(buf, c.Obj.Counter)
	buf = appendInt(buf, c.Elem.Actor)
	buf = appendUint(buf, c.Elem.Counter)
	return buf
}

func Decode(b []byte) (Cursor, error) {
	if len(b) != 32 {
		return Cursor{}, fmt.Errorf("cursor: malformed encoding (%d bytes)", len(b))
	}
	objActor := readInt(b[0:8])
	objCounter := readUint(b[8:16])
	elemActor := readInt(b[16:24])
	elemCounter := readUint(b[24:32])
	return Cursor{
		Obj: actor.OpId{Actor: objActor, Counter: objCounter},
		Elem: actor.OpId{Actor: elemActor, Counter: elemCounter},
	}, nil
}

func appendInt(buf []byte, v int) []byte { return appendUint(buf, uint64(int64(v))) }
func readInt(b []byte) int { return int(int64(readUint(b))) }

func appendUint(buf []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * uint(7-i)))
	}
	return append(buf, tmp[:]...)
}

func readUint(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}

// Hex is a convenience textual form for logging.
func (c Cursor) Hex() string { return hex.EncodeToString(c.Encode()) }
