package syncproto

import (
	"bytes"
	"errors"

	"automerge/internal/actor"
	"automerge/internal/bloom"
	"automerge/internal/varint"
)

// Magic is the sync message's leading byte set.
// Distinct from opgraph.Magic so a decoder can reject a chunk fed to the
// wrong parser instead of silently misreading it.
var Magic = [4]byte{0x4f, 0x31, 0x73, 0x79}

const Version = 1

var (
	ErrBadMagic = errors.New("syncproto: invalid magic")
	ErrBadVersion = errors.New("syncproto: unsupported message version")
	ErrTruncated = errors.New("syncproto: truncated message")
)

// Encode serializes a Message as: magic, version, then heads, need,
// have[] (last_sync hashes + bloom bytes), then changes[].
func (m *Message) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.WriteByte(Version)

	writeHashes(&buf, m.Heads)
	writeHashes(&buf, m.Need)

	writeUvarint(&buf, uint64(len(m.Have)))
	for _, h := range m.Have {
		writeHashes(&buf, h.LastSync)
		var bloomBytes []byte
		if h.Bloom != nil {
			bloomBytes = h.Bloom.Encode()
		}
		writeUvarint(&buf, uint64(len(bloomBytes)))
		buf.Write(bloomBytes)
	}

	writeUvarint(&buf, uint64(len(m.Changes)))
	for _, c := range m.Changes {
		writeUvarint(&buf, uint64(len(c)))
		buf.Write(c)
	}

	return buf.Bytes()
}

// DecodeMessage parses the output of Message.Encode.
func DecodeMessage(buf []byte) (*Message, error) {
	if len(buf) < 5 {
		return nil, ErrTruncated
	}
	if !bytes.Equal(buf[:4], Magic[:]) {
		return nil, ErrBadMagic
	}
	if buf[4] != Version {
		return nil, ErrBadVersion
	}
	pos := 5

	heads, n, err := readHashes(buf, pos)
	if err != nil {
		return nil, err
	}
	pos += n

	need, n, err := readHashes(buf, pos)
	if err != nil {
		return nil, err
	}
	pos += n

	haveCount, n, err := readUvarint(buf, pos)
	if err != nil {
		return nil, err
	}
	pos += n

	have := make([]Have, 0, haveCount)
	for i := uint64(0); i < haveCount; i++ {
		lastSync, n, err := readHashes(buf, pos)
		if err != nil {
			return nil, err
		}
		pos += n

		bloomLen, n, err := readUvarint(buf, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if uint64(len(buf)-pos) < bloomLen {
			return nil, ErrTruncated
		}
		var filter *bloom.Filter
		if bloomLen > 0 {
			filter, _, err = bloom.Decode(buf[pos: pos+int(bloomLen)])
			if err != nil {
				return nil, err
			}
		}
		pos += int(bloomLen)

		have = append(have, Have{LastSync: lastSync, Bloom: filter})
	}

	changeCount, n, err := readUvarint(buf, pos)
	if err != nil {
		return nil, err
	}
	pos += n

	changes := make([][]byte, 0, changeCount)
	for i := uint64(0); i < changeCount; i++ {
		clen, n, err := readUvarint(buf, pos)
		if err != nil {
			return nil, err
		}
		pos += n
		if uint64(len(buf)-pos) < clen {
			return nil, ErrTruncated
		}
		c := make([]byte, clen)
		copy(c, buf[pos:pos+int(clen)])
		changes = append(changes, c)
		pos += int(clen)
	}

	return &Message{Heads: heads, Need: need, Have: have, Changes: changes}, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [varint.MaxLen]byte
	n := varint.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeHashes(buf *bytes.Buffer, hashes []actor.ChangeHash) {
	writeUvarint(buf, uint64(len(hashes)))
	for _, h := range hashes {
		buf.Write(h[:])
	}
}

func readUvarint(buf []byte, pos int) (uint64, int, error) {
	v, n := varint.Uvarint(buf[pos:])
	if n <= 0 {
		return 0, 0, ErrTruncated
	}
	return v, n, nil
}

func readHashes(buf []byte, pos int) ([]actor.ChangeHash, int, error) {
	count, n, err := readUvarint(buf, pos)
	if err != nil {
		return nil, 0, err
	}
	total := n
	pos += n
	out := make([]actor.ChangeHash, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(buf)-pos < 32 {
			return nil, 0, ErrTruncated
		}
		var h actor.ChangeHash
		copy(h[:], buf[pos:pos+32])
		out = append(out, h)
		pos += 32
		total += 32
	}
	return out, total, nil
}
