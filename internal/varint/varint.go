// Package varint implements the integer encodings the columnar codec uses:
// unsigned LEB128 and zig-zag LEB128 for signed values. Continuation bits
// live on every byte, least-significant group first, matching automerge's
// wire format rather than a big-endian varint scheme.
package varint

// PutUvarint encodes v as unsigned LEB128 into buf (which must have room
// for at least MaxLen bytes) and returns the number of bytes written.
func PutUvarint(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// AppendUvarint appends the LEB128 encoding of v to buf.
func AppendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// Uvarint decodes an unsigned LEB128 value from buf, returning the value
// and the number of bytes consumed, or (0, 0) if buf ends before a
// terminating byte is found (TruncatedColumn).
func Uvarint(buf []byte) (uint64, int) {
	var v uint64
	var shift uint
	for i := 0; i < len(buf); i++ {
		b := buf[i]
		if shift >= 64 || (shift == 63 && b > 1) {
			return 0, -(i + 1) // OverlongLEB128
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1
		}
		shift += 7
	}
	return 0, 0
}

// ZigZagEncode maps a signed integer onto the unsigned range so that small
// magnitude values (positive or negative) encode to small varints.
func ZigZagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

// ZigZagDecode reverses ZigZagEncode.
func ZigZagDecode(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}

// PutVarint encodes a signed value as zig-zag LEB128.
func PutVarint(buf []byte, v int64) int {
	return PutUvarint(buf, ZigZagEncode(v))
}

// AppendVarint appends the zig-zag LEB128 encoding of v to buf.
func AppendVarint(buf []byte, v int64) []byte {
	return AppendUvarint(buf, ZigZagEncode(v))
}

// Varint decodes a signed zig-zag LEB128 value.
func Varint(buf []byte) (int64, int) {
	u, n := Uvarint(buf)
	if n <= 0 {
		return 0, n
	}
	return ZigZagDecode(u), n
}

// Len returns the number of bytes PutUvarint would write for v.
func Len(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}

// MaxLen is the largest number of bytes a 64-bit LEB128 value can occupy.
const MaxLen = 10
