// Package columnar implements the per-column encodings used by the change
// and document binary formats: run-length
// encoding over arbitrary uint64 values, delta-RLE for monotonically-ish
// increasing integers, a boolean run encoding, and the group/length/raw
// scheme for variable-length byte columns (strings, actor ids, raw bytes).
//
// These follow a compact tagged-encoding approach to serialization, reworked
// around automerge's specific column shapes rather than whole-row records.
package columnar

import (
	"errors"

	"automerge/internal/varint"
)

// ErrTruncated is returned when a column ends before a value it promised
// (via a run length or length column) is fully present.
var ErrTruncated = errors.New("columnar: truncated column")

// RLEEncoder builds an RLE<uint64> column: a sequence of (run-length,
// value) pairs, where a negative run length (spec: "negative run length =
// literal run of |n| distinct values") switches to inline literals for
// runs of non-repeating values. Values are buffered and grouped on Bytes,
// so append order is the only thing that matters to callers.
type RLEEncoder struct {
	values []uint64
}

func NewRLEEncoder() *RLEEncoder { return &RLEEncoder{} }

func (e *RLEEncoder) Append(v uint64) { e.values = append(e.values, v) }

// Bytes finalizes and returns the encoded column.
func (e *RLEEncoder) Bytes() []byte {
	return EncodeRLE(e.values)
}

// DecodeRLE decodes a full RLE<uint64> column into a flat slice.
func DecodeRLE(buf []byte) ([]uint64, error) {
	var out []uint64
	pos := 0
	for pos < len(buf) {
		n, adv := varint.Varint(buf[pos:])
		if adv <= 0 {
			return nil, ErrTruncated
		}
		pos += adv
		if n >= 0 {
			v, adv2 := varint.Uvarint(buf[pos:])
			if adv2 <= 0 {
				return nil, ErrTruncated
			}
			pos += adv2
			for i := int64(0); i < n; i++ {
				out = append(out, v)
			}
		} else {
			for i := int64(0); i < -n; i++ {
				v, adv2 := varint.Uvarint(buf[pos:])
				if adv2 <= 0 {
					return nil, ErrTruncated
				}
				pos += adv2
				out = append(out, v)
			}
		}
	}
	return out, nil
}

// EncodeRLE encodes values as RLE<uint64>: runs of >=2 repeated values are
// written as a positive run length plus the value; maximal stretches of
// singleton (non-repeating) values are batched into one literal run with a
// negative length.
func EncodeRLE(values []uint64) []byte {
	var buf []byte
	var literals []uint64

	flushLiterals := func() {
		if len(literals) == 0 {
			return
		}
		buf = varint.AppendVarint(buf, -int64(len(literals)))
		for _, v := range literals {
			buf = varint.AppendUvarint(buf, v)
		}
		literals = literals[:0]
	}

	i := 0
	for i < len(values) {
		j := i + 1
		for j < len(values) && values[j] == values[i] {
			j++
		}
		runLen := j - i
		if runLen >= 2 {
			flushLiterals()
			buf = varint.AppendVarint(buf, int64(runLen))
			buf = varint.AppendUvarint(buf, values[i])
		} else {
			literals = append(literals, values[i])
		}
		i = j
	}
	flushLiterals()
	return buf
}

// EncodeDelta encodes a column of signed values as RLE over successive
// differences (spec: "Delta: RLE over successive differences"). The first
// value's delta is taken against zero.
func EncodeDelta(values []int64) []byte {
	e := NewRLEEncoder()
	var prev int64
	for _, v := range values {
		d := v - prev
		e.Append(varint.ZigZagEncode(d))
		prev = v
	}
	return e.Bytes()
}

// DecodeDelta reverses EncodeDelta.
func DecodeDelta(buf []byte) ([]int64, error) {
	deltas, err := DecodeRLE(buf)
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(deltas))
	var prev int64
	for i, d := range deltas {
		prev += varint.ZigZagDecode(d)
		out[i] = prev
	}
	return out, nil
}

// EncodeBoolean encodes a boolean column as alternating false/true run
// lengths, starting with a (possibly zero-length) false run.
func EncodeBoolean(values []bool) []byte {
	var buf []byte
	cur := false
	run := int64(0)
	for _, v := range values {
		if v == cur {
			run++
			continue
		}
		buf = varint.AppendUvarint(buf, uint64(run))
		cur = v
		run = 1
	}
	buf = varint.AppendUvarint(buf, uint64(run))
	return buf
}

// DecodeBoolean reverses EncodeBoolean.
func DecodeBoolean(buf []byte) ([]bool, error) {
	var out []bool
	cur := false
	pos := 0
	for pos < len(buf) {
		n, adv := varint.Uvarint(buf[pos:])
		if adv <= 0 {
			return nil, ErrTruncated
		}
		pos += adv
		for i := uint64(0); i < n; i++ {
			out = append(out, cur)
		}
		cur = !cur
	}
	return out, nil
}

// Group encodes a variable-length byte column as an RLE length column
// followed by the concatenated raw bytes (spec: "Group/valueLen/valueRaw").
func EncodeGroup(items [][]byte) (lengths []byte, raw []byte) {
	lens := make([]uint64, len(items))
	for i, it := range items {
		lens[i] = uint64(len(it))
		raw = append(raw, it...)
	}
	lengths = EncodeRLE(lens)
	return lengths, raw
}

// DecodeGroup reverses EncodeGroup.
func DecodeGroup(lengths, raw []byte) ([][]byte, error) {
	lens, err := DecodeRLE(lengths)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(lens))
	pos := 0
	for i, l := range lens {
		if pos+int(l) > len(raw) {
			return nil, ErrTruncated
		}
		out[i] = raw[pos: pos+int(l)]
		pos += int(l)
	}
	return out, nil
}
