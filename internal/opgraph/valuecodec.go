package opgraph

import (
	"encoding/binary"
	"math"

	"automerge/internal/types"
	"automerge/internal/varint"
)

// value tags for the valLen/valRaw column.
const (
	tagNull = iota
	tagFalse
	tagTrue
	tagUint
	tagInt
	tagF64
	tagStr
	tagBytes
	tagCounter
	tagTimestamp
	tagObjType // non-standard extension: carries a Make op's container type
)

const tagBits = 4
const tagMask = (1 << tagBits) - 1

// encodeValLen packs a raw byte length and tag into the single valLen
// column value.
func encodeValLen(tag int, rawLen int) uint64 {
	return uint64(rawLen)<<tagBits | uint64(tag&tagMask)
}

func decodeValLen(packed uint64) (tag int, rawLen int) {
	return int(packed & tagMask), int(packed >> tagBits)
}

// encodeScalar returns the tag and raw bytes for a scalar Value.
func encodeScalar(v types.Value) (tag int, raw []byte) {
	switch v.Kind() {
		case types.KindNull:
		return tagNull, nil
		case types.KindBool:
		if v.Bool() {
			return tagTrue, nil
		}
		return tagFalse, nil
		case types.KindUint:
		return tagUint, varint.AppendUvarint(nil, v.Uint())
		case types.KindInt:
		return tagInt, varint.AppendVarint(nil, v.Int())
		case types.KindF64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v.F64()))
		return tagF64, buf[:]
		case types.KindStr:
		return tagStr, []byte(v.Str())
		case types.KindBytes:
		return tagBytes, v.Bytes()
		case types.KindCounter:
		return tagCounter, varint.AppendVarint(nil, v.Int())
		case types.KindTimestamp:
		return tagTimestamp, varint.AppendVarint(nil, v.Int())
		default:
		return tagNull, nil
	}
}

func decodeScalar(tag int, raw []byte) types.Value {
	switch tag {
		case tagNull:
		return types.Null()
		case tagFalse:
		return types.Bool(false)
		case tagTrue:
		return types.Bool(true)
		case tagUint:
		u, _ := varint.Uvarint(raw)
		return types.Uint(u)
		case tagInt:
		i, _ := varint.Varint(raw)
		return types.Int(i)
		case tagF64:
		if len(raw) < 8 {
			return types.F64(0)
		}
		return types.F64(math.Float64frombits(binary.LittleEndian.Uint64(raw)))
		case tagStr:
		return types.Str(string(raw))
		case tagBytes:
		return types.Bytes(raw)
		case tagCounter:
		i, _ := varint.Varint(raw)
		return types.Counter(i)
		case tagTimestamp:
		i, _ := varint.Varint(raw)
		return types.Timestamp(i)
		default:
		return types.Null()
	}
}

func encodeObjType(t types.ObjType) (tag int, raw []byte) {
	return tagObjType, []byte{byte(t)}
}

func decodeObjType(raw []byte) types.ObjType {
	if len(raw) < 1 {
		return types.ObjTypeMap
	}
	return types.ObjType(raw[0])
}
