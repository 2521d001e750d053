// Package types defines the tagged scalar value union that sits at the
// boundary of the automerge core.
//
// Follows a tagged Value/ValueType pattern, extended with the scalar kinds
// automerge needs: distinct signed/unsigned integers, a millisecond
// timestamp, and a commutative counter.
package types

import "fmt"

// Kind identifies which scalar alternative a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindStr
	KindBytes
	KindInt
	KindUint
	KindF64
	KindTimestamp
	KindCounter
)

func (k Kind) String() string {
	switch k {
		case KindNull:
		return "null"
		case KindBool:
		return "boolean"
		case KindStr:
		return "str"
		case KindBytes:
		return "bytes"
		case KindInt:
		return "int"
		case KindUint:
		return "uint"
		case KindF64:
		return "f64"
		case KindTimestamp:
		return "timestamp"
		case KindCounter:
		return "counter"
		default:
		return "unknown"
	}
}

// Value is the tagged scalar union. Zero value is Null.
type Value struct {
	kind Kind
	boolVal bool
	intVal int64
	uintVal uint64
	f64Val float64
	strVal string
	bytes []byte
}

func Null() Value { return Value{kind: KindNull} }
func Bool(b bool) Value { return Value{kind: KindBool, boolVal: b} }
func Str(s string) Value { return Value{kind: KindStr, strVal: s} }
func Int(i int64) Value { return Value{kind: KindInt, intVal: i} }
func Uint(u uint64) Value { return Value{kind: KindUint, uintVal: u} }
func F64(f float64) Value { return Value{kind: KindF64, f64Val: f} }
func Timestamp(ms int64) Value { return Value{kind: KindTimestamp, intVal: ms} }
func Counter(i int64) Value { return Value{kind: KindCounter, intVal: i} }

func Bytes(b []byte) Value {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Value{kind: KindBytes, bytes: cp}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }
func (v Value) Bool() bool { return v.boolVal }
func (v Value) Str() string { return v.strVal }
func (v Value) Int() int64 { return v.intVal }
func (v Value) Uint() uint64 { return v.uintVal }
func (v Value) F64() float64 { return v.f64Val }

func (v Value) Bytes() []byte {
	if v.bytes == nil {
		return nil
	}
	cp := make([]byte, len(v.bytes))
	copy(cp, v.bytes)
	return cp
}

// Equal reports whether two values are structurally equal: same kind and
// same payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
		case KindNull:
		return true
		case KindBool:
		return v.boolVal == o.boolVal
		case KindStr:
		return v.strVal == o.strVal
		case KindBytes:
		return string(v.bytes) == string(o.bytes)
		case KindInt, KindTimestamp, KindCounter:
		return v.intVal == o.intVal
		case KindUint:
		return v.uintVal == o.uintVal
		case KindF64:
		return v.f64Val == o.f64Val
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
		case KindNull:
		return "null"
		case KindBool:
		return fmt.Sprintf("%t", v.boolVal)
		case KindStr:
		return v.strVal
		case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.bytes))
		case KindInt, KindTimestamp, KindCounter:
		return fmt.Sprintf("%d", v.intVal)
		case KindUint:
		return fmt.Sprintf("%d", v.uintVal)
		case KindF64:
		return fmt.Sprintf("%g", v.f64Val)
		default:
		return "?"
	}
}

// ObjType identifies a container kind.
type ObjType int

const (
	ObjTypeMap ObjType = iota
	ObjTypeList
	ObjTypeText
)

func (t ObjType) String() string {
	switch t {
		case ObjTypeMap:
		return "map"
		case ObjTypeList:
		return "list"
		case ObjTypeText:
		return "text"
		default:
		return "unknown"
	}
}
