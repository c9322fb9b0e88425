package vm

import "math"

// Kind tags the payload a Value actually holds. Using a small enum plus
// a union of fields, rather than NaN-boxing a raw uint64, trades eight
// bytes of padding for values that are never mistaken for pointers by
// accident — worth it here since nothing below reaches into unsafe
// memory to save the width.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindHandle
	KindObject
)

// Value is the tagged union every stack slot, local, global, field and
// constant holds. The zero Value is Null.
type Value struct {
	kind   Kind
	num    float64
	handle uintptr
	obj    Obj
}

// Null is the singular null value.
var Null = Value{kind: KindNull}

// True and False are the two boolean values.
var (
	True  = Value{kind: KindBool, num: 1}
	False = Value{kind: KindBool, num: 0}
)

func BoolVal(b bool) Value {
	if b {
		return True
	}
	return False
}

func NumberVal(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

func HandleVal(h uintptr) Value {
	return Value{kind: KindHandle, handle: h}
}

func ObjVal(o Obj) Value {
	if o == nil {
		return Null
	}
	return Value{kind: KindObject, obj: o}
}

func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsBool() bool   { return v.kind == KindBool }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsHandle() bool { return v.kind == KindHandle }
func (v Value) IsObject() bool { return v.kind == KindObject }

func (v Value) AsBool() bool      { return v.num != 0 }
func (v Value) AsNumber() float64 { return v.num }
func (v Value) AsHandle() uintptr { return v.handle }
func (v Value) AsObject() Obj     { return v.obj }

// IsInt reports whether the value is a number with no fractional part,
// used by opcodes (subscript indices, argument counts) that require an
// integral operand.
func (v Value) IsInt() bool {
	return v.kind == KindNumber && v.num == math.Trunc(v.num) && !math.IsInf(v.num, 0)
}

func (v Value) AsInt() int {
	return int(v.num)
}

// Falsey mirrors the language's truthiness rule: null and false are
// the only falsey values, everything else (including 0 and "") is
// truthy.
func (v Value) Falsey() bool {
	return v.IsNull() || (v.IsBool() && !v.AsBool())
}

// rawEquals implements the short-circuit structural equality the
// evaluator uses directly when the left operand is a number, null or
// boolean, bypassing any overload dispatch.
func rawEquals(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool, KindNumber:
		return a.num == b.num
	case KindHandle:
		return a.handle == b.handle
	case KindObject:
		return a.obj == b.obj
	}
	return false
}
