package vm

import "math"

// binaryArith implements the ADD/SUB/MUL/DIV/MOD family: the
// number/number fast path applies apply directly; otherwise dispatch
// falls through to the direct-then-reverse operator-overload protocol.
// ADD additionally special-cases string-concat before either path, the
// one place the value model treats a built-in kind's binary operator
// as built-in behavior rather than routing it through __add__.
func (vm *VM) binaryArith(ov Overload, apply func(a, b float64) float64) bool {
	a, b := vm.peek2(), vm.peek()
	if a.IsNumber() && b.IsNumber() {
		vm.popN(2)
		vm.push(NumberVal(apply(a.AsNumber(), b.AsNumber())))
		return true
	}
	return vm.callBinaryOverload(ov)
}

func (vm *VM) opAdd() bool {
	a, b := vm.peek2(), vm.peek()
	if as, ok := a.obj.(*String); ok && a.IsObject() {
		if bs, ok := b.obj.(*String); ok && b.IsObject() {
			vm.popN(2)
			vm.push(vm.StringVal(as.chars + bs.chars))
			return true
		}
	}
	return vm.binaryArith(OvAdd, func(x, y float64) float64 { return x + y })
}

func (vm *VM) opSub() bool { return vm.binaryArith(OvSub, func(x, y float64) float64 { return x - y }) }
func (vm *VM) opMul() bool { return vm.binaryArith(OvMul, func(x, y float64) float64 { return x * y }) }
func (vm *VM) opDiv() bool { return vm.binaryArith(OvDiv, func(x, y float64) float64 { return x / y }) }
func (vm *VM) opMod() bool {
	return vm.binaryArith(OvMod, func(x, y float64) float64 { return math.Mod(x, y) })
}

// opPow is numeric-only: unlike the other arithmetic opcodes it has no
// operator-overload symbol at all, so a non-number operand is always
// a TypeException rather than a dispatch opportunity.
func (vm *VM) opPow() bool {
	a, b := vm.peek2(), vm.peek()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.Raise("TypeException", "Operator ** requires two Numbers")
	}
	vm.popN(2)
	vm.push(NumberVal(math.Pow(a.AsNumber(), b.AsNumber())))
	return true
}

// opNeg tries __neg__ for any operand that isn't already a number.
func (vm *VM) opNeg() bool {
	a := vm.peek()
	if a.IsNumber() {
		vm.pop()
		vm.push(NumberVal(-a.AsNumber()))
		return true
	}
	class := vm.getClass(a)
	m, ok := class.lookupMethod(overloadSymbols[OvNeg])
	if !ok {
		return vm.Raise("TypeException", "Operator unary- not supported by %s", class.Name)
	}
	return vm.invokeSync(m, 0)
}

func (vm *VM) opNot() bool {
	a := vm.pop()
	vm.push(BoolVal(a.Falsey()))
	return true
}

// opEq implements the built-in short-circuit: number/null/boolean
// compare structurally without ever consulting an overload. Any other
// left operand dispatches to __eq__ with no reverse fallback.
func (vm *VM) opEq() bool {
	a := vm.peek2()
	if a.IsNumber() || a.IsNull() || a.IsBool() {
		b := vm.peek()
		vm.popN(2)
		vm.push(BoolVal(rawEquals(a, b)))
		return true
	}
	class := vm.getClass(a)
	m, ok := class.lookupMethod(overloadSymbols[OvEq])
	if !ok {
		b := vm.peek()
		vm.popN(2)
		vm.push(BoolVal(rawEquals(a, b)))
		return true
	}
	return vm.invokeSync(m, 1)
}

func (vm *VM) binaryCompare(ov Overload, apply func(a, b float64) bool) bool {
	a, b := vm.peek2(), vm.peek()
	if a.IsNumber() && b.IsNumber() {
		vm.popN(2)
		vm.push(BoolVal(apply(a.AsNumber(), b.AsNumber())))
		return true
	}
	class := vm.getClass(a)
	m, ok := class.lookupMethod(overloadSymbols[ov])
	if !ok {
		return vm.Raise("TypeException", "Operator not supported between instances of %s and %s",
			class.Name, vm.getClass(b).Name)
	}
	return vm.invokeSync(m, 1)
}

func (vm *VM) opLt() bool { return vm.binaryCompare(OvLt, func(a, b float64) bool { return a < b }) }
func (vm *VM) opLe() bool { return vm.binaryCompare(OvLe, func(a, b float64) bool { return a <= b }) }
func (vm *VM) opGt() bool { return vm.binaryCompare(OvGt, func(a, b float64) bool { return a > b }) }
func (vm *VM) opGe() bool { return vm.binaryCompare(OvGe, func(a, b float64) bool { return a >= b }) }

// opIs implements `is`: the right operand must be a Class, and
// membership walks the superclass chain directly, never consulting
// __eq__ or any other overload.
func (vm *VM) opIs() bool {
	a, b := vm.peek2(), vm.peek()
	class, ok := b.obj.(*Class)
	if !b.IsObject() || !ok {
		return vm.Raise("TypeException", "Right operand of `is` must be a Class")
	}
	vm.popN(2)
	vm.push(BoolVal(vm.isInstance(a, class)))
	return true
}
