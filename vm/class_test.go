package vm

import (
	"testing"

	"github.com/jstarvm/jstar/bytecode"
)

func TestClassMethodDispatch(t *testing.T) {
	vm := NewVM(DefaultConfig())
	mod := vm.asmModule("<test>")

	methodAsm := newAsm()
	methodAsm.constant(Null) // reserved superclass slot
	suffix := methodAsm.constant(vm.StringVal(" hi"))
	methodAsm.op(bytecode.OpGetLocal).byte(1)
	methodAsm.op(bytecode.OpGetConst).short(suffix)
	methodAsm.op(bytecode.OpAdd)
	methodAsm.op(bytecode.OpReturn)
	methodFn := vm.buildFn(methodAsm, CallableInfo{Name: "greet", ArgsCount: 1}, mod)

	outer := newAsm()
	nameIdx := outer.constant(vm.StringVal("Greeter"))
	outer.op(bytecode.OpNewClass).short(nameIdx)
	fnIdx := outer.constant(ObjVal(methodFn))
	outer.op(bytecode.OpClosure).short(fnIdx)
	methodNameIdx := outer.constant(vm.StringVal("greet"))
	outer.op(bytecode.OpDefMethod).short(methodNameIdx)
	outer.op(bytecode.OpCall0)
	argIdx := outer.constant(vm.StringVal("World"))
	outer.op(bytecode.OpGetConst).short(argIdx)
	greetIdx := outer.constant(vm.StringVal("greet"))
	outer.op(bytecode.OpInvoke1).short(greetIdx)
	outer.op(bytecode.OpReturn)

	result, ok := vm.Run(vm.newClosure(vm.buildFn(outer, CallableInfo{Name: "<test>"}, mod)), nil)
	if !ok {
		t.Fatalf("run failed: %v (%s)", result, vm.getClass(result).Name)
	}
	s, isStr := result.obj.(*String)
	if !isStr || s.chars != "World hi" {
		t.Errorf("result = %v, want \"World hi\"", result)
	}
}

func TestSubclassCopiesDownMethods(t *testing.T) {
	vm := NewVM(DefaultConfig())

	base := vm.newClass("Base", vm.ObjectClass)
	info := CallableInfo{Name: "kind", ArgsCount: 0}
	base.defineMethod("kind", ObjVal(vm.newNative(info, func(vm *VM) bool {
		vm.push(vm.StringVal("base"))
		return true
	})))

	sub := vm.newClass("Sub", base)
	if _, ok := sub.lookupMethod("kind"); !ok {
		t.Fatal("subclass should have copied down base's method table")
	}

	// Overriding the method on Base after Sub was created must not
	// retroactively change what Sub sees (one-shot copy-down).
	base.defineMethod("kind", ObjVal(vm.newNative(info, func(vm *VM) bool {
		vm.push(vm.StringVal("overridden"))
		return true
	})))
	m, _ := sub.lookupMethod("kind")
	n := m.obj.(*Native)
	vm.push(ObjVal(vm.newInstance(sub)))
	vm.apiStackBase = vm.sp - 1
	if !n.Fn(vm) {
		t.Fatal("native call failed")
	}
	result := vm.pop()
	if result.obj.(*String).chars != "base" {
		t.Errorf("Sub.kind() = %v, want \"base\" (copy-down must be one-shot)", result)
	}
}

func TestBuiltinClassesNotSubclassable(t *testing.T) {
	vm := NewVM(DefaultConfig())
	a := newAsm()
	cls := a.constant(ObjVal(vm.NumberClass))
	nameIdx := a.constant(vm.StringVal("MyNumber"))
	a.op(bytecode.OpGetConst).short(cls)
	a.op(bytecode.OpNewSubclass).short(nameIdx)
	a.op(bytecode.OpReturn)

	result, ok := vm.runAsm(a)
	if ok {
		t.Fatalf("subclassing a built-in class should fail, got %v", result)
	}
	if !vm.isInstance(result, vm.TypeExceptionClass) {
		t.Errorf("result class = %v, want TypeException", vm.getClass(result).Name)
	}
}

func TestExceptionSubclassIsAllowed(t *testing.T) {
	vm := NewVM(DefaultConfig())
	a := newAsm()
	cls := a.constant(ObjVal(vm.TypeExceptionClass))
	nameIdx := a.constant(vm.StringVal("MyError"))
	a.op(bytecode.OpGetConst).short(cls)
	a.op(bytecode.OpNewSubclass).short(nameIdx)
	a.op(bytecode.OpReturn)

	result, ok := vm.runAsm(a)
	if !ok {
		t.Fatalf("subclassing an Exception kind should be allowed: %v", result)
	}
	sub, isClass := result.obj.(*Class)
	if !isClass || sub.Super != vm.TypeExceptionClass {
		t.Errorf("result = %v, want a Class subclassing TypeException", result)
	}
}
