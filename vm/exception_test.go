package vm

import (
	"errors"
	"testing"

	"github.com/jstarvm/jstar/bytecode"
)

func TestRaiseSetsMessageTextAndClass(t *testing.T) {
	vm := NewVM(DefaultConfig())
	vm.Raise("NameException", "Name %s is not defined", "frob")
	exc := vm.pop()
	if !vm.isInstance(exc, vm.NameExceptionClass) {
		t.Fatalf("class = %s, want NameException", vm.getClass(exc).Name)
	}
	inst := exc.obj.(*Instance)
	msg := inst.Fields["messageText"].obj.(*String).chars
	if msg != "Name frob is not defined" {
		t.Errorf("messageText = %q, want %q", msg, "Name frob is not defined")
	}
}

func TestExceptionCtorSetsMessageText(t *testing.T) {
	// Exception.new(msg) must behave the same way Raise's internal
	// construction does, since `raise TypeException("boom")` compiles
	// to a call through this same ctor rather than through Raise.
	vm := NewVM(DefaultConfig())
	inst := vm.newInstance(vm.TypeExceptionClass)
	vm.push(ObjVal(inst))
	vm.push(vm.StringVal("boom"))
	vm.apiStackBase = vm.sp - 2
	ctor, ok := vm.TypeExceptionClass.lookupMethod("new")
	if !ok {
		t.Fatal("TypeException should inherit Exception's new ctor")
	}
	n := ctor.obj.(*Native)
	if !n.Fn(vm) {
		t.Fatal("ctor call failed")
	}
	ret := vm.pop()
	if ret.obj.(*Instance) != inst {
		t.Error("ctor should return the receiver unchanged")
	}
	if inst.Fields["messageText"].obj.(*String).chars != "boom" {
		t.Errorf("messageText = %v, want boom", inst.Fields["messageText"])
	}
}

func TestUnwindStackRestoresMatchingHandler(t *testing.T) {
	vm := NewVM(DefaultConfig())
	mod := vm.asmModule("<test>")
	fn := vm.buildFn(newAsm(), CallableInfo{Name: "<test>"}, mod)
	cl := vm.newClosure(fn)
	vm.push(ObjVal(cl))
	depth := vm.frameCount
	if !vm.callClosure(cl, 0) {
		t.Fatal("callClosure failed")
	}
	frame := vm.currentFrame()
	frame.pushHandler(HandlerExcept, vm.TypeExceptionClass, 77, 0)

	vm.Raise("TypeException", "boom")
	if !vm.unwindStack(depth) {
		t.Fatal("unwindStack should have found the installed handler")
	}
	if frame.IP != 77 {
		t.Errorf("frame.IP = %d, want 77 (handler address)", frame.IP)
	}
	cause := Cause(vm.pop().AsNumber())
	if cause != CauseExcept {
		t.Errorf("cause = %v, want CauseExcept", cause)
	}
	exc := vm.pop()
	if !vm.isInstance(exc, vm.TypeExceptionClass) {
		t.Errorf("resumed value isn't the TypeException instance: %v", exc)
	}
}

func TestUnwindStackSkipsNonMatchingHandler(t *testing.T) {
	vm := NewVM(DefaultConfig())
	mod := vm.asmModule("<test>")
	fn := vm.buildFn(newAsm(), CallableInfo{Name: "<test>"}, mod)
	cl := vm.newClosure(fn)
	vm.push(ObjVal(cl))
	depth := vm.frameCount
	if !vm.callClosure(cl, 0) {
		t.Fatal("callClosure failed")
	}
	frame := vm.currentFrame()
	frame.pushHandler(HandlerExcept, vm.NameExceptionClass, 77, 0)

	vm.Raise("TypeException", "boom")
	if vm.unwindStack(depth) {
		t.Fatal("unwindStack should not resume a handler whose class doesn't match")
	}
}

type failingImporter struct{}

func (failingImporter) Import(vm *VM, moduleName string) (*Function, error) {
	return nil, errors.New("no such module")
}

func TestImportFailureIsCatchable(t *testing.T) {
	// A failed OP_IMPORT must leave the ImportException on the stack
	// for the *current* frame's handler table to catch, rather than
	// unwinding straight out of run() the way a raw `return false`
	// used to.
	vm := NewVM(DefaultConfig())
	vm.Importer = failingImporter{}
	mod := vm.asmModule("<test>")

	a := newAsm()
	modName := a.constant(vm.StringVal("nope"))

	opcodePos := a.here()
	a.op(bytecode.OpSetupExcept)
	offPos := a.jump()
	classIdx := a.constant(ObjVal(vm.ImportExceptionClass))
	a.byte(byte(classIdx))

	a.op(bytecode.OpImport).short(modName)
	a.op(bytecode.OpPop) // would push the Module on success; never reached here
	a.op(bytecode.OpPopHandler)
	cOne := a.constant(NumberVal(1))
	a.op(bytecode.OpGetConst).short(cOne)
	a.op(bytecode.OpReturn)

	handlerAddr := a.here()
	a.patchRaw(offPos, handlerAddr-(opcodePos+1))
	a.op(bytecode.OpPop) // discard the cause marker
	a.op(bytecode.OpPop) // discard the caught exception instance
	cZero := a.constant(NumberVal(0))
	a.op(bytecode.OpGetConst).short(cZero)
	a.op(bytecode.OpReturn)

	fn := vm.buildFn(a, CallableInfo{Name: "<test>"}, mod)
	result, ok := vm.Run(vm.newClosure(fn), nil)
	if !ok {
		t.Fatalf("run failed, the import exception should have been caught: %v", result)
	}
	if result.AsNumber() != 0 {
		t.Errorf("result = %v, want 0 (the except branch)", result.AsNumber())
	}
}
