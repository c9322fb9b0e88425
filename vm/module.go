package vm

// Module is a compiled-and-run-once namespace: it owns a global
// variable table, the Function that is its top-level body, and, once
// executed, stays cached in vm.modules under its name so a later
// import of the same name is a table lookup instead of a second run of
// the initializer (see import.go).
type Module struct {
	ObjHeader
	Name    string
	Globals map[string]Value
	Body    *Function // nil once the body has finished executing
	natives map[string]NativeFn
}

func (vm *VM) newModule(name string) *Module {
	m := &Module{Name: name, Globals: make(map[string]Value), natives: make(map[string]NativeFn)}
	vm.track(m, vm.ModuleClass)
	return m
}

// BoundMethod pairs a receiver with one of its class's methods,
// produced whenever a method is referenced as a value rather than
// called directly (`obj.method` without a following call), and by
// OP_SUPER_BIND.
type BoundMethod struct {
	ObjHeader
	Receiver Value
	Method   Value // *Closure or *Native
}

func (vm *VM) newBoundMethod(receiver, method Value) *BoundMethod {
	bm := &BoundMethod{Receiver: receiver, Method: method}
	vm.track(bm, vm.FunctionClass)
	return bm
}

// StackTrace is the immutable record OP_RAISE and unwindStack build as
// an exception propagates: one Frame row per call-frame that was on
// the stack at the moment the exception was raised, innermost first.
type StackTrace struct {
	ObjHeader
	Frames []TraceFrame
}

type TraceFrame struct {
	Module   string
	Function string
	Line     int
}

func (vm *VM) newStackTrace() *StackTrace {
	st := &StackTrace{}
	vm.track(st, vm.StackTraceClass)
	return st
}
