package vm

import "github.com/jstarvm/jstar/bytecode"

// CallableInfo is the calling-convention metadata shared by Function
// and Native: how many declared arguments it takes, how many of those
// have defaults, whether it slurps a trailing vararg tuple, and which
// module it was defined in (used to resolve globals while it runs).
type CallableInfo struct {
	Name         string
	Module       *Module
	ArgsCount    int // total declared positional parameters ("most")
	DefaultCount int
	Defaults     []Value
	Vararg       bool
}

// Least returns the minimum number of arguments a call must supply.
func (c *CallableInfo) Least() int { return c.ArgsCount - c.DefaultCount }

// Function is a compiled function body: its bytecode, constant pool,
// and calling convention. Functions are never called directly — they
// are always wrapped in a Closure, even when they capture nothing, so
// the call protocol has one shape to deal with.
type Function struct {
	ObjHeader
	CallableInfo
	Code         []byte
	Lines        []int32 // Lines[i] is the source line for Code[i], used by StackTrace capture
	Consts       []Value // Consts[0] is reserved for methods: the frozen superclass at definition time
	UpvalueCount int
	UpvalueInfo  []UpvalueRef // parallel to the OP_CLOSURE operand list
}

// UpvalueRef tells OP_CLOSURE whether the captured variable lives in
// the enclosing frame's locals (FromLocal) or in the enclosing
// closure's own upvalue array.
type UpvalueRef struct {
	FromLocal bool
	Index     int
}

func (vm *VM) newFunction(info CallableInfo, code []byte, lines []int32, consts []Value, upvalCount int, upvalInfo []UpvalueRef) *Function {
	fn := &Function{
		CallableInfo: info,
		Code:         code,
		Lines:        lines,
		Consts:       consts,
		UpvalueCount: upvalCount,
		UpvalueInfo:  upvalInfo,
	}
	vm.track(fn, vm.FunctionClass)
	return fn
}

// NativeFn is a Go function backing a Native object. It receives the
// VM with its API stack window already set up (vm.Arg(0) is the first
// declared argument) and must leave exactly one return value on top of
// the stack before returning true, or have already called vm.Raise and
// returned false.
type NativeFn func(vm *VM) bool

// Native is a function implemented outside the language: a Go
// closure, or — via the foreign-function bridge — a remote gRPC method
// invoked dynamically through protobuf reflection.
type Native struct {
	ObjHeader
	CallableInfo
	Fn NativeFn
}

func (vm *VM) newNative(info CallableInfo, fn NativeFn) *Native {
	n := &Native{CallableInfo: info, Fn: fn}
	vm.track(n, vm.FunctionClass)
	return n
}

// readByte/readShort walk a function's bytecode using the frame's IP,
// matching the NEXT_CODE/NEXT_SHORT pattern of the original dispatch
// loop: one owning place that advances the instruction pointer.
func readByte(code []byte, ip *int) byte {
	b := code[*ip]
	*ip++
	return b
}

func readShort(code []byte, ip *int) uint16 {
	hi := code[*ip]
	lo := code[*ip+1]
	*ip += 2
	return uint16(hi)<<8 | uint16(lo)
}

func readOp(code []byte, ip *int) bytecode.Opcode {
	return bytecode.Opcode(readByte(code, ip))
}
