package vm

import "github.com/jstarvm/jstar/bytecode"

// asm is a tiny hand-assembler for bytecode, used throughout this
// package's tests to build Functions directly rather than going
// through a real compiler (which lives outside this module). It
// mirrors the shape of the reference CLI's own bytecode builders: emit
// opcodes and operands in source order, then patch jump targets once
// the final length is known.
type asm struct {
	code   []byte
	lines  []int32
	consts []Value
}

func newAsm() *asm { return &asm{} }

func (a *asm) op(op bytecode.Opcode) *asm {
	a.code = append(a.code, byte(op))
	a.lines = append(a.lines, 1)
	return a
}

func (a *asm) byte(b byte) *asm {
	a.code = append(a.code, b)
	a.lines = append(a.lines, 1)
	return a
}

func (a *asm) short(v uint16) *asm {
	a.code = append(a.code, byte(v>>8), byte(v))
	a.lines = append(a.lines, 1, 1)
	return a
}

// jump emits a two-byte placeholder and returns its position so a
// later call to patch can fill in the relative offset once the target
// is known.
func (a *asm) jump() int {
	pos := len(a.code)
	a.short(0)
	return pos
}

// patch writes a relative jump offset at pos (measured, like every
// jump-family opcode in this instruction set, from the byte
// immediately following the two-byte operand) so that execution lands
// at target.
func (a *asm) patch(pos, target int) {
	off := int16(target - (pos + 2))
	a.code[pos] = byte(uint16(off) >> 8)
	a.code[pos+1] = byte(uint16(off))
}

// here reports the offset the next emitted byte will land at.
func (a *asm) here() int { return len(a.code) }

// patchRaw writes off directly at pos as a signed 16-bit big-endian
// value, for the two opcodes (SETUP_EXCEPT, SETUP_ENSURE) whose jump
// target is measured from the byte just after the opcode rather than
// from just after its operands the way every other jump-family
// opcode's is — see their cases in run() for the arithmetic.
func (a *asm) patchRaw(pos int, off int) {
	v := int16(off)
	a.code[pos] = byte(uint16(v) >> 8)
	a.code[pos+1] = byte(uint16(v))
}

func (a *asm) constant(v Value) uint16 {
	a.consts = append(a.consts, v)
	return uint16(len(a.consts) - 1)
}

func (vm *VM) asmModule(name string) *Module {
	m := vm.newModule(name)
	return m
}

// buildFn turns the assembled code into a Function with the given
// calling convention, owned by mod (created fresh if nil).
func (vm *VM) buildFn(a *asm, info CallableInfo, mod *Module) *Function {
	if mod == nil {
		mod = vm.asmModule("<test>")
	}
	info.Module = mod
	return vm.newFunction(info, a.code, a.lines, a.consts, 0, nil)
}

func (vm *VM) buildClosure(a *asm, info CallableInfo) *Closure {
	fn := vm.buildFn(a, info, nil)
	return vm.newClosure(fn)
}

// runAsm assembles a zero-argument top-level function body and runs
// it to completion, returning its result the way Run does.
func (vm *VM) runAsm(a *asm) (Value, bool) {
	cl := vm.buildClosure(a, CallableInfo{Name: "<test>"})
	return vm.Run(cl, nil)
}
