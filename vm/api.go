package vm

// Arg and Receiver are how a Native reads its own call's API window.
// Arg(i) for i >= 0 addresses the i-th declared positional argument
// (0-indexed, receiver excluded); a negative i instead addresses the
// stack directly relative to its current top, i.e. Arg(-1) is whatever
// is currently on top of the stack — useful for a native that pushed
// intermediate values and wants to read one back before it's popped.
func (vm *VM) Arg(i int) Value {
	if i < 0 {
		return vm.stack[vm.sp+i]
	}
	return vm.stack[vm.apiStackBase+1+i]
}

// Receiver returns the `this` value the currently-running Native was
// invoked on.
func (vm *VM) Receiver() Value {
	return vm.stack[vm.apiStackBase]
}

// ArgCount reports how many positional arguments (not counting the
// receiver) are in the current native's window.
func (vm *VM) ArgCount() int {
	return vm.sp - vm.apiStackBase - 1
}

// Push/Pop/Peek expose the O(1) stack primitives to a Native, which is
// otherwise only able to read its own window via Arg/Receiver; a
// native that needs to call back into the VM (e.g. to invoke a
// callback argument) pushes the callee and its arguments itself before
// calling vm.CallValue.
func (vm *VM) Push(v Value)  { vm.push(v) }
func (vm *VM) Pop() Value    { return vm.pop() }
func (vm *VM) Peek() Value   { return vm.peek() }

// CallValue is the public entry point a Native uses to call back into
// the language: callee and argc positional arguments must already be
// on top of the stack, in call order, with callee below them. If
// callee is a Closure this only pushes its frame — a Native is never
// itself re-entered from the dispatch loop, so it must call Invoke
// instead whenever it needs the callee's result before it can
// continue (a callback argument, an overload it wants to drive
// itself); CallValue alone is only safe when callee is known to be a
// Native, whose call.go path always runs to completion synchronously.
func (vm *VM) CallValue(callee Value, argc int) bool {
	return vm.callValue(callee, argc)
}

// Invoke calls callee with argc arguments already on the stack (same
// calling convention as CallValue) and, unlike CallValue, always
// drives it through to completion before returning — safe to use from
// a Native regardless of whether callee turns out to be a Closure or a
// Native.
func (vm *VM) Invoke(callee Value, argc int) bool {
	return vm.invokeSync(callee, argc)
}

// Buffer is a growable byte buffer a Native can use to build a string
// efficiently before it becomes immutable: repeated Append calls are
// amortized, and Push turns the accumulated bytes into an interned
// String in one step, mirroring JStarBuffer/jsrBufferPush.
type Buffer struct {
	vm   *VM
	data []byte
}

func NewBuffer(vm *VM) *Buffer {
	return &Buffer{vm: vm}
}

func (b *Buffer) Append(s string) *Buffer {
	b.data = append(b.data, s...)
	return b
}

func (b *Buffer) AppendByte(c byte) *Buffer {
	b.data = append(b.data, c)
	return b
}

func (b *Buffer) Len() int { return len(b.data) }

func (b *Buffer) Clear() { b.data = b.data[:0] }

// Push interns the buffer's current contents as a String and pushes it
// onto the VM stack. The buffer may be reused afterward via Clear.
func (b *Buffer) Push() {
	b.vm.push(b.vm.StringVal(string(b.data)))
}
