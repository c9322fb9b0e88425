package vm

// Upvalue is a reference cell a closure captures. While the enclosing
// frame that owns the referenced local is still on the stack, the
// Upvalue is "open" and Location points at that stack slot; once the
// frame returns, closeUpvalues copies the value into Closed and flips
// the Location pointer to point at it, so every closure sharing this
// Upvalue keeps seeing the same cell.
type Upvalue struct {
	ObjHeader
	location *Value // points into vm.stack while open, into &closed while closed
	closed   Value
	stackIdx int  // index into vm.stack this upvalue tracks while open, for the sorted open list
	next     *Upvalue
}

func (u *Upvalue) get() Value  { return *u.location }
func (u *Upvalue) set(v Value) { *u.location = v }

// Closure pairs a Function with the upvalues it captured at creation
// time. Every callable value the evaluator actually invokes for
// user-defined code is a Closure, even top-level functions that
// capture nothing.
type Closure struct {
	ObjHeader
	Fn        *Function
	Upvalues  []*Upvalue
}

func (vm *VM) newClosure(fn *Function) *Closure {
	cl := &Closure{Fn: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	vm.track(cl, vm.FunctionClass)
	return cl
}

// captureUpvalue returns the open Upvalue for stack slot idx, reusing
// one already open at that slot so closures sharing a captured
// variable observe each other's writes. The open list is kept sorted
// by descending stack index, mirroring the original implementation, so
// closeUpvalues can walk it front-to-back and stop at the first entry
// below the closing watermark.
func (vm *VM) captureUpvalue(idx int) *Upvalue {
	var prev *Upvalue
	cur := vm.openUpvalues
	for cur != nil && cur.stackIdx > idx {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.stackIdx == idx {
		return cur
	}
	up := &Upvalue{stackIdx: idx, location: &vm.stack[idx]}
	vm.track(up, vm.ObjectClass)
	up.next = cur
	if prev == nil {
		vm.openUpvalues = up
	} else {
		prev.next = up
	}
	return up
}

// closeUpvalues closes every open upvalue whose tracked slot is at or
// above limit, copying its value out of the stack before that slot is
// reused or discarded by a return, a handler restore, or a block exit.
func (vm *VM) closeUpvalues(limit int) {
	for vm.openUpvalues != nil && vm.openUpvalues.stackIdx >= limit {
		up := vm.openUpvalues
		up.closed = *up.location
		up.location = &up.closed
		vm.openUpvalues = up.next
		up.next = nil
	}
}
