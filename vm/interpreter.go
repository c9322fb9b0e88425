package vm

import (
	"github.com/jstarvm/jstar/bytecode"
)

// Run executes closure with the given arguments on a fresh top-level
// call, returning the final result or false if an exception escaped
// unhandled (in which case the returned Value is the exception
// Instance, popped off the stack, for the caller to format with
// FormatError).
func (vm *VM) Run(closure *Closure, args []Value) (Value, bool) {
	vm.push(ObjVal(closure))
	for _, a := range args {
		vm.push(a)
	}
	depth := vm.frameCount
	if !vm.callClosure(closure, len(args)) {
		exc := vm.pop()
		vm.reportUnhandled(exc)
		return exc, false
	}
	if !vm.run(depth) {
		exc := vm.pop()
		vm.reportUnhandled(exc)
		return exc, false
	}
	return vm.pop(), true
}

// reportUnhandled hands an exception that escaped Run entirely to the
// two optional collaborators configured for postmortem inspection: the
// ErrorCallback gets the same three-part rendering FormatError
// produces, and the StackTraceRecorder (if any) gets the raw frames.
func (vm *VM) reportUnhandled(exc Value) {
	inst, ok := exc.obj.(*Instance)
	if !ok {
		return
	}
	kind := vm.getClass(exc).Name
	msg := ""
	if mt, ok := inst.Fields["messageText"]; ok {
		if s, ok := mt.obj.(*String); ok {
			msg = s.chars
		}
	}
	var trace *StackTrace
	if st, ok := inst.Fields["stacktrace"]; ok {
		trace, _ = st.obj.(*StackTrace)
	}
	module, line := "<unknown>", 0
	if trace != nil && len(trace.Frames) > 0 {
		module, line = trace.Frames[0].Module, trace.Frames[0].Line
	}
	if vm.ErrorCallback != nil {
		vm.ErrorCallback(vm, kind, module, line, msg, trace)
	}
	if vm.TraceSinkW != nil && trace != nil {
		vm.TraceSinkW.Record(vm.SessionID.String(), module, kind, trace.Frames)
	}
}

// run is the dispatch loop: a tight switch over the current
// instruction, re-entered for every opcode, exited only when the
// frame count returns to depth (a normal return all the way back out
// of the call that entered this invocation) or an exception unwinds
// past depth with nothing left in this invocation to catch it. Using a
// switch rather than a table of computed-goto labels is the
// behaviorally-equivalent fallback strategy: Go has no first-class
// goto-to-a-runtime-computed-address, so the "direct-threaded" and
// "switch" dispatch strategies collapse to the same code path here —
// nothing about the switch is observable from the language's point of
// view, which is all the design note actually requires.
func (vm *VM) run(depth int) bool {
	frame := &vm.frames[vm.frameCount-1]

	for {
		cl := frame.closure()
		if cl == nil {
			// A Native on top: it already ran to completion inside
			// callNative, which popped its own frame. We should never
			// dispatch into a native frame's bytecode.
			panic("run: native frame reached dispatch loop")
		}
		code := cl.Fn.Code

		op := readOp(code, &frame.IP)
		vm.opcodeHist[op]++

		var ok bool
		switch op {
		case bytecode.OpPop:
			vm.pop()
			continue
		case bytecode.OpDup:
			vm.push(vm.peek())
			continue
		case bytecode.OpNull:
			vm.push(Null)
			continue

		case bytecode.OpGetConst:
			idx := readShort(code, &frame.IP)
			vm.push(cl.Fn.Consts[idx])
			continue
		case bytecode.OpGetLocal:
			idx := int(readByte(code, &frame.IP))
			vm.push(vm.stack[frame.Base+idx])
			continue
		case bytecode.OpSetLocal:
			idx := int(readByte(code, &frame.IP))
			vm.stack[frame.Base+idx] = vm.peek()
			continue
		case bytecode.OpGetUpvalue:
			idx := int(readByte(code, &frame.IP))
			vm.push(cl.Upvalues[idx].get())
			continue
		case bytecode.OpSetUpvalue:
			idx := int(readByte(code, &frame.IP))
			cl.Upvalues[idx].set(vm.peek())
			continue
		case bytecode.OpGetGlobal:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			v, found := vm.Module.Globals[name]
			if !found {
				v, found = vm.Globals[name]
			}
			if !found {
				ok = vm.Raise("NameException", "Name %s is not defined", name)
				break
			}
			vm.push(v)
			continue
		case bytecode.OpSetGlobal:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			if _, found := vm.Module.Globals[name]; !found {
				ok = vm.Raise("NameException", "Name %s is not defined", name)
				break
			}
			vm.Module.Globals[name] = vm.peek()
			continue
		case bytecode.OpDefineGlobal:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			vm.Module.Globals[name] = vm.pop()
			continue

		case bytecode.OpAdd:
			ok = vm.opAdd()
		case bytecode.OpSub:
			ok = vm.opSub()
		case bytecode.OpMul:
			ok = vm.opMul()
		case bytecode.OpDiv:
			ok = vm.opDiv()
		case bytecode.OpMod:
			ok = vm.opMod()
		case bytecode.OpPow:
			ok = vm.opPow()
		case bytecode.OpNeg:
			ok = vm.opNeg()
		case bytecode.OpNot:
			ok = vm.opNot()
		case bytecode.OpEq:
			ok = vm.opEq()
		case bytecode.OpLt:
			ok = vm.opLt()
		case bytecode.OpLe:
			ok = vm.opLe()
		case bytecode.OpGt:
			ok = vm.opGt()
		case bytecode.OpGe:
			ok = vm.opGe()
		case bytecode.OpIs:
			ok = vm.opIs()

		case bytecode.OpGetField:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			recv := vm.pop()
			v, found := vm.getFieldFromValue(recv, name)
			if !found {
				ok = vm.Raise("FieldException", "Object %s has no field or method %s", vm.getClass(recv).Name, name)
				break
			}
			vm.push(v)
			continue
		case bytecode.OpSetField:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			val := vm.pop()
			recv := vm.pop()
			ok = vm.setFieldOfValue(recv, name, val)
			if ok {
				vm.push(val)
				continue
			}
		case bytecode.OpSubscrGet:
			idx := vm.pop()
			recv := vm.pop()
			ok = vm.getSubscriptOfValue(recv, idx)
		case bytecode.OpSubscrSet:
			val := vm.pop()
			idx := vm.pop()
			recv := vm.pop()
			ok = vm.setSubscriptOfValue(recv, idx, val)

		case bytecode.OpJump:
			off := int16(readShort(code, &frame.IP))
			frame.IP += int(off)
			continue
		case bytecode.OpJumpF:
			off := int16(readShort(code, &frame.IP))
			if vm.pop().Falsey() {
				frame.IP += int(off)
			}
			continue
		case bytecode.OpJumpT:
			off := int16(readShort(code, &frame.IP))
			if !vm.pop().Falsey() {
				frame.IP += int(off)
			}
			continue

		case bytecode.OpForIter:
			off := int16(readShort(code, &frame.IP))
			ok = vm.forIter(off)
		case bytecode.OpForNext:
			off := int16(readShort(code, &frame.IP))
			ok = vm.forNext(off)

		case bytecode.OpCall:
			argc := int(readByte(code, &frame.IP))
			ok = vm.callValue(vm.peekN(argc), argc)
		case bytecode.OpCall0, bytecode.OpCall1, bytecode.OpCall2, bytecode.OpCall3, bytecode.OpCall4,
			bytecode.OpCall5, bytecode.OpCall6, bytecode.OpCall7, bytecode.OpCall8, bytecode.OpCall9, bytecode.OpCall10:
			argc := int(op - bytecode.OpCall0)
			ok = vm.callValue(vm.peekN(argc), argc)

		case bytecode.OpInvoke:
			idx := readShort(code, &frame.IP)
			argc := int(readByte(code, &frame.IP))
			name := cl.Fn.Consts[idx].obj.(*String).chars
			ok = vm.invokeValue(name, argc)
		case bytecode.OpInvoke0, bytecode.OpInvoke1, bytecode.OpInvoke2, bytecode.OpInvoke3, bytecode.OpInvoke4,
			bytecode.OpInvoke5, bytecode.OpInvoke6, bytecode.OpInvoke7, bytecode.OpInvoke8, bytecode.OpInvoke9, bytecode.OpInvoke10:
			idx := readShort(code, &frame.IP)
			argc := int(op - bytecode.OpInvoke0)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			ok = vm.invokeValue(name, argc)

		case bytecode.OpSuper:
			idx := readShort(code, &frame.IP)
			argc := int(readByte(code, &frame.IP))
			name := cl.Fn.Consts[idx].obj.(*String).chars
			ok = vm.invokeSuper(cl, name, argc)
		case bytecode.OpSuper0, bytecode.OpSuper1, bytecode.OpSuper2, bytecode.OpSuper3, bytecode.OpSuper4,
			bytecode.OpSuper5, bytecode.OpSuper6, bytecode.OpSuper7, bytecode.OpSuper8, bytecode.OpSuper9, bytecode.OpSuper10:
			idx := readShort(code, &frame.IP)
			argc := int(op - bytecode.OpSuper0)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			ok = vm.invokeSuper(cl, name, argc)
		case bytecode.OpSuperBind:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			super, _ := cl.Fn.Consts[0].obj.(*Class)
			recv := vm.pop()
			if super == nil {
				ok = vm.Raise("MethodException", "no superclass bound for %s", cl.Fn.Name)
				break
			}
			bm, found := vm.bindMethod(recv, super, name)
			if !found {
				ok = vm.Raise("MethodException", "Method %s.%s() doesn't exist", super.Name, name)
				break
			}
			vm.push(bm)
			continue

		case bytecode.OpNewList:
			l := vm.newList(0)
			vm.push(ObjVal(l))
			continue
		case bytecode.OpAppendList:
			v := vm.pop()
			l := vm.peek().obj.(*List)
			l.Append(v)
			continue
		case bytecode.OpNewTuple:
			n := int(readShort(code, &frame.IP))
			t := vm.newTuple(n)
			for i := n - 1; i >= 0; i-- {
				t.Items[i] = vm.pop()
			}
			vm.push(ObjVal(t))
			continue
		case bytecode.OpNewTable:
			vm.push(ObjVal(vm.newTable()))
			continue
		case bytecode.OpUnpack:
			n := int(readByte(code, &frame.IP))
			ok = vm.unpack(n)
			if ok {
				continue
			}

		case bytecode.OpNewClass:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			vm.push(ObjVal(vm.newClass(name, vm.ObjectClass)))
			continue
		case bytecode.OpNewSubclass:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			superVal := vm.pop()
			super, isClass := superVal.obj.(*Class)
			if !superVal.IsObject() || !isClass {
				ok = vm.Raise("TypeException", "superclass must be a Class")
				break
			}
			if vm.isBuiltinClass(super) {
				ok = vm.Raise("TypeException", "cannot subclass built-in class %s", super.Name)
				break
			}
			vm.push(ObjVal(vm.newClass(name, super)))
			continue
		case bytecode.OpDefMethod:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			method := vm.pop()
			class := vm.peek().obj.(*Class)
			if mc, isCl := method.obj.(*Closure); isCl {
				mc.Fn.Consts[0] = ObjVal(class.Super)
			}
			class.defineMethod(name, method)
			continue
		case bytecode.OpNatMethod:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			class := vm.peek().obj.(*Class)
			fn, found := vm.resolveNative(vm.Module.Name, class, name)
			if !found {
				ok = vm.Raise("MethodException", "no native registered for %s.%s", class.Name, name)
				break
			}
			native := vm.newNative(CallableInfo{Name: name, Module: vm.Module}, fn)
			class.defineMethod(name, ObjVal(native))
			continue
		case bytecode.OpNative:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			fn, found := vm.resolveNative(vm.Module.Name, nil, name)
			if !found {
				ok = vm.Raise("NameException", "no native registered for %s", name)
				break
			}
			native := vm.newNative(CallableInfo{Name: name, Module: vm.Module}, fn)
			vm.push(ObjVal(native))
			continue

		case bytecode.OpClosure:
			idx := readShort(code, &frame.IP)
			fn := cl.Fn.Consts[idx].obj.(*Function)
			closure := vm.newClosure(fn)
			for i := 0; i < fn.UpvalueCount; i++ {
				ref := fn.UpvalueInfo[i]
				if ref.FromLocal {
					closure.Upvalues[i] = vm.captureUpvalue(frame.Base + ref.Index)
				} else {
					closure.Upvalues[i] = cl.Upvalues[ref.Index]
				}
			}
			vm.push(ObjVal(closure))
			continue
		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()
			continue

		case bytecode.OpSetupExcept:
			off := int(int16(readShort(code, &frame.IP)))
			idx := int(readByte(code, &frame.IP))
			class := cl.Fn.Consts[idx].obj.(*Class)
			frame.pushHandler(HandlerExcept, class, frame.IP+off-3, vm.sp)
			continue
		case bytecode.OpSetupEnsure:
			off := int(int16(readShort(code, &frame.IP)))
			frame.pushHandler(HandlerEnsure, nil, frame.IP+off-2, vm.sp)
			continue
		case bytecode.OpPopHandler:
			frame.popHandler()
			continue
		case bytecode.OpEndTry:
			if vm.peek2().IsNull() {
				vm.popN(2)
				continue
			}
			cause := Cause(vm.pop().AsNumber())
			switch cause {
			case CauseExcept:
				if !vm.unwindStack(depth) {
					return false
				}
				frame = &vm.frames[vm.frameCount-1]
				continue
			case CauseReturn:
				var done bool
				frame, done, ok = vm.handleReturn(frame, depth)
				if done {
					return ok
				}
				continue
			}
		case bytecode.OpRaise:
			if !vm.raise(depth) {
				return false
			}
			frame = &vm.frames[vm.frameCount-1]
			continue

		case bytecode.OpReturn:
			var done bool
			frame, done, ok = vm.handleReturn(frame, depth)
			if done {
				return ok
			}
			continue

		case bytecode.OpImport:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			mod, found := vm.importModule(name)
			if !found {
				ok = false
				break
			}
			if !vm.runModuleBody(mod) {
				ok = false
				break
			}
			vm.push(ObjVal(mod))
		case bytecode.OpImportAs:
			idx := readShort(code, &frame.IP)
			asIdx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			asName := cl.Fn.Consts[asIdx].obj.(*String).chars
			mod, found := vm.importModule(name)
			if !found {
				ok = false
				break
			}
			if !vm.runModuleBody(mod) {
				ok = false
				break
			}
			vm.Module.Globals[asName] = ObjVal(mod)
		case bytecode.OpImportFrom:
			idx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[idx].obj.(*String).chars
			mod, found := vm.importModule(name)
			if !found {
				ok = false
				break
			}
			if !vm.runModuleBody(mod) {
				ok = false
				break
			}
			vm.push(ObjVal(mod))
		case bytecode.OpImportName:
			nameIdx := readShort(code, &frame.IP)
			asIdx := readShort(code, &frame.IP)
			name := cl.Fn.Consts[nameIdx].obj.(*String).chars
			mod := vm.peek().obj.(*Module)
			if name == "*" {
				vm.importAllNames(mod, vm.Module)
				continue
			}
			v, found := mod.Globals[name]
			if !found {
				ok = vm.Raise("ImportException", "cannot import name %s from module %s", name, mod.Name)
				break
			}
			asName := cl.Fn.Consts[asIdx].obj.(*String).chars
			vm.Module.Globals[asName] = v
			continue

		default:
			panic("unknown opcode")
		}

		if !ok {
			if !vm.unwindStack(depth) {
				return false
			}
		}
		// Any opcode reaching here may have driven a nested call to
		// completion (an overload, a subscript, a module body) that
		// can have grown vm.frames and left frame pointing at a stale
		// backing array even when frameCount itself nets out unchanged.
		frame = &vm.frames[vm.frameCount-1]
	}
}

// handleReturn processes a function return through any outstanding
// ensure handlers before actually popping the frame, matching
// OP_RETURN's "scan handlers top-down before returning" rule: the
// first ensure handler found resumes the same frame at its Address
// instead of unwinding, with CauseReturn telling the ensure block's
// compiled epilogue to re-enter this same logic once it falls through.
func (vm *VM) handleReturn(frame *Frame, depth int) (*Frame, bool, bool) {
	ret := vm.pop()
	for frame.HandlerCount > 0 {
		h := frame.Handlers[frame.HandlerCount-1]
		frame.HandlerCount--
		if h.Type == HandlerEnsure {
			vm.restoreHandler(frame, h, CauseReturn, ret)
			return frame, false, true
		}
	}
	vm.closeUpvalues(frame.Base)
	vm.sp = frame.Base
	vm.push(ret)
	vm.frameCount--
	if vm.frameCount == depth {
		return nil, true, true
	}
	next := &vm.frames[vm.frameCount-1]
	vm.Module = vm.moduleOf(next.Callable)
	return next, false, true
}

// invokeSuper looks up name starting from the method's own frozen
// superclass (cl.Fn.Consts[0], set by OP_DEF_METHOD) rather than the
// receiver's dynamic class, implementing `super.method(...)`.
func (vm *VM) invokeSuper(cl *Closure, name string, argc int) bool {
	super, ok := cl.Fn.Consts[0].obj.(*Class)
	if !ok || super == nil {
		return vm.Raise("MethodException", "no superclass bound for %s", cl.Fn.Name)
	}
	m, found := super.lookupMethod(name)
	if !found {
		return vm.Raise("MethodException", "Method %s.%s() doesn't exist", super.Name, name)
	}
	return vm.callValue(m, argc)
}

// unpack pops a List or Tuple and pushes exactly n of its elements in
// order, raising if the count doesn't match — the backing operation
// for multiple-assignment-from-sequence (`a, b = pair`).
func (vm *VM) unpack(n int) bool {
	v := vm.pop()
	var items []Value
	switch o := v.obj.(type) {
	case *List:
		items = o.Items
	case *Tuple:
		items = o.Items
	default:
		return vm.Raise("TypeException", "can only unpack a List or Tuple")
	}
	if len(items) != n {
		return vm.Raise("TypeException", "cannot unpack %d values into %d targets", len(items), n)
	}
	for _, it := range items {
		vm.push(it)
	}
	return true
}

// forIter advances the iteration state: the stack holds the persistent
// (iterable, state) pair for the loop, and forIter replaces state with
// the result of calling iterable.__iter__(state) — the duplicate-and-
// invoke described in the iterator protocol. A falsey result means
// the iterable (or the state it was just handed) has nothing left to
// offer, so the loop body is skipped by jumping forward by off,
// leaving the pair on the stack for the two POPs at the jump target.
// The frame whose IP gets the jump is looked up fresh after the call
// rather than taken from the caller, since invokeSync can reallocate
// vm.frames while driving __iter__ to completion.
func (vm *VM) forIter(off int16) bool {
	frameIdx := vm.frameCount - 1
	iterable := vm.peek2()
	state := vm.peek()
	class := vm.getClass(iterable)
	m, found := class.lookupMethod(vm.iterName)
	if !found {
		return vm.Raise("MethodException", "Object %s is not iterable", class.Name)
	}
	vm.push(iterable)
	vm.push(state)
	if !vm.invokeSync(m, 1) {
		return false
	}
	newState := vm.pop()
	vm.stack[vm.sp-1] = newState
	if newState.Falsey() {
		vm.frames[frameIdx].IP += int(off)
	}
	return true
}

// forNext binds the next loop value: it re-tests the current state for
// truthiness (the same test forIter already performed, since a user
// __iter__ may hand back any falsey sentinel, not just Null — "
// consumers never inspect its type") and, if still truthy, calls
// iterable.__next__(state), leaving the returned value on the stack
// for the loop body. A falsey state instead jumps forward by off,
// leaving the (iterable, state) pair on the stack for the two POPs at
// the jump target, exactly like forIter's own termination path.
func (vm *VM) forNext(off int16) bool {
	frameIdx := vm.frameCount - 1
	iterable := vm.peek2()
	state := vm.peek()
	if state.Falsey() {
		vm.frames[frameIdx].IP += int(off)
		return true
	}
	class := vm.getClass(iterable)
	m, found := class.lookupMethod(vm.nextName)
	if !found {
		return vm.Raise("MethodException", "Object %s is not an iterator", class.Name)
	}
	vm.push(iterable)
	vm.push(state)
	return vm.invokeSync(m, 1)
}
