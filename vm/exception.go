package vm

// pushHandler installs a new entry at the top of the current frame's
// handler table, used by OP_SETUP_EXCEPT/OP_SETUP_ENSURE. Exceeding
// HandlerMax is a compiler invariant violation (too many nested
// try blocks in one function), not a recoverable runtime condition.
func (f *Frame) pushHandler(typ HandlerType, class *Class, address, savedSP int) {
	if f.HandlerCount == HandlerMax {
		panic("too many nested exception handlers in one frame")
	}
	f.Handlers[f.HandlerCount] = Handler{Type: typ, ExceptClass: class, Address: address, SavedSP: savedSP}
	f.HandlerCount++
}

func (f *Frame) popHandler() {
	f.HandlerCount--
}

// restoreHandler resumes execution at h's Address: any upvalue opened
// above the handler's saved stack height is closed (the locals that
// backed them are about to be discarded), the stack is truncated back
// to that height, and then the propagating value plus a Cause marker
// are pushed so the bytecode at Address (compiler-emitted, expects
// exactly this shape) can tell whether it resumed because of an
// exception or because a `return` is passing through an ensure block.
func (vm *VM) restoreHandler(f *Frame, h Handler, cause Cause, val Value) {
	f.IP = h.Address
	vm.closeUpvalues(h.SavedSP - 1)
	vm.sp = h.SavedSP
	vm.push(val)
	vm.push(NumberVal(float64(cause)))
}

// unwindStack is the exception propagation state machine: starting
// from the current frame, it walks outward looking for a handler.
// An except handler whose class matches the in-flight exception's
// class stops the unwind and resumes there. An ensure handler always
// stops the unwind too — on the way out, every ensure block in scope
// must run — but leaves the exception in flight via CauseExcept so
// that, if the ensure block falls through without re-raising, OP_END_TRY
// sees CauseExcept and resumes the unwind. A frame with no matching
// handler is popped entirely, recording it into the stack trace on the
// exception object first. If execution unwinds past depth (the frame
// count the calling run was entered at) with nothing left to catch it in
// this invocation, unwindStack returns false and the exception value
// is left on top of the stack for the caller to re-propagate.
func (vm *VM) unwindStack(depth int) bool {
	exc := vm.peek()

	for vm.frameCount > depth {
		f := &vm.frames[vm.frameCount-1]
		vm.recordTraceFrame(exc, f)

		for f.HandlerCount > 0 {
			h := f.Handlers[f.HandlerCount-1]
			f.HandlerCount--
			if h.Type == HandlerExcept && !vm.isInstance(exc, h.ExceptClass) {
				continue
			}
			vm.pop() // the exception value, about to be re-pushed by restoreHandler
			vm.restoreHandler(f, h, CauseExcept, exc)
			return true
		}

		vm.closeUpvalues(f.Base)
		vm.frameCount--
	}
	return false
}

// recordTraceFrame appends one row to the in-flight exception's
// StackTrace, naming the frame's function or empty string for a
// module's top-level body — FormatError renders that as <main>. raise
// is the one place that allocates the StackTrace itself, so that a
// re-raised exception starts from a clean trace rather than piling
// onto whatever an earlier raise of the same Instance left behind;
// the lazy allocation here covers every exception Instance unwound
// without going through raise, which includes each one Raise pushes
// for a failing opcode or call.
func (vm *VM) recordTraceFrame(exc Value, f *Frame) {
	inst, ok := exc.obj.(*Instance)
	if !ok {
		return
	}
	st, ok := inst.Fields["stacktrace"]
	var trace *StackTrace
	if !ok {
		trace = vm.newStackTrace()
		inst.Fields["stacktrace"] = ObjVal(trace)
	} else {
		trace, _ = st.obj.(*StackTrace)
	}
	if trace == nil {
		return
	}
	info := f.info()
	name := ""
	modName := ""
	if info != nil {
		name = info.Name
		if info.Module != nil {
			modName = info.Module.Name
		}
	}
	trace.Frames = append(trace.Frames, TraceFrame{Module: modName, Function: name, Line: f.Line})
}

// raise is OP_RAISE: the value on top of the stack must already be an
// exception Instance (the compiler only emits RAISE after evaluating a
// `raise` expression, which always constructs one). A fresh StackTrace
// is stamped onto it, overwriting any prior one — re-raising the same
// Instance (`except Exception e { ...; raise e }`, or raising one
// shared/global exception object twice) must not accumulate stale
// frames from an earlier raise underneath the new ones — and then
// control passes to unwindStack, which appends one record per frame it
// unwinds through.
func (vm *VM) raise(depth int) bool {
	exc := vm.peek()
	if !vm.isInstance(exc, vm.ExceptionClass) {
		vm.pop()
		return vm.Raise("TypeException", "Can only raise Exception instances")
	}
	if inst, ok := exc.obj.(*Instance); ok {
		inst.Fields["stacktrace"] = ObjVal(vm.newStackTrace())
	}
	return vm.unwindStack(depth)
}
