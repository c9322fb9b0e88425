package vm

// callValue is the single entry point every CALL/INVOKE/SUPER opcode
// and every collaborator callback funnels through. argc positional
// arguments are already on the stack above callee itself (slot
// sp-argc-1 holds callee; the BoundMethod and Class cases overwrite it
// with the receiver, while a Closure or Native is called with whatever
// that slot already holds).
func (vm *VM) callValue(callee Value, argc int) bool {
	if callee.IsObject() {
		switch c := callee.obj.(type) {
		case *Closure:
			// The slot at sp-argc-1 already holds whatever this call's
			// receiver should be: the callee function itself for a
			// plain call, or the method's receiver for an INVOKE/
			// overload dispatch that placed it there before calling in.
			return vm.callClosure(c, argc)
		case *Native:
			return vm.callNative(c, argc)
		case *BoundMethod:
			vm.stack[vm.sp-argc-1] = c.Receiver
			return vm.callValue(c.Method, argc)
		case *Class:
			return vm.callClass(c, argc)
		}
	}
	return vm.Raise("TypeException", "Object %s is not callable", vm.getClass(callee).Name)
}

func (vm *VM) callClosure(cl *Closure, argc int) bool {
	if vm.frameCount+1 >= RecursionLimit {
		return vm.Raise("StackOverflowException", "stack overflow")
	}
	if !vm.adjustArguments(&cl.Fn.CallableInfo, argc) {
		return false
	}
	vm.reserveStack(MaxLocals)
	frame := vm.getFrame(cl.Fn.ArgsCount, cl.Fn.Vararg)
	frame.Callable = cl
	vm.Module = cl.Fn.Module
	return true
}

func (vm *VM) callNative(n *Native, argc int) bool {
	if vm.frameCount+1 >= RecursionLimit {
		return vm.Raise("StackOverflowException", "stack overflow")
	}
	if !vm.adjustArguments(&n.CallableInfo, argc) {
		return false
	}
	vm.reserveStack(MinNativeStack)
	frame := vm.getFrame(n.ArgsCount, n.Vararg)
	frame.Callable = n
	frame.IP = -1

	savedModule := vm.Module
	savedAPIBase := vm.apiStackBase
	vm.Module = n.Module
	vm.apiStackBase = frame.Base

	ok := n.Fn(vm)

	if !ok {
		vm.Module = savedModule
		vm.apiStackBase = savedAPIBase
		return false
	}

	ret := vm.pop()
	vm.frameCount--
	vm.sp = frame.Base
	vm.Module = savedModule
	vm.apiStackBase = savedAPIBase
	vm.push(ret)
	return true
}

// callClass implements `new`: for a non-instantiable built-in (Object,
// Number, Class, ...) it's always a TypeException. Otherwise the
// receiver slot is set to either a fresh Instance, or Null for an
// instantiable built-in (List/Tuple/Table/String) whose registered
// constructor native is responsible for replacing it. If the class (or
// one it inherited from) defines a ctor method, that method is called
// with the same arguments; otherwise the call must have supplied zero
// arguments.
func (vm *VM) callClass(cls *Class, argc int) bool {
	if vm.isNonInstantiableBuiltin(cls) {
		return vm.Raise("TypeException", "class %s can't be directly instantiated", cls.Name)
	}
	if vm.isInstantiableBuiltin(cls) {
		vm.stack[vm.sp-argc-1] = Null
	} else {
		vm.stack[vm.sp-argc-1] = ObjVal(vm.newInstance(cls))
	}
	if ctor, ok := cls.lookupMethod(vm.ctorName); ok {
		return vm.callValue(ctor, argc)
	}
	if argc != 0 {
		return vm.Raise("TypeException", "Function %s.new() takes 0 arguments, %d supplied", cls.Name, argc)
	}
	return true
}

// invokeSync calls callee with argc arguments already on the stack and
// drives execution through to completion before returning, regardless
// of whether callee turns out to be a Native (which callValue already
// resolves synchronously) or a Closure (which callValue only pushes a
// frame for — invokeSync recursively re-enters the dispatch loop via
// run until that frame, and anything it calls in turn, unwinds back to
// the level it started at). Every composite opcode that needs its
// operand's overload result immediately — arithmetic, comparison,
// subscript access, the iterator protocol — calls through here rather
// than through callValue directly.
func (vm *VM) invokeSync(callee Value, argc int) bool {
	depth := vm.frameCount
	if !vm.callValue(callee, argc) {
		return false
	}
	if vm.frameCount == depth {
		return true
	}
	return vm.run(depth)
}

// adjustArguments validates argc against c's declared arity and
// rewrites the stack in place so that, on return, exactly
// c.ArgsCount (+1 for a trailing vararg Tuple) values sit above the
// callee, regardless of how many defaults the caller actually
// supplied: missing trailing defaults are pushed from c.Defaults, and
// any arguments beyond c.ArgsCount are packed into a trailing Tuple
// when c.Vararg is set.
func (vm *VM) adjustArguments(c *CallableInfo, argc int) bool {
	most := c.ArgsCount
	least := c.Least()
	if !c.Vararg {
		if c.DefaultCount == 0 && argc != most {
			return vm.argumentError(c, most, argc, "exactly")
		}
		if argc > most {
			return vm.argumentError(c, most, argc, "at most")
		}
	}
	if argc < least {
		return vm.argumentError(c, least, argc, "at least")
	}
	for i := argc - least; i < c.DefaultCount; i++ {
		vm.push(c.Defaults[i])
	}
	if c.Vararg {
		extra := 0
		if argc > most {
			extra = argc - most
		}
		vm.packVarargs(extra)
	}
	return true
}

func (vm *VM) argumentError(c *CallableInfo, want, got int, qualifier string) bool {
	return vm.Raise("TypeException", "Function %s() takes %s %d arguments, %d supplied",
		c.Name, qualifier, want, got)
}

func (vm *VM) packVarargs(count int) {
	t := vm.newTuple(count)
	for i := count - 1; i >= 0; i-- {
		t.Items[i] = vm.pop()
	}
	vm.push(ObjVal(t))
}
