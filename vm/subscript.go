package vm

// getSubscriptOfValue implements `[]` read. Only List, Tuple and
// String get a fast native path straight into their backing Go
// slice/string; every other receiver — including Table, whose
// __get__/__set__ live on its class's method table exactly like any
// user class's — falls back to the receiver class's __get__ overload,
// called with the index as its single argument, so a class that
// subclasses Table and overrides __get__/__set__ actually gets
// dispatched to rather than silently bypassed by a native carve-out.
func (vm *VM) getSubscriptOfValue(receiver, index Value) bool {
	if receiver.IsObject() {
		switch o := receiver.obj.(type) {
		case *List:
			i, ok := vm.checkIndex(index, len(o.Items))
			if !ok {
				return false
			}
			vm.push(o.Items[i])
			return true
		case *Tuple:
			i, ok := vm.checkIndex(index, len(o.Items))
			if !ok {
				return false
			}
			vm.push(o.Items[i])
			return true
		case *String:
			i, ok := vm.checkIndex(index, len(o.chars))
			if !ok {
				return false
			}
			vm.push(vm.StringVal(string(o.chars[i])))
			return true
		}
	}
	class := vm.getClass(receiver)
	m, ok := class.lookupMethod(overloadSymbols[OvGet])
	if !ok {
		return vm.Raise("TypeException", "Object %s doesn't support subscript access", class.Name)
	}
	vm.push(receiver)
	vm.push(index)
	return vm.invokeSync(m, 1)
}

// setSubscriptOfValue implements `[] =`. For List, the write happens
// directly and the assigned value is pushed as the expression's
// result. Everything else — Table included, see getSubscriptOfValue —
// falls back to the __set__ overload, called as
// receiver.__set__(index, val); receiver, index and val are pushed
// back onto the stack in that call order first, since the caller
// already popped all three off as plain Go values.
func (vm *VM) setSubscriptOfValue(receiver, index, val Value) bool {
	if receiver.IsObject() {
		if o, ok := receiver.obj.(*List); ok {
			i, ok := vm.checkIndex(index, len(o.Items))
			if !ok {
				return false
			}
			o.Items[i] = val
			vm.push(val)
			return true
		}
	}
	class := vm.getClass(receiver)
	m, ok := class.lookupMethod(overloadSymbols[OvSet])
	if !ok {
		return vm.Raise("TypeException", "Object %s doesn't support subscript assignment", class.Name)
	}
	vm.push(receiver)
	vm.push(index)
	vm.push(val)
	return vm.invokeSync(m, 2)
}

// checkIndex validates index is an integral number in [0, length),
// supporting the usual negative-indexes-from-the-end convention, and
// raises IndexOutOfBoundException otherwise.
func (vm *VM) checkIndex(index Value, length int) (int, bool) {
	if !index.IsNumber() || !index.IsInt() {
		vm.Raise("TypeException", "Index must be an integer")
		return 0, false
	}
	i := index.AsInt()
	if i < 0 {
		i += length
	}
	if i < 0 || i >= length {
		vm.Raise("IndexOutOfBoundException", "Index %d out of bounds for length %d", index.AsInt(), length)
		return 0, false
	}
	return i, true
}
