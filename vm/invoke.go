package vm

// invokeValue implements method invocation (OP_INVOKE and its small-
// arity specializations): an instance field shadowing a method wins
// over the method itself, so a call site can't tell the two apart
// without looking — exactly the dynamic-dispatch rule the value model
// specifies. Module receivers look up name among their own globals
// first, falling back to the module's own class's methods (a Module
// value behaves like an instance of ModuleClass for invocation
// purposes).
func (vm *VM) invokeValue(name string, argc int) bool {
	receiver := vm.peekN(argc)

	if receiver.IsObject() {
		if inst, ok := receiver.obj.(*Instance); ok {
			if field, ok := inst.Fields[name]; ok {
				vm.stack[vm.sp-argc-1] = field
				return vm.callValue(field, argc)
			}
		}
		if mod, ok := receiver.obj.(*Module); ok {
			if g, ok := mod.Globals[name]; ok {
				vm.stack[vm.sp-argc-1] = g
				return vm.callValue(g, argc)
			}
		}
	}

	class := vm.getClass(receiver)
	method, ok := class.lookupMethod(name)
	if !ok {
		return vm.Raise("MethodException", "Method %s.%s() doesn't exist", class.Name, name)
	}
	return vm.callValue(method, argc)
}

// bindMethod looks up name on class and, if found, wraps it with
// receiver into a BoundMethod value — used by getFieldFromValue's
// fallback (`obj.method` read as a value, not called) and by
// super-bind.
func (vm *VM) bindMethod(receiver Value, class *Class, name string) (Value, bool) {
	m, ok := class.lookupMethod(name)
	if !ok {
		return Null, false
	}
	return ObjVal(vm.newBoundMethod(receiver, m)), true
}

// getFieldFromValue implements `.` field read: an Instance's own field
// wins, then a class method (returned bound to the receiver), then a
// Module's globals/methods the same way invokeValue treats them.
func (vm *VM) getFieldFromValue(receiver Value, name string) (Value, bool) {
	if receiver.IsObject() {
		switch o := receiver.obj.(type) {
		case *Instance:
			if v, ok := o.Fields[name]; ok {
				return v, true
			}
		case *Module:
			if v, ok := o.Globals[name]; ok {
				return v, true
			}
		}
	}
	class := vm.getClass(receiver)
	return vm.bindMethod(receiver, class, name)
}

// setFieldOfValue implements `.` field write: only an Instance (or a
// Module, for defining a new global via field syntax) may gain a new
// field; anything else is a FieldException, matching the value
// model's distinction between objects with open field storage and
// built-in kinds that don't have any.
func (vm *VM) setFieldOfValue(receiver Value, name string, val Value) bool {
	if receiver.IsObject() {
		switch o := receiver.obj.(type) {
		case *Instance:
			o.Fields[name] = val
			return true
		case *Module:
			o.Globals[name] = val
			return true
		}
	}
	return vm.Raise("FieldException", "Object %s has no fields", vm.getClass(receiver).Name)
}
