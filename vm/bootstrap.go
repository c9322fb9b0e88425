package vm

// bootstrapCoreClasses creates the small set of built-in classes every
// Value's getClass() must be able to resolve to, and the aggregate
// classes (List/Tuple/Table/String/Function/Module/StackTrace)
// OP_NEW_LIST and friends stamp onto the objects they allocate.
// Object is its own superclass-less root; everything else chains up to
// it so `is Object` is true for every value.
func (vm *VM) bootstrapCoreClasses() {
	vm.ObjectClass = vm.newBuiltinClass("Object", nil, true)
	vm.ClassClass = vm.newBuiltinClass("Class", vm.ObjectClass, true)
	vm.NumberClass = vm.newBuiltinClass("Number", vm.ObjectClass, true)
	vm.BooleanClass = vm.newBuiltinClass("Boolean", vm.ObjectClass, true)
	vm.NullClass = vm.newBuiltinClass("Null", vm.ObjectClass, true)
	vm.UserdataClass = vm.newBuiltinClass("Userdata", vm.ObjectClass, true)
	vm.FunctionClass = vm.newBuiltinClass("Function", vm.ObjectClass, true)
	vm.ModuleClass = vm.newBuiltinClass("Module", vm.ObjectClass, true)
	vm.StackTraceClass = vm.newBuiltinClass("StackTrace", vm.ObjectClass, true)

	vm.StringClass = vm.newInstantiableBuiltinClass("String", vm.ObjectClass)
	vm.ListClass = vm.newInstantiableBuiltinClass("List", vm.ObjectClass)
	vm.TupleClass = vm.newInstantiableBuiltinClass("Tuple", vm.ObjectClass)
	vm.TableClass = vm.newInstantiableBuiltinClass("Table", vm.ObjectClass)

	for name, class := range map[string]*Class{
		"Object": vm.ObjectClass, "Class": vm.ClassClass, "Number": vm.NumberClass,
		"Boolean": vm.BooleanClass, "Null": vm.NullClass, "Userdata": vm.UserdataClass,
		"Function": vm.FunctionClass, "Module": vm.ModuleClass, "StackTrace": vm.StackTraceClass,
		"String": vm.StringClass, "List": vm.ListClass, "Tuple": vm.TupleClass, "Table": vm.TableClass,
	} {
		vm.Globals[name] = ObjVal(class)
	}
}

// newBuiltinClass creates a built-in class. With noInstance set, its Go
// Value representation is never an Instance (Number, Boolean, Null, Object,
// Class, Function, Module, StackTrace, Userdata all carry their data
// directly in the Value or in a dedicated Go struct), so calling `new`
// on it directly is always a TypeException.
func (vm *VM) newBuiltinClass(name string, super *Class, noInstance bool) *Class {
	c := vm.newClass(name, super)
	c.builtin = true
	c.noInstance = noInstance
	return c
}

// newInstantiableBuiltinClass creates a built-in class whose `new` is
// allowed: List(), Tuple(n), Table(), String(...). callClass leaves
// the `this` slot Null for these rather than allocating an Instance,
// and the class's registered ctor native is responsible for replacing
// it with the real backing object.
func (vm *VM) newInstantiableBuiltinClass(name string, super *Class) *Class {
	return vm.newBuiltinClass(name, super, false)
}

// bootstrapExceptionHierarchy builds the Error Kinds subclass tree:
// Exception is the root every except clause can catch unconditionally,
// with each concrete kind (TypeException, NameException, ...) a direct
// child carrying no extra behavior of its own beyond what Exception
// provides (a messageText field, set by Raise or by Exception.new).
//
// Unlike the classes in bootstrapCoreClasses, Exception and its kinds
// are ordinary, Instance-backed, user-subclassable classes (`class
// MyError : TypeException` is how a program defines its own error
// kind) — so, unlike those, they are never marked builtin: that flag
// is what OP_NEW_SUBCLASS consults to refuse subclassing, and what
// callClass consults to skip allocating a real Instance.
func (vm *VM) bootstrapExceptionHierarchy() {
	vm.ExceptionClass = vm.newClass("Exception", vm.ObjectClass)
	vm.ExceptionClass.defineMethod("new", ObjVal(vm.newExceptionCtor()))
	mk := func(name string) *Class {
		c := vm.newClass(name, vm.ExceptionClass)
		vm.Globals[name] = ObjVal(c)
		return c
	}
	vm.Globals["Exception"] = ObjVal(vm.ExceptionClass)
	vm.TypeExceptionClass = mk("TypeException")
	vm.NameExceptionClass = mk("NameException")
	vm.FieldExceptionClass = mk("FieldException")
	vm.MethodExceptionClass = mk("MethodException")
	vm.ImportExceptionClass = mk("ImportException")
	vm.StackOverflowExceptionClass = mk("StackOverflowException")
	vm.IndexOutOfBoundExceptionClass = mk("IndexOutOfBoundException")
	vm.AssertExceptionClass = mk("AssertException")
	vm.InvalidArgExceptionClass = mk("InvalidArgException")
	vm.NotImplementedExceptionClass = mk("NotImplementedException")
	vm.SyntaxExceptionClass = mk("SyntaxException")
	vm.ProgramInterruptClass = mk("ProgramInterrupt")
}

// newExceptionCtor backs Exception.new(message = ""): it stamps
// messageText on the receiver exactly like Raise does, so
// `raise TypeException("bad arg")` constructed from bytecode behaves
// the same as a TypeException Raise() synthesizes internally. Copied
// down to every subclass's method table at OP_NEW_SUBCLASS time unless
// that subclass defines its own new.
func (vm *VM) newExceptionCtor() *Native {
	info := CallableInfo{Name: "new", ArgsCount: 1, DefaultCount: 1, Defaults: []Value{vm.StringVal("")}}
	return vm.newNative(info, func(vm *VM) bool {
		recv := vm.Receiver()
		if inst, ok := recv.obj.(*Instance); ok {
			inst.Fields["messageText"] = vm.Arg(0)
		}
		vm.push(recv)
		return true
	})
}

// bootstrapCoreTableMethods installs Table's __get__/__set__ so that
// `[]`/`[]=` on a Table go through the same overload dispatch path
// every other non-List/Tuple/String receiver uses (see subscript.go) —
// a class that subclasses Table and overrides either one gets
// dispatched to, rather than a native fast path silently shadowing it.
func (vm *VM) bootstrapCoreTableMethods() {
	getInfo := CallableInfo{Name: overloadSymbols[OvGet], ArgsCount: 1}
	vm.TableClass.defineMethod(overloadSymbols[OvGet], ObjVal(vm.newNative(getInfo, func(vm *VM) bool {
		t := vm.Receiver().obj.(*Table)
		v, ok := t.Get(vm.Arg(0))
		if !ok {
			return vm.Raise("IndexOutOfBoundException", "key not found in Table")
		}
		vm.push(v)
		return true
	})))

	setInfo := CallableInfo{Name: overloadSymbols[OvSet], ArgsCount: 2}
	vm.TableClass.defineMethod(overloadSymbols[OvSet], ObjVal(vm.newNative(setInfo, func(vm *VM) bool {
		t := vm.Receiver().obj.(*Table)
		t.Set(vm.Arg(0), vm.Arg(1))
		vm.push(vm.Arg(1))
		return true
	})))
}

// bootstrapCoreStringMethods installs the one operator method the VM
// core itself depends on for correctness rather than convenience:
// String.__eq__, implemented as identity comparison. Every string
// reaching a Value is produced by internString, so two Strings with
// equal content are the same pointer; this resolves the spec's Open
// Question about string equality without requiring any part of the
// (out-of-scope) built-in native library to be present.
func (vm *VM) bootstrapCoreStringMethods() {
	info := CallableInfo{Name: "__eq__", ArgsCount: 1}
	vm.StringClass.defineMethod("__eq__", ObjVal(vm.newNative(info, func(vm *VM) bool {
		recv := vm.Receiver()
		other := vm.Arg(0)
		if !other.IsObject() {
			vm.push(False)
			return true
		}
		os, ok := other.obj.(*String)
		if !ok {
			vm.push(False)
			return true
		}
		rs := recv.obj.(*String)
		vm.push(BoolVal(rs == os))
		return true
	})))
}
