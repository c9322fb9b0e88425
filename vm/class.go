package vm

// Class is a runtime class: a name, a superclass link, and a flat
// method table. Methods are copied down from the superclass's table at
// class-creation time (OP_NEW_CLASS/OP_NEW_SUBCLASS), a deliberately
// shallow, one-shot copy — a superclass monkey-patched after a
// subclass already exists does not retroactively change what the
// subclass sees, matching the dispatch model the evaluator assumes
// everywhere else (a plain map lookup, no chain walk per call).
type Class struct {
	ObjHeader
	Name        string
	Super       *Class
	Methods     map[string]Value // string -> Closure/Native/BoundMethod
	builtin     bool             // true for the ~14 classes the VM bootstraps itself
	noInstance  bool             // true if instantiating this class directly is an error
}

func (vm *VM) newClass(name string, super *Class) *Class {
	c := &Class{Name: name, Super: super, Methods: make(map[string]Value)}
	if super != nil {
		for name, m := range super.Methods {
			c.Methods[name] = m
		}
	}
	vm.track(c, vm.ClassClass)
	return c
}

// defineMethod installs fn under name in c's own table, overriding
// whatever was copied down from the superclass. It does not touch any
// class created from c before this call.
func (c *Class) defineMethod(name string, fn Value) {
	c.Methods[name] = fn
}

func (c *Class) lookupMethod(name string) (Value, bool) {
	m, ok := c.Methods[name]
	return m, ok
}

// isNonInstantiableBuiltin reports whether `new` on this class is
// always an error (Object, Number, Boolean, Null, Function, Class
// itself, StackTrace — values of these kinds are produced only by the
// VM, never by a user-visible constructor call).
func (vm *VM) isNonInstantiableBuiltin(c *Class) bool {
	return c.builtin && c.noInstance
}

// isInstantiableBuiltin reports whether `new` on this class produces a
// built-in value rather than a generic Instance (List, Tuple, Table,
// String) — these still route through the normal ctor lookup, but the
// slot that will hold `this` starts out Null instead of a fresh
// Instance, and the registered ctor native is responsible for
// replacing it.
func (vm *VM) isInstantiableBuiltin(c *Class) bool {
	return c.builtin && !c.noInstance
}

func (vm *VM) isBuiltinClass(c *Class) bool {
	return c.builtin
}
