package vm

// Obj is implemented by every heap object kind (String, Function,
// Native, Closure, Upvalue, Class, Instance, List, Tuple, Module,
// BoundMethod, StackTrace, Table). Go's own dynamic type of the
// interface value serves as the object's kind tag, so there is no
// separate enum to keep in sync with the type switch below and in the
// collector.
type Obj interface {
	header() *ObjHeader
}

// ObjHeader is embedded in every concrete object type. It carries the
// object's class (used by getClass and by `is`/method dispatch) and the
// bookkeeping the collector needs: a mark bit and a next pointer
// threading every live object into one sweepable list.
type ObjHeader struct {
	Class  *Class
	marked bool
	next   Obj
}

func (h *ObjHeader) header() *ObjHeader { return h }

// track links o into the VM's object list and stamps it with the
// current class, so it participates in getClass dispatch and in a
// future sweep.
func (vm *VM) track(o Obj, class *Class) {
	h := o.header()
	h.Class = class
	h.next = vm.objects
	vm.objects = o
	vm.bytesAllocated += objSize(o)
	if vm.bytesAllocated > vm.nextGC {
		vm.collectGarbage()
	}
}

// getClass resolves the runtime class of any Value, built-in kinds
// included.
func (vm *VM) getClass(v Value) *Class {
	switch v.kind {
	case KindNumber:
		return vm.NumberClass
	case KindBool:
		return vm.BooleanClass
	case KindNull:
		return vm.NullClass
	case KindHandle:
		return vm.UserdataClass
	case KindObject:
		return v.obj.header().Class
	}
	return vm.ObjectClass
}

// isInstance reports whether v's class is class or a subclass of it,
// the semantics backing the `is` operator (Invariant: `is` walks the
// superclass chain, never consults __eq__/overloads).
func (vm *VM) isInstance(v Value, class *Class) bool {
	c := vm.getClass(v)
	for c != nil {
		if c == class {
			return true
		}
		c = c.Super
	}
	return false
}
