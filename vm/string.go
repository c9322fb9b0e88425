package vm

// String is an immutable, interned sequence of bytes. Two Strings with
// equal content are always the same *String once they pass through
// internString, which is what lets == on strings use pointer identity
// rather than a content comparison.
type String struct {
	ObjHeader
	chars string
}

func (s *String) String() string { return s.chars }
func (s *String) Len() int       { return len(s.chars) }

// internString returns the canonical *String for chars, allocating and
// registering a new one on first sight. Every string literal the
// compiler emits, and every string a native builds via Buffer.Push,
// must go through this so identity-based == holds (see spec's Open
// Question on string equality).
func (vm *VM) internString(chars string) *String {
	if s, ok := vm.stringPool[chars]; ok {
		return s
	}
	s := &String{chars: chars}
	vm.track(s, vm.StringClass)
	vm.stringPool[chars] = s
	return s
}

func (vm *VM) StringVal(s string) Value {
	return ObjVal(vm.internString(s))
}

func objSize(o Obj) int {
	switch v := o.(type) {
	case *String:
		return 32 + len(v.chars)
	default:
		return 64
	}
}
