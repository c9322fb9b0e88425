package vm

// List is a growable, mutable sequence. Fast-path indexing
// (OP_SUBSCR_GET/SET) goes straight through Items; __get__/__set__
// overload dispatch is only consulted for values that aren't List,
// Tuple or String.
type List struct {
	ObjHeader
	Items []Value
}

func (vm *VM) newList(cap int) *List {
	l := &List{Items: make([]Value, 0, cap)}
	vm.track(l, vm.ListClass)
	return l
}

func (l *List) Append(v Value) {
	l.Items = append(l.Items, v)
}

// Tuple is an immutable fixed-length sequence, produced both by
// literal tuple expressions and by vararg packing.
type Tuple struct {
	ObjHeader
	Items []Value
}

func (vm *VM) newTuple(n int) *Tuple {
	t := &Tuple{Items: make([]Value, n)}
	vm.track(t, vm.TupleClass)
	return t
}

// Table is an insertion-ordered association map with Value keys,
// backed by a Go map plus a parallel key slice so iteration over a
// Table (via __iter__/__next__, provided by the native library and out
// of scope here) sees a stable order. The VM core only needs raw
// get/set/len; hashing is delegated to hashKey.
type Table struct {
	ObjHeader
	keys   []Value
	values map[interface{}]Value
}

func (vm *VM) newTable() *Table {
	t := &Table{values: make(map[interface{}]Value)}
	vm.track(t, vm.TableClass)
	return t
}

// hashKey turns a Value into something comparable with ==, which is
// all a Go map needs. Objects hash by identity (their pointer), the
// same rule structural equality uses for everything except numbers,
// null, booleans and interned strings.
func hashKey(v Value) interface{} {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.num != 0
	case KindNumber:
		return v.num
	case KindHandle:
		return v.handle
	default:
		return v.obj
	}
}

func (t *Table) Get(k Value) (Value, bool) {
	v, ok := t.values[hashKey(k)]
	return v, ok
}

func (t *Table) Set(k, v Value) {
	hk := hashKey(k)
	if _, exists := t.values[hk]; !exists {
		t.keys = append(t.keys, k)
	}
	t.values[hk] = v
}

func (t *Table) Len() int { return len(t.values) }
