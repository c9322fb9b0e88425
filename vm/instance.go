package vm

// Instance is a plain object: a class plus a bag of named fields
// created on first assignment. There is no fixed slot layout —
// SET_FIELD simply inserts into the map, matching the language's
// dynamically-typed, add-fields-at-will object model.
type Instance struct {
	ObjHeader
	Fields map[string]Value
}

func (vm *VM) newInstance(class *Class) *Instance {
	inst := &Instance{Fields: make(map[string]Value)}
	vm.track(inst, class)
	return inst
}
