package vm

// resolveNative is the single lookup OP_NATIVE and OP_NAT_METHOD funnel
// through: a module/class method declared `native` in source carries no
// bytecode body, only a name the compiler leaves for the runtime to
// bind against an actual Go function. For class methods, natives added
// with registerCoreNative are checked first, regardless of host
// configuration (the String and Table methods in bootstrap.go are
// installed directly on their classes and are not in that table);
// anything else falls back to the Natives collaborator, which a host
// can back with its own registry or with the gRPC foreign-function
// bridge.
func (vm *VM) resolveNative(module string, class *Class, name string) (NativeFn, bool) {
	if class != nil {
		if fn, ok := vm.coreNatives[coreNativeKey{class: class.Name, method: name}]; ok {
			return fn, true
		}
	}
	if vm.Natives != nil {
		return vm.Natives.ResolveNative(module, class, name)
	}
	return nil, false
}

// coreNativeKey identifies a built-in class method registered through
// registerCoreNative, keyed by class name rather
// than a *Class pointer so it survives being declared before the
// class object it will be attached to exists yet.
type coreNativeKey struct {
	class  string
	method string
}

// registerCoreNative makes fn resolvable as className.methodName for a
// later OP_NAT_METHOD, independent of whatever NativeRegistry the host
// configures.
func (vm *VM) registerCoreNative(className, methodName string, fn NativeFn) {
	if vm.coreNatives == nil {
		vm.coreNatives = make(map[coreNativeKey]NativeFn)
	}
	vm.coreNatives[coreNativeKey{class: className, method: methodName}] = fn
}
