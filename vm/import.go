package vm

// getModule looks up an already-compiled-and-run module by name.
func (vm *VM) getModule(name string) (*Module, bool) {
	m, ok := vm.modules[name]
	return m, ok
}

func (vm *VM) setModule(name string, m *Module) {
	vm.modules[name] = m
}

// importModule implements the compile-once/run-once semantics every
// OP_IMPORT* variant shares: the first time a module name is seen, the
// Importer collaborator resolves it to a compiled Function (see
// CachingImporter for the module-image cache), which is wrapped in a
// Module, registered, and kept as the Module's Body for runModuleBody
// to run as its initializer. A module already in vm.modules is a cache hit: its
// Body is nil (having already run), and this call becomes a no-op
// other than leaving the module reachable for the opcode that invoked
// it to read globals from.
func (vm *VM) importModule(name string) (*Module, bool) {
	if m, ok := vm.getModule(name); ok {
		return m, true
	}
	if vm.Importer == nil {
		vm.Raise("ImportException", "no importer configured, cannot resolve module %s", name)
		return nil, false
	}
	fn, err := vm.Importer.Import(vm, name)
	if err != nil {
		vm.Raise("ImportException", "cannot import module %s: %v", name, err)
		return nil, false
	}
	mod := vm.newModule(name)
	mod.Body = fn
	fn.Module = mod
	vm.setModule(name, mod)
	return mod, true
}

// runModuleBody executes a freshly imported module's top-level
// Function to completion on its own sub-stack, the same way a normal
// call does, then clears Body so a later import of the same name
// skips straight to the cached Module.
func (vm *VM) runModuleBody(mod *Module) bool {
	if mod.Body == nil {
		return true
	}
	closure := vm.newClosure(mod.Body)
	vm.push(ObjVal(closure))
	depth := vm.frameCount
	if !vm.callClosure(closure, 0) {
		return false
	}
	if !vm.run(depth) {
		return false
	}
	vm.pop() // discard the module body's (always-null) return value
	mod.Body = nil
	return true
}

// importAllNames implements OP_IMPORT_NAME's wildcard form: every global
// the source module defines is copied into dest, as if each had been
// imported individually via `from mod import name`.
func (vm *VM) importAllNames(src, dest *Module) {
	for name, v := range src.Globals {
		dest.Globals[name] = v
	}
}
