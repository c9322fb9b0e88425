package vm

// Compiler is the external collaborator that turns source text into a
// compiled Function for a given module name. The lexer, parser and
// bytecode compiler themselves are out of scope for this package. The
// VM holds a Compiler for the host but does not call it itself: the
// import protocol goes through Importer, which returns compiled
// Functions.
type Compiler interface {
	CompileWithModule(vm *VM, moduleName, source string) (*Function, error)
}

// Importer resolves a module name to a compiled Function (compiled from
// source or decoded from a cached image), with the VM's configured
// ImportPaths reachable through vm. It is
// consulted by OP_IMPORT/OP_IMPORT_AS/OP_IMPORT_FROM/OP_IMPORT_NAME the
// first time a given module name is seen; the VM itself never touches
// the filesystem.
type Importer interface {
	Import(vm *VM, moduleName string) (*Function, error)
}

// NativeRegistry resolves a (module, class-or-nil, name) triple to a
// NativeFn. resolveNative (see natives.go) checks the built-in native
// library first (out of scope, so a real VM would be handed a
// collaborator implementing that too) and falls back to whatever
// registry the host configured, which may itself be backed by the
// gRPC foreign-function bridge in ffi_grpc.go.
type NativeRegistry interface {
	ResolveNative(module string, class *Class, name string) (NativeFn, bool)
}

// StackTraceRecorder persists a StackTrace somewhere durable, for
// postmortem inspection across process runs. The in-memory StackTrace
// object built by unwindStack/OP_RAISE remains the canonical runtime
// representation regardless of whether a recorder is configured.
type StackTraceRecorder interface {
	Record(sessionID string, module, function string, frames []TraceFrame) error
	Close() error
}

// MetricsSink persists an opcode-dispatch histogram at VM shutdown.
type MetricsSink interface {
	Flush(sessionID string, counts [256]int64) error
	Close() error
}
