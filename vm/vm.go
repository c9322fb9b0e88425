// Package vm implements the execution core of the J* language: value
// representation, the call-frame stack, the call and method-dispatch
// protocols, closures, class construction, the exception unwinder, the
// import protocol and the bytecode dispatch loop. The lexer, parser,
// compiler, garbage collector internals, hash table primitive and
// built-in native library are external collaborators the VM consumes
// through small interfaces (see collaborators.go); this package never
// implements them itself.
package vm

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Config mirrors the construction-time knobs a host passes to the VM.
// DefaultConfig is the zero-dependency path; LoadConfigFile additively
// layers a TOML file on top of it.
type Config struct {
	StackSize    int
	InitGC       int
	HeapGrowRate float64
	ImportPaths  []string
	ErrorCallback func(vm *VM, kind, module string, line int, msg string, trace *StackTrace)
	TraceSink    string // optional DSN for the SQLite stack-trace recorder
	MetricsSink  string // optional DSN for the DuckDB opcode-histogram sink
}

func DefaultConfig() Config {
	return Config{
		StackSize:    256 * MaxLocals,
		InitGC:       1 << 20,
		HeapGrowRate: 2.0,
	}
}

// VM is one instance of the execution core. Multiple VMs may coexist
// in the same process, each with its own heap, stack, modules and
// class table; nothing here is shared through package-level state.
type VM struct {
	Config
	SessionID uuid.UUID

	// Well-known built-in classes, created once in bootstrapCoreClasses.
	ObjectClass     *Class
	ClassClass      *Class
	NumberClass     *Class
	BooleanClass    *Class
	NullClass       *Class
	UserdataClass   *Class
	StringClass     *Class
	FunctionClass   *Class
	ListClass       *Class
	TupleClass      *Class
	TableClass      *Class
	ModuleClass     *Class
	StackTraceClass *Class

	// Exception hierarchy (spec Error Kinds).
	ExceptionClass              *Class
	TypeExceptionClass          *Class
	NameExceptionClass          *Class
	FieldExceptionClass         *Class
	MethodExceptionClass        *Class
	ImportExceptionClass        *Class
	StackOverflowExceptionClass *Class
	IndexOutOfBoundExceptionClass *Class
	AssertExceptionClass        *Class
	InvalidArgExceptionClass    *Class
	NotImplementedExceptionClass *Class
	SyntaxExceptionClass        *Class
	ProgramInterruptClass       *Class

	// Process-wide interned sentinel names, created at VM init.
	ctorName string
	iterName string
	nextName string
	overloadNames [numOverloads]string

	Globals map[string]Value // the core/builtins module's globals, visible from every module

	stack         []Value
	sp            int
	frames        []Frame
	frameCount    int
	apiStackBase  int // base index of the currently-running native's argument window

	openUpvalues *Upvalue

	modules     map[string]*Module
	stringPool  map[string]*String
	coreNatives map[coreNativeKey]NativeFn

	objects        Obj
	bytesAllocated int
	nextGC         int

	Module *Module // module currently executing, used to resolve GET_GLOBAL/SET_GLOBAL

	CustomData any

	opcodeHist [256]int64

	Compiler    Compiler
	Importer    Importer
	Natives     NativeRegistry
	TraceSinkW  StackTraceRecorder
	MetricsSinkW MetricsSink
}

// NewVM builds a VM from cfg, bootstrapping its built-in class
// hierarchy and sentinel names. A cfg whose StackSize is 0 is replaced
// wholesale by DefaultConfig(), discarding any other field it set.
// StackSize is rounded up to a multiple of MaxLocals+1.
func NewVM(cfg Config) *VM {
	if cfg.StackSize == 0 {
		cfg = DefaultConfig()
	}
	if r := cfg.StackSize % (MaxLocals + 1); r != 0 {
		cfg.StackSize += MaxLocals + 1 - r
	}
	vm := &VM{
		Config:     cfg,
		SessionID:  newSessionID(),
		Globals:    make(map[string]Value),
		stack:      make([]Value, cfg.StackSize),
		frames:     make([]Frame, 64),
		modules:    make(map[string]*Module),
		stringPool: make(map[string]*String),
		nextGC:     cfg.InitGC,
	}
	vm.bootstrapCoreClasses()
	vm.bootstrapExceptionHierarchy()
	vm.bootstrapOverloadNames()
	vm.bootstrapCoreStringMethods()
	vm.bootstrapCoreTableMethods()
	vm.openSinks()
	return vm
}

// openSinks resolves Config.TraceSink/MetricsSink DSNs into the two
// optional database-backed collaborators. A DSN that fails to open is
// reported through ErrorCallback (if configured) and otherwise
// silently leaves the corresponding sink unset — a sink is diagnostic
// tooling, never load-bearing for running a program.
func (vm *VM) openSinks() {
	if strings.HasPrefix(vm.TraceSink, "sqlite://") {
		path := strings.TrimPrefix(vm.TraceSink, "sqlite://")
		if sink, err := OpenSQLiteTraceSink(path); err == nil {
			vm.TraceSinkW = sink
		} else if vm.ErrorCallback != nil {
			vm.ErrorCallback(vm, "ConfigException", "<config>", 0, err.Error(), nil)
		}
	}
	if strings.HasPrefix(vm.MetricsSink, "duckdb://") {
		path := strings.TrimPrefix(vm.MetricsSink, "duckdb://")
		if sink, err := OpenDuckDBMetricsSink(path); err == nil {
			vm.MetricsSinkW = sink
		} else if vm.ErrorCallback != nil {
			vm.ErrorCallback(vm, "ConfigException", "<config>", 0, err.Error(), nil)
		}
	}
}

// Shutdown flushes the opcode histogram to the metrics sink and closes
// both optional sinks, if configured. Callers that never set
// TraceSink/MetricsSink can skip calling this; it is a no-op then.
func (vm *VM) Shutdown() error {
	var firstErr error
	if vm.MetricsSinkW != nil {
		if err := vm.MetricsSinkW.Flush(vm.SessionID.String(), vm.opcodeHist); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := vm.MetricsSinkW.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if vm.TraceSinkW != nil {
		if err := vm.TraceSinkW.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newSessionID() uuid.UUID {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.UUID{}
	}
	return id
}

func (vm *VM) moduleOf(c Obj) *Module {
	switch v := c.(type) {
	case *Closure:
		return v.Fn.Module
	case *Native:
		return v.Module
	}
	return nil
}

// collectGarbage is the VM's side of the GC protocol. It does no
// marking or sweeping itself: it only resets the next collection
// threshold to the allocated byte count times the heap grow rate, and
// Go's own collector reclaims memory the usual way once nothing
// reachable from this package references it.
func (vm *VM) collectGarbage() {
	vm.nextGC = int(float64(vm.bytesAllocated) * vm.effectiveHeapGrowRate())
}

func (vm *VM) effectiveHeapGrowRate() float64 {
	if vm.HeapGrowRate <= 1 {
		return 2.0
	}
	return vm.HeapGrowRate
}

// Raise constructs an ExceptionObject of the named class (resolved
// against vm.Globals, matching the Error Kinds classes bootstrapped by
// bootstrapExceptionHierarchy), pushes it, and returns false so the
// caller can propagate it through the same "return false" convention
// every fallible VM operation uses.
func (vm *VM) Raise(className string, format string, args ...any) bool {
	msg := fmt.Sprintf(format, args...)
	class := vm.ExceptionClass
	if v, ok := vm.Globals[className]; ok {
		if c, ok := v.obj.(*Class); ok {
			class = c
		}
	}
	inst := vm.newInstance(class)
	inst.Fields["messageText"] = vm.StringVal(msg)
	vm.push(ObjVal(inst))
	return false
}

// FormatError renders an unhandled exception the way the reference
// CLI's errorCallback does: a header line naming the module, source
// line and exception kind, followed by the captured stack trace with
// one indented line per frame, innermost first, naming either the
// frame's function or <main> for a module's top-level body.
func FormatError(module string, line int, kind, msg string, trace *StackTrace) string {
	out := fmt.Sprintf("File %s [line %d]: %s: %s", module, line, kind, msg)
	if trace == nil {
		return out
	}
	for _, f := range trace.Frames {
		name := f.Function
		if name == "" {
			name = "<main>"
		}
		out += fmt.Sprintf("\n    at %s.%s [line %d]", f.Module, name, f.Line)
	}
	return out
}
