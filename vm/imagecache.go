package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// cachedFunction is the CBOR-serializable subset of *Function a
// compiled module actually needs to resume from: bytecode, line table,
// constant pool and upvalue layout. Nested function constants recurse
// through the same shape, matching a compiled method's own nested
// blocks the way the teacher's image format nests BlockMethods inside
// a CompiledMethod.
type cachedFunction struct {
	Name         string
	ArgsCount    int
	DefaultCount int
	Vararg       bool
	Code         []byte
	Lines        []int32
	UpvalueCount int
	UpvalueInfo  []UpvalueRef
	Consts       []cachedValue
}

// cachedValue tags a constant pool entry so CBOR can round-trip the
// handful of kinds a compiled Function ever holds as a literal:
// numbers, strings, nested functions, and null (classes and closures
// are never compile-time constants, so they never need a tag here).
type cachedValue struct {
	Kind   Kind
	Num    float64
	Str    string
	Nested *cachedFunction
}

// ImageCache persists compiled module bodies to disk keyed by module
// name and a content hash of the source, the narrowed role the
// teacher's image writer/reader pair plays for a whole VM snapshot:
// here only the compiled-function graph the Importer collaborator
// hands back needs to survive across process runs, since classes,
// instances and the rest of the runtime heap are rebuilt fresh by
// running the module body again.
type ImageCache struct {
	dir string
}

// NewImageCache roots a cache at dir, creating it if necessary.
func NewImageCache(dir string) (*ImageCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("imagecache: %w", err)
	}
	return &ImageCache{dir: dir}, nil
}

func (c *ImageCache) path(moduleName, sourceHash string) string {
	return filepath.Join(c.dir, moduleName+"."+sourceHash[:16]+".jsic")
}

// SourceHash is the key every Lookup/Store call is keyed against,
// computed by the Importer before it would otherwise invoke the
// Compiler collaborator.
func SourceHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Lookup decodes a cached Function for moduleName if source hasn't
// changed since it was cached, reporting a miss (not an error) for any
// absent or undecodable entry.
func (c *ImageCache) Lookup(vm *VM, moduleName, sourceHash string) (*Function, bool) {
	data, err := os.ReadFile(c.path(moduleName, sourceHash))
	if err != nil {
		return nil, false
	}
	var cf cachedFunction
	if err := cbor.Unmarshal(data, &cf); err != nil {
		return nil, false
	}
	return vm.decodeFunction(&cf), true
}

// Store encodes fn and writes it to the cache under moduleName and
// sourceHash, replacing any existing entry.
func (c *ImageCache) Store(moduleName, sourceHash string, fn *Function) error {
	cf := encodeFunction(fn)
	data, err := cbor.Marshal(cf)
	if err != nil {
		return fmt.Errorf("imagecache: encode %s: %w", moduleName, err)
	}
	if err := os.WriteFile(c.path(moduleName, sourceHash), data, 0o644); err != nil {
		return fmt.Errorf("imagecache: write %s: %w", moduleName, err)
	}
	return nil
}

func encodeFunction(fn *Function) *cachedFunction {
	cf := &cachedFunction{
		Name:         fn.Name,
		ArgsCount:    fn.ArgsCount,
		DefaultCount: fn.DefaultCount,
		Vararg:       fn.Vararg,
		Code:         fn.Code,
		Lines:        fn.Lines,
		UpvalueCount: fn.UpvalueCount,
		UpvalueInfo:  fn.UpvalueInfo,
		Consts:       make([]cachedValue, len(fn.Consts)),
	}
	for i, v := range fn.Consts {
		cf.Consts[i] = encodeValue(v)
	}
	return cf
}

func encodeValue(v Value) cachedValue {
	switch {
	case v.IsNull():
		return cachedValue{Kind: KindNull}
	case v.IsNumber():
		return cachedValue{Kind: KindNumber, Num: v.AsNumber()}
	case v.IsObject():
		switch o := v.obj.(type) {
		case *String:
			return cachedValue{Kind: KindObject, Str: o.chars}
		case *Function:
			return cachedValue{Kind: KindObject, Nested: encodeFunction(o)}
		}
	}
	return cachedValue{Kind: KindNull}
}

func (vm *VM) decodeFunction(cf *cachedFunction) *Function {
	fn := &Function{
		CallableInfo: CallableInfo{
			Name:         cf.Name,
			ArgsCount:    cf.ArgsCount,
			DefaultCount: cf.DefaultCount,
			Vararg:       cf.Vararg,
		},
		Code:         cf.Code,
		Lines:        cf.Lines,
		UpvalueCount: cf.UpvalueCount,
		UpvalueInfo:  cf.UpvalueInfo,
		Consts:       make([]Value, len(cf.Consts)),
	}
	for i, cv := range cf.Consts {
		fn.Consts[i] = vm.decodeValue(cv)
	}
	return fn
}

func (vm *VM) decodeValue(cv cachedValue) Value {
	switch {
	case cv.Nested != nil:
		return ObjVal(vm.decodeFunction(cv.Nested))
	case cv.Kind == KindObject:
		return vm.StringVal(cv.Str)
	case cv.Kind == KindNumber:
		return NumberVal(cv.Num)
	default:
		return Null
	}
}

// CachingImporter wraps a base Importer with an ImageCache: a cache
// hit decodes straight to a Function without ever invoking the base
// collaborator, a miss compiles through it and stores the result for
// next time.
type CachingImporter struct {
	Base  Importer
	Cache *ImageCache
	// Source resolves moduleName to its source text for hashing; the
	// base Importer doesn't expose this, so the cache needs its own
	// way to decide whether a cached entry is stale.
	Source func(moduleName string) (string, error)
}

func (ci *CachingImporter) Import(vm *VM, moduleName string) (*Function, error) {
	if ci.Base == nil {
		return nil, errNoBaseImporter
	}
	if ci.Source == nil {
		return ci.Base.Import(vm, moduleName)
	}
	src, err := ci.Source(moduleName)
	if err != nil {
		return nil, err
	}
	hash := SourceHash(src)
	if fn, ok := ci.Cache.Lookup(vm, moduleName, hash); ok {
		return fn, nil
	}
	fn, err := ci.Base.Import(vm, moduleName)
	if err != nil {
		return nil, err
	}
	if err := ci.Cache.Store(moduleName, hash, fn); err != nil {
		return fn, nil // cache write failures never fail the import itself
	}
	return fn, nil
}

var errNoBaseImporter = errors.New("imagecache: CachingImporter has no Base importer configured")
