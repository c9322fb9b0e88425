package vm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/dynamic"
	"github.com/jhump/protoreflect/grpcreflect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	rpb "google.golang.org/grpc/reflection/grpc_reflection_v1alpha"
)

// GRPCBridge is a NativeRegistry backed by a remote gRPC service instead
// of Go function pointers: a native declared in source with no local
// implementation resolves, on first use, to a unary method on the
// target given to NewGRPCBridge, discovered through server reflection
// rather than generated stubs. This is the foreign-function bridge
// spec.md calls for without committing the VM itself to any transport.
type GRPCBridge struct {
	target string

	mu   sync.Mutex
	conn *grpc.ClientConn
	ref  *grpcreflect.Client
}

// NewGRPCBridge builds a bridge for target, dialed lazily on the first
// ResolveNative call.
func NewGRPCBridge(target string) *GRPCBridge {
	return &GRPCBridge{target: target}
}

func (b *GRPCBridge) dial() (*grpcreflect.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ref != nil {
		return b.ref, nil
	}
	conn, err := grpc.NewClient(b.target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("ffi_grpc: dial %s: %w", b.target, err)
	}
	b.conn = conn
	b.ref = grpcreflect.NewClientV1Alpha(context.Background(), rpb.NewServerReflectionClient(conn))
	return b.ref, nil
}

// ResolveNative implements NativeRegistry: name is taken as a
// fully-qualified "package.Service/Method" path (class, when non-nil,
// is consulted only to namespace ambiguous short names under
// class.Name + "Service"). The returned NativeFn marshals the calling
// convention's positional arguments into the method's input message
// in field declaration order, invokes it, and unmarshals the response the
// same way, boxing every scalar field into a Value and the whole
// message into a Table keyed by field name for anything structured.
func (b *GRPCBridge) ResolveNative(module string, class *Class, name string) (NativeFn, bool) {
	ref, err := b.dial()
	if err != nil {
		return nil, false
	}
	fqMethod := name
	if class != nil && !strings.Contains(name, "/") {
		fqMethod = class.Name + "Service/" + name
	}
	methodDesc, err := b.resolveMethod(ref, fqMethod)
	if err != nil {
		return nil, false
	}
	return func(vm *VM) bool {
		return b.invoke(vm, methodDesc)
	}, true
}

func (b *GRPCBridge) resolveMethod(ref *grpcreflect.Client, fqMethod string) (*desc.MethodDescriptor, error) {
	slash := strings.LastIndex(fqMethod, "/")
	if slash < 0 {
		return nil, fmt.Errorf("ffi_grpc: %q is not service/method", fqMethod)
	}
	svcDesc, err := ref.ResolveService(fqMethod[:slash])
	if err != nil {
		return nil, err
	}
	m := svcDesc.FindMethodByName(fqMethod[slash+1:])
	if m == nil {
		return nil, fmt.Errorf("ffi_grpc: method %s not found", fqMethod)
	}
	return m, nil
}

// invoke builds the request message from the native's positional
// arguments (one per input field, in declaration order — no
// client/server streaming support, matching spec.md's Non-goal on
// native thread parallelism carrying over to bridge calls), performs
// the unary RPC, and pushes the decoded response as the native's
// return value.
func (b *GRPCBridge) invoke(vm *VM, methodDesc *desc.MethodDescriptor) bool {
	req := dynamic.NewMessage(methodDesc.GetInputType())
	fields := methodDesc.GetInputType().GetFields()
	for i, f := range fields {
		if i >= vm.ArgCount() {
			break
		}
		if err := setProtoField(req, f, vm.Arg(i)); err != nil {
			return vm.Raise("TypeException", "ffi_grpc: argument %d: %v", i, err)
		}
	}

	resp := dynamic.NewMessage(methodDesc.GetOutputType())
	fullMethod := "/" + methodDesc.GetService().GetFullyQualifiedName() + "/" + methodDesc.GetName()
	if err := b.conn.Invoke(context.Background(), fullMethod, req, resp); err != nil {
		return vm.Raise("NotImplementedException", "ffi_grpc: call %s failed: %v", fullMethod, err)
	}

	vm.push(protoMessageToValue(vm, resp))
	return true
}

// setProtoField converts one Value into the proto field it populates,
// covering the scalar kinds a J* value can unambiguously represent;
// anything else is a TypeException at the call site.
func setProtoField(msg *dynamic.Message, f *desc.FieldDescriptor, v Value) error {
	switch {
	case v.IsNumber():
		return msg.TrySetField(f, v.AsNumber())
	case v.IsBool():
		return msg.TrySetField(f, v.AsBool())
	case v.IsObject():
		if s, ok := v.obj.(*String); ok {
			return msg.TrySetField(f, s.chars)
		}
	}
	return fmt.Errorf("unsupported argument kind for field %s", f.GetName())
}

// protoMessageToValue boxes a decoded response message into a Table
// keyed by field name, the structural analogue of the Dictionary the
// teacher's bridge returns for the same purpose.
func protoMessageToValue(vm *VM, msg *dynamic.Message) Value {
	t := vm.newTable()
	for _, f := range msg.GetMessageDescriptor().GetFields() {
		val := msg.GetField(f)
		t.Set(vm.StringVal(f.GetName()), protoScalarToValue(vm, val))
	}
	return ObjVal(t)
}

func protoScalarToValue(vm *VM, val interface{}) Value {
	switch x := val.(type) {
	case string:
		return vm.StringVal(x)
	case bool:
		return BoolVal(x)
	case int32:
		return NumberVal(float64(x))
	case int64:
		return NumberVal(float64(x))
	case uint32:
		return NumberVal(float64(x))
	case uint64:
		return NumberVal(float64(x))
	case float32:
		return NumberVal(float64(x))
	case float64:
		return NumberVal(x)
	case *dynamic.Message:
		return protoMessageToValue(vm, x)
	default:
		return Null
	}
}

// Close releases the underlying connection, if one was ever dialed.
func (b *GRPCBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ref != nil {
		b.ref.Reset()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
