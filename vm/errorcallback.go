package vm

import (
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

// DefaultErrorCallback formats an unhandled exception exactly the way
// the reference CLI's errorCallback does (see FormatError) and hands
// the record to a commonlog.Logger at Error level; a nil logger falls
// back to commonlog.NewBackendLogger(). DefaultConfig leaves
// ErrorCallback nil, so a VM constructed from it reports nothing and
// needs no logging backend; NewLoggingConfig below wires one in.
func DefaultErrorCallback(logger commonlog.Logger) func(vm *VM, kind, module string, line int, msg string, trace *StackTrace) {
	if logger == nil {
		logger = commonlog.NewBackendLogger()
	}
	return func(vm *VM, kind, module string, line int, msg string, trace *StackTrace) {
		logger.Error(FormatError(module, line, kind, msg, trace))
	}
}

// NewLoggingConfig starts from DefaultConfig and wires ErrorCallback to
// a commonlog logger named "jstar.vm", the same façade
// server/lsp.go's NewLSP configures for its own diagnostics.
func NewLoggingConfig() Config {
	cfg := DefaultConfig()
	cfg.ErrorCallback = DefaultErrorCallback(commonlog.GetLogger("jstar.vm"))
	return cfg
}
