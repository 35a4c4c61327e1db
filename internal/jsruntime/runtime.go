package jsruntime

import (
	"errors"
	"fmt"
	"time"
)

// RuntimeType represents the type of JavaScript runtime
type RuntimeType string

const (
	RuntimeQuickJS RuntimeType = "quickjs"
	RuntimeV8      RuntimeType = "v8"
)

// defaultRuntimeType is set by init() in the build-specific files
var defaultRuntimeType RuntimeType

// DefaultRuntimeType returns the runtime type for this build
func DefaultRuntimeType() RuntimeType {
	return defaultRuntimeType
}

// RuntimeConfig is applied when the binding creates its runtime.
type RuntimeConfig struct {
	// MaxStackSize is the native call-stack budget in bytes. Zero disables the
	// engine's stack depth guard.
	MaxStackSize uint64
	// MemoryLimit caps the engine heap in bytes. Zero means no limit.
	MemoryLimit uint64
	// JobTimeout bounds one ExecutePendingJob call. Zero means no bound.
	JobTimeout time.Duration
}

// errJobTimeout is returned by ExecutePendingJob when jobs were still
// running at the end of the JobTimeout budget.
var errJobTimeout = errors.New("pending jobs still running at the time budget")

// HostFunc is a Go function exposed to scripts. Arguments arrive as value
// copies; a returned error is thrown into the script.
type HostFunc func(args []Value) (Value, error)

// Binding is the capability set of a native engine. Implementations are not
// safe for concurrent use and are only driven by a Session.
type Binding interface {
	// Type names the engine family.
	Type() RuntimeType
	// BuildID identifies the exact engine build; bytecode is only portable
	// between bindings reporting the same Type and BuildID.
	BuildID() string

	CreateRuntime(cfg RuntimeConfig) error
	CreateContext() error

	// Compile serializes source without running it.
	Compile(source, name string) ([]byte, error)
	EvalSource(source, name string) (Value, error)
	EvalBytecode(payload []byte) (Value, error)

	GetGlobal(name string) (Value, error)
	SetGlobalFunc(name string, fn HostFunc) error
	CallGlobal(name string, args []Value) (Value, error)

	// ExecutePendingJob runs queued jobs and reports whether one ran.
	// Engines that only expose a batch drain run the whole queue and
	// report false.
	ExecutePendingJob() (bool, error)

	FreeContext()
	FreeRuntime()
}

// NewBinding returns the binding compiled into this build. An empty type
// selects the default.
func NewBinding(t RuntimeType) (Binding, error) {
	if t == "" {
		t = defaultRuntimeType
	}
	if t != defaultRuntimeType {
		return nil, fmt.Errorf("runtime %q is not compiled into this build (have %q)", t, defaultRuntimeType)
	}
	return newBinding(), nil
}
