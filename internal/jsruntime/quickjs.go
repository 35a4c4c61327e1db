//go:build !use_v8

package jsruntime

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/buke/quickjs-go"
)

const quickjsModule = "github.com/buke/quickjs-go"

func init() {
	defaultRuntimeType = RuntimeQuickJS
}

// newBinding creates the default binding for this build
func newBinding() Binding {
	return NewQuickJSBinding()
}

var quickjsBuild = sync.OnceValue(func() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == quickjsModule {
				if dep.Replace != nil {
					dep = dep.Replace
				}
				return "quickjs-go@" + dep.Version
			}
		}
	}
	return "quickjs-go@devel"
})

// QuickJSBinding drives QuickJS through github.com/buke/quickjs-go.
type QuickJSBinding struct {
	runtime *quickjs.Runtime
	context *quickjs.Context

	jobTimeout time.Duration
	deadline   time.Time
}

// NewQuickJSBinding returns a binding with no runtime created yet.
func NewQuickJSBinding() *QuickJSBinding {
	return &QuickJSBinding{}
}

func (q *QuickJSBinding) Type() RuntimeType { return RuntimeQuickJS }

func (q *QuickJSBinding) BuildID() string { return quickjsBuild() }

func (q *QuickJSBinding) CreateRuntime(cfg RuntimeConfig) error {
	rt := quickjs.NewRuntime()
	if rt == nil {
		return errors.New("quickjs: failed to create runtime")
	}
	rt.SetMaxStackSize(cfg.MaxStackSize)
	if cfg.MemoryLimit > 0 {
		rt.SetMemoryLimit(cfg.MemoryLimit)
	}
	if cfg.JobTimeout > 0 {
		q.jobTimeout = cfg.JobTimeout
		rt.SetInterruptHandler(q.interrupt)
	}
	q.runtime = rt
	return nil
}

func (q *QuickJSBinding) CreateContext() error {
	if q.runtime == nil {
		return errors.New("quickjs: no runtime")
	}
	ctx := q.runtime.NewContext()
	if ctx == nil {
		return errors.New("quickjs: failed to create context")
	}
	q.context = ctx
	return nil
}

func (q *QuickJSBinding) Compile(source, name string) ([]byte, error) {
	buf, err := q.context.Compile(source, quickjs.EvalFileName(name))
	if err != nil {
		return nil, quickjsException(err)
	}
	return buf, nil
}

func (q *QuickJSBinding) EvalSource(source, name string) (Value, error) {
	res := q.context.Eval(source, quickjs.EvalFileName(name))
	defer res.Free()
	return q.result(res)
}

// EvalBytecode reads the payload once without running it, so that a payload
// the engine cannot read is told apart from a script that throws.
func (q *QuickJSBinding) EvalBytecode(payload []byte) (Value, error) {
	obj := q.context.LoadModuleBytecode(payload, quickjs.EvalLoadOnly(true))
	if obj.IsException() {
		obj.Free()
		reason := "read failed"
		if err := q.context.Exception(); err != nil {
			reason = quickjsException(err).Message
		}
		return Undefined(), fmt.Errorf("quickjs: unreadable bytecode: %s", reason)
	}
	obj.Free()

	res := q.context.EvalBytecode(payload)
	defer res.Free()
	return q.result(res)
}

func (q *QuickJSBinding) GetGlobal(name string) (Value, error) {
	v := q.context.Globals().Get(name)
	defer v.Free()
	return q.result(v)
}

func (q *QuickJSBinding) SetGlobalFunc(name string, fn HostFunc) error {
	wrapped := q.context.NewFunction(func(ctx *quickjs.Context, this *quickjs.Value, args []*quickjs.Value) (ret *quickjs.Value) {
		defer func() {
			if r := recover(); r != nil {
				ret = ctx.ThrowError(fmt.Errorf("host function %s panicked: %v", name, r))
			}
		}()
		in := make([]Value, len(args))
		for i, a := range args {
			in[i] = quickjsValue(a)
		}
		out, err := fn(in)
		if err != nil {
			return ctx.ThrowError(err)
		}
		return toQuickJS(ctx, out)
	})
	// Set takes ownership of wrapped.
	q.context.Globals().Set(name, wrapped)
	return nil
}

func (q *QuickJSBinding) CallGlobal(name string, args []Value) (Value, error) {
	jsArgs := make([]*quickjs.Value, len(args))
	for i, a := range args {
		jsArgs[i] = toQuickJS(q.context, a)
	}
	defer func() {
		for _, a := range jsArgs {
			a.Free()
		}
	}()
	res := q.context.Globals().Call(name, jsArgs...)
	defer res.Free()
	return q.result(res)
}

// ExecutePendingJob runs the context loop, which executes every queued job.
// The loop does not report how many jobs ran. With a JobTimeout the loop is
// interrupted once the budget is spent.
func (q *QuickJSBinding) ExecutePendingJob() (bool, error) {
	if q.jobTimeout > 0 {
		q.deadline = time.Now().Add(q.jobTimeout)
		defer func() { q.deadline = time.Time{} }()
	}
	q.context.Loop()
	if !q.deadline.IsZero() && time.Now().After(q.deadline) {
		return false, fmt.Errorf("quickjs: %w (%s)", errJobTimeout, q.jobTimeout)
	}
	return false, nil
}

// interrupt aborts running script once a drain deadline has passed.
func (q *QuickJSBinding) interrupt() int {
	if !q.deadline.IsZero() && time.Now().After(q.deadline) {
		return 1
	}
	return 0
}

func (q *QuickJSBinding) FreeContext() {
	if q.context != nil {
		q.context.Close()
		q.context = nil
	}
}

func (q *QuickJSBinding) FreeRuntime() {
	if q.runtime != nil {
		q.runtime.Close()
		q.runtime = nil
	}
}

func (q *QuickJSBinding) result(v *quickjs.Value) (Value, error) {
	if v.IsException() {
		if err := q.context.Exception(); err != nil {
			return Undefined(), quickjsException(err)
		}
		return Undefined(), &Exception{Message: "quickjs exception"}
	}
	return quickjsValue(v), nil
}

func quickjsException(err error) *Exception {
	var qerr *quickjs.Error
	if errors.As(err, &qerr) {
		msg := qerr.Message
		if qerr.Name != "" {
			msg = qerr.Name + ": " + msg
		}
		return &Exception{Message: msg, Stack: qerr.Stack}
	}
	return &Exception{Message: err.Error()}
}

func quickjsValue(v *quickjs.Value) Value {
	switch {
	case v.IsUndefined():
		return Undefined()
	case v.IsNull():
		return Null()
	case v.IsBool():
		return Bool(v.ToBool())
	case v.IsNumber():
		return Number(v.ToFloat64())
	case v.IsString():
		return String(v.ToString())
	case v.IsFunction():
		return Function(v.ToString())
	default:
		return Object(v.ToString())
	}
}

func toQuickJS(ctx *quickjs.Context, v Value) *quickjs.Value {
	switch v.Kind() {
	case KindUndefined:
		return ctx.Undefined()
	case KindNull:
		return ctx.Null()
	case KindBool:
		b, _ := v.AsBool()
		return ctx.Bool(b)
	case KindNumber:
		n, _ := v.AsNumber()
		return ctx.Float64(n)
	default:
		return ctx.String(v.String())
	}
}
