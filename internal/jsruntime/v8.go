//go:build use_v8

package jsruntime

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	v8 "rogchap.com/v8go"
)

func init() {
	defaultRuntimeType = RuntimeV8
}

// newBinding creates the default binding for this build
func newBinding() Binding {
	return NewV8Binding()
}

// V8Binding drives V8 through rogchap.com/v8go. V8 has no portable bytecode,
// so compiled output is the source plus a code cache; a cache rejected by
// the running isolate is reported as an error rather than silently
// recompiled.
type V8Binding struct {
	isolate    *v8.Isolate
	context    *v8.Context
	jobTimeout time.Duration
}

type v8Payload struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Cache  []byte `json:"cache"`
}

// NewV8Binding returns a binding with no isolate created yet.
func NewV8Binding() *V8Binding {
	return &V8Binding{}
}

func (v *V8Binding) Type() RuntimeType { return RuntimeV8 }

func (v *V8Binding) BuildID() string { return "v8@" + v8.Version() }

// CreateRuntime creates the isolate. v8go exposes neither a stack size nor a
// heap limit, so only JobTimeout is taken from cfg.
func (v *V8Binding) CreateRuntime(cfg RuntimeConfig) error {
	iso := v8.NewIsolate()
	if iso == nil {
		return errors.New("v8: failed to create isolate")
	}
	v.isolate = iso
	v.jobTimeout = cfg.JobTimeout
	return nil
}

func (v *V8Binding) CreateContext() error {
	if v.isolate == nil {
		return errors.New("v8: no isolate")
	}
	v.context = v8.NewContext(v.isolate)
	return nil
}

func (v *V8Binding) Compile(source, name string) ([]byte, error) {
	script, err := v.isolate.CompileUnboundScript(source, name, v8.CompileOptions{})
	if err != nil {
		return nil, v8Exception(err)
	}
	cache := script.CreateCodeCache()
	return json.Marshal(v8Payload{Name: name, Source: source, Cache: cache.Bytes})
}

func (v *V8Binding) EvalSource(source, name string) (Value, error) {
	val, err := v.context.RunScript(source, name)
	if err != nil {
		return Undefined(), v8Exception(err)
	}
	return v8Value(val), nil
}

func (v *V8Binding) EvalBytecode(payload []byte) (Value, error) {
	var p v8Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Undefined(), fmt.Errorf("v8: decode code cache: %w", err)
	}
	cached := &v8.CompilerCachedData{Bytes: p.Cache}
	script, err := v.isolate.CompileUnboundScript(p.Source, p.Name, v8.CompileOptions{CachedData: cached})
	if err != nil {
		return Undefined(), v8Exception(err)
	}
	if cached.Rejected {
		return Undefined(), errors.New("v8: code cache rejected by this isolate")
	}
	val, err := script.Run(v.context)
	if err != nil {
		return Undefined(), v8Exception(err)
	}
	return v8Value(val), nil
}

func (v *V8Binding) GetGlobal(name string) (Value, error) {
	val, err := v.context.Global().Get(name)
	if err != nil {
		return Undefined(), v8Exception(err)
	}
	return v8Value(val), nil
}

func (v *V8Binding) SetGlobalFunc(name string, fn HostFunc) error {
	iso := v.isolate
	tmpl := v8.NewFunctionTemplate(iso, func(info *v8.FunctionCallbackInfo) (ret *v8.Value) {
		defer func() {
			if r := recover(); r != nil {
				ret = v8Throw(iso, fmt.Errorf("host function %s panicked: %v", name, r))
			}
		}()
		args := info.Args()
		in := make([]Value, len(args))
		for i, a := range args {
			in[i] = v8Value(a)
		}
		out, err := fn(in)
		if err != nil {
			return v8Throw(iso, err)
		}
		val, err := toV8(iso, out)
		if err != nil {
			return v8Throw(iso, err)
		}
		return val
	})
	return v.context.Global().Set(name, tmpl.GetFunction(v.context))
}

func (v *V8Binding) CallGlobal(name string, args []Value) (Value, error) {
	global := v.context.Global()
	val, err := global.Get(name)
	if err != nil {
		return Undefined(), v8Exception(err)
	}
	fn, err := val.AsFunction()
	if err != nil {
		return Undefined(), err
	}
	argv := make([]v8.Valuer, len(args))
	for i, a := range args {
		jv, err := toV8(v.isolate, a)
		if err != nil {
			return Undefined(), err
		}
		argv[i] = jv
	}
	ret, err := fn.Call(global, argv...)
	if err != nil {
		return Undefined(), v8Exception(err)
	}
	return v8Value(ret), nil
}

// ExecutePendingJob runs a microtask checkpoint, which empties the queue.
// With a JobTimeout the isolate is terminated once the budget is spent.
func (v *V8Binding) ExecutePendingJob() (bool, error) {
	if v.jobTimeout <= 0 {
		v.context.PerformMicrotaskCheckpoint()
		return false, nil
	}
	var fired atomic.Bool
	iso := v.isolate
	timer := time.AfterFunc(v.jobTimeout, func() {
		fired.Store(true)
		iso.TerminateExecution()
	})
	v.context.PerformMicrotaskCheckpoint()
	timer.Stop()
	if fired.Load() {
		return false, fmt.Errorf("v8: %w (%s)", errJobTimeout, v.jobTimeout)
	}
	return false, nil
}

func (v *V8Binding) FreeContext() {
	if v.context != nil {
		v.context.Close()
		v.context = nil
	}
}

func (v *V8Binding) FreeRuntime() {
	if v.isolate != nil {
		v.isolate.Dispose()
		v.isolate = nil
	}
}

func v8Exception(err error) error {
	var jsErr *v8.JSError
	if errors.As(err, &jsErr) {
		return &Exception{Message: jsErr.Message, Stack: jsErr.StackTrace}
	}
	return &Exception{Message: err.Error()}
}

func v8Throw(iso *v8.Isolate, err error) *v8.Value {
	msg, verr := v8.NewValue(iso, err.Error())
	if verr != nil {
		return v8.Undefined(iso)
	}
	return iso.ThrowException(msg)
}

func v8Value(val *v8.Value) Value {
	switch {
	case val == nil || val.IsUndefined():
		return Undefined()
	case val.IsNull():
		return Null()
	case val.IsBoolean():
		return Bool(val.Boolean())
	case val.IsNumber():
		return Number(val.Number())
	case val.IsString():
		return String(val.String())
	case val.IsFunction():
		return Function(val.String())
	default:
		return Object(val.String())
	}
}

func toV8(iso *v8.Isolate, v Value) (*v8.Value, error) {
	switch v.Kind() {
	case KindUndefined:
		return v8.Undefined(iso), nil
	case KindNull:
		return v8.Null(iso), nil
	case KindBool:
		b, _ := v.AsBool()
		return v8.NewValue(iso, b)
	case KindNumber:
		n, _ := v.AsNumber()
		return v8.NewValue(iso, n)
	default:
		return v8.NewValue(iso, v.String())
	}
}
