package jsruntime

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinding records calls and lets tests script engine behaviour.
type fakeBinding struct {
	calls []string

	runtimeErr error
	contextErr error

	globals map[string]Value
	funcs   map[string]HostFunc
	callRet Value
	callErr error

	evalRet Value
	evalErr error

	jobs   int
	jobErr error

	build string
}

func newFakeBinding() *fakeBinding {
	return &fakeBinding{
		globals: map[string]Value{},
		funcs:   map[string]HostFunc{},
		build:   "fake@1",
	}
}

func (f *fakeBinding) Type() RuntimeType { return "fake" }
func (f *fakeBinding) BuildID() string   { return f.build }

func (f *fakeBinding) CreateRuntime(RuntimeConfig) error {
	f.calls = append(f.calls, "create-runtime")
	return f.runtimeErr
}

func (f *fakeBinding) CreateContext() error {
	f.calls = append(f.calls, "create-context")
	return f.contextErr
}

func (f *fakeBinding) Compile(source, name string) ([]byte, error) {
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	return []byte(source), nil
}

func (f *fakeBinding) EvalSource(source, name string) (Value, error) {
	if name == "<console>" {
		return Undefined(), nil
	}
	return f.evalRet, f.evalErr
}

func (f *fakeBinding) EvalBytecode(payload []byte) (Value, error) {
	f.calls = append(f.calls, "eval-bytecode:"+string(payload))
	return f.evalRet, f.evalErr
}

func (f *fakeBinding) GetGlobal(name string) (Value, error) {
	if _, ok := f.funcs[name]; ok {
		return Function(name), nil
	}
	if v, ok := f.globals[name]; ok {
		return v, nil
	}
	return Undefined(), nil
}

func (f *fakeBinding) SetGlobalFunc(name string, fn HostFunc) error {
	f.funcs[name] = fn
	return nil
}

func (f *fakeBinding) CallGlobal(name string, args []Value) (Value, error) {
	f.calls = append(f.calls, "call:"+name)
	if fn, ok := f.funcs[name]; ok {
		return fn(args)
	}
	return f.callRet, f.callErr
}

func (f *fakeBinding) ExecutePendingJob() (bool, error) {
	if f.jobErr != nil {
		return false, f.jobErr
	}
	if f.jobs == 0 {
		return false, nil
	}
	f.jobs--
	return true, nil
}

func (f *fakeBinding) FreeContext() { f.calls = append(f.calls, "free-context") }
func (f *fakeBinding) FreeRuntime() { f.calls = append(f.calls, "free-runtime") }

func (f *fakeBinding) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func readySession(t *testing.T, f *fakeBinding, opts Options) *Session {
	t.Helper()
	s := NewSession(f, opts)
	require.NoError(t, s.Initialize())
	require.Equal(t, StateReady, s.State())
	return s
}

func TestSession_InitializeInstallsConsole(t *testing.T) {
	f := newFakeBinding()
	var got []string
	s := readySession(t, f, Options{Console: func(level ConsoleLevel, line string) {
		got = append(got, string(level)+"|"+line)
	}})
	defer s.Shutdown()

	fn, ok := f.funcs[consoleHostFunc]
	require.True(t, ok)
	_, err := fn([]Value{String("log"), String("a 1 true")})
	require.NoError(t, err)
	_, err = fn([]Value{String("error"), String("boom")})
	require.NoError(t, err)

	assert.Equal(t, []string{"log|a 1 true", "error|boom"}, got)
}

func TestSession_InitializeTwice(t *testing.T) {
	s := readySession(t, newFakeBinding(), Options{})
	defer s.Shutdown()

	err := s.Initialize()
	assert.True(t, errors.Is(err, ErrInvalidState))
	assert.Equal(t, StateReady, s.State())
}

func TestSession_RuntimeCreationFails(t *testing.T) {
	f := newFakeBinding()
	f.runtimeErr = errors.New("out of memory")
	s := NewSession(f, Options{})

	err := s.Initialize()
	require.Error(t, err)
	assert.Equal(t, KindEngineInit, KindOf(err))
	assert.True(t, IsFatal(err))
	assert.Equal(t, StateShutdown, s.State())
	assert.Zero(t, f.count("free-runtime"))
	assert.Zero(t, f.count("free-context"))
}

func TestSession_ContextCreationFailsReleasesRuntime(t *testing.T) {
	f := newFakeBinding()
	f.contextErr = errors.New("no context")
	s := NewSession(f, Options{})

	err := s.Initialize()
	assert.Equal(t, KindEngineInit, KindOf(err))
	assert.Equal(t, StateShutdown, s.State())
	assert.Equal(t, 1, f.count("free-runtime"))
	assert.Zero(t, f.count("free-context"))

	s.Shutdown()
	assert.Equal(t, 1, f.count("free-runtime"))
}

func TestSession_ShutdownIsIdempotent(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})

	s.Shutdown()
	s.Shutdown()

	assert.Equal(t, StateShutdown, s.State())
	assert.Equal(t, 1, f.count("free-context"))
	assert.Equal(t, 1, f.count("free-runtime"))

	idxCtx, idxRt := -1, -1
	for i, c := range f.calls {
		switch c {
		case "free-context":
			idxCtx = i
		case "free-runtime":
			idxRt = i
		}
	}
	assert.Less(t, idxCtx, idxRt, "context must be released before runtime")
}

func TestSession_ShutdownBeforeInitialize(t *testing.T) {
	f := newFakeBinding()
	s := NewSession(f, Options{})
	s.Shutdown()

	assert.Equal(t, StateShutdown, s.State())
	assert.Empty(t, f.calls)
	assert.True(t, errors.Is(s.Initialize(), ErrInvalidState))
}

func TestSession_OperationsRequireReady(t *testing.T) {
	f := newFakeBinding()
	s := NewSession(f, Options{})

	_, err := s.Evaluate("1", "a.js")
	assert.Equal(t, KindInvalidState, KindOf(err))

	require.NoError(t, s.Initialize())
	s.Shutdown()

	_, err = s.Evaluate("1", "a.js")
	assert.Equal(t, KindInvalidState, KindOf(err))
	_, err = s.CompileToBytecode("1", "a.js")
	assert.Equal(t, KindInvalidState, KindOf(err))
	_, err = s.EvaluateBytecode([]byte("x"))
	assert.Equal(t, KindInvalidState, KindOf(err))
	_, err = s.DrainPendingJobs()
	assert.Equal(t, KindInvalidState, KindOf(err))
	_, err = s.InvokeNamedGlobalFunction("f")
	assert.Equal(t, KindInvalidState, KindOf(err))
}

func TestSession_EvaluateScriptError(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	f.evalErr = &Exception{Message: "ReferenceError: x is not defined", Stack: "at a.js:1"}
	_, err := s.Evaluate("x", "a.js")

	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindScript, e.Kind)
	assert.Equal(t, "ReferenceError: x is not defined", e.Message)
	assert.Equal(t, "at a.js:1", e.Stack)
	assert.Equal(t, StateReady, s.State())
}

func TestSession_DrainCountsJobs(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	f.jobs = 3
	n, err := s.DrainPendingJobs()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = s.DrainPendingJobs()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSession_DrainLimit(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{MaxPendingJobs: 5})
	defer s.Shutdown()

	f.jobs = 100
	n, err := s.DrainPendingJobs()
	assert.Equal(t, 5, n)
	assert.True(t, errors.Is(err, ErrJobLimit))
	assert.Equal(t, StateReady, s.State())
}

func TestSession_DrainUnlimited(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{MaxPendingJobs: -1})
	defer s.Shutdown()

	f.jobs = DefaultMaxPendingJobs + 10
	n, err := s.DrainPendingJobs()
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxPendingJobs+10, n)
}

func TestSession_DrainJobError(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	f.jobErr = &Exception{Message: "Error: rejected"}
	_, err := s.DrainPendingJobs()
	assert.Equal(t, KindScript, KindOf(err))
}

func TestSession_DrainJobTimeout(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{JobTimeout: time.Second})
	defer s.Shutdown()

	f.jobErr = fmt.Errorf("fake: %w", errJobTimeout)
	_, err := s.DrainPendingJobs()
	assert.Equal(t, KindJobLimit, KindOf(err))
	assert.Equal(t, StateReady, s.State())
}

func TestSession_InvokeMissingFunction(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	_, err := s.InvokeNamedGlobalFunction("missingFn")
	assert.True(t, errors.Is(err, ErrLookup))
	assert.Equal(t, StateReady, s.State())

	f.globals["notFn"] = Number(3)
	_, err = s.InvokeNamedGlobalFunction("notFn")
	assert.True(t, errors.Is(err, ErrLookup))
	assert.Zero(t, f.count("call:notFn"))
}

func TestSession_InvokeDrainsJobs(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	var got []Value
	f.funcs["hostCallJs"] = func(args []Value) (Value, error) {
		got = args
		f.jobs = 2
		return String("ok"), nil
	}

	ret, err := s.InvokeNamedGlobalFunction("hostCallJs", String("cb-1"), String(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, "ok", ret.String())
	assert.Equal(t, []Value{String("cb-1"), String(`{"a":1}`)}, got)
	assert.Zero(t, f.jobs)
}

func TestSession_InvokeThrows(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	f.funcs["boom"] = func([]Value) (Value, error) {
		return Undefined(), &Exception{Message: "Error: boom"}
	}
	_, err := s.InvokeNamedGlobalFunction("boom")
	assert.Equal(t, KindScript, KindOf(err))
	assert.Equal(t, StateReady, s.State())
}

func TestSession_BytecodeRoundTrip(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	code, err := s.CompileToBytecode("1+1", "a.js")
	require.NoError(t, err)

	h, payload, err := ReadBytecodeHeader(code)
	require.NoError(t, err)
	assert.Equal(t, RuntimeType("fake"), h.Runtime)
	assert.Equal(t, "fake@1", h.BuildID)
	assert.Equal(t, "1+1", string(payload))

	f.evalRet = Number(2)
	v, err := s.EvaluateBytecode(code)
	require.NoError(t, err)
	assert.Equal(t, "2", v.String())
	assert.Equal(t, 1, f.count("eval-bytecode:1+1"))
}

func TestSession_BytecodeFromOtherBuild(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	code, err := encodeBytecode("fake", "fake@0", []byte("1"))
	require.NoError(t, err)

	_, err = s.EvaluateBytecode(code)
	assert.True(t, errors.Is(err, ErrBytecode))
	assert.Zero(t, f.count("eval-bytecode:1"))
	assert.Equal(t, StateReady, s.State())
}

func TestSession_BytecodeCorrupted(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	code, err := s.CompileToBytecode("1+1", "a.js")
	require.NoError(t, err)
	code[len(code)-1] ^= 0xff

	_, err = s.EvaluateBytecode(code)
	assert.True(t, errors.Is(err, ErrBytecode))

	_, err = s.EvaluateBytecode([]byte{0x02, 0x10, 0x00})
	assert.True(t, errors.Is(err, ErrBytecode))
}

func TestSession_BytecodeEngineRejects(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	code, err := s.CompileToBytecode("x", "a.js")
	require.NoError(t, err)

	f.evalErr = errors.New("invalid bytecode")
	_, err = s.EvaluateBytecode(code)
	assert.Equal(t, KindBytecode, KindOf(err))

	f.evalErr = &Exception{Message: "TypeError: nope"}
	_, err = s.EvaluateBytecode(code)
	assert.Equal(t, KindScript, KindOf(err))
}

func TestSession_RejectsReentrantCall(t *testing.T) {
	f := newFakeBinding()
	s := readySession(t, f, Options{})
	defer s.Shutdown()

	var inner error
	f.funcs["reenter"] = func([]Value) (Value, error) {
		_, inner = s.Evaluate("1", "inner.js")
		return Undefined(), nil
	}
	_, err := s.InvokeNamedGlobalFunction("reenter")
	require.NoError(t, err)
	assert.True(t, errors.Is(inner, ErrInvalidState))
}

func TestNewBinding(t *testing.T) {
	b, err := NewBinding("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntimeType(), b.Type())

	_, err = NewBinding("spidermonkey")
	assert.Error(t, err)
}
