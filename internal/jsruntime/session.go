package jsruntime

import (
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"
)

// State is the session lifecycle state.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// DefaultMaxPendingJobs bounds a single DrainPendingJobs call.
const DefaultMaxPendingJobs = 10000

// Options configures a Session.
type Options struct {
	// MaxStackSize is passed to the engine. Zero disables the stack depth
	// guard, which lets deeply recursive scripts run but turns a runaway
	// recursion into a native crash.
	MaxStackSize uint64
	MemoryLimit  uint64
	// MaxPendingJobs is the most jobs one drain may run; reaching it fails
	// the drain with KindJobLimit. Zero selects DefaultMaxPendingJobs and a
	// negative value removes the cap. It only counts jobs for bindings that
	// step one job at a time: QuickJS and V8 drain their whole queue in one
	// step, so for them the count stays zero and JobTimeout is the bound.
	MaxPendingJobs int
	// JobTimeout bounds the time one drain may spend running jobs; running
	// past it fails the drain with KindJobLimit. Zero means no bound.
	JobTimeout time.Duration
	// Console receives console output. Nil logs through Logger.
	Console ConsoleFunc
	Logger  *slog.Logger
}

// Session owns one runtime and one context of a native engine.
//
// A Session is not safe for concurrent use: every call must come from the
// goroutine that owns it (see executor.Thread). Overlapping calls are
// rejected with KindInvalidState rather than serialized.
type Session struct {
	binding Binding
	opts    Options
	logger  *slog.Logger

	state      State
	busy       atomic.Bool
	hasRuntime bool
	hasContext bool
}

// NewSession wraps binding. The engine is not created until Initialize.
func NewSession(binding Binding, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.MaxPendingJobs == 0 {
		opts.MaxPendingJobs = DefaultMaxPendingJobs
	}
	if opts.Console == nil {
		opts.Console = LogConsole(logger)
	}
	return &Session{
		binding: binding,
		opts:    opts,
		logger:  logger.With("runtime", string(binding.Type())),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Runtime returns the engine family of the underlying binding.
func (s *Session) Runtime() RuntimeType {
	return s.binding.Type()
}

// BuildID returns the engine build identity stamped into bytecode.
func (s *Session) BuildID() string {
	return s.binding.BuildID()
}

func (s *Session) enter(op string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return newError(KindInvalidState, "%s: session is busy with another call", op)
	}
	return nil
}

func (s *Session) leave() {
	s.busy.Store(false)
}

func (s *Session) enterReady(op string) error {
	if err := s.enter(op); err != nil {
		return err
	}
	if s.state != StateReady {
		s.leave()
		return newError(KindInvalidState, "%s: session is %s", op, s.state)
	}
	return nil
}

// Initialize creates the runtime and context and installs the console. On
// failure everything created so far is released and the session is left
// terminal.
func (s *Session) Initialize() error {
	if err := s.enter("initialize"); err != nil {
		return err
	}
	defer s.leave()
	if s.state != StateUninitialized {
		return newError(KindInvalidState, "initialize: session is %s", s.state)
	}

	start := time.Now()
	if s.opts.MaxStackSize == 0 {
		s.logger.Warn("stack depth guard disabled; deep recursion can crash the process")
	}
	cfg := RuntimeConfig{
		MaxStackSize: s.opts.MaxStackSize,
		MemoryLimit:  s.opts.MemoryLimit,
		JobTimeout:   s.opts.JobTimeout,
	}
	if err := s.binding.CreateRuntime(cfg); err != nil {
		s.state = StateShutdown
		s.logger.Error("failed to create js runtime", "error", err)
		return wrapError(KindEngineInit, "create runtime", err)
	}
	s.hasRuntime = true

	if err := s.binding.CreateContext(); err != nil {
		s.release()
		s.logger.Error("failed to create js context", "error", err)
		return wrapError(KindEngineInit, "create context", err)
	}
	s.hasContext = true

	if err := s.installConsole(); err != nil {
		s.release()
		s.logger.Error("failed to install console", "error", err)
		return wrapError(KindEngineInit, "install console", err)
	}

	s.state = StateReady
	s.logger.Debug("session initialized", "build", s.binding.BuildID(), "cost", time.Since(start))
	return nil
}

func (s *Session) installConsole() error {
	if err := s.binding.SetGlobalFunc(consoleHostFunc, consoleHandler(s.opts.Console, s.logger)); err != nil {
		return err
	}
	_, err := s.binding.EvalSource(consoleShim, "<console>")
	return err
}

// Evaluate runs source as a top-level script and returns its completion
// value. Pending jobs are left queued.
func (s *Session) Evaluate(source, name string) (Value, error) {
	if err := s.enterReady("evaluate"); err != nil {
		return Undefined(), err
	}
	defer s.leave()

	v, err := s.binding.EvalSource(source, name)
	if err != nil {
		return Undefined(), wrapError(KindScript, "evaluate "+name, err)
	}
	return v, nil
}

// CompileToBytecode compiles source without running it and returns an
// enveloped payload bound to this engine build.
func (s *Session) CompileToBytecode(source, name string) ([]byte, error) {
	if err := s.enterReady("compile"); err != nil {
		return nil, err
	}
	defer s.leave()

	payload, err := s.binding.Compile(source, name)
	if err != nil {
		return nil, wrapError(KindCompile, "compile "+name, err)
	}
	code, err := encodeBytecode(s.binding.Type(), s.binding.BuildID(), payload)
	if err != nil {
		return nil, wrapError(KindCompile, "compile "+name, err)
	}
	return code, nil
}

// EvaluateBytecode runs bytecode produced by CompileToBytecode on a
// compatible build. Anything else is rejected before it reaches the engine.
func (s *Session) EvaluateBytecode(code []byte) (Value, error) {
	if err := s.enterReady("evaluate bytecode"); err != nil {
		return Undefined(), err
	}
	defer s.leave()

	h, payload, err := ReadBytecodeHeader(code)
	if err != nil {
		return Undefined(), &Error{Kind: KindBytecode, Message: err.Error()}
	}
	if h.Runtime != s.binding.Type() || h.BuildID != s.binding.BuildID() {
		return Undefined(), newError(KindBytecode,
			"bytecode built for %s %s, session runs %s %s",
			h.Runtime, h.BuildID, s.binding.Type(), s.binding.BuildID())
	}

	v, err := s.binding.EvalBytecode(payload)
	if err != nil {
		var exc *Exception
		if errors.As(err, &exc) {
			return Undefined(), wrapError(KindScript, "evaluate bytecode", err)
		}
		return Undefined(), wrapError(KindBytecode, "evaluate bytecode", err)
	}
	return v, nil
}

// DrainPendingJobs runs queued jobs until the engine reports none left and
// returns how many ran.
func (s *Session) DrainPendingJobs() (int, error) {
	if err := s.enterReady("drain pending jobs"); err != nil {
		return 0, err
	}
	defer s.leave()
	return s.drain()
}

func (s *Session) drain() (int, error) {
	limit := s.opts.MaxPendingJobs
	n := 0
	for {
		if limit > 0 && n >= limit {
			return n, newError(KindJobLimit, "pending job limit %d reached", limit)
		}
		ran, err := s.binding.ExecutePendingJob()
		if errors.Is(err, errJobTimeout) {
			return n, wrapError(KindJobLimit, "pending jobs", err)
		}
		if err != nil {
			return n, wrapError(KindScript, "pending job", err)
		}
		if !ran {
			return n, nil
		}
		n++
	}
}

// InvokeNamedGlobalFunction calls the global function name with args and
// then drains pending jobs.
func (s *Session) InvokeNamedGlobalFunction(name string, args ...Value) (Value, error) {
	if err := s.enterReady("invoke " + name); err != nil {
		return Undefined(), err
	}
	defer s.leave()

	fn, err := s.binding.GetGlobal(name)
	if err != nil {
		return Undefined(), wrapError(KindLookup, "lookup "+name, err)
	}
	if !fn.IsCallable() {
		return Undefined(), newError(KindLookup, "global %q is %s, not a function", name, fn.Kind())
	}

	ret, err := s.binding.CallGlobal(name, args)
	if err != nil {
		return Undefined(), wrapError(KindScript, "call "+name, err)
	}
	if _, err := s.drain(); err != nil {
		return ret, err
	}
	return ret, nil
}

// Shutdown releases the context and then the runtime. Calling it again, or
// after a failed Initialize, does nothing.
func (s *Session) Shutdown() {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Error("shutdown called while the session is busy")
		return
	}
	defer s.leave()
	s.release()
}

func (s *Session) release() {
	if s.hasContext {
		s.hasContext = false
		s.binding.FreeContext()
	}
	if s.hasRuntime {
		s.hasRuntime = false
		s.binding.FreeRuntime()
	}
	if s.state != StateShutdown {
		s.state = StateShutdown
		s.logger.Debug("session shut down")
	}
}
