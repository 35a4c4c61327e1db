// Package jshost embeds a JavaScript engine behind a single-threaded host.
//
// A Host owns one engine session on its own OS thread. Scripts are loaded
// through "asset:" and "file:" paths, compiled to bytecode (cached by engine
// build and content) and run; console output and pending promise jobs are
// collected into a RunReport.
package jshost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yejune/go-jshost/internal/cache"
	"github.com/yejune/go-jshost/internal/executor"
	"github.com/yejune/go-jshost/internal/jsruntime"
	"github.com/yejune/go-jshost/internal/scriptbuilder"
	"github.com/yejune/go-jshost/internal/source"
)

// CallbackFunc is the global function CallJS invokes with a callback id and
// its parameters.
const CallbackFunc = "hostCallJs"

type Host struct {
	Logger    *slog.Logger
	Config    *Config
	Cache     cache.Cache
	HotReload *HotReload

	provider  *source.Provider
	thread    *executor.Thread
	session   *jsruntime.Session
	logLine   jsruntime.ConsoleFunc
	ownsCache bool

	// lines is only touched on the engine thread.
	lines []ConsoleLine

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates a Host and initializes its engine session.
func New(config Config) (*Host, error) {
	return newHost(config, nil)
}

func newHost(config Config, shared cache.Cache) (*Host, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	host := &Host{
		Logger: logger,
		Config: &config,
	}

	if err := host.Config.Validate(); err != nil {
		host.Logger.Error("Failed to validate config", "error", err)
		return nil, err
	}

	switch {
	case shared != nil:
		host.Cache = shared
	case !config.DisableCache:
		c, err := cache.NewCache(host.Config.Cache)
		if err != nil {
			host.Logger.Error("Failed to create bytecode cache", "type", host.Config.Cache.Type, "error", err)
			return nil, err
		}
		host.Cache = c
		host.ownsCache = true
	}

	binding, err := jsruntime.NewBinding(host.Config.Runtime)
	if err != nil {
		host.closeCache()
		return nil, err
	}

	host.provider = source.New(host.Config.Assets, host.Config.FileRoot)
	host.logLine = jsruntime.LogConsole(host.Logger)
	host.session = jsruntime.NewSession(binding, jsruntime.Options{
		MaxStackSize:   host.Config.MaxStackSize,
		MemoryLimit:    host.Config.MemoryLimit,
		MaxPendingJobs: host.Config.MaxPendingJobs,
		JobTimeout:     max(host.Config.JobTimeout, 0),
		Console:        host.console,
		Logger:         host.Logger,
	})
	host.thread = executor.New(executor.Config{
		Name:      host.Config.Name,
		QueueSize: host.Config.QueueSize,
		Logger:    host.Logger,
	})
	host.thread.Start()

	var initErr error
	if err := host.thread.Do(context.Background(), func() { initErr = host.session.Initialize() }); err != nil {
		initErr = err
	}
	if initErr != nil {
		host.Logger.Error("Failed to initialize js engine", "error", initErr)
		_ = host.thread.Stop(context.Background())
		host.closeCache()
		return nil, initErr
	}
	host.Logger.Debug("Initialized js host",
		"runtime", string(host.session.Runtime()),
		"build", host.session.BuildID(),
		"stack_size", host.Config.MaxStackSize)

	if err := host.initDevTools(); err != nil {
		_ = host.Shutdown(context.Background())
		return nil, err
	}
	return host, nil
}

// Runtime returns the engine family.
func (host *Host) Runtime() jsruntime.RuntimeType {
	return host.session.Runtime()
}

// BuildID returns the engine build that compiled bytecode is bound to.
func (host *Host) BuildID() string {
	return host.session.BuildID()
}

func (host *Host) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, host.Config.CallTimeout)
}

func (host *Host) console(level jsruntime.ConsoleLevel, line string) {
	host.lines = append(host.lines, ConsoleLine{Level: string(level), Line: line, Time: time.Now()})
	host.logLine(level, line)
	if host.Config.Console != nil {
		host.Config.Console(level, line)
	}
}

// takeLines returns the console lines captured since the last call. Engine
// thread only.
func (host *Host) takeLines() []ConsoleLine {
	lines := host.lines
	host.lines = nil
	return lines
}

// RunFile loads a script and runs it to completion, draining pending jobs.
// Source files are compiled to bytecode first, through the cache when one is
// configured; .kbc1 files are run as bytecode directly.
func (host *Host) RunFile(ctx context.Context, path string) (RunReport, error) {
	report := RunReport{Path: path, Engine: string(host.Runtime()), Build: host.BuildID()}

	unit, err := host.provider.LoadUnit(path)
	if err != nil {
		err = sourceError(err)
		report.setError(err)
		return report, err
	}
	report.Kind = unit.Kind.String()

	var text string
	if unit.Kind == source.KindSource {
		if text, err = host.load(path, unit); err != nil {
			report.setError(err)
			return report, err
		}
	}

	report, err = call(ctx, host, report, func(r *RunReport) error {
		return host.runUnit(r, unit, text)
	})
	host.Logger.Debug("Ran script",
		"path", path,
		"kind", report.Kind,
		"cache_hit", report.CacheHit,
		"compile_cost", report.CompileCost,
		"run_cost", report.RunCost,
		"jobs", report.JobsDrained)
	host.publish(report)
	return report, err
}

func (host *Host) runUnit(report *RunReport, unit source.Unit, text string) error {
	code := unit.Payload
	if unit.Kind == source.KindSource {
		var err error
		if code, err = host.compileCached(report, text, unit.Name); err != nil {
			return err
		}
	}

	start := time.Now()
	v, err := host.session.EvaluateBytecode(code)
	if err != nil {
		report.RunCost = time.Since(start)
		return err
	}
	report.setResult(v)

	report.JobsDrained, err = host.session.DrainPendingJobs()
	report.RunCost = time.Since(start)
	return err
}

func (host *Host) compileCached(report *RunReport, text, name string) ([]byte, error) {
	var key string
	if host.Cache != nil {
		key = cache.Key(string(host.session.Runtime()), host.session.BuildID(), name, []byte(text))
		if code, ok := host.Cache.Get(key); ok {
			if _, _, err := jsruntime.ReadBytecodeHeader(code); err == nil {
				report.CacheHit = true
				return code, nil
			}
			host.Cache.Remove(key)
		}
	}

	start := time.Now()
	code, err := host.session.CompileToBytecode(text, name)
	report.CompileCost = time.Since(start)
	if err != nil {
		return nil, err
	}
	if host.Cache != nil {
		host.Cache.Set(key, code)
	}
	return code, nil
}

// Eval runs source text under name and drains pending jobs.
func (host *Host) Eval(ctx context.Context, src, name string) (RunReport, error) {
	report := RunReport{Path: name, Engine: string(host.Runtime()), Build: host.BuildID(), Kind: source.KindSource.String()}
	text, err := host.prepare(source.Unit{Name: name, Payload: []byte(src)})
	if err != nil {
		report.setError(err)
		return report, err
	}

	return call(ctx, host, report, func(r *RunReport) error {
		start := time.Now()
		defer func() { r.RunCost = time.Since(start) }()
		v, err := host.session.Evaluate(text, name)
		if err != nil {
			return err
		}
		r.setResult(v)
		r.JobsDrained, err = host.session.DrainPendingJobs()
		return err
	})
}

// Compile loads a source script and returns its bytecode without running it.
func (host *Host) Compile(ctx context.Context, path string) ([]byte, error) {
	unit, err := host.provider.LoadUnit(path)
	if err != nil {
		return nil, sourceError(err)
	}
	if unit.Kind == source.KindBytecode {
		return nil, &jsruntime.Error{Kind: jsruntime.KindCompile, Message: path + " is already bytecode"}
	}
	text, err := host.load(path, unit)
	if err != nil {
		return nil, err
	}
	return host.CompileSource(ctx, text, unit.Name)
}

// CompileSource compiles script text to bytecode without running it.
func (host *Host) CompileSource(ctx context.Context, src, name string) ([]byte, error) {
	ctx, cancel := host.callContext(ctx)
	defer cancel()
	code, err := executor.Call(ctx, host.thread, func() ([]byte, error) {
		return host.session.CompileToBytecode(src, name)
	})
	return code, threadError(err)
}

// Invoke calls a global function by name, drains pending jobs and waits for
// the result.
func (host *Host) Invoke(ctx context.Context, name string, args ...jsruntime.Value) (RunReport, error) {
	report := RunReport{Path: name, Engine: string(host.Runtime()), Build: host.BuildID(), Kind: "call"}
	return call(ctx, host, report, func(r *RunReport) error {
		start := time.Now()
		defer func() { r.RunCost = time.Since(start) }()
		v, err := host.session.InvokeNamedGlobalFunction(name, args...)
		if err != nil {
			return err
		}
		r.setResult(v)
		return nil
	})
}

// call runs fn on the engine thread against a copy of report, collecting the
// console lines it produced. If the thread never ran fn, report is returned
// with the admission error.
func call(ctx context.Context, host *Host, report RunReport, fn func(r *RunReport) error) (RunReport, error) {
	ctx, cancel := host.callContext(ctx)
	defer cancel()
	out, err := executor.Call(ctx, host.thread, func() (RunReport, error) {
		r := report
		err := fn(&r)
		r.Console = host.takeLines()
		return r, err
	})
	if out.Engine == "" {
		out = report
	}
	err = threadError(err)
	out.setError(err)
	return out, err
}

// CallJS delivers a callback to the script's hostCallJs function on the
// engine thread and returns without waiting. Failures are logged.
func (host *Host) CallJS(callbackID, params string) error {
	return threadError(host.thread.Post(func() {
		_, err := host.session.InvokeNamedGlobalFunction(CallbackFunc,
			jsruntime.String(callbackID), jsruntime.String(params))
		lines := host.takeLines()
		if err != nil {
			host.Logger.Error("Callback failed", "callback_id", callbackID, "error", err)
		}
		host.publish(RunReport{
			Path:    CallbackFunc + ":" + callbackID,
			Engine:  string(host.session.Runtime()),
			Build:   host.session.BuildID(),
			Kind:    "call",
			Console: lines,
		})
	}))
}

// Drain runs pending jobs outside of any script run.
func (host *Host) Drain(ctx context.Context) (int, error) {
	ctx, cancel := host.callContext(ctx)
	defer cancel()
	n, err := executor.Call(ctx, host.thread, host.session.DrainPendingJobs)
	return n, threadError(err)
}

// Shutdown releases the engine, stops the engine thread after queued work and
// closes the cache. Later calls return the first result.
func (host *Host) Shutdown(ctx context.Context) error {
	host.shutdownOnce.Do(func() {
		host.Logger.Info("Shutting down js host")
		host.stopHotReload(ctx)

		if err := host.thread.Post(host.session.Shutdown); err != nil && !errors.Is(err, executor.ErrStopped) {
			if err := host.thread.Do(ctx, host.session.Shutdown); err != nil {
				host.shutdownErr = fmt.Errorf("release engine: %w", err)
			}
		}
		if err := host.thread.Stop(ctx); err != nil && host.shutdownErr == nil {
			host.shutdownErr = fmt.Errorf("stop engine thread: %w", err)
		}
		host.closeCache()
		host.Logger.Info("js host shutdown complete")
	})
	return host.shutdownErr
}

func (host *Host) closeCache() {
	if host.Cache == nil || !host.ownsCache {
		return
	}
	if err := host.Cache.Close(); err != nil {
		host.Logger.Error("Failed to close cache", "error", err)
	}
}

// load returns the script text for a source unit at path: bundled with its
// imports when Config.Bundle is set and path is on disk, otherwise prepared.
func (host *Host) load(path string, unit source.Unit) (string, error) {
	if !host.Config.Bundle {
		return host.prepare(unit)
	}
	file, ok := host.provider.FilePath(path)
	if !ok {
		return host.prepare(unit)
	}
	res, err := scriptbuilder.Bundle(file, scriptbuilder.Options{Target: host.Config.Target})
	if err != nil {
		return "", &jsruntime.Error{Kind: jsruntime.KindCompile, Message: err.Error(), Cause: err}
	}
	host.watchDependencies(res.Dependencies)
	return res.JS, nil
}

// prepare decodes a source unit and transpiles it when needed.
func (host *Host) prepare(unit source.Unit) (string, error) {
	text, err := unit.Text()
	if err != nil {
		return "", &jsruntime.Error{Kind: jsruntime.KindCompile, Message: err.Error(), Cause: err}
	}
	if !host.Config.Transpile && !scriptbuilder.NeedsTransform(unit.Name) {
		return text, nil
	}
	res, err := scriptbuilder.Transform(text, unit.Name, scriptbuilder.Options{Target: host.Config.Target})
	if err != nil {
		return "", &jsruntime.Error{Kind: jsruntime.KindCompile, Message: err.Error(), Cause: err}
	}
	return res.JS, nil
}

// threadError reports a stopped engine thread as a shut down session.
func threadError(err error) error {
	if errors.Is(err, executor.ErrStopped) {
		return &jsruntime.Error{Kind: jsruntime.KindInvalidState, Message: "host is shut down", Cause: err}
	}
	return err
}

func sourceError(err error) error {
	if errors.Is(err, source.ErrNotFound) {
		return &jsruntime.Error{Kind: jsruntime.KindSourceNotFound, Message: err.Error(), Cause: err}
	}
	return err
}
