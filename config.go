package jshost

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/yejune/go-jshost/internal/cache"
	"github.com/yejune/go-jshost/internal/jsruntime"
)

// DefaultMaxStackSize is the engine call-stack budget used unless the guard
// is disabled.
const DefaultMaxStackSize = 1 << 20

// DefaultJobTimeout bounds one drain of pending jobs.
const DefaultJobTimeout = 10 * time.Second

// Config configures a Host.
type Config struct {
	// AppEnv set to "production" skips dev tools in dev builds.
	AppEnv string
	// Runtime selects the engine; empty uses the build default.
	Runtime jsruntime.RuntimeType
	// Name labels the host's thread in logs.
	Name string

	// Assets backs "asset:" paths. When nil and AssetDir is set, AssetDir is
	// opened with os.DirFS.
	Assets   fs.FS
	AssetDir string
	// FileRoot confines "file:" and bare paths. Empty allows any path.
	FileRoot string

	MaxStackSize uint64
	// DisableStackGuard runs the engine with no stack depth limit.
	DisableStackGuard bool
	MemoryLimit       uint64
	// MaxPendingJobs caps jobs per drain for engines that count them one by
	// one. QuickJS and V8 drain in one step, so JobTimeout bounds them.
	MaxPendingJobs int
	// JobTimeout bounds one drain of pending jobs. Zero selects 10s and a
	// negative value removes the bound.
	JobTimeout time.Duration
	QueueSize  int
	// CallTimeout bounds how long a synchronous call waits for the engine
	// thread.
	CallTimeout time.Duration

	// Transpile sends every source file through esbuild, not only
	// TypeScript and module files.
	Transpile bool
	Target    string
	// Bundle resolves the imports of file scripts with esbuild into one
	// script before compiling. Asset scripts are only transpiled.
	Bundle bool

	Cache        cache.CacheConfig
	DisableCache bool

	// Console receives every console line in addition to the logger.
	Console jsruntime.ConsoleFunc
	Logger  *slog.Logger

	// HotReloadAddr serves the dev websocket relay, e.g. "localhost:3001".
	HotReloadAddr string
	// WatchEntry is re-run whenever it or a file under WatchPaths changes.
	WatchEntry string
	WatchPaths []string
	Debounce   time.Duration
	// GeneratedTypesPath receives TypeScript declarations for reports.
	GeneratedTypesPath string
	Generators         []Generator
}

// Validate checks the config and fills defaults.
func (c *Config) Validate() error {
	if c.Runtime == "" {
		c.Runtime = jsruntime.DefaultRuntimeType()
	}
	if c.Runtime != jsruntime.DefaultRuntimeType() {
		return fmt.Errorf("runtime %q is not available in this build (have %q)", c.Runtime, jsruntime.DefaultRuntimeType())
	}
	if c.Name == "" {
		c.Name = "jshost"
	}
	if c.DisableStackGuard {
		c.MaxStackSize = 0
	} else if c.MaxStackSize == 0 {
		c.MaxStackSize = DefaultMaxStackSize
	}
	if c.MaxPendingJobs == 0 {
		c.MaxPendingJobs = jsruntime.DefaultMaxPendingJobs
	}
	if c.JobTimeout == 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.Debounce <= 0 {
		c.Debounce = 200 * time.Millisecond
	}
	if c.Assets == nil && c.AssetDir != "" {
		if err := checkDir(c.AssetDir); err != nil {
			return fmt.Errorf("asset dir: %w", err)
		}
		c.Assets = os.DirFS(c.AssetDir)
	}
	if c.FileRoot != "" {
		if err := checkDir(c.FileRoot); err != nil {
			return fmt.Errorf("file root: %w", err)
		}
	}
	if c.Cache.Type != "" && c.Cache.Type != cache.CacheTypeLocal && c.Cache.Type != cache.CacheTypeRedis {
		return fmt.Errorf("unknown cache type %q", c.Cache.Type)
	}
	if c.Cache.Type == cache.CacheTypeRedis && c.Cache.RedisAddr == "" {
		return fmt.Errorf("redis cache requires an address")
	}
	return nil
}

func checkDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
