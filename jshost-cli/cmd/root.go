package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	jshost "github.com/yejune/go-jshost"
	"github.com/yejune/go-jshost/internal/cache"
	"github.com/yejune/go-jshost/internal/jsruntime"
	"github.com/yejune/go-jshost/jshost-cli/logger"
)

var cfgFile string

// RootCmd is the base command; subcommands register themselves in init.
var RootCmd = &cobra.Command{
	Use:           "jshost-cli",
	Short:         "Run, compile and exercise scripts on an embedded JavaScript engine",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.SetVerbose(viper.GetBool("verbose"))
	},
}

// Execute runs the root command.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		logger.L.Error().Err(err).Msg("Command failed")
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	f := RootCmd.PersistentFlags()
	f.StringVar(&cfgFile, "config", "", "config file (default ./jshost.yaml or ~/.jshost/jshost.yaml)")
	f.String("runtime", "", "engine to use (default: the build's engine)")
	f.String("asset-dir", "", "directory backing asset: paths")
	f.String("file-root", "", "directory confining file: paths")
	f.Uint64("stack-size", jshost.DefaultMaxStackSize, "engine stack size in bytes")
	f.Bool("no-stack-guard", false, "run without a stack depth limit")
	f.Uint64("memory-limit", 0, "engine heap limit in bytes (0 = none)")
	f.Int("max-jobs", jsruntime.DefaultMaxPendingJobs, "pending jobs drained per call, for engines that count jobs (negative = no cap)")
	f.Duration("job-timeout", jshost.DefaultJobTimeout, "time one drain of pending jobs may take (negative = no bound)")
	f.Bool("transpile", false, "transpile every source through esbuild")
	f.Bool("bundle", false, "bundle file scripts with their imports through esbuild")
	f.String("target", "es2020", "ECMAScript target for transpiled sources")
	f.String("cache", string(cache.CacheTypeLocal), "bytecode cache: local or redis")
	f.String("redis-addr", "", "redis address for the redis cache")
	f.Duration("cache-ttl", 0, "expiry of redis cache entries (0 = none)")
	f.String("redis-password", "", "redis password")
	f.Int("redis-db", 0, "redis database")
	f.Bool("no-cache", false, "disable the bytecode cache")
	f.BoolP("verbose", "v", false, "verbose output")

	for _, name := range []string{
		"runtime", "asset-dir", "file-root", "stack-size", "no-stack-guard", "memory-limit",
		"max-jobs", "job-timeout", "transpile", "bundle", "target", "cache", "cache-ttl", "redis-addr", "redis-password", "redis-db",
		"no-cache", "verbose",
	} {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("jshost")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".jshost"))
		}
	}
	viper.SetEnvPrefix("JSHOST")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			logger.L.Warn().Err(err).Msg("Failed to read config file")
		}
		return
	}
	logger.L.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
}

// HostLogger returns the slog logger hosts created by the CLI log through.
func HostLogger() *slog.Logger {
	level := log.InfoLevel
	if viper.GetBool("verbose") {
		level = log.DebugLevel
	}
	return slog.New(log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          "jshost",
		ReportTimestamp: true,
		Level:           level,
	}))
}

// HostConfig builds a host config from flags, environment and config file.
func HostConfig() jshost.Config {
	return jshost.Config{
		AppEnv:            "production",
		Runtime:           jsruntime.RuntimeType(viper.GetString("runtime")),
		AssetDir:          viper.GetString("asset-dir"),
		FileRoot:          viper.GetString("file-root"),
		MaxStackSize:      viper.GetUint64("stack-size"),
		DisableStackGuard: viper.GetBool("no-stack-guard"),
		MemoryLimit:       viper.GetUint64("memory-limit"),
		MaxPendingJobs:    viper.GetInt("max-jobs"),
		JobTimeout:        viper.GetDuration("job-timeout"),
		Transpile:         viper.GetBool("transpile"),
		Bundle:            viper.GetBool("bundle"),
		Target:            viper.GetString("target"),
		Cache: cache.CacheConfig{
			Type:          cache.CacheType(viper.GetString("cache")),
			RedisAddr:     viper.GetString("redis-addr"),
			RedisPassword: viper.GetString("redis-password"),
			RedisDB:       viper.GetInt("redis-db"),
			TTL:           viper.GetDuration("cache-ttl"),
		},
		DisableCache: viper.GetBool("no-cache"),
		Logger:       HostLogger(),
	}
}
