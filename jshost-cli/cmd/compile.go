package cmd

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	jshost "github.com/yejune/go-jshost"
	"github.com/yejune/go-jshost/internal/jsruntime"
	"github.com/yejune/go-jshost/internal/source"
	"github.com/yejune/go-jshost/jshost-cli/logger"
)

var compileCmd = &cobra.Command{
	Use:   "compile <source> [output]",
	Short: "Compile a script to bytecode for this engine build",
	Long: `Compile a script to bytecode without running it. The output defaults to
the source path with its extension replaced by .kbc1. Bytecode only runs on
the engine build that produced it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		out := compileOutput(args)
		config := HostConfig()
		config.DisableCache = true
		return withHost(config, func(h *jshost.Host) error {
			code, err := h.Compile(cmd.Context(), src)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(out); dir != "" {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(out, code, 0o644); err != nil {
				return err
			}
			hdr, _, err := jsruntime.ReadBytecodeHeader(code)
			if err != nil {
				return err
			}
			logger.L.Info().
				Str("source", src).
				Str("output", out).
				Int("bytes", len(code)).
				Str("engine", string(hdr.Runtime)).
				Str("build", hdr.BuildID).
				Msg("Compiled")
			return nil
		})
	},
}

// compileOutput returns the explicit output path or derives one from the
// source, dropping any scheme prefix.
func compileOutput(args []string) string {
	if len(args) > 1 {
		return args[1]
	}
	src := strings.TrimPrefix(strings.TrimPrefix(args[0], source.SchemeFile), source.SchemeAsset)
	return source.BytecodePath(src)
}

func init() {
	RootCmd.AddCommand(compileCmd)
}
