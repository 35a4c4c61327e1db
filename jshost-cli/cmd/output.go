package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	jshost "github.com/yejune/go-jshost"
	"github.com/yejune/go-jshost/jshost-cli/logger"
)

var jsonOutput bool

func addJSONFlag(c *cobra.Command) {
	c.Flags().BoolVar(&jsonOutput, "json", false, "print the run report as JSON")
}

// printReport writes a report for humans, or as JSON with --json.
func printReport(w io.Writer, report jshost.RunReport) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	if report.Error != "" {
		color.New(color.FgRed, color.Bold).Fprintf(w, "✗ %s: %s\n", report.ErrorKind, report.Error)
		if report.Stack != "" {
			color.New(color.FgRed).Fprintln(w, report.Stack)
		}
		return nil
	}
	color.New(color.FgGreen).Fprint(w, "✓ ")
	fmt.Fprintf(w, "%s ", report.Path)
	color.New(color.FgCyan).Fprintf(w, "=> %s", report.Result)
	color.New(color.Faint).Fprintf(w, " (%s)\n", report.ResultType)
	logger.L.Debug().
		Str("engine", report.Engine).
		Str("build", report.Build).
		Str("kind", report.Kind).
		Bool("cache_hit", report.CacheHit).
		Dur("compile", report.CompileCost).
		Dur("run", report.RunCost).
		Int("jobs", report.JobsDrained).
		Msg("Run report")
	return nil
}

// withHost creates a host from the CLI config, runs fn and shuts it down.
func withHost(config jshost.Config, fn func(h *jshost.Host) error) error {
	h, err := jshost.New(config)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Shutdown(context.Background()); err != nil {
			logger.L.Warn().Err(err).Msg("Host shutdown")
		}
	}()
	return fn(h)
}
