package version

import (
	"fmt"
	"os"
	"os/exec"
	"runtime/debug"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yejune/go-jshost/internal/jsruntime"
	"github.com/yejune/go-jshost/jshost-cli/cmd"
	"github.com/yejune/go-jshost/jshost-cli/logger"
)

const installPath = "github.com/yejune/go-jshost/jshost-cli@latest"

// versionCmd prints the CLI module version and the engine compiled in.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cli and engine versions",
	RunE: func(c *cobra.Command, args []string) error {
		b, err := jsruntime.NewBinding(jsruntime.DefaultRuntimeType())
		if err != nil {
			return err
		}
		color.New(color.Bold).Printf("jshost-cli %s\n", Current())
		fmt.Printf("engine  %s\n", jsruntime.DefaultRuntimeType())
		fmt.Printf("build   %s\n", b.BuildID())
		if info, ok := debug.ReadBuildInfo(); ok {
			fmt.Printf("go      %s\n", info.GoVersion)
		}
		return nil
	},
}

// updateCmd represents the update command
var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update the cli to the latest version",
	Long:  "Update the cli to the latest version with go install",
	RunE: func(c *cobra.Command, args []string) error {
		install := exec.Command("go", "install", installPath)
		install.Stdout, install.Stderr = os.Stdout, os.Stderr
		if err := install.Run(); err != nil {
			return fmt.Errorf("go install %s: %w", installPath, err)
		}
		logger.L.Info().Msg("Updated to latest version!")
		return nil
	},
}

// Current returns the module version the binary was built from, or "devel".
func Current() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "devel"
	}
	return info.Main.Version
}

func init() {
	cmd.RootCmd.AddCommand(versionCmd)
	cmd.RootCmd.AddCommand(updateCmd)
}
