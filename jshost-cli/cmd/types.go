package cmd

import (
	"github.com/spf13/cobra"

	jshost "github.com/yejune/go-jshost"
	"github.com/yejune/go-jshost/jshost-cli/logger"
)

var typesCmd = &cobra.Command{
	Use:   "types [output]",
	Short: "Write TypeScript declarations for run reports",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := "jshost-types.d.ts"
		if len(args) == 1 {
			out = args[0]
		}
		config := HostConfig()
		if err := (jshost.TypesGenerator{Path: out}).Generate(&config); err != nil {
			return err
		}
		logger.L.Info().Str("output", out).Msg("Generated types")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(typesCmd)
}
