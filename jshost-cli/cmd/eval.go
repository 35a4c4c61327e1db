package cmd

import (
	"github.com/spf13/cobra"

	jshost "github.com/yejune/go-jshost"
)

var evalName string

var evalCmd = &cobra.Command{
	Use:   "eval <code>",
	Short: "Evaluate a snippet and drain pending jobs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(HostConfig(), func(h *jshost.Host) error {
			report, err := h.Eval(cmd.Context(), args[0], evalName)
			if perr := printReport(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	evalCmd.Flags().StringVar(&evalName, "name", "<eval>", "script name used in stack traces; a .ts name transpiles")
	addJSONFlag(evalCmd)
	RootCmd.AddCommand(evalCmd)
}
