package cmd

import (
	"github.com/spf13/cobra"

	jshost "github.com/yejune/go-jshost"
	"github.com/yejune/go-jshost/internal/jsruntime"
)

var callCmd = &cobra.Command{
	Use:   "call <script> <callback-id> <params>",
	Short: "Run a script, then deliver one callback to its " + jshost.CallbackFunc + " function",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(HostConfig(), func(h *jshost.Host) error {
			report, err := h.RunFile(cmd.Context(), args[0])
			if err != nil {
				_ = printReport(cmd.OutOrStdout(), report)
				return err
			}
			report, err = h.Invoke(cmd.Context(), jshost.CallbackFunc,
				jsruntime.String(args[1]), jsruntime.String(args[2]))
			if perr := printReport(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
			return err
		})
	},
}

func init() {
	addJSONFlag(callCmd)
	RootCmd.AddCommand(callCmd)
}
