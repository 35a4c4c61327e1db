package cmd

import (
	"github.com/spf13/cobra"

	jshost "github.com/yejune/go-jshost"
)

var runCmd = &cobra.Command{
	Use:   "run <script> [script...]",
	Short: "Run scripts in one host, in order",
	Long: `Run scripts in one host, in order. Paths may use the asset: and file:
schemes; .kbc1 files run as bytecode, anything else is compiled first.
Pending promise jobs are drained after each script.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withHost(HostConfig(), func(h *jshost.Host) error {
			for _, path := range args {
				report, err := h.RunFile(cmd.Context(), path)
				if perr := printReport(cmd.OutOrStdout(), report); perr != nil {
					return perr
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	},
}

func init() {
	addJSONFlag(runCmd)
	RootCmd.AddCommand(runCmd)
}
