package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	jshost "github.com/yejune/go-jshost"
	"github.com/yejune/go-jshost/jshost-cli/logger"
)

var (
	watchAddr  string
	watchPaths []string
)

var watchCmd = &cobra.Command{
	Use:   "watch <entry>",
	Short: "Re-run a script on change and relay its reports over a websocket",
	Long: `Run the entry script, then re-run it whenever it or a watched directory
changes. Every run report is published to websocket clients at ws://<addr>/ws.
Requires a development build; production builds carry no watcher.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := HostConfig()
		config.AppEnv = "development"
		config.WatchEntry = args[0]
		config.WatchPaths = watchPaths
		config.HotReloadAddr = watchAddr

		h, err := jshost.New(config)
		if err != nil {
			return err
		}
		report, err := h.RunFile(cmd.Context(), args[0])
		_ = printReport(cmd.OutOrStdout(), report)
		if err != nil {
			logger.L.Warn().Err(err).Msg("Initial run failed; watching anyway")
		}
		logger.L.Info().Str("addr", watchAddr).Str("entry", args[0]).Msg("Watching, press Ctrl+C to stop")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return h.Shutdown(shutdownCtx)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "localhost:3001", "websocket relay address")
	watchCmd.Flags().StringSliceVar(&watchPaths, "path", nil, "extra directories to watch")
	RootCmd.AddCommand(watchCmd)
}
