// Command convlog manages conversation event logs: it appends and edits
// events, imports provider responses and streams, exports provider request
// bodies, replays conversations as frame streams, runs pending tool calls
// over MCP, and branches conversations.
//
// Configuration is read from --config, CONVLOG_CONFIG, ./convlog.yaml or
// /etc/convlog/config.yaml, with CONVLOG_* environment overrides.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhuss/convlog/pkg/storage"
)

var (
	configPath  string
	metricsAddr string
	debugCats   string
	tenant      string
)

var rootCmd = &cobra.Command{
	Use:           "convlog",
	Short:         "Conversation event log tool",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if tenant != "" {
			cmd.SetContext(storage.SetTenant(cmd.Context(), tenant))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
	rootCmd.PersistentFlags().StringVar(&tenant, "tenant", "", "scope every storage operation to this tenant")
	rootCmd.PersistentFlags().StringVar(&debugCats, "debug", "", "comma-separated debug categories (ordering,providers,streaming,branch,storage,tools,config,all)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("convlog failed", "error", err)
		os.Exit(1)
	}
}
