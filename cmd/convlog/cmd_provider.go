package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhuss/convlog/pkg/engine"
	"github.com/rhuss/convlog/pkg/provider"
	"github.com/rhuss/convlog/pkg/stream"
)

func init() {
	rootCmd.AddCommand(importCmd, exportCmd, replayCmd)

	importCmd.Flags().StringVar(&providerName, "provider", "", "provider format of the input (default from config)")
	importCmd.Flags().BoolVar(&importStream, "stream", false, "input is an SSE stream; --provider "+engine.NativeStream+" reads convlog frames")

	exportCmd.Flags().StringVar(&providerName, "provider", "", "provider to build the request for (default from config)")
	exportCmd.Flags().StringVar(&exportModel, "model", "", "model (default from config)")
	exportCmd.Flags().IntVar(&exportMaxTokens, "max-tokens", 0, "output token limit (default from config)")
	exportCmd.Flags().BoolVar(&exportStream, "stream", false, "request a streaming response")
	exportCmd.Flags().BoolVar(&exportTools, "with-tools", false, "offer the tools of the configured MCP servers")
	exportCmd.Flags().StringVar(&exportEffort, "reasoning-effort", "", "reasoning effort (default from config)")
}

var (
	providerName    string
	importStream    bool
	exportModel     string
	exportMaxTokens int
	exportStream    bool
	exportTools     bool
	exportEffort    string
)

func pick(flag, fallback string) string {
	if flag != "" {
		return flag
	}
	return fallback
}

var importCmd = &cobra.Command{
	Use:   "import <conversation-id> [file|-]",
	Short: "Append a provider response or stream to a conversation",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		in, err := readInput(args[1:])
		if err != nil {
			return err
		}
		name := pick(providerName, a.cfg.Provider.Name)

		var res *engine.IngestResult
		if importStream {
			res, err = a.svc.IngestStream(cmd.Context(), args[0], name, in)
		} else {
			var body []byte
			body, err = io.ReadAll(in)
			in.Close()
			if err != nil {
				return err
			}
			res, err = a.svc.ImportResponse(cmd.Context(), args[0], name, body)
		}
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <conversation-id>",
	Short: "Print a provider request body built from a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), exportTools)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := provider.RequestOptions{
			Model:           pick(exportModel, a.cfg.Provider.Model),
			MaxTokens:       a.cfg.Provider.MaxTokens,
			Stream:          exportStream,
			ReasoningEffort: pick(exportEffort, a.cfg.Provider.ReasoningEffort),
		}
		if exportMaxTokens > 0 {
			opts.MaxTokens = exportMaxTokens
		}
		if a.mcp != nil {
			if opts.Tools, err = a.mcp.Resolve(cmd.Context()); err != nil {
				return err
			}
		}

		body, err := a.svc.Export(cmd.Context(), args[0], pick(providerName, a.cfg.Provider.Name), opts)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stdout, "%s\n", body)
		return err
	},
}

var replayCmd = &cobra.Command{
	Use:   "replay <conversation-id>",
	Short: "Write a conversation to stdout as a convlog SSE frame stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.svc.Replay(cmd.Context(), args[0], stream.NewWriter(os.Stdout))
	},
}
