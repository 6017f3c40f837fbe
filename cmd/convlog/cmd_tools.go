package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd, toolsRunCmd)
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Work with MCP tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools offered by the configured MCP servers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.mcp == nil {
			fmt.Println("No MCP servers configured.")
			return nil
		}

		endpoints, err := a.mcp.Resolve(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSERVER\tDESCRIPTION")
		for _, ep := range endpoints {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ep.Name, ep.Server, ep.Description)
		}
		return w.Flush()
	},
}

var toolsRunCmd = &cobra.Command{
	Use:   "run <conversation-id>",
	Short: "Execute the conversation's unresolved tool calls and append the results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.ResolveToolCalls(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}
