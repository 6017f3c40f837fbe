package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rhuss/convlog/pkg/api"
	"github.com/rhuss/convlog/pkg/branch"
)

func init() {
	rootCmd.AddCommand(branchCmd)
	branchCmd.Flags().StringVar(&branchRole, "expect-role", "", "role the event at the cut index should have")
	branchCmd.Flags().StringVar(&branchTo, "to", "", "id of the new conversation (generated when empty)")
}

var (
	branchRole string
	branchTo   string
)

var branchCmd = &cobra.Command{
	Use:   "branch <conversation-id> <cut-index>",
	Short: "Copy events 0..cut-index into a new conversation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cut, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("cut index %q: %w", args[1], err)
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.Branch(cmd.Context(), branch.Request{
			SourceConversationID:      args[0],
			CutIndex:                  cut,
			ExpectedRole:              api.Role(branchRole),
			DestinationConversationID: branchTo,
		})
		if err != nil {
			return fmt.Errorf("branch %s: %w", res.Outcome.Kind, err)
		}
		return printJSON(res)
	},
}
