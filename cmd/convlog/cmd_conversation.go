package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rhuss/convlog/pkg/api"
)

func init() {
	rootCmd.AddCommand(createCmd, deleteCmd, appendCmd, showCmd, editCmd)

	appendCmd.Flags().StringVar(&appendRole, "role", string(api.RoleUser), "role of the text event")
	appendCmd.Flags().StringVar(&appendFile, "events", "", "JSON file with an array of events to append (- for stdin)")
	showCmd.Flags().BoolVar(&showJSON, "json", false, "print the transcript as JSON")
}

var (
	appendRole string
	appendFile string
	showJSON   bool
)

var createCmd = &cobra.Command{
	Use:   "create [conversation-id]",
	Short: "Create an empty conversation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		var id string
		if len(args) == 1 {
			id = args[0]
		}
		id, err = a.svc.CreateConversation(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Println(id)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <conversation-id>",
	Short: "Delete a conversation and its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.svc.DeleteConversation(cmd.Context(), args[0])
	},
}

var appendCmd = &cobra.Command{
	Use:   "append <conversation-id> [text...]",
	Short: "Append a text event, or events from a JSON file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := eventsToAppend(args[1:])
		if err != nil {
			return err
		}

		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.svc.Append(cmd.Context(), args[0], events...)
		if err != nil {
			return err
		}
		for _, e := range res.Events {
			fmt.Printf("%s\t%s\t%s\n", e.OrderKey, e.ID, e.Role)
		}
		return nil
	},
}

func eventsToAppend(text []string) ([]*api.Event, error) {
	if appendFile != "" {
		in, err := readInput([]string{appendFile})
		if err != nil {
			return nil, err
		}
		defer in.Close()
		data, err := io.ReadAll(in)
		if err != nil {
			return nil, err
		}
		var events []*api.Event
		if err := json.Unmarshal(data, &events); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", appendFile, err)
		}
		return events, nil
	}

	if len(text) == 0 {
		return nil, fmt.Errorf("nothing to append: give text or --events")
	}
	role := api.Role(appendRole)
	if !role.Valid() {
		return nil, api.NewInvalidRequestError("role", fmt.Sprintf("unknown role %q", appendRole))
	}
	return []*api.Event{api.NewEvent(role, &api.Text{Text: strings.Join(text, " ")})}, nil
}

var showCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.svc.Transcript(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if showJSON {
			return printJSON(entries)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "#\tROLE\tTIME\tCONTENT")
		for i, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, e.Role, e.Timestamp.Format("2006-01-02 15:04:05"), summarize(e.Segments))
		}
		return w.Flush()
	},
}

// summarize renders segments on one line.
func summarize(segs api.Segments) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		switch v := s.(type) {
		case *api.Text:
			parts = append(parts, strings.ReplaceAll(v.Text, "\n", " "))
		case *api.ToolCall:
			parts = append(parts, fmt.Sprintf("[call %s %s]", v.Name, v.ID))
		case *api.ToolResult:
			if v.Error != "" {
				parts = append(parts, fmt.Sprintf("[error %s: %s]", v.ID, v.Error))
			} else {
				parts = append(parts, fmt.Sprintf("[result %s]", v.ID))
			}
		case *api.Reasoning:
			parts = append(parts, fmt.Sprintf("[reasoning %d parts]", len(v.Parts)))
		case *api.WebSearchCall:
			parts = append(parts, fmt.Sprintf("[web search %s]", v.Status))
		case *api.CodeInterpreterCall:
			parts = append(parts, fmt.Sprintf("[code %s]", v.Status))
		}
	}
	return strings.Join(parts, " ")
}

var editCmd = &cobra.Command{
	Use:   "edit <conversation-id> <event-id> <text...>",
	Short: "Replace the content of an event with text",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer a.Close()

		e, err := a.svc.EditSegments(cmd.Context(), args[0], args[1],
			[]api.Segment{&api.Text{Text: strings.Join(args[2:], " ")}})
		if err != nil {
			return err
		}
		return printJSON(e)
	},
}
