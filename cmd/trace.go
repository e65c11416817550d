package cmd

import (
	"encoding/json"
	"fmt"

	"charm.land/lipgloss/v2"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/abhisek/tutorloop/internal/ui/theme"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace <student-id>",
	Short: "Show agent trace events for a student",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topicID, _ := cmd.Flags().GetString("topic")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.st.TraceRepo().ListTraces(cmd.Context(), store.TraceFilter{
			StudentID: args[0],
			TopicID:   topicID,
			Limit:     limit,
		})
		if err != nil {
			return fmt.Errorf("list traces: %w", err)
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			for _, e := range events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		}

		if len(events) == 0 {
			fmt.Fprintln(out, "No trace events found.")
			return nil
		}
		for _, e := range events {
			lipgloss.Fprintf(out, "%s  %-10s %-24s %-16s %s\n",
				theme.Label.Render(e.Timestamp.Local().Format("2006-01-02 15:04:05")),
				e.TopicID,
				truncate(e.Topic, 24),
				e.Agent,
				e.Detail)
		}
		return nil
	},
}

func init() {
	traceCmd.Flags().StringP("topic", "t", "", "Filter by topic ID")
	traceCmd.Flags().IntP("limit", "n", 0, "Show only the last N events (0 = all)")
	traceCmd.Flags().Bool("json", false, "Print events as NDJSON")
}
