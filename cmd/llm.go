package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/abhisek/tutorloop/internal/llm"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/abhisek/tutorloop/internal/ui/theme"
	"github.com/spf13/cobra"
)

var llmCmd = &cobra.Command{
	Use:   "llm",
	Short: "Inspect LLM request/response events",
}

var llmListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent LLM events",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		purpose, _ := cmd.Flags().GetString("purpose")

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		events, err := d.st.EventRepo().QueryLLMEvents(cmd.Context(), store.QueryOpts{Limit: limit})
		if err != nil {
			return fmt.Errorf("query events: %w", err)
		}

		out := cmd.OutOrStdout()
		var rows [][]string
		for _, e := range events {
			if purpose != "" && e.Purpose != purpose {
				continue
			}
			rows = append(rows, []string{
				strconv.Itoa(e.ID),
				e.Timestamp.Local().Format("2006-01-02 15:04:05"),
				e.Purpose,
				truncate(e.Model, 28),
				strconv.Itoa(e.InputTokens),
				strconv.Itoa(e.OutputTokens),
				strconv.FormatInt(e.LatencyMs, 10),
				theme.Check(e.Success),
			})
		}
		if len(rows) == 0 {
			fmt.Fprintln(out, "No LLM events found.")
			return nil
		}

		lipgloss.Fprintln(out, theme.Table(
			[]string{"ID", "Timestamp", "Purpose", "Model", "In", "Out", "Ms", "OK"}, rows))
		return nil
	},
}

var llmViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "View full request/response for an LLM event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid ID %q: %w", args[0], err)
		}

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		e, err := d.st.EventRepo().GetLLMEvent(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get event: %w", err)
		}
		if e == nil {
			return fmt.Errorf("event %d not found", id)
		}

		out := cmd.OutOrStdout()
		lipgloss.Fprintln(out, theme.KV("ID", strconv.Itoa(e.ID)))
		lipgloss.Fprintln(out, theme.KV("Time", e.Timestamp.Local().Format("2006-01-02 15:04:05")))
		lipgloss.Fprintln(out, theme.KV("Provider", e.Provider))
		lipgloss.Fprintln(out, theme.KV("Model", e.Model))
		lipgloss.Fprintln(out, theme.KV("Purpose", e.Purpose))
		lipgloss.Fprintln(out, theme.KV("Tokens", fmt.Sprintf("%d in / %d out", e.InputTokens, e.OutputTokens)))
		lipgloss.Fprintln(out, theme.KV("Latency", fmt.Sprintf("%dms", e.LatencyMs)))
		lipgloss.Fprintln(out, theme.KV("Success", theme.Check(e.Success)))
		if e.ErrorMessage != "" {
			lipgloss.Fprintln(out, theme.KV("Error", theme.Incorrect.Render(e.ErrorMessage)))
		}

		for _, section := range []struct{ title, body string }{
			{"REQUEST", e.RequestBody},
			{"RESPONSE", e.ResponseBody},
		} {
			fmt.Fprintln(out)
			lipgloss.Fprintln(out, theme.Rule(60))
			lipgloss.Fprintln(out, theme.Subtitle.Render(section.title))
			lipgloss.Fprintln(out, theme.Rule(60))
			if section.body != "" {
				fmt.Fprintln(out, section.body)
			} else {
				lipgloss.Fprintln(out, theme.Hint.Render("(not captured)"))
			}
		}
		return nil
	},
}

var llmStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregated LLM token usage and estimated cost",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		stats, err := d.st.EventRepo().LLMUsageByPurpose(ctx)
		if err != nil {
			return fmt.Errorf("query usage: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(stats) == 0 {
			fmt.Fprintln(out, "No LLM usage recorded yet.")
			return nil
		}

		var totalCalls, totalIn, totalOut int
		rows := make([][]string, 0, len(stats)+1)
		for _, st := range stats {
			rows = append(rows, []string{
				st.Purpose,
				strconv.Itoa(st.Calls),
				strconv.Itoa(st.InputTokens),
				strconv.Itoa(st.OutputTokens),
				strconv.Itoa(st.InputTokens + st.OutputTokens),
				strconv.FormatInt(st.AvgLatencyMs, 10),
			})
			totalCalls += st.Calls
			totalIn += st.InputTokens
			totalOut += st.OutputTokens
		}
		rows = append(rows, []string{
			"TOTAL", strconv.Itoa(totalCalls), strconv.Itoa(totalIn),
			strconv.Itoa(totalOut), strconv.Itoa(totalIn + totalOut), "",
		})

		lipgloss.Fprintln(out, theme.Title.Render("Usage by Purpose"))
		lipgloss.Fprintln(out, theme.Table(
			[]string{"Purpose", "Calls", "Input", "Output", "Total", "Avg Ms"}, rows))

		modelUsage, err := d.st.EventRepo().LLMUsageByModel(ctx)
		if err != nil {
			return fmt.Errorf("query model usage: %w", err)
		}
		if len(modelUsage) == 0 {
			return nil
		}

		var totalCost float64
		var unknownModels []string
		costRows := make([][]string, 0, len(modelUsage)+1)
		for _, mu := range modelUsage {
			cost := "?"
			if c := llm.LookupCost(mu.Model); c != nil {
				usd := c.Cost(mu.InputTokens, mu.OutputTokens)
				totalCost += usd
				cost = formatCost(usd)
			} else {
				unknownModels = append(unknownModels, mu.Model)
			}
			costRows = append(costRows, []string{
				truncate(mu.Model, 32),
				strconv.Itoa(mu.Calls),
				strconv.Itoa(mu.InputTokens),
				strconv.Itoa(mu.OutputTokens),
				cost,
			})
		}
		label := "TOTAL"
		if len(unknownModels) > 0 {
			label = "TOTAL (partial)"
		}
		costRows = append(costRows, []string{label, "", "", "", formatCost(totalCost)})

		fmt.Fprintln(out)
		lipgloss.Fprintln(out, theme.Title.Render("Estimated Cost (USD)"))
		lipgloss.Fprintln(out, theme.Table(
			[]string{"Model", "Calls", "Input", "Output", "Cost"}, costRows))

		if len(unknownModels) > 0 {
			lipgloss.Fprintln(out, theme.Hint.Render("Pricing unavailable for: "+strings.Join(unknownModels, ", ")))
		}
		return nil
	},
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

func formatCost(usd float64) string {
	if usd < 0.01 {
		return fmt.Sprintf("$%.4f", usd)
	}
	return fmt.Sprintf("$%.2f", usd)
}

func init() {
	llmListCmd.Flags().IntP("limit", "n", 20, "Number of events to show")
	llmListCmd.Flags().StringP("purpose", "p", "", "Filter by purpose (e.g. opener, diagnose, verify, tutor-coach)")

	llmCmd.AddCommand(llmListCmd)
	llmCmd.AddCommand(llmViewCmd)
	llmCmd.AddCommand(llmStatsCmd)
}
