package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/abhisek/tutorloop/internal/session"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/abhisek/tutorloop/internal/ui/theme"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect persisted tutoring sessions",
}

var sessionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, _ := cmd.Flags().GetString("student")

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		sessions, err := d.st.SessionRepo().List(cmd.Context(), studentID)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}

		rows := make([][]string, len(sessions))
		for i, s := range sessions {
			rows[i] = []string{
				s.StudentID,
				s.TopicID,
				truncate(s.TopicName, 28),
				strconv.Itoa(s.TurnCount),
				theme.Level(s.EstimatedLevel),
				formatConfidence(s.Confidence),
				switchReason(s),
				theme.Check(s.Finalized),
			}
		}
		lipgloss.Fprintln(out, theme.Table(
			[]string{"Student", "Topic", "Name", "Turns", "Level", "Conf", "Switch", "Final"}, rows))
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <student-id> <topic-id>",
	Short: "Show a session with its diagnostic events and trace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		showHistory, _ := cmd.Flags().GetBool("history")

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		s, err := d.st.SessionRepo().Get(ctx, args[0], args[1])
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		if s == nil {
			return fmt.Errorf("no session for student %s, topic %s", args[0], args[1])
		}

		out := cmd.OutOrStdout()
		lipgloss.Fprintln(out, theme.Title.Render(s.TopicName))
		lipgloss.Fprintln(out, theme.KV("Student", s.StudentID))
		lipgloss.Fprintln(out, theme.KV("Topic", s.TopicID))
		if s.ConversationID != "" {
			lipgloss.Fprintln(out, theme.KV("Conversation", s.ConversationID))
		}
		lipgloss.Fprintln(out, theme.KV("Turns", strconv.Itoa(s.TurnCount)))
		lipgloss.Fprintln(out, theme.KV("Level", theme.Level(s.EstimatedLevel)))
		lipgloss.Fprintln(out, theme.KV("Persona", session.PersonaForLevel(s.EstimatedLevel).String()))
		lipgloss.Fprintln(out, theme.KV("Confidence", formatConfidence(s.Confidence)))
		lipgloss.Fprintln(out, theme.KV("Switch", switchReason(s)))
		lipgloss.Fprintln(out, theme.KV("Finalized", theme.Check(s.Finalized)))
		lipgloss.Fprintln(out, theme.KV("Updated", s.UpdatedAt.Local().Format("2006-01-02 15:04:05")))
		if len(s.Misconceptions) > 0 {
			lipgloss.Fprintln(out, theme.KV("Misconcept.", strings.Join(s.Misconceptions, "; ")))
		}

		if len(s.DiagnosticEvents) > 0 {
			fmt.Fprintln(out)
			lipgloss.Fprintln(out, theme.Subtitle.Render("Diagnostic events"))
			rows := make([][]string, len(s.DiagnosticEvents))
			for i, e := range s.DiagnosticEvents {
				misconception := ""
				if e.Misconception != nil {
					misconception = truncate(*e.Misconception, 40)
				}
				rows[i] = []string{
					strconv.Itoa(e.Turn),
					theme.Check(e.IsCorrect),
					strconv.Itoa(e.ReasoningScore),
					strconv.Itoa(e.LLMLevel),
					theme.Level(e.ComputedLevel),
					formatConfidence(e.Confidence),
					strconv.FormatFloat(e.Signal, 'f', 1, 64),
					misconception,
				}
			}
			lipgloss.Fprintln(out, theme.Table(
				[]string{"Turn", "Correct", "Reason", "LLM", "Level", "Conf", "Signal", "Misconception"}, rows))
		}

		events, err := d.st.TraceRepo().ListTraces(ctx, store.TraceFilter{StudentID: s.StudentID, TopicID: s.TopicID})
		if err != nil {
			return fmt.Errorf("list traces: %w", err)
		}
		if len(events) > 0 {
			fmt.Fprintln(out)
			lipgloss.Fprintln(out, theme.Subtitle.Render("Trace"))
			for _, e := range events {
				lipgloss.Fprintf(out, "%s  %-16s %s\n",
					theme.Label.Render(e.Timestamp.Local().Format("15:04:05")), e.Agent, e.Detail)
			}
		}

		if showHistory && len(s.History) > 0 {
			fmt.Fprintln(out)
			lipgloss.Fprintln(out, theme.Subtitle.Render("Conversation"))
			for _, m := range s.History {
				role := theme.Label.Render(fmt.Sprintf("%-8s", string(m.Role)))
				lipgloss.Fprintf(out, "%s %s\n", role, m.Content)
			}
		}
		return nil
	},
}

func formatConfidence(c float64) string {
	return strconv.FormatFloat(c, 'f', 2, 64)
}

func switchReason(s *session.Session) string {
	if s.SwitchReason == session.ReasonNone {
		return "-"
	}
	return string(s.SwitchReason)
}

func init() {
	sessionListCmd.Flags().String("student", "", "Only list this student's sessions")
	sessionShowCmd.Flags().Bool("history", false, "Include the conversation transcript")

	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionShowCmd)
}
