package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"charm.land/lipgloss/v2"
	"github.com/abhisek/tutorloop/internal/batch"
	"github.com/abhisek/tutorloop/internal/knowunity"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/abhisek/tutorloop/internal/ui/theme"
	"github.com/spf13/cobra"
)

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Inspect level predictions",
}

var predictionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List predictions of a run, or derived from finalized sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")
		fromSessions, _ := cmd.Flags().GetBool("from-sessions")
		asJSON, _ := cmd.Flags().GetBool("json")

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()

		ctx := cmd.Context()
		var (
			preds  []knowunity.Prediction
			source string
		)
		if fromSessions {
			preds, err = sessionPredictions(ctx, d.st)
			source = "finalized sessions"
		} else {
			runID, preds, err = runPredictions(ctx, d.st, runID)
			source = "run " + runID
			if err == nil && runID == "" {
				preds, err = sessionPredictions(ctx, d.st)
				source = "finalized sessions"
			}
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			data, err := json.MarshalIndent(preds, "", "  ")
			if err != nil {
				return fmt.Errorf("encode predictions: %w", err)
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if len(preds) == 0 {
			fmt.Fprintln(out, "No predictions found.")
			return nil
		}
		rows := make([][]string, len(preds))
		for i, p := range preds {
			rows[i] = []string{p.StudentID, p.TopicID, theme.Level(p.PredictedLevel)}
		}
		lipgloss.Fprintln(out, theme.Subtitle.Render("Predictions from "+source))
		lipgloss.Fprintln(out, theme.Table([]string{"Student", "Topic", "Level"}, rows))
		lipgloss.Fprintln(out, theme.KV("Total", strconv.Itoa(len(preds))))
		return nil
	},
}

// runPredictions loads the predictions of runID, or of the latest run when
// runID is empty. It returns an empty run id when no run is stored.
func runPredictions(ctx context.Context, st *store.Store, runID string) (string, []knowunity.Prediction, error) {
	repo := st.PredictionRepo()
	if runID == "" {
		latest, err := repo.LatestRunID(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("latest run: %w", err)
		}
		if latest == "" {
			return "", nil, nil
		}
		runID = latest
	}

	recs, err := repo.ListRun(ctx, runID)
	if err != nil {
		return "", nil, fmt.Errorf("list run: %w", err)
	}
	if len(recs) == 0 {
		return "", nil, fmt.Errorf("run %q not found", runID)
	}
	return runID, batch.RecordPredictions(recs), nil
}

func sessionPredictions(ctx context.Context, st *store.Store) ([]knowunity.Prediction, error) {
	sessions, err := st.SessionRepo().List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return batch.SessionPredictions(sessions), nil
}

func init() {
	predictionsListCmd.Flags().String("run", "", "Run ID (default: latest run)")
	predictionsListCmd.Flags().Bool("from-sessions", false, "Derive predictions from finalized sessions instead of a run")
	predictionsListCmd.Flags().Bool("json", false, "Print as JSON")

	predictionsCmd.AddCommand(predictionsListCmd)
}
