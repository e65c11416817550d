package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/abhisek/tutorloop/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Submit results to the evaluation endpoints",
}

var evaluateMSECmd = &cobra.Command{
	Use:   "mse",
	Short: "Submit a stored run's predictions for MSE scoring",
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, _ := cmd.Flags().GetString("run")

		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		applySetTypeFlag(cmd, d)
		if err := d.cfg.RequireAPIKey(); err != nil {
			return err
		}

		ctx := cmd.Context()
		runID, preds, err := runPredictions(ctx, d.st, runID)
		if err != nil {
			return err
		}
		if runID == "" {
			return fmt.Errorf("no stored runs; run `tutorloop run` first")
		}

		client, err := newKnowunityClient(d.cfg, d.log)
		if err != nil {
			return err
		}
		return submitMSE(ctx, cmd.OutOrStdout(), d, client, runID, d.cfg.Run.SetType, preds)
	},
}

var evaluateTutoringCmd = &cobra.Command{
	Use:   "tutoring",
	Short: "Request the tutoring quality evaluation for a set",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := setup(cmd)
		if err != nil {
			return err
		}
		defer d.Close()
		applySetTypeFlag(cmd, d)
		if err := d.cfg.RequireAPIKey(); err != nil {
			return err
		}

		client, err := newKnowunityClient(d.cfg, d.log)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		raw, err := client.EvaluateTutoring(ctx, d.cfg.Run.SetType)
		if err != nil {
			return err
		}

		runID, _ := d.st.PredictionRepo().LatestRunID(ctx)
		sub := store.Submission{
			RunID:    runID,
			Kind:     "tutoring",
			SetType:  d.cfg.Run.SetType,
			Response: string(raw),
		}
		if err := d.st.PredictionRepo().RecordSubmission(ctx, sub); err != nil {
			d.log.Warn("failed to record submission", zap.Error(err))
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, raw, "", "  "); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
		return nil
	},
}

func applySetTypeFlag(cmd *cobra.Command, d *deps) {
	if cmd.Flags().Changed("set-type") {
		d.cfg.Run.SetType, _ = cmd.Flags().GetString("set-type")
	}
}

func init() {
	evaluateCmd.PersistentFlags().String("set-type", "", "Student set (default from config)")
	evaluateMSECmd.Flags().String("run", "", "Run ID (default: latest run)")

	evaluateCmd.AddCommand(evaluateMSECmd)
	evaluateCmd.AddCommand(evaluateTutoringCmd)
}
