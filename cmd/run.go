package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"charm.land/lipgloss/v2"
	"github.com/abhisek/tutorloop/internal/batch"
	"github.com/abhisek/tutorloop/internal/config"
	"github.com/abhisek/tutorloop/internal/knowunity"
	"github.com/abhisek/tutorloop/internal/llm"
	"github.com/abhisek/tutorloop/internal/metrics"
	"github.com/abhisek/tutorloop/internal/oracle"
	"github.com/abhisek/tutorloop/internal/server"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/abhisek/tutorloop/internal/trace"
	"github.com/abhisek/tutorloop/internal/ui/theme"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run tutoring conversations and predict each student's level",
	RunE:  runBatch,
}

func init() {
	addRunFlags(runCmd.Flags())
}

func addRunFlags(f *pflag.FlagSet) {
	f.Int("turns", 0, "Turn budget per conversation (default from config: 8)")
	f.Int("max-convos", 0, "Maximum conversations across all students (0 = all)")
	f.String("set-type", "", "Student set to run (mini_dev, dev, test)")
	f.String("student-id", "", "Only run this student")
	f.Int("parallel", 0, "Conversations to run concurrently")
	f.String("predictions", "", "Predictions output file")
	f.Bool("verify", false, "Double-check ambiguous correctness judgments")
	f.Bool("submit", false, "Submit predictions to the MSE evaluation endpoint")
}

// applyRunFlags overrides config values with explicitly set flags.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("turns") {
		cfg.Run.Turns, _ = f.GetInt("turns")
	}
	if f.Changed("max-convos") {
		cfg.Run.MaxConversations, _ = f.GetInt("max-convos")
	}
	if f.Changed("set-type") {
		cfg.Run.SetType, _ = f.GetString("set-type")
	}
	if f.Changed("parallel") {
		cfg.Run.Parallel, _ = f.GetInt("parallel")
	}
	if f.Changed("predictions") {
		cfg.Run.PredictionsPath, _ = f.GetString("predictions")
	}
	if f.Changed("verify") {
		cfg.Oracle.Verify, _ = f.GetBool("verify")
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := setup(cmd)
	if err != nil {
		return err
	}
	defer d.Close()

	cfg := d.cfg
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		stop := startStatusServer(cfg.Metrics.Addr, d)
		defer stop()
	}

	provider, err := llm.NewProviderFromEnv(ctx, d.st.EventRepo(), d.log)
	if err != nil {
		return fmt.Errorf("LLM provider not configured: %w", err)
	}
	oracleCfg := oracle.DefaultConfig()
	oracleCfg.Verify = cfg.Oracle.Verify
	orc := oracle.New(provider, nil, oracleCfg, d.log, m)

	client, err := newKnowunityClient(cfg, d.log)
	if err != nil {
		return err
	}

	traceOut, closeTrace, err := openTraceFile(cfg.Trace.Path)
	if err != nil {
		return err
	}
	defer closeTrace()
	tw := trace.NewWriter(d.st.TraceRepo(), traceOut, d.log, 0)
	defer tw.Close()

	driver := batch.NewDriver(orc, client, d.st.SessionRepo(), tw, d.log, m)
	runner := batch.NewRunner(driver, client, d.st.PredictionRepo(), d.log, m)

	studentID, _ := cmd.Flags().GetString("student-id")
	report, runErr := runner.Run(ctx, batch.Options{
		SetType:          cfg.Run.SetType,
		Turns:            cfg.Run.Turns,
		MaxConversations: cfg.Run.MaxConversations,
		Parallel:         cfg.Run.Parallel,
		StudentID:        studentID,
	})
	// Flush traces before reporting.
	tw.Close()
	if report == nil {
		return runErr
	}
	if report.Interrupted {
		d.log.Warn("run interrupted, predictions file left untouched",
			zap.String("run_id", report.RunID),
			zap.String("path", cfg.Run.PredictionsPath))
		return runErr
	}
	if runErr != nil {
		d.log.Error("run finished with errors", zap.String("run_id", report.RunID), zap.Error(runErr))
	}

	preds := report.Predictions()
	if err := batch.WritePredictions(cfg.Run.PredictionsPath, preds); err != nil {
		return err
	}
	printRunSummary(cmd.OutOrStdout(), report, cfg.Run.PredictionsPath)

	if submit, _ := cmd.Flags().GetBool("submit"); submit {
		if err := submitMSE(ctx, cmd.OutOrStdout(), d, client, report.RunID, cfg.Run.SetType, preds); err != nil {
			return err
		}
	}
	return runErr
}

func newKnowunityClient(cfg *config.Config, log *zap.Logger) (*knowunity.Client, error) {
	kc := knowunity.DefaultConfig()
	kc.BaseURL = cfg.Knowunity.BaseURL
	kc.APIKey = cfg.Knowunity.APIKey
	kc.Timeout = cfg.Knowunity.Timeout
	kc.RateLimit = cfg.Knowunity.RateLimit
	client, err := knowunity.NewClient(kc, log)
	if err != nil {
		return nil, fmt.Errorf("init knowunity client: %w", err)
	}
	return client, nil
}

// openTraceFile opens the NDJSON trace mirror for appending. An empty path
// disables the mirror.
func openTraceFile(path string) (io.Writer, func(), error) {
	if path == "" {
		return nil, func() {}, nil
	}
	if err := store.EnsureDir(path); err != nil {
		return nil, nil, fmt.Errorf("create trace dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open trace file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// startStatusServer serves /metrics and the read-only API while a run is in
// progress. The returned func shuts it down.
func startStatusServer(addr string, d *deps) func() {
	srv := server.NewHTTPServer(server.Config{Addr: addr}, server.Repos{
		Sessions:    d.st.SessionRepo(),
		Predictions: d.st.PredictionRepo(),
		Traces:      d.st.TraceRepo(),
	}, d.log)

	go func() {
		d.log.Info("status server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Warn("status server stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func submitMSE(ctx context.Context, out io.Writer, d *deps, client *knowunity.Client, runID, setType string, preds []knowunity.Prediction) error {
	res, err := client.EvaluateMSE(ctx, setType, preds)
	if err != nil {
		return err
	}
	score := res.MSEScore
	sub := store.Submission{
		RunID:       runID,
		Kind:        "mse",
		SetType:     setType,
		Predictions: len(preds),
		Score:       &score,
		Response:    string(res.Raw),
	}
	if err := d.st.PredictionRepo().RecordSubmission(ctx, sub); err != nil {
		d.log.Warn("failed to record submission", zap.Error(err))
	}
	d.log.Info("submitted predictions",
		zap.String("run_id", runID),
		zap.String("set_type", setType),
		zap.Int("predictions", len(preds)),
		zap.Float64("mse", score))
	lipgloss.Fprintln(out, theme.KV("MSE", strconv.FormatFloat(score, 'f', 4, 64)))
	return nil
}

func printRunSummary(out io.Writer, report *batch.Report, path string) {
	rows := make([][]string, len(report.Results))
	for i, res := range report.Results {
		status := theme.Check(!res.Fallback)
		if res.Err != nil {
			status += " " + theme.Hint.Render(truncate(res.Err.Error(), 48))
		}
		rows[i] = []string{
			res.Prediction.StudentID,
			res.Prediction.TopicID,
			theme.Level(res.Prediction.PredictedLevel),
			strconv.Itoa(res.Turns),
			status,
		}
	}

	lipgloss.Fprintln(out, theme.Title.Render("Run "+report.RunID))
	lipgloss.Fprintln(out, theme.Table([]string{"Student", "Topic", "Level", "Turns", "OK"}, rows))
	lipgloss.Fprintln(out, theme.KV("Pairs", strconv.Itoa(len(report.Results))))
	if n := report.Fallbacks(); n > 0 {
		lipgloss.Fprintln(out, theme.KV("Fallbacks", theme.Warning.Render(strconv.Itoa(n))))
	}
	lipgloss.Fprintln(out, theme.KV("Predictions", path))
}
