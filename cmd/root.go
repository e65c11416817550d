package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/abhisek/tutorloop/internal/config"
	"github.com/abhisek/tutorloop/internal/logging"
	"github.com/abhisek/tutorloop/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "tutorloop",
	Short: "Adaptive tutoring level diagnosis",
	Long: "tutorloop runs tutoring conversations against the Knowunity student simulation API, " +
		"diagnoses each student's level per topic and writes level predictions.",
	SilenceUsage: true,
}

// Execute runs the root command. Interrupts cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides TUTORLOOP_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (default ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(predictionsCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// deps holds what most commands need: configuration, a logger and the store.
type deps struct {
	cfg *config.Config
	log *zap.Logger
	st  *store.Store
}

// Close releases the store and flushes the logger.
func (d *deps) Close() {
	d.st.Close()
	_ = d.log.Sync()
}

// setup loads configuration, builds the logger and opens the store.
func setup(cmd *cobra.Command) (*deps, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}

	log, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dbPath, err := resolveDBPath(cmd, cfg)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	log.Debug("opened store", zap.String("path", dbPath))

	return &deps{cfg: cfg, log: log, st: st}, nil
}

// resolveDBPath returns the database path using --db flag (highest priority),
// then the db config key (TUTORLOOP_DB), then the default XDG path.
func resolveDBPath(cmd *cobra.Command, cfg *config.Config) (string, error) {
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		return p, store.EnsureDir(p)
	}
	if cfg.DB != "" {
		return cfg.DB, store.EnsureDir(cfg.DB)
	}
	return store.DefaultDBPath()
}
