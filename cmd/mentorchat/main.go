package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/comigor/mentorchat/internal/config"
	"github.com/comigor/mentorchat/internal/history"
	"github.com/comigor/mentorchat/internal/llm"
	"github.com/comigor/mentorchat/internal/logger"
	"github.com/comigor/mentorchat/internal/responder"
	"github.com/comigor/mentorchat/internal/session"
)

var configPath string

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mentorchat",
	Short: "Two-lane chat transcript with an LLM design mentor",
	Long: `mentorchat keeps a chat transcript between a user and a mentor agent.

User messages sit in the right lane, mentor replies in the left lane, and a
composing indicator is shown while a reply is being generated.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONFIG_PATH or ./config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logger.L.Debug("no .env file loaded", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds everything a command needs to drive sessions.
type app struct {
	cfg      *config.Config
	sessions *session.Manager
	close    func()
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Configure(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	llmClient := llm.NewClient(cfg.LLM)
	gen := responder.New(ctx, llmClient, *cfg)

	store := history.Open(cfg.History.DBPath)
	if !store.Persistent() {
		logger.L.Warn("transcript history is kept in memory only", "db_path", cfg.History.DBPath)
	}

	mgr := session.NewManager(gen, store, session.Options{
		Label:        cfg.Mentor.Label,
		Timeout:      cfg.Composing.Timeout,
		FallbackText: cfg.Composing.FallbackText,
		Window:       cfg.History.Window,
	})

	return &app{
		cfg:      cfg,
		sessions: mgr,
		close: func() {
			if err := gen.Close(); err != nil {
				logger.L.Warn("failed to close responder", "error", err)
			}
			if err := store.Close(); err != nil {
				logger.L.Warn("failed to close history", "error", err)
			}
		},
	}, nil
}
