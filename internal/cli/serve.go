package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/daemon"
	"github.com/soladity/bitcoin-ai-agent-crew-backend/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the crewd service",
	Long: `Start the crewd service in the foreground.
It serves the HTTP API and, when enabled, runs scheduled crews and sends
Telegram notifications. SIGINT or SIGTERM shuts it down gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := daemon.New(ctx, cfg, log, version)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize crewd")
		return err
	}
	defer d.Close()

	return d.Run(ctx)
}
