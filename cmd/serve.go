package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/config"
	"github.com/hookline/hookline/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the telemetry server",
	Long:  `Starts the local server: ingest endpoint, historical reads, stats probe, and the live event stream at /ws.`,
	RunE:  runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (default from config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	port := servePort
	if port == 0 {
		port = cfg.Settings.Port
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := web.NewServer(cfg, port)
	return srv.ListenAndServe(ctx)
}
