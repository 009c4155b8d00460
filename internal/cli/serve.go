package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/factharvest/internal/schedule"
	"github.com/ppiankov/factharvest/internal/server"
)

var serveWithSchedule bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP run trigger",
	Long: `Serve exposes:
  POST /api/v1/runs        start a run (202; ?wait=true responds with the outcome)
  GET  /api/v1/runs/last   outcome of the last finished run
  GET  /health             liveness
  GET  /metrics            Prometheus metrics

Example:
  factharvest serve --addr :8080
  factharvest serve --with-schedule`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address")
	serveCmd.Flags().BoolVar(&serveWithSchedule, "with-schedule", false, "also run on schedule.cron")

	bindFlag(serveCmd, "server.addr", "addr")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	if serveWithSchedule {
		s, err := schedule.New(cfg.Schedule, a.runner, a.logger)
		if err != nil {
			return err
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
		defer s.Stop()
	}

	return server.New(cfg.Server, a.runner, a.registry, a.logger).ListenAndServe(ctx)
}
