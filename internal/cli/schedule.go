package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a cron schedule",
	Long: `Schedule keeps running and starts a pipeline run at every tick of
schedule.cron (default: daily at 06:00). A tick is skipped while the
previous run is still active.

Example:
  factharvest schedule
  factharvest schedule --cron "@every 6h" --run-on-start`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("cron", "", "cron spec (5 fields or @descriptor)")
	scheduleCmd.Flags().Bool("run-on-start", false, "run once immediately")

	bindFlag(scheduleCmd, "schedule.cron", "cron")
	bindFlag(scheduleCmd, "schedule.run_on_start", "run-on-start")
}

func runSchedule(cmd *cobra.Command, args []string) error {
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

	s, err := schedule.New(cfg.Schedule, a.runner, a.logger)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutting down", zap.String("reason", context.Cause(ctx).Error()))
	s.Stop()
	return nil
}
