// Package schedule triggers pipeline runs on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ppiankov/factharvest/internal/model"
	"github.com/ppiankov/factharvest/internal/pipeline"
)

// Runner starts one pipeline run; *pipeline.Runner implements it
type Runner interface {
	Run(ctx context.Context, trigger model.Trigger) (*model.RunOutcome, error)
}

// Scheduler runs the pipeline on a 5-field cron spec (descriptors such as
// @daily are accepted too)
type Scheduler struct {
	cron       *cron.Cron
	schedule   cron.Schedule
	spec       string
	runOnStart bool
	runner     Runner
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates the cron spec and builds a stopped scheduler
func New(cfg model.ScheduleConfig, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	sched, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", cfg.Cron, err)
	}

	cl := cronLogger{l: logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
			cron.WithLogger(cl),
		),
		schedule:   sched,
		spec:       cfg.Cron,
		runOnStart: cfg.RunOnStart,
		runner:     runner,
		logger:     logger,
	}, nil
}

// Start begins scheduling. Runs receive a context derived from ctx that is
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.spec, func() { s.trigger() }); err != nil {
		s.cancel()
		return fmt.Errorf("schedule run: %w", err)
	}
	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("cron", s.spec),
		zap.Time("next_run", s.Next(time.Now())),
	)

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.trigger()
		}()
	}
	return nil
}

// Stop cancels active runs and waits for them to return
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// Next returns the first scheduled time after t
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

func (s *Scheduler) trigger() {
	outcome, err := s.runner.Run(s.ctx, model.TriggerCron)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.logger.Warn("scheduled run skipped, previous run still active")
	case err != nil:
		// the runner has logged the failure with its stage
		s.logger.Debug("scheduled run failed", zap.Error(err))
	default:
		s.logger.Info("scheduled run done",
			zap.String("run_id", outcome.RunID),
			zap.Time("next_run", s.Next(time.Now())),
		)
	}
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
