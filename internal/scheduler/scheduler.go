package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/issue-tracker/internal/config"
	"github.com/spec-kit/issue-tracker/pkg/util"
)

// Jobs are the two periodic passes the scheduler drives.
type Jobs struct {
	Intake    func(context.Context)
	Reconcile func(context.Context)
}

// Scheduler runs intake and reconciliation sweeps on independent intervals.
// Sweeps may overlap in time; per-item safety lives in the store and the
// intake seen-cache, not here.
type Scheduler struct {
	cron    *cron.Cron
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	initial func(context.Context)
}

// New validates the sweep intervals and registers both jobs.
func New(cfg config.TrackerConfig, jobs Jobs, logger *zap.Logger) (*Scheduler, error) {
	if cfg.IntakeSweepMinutes <= 0 {
		return nil, util.NewConfigError("intake sweep interval must be positive",
			map[string]any{"minutes": cfg.IntakeSweepMinutes})
	}
	if cfg.ReconcileSweepHours <= 0 {
		return nil, util.NewConfigError("reconcile sweep interval must be positive",
			map[string]any{"hours": cfg.ReconcileSweepHours})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cronLog := zapCronLogger{sugar: logger.Sugar()}
	c := cron.New(cron.WithChain(cron.Recover(cronLog)))

	s := &Scheduler{cron: c, logger: logger, ctx: ctx, cancel: cancel}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.IntakePeriod()), func() {
		jobs.Intake(s.ctx)
	}); err != nil {
		cancel()
		return nil, util.NewConfigError("register intake sweep", map[string]any{"error": err.Error()})
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.ReconcilePeriod()), func() {
		jobs.Reconcile(s.ctx)
	}); err != nil {
		cancel()
		return nil, util.NewConfigError("register reconcile sweep", map[string]any{"error": err.Error()})
	}

	// First intake runs immediately rather than waiting out a full period.
	s.initial = jobs.Intake

	return s, nil
}

type zapCronLogger struct {
	sugar *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Start begins scheduling sweeps.
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	if s.initial != nil {
		go s.initial(s.ctx)
	}
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight sweeps to drain, up to the
// deadline of the given context. After the deadline, in-flight work is
// cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	drained := s.cron.Stop()
	defer s.cancel()

	select {
	case <-drained.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out; cancelling in-flight sweeps")
		return ctx.Err()
	}
}
