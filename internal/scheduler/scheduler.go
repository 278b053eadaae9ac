package scheduler

import (
	"context"
	"fmt"
	"time"

	"contract-service/internal/engine"
	"contract-service/internal/model"
	"contract-service/pkg/notifier"
	"contract-service/prometheus"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config holds the scheduler settings.
type Config struct {
	// ExpirySweepAt and ReminderSweepAt are daily wall-clock times in
	// "15:04" form.
	ExpirySweepAt   string
	ReminderSweepAt string
	// ReminderGraceDays is both the age a pending signature must reach
	// before the first reminder and the minimum gap between reminders.
	ReminderGraceDays int
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		ExpirySweepAt:     "09:00",
		ReminderSweepAt:   "10:00",
		ReminderGraceDays: 3,
	}
}

// Result summarizes one sweep run for logging and metrics.
type Result struct {
	Processed int
	Notified  int
	Failed    int
}

// Scheduler runs the daily batch sweeps. Sweeps are plain synchronous
// functions; the only long-lived piece is the timer loop that fires them at
// their wall-clock times. Both sweeps are idempotent and safe to re-run
// after a crash.
type Scheduler struct {
	db       *gorm.DB
	engine   *engine.Engine
	notifier notifier.Notifier
	log      *zap.Logger
	cfg      Config
}

// New wires a scheduler over the shared database and engine.
func New(db *gorm.DB, eng *engine.Engine, n notifier.Notifier, log *zap.Logger, cfg Config) *Scheduler {
	if cfg.ReminderGraceDays <= 0 {
		cfg.ReminderGraceDays = DefaultConfig().ReminderGraceDays
	}
	return &Scheduler{db: db, engine: eng, notifier: n, log: log, cfg: cfg}
}

// Start launches the daily timer loops. They stop when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runDaily(ctx, "expiry_sweep", s.cfg.ExpirySweepAt, s.RunExpirySweep)
	go s.runDaily(ctx, "reminder_sweep", s.cfg.ReminderSweepAt, s.RunReminderSweep)
}

func (s *Scheduler) runDaily(ctx context.Context, job, at string, sweep func(time.Time) Result) {
	for {
		next, err := nextRun(time.Now(), at)
		if err != nil {
			s.log.Error("invalid sweep schedule, job disabled",
				zap.String("job", job),
				zap.String("at", at),
				zap.Error(err))
			return
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			start := time.Now()
			s.log.Info("sweep starting", zap.String("job", job), zap.Time("scheduled_for", next))
			res := sweep(now)
			elapsed := time.Since(start)
			prometheus.ObserveSweep(job, elapsed, res.Processed, res.Notified, res.Failed)
			s.refreshStatusGauge()
			s.log.Info("sweep finished",
				zap.String("job", job),
				zap.Duration("duration", elapsed),
				zap.Int("processed", res.Processed),
				zap.Int("notified", res.Notified),
				zap.Int("failed", res.Failed))
		}
	}
}

// refreshStatusGauge recomputes the contracts-by-status gauge from the live
// table. Statuses with no rows are reset so the gauge does not hold stale
// counts.
func (s *Scheduler) refreshStatusGauge() {
	var rows []struct {
		Status model.ContractStatus
		Count  int
	}
	if err := s.db.Model(&model.Contract{}).
		Select("status, count(*) as count").
		Group("status").Scan(&rows).Error; err != nil {
		s.log.Error("status gauge refresh failed", zap.Error(err))
		return
	}

	counts := make(map[model.ContractStatus]int, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	for _, status := range allStatuses {
		prometheus.UpdateContractsByStatus(string(status), counts[status])
	}
}

var allStatuses = []model.ContractStatus{
	model.StatusDraft,
	model.StatusPending,
	model.StatusPartiallySigned,
	model.StatusSigned,
	model.StatusActive,
	model.StatusExpired,
	model.StatusTerminated,
	model.StatusCancelled,
}

// nextRun returns the next occurrence of the "15:04" wall-clock time after now.
func nextRun(now time.Time, at string) (time.Time, error) {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", at, err)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

// dayStart truncates t to midnight in its location.
func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
