// Package scheduler triggers detection runs and state cleanup on cron
// schedules evaluated in the studio timezone.
package scheduler

import (
	"context"
	"fmt"
	"time"

	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/orchestrator"

	"github.com/robfig/cron/v3"
)

// Runner is the part of the orchestrator the scheduler drives.
type Runner interface {
	Run(ctx context.Context, selected ...string) (*orchestrator.RunResult, error)
	CleanupStates(ctx context.Context, olderThanDays int) (map[string]int64, error)
}

type Config struct {
	RunSchedule     string
	CleanupSchedule string
	RetentionDays   int
	Location        *time.Location
}

type Scheduler struct {
	cron     *cron.Cron
	wrappers []cron.JobWrapper
	runner   Runner
	config   Config
	logger   logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(config Config, runner Runner, log logger.Logger) (*Scheduler, error) {
	if config.Location == nil {
		config.Location = time.UTC
	}
	log = log.WithFields(map[string]interface{}{"component": "scheduler"})

	// a panicking job is logged and the process keeps serving
	wrappers := []cron.JobWrapper{
		cron.SkipIfStillRunning(cronLogger{log}),
		cron.Recover(cronLogger{log}),
	}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(config.Location),
		cron.WithChain(wrappers...),
	)
	s := &Scheduler{cron: c, wrappers: wrappers, runner: runner, config: config, logger: log}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := c.AddFunc(config.RunSchedule, s.runOnce); err != nil {
		return nil, apperrors.NewConfigurationInvalidError(fmt.Sprintf("orchestrator.schedule %q: %v", config.RunSchedule, err))
	}
	if config.CleanupSchedule != "" {
		if _, err := c.AddFunc(config.CleanupSchedule, s.cleanupOnce); err != nil {
			return nil, apperrors.NewConfigurationInvalidError(fmt.Sprintf("orchestrator.cleanup_schedule %q: %v", config.CleanupSchedule, err))
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", map[string]interface{}{
		"schedule":        s.config.RunSchedule,
		"cleanupSchedule": s.config.CleanupSchedule,
		"timezone":        s.config.Location.String(),
	})
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped", nil)
}

// Next returns the next scheduled run time.
func (s *Scheduler) Next() time.Time {
	var next time.Time
	for _, e := range s.cron.Entries() {
		if next.IsZero() || (!e.Next.IsZero() && e.Next.Before(next)) {
			next = e.Next
		}
	}
	return next
}

func (s *Scheduler) runOnce() {
	result, err := s.runner.Run(s.ctx)
	switch {
	case apperrors.IsCode(err, apperrors.ErrCodeRunInProgress):
		s.logger.Info("scheduled run skipped, another run is active", nil)
	case err != nil:
		s.logger.WithError(err).Error("scheduled run failed", nil)
	default:
		s.logger.Debug("scheduled run done", map[string]interface{}{
			"runId":          result.RunID,
			"eventsDetected": result.EventsDetected,
		})
	}
}

func (s *Scheduler) cleanupOnce() {
	removed, err := s.runner.CleanupStates(s.ctx, s.config.RetentionDays)
	if err != nil {
		s.logger.WithError(err).Error("state cleanup failed", nil)
		return
	}
	var total int64
	for _, n := range removed {
		total += n
	}
	s.logger.Info("state cleanup done", map[string]interface{}{"removed": total})
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := pairs(keysAndValues)
	fields["error"] = err
	l.log.Error("cron: "+msg, fields)
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
