// Package orchestrator runs the detectors, resolves admin recipients and fans
// every notification out to the configured channels with a full audit trail.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"studio-notifier/internal/audit"
	"studio-notifier/internal/channels"
	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/common/metrics"
	"studio-notifier/internal/common/observability"
	"studio-notifier/internal/detectors"
	"studio-notifier/internal/models"
	"studio-notifier/internal/state"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	FallbackEmail string
	DetectTimeout time.Duration
	SendTimeout   time.Duration
	AlertTimeout  time.Duration
	// AlertOnQuiet sends the summary alert for successful runs that detected nothing.
	AlertOnQuiet  bool
}

// Channels holds the delivery channels by role. Any of them may be nil.
type Channels struct {
	Email    channels.Channel
	WhatsApp channels.Channel
	SMS      channels.Channel
}

// Dependencies are the collaborators an Orchestrator is built from.
type Dependencies struct {
	Detectors     []detectors.Detector
	Channels      Channels
	States        state.Store
	Recipients    audit.RecipientStore
	History       audit.HistoryStore
	JobRuns       audit.JobRunStore
	Locker        Locker
	Alerter       Alerter
	Observability *observability.Observability
}

// RunResult summarizes one invocation.
type RunResult struct {
	RunID               string            `json:"runId,omitempty"`
	Success             bool              `json:"success"`
	Skipped             bool              `json:"skipped,omitempty"`
	EventsDetected      int               `json:"eventsDetected"`
	NotificationsSent   int               `json:"notificationsSent"`
	NotificationsFailed int               `json:"notificationsFailed"`
	DetectorErrors      map[string]string `json:"detectorErrors,omitempty"`
	DurationMs          int64             `json:"durationMs"`
}

type Orchestrator struct {
	config Config
	deps   Dependencies
	logger logger.Logger
	now    func() time.Time
	newID  func() string
	group  singleflight.Group
	alerts sync.WaitGroup
}

func New(config Config, deps Dependencies, log logger.Logger) *Orchestrator {
	if config.DetectTimeout <= 0 {
		config.DetectTimeout = time.Minute
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 20 * time.Second
	}
	if config.AlertTimeout <= 0 {
		config.AlertTimeout = 10 * time.Second
	}
	return &Orchestrator{
		config: config,
		deps:   deps,
		logger: log.WithFields(map[string]interface{}{"component": "orchestrator"}),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// DetectorNames lists the registered detectors in execution order.
func (o *Orchestrator) DetectorNames() []string {
	names := make([]string, 0, len(o.deps.Detectors))
	for _, d := range o.deps.Detectors {
		names = append(names, d.Name())
	}
	return names
}

// Run executes the selected detectors, or all of them when none are named.
// Concurrent calls for the same selection share one run.
func (o *Orchestrator) Run(ctx context.Context, selected ...string) (*RunResult, error) {
	dets, err := o.selectDetectors(selected)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(dets))
	for _, d := range dets {
		names = append(names, d.Name())
	}
	key := strings.Join(names, ",")

	v, err, shared := o.group.Do(key, func() (interface{}, error) {
		return o.run(ctx, dets, names)
	})
	if shared {
		o.logger.Debug("joined in-flight run", map[string]interface{}{"detectors": key})
	}
	result, _ := v.(*RunResult)
	return result, err
}

func (o *Orchestrator) selectDetectors(selected []string) ([]detectors.Detector, error) {
	if len(selected) == 0 {
		return o.deps.Detectors, nil
	}
	want := map[string]bool{}
	for _, name := range selected {
		want[name] = true
	}
	var out []detectors.Detector
	for _, d := range o.deps.Detectors {
		if want[d.Name()] {
			out = append(out, d)
			delete(want, d.Name())
		}
	}
	if len(want) > 0 {
		unknown := make([]string, 0, len(want))
		for name := range want {
			unknown = append(unknown, name)
		}
		sort.Strings(unknown)
		return nil, apperrors.NewConfigurationInvalidError("unknown or disabled detectors: " + strings.Join(unknown, ", "))
	}
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, dets []detectors.Detector, names []string) (*RunResult, error) {
	start := o.now()
	run := &models.JobRun{
		ID:        o.newID(),
		Status:    models.JobRunRunning,
		Detectors: names,
		StartedAt: start.UTC(),
	}
	result := &RunResult{RunID: run.ID, DetectorErrors: map[string]string{}}
	log := o.logger.WithFields(map[string]interface{}{"runId": run.ID})

	if o.deps.Locker != nil {
		unlock, acquired, err := o.deps.Locker.TryLock(ctx)
		switch {
		case err != nil:
			log.WithError(err).Warn("run lock unavailable, continuing without it", nil)
		case !acquired:
			return o.skip(ctx, run, result, log)
		default:
			defer unlock()
		}
	}

	if err := o.deps.JobRuns.Create(ctx, run); err != nil {
		log.WithError(err).Error("failed to create job run", nil)
		return nil, err
	}
	log.Info("run started", map[string]interface{}{"detectors": names})

	var runErr error
	for _, d := range dets {
		notes, err := o.detect(ctx, d)
		result.EventsDetected += len(notes)

		// state for these was already saved, so deliver even if the detector failed midway
		for _, n := range notes {
			o.deliver(ctx, run.ID, n, result)
		}

		if err != nil {
			result.DetectorErrors[d.Name()] = err.Error()
			if apperrors.IsCode(err, apperrors.ErrCodeStateStoreFailed) {
				runErr = err
				break
			}
		}
	}

	finished := o.now()
	run.FinishedAt = &finished
	run.EventsDetected = result.EventsDetected
	run.NotificationsSent = result.NotificationsSent
	run.NotificationsFailed = result.NotificationsFailed
	run.Status = models.JobRunCompleted
	if runErr != nil {
		run.Status = models.JobRunFailed
		run.Error = runErr.Error()
	}
	if err := o.deps.JobRuns.Finish(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).Error("failed to finish job run", nil)
	}

	result.Success = runErr == nil
	result.DurationMs = finished.Sub(start).Milliseconds()
	o.deps.Observability.RecordRun(ctx, finished.Sub(start), run.Status)

	log.Info("run finished", map[string]interface{}{
		"status":              run.Status,
		"eventsDetected":      result.EventsDetected,
		"notificationsSent":   result.NotificationsSent,
		"notificationsFailed": result.NotificationsFailed,
		"durationMs":          result.DurationMs,
	})

	if runErr == nil && (result.EventsDetected > 0 || o.config.AlertOnQuiet) {
		o.alert(result)
	}
	return result, runErr
}

func (o *Orchestrator) skip(ctx context.Context, run *models.JobRun, result *RunResult, log logger.Logger) (*RunResult, error) {
	metrics.RunsSkipped.Inc()
	finished := o.now()
	run.Status = models.JobRunSkipped
	run.FinishedAt = &finished
	run.Error = "another run holds the lock"

	if err := o.deps.JobRuns.Create(ctx, run); err != nil {
		log.WithError(err).Warn("failed to record skipped run", nil)
	} else if err := o.deps.JobRuns.Finish(ctx, run); err != nil {
		log.WithError(err).Warn("failed to record skipped run", nil)
	}
	o.deps.Observability.RecordRun(ctx, 0, run.Status)

	log.Info("run skipped, lock held elsewhere", nil)
	result.Skipped = true
	return result, apperrors.NewRunInProgressError()
}

func (o *Orchestrator) detect(ctx context.Context, d detectors.Detector) ([]models.Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, o.config.DetectTimeout)
	defer cancel()

	start := time.Now()
	notes, err := safeDetect(ctx, d)
	metrics.DetectorDuration.WithLabelValues(d.Name()).Observe(time.Since(start).Seconds())

	if err != nil {
		code := string(apperrors.CodeOf(err))
		if code == "" {
			code = "UNKNOWN"
		}
		metrics.DetectorErrors.WithLabelValues(d.Name(), code).Inc()
		o.logger.Error("detector failed", map[string]interface{}{
			"detector":  d.Name(),
			"errorCode": code,
			"error":     err,
		})
	}
	if len(notes) > 0 {
		metrics.EventsDetected.WithLabelValues(d.EventType()).Add(float64(len(notes)))
		o.logger.Info("detector emitted notifications", map[string]interface{}{
			"detector": d.Name(),
			"count":    len(notes),
		})
	}
	return notes, err
}

// safeDetect turns a detector panic into an isolated detector error.
func safeDetect(ctx context.Context, d detectors.Detector) (notes []models.Notification, err error) {
	defer func() {
		if r := recover(); r != nil {
			notes = nil
			err = fmt.Errorf("detector panicked: %v", r)
		}
	}()
	return d.Detect(ctx)
}

// Notify delivers an out-of-cycle notification through the same recipient
// resolution and audit path as a scheduled run.
func (o *Orchestrator) Notify(ctx context.Context, n models.Notification) (*RunResult, error) {
	if n.EventType == "" {
		return nil, apperrors.NewConfigurationInvalidError("notification event type is required")
	}
	if n.Type == "" {
		n.Type = n.EventType
	}
	result := &RunResult{EventsDetected: 1}
	start := o.now()
	o.deliver(ctx, "", n, result)
	result.Success = true
	result.DurationMs = o.now().Sub(start).Milliseconds()
	return result, nil
}

// Wait blocks until detached alerts have finished.
func (o *Orchestrator) Wait() {
	o.alerts.Wait()
}

func (o *Orchestrator) alert(result *RunResult) {
	if o.deps.Alerter == nil {
		return
	}
	summary := *result
	o.alerts.Add(1)
	go func() {
		defer o.alerts.Done()
		defer func() {
			if r := recover(); r != nil {
				o.logger.Warn("summary alert panicked", map[string]interface{}{"panic": fmt.Sprint(r)})
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), o.config.AlertTimeout)
		defer cancel()
		if err := o.deps.Alerter.Alert(ctx, &summary); err != nil {
			o.logger.Warn("summary alert failed", map[string]interface{}{"error": err, "runId": summary.RunID})
		}
	}()
}

// CleanupStates removes state rows not checked within olderThanDays for
// every registered detector.
func (o *Orchestrator) CleanupStates(ctx context.Context, olderThanDays int) (map[string]int64, error) {
	removed := map[string]int64{}
	for _, d := range o.deps.Detectors {
		n, err := o.deps.States.CleanupOldStates(ctx, d.EventType(), olderThanDays)
		if err != nil {
			return removed, err
		}
		removed[d.EventType()] = n
		if n > 0 {
			o.logger.Info("removed stale states", map[string]interface{}{"eventType": d.EventType(), "count": n})
		}
	}
	return removed, nil
}
