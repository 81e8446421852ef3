// Package app builds the orchestrator and its collaborators from config.
package app

import (
	"context"
	"fmt"

	"studio-notifier/internal/audit"
	"studio-notifier/internal/channels"
	"studio-notifier/internal/common/aws"
	"studio-notifier/internal/common/config"
	"studio-notifier/internal/common/database"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/common/observability"
	"studio-notifier/internal/detectors"
	"studio-notifier/internal/feeds"
	"studio-notifier/internal/orchestrator"
	"studio-notifier/internal/state"
)

// App owns every long-lived client. Close releases them.
type App struct {
	Config        *config.Config
	Logger        logger.Logger
	Orchestrator  *orchestrator.Orchestrator
	Postgres      *database.PostgresClient
	Redis         *database.RedisClient
	Observability *observability.Observability
}

func New(ctx context.Context, cfg *config.Config, log logger.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, err
	}
	a.Postgres = pg
	if err := pg.Ping(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres unreachable: %w", err)
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}
	log.Info("PostgreSQL connected", nil)

	var locker orchestrator.Locker
	if cfg.Database.Redis.Address != "" {
		a.Redis = database.NewRedis(cfg.Database.Redis)
		if err := a.Redis.Ping(ctx); err != nil {
			log.Warn("redis unreachable, run lock will degrade until it recovers", map[string]interface{}{"error": err})
		}
		locker = orchestrator.NewRedisLocker(a.Redis.Client, orchestrator.DefaultLockKey,
			config.GetDuration(cfg.Orchestrator.LockTTL), log)
	} else {
		log.Warn("redis not configured, overlapping runs are only prevented in-process", nil)
	}

	awsCfg, err := aws.LoadConfig(ctx, cfg.AWS.Region)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	sesClient := aws.NewSESClient(awsCfg)
	snsClient := aws.NewSNSClient(awsCfg)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		log.Warn("otel metrics disabled", map[string]interface{}{"error": err})
	}
	a.Observability = obs

	states := state.NewPostgresStore(pg.DB)
	feed := feeds.NewClient(&feeds.Config{
		BaseURL:    cfg.Feeds.BaseURL,
		APIKey:     cfg.Feeds.APIKey,
		Timeout:    config.GetDuration(cfg.Feeds.Timeout),
		MaxRetries: cfg.Feeds.MaxRetries,
		Paths:      cfg.Feeds.Paths,
	}, log)

	var alerter orchestrator.Alerter
	if cfg.AWS.SNS.AlertTopicARN != "" {
		alerter = orchestrator.NewSNSAlerter(snsClient, cfg.AWS.SNS.AlertTopicARN, cfg.App.Name)
	}

	a.Orchestrator = orchestrator.New(
		orchestrator.Config{
			FallbackEmail: cfg.Orchestrator.FallbackEmail,
			DetectTimeout: config.GetDuration(cfg.Orchestrator.DetectTimeout),
			SendTimeout:   config.GetDuration(cfg.Orchestrator.SendTimeout),
			AlertTimeout:  config.GetDuration(cfg.Orchestrator.AlertTimeout),
			AlertOnQuiet:  cfg.Orchestrator.AlertOnQuietRuns,
		},
		orchestrator.Dependencies{
			Detectors:     BuildDetectors(cfg, feed, states, log),
			Channels:      BuildChannels(cfg, sesClient, snsClient, log),
			States:        states,
			Recipients:    audit.NewPostgresRecipientStore(pg.DB),
			History:       audit.NewPostgresHistoryStore(pg.DB),
			JobRuns:       audit.NewPostgresJobRunStore(pg.DB),
			Locker:        locker,
			Alerter:       alerter,
			Observability: obs,
		},
		log,
	)
	return a, nil
}

// Feed is every upstream source the detectors read.
type Feed interface {
	detectors.WaitlistFeed
	detectors.UsersFeed
	detectors.MembershipsFeed
	detectors.LeadsFeed
	detectors.TrialsFeed
}

// BuildDetectors returns the enabled detectors in execution order.
func BuildDetectors(cfg *config.Config, feed Feed, store state.Store, log logger.Logger) []detectors.Detector {
	opts := []detectors.Option{detectors.WithLocation(cfg.Orchestrator.Location())}
	window := func(name string) detectors.Window {
		d := config.GetDetectorConfig(cfg, name)
		return detectors.Window{Hour: d.WindowHour, Minute: d.WindowMinute, Minutes: d.WindowMinutes}
	}

	var out []detectors.Detector
	for _, name := range config.AllDetectors {
		if !config.IsDetectorEnabled(cfg, name) {
			log.Info("detector disabled", map[string]interface{}{"detector": name})
			continue
		}
		d := config.GetDetectorConfig(cfg, name)
		switch name {
		case config.DetectorWaitlistCapacity:
			out = append(out, detectors.NewWaitlistCapacityDetector(feed, store, log, opts...))
		case config.DetectorNewLead:
			out = append(out, detectors.NewNewLeadDetector(feed, store, log, opts...))
		case config.DetectorNewMembership:
			out = append(out, detectors.NewNewMembershipDetector(feed, store, log, opts...))
		case config.DetectorTrial:
			out = append(out, detectors.NewTrialDetector(feed, store, d.ReminderHours, log, opts...))
		case config.DetectorBirthday:
			out = append(out, detectors.NewBirthdayDetector(feed, store, window(name), log, opts...))
		case config.DetectorMembershipExpiry:
			out = append(out, detectors.NewMembershipExpiryDetector(feed, store, window(name), d.LookaheadDays, log, opts...))
		}
	}
	return out
}

// BuildChannels constructs every channel. Disabled ones report
// IsConfigured() == false and are skipped at delivery time.
func BuildChannels(cfg *config.Config, sesClient channels.SESService, snsClient channels.SNSService, log logger.Logger) orchestrator.Channels {
	wa := cfg.Channels.WhatsApp
	return orchestrator.Channels{
		Email: channels.NewEmailChannel(channels.EmailConfig{
			Enabled:   cfg.Channels.Email.Enabled,
			FromEmail: cfg.Channels.Email.FromEmail,
			FromName:  cfg.Channels.Email.FromName,
		}, sesClient, log),
		WhatsApp: channels.NewWhatsAppChannel(channels.WhatsAppConfig{
			Enabled:     wa.Enabled,
			BaseURL:     wa.BaseURL,
			AccountSID:  wa.AccountSID,
			AuthToken:   wa.AuthToken,
			From:        wa.From,
			Mode:        wa.Mode,
			ContentSIDs: wa.ContentSIDs,
			CountryCode: wa.CountryCode,
			MaxRetries:  wa.MaxRetries,
			Timeout:     config.GetDuration(cfg.Orchestrator.SendTimeout),
		}, log),
		SMS: channels.NewSMSChannel(channels.SMSConfig{
			Enabled:     cfg.Channels.SMS.Enabled,
			SenderID:    cfg.Channels.SMS.SenderID,
			CountryCode: wa.CountryCode,
		}, snsClient, log),
	}
}

// Ready checks the backing stores.
func (a *App) Ready(ctx context.Context) error {
	if err := a.Postgres.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Wait()
	}
	a.Observability.Shutdown()
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Postgres != nil {
		_ = a.Postgres.Close()
	}
}
