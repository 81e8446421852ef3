// cmd/notifier/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"studio-notifier/internal/app"
	"studio-notifier/internal/common/config"
	apperrors "studio-notifier/internal/common/errors"
	"studio-notifier/internal/common/logger"
	"studio-notifier/internal/models"
	"studio-notifier/internal/scheduler"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "notifier",
		Short:         "Studio event detection and admin notification service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ./configs/config.yaml)")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(cleanupCmd())
	rootCmd.AddCommand(notifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// bootstrap loads config, sets up logging and builds the application.
func bootstrap(ctx context.Context) (*app.App, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	log := logger.NewZapAdapter(zapLog).WithFields(map[string]interface{}{
		"service": cfg.App.Name,
		"env":     cfg.App.Environment,
	})

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		_ = zapLog.Sync()
		return nil, nil, err
	}
	return a, zapLog, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCmd() *cobra.Command {
	var selected []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the detectors once and deliver notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, zapLog, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer zapLog.Sync()
			defer a.Close()

			result, err := a.Orchestrator.Run(ctx, selected...)
			if result != nil {
				_ = printJSON(result)
			}
			if apperrors.IsCode(err, apperrors.ErrCodeRunInProgress) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVarP(&selected, "detectors", "d", nil, "detectors to run (default: all enabled)")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run detectors on a schedule and expose health and metrics endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, zapLog, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer zapLog.Sync()
			defer a.Close()

			cfg := a.Config
			sched, err := scheduler.New(scheduler.Config{
				RunSchedule:     cfg.Orchestrator.Schedule,
				CleanupSchedule: cfg.Orchestrator.CleanupSchedule,
				RetentionDays:   cfg.Orchestrator.StateRetentionDays,
				Location:        cfg.Orchestrator.Location(),
			}, a.Orchestrator, a.Logger)
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"status":    "healthy",
					"detectors": a.Orchestrator.DetectorNames(),
					"nextRun":   sched.Next(),
				})
			})
			mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				readyCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
				defer cancel()
				if err := a.Ready(readyCtx); err != nil {
					w.WriteHeader(http.StatusServiceUnavailable)
					json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
					return
				}
				w.WriteHeader(http.StatusOK)
				json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
			})
			mux.Handle("/metrics", promhttp.Handler())

			server := &http.Server{Addr: cfg.Server.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				zapLog.Info("Starting health and metrics server", zap.String("address", cfg.Server.Address))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					zapLog.Error("Health server failed", zap.Error(err))
				}
			}()

			sched.Start()

			// --- Graceful Shutdown ---
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			zapLog.Info("Shutdown signal received, stopping scheduler...")
			sched.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				zapLog.Error("Error shutting down health server", zap.Error(err))
			}
			zapLog.Info("Notifier stopped")
			return nil
		},
	}
}

func cleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete notification states not checked within the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, zapLog, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer zapLog.Sync()
			defer a.Close()

			if days <= 0 {
				days = a.Config.Orchestrator.StateRetentionDays
			}
			removed, err := a.Orchestrator.CleanupStates(cmd.Context(), days)
			if err != nil {
				return err
			}
			return printJSON(removed)
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: orchestrator.state_retention_days)")
	return cmd
}

func notifyCmd() *cobra.Command {
	var (
		eventType string
		entityKey string
		entityID  string
		data      string
	)
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Deliver an ad-hoc notification, e.g. a signed document",
		RunE: func(cmd *cobra.Command, args []string) error {
			n := models.Notification{
				Type:      eventType,
				EventType: eventType,
				EntityID:  entityID,
				EntityKey: entityKey,
			}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &n.Data); err != nil {
					return fmt.Errorf("--data must be a JSON object: %w", err)
				}
			}

			a, zapLog, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer zapLog.Sync()
			defer a.Close()

			result, err := a.Orchestrator.Notify(cmd.Context(), n)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&eventType, "event", models.EventDocumentSigned, "event type")
	cmd.Flags().StringVar(&entityKey, "key", "", "entity key")
	cmd.Flags().StringVar(&entityID, "id", "", "entity id")
	cmd.Flags().StringVar(&data, "data", "", "notification data as a JSON object")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}
