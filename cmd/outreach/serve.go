package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/config"
	"github.com/ent0n29/outreach/internal/events"
	"github.com/ent0n29/outreach/internal/execution"
	"github.com/ent0n29/outreach/internal/httpapi"
	"github.com/ent0n29/outreach/internal/intake"
	"github.com/ent0n29/outreach/internal/observability"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the workflow intake and task execution backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
	f := cmd.Flags()
	f.String(config.KeyBindAddr, ":8000", "listen address")
	f.Duration(config.KeyShutdownTimeout, 15*time.Second, "graceful shutdown timeout")
	f.String(config.KeyMetricsNamespace, "outreach", "prometheus metrics namespace")
	f.Bool(config.KeyAllowAnyOrigin, false, "accept stream connections from any browser origin")
	f.String(config.KeyDatabaseURL, "", "postgres url for the execution log (in-memory when empty)")
	f.String(config.KeyNATSURL, "", "mirror stream events to this NATS server")
	f.Duration(config.KeyExecDelayMin, time.Second, "minimum simulated execution latency")
	f.Duration(config.KeyExecDelayMax, 2*time.Second, "maximum simulated execution latency")
	f.Float64(config.KeyExecFailureRate, 0.1, "probability a simulated execution fails")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := execution.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer store.Close()
	log.Info("execution store ready", zap.String("mode", store.Mode()))

	var sinks []events.Sink
	if cfg.NATSURL != "" {
		sink, err := events.NewNATSSink(cfg.NATSURL, events.DefaultSubjectPrefix, log)
		if err != nil {
			return err
		}
		sinks = append(sinks, sink)
		log.Info("mirroring events to nats", zap.String("url", cfg.NATSURL))
	}
	hub := events.NewHub(log, sinks...)
	defer hub.Close()

	svc := execution.NewService(execution.Config{
		DelayMin:    cfg.ExecDelayMin,
		DelayMax:    cfg.ExecDelayMax,
		FailureRate: cfg.ExecFailureRate,
	}, store, metrics, log)

	api := httpapi.New(cfg, intake.NewMemoryQueue(), svc, hub, metrics, log)
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	select {
	case err := <-listenErr:
		return err
	case <-sigCh:
		log.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}
	log.Info("shutdown complete")
	return nil
}
