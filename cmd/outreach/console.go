package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/config"
	"github.com/ent0n29/outreach/internal/console"
	"github.com/ent0n29/outreach/internal/reliability"
	"github.com/ent0n29/outreach/internal/streamclient"
)

func newConsoleCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Review and execute outreach tasks interactively",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(v, cmd)
			if err != nil {
				return err
			}
			defer log.Sync()
			return runConsole(cmd.Context(), cfg, log, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.String(config.KeyAPIBaseURL, "http://127.0.0.1:8000", "backend base url")
	f.String(config.KeyStreamEndpoint, streamclient.DefaultEndpoint, "event stream endpoint")
	f.Duration(config.KeyReconnectInterval, streamclient.DefaultReconnectInterval, "delay before each stream reconnect attempt")
	f.Int(config.KeyMaxReconnectAttempts, streamclient.DefaultMaxReconnectAttempts, "stream reconnect attempts before giving up")
	f.Duration(config.KeyPollInterval, 5*time.Second, "workflow poll interval")
	f.Duration(config.KeyExecutionTimeout, 30*time.Second, "per attempt execution timeout")
	f.Int(config.KeyTelemetryBufferSize, console.DefaultTelemetryCapacity, "stream frames retained for display")
	f.Bool(config.KeyAutoRetry, false, "retry transient failures automatically with backoff")
	f.String(config.KeyActiveContact, "default", "initially active contact")
	return cmd
}

func runConsole(ctx context.Context, cfg config.Config, log *zap.Logger, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := console.NewAPIClient(cfg.APIBaseURL, cfg.ExecutionTimeout+5*time.Second)
	orch := console.NewOrchestrator(api, api, console.Options{
		ActiveContact:    cfg.ActiveContact,
		PollInterval:     cfg.PollInterval,
		ExecutionTimeout: cfg.ExecutionTimeout,
		AutoRetry:        cfg.AutoRetry,
		RetryPolicy:      reliability.DefaultRetryPolicy(),
	}, log)
	defer orch.Close()
	orch.OnNotice(func(n console.Notice) {
		if n.TaskID != "" {
			fmt.Fprintf(out, "\n! [%s] %s: %s\n", n.Kind, n.TaskID, n.Message)
			return
		}
		fmt.Fprintf(out, "\n! [%s] %s\n", n.Kind, n.Message)
	})

	telemetry := console.NewTelemetry(cfg.TelemetryBufferSize)
	stream, err := streamclient.New(streamclient.Options{
		Endpoint:             cfg.StreamEndpoint,
		ReconnectInterval:    cfg.ReconnectInterval,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, log)
	if err != nil {
		return err
	}
	stream.OnMessage(func(m streamclient.Message) {
		telemetry.Record(m)
		orch.Deliver(m)
	})
	stream.OnOpen(func() { log.Info("stream open", zap.String("endpoint", stream.Endpoint())) })
	stream.OnClose(func(err error) {
		if err != nil {
			log.Warn("stream closed", zap.Error(err), zap.Int("reconnect_attempts", stream.ReconnectCount()))
		}
	})
	stream.Connect()
	defer stream.Disconnect()

	go func() {
		if err := orch.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("orchestrator stopped", zap.Error(err))
		}
	}()

	fmt.Fprintf(out, "outreach console: backend %s, stream %s (type help)\n", cfg.APIBaseURL, stream.Endpoint())
	return console.NewShell(orch, stream, telemetry, out).Run(ctx, in)
}
