package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ent0n29/outreach/internal/config"
	"github.com/ent0n29/outreach/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	root := &cobra.Command{
		Use:           "outreach",
		Short:         "Outreach task intake, execution and operator console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String(config.KeyConfigFile, "", "config file (yaml or json)")
	root.PersistentFlags().String(config.KeyLogLevel, "info", "log level: debug|info|warn|error")
	root.PersistentFlags().String(config.KeyLogFormat, "console", "log format: console|json")

	root.AddCommand(newServeCmd(v), newConsoleCmd(v), newSubmitCmd(v))
	return root
}

// bindFlags binds every flag visible to cmd, so keys shared by several
// subcommands resolve to the flags of the command that is running.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if bindErr != nil {
			return
		}
		if err := v.BindPFlag(f.Name, f); err != nil {
			bindErr = fmt.Errorf("bind flag %s: %w", f.Name, err)
		}
	})
	return bindErr
}

func loadConfig(v *viper.Viper, cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	if err := bindFlags(v, cmd); err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, observability.NewLogger(cfg.LogLevel, cfg.LogFormat), nil
}
