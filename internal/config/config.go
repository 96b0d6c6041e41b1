package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all runtime settings for the outreach backend and console.
type Config struct {
	LogLevel  string
	LogFormat string

	// backend
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool
	DatabaseURL      string
	NATSURL          string
	ExecDelayMin     time.Duration
	ExecDelayMax     time.Duration
	ExecFailureRate  float64

	// console
	APIBaseURL           string
	StreamEndpoint       string
	ReconnectInterval    time.Duration
	MaxReconnectAttempts int
	PollInterval         time.Duration
	ExecutionTimeout     time.Duration
	TelemetryBufferSize  int
	AutoRetry            bool
	ActiveContact        string
}

// Keys shared by viper, flags and OUTREACH_* environment variables.
const (
	KeyConfigFile           = "config"
	KeyLogLevel             = "log-level"
	KeyLogFormat            = "log-format"
	KeyBindAddr             = "bind-addr"
	KeyShutdownTimeout      = "shutdown-timeout"
	KeyMetricsNamespace     = "metrics-namespace"
	KeyAllowAnyOrigin       = "allow-any-origin"
	KeyDatabaseURL          = "database-url"
	KeyNATSURL              = "nats-url"
	KeyExecDelayMin         = "exec-delay-min"
	KeyExecDelayMax         = "exec-delay-max"
	KeyExecFailureRate      = "exec-failure-rate"
	KeyAPIBaseURL           = "api-base-url"
	KeyStreamEndpoint       = "stream-endpoint"
	KeyReconnectInterval    = "reconnect-interval"
	KeyMaxReconnectAttempts = "max-reconnect-attempts"
	KeyPollInterval         = "poll-interval"
	KeyExecutionTimeout     = "execution-timeout"
	KeyTelemetryBufferSize  = "telemetry-buffer"
	KeyAutoRetry            = "auto-retry"
	KeyActiveContact        = "contact"
)

// New returns a viper instance with defaults applied and OUTREACH_* env
// lookups enabled. Flags are bound by the caller.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "console")
	v.SetDefault(KeyBindAddr, ":8000")
	v.SetDefault(KeyShutdownTimeout, 15*time.Second)
	v.SetDefault(KeyMetricsNamespace, "outreach")
	v.SetDefault(KeyAllowAnyOrigin, false)
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyExecDelayMin, time.Second)
	v.SetDefault(KeyExecDelayMax, 2*time.Second)
	v.SetDefault(KeyExecFailureRate, 0.1)
	v.SetDefault(KeyAPIBaseURL, "http://127.0.0.1:8000")
	v.SetDefault(KeyStreamEndpoint, "ws://127.0.0.1:8000/ws")
	v.SetDefault(KeyReconnectInterval, 3*time.Second)
	v.SetDefault(KeyMaxReconnectAttempts, 5)
	v.SetDefault(KeyPollInterval, 5*time.Second)
	v.SetDefault(KeyExecutionTimeout, 30*time.Second)
	v.SetDefault(KeyTelemetryBufferSize, 100)
	v.SetDefault(KeyAutoRetry, false)
	v.SetDefault(KeyActiveContact, "default")
}

// Load reads the optional config file named by the "config" key and
// returns validated settings.
func Load(v *viper.Viper) (Config, error) {
	if path := strings.TrimSpace(v.GetString(KeyConfigFile)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		LogLevel:             strings.TrimSpace(v.GetString(KeyLogLevel)),
		LogFormat:            strings.TrimSpace(v.GetString(KeyLogFormat)),
		BindAddr:             strings.TrimSpace(v.GetString(KeyBindAddr)),
		ShutdownTimeout:      v.GetDuration(KeyShutdownTimeout),
		MetricsNamespace:     strings.TrimSpace(v.GetString(KeyMetricsNamespace)),
		AllowAnyOrigin:       v.GetBool(KeyAllowAnyOrigin),
		DatabaseURL:          strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		NATSURL:              strings.TrimSpace(v.GetString(KeyNATSURL)),
		ExecDelayMin:         v.GetDuration(KeyExecDelayMin),
		ExecDelayMax:         v.GetDuration(KeyExecDelayMax),
		ExecFailureRate:      v.GetFloat64(KeyExecFailureRate),
		APIBaseURL:           strings.TrimRight(strings.TrimSpace(v.GetString(KeyAPIBaseURL)), "/"),
		StreamEndpoint:       strings.TrimSpace(v.GetString(KeyStreamEndpoint)),
		ReconnectInterval:    v.GetDuration(KeyReconnectInterval),
		MaxReconnectAttempts: v.GetInt(KeyMaxReconnectAttempts),
		PollInterval:         v.GetDuration(KeyPollInterval),
		ExecutionTimeout:     v.GetDuration(KeyExecutionTimeout),
		TelemetryBufferSize:  v.GetInt(KeyTelemetryBufferSize),
		AutoRetry:            v.GetBool(KeyAutoRetry),
		ActiveContact:        strings.TrimSpace(v.GetString(KeyActiveContact)),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.ExecDelayMin < 0 || c.ExecDelayMax < c.ExecDelayMin {
		return fmt.Errorf("%s must be >= 0 and <= %s", KeyExecDelayMin, KeyExecDelayMax)
	}
	if c.ExecFailureRate < 0 || c.ExecFailureRate > 1 {
		return fmt.Errorf("%s must be within [0, 1]", KeyExecFailureRate)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("%s must be positive", KeyReconnectInterval)
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("%s must be >= 0", KeyMaxReconnectAttempts)
	}
	if c.PollInterval < 100*time.Millisecond {
		return fmt.Errorf("%s must be at least 100ms", KeyPollInterval)
	}
	if c.ExecutionTimeout <= 0 {
		return fmt.Errorf("%s must be positive", KeyExecutionTimeout)
	}
	if c.TelemetryBufferSize <= 0 {
		return fmt.Errorf("%s must be positive", KeyTelemetryBufferSize)
	}
	if c.ActiveContact == "" {
		return fmt.Errorf("%s must not be empty", KeyActiveContact)
	}
	u, err := url.Parse(c.StreamEndpoint)
	if err != nil {
		return fmt.Errorf("%s parse error: %w", KeyStreamEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s must use ws or wss, got %q", KeyStreamEndpoint, u.Scheme)
	}
	return nil
}
