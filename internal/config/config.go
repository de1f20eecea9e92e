package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Windows       WindowConfig        `mapstructure:"windows"`
	Alerting      AlertingConfig      `mapstructure:"alerting"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
	RulesFile     string              `mapstructure:"rules_file"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	Host           string   `mapstructure:"host"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StreamConfig controls the inbound event path.
type StreamConfig struct {
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	HighWaterMark  int           `mapstructure:"high_water_mark"`
	DequeueTimeout time.Duration `mapstructure:"dequeue_timeout"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	TickInterval   time.Duration `mapstructure:"tick_interval"`
}

// WindowConfig controls window lifecycle timing.
type WindowConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"`
	Retention   time.Duration `mapstructure:"retention"`
	MaxSamples  int           `mapstructure:"max_samples"`
}

// AlertingConfig controls suppression sweeps and delivery retries.
type AlertingConfig struct {
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	AutoResolveAfter time.Duration `mapstructure:"auto_resolve_after"`
	MaxDeliveryTries int           `mapstructure:"max_delivery_tries"`
	InitialBackoff   time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff       time.Duration `mapstructure:"max_backoff"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `mapstructure:"ping_interval"`
	PongTimeout  time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Prefix  string `mapstructure:"prefix"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from config.yaml plus environment overrides.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("rules_file", "RULES_FILE")

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Stream.Workers < 1 {
		return fmt.Errorf("stream.workers must be at least 1, got %d", c.Stream.Workers)
	}
	if c.Stream.QueueSize < 1 {
		return fmt.Errorf("stream.queue_size must be at least 1, got %d", c.Stream.QueueSize)
	}
	if c.Stream.HighWaterMark > c.Stream.QueueSize {
		return fmt.Errorf("stream.high_water_mark (%d) cannot exceed stream.queue_size (%d)",
			c.Stream.HighWaterMark, c.Stream.QueueSize)
	}
	if c.Windows.GracePeriod < 0 || c.Windows.Retention < 0 {
		return fmt.Errorf("window grace_period and retention must not be negative")
	}
	if c.Alerting.MaxDeliveryTries < 1 {
		return fmt.Errorf("alerting.max_delivery_tries must be at least 1, got %d", c.Alerting.MaxDeliveryTries)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.allowed_origins", []string{"*"})

	viper.SetDefault("database.path", "./data/streamflow.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 10)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("stream.workers", 4)
	viper.SetDefault("stream.queue_size", 4096)
	viper.SetDefault("stream.high_water_mark", 3072)
	viper.SetDefault("stream.dequeue_timeout", "250ms")
	viper.SetDefault("stream.sweep_interval", "1s")
	viper.SetDefault("stream.tick_interval", "10s")

	viper.SetDefault("windows.grace_period", "5s")
	viper.SetDefault("windows.retention", "60s")
	viper.SetDefault("windows.max_samples", 10000)

	viper.SetDefault("alerting.sweep_interval", "30s")
	viper.SetDefault("alerting.auto_resolve_after", "15m")
	viper.SetDefault("alerting.max_delivery_tries", 5)
	viper.SetDefault("alerting.initial_backoff", "500ms")
	viper.SetDefault("alerting.max_backoff", "30s")

	viper.SetDefault("websocket.ping_interval", "30s")
	viper.SetDefault("websocket.pong_timeout", "60s")
	viper.SetDefault("websocket.write_timeout", "10s")

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.prefix", "streamflow")
	viper.SetDefault("metrics.path", "/metrics")
}
