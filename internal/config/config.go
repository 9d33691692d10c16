// Package config loads registry settings from flags, environment variables
// prefixed REGISTRY_ and an optional config file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/icewiki/nomulus/internal/store"
)

// Config holds runtime settings.
type Config struct {
	DBDriver              string        `mapstructure:"db_driver"`
	DBDSN                 string        `mapstructure:"db_dsn"`
	TLDDir                string        `mapstructure:"tld_dir"`
	KafkaBrokers          []string      `mapstructure:"kafka_brokers"`
	PollTopic             string        `mapstructure:"poll_topic"`
	ContactTransferPeriod time.Duration `mapstructure:"contact_transfer_period"`
	MetricsAddr           string        `mapstructure:"metrics_addr"`
	LogLevel              string        `mapstructure:"log_level"`
}

// New returns a viper instance with defaults and environment binding set.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("db_driver", store.DriverSQLite)
	v.SetDefault("db_dsn", "registry.db")
	v.SetDefault("tld_dir", "tlds")
	v.SetDefault("kafka_brokers", []string{})
	v.SetDefault("poll_topic", "registry.poll")
	v.SetDefault("contact_transfer_period", "120h")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file set on v and decodes the settings.
func Load(v *viper.Viper) (Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	// Comma-separated lists arrive from the environment as one string.
	if len(cfg.KafkaBrokers) == 1 && strings.Contains(cfg.KafkaBrokers[0], ",") {
		cfg.KafkaBrokers = strings.Split(cfg.KafkaBrokers[0], ",")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail late.
func (c Config) Validate() error {
	switch c.DBDriver {
	case store.DriverSQLite, store.DriverPostgres, "postgres":
	default:
		return fmt.Errorf("unsupported db_driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("db_dsn is required")
	}
	if c.ContactTransferPeriod <= 0 {
		return fmt.Errorf("contact_transfer_period must be positive, got %s", c.ContactTransferPeriod)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Logger returns a JSON logrus logger at the configured level.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	return log
}
