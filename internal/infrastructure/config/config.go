package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	sharedConfig "github.com/storesync/storesync/internal/shared/config"
)

type Config struct {
	Server         sharedConfig.ServerConfig         `mapstructure:"server"`
	Database       sharedConfig.DatabaseConfig       `mapstructure:"database"`
	Logger         sharedConfig.LoggerConfig         `mapstructure:"logger"`
	Redis          sharedConfig.RedisConfig          `mapstructure:"redis"`
	Auth           sharedConfig.AuthConfig           `mapstructure:"auth"`
	AppStore       sharedConfig.AppStoreConfig       `mapstructure:"appstore"`
	PlayStore      sharedConfig.PlayStoreConfig      `mapstructure:"playstore"`
	Catalog        sharedConfig.CatalogConfig        `mapstructure:"catalog"`
	Reconciliation sharedConfig.ReconciliationConfig `mapstructure:"reconciliation"`
	Scheduler      sharedConfig.SchedulerConfig      `mapstructure:"scheduler"`
	Alert          sharedConfig.AlertConfig          `mapstructure:"alert"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml, overlays STORESYNC_* environment variables
// and validates the result.
func Load(env string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../configs")
	v.AddConfigPath("../../configs")

	v.SetEnvPrefix("STORESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if mode := ginModeFor(env); mode != "" {
		v.Set("server.mode", mode)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &cfg
	appConfigMu.Unlock()

	return &cfg, nil
}

// Validate checks struct tags and cross-field requirements.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.AppStore.RootCertPaths) == 0 && cfg.AppStore.KeySetURL == "" {
		return fmt.Errorf("invalid config: appstore needs root_cert_paths or key_set_url")
	}
	if cfg.Alert.Enabled && len(cfg.Alert.Recipients) == 0 {
		return fmt.Errorf("invalid config: alert.recipients is empty")
	}
	return nil
}

// ginModeFor maps a deployment environment name onto a gin mode. Unknown
// names keep the configured mode.
func ginModeFor(env string) string {
	switch env {
	case "production", "prod", "release":
		return "release"
	case "test", "testing":
		return "test"
	case "development", "dev", "debug":
		return "debug"
	}
	return ""
}

// Get returns the loaded configuration, or nil before Load.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.receipt_rate_limit", 30)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.username", "root")
	v.SetDefault("database.database", "storesync")
	v.SetDefault("database.sqlite_path", "storesync.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("auth.jwt.issuer", "storesync")

	v.SetDefault("appstore.production_url", "https://api.storekit.itunes.apple.com")
	v.SetDefault("appstore.sandbox_url", "https://api.storekit-sandbox.itunes.apple.com")
	v.SetDefault("appstore.max_pages", 100)

	v.SetDefault("playstore.api_base_url", "https://androidpublisher.googleapis.com")
	v.SetDefault("playstore.accept_test_purchases", false)

	v.SetDefault("catalog.path", "configs/plans.yaml")

	v.SetDefault("reconciliation.external_timeout", 15*time.Second)
	v.SetDefault("reconciliation.max_save_retries", 3)
	v.SetDefault("reconciliation.delivery_ttl", 72*time.Hour)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.recovery_interval", time.Hour)
	v.SetDefault("scheduler.recovery_grace", 6*time.Hour)
	v.SetDefault("scheduler.batch_size", 100)

	v.SetDefault("alert.enabled", false)
	v.SetDefault("alert.smtp_port", 587)
	v.SetDefault("alert.cooldown", 30*time.Minute)
}
