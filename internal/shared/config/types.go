package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	Mode            string        `mapstructure:"mode" validate:"oneof=debug release test"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// ReceiptRateLimit caps receipt validations per user per minute. Zero
	// disables the limit.
	ReceiptRateLimit int `mapstructure:"receipt_rate_limit" validate:"min=0"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"oneof=mysql sqlite"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SQLitePath      string `mapstructure:"sqlite_path"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// GetDSN returns the MySQL DSN. Instants are stored and read as UTC.
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=console json"`
	OutputPath string `mapstructure:"output_path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string `mapstructure:"secret" validate:"required,min=16"`
	Issuer string `mapstructure:"issuer"`
}

type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// AppStoreConfig configures App Store notification verification and the
// App Store Server API client.
type AppStoreConfig struct {
	BundleID       string   `mapstructure:"bundle_id" validate:"required"`
	RootCertPaths  []string `mapstructure:"root_cert_paths"`
	KeySetURL      string   `mapstructure:"key_set_url" validate:"omitempty,url"`
	IssuerID       string   `mapstructure:"issuer_id" validate:"required"`
	KeyID          string   `mapstructure:"key_id" validate:"required"`
	PrivateKeyPath string   `mapstructure:"private_key_path" validate:"required"`
	ProductionURL  string   `mapstructure:"production_url" validate:"required,url"`
	SandboxURL     string   `mapstructure:"sandbox_url" validate:"required,url"`
	MaxPages       int      `mapstructure:"max_pages" validate:"min=1"`
}

// PlayStoreConfig configures RTDN handling and the Play Developer API client.
type PlayStoreConfig struct {
	PackageName         string `mapstructure:"package_name" validate:"required"`
	PublicKey           string `mapstructure:"public_key"`
	ServiceAccountFile  string `mapstructure:"service_account_file" validate:"required"`
	APIBaseURL          string `mapstructure:"api_base_url" validate:"required,url"`
	AcceptTestPurchases bool   `mapstructure:"accept_test_purchases"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type ReconciliationConfig struct {
	ExternalTimeout time.Duration `mapstructure:"external_timeout"`
	MaxSaveRetries  int           `mapstructure:"max_save_retries" validate:"min=1"`
	DeliveryTTL     time.Duration `mapstructure:"delivery_ttl"`
}

type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	RecoveryInterval time.Duration `mapstructure:"recovery_interval"`
	RecoveryGrace    time.Duration `mapstructure:"recovery_grace"`
	BatchSize        int           `mapstructure:"batch_size"`
}

type AlertConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUser     string        `mapstructure:"smtp_user"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	FromAddress  string        `mapstructure:"from_address" validate:"omitempty,email"`
	Recipients   []string      `mapstructure:"recipients" validate:"dive,email"`
	Cooldown     time.Duration `mapstructure:"cooldown"`
}
