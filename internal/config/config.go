// Package config loads and validates the portal configuration using Viper.
//
// Configuration is layered: built-in defaults < YAML config file < environment
// variables. Environment variables use the PORTAL_ prefix (e.g., PORTAL_DATABASE_HOST
// overrides database.host in the YAML). The JWT signing secret is never read from
// the file; it comes from PORTAL_JWT_SECRET only (see internal/auth).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultAdminEmail is the fallback super-admin address used when no allow-list is configured.
const DefaultAdminEmail = "rowboxsiw@gmail.com"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Registration  RegistrationConfig  `mapstructure:"registration"`
	APIKeys       APIKeysConfig       `mapstructure:"api_keys"`
	Gateway       GatewayConfig       `mapstructure:"gateway"`
	Export        ExportConfig        `mapstructure:"export"`
	Security      SecurityConfig      `mapstructure:"security"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Notifications NotificationsConfig `mapstructure:"notifications"`

	// v is the viper instance the config was loaded from; used by WatchAdminEmails.
	v *viper.Viper
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BaseURL      string        `mapstructure:"base_url"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Name               string `mapstructure:"name"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	SSLMode            string `mapstructure:"ssl_mode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MinIdleConnections int    `mapstructure:"min_idle_connections"`
}

// RedisConfig holds the connection settings for the shared counter and gateway rate limits.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// CounterKey holds the registration count; the same name is used as the pub/sub channel.
	CounterKey string `mapstructure:"counter_key"`
}

// StorageConfig holds avatar storage backend configuration
type StorageConfig struct {
	DefaultBackend string             `mapstructure:"default_backend"`
	Azure          AzureStorageConfig `mapstructure:"azure"`
	S3             S3StorageConfig    `mapstructure:"s3"`
	GCS            GCSStorageConfig   `mapstructure:"gcs"`
	Local          LocalStorageConfig `mapstructure:"local"`
}

// AzureStorageConfig holds Azure Blob Storage configuration
type AzureStorageConfig struct {
	AccountName   string `mapstructure:"account_name"`
	AccountKey    string `mapstructure:"account_key"`
	ContainerName string `mapstructure:"container_name"`
	CDNURL        string `mapstructure:"cdn_url"`
}

// S3StorageConfig holds S3-compatible storage configuration
type S3StorageConfig struct {
	// Endpoint is the S3-compatible endpoint URL (optional, for MinIO etc.)
	Endpoint string `mapstructure:"endpoint"`
	Region   string `mapstructure:"region"`
	Bucket   string `mapstructure:"bucket"`

	// AuthMethod is one of "default", "static", "oidc", "assume_role".
	AuthMethod string `mapstructure:"auth_method"`

	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`

	RoleARN              string `mapstructure:"role_arn"`
	RoleSessionName      string `mapstructure:"role_session_name"`
	ExternalID           string `mapstructure:"external_id"`
	WebIdentityTokenFile string `mapstructure:"web_identity_token_file"`
}

// GCSStorageConfig holds Google Cloud Storage configuration
type GCSStorageConfig struct {
	Bucket    string `mapstructure:"bucket"`
	ProjectID string `mapstructure:"project_id"`
	// AuthMethod is one of "default", "service_account", "workload_identity".
	AuthMethod      string `mapstructure:"auth_method"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
	Endpoint        string `mapstructure:"endpoint"`
}

// LocalStorageConfig holds local filesystem storage configuration
type LocalStorageConfig struct {
	BasePath      string `mapstructure:"base_path"`
	ServeDirectly bool   `mapstructure:"serve_directly"`
}

// AuthConfig holds session and admin resolution settings
type AuthConfig struct {
	// SessionTTL is the lifetime of issued session tokens.
	SessionTTL time.Duration `mapstructure:"session_ttl"`
	// AdminEmails grants admin to these addresses even without a profile record.
	AdminEmails []string `mapstructure:"admin_emails"`
	// APIKeyPrefix is prepended to issued gateway keys ("sk" -> "sk_...").
	APIKeyPrefix string `mapstructure:"api_key_prefix"`
	// ProfileCacheSize and ProfileCacheTTL bound the auth gate's profile cache.
	ProfileCacheSize int           `mapstructure:"profile_cache_size"`
	ProfileCacheTTL  time.Duration `mapstructure:"profile_cache_ttl"`
}

// RegistrationConfig holds the sign-up rules
type RegistrationConfig struct {
	MaxAvatarBytes      int64    `mapstructure:"max_avatar_bytes"`
	AllowedContentTypes []string `mapstructure:"allowed_content_types"`
	// Compensate undoes completed steps when a later registration step fails.
	Compensate bool `mapstructure:"compensate"`
}

// APIKeysConfig holds issuance defaults for gateway keys
type APIKeysConfig struct {
	UsageLimit int           `mapstructure:"usage_limit"`
	TTL        time.Duration `mapstructure:"ttl"`
}

// GatewayConfig holds per-route limits for the key-gated endpoints
type GatewayConfig struct {
	CountPerMinute  int `mapstructure:"count_per_minute"`
	ListPerMinute   int `mapstructure:"list_per_minute"`
	DefaultPageSize int `mapstructure:"default_page_size"`
	MaxPageSize     int `mapstructure:"max_page_size"`
}

// ExportConfig controls the user CSV export
type ExportConfig struct {
	// CSVMode is "legacy" (comma join, no escaping) or "rfc4180".
	CSVMode string `mapstructure:"csv_mode"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
	TLS          TLSConfig          `mapstructure:"tls"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
}

// RateLimitingConfig holds the in-process limiter applied to login and registration
type RateLimitingConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

// TLSConfig holds TLS/HTTPS configuration
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	ServiceName string          `mapstructure:"service_name"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Tracing     TracingConfig   `mapstructure:"tracing"`
	Profiling   ProfilingConfig `mapstructure:"profiling"`
}

// MetricsConfig holds Prometheus metrics configuration
type MetricsConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	PrometheusPort int  `mapstructure:"prometheus_port"`
}

// TracingConfig holds OTLP tracing configuration
type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Insecure     bool    `mapstructure:"insecure"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

// ProfilingConfig holds profiling configuration
type ProfilingConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// AuditConfig holds audit logging configuration
type AuditConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// LogFailedRequests also records admin writes that ended in 4xx/5xx.
	LogFailedRequests bool `mapstructure:"log_failed_requests"`
	// FilePath, when set, appends every entry as a JSON line.
	FilePath string `mapstructure:"file_path"`
	// WebhookURL, when set, POSTs every entry as JSON.
	WebhookURL     string        `mapstructure:"webhook_url"`
	WebhookTimeout time.Duration `mapstructure:"webhook_timeout"`
}

// NotificationsConfig holds settings for outbound notification emails
type NotificationsConfig struct {
	// Enabled globally toggles all outbound notification emails. Requires SMTP to be configured.
	Enabled bool       `mapstructure:"enabled"`
	SMTP    SMTPConfig `mapstructure:"smtp"`
	// APIKeyExpiryWarningDays is how many days before expiry to warn the key's creator.
	APIKeyExpiryWarningDays int `mapstructure:"api_key_expiry_warning_days"`
	// APIKeyExpirySchedule is a cron expression for the expiry check job.
	APIKeyExpirySchedule string `mapstructure:"api_key_expiry_schedule"`
}

// SMTPConfig holds outbound mail server configuration for notification emails
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	UseTLS   bool   `mapstructure:"use_tls"`
}

// bindEnvVars explicitly binds environment variables to config keys.
// This is necessary because AutomaticEnv() doesn't work well with nested structs during Unmarshal.
func bindEnvVars(v *viper.Viper) error {
	keys := []string{
		// Database
		"database.host",
		"database.port",
		"database.name",
		"database.user",
		"database.password",
		"database.ssl_mode",
		"database.max_connections",
		"database.min_idle_connections",

		// Server
		"server.host",
		"server.port",
		"server.base_url",
		"server.read_timeout",
		"server.write_timeout",

		// Redis
		"redis.addr",
		"redis.password",
		"redis.db",
		"redis.counter_key",

		// Storage
		"storage.default_backend",
		"storage.azure.account_name",
		"storage.azure.account_key",
		"storage.azure.container_name",
		"storage.azure.cdn_url",
		"storage.s3.endpoint",
		"storage.s3.region",
		"storage.s3.bucket",
		"storage.s3.auth_method",
		"storage.s3.access_key_id",
		"storage.s3.secret_access_key",
		"storage.s3.role_arn",
		"storage.s3.role_session_name",
		"storage.s3.external_id",
		"storage.s3.web_identity_token_file",
		"storage.gcs.bucket",
		"storage.gcs.project_id",
		"storage.gcs.auth_method",
		"storage.gcs.credentials_file",
		"storage.gcs.credentials_json",
		"storage.gcs.endpoint",
		"storage.local.base_path",
		"storage.local.serve_directly",

		// Auth
		"auth.session_ttl",
		"auth.admin_emails",
		"auth.api_key_prefix",
		"auth.profile_cache_size",
		"auth.profile_cache_ttl",

		// Registration
		"registration.max_avatar_bytes",
		"registration.allowed_content_types",
		"registration.compensate",

		// API keys / gateway
		"api_keys.usage_limit",
		"api_keys.ttl",
		"gateway.count_per_minute",
		"gateway.list_per_minute",
		"gateway.default_page_size",
		"gateway.max_page_size",

		// Export
		"export.csv_mode",

		// Security
		"security.cors.allowed_origins",
		"security.cors.allowed_methods",
		"security.rate_limiting.enabled",
		"security.rate_limiting.requests_per_minute",
		"security.rate_limiting.burst",
		"security.tls.enabled",
		"security.tls.cert_file",
		"security.tls.key_file",

		// Logging
		"logging.level",
		"logging.format",
		"logging.output",

		// Telemetry
		"telemetry.enabled",
		"telemetry.service_name",
		"telemetry.metrics.enabled",
		"telemetry.metrics.prometheus_port",
		"telemetry.tracing.enabled",
		"telemetry.tracing.otlp_endpoint",
		"telemetry.tracing.insecure",
		"telemetry.tracing.sample_ratio",
		"telemetry.profiling.enabled",
		"telemetry.profiling.port",

		// Audit
		"audit.enabled",
		"audit.log_failed_requests",
		"audit.file_path",
		"audit.webhook_url",
		"audit.webhook_timeout",

		// Notifications / SMTP
		"notifications.enabled",
		"notifications.smtp.host",
		"notifications.smtp.port",
		"notifications.smtp.username",
		"notifications.smtp.password",
		"notifications.smtp.from",
		"notifications.smtp.use_tls",
		"notifications.api_key_expiry_warning_days",
		"notifications.api_key_expiry_schedule",
	}
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind env var %q: %w", key, err)
		}
	}
	return nil
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/portal")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment variables
	}

	v.SetEnvPrefix("PORTAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.v = v

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Expand environment variables in sensitive fields
	cfg.Database.Password = expandEnv(cfg.Database.Password)
	cfg.Redis.Password = expandEnv(cfg.Redis.Password)
	cfg.Storage.Azure.AccountKey = expandEnv(cfg.Storage.Azure.AccountKey)
	cfg.Storage.S3.AccessKeyID = expandEnv(cfg.Storage.S3.AccessKeyID)
	cfg.Storage.S3.SecretAccessKey = expandEnv(cfg.Storage.S3.SecretAccessKey)
	cfg.Notifications.SMTP.Password = expandEnv(cfg.Notifications.SMTP.Password)

	// telemetry.enabled=false switches every exporter off at once.
	if !cfg.Telemetry.Enabled {
		cfg.Telemetry.Metrics.Enabled = false
		cfg.Telemetry.Tracing.Enabled = false
		cfg.Telemetry.Profiling.Enabled = false
	}

	// PORTAL_AUTH_ADMIN_EMAILS arrives as one comma separated string.
	cfg.Auth.AdminEmails = splitList(cfg.Auth.AdminEmails)
	cfg.Registration.AllowedContentTypes = splitList(cfg.Registration.AllowedContentTypes)
	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "portal")
	v.SetDefault("database.user", "portal")
	v.SetDefault("database.ssl_mode", "require")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_idle_connections", 5)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.counter_key", "stats:userCount")

	// Storage defaults
	v.SetDefault("storage.default_backend", "local")
	v.SetDefault("storage.local.base_path", "./storage")
	v.SetDefault("storage.local.serve_directly", true)

	// Auth defaults
	v.SetDefault("auth.session_ttl", "24h")
	v.SetDefault("auth.admin_emails", []string{DefaultAdminEmail})
	v.SetDefault("auth.api_key_prefix", "sk")
	v.SetDefault("auth.profile_cache_size", 1024)
	v.SetDefault("auth.profile_cache_ttl", "30s")

	// Registration defaults
	v.SetDefault("registration.max_avatar_bytes", 5000000)
	v.SetDefault("registration.allowed_content_types", []string{"image/jpeg", "image/jpg", "image/png", "image/webp"})
	v.SetDefault("registration.compensate", false)

	// API key / gateway defaults
	v.SetDefault("api_keys.usage_limit", 10000)
	v.SetDefault("api_keys.ttl", "720h")
	v.SetDefault("gateway.count_per_minute", 100)
	v.SetDefault("gateway.list_per_minute", 50)
	v.SetDefault("gateway.default_page_size", 10)
	v.SetDefault("gateway.max_page_size", 100)

	v.SetDefault("export.csv_mode", "legacy")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.requests_per_minute", 30)
	v.SetDefault("security.rate_limiting.burst", 10)
	v.SetDefault("security.tls.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.service_name", "portal")
	v.SetDefault("telemetry.metrics.enabled", true)
	v.SetDefault("telemetry.metrics.prometheus_port", 9090)
	v.SetDefault("telemetry.tracing.enabled", false)
	v.SetDefault("telemetry.tracing.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.tracing.insecure", true)
	v.SetDefault("telemetry.tracing.sample_ratio", 1.0)
	v.SetDefault("telemetry.profiling.enabled", false)
	v.SetDefault("telemetry.profiling.port", 6060)

	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.log_failed_requests", false)
	v.SetDefault("audit.webhook_timeout", 5*time.Second)

	// Notifications defaults
	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.smtp.port", 587)
	v.SetDefault("notifications.smtp.use_tls", true)
	v.SetDefault("notifications.api_key_expiry_warning_days", 7)
	v.SetDefault("notifications.api_key_expiry_schedule", "@every 24h")
}

// expandEnv expands environment variables in the format ${VAR_NAME}
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// splitList flattens comma separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required")
	}
	if c.Redis.CounterKey == "" {
		return fmt.Errorf("redis.counter_key is required")
	}

	validBackends := map[string]bool{"azure": true, "s3": true, "gcs": true, "local": true}
	if !validBackends[c.Storage.DefaultBackend] {
		return fmt.Errorf("invalid storage backend: %s (must be azure, s3, gcs, or local)", c.Storage.DefaultBackend)
	}

	if c.Storage.DefaultBackend == "azure" {
		if c.Storage.Azure.AccountName == "" {
			return fmt.Errorf("storage.azure.account_name is required when using Azure backend")
		}
		if c.Storage.Azure.AccountKey == "" {
			return fmt.Errorf("storage.azure.account_key is required when using Azure backend")
		}
		if c.Storage.Azure.ContainerName == "" {
			return fmt.Errorf("storage.azure.container_name is required when using Azure backend")
		}
	}

	if c.Storage.DefaultBackend == "s3" {
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when using S3 backend")
		}
		if c.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when using S3 backend")
		}
	}

	if c.Storage.DefaultBackend == "gcs" && c.Storage.GCS.Bucket == "" {
		return fmt.Errorf("storage.gcs.bucket is required when using GCS backend")
	}

	if c.Storage.DefaultBackend == "local" && c.Storage.Local.BasePath == "" {
		return fmt.Errorf("storage.local.base_path is required when using local backend")
	}

	if c.Auth.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl must be positive")
	}
	if c.Auth.APIKeyPrefix == "" {
		return fmt.Errorf("auth.api_key_prefix is required")
	}

	if c.Registration.MaxAvatarBytes <= 0 {
		return fmt.Errorf("registration.max_avatar_bytes must be positive")
	}
	if len(c.Registration.AllowedContentTypes) == 0 {
		return fmt.Errorf("registration.allowed_content_types must not be empty")
	}

	if c.APIKeys.UsageLimit <= 0 {
		return fmt.Errorf("api_keys.usage_limit must be positive")
	}
	if c.APIKeys.TTL <= 0 {
		return fmt.Errorf("api_keys.ttl must be positive")
	}

	if c.Gateway.CountPerMinute <= 0 || c.Gateway.ListPerMinute <= 0 {
		return fmt.Errorf("gateway rate limits must be positive")
	}
	if c.Gateway.DefaultPageSize <= 0 || c.Gateway.MaxPageSize < c.Gateway.DefaultPageSize {
		return fmt.Errorf("invalid gateway page sizes: default %d, max %d", c.Gateway.DefaultPageSize, c.Gateway.MaxPageSize)
	}

	if c.Export.CSVMode != "legacy" && c.Export.CSVMode != "rfc4180" {
		return fmt.Errorf("invalid export.csv_mode: %s (must be legacy or rfc4180)", c.Export.CSVMode)
	}

	if c.Security.TLS.Enabled {
		if c.Security.TLS.CertFile == "" {
			return fmt.Errorf("security.tls.cert_file is required when TLS is enabled")
		}
		if c.Security.TLS.KeyFile == "" {
			return fmt.Errorf("security.tls.key_file is required when TLS is enabled")
		}
	}

	if c.Telemetry.Tracing.Enabled && c.Telemetry.Tracing.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry.tracing.otlp_endpoint is required when tracing is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// GetAddress returns the server address in host:port format
func (c *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
