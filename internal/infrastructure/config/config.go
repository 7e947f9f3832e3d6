package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig
	Log        LogConfig
	HTTP       HTTPConfig
	Store      StoreConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Badger     BadgerConfig
	Platform   PlatformConfig
	Automation AutomationConfig
	Archive    ArchiveConfig
	Telemetry  TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration // 0 keeps the event stream open
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AuthEnabled       bool
	AuthSecret        string
	AuthIssuer        string
	TokenTTL          time.Duration
	TrustedProxies    []string
	CORSOrigins       []string
	MaxBodyBytes      int64
}

// Store drivers
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreBadger   = "badger"
)

// StoreConfig selects where the run state is persisted
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// DatabaseConfig holds postgres connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
	LogLevel        string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
}

// BadgerConfig holds the embedded badger store settings
type BadgerConfig struct {
	Path     string
	InMemory bool
}

// Platform modes
const (
	PlatformOfficial  = "official"
	PlatformWeb       = "web"
	PlatformSimulated = "simulated"
)

// PlatformConfig describes the storefront backend
type PlatformConfig struct {
	Mode     string
	Endpoint string
	Token    string
	ShopID   string
	Sandbox  bool
	Timeout  time.Duration
	PageSize int
	// Simulated mode only
	SimulatedProducts int
}

// AutomationConfig holds run defaults and pacing knobs
type AutomationConfig struct {
	DefaultDiscount       int64
	DefaultRestoreDelay   time.Duration
	DefaultOrderThreshold int
	MonitoringInterval    time.Duration
	BatchChunkSize        int
	BatchChunkGap         time.Duration
	SequentialChunkGap    time.Duration
	RestoreChunkSize      int
	RestoreChunkGap       time.Duration
	EmulatedBatchGap      time.Duration
	StopWaitTimeout       time.Duration
	ResumeOnBoot          bool
}

// ArchiveConfig holds the completed-run report archive settings
type ArchiveConfig struct {
	Driver         string // none, local, s3
	LocalPath      string
	Bucket         string
	Region         string
	Endpoint       string
	AccessKeyID    string
	SecretKey      string
	Prefix         string
	ForcePathStyle bool
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
}

// Load reads config.toml from the default search paths.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads configuration from path, or from the default search paths
// when path is empty. Priority (highest to lowest):
// 1. Environment variables with PRICECYCLE_ prefix (e.g., PRICECYCLE_PLATFORM_TOKEN)
// 2. config.toml
// 3. Built-in defaults
func LoadFrom(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/app")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("PRICECYCLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			ShutdownTimeout:   v.GetDuration("http.shutdown_timeout"),
			MaxHeaderBytes:    v.GetInt("http.max_header_bytes"),
			RateLimitEnabled:  v.GetBool("http.rate_limit_enabled"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
			AuthEnabled:       v.GetBool("http.auth_enabled"),
			AuthSecret:        v.GetString("http.auth_secret"),
			AuthIssuer:        v.GetString("http.auth_issuer"),
			TokenTTL:          v.GetDuration("http.token_ttl"),
			TrustedProxies:    v.GetStringSlice("http.trusted_proxies"),
			CORSOrigins:       v.GetStringSlice("http.cors_origins"),
			MaxBodyBytes:      v.GetInt64("http.max_body_bytes"),
		},
		Store: StoreConfig{
			Driver:     v.GetString("store.driver"),
			SQLitePath: v.GetString("store.sqlite_path"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
			LogLevel:        v.GetString("database.log_level"),
		},
		Redis: RedisConfig{
			Host:      v.GetString("redis.host"),
			Port:      v.GetInt("redis.port"),
			Password:  v.GetString("redis.password"),
			DB:        v.GetInt("redis.db"),
			KeyPrefix: v.GetString("redis.key_prefix"),
		},
		Badger: BadgerConfig{
			Path:     v.GetString("badger.path"),
			InMemory: v.GetBool("badger.in_memory"),
		},
		Platform: PlatformConfig{
			Mode:              v.GetString("platform.mode"),
			Endpoint:          v.GetString("platform.endpoint"),
			Token:             v.GetString("platform.token"),
			ShopID:            v.GetString("platform.shop_id"),
			Sandbox:           v.GetBool("platform.sandbox"),
			Timeout:           v.GetDuration("platform.timeout"),
			PageSize:          v.GetInt("platform.page_size"),
			SimulatedProducts: v.GetInt("platform.simulated_products"),
		},
		Automation: AutomationConfig{
			DefaultDiscount:       v.GetInt64("automation.default_discount"),
			DefaultRestoreDelay:   v.GetDuration("automation.default_restore_delay"),
			DefaultOrderThreshold: v.GetInt("automation.default_order_threshold"),
			MonitoringInterval:    v.GetDuration("automation.monitoring_interval"),
			BatchChunkSize:        v.GetInt("automation.batch_chunk_size"),
			BatchChunkGap:         v.GetDuration("automation.batch_chunk_gap"),
			SequentialChunkGap:    v.GetDuration("automation.sequential_chunk_gap"),
			RestoreChunkSize:      v.GetInt("automation.restore_chunk_size"),
			RestoreChunkGap:       v.GetDuration("automation.restore_chunk_gap"),
			EmulatedBatchGap:      v.GetDuration("automation.emulated_batch_gap"),
			StopWaitTimeout:       v.GetDuration("automation.stop_wait_timeout"),
			ResumeOnBoot:          v.GetBool("automation.resume_on_boot"),
		},
		Archive: ArchiveConfig{
			Driver:         v.GetString("archive.driver"),
			LocalPath:      v.GetString("archive.local_path"),
			Bucket:         v.GetString("archive.bucket"),
			Region:         v.GetString("archive.region"),
			Endpoint:       v.GetString("archive.endpoint"),
			AccessKeyID:    v.GetString("archive.access_key_id"),
			SecretKey:      v.GetString("archive.secret_key"),
			Prefix:         v.GetString("archive.prefix"),
			ForcePathStyle: v.GetBool("archive.force_path_style"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
		},
	}

	// resume defaults to on; viper cannot tell an unset bool from false
	if !v.IsSet("automation.resume_on_boot") {
		cfg.Automation.ResumeOnBoot = true
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "pricecycle"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodyBytes == 0 {
		cfg.HTTP.MaxBodyBytes = 1 << 20
	}
	if cfg.HTTP.RateLimitRequests == 0 {
		cfg.HTTP.RateLimitRequests = 60
	}
	if cfg.HTTP.RateLimitWindow == 0 {
		cfg.HTTP.RateLimitWindow = time.Minute
	}
	if cfg.HTTP.AuthIssuer == "" {
		cfg.HTTP.AuthIssuer = "pricecycle"
	}
	if cfg.HTTP.TokenTTL == 0 {
		cfg.HTTP.TokenTTL = 24 * time.Hour
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreSQLite
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "pricecycle.db"
	}

	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "pricecycle"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 5
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 2
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "pricecycle:state:"
	}
	if cfg.Badger.Path == "" {
		cfg.Badger.Path = "data/badger"
	}

	if cfg.Platform.Mode == "" {
		cfg.Platform.Mode = PlatformSimulated
	}
	if cfg.Platform.Timeout == 0 {
		cfg.Platform.Timeout = 30 * time.Second
	}
	if cfg.Platform.PageSize == 0 {
		cfg.Platform.PageSize = 50
	}
	if cfg.Platform.SimulatedProducts == 0 {
		cfg.Platform.SimulatedProducts = 25
	}

	if cfg.Automation.DefaultDiscount == 0 {
		cfg.Automation.DefaultDiscount = 100
	}
	if cfg.Automation.DefaultRestoreDelay == 0 {
		cfg.Automation.DefaultRestoreDelay = 2 * time.Hour
	}
	if cfg.Automation.DefaultOrderThreshold == 0 {
		cfg.Automation.DefaultOrderThreshold = 1
	}
	if cfg.Automation.MonitoringInterval == 0 {
		cfg.Automation.MonitoringInterval = 30 * time.Second
	}
	if cfg.Automation.BatchChunkSize == 0 {
		cfg.Automation.BatchChunkSize = 10
	}
	if cfg.Automation.BatchChunkGap == 0 {
		cfg.Automation.BatchChunkGap = time.Second
	}
	if cfg.Automation.SequentialChunkGap == 0 {
		cfg.Automation.SequentialChunkGap = 200 * time.Millisecond
	}
	if cfg.Automation.RestoreChunkSize == 0 {
		cfg.Automation.RestoreChunkSize = 10
	}
	if cfg.Automation.RestoreChunkGap == 0 {
		cfg.Automation.RestoreChunkGap = time.Second
	}
	if cfg.Automation.EmulatedBatchGap == 0 {
		cfg.Automation.EmulatedBatchGap = 100 * time.Millisecond
	}
	if cfg.Automation.StopWaitTimeout == 0 {
		cfg.Automation.StopWaitTimeout = 30 * time.Second
	}

	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = "none"
	}
	if cfg.Archive.LocalPath == "" {
		cfg.Archive.LocalPath = "data/runs"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "runs/"
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "pricecycle"
	}
	if cfg.Telemetry.MetricsInterval == 0 {
		cfg.Telemetry.MetricsInterval = 15 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreMemory, StoreSQLite, StorePostgres, StoreRedis, StoreBadger:
	default:
		return fmt.Errorf("store.driver must be one of memory, sqlite, postgres, redis, badger; got %q", c.Store.Driver)
	}

	switch c.Platform.Mode {
	case PlatformSimulated:
	case PlatformOfficial, PlatformWeb:
		if c.Platform.Endpoint == "" {
			return fmt.Errorf("platform.endpoint is required in %s mode", c.Platform.Mode)
		}
		if c.Platform.Token == "" {
			return fmt.Errorf("platform.token is required in %s mode", c.Platform.Mode)
		}
	default:
		return fmt.Errorf("platform.mode must be official, web or simulated; got %q", c.Platform.Mode)
	}
	if c.Platform.PageSize < 1 || c.Platform.PageSize > 100 {
		return fmt.Errorf("platform.page_size must be between 1 and 100, got %d", c.Platform.PageSize)
	}

	if c.Automation.DefaultDiscount <= 0 {
		return fmt.Errorf("automation.default_discount must be positive")
	}
	if c.Automation.BatchChunkSize <= 0 || c.Automation.RestoreChunkSize <= 0 {
		return fmt.Errorf("automation chunk sizes must be positive")
	}

	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Archive.Driver {
	case "none", "local":
	case "s3":
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the s3 archive")
		}
	default:
		return fmt.Errorf("archive.driver must be none, local or s3; got %q", c.Archive.Driver)
	}

	if c.HTTP.AuthEnabled && len(c.HTTP.AuthSecret) < 32 {
		return fmt.Errorf("http.auth_secret must be at least 32 characters when auth is enabled")
	}
	if c.App.Env == "production" {
		if !c.HTTP.AuthEnabled {
			return fmt.Errorf("http.auth_enabled must be true in production")
		}
		if c.Store.Driver == StoreMemory {
			return fmt.Errorf("store.driver=memory loses the run state on restart and is not allowed in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns host:port for the redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
