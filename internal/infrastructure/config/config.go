package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all engine configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	FileStore FileStoreConfig
	Currency  CurrencyConfig
	Ingest    IngestConfig
	Refresh   RefreshConfig
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name string
	Env  string
}

// DatabaseConfig holds database connection settings
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
}

// RedisConfig holds Redis connection settings for the distributed
// ingest scope lock. Leave Host empty to use the in-process lock.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// FileStoreConfig selects where raw export files are fetched from.
type FileStoreConfig struct {
	Backend   string // local or s3
	LocalRoot string
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// CurrencyConfig holds currency normalization settings
type CurrencyConfig struct {
	BaseCurrency string
	LookbackDays int
}

// IngestConfig holds ingestion pipeline settings
type IngestConfig struct {
	RowWorkers   int
	MaxRowErrors int
	LockTTL      time.Duration
	PollInterval time.Duration
	PollBatch    int
}

// RefreshConfig holds aggregate refresh settings
type RefreshConfig struct {
	ScheduleEnabled bool
	ScheduleHour    int
	ScheduleMinute  int
	ViewTimeout     time.Duration
}

// DSN returns the postgres connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// URL returns the postgres connection URL used by the migration runner
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password),
		c.Host, c.Port, c.DBName, c.SSLMode)
}

// Addr returns the redis address
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from environment variables (INGEST_ prefix)
// and an optional config file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "datahub-ingest")
	v.SetDefault("app.env", "development")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "datahub")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", 30)
	v.SetDefault("database.connmaxidletime", 10)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("filestore.backend", "local")
	v.SetDefault("filestore.localroot", "./data")
	v.SetDefault("filestore.usessl", false)

	v.SetDefault("currency.basecurrency", "CNY")
	v.SetDefault("currency.lookbackdays", 7)

	v.SetDefault("ingest.rowworkers", 4)
	v.SetDefault("ingest.maxrowerrors", 100)
	v.SetDefault("ingest.lockttl", 10*time.Minute)
	v.SetDefault("ingest.pollinterval", 30*time.Second)
	v.SetDefault("ingest.pollbatch", 50)

	v.SetDefault("refresh.scheduleenabled", true)
	v.SetDefault("refresh.schedulehour", 2)
	v.SetDefault("refresh.scheduleminute", 0)
	v.SetDefault("refresh.viewtimeout", 30*time.Minute)
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database port %d is out of range", c.Database.Port)
	}
	if len(c.Currency.BaseCurrency) != 3 {
		return fmt.Errorf("base currency %q is not a 3-letter code", c.Currency.BaseCurrency)
	}
	if c.Currency.LookbackDays < 0 {
		return fmt.Errorf("currency lookback days cannot be negative")
	}
	if c.Ingest.RowWorkers < 1 {
		return fmt.Errorf("ingest row workers must be at least 1")
	}
	switch c.FileStore.Backend {
	case "local":
		if c.FileStore.LocalRoot == "" {
			return fmt.Errorf("filestore local root is required for local backend")
		}
	case "s3":
		if c.FileStore.Bucket == "" {
			return fmt.Errorf("filestore bucket is required for s3 backend")
		}
	default:
		return fmt.Errorf("unknown filestore backend %q", c.FileStore.Backend)
	}
	if c.Refresh.ScheduleHour < 0 || c.Refresh.ScheduleHour > 23 {
		return fmt.Errorf("refresh schedule hour %d is out of range", c.Refresh.ScheduleHour)
	}
	if c.Refresh.ScheduleMinute < 0 || c.Refresh.ScheduleMinute > 59 {
		return fmt.Errorf("refresh schedule minute %d is out of range", c.Refresh.ScheduleMinute)
	}
	return nil
}

// IsProduction returns true when running in production
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
