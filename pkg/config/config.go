package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Record source kinds.
const (
	SourceHTTP = "http"
	SourceSQL  = "sql"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Source   SourceConfig
	Database DatabaseConfig
	Redis    RedisConfig
	CORS     CORSConfig
	Log      LogConfig
	Refresh  RefreshConfig
	Records  RecordsConfig
	Sessions SessionsConfig
	Slips    SlipsConfig
	Stream   StreamConfig
}

// SourceConfig selects where leave records are fetched from.
type SourceConfig struct {
	Kind        string
	BaseURL     string
	RecordsPath string
	Timeout     time.Duration
	GradeScope  string
}

type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RefreshConfig drives the polling loop that replaces the record store.
type RefreshConfig struct {
	Schedule string
	Timeout  time.Duration
}

// RecordsConfig tunes the filter engine defaults.
type RecordsConfig struct {
	PageSize int
	Timezone string
}

// SessionsConfig governs dashboard view sessions.
type SessionsConfig struct {
	CacheEnabled bool
	TTL          time.Duration
	SweepEvery   string
}

// SlipsConfig configures printable leave slip generation.
type SlipsConfig struct {
	Enabled         bool
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
	TokenSecret     string
	TokenTTL        time.Duration
	FontPath        string
	VerifyBaseURL   string
	CleanupSchedule string
	Workers         int
	Retries         int
}

// StreamConfig tunes the websocket refresh feed.
type StreamConfig struct {
	Enabled      bool
	PingInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Source = SourceConfig{
		Kind:        strings.ToLower(v.GetString("LEAVE_SOURCE")),
		BaseURL:     strings.TrimRight(v.GetString("UPSTREAM_BASE_URL"), "/"),
		RecordsPath: v.GetString("UPSTREAM_RECORDS_PATH"),
		Timeout:     parseDuration(v.GetString("UPSTREAM_TIMEOUT"), 10*time.Second),
		GradeScope:  v.GetString("SOURCE_GRADE_SCOPE"),
	}

	cfg.Database = DatabaseConfig{
		Driver:       v.GetString("DB_DRIVER"),
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Refresh = RefreshConfig{
		Schedule: v.GetString("REFRESH_SCHEDULE"),
		Timeout:  parseDuration(v.GetString("REFRESH_TIMEOUT"), 20*time.Second),
	}

	pageSize := v.GetInt("RECORDS_PAGE_SIZE")
	if pageSize <= 0 {
		pageSize = 10
	}
	cfg.Records = RecordsConfig{
		PageSize: pageSize,
		Timezone: v.GetString("RECORDS_TIMEZONE"),
	}

	cfg.Sessions = SessionsConfig{
		CacheEnabled: v.GetBool("ENABLE_SESSION_CACHE"),
		TTL:          parseDuration(v.GetString("SESSION_TTL"), 12*time.Hour),
		SweepEvery:   v.GetString("SESSION_SWEEP_SCHEDULE"),
	}

	workers := v.GetInt("SLIPS_WORKERS")
	if workers <= 0 {
		workers = 1
	}
	cfg.Slips = SlipsConfig{
		Enabled:         v.GetBool("ENABLE_SLIPS"),
		StorageDir:      v.GetString("SLIPS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("SLIPS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("SLIPS_SIGNED_URL_TTL"), 24*time.Hour),
		TokenSecret:     v.GetString("SLIPS_TOKEN_SECRET"),
		TokenTTL:        parseDuration(v.GetString("SLIPS_TOKEN_TTL"), 30*24*time.Hour),
		FontPath:        v.GetString("SLIPS_FONT_PATH"),
		VerifyBaseURL:   strings.TrimRight(v.GetString("SLIPS_VERIFY_BASE_URL"), "/"),
		CleanupSchedule: v.GetString("SLIPS_CLEANUP_SCHEDULE"),
		Workers:         workers,
		Retries:         v.GetInt("SLIPS_WORKER_RETRIES"),
	}

	cfg.Stream = StreamConfig{
		Enabled:      v.GetBool("ENABLE_STREAM"),
		PingInterval: parseDuration(v.GetString("STREAM_PING_INTERVAL"), 30*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("LEAVE_SOURCE", SourceHTTP)
	v.SetDefault("UPSTREAM_BASE_URL", "http://localhost:5000")
	v.SetDefault("UPSTREAM_RECORDS_PATH", "/api/counselor/leave_requests")
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("SOURCE_GRADE_SCOPE", "")

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus_leave")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("ENABLE_REDIS", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REFRESH_SCHEDULE", "@every 30s")
	v.SetDefault("REFRESH_TIMEOUT", "20s")

	v.SetDefault("RECORDS_PAGE_SIZE", 10)
	v.SetDefault("RECORDS_TIMEZONE", "Asia/Shanghai")

	v.SetDefault("ENABLE_SESSION_CACHE", false)
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("SESSION_SWEEP_SCHEDULE", "@every 10m")

	v.SetDefault("ENABLE_SLIPS", false)
	v.SetDefault("SLIPS_STORAGE_DIR", "./slips")
	v.SetDefault("SLIPS_SIGNED_URL_SECRET", "dev_slips_secret")
	v.SetDefault("SLIPS_SIGNED_URL_TTL", "24h")
	v.SetDefault("SLIPS_TOKEN_SECRET", "dev_slip_token_secret")
	v.SetDefault("SLIPS_TOKEN_TTL", "720h")
	v.SetDefault("SLIPS_FONT_PATH", "")
	v.SetDefault("SLIPS_VERIFY_BASE_URL", "http://localhost:8080")
	v.SetDefault("SLIPS_CLEANUP_SCHEDULE", "@every 1h")
	v.SetDefault("SLIPS_WORKERS", 1)
	v.SetDefault("SLIPS_WORKER_RETRIES", 3)

	v.SetDefault("ENABLE_STREAM", true)
	v.SetDefault("STREAM_PING_INTERVAL", "30s")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
