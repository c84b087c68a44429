package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/spec-kit/issue-tracker/pkg/util"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Mailbox    MailboxConfig
	SMTP       SMTPConfig
	GitScrum   GitScrumConfig
	Classifier ClassifierConfig
	Tracker    TrackerConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// MailboxConfig holds IMAP settings for the support inbox.
type MailboxConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// GitScrumConfig holds credentials for the external task tracker.
type GitScrumConfig struct {
	BaseURL        string
	APIKey         string
	ProjectID      string
	TimeoutSeconds int
}

// ClassifierConfig holds settings for the LLM issue classifier.
type ClassifierConfig struct {
	APIKey string
	Model  string
}

// TrackerConfig drives the two sweep schedules and escalation routing.
type TrackerConfig struct {
	EmployeeEmail       string
	IntakeSweepMinutes  int
	ReconcileSweepHours int
	SweepParallelism    int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "email-issue-tracker"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Mailbox: MailboxConfig{
			Host:     os.Getenv("EMAIL_HOST"),
			Port:     getEnvAsInt("EMAIL_PORT", 993),
			Username: os.Getenv("EMAIL_USER"),
			Password: os.Getenv("EMAIL_PASS"),
			Folder:   getEnv("EMAIL_FOLDER", "INBOX"),
		},
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     getEnv("SMTP_FROM", os.Getenv("SMTP_USER")),
		},
		GitScrum: GitScrumConfig{
			BaseURL:        getEnv("GITSCRUM_BASE_URL", "https://api.gitscrum.com"),
			APIKey:         os.Getenv("GITSCRUM_API_KEY"),
			ProjectID:      os.Getenv("GITSCRUM_PROJECT_ID"),
			TimeoutSeconds: getEnvAsInt("GITSCRUM_TIMEOUT_SECONDS", 15),
		},
		Classifier: ClassifierConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		},
		Tracker: TrackerConfig{
			EmployeeEmail:       os.Getenv("EMPLOYEE_EMAIL"),
			IntakeSweepMinutes:  getEnvAsInt("INTAKE_SWEEP_MINUTES", 1),
			ReconcileSweepHours: getEnvAsInt("CHECK_DURATION_HOURS", 4),
			SweepParallelism:    getEnvAsInt("SWEEP_PARALLELISM", 4),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configuration the scheduler cannot start with.
func (c *Config) Validate() error {
	if c.Tracker.IntakeSweepMinutes <= 0 {
		return util.NewConfigError("INTAKE_SWEEP_MINUTES must be positive",
			map[string]any{"value": c.Tracker.IntakeSweepMinutes})
	}
	if c.Tracker.ReconcileSweepHours <= 0 {
		return util.NewConfigError("CHECK_DURATION_HOURS must be positive",
			map[string]any{"value": c.Tracker.ReconcileSweepHours})
	}
	if c.Tracker.SweepParallelism <= 0 {
		return util.NewConfigError("SWEEP_PARALLELISM must be positive",
			map[string]any{"value": c.Tracker.SweepParallelism})
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Addr returns the IMAP dial address.
func (m MailboxConfig) Addr() string {
	return fmt.Sprintf("%s:%d", m.Host, m.Port)
}

// Timeout returns the gateway request timeout.
func (g GitScrumConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutSeconds) * time.Second
}

// IntakePeriod returns the interval between intake sweeps.
func (t TrackerConfig) IntakePeriod() time.Duration {
	return time.Duration(t.IntakeSweepMinutes) * time.Minute
}

// ReconcilePeriod returns the interval between reconciliation sweeps. The
// same value, in hours, is what each sweep adds to an unresolved ticket.
func (t TrackerConfig) ReconcilePeriod() time.Duration {
	return time.Duration(t.ReconcileSweepHours) * time.Hour
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
