package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Scheduler SchedulerConfig
	Meeting   MeetingConfig
	AWS       AWSConfig
	Email     EmailConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all (e.g. http://localhost:3000,http://localhost:3001)
	AppBaseURL         string // prefix for links in todos and emails
	RateLimitRPS       float64
	RateLimitBurst     int
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver   string // postgres or bolt
	BoltPath string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/meetings?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// SchedulerConfig tunes the time-driven job scheduler.
type SchedulerConfig struct {
	Backend       string // redis or memory
	Embedded      bool   // run the scheduler loop inside cmd/server
	PollInterval  time.Duration
	BatchSize     int
	MaxAttempts   int
	RetryBackoff  time.Duration
	SweepInterval time.Duration
}

// MeetingConfig holds coordinator behaviour switches.
type MeetingConfig struct {
	ReminderOffset  time.Duration
	AllowReschedule bool
	OrganizerRoles  []string // empty means any authenticated user may create meetings
}

// AWSConfig holds AWS credentials and the calendar bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	CalendarBucket       string // empty disables invite uploads
	Endpoint             string
	PresignExpireMinutes int
}

// EmailConfig holds SMTP settings. An empty SMTPHost logs mail instead of sending it.
type EmailConfig struct {
	FromAddress string
	FromName    string
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	SMTPTimeout time.Duration
	// WorkerEmbedded runs the email delivery loop inside cmd/server.
	WorkerEmbedded bool
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:3001"),
			AppBaseURL:         getEnv("APP_BASE_URL", "http://localhost:3000"),
			RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 10),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Store: StoreConfig{
			Driver:   strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
			BoltPath: getEnv("BOLT_PATH", "meetings.db"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "meetings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Scheduler: SchedulerConfig{
			Backend:       strings.ToLower(getEnv("SCHEDULER_BACKEND", "redis")),
			Embedded:      getEnvBool("SCHEDULER_EMBEDDED", true),
			PollInterval:  time.Duration(getEnvInt("SCHEDULER_POLL_INTERVAL_MS", 1000)) * time.Millisecond,
			BatchSize:     getEnvInt("SCHEDULER_BATCH_SIZE", 50),
			MaxAttempts:   getEnvInt("SCHEDULER_MAX_ATTEMPTS", 5),
			RetryBackoff:  time.Duration(getEnvInt("SCHEDULER_RETRY_BACKOFF_SEC", 30)) * time.Second,
			SweepInterval: time.Duration(getEnvInt("SCHEDULER_SWEEP_INTERVAL_SEC", 60)) * time.Second,
		},
		Meeting: MeetingConfig{
			ReminderOffset:  time.Duration(getEnvInt("MEETING_REMINDER_OFFSET_MIN", 30)) * time.Minute,
			AllowReschedule: getEnvBool("MEETING_ALLOW_RESCHEDULE", false),
			OrganizerRoles:  splitTrim(getEnv("MEETING_ORGANIZER_ROLES", ""), ","),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			CalendarBucket:       getEnv("AWS_S3_CALENDAR_BUCKET", ""),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 7*24*60),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "noreply@example.com"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Meeting Scheduler"),
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getEnvInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
			SMTPTimeout: time.Duration(getEnvInt("SMTP_TIMEOUT_SEC", 15)) * time.Second,

			WorkerEmbedded: getEnvBool("EMAIL_WORKER_EMBEDDED", false),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "postgres", "bolt":
	default:
		return fmt.Errorf("STORE_DRIVER must be postgres or bolt, got %q", c.Store.Driver)
	}
	switch c.Scheduler.Backend {
	case "redis", "memory":
	default:
		return fmt.Errorf("SCHEDULER_BACKEND must be redis or memory, got %q", c.Scheduler.Backend)
	}
	if c.Scheduler.Backend == "memory" && !c.Scheduler.Embedded {
		return fmt.Errorf("SCHEDULER_BACKEND=memory requires SCHEDULER_EMBEDDED=true")
	}
	// A bbolt file is locked by one process, so everything runs inside cmd/server.
	if c.Store.Driver == "bolt" {
		c.Scheduler.Embedded = true
		c.Email.WorkerEmbedded = true
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
