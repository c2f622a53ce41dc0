package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	// Service
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, production
	Port        string `env:"PORT" envDefault:"3000"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// PostgreSQL
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"attendance"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
	DBMigrate  bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`

	// Redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"attendance"`

	// Kafka
	KafkaBroker        string `env:"KAFKA_BROKER" envDefault:"localhost:9092"`
	KafkaConsumerGroup string `env:"KAFKA_CONSUMER_GROUP" envDefault:"attendance-receipts"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"3s"`

	JWTSecret string `env:"JWT_SECRET"`

	// Office geofence and hours
	OfficeLatitude        float64 `env:"OFFICE_LAT,required"`
	OfficeLongitude       float64 `env:"OFFICE_LON,required"`
	AllowedDistanceMeters float64 `env:"ALLOWED_DISTANCE_METERS" envDefault:"100"`
	OfficeStartTime       string  `env:"OFFICE_START_TIME" envDefault:"09:00"`
	OfficeTimezone        string  `env:"OFFICE_TIMEZONE" envDefault:"UTC"`

	// One-time codes
	OTPTTL           time.Duration `env:"OTP_TTL" envDefault:"3m"`
	OTPStore         string        `env:"OTP_STORE" envDefault:"memory"` // memory, redis
	OTPSweepInterval time.Duration `env:"OTP_SWEEP_INTERVAL" envDefault:"1m"`

	// Mail
	MailDriver  string        `env:"MAIL_DRIVER" envDefault:"smtp"` // smtp, log
	SMTPHost    string        `env:"SMTP_HOST"`
	SMTPPort    int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser    string        `env:"SMTP_USER"`
	SMTPPass    string        `env:"SMTP_PASS"`
	SMTPFrom    string        `env:"SMTP_FROM"`
	SMTPTimeout time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`

	// Rate limit on the initiate endpoints, per employee
	RateLimitEnabled bool    `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPS     float64 `env:"RATE_LIMIT_RPS" envDefault:"0.2"`
	RateLimitBurst   int     `env:"RATE_LIMIT_BURST" envDefault:"3"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		zap.L().Debug("no .env file loaded, using environment", zap.Error(err))
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error

	if math.IsNaN(c.OfficeLatitude) || c.OfficeLatitude < -90 || c.OfficeLatitude > 90 {
		errs = append(errs, fmt.Errorf("OFFICE_LAT must be within [-90, 90], got %v", c.OfficeLatitude))
	}
	if math.IsNaN(c.OfficeLongitude) || c.OfficeLongitude < -180 || c.OfficeLongitude > 180 {
		errs = append(errs, fmt.Errorf("OFFICE_LON must be within [-180, 180], got %v", c.OfficeLongitude))
	}
	if !(c.AllowedDistanceMeters > 0) {
		errs = append(errs, fmt.Errorf("ALLOWED_DISTANCE_METERS must be positive, got %v", c.AllowedDistanceMeters))
	}
	if _, _, err := ParseClock(c.OfficeStartTime); err != nil {
		errs = append(errs, fmt.Errorf("OFFICE_START_TIME: %w", err))
	}
	if _, err := time.LoadLocation(c.OfficeTimezone); err != nil {
		errs = append(errs, fmt.Errorf("OFFICE_TIMEZONE: %w", err))
	}
	if c.OTPTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL must be positive"))
	}
	if c.OTPSweepInterval <= 0 {
		errs = append(errs, errors.New("OTP_SWEEP_INTERVAL must be positive"))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("OUTBOX_POLL_INTERVAL must be positive"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		errs = append(errs, errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled"))
	}
	switch c.OTPStore {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("OTP_STORE must be memory or redis, got %q", c.OTPStore))
	}
	switch c.MailDriver {
	case "log":
	case "smtp":
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			errs = append(errs, errors.New("SMTP_HOST and SMTP_FROM are required when MAIL_DRIVER=smtp"))
		}
	default:
		errs = append(errs, fmt.Errorf("MAIL_DRIVER must be smtp or log, got %q", c.MailDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	return errors.Join(errs...)
}

// OfficeLocation returns the parsed office time zone. Validate has already
// rejected unknown names, so UTC is only a fallback for hand-built configs.
func (c Config) OfficeLocation() *time.Location {
	loc, err := time.LoadLocation(c.OfficeTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// OfficeStart returns hour and minute of OFFICE_START_TIME.
func (c Config) OfficeStart() (hour, minute int) {
	hour, minute, _ = ParseClock(c.OfficeStartTime)
	return hour, minute
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseClock parses "HH:MM" on a 24h clock.
func ParseClock(s string) (hour, minute int, err error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) == 0 || len(hh) > 2 || len(mm) != 2 {
		return 0, 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
