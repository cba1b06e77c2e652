package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr           string
	ReleaseMode        bool
	DatabaseURL        string
	CORSAllowedOrigins []string
	TrustedProxies     []string
	JWTSecret          string
	AppBaseURL         string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	Reminder ReminderConfig
	Worker   WorkerConfig

	// Optional YAML file with reminder configurations to seed on startup
	ReminderConfigFile string
}

// ReminderConfig holds the delivery tunables for the reminder pipeline
type ReminderConfig struct {
	BatchSize      int
	Concurrency    int
	MaxRetries     int
	SendsPerSecond float64
}

type WorkerConfig struct {
	ID           string
	PollInterval time.Duration
	ClaimBatch   int
	// LockTimeout is how long a claimed job may go without a heartbeat
	// before another worker takes it over
	LockTimeout time.Duration
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		ReleaseMode:        os.Getenv("GIN_MODE") == "release",
		JWTSecret:          getenv("JWT_SECRET", ""),
		AppBaseURL:         strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:3000"), "/"),
		SendGridAPIKey:     getenv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getenv("SENDGRID_NOTIFICATIONS_FROM_EMAIL", "reminders@localhost"),
		SendGridFromName:   getenv("SENDGRID_FROM_NAME", "Session Reminders"),
		ReminderConfigFile: getenv("REMINDER_CONFIG_FILE", ""),
		CORSAllowedOrigins: splitList(getenv("CORS_ALLOWED_ORIGINS", "")),
		TrustedProxies:     splitList(getenv("TRUSTED_PROXIES", "127.0.0.1")),
	}

	dsn, err := databaseURL(cfg.ReleaseMode)
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseURL = dsn

	var errs []string
	intVar := func(key string, def int, dst *int) {
		v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = v
	}

	intVar("REMINDER_BATCH_SIZE", 50, &cfg.Reminder.BatchSize)
	intVar("REMINDER_SEND_CONCURRENCY", 5, &cfg.Reminder.Concurrency)
	intVar("REMINDER_MAX_RETRIES", 3, &cfg.Reminder.MaxRetries)
	intVar("WORKER_BATCH", 10, &cfg.Worker.ClaimBatch)

	rps, err := strconv.ParseFloat(getenv("REMINDER_SENDS_PER_SECOND", "10"), 64)
	if err != nil {
		errs = append(errs, fmt.Sprintf("REMINDER_SENDS_PER_SECOND: %v", err))
	}
	cfg.Reminder.SendsPerSecond = rps

	durationVar := func(key, def string, dst *time.Duration) {
		d, err := time.ParseDuration(getenv(key, def))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
			return
		}
		*dst = d
	}
	durationVar("WORKER_POLL_INTERVAL", "2s", &cfg.Worker.PollInterval)
	durationVar("WORKER_LOCK_TIMEOUT", "5m", &cfg.Worker.LockTimeout)
	cfg.Worker.ID = getenv("WORKER_ID", "")

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// databaseURL returns DATABASE_URL in release mode, otherwise builds a DSN
// from the individual DB_* variables
func databaseURL(release bool) (string, error) {
	if v := getenv("DATABASE_URL", ""); v != "" || release {
		if v == "" {
			return "", fmt.Errorf("missing env: DATABASE_URL")
		}
		return v, nil
	}

	var missing []string
	get := func(key string) string {
		v := getenv(key, "")
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}
	host := get("DB_HOST")
	user := get("DB_USER")
	password := get("DB_PASSWORD")
	dbname := get("DB_NAME")
	port := get("DB_PORT")
	if len(missing) > 0 {
		return "", fmt.Errorf("missing env: %s", strings.Join(missing, ", "))
	}
	sslMode := getenv("DB_SSL_MODE", "disable")

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC connect_timeout=10",
		host, user, password, dbname, port, sslMode), nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
