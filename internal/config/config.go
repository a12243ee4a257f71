package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
)

type Config struct {
	// Telegram
	TelegramBotToken      string
	TelegramChatID        string
	TelegramAPIEndpoint   string
	TelegramWebhookSecret string

	// Schedule
	Timezone     string
	ForceSend    bool
	ScheduleDay  int
	ScheduleHour int
	ReportCron   string

	// Per-step deadlines
	FetchTimeout    time.Duration
	RenderTimeout   time.Duration
	DeliveryTimeout time.Duration

	// Report content
	ReportComparison bool

	// Backend selection
	DataBackend string

	// Firestore
	FirebaseServiceAccount     string
	FirebaseServiceAccountFile string
	FirebaseProjectID          string
	FirestoreCollection        string

	// SQL stores
	SQLiteDBPath string
	DatabaseURL  string

	// Azure
	LedgerTableURL        string
	LedgerTableName       string
	ChartArchiveURL       string
	ChartArchiveContainer string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// HTTP
	Port            string
	MetricsPort     string
	ReportsAPIToken string
	RateLimitPerMin int

	// malformed holds variables that were set but could not be parsed.
	malformed []*ConfigError
}

func Load() *Config {
	var bad []*ConfigError
	cfg := &Config{
		TelegramBotToken:      getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:        getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramAPIEndpoint:   getEnv("TELEGRAM_API_ENDPOINT", "https://api.telegram.org/bot%s/%s"),
		TelegramWebhookSecret: getEnv("TELEGRAM_WEBHOOK_SECRET", ""),

		Timezone:     getEnv("TIMEZONE", "America/Los_Angeles"),
		ForceSend:    getEnvBool("FORCE_SEND"),
		ScheduleDay:  getEnvInt("SCHEDULE_DAY", 1, &bad),
		ScheduleHour: getEnvInt("SCHEDULE_HOUR", 7, &bad),
		ReportCron:   getEnv("REPORT_CRON", "0 7 1 * *"),

		FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 20*time.Second, &bad),
		RenderTimeout:   getEnvDuration("RENDER_TIMEOUT", 15*time.Second, &bad),
		DeliveryTimeout: getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second, &bad),

		ReportComparison: getEnvBool("REPORT_COMPARISON"),

		DataBackend: getEnv("DATA_BACKEND", BackendFirestore),

		FirebaseServiceAccount:     getEnv("FIREBASE_SERVICE_ACCOUNT", ""),
		FirebaseServiceAccountFile: getEnv("FIREBASE_SERVICE_ACCOUNT_FILE", ""),
		FirebaseProjectID:          getEnv("FIREBASE_PROJECT_ID", ""),
		FirestoreCollection:        getEnv("FIRESTORE_COLLECTION", "expenses"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gastos.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		LedgerTableURL:        getEnv("LEDGER_TABLE_URL", ""),
		LedgerTableName:       getEnv("LEDGER_TABLE_NAME", "deliveries"),
		ChartArchiveURL:       getEnv("CHART_ARCHIVE_URL", ""),
		ChartArchiveContainer: getEnv("CHART_ARCHIVE_CONTAINER", "charts"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gastos"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "report_requests"),

		Port:            getEnv("PORT", "8081"),
		MetricsPort:     getEnv("METRICS_PORT", ""),
		ReportsAPIToken: getEnv("REPORTS_API_TOKEN", ""),
		RateLimitPerMin: getEnvInt("RATE_LIMIT_PER_MINUTE", 30, &bad),
	}
	cfg.malformed = bad

	return cfg
}

// Validate validates the configuration and returns a *ValidationError
// naming every missing or invalid item.
func (c *Config) Validate() error {
	problems := append([]*ConfigError(nil), c.malformed...)
	add := func(item, format string, args ...any) {
		problems = append(problems, &ConfigError{Item: item, Reason: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.TelegramBotToken) == "" {
		add("TELEGRAM_BOT_TOKEN", "is required")
	}
	if c.TelegramChatID != "" {
		if _, err := strconv.ParseInt(c.TelegramChatID, 10, 64); err != nil {
			add("TELEGRAM_CHAT_ID", "invalid chat id '%s': must be an integer", c.TelegramChatID)
		}
	}
	if !strings.Contains(c.TelegramAPIEndpoint, "%s") {
		add("TELEGRAM_API_ENDPOINT", "must contain %%s placeholders for token and method")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		add("TIMEZONE", "unknown time zone '%s': %v", c.Timezone, err)
	}
	if c.ScheduleDay < 1 || c.ScheduleDay > 28 {
		add("SCHEDULE_DAY", "invalid day %d: must be between 1 and 28", c.ScheduleDay)
	}
	if c.ScheduleHour < 0 || c.ScheduleHour > 23 {
		add("SCHEDULE_HOUR", "invalid hour %d: must be between 0 and 23", c.ScheduleHour)
	}
	if len(strings.Fields(c.ReportCron)) != 5 && !strings.HasPrefix(c.ReportCron, "@") {
		add("REPORT_CRON", "invalid cron spec '%s': must have 5 fields or be a descriptor", c.ReportCron)
	}

	for _, t := range []struct {
		item string
		d    time.Duration
	}{
		{"FETCH_TIMEOUT", c.FetchTimeout},
		{"RENDER_TIMEOUT", c.RenderTimeout},
		{"DELIVERY_TIMEOUT", c.DeliveryTimeout},
	} {
		if t.d < time.Second || t.d > 5*time.Minute {
			add(t.item, "invalid timeout %v: must be between 1s and 5m", t.d)
		}
	}

	switch c.DataBackend {
	case BackendFirestore:
		c.validateFirestore(add)
	case BackendSQLite:
		c.validateSQLite(add)
	case BackendPostgres:
		if c.DatabaseURL == "" {
			add("DATABASE_URL", "is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			add("DATABASE_URL", "must be a postgres:// URL")
		}
	case BackendMemory:
	default:
		add("DATA_BACKEND", "invalid data backend '%s': must be one of %v", c.DataBackend, Backends())
	}

	if c.LedgerTableURL != "" && strings.TrimSpace(c.LedgerTableName) == "" {
		add("LEDGER_TABLE_NAME", "cannot be empty when LEDGER_TABLE_URL is set")
	}
	if c.ChartArchiveURL != "" && strings.TrimSpace(c.ChartArchiveContainer) == "" {
		add("CHART_ARCHIVE_CONTAINER", "cannot be empty when CHART_ARCHIVE_URL is set")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			add("AMQP_URL", "invalid AMQP URL: %v", err)
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			add("AMQP_URL", "invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme)
		}
		if c.AMQPExchange == "" {
			add("AMQP_EXCHANGE", "cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			add("AMQP_QUEUE", "cannot be empty when AMQP URL is provided")
		}
	}

	if c.RateLimitPerMin < 0 {
		add("RATE_LIMIT_PER_MINUTE", "invalid limit %d: must not be negative", c.RateLimitPerMin)
	}

	validatePort(add, "PORT", c.Port)
	if c.MetricsPort != "" {
		validatePort(add, "METRICS_PORT", c.MetricsPort)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (c *Config) validateFirestore(add func(string, string, ...any)) {
	switch {
	case c.FirebaseServiceAccount != "":
		var sa struct {
			ProjectID string `json:"project_id"`
		}
		if err := json.Unmarshal([]byte(c.FirebaseServiceAccount), &sa); err != nil {
			add("FIREBASE_SERVICE_ACCOUNT", "must be the service account JSON: %v", err)
		} else if c.FirebaseProjectID == "" && sa.ProjectID == "" {
			add("FIREBASE_PROJECT_ID", "is required when the service account has no project_id")
		}
	case c.FirebaseServiceAccountFile != "":
		if _, err := os.Stat(c.FirebaseServiceAccountFile); os.IsNotExist(err) {
			add("FIREBASE_SERVICE_ACCOUNT_FILE", "file does not exist: %s", c.FirebaseServiceAccountFile)
		}
	default:
		add("FIREBASE_SERVICE_ACCOUNT", "is required when using firestore backend (or set FIREBASE_SERVICE_ACCOUNT_FILE)")
	}
	if strings.TrimSpace(c.FirestoreCollection) == "" {
		add("FIRESTORE_COLLECTION", "cannot be empty")
	}
}

func (c *Config) validateSQLite(add func(string, string, ...any)) {
	if c.SQLiteDBPath == "" {
		add("SQLITE_DB_PATH", "cannot be empty when using sqlite backend")
		return
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				add("SQLITE_DB_PATH", "cannot create database directory '%s': %v", dir, err)
			}
		}
	}
}

func validatePort(add func(string, string, ...any), item, value string) {
	if port, err := strconv.Atoi(value); err != nil {
		add(item, "invalid port '%s': must be a number", value)
	} else if port < 1 || port > 65535 {
		add(item, "invalid port %d: must be between 1 and 65535", port)
	}
}

// Backends lists the accepted DATA_BACKEND values.
func Backends() []string {
	return []string{BackendFirestore, BackendSQLite, BackendPostgres, BackendMemory}
}

// Location returns the configured time zone, falling back to UTC when it
// cannot be loaded. Validate reports the bad value.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ChatID returns the configured destination chat, or 0 when unset.
func (c *Config) ChatID() int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(c.TelegramChatID), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns defaultValue when key is unset. A value that is not an
// integer also yields defaultValue and is recorded in bad.
func getEnvInt(key string, defaultValue int, bad *[]*ConfigError) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		*bad = append(*bad, &ConfigError{Item: key, Reason: fmt.Sprintf("invalid integer '%s'", value)})
		return defaultValue
	}
	return i
}

func getEnvDuration(key string, defaultValue time.Duration, bad *[]*ConfigError) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		*bad = append(*bad, &ConfigError{Item: key, Reason: fmt.Sprintf("invalid duration '%s': use a Go duration like 20s", value)})
		return defaultValue
	}
	return d
}

// getEnvBool is true only for the literal "true".
func getEnvBool(key string) bool {
	return os.Getenv(key) == "true"
}
