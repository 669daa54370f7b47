package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Settings are the non-secret job settings, optionally loaded from a YAML
// file (SETTINGS_PATH, or ./reporter.yaml when present). Environment
// variables always win over file values.
type Settings struct {
	ReportTitle     string   `yaml:"report_title"`
	OutputDirectory string   `yaml:"output_directory"`
	LogDirectory    string   `yaml:"log_directory"`
	SQLPath         string   `yaml:"sql_path"`
	LockPath        string   `yaml:"lock_path"`
	YearStartMonth  int      `yaml:"year_start_month"`
	Recipients      []string `yaml:"recipients"`
	CronSpec        string   `yaml:"cron_spec"`
}

// AppConfig holds all configuration for one run. It is built once at
// startup and passed by reference to every component; nothing mutates it
// afterwards.
type AppConfig struct {
	DatabaseURL string

	SQLPath   string
	OutputDir string
	LogDir    string
	LockPath  string

	ReportTitle    string
	RunMode        string     // forced single mode; empty means due-today orchestration
	YearStartMonth time.Month // fiscal anchor for the monthly window; 0 disables

	SMTPHost   string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPFrom   string
	Recipients []string

	TelegramToken  string
	TelegramChatID int64

	CronSpec    string
	LogLevel    string
	Environment string
}

// Load reads configuration from environment variables, a .env file (if
// present) and the optional YAML settings file.
func Load() (*AppConfig, error) {
	// godotenv.Load will not override variables already set in the environment.
	_ = godotenv.Load()

	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	cfg := &AppConfig{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	cfg.SQLPath = firstOf(os.Getenv("SQL_PATH"), settings.SQLPath, "sql/ses_query.sql")
	cfg.OutputDir = firstOf(os.Getenv("OUTPUT_DIR"), settings.OutputDirectory, "output")
	cfg.LogDir = firstOf(os.Getenv("LOG_DIR"), settings.LogDirectory, "logs")
	cfg.LockPath = firstOf(os.Getenv("LOCK_PATH"), settings.LockPath, "run.lock")
	cfg.ReportTitle = firstOf(os.Getenv("REPORT_TITLE"), settings.ReportTitle, "Service Entry Report")
	cfg.RunMode = strings.ToUpper(os.Getenv("RUN_MODE"))

	yearStart := firstOf(os.Getenv("YEAR_START_MONTH"), intSetting(settings.YearStartMonth))
	if yearStart != "" {
		month, err := strconv.Atoi(yearStart)
		if err != nil || month < 1 || month > 12 {
			return nil, fmt.Errorf("invalid YEAR_START_MONTH %q: must be 1-12", yearStart)
		}
		cfg.YearStartMonth = time.Month(month)
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is not set")
	}
	portStr := os.Getenv("SMTP_PORT")
	if portStr == "" {
		portStr = "25"
	}
	cfg.SMTPPort, err = strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP_FROM is not set")
	}

	cfg.Recipients = SplitRecipients(os.Getenv("SMTP_TO"))
	if len(cfg.Recipients) == 0 {
		cfg.Recipients = settings.Recipients
	}
	if len(cfg.Recipients) == 0 {
		return nil, fmt.Errorf("no recipients configured: set SMTP_TO or recipients in the settings file")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken != "" {
		chatIDStr := os.Getenv("TELEGRAM_CHAT_ID")
		if chatIDStr == "" {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID is not set but TELEGRAM_TOKEN is")
		}
		cfg.TelegramChatID, err = strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}

	cfg.CronSpec = firstOf(os.Getenv("CRON_SPEC"), settings.CronSpec, "0 6 * * *")

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	return cfg, nil
}

// SplitRecipients splits a comma- or whitespace-delimited address list,
// dropping empty entries.
func SplitRecipients(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

func loadSettings() (Settings, error) {
	var s Settings
	path := os.Getenv("SETTINGS_PATH")
	if path == "" {
		if _, err := os.Stat("reporter.yaml"); err == nil {
			path = "reporter.yaml"
		}
	}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}
	return s, nil
}

// firstOf returns the first non-empty value.
func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intSetting(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}
