package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/mamadbah2/lambtrial/internal/domain/calendar"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Trial     TrialConfig
	Storage   StorageConfig
	Mirror    MirrorConfig
	Sheets    SheetsConfig
	WhatsApp  WhatsAppConfig
	Reporting ReportingConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
}

// LogConfig selects the zap level.
type LogConfig struct {
	Level string
}

// TrialConfig holds the fixed reference dates of the trial.
type TrialConfig struct {
	ArrivalDate    models.CivilDate
	TrialStartDate models.CivilDate
	WeekOneDate    models.CivilDate
	StudyStartDate models.CivilDate
	StudyEndDate   models.CivilDate
}

// Boundaries converts the dates into the calendar's reference set.
func (t TrialConfig) Boundaries() calendar.Boundaries {
	return calendar.Boundaries{
		Arrival:    t.ArrivalDate,
		TrialStart: t.TrialStartDate,
		WeekOne:    t.WeekOneDate,
		StudyStart: t.StudyStartDate,
		StudyEnd:   t.StudyEndDate,
	}
}

// StorageConfig locates the local dataset.
type StorageConfig struct {
	Path      string
	KeyPrefix string
}

// MirrorConfig holds settings for the MongoDB mirror.
type MirrorConfig struct {
	URI         string
	DBName      string
	PullOnStart bool
}

// Enabled reports whether a mirror is configured.
func (m MirrorConfig) Enabled() bool {
	return m.URI != ""
}

// SheetsConfig contains configuration required to export to Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
}

// Enabled reports whether spreadsheet export is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken     string
	PhoneNumberID   string
	VerifyToken     string
	BaseURL         string
	APIVersion      string
	ReportRecipient string
}

// Enabled reports whether the WhatsApp integration is configured.
func (w WhatsAppConfig) Enabled() bool {
	return w.AccessToken != "" && w.PhoneNumberID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule       string
	ExportCronSchedule string
	Timezone           string
}

// Location resolves the configured timezone.
func (r ReportingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Missing .env files are fine when the environment is set directly.
		_ = godotenv.Load()
	}

	trial, err := loadTrial()
	if err != nil {
		return nil, err
	}

	pullOnStart, err := strconv.ParseBool(getenvWithDefault("MIRROR_PULL_ON_START", "false"))
	if err != nil {
		return nil, fmt.Errorf("MIRROR_PULL_ON_START: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenvWithDefault("APP_PORT", "8080"),
		},
		Log: LogConfig{
			Level: getenvWithDefault("LOG_LEVEL", "info"),
		},
		Trial: trial,
		Storage: StorageConfig{
			Path:      getenvWithDefault("STORAGE_PATH", "data/trial.db"),
			KeyPrefix: getenvWithDefault("STORAGE_KEY_PREFIX", "tfg_corderos"),
		},
		Mirror: MirrorConfig{
			URI:         os.Getenv("MONGODB_URI"),
			DBName:      getenvWithDefault("MONGODB_DB_NAME", "lambtrial"),
			PullOnStart: pullOnStart,
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:     os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID:   os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:     os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:         getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:      getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
			ReportRecipient: os.Getenv("WHATSAPP_REPORT_RECIPIENT"),
		},
		Reporting: ReportingConfig{
			CronSchedule:       getenvWithDefault("REPORT_CRON_SCHEDULE", "0 20 * * 5"),
			ExportCronSchedule: getenvWithDefault("EXPORT_CRON_SCHEDULE", "0 21 * * *"),
			Timezone:           getenvWithDefault("TIMEZONE", "Europe/Madrid"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadTrial() (TrialConfig, error) {
	var (
		t   TrialConfig
		err error
	)
	fields := []struct {
		key      string
		fallback string
		dst      *models.CivilDate
	}{
		{"TRIAL_ARRIVAL_DATE", "2025-12-18", &t.ArrivalDate},
		{"TRIAL_START_DATE", "2025-12-24", &t.TrialStartDate},
		{"TRIAL_WEEK1_DATE", "2025-12-31", &t.WeekOneDate},
		{"STUDY_START_DATE", "2025-12-23", &t.StudyStartDate},
		{"STUDY_END_DATE", "2026-02-04", &t.StudyEndDate},
	}
	for _, f := range fields {
		if *f.dst, err = models.ParseDate(getenvWithDefault(f.key, f.fallback)); err != nil {
			return TrialConfig{}, fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return t, nil
}

// Validate ensures that required configuration fields are populated.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if err := c.Trial.Boundaries().Validate(); err != nil {
		return fmt.Errorf("trial dates: %w", err)
	}

	if c.Storage.Path == "" {
		return errors.New("STORAGE_PATH must be provided")
	}

	if c.Mirror.Enabled() && c.Mirror.DBName == "" {
		return errors.New("MONGODB_DB_NAME must not be empty when MONGODB_URI is set")
	}

	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.VerifyToken == "":
			return errors.New("META_VERIFY_TOKEN must be provided")
		case c.WhatsApp.BaseURL == "":
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		case c.WhatsApp.APIVersion == "":
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	if _, err := c.Reporting.Location(); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
