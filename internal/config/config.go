// Package config loads service configuration from defaults, an optional YAML
// file and SLAENGINE_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/bissquit/incident-sla/internal/domain"
	"github.com/bissquit/incident-sla/internal/incidents"
	"github.com/bissquit/incident-sla/internal/sla"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels: SLAENGINE_SERVER__PORT sets server.port.
const EnvPrefix = "SLAENGINE_"

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// listKeys are split on commas when read from the environment.
var listKeys = map[string]bool{
	"cors.allowed_origins":        true,
	"sla.calendar.working_days":   true,
	"escalation.email.recipients": true,
}

// defaultWorkingDays applies when working_days is unset.
// A configured list replaces it entirely.
var defaultWorkingDays = []string{"mon", "tue", "wed", "thu", "fri"}

// Config is the root configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Storage    StorageConfig    `koanf:"storage"`
	Database   DatabaseConfig   `koanf:"database"`
	Log        LogConfig        `koanf:"log"`
	JWT        JWTConfig        `koanf:"jwt"`
	CORS       CORSConfig       `koanf:"cors"`
	SLA        SLAConfig        `koanf:"sla"`
	Scanner    ScannerConfig    `koanf:"scanner"`
	Scheduler  SchedulerConfig  `koanf:"scheduler"`
	Escalation EscalationConfig `koanf:"escalation"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port" validate:"required"`
	MetricsPort       string        `koanf:"metrics_port" validate:"required"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// StorageConfig selects the incident store.
type StorageConfig struct {
	Driver string `koanf:"driver" validate:"oneof=memory postgres"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts" validate:"gte=0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// JWTConfig holds admin token settings. Admin routes are disabled when
// SecretKey is empty.
type JWTConfig struct {
	SecretKey     string        `koanf:"secret_key" validate:"omitempty,min=32"`
	Issuer        string        `koanf:"issuer"`
	TokenDuration time.Duration `koanf:"token_duration"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// SLAConfig holds the business calendar, catalog overrides and lifecycle policy.
type SLAConfig struct {
	Calendar      CalendarConfig                 `koanf:"calendar"`
	Catalog       map[string]SLADefinitionConfig `koanf:"catalog"`
	ReopenPolicy  string                         `koanf:"reopen_policy" validate:"oneof=keep clear"`
	NotifyTimeout time.Duration                  `koanf:"notify_timeout"`
}

// CalendarConfig describes business hours.
type CalendarConfig struct {
	WorkingDays []string `koanf:"working_days"`
	StartHour   int      `koanf:"start_hour"`
	EndHour     int      `koanf:"end_hour"`
	Timezone    string   `koanf:"timezone"`
}

// SLADefinitionConfig overrides the targets of one priority. Unset fields
// keep the built-in value for that priority.
type SLADefinitionConfig struct {
	ResponseMinutes   *int  `koanf:"response_minutes"`
	ResolutionMinutes *int  `koanf:"resolution_minutes"`
	BusinessHoursOnly *bool `koanf:"business_hours_only"`
}

// ScannerConfig holds breach scanner settings.
type ScannerConfig struct {
	ResponseWarningLead   time.Duration `koanf:"response_warning_lead"`
	ResolutionWarningLead time.Duration `koanf:"resolution_warning_lead"`
	Workers               int           `koanf:"workers" validate:"gte=1,lte=256"`
	NotifyTimeout         time.Duration `koanf:"notify_timeout"`
}

// SchedulerConfig holds job schedules.
type SchedulerConfig struct {
	Enabled         bool          `koanf:"enabled"`
	BreachScanCron  string        `koanf:"breach_scan_cron" validate:"required"`
	SnapshotCron    string        `koanf:"snapshot_cron" validate:"required"`
	DBMetricsCron   string        `koanf:"db_metrics_cron" validate:"required"`
	RunTimeout      time.Duration `koanf:"run_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// EscalationConfig holds escalation channels. The log channel is always on.
type EscalationConfig struct {
	BaseURL    string           `koanf:"base_url" validate:"omitempty,url"`
	Mattermost MattermostConfig `koanf:"mattermost"`
	Slack      SlackConfig      `koanf:"slack"`
	Email      EmailConfig      `koanf:"email"`
	Telegram   TelegramConfig   `koanf:"telegram"`
}

// MattermostConfig holds Mattermost webhook settings.
type MattermostConfig struct {
	Enabled       bool    `koanf:"enabled"`
	WebhookURL    string  `koanf:"webhook_url" validate:"required_if=Enabled true"`
	Username      string  `koanf:"username"`
	IconURL       string  `koanf:"icon_url"`
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int     `koanf:"burst" validate:"gte=0"`
}

// SlackConfig holds Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `koanf:"enabled"`
	WebhookURL string `koanf:"webhook_url" validate:"required_if=Enabled true"`
	Channel    string `koanf:"channel"`
	Username   string `koanf:"username"`
	IconEmoji  string `koanf:"icon_emoji"`
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	Enabled       bool    `koanf:"enabled"`
	BotToken      string  `koanf:"bot_token" validate:"required_if=Enabled true"`
	ChatID        string  `koanf:"chat_id" validate:"required_if=Enabled true"`
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gte=0"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Enabled      bool     `koanf:"enabled"`
	SMTPHost     string   `koanf:"smtp_host" validate:"required_if=Enabled true"`
	SMTPPort     int      `koanf:"smtp_port"`
	SMTPUser     string   `koanf:"smtp_user"`
	SMTPPassword string   `koanf:"smtp_password"`
	FromAddress  string   `koanf:"from_address" validate:"required_if=Enabled true"`
	Recipients   []string `koanf:"recipients" validate:"required_if=Enabled true,dive,email"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Storage: StorageConfig{Driver: StorageMemory},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		JWT: JWTConfig{
			Issuer:        "slaengine",
			TokenDuration: time.Hour,
		},
		SLA: SLAConfig{
			Calendar: CalendarConfig{
				StartHour: 9,
				EndHour:   18,
				Timezone:  "UTC",
			},
			ReopenPolicy:  string(incidents.ReopenKeepBreach),
			NotifyTimeout: incidents.DefaultNotifyTimeout,
		},
		Scanner: ScannerConfig{
			ResponseWarningLead:   15 * time.Minute,
			ResolutionWarningLead: 30 * time.Minute,
			Workers:               8,
			NotifyTimeout:         10 * time.Second,
		},
		Scheduler: SchedulerConfig{
			Enabled:         true,
			BreachScanCron:  "@every 5m",
			SnapshotCron:    "@every 1m",
			DBMetricsCron:   "@every 15s",
			RunTimeout:      4 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
	}
}

// Load reads configuration. path may be empty to skip the YAML file.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps SLAENGINE_SLA__CALENDAR__START_HOUR to sla.calendar.start_hour.
func envKey(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")

	if listKeys[key] {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return key, out
	}
	return key, value
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Storage.Driver == StoragePostgres && c.Database.URL == "" {
		return errors.New("invalid config: database.url is required for the postgres storage driver")
	}

	if _, err := c.BusinessCalendar(); err != nil {
		return err
	}
	if _, err := c.SLACatalog(); err != nil {
		return err
	}
	return nil
}

// BusinessCalendar builds the validated calendar.
func (c *Config) BusinessCalendar() (sla.BusinessCalendar, error) {
	loc, err := time.LoadLocation(c.SLA.Calendar.Timezone)
	if err != nil {
		return sla.BusinessCalendar{}, &sla.ConfigError{Field: "calendar.timezone", Reason: err.Error()}
	}

	names := c.SLA.Calendar.WorkingDays
	if names == nil {
		names = defaultWorkingDays
	}

	days := make([]time.Weekday, 0, len(names))
	for _, s := range names {
		d, err := sla.ParseWeekday(s)
		if err != nil {
			return sla.BusinessCalendar{}, err
		}
		days = append(days, d)
	}

	return sla.NewBusinessCalendar(days, c.SLA.Calendar.StartHour, c.SLA.Calendar.EndHour, loc)
}

// SLACatalog builds the validated catalog from the built-in definitions
// overlaid with configured overrides.
func (c *Config) SLACatalog() (*sla.Catalog, error) {
	defaults := sla.DefaultDefinitions()
	overrides := make(map[domain.Priority]sla.Definition, len(c.SLA.Catalog))
	for p, d := range c.SLA.Catalog {
		priority := domain.Priority(strings.ToUpper(p))
		def := defaults[priority]
		if d.ResponseMinutes != nil {
			def.ResponseMinutes = *d.ResponseMinutes
		}
		if d.ResolutionMinutes != nil {
			def.ResolutionMinutes = *d.ResolutionMinutes
		}
		if d.BusinessHoursOnly != nil {
			def.BusinessHoursOnly = *d.BusinessHoursOnly
		}
		overrides[priority] = def
	}
	return sla.NewCatalog(overrides)
}
