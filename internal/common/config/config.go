// internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"media-reconciler/internal/common/retry"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig               `mapstructure:"app"`
	Database  DatabaseConfig          `mapstructure:"database"`
	Discord   DiscordConfig           `mapstructure:"discord"`
	Email     EmailConfig             `mapstructure:"email"`
	Servers   map[string]ServerConfig `mapstructure:"servers"`
	Reconcile ReconcileConfig         `mapstructure:"reconcile"`
	Logging   LoggingConfig           `mapstructure:"logging"`
	Metrics   MetricsConfig           `mapstructure:"metrics"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig holds the subscription ledger connection settings.
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

// GetDSN returns the MySQL connection string.
func (d DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Database,
	)
}

// DiscordConfig holds the chat-platform settings. The session created from
// these is scoped to a single run.
type DiscordConfig struct {
	Token   string `mapstructure:"token"`
	GuildID string `mapstructure:"guild_id"`
	APIBase string `mapstructure:"api_base"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// EmailConfig holds SMTP submission settings plus the message templates.
// Template placeholders use {field} substitution over a closed field set.
type EmailConfig struct {
	SMTPHost        string `mapstructure:"smtp_host"`
	SMTPPort        int    `mapstructure:"smtp_port"`
	SMTPUsername    string `mapstructure:"smtp_username"`
	SMTPPassword    string `mapstructure:"smtp_password"`
	From            string `mapstructure:"from"`
	ReminderSubject string `mapstructure:"reminder_subject"`
	ReminderBody    string `mapstructure:"reminder_body"`
	RemovalSubject  string `mapstructure:"removal_subject"`
	RemovalBody     string `mapstructure:"removal_body"`
}

// PriceTable is one pricing block (per tier) from a server config.
// Pointers distinguish "not configured" from zero; unconfigured prices
// render as empty strings in templates.
type PriceTable struct {
	OneMonth    *float64 `mapstructure:"1month"`
	ThreeMonth  *float64 `mapstructure:"3month"`
	SixMonth    *float64 `mapstructure:"6month"`
	TwelveMonth *float64 `mapstructure:"12month"`
}

// ServerConfig is one media server block: connection, shared libraries,
// the associated chat role, and per-tier pricing.
type ServerConfig struct {
	BaseURL           string      `mapstructure:"base_url"`
	Token             string      `mapstructure:"token"`
	ServerName        string      `mapstructure:"server_name"`
	Role              string      `mapstructure:"role"`
	StandardLibraries []string    `mapstructure:"standard_libraries"`
	OptionalLibraries []string    `mapstructure:"optional_libraries"`
	FourKPrices       *PriceTable `mapstructure:"4k"`
	HDPrices          *PriceTable `mapstructure:"1080p"`
}

// ReconcileConfig holds the engine tunables.
type ReconcileConfig struct {
	ExpiryWindowDays int  `mapstructure:"expiry_window_days"`
	HTTPTimeout      int  `mapstructure:"http_timeout"`     // milliseconds
	RetryAttempts    int  `mapstructure:"retry_attempts"`
	RetryBaseDelay   int  `mapstructure:"retry_base_delay"` // milliseconds
	DryRun           bool `mapstructure:"dry_run"`
}

// HTTPTimeoutDuration returns the per-call timeout for external reads.
func (r ReconcileConfig) HTTPTimeoutDuration() time.Duration {
	return time.Duration(r.HTTPTimeout) * time.Millisecond
}

// RetryPolicy builds the backoff policy external clients run under.
// Unset tunables keep the package defaults.
func (r ReconcileConfig) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	if r.RetryAttempts > 0 {
		p.Attempts = r.RetryAttempts
	}
	if r.RetryBaseDelay > 0 {
		p.BaseDelay = time.Duration(r.RetryBaseDelay) * time.Millisecond
	}
	return p
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

func (d DatabaseConfig) validate() error {
	return validation.ValidateStruct(&d,
		validation.Field(&d.Host, validation.Required),
		validation.Field(&d.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&d.Database, validation.Required),
		validation.Field(&d.User, validation.Required),
	)
}

func (s ServerConfig) validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.BaseURL, validation.Required),
		validation.Field(&s.Token, validation.Required),
		validation.Field(&s.ServerName, validation.Required),
	)
}

func validateConfig(cfg *Config) error {
	if err := cfg.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return fmt.Errorf("no media server blocks configured")
	}
	var bad []string
	for name, srv := range cfg.Servers {
		if err := srv.validate(); err != nil {
			bad = append(bad, fmt.Sprintf("%s (%v)", name, err))
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("invalid server blocks: %s", strings.Join(bad, "; "))
	}
	return nil
}
