// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads the YAML config (explicit path, or ./configs and . lookup),
// layers environment variables on top and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional; system environment wins when absent.
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable ENV override like RECONCILER_DATABASE_PASSWORD.
	v.SetEnvPrefix("reconciler")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "media-reconciler"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 3306
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 5
	}
	if cfg.Database.MaxIdle == 0 {
		cfg.Database.MaxIdle = 2
	}
	if cfg.Discord.APIBase == "" {
		cfg.Discord.APIBase = "https://discord.com/api/v10"
	}
	if cfg.Discord.Timeout == 0 {
		cfg.Discord.Timeout = 15000
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Email.ReminderSubject == "" {
		cfg.Email.ReminderSubject = "Subscription Reminder - {daysLeft} Days Left"
	}
	if cfg.Email.ReminderBody == "" {
		cfg.Email.ReminderBody = "Dear User,\n\nYour subscription for email: {primaryEmail} is set to expire in {daysLeft} days. Please contact us if you wish to continue your subscription by replying to this email.\n\nBest regards"
	}
	if cfg.Email.RemovalSubject == "" {
		cfg.Email.RemovalSubject = "Subscription Removed"
	}
	if cfg.Email.RemovalBody == "" {
		cfg.Email.RemovalBody = "Dear User,\n\nYour subscription for email: {primaryEmail} has ended. Please contact us if you wish to continue your subscription by replying to this email.\n\nBest regards"
	}
	if cfg.Reconcile.ExpiryWindowDays == 0 {
		cfg.Reconcile.ExpiryWindowDays = 8
	}
	if cfg.Reconcile.HTTPTimeout == 0 {
		cfg.Reconcile.HTTPTimeout = 30000
	}
	if cfg.Reconcile.RetryAttempts == 0 {
		cfg.Reconcile.RetryAttempts = 3
	}
	if cfg.Reconcile.RetryBaseDelay == 0 {
		cfg.Reconcile.RetryBaseDelay = 500
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9102"
	}
}

// Direct override if sensitive values are still empty after viper's pass.
func overrideEmptyConfig(cfg *Config) {
	if cfg.Database.Password == "" {
		if val := os.Getenv("RECONCILER_DATABASE_PASSWORD"); val != "" {
			cfg.Database.Password = val
		}
	}
	if cfg.Discord.Token == "" {
		if val := os.Getenv("RECONCILER_DISCORD_TOKEN"); val != "" {
			cfg.Discord.Token = val
		}
	}
	if cfg.Email.SMTPPassword == "" {
		if val := os.Getenv("RECONCILER_SMTP_PASSWORD"); val != "" {
			cfg.Email.SMTPPassword = val
		}
	}
}
