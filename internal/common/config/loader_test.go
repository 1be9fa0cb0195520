package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-reconciler/internal/common/retry"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
database:
  host: 127.0.0.1
  database: media
  user: reconciler
servers:
  plex1:
    base_url: http://plex1.local:32400
    token: tok-1
    server_name: Plex1
    role: Plex1
    1080p:
      1month: 10.5
`

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "media-reconciler", cfg.App.Name)
	assert.Equal(t, 3306, cfg.Database.Port)
	assert.Equal(t, 8, cfg.Reconcile.ExpiryWindowDays)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Contains(t, cfg.Email.ReminderSubject, "{daysLeft}")
	assert.Equal(t, ":9102", cfg.Metrics.Listen)

	srv := cfg.Servers["plex1"]
	require.NotNil(t, srv.HDPrices)
	require.NotNil(t, srv.HDPrices.OneMonth)
	assert.Equal(t, 10.5, *srv.HDPrices.OneMonth)
	assert.Nil(t, srv.HDPrices.ThreeMonth)
	assert.Nil(t, srv.FourKPrices)
}

func TestLoad_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("RECONCILER_DATABASE_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Password)
}

func TestLoad_RejectsMissingDatabase(t *testing.T) {
	_, err := Load(writeConfig(t, `
servers:
  plex1:
    base_url: http://plex1.local:32400
    token: tok-1
    server_name: Plex1
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_RejectsZeroServers(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  host: 127.0.0.1
  database: media
  user: reconciler
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no media server blocks")
}

func TestLoad_RejectsIncompleteServerBlock(t *testing.T) {
	_, err := Load(writeConfig(t, `
database:
  host: 127.0.0.1
  database: media
  user: reconciler
servers:
  plex1:
    base_url: http://plex1.local:32400
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server blocks")
}

func TestRetryPolicy_UsesConfiguredTunables(t *testing.T) {
	r := ReconcileConfig{RetryAttempts: 5, RetryBaseDelay: 250}
	p := r.RetryPolicy()
	assert.Equal(t, 5, p.Attempts)
	assert.Equal(t, 250*time.Millisecond, p.BaseDelay)
}

func TestRetryPolicy_ZeroValuesKeepDefaults(t *testing.T) {
	p := ReconcileConfig{}.RetryPolicy()
	defaults := retry.DefaultPolicy()
	assert.Equal(t, defaults.Attempts, p.Attempts)
	assert.Equal(t, defaults.BaseDelay, p.BaseDelay)
	assert.Equal(t, defaults.MaxDelay, p.MaxDelay)
}

func TestGetDSN(t *testing.T) {
	d := DatabaseConfig{Host: "db.local", Port: 3306, Database: "media", User: "u", Password: "p"}
	assert.Equal(t, "u:p@tcp(db.local:3306)/media?parseTime=true", d.GetDSN())
}
