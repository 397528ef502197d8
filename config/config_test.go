package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "power_outages.db", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Scraper.Timeout)
	assert.True(t, *cfg.Scraper.Headless)
	assert.Equal(t, "@every 5m", cfg.Monitor.Schedule)
	assert.Equal(t, "Europe/Kiev", cfg.Monitor.Location.String())
	assert.Equal(t, 30, cfg.Monitor.RetentionDays)
	assert.Equal(t, "power-monitor", cfg.Monitor.UIDDomain)
	assert.Equal(t, "calendar_events", cfg.Calendar.OutputDir)
	assert.True(t, *cfg.Calendar.Combined)
	assert.Equal(t, 3600, cfg.Push.TTL)
	assert.Equal(t, 1, cfg.WorkerPool.Size)
	assert.False(t, cfg.Push.Enabled())
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeFile(t, "config.yaml", `
log:
  level: debug
  format: json
scraper:
  headless: false
  timeout_seconds: 10
monitor:
  schedule: "*/15 * * * *"
  timezone: UTC
  groups: ["1.1", " 2.2 "]
database:
  driver: postgres
  dsn: host=localhost
calendar:
  combined: false
push:
  vapid_public_key: pub
  vapid_private_key: priv
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, *cfg.Scraper.Headless)
	assert.Equal(t, 10*time.Second, cfg.Scraper.Timeout)
	assert.Equal(t, "*/15 * * * *", cfg.Monitor.Schedule)
	assert.Equal(t, time.UTC.String(), cfg.Monitor.Location.String())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=localhost", cfg.Database.DSN)
	assert.False(t, *cfg.Calendar.Combined)
	assert.True(t, cfg.Push.Enabled())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeFile(t, "bad.yaml", "log: [unclosed"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "tz.yaml", "monitor:\n  timezone: Nowhere/Land\n"))
	assert.ErrorContains(t, err, "Nowhere/Land")
}

func TestResolveGroups(t *testing.T) {
	groupsPath := writeFile(t, "groups.json", `{"group": ["3.1", "", " 4.2"]}`)

	testCases := []struct {
		name       string
		cfgGroups  []string
		flagGroups string
		flagFile   string
		want       []string
	}{
		{"Flag list wins", []string{"9.9"}, "1.1, 2.1,", groupsPath, []string{"1.1", "2.1"}},
		{"Groups file next", []string{"9.9"}, "", groupsPath, []string{"3.1", "4.2"}},
		{"Config list last", []string{"9.9"}, "", filepath.Join(t.TempDir(), "none.json"), []string{"9.9"}},
		{"Nothing means all groups", nil, "", filepath.Join(t.TempDir(), "none.json"), nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Monitor.Groups = tc.cfgGroups
			got, err := cfg.ResolveGroups(tc.flagGroups, tc.flagFile)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadGroups_Malformed(t *testing.T) {
	_, err := LoadGroups(writeFile(t, "groups.json", `{"group": `))
	assert.Error(t, err)
}
