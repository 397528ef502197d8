package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Scraper    ScraperConfig    `yaml:"scraper"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	Database   DatabaseConfig   `yaml:"database"`
	Calendar   CalendarConfig   `yaml:"calendar"`
	Server     ServerConfig     `yaml:"server"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console | json
}

// ScraperConfig holds the settings of the schedule page fetcher.
type ScraperConfig struct {
	URL            string            `yaml:"url"`
	UserAgent      string            `yaml:"user_agent"`
	Headless       *bool             `yaml:"headless"`
	ChromePath     string            `yaml:"chrome_path"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
	SettleSeconds  int               `yaml:"settle_seconds"`
	Settle         time.Duration     `yaml:"-"`
	Headers        map[string]string `yaml:"headers"`
}

// MonitorConfig drives the reconciliation cycle.
type MonitorConfig struct {
	Schedule      string         `yaml:"schedule"` // cron spec for continuous mode
	Timezone      string         `yaml:"timezone"`
	Location      *time.Location `yaml:"-"`
	Groups        []string       `yaml:"groups"`
	GroupsFile    string         `yaml:"groups_file"`
	RetentionDays int            `yaml:"retention_days"`
	RawDataDir    string         `yaml:"raw_data_dir"`
	UIDDomain     string         `yaml:"uid_domain"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite | postgres
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogQueries             bool   `yaml:"log_queries"`
}

// CalendarConfig controls ICS artifact output.
type CalendarConfig struct {
	OutputDir string `yaml:"output_dir"`
	Name      string `yaml:"name"`
	Combined  *bool  `yaml:"combined"`
}

// ServerConfig holds the read API configuration.
type ServerConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateBurst       int     `yaml:"rate_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// Enabled reports whether both VAPID keys are configured.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration holding only defaults.
func Default() *Config {
	var cfg Config
	// the default zone is embedded via time/tzdata
	_ = cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}

	if cfg.Scraper.URL == "" {
		cfg.Scraper.URL = "https://poweron.loe.lviv.ua/"
	}
	if cfg.Scraper.Headless == nil {
		headless := true
		cfg.Scraper.Headless = &headless
	}
	if cfg.Scraper.TimeoutSeconds <= 0 {
		cfg.Scraper.TimeoutSeconds = 30
	}
	cfg.Scraper.Timeout = time.Duration(cfg.Scraper.TimeoutSeconds) * time.Second
	if cfg.Scraper.SettleSeconds <= 0 {
		cfg.Scraper.SettleSeconds = 5
	}
	cfg.Scraper.Settle = time.Duration(cfg.Scraper.SettleSeconds) * time.Second

	if cfg.Monitor.Schedule == "" {
		cfg.Monitor.Schedule = "@every 5m"
	}
	if cfg.Monitor.Timezone == "" {
		cfg.Monitor.Timezone = "Europe/Kiev"
	}
	loc, err := time.LoadLocation(cfg.Monitor.Timezone)
	if err != nil {
		return fmt.Errorf("load timezone %q: %w", cfg.Monitor.Timezone, err)
	}
	cfg.Monitor.Location = loc
	if cfg.Monitor.GroupsFile == "" {
		cfg.Monitor.GroupsFile = "groups.json"
	}
	if cfg.Monitor.RetentionDays <= 0 {
		cfg.Monitor.RetentionDays = 30
	}
	if cfg.Monitor.UIDDomain == "" {
		cfg.Monitor.UIDDomain = "power-monitor"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "power_outages.db"
	}
	if cfg.Database.MaxOpenConns <= 0 {
		cfg.Database.MaxOpenConns = 1
	}
	if cfg.Database.MaxIdleConns <= 0 {
		cfg.Database.MaxIdleConns = 1
	}
	if cfg.Database.ConnMaxLifetimeMinutes <= 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 60
	}

	if cfg.Calendar.OutputDir == "" {
		cfg.Calendar.OutputDir = "calendar_events"
	}
	if cfg.Calendar.Name == "" {
		cfg.Calendar.Name = "Power Outages"
	}
	if cfg.Calendar.Combined == nil {
		combined := true
		cfg.Calendar.Combined = &combined
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}
	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}
	return nil
}

// groupsFile is the layout of a group allow-list file: {"group": ["1.1"]}.
type groupsFile struct {
	Group []string `yaml:"group"`
}

// LoadGroups reads a group allow-list file. A missing file yields nil so the
// caller processes every group.
func LoadGroups(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var gf groupsFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("decode groups file %s: %w", path, err)
	}
	return cleanGroups(gf.Group), nil
}

// ParseGroups splits a comma-separated group list.
func ParseGroups(s string) []string {
	return cleanGroups(strings.Split(s, ","))
}

func cleanGroups(in []string) []string {
	var out []string
	for _, g := range in {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// ResolveGroups picks the group allow-list: explicit list first, then the
// groups file, then the config file's own list. nil means every group.
func (cfg *Config) ResolveGroups(flagGroups, flagFile string) ([]string, error) {
	if groups := ParseGroups(flagGroups); len(groups) > 0 {
		return groups, nil
	}
	file := flagFile
	if file == "" {
		file = cfg.Monitor.GroupsFile
	}
	groups, err := LoadGroups(file)
	if err != nil {
		return nil, err
	}
	if len(groups) > 0 {
		return groups, nil
	}
	return cleanGroups(cfg.Monitor.Groups), nil
}
