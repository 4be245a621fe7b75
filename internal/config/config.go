// Package config provides YAML-based configuration loading for Data Goal.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Data Goal configuration, loaded from datagoal.yaml.
type Config struct {
	Owner    string         `yaml:"owner"`
	Mode     string         `yaml:"mode"` // "local" (sqlite) or "mysql"
	MySQL    MySQLConfig    `yaml:"mysql"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	QA       QAConfig       `yaml:"qa"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Mailer   MailerConfig   `yaml:"mailer"`
	Notify   NotifyConfig   `yaml:"notify"`
	Watch    WatchConfig    `yaml:"watch"`
}

// MySQLConfig holds connection settings for the MySQL server.
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
}

// SQLiteConfig holds settings for local-mode storage.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QAConfig holds the QA evaluator endpoint and verdict thresholds.
type QAConfig struct {
	Endpoint        string  `yaml:"endpoint"`
	APIKey          string  `yaml:"api_key"`
	ReadyThreshold  float64 `yaml:"ready_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold"`
}

// PipelineConfig holds the report-generation pipeline endpoint used to
// request (re)generation of a run.
type PipelineConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// MailerConfig holds email dispatch settings.
type MailerConfig struct {
	Provider  string `yaml:"provider"` // only "sendgrid" is supported
	APIKey    string `yaml:"api_key"`
	FromEmail string `yaml:"from_email"`
	FromName  string `yaml:"from_name"`
}

// NotifyConfig holds operator notification channel settings. A channel with
// an empty token is disabled.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack bot credentials for operator alerts.
type SlackConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// DiscordConfig holds Discord bot credentials for operator alerts.
type DiscordConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// WatchConfig controls the watch daemon.
type WatchConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
	DigestCron   string        `yaml:"digest_cron"` // 5-field cron expression, empty disables the digest
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "local"
	}
	if c.MySQL.Host == "" {
		c.MySQL.Host = "127.0.0.1"
	}
	if c.MySQL.Port == 0 {
		c.MySQL.Port = 3306
	}
	if c.MySQL.Database == "" && c.Owner != "" {
		c.MySQL.Database = "datagoal_" + c.Owner
	}
	if c.SQLite.Path == "" {
		c.SQLite.Path = "datagoal.db"
	}
	if c.QA.ReadyThreshold == 0 {
		c.QA.ReadyThreshold = 0.85
	}
	if c.QA.ReviewThreshold == 0 {
		c.QA.ReviewThreshold = 0.70
	}
	if c.Mailer.Provider == "" {
		c.Mailer.Provider = "sendgrid"
	}
	if c.Mailer.FromName == "" {
		c.Mailer.FromName = "Data Goal"
	}
	if c.Watch.PollInterval == 0 {
		c.Watch.PollInterval = 30 * time.Second
	}
	if c.Watch.StallTimeout == 0 {
		c.Watch.StallTimeout = 10 * time.Minute
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Owner == "" {
		errs = append(errs, "owner is required")
	}
	if c.Mode != "local" && c.Mode != "mysql" {
		errs = append(errs, fmt.Sprintf("mode %q is not supported (local, mysql)", c.Mode))
	}
	if c.Mailer.Provider != "sendgrid" {
		errs = append(errs, fmt.Sprintf("mailer.provider %q is not supported (sendgrid)", c.Mailer.Provider))
	}
	if c.QA.ReadyThreshold < c.QA.ReviewThreshold {
		errs = append(errs, "qa.ready_threshold must be >= qa.review_threshold")
	}
	if c.QA.ReadyThreshold > 1 || c.QA.ReviewThreshold < 0 {
		errs = append(errs, "qa thresholds must lie in [0,1]")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
