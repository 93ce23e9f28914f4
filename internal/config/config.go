// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// validCategory matches arXiv category identifiers such as cs.AI,
// astro-ph.GA, or cond-mat.str-el.
var validCategory = regexp.MustCompile(`^[a-z-]+\.[A-Za-z-]+$`)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Arxiv   ArxivConfig   `mapstructure:"arxiv"`
	Archive ArchiveConfig `mapstructure:"archive"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs the historical crawl loop.
type CrawlerConfig struct {
	// Categories lists the arXiv categories to crawl, in traversal order.
	Categories []string `mapstructure:"categories"`
	// FloorDate (YYYY-MM-DD) is the oldest date the crawl will reach.
	FloorDate string `mapstructure:"floor_date"`
	// StartDate (YYYY-MM-DD) seeds a fresh cursor; empty means yesterday.
	StartDate string `mapstructure:"start_date"`
	// RequestsPerSecond paces calls against the arXiv API.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BatchSize         int     `mapstructure:"batch_size"`
	MaxRetries        int     `mapstructure:"max_retries"`
	BaseDelayMs       int     `mapstructure:"base_delay_ms"`
	MaxDelayMs        int     `mapstructure:"max_delay_ms"`
	MaxPagesPerUnit   int     `mapstructure:"max_pages_per_unit"`
}

// ArxivConfig configures the metadata API client.
type ArxivConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ArchiveConfig selects where raw feed responses are archived.
type ArchiveConfig struct {
	// Provider is one of noop, local, gcs.
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications. An empty
// topic disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARXIV")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.categories", []string{"cs.AI"})
	v.SetDefault("crawler.floor_date", "2015-01-01")
	v.SetDefault("crawler.requests_per_second", 0.33)
	v.SetDefault("crawler.batch_size", 100)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.base_delay_ms", 2000)
	v.SetDefault("crawler.max_delay_ms", 60000)
	v.SetDefault("crawler.max_pages_per_unit", 50)
	v.SetDefault("arxiv.base_url", "https://export.arxiv.org/api/query")
	v.SetDefault("arxiv.user_agent", "arxiv-crawler/1.0")
	v.SetDefault("arxiv.timeout_seconds", 30)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Crawler.Categories) == 0 {
		return fmt.Errorf("crawler.categories must not be empty")
	}
	for _, cat := range c.Crawler.Categories {
		if !validCategory.MatchString(cat) {
			return fmt.Errorf("invalid arxiv category %q", cat)
		}
	}
	floor, err := c.FloorDate()
	if err != nil {
		return err
	}
	if c.Crawler.StartDate != "" {
		start, err := c.StartDate()
		if err != nil {
			return err
		}
		if start.Before(floor) {
			return fmt.Errorf("crawler.start_date %s is before crawler.floor_date %s",
				c.Crawler.StartDate, c.Crawler.FloorDate)
		}
	}
	if c.Crawler.RequestsPerSecond <= 0 {
		return fmt.Errorf("crawler.requests_per_second must be > 0")
	}
	if c.Crawler.BatchSize <= 0 {
		return fmt.Errorf("crawler.batch_size must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Arxiv.TimeoutSeconds <= 0 {
		return fmt.Errorf("arxiv.timeout_seconds must be > 0")
	}
	switch c.Archive.Provider {
	case "noop":
	case "local":
		if c.Archive.LocalDir == "" {
			return fmt.Errorf("archive.local_dir must be set for the local provider")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set for the gcs provider")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	return nil
}

// FloorDate parses crawler.floor_date.
func (c Config) FloorDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", c.Crawler.FloorDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse crawler.floor_date: %w", err)
	}
	return t, nil
}

// StartDate parses crawler.start_date; the zero time means "yesterday".
func (c Config) StartDate() (time.Time, error) {
	if c.Crawler.StartDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", c.Crawler.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse crawler.start_date: %w", err)
	}
	return t, nil
}

// BaseDelay converts crawler.base_delay_ms to a duration.
func (c Config) BaseDelay() time.Duration {
	return time.Duration(c.Crawler.BaseDelayMs) * time.Millisecond
}

// MaxDelay converts crawler.max_delay_ms to a duration.
func (c Config) MaxDelay() time.Duration {
	return time.Duration(c.Crawler.MaxDelayMs) * time.Millisecond
}

// ArxivTimeout converts arxiv.timeout_seconds to a duration.
func (c Config) ArxivTimeout() time.Duration {
	return time.Duration(c.Arxiv.TimeoutSeconds) * time.Second
}
