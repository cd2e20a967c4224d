// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Schedules accepted by crawler.schedule.
const (
	ScheduleBatched   = "batched"
	ScheduleStreaming = "streaming"
)

// Renderer modes accepted by renderer.mode.
const (
	RendererHeadless = "headless"
	RendererStatic   = "static"
)

// Output backends accepted by output.backend.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Output    OutputConfig    `mapstructure:"output"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// DiscoveryConfig locates the seed listing and filters its links.
type DiscoveryConfig struct {
	// Seed is a local path or an http(s) URL.
	Seed         string `mapstructure:"seed"`
	TargetPrefix string `mapstructure:"target_prefix"`
	// BaseURL resolves relative hrefs when the seed is a local file.
	BaseURL string `mapstructure:"base_url"`
}

// CrawlerConfig governs scheduling and politeness.
type CrawlerConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	Schedule      string        `mapstructure:"schedule"`
	UserAgent     string        `mapstructure:"user_agent"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	HostQPS       float64       `mapstructure:"host_qps"`
}

// RendererConfig configures page rendering.
type RendererConfig struct {
	Mode         string        `mapstructure:"mode"`
	WaitSelector string        `mapstructure:"wait_selector"`
	Settle       time.Duration `mapstructure:"settle"`
	ExecPath     string        `mapstructure:"exec_path"`
}

// OutputConfig sets where the URL list and metadata JSON are written.
type OutputConfig struct {
	Backend   string `mapstructure:"backend"`
	Dir       string `mapstructure:"dir"`
	Prefix    string `mapstructure:"prefix"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// PostgresConfig enables the optional record store when DSN is set.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables run-summary notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig points at an optional node-exporter textfile.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"seed":        "discovery.seed",
	"concurrency": "crawler.concurrency",
	"timeout":     "crawler.fetch_timeout",
	"schedule":    "crawler.schedule",
	"renderer":    "renderer.mode",
	"output-dir":  "output.dir",
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Load builds a Config from defaults, an optional YAML file, DOCMETA_*
// environment variables, and any flags present in flags.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCMETA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
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
	v.SetDefault("discovery.seed", "protection_briefs_doc2html.html")
	v.SetDefault("discovery.target_prefix", "https://data.unhcr.org/en/documents/details/")
	v.SetDefault("discovery.base_url", "")
	v.SetDefault("crawler.concurrency", 10)
	v.SetDefault("crawler.fetch_timeout", 30*time.Second)
	v.SetDefault("crawler.schedule", ScheduleBatched)
	v.SetDefault("crawler.user_agent", "docmeta-crawler/1.0")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.host_qps", 0)
	v.SetDefault("renderer.mode", RendererHeadless)
	v.SetDefault("renderer.wait_selector", "body")
	v.SetDefault("renderer.settle", 500*time.Millisecond)
	v.SetDefault("renderer.exec_path", "")
	v.SetDefault("output.backend", BackendLocal)
	v.SetDefault("output.dir", ".")
	v.SetDefault("output.prefix", "odp-probriefs")
	v.SetDefault("output.gcs_bucket", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "document_metadata")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.textfile", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Discovery.Seed) == "" {
		errs = append(errs, errors.New("discovery.seed is required"))
	}
	if strings.TrimSpace(c.Discovery.TargetPrefix) == "" {
		errs = append(errs, errors.New("discovery.target_prefix is required"))
	}
	if c.Crawler.Concurrency <= 0 {
		errs = append(errs, errors.New("crawler.concurrency must be > 0"))
	}
	if c.Crawler.FetchTimeout <= 0 {
		errs = append(errs, errors.New("crawler.fetch_timeout must be > 0"))
	}
	if c.Crawler.HostQPS < 0 {
		errs = append(errs, errors.New("crawler.host_qps must be >= 0"))
	}
	switch c.Crawler.Schedule {
	case ScheduleBatched, ScheduleStreaming:
	default:
		errs = append(errs, fmt.Errorf("crawler.schedule %q must be %q or %q",
			c.Crawler.Schedule, ScheduleBatched, ScheduleStreaming))
	}
	switch c.Renderer.Mode {
	case RendererHeadless, RendererStatic:
	default:
		errs = append(errs, fmt.Errorf("renderer.mode %q must be %q or %q",
			c.Renderer.Mode, RendererHeadless, RendererStatic))
	}
	if c.Renderer.Settle < 0 {
		errs = append(errs, errors.New("renderer.settle must be >= 0"))
	}
	switch c.Output.Backend {
	case BackendLocal:
	case BackendGCS:
		if c.Output.GCSBucket == "" {
			errs = append(errs, errors.New("output.gcs_bucket must be set when output.backend is gcs"))
		}
	default:
		errs = append(errs, fmt.Errorf("output.backend %q must be %q or %q",
			c.Output.Backend, BackendLocal, BackendGCS))
	}
	if strings.TrimSpace(c.Output.Prefix) == "" {
		errs = append(errs, errors.New("output.prefix is required"))
	}
	if c.Postgres.DSN != "" && !tableName.MatchString(c.Postgres.Table) {
		errs = append(errs, fmt.Errorf("postgres.table %q is not a valid identifier", c.Postgres.Table))
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.Topic == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic must be set together"))
	}
	return errors.Join(errs...)
}
