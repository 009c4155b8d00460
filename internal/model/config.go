package model

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete run configuration.
// It is passed explicitly to every component; nothing reads ambient state.
type Config struct {
	Listing      ListingConfig      `yaml:"listing" mapstructure:"listing"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Retry        RetryConfig        `yaml:"retry" mapstructure:"retry"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Extract      ExtractConfig      `yaml:"extract" mapstructure:"extract"`
	Run          RunConfig          `yaml:"run" mapstructure:"run"`
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	Sink         SinkConfig         `yaml:"sink" mapstructure:"sink"`
	Schedule     ScheduleConfig     `yaml:"schedule" mapstructure:"schedule"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// ListingConfig locates the listing page
type ListingConfig struct {
	URL     string `yaml:"url" mapstructure:"url" validate:"required,url"`
	BaseURL string `yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"` // Origin for relative links; defaults to the listing origin
	Pages   int    `yaml:"pages" mapstructure:"pages" validate:"min=1,max=50"`
}

// HTTPConfig controls page fetching
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"` // Per request
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent" validate:"required"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy     string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// ConcurrencyConfig bounds the detail page fan-out
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers" validate:"min=1,max=256"`
}

// RateLimitingConfig is applied per domain
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size" validate:"min=1"`
}

// RetryConfig is the caller-side retry policy for fetches
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1,max=10"`
	InitialDelay time.Duration `yaml:"initial_delay" mapstructure:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay" mapstructure:"max_delay"`
}

// CacheConfig controls the detail page cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ExtractConfig controls record extraction
type ExtractConfig struct {
	// FieldIsolation degrades only the field whose anchor is missing.
	// When false a missing meta or content block degrades the whole record.
	FieldIsolation bool   `yaml:"field_isolation" mapstructure:"field_isolation"`
	Layout         Layout `yaml:"layout" mapstructure:"layout"`
}

// Layout names the CSS selectors of the structural anchors
type Layout struct {
	ListItem    string `yaml:"list_item" mapstructure:"list_item" validate:"required"`
	Quote       string `yaml:"quote" mapstructure:"quote" validate:"required"`
	QuoteLink   string `yaml:"quote_link" mapstructure:"quote_link" validate:"required"`
	Description string `yaml:"description" mapstructure:"description" validate:"required"`
	Meta        string `yaml:"meta" mapstructure:"meta" validate:"required"`
	MetaLink    string `yaml:"meta_link" mapstructure:"meta_link" validate:"required"`
	Content     string `yaml:"content" mapstructure:"content" validate:"required"`
	LabelImage  string `yaml:"label_image" mapstructure:"label_image" validate:"required"`
}

// RunConfig controls a single pipeline run
type RunConfig struct {
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`                 // Discovery + harvest deadline
	PersistTimeout time.Duration `yaml:"persist_timeout" mapstructure:"persist_timeout" validate:"gt=0"` // Merge + persist deadline
	ArtifactDir    string        `yaml:"artifact_dir" mapstructure:"artifact_dir"`                       // Empty disables batch artifacts
	LockFile       string        `yaml:"lock_file" mapstructure:"lock_file"`                             // Empty disables the cross-process lock
	LockStaleAfter time.Duration `yaml:"lock_stale_after" mapstructure:"lock_stale_after"`
}

// StoreConfig selects the historical store backend
type StoreConfig struct {
	Backend  string              `yaml:"backend" mapstructure:"backend" validate:"oneof=file drive postgres"`
	Path     string              `yaml:"path" mapstructure:"path"`
	Drive    DriveStoreConfig    `yaml:"drive" mapstructure:"drive"`
	Postgres PostgresStoreConfig `yaml:"postgres" mapstructure:"postgres"`
}

// DriveStoreConfig locates the corpus file on Google Drive
type DriveStoreConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	FolderID        string `yaml:"folder_id" mapstructure:"folder_id"`
	FileName        string `yaml:"file_name" mapstructure:"file_name"`
}

// PostgresStoreConfig locates the corpus table
type PostgresStoreConfig struct {
	URL   string `yaml:"url" mapstructure:"url"`
	Table string `yaml:"table" mapstructure:"table"`
}

// SinkConfig selects where harvested batches are handed off
type SinkConfig struct {
	Backend string          `yaml:"backend" mapstructure:"backend" validate:"oneof=none log kafka"`
	Kafka   KafkaSinkConfig `yaml:"kafka" mapstructure:"kafka"`
}

// KafkaSinkConfig addresses the ingestion topic
type KafkaSinkConfig struct {
	Brokers      []string      `yaml:"brokers" mapstructure:"brokers"`
	Topic        string        `yaml:"topic" mapstructure:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ScheduleConfig drives the `schedule` command
type ScheduleConfig struct {
	Cron       string `yaml:"cron" mapstructure:"cron" validate:"required"`
	RunOnStart bool   `yaml:"run_on_start" mapstructure:"run_on_start"`
}

// ServerConfig drives the `serve` command
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" mapstructure:"format" validate:"oneof=console json"`
}

// DefaultLayout returns the selectors of the PolitiFact fact-check pages
func DefaultLayout() Layout {
	return Layout{
		ListItem:    "li.o-listicle__item",
		Quote:       "div.m-statement__quote",
		QuoteLink:   "a",
		Description: "div.m-statement__desc",
		Meta:        "div.m-statement__meta",
		MetaLink:    "a",
		Content:     "div.m-statement__content",
		LabelImage:  "img.c-image__original",
	}
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Listing: ListingConfig{
			URL:   "https://www.politifact.com/factchecks/list",
			Pages: 1,
		},
		HTTP: HTTPConfig{
			Timeout:       20 * time.Second,
			UserAgent:     "factharvest/0.1 (+https://github.com/ppiankov/factharvest)",
			MaxBodyBytes:  4_000_000,
			RespectRobots: true,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 8,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 4,
			BurstSize:         4,
		},
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       ".factharvest/cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   12 * time.Hour,
		},
		Extract: ExtractConfig{
			FieldIsolation: true,
			Layout:         DefaultLayout(),
		},
		Run: RunConfig{
			Timeout:        5 * time.Minute,
			PersistTimeout: 2 * time.Minute,
			ArtifactDir:    "artifacts",
			LockFile:       ".factharvest/run.lock",
			LockStaleAfter: 30 * time.Minute,
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "data_full.csv",
			Drive: DriveStoreConfig{
				FileName: "data_full.csv",
			},
			Postgres: PostgresStoreConfig{
				Table: "fact_checks",
			},
		},
		Sink: SinkConfig{
			Backend: "log",
			Kafka: KafkaSinkConfig{
				Topic:        "fact-checks",
				WriteTimeout: 10 * time.Second,
			},
		},
		Schedule: ScheduleConfig{
			Cron: "0 6 * * *",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// tableNamePattern restricts the Postgres table name, which is interpolated into SQL
var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// ErrInvalidConfig wraps every configuration validation failure
var ErrInvalidConfig = errors.New("invalid config")

// Validate checks struct constraints and backend-specific requirements
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.Store.Backend {
	case "file":
		if c.Store.Path == "" {
			return fmt.Errorf("%w: store.path is required for the file backend", ErrInvalidConfig)
		}
	case "drive":
		if c.Store.Drive.FolderID == "" || c.Store.Drive.FileName == "" {
			return fmt.Errorf("%w: store.drive.folder_id and store.drive.file_name are required for the drive backend", ErrInvalidConfig)
		}
	case "postgres":
		if c.Store.Postgres.URL == "" {
			return fmt.Errorf("%w: store.postgres.url is required for the postgres backend", ErrInvalidConfig)
		}
		if !tableNamePattern.MatchString(c.Store.Postgres.Table) {
			return fmt.Errorf("%w: store.postgres.table %q must match %s", ErrInvalidConfig, c.Store.Postgres.Table, tableNamePattern)
		}
	}

	if c.Sink.Backend == "kafka" && (len(c.Sink.Kafka.Brokers) == 0 || c.Sink.Kafka.Topic == "") {
		return fmt.Errorf("%w: sink.kafka.brokers and sink.kafka.topic are required for the kafka sink", ErrInvalidConfig)
	}

	if c.Cache.Enabled && c.Cache.Dir == "" {
		return fmt.Errorf("%w: cache.dir is required when the cache is enabled", ErrInvalidConfig)
	}

	return nil
}
