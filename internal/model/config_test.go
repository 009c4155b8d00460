package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing listing url", func(c *Config) { c.Listing.URL = "" }},
		{"zero workers", func(c *Config) { c.Concurrency.Workers = 0 }},
		{"unknown store", func(c *Config) { c.Store.Backend = "s3" }},
		{"unknown sink", func(c *Config) { c.Sink.Backend = "hopsworks" }},
		{"file store without path", func(c *Config) { c.Store.Path = "" }},
		{"drive store without folder", func(c *Config) { c.Store.Backend = "drive" }},
		{"postgres store without url", func(c *Config) { c.Store.Backend = "postgres" }},
		{"postgres table injection", func(c *Config) {
			c.Store.Backend = "postgres"
			c.Store.Postgres.URL = "postgres://localhost/facts"
			c.Store.Postgres.Table = "facts; drop table x"
		}},
		{"kafka sink without brokers", func(c *Config) { c.Sink.Backend = "kafka" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"missing layout selector", func(c *Config) { c.Extract.Layout.Quote = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestConfig_Validate_Backends(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.Backend = "drive"
	cfg.Store.Drive.FolderID = "folder"
	cfg.Sink.Backend = "kafka"
	cfg.Sink.Kafka.Brokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.Validate())

	cfg.Store.Backend = "postgres"
	cfg.Store.Postgres.URL = "postgres://localhost/facts"
	assert.NoError(t, cfg.Validate())
}
