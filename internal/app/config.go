package app

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coreconfig "github.com/m3rciful/chanpost/core/config"
	coredatabase "github.com/m3rciful/chanpost/core/database"
)

// PostingConfig tunes the channel-posting flows.
type PostingConfig struct {
	// PageSize is the number of channels per page in the selection keyboard.
	PageSize int `yaml:"page_size" envconfig:"POSTING_PAGE_SIZE"`
	// SessionTTL is how long an idle conversation survives before the reaper drops it.
	SessionTTL time.Duration `yaml:"session_ttl" envconfig:"POSTING_SESSION_TTL"`
}

// Config aggregates core settings with the bot specific sections.
type Config struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
	Posting  PostingConfig       `yaml:"posting"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Core
}

const (
	defaultPageSize   = 12
	defaultSessionTTL = 30 * time.Minute
)

// LoadConfig reads configuration from a YAML file and environment variables.
func LoadConfig(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if cfg.Posting.PageSize <= 0 {
		cfg.Posting.PageSize = defaultPageSize
	}
	if cfg.Posting.SessionTTL <= 0 {
		cfg.Posting.SessionTTL = defaultSessionTTL
	}

	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	return &cfg, nil
}
