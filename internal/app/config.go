package app

import (
	coreconfig "github.com/m3rciful/eventbot/core/config"
	"github.com/m3rciful/eventbot/core/database"
	"github.com/m3rciful/eventbot/internal/shortener"
)

// DialogueConfig tunes the add-event conversation.
type DialogueConfig struct {
	ValidateDates bool `yaml:"validate_dates" envconfig:"DIALOGUE_VALIDATE_DATES"`
}

// Config is the full configuration of the event bot.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database  database.Config  `yaml:"database"`
	Shortener shortener.Config `yaml:"shortener"`
	Dialogue  DialogueConfig   `yaml:"dialogue"`
}

// CoreConfig exposes the shared bot settings.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML file at path, overlays environment variables and
// validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates every section and fills defaults.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}
	return c.Shortener.Normalize()
}
