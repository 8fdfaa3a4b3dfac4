// Package config loads runtime settings from NPCMIND_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Journal drivers.
const (
	JournalNone     = "none"
	JournalMemory   = "memory"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// Config holds every environment-driven engine setting. Roster values
// loaded from Lua override Exploration per NPC.
type Config struct {
	LearningDir     string        `env:"NPCMIND_LEARNING_DIR"          envDefault:"learning"`
	MaxEntries      int           `env:"NPCMIND_LEARNING_MAX_ENTRIES"  envDefault:"256"`
	LearningRate    float64       `env:"NPCMIND_LEARNING_RATE"         envDefault:"0.05"`
	Exploration     float64       `env:"NPCMIND_EXPLORATION"           envDefault:"0"`
	Bandit          bool          `env:"NPCMIND_BANDIT"                envDefault:"false"`
	BanditAlpha     float64       `env:"NPCMIND_BANDIT_ALPHA"          envDefault:"0.2"`
	JournalDriver   string        `env:"NPCMIND_JOURNAL"               envDefault:"none"`
	JournalDSN      string        `env:"NPCMIND_JOURNAL_DSN"`
	PersistInterval time.Duration `env:"NPCMIND_PERSIST_INTERVAL"      envDefault:"30s"`
	QueueCapacity   int           `env:"NPCMIND_QUEUE_CAPACITY"        envDefault:"256"`
	LogCap          int           `env:"NPCMIND_LOG_CAP"               envDefault:"1000"`
	SaveDir         string        `env:"NPCMIND_SAVE_DIR"              envDefault:"."`
	Trace           bool          `env:"NPCMIND_TRACE"                 envDefault:"false"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.JournalDriver = strings.ToLower(strings.TrimSpace(cfg.JournalDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first out-of-range setting.
func (c Config) Validate() error {
	switch {
	case c.MaxEntries <= 0:
		return fmt.Errorf("NPCMIND_LEARNING_MAX_ENTRIES must be positive, got %d", c.MaxEntries)
	case c.LearningRate <= 0 || c.LearningRate > 1:
		return fmt.Errorf("NPCMIND_LEARNING_RATE must be in (0, 1], got %g", c.LearningRate)
	case c.Exploration < 0 || c.Exploration > 1:
		return fmt.Errorf("NPCMIND_EXPLORATION must be in [0, 1], got %g", c.Exploration)
	case c.BanditAlpha < 0:
		return fmt.Errorf("NPCMIND_BANDIT_ALPHA must not be negative, got %g", c.BanditAlpha)
	case c.QueueCapacity <= 0:
		return fmt.Errorf("NPCMIND_QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	case c.LogCap <= 0:
		return fmt.Errorf("NPCMIND_LOG_CAP must be positive, got %d", c.LogCap)
	case c.PersistInterval < 0:
		return fmt.Errorf("NPCMIND_PERSIST_INTERVAL must not be negative, got %s", c.PersistInterval)
	}
	switch c.JournalDriver {
	case JournalNone, JournalMemory:
	case JournalSQLite, JournalPostgres:
		if strings.TrimSpace(c.JournalDSN) == "" {
			return fmt.Errorf("NPCMIND_JOURNAL=%s requires NPCMIND_JOURNAL_DSN", c.JournalDriver)
		}
	default:
		return fmt.Errorf("unknown NPCMIND_JOURNAL driver %q", c.JournalDriver)
	}
	return nil
}
