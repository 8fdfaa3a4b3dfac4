package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LearningDir != "learning" {
		t.Errorf("expected learning dir 'learning', got %q", cfg.LearningDir)
	}
	if cfg.MaxEntries != 256 || cfg.QueueCapacity != 256 || cfg.LogCap != 1000 {
		t.Errorf("unexpected bounds: %+v", cfg)
	}
	if cfg.LearningRate != 0.05 {
		t.Errorf("expected learning rate 0.05, got %g", cfg.LearningRate)
	}
	if cfg.PersistInterval != 30*time.Second {
		t.Errorf("expected 30s persist interval, got %s", cfg.PersistInterval)
	}
	if cfg.JournalDriver != JournalNone || cfg.Bandit {
		t.Errorf("expected no journal and no bandit by default, got %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NPCMIND_BANDIT", "true")
	t.Setenv("NPCMIND_EXPLORATION", "0.25")
	t.Setenv("NPCMIND_JOURNAL", " SQLite ")
	t.Setenv("NPCMIND_JOURNAL_DSN", "/tmp/journal.sqlite")
	t.Setenv("NPCMIND_PERSIST_INTERVAL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Bandit || cfg.Exploration != 0.25 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.JournalDriver != JournalSQLite {
		t.Errorf("expected sqlite driver, got %q", cfg.JournalDriver)
	}
	if cfg.PersistInterval != 5*time.Minute {
		t.Errorf("expected 5m, got %s", cfg.PersistInterval)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("NPCMIND_QUEUE_CAPACITY", "lots")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("expected parse env prefix, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"exploration", func(c *Config) { c.Exploration = 1.5 }, "NPCMIND_EXPLORATION"},
		{"learning rate", func(c *Config) { c.LearningRate = 0 }, "NPCMIND_LEARNING_RATE"},
		{"entries", func(c *Config) { c.MaxEntries = 0 }, "NPCMIND_LEARNING_MAX_ENTRIES"},
		{"queue", func(c *Config) { c.QueueCapacity = -1 }, "NPCMIND_QUEUE_CAPACITY"},
		{"driver", func(c *Config) { c.JournalDriver = "mongo" }, "unknown NPCMIND_JOURNAL"},
		{"dsn", func(c *Config) { c.JournalDriver = JournalPostgres }, "requires NPCMIND_JOURNAL_DSN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
