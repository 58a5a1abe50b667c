package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := loadConfig(envOf(nil))
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Tier != domain.TierCommunity || cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected community defaults, got %s/%s", cfg.Tier, cfg.Repository.Driver)
		}
	})

	t.Run("ProWithOverrides", func(t *testing.T) {
		cfg, err := loadConfig(envOf(map[string]string{
			"KESTREL_TIER":          "pro",
			"KESTREL_PORT":          "9090",
			"KESTREL_BUS":           "kafka",
			"KESTREL_KAFKA_BROKERS": "k1:9092, k2:9092,",
			"KESTREL_SEED":          "42",
			"KESTREL_STREAM_RATE":   "2.5",
			"KESTREL_HUB_DEGREE":    "6",
			"KESTREL_PATTERN_BREAK": "true",
		}))
		if err != nil {
			t.Fatalf("loadConfig failed: %v", err)
		}
		if cfg.Tier != domain.TierPro || cfg.Repository.Driver != "postgres" {
			t.Errorf("expected pro tier, got %s/%s", cfg.Tier, cfg.Repository.Driver)
		}
		if cfg.Server.Port != 9090 || cfg.EventBus.Type != "kafka" {
			t.Errorf("overrides not applied: port %d bus %s", cfg.Server.Port, cfg.EventBus.Type)
		}
		if len(cfg.EventBus.KafkaBrokers) != 2 || cfg.EventBus.KafkaBrokers[1] != "k2:9092" {
			t.Errorf("unexpected brokers %v", cfg.EventBus.KafkaBrokers)
		}
		if cfg.Simulation.Seed != 42 || cfg.Stream.Rate != 2.5 || cfg.Graph.HubDegreeThreshold != 6 {
			t.Errorf("numeric overrides not applied: %+v", cfg)
		}
		if !cfg.Scoring.EnablePatternBreak {
			t.Error("expected pattern break enabled")
		}
	})

	t.Run("MalformedValues", func(t *testing.T) {
		_, err := loadConfig(envOf(map[string]string{
			"KESTREL_PORT":  "eighty",
			"KESTREL_SEED":  "x",
			"KESTREL_DEBUG": "ignored",
		}))
		if err == nil {
			t.Fatal("expected error")
		}
		for _, key := range []string{"KESTREL_PORT", "KESTREL_SEED"} {
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error should name %s: %v", key, err)
			}
		}
	})
}

func TestLoadConfigStreamRate(t *testing.T) {
	for _, rate := range []string{"1e10", "0", "-2"} {
		_, err := loadConfig(envOf(map[string]string{"KESTREL_STREAM_RATE": rate}))
		if !errors.Is(err, domain.ErrInvalidInput) || !strings.Contains(err.Error(), "KESTREL_STREAM_RATE") {
			t.Errorf("rate %s: expected invalid KESTREL_STREAM_RATE, got %v", rate, err)
		}
	}
}

func TestNewLogger(t *testing.T) {
	ctx := t.Context()
	if newLogger(domain.LoggingConfig{Level: "warn"}, false).Enabled(ctx, -4) {
		t.Error("warn logger should not emit debug")
	}
	if !newLogger(domain.LoggingConfig{Level: "warn", Format: "text"}, true).Enabled(ctx, -4) {
		t.Error("debug flag should force debug level")
	}
}
