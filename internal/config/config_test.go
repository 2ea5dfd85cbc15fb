package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/incidents_test")
	t.Setenv("JWT_ACCESS_SECRET", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Pipeline.Stride != 30 {
		t.Errorf("Pipeline.Stride = %d, want 30", cfg.Pipeline.Stride)
	}
	if cfg.Pipeline.Cooldown != 10*time.Second {
		t.Errorf("Pipeline.Cooldown = %v, want 10s", cfg.Pipeline.Cooldown)
	}
	if cfg.Analyzer.Timeout != 15*time.Second {
		t.Errorf("Analyzer.Timeout = %v, want 15s", cfg.Analyzer.Timeout)
	}
	if cfg.Locator.Timeout != 10*time.Second {
		t.Errorf("Locator.Timeout = %v, want 10s", cfg.Locator.Timeout)
	}
	if cfg.Locator.MinConfidence != 0.5 {
		t.Errorf("Locator.MinConfidence = %v, want 0.5", cfg.Locator.MinConfidence)
	}
	if cfg.Alerts.KafkaTopic != "incident-events" {
		t.Errorf("Alerts.KafkaTopic = %q, want incident-events", cfg.Alerts.KafkaTopic)
	}
}

func TestLoadLocatorTimeoutOverride(t *testing.T) {
	t.Setenv("DB_DSN", "postgres://localhost/incidents_test")
	t.Setenv("JWT_ACCESS_SECRET", "test-secret")
	t.Setenv("LOCATOR_TIMEOUT", "3s")
	t.Setenv("ANALYZER_TIMEOUT", "20s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// The locator timeout is independent of the analyzer's.
	if cfg.Locator.Timeout != 3*time.Second {
		t.Errorf("Locator.Timeout = %v, want 3s", cfg.Locator.Timeout)
	}
	if cfg.Analyzer.Timeout != 20*time.Second {
		t.Errorf("Analyzer.Timeout = %v, want 20s", cfg.Analyzer.Timeout)
	}
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("JWT_ACCESS_SECRET", "test-secret")
	t.Setenv("DB_DSN", "")

	if _, err := Load(); err == nil {
		t.Error("Load() with empty DB_DSN: expected error")
	}

	t.Setenv("DB_DSN", "postgres://localhost/incidents_test")
	t.Setenv("PIPELINE_ESCALATE_THRESHOLD", "0.9")
	t.Setenv("PIPELINE_CRASH_THRESHOLD", "0.7")

	if _, err := Load(); err == nil {
		t.Error("Load() with escalate threshold above crash threshold: expected error")
	}
}
