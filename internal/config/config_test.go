package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Worker.MaxAttempts != 5 {
		t.Fatalf("max attempts: want=5 got=%d", cfg.Worker.MaxAttempts)
	}
	if got := cfg.Worker.PollInterval(); got != time.Second {
		t.Fatalf("poll interval: want=1s got=%v", got)
	}
	if got := cfg.Worker.RetryDelay(); got != 30*time.Second {
		t.Fatalf("retry delay: want=30s got=%v", got)
	}
	if got := cfg.Worker.StaleRunning(); got != 2*time.Minute {
		t.Fatalf("stale running: want=2m got=%v", got)
	}
	if got := cfg.Grading.AITimeout(); got != 30*time.Second {
		t.Fatalf("ai timeout: want=30s got=%v", got)
	}
	if cfg.Grading.AIConcurrency != 4 {
		t.Fatalf("ai concurrency: want=4 got=%d", cfg.Grading.AIConcurrency)
	}
}

func TestDurationAccessorsFallBackOnZero(t *testing.T) {
	w := WorkerConfig{}
	if got := w.PollInterval(); got != time.Second {
		t.Fatalf("zero poll interval: want=1s got=%v", got)
	}
	if got := w.RetryDelay(); got != 30*time.Second {
		t.Fatalf("zero retry delay: want=30s got=%v", got)
	}
	g := GradingConfig{AITimeoutSeconds: -5}
	if got := g.AITimeout(); got != 30*time.Second {
		t.Fatalf("negative ai timeout: want=30s got=%v", got)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GRADING_WORKER_MAX_ATTEMPTS", "7")
	t.Setenv("GRADING_WORKER_RETRY_DELAY_SECONDS", "90")
	t.Setenv("GRADING_AI_CONCURRENCY", "2")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.MaxAttempts != 7 {
		t.Fatalf("max attempts: want=7 got=%d", cfg.Worker.MaxAttempts)
	}
	if got := cfg.Worker.RetryDelay(); got != 90*time.Second {
		t.Fatalf("retry delay: want=90s got=%v", got)
	}
	if cfg.Grading.AIConcurrency != 2 {
		t.Fatalf("ai concurrency: want=2 got=%d", cfg.Grading.AIConcurrency)
	}
	// Untouched keys keep their defaults.
	if cfg.Worker.PollIntervalSeconds != 1 {
		t.Fatalf("poll seconds: want=1 got=%d", cfg.Worker.PollIntervalSeconds)
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte("worker:\n  max_attempts: 9\n  retry_delay_seconds: 45\ngrading:\n  ai_timeout_seconds: 15\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("GRADING_WORKER_MAX_ATTEMPTS", "2")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.MaxAttempts != 2 {
		t.Fatalf("env must beat file: want=2 got=%d", cfg.Worker.MaxAttempts)
	}
	if cfg.Worker.RetryDelaySeconds != 45 {
		t.Fatalf("retry delay from file: want=45 got=%d", cfg.Worker.RetryDelaySeconds)
	}
	if cfg.Grading.AITimeoutSeconds != 15 {
		t.Fatalf("ai timeout from file: want=15 got=%d", cfg.Grading.AITimeoutSeconds)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "nope.yaml"))

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.MaxAttempts != 5 {
		t.Fatalf("max attempts: want=5 got=%d", cfg.Worker.MaxAttempts)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("worker: [not a map"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	if _, err := Load(nil); err == nil {
		t.Fatalf("malformed config accepted")
	}
}

func TestLoadFloors(t *testing.T) {
	t.Setenv("GRADING_WORKER_MAX_ATTEMPTS", "0")
	t.Setenv("GRADING_AI_CONCURRENCY", "-3")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Worker.MaxAttempts != 1 {
		t.Fatalf("max attempts floor: want=1 got=%d", cfg.Worker.MaxAttempts)
	}
	if cfg.Grading.AIConcurrency != 1 {
		t.Fatalf("ai concurrency floor: want=1 got=%d", cfg.Grading.AIConcurrency)
	}
}
