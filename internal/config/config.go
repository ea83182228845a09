package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/utils"
)

// Config carries the tunable policy for the grading pipeline. Values come
// from an optional YAML file (CONFIG_PATH), with env vars taking precedence
// over both the file and the defaults.
type Config struct {
	Worker  WorkerConfig  `yaml:"worker"`
	Grading GradingConfig `yaml:"grading"`
}

type WorkerConfig struct {
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	MaxAttempts         int `yaml:"max_attempts"`
	RetryDelaySeconds   int `yaml:"retry_delay_seconds"`
	StaleRunningSeconds int `yaml:"stale_running_seconds"`
}

type GradingConfig struct {
	AITimeoutSeconds int `yaml:"ai_timeout_seconds"`
	AIConcurrency    int `yaml:"ai_concurrency"`
}

func Default() Config {
	return Config{
		Worker: WorkerConfig{
			PollIntervalSeconds: 1,
			MaxAttempts:         5,
			RetryDelaySeconds:   30,
			StaleRunningSeconds: 120,
		},
		Grading: GradingConfig{
			AITimeoutSeconds: 30,
			AIConcurrency:    4,
		},
	}
}

// Load reads CONFIG_PATH when set, then applies env overrides. A missing
// file is not an error; a malformed one is.
func Load(log *logger.Logger) (Config, error) {
	cfg := Default()

	path := utils.GetEnv("CONFIG_PATH", "", log)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config file %q: %w", path, err)
			}
			if log != nil {
				log.Warn("Config file not found, using defaults", "path", path)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}

	cfg.Worker.PollIntervalSeconds = utils.GetEnvAsInt("GRADING_WORKER_POLL_SECONDS", cfg.Worker.PollIntervalSeconds, log)
	cfg.Worker.MaxAttempts = utils.GetEnvAsInt("GRADING_WORKER_MAX_ATTEMPTS", cfg.Worker.MaxAttempts, log)
	cfg.Worker.RetryDelaySeconds = utils.GetEnvAsInt("GRADING_WORKER_RETRY_DELAY_SECONDS", cfg.Worker.RetryDelaySeconds, log)
	cfg.Worker.StaleRunningSeconds = utils.GetEnvAsInt("GRADING_WORKER_STALE_SECONDS", cfg.Worker.StaleRunningSeconds, log)
	cfg.Grading.AITimeoutSeconds = utils.GetEnvAsInt("GRADING_AI_TIMEOUT_SECONDS", cfg.Grading.AITimeoutSeconds, log)
	cfg.Grading.AIConcurrency = utils.GetEnvAsInt("GRADING_AI_CONCURRENCY", cfg.Grading.AIConcurrency, log)

	if cfg.Worker.MaxAttempts < 1 {
		cfg.Worker.MaxAttempts = 1
	}
	if cfg.Grading.AIConcurrency < 1 {
		cfg.Grading.AIConcurrency = 1
	}

	return cfg, nil
}

func (w WorkerConfig) PollInterval() time.Duration { return seconds(w.PollIntervalSeconds, time.Second) }
func (w WorkerConfig) RetryDelay() time.Duration   { return seconds(w.RetryDelaySeconds, 30*time.Second) }
func (w WorkerConfig) StaleRunning() time.Duration {
	return seconds(w.StaleRunningSeconds, 2*time.Minute)
}
func (g GradingConfig) AITimeout() time.Duration { return seconds(g.AITimeoutSeconds, 30*time.Second) }

func seconds(v int, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return time.Duration(v) * time.Second
}
