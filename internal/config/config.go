// Package config loads simloop settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go-sim-loop/internal/model"
	"go-sim-loop/pkg/utils"

	"gopkg.in/yaml.v3"
)

// Config contains every simloop setting.
type Config struct {
	Server    ServerConfig                 `yaml:"server"`
	Database  DatabaseConfig               `yaml:"database"`
	Models    ModelsConfig                 `yaml:"models"`
	Topics    TopicsConfig                 `yaml:"topics"`
	Workers   WorkersConfig                `yaml:"workers"`
	Generator GeneratorConfig              `yaml:"generator"`
	Bus       BusConfig                    `yaml:"bus"`
	Retry     map[string]model.RetryConfig `yaml:"retry"`
	Poll      PollConfig                   `yaml:"poll"`
	Logging   LoggingConfig                `yaml:"logging"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ModelsConfig controls where uploaded simulation models live and for how long.
type ModelsConfig struct {
	Dir             string        `yaml:"dir"`
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// TopicsConfig names the four loop topics.
type TopicsConfig struct {
	Requests          string `yaml:"requests"`
	Results           string `yaml:"results"`
	ValidationSuccess string `yaml:"validation_success"`
	ValidationFailure string `yaml:"validation_failure"`
}

// WorkersConfig sets how many replicas of each stage consume their topic.
type WorkersConfig struct {
	Executor  int `yaml:"executor"`
	Validator int `yaml:"validator"`
	Generator int `yaml:"generator"`
}

// GeneratorConfig configures variant generation.
type GeneratorConfig struct {
	// Variants is N, the number of siblings generated per failing user request.
	Variants int `yaml:"variants"`
	// Strategy selects the VariationStrategy: "random" (default) or "fixed".
	Strategy string `yaml:"strategy"`
	// Seed makes the random strategy reproducible when non-zero.
	Seed        int64   `yaml:"seed"`
	NormalMin   float64 `yaml:"normal_min"`
	NormalMax   float64 `yaml:"normal_max"`
	OutlierMin  float64 `yaml:"outlier_min"`
	OutlierMax  float64 `yaml:"outlier_max"`
	MinOutliers int     `yaml:"min_outliers"`
	MaxOutliers int     `yaml:"max_outliers"`
}

type BusConfig struct {
	RedeliveryDelay time.Duration `yaml:"redelivery_delay"`
	MaxRedeliveries int           `yaml:"max_redeliveries"`
}

// PollConfig holds the completion-notification defaults.
type PollConfig struct {
	// WaitBudget is how long a caller waits before reporting a timeout.
	WaitBudget time.Duration `yaml:"wait_budget"`
	// Interval is the caller-side polling period.
	Interval time.Duration `yaml:"interval"`
	// MaxLongPoll caps the server-side ?wait= parameter.
	MaxLongPoll time.Duration `yaml:"max_long_poll"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Database: DatabaseConfig{Path: "simloop.db"},
		Models: ModelsConfig{
			Dir:             "state/models",
			Retention:       24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Topics: TopicsConfig{
			Requests:          "simulation",
			Results:           "simulation-results",
			ValidationSuccess: "validation-success",
			ValidationFailure: "validation-failure",
		},
		Workers: WorkersConfig{Executor: 4, Validator: 2, Generator: 1},
		Generator: GeneratorConfig{
			Variants:    10,
			Strategy:    "random",
			NormalMin:   0.02,
			NormalMax:   0.20,
			OutlierMin:  0.10,
			OutlierMax:  0.30,
			MinOutliers: 1,
			MaxOutliers: 3,
		},
		Bus: BusConfig{RedeliveryDelay: 500 * time.Millisecond, MaxRedeliveries: 10},
		Retry: map[string]model.RetryConfig{
			"model_fetch": {MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, BackoffMultiplier: 2.0, Jitter: true},
			"publish":     {MaxAttempts: 3, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, BackoffMultiplier: 2.0, Jitter: true},
			"store":       {MaxAttempts: 3, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffMultiplier: 1.5},
		},
		Poll: PollConfig{
			WaitBudget:  5 * time.Minute,
			Interval:    3 * time.Second,
			MaxLongPoll: time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from SIMLOOP_* variables. NUM_TESTS is honoured
// as an alias for the variant count.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(name); ok {
			*dst = utils.ParseDuration(v, *dst)
		}
	}

	str("SIMLOOP_DB_PATH", &c.Database.Path)
	str("SIMLOOP_MODELS_DIR", &c.Models.Dir)
	str("SIMLOOP_LOG_LEVEL", &c.Logging.Level)
	str("SIMLOOP_LOG_FORMAT", &c.Logging.Format)
	str("SIMLOOP_TOPIC_REQUESTS", &c.Topics.Requests)
	str("SIMLOOP_TOPIC_RESULTS", &c.Topics.Results)
	str("SIMLOOP_TOPIC_SUCCESS", &c.Topics.ValidationSuccess)
	str("SIMLOOP_TOPIC_FAILURE", &c.Topics.ValidationFailure)
	str("SIMLOOP_STRATEGY", &c.Generator.Strategy)
	dur("SIMLOOP_MODEL_RETENTION", &c.Models.Retention)
	dur("SIMLOOP_POLL_BUDGET", &c.Poll.WaitBudget)
	dur("SIMLOOP_POLL_INTERVAL", &c.Poll.Interval)

	ints := []struct {
		name string
		dst  *int
	}{
		{"SIMLOOP_PORT", &c.Server.Port},
		{"NUM_TESTS", &c.Generator.Variants},
		{"SIMLOOP_VARIANTS", &c.Generator.Variants},
		{"SIMLOOP_EXECUTOR_WORKERS", &c.Workers.Executor},
	}
	for _, e := range ints {
		if err := num(e.name, e.dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the settings for values the loop cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Generator.Variants < 1 {
		errs = append(errs, fmt.Errorf("generator.variants must be at least 1, got %d", c.Generator.Variants))
	}
	g := c.Generator
	if g.NormalMin < 0 || g.NormalMax < g.NormalMin {
		errs = append(errs, fmt.Errorf("generator normal range invalid: [%v, %v]", g.NormalMin, g.NormalMax))
	}
	if g.OutlierMin < 0 || g.OutlierMax < g.OutlierMin {
		errs = append(errs, fmt.Errorf("generator outlier range invalid: [%v, %v]", g.OutlierMin, g.OutlierMax))
	}
	if g.MinOutliers < 0 || g.MaxOutliers < g.MinOutliers {
		errs = append(errs, fmt.Errorf("generator outlier count invalid: [%d, %d]", g.MinOutliers, g.MaxOutliers))
	}
	switch g.Strategy {
	case "random", "fixed":
	default:
		errs = append(errs, fmt.Errorf("generator.strategy unknown: %q", g.Strategy))
	}
	t := c.Topics
	if t.Requests == "" || t.Results == "" || t.ValidationSuccess == "" || t.ValidationFailure == "" {
		errs = append(errs, errors.New("all topic names must be set"))
	}
	if t.ValidationSuccess == t.ValidationFailure {
		errs = append(errs, errors.New("validation success and failure topics must differ"))
	}
	if c.Workers.Executor < 1 || c.Workers.Validator < 1 || c.Workers.Generator < 1 {
		errs = append(errs, fmt.Errorf("every stage needs at least one worker: %+v", c.Workers))
	}
	if c.Poll.Interval <= 0 || c.Poll.WaitBudget < c.Poll.Interval {
		errs = append(errs, fmt.Errorf("poll settings invalid: interval %v, budget %v", c.Poll.Interval, c.Poll.WaitBudget))
	}
	return errors.Join(errs...)
}

// RetryFor returns the retry settings for an operation type, falling back to
// the "store" settings.
func (c *Config) RetryFor(op string) model.RetryConfig {
	if rc, ok := c.Retry[op]; ok {
		return rc
	}
	return Default().Retry["store"]
}
