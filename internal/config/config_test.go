package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Generator.Variants)
	assert.Equal(t, 5*time.Minute, cfg.Poll.WaitBudget)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "simulation", cfg.Topics.Requests)
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "simloop.yaml")
	yamlDoc := `
server:
  port: 9090
generator:
  variants: 4
  strategy: fixed
poll:
  interval: 1s
retry:
  model_fetch:
    max_attempts: 5
    initial_delay: 100ms
    max_delay: 1s
    backoff_multiplier: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Generator.Variants)
	assert.Equal(t, "fixed", cfg.Generator.Strategy)
	assert.Equal(t, time.Second, cfg.Poll.Interval)
	assert.Equal(t, 5*time.Minute, cfg.Poll.WaitBudget, "unset keys keep defaults")
	assert.Equal(t, 5, cfg.RetryFor("model_fetch").MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryFor("model_fetch").InitialDelay)
	assert.Equal(t, 3, cfg.RetryFor("publish").MaxAttempts)
	assert.Equal(t, cfg.RetryFor("store"), cfg.RetryFor("unknown"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SIMLOOP_PORT":          "7000",
		"NUM_TESTS":             "12",
		"SIMLOOP_POLL_BUDGET":   "90s",
		"SIMLOOP_LOG_LEVEL":     "debug",
		"SIMLOOP_POLL_INTERVAL": "bogus",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Generator.Variants)
	assert.Equal(t, 90*time.Second, cfg.Poll.WaitBudget)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval, "malformed duration keeps previous value")
	assert.Equal(t, "debug", cfg.Logging.Level)

	env["SIMLOOP_PORT"] = "eighty"
	assert.Error(t, Default().applyEnv(lookup))
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero variants", func(c *Config) { c.Generator.Variants = 0 }},
		{"inverted normal range", func(c *Config) { c.Generator.NormalMax = 0.01 }},
		{"inverted outlier count", func(c *Config) { c.Generator.MinOutliers = 4 }},
		{"unknown strategy", func(c *Config) { c.Generator.Strategy = "bandit" }},
		{"same validation topics", func(c *Config) { c.Topics.ValidationFailure = c.Topics.ValidationSuccess }},
		{"no validators", func(c *Config) { c.Workers.Validator = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"budget below interval", func(c *Config) { c.Poll.WaitBudget = time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
