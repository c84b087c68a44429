package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/issue-tracker/pkg/util"
)

func validConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{
			IntakeSweepMinutes:  1,
			ReconcileSweepHours: 4,
			SweepParallelism:    4,
		},
	}
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero intake interval", mutate: func(c *Config) { c.Tracker.IntakeSweepMinutes = 0 }},
		{name: "negative reconcile interval", mutate: func(c *Config) { c.Tracker.ReconcileSweepHours = -1 }},
		{name: "zero parallelism", mutate: func(c *Config) { c.Tracker.SweepParallelism = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, util.IsConfiguration(err))
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 1, cfg.Tracker.IntakeSweepMinutes)
	require.Equal(t, 4, cfg.Tracker.ReconcileSweepHours)
	require.Equal(t, time.Minute, cfg.Tracker.IntakePeriod())
	require.Equal(t, 4*time.Hour, cfg.Tracker.ReconcilePeriod())
	require.Equal(t, "INBOX", cfg.Mailbox.Folder)
	require.Equal(t, "https://api.gitscrum.com", cfg.GitScrum.BaseURL)
}

func TestLoadRejectsInvalidSweepInterval(t *testing.T) {
	t.Setenv("CHECK_DURATION_HOURS", "0")

	_, err := Load()
	require.Error(t, err)
	require.True(t, util.IsConfiguration(err))
}
