// Package config loads the YAML configuration file and supplies defaults
// for every tunable. A missing file is not an error; the zero-config
// defaults are a fully working setup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DBPath    string          `yaml:"db_path"`
	Quadrant  QuadrantConfig  `yaml:"quadrant"`
	Energy    EnergyConfig    `yaml:"energy"`
	Overwhelm OverwhelmConfig `yaml:"overwhelm"`
	Breakdown BreakdownConfig `yaml:"breakdown"`
	Session   SessionConfig   `yaml:"session"`
	AI        AIConfig        `yaml:"ai"`
	Calendar  CalendarConfig  `yaml:"calendar"`
}

type QuadrantConfig struct {
	// Threshold is the first score counted as high. 6 means scores 6-10
	// are important (or urgent), 1-5 are not.
	Threshold int `yaml:"threshold"`
}

type EnergyConfig struct {
	// Tolerance is how far above the user's current energy a task's
	// required energy may sit and still count as eligible.
	Tolerance int `yaml:"tolerance"`
}

type OverwhelmConfig struct {
	Weights OverwhelmWeights `yaml:"weights"`

	// MediumAt and HighAt are the score boundaries between risk levels.
	MediumAt float64 `yaml:"medium_at"`
	HighAt   float64 `yaml:"high_at"`

	// TasksPerHour is the sustainable task throughput used to normalize
	// task-count pressure.
	TasksPerHour float64 `yaml:"tasks_per_hour"`

	// DeadlineClusterLimit is the 48h deadline count that saturates the
	// deadline-clustering signal.
	DeadlineClusterLimit int `yaml:"deadline_cluster_limit"`

	// DailyTaskCeiling caps how many tasks a day's plan should carry when
	// suggesting load reduction.
	DailyTaskCeiling int `yaml:"daily_task_ceiling"`
}

type OverwhelmWeights struct {
	TaskLoad     float64 `yaml:"task_load"`
	Overdue      float64 `yaml:"overdue"`
	Deadlines    float64 `yaml:"deadlines"`
	StressEnergy float64 `yaml:"stress_energy"`
}

type BreakdownConfig struct {
	ChunkMinutes       int     `yaml:"chunk_minutes"`
	TimeoutSeconds     int     `yaml:"timeout_seconds"`
	RetryBackoffMillis int     `yaml:"retry_backoff_millis"`
	MaxRetries         int     `yaml:"max_retries"`
	MaxSubtasks        int     `yaml:"max_subtasks"`
	AIConfidence       float64 `yaml:"ai_confidence"`
	FallbackConfidence float64 `yaml:"fallback_confidence"`
}

func (c BreakdownConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BreakdownConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMillis) * time.Millisecond
}

type SessionConfig struct {
	InactivityMinutes int `yaml:"inactivity_minutes"`

	// VagueWordThreshold: a request shorter than this with no deadline or
	// effort hint triggers a clarifying question instead of a proposal.
	VagueWordThreshold int `yaml:"vague_word_threshold"`
}

func (c SessionConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityMinutes) * time.Minute
}

type AIConfig struct {
	// Provider is one of "gemini", "anthropic" or "none".
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// APIKeyEnv names the environment variable holding the key. Keys never
	// live in the config file.
	APIKeyEnv string `yaml:"api_key_env"`
}

type CalendarConfig struct {
	Enabled         bool    `yaml:"enabled"`
	CredentialsFile string  `yaml:"credentials_file"`
	CalendarID      string  `yaml:"calendar_id"`
	WorkdayHours    float64 `yaml:"workday_hours"`
}

func Default() *Config {
	return &Config{
		DBPath: "sqrly.db",
		Quadrant: QuadrantConfig{
			Threshold: 6,
		},
		Energy: EnergyConfig{
			Tolerance: 0,
		},
		Overwhelm: OverwhelmConfig{
			Weights: OverwhelmWeights{
				TaskLoad:     0.30,
				Overdue:      0.30,
				Deadlines:    0.20,
				StressEnergy: 0.20,
			},
			MediumAt:             0.30,
			HighAt:               0.55,
			TasksPerHour:         1.5,
			DeadlineClusterLimit: 4,
			DailyTaskCeiling:     3,
		},
		Breakdown: BreakdownConfig{
			ChunkMinutes:       20,
			TimeoutSeconds:     10,
			RetryBackoffMillis: 500,
			MaxRetries:         1,
			MaxSubtasks:        10,
			AIConfidence:       0.7,
			FallbackConfidence: 0.3,
		},
		Session: SessionConfig{
			InactivityMinutes:  30,
			VagueWordThreshold: 8,
		},
		AI: AIConfig{
			Provider:    "none",
			Model:       "",
			MaxTokens:   1024,
			Temperature: 0.7,
			APIKeyEnv:   "",
		},
		Calendar: CalendarConfig{
			Enabled:      false,
			WorkdayHours: 6,
		},
	}
}

// Load reads path on top of the defaults. An absent file returns the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Quadrant.Threshold < 1 || c.Quadrant.Threshold > 10 {
		return fmt.Errorf("quadrant.threshold must be between 1 and 10, got %d", c.Quadrant.Threshold)
	}
	if c.Overwhelm.MediumAt >= c.Overwhelm.HighAt {
		return fmt.Errorf("overwhelm.medium_at (%.2f) must be below overwhelm.high_at (%.2f)",
			c.Overwhelm.MediumAt, c.Overwhelm.HighAt)
	}
	if c.Breakdown.ChunkMinutes <= 0 {
		return fmt.Errorf("breakdown.chunk_minutes must be positive, got %d", c.Breakdown.ChunkMinutes)
	}
	switch c.AI.Provider {
	case "gemini", "anthropic", "none", "":
	default:
		return fmt.Errorf("ai.provider must be gemini, anthropic or none, got %q", c.AI.Provider)
	}
	return nil
}
