// Package config loads coordinator configuration from defaults, an optional YAML
// file, and environment variable overrides, in that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/r3e-network/ai4all-coordinator/internal/logging"
)

// ServerConfig controls the HTTP boundary.
type ServerConfig struct {
	Port     int    `yaml:"port" env:"PORT"`
	AdminKey string `yaml:"admin_key" env:"ADMIN_KEY"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend         string `yaml:"backend" env:"STORE_BACKEND"` // "memory" | "durable"
	DBPath          string `yaml:"db_path" env:"DB_PATH"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
	MigrateOnStart  bool   `yaml:"migrate_on_start" env:"DATABASE_MIGRATE_ON_START"`
}

// SchedulerConfig controls the optional cron-driven day lifecycle.
type SchedulerConfig struct {
	Enabled      bool   `yaml:"enabled" env:"SCHEDULER_ENABLED"`
	StartCron    string `yaml:"start_cron" env:"SCHEDULER_START_CRON"`
	FinalizeCron string `yaml:"finalize_cron" env:"SCHEDULER_FINALIZE_CRON"`
	Timezone     string `yaml:"timezone" env:"SCHEDULER_TIMEZONE"`
}

// AssignmentConfig parameterizes the assignment engine.
type AssignmentConfig struct {
	BlocksPerBatch   int     `yaml:"blocks_per_batch" env:"ASSIGNMENT_BLOCKS_PER_BATCH"`
	MaxBatches       int     `yaml:"max_batches" env:"ASSIGNMENT_MAX_BATCHES"`
	LookbackDays     int     `yaml:"lookback_days" env:"ASSIGNMENT_LOOKBACK_DAYS"`
	CanaryPercentage float64 `yaml:"canary_percentage" env:"ASSIGNMENT_CANARY_PERCENTAGE"`
}

// RewardConfig parameterizes the submission processor and reward calculator.
type RewardConfig struct {
	DailyEmissions             float64 `yaml:"daily_emissions" env:"REWARD_DAILY_EMISSIONS"`
	BasePoolPercentage         float64 `yaml:"base_pool_percentage" env:"REWARD_BASE_POOL_PERCENTAGE"`
	PerformancePoolPercentage  float64 `yaml:"performance_pool_percentage" env:"REWARD_PERFORMANCE_POOL_PERCENTAGE"`
	PerformanceLookbackDays    int     `yaml:"performance_lookback_days" env:"REWARD_PERFORMANCE_LOOKBACK_DAYS"`
	MinBlocksForActive         int     `yaml:"min_blocks_for_active" env:"REWARD_MIN_BLOCKS_FOR_ACTIVE"`
	ReputationFloor            float64 `yaml:"reputation_floor" env:"REWARD_REPUTATION_FLOOR"`
	CanaryFailureCooldownHours float64 `yaml:"canary_failure_cooldown_hours" env:"REWARD_CANARY_FAILURE_COOLDOWN_HOURS"`
	CanaryPenalty              float64 `yaml:"canary_penalty" env:"REWARD_CANARY_PENALTY"`
}

// Config is the top-level coordinator configuration structure.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    logging.Config   `yaml:"logging"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Reward     RewardConfig     `yaml:"reward"`
}

// New returns a Config populated with defaults matching the documented environment knobs.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 3000,
		},
		Storage: StorageConfig{
			Backend:         "durable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
			MigrateOnStart:  true,
		},
		Logging: logging.Config{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "coordinator",
		},
		Scheduler: SchedulerConfig{
			Timezone: "UTC",
		},
		Assignment: AssignmentConfig{
			BlocksPerBatch:   4,
			MaxBatches:       64,
			LookbackDays:     7,
			CanaryPercentage: 0.1,
		},
		Reward: RewardConfig{
			DailyEmissions:             1000,
			BasePoolPercentage:         0.4,
			PerformancePoolPercentage:  0.6,
			PerformanceLookbackDays:    7,
			MinBlocksForActive:         1,
			ReputationFloor:            0.2,
			CanaryFailureCooldownHours: 24,
			CanaryPenalty:              0.1,
		},
	}
}

// Load loads configuration from an optional .env file, an optional YAML file
// (CONFIG_FILE env or configs/config.yaml), then environment variable overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	applyDatabaseURLOverride(cfg)

	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyDatabaseURLOverride lets DATABASE_URL stand in for DB_PATH when the durable
// backend is a connection string rather than a file path.
func applyDatabaseURLOverride(cfg *Config) {
	if cfg == nil {
		return
	}
	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		cfg.Storage.DBPath = dsn
	}
}
