// Package app holds process-level configuration. Values come from an
// optional YAML file pointed at by CONFIG_FILE, with environment variables
// taking precedence over both the file and the defaults.
package app

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ravenmill/tracker-backend/internal/pkg/envutil"
	"github.com/ravenmill/tracker-backend/internal/pkg/logger"
)

type StoreConfig struct {
	// Backend is one of memory, redis, sqlite.
	Backend   string `yaml:"backend"`
	RedisURL  string `yaml:"redisUrl"`
	Namespace string `yaml:"namespace"`
	SQLite    string `yaml:"sqlitePath"`
}

type QueueConfig struct {
	BatchSize        int `yaml:"batchSize"`
	MaxConcurrency   int `yaml:"maxConcurrency"`
	MaxRetries       int `yaml:"maxRetries"`
	DrainIntervalSec int `yaml:"drainIntervalSec"`
}

func (q QueueConfig) DrainInterval() time.Duration {
	return time.Duration(q.DrainIntervalSec) * time.Second
}

type Config struct {
	LogMode      string      `yaml:"logMode"`
	Port         string      `yaml:"port"`
	AllowOrigins []string    `yaml:"allowOrigins"`
	Store        StoreConfig `yaml:"store"`
	Queue        QueueConfig `yaml:"queue"`
	// RatesURL is the optional exchange-rates endpoint; empty means static
	// built-in rates.
	RatesURL string `yaml:"ratesUrl"`
	// DefaultPlayerID pins the player credited when an entity names none.
	// Empty means the earliest-created player.
	DefaultPlayerID string `yaml:"defaultPlayerId"`
}

func defaults() Config {
	return Config{
		LogMode: "development",
		Port:    "8080",
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		},
		Store: StoreConfig{
			Backend:   "memory",
			RedisURL:  "redis://localhost:6379/0",
			Namespace: "tracker",
			SQLite:    "tracker.db",
		},
		Queue: QueueConfig{
			BatchSize:        25,
			MaxConcurrency:   4,
			MaxRetries:       3,
			DrainIntervalSec: 2,
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file if
// CONFIG_FILE names one, then environment overrides.
func Load(log *logger.Logger) Config {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Warn("Config file unreadable, using defaults", "path", path, "error", err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Warn("Config file invalid, using defaults", "path", path, "error", err)
		} else {
			log.Info("Loaded config file", "path", path)
		}
	}

	cfg.LogMode = envutil.GetEnv("LOG_MODE", cfg.LogMode, log)
	cfg.Port = envutil.GetEnv("PORT", cfg.Port, log)
	cfg.Store.Backend = envutil.GetEnv("STORE_BACKEND", cfg.Store.Backend, log)
	cfg.Store.RedisURL = envutil.GetEnv("REDIS_URL", cfg.Store.RedisURL, log)
	cfg.Store.Namespace = envutil.GetEnv("STORE_NAMESPACE", cfg.Store.Namespace, log)
	cfg.Store.SQLite = envutil.GetEnv("SQLITE_PATH", cfg.Store.SQLite, log)
	cfg.RatesURL = envutil.GetEnv("RATES_URL", cfg.RatesURL, log)
	cfg.DefaultPlayerID = envutil.GetEnv("DEFAULT_PLAYER_ID", cfg.DefaultPlayerID, log)
	cfg.Queue.BatchSize = envutil.GetEnvAsInt("QUEUE_BATCH_SIZE", cfg.Queue.BatchSize, log)
	cfg.Queue.MaxConcurrency = envutil.GetEnvAsInt("QUEUE_MAX_CONCURRENCY", cfg.Queue.MaxConcurrency, log)
	cfg.Queue.MaxRetries = envutil.GetEnvAsInt("QUEUE_MAX_RETRIES", cfg.Queue.MaxRetries, log)
	cfg.Queue.DrainIntervalSec = envutil.GetEnvAsInt("QUEUE_DRAIN_INTERVAL_SEC", cfg.Queue.DrainIntervalSec, log)
	return cfg
}
