// Package config loads process configuration: defaults, then the JSON
// config file, then AGENDA_* environment variables, each layer
// overriding the previous one.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Pool      PoolConfig
	Embedding EmbeddingConfig
	Worker    WorkerConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	APIToken string
}

type StorageConfig struct {
	DataDir string
}

type PoolConfig struct {
	Size           int
	AcquireTimeout time.Duration
}

type EmbeddingConfig struct {
	BaseURL string
	Model   string
}

type WorkerConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Pool: PoolConfig{
			Size:           8,
			AcquireTimeout: 5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434/api",
			Model:   "nomic-embed-text",
		},
		Worker: WorkerConfig{
			PollInterval: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "agenda")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".local", "share", "agenda")
}

func configFilePath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "agenda", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agenda", "config.json")
}

// fileConfig mirrors the JSON config file layout. All fields are
// optional; zero values leave the defaults in place.
type fileConfig struct {
	Port               int    `json:"port"`
	APIToken           string `json:"api_token"`
	DataDir            string `json:"data_dir"`
	PoolSize           int    `json:"pool_size"`
	PoolAcquireTimeout string `json:"pool_acquire_timeout"`
	EmbeddingBaseURL   string `json:"embedding_base_url"`
	EmbeddingModel     string `json:"embedding_model"`
	WorkerPollInterval string `json:"worker_poll_interval"`
	LogLevel           string `json:"log_level"`
}

// Load reads the configuration. The API token is required: set it in the
// config file or via AGENDA_API_TOKEN.
func Load() (Config, error) {
	return loadWith(configFilePath())
}

func loadWith(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.Server.APIToken == "" {
		return Config{}, fmt.Errorf("missing required config: API token. Set api_token in %s or the AGENDA_API_TOKEN environment variable", path)
	}
	if cfg.Pool.Size <= 0 {
		return Config{}, fmt.Errorf("pool_size must be positive, got %d", cfg.Pool.Size)
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if fc.Port != 0 {
		cfg.Server.Port = fc.Port
	}
	if fc.APIToken != "" {
		cfg.Server.APIToken = fc.APIToken
	}
	if fc.DataDir != "" {
		cfg.Storage.DataDir = fc.DataDir
	}
	if fc.PoolSize != 0 {
		cfg.Pool.Size = fc.PoolSize
	}
	if fc.PoolAcquireTimeout != "" {
		d, err := time.ParseDuration(fc.PoolAcquireTimeout)
		if err != nil {
			return fmt.Errorf("parsing pool_acquire_timeout: %w", err)
		}
		cfg.Pool.AcquireTimeout = d
	}
	if fc.EmbeddingBaseURL != "" {
		cfg.Embedding.BaseURL = fc.EmbeddingBaseURL
	}
	if fc.EmbeddingModel != "" {
		cfg.Embedding.Model = fc.EmbeddingModel
	}
	if fc.WorkerPollInterval != "" {
		d, err := time.ParseDuration(fc.WorkerPollInterval)
		if err != nil {
			return fmt.Errorf("parsing worker_poll_interval: %w", err)
		}
		cfg.Worker.PollInterval = d
	}
	if fc.LogLevel != "" {
		cfg.Log.Level = fc.LogLevel
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENDA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("AGENDA_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}
	if v := os.Getenv("AGENDA_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("AGENDA_POOL_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			cfg.Pool.Size = size
		}
	}
	if v := os.Getenv("AGENDA_POOL_ACQUIRE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pool.AcquireTimeout = d
		}
	}
	if v := os.Getenv("AGENDA_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("AGENDA_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("AGENDA_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
