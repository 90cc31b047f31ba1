// Package config provides configuration loading and structs for clipsim.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Render    RenderConfig    `yaml:"render"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	MaxItems int    `yaml:"max_items"`
}

// StorageConfig holds the report database path.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects and configures the embedding backend.
type EmbeddingConfig struct {
	// Backend is "onnx" (CLIP text/image towers via ONNX Runtime) or "mock" (deterministic, no model).
	Backend        string    `yaml:"backend"`
	Model          string    `yaml:"model"`
	TextModelPath  string    `yaml:"text_model_path"`
	ImageModelPath string    `yaml:"image_model_path"`
	LibraryPath    string    `yaml:"library_path"` // onnxruntime shared library; empty uses the platform default
	VocabPath      string    `yaml:"vocab_path"`   // CLIP BPE vocab.json; empty falls back to hashed word ids
	MergesPath     string    `yaml:"merges_path"`
	Dimensions     int       `yaml:"dimensions"`
	ContextLength  int       `yaml:"context_length"`
	ImageSize      int       `yaml:"image_size"`
	Mean           []float32 `yaml:"mean"`
	Std            []float32 `yaml:"std"`
	CacheSize      int       `yaml:"cache_size"`
}

// FetchConfig holds image download settings.
type FetchConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	CacheSize  int           `yaml:"cache_size"`
	MaxRetries *int          `yaml:"max_retries"`
	MaxBytes   int64         `yaml:"max_bytes"`
	UserAgent  string        `yaml:"user_agent"`
}

// Retries returns the retry budget for transient failures; defaults to 2 when unset.
func (f *FetchConfig) Retries() int {
	if f.MaxRetries != nil && *f.MaxRetries >= 0 {
		return *f.MaxRetries
	}
	return defaultMaxRetries
}

// RenderConfig holds presentation settings.
type RenderConfig struct {
	Precision int    `yaml:"precision"`
	CellSize  int    `yaml:"cell_size"`
	TopK      int    `yaml:"top_k"`
	Title     string `yaml:"title"`
}

// Default returns a config with every default applied, used when no config file exists.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Load reads and parses the config file at path, applies defaults and environment overrides,
// and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg, os.LookupEnv)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Embedding.TextModelPath = expandPath(cfg.Embedding.TextModelPath, configDir)
	cfg.Embedding.ImageModelPath = expandPath(cfg.Embedding.ImageModelPath, configDir)
	for _, p := range []*string{&cfg.Embedding.LibraryPath, &cfg.Embedding.VocabPath, &cfg.Embedding.MergesPath} {
		if *p != "" {
			*p = expandPath(*p, configDir)
		}
	}

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
