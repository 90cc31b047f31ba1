package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// A missing file is not an error; variables already set are not overridden.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg fields from CLIPSIM_* variables found by lookup. Malformed numbers are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	if v, ok := lookup("CLIPSIM_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	str("CLIPSIM_SERVER_HOST", &cfg.Server.Host)
	num("CLIPSIM_SERVER_PORT", &cfg.Server.Port)
	str("CLIPSIM_DATABASE_PATH", &cfg.Storage.DatabasePath)
	str("CLIPSIM_EMBEDDING_BACKEND", &cfg.Embedding.Backend)
	str("CLIPSIM_TEXT_MODEL_PATH", &cfg.Embedding.TextModelPath)
	str("CLIPSIM_IMAGE_MODEL_PATH", &cfg.Embedding.ImageModelPath)
	str("CLIPSIM_ONNXRUNTIME_LIB", &cfg.Embedding.LibraryPath)
	str("CLIPSIM_FETCH_USER_AGENT", &cfg.Fetch.UserAgent)
	if v, ok := lookup("CLIPSIM_FETCH_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Fetch.Timeout = d
		}
	}
}
