package config

import "time"

const defaultMaxRetries = 2

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxItems == 0 {
		cfg.Server.MaxItems = 64
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/clipsim/data/reports.db"
	}
	ApplyEmbeddingDefaults(&cfg.Embedding)
	ApplyFetchDefaults(&cfg.Fetch)
	if cfg.Render.Precision == 0 {
		cfg.Render.Precision = 3
	}
	if cfg.Render.CellSize == 0 {
		cfg.Render.CellSize = 50
	}
	if cfg.Render.TopK == 0 {
		cfg.Render.TopK = 3
	}
	if cfg.Render.Title == "" {
		cfg.Render.Title = cfg.Embedding.Model + " Similarity Matrix"
	}
}

// ApplyEmbeddingDefaults fills zero values with MobileCLIP-S1 settings.
func ApplyEmbeddingDefaults(e *EmbeddingConfig) {
	if e.Backend == "" {
		e.Backend = "onnx"
	}
	if e.Model == "" {
		e.Model = "MobileCLIP-S1"
	}
	if e.TextModelPath == "" {
		e.TextModelPath = "/usr/local/var/clipsim/data/models/mobileclip_s1_text.onnx"
	}
	if e.ImageModelPath == "" {
		e.ImageModelPath = "/usr/local/var/clipsim/data/models/mobileclip_s1_image.onnx"
	}
	if e.Dimensions == 0 {
		e.Dimensions = 512
	}
	if e.ContextLength == 0 {
		e.ContextLength = 77
	}
	if e.ImageSize == 0 {
		e.ImageSize = 256
	}
	// MobileCLIP consumes [0,1] pixels without mean/std normalization.
	if len(e.Mean) != 3 {
		e.Mean = []float32{0, 0, 0}
	}
	if len(e.Std) != 3 {
		e.Std = []float32{1, 1, 1}
	}
	if e.CacheSize == 0 {
		e.CacheSize = 1024
	}
}

// ApplyFetchDefaults fills zero values: 10s timeout, 128 cached images, 20 MiB bodies.
func ApplyFetchDefaults(f *FetchConfig) {
	if f.Timeout == 0 {
		f.Timeout = 10 * time.Second
	}
	if f.CacheSize == 0 {
		f.CacheSize = 128
	}
	if f.MaxRetries == nil {
		n := defaultMaxRetries
		f.MaxRetries = &n
	}
	if f.MaxBytes == 0 {
		f.MaxBytes = 20 << 20
	}
	if f.UserAgent == "" {
		f.UserAgent = "clipsim/1.0"
	}
}
