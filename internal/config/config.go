package config

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// DefaultListenAddr is used when the adapter runner does not inject an explicit address.
	DefaultListenAddr     = "127.0.0.1:50051"
	DefaultLogLevel       = "info"
	DefaultLanguage       = "client"
	DefaultStorageBackend = "json"
	DefaultStoragePath    = "voice_profiles"
	DefaultTTSEngine      = "gtts"
	DefaultSTTEngine      = "google"
	DefaultCacheMaxSizeMB = 100
)

// Config captures bootstrap configuration extracted from environment variables,
// the injected JSON payload (`NUPI_ADAPTER_CONFIG`) or a YAML file.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	// Language is "client" (read nupi.lang.iso1 from request metadata),
	// "auto", or a fixed language code.
	Language string `yaml:"language"`

	// Profile storage
	StorageBackend string `yaml:"storage_backend"`
	StoragePath    string `yaml:"storage_path"`

	// TraceLogPath receives one JSON trace record per line. Empty disables it.
	TraceLogPath string `yaml:"trace_log_path"`

	// Rendering defaults (optional)
	DefaultPreset    string   `yaml:"default_preset"`
	TTSEngine        string   `yaml:"tts_engine"`
	STTEngine        string   `yaml:"stt_engine"`
	EmotionIntensity *float64 `yaml:"emotion_intensity"`

	// Rendered audio cache. Size 0 disables it.
	CacheDir       string `yaml:"cache_dir"`
	CacheMaxSizeMB int    `yaml:"cache_max_size_mb"`
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate applies defaults and returns every problem found, joined.
func (c *Config) Validate() error {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.StorageBackend == "" {
		c.StorageBackend = DefaultStorageBackend
	}
	if c.StoragePath == "" {
		c.StoragePath = DefaultStoragePath
	}
	if c.TTSEngine == "" {
		c.TTSEngine = DefaultTTSEngine
	}
	if c.STTEngine == "" {
		c.STTEngine = DefaultSTTEngine
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	c.StorageBackend = strings.ToLower(c.StorageBackend)

	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, fmt.Errorf("config: listen address is required"))
	}
	if !logLevels[c.LogLevel] {
		errs = append(errs, fmt.Errorf("config: log_level must be one of debug, info, warn, error, got %q", c.LogLevel))
	}
	if c.StorageBackend != "json" && c.StorageBackend != "sqlite" {
		errs = append(errs, fmt.Errorf("config: storage_backend must be json or sqlite, got %q", c.StorageBackend))
	}
	if c.EmotionIntensity != nil {
		if !(*c.EmotionIntensity >= 0 && *c.EmotionIntensity <= 1) {
			errs = append(errs, fmt.Errorf("config: emotion_intensity must be between 0.0 and 1.0, got %f", *c.EmotionIntensity))
		}
	}
	if c.CacheMaxSizeMB < 0 {
		errs = append(errs, fmt.Errorf("config: cache_max_size_mb must be >= 0, got %d", c.CacheMaxSizeMB))
	}
	return errors.Join(errs...)
}

// CacheEnabled reports whether rendered audio should be cached.
func (c Config) CacheEnabled() bool {
	return c.CacheDir != "" && c.CacheMaxSizeMB > 0
}
