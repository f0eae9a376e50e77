package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads configuration from environment variables. Tests can override
// Lookup to inject deterministic maps.
type Loader struct {
	Lookup func(string) (string, bool)
}

// Load retrieves the adapter configuration from environment variables and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}

	cfg := Config{
		ListenAddr:     DefaultListenAddr,
		CacheMaxSizeMB: DefaultCacheMaxSizeMB,
	}

	if raw, ok := l.Lookup("NUPI_ADAPTER_CONFIG"); ok && strings.TrimSpace(raw) != "" {
		if err := applyJSON(raw, &cfg); err != nil {
			return Config{}, err
		}
	}

	overrideString(l.Lookup, "NUPI_ADAPTER_LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(l.Lookup, "NUPI_LOG_LEVEL", &cfg.LogLevel)
	overrideString(l.Lookup, "NUPI_ADAPTER_STORAGE_BACKEND", &cfg.StorageBackend)

	if dataDir, ok := l.Lookup("NUPI_ADAPTER_DATA_DIR"); ok && strings.TrimSpace(dataDir) != "" {
		cfg.applyDataDir(strings.TrimSpace(dataDir))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDataDir fills the unset paths below dataDir.
func (c *Config) applyDataDir(dataDir string) {
	if c.StoragePath == "" {
		if strings.EqualFold(c.StorageBackend, "sqlite") {
			c.StoragePath = filepath.Join(dataDir, "profiles.db")
		} else {
			c.StoragePath = filepath.Join(dataDir, "profiles")
		}
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(dataDir, "cache")
	}
	if c.TraceLogPath == "" {
		c.TraceLogPath = filepath.Join(dataDir, "trace.jsonl")
	}
}

func applyJSON(raw string, cfg *Config) error {
	type jsonConfig struct {
		ListenAddr       string   `json:"listen_addr"`
		LogLevel         string   `json:"log_level"`
		Language         string   `json:"language"`
		StorageBackend   string   `json:"storage_backend"`
		StoragePath      string   `json:"storage_path"`
		TraceLogPath     string   `json:"trace_log_path"`
		DefaultPreset    string   `json:"default_preset"`
		TTSEngine        string   `json:"tts_engine"`
		STTEngine        string   `json:"stt_engine"`
		EmotionIntensity *float64 `json:"emotion_intensity"`
		CacheDir         string   `json:"cache_dir"`
		CacheMaxSizeMB   *int     `json:"cache_max_size_mb"`
	}
	var payload jsonConfig
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return fmt.Errorf("config: decode NUPI_ADAPTER_CONFIG: %w", err)
	}
	assignString(&cfg.ListenAddr, payload.ListenAddr)
	assignString(&cfg.LogLevel, payload.LogLevel)
	assignString(&cfg.Language, payload.Language)
	assignString(&cfg.StorageBackend, payload.StorageBackend)
	assignString(&cfg.StoragePath, payload.StoragePath)
	assignString(&cfg.TraceLogPath, payload.TraceLogPath)
	assignString(&cfg.DefaultPreset, payload.DefaultPreset)
	assignString(&cfg.TTSEngine, payload.TTSEngine)
	assignString(&cfg.STTEngine, payload.STTEngine)
	assignString(&cfg.CacheDir, payload.CacheDir)
	if payload.EmotionIntensity != nil {
		assignFloat64Ptr(&cfg.EmotionIntensity, *payload.EmotionIntensity)
	}
	if payload.CacheMaxSizeMB != nil {
		cfg.CacheMaxSizeMB = *payload.CacheMaxSizeMB
	}
	return nil
}

// LoadFile decodes and validates the YAML configuration at path.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadYAML decodes a YAML document on top of the defaults. Unknown keys are
// rejected. An empty document yields the defaults.
func LoadYAML(r io.Reader) (Config, error) {
	cfg := Config{
		ListenAddr:     DefaultListenAddr,
		CacheMaxSizeMB: DefaultCacheMaxSizeMB,
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func assignString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func assignFloat64Ptr(target **float64, value float64) {
	v := value
	*target = &v
}
