package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

const (
	DefaultModelDir             = "checkpoints"
	DefaultDevice               = "auto"
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8080
	DefaultOutputDir            = "outputs/api"
	DefaultReference            = "tests/sample_prompt.wav"
	DefaultProvider             = "indextts"
	DefaultBinary               = "indextts"
	DefaultCacheEntries         = 256
	DefaultCacheTTL             = time.Hour
	DefaultMaxTextLength        = 2000
	DefaultMinReferenceDuration = 500 * time.Millisecond
	DefaultMaxUploadBytes       = 20 << 20
	DefaultQueueSize            = 64
	DefaultLogLevel             = "info"

	configFilename = "config.yaml"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Dir:    DefaultModelDir,
			Device: DefaultDevice,
		},
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Storage: StorageConfig{
			OutputDir:        DefaultOutputDir,
			DefaultReference: DefaultReference,
		},
		Engine: EngineConfig{
			Provider: DefaultProvider,
			Binary:   DefaultBinary,
		},
		Cache: CacheConfig{
			MaxEntries: DefaultCacheEntries,
			TTL:        DefaultCacheTTL,
		},
		Limits: LimitsConfig{
			MaxTextLength:        DefaultMaxTextLength,
			MinReferenceDuration: DefaultMinReferenceDuration,
			MaxUploadBytes:       DefaultMaxUploadBytes,
			QueueSize:            DefaultQueueSize,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// DefaultConfigPath returns the config directory for indextts-api.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "indextts-api", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "indextts-api")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "indextts-api")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "indextts-api")
		}
		return filepath.Join(home, ".config", "indextts-api")
	}
}

// DefaultConfigFile is config.yaml inside DefaultConfigPath.
func DefaultConfigFile() string {
	return filepath.Join(DefaultConfigPath(), configFilename)
}
