package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"
)

// Config holds the main configuration for the application.
type Config struct {
	// Path is the YAML file the config was read from, if any.
	Path string `json:"-" yaml:"-"`

	Model   ModelConfig   `json:"model"   yaml:"model"`
	Server  ServerConfig  `json:"server"  yaml:"server"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Engine  EngineConfig  `json:"engine"  yaml:"engine"`
	Cache   CacheConfig   `json:"cache"   yaml:"cache"`
	Limits  LimitsConfig  `json:"limits"  yaml:"limits"`
	Log     LogConfig     `json:"log"     yaml:"log"`
}

// ModelConfig describes the checkpoints and where to run them.
type ModelConfig struct {
	Source   SourceConfig `json:"source,omitempty" yaml:"source,omitempty"`
	Dir      string       `json:"dir"              yaml:"dir"`
	Device   string       `json:"device"           yaml:"device"`
	DeviceID int          `json:"device_id"        yaml:"device_id"`
	LazyLoad bool         `json:"lazy_load"        yaml:"lazy_load"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
}

// ServerConfig holds the listeners.
type ServerConfig struct {
	Host     string `json:"host"      yaml:"host"`
	Port     int    `json:"port"      yaml:"port"`
	GRPCPort int    `json:"grpc_port" yaml:"grpc_port"`
}

// StorageConfig holds file locations.
type StorageConfig struct {
	OutputDir        string `json:"output_dir"        yaml:"output_dir"`
	DefaultReference string `json:"default_reference" yaml:"default_reference"`
}

// EngineConfig selects and tunes the inference backend.
type EngineConfig struct {
	// FP16 forces half precision on or off. Unset means on for CUDA devices.
	FP16     *bool         `json:"fp16,omitempty" yaml:"fp16,omitempty"`
	Provider string        `json:"provider"       yaml:"provider"`
	Binary   string        `json:"binary"         yaml:"binary"`
	Timeout  time.Duration `json:"timeout"        yaml:"timeout"`
}

// CacheConfig bounds the idempotency cache.
type CacheConfig struct {
	MaxEntries int           `json:"max_entries" yaml:"max_entries"`
	TTL        time.Duration `json:"ttl"         yaml:"ttl"`
}

// LimitsConfig bounds what a single request may ask for.
type LimitsConfig struct {
	MaxTextLength        int           `json:"max_text_length"        yaml:"max_text_length"`
	MinReferenceDuration time.Duration `json:"min_reference_duration" yaml:"min_reference_duration"`
	MaxUploadBytes       int64         `json:"max_upload_bytes"       yaml:"max_upload_bytes"`
	QueueSize            int           `json:"queue_size"             yaml:"queue_size"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level"          yaml:"level"`
	File  string `json:"file,omitempty" yaml:"file,omitempty"`
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// GetSource returns the active source for the model, or nil when the
// checkpoints are expected to be on disk already.
func (m *ModelConfig) GetSource() ModelSource {
	if m.Source.HuggingFace != nil {
		return *m.Source.HuggingFace
	}

	return nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// GRPCAddr is the gRPC health listen address, empty when disabled.
func (c *Config) GRPCAddr() string {
	if c.Server.GRPCPort == 0 {
		return ""
	}
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.GRPCPort))
}

// Validate checks the cross-field rules the schema cannot express. It runs
// after env and flag overrides, which bypass the schema.
func (c *Config) Validate() error {
	var errs []error

	if c.Model.Dir == "" {
		errs = append(errs, errors.New("model.dir must not be empty"))
	}
	if c.Model.DeviceID < 0 {
		errs = append(errs, errors.New("model.device_id must not be negative"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Server.GRPCPort != 0 && c.Server.GRPCPort == c.Server.Port {
		errs = append(errs, errors.New("server.grpc_port must differ from server.port"))
	}
	if c.Storage.OutputDir == "" {
		errs = append(errs, errors.New("storage.output_dir must not be empty"))
	}
	if c.Engine.Timeout < 0 {
		errs = append(errs, errors.New("engine.timeout must not be negative"))
	}
	if c.Cache.MaxEntries < 0 || c.Cache.TTL < 0 {
		errs = append(errs, errors.New("cache limits must not be negative"))
	}
	if c.Limits.MaxTextLength < 1 || c.Limits.QueueSize < 1 {
		errs = append(errs, errors.New("limits.max_text_length and limits.queue_size must be positive"))
	}
	if c.Limits.MaxUploadBytes < 0 {
		errs = append(errs, errors.New("limits.max_upload_bytes must not be negative"))
	}
	if c.Limits.MinReferenceDuration <= 0 {
		errs = append(errs, errors.New("limits.min_reference_duration must be positive"))
	}

	return errors.Join(errs...)
}
