package config

import (
	"bytes"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"

	"github.com/ekisa-team/indextts-api/internal/envvar"
	"github.com/ekisa-team/indextts-api/internal/xfs"
)

const schemaURL = "indextts-api/schema.json"

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// LookupEnv reads an environment variable. os.LookupEnv in production.
type LookupEnv func(key string) (string, bool)

// setter applies one override to c.
type setter func(c *Config, raw string) error

// overrides maps config keys to their setters. Flags and env vars both go
// through this table.
var overrides = map[string]setter{
	"model.dir":       func(c *Config, v string) error { c.Model.Dir = v; return nil },
	"model.device":    func(c *Config, v string) error { c.Model.Device = strings.ToLower(v); return nil },
	"model.device_id": intSetter(func(c *Config) *int { return &c.Model.DeviceID }),
	"model.lazy_load": func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Model.LazyLoad = b
		return nil
	},
	"server.host":        func(c *Config, v string) error { c.Server.Host = v; return nil },
	"server.port":        intSetter(func(c *Config) *int { return &c.Server.Port }),
	"server.grpc_port":   intSetter(func(c *Config) *int { return &c.Server.GRPCPort }),
	"storage.output_dir": func(c *Config, v string) error { c.Storage.OutputDir = v; return nil },
	"log.level":          func(c *Config, v string) error { c.Log.Level = strings.ToLower(v); return nil },
	"log.file":           func(c *Config, v string) error { c.Log.File = v; return nil },
}

var envKeys = map[string]string{
	envvar.IndexTTSModelDir:  "model.dir",
	envvar.IndexTTSDevice:    "model.device",
	envvar.IndexTTSHost:      "server.host",
	envvar.IndexTTSPort:      "server.port",
	envvar.IndexTTSGRPCPort:  "server.grpc_port",
	envvar.IndexTTSOutputDir: "storage.output_dir",
	envvar.IndexTTSLogLevel:  "log.level",
}

var flagKeys = map[string]string{
	"model_dir":  "model.dir",
	"device":     "model.device",
	"device_id":  "model.device_id",
	"lazy_load":  "model.lazy_load",
	"host":       "server.host",
	"port":       "server.port",
	"grpc_port":  "server.grpc_port",
	"output_dir": "storage.output_dir",
	"log_level":  "log.level",
	"log_file":   "log.file",
}

// Loader resolves the configuration from, in increasing precedence,
// defaults, the YAML file, environment variables and command line flags.
type Loader struct {
	lookup LookupEnv
	flags  map[string]string
	path   string
}

// NewLoader parses args with the command line flags of the service.
func NewLoader(args []string, lookup LookupEnv) (*Loader, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	fs := flag.NewFlagSet("indextts-api", flag.ContinueOnError)
	path := fs.String("config", "", "path to the YAML config file")
	fs.String("model_dir", DefaultModelDir, "model checkpoints directory")
	fs.String("device", DefaultDevice, "device to run the model on: auto, cpu, cuda, cuda:N, mps")
	fs.Int("device_id", 0, "CUDA device index used when device is auto or cuda")
	fs.Bool("lazy_load", false, "load the model on the first synthesis request")
	fs.String("host", DefaultHost, "host to bind")
	fs.Int("port", DefaultPort, "HTTP port")
	fs.Int("grpc_port", 0, "gRPC health port, 0 disables it")
	fs.String("output_dir", DefaultOutputDir, "directory for uploaded prompts and engine output")
	fs.String("log_level", DefaultLogLevel, "log level: debug, info, warn, error")
	fs.String("log_file", "", "also write logs to this rotating file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	l := &Loader{lookup: lookup, flags: make(map[string]string), path: *path}
	fs.Visit(func(f *flag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			l.flags[key] = f.Value.String()
		}
	})

	if l.path == "" {
		if v, ok := lookup(envvar.IndexTTSConfig); ok && v != "" {
			l.path = v
		} else if xfs.Exists(DefaultConfigFile()) {
			l.path = DefaultConfigFile()
		}
	}
	l.path = xfs.Resolve(l.path)

	return l, nil
}

// Path is the YAML file in use, empty when running on defaults.
func (l *Loader) Path() string {
	return l.path
}

// Load builds a fresh Config. Each call rereads the file.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	if l.path != "" {
		if err := decodeFile(l.path, cfg); err != nil {
			return nil, err
		}
		cfg.Path = l.path
	}

	for env, key := range envKeys {
		v, ok := l.lookup(env)
		if !ok || v == "" {
			continue
		}
		if err := overrides[key](cfg, v); err != nil {
			return nil, fmt.Errorf("config: invalid %s=%q: %w", env, v, err)
		}
	}

	for key, v := range l.flags {
		if err := overrides[key](cfg, v); err != nil {
			return nil, fmt.Errorf("config: invalid flag for %s=%q: %w", key, v, err)
		}
	}

	if src := cfg.Model.Source.HuggingFace; src != nil && src.Token == "" {
		src.Token, _ = l.lookup(envvar.HuggingFaceToken)
	}

	cfg.Model.Dir = xfs.Resolve(cfg.Model.Dir)
	cfg.Storage.OutputDir = xfs.Resolve(cfg.Storage.OutputDir)
	cfg.Storage.DefaultReference = xfs.Resolve(cfg.Storage.DefaultReference)
	cfg.Log.File = xfs.Resolve(cfg.Log.File)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: failed to read config: %w", err)
	}

	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config: invalid YAML: %w", err)
	}
	if raw == nil {
		return nil
	}

	schema, err := loadSchema()
	if err != nil {
		return err
	}

	if err := schema.Validate(raw); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	return nil
}

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("config: failed to add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("config: failed to compile schema: %w", schemaErr)
		}
	})

	return compiledSchema, schemaErr
}

func intSetter(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

// IsHelp reports whether err came from -h or --help.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
