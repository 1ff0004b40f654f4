package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oarkflow/bcl"
	"github.com/oarkflow/errors"
	"github.com/oarkflow/json"
	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration of the hl7 service.
type Config struct {
	Server  ServerConfig   `json:"server" yaml:"server"`
	Store   StoreConfig    `json:"store" yaml:"store"`
	Parser  ParserConfig   `json:"parser" yaml:"parser"`
	Sources []SourceConfig `json:"sources" yaml:"sources"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Address     string `json:"address" yaml:"address"`
	BodyLimitKB int    `json:"body_limit_kb" yaml:"body_limit_kb"`
	EnableCORS  bool   `json:"enable_cors" yaml:"enable_cors"`
}

// StoreConfig bounds the in-memory message store.
type StoreConfig struct {
	MaxMessages int    `json:"max_messages" yaml:"max_messages"`
	TTL         string `json:"ttl" yaml:"ttl"`
}

// ParserConfig tunes message parsing.
type ParserConfig struct {
	EagerParse      bool `json:"eager_parse" yaml:"eager_parse"`
	NewlineSegments bool `json:"newline_segments" yaml:"newline_segments"`
}

// SourceConfig declares a message source loaded at startup.
// Type is "file" (Path) or "amqp" (URI, Queue).
type SourceConfig struct {
	Name             string `json:"name" yaml:"name"`
	Type             string `json:"type" yaml:"type"`
	Path             string `json:"path" yaml:"path"`
	URI              string `json:"uri" yaml:"uri"`
	Queue            string `json:"queue" yaml:"queue"`
	SplitOnBlankLine *bool  `json:"split_on_blank_line" yaml:"split_on_blank_line"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:     ":8080",
			BodyLimitKB: 4096,
			EnableCORS:  true,
		},
		Store: StoreConfig{
			MaxMessages: 10000,
		},
		Parser: ParserConfig{
			NewlineSegments: true,
		},
	}
}

// Load loads a config file based on its extension.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	cfg, err := LoadFromString(string(raw), format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromString loads the config from raw text, useful for tests.
// Unset values keep their defaults.
func LoadFromString(content, format string) (*Config, error) {
	var decode func([]byte, any) error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		decode = yaml.Unmarshal
	case "json":
		decode = func(data []byte, v any) error {
			return json.Unmarshal(data, v)
		}
	case "bcl":
		decode = func(data []byte, v any) error {
			_, err := bcl.Unmarshal(data, v)
			return err
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}
	cfg := Default()
	if err := decode([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Server.Address == "" {
		return errors.New("server address must be provided")
	}
	if cfg.Store.MaxMessages <= 0 {
		return errors.New("store max_messages must be positive")
	}
	if _, err := cfg.Store.TTLDuration(); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(cfg.Sources))
	for idx, src := range cfg.Sources {
		if src.Name == "" {
			return fmt.Errorf("source at index %d is missing a name", idx)
		}
		if _, dup := names[src.Name]; dup {
			return fmt.Errorf("duplicate source name %s", src.Name)
		}
		names[src.Name] = struct{}{}
		switch src.Type {
		case "file":
			if src.Path == "" {
				return fmt.Errorf("source %s: path must be provided", src.Name)
			}
		case "amqp":
			if src.URI == "" {
				return fmt.Errorf("source %s: uri must be provided", src.Name)
			}
		default:
			return fmt.Errorf("source %s: unsupported type %q", src.Name, src.Type)
		}
	}
	return nil
}

// TTLDuration parses TTL; an empty value means no expiry.
func (s StoreConfig) TTLDuration() (time.Duration, error) {
	if s.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid store ttl %q: %w", s.TTL, err)
	}
	return d, nil
}
