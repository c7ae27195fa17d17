package config

import (
	"fmt"
	"time"
)

// Config represents a canmill.yaml configuration file.
// All values are optional and act as defaults for canmill decode flags.
// CLI flags always override config values.
type Config struct {
	Schema    string        `yaml:"schema"`
	Source    string        `yaml:"source"`
	Workers   int           `yaml:"workers"`
	BatchSize int           `yaml:"batch_size"`
	Export    ExportConfig  `yaml:"export"`
	Policy    PolicyConfig  `yaml:"policy"`
	Adapter   AdapterConfig `yaml:"adapter"`
	Log       LogConfig     `yaml:"log"`
}

// ExportConfig holds export defaults from the config file.
type ExportConfig struct {
	Format      string `yaml:"format"`
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds policy defaults from the config file.
type PolicyConfig struct {
	Name          string   `yaml:"name"`
	BufferRows    int      `yaml:"buffer_rows"`
	BufferBytes   int64    `yaml:"buffer_bytes"`
	FlushCount    int      `yaml:"flush_count"`
	FlushInterval Duration `yaml:"flush_interval"`
}

// LogConfig holds logging defaults from the config file.
type LogConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level"`
	// Format selects the log encoder (json or console).
	Format string `yaml:"format"`
}

// AdapterConfig holds adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}
