// Package config holds the client configuration: which model to stream from,
// how to reach and authenticate against the service, and decoder tuning.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alex-ilgayev/llmstream/pkg/llm"
	"gopkg.in/yaml.v3"
)

// BearerTokenEnv overrides Config.BearerToken when set.
const BearerTokenEnv = "AWS_BEARER_TOKEN_BEDROCK"

// Config holds client configuration
type Config struct {
	// Region of the runtime endpoint (default: us-east-1)
	Region string `yaml:"region"`

	// ModelID is the model or inference profile to invoke
	ModelID string `yaml:"model_id"`

	// API selects the streaming operation: "converse" or "invoke"
	API string `yaml:"api"`

	// Endpoint overrides the regional endpoint, e.g. for a VPC endpoint or a
	// local replay server
	Endpoint string `yaml:"endpoint"`

	// BearerToken switches authentication from SigV4 to an API key
	BearerToken string `yaml:"bearer_token"`

	// ReadBufferSize is the size of each body read fed to the decoder
	// (default: 32KiB)
	ReadBufferSize int `yaml:"read_buffer_size"`

	// Timeout bounds a whole request, body included (default: 5m)
	Timeout time.Duration `yaml:"timeout"`

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9090"
	MetricsAddr string `yaml:"metrics_addr"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Region:         "us-east-1",
		API:            string(llm.APIConverse),
		ReadBufferSize: 32 * 1024,
		Timeout:        5 * time.Minute,
	}
}

// Load reads a YAML file over the defaults. An empty path yields the
// defaults. The bearer token environment variable is applied last.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if token := os.Getenv(BearerTokenEnv); token != "" {
		cfg.BearerToken = token
	}
	return cfg, nil
}

// ValidationError lists every invalid field of a Config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks the fields needed to open a stream.
func (c Config) Validate() error {
	var problems []string

	if c.ModelID == "" {
		problems = append(problems, "model_id is required")
	}
	if c.Region == "" && c.Endpoint == "" {
		problems = append(problems, "region or endpoint is required")
	}
	if llm.ParseAPI(c.API) == llm.APIUnknown {
		problems = append(problems, fmt.Sprintf("api must be %q or %q, got %q", llm.APIConverse, llm.APIInvoke, c.API))
	}
	if c.ReadBufferSize <= 0 {
		problems = append(problems, "read_buffer_size must be positive")
	}
	if c.Timeout < 0 {
		problems = append(problems, "timeout must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
