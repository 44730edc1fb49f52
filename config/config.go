// Package config loads the engine configuration. Precedence is
// defaults, then the YAML file, then environment variables; provider
// credentials come from the environment only and are never written to
// logs or config dumps.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/babyforge/babyforge/pipeline"
	"github.com/babyforge/babyforge/providers"
)

// Environment variables honored by Load. Tokens are opaque strings;
// the engine never interprets or prints them.
const (
	EnvReplicateToken = "REPLICATE_API_TOKEN"
	EnvMeshyToken     = "MESHY_API_TOKEN"
	EnvRedisAddr      = "BABYFORGE_REDIS_ADDR"
	EnvArtifactDir    = "BABYFORGE_ARTIFACT_DIR"
)

// Config is the full engine configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ProvidersConfig groups the remote inference backends.
type ProvidersConfig struct {
	Replicate providers.ReplicateConfig `yaml:"replicate"`
	Meshy     providers.MeshyConfig     `yaml:"meshy"`
}

// PipelineConfig holds the per-stage candidate lists and budgets plus
// the local persistence locations.
type PipelineConfig struct {
	Face pipeline.StageConfig `yaml:"face"`
	Body pipeline.StageConfig `yaml:"body"`
	Mesh pipeline.StageConfig `yaml:"mesh"`

	// BodyTemplateURL, when set, switches stage 2 from full-body
	// generation to face-swap against this reference body image.
	BodyTemplateURL string `yaml:"body_template_url"`

	ArtifactDir  string `yaml:"artifact_dir"`
	RunStorePath string `yaml:"run_store_path"`
}

// RedisConfig enables the upload URL cache when Addr is set.
type RedisConfig struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password" json:"-"`
	DB             int           `yaml:"db"`
	UploadCacheTTL time.Duration `yaml:"upload_cache_ttl"`
}

// MetricsConfig exposes Prometheus metrics when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration the engine runs with when no file
// is given: the known-good candidate ladders and the polling budgets
// each provider tolerates.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Providers: ProvidersConfig{
			Replicate: providers.ReplicateConfig{
				BaseURL:           "https://api.replicate.com/v1",
				Timeout:           30 * time.Second,
				RequestsPerSecond: 5,
			},
			Meshy: providers.MeshyConfig{
				BaseURL:           "https://api.meshy.ai",
				Timeout:           60 * time.Second,
				RequestsPerSecond: 1,
			},
		},
		Pipeline: PipelineConfig{
			Face: pipeline.StageConfig{
				Candidates: []string{
					"codeplugtech/face-swap:278a81e7ebb22db98bcba54de985d22cc1abeead2754eb1f2af717247be69b34",
				},
				PollInterval: 500 * time.Millisecond,
				Timeout:      180 * time.Second,
			},
			Body: pipeline.StageConfig{
				Candidates: []string{
					"black-forest-labs/flux-schnell",
					"black-forest-labs/flux-dev",
					"stability-ai/sdxl",
					"fofr/face-to-many",
				},
				PollInterval: 500 * time.Millisecond,
				Timeout:      90 * time.Second,
			},
			Mesh: pipeline.StageConfig{
				Candidates:   []string{"latest", "meshy-5"},
				PollInterval: 5 * time.Second,
				Timeout:      15 * time.Minute,
			},
			ArtifactDir:  "output",
			RunStorePath: "babyforge.db",
		},
		Redis: RedisConfig{UploadCacheTTL: 24 * time.Hour},
	}
}

// Load builds the configuration: defaults, overlaid with the YAML file
// at path (skipped when path is empty), overlaid with environment
// variables. Validation is left to the consumer; listing run history
// must not require provider credentials.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvReplicateToken); v != "" {
		c.Providers.Replicate.APIToken = v
	}
	if v := os.Getenv(EnvMeshyToken); v != "" {
		c.Providers.Meshy.APIToken = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvArtifactDir); v != "" {
		c.Pipeline.ArtifactDir = v
	}
}

// Validate rejects configurations that cannot produce a working
// pipeline. Credentials are checked for presence only.
func (c *Config) Validate() error {
	if c.Providers.Replicate.APIToken == "" {
		return fmt.Errorf("replicate api token is required (set %s)", EnvReplicateToken)
	}
	if c.Providers.Meshy.APIToken == "" {
		return fmt.Errorf("meshy api token is required (set %s)", EnvMeshyToken)
	}
	for _, s := range []struct {
		name string
		cfg  pipeline.StageConfig
	}{
		{"face", c.Pipeline.Face},
		{"body", c.Pipeline.Body},
		{"mesh", c.Pipeline.Mesh},
	} {
		if len(s.cfg.Candidates) == 0 {
			return fmt.Errorf("pipeline.%s: at least one candidate model is required", s.name)
		}
		if s.cfg.PollInterval <= 0 {
			return fmt.Errorf("pipeline.%s: poll_interval must be positive", s.name)
		}
		if s.cfg.Timeout <= 0 {
			return fmt.Errorf("pipeline.%s: timeout must be positive", s.name)
		}
	}
	if c.Pipeline.ArtifactDir == "" {
		return fmt.Errorf("pipeline.artifact_dir is required")
	}
	return nil
}
