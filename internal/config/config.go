// SPDX-License-Identifier: MIT

// Package config loads application configuration from an optional YAML file
// and the environment. Environment values win over file values; the result
// is an explicit value handed to constructors, never ambient state.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/InsiderP/video-streaming/internal/media"
)

// AppConfig holds the full configuration for the transcoding core.
type AppConfig struct {
	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`
	SQLitePath string `yaml:"sqlite_path"`

	FFmpegPath  string `yaml:"ffmpeg_path"`
	WorkerCount int    `yaml:"worker_count"` // bounded pool for concurrent rung encodes

	Redis RedisConfig `yaml:"redis"`
	Cloud CloudConfig `yaml:"cloud"`

	// PublishLocalOutputs uploads locally-produced renditions to object
	// storage after a successful run and repoints their locations.
	PublishLocalOutputs bool `yaml:"publish_local_outputs"`

	Rungs []media.QualityRung `yaml:"rungs"`
}

// RedisConfig holds the cache connection settings. An empty Addr selects
// the in-memory cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// CloudConfig holds the remote transcoding and object storage settings.
// The cloud strategy is selected when Configured() is true.
type CloudConfig struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"` // account-specific MediaConvert endpoint
	RoleARN   string `yaml:"role_arn"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	S3Config  S3Config
}

// S3Config carries object-storage specifics split out from CloudConfig.
type S3Config struct {
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// Configured reports whether cloud credentials are present and the cloud
// strategy should be used.
func (c CloudConfig) Configured() bool {
	return c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// Default returns the built-in configuration.
func Default() AppConfig {
	return AppConfig{
		DataDir:     "data",
		ListenAddr:  ":8080",
		SQLitePath:  filepath.Join("data", "videos.db"),
		FFmpegPath:  "ffmpeg",
		WorkerCount: 2,
		Rungs:       media.DefaultRungs(),
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is non-empty), then environment overrides.
func Load(path string) (AppConfig, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FromEnv builds the configuration from defaults and the environment only.
func FromEnv() (AppConfig, error) {
	return Load(os.Getenv("VS_CONFIG_FILE"))
}

func (c *AppConfig) applyEnv() {
	c.DataDir = ParseString("VS_DATA_DIR", c.DataDir)
	c.ListenAddr = ParseString("VS_LISTEN_ADDR", c.ListenAddr)
	c.SQLitePath = ParseString("VS_SQLITE_PATH", c.SQLitePath)
	c.FFmpegPath = ParseString("VS_FFMPEG_PATH", c.FFmpegPath)
	c.WorkerCount = ParseInt("VS_WORKER_COUNT", c.WorkerCount)
	c.PublishLocalOutputs = ParseBool("VS_PUBLISH_LOCAL_OUTPUTS", c.PublishLocalOutputs)

	c.Redis.Addr = ParseString("VS_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = ParseString("VS_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = ParseInt("VS_REDIS_DB", c.Redis.DB)

	c.Cloud.Region = ParseString("VS_CLOUD_REGION", c.Cloud.Region)
	c.Cloud.Endpoint = ParseString("VS_CLOUD_ENDPOINT", c.Cloud.Endpoint)
	c.Cloud.RoleARN = ParseString("VS_CLOUD_ROLE_ARN", c.Cloud.RoleARN)
	c.Cloud.AccessKey = ParseString("VS_CLOUD_ACCESS_KEY", c.Cloud.AccessKey)
	c.Cloud.SecretKey = ParseString("VS_CLOUD_SECRET_KEY", c.Cloud.SecretKey)
	c.Cloud.Bucket = ParseString("VS_CLOUD_BUCKET", c.Cloud.Bucket)
	c.Cloud.S3Config.Endpoint = ParseString("VS_S3_ENDPOINT", c.Cloud.S3Config.Endpoint)
	c.Cloud.S3Config.UsePathStyle = ParseBool("VS_S3_PATH_STYLE", c.Cloud.S3Config.UsePathStyle)
}

// Validate checks structural invariants of the configuration.
func (c AppConfig) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("config: worker_count must be >= 1, got %d", c.WorkerCount)
	}
	if len(c.Rungs) == 0 {
		return fmt.Errorf("config: quality rung table must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Rungs))
	for _, r := range c.Rungs {
		if r.Quality == "" || r.Width <= 0 || r.Height <= 0 || r.BitrateKbps <= 0 {
			return fmt.Errorf("config: invalid rung %+v", r)
		}
		if _, dup := seen[r.Quality]; dup {
			return fmt.Errorf("config: duplicate rung quality %q", r.Quality)
		}
		seen[r.Quality] = struct{}{}
	}
	return nil
}
