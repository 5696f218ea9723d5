// Package config holds the application configuration, loaded from an
// optional YAML file and TRAVELGUIDE_* environment variables, with CLI
// flags bound on top by the cli package.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the application configuration tree.
type Config struct {
	LogLevel  string
	Server    ServerConfig
	Pipeline  PipelineConfig
	Assistant AssistantConfig
	Archive   ArchiveConfig
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string
	BodyLimit    int // max request body in bytes
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PipelineConfig configures photo processing.
type PipelineConfig struct {
	Concurrency    int    // bound on in-flight per-file pipelines
	MaxUploadBytes int64  // per-file size cap
	PreviewDir     string // where preview files are written; empty = os temp dir
}

// AssistantConfig configures the AI collaborator client.
type AssistantConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ArchiveConfig configures optional archival of original uploads to
// S3-compatible storage.
type ArchiveConfig struct {
	Enabled   bool
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// New returns a configuration with default values.
func New() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:         ":8080",
			BodyLimit:    64 << 20,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Pipeline: PipelineConfig{
			Concurrency:    4,
			MaxUploadBytes: 20 << 20,
		},
		Assistant: AssistantConfig{
			Model:   "gemini-2.5-flash",
			Timeout: 60 * time.Second,
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
			UseSSL: true,
		},
	}
}

// Load reads configuration from the given file (optional) and the
// environment on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := New()

	v := viper.New()
	v.SetEnvPrefix("travelguide")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.body_limit", cfg.Server.BodyLimit)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)
	v.SetDefault("pipeline.concurrency", cfg.Pipeline.Concurrency)
	v.SetDefault("pipeline.max_upload_bytes", cfg.Pipeline.MaxUploadBytes)
	v.SetDefault("pipeline.preview_dir", cfg.Pipeline.PreviewDir)
	v.SetDefault("assistant.base_url", cfg.Assistant.BaseURL)
	v.SetDefault("assistant.api_key", cfg.Assistant.APIKey)
	v.SetDefault("assistant.model", cfg.Assistant.Model)
	v.SetDefault("assistant.timeout", cfg.Assistant.Timeout)
	v.SetDefault("archive.enabled", cfg.Archive.Enabled)
	v.SetDefault("archive.endpoint", cfg.Archive.Endpoint)
	v.SetDefault("archive.region", cfg.Archive.Region)
	v.SetDefault("archive.bucket", cfg.Archive.Bucket)
	v.SetDefault("archive.access_key", cfg.Archive.AccessKey)
	v.SetDefault("archive.secret_key", cfg.Archive.SecretKey)
	v.SetDefault("archive.use_ssl", cfg.Archive.UseSSL)
	v.SetDefault("archive.prefix", cfg.Archive.Prefix)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg.LogLevel = v.GetString("log_level")
	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.BodyLimit = v.GetInt("server.body_limit")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Pipeline.Concurrency = v.GetInt("pipeline.concurrency")
	cfg.Pipeline.MaxUploadBytes = v.GetInt64("pipeline.max_upload_bytes")
	cfg.Pipeline.PreviewDir = v.GetString("pipeline.preview_dir")
	cfg.Assistant.BaseURL = v.GetString("assistant.base_url")
	cfg.Assistant.APIKey = v.GetString("assistant.api_key")
	cfg.Assistant.Model = v.GetString("assistant.model")
	cfg.Assistant.Timeout = v.GetDuration("assistant.timeout")
	cfg.Archive.Enabled = v.GetBool("archive.enabled")
	cfg.Archive.Endpoint = v.GetString("archive.endpoint")
	cfg.Archive.Region = v.GetString("archive.region")
	cfg.Archive.Bucket = v.GetString("archive.bucket")
	cfg.Archive.AccessKey = v.GetString("archive.access_key")
	cfg.Archive.SecretKey = v.GetString("archive.secret_key")
	cfg.Archive.UseSSL = v.GetBool("archive.use_ssl")
	cfg.Archive.Prefix = v.GetString("archive.prefix")

	return cfg, nil
}
