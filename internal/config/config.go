// Package config loads process configuration from config.yaml and CHATBRIDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skosovsky/chatbridge/provider/yuanbao"
	"github.com/skosovsky/chatbridge/transcript"
)

// EnvPrefix prefixes every environment override, e.g. CHATBRIDGE_SERVER_ADDR.
const EnvPrefix = "CHATBRIDGE"

// Config is the full process configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Provider    ProviderConfig    `mapstructure:"provider"`
	Transcript  TranscriptConfig  `mapstructure:"transcript"`
	Attachments AttachmentsConfig `mapstructure:"attachments"`
	Models      ModelsConfig      `mapstructure:"models"`
	Log         LogConfig         `mapstructure:"log"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// LegacyErrors reports client and provider errors as HTTP 200 with a {status, message} body.
	LegacyErrors bool `mapstructure:"legacy_errors"`
}

// ProviderConfig configures the Yuanbao client. MaxRetries of 0 disables retries.
type ProviderConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	AgentID    string        `mapstructure:"agent_id"`
	UserCookie string        `mapstructure:"user_cookie"`
	UploadURL  string        `mapstructure:"upload_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// TranscriptConfig controls how requests are flattened for the provider.
type TranscriptConfig struct {
	// NonTextParts is "drop" or "placeholder".
	NonTextParts string `mapstructure:"non_text_parts"`
}

// AttachmentsConfig controls uploading files referenced by the last message.
type AttachmentsConfig struct {
	Enabled  bool  `mapstructure:"enabled"`
	MaxBytes int64 `mapstructure:"max_bytes"`
}

// ModelsConfig selects the model list source. URL wins over File; both fall back to the
// embedded catalog.
type ModelsConfig struct {
	File string        `mapstructure:"file"`
	URL  string        `mapstructure:"url"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// DefaultConfig returns the configuration used when no file or environment overrides apply.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8002", LegacyErrors: true},
		Provider: ProviderConfig{
			BaseURL:    yuanbao.DefaultBaseURL,
			AgentID:    yuanbao.DefaultAgentID,
			Timeout:    yuanbao.DefaultTimeout,
			MaxRetries: 3,
		},
		Transcript:  TranscriptConfig{NonTextParts: string(transcript.DropNonText)},
		Attachments: AttachmentsConfig{Enabled: false, MaxBytes: 10 << 20},
		Models:      ModelsConfig{TTL: 5 * time.Minute},
		Log:         LogConfig{Level: "info"},
	}
}

// setDefaults registers every key so AutomaticEnv overrides reach Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.legacy_errors", d.Server.LegacyErrors)
	v.SetDefault("provider.base_url", d.Provider.BaseURL)
	v.SetDefault("provider.agent_id", d.Provider.AgentID)
	v.SetDefault("provider.user_cookie", d.Provider.UserCookie)
	v.SetDefault("provider.upload_url", d.Provider.UploadURL)
	v.SetDefault("provider.timeout", d.Provider.Timeout)
	v.SetDefault("provider.max_retries", d.Provider.MaxRetries)
	v.SetDefault("transcript.non_text_parts", d.Transcript.NonTextParts)
	v.SetDefault("attachments.enabled", d.Attachments.Enabled)
	v.SetDefault("attachments.max_bytes", d.Attachments.MaxBytes)
	v.SetDefault("models.file", d.Models.File)
	v.SetDefault("models.url", d.Models.URL)
	v.SetDefault("models.ttl", d.Models.TTL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Load reads path, or config.yaml from the working directory and $XDG_CONFIG_HOME/chatbridge
// when path is empty. A missing search-path file is not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			v.AddConfigPath(filepath.Join(xdg, "chatbridge"))
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("config: server.addr is required")
	}
	if c.Provider.BaseURL == "" {
		return errors.New("config: provider.base_url is required")
	}
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("config: provider.timeout must be positive, got %s", c.Provider.Timeout)
	}
	if c.Provider.MaxRetries < 0 {
		return fmt.Errorf("config: provider.max_retries must not be negative, got %d", c.Provider.MaxRetries)
	}
	switch transcript.NonTextPolicy(c.Transcript.NonTextParts) {
	case transcript.DropNonText, transcript.PlaceholderNonText:
	default:
		return fmt.Errorf("config: transcript.non_text_parts must be %q or %q, got %q",
			transcript.DropNonText, transcript.PlaceholderNonText, c.Transcript.NonTextParts)
	}
	if c.Attachments.MaxBytes <= 0 {
		return fmt.Errorf("config: attachments.max_bytes must be positive, got %d", c.Attachments.MaxBytes)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	return nil
}

// NewLogger builds the process logger from the log section.
func (c LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// YuanbaoConfig maps the provider section to the client configuration.
func (c ProviderConfig) YuanbaoConfig() yuanbao.Config {
	return yuanbao.Config{
		BaseURL:    c.BaseURL,
		AgentID:    c.AgentID,
		UserCookie: c.UserCookie,
		UploadURL:  c.UploadURL,
		Timeout:    c.Timeout,
	}
}
