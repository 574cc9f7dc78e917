// Package config loads the server configuration from a YAML file,
// SPRITECOLLAB_ environment variables and command line flags using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sardine-ai/spritecollab-server/cache"
	"github.com/sardine-ai/spritecollab-server/credits"
	"github.com/sardine-ai/spritecollab-server/reporting"
	"github.com/sardine-ai/spritecollab-server/source"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables overriding config keys,
// e.g. SPRITECOLLAB_REDIS_ADDR for redis.addr.
const EnvPrefix = "SPRITECOLLAB"

const (
	DefaultGitRepo   = "https://github.com/PMDCollab/SpriteCollab.git"
	DefaultAssetsURL = "https://raw.githubusercontent.com/PMDCollab/SpriteCollab/master"
)

type Config struct {
	Workdir   string          `mapstructure:"workdir"`
	LocalDir  string          `mapstructure:"local_dir"` // Serve this directory instead of the git working copy
	Git       GitConfig       `mapstructure:"git"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Reporting ReportingConfig `mapstructure:"reporting"`
	Discord   DiscordConfig   `mapstructure:"discord"`
	Log       LogConfig       `mapstructure:"log"`
}

type GitConfig struct {
	Repo      string `mapstructure:"repo"`
	Branch    string `mapstructure:"branch"`
	AssetsURL string `mapstructure:"assets_url"`
	Token     string `mapstructure:"token"`
}

type ServerConfig struct {
	Addr    string `mapstructure:"addr"`
	URL     string `mapstructure:"url"`
	AuthKey string `mapstructure:"auth_key"`
}

type RedisConfig struct {
	Addr            string        `mapstructure:"addr"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	ConnectAttempts int           `mapstructure:"connect_attempts"`
	BackoffStep     time.Duration `mapstructure:"backoff_step"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
}

type RefreshConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type ReportingConfig struct {
	WebhookURL     string        `mapstructure:"webhook_url"`
	FailureSilence time.Duration `mapstructure:"failure_silence"`
	GCSBucket      string        `mapstructure:"gcs_bucket"`
	S3Bucket       string        `mapstructure:"s3_bucket"`
	S3Region       string        `mapstructure:"s3_region"`
}

type DiscordConfig struct {
	APIURL   string `mapstructure:"api_url"`
	BotToken string `mapstructure:"bot_token"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SetDefaults registers the default value of every key with v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("workdir", "./workdir")
	v.SetDefault("local_dir", "")
	v.SetDefault("git.repo", DefaultGitRepo)
	v.SetDefault("git.branch", source.DefaultBranch)
	v.SetDefault("git.assets_url", DefaultAssetsURL)
	v.SetDefault("git.token", "")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("server.auth_key", "")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.connect_attempts", cache.DefaultConnectAttempts)
	v.SetDefault("redis.backoff_step", cache.DefaultBackoffStep)
	v.SetDefault("redis.backoff_max", cache.DefaultBackoffMax)
	v.SetDefault("refresh.schedule", "@every 10m")
	v.SetDefault("reporting.webhook_url", "")
	v.SetDefault("reporting.failure_silence", reporting.DefaultFailureSilence)
	v.SetDefault("reporting.gcs_bucket", "")
	v.SetDefault("reporting.s3_bucket", "")
	v.SetDefault("reporting.s3_region", "")
	v.SetDefault("discord.api_url", credits.DefaultAPIURL)
	v.SetDefault("discord.bot_token", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a Viper instance with defaults and environment overrides set
// up. If configFile is not empty it is read as well.
func New(configFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		logrus.WithField("file", v.ConfigFileUsed()).Info("using config file")
	}
	return v, nil
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Workdir == "" {
		return errors.New("workdir must not be empty")
	}
	if c.Git.Repo == "" {
		return errors.New("git.repo must not be empty")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr must not be empty")
	}
	if c.Redis.ConnectAttempts <= 0 {
		return errors.New("redis.connect_attempts must be positive")
	}
	if c.Redis.BackoffStep <= 0 || c.Redis.BackoffMax <= 0 {
		return errors.New("redis backoff must be positive")
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Reporting.S3Bucket != "" && c.Reporting.S3Region == "" {
		return errors.New("reporting.s3_region is required with reporting.s3_bucket")
	}
	return nil
}

// CacheConfig returns the Redis settings for cache.NewRedisStore.
func (c *Config) CacheConfig() *cache.RedisConfig {
	return &cache.RedisConfig{
		Addr:            c.Redis.Addr,
		Password:        c.Redis.Password,
		DB:              c.Redis.DB,
		ConnectAttempts: c.Redis.ConnectAttempts,
		BackoffStep:     c.Redis.BackoffStep,
		BackoffMax:      c.Redis.BackoffMax,
	}
}

// ConfigureLogging applies the log settings to the standard logrus logger.
func (c *Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.Log.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if c.Log.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
