package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Etcd       EtcdConfig       `mapstructure:"etcd"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"ratelimit"`
	Publisher  PublisherConfig  `mapstructure:"publisher"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Secrets    SecretsConfig    `mapstructure:"secrets"`
	Platforms  PlatformsConfig  `mapstructure:"platforms"`
}

type ServerConfig struct {
	Environment string `mapstructure:"environment"`
	Port        string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // mysql or sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type EtcdConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type AuthConfig struct {
	SigningKey string `mapstructure:"signing_key"`
	DevMode    bool   `mapstructure:"dev_mode"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second"`
}

type PublisherConfig struct {
	Embedded            bool          `mapstructure:"embedded"`
	Schedule            string        `mapstructure:"schedule"`
	BatchSize           int           `mapstructure:"batch_size"`
	JobConcurrency      int           `mapstructure:"job_concurrency"`
	PlatformConcurrency int           `mapstructure:"platform_concurrency"`
	PublishTimeout      time.Duration `mapstructure:"publish_timeout"`
	StoreTimeout        time.Duration `mapstructure:"store_timeout"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
}

type ReconcilerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	BatchSize  int           `mapstructure:"batch_size"`
	LockKey    string        `mapstructure:"lock_key"`
}

type SecretsConfig struct {
	GlobalSource string `mapstructure:"global_source"` // sql or etcd
	EtcdPrefix   string `mapstructure:"etcd_prefix"`
}

type PlatformsConfig struct {
	TwitterBaseURL  string `mapstructure:"twitter_base_url"`
	LinkedInBaseURL string `mapstructure:"linkedin_base_url"`
	YouTubeBaseURL  string `mapstructure:"youtube_base_url"`
}

// DevSigningKey is the default token key. It is public, so prod refuses it.
const DevSigningKey = "postflow-dev-signing-key"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.environment", "dev")
	v.SetDefault("server.port", ":8080")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:postflow.db?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("auth.signing_key", DevSigningKey)
	v.SetDefault("ratelimit.requests_per_second", 5)
	v.SetDefault("publisher.embedded", true)
	v.SetDefault("publisher.schedule", "@every 1m")
	v.SetDefault("publisher.batch_size", 50)
	v.SetDefault("publisher.job_concurrency", 8)
	v.SetDefault("publisher.platform_concurrency", 4)
	v.SetDefault("publisher.publish_timeout", 30*time.Second)
	v.SetDefault("publisher.store_timeout", 5*time.Second)
	v.SetDefault("publisher.max_attempts", 3)
	v.SetDefault("reconciler.interval", 2*time.Minute)
	v.SetDefault("reconciler.stale_after", 10*time.Minute)
	v.SetDefault("reconciler.batch_size", 20)
	v.SetDefault("reconciler.lock_key", "/postflow/locks/reconciler")
	v.SetDefault("secrets.global_source", "sql")
	v.SetDefault("secrets.etcd_prefix", "/postflow/secrets/global/")
	v.SetDefault("platforms.twitter_base_url", "https://api.twitter.com")
	v.SetDefault("platforms.linkedin_base_url", "https://api.linkedin.com")
	v.SetDefault("platforms.youtube_base_url", "https://www.googleapis.com")
}

func Load() *Config {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("POSTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// a missing file is fine, defaults and env cover everything
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}

	return &cfg
}

// Validate rejects settings the pipeline cannot run safely with.
func (c *Config) Validate() error {
	if c.Server.Environment == "prod" {
		if c.Auth.SigningKey == "" || c.Auth.SigningKey == DevSigningKey {
			return errors.New("auth.signing_key must be set in prod")
		}
		if c.Auth.DevMode {
			return errors.New("auth.dev_mode cannot be enabled in prod")
		}
	}

	// A running job is touched at least once per platform call, so the
	// longest quiet period is one credential lookup, one publish call and one
	// attempt write. A job quiet for less than that is still owned.
	quiet := c.Publisher.PublishTimeout + 2*c.Publisher.StoreTimeout
	if c.Reconciler.StaleAfter <= quiet {
		return fmt.Errorf("reconciler.stale_after (%s) must exceed publisher.publish_timeout + 2*publisher.store_timeout (%s)",
			c.Reconciler.StaleAfter, quiet)
	}
	return nil
}
