// Package config loads the relay node's runtime parameters from an optional
// file and LITCHAT_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures the node runtime parameters.
type Config struct {
	ListenAddress    string        `mapstructure:"listen_address"`
	AdvertiseAddress string        `mapstructure:"advertise_address"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFile          LogFileConfig `mapstructure:"log_file"`

	IdleTimeout         time.Duration `mapstructure:"idle_timeout"`
	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	Admin     AdminConfig     `mapstructure:"admin"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Route     RouteConfig     `mapstructure:"route"`
	Offline   OfflineConfig   `mapstructure:"offline"`
	Members   MembersConfig   `mapstructure:"members"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
}

// LogFileConfig enables the optional rotating file sink.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AdminConfig hosts metrics and health endpoints.
type AdminConfig struct {
	Address           string        `mapstructure:"address"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
}

// RedisConfig locates the shared KV store.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig locates the broadcast channel.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// BroadcastConfig names the shared chat topic.
type BroadcastConfig struct {
	Topic string `mapstructure:"topic"`
}

// RouteConfig tunes route table entries.
type RouteConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// OfflineConfig caps the per-user offline queue.
type OfflineConfig struct {
	Limit int64 `mapstructure:"limit"`
}

// MembersConfig locates the membership database and tunes its cache.
type MembersConfig struct {
	DBPath   string        `mapstructure:"db_path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// CryptoConfig enables the optional payload encryption stage. The passphrase
// comes from an environment variable, never the config file.
type CryptoConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	PassphraseEnv string `mapstructure:"passphrase_env"`
	Salt          string `mapstructure:"salt"`
}

const (
	defaultListenAddress       = "0.0.0.0:9090"
	defaultLogLevel            = "info"
	defaultIdleTimeout         = 60 * time.Second
	defaultShutdownGracePeriod = 10 * time.Second
	defaultAdminAddress        = "0.0.0.0:9091"
	defaultAdminReadHeader     = 5 * time.Second
	defaultRedisAddr           = "127.0.0.1:6379"
	defaultNATSURL             = "nats://127.0.0.1:4222"
	defaultBroadcastTopic      = "chat.messages"
	defaultRouteTTL            = 24 * time.Hour
	defaultOfflineLimit        = 50
	defaultMembersDBPath       = "data/members.db"
	defaultMembersCacheTTL     = time.Hour
	defaultPassphraseEnv       = "LITCHAT_PAYLOAD_KEY"
)

// Load reads configuration from the provided file path (if any) and the
// environment. Environment variables are prefixed with LITCHAT_ and override
// file values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LITCHAT")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", defaultListenAddress)
	v.SetDefault("advertise_address", "")
	v.SetDefault("log_level", defaultLogLevel)
	v.SetDefault("idle_timeout", defaultIdleTimeout.String())
	v.SetDefault("shutdown_grace_period", defaultShutdownGracePeriod.String())
	v.SetDefault("admin.address", defaultAdminAddress)
	v.SetDefault("admin.read_header_timeout", defaultAdminReadHeader.String())
	v.SetDefault("redis.addr", defaultRedisAddr)
	v.SetDefault("nats.url", defaultNATSURL)
	v.SetDefault("broadcast.topic", defaultBroadcastTopic)
	v.SetDefault("route.ttl", defaultRouteTTL.String())
	v.SetDefault("offline.limit", defaultOfflineLimit)
	v.SetDefault("members.db_path", defaultMembersDBPath)
	v.SetDefault("members.cache_ttl", defaultMembersCacheTTL.String())
	v.SetDefault("crypto.enabled", false)
	v.SetDefault("crypto.passphrase_env", defaultPassphraseEnv)
	v.SetDefault("crypto.salt", "")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Viper leaves durations as strings; normalize them here.
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"idle_timeout", &cfg.IdleTimeout},
		{"shutdown_grace_period", &cfg.ShutdownGracePeriod},
		{"admin.read_header_timeout", &cfg.Admin.ReadHeaderTimeout},
		{"route.ttl", &cfg.Route.TTL},
		{"members.cache_ttl", &cfg.Members.CacheTTL},
	}
	for _, d := range durations {
		dur, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = dur
	}

	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListenAddress
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.Offline.Limit <= 0 {
		cfg.Offline.Limit = defaultOfflineLimit
	}
	if cfg.Crypto.PassphraseEnv == "" {
		cfg.Crypto.PassphraseEnv = defaultPassphraseEnv
	}

	return cfg, nil
}

// Passphrase fetches the payload encryption passphrase from the configured
// environment variable.
func (c Config) Passphrase() (string, error) {
	env := c.Crypto.PassphraseEnv
	if env == "" {
		env = defaultPassphraseEnv
	}
	val := strings.TrimSpace(getenv(env))
	if val == "" {
		return "", fmt.Errorf("payload passphrase env %s is empty", env)
	}
	return val, nil
}

// split out for testing.
var getenv = os.Getenv
