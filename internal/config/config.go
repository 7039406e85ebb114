// Package config loads the toolbroker binary configuration from an optional
// YAML file and TOOLBROKER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/aretw0/toolbroker/pkg/adapters/redis"
	"github.com/aretw0/toolbroker/pkg/broker"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no explicit path is given and it exists in the working directory.
const DefaultFile = "toolbroker.yaml"

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "TOOLBROKER_"

// Config is the binary configuration.
type Config struct {
	Listen    string        `mapstructure:"listen"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
	Metrics   bool          `mapstructure:"metrics"`
	Redis     RedisConfig   `mapstructure:"redis"`
	Broker    BrokerConfig  `mapstructure:"broker"`
	MCP       MCPConfig     `mapstructure:"mcp"`
	Shutdown  time.Duration `mapstructure:"shutdown_timeout"`
}

// RedisConfig selects the durable store. An empty URL keeps tools in memory only.
type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
	Lock     bool          `mapstructure:"lock"`
	LockTTL  time.Duration `mapstructure:"lock_ttl"`
	LockWait time.Duration `mapstructure:"lock_wait"`
}

// BrokerConfig holds the broker timings.
type BrokerConfig struct {
	GracePeriod       time.Duration `mapstructure:"grace_period"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	StaleAfter        time.Duration `mapstructure:"stale_after"`
	ExecutionTimeout  time.Duration `mapstructure:"execution_timeout"`
}

// MCPConfig configures the MCP SSE transport.
type MCPConfig struct {
	SSEListen string `mapstructure:"sse_listen"`
	BaseURL   string `mapstructure:"base_url"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Listen:    ":8001",
		LogLevel:  "info",
		LogFormat: "text",
		Metrics:   true,
		Redis: RedisConfig{
			Prefix:   redis.DefaultPrefix,
			TTL:      redis.DefaultTTL,
			LockTTL:  15 * time.Second,
			LockWait: 10 * time.Second,
		},
		Broker: BrokerConfig{
			GracePeriod:       broker.DefaultGracePeriod,
			HeartbeatInterval: broker.DefaultHeartbeatInterval,
			StaleAfter:        broker.DefaultStaleAfter,
			ExecutionTimeout:  broker.DefaultExecutionTimeout,
		},
		MCP: MCPConfig{
			SSEListen: ":8002",
			BaseURL:   "http://localhost:8002",
		},
		Shutdown: 5 * time.Second,
	}
}

// envKeys maps environment variable suffixes to configuration paths.
var envKeys = map[string]string{
	"LISTEN":                    "listen",
	"LOG_LEVEL":                 "log_level",
	"LOG_FORMAT":                "log_format",
	"METRICS":                   "metrics",
	"SHUTDOWN_TIMEOUT":          "shutdown_timeout",
	"REDIS_URL":                 "redis.url",
	"REDIS_PREFIX":              "redis.prefix",
	"REDIS_TTL":                 "redis.ttl",
	"REDIS_LOCK":                "redis.lock",
	"REDIS_LOCK_TTL":            "redis.lock_ttl",
	"REDIS_LOCK_WAIT":           "redis.lock_wait",
	"BROKER_GRACE_PERIOD":       "broker.grace_period",
	"BROKER_HEARTBEAT_INTERVAL": "broker.heartbeat_interval",
	"BROKER_STALE_AFTER":        "broker.stale_after",
	"BROKER_EXECUTION_TIMEOUT":  "broker.execution_timeout",
	"MCP_SSE_LISTEN":            "mcp.sse_listen",
	"MCP_BASE_URL":              "mcp.base_url",
}

// Load builds the configuration from defaults, then the YAML file at path,
// then the environment. An empty path reads DefaultFile if it exists.
// environ uses the os.Environ format.
func Load(path string, environ []string) (Config, error) {
	raw := map[string]any{}

	file := path
	if file == "" {
		file = DefaultFile
	}
	data, err := os.ReadFile(file)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", file, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	case path == "" && errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key, known := envKeys[strings.TrimPrefix(name, EnvPrefix)]
		if !known {
			continue
		}
		set(raw, strings.Split(key, "."), value)
	}

	cfg := Default()
	if err := decode(raw, &cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func set(m map[string]any, path []string, value string) {
	for _, p := range path[:len(path)-1] {
		next, ok := m[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[p] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

func decode(raw map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// Validate rejects values the broker cannot run with.
func (c Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"broker.grace_period":       c.Broker.GracePeriod,
		"broker.heartbeat_interval": c.Broker.HeartbeatInterval,
		"broker.stale_after":        c.Broker.StaleAfter,
		"broker.execution_timeout":  c.Broker.ExecutionTimeout,
		"redis.ttl":                 c.Redis.TTL,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", key, d))
		}
	}
	if c.Broker.StaleAfter <= c.Broker.HeartbeatInterval {
		errs = append(errs, fmt.Errorf("broker.stale_after (%s) must exceed broker.heartbeat_interval (%s)",
			c.Broker.StaleAfter, c.Broker.HeartbeatInterval))
	}
	if c.Redis.Lock && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.lock requires redis.url"))
	}
	return errors.Join(errs...)
}
