package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities. It abstracts the source
// of configuration so the binaries do not care whether it came from a file or
// the environment.
type Loader interface {
	Load(ctx context.Context) (*AppConfig, error)
}

// CatalogLoader loads the task catalog seed.
type CatalogLoader interface {
	Load(ctx context.Context) (*CatalogSeed, error)
}

const envPrefix = "CASTVERIFY"

// ViperLoader reads AppConfig from defaults, an optional YAML file and the
// environment, in increasing order of precedence.
type ViperLoader struct {
	path string
}

var _ Loader = (*ViperLoader)(nil)

// NewViperLoader creates a loader. path may be empty.
func NewViperLoader(path string) *ViperLoader {
	return &ViperLoader{path: path}
}

// Load reads, decodes and validates the configuration.
func (l *ViperLoader) Load(ctx context.Context) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The deployment convention is a bare NEYNAR_API_KEY.
	if err := v.BindEnv("neynar.api_key", envPrefix+"_NEYNAR_API_KEY", "NEYNAR_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind api key env: %w", err)
	}

	if l.path != "" {
		v.SetConfigFile(l.path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.path, err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Neynar.APIKey = strings.TrimSpace(cfg.Neynar.APIKey)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *AppConfig) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("neynar.api_key", "")
	v.SetDefault("neynar.base_url", "https://api.neynar.com")
	v.SetDefault("neynar.timeout", 10*time.Second)
	v.SetDefault("neynar.rate_limit_rps", 5.0)
	v.SetDefault("neynar.rate_limit_burst", 10)

	v.SetDefault("verify.replies_limit", 100)
	v.SetDefault("verify.children_limit", 200)
	v.SetDefault("verify.history_limit", 300)
	v.SetDefault("verify.comment_retry_delay", 5*time.Second)
	v.SetDefault("verify.pre_check_delay.like", 3*time.Second)
	v.SetDefault("verify.pre_check_delay.recast", 3*time.Second)
	v.SetDefault("verify.pre_check_delay.comment", 5*time.Second)

	v.SetDefault("polling.initial_delay", 7*time.Second)
	v.SetDefault("polling.interval", 30*time.Second)
	v.SetDefault("polling.max_attempts", 10)

	v.SetDefault("storage.driver", string(StorageMemory))
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.min_conns", 1)
	v.SetDefault("storage.max_conns", 10)
	v.SetDefault("storage.migrations", "")

	v.SetDefault("cache.badger_path", "")
	v.SetDefault("cache.ttl", 30*24*time.Hour)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "castverify.task-events")
	v.SetDefault("kafka.client_id", "castverify")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.sampling_ratio", 1.0)
	v.SetDefault("log.level", "info")
	v.SetDefault("tasks.catalog_file", "")
	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)
}
