// Package config defines the runtime configuration of castverify and the
// task catalog seed format.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ahrav/castverify/internal/domain/engagement"
	"github.com/ahrav/castverify/internal/domain/task"
)

// StorageDriver selects the persistence backend.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"
	StoragePostgres StorageDriver = "postgres"
)

// AppConfig represents the top-level runtime configuration.
type AppConfig struct {
	Neynar  NeynarConfig  `mapstructure:"neynar"`
	Verify  VerifyConfig  `mapstructure:"verify"`
	Polling PollingConfig `mapstructure:"polling"`
	Storage StorageConfig `mapstructure:"storage"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Otel    OtelConfig    `mapstructure:"otel"`
	Log     LogConfig     `mapstructure:"log"`
	Tasks   TasksConfig   `mapstructure:"tasks"`
	Session SessionConfig `mapstructure:"session"`
}

// NeynarConfig configures the remote content API client. A blank APIKey is
// valid configuration: every remote call then fails as not configured.
type NeynarConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst" validate:"gte=0"`
}

// VerifyConfig tunes the evidence strategies.
type VerifyConfig struct {
	RepliesLimit  int `mapstructure:"replies_limit" validate:"gt=0"`
	ChildrenLimit int `mapstructure:"children_limit" validate:"gt=0"`
	HistoryLimit  int `mapstructure:"history_limit" validate:"gt=0"`
	// CommentRetryDelay is waited before the second comment pass. A negative
	// value disables the second pass.
	CommentRetryDelay time.Duration       `mapstructure:"comment_retry_delay"`
	PreCheckDelay     PreCheckDelayConfig `mapstructure:"pre_check_delay"`
}

// PreCheckDelayConfig is the wait before an actor-requested sweep, per action.
type PreCheckDelayConfig struct {
	Like    time.Duration `mapstructure:"like" validate:"gte=0"`
	Recast  time.Duration `mapstructure:"recast" validate:"gte=0"`
	Comment time.Duration `mapstructure:"comment" validate:"gte=0"`
}

// Delays returns the delays keyed by action.
func (c PreCheckDelayConfig) Delays() map[engagement.ActionKind]time.Duration {
	return map[engagement.ActionKind]time.Duration{
		engagement.ActionLike:    c.Like,
		engagement.ActionRecast:  c.Recast,
		engagement.ActionComment: c.Comment,
	}
}

// PollingConfig bounds the background re-checks of opened tasks.
type PollingConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay" validate:"gte=0"`
	Interval     time.Duration `mapstructure:"interval" validate:"gt=0"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gte=0"`
}

type StorageConfig struct {
	Driver   StorageDriver `mapstructure:"driver" validate:"oneof=memory postgres"`
	DSN      string        `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	MinConns int32         `mapstructure:"min_conns" validate:"gte=0"`
	MaxConns int32         `mapstructure:"max_conns" validate:"gte=0"`
	// Migrations is a golang-migrate source URL. Empty uses the bundled
	// db/migrations directory.
	Migrations string `mapstructure:"migrations"`
}

// CacheConfig configures the resolution cache. An empty BadgerPath keeps the
// cache in memory.
type CacheConfig struct {
	BadgerPath string        `mapstructure:"badger_path"`
	TTL        time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// KafkaConfig configures event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic" validate:"required_with=Brokers"`
	ClientID string   `mapstructure:"client_id"`
}

// Enabled reports whether events should be published.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type OtelConfig struct {
	Endpoint      string  `mapstructure:"endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio" validate:"gte=0,lte=1"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// TasksConfig points at the catalog seed file loaded at startup.
type TasksConfig struct {
	CatalogFile string `mapstructure:"catalog_file"`
}

// SessionConfig bounds how long an idle actor session is kept in memory. A
// zero IdleTTL keeps sessions for the life of the process.
type SessionConfig struct {
	IdleTTL       time.Duration `mapstructure:"idle_ttl" validate:"gte=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
}

// CatalogSeed is the on-disk task catalog.
type CatalogSeed struct {
	Tasks []TaskSeed `yaml:"tasks"`
}

// TaskSeed describes one task in the catalog seed.
type TaskSeed struct {
	ID        string `yaml:"id"`
	Reference string `yaml:"reference"`
	Action    string `yaml:"action"`
	Username  string `yaml:"username,omitempty"`
	AvatarURL string `yaml:"avatar_url,omitempty"`
}

// Definitions converts the seed into task definitions, rejecting entries
// without a reference or with an unknown action.
func (s *CatalogSeed) Definitions() ([]task.Definition, error) {
	defs := make([]task.Definition, 0, len(s.Tasks))
	for i, t := range s.Tasks {
		ref := strings.TrimSpace(t.Reference)
		if ref == "" {
			return nil, fmt.Errorf("task %d: %w", i, engagement.ErrEmptyReference)
		}
		action, err := engagement.ParseActionKind(t.Action)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", i, err)
		}
		defs = append(defs, task.Definition{
			ID:        strings.TrimSpace(t.ID),
			Reference: engagement.ContentReference(ref),
			Action:    action,
			Username:  t.Username,
			AvatarURL: t.AvatarURL,
		})
	}
	return defs, nil
}
