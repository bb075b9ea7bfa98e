package domain

import "time"

// Config holds the complete Merlin configuration.
type Config struct {
	// Tier determines which backends the defaults wire up.
	Tier Tier `json:"tier"`

	Rules    RulesConfig    `json:"rules"`
	Schemas  SchemasConfig  `json:"schemas"`
	Scoring  ScoringConfig  `json:"scoring"`
	Insights InsightsConfig `json:"insights"`

	Sessions SessionConfig  `json:"sessions"`
	EventBus EventBusConfig `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs single-node with in-memory sessions + channel bus.
	TierCommunity Tier = "community"

	// TierPro adds Redis-backed sessions and NATS eventing.
	TierPro Tier = "pro"
)

// RulesConfig selects the rule catalogue source.
type RulesConfig struct {
	// Source is "dir", "sqlite" or "postgres".
	Source string `json:"source"`

	// Dir is the rule-document root for the "dir" source. Documents live
	// under <dir>/<domain>/*.yaml plus <dir>/cross/*.yaml.
	Dir string `json:"dir"`

	// Watch enables hot reload of the directory source.
	Watch bool `json:"watch"`

	// SQLitePath is the database file for the "sqlite" source.
	SQLitePath string `json:"sqlitePath"`

	// Postgres settings for the "postgres" source.
	PostgresHost     string `json:"postgresHost"`
	PostgresPort     int    `json:"postgresPort"`
	PostgresUser     string `json:"postgresUser"`
	PostgresPassword string `json:"-"`
	PostgresDB       string `json:"postgresDb"`
	PostgresSSLMode  string `json:"postgresSslMode"`
}

// SchemasConfig locates the per-domain payload schema documents.
type SchemasConfig struct {
	Dir string `json:"dir"`
}

// ScoringConfig locates the external weights/breakpoints document.
type ScoringConfig struct {
	WeightsPath string `json:"weightsPath"`
}

// InsightsConfig locates the narrative template document.
type InsightsConfig struct {
	TemplatesPath string `json:"templatesPath"`
}

// SessionConfig controls the assessment-session registry.
type SessionConfig struct {
	// Store is "memory" or "redis".
	Store string `json:"store"`

	// TTL bounds how long an open session waits for remaining domains.
	TTL time.Duration `json:"ttl"`

	// MaxOpen caps concurrently open sessions in the memory store.
	MaxOpen int `json:"maxOpen"`

	RedisAddr     string `json:"redisAddr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redisDb"`
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is "channel" or "nats".
	Type string `json:"type"`

	ChannelBufferSize int `json:"channelBufferSize"`

	NATSUrl           string `json:"natsUrl"`
	NATSToken         string `json:"-"`
	NATSMaxReconnects int    `json:"natsMaxReconnects"`
	NATSReconnectWait int    `json:"natsReconnectWait"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	ServiceName string `json:"serviceName"`
}

// DefaultConfig returns a Community-tier configuration.
func DefaultConfig() *Config {
	return &Config{
		Tier: TierCommunity,
		Rules: RulesConfig{
			Source: "dir",
			Dir:    "./rules",
		},
		Schemas: SchemasConfig{
			Dir: "./schemas",
		},
		Scoring: ScoringConfig{
			WeightsPath: "./config/weights.yaml",
		},
		Insights: InsightsConfig{
			TemplatesPath: "./config/insight_templates.yaml",
		},
		Sessions: SessionConfig{
			Store:   "memory",
			TTL:     30 * time.Minute,
			MaxOpen: 1000,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "merlin",
		},
	}
}

// ProConfig returns a Pro-tier configuration with Redis sessions and
// NATS eventing.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Sessions = SessionConfig{
		Store:     "redis",
		TTL:       30 * time.Minute,
		RedisAddr: "localhost:6379",
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
