package domain

import "time"

// Config holds the complete Kestrel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines which backing services are used
	Tier Tier `json:"tier"`

	// Component configurations
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	// Engines
	Scoring    ScoringConfig    `json:"scoring"`
	Decision   DecisionConfig   `json:"decision"`
	Graph      GraphConfig      `json:"graph"`
	Stream     StreamConfig     `json:"stream"`
	Simulation SimulationConfig `json:"simulation"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// ScoringConfig tunes the transaction risk scoring engine.
type ScoringConfig struct {
	// Timezone used to derive the local hour for the time-of-day factor.
	// Empty means the timestamp's own zone.
	Timezone string `json:"timezone"`

	// EnablePatternBreak adds the pattern_break factor
	// (amount far above the customer's 30 day average).
	EnablePatternBreak bool `json:"enablePatternBreak"`

	// PatternBreakMultiple is how many times the 30 day average an amount
	// must exceed to count as a pattern break.
	PatternBreakMultiple float64 `json:"patternBreakMultiple"`
}

// DecisionConfig maps risk scores to decisions.
type DecisionConfig struct {
	ChallengeAt int      `json:"challengeAt"` // lowest score that is challenged
	DeclineAt   int      `json:"declineAt"`   // lowest score that is declined
	Fallback    Decision `json:"fallback"`    // used when scoring cannot complete
}

// GraphConfig tunes typology detection over transfer graphs.
type GraphConfig struct {
	HubDegreeThreshold int           `json:"hubDegreeThreshold"`
	FanThreshold       int           `json:"fanThreshold"`
	MinLayeringDepth   int           `json:"minLayeringDepth"`
	BurstWindow        time.Duration `json:"burstWindow"`
	BurstThreshold     float64       `json:"burstThreshold"` // transfers per hour
	MaxSearchSteps     int           `json:"maxSearchSteps"`
}

// StreamConfig holds live stream session settings.
type StreamConfig struct {
	Rate       float64 `json:"rate"`     // transactions per second
	Capacity   int     `json:"capacity"` // most recent transactions kept
	AttackMode bool    `json:"attackMode"`
	AutoStart  bool    `json:"autoStart"`
}

// SimulationConfig holds synthetic data generator settings.
type SimulationConfig struct {
	Seed            int64   `json:"seed"` // 0 means seed from the clock
	FraudRate       float64 `json:"fraudRate"`
	AttackFraudRate float64 `json:"attackFraudRate"`
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

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs everything in process: SQLite, LRU cache, channels
	TierCommunity Tier = "community"

	// TierPro uses PostgreSQL + Redis + NATS
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: ":memory:",
		},
		Cache: CacheConfig{
			Type:           "memory",
			LocalMaxSize:   10000,
			LocalTTL:       5 * time.Minute,
			TransactionTTL: time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Scoring: ScoringConfig{
			PatternBreakMultiple: 5,
		},
		Decision: DefaultDecisionConfig(),
		Graph:    DefaultGraphConfig(),
		Stream: StreamConfig{
			Rate:     5,
			Capacity: 100,
		},
		Simulation: SimulationConfig{
			FraudRate:       0.05,
			AttackFraudRate: 0.6,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "kestrel",
		},
	}
}

// DefaultDecisionConfig returns the standard score bands:
// >= 70 Decline, 40-69 Challenge, < 40 Approve.
func DefaultDecisionConfig() DecisionConfig {
	return DecisionConfig{
		ChallengeAt: 40,
		DeclineAt:   70,
		Fallback:    DecisionChallenge,
	}
}

// DefaultGraphConfig returns the default typology detection thresholds.
func DefaultGraphConfig() GraphConfig {
	return GraphConfig{
		HubDegreeThreshold: 4,
		FanThreshold:       5,
		MinLayeringDepth:   4,
		BurstWindow:        time.Hour,
		BurstThreshold:     4,
		MaxSearchSteps:     200000,
	}
}

// ProConfig returns a configuration for Pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "kestrel",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       time.Minute,
		TransactionTTL: 24 * time.Hour,
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
