package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/stream"
)

// loadConfig builds the configuration for the selected tier and applies
// KESTREL_* overrides from getenv.
func loadConfig(getenv func(string) string) (*domain.Config, error) {
	cfg := domain.DefaultConfig()
	if domain.Tier(getenv("KESTREL_TIER")) == domain.TierPro {
		cfg = domain.ProConfig()
	}
	err := applyEnv(cfg, getenv)
	if rateErr := stream.ValidateRate(cfg.Stream.Rate); rateErr != nil {
		err = errors.Join(err, fmt.Errorf("KESTREL_STREAM_RATE: %w", rateErr))
	}
	return cfg, err
}

// applyEnv overrides cfg with every KESTREL_* variable that is set.
// Malformed values are collected and returned together.
func applyEnv(cfg *domain.Config, getenv func(string) string) error {
	e := &envReader{get: getenv}

	e.setString("KESTREL_HOST", &cfg.Server.Host)
	e.setInt("KESTREL_PORT", &cfg.Server.Port)

	e.setString("KESTREL_DB_DRIVER", &cfg.Repository.Driver)
	e.setString("KESTREL_SQLITE_PATH", &cfg.Repository.SQLitePath)
	e.setString("KESTREL_POSTGRES_HOST", &cfg.Repository.PostgresHost)
	e.setInt("KESTREL_POSTGRES_PORT", &cfg.Repository.PostgresPort)
	e.setString("KESTREL_POSTGRES_USER", &cfg.Repository.PostgresUser)
	e.setString("KESTREL_POSTGRES_PASSWORD", &cfg.Repository.PostgresPassword)
	e.setString("KESTREL_POSTGRES_DB", &cfg.Repository.PostgresDB)
	e.setString("KESTREL_POSTGRES_SSLMODE", &cfg.Repository.PostgresSSLMode)

	e.setString("KESTREL_CACHE", &cfg.Cache.Type)
	e.setString("KESTREL_REDIS_ADDR", &cfg.Cache.RedisAddr)
	e.setString("KESTREL_REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	e.setInt("KESTREL_REDIS_DB", &cfg.Cache.RedisDB)

	e.setString("KESTREL_BUS", &cfg.EventBus.Type)
	e.setString("KESTREL_NATS_URL", &cfg.EventBus.NATSUrl)
	e.setString("KESTREL_NATS_TOKEN", &cfg.EventBus.NATSToken)
	e.setList("KESTREL_KAFKA_BROKERS", &cfg.EventBus.KafkaBrokers)
	e.setString("KESTREL_KAFKA_GROUP", &cfg.EventBus.KafkaGroupID)

	e.setString("KESTREL_TIMEZONE", &cfg.Scoring.Timezone)
	e.setBool("KESTREL_PATTERN_BREAK", &cfg.Scoring.EnablePatternBreak)
	e.setFloat("KESTREL_PATTERN_BREAK_MULTIPLE", &cfg.Scoring.PatternBreakMultiple)
	e.setInt("KESTREL_CHALLENGE_AT", &cfg.Decision.ChallengeAt)
	e.setInt("KESTREL_DECLINE_AT", &cfg.Decision.DeclineAt)

	e.setInt("KESTREL_HUB_DEGREE", &cfg.Graph.HubDegreeThreshold)
	e.setInt("KESTREL_FAN_THRESHOLD", &cfg.Graph.FanThreshold)
	e.setInt("KESTREL_LAYERING_DEPTH", &cfg.Graph.MinLayeringDepth)

	e.setInt64("KESTREL_SEED", &cfg.Simulation.Seed)
	e.setFloat("KESTREL_FRAUD_RATE", &cfg.Simulation.FraudRate)
	e.setFloat("KESTREL_STREAM_RATE", &cfg.Stream.Rate)
	e.setBool("KESTREL_STREAM_AUTOSTART", &cfg.Stream.AutoStart)
	e.setBool("KESTREL_ATTACK_MODE", &cfg.Stream.AttackMode)

	e.setString("KESTREL_LOG_LEVEL", &cfg.Logging.Level)
	e.setString("KESTREL_LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(e.errs...)
}

type envReader struct {
	get  func(string) string
	errs []error
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.get(key))
	return v, v != ""
}

func (e *envReader) fail(key, v string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q: %w", key, v, err))
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setList(key string, dst *[]string) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (e *envReader) setInt(key string, dst *int) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(key, v, err)
			return
		}
		*dst = b
	}
}

// newLogger builds the default logger. debug forces the debug level.
func newLogger(cfg domain.LoggingConfig, debug bool) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
