// Package stream runs a live feed of synthetic scored transactions.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCapacity is the number of recent transactions kept.
const DefaultCapacity = 100

// MaxRate is the highest accepted tick rate in transactions per second.
const MaxRate = 1000.0

// Source produces one scored transaction per call.
type Source interface {
	GenerateTransaction(ctx context.Context, attackMode bool) (*domain.Transaction, error)
}

// Publisher is the part of the event bus a session needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Stats are cumulative counters since the session was created or reset.
type Stats struct {
	Total      int64   `json:"total"`
	Approved   int64   `json:"approved"`
	Challenged int64   `json:"challenged"`
	Declined   int64   `json:"declined"`
	AvgRisk    int     `json:"avg_risk"`
	Running    bool    `json:"running"`
	AttackMode bool    `json:"attack_mode"`
	Rate       float64 `json:"rate"`
	Buffered   int     `json:"buffered"`
}

// Session owns a bounded most-recent-first buffer and the ticker that
// fills it. All methods are safe for concurrent use.
type Session struct {
	source Source
	pub    Publisher
	tracer trace.Tracer
	logger *slog.Logger

	// ctl serializes Start, Stop, SetRate and Close; mu guards state.
	ctl sync.Mutex

	mu       sync.Mutex
	buf      []*domain.Transaction
	capacity int
	rate     float64
	attack   bool

	total, approved, challenged, declined int64
	riskSum                               int64

	running bool
	closed  bool
	baseCtx context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// ValidateRate reports whether rate is a usable tick rate.
func ValidateRate(rate float64) error {
	if math.IsNaN(rate) || rate <= 0 || rate > MaxRate {
		return fmt.Errorf("%w: rate must be in (0, %g] transactions per second", domain.ErrInvalidInput, MaxRate)
	}
	return nil
}

// NewSession creates a stopped session. pub may be nil. A rate outside
// (0, MaxRate] falls back to the default rate.
func NewSession(source Source, pub Publisher, cfg domain.StreamConfig) *Session {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if ValidateRate(cfg.Rate) != nil {
		cfg.Rate = domain.DefaultConfig().Stream.Rate
	}
	return &Session{
		source:   source,
		pub:      pub,
		tracer:   otel.Tracer("kestrel-stream"),
		logger:   slog.Default().With("component", "stream"),
		capacity: cfg.Capacity,
		rate:     cfg.Rate,
		attack:   cfg.AttackMode,
	}
}

// Start begins ticking at the configured rate. It is a no-op when already
// running. Cancelling ctx stops the session.
func (s *Session) Start(ctx context.Context) error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) startLocked(ctx context.Context) error {
	if s.closed {
		return domain.ErrStreamStopped
	}
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.baseCtx, s.cancel, s.done, s.running = ctx, cancel, done, true

	go s.loop(runCtx, done, s.interval())
	s.logger.Info("stream started", "rate", s.rate, "attack_mode", s.attack)
	return nil
}

// Stop halts the ticker and waits for an in-flight tick to finish.
// It is a no-op when not running.
func (s *Session) Stop() {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stop()
}

func (s *Session) stop() {
	s.mu.Lock()
	cancel, done := s.stopLocked()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		s.logger.Info("stream stopped")
	}
}

func (s *Session) stopLocked() (context.CancelFunc, chan struct{}) {
	if !s.running {
		return nil, nil
	}
	cancel, done := s.cancel, s.done
	s.running, s.cancel, s.done = false, nil, nil
	return cancel, done
}

// Close stops the session for good. Later calls to Start fail.
func (s *Session) Close() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()
	s.stop()
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Running reports whether the ticker is active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// SetAttackMode switches the fraud rate for subsequent ticks.
func (s *Session) SetAttackMode(on bool) {
	s.mu.Lock()
	s.attack = on
	s.mu.Unlock()
}

// SetRate changes the tick rate in transactions per second. A running
// session restarts its ticker; a concurrent Stop waits for the restart.
func (s *Session) SetRate(rate float64) error {
	if err := ValidateRate(rate); err != nil {
		return err
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.mu.Lock()
	if s.rate == rate || !s.running {
		s.rate = rate
		s.mu.Unlock()
		return nil
	}
	ctx := s.baseCtx
	cancel, done := s.stopLocked()
	s.rate = rate
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startLocked(ctx)
}

func (s *Session) interval() time.Duration {
	return time.Duration(float64(time.Second) / s.rate)
}

func (s *Session) loop(ctx context.Context, done chan struct{}, interval time.Duration) {
	defer close(done)
	defer func() {
		s.mu.Lock()
		if s.done == done {
			s.running, s.cancel, s.done = false, nil, nil
		}
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("stream tick failed", "error", err)
			}
		}
	}
}

// Tick generates, scores and buffers one transaction, then publishes it.
// It may be called directly whether or not the session is running.
func (s *Session) Tick(ctx context.Context) (*domain.Transaction, error) {
	ctx, span := s.tracer.Start(ctx, "stream.tick")
	defer span.End()

	s.mu.Lock()
	attack := s.attack
	s.mu.Unlock()

	tx, err := s.source.GenerateTransaction(ctx, attack)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tx.id", tx.ID),
		attribute.Int("tx.risk_score", tx.RiskScore),
		attribute.String("tx.decision", string(tx.Decision)),
	)

	s.mu.Lock()
	s.buf = append([]*domain.Transaction{tx}, s.buf...)
	if len(s.buf) > s.capacity {
		s.buf[s.capacity] = nil
		s.buf = s.buf[:s.capacity]
	}
	s.total++
	s.riskSum += int64(tx.RiskScore)
	switch tx.Decision {
	case domain.DecisionApprove:
		s.approved++
	case domain.DecisionChallenge:
		s.challenged++
	case domain.DecisionDecline:
		s.declined++
	}
	s.mu.Unlock()

	s.publish(ctx, tx)
	return tx, nil
}

func (s *Session) publish(ctx context.Context, tx *domain.Transaction) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(tx)
	if err != nil {
		s.logger.Error("failed to encode transaction", "tx_id", tx.ID, "error", err)
		return
	}
	if err := s.pub.Publish(ctx, domain.TopicTransactionScored, payload); err != nil {
		s.logger.Warn("failed to publish scored transaction", "tx_id", tx.ID, "error", err)
	}
	if decision.ShouldAlert(tx) {
		if err := s.pub.Publish(ctx, domain.TopicAlert, payload); err != nil {
			s.logger.Warn("failed to publish alert", "tx_id", tx.ID, "error", err)
		}
	}
}

// Snapshot returns the buffered transactions, most recent first.
func (s *Session) Snapshot() []*domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.Transaction(nil), s.buf...)
}

// Stats returns the cumulative counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Total:      s.total,
		Approved:   s.approved,
		Challenged: s.challenged,
		Declined:   s.declined,
		Running:    s.running,
		AttackMode: s.attack,
		Rate:       s.rate,
		Buffered:   len(s.buf),
	}
	if s.total > 0 {
		st.AvgRisk = int(math.Round(float64(s.riskSum) / float64(s.total)))
	}
	return st
}

// Reset clears the buffer and counters.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
	s.total, s.approved, s.challenged, s.declined, s.riskSum = 0, 0, 0, 0, 0
}
