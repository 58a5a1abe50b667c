package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

type failingScorer struct{ err error }

func (f failingScorer) Evaluate(domain.Features) (*scoring.Result, error) {
	return nil, f.err
}

func newProcessor(t *testing.T) *Processor {
	t.Helper()
	engine, err := scoring.New(scoring.DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	p, err := NewProcessor(engine, domain.DefaultDecisionConfig())
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	return p
}

func TestDecide(t *testing.T) {
	tests := []struct {
		score int
		want  domain.Decision
	}{
		{0, domain.DecisionApprove},
		{39, domain.DecisionApprove},
		{40, domain.DecisionChallenge},
		{69, domain.DecisionChallenge},
		{70, domain.DecisionDecline},
		{100, domain.DecisionDecline},
	}
	for _, tt := range tests {
		if got := Decide(tt.score); got != tt.want {
			t.Errorf("Decide(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	bad := []Thresholds{
		{ChallengeAt: 0, DeclineAt: 70},
		{ChallengeAt: 70, DeclineAt: 70},
		{ChallengeAt: 40, DeclineAt: 101},
	}
	for _, th := range bad {
		if err := th.Validate(); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected invalid thresholds %+v to fail, got %v", th, err)
		}
	}
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("default thresholds invalid: %v", err)
	}
}

func TestProcess(t *testing.T) {
	p := newProcessor(t)
	ctx := context.Background()

	t.Run("Decline", func(t *testing.T) {
		draft := &domain.Transaction{
			ID:               "TX-1",
			Timestamp:        time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC),
			Amount:           5000,
			MerchantRisk:     0.8,
			Velocity10Min:    8,
			DeviceChangeFlag: true,
			GeoDistanceKm:    1000,
			Channel:          domain.ChannelWire,
		}
		tx, err := p.Process(ctx, draft)
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}
		if tx.RiskScore != 100 || tx.Decision != domain.DecisionDecline {
			t.Errorf("expected 100/Decline, got %d/%s", tx.RiskScore, tx.Decision)
		}
		if len(tx.ReasonCodes) != len(tx.ReasonKeys) || len(tx.ReasonKeys) != 7 {
			t.Errorf("expected 7 reasons, got %v", tx.ReasonKeys)
		}
		if tx.ReasonCodes[0] != domain.ReasonHighAmount.Description() {
			t.Errorf("unexpected first description %q", tx.ReasonCodes[0])
		}
		if draft.RiskScore != 0 || draft.Decision != "" {
			t.Error("draft was modified")
		}
		if !ShouldAlert(tx) {
			t.Error("expected decline to alert")
		}
	})

	t.Run("ProductionIgnoresLabel", func(t *testing.T) {
		tx, err := p.Process(ctx, &domain.Transaction{Amount: 20, Timestamp: time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC), IsFraud: true})
		if err != nil {
			t.Fatalf("process failed: %v", err)
		}
		if tx.RiskScore != 0 || tx.Decision != domain.DecisionApprove {
			t.Errorf("expected 0/Approve, got %d/%s", tx.RiskScore, tx.Decision)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		_, err := p.Process(ctx, &domain.Transaction{Amount: -5, Timestamp: time.Now()})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("DefaultChallenge", func(t *testing.T) {
		p, err := NewProcessor(failingScorer{err: errors.New("feature store timeout")}, domain.DefaultDecisionConfig())
		if err != nil {
			t.Fatalf("failed to create processor: %v", err)
		}
		tx, err := p.Process(ctx, &domain.Transaction{ID: "TX-2", Amount: 10, Timestamp: time.Now()})
		if err != nil {
			t.Fatalf("expected fallback, got error %v", err)
		}
		if !tx.Fallback || tx.Decision != domain.DecisionChallenge {
			t.Errorf("expected fallback Challenge, got %+v", tx)
		}
		if Decide(tx.RiskScore) != tx.Decision {
			t.Errorf("fallback score %d inconsistent with %s", tx.RiskScore, tx.Decision)
		}
		if len(tx.ReasonKeys) != 0 {
			t.Errorf("expected no reasons, got %v", tx.ReasonKeys)
		}
	})

	t.Run("ConfiguredDecline", func(t *testing.T) {
		cfg := domain.DefaultDecisionConfig()
		cfg.Fallback = domain.DecisionDecline
		p, _ := NewProcessor(failingScorer{err: errors.New("boom")}, cfg)
		tx, _ := p.Process(ctx, &domain.Transaction{Amount: 10, Timestamp: time.Now()})
		if tx.Decision != domain.DecisionDecline || tx.RiskScore != 70 {
			t.Errorf("expected Decline at 70, got %s at %d", tx.Decision, tx.RiskScore)
		}
	})

	t.Run("InvalidInputIsNotMasked", func(t *testing.T) {
		p, _ := NewProcessor(failingScorer{err: domain.ErrInvalidInput}, domain.DefaultDecisionConfig())
		if _, err := p.Process(ctx, &domain.Transaction{}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("UnknownFallback", func(t *testing.T) {
		cfg := domain.DefaultDecisionConfig()
		cfg.Fallback = "Maybe"
		if _, err := NewProcessor(failingScorer{}, cfg); err == nil {
			t.Error("expected error for unknown fallback")
		}
	})
}
