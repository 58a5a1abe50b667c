// Package decision turns risk scores into Approve/Challenge/Decline decisions
// and produces scored transactions.
package decision

import (
	"context"
	"errors"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Scorer evaluates transaction features.
type Scorer interface {
	Evaluate(f domain.Features) (*scoring.Result, error)
}

// labelReader is implemented by scorers that may consume the simulation label.
type labelReader interface {
	SimulationBias() bool
}

// Thresholds maps scores to decisions. Scores at or above DeclineAt are
// declined, scores at or above ChallengeAt are challenged, the rest approved.
type Thresholds struct {
	ChallengeAt int
	DeclineAt   int
}

// DefaultThresholds returns the standard 40/70 bands.
func DefaultThresholds() Thresholds {
	cfg := domain.DefaultDecisionConfig()
	return Thresholds{ChallengeAt: cfg.ChallengeAt, DeclineAt: cfg.DeclineAt}
}

// Validate checks 0 < ChallengeAt < DeclineAt <= 100.
func (t Thresholds) Validate() error {
	if t.ChallengeAt <= 0 || t.ChallengeAt >= t.DeclineAt || t.DeclineAt > scoring.MaxScore {
		return fmt.Errorf("%w: thresholds must satisfy 0 < challenge (%d) < decline (%d) <= %d",
			domain.ErrInvalidInput, t.ChallengeAt, t.DeclineAt, scoring.MaxScore)
	}
	return nil
}

// Decide maps a score to a decision.
func (t Thresholds) Decide(score int) domain.Decision {
	switch {
	case score >= t.DeclineAt:
		return domain.DecisionDecline
	case score >= t.ChallengeAt:
		return domain.DecisionChallenge
	default:
		return domain.DecisionApprove
	}
}

// floor returns the lowest score that maps to d.
func (t Thresholds) floor(d domain.Decision) int {
	switch d {
	case domain.DecisionDecline:
		return t.DeclineAt
	case domain.DecisionChallenge:
		return t.ChallengeAt
	default:
		return 0
	}
}

// Decide maps a score to a decision with the default thresholds.
func Decide(score int) domain.Decision {
	return DefaultThresholds().Decide(score)
}

// Processor scores transaction drafts and attaches the decision.
type Processor struct {
	scorer     Scorer
	thresholds Thresholds
	fallback   domain.Decision
	readsLabel bool
}

// NewProcessor creates a processor from the decision configuration.
func NewProcessor(scorer Scorer, cfg domain.DecisionConfig) (*Processor, error) {
	if scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	th := Thresholds{ChallengeAt: cfg.ChallengeAt, DeclineAt: cfg.DeclineAt}
	if err := th.Validate(); err != nil {
		return nil, err
	}

	fallback := cfg.Fallback
	if fallback == "" {
		fallback = domain.DecisionChallenge
	}
	if !fallback.Valid() {
		return nil, fmt.Errorf("%w: unknown fallback decision %q", domain.ErrInvalidInput, fallback)
	}

	p := &Processor{scorer: scorer, thresholds: th, fallback: fallback}
	if lr, ok := scorer.(labelReader); ok {
		p.readsLabel = lr.SimulationBias()
	}
	return p, nil
}

// Thresholds returns the processor's score bands.
func (p *Processor) Thresholds() Thresholds {
	return p.thresholds
}

// Process scores a transaction draft and returns a new scored transaction.
// The draft is not modified. Invalid input is returned as an error; any
// other scoring failure yields the fallback decision with Fallback set.
func (p *Processor) Process(ctx context.Context, draft *domain.Transaction) (*domain.Transaction, error) {
	if draft == nil {
		return nil, fmt.Errorf("%w: transaction is required", domain.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx := *draft
	tx.ReasonKeys = nil
	tx.ReasonCodes = nil
	tx.Fallback = false

	res, err := p.scorer.Evaluate(draft.Features(p.readsLabel))
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			return nil, err
		}
		tx.Decision = p.fallback
		tx.RiskScore = p.thresholds.floor(p.fallback)
		tx.ReasonKeys = []domain.ReasonCode{}
		tx.ReasonCodes = []string{}
		tx.Fallback = true
		return &tx, nil
	}

	tx.RiskScore = res.Score
	tx.Decision = p.thresholds.Decide(res.Score)
	tx.ReasonKeys = append([]domain.ReasonCode{}, res.Reasons...)
	tx.ReasonCodes = domain.Describe(res.Reasons)
	return &tx, nil
}

// ShouldAlert reports whether a scored transaction should raise an alert.
func ShouldAlert(tx *domain.Transaction) bool {
	return tx.Decision == domain.DecisionDecline
}
