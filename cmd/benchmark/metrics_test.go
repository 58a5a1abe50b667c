package main

import (
	"context"
	"math"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/simulate"
)

func TestSummarize(t *testing.T) {
	m := &Metrics{}
	for i := 0; i < 8; i++ {
		m.Observe(true, true)
	}
	for i := 0; i < 2; i++ {
		m.Observe(true, false)
		m.Observe(false, true)
	}
	for i := 0; i < 88; i++ {
		m.Observe(false, false)
	}

	s := m.Summarize()
	if s.TP != 8 || s.FP != 2 || s.FN != 2 || s.TN != 88 || s.Total() != 100 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if math.Abs(s.Precision-0.8) > 1e-9 || math.Abs(s.Recall-0.8) > 1e-9 || math.Abs(s.F1-0.8) > 1e-9 {
		t.Errorf("unexpected rates %+v", s)
	}
	if math.Abs(s.Accuracy-0.96) > 1e-9 {
		t.Errorf("expected accuracy 0.96, got %v", s.Accuracy)
	}

	t.Run("Empty", func(t *testing.T) {
		s := (&Metrics{}).Summarize()
		if s.Precision != 0 || s.Recall != 0 || s.F1 != 0 || s.Accuracy != 0 {
			t.Errorf("expected zero rates, got %+v", s)
		}
	})
}

func TestRunBenchmarkLocal(t *testing.T) {
	cfg := domain.DefaultConfig()
	cfg.Simulation.Seed = 11
	gen, err := simulate.NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("failed to create generator: %v", err)
	}
	scorer, err := newLocalScorer(cfg)
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}

	drafts := make([]*domain.Transaction, 200)
	fraud := int64(0)
	for i := range drafts {
		drafts[i] = gen.Draft(true)
		if drafts[i].IsFraud {
			fraud++
		}
	}

	m := runBenchmark(context.Background(), scorer, drafts, domain.DecisionChallenge, 4, false)
	s := m.Summarize()
	if s.Total() != 200 || m.TotalErrors.Load() != 0 {
		t.Fatalf("expected 200 scored without errors, got %d scored, %d errors", s.Total(), m.TotalErrors.Load())
	}
	if s.TP+s.FN != fraud {
		t.Errorf("label counts mismatch: %d vs %d", s.TP+s.FN, fraud)
	}
}
