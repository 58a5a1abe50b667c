package scoring

import (
	"errors"
	"math"
	"slices"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func at(hour int) time.Time {
	return time.Date(2025, 3, 14, hour, 30, 0, 0, time.UTC)
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(DefaultOptions())
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func TestWorkedExamples(t *testing.T) {
	e := newEngine(t)

	t.Run("moderate card purchase", func(t *testing.T) {
		score, reasons, err := e.Score(domain.Features{
			Amount:        1500,
			MerchantRisk:  0.5,
			Velocity10Min: 2,
			GeoDistanceKm: 50,
			Channel:       domain.ChannelCard,
			Timestamp:     at(14),
		})
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if score != 30 {
			t.Errorf("expected score 30, got %d", score)
		}
		want := []domain.ReasonCode{domain.ReasonHighAmount, domain.ReasonMerchantRisk}
		if !slices.Equal(reasons, want) {
			t.Errorf("expected reasons %v, got %v", want, reasons)
		}
	})

	t.Run("every factor fires and clamps", func(t *testing.T) {
		res, err := e.Evaluate(domain.Features{
			Amount:        5000,
			MerchantRisk:  0.8,
			Velocity10Min: 8,
			DeviceChange:  true,
			GeoDistanceKm: 1000,
			Channel:       domain.ChannelWire,
			Timestamp:     at(3),
		})
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if math.Abs(res.Raw-104) > 1e-9 {
			t.Errorf("expected raw sum 104, got %.4f", res.Raw)
		}
		if res.Score != 100 {
			t.Errorf("expected clamped score 100, got %d", res.Score)
		}
		want := []domain.ReasonCode{
			domain.ReasonHighAmount,
			domain.ReasonMerchantRisk,
			domain.ReasonHighVelocity,
			domain.ReasonNewDevice,
			domain.ReasonGeoAnomaly,
			domain.ReasonTimeAnomaly,
			domain.ReasonChannelRisk,
		}
		if !slices.Equal(res.Reasons, want) {
			t.Errorf("expected reasons %v, got %v", want, res.Reasons)
		}
	})
}

func TestThresholdBoundaries(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name   string
		f      domain.Features
		reason domain.ReasonCode
		fires  bool
	}{
		{"amount at 1000 does not fire", domain.Features{Amount: 1000}, domain.ReasonHighAmount, false},
		{"amount above 1000 fires", domain.Features{Amount: 1000.01}, domain.ReasonHighAmount, true},
		{"merchant risk at 0.4 does not fire", domain.Features{MerchantRisk: 0.4}, domain.ReasonMerchantRisk, false},
		{"velocity 5 does not fire", domain.Features{Velocity10Min: 5}, domain.ReasonHighVelocity, false},
		{"velocity 6 fires", domain.Features{Velocity10Min: 6}, domain.ReasonHighVelocity, true},
		{"geo at 500 does not fire", domain.Features{GeoDistanceKm: 500}, domain.ReasonGeoAnomaly, false},
		{"wire at 500 does not fire", domain.Features{Amount: 500, Channel: domain.ChannelWire}, domain.ReasonChannelRisk, false},
		{"instant above 500 fires", domain.Features{Amount: 501, Channel: domain.ChannelInstant}, domain.ReasonChannelRisk, true},
		{"ach above 500 does not fire", domain.Features{Amount: 900, Channel: domain.ChannelACH}, domain.ReasonChannelRisk, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.f.Timestamp.IsZero() {
				tt.f.Timestamp = at(12)
			}
			_, reasons, err := e.Score(tt.f)
			if err != nil {
				t.Fatalf("score failed: %v", err)
			}
			if got := slices.Contains(reasons, tt.reason); got != tt.fires {
				t.Errorf("reason %s: expected fires=%v, got reasons %v", tt.reason, tt.fires, reasons)
			}
		})
	}

	t.Run("night hours", func(t *testing.T) {
		for hour := 0; hour < 24; hour++ {
			_, reasons, err := e.Score(domain.Features{Timestamp: at(hour)})
			if err != nil {
				t.Fatalf("score failed: %v", err)
			}
			want := hour >= 1 && hour <= 5
			if got := slices.Contains(reasons, domain.ReasonTimeAnomaly); got != want {
				t.Errorf("hour %d: expected time_anomaly=%v", hour, want)
			}
		}
	})
}

func TestLocalHour(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	opts := DefaultOptions()
	opts.Location = loc
	e, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	// 22:00 UTC is 03:00 at UTC+5.
	_, reasons, _ := e.Score(domain.Features{Timestamp: at(22)})
	if !slices.Contains(reasons, domain.ReasonTimeAnomaly) {
		t.Errorf("expected time_anomaly in configured zone, got %v", reasons)
	}

	// Without a configured zone the timestamp's own zone is used.
	ownZone := time.Date(2025, 3, 14, 2, 0, 0, 0, loc)
	_, reasons, _ = newEngine(t).Score(domain.Features{Timestamp: ownZone})
	if !slices.Contains(reasons, domain.ReasonTimeAnomaly) {
		t.Errorf("expected time_anomaly from own zone, got %v", reasons)
	}
}

func TestInvalidInput(t *testing.T) {
	e := newEngine(t)

	tests := []struct {
		name string
		f    domain.Features
	}{
		{"negative amount", domain.Features{Amount: -1, Timestamp: at(12)}},
		{"nan amount", domain.Features{Amount: math.NaN(), Timestamp: at(12)}},
		{"missing timestamp", domain.Features{Amount: 10}},
		{"unknown channel", domain.Features{Amount: 10, Channel: "Pigeon", Timestamp: at(12)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := e.Score(tt.f)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}

	t.Run("out of range values are clamped", func(t *testing.T) {
		score, reasons, err := e.Score(domain.Features{
			Amount:        10,
			MerchantRisk:  7,
			Velocity10Min: -4,
			GeoDistanceKm: -30,
			Timestamp:     at(12),
		})
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		// merchant_risk clamps to 1.0 and contributes 30
		if score != 30 {
			t.Errorf("expected 30, got %d", score)
		}
		if !slices.Equal(reasons, []domain.ReasonCode{domain.ReasonMerchantRisk}) {
			t.Errorf("unexpected reasons %v", reasons)
		}
	})
}

func TestFraudLabel(t *testing.T) {
	label := true
	f := domain.Features{Amount: 10, Timestamp: at(12), FraudLabel: &label}

	t.Run("production engine ignores label", func(t *testing.T) {
		score, _, err := newEngine(t).Score(f)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if score != 0 {
			t.Errorf("expected 0, got %d", score)
		}
	})

	t.Run("simulation engine applies bias without a reason", func(t *testing.T) {
		e, err := NewSimulationEngine(DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		score, reasons, err := e.Score(f)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if score != 40 {
			t.Errorf("expected 40, got %d", score)
		}
		if len(reasons) != 0 {
			t.Errorf("expected no reasons, got %v", reasons)
		}
	})
}

func TestPatternBreak(t *testing.T) {
	f := domain.Features{Amount: 600, AvgAmount30d: 100, Timestamp: at(12)}

	_, reasons, _ := newEngine(t).Score(f)
	if slices.Contains(reasons, domain.ReasonPatternBreak) {
		t.Error("pattern_break should be disabled by default")
	}

	opts := DefaultOptions()
	opts.EnablePatternBreak = true
	e, err := New(opts)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	score, reasons, _ := e.Score(f)
	if score != 10 || !slices.Equal(reasons, []domain.ReasonCode{domain.ReasonPatternBreak}) {
		t.Errorf("expected pattern_break worth 10, got %d %v", score, reasons)
	}
}

func TestCustomFactors(t *testing.T) {
	t.Run("invalid expression", func(t *testing.T) {
		_, err := NewWithFactors(DefaultOptions(), []Factor{{Name: "bad", Condition: "this is not CEL", Addend: "1.0"}})
		if err == nil {
			t.Error("expected compile error")
		}
	})

	t.Run("non-bool condition", func(t *testing.T) {
		_, err := NewWithFactors(DefaultOptions(), []Factor{{Name: "bad", Condition: "amount", Addend: "1.0"}})
		if err == nil {
			t.Error("expected type error")
		}
	})

	t.Run("unknown reason", func(t *testing.T) {
		e := newEngine(t)
		if err := e.Validate(Factor{Name: "x", Reason: "bogus", Condition: "true", Addend: "1"}); err == nil {
			t.Error("expected unknown reason error")
		}
	})

	t.Run("negative addend lowers score", func(t *testing.T) {
		e, err := NewWithFactors(DefaultOptions(), []Factor{
			{Name: "base", Condition: "true", Addend: "20"},
			{Name: "trusted", Condition: "channel == 'ACH'", Addend: "-50.0"},
		})
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		score, _, _ := e.Score(domain.Features{Channel: domain.ChannelACH, Timestamp: at(12)})
		if score != 0 {
			t.Errorf("expected clamp to 0, got %d", score)
		}
	})

	t.Run("runtime error surfaces", func(t *testing.T) {
		e, err := NewWithFactors(DefaultOptions(), []Factor{
			{Name: "div", Condition: "true", Addend: "100 / (velocity_10min - velocity_10min)"},
		})
		if err != nil {
			t.Fatalf("failed to create engine: %v", err)
		}
		_, _, err = e.Score(domain.Features{Timestamp: at(12)})
		if err == nil || errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected evaluation error, got %v", err)
		}
	})
}

func TestFactorsListing(t *testing.T) {
	e := newEngine(t)
	factors := e.Factors()
	if len(factors) != 7 {
		t.Fatalf("expected 7 production factors, got %d", len(factors))
	}
	for _, f := range factors {
		if f.SimulationOnly {
			t.Errorf("production engine loaded simulation factor %s", f.Name)
		}
		if Describe(f.Reason) == "" {
			t.Errorf("factor %s has no description", f.Name)
		}
	}
}

func TestAmountMonotonicity(t *testing.T) {
	e := newEngine(t)
	base := domain.Features{MerchantRisk: 0.5, Velocity10Min: 7, Channel: domain.ChannelWire, Timestamp: at(12)}

	prev := -1
	for _, amount := range []float64{0, 100, 499, 500, 501, 999, 1000, 1001, 5000, 100000} {
		f := base
		f.Amount = amount
		score, _, err := e.Score(f)
		if err != nil {
			t.Fatalf("score failed: %v", err)
		}
		if score < prev {
			t.Errorf("score decreased at amount %.2f: %d < %d", amount, score, prev)
		}
		prev = score
	}
}
