// Package simulate generates synthetic scored transactions and mule-network
// transfer clusters for demos and benchmarks.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/shopspring/decimal"
)

const idAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// Generator produces synthetic data from an explicitly seeded source.
// Two generators built with the same seed and clock produce the same output.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time

	processor *decision.Processor
	analyzer  *graph.Analyzer

	fraudRate       float64
	attackFraudRate float64
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock sets the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// New creates a generator. The processor should wrap a simulation scoring
// engine; the analyzer computes cluster attributes.
func New(processor *decision.Processor, analyzer *graph.Analyzer, cfg domain.SimulationConfig, opts ...Option) *Generator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	def := domain.DefaultConfig().Simulation
	if cfg.FraudRate <= 0 || cfg.FraudRate > 1 {
		cfg.FraudRate = def.FraudRate
	}
	if cfg.AttackFraudRate <= 0 || cfg.AttackFraudRate > 1 {
		cfg.AttackFraudRate = def.AttackFraudRate
	}

	g := &Generator{
		rng:             rand.New(rand.NewPCG(uint64(seed), uint64(seed>>1)^0x9e3779b97f4a7c15)),
		now:             time.Now,
		processor:       processor,
		analyzer:        analyzer,
		fraudRate:       cfg.FraudRate,
		attackFraudRate: cfg.AttackFraudRate,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewFromConfig wires a generator with a simulation scoring engine,
// a decision processor and a graph analyzer built from cfg.
func NewFromConfig(cfg *domain.Config, opts ...Option) (*Generator, error) {
	scoringOpts, err := scoring.OptionsFromConfig(cfg.Scoring)
	if err != nil {
		return nil, err
	}
	engine, err := scoring.NewSimulationEngine(scoringOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation engine: %w", err)
	}
	processor, err := decision.NewProcessor(engine, cfg.Decision)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision processor: %w", err)
	}
	gen := New(processor, graph.NewAnalyzer(cfg.Graph), cfg.Simulation, opts...)
	gen.analyzer.WithClock(gen.now)
	return gen, nil
}

// Processor returns the decision processor used for scoring.
func (g *Generator) Processor() *decision.Processor {
	return g.processor
}

// Analyzer returns the graph analyzer used for clusters.
func (g *Generator) Analyzer() *graph.Analyzer {
	return g.analyzer
}

// FraudRates returns the base and attack-mode fraud probabilities.
func (g *Generator) FraudRates() (base, attack float64) {
	return g.fraudRate, g.attackFraudRate
}

func (g *Generator) pick(n int) int {
	return g.rng.IntN(n)
}

func (g *Generator) between(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

func (g *Generator) chance(p float64) bool {
	return g.rng.Float64() < p
}

func (g *Generator) id(prefix string, n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = idAlphabet[g.pick(len(idAlphabet))]
	}
	return prefix + string(b)
}

// money rounds to cents.
func money(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// withLock runs fn while holding the generator lock. rand.Rand is not safe
// for concurrent use.
func (g *Generator) withLock(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn()
}

var errNoProcessor = errors.New("generator has no decision processor")

func (g *Generator) score(ctx context.Context, draft *domain.Transaction) (*domain.Transaction, error) {
	if g.processor == nil {
		return nil, errNoProcessor
	}
	return g.processor.Process(ctx, draft)
}
