// Package graph detects mule-network typologies in transfer graphs and
// scores the resulting clusters.
package graph

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Score bands for clusters.
const (
	FlaggedFloor = 70
	MaxScore     = 100
)

// Evidence weights. Each structural signal adds value*weight to the evidence sum.
const (
	WeightFanMagnitude  = 1.5
	WeightCycle         = 10.0
	WeightLayeringDepth = 1.5
	WeightBurstVelocity = 1.5
	WeightHubCount      = 2.0
)

// Input is one cluster analysis request.
type Input struct {
	ClusterID string            `json:"cluster_id,omitempty"`
	Typology  domain.Typology   `json:"typology"`
	Transfers []domain.Transfer `json:"transfers"`
}

// Analyzer computes cluster attributes from transfer structure.
// It holds only configuration and is safe for concurrent use.
type Analyzer struct {
	cfg domain.GraphConfig
	now func() time.Time
}

// NewAnalyzer creates an analyzer. Zero config fields take their defaults.
func NewAnalyzer(cfg domain.GraphConfig) *Analyzer {
	def := domain.DefaultGraphConfig()
	if cfg.HubDegreeThreshold <= 0 {
		cfg.HubDegreeThreshold = def.HubDegreeThreshold
	}
	if cfg.FanThreshold <= 0 {
		cfg.FanThreshold = def.FanThreshold
	}
	if cfg.MinLayeringDepth <= 0 {
		cfg.MinLayeringDepth = def.MinLayeringDepth
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = def.BurstWindow
	}
	if cfg.BurstThreshold <= 0 {
		cfg.BurstThreshold = def.BurstThreshold
	}
	if cfg.MaxSearchSteps <= 0 {
		cfg.MaxSearchSteps = def.MaxSearchSteps
	}
	return &Analyzer{cfg: cfg, now: time.Now}
}

// WithClock sets the clock used for CreatedAt.
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	a.now = now
	return a
}

// Config returns the effective configuration.
func (a *Analyzer) Config() domain.GraphConfig {
	return a.cfg
}

// Analyze validates the transfers and returns a new cluster with every
// derived attribute computed from the graph.
func (a *Analyzer) Analyze(in Input) (*domain.Cluster, error) {
	if len(in.Transfers) == 0 {
		return nil, domain.ErrEmptyTransfers
	}
	if !in.Typology.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTypology, in.Typology)
	}
	if err := validateTransfers(in.Transfers); err != nil {
		return nil, err
	}

	g := buildGraph(in.Transfers)

	c := &domain.Cluster{
		ID:              in.ClusterID,
		Typology:        in.Typology,
		AccountCount:    len(g.order),
		TotalFlowAmount: totalFlow(in.Transfers),
		HubAccounts:     g.hubs(a.cfg.HubDegreeThreshold),
		Transfers:       append([]domain.Transfer(nil), in.Transfers...),
		Status:          domain.ClusterMonitoring,
		CreatedAt:       a.now().UTC(),
	}
	if c.ID == "" {
		c.ID = NewClusterID()
	}
	if c.HubAccounts == nil {
		c.HubAccounts = []string{}
	}

	c.FanOutCount, c.FanInCount = g.maxDegrees()
	c.CycleAccounts = g.findCycle()
	c.CycleIndicator = len(c.CycleAccounts) > 0
	c.LayeringDepth, _ = g.longestPath(a.cfg.MaxSearchSteps)
	c.BurstVelocity = math.Round(burstRate(in.Transfers, a.cfg.BurstWindow)*100) / 100

	c.DetectedTypologies = a.detect(c, g)
	c.RiskScore, c.Contributions = score(c)
	return c, nil
}

// detect lists the typologies confirmed by structure, in the canonical order.
func (a *Analyzer) detect(c *domain.Cluster, g *transferGraph) []domain.Typology {
	found := map[domain.Typology]bool{
		domain.TypologyFanOut:     c.FanOutCount >= a.cfg.FanThreshold,
		domain.TypologyFanIn:      c.FanInCount >= a.cfg.FanThreshold,
		domain.TypologyCycle:      c.CycleIndicator,
		domain.TypologyLayering:   c.LayeringDepth >= a.cfg.MinLayeringDepth && !c.CycleIndicator,
		domain.TypologyHub:        g.hasBridgeHub(a.cfg.HubDegreeThreshold),
		domain.TypologyBurstChain: c.LayeringDepth >= 3 && c.BurstVelocity >= a.cfg.BurstThreshold,
	}

	detected := []domain.Typology{}
	for _, t := range domain.Typologies() {
		if found[t] {
			detected = append(detected, t)
		}
	}
	return detected
}

// score combines structural evidence additively, then clamps into the
// flagged band [70,100] or the unflagged band [0,69].
func score(c *domain.Cluster) (int, []domain.EvidenceContribution) {
	cycle := 0.0
	if c.CycleIndicator {
		cycle = 1
	}

	signals := []struct {
		name   string
		value  float64
		weight float64
	}{
		{"fan_magnitude", float64(max(c.FanOutCount, c.FanInCount)), WeightFanMagnitude},
		{"cycle", cycle, WeightCycle},
		{"layering_depth", float64(c.LayeringDepth), WeightLayeringDepth},
		{"burst_velocity", c.BurstVelocity, WeightBurstVelocity},
		{"hub_count", float64(len(c.HubAccounts)), WeightHubCount},
	}

	var evidence float64
	contributions := make([]domain.EvidenceContribution, 0, len(signals))
	for _, s := range signals {
		contribution := s.value * s.weight
		evidence += contribution
		contributions = append(contributions, domain.EvidenceContribution{
			Signal:       s.name,
			Value:        s.value,
			Weight:       s.weight,
			Contribution: contribution,
		})
	}

	if c.Flagged() {
		return clamp(int(math.Round(FlaggedFloor+evidence)), FlaggedFloor, MaxScore), contributions
	}
	return clamp(int(math.Round(evidence)), 0, FlaggedFloor-1), contributions
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func validateTransfers(transfers []domain.Transfer) error {
	for i, t := range transfers {
		switch {
		case strings.TrimSpace(t.FromAccount) == "" || strings.TrimSpace(t.ToAccount) == "":
			return fmt.Errorf("%w: transfer %d has an empty account", domain.ErrInvalidInput, i)
		case t.FromAccount == t.ToAccount:
			return fmt.Errorf("%w: transfer %d sends from %s to itself", domain.ErrInvalidInput, i, t.FromAccount)
		case math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) || t.Amount < 0:
			return fmt.Errorf("%w: transfer %d has invalid amount", domain.ErrInvalidInput, i)
		}
	}
	return nil
}

// totalFlow sums transfer amounts in decimal and rounds to cents.
func totalFlow(transfers []domain.Transfer) float64 {
	total := decimal.Zero
	for _, t := range transfers {
		total = total.Add(decimal.NewFromFloat(t.Amount))
	}
	return total.Round(2).InexactFloat64()
}

// NewClusterID returns a fresh CLU- identifier.
func NewClusterID() string {
	return "CLU-" + strings.ToUpper(uuid.NewString()[:8])
}
