package simulate

import (
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/reference"
)

// Pattern sizes for generated clusters.
const (
	FanSize        = 8
	CycleSize      = 6
	LayeringSize   = 8
	HubSideSize    = 4
	BurstChainSize = 5
)

// GenerateTransfer returns one random transfer between two distinct pool
// accounts within the past week.
func (g *Generator) GenerateTransfer(suspicious bool) domain.Transfer {
	var t domain.Transfer
	g.withLock(func() {
		pool := reference.AccountPool()
		from := g.pick(len(pool))
		to := g.pick(len(pool) - 1)
		if to >= from {
			to++
		}

		amount := g.between(100, 2100)
		if suspicious {
			amount = g.between(5000, 55000)
		}
		t = domain.Transfer{
			FromAccount: pool[from],
			ToAccount:   pool[to],
			Amount:      money(amount),
			Timestamp:   g.now().UTC().Add(-time.Duration(g.rng.Int64N(int64(7 * 24 * time.Hour)))),
		}
	})
	return t
}

// MuleTransfers emits the transfer pattern for a typology over the fixed
// account pool.
func (g *Generator) MuleTransfers(typology domain.Typology) ([]domain.Transfer, error) {
	if !typology.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownTypology, typology)
	}

	var transfers []domain.Transfer
	g.withLock(func() { transfers = g.muleTransfers(typology) })
	return transfers, nil
}

func (g *Generator) muleTransfers(typology domain.Typology) []domain.Transfer {
	pool := reference.AccountPool()
	now := g.now().UTC()
	hub := pool[g.pick(10)]

	var ts []domain.Transfer
	add := func(from, to string, amount float64, at time.Time) {
		ts = append(ts, domain.Transfer{FromAccount: from, ToAccount: to, Amount: money(amount), Timestamp: at})
	}
	withinDay := func() time.Time {
		return now.Add(-time.Duration(g.rng.Int64N(int64(24 * time.Hour))))
	}

	switch typology {
	case domain.TypologyFanOut:
		for i := 0; i < FanSize; i++ {
			add(hub, pool[10+i], g.between(2000, 12000), withinDay())
		}

	case domain.TypologyFanIn:
		for i := 0; i < FanSize; i++ {
			add(pool[10+i], hub, g.between(2000, 12000), withinDay())
		}

	case domain.TypologyCycle:
		ring := pool[20 : 20+CycleSize]
		for i := range ring {
			add(ring[i], ring[(i+1)%len(ring)], g.between(5000, 20000), now.Add(-time.Duration(i)*time.Hour))
		}

	case domain.TypologyLayering:
		chain := pool[30 : 30+LayeringSize]
		amount := g.between(10000, 30000)
		hops := len(chain) - 1
		for i := 0; i < hops; i++ {
			add(chain[i], chain[i+1], amount, now.Add(-time.Duration(hops-1-i)*2*time.Hour))
			amount *= g.between(0.85, 0.97)
		}

	case domain.TypologyHub:
		for i := 0; i < HubSideSize; i++ {
			add(pool[40+i], hub, g.between(2000, 12000), withinDay())
		}
		for i := 0; i < HubSideSize; i++ {
			add(hub, pool[40+HubSideSize+i], g.between(2000, 12000), withinDay())
		}

	case domain.TypologyBurstChain:
		chain := pool[10 : 10+BurstChainSize]
		amount := g.between(5000, 15000)
		at := now.Add(-45 * time.Minute)
		for i := 0; i < len(chain)-1; i++ {
			add(chain[i], chain[i+1], amount, at)
			amount *= g.between(0.90, 0.98)
			at = at.Add(time.Duration(g.pick(8)+1) * time.Minute)
		}
	}
	return ts
}

// GenerateMuleCluster generates the transfer pattern for typology and runs it
// through the graph analyzer. Unknown typologies fail with ErrUnknownTypology.
func (g *Generator) GenerateMuleCluster(typology domain.Typology) (*domain.Cluster, error) {
	transfers, err := g.MuleTransfers(typology)
	if err != nil {
		return nil, err
	}
	if g.analyzer == nil {
		return nil, fmt.Errorf("generator has no graph analyzer")
	}

	var id string
	g.withLock(func() { id = g.id("CLU-", 6) })

	cluster, err := g.analyzer.Analyze(graph.Input{
		ClusterID: id,
		Typology:  typology,
		Transfers: transfers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to analyze %s cluster: %w", typology, err)
	}
	return cluster, nil
}
