package simulate

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/reference"
)

// Draft returns an unscored synthetic transaction. The fraud label is drawn
// first and every other feature is correlated with it.
func (g *Generator) Draft(attackMode bool) *domain.Transaction {
	var tx *domain.Transaction
	g.withLock(func() { tx = g.draft(attackMode) })
	return tx
}

func (g *Generator) draft(attackMode bool) *domain.Transaction {
	rate := g.fraudRate
	if attackMode {
		rate = g.attackFraudRate
	}
	isFraud := g.chance(rate)

	merchants := reference.Merchants()
	merchant := merchants[g.pick(len(merchants))]

	countries := reference.LowRiskCountries()
	if isFraud {
		countries = reference.HighRiskCountries()
	}
	country := countries[g.pick(len(countries))]

	channels := reference.Channels()
	channel := channels[g.pick(len(channels))]

	tx := &domain.Transaction{
		ID:               g.id("TX-", 9),
		Timestamp:        g.now().UTC(),
		Amount:           g.amount(isFraud),
		Merchant:         merchant.Name,
		MerchantCategory: merchant.Category,
		Channel:          channel,
		Country:          country.Code,
		CustomerID:       g.id("CUST-", 6),
		DeviceID:         g.id("DEV-", 8),
		MerchantRisk:     merchant.Risk,
		IsFraud:          isFraud,
	}
	if country.Code == "US" {
		states := reference.States()
		tx.State = states[g.pick(len(states))]
	}

	if isFraud {
		tx.Velocity10Min = g.pick(10) + 3
	} else {
		tx.Velocity10Min = g.pick(3)
	}
	tx.AvgAmount30d = money(g.between(50, 350))
	if isFraud {
		tx.DeviceChangeFlag = g.chance(0.7)
		tx.GeoDistanceKm = float64(g.pick(2000) + 100)
	} else {
		tx.DeviceChangeFlag = g.chance(0.1)
		tx.GeoDistanceKm = float64(g.pick(100))
	}
	return tx
}

// amount draws from one of four fraud patterns or the legitimate range.
func (g *Generator) amount(isFraud bool) float64 {
	if !isFraud {
		return money(g.between(10, 510))
	}
	switch g.pick(4) {
	case 0:
		return float64(g.pick(5000) + 500) // high
	case 1:
		return float64(g.pick(100) + 1) // micro test charge
	case 2:
		return 999.99 // just under a reporting threshold
	default:
		return float64(g.pick(10000) + 2000) // very high
	}
}

// GenerateTransaction produces one scored synthetic transaction.
// Attack mode raises the fraud rate.
func (g *Generator) GenerateTransaction(ctx context.Context, attackMode bool) (*domain.Transaction, error) {
	tx, err := g.score(ctx, g.Draft(attackMode))
	if err != nil {
		return nil, fmt.Errorf("failed to score generated transaction: %w", err)
	}
	return tx, nil
}

// GenerateBatch produces count scored synthetic transactions.
func (g *Generator) GenerateBatch(ctx context.Context, count int, attackMode bool) ([]*domain.Transaction, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: count must be non-negative, got %d", domain.ErrInvalidInput, count)
	}

	out := make([]*domain.Transaction, 0, count)
	for i := 0; i < count; i++ {
		tx, err := g.GenerateTransaction(ctx, attackMode)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}
