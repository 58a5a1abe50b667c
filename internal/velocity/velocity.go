// Package velocity provides transaction velocity calculation.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Window is the trailing period velocity_10min counts over.
const Window = 10 * time.Minute

// Service calculates transaction velocity for customers.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	now   func() time.Time
}

// NewService creates a new velocity service. Either dependency may be nil.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		now:   time.Now,
	}
}

func counterKey(customerID string) string {
	return "velocity:" + customerID
}

// Observe records one transaction for customerID and returns how many have
// been seen in the current window, including this one.
func (s *Service) Observe(ctx context.Context, customerID string) (int, error) {
	if customerID == "" {
		return 0, fmt.Errorf("%w: customer_id is required", domain.ErrInvalidInput)
	}

	if s.cache != nil {
		n, err := s.cache.IncrementCounter(ctx, counterKey(customerID), Window)
		if err == nil {
			return int(n), nil
		}
		if s.repo == nil {
			return 0, fmt.Errorf("failed to increment velocity counter: %w", err)
		}
	}

	n, err := s.Count(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return n + 1, nil
}

// Count returns the number of stored transactions for customerID in the
// trailing window.
func (s *Service) Count(ctx context.Context, customerID string) (int, error) {
	if customerID == "" {
		return 0, fmt.Errorf("%w: customer_id is required", domain.ErrInvalidInput)
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	txs, err := s.repo.ListTransactions(ctx, domain.TransactionFilter{
		CustomerID: customerID,
		Since:      s.now().Add(-Window),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get transactions: %w", err)
	}
	return len(txs), nil
}
