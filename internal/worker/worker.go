// Package worker persists scored transactions and detected clusters
// published on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Worker consumes scoring and detection events from the EventBus. For each
// event it stores the record, writes an audit entry and warms the cache.
// Redelivered events are ignored once their record is stored.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	cache    domain.Cache
	recorder *audit.Recorder
	cacheTTL time.Duration

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	transactions atomic.Int64
	clusters     atomic.Int64
	duplicates   atomic.Int64
	failures     atomic.Int64
}

// Config holds worker configuration.
type Config struct {
	// CacheTTL is how long scored transactions stay cached
	CacheTTL time.Duration
}

// NewWorker creates a new async worker. repo, cache and recorder may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache, recorder *audit.Recorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		cache:    cache,
		recorder: recorder,
		cacheTTL: time.Hour,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the scored-transaction and cluster topics.
func (w *Worker) Start(cfg Config) error {
	if cfg.CacheTTL > 0 {
		w.cacheTTL = cfg.CacheTTL
	}

	handlers := []struct {
		topic   string
		handler domain.MessageHandler
	}{
		{domain.TopicTransactionScored, w.handleScored},
		{domain.TopicClusterDetected, w.handleCluster},
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, h := range handlers {
		sub, err := w.bus.Subscribe(w.ctx, h.topic, h.handler)
		if err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", h.topic, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("worker started", "topics", len(handlers))
	return nil
}

func (w *Worker) handleScored(ctx context.Context, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		w.failures.Add(1)
		slog.Error("failed to parse scored transaction",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.storeTransaction(ctx, &tx); err != nil {
		w.failures.Add(1)
		return err
	}
	return nil
}

func (w *Worker) storeTransaction(ctx context.Context, tx *domain.Transaction) error {
	if w.repo != nil {
		_, err := w.repo.GetTransaction(ctx, tx.ID)
		if err == nil {
			w.duplicates.Add(1)
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to check transaction %s: %w", tx.ID, err)
		}
		if err := w.repo.SaveTransaction(ctx, tx); err != nil {
			return fmt.Errorf("failed to save transaction %s: %w", tx.ID, err)
		}
	}

	if w.cache != nil {
		if err := w.cache.SetTransaction(ctx, tx, w.cacheTTL); err != nil {
			slog.Warn("failed to cache transaction", "tx_id", tx.ID, "error", err)
		}
	}

	if w.recorder != nil {
		if _, err := w.recorder.RecordScored(ctx, tx, audit.ActorRiskAPI); err != nil {
			return err
		}
	}

	w.transactions.Add(1)
	slog.Debug("transaction stored",
		"tx_id", tx.ID,
		"risk_score", tx.RiskScore,
		"decision", tx.Decision,
	)
	return nil
}

func (w *Worker) handleCluster(ctx context.Context, msg *domain.Message) error {
	var c domain.Cluster
	if err := json.Unmarshal(msg.Payload, &c); err != nil {
		w.failures.Add(1)
		slog.Error("failed to parse cluster",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	if err := w.storeCluster(ctx, &c); err != nil {
		w.failures.Add(1)
		return err
	}
	return nil
}

func (w *Worker) storeCluster(ctx context.Context, c *domain.Cluster) error {
	if w.repo != nil {
		_, err := w.repo.GetCluster(ctx, c.ID)
		if err == nil {
			w.duplicates.Add(1)
			return nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("failed to check cluster %s: %w", c.ID, err)
		}
		if err := w.repo.SaveCluster(ctx, c); err != nil {
			return fmt.Errorf("failed to save cluster %s: %w", c.ID, err)
		}
	}

	if w.recorder != nil {
		if _, err := w.recorder.RecordCluster(ctx, c); err != nil {
			return err
		}
	}

	w.clusters.Add(1)
	slog.Info("cluster stored",
		"cluster_id", c.ID,
		"typology", c.Typology,
		"risk_score", c.RiskScore,
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscription_count"`
	Topics            []string `json:"topics"`
	Transactions      int64    `json:"transactions"`
	Clusters          int64    `json:"clusters"`
	Duplicates        int64    `json:"duplicates"`
	Failures          int64    `json:"failures"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	return Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Transactions:      w.transactions.Load(),
		Clusters:          w.clusters.Load(),
		Duplicates:        w.duplicates.Load(),
		Failures:          w.failures.Load(),
	}
}
