// Package audit writes the immutable trail of scoring, detection and
// investigation actions.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Model versions stamped on automated decisions.
const (
	FraudModelVersion = "fraud-rules-v1"
	AMLModelVersion   = "aml-graph-v1"
)

// Actors for automated entries. Reviewer names are used for manual ones.
const (
	ActorRiskAPI   = "Risk API"
	ActorAMLEngine = "AML Engine"
	ActorStream    = "Stream"
	ActorSystem    = "System"
)

// Actions.
const (
	ActionScoreGenerated  = "Risk Score Generated"
	ActionChallengeIssued = "Challenge Issued"
	ActionDeclined        = "Transaction Declined"
	ActionClusterDetected = "AML Cluster Detected"
	ActionCaseOpened      = "Case Opened"
	ActionCaseUpdated     = "Case Status Changed"
	ActionEvidence        = "Evidence Completed"
	ActionNoteAdded       = "Note Added"
	ActionSARFiled        = "SAR Filed"
	ActionCaseResolved    = "Case Resolved"
)

const firstSequence = 10000

// Store persists audit entries.
type Store interface {
	SaveAuditEntry(ctx context.Context, entry *domain.AuditEntry) error
	ListAuditEntries(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error)
}

// Recorder assigns ids and timestamps to audit entries and stores them.
// With a nil store, entries are only logged.
type Recorder struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	seq int64
}

// NewRecorder creates a Recorder. store may be nil.
func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store:  store,
		logger: slog.Default().With("component", "audit"),
		now:    time.Now,
		seq:    firstSequence,
	}
}

// Resume continues numbering after the newest stored entry.
func (r *Recorder) Resume(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	latest, err := r.store.ListAuditEntries(ctx, domain.AuditFilter{Limit: 1})
	if err != nil {
		return fmt.Errorf("failed to read audit trail: %w", err)
	}
	if len(latest) == 0 {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimPrefix(latest[0].ID, "LOG-"), 10, 64)
	if err != nil {
		return nil
	}

	r.mu.Lock()
	r.seq = max(r.seq, n+1)
	r.mu.Unlock()
	return nil
}

func (r *Recorder) nextID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := "LOG-" + strconv.FormatInt(r.seq, 10)
	r.seq++
	return id
}

// Record fills in the id and timestamp of entry and stores it.
func (r *Recorder) Record(ctx context.Context, entry *domain.AuditEntry) (*domain.AuditEntry, error) {
	entry.ID = r.nextID()
	if entry.Timestamp.IsZero() {
		entry.Timestamp = r.now().UTC()
	}
	if entry.ReasonCodes == nil {
		entry.ReasonCodes = []string{}
	}

	r.logger.Debug("audit",
		"log_id", entry.ID,
		"action", entry.Action,
		"entity_type", entry.EntityType,
		"entity_id", entry.EntityID,
	)

	if r.store == nil {
		return entry, nil
	}
	if err := r.store.SaveAuditEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save audit entry: %w", err)
	}
	return entry, nil
}

// ScoredAction names the audit action for a decision.
func ScoredAction(d domain.Decision) string {
	switch d {
	case domain.DecisionDecline:
		return ActionDeclined
	case domain.DecisionChallenge:
		return ActionChallengeIssued
	default:
		return ActionScoreGenerated
	}
}

// RecordScored logs a scoring decision.
func (r *Recorder) RecordScored(ctx context.Context, tx *domain.Transaction, actor string) (*domain.AuditEntry, error) {
	details := fmt.Sprintf("Scored %s at %d/100", tx.ID, tx.RiskScore)
	if tx.Fallback {
		details += " (fallback)"
	}
	return r.Record(ctx, &domain.AuditEntry{
		Actor:        actor,
		Action:       ScoredAction(tx.Decision),
		EntityType:   domain.EntityTransaction,
		EntityID:     tx.ID,
		ModelVersion: FraudModelVersion,
		Decision:     tx.Decision,
		ReasonCodes:  append([]string(nil), tx.ReasonCodes...),
		Details:      details,
	})
}

// RecordCluster logs a cluster analysis.
func (r *Recorder) RecordCluster(ctx context.Context, c *domain.Cluster) (*domain.AuditEntry, error) {
	detected := make([]string, 0, len(c.DetectedTypologies))
	for _, t := range c.DetectedTypologies {
		detected = append(detected, string(t))
	}
	return r.Record(ctx, &domain.AuditEntry{
		Actor:        ActorAMLEngine,
		Action:       ActionClusterDetected,
		EntityType:   domain.EntityCluster,
		EntityID:     c.ID,
		ModelVersion: AMLModelVersion,
		ReasonCodes:  detected,
		Details: fmt.Sprintf("%s cluster, %d accounts, risk %d/100",
			c.Typology, c.AccountCount, c.RiskScore),
	})
}

// RecordCase logs a reviewer or system action on a case.
func (r *Recorder) RecordCase(ctx context.Context, c *domain.Case, actor, action, details string) (*domain.AuditEntry, error) {
	if actor == "" {
		actor = ActorSystem
	}
	return r.Record(ctx, &domain.AuditEntry{
		Actor:        actor,
		Action:       action,
		EntityType:   domain.EntityCase,
		EntityID:     c.ID,
		ModelVersion: AMLModelVersion,
		Details:      details,
	})
}
