// Package cases manages AML investigations opened on detected clusters.
package cases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Recommended actions.
const (
	ActionFileSAR    = "File SAR"
	ActionEDD        = "Enhanced Due Diligence"
	ActionMonitor    = "Continue Monitoring"
	ActionCloseCase  = "Close Case"
	UnassignedReview = "Unassigned"
)

// DefaultChecklist is the evidence every new case starts with.
func DefaultChecklist() []domain.EvidenceItem {
	return []domain.EvidenceItem{
		{Item: "Customer due diligence review"},
		{Item: "Transaction pattern analysis"},
		{Item: "Source of funds verification"},
		{Item: "Beneficial ownership check"},
		{Item: "Sanctions screening"},
	}
}

var transitions = map[domain.CaseStatus][]domain.CaseStatus{
	domain.CaseOpen:          {domain.CaseInProgress},
	domain.CaseInProgress:    {domain.CasePendingReview, domain.CaseClosed},
	domain.CasePendingReview: {domain.CaseFiledSAR, domain.CaseClosed},
	domain.CaseFiledSAR:      {domain.CaseClosed},
}

// CanTransition reports whether a case may move from one status to another.
func CanTransition(from, to domain.CaseStatus) bool {
	return slices.Contains(transitions[from], to)
}

// PriorityFor maps a cluster score onto a review priority.
func PriorityFor(score int) domain.Priority {
	switch {
	case score >= 90:
		return domain.PriorityCritical
	case score >= 80:
		return domain.PriorityHigh
	case score >= 70:
		return domain.PriorityMedium
	default:
		return domain.PriorityLow
	}
}

// RecommendAction suggests the next step for a cluster.
func RecommendAction(c *domain.Cluster) string {
	switch {
	case c.RiskScore >= 90:
		return ActionFileSAR
	case c.RiskScore >= 80 && (c.CycleIndicator || len(c.DetectedTypologies) > 1):
		return ActionFileSAR
	case c.RiskScore >= 80:
		return ActionEDD
	case c.Flagged():
		return ActionMonitor
	default:
		return ActionCloseCase
	}
}

// Publisher is the part of the event bus the manager needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Manager opens cases and drives them through the review workflow. It is the
// only component that changes a cluster's workflow status.
type Manager struct {
	repo     domain.Repository
	recorder *audit.Recorder
	pub      Publisher
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a case manager. recorder and pub may be nil.
func NewManager(repo domain.Repository, recorder *audit.Recorder, pub Publisher) *Manager {
	if recorder == nil {
		recorder = audit.NewRecorder(repo)
	}
	return &Manager{
		repo:     repo,
		recorder: recorder,
		pub:      pub,
		logger:   slog.Default().With("component", "cases"),
		now:      time.Now,
	}
}

// Open creates a case for a stored cluster and moves the cluster to
// Investigating. A cluster has at most one case that is not Closed.
func (m *Manager) Open(ctx context.Context, clusterID, reviewer string) (*domain.Case, error) {
	cluster, err := m.repo.GetCluster(ctx, clusterID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster %s: %w", clusterID, err)
	}

	existing, err := m.repo.ListCases(ctx, domain.CaseFilter{ClusterID: clusterID})
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.Status != domain.CaseClosed {
			return nil, fmt.Errorf("%w: cluster %s already has active case %s",
				domain.ErrInvalidTransition, clusterID, c.ID)
		}
	}

	if reviewer == "" {
		reviewer = UnassignedReview
	}
	now := m.now().UTC()
	c := &domain.Case{
		ID:                "AML-" + strings.ToUpper(uuid.New().String()[:8]),
		ClusterID:         cluster.ID,
		Typology:          cluster.Typology,
		ClusterScore:      cluster.RiskScore,
		Priority:          PriorityFor(cluster.RiskScore),
		Status:            domain.CaseOpen,
		AssignedReviewer:  reviewer,
		Narrative:         narrative(cluster),
		Evidence:          DefaultChecklist(),
		LinkedAccounts:    linkedAccounts(cluster),
		RecommendedAction: RecommendAction(cluster),
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := m.repo.SaveCaseWithClusterStatus(ctx, c, c.Status.ClusterStatus()); err != nil {
		return nil, fmt.Errorf("failed to open case: %w", err)
	}

	m.afterChange(ctx, c, reviewer, audit.ActionCaseOpened,
		fmt.Sprintf("Case opened on %s cluster %s (priority %s)", cluster.Typology, cluster.ID, c.Priority))
	return c, nil
}

// Get returns a case by id.
func (m *Manager) Get(ctx context.Context, caseID string) (*domain.Case, error) {
	return m.repo.GetCase(ctx, caseID)
}

// List returns cases matching filter.
func (m *Manager) List(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	return m.repo.ListCases(ctx, filter)
}

// Transition moves a case to status and mirrors the change onto its cluster.
func (m *Manager) Transition(ctx context.Context, caseID string, to domain.CaseStatus, actor string) (*domain.Case, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown case status %q", domain.ErrInvalidInput, to)
	}

	c, err := m.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(c.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.Status, to)
	}

	from := c.Status
	c.Status = to
	c.UpdatedAt = m.now().UTC()

	if err := m.repo.SaveCaseWithClusterStatus(ctx, c, to.ClusterStatus()); err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}

	action := audit.ActionCaseUpdated
	switch to {
	case domain.CaseFiledSAR:
		action = audit.ActionSARFiled
	case domain.CaseClosed:
		action = audit.ActionCaseResolved
	}
	m.afterChange(ctx, c, actor, action, fmt.Sprintf("%s -> %s", from, to))
	return c, nil
}

// CompleteEvidence marks a checklist item as done.
func (m *Manager) CompleteEvidence(ctx context.Context, caseID, item, actor string) (*domain.Case, error) {
	c, err := m.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if c.Status == domain.CaseClosed {
		return nil, fmt.Errorf("%w: case %s is closed", domain.ErrInvalidTransition, caseID)
	}

	idx := slices.IndexFunc(c.Evidence, func(e domain.EvidenceItem) bool {
		return strings.EqualFold(e.Item, item)
	})
	if idx < 0 {
		return nil, fmt.Errorf("%w: no evidence item %q", domain.ErrInvalidInput, item)
	}
	if c.Evidence[idx].Completed {
		return c, nil
	}
	c.Evidence[idx].Completed = true
	c.UpdatedAt = m.now().UTC()

	if err := m.repo.SaveCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}
	m.afterChange(ctx, c, actor, audit.ActionEvidence, c.Evidence[idx].Item)
	return c, nil
}

// AddNote appends a reviewer note.
func (m *Manager) AddNote(ctx context.Context, caseID, text, author string) (*domain.Case, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: note text is required", domain.ErrInvalidInput)
	}
	if author == "" {
		author = UnassignedReview
	}

	c, err := m.repo.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	c.Notes = append(c.Notes, domain.CaseNote{Text: text, Author: author, Timestamp: now})
	c.UpdatedAt = now

	if err := m.repo.SaveCase(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to save case: %w", err)
	}
	m.afterChange(ctx, c, author, audit.ActionNoteAdded, text)
	return c, nil
}

// afterChange audits and announces a case mutation. Failures are logged;
// the case itself is already stored.
func (m *Manager) afterChange(ctx context.Context, c *domain.Case, actor, action, details string) {
	if _, err := m.recorder.RecordCase(ctx, c, actor, action, details); err != nil {
		m.logger.Error("failed to audit case action", "case_id", c.ID, "action", action, "error", err)
	}

	if m.pub == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		m.logger.Error("failed to encode case", "case_id", c.ID, "error", err)
		return
	}
	if err := m.pub.Publish(ctx, domain.TopicCaseUpdated, payload); err != nil {
		m.logger.Warn("failed to publish case update", "case_id", c.ID, "error", err)
	}
}

func narrative(c *domain.Cluster) string {
	detected := "none confirmed"
	if len(c.DetectedTypologies) > 0 {
		names := make([]string, 0, len(c.DetectedTypologies))
		for _, t := range c.DetectedTypologies {
			names = append(names, string(t))
		}
		detected = strings.Join(names, ", ")
	}
	return fmt.Sprintf(
		"Initial review indicates potential money mule activity: %s pattern across %d accounts moving $%s. Detected typologies: %s.",
		c.Typology, c.AccountCount, decimal.NewFromFloat(c.TotalFlowAmount).StringFixed(2), detected)
}

func linkedAccounts(c *domain.Cluster) []string {
	if len(c.HubAccounts) > 0 {
		return append([]string(nil), c.HubAccounts...)
	}
	if len(c.CycleAccounts) > 0 {
		return append([]string(nil), c.CycleAccounts...)
	}
	return c.Accounts()
}
