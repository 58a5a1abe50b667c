package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

func newRecorder(t *testing.T) (*Recorder, domain.Repository) {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: repository.MemoryPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	r := NewRecorder(repo)
	start := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	r.now = func() time.Time {
		tick++
		return start.Add(time.Duration(tick) * time.Second)
	}
	return r, repo
}

func TestRecordScored(t *testing.T) {
	r, repo := newRecorder(t)
	ctx := context.Background()

	tests := []struct {
		decision domain.Decision
		action   string
	}{
		{domain.DecisionApprove, ActionScoreGenerated},
		{domain.DecisionChallenge, ActionChallengeIssued},
		{domain.DecisionDecline, ActionDeclined},
	}

	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			tx := &domain.Transaction{
				ID:          "TX-" + string(tt.decision),
				RiskScore:   55,
				Decision:    tt.decision,
				ReasonCodes: []string{domain.ReasonNewDevice.Description()},
			}
			e, err := r.RecordScored(ctx, tx, ActorRiskAPI)
			if err != nil {
				t.Fatalf("RecordScored failed: %v", err)
			}
			if e.Action != tt.action || e.ModelVersion != FraudModelVersion {
				t.Errorf("unexpected entry %+v", e)
			}
			if e.Decision != tt.decision || len(e.ReasonCodes) != 1 {
				t.Errorf("decision or reasons not carried: %+v", e)
			}
		})
	}

	stored, err := repo.ListAuditEntries(ctx, domain.AuditFilter{EntityType: domain.EntityTransaction})
	if err != nil {
		t.Fatalf("ListAuditEntries failed: %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored entries, got %d", len(stored))
	}
	if stored[0].ID != "LOG-10002" || stored[2].ID != "LOG-10000" {
		t.Errorf("expected sequential ids, got %s..%s", stored[2].ID, stored[0].ID)
	}
}

func TestRecordClusterAndCase(t *testing.T) {
	r, _ := newRecorder(t)
	ctx := context.Background()

	c := &domain.Cluster{
		ID:                 "CLU-ABCDEF",
		Typology:           domain.TypologyFanOut,
		AccountCount:       9,
		RiskScore:          88,
		DetectedTypologies: []domain.Typology{domain.TypologyFanOut, domain.TypologyHub},
	}
	e, err := r.RecordCluster(ctx, c)
	if err != nil {
		t.Fatalf("RecordCluster failed: %v", err)
	}
	if e.Actor != ActorAMLEngine || e.EntityType != domain.EntityCluster || e.ModelVersion != AMLModelVersion {
		t.Errorf("unexpected cluster entry %+v", e)
	}
	if len(e.ReasonCodes) != 2 || e.ReasonCodes[1] != "Hub" {
		t.Errorf("expected detected typologies as reasons, got %v", e.ReasonCodes)
	}

	ce, err := r.RecordCase(ctx, &domain.Case{ID: "AML-0001"}, "", ActionCaseOpened, "opened")
	if err != nil {
		t.Fatalf("RecordCase failed: %v", err)
	}
	if ce.Actor != ActorSystem || ce.EntityID != "AML-0001" {
		t.Errorf("unexpected case entry %+v", ce)
	}
}

func TestResumeContinuesNumbering(t *testing.T) {
	r, repo := newRecorder(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Record(ctx, &domain.AuditEntry{Action: "x", EntityType: "Model", EntityID: "m"}); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	next := NewRecorder(repo)
	if err := next.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	e, err := next.Record(ctx, &domain.AuditEntry{Action: "y", EntityType: "Model", EntityID: "m",
		Timestamp: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if e.ID != "LOG-10003" {
		t.Errorf("expected LOG-10003, got %s", e.ID)
	}
}

type failingStore struct{}

func (failingStore) SaveAuditEntry(context.Context, *domain.AuditEntry) error {
	return errors.New("disk full")
}

func (failingStore) ListAuditEntries(context.Context, domain.AuditFilter) ([]*domain.AuditEntry, error) {
	return nil, nil
}

func TestRecordWithoutStore(t *testing.T) {
	r := NewRecorder(nil)
	e, err := r.Record(context.Background(), &domain.AuditEntry{Action: "x"})
	if err != nil || e.ID != "LOG-10000" || e.Timestamp.IsZero() {
		t.Errorf("unexpected entry %+v, %v", e, err)
	}

	if _, err := NewRecorder(failingStore{}).Record(context.Background(), &domain.AuditEntry{}); err == nil {
		t.Error("expected store error")
	}
}
