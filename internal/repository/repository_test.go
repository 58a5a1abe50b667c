package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestRepo(t *testing.T, path string) domain.Repository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: path})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo := newTestRepo(t, tmpPath)
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetTransaction", func(t *testing.T) {
		tx := &domain.Transaction{
			ID:               "TX-000000001",
			Timestamp:        base,
			Amount:           1200.50,
			Merchant:         "CryptoExchange",
			MerchantCategory: "Crypto",
			Channel:          domain.ChannelWire,
			Country:          "NG",
			CustomerID:       "CUST-000001",
			DeviceID:         "DEV-00000001",
			Velocity10Min:    7,
			AvgAmount30d:     120,
			DeviceChangeFlag: true,
			GeoDistanceKm:    1500,
			MerchantRisk:     0.8,
			IsFraud:          true,
			RiskScore:        92,
			Decision:         domain.DecisionDecline,
			ReasonKeys:       []domain.ReasonCode{domain.ReasonHighVelocity, domain.ReasonNewDevice},
		}

		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		got, err := repo.GetTransaction(ctx, tx.ID)
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if got.Amount != tx.Amount || got.RiskScore != 92 || got.Decision != domain.DecisionDecline {
			t.Errorf("unexpected transaction %+v", got)
		}
		if !got.DeviceChangeFlag || !got.IsFraud || got.Fallback {
			t.Errorf("flags not preserved: %+v", got)
		}
		if !got.Timestamp.Equal(base) {
			t.Errorf("expected timestamp %v, got %v", base, got.Timestamp)
		}
		if len(got.ReasonKeys) != 2 || got.ReasonKeys[1] != domain.ReasonNewDevice {
			t.Errorf("unexpected reason keys %v", got.ReasonKeys)
		}
		if got.ReasonCodes[0] != domain.ReasonHighVelocity.Description() {
			t.Errorf("reason codes not rebuilt: %v", got.ReasonCodes)
		}
	})

	t.Run("SaveTransactionIsIdempotent", func(t *testing.T) {
		tx := &domain.Transaction{ID: "TX-000000001", Timestamp: base, RiskScore: 5, Decision: domain.DecisionApprove}
		if err := repo.SaveTransaction(ctx, tx); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}
		got, _ := repo.GetTransaction(ctx, tx.ID)
		if got.RiskScore != 92 {
			t.Errorf("expected original record to survive, got score %d", got.RiskScore)
		}
	})

	t.Run("ListTransactions", func(t *testing.T) {
		for i, d := range []domain.Decision{domain.DecisionApprove, domain.DecisionChallenge, domain.DecisionApprove} {
			tx := &domain.Transaction{
				ID:         "TX-LIST-" + string(rune('A'+i)),
				Timestamp:  base.Add(time.Duration(i+1) * time.Minute),
				CustomerID: "CUST-LIST",
				Channel:    domain.ChannelCard,
				Decision:   d,
			}
			if err := repo.SaveTransaction(ctx, tx); err != nil {
				t.Fatalf("SaveTransaction failed: %v", err)
			}
		}

		all, err := repo.ListTransactions(ctx, domain.TransactionFilter{CustomerID: "CUST-LIST"})
		if err != nil {
			t.Fatalf("ListTransactions failed: %v", err)
		}
		if len(all) != 3 || all[0].ID != "TX-LIST-C" {
			t.Fatalf("expected 3 newest-first, got %d", len(all))
		}

		approved, _ := repo.ListTransactions(ctx, domain.TransactionFilter{
			CustomerID: "CUST-LIST",
			Decision:   domain.DecisionApprove,
		})
		if len(approved) != 2 {
			t.Errorf("expected 2 approved, got %d", len(approved))
		}

		recent, _ := repo.ListTransactions(ctx, domain.TransactionFilter{
			CustomerID: "CUST-LIST",
			Since:      base.Add(2 * time.Minute),
		})
		if len(recent) != 2 {
			t.Errorf("expected 2 since cutoff, got %d", len(recent))
		}

		limited, _ := repo.ListTransactions(ctx, domain.TransactionFilter{Limit: 1})
		if len(limited) != 1 {
			t.Errorf("expected limit 1, got %d", len(limited))
		}
	})

	t.Run("TransactionNotFound", func(t *testing.T) {
		_, err := repo.GetTransaction(ctx, "nonexistent")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})

	t.Run("Clusters", func(t *testing.T) {
		c := &domain.Cluster{
			ID:                 "CLU-0001",
			Typology:           domain.TypologyCycle,
			AccountCount:       6,
			TotalFlowAmount:    42000,
			CycleIndicator:     true,
			DetectedTypologies: []domain.Typology{domain.TypologyCycle},
			RiskScore:          85,
			Transfers:          []domain.Transfer{{FromAccount: "ACC-0020", ToAccount: "ACC-0021", Amount: 7000, Timestamp: base}},
			Status:             domain.ClusterMonitoring,
			CreatedAt:          base,
		}
		if err := repo.SaveCluster(ctx, c); err != nil {
			t.Fatalf("SaveCluster failed: %v", err)
		}

		if err := repo.UpdateClusterStatus(ctx, c.ID, domain.ClusterInvestigating); err != nil {
			t.Fatalf("UpdateClusterStatus failed: %v", err)
		}
		got, err := repo.GetCluster(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetCluster failed: %v", err)
		}
		if got.Status != domain.ClusterInvestigating {
			t.Errorf("expected Investigating, got %s", got.Status)
		}
		if !got.CycleIndicator || len(got.Transfers) != 1 || got.RiskScore != 85 {
			t.Errorf("cluster payload not preserved: %+v", got)
		}

		list, err := repo.ListClusters(ctx, 10)
		if err != nil || len(list) != 1 {
			t.Errorf("expected 1 cluster, got %d (%v)", len(list), err)
		}

		if err := repo.UpdateClusterStatus(ctx, "CLU-MISSING", domain.ClusterClosed); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateClusterStatus(ctx, c.ID, "Archived"); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Cases", func(t *testing.T) {
		c := &domain.Case{
			ID:        "CASE-0001",
			ClusterID: "CLU-0001",
			Priority:  domain.PriorityHigh,
			Status:    domain.CaseOpen,
			Evidence:  []domain.EvidenceItem{{Item: "KYC review"}},
			CreatedAt: base,
			UpdatedAt: base,
		}
		if err := repo.SaveCase(ctx, c); err != nil {
			t.Fatalf("SaveCase failed: %v", err)
		}

		c.Status = domain.CaseInProgress
		c.Evidence[0].Completed = true
		c.UpdatedAt = base.Add(time.Hour)
		if err := repo.SaveCase(ctx, c); err != nil {
			t.Fatalf("SaveCase update failed: %v", err)
		}

		got, err := repo.GetCase(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetCase failed: %v", err)
		}
		if got.Status != domain.CaseInProgress || !got.Evidence[0].Completed {
			t.Errorf("case update not stored: %+v", got)
		}

		open, _ := repo.ListCases(ctx, domain.CaseFilter{Status: domain.CaseOpen})
		if len(open) != 0 {
			t.Errorf("expected no open cases, got %d", len(open))
		}
		high, _ := repo.ListCases(ctx, domain.CaseFilter{Priority: domain.PriorityHigh})
		if len(high) != 1 {
			t.Errorf("expected 1 high priority case, got %d", len(high))
		}

		if _, err := repo.GetCase(ctx, "CASE-MISSING"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AuditEntries", func(t *testing.T) {
		entries := []*domain.AuditEntry{
			{ID: "LOG-1", Timestamp: base, Actor: "System", Action: "Transaction Scored",
				EntityType: domain.EntityTransaction, EntityID: "TX-000000001",
				ModelVersion: "fraud-rules-v1", Decision: domain.DecisionDecline,
				ReasonCodes: []string{"High transaction velocity (>5 tx in 10 min)"}},
			{ID: "LOG-2", Timestamp: base.Add(time.Second), Actor: "analyst", Action: "Case Status Changed",
				EntityType: domain.EntityCase, EntityID: "CASE-0001", Details: "Open -> In Progress"},
		}
		for _, e := range entries {
			if err := repo.SaveAuditEntry(ctx, e); err != nil {
				t.Fatalf("SaveAuditEntry failed: %v", err)
			}
		}

		all, err := repo.ListAuditEntries(ctx, domain.AuditFilter{})
		if err != nil {
			t.Fatalf("ListAuditEntries failed: %v", err)
		}
		if len(all) != 2 || all[0].ID != "LOG-2" {
			t.Fatalf("expected 2 entries newest first, got %d", len(all))
		}
		if all[1].Decision != domain.DecisionDecline || len(all[1].ReasonCodes) != 1 {
			t.Errorf("unexpected entry %+v", all[1])
		}
		if all[0].ReasonCodes == nil {
			t.Error("expected empty reason codes, got nil")
		}

		cases, _ := repo.ListAuditEntries(ctx, domain.AuditFilter{EntityType: domain.EntityCase})
		if len(cases) != 1 || cases[0].EntityID != "CASE-0001" {
			t.Errorf("entity filter failed: %+v", cases)
		}
	})

	t.Run("MissingIDs", func(t *testing.T) {
		if err := repo.SaveTransaction(ctx, &domain.Transaction{}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if err := repo.SaveCluster(ctx, nil); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestMemoryRepository(t *testing.T) {
	repo := newTestRepo(t, MemoryPath)
	ctx := context.Background()

	tx := &domain.Transaction{ID: "TX-MEM", Timestamp: time.Now(), Decision: domain.DecisionApprove}
	if err := repo.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("SaveTransaction failed: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "TX-MEM"); err != nil {
		t.Errorf("in-memory database lost the row: %v", err)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		got := postgresDSN(domain.RepositoryConfig{})
		want := "host=localhost port=5432 dbname=kestrel sslmode=disable application_name=kestrel"
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("QuotesSpecialValues", func(t *testing.T) {
		got := postgresDSN(domain.RepositoryConfig{
			PostgresHost:     "db.internal",
			PostgresPort:     6543,
			PostgresUser:     "risk",
			PostgresPassword: `it's a s\ecret`,
			PostgresSSLMode:  "require",
		})
		want := `host=db.internal port=6543 user=risk password='it\'s a s\\ecret' dbname=kestrel sslmode=require application_name=kestrel`
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})
}

func TestSaveCaseWithClusterStatus(t *testing.T) {
	repo := newTestRepo(t, MemoryPath)
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)

	cluster := &domain.Cluster{ID: "CLU-ATOM", Typology: domain.TypologyCycle, Status: domain.ClusterMonitoring, CreatedAt: now}
	if err := repo.SaveCluster(ctx, cluster); err != nil {
		t.Fatalf("SaveCluster failed: %v", err)
	}
	newCase := func(id, clusterID string) *domain.Case {
		return &domain.Case{ID: id, ClusterID: clusterID, Status: domain.CaseOpen,
			Priority: domain.PriorityMedium, CreatedAt: now, UpdatedAt: now}
	}

	t.Run("RollsBackOnMissingCluster", func(t *testing.T) {
		err := repo.SaveCaseWithClusterStatus(ctx, newCase("CASE-ORPHAN", "CLU-MISSING"), domain.ClusterInvestigating)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if _, err := repo.GetCase(ctx, "CASE-ORPHAN"); !errors.Is(err, ErrNotFound) {
			t.Errorf("case stored despite failed status update: %v", err)
		}
	})

	t.Run("RollsBackOnInvalidStatus", func(t *testing.T) {
		err := repo.SaveCaseWithClusterStatus(ctx, newCase("CASE-BAD", "CLU-ATOM"), "Archived")
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := repo.GetCase(ctx, "CASE-BAD"); !errors.Is(err, ErrNotFound) {
			t.Errorf("case stored despite failed status update: %v", err)
		}
	})

	t.Run("OneActiveCasePerCluster", func(t *testing.T) {
		first := newCase("CASE-A", "CLU-ATOM")
		if err := repo.SaveCaseWithClusterStatus(ctx, first, domain.ClusterInvestigating); err != nil {
			t.Fatalf("first case failed: %v", err)
		}
		got, _ := repo.GetCluster(ctx, "CLU-ATOM")
		if got.Status != domain.ClusterInvestigating {
			t.Errorf("expected Investigating, got %s", got.Status)
		}

		if err := repo.SaveCase(ctx, newCase("CASE-B", "CLU-ATOM")); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for second active case, got %v", err)
		}

		first.Status = domain.CaseClosed
		if err := repo.SaveCaseWithClusterStatus(ctx, first, domain.ClusterClosed); err != nil {
			t.Fatalf("closing first case failed: %v", err)
		}
		if err := repo.SaveCase(ctx, newCase("CASE-B", "CLU-ATOM")); err != nil {
			t.Errorf("new case after close should be accepted: %v", err)
		}
	})
}
