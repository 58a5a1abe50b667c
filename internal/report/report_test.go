package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestSARSummary(t *testing.T) {
	ts := time.Date(2025, 5, 2, 10, 30, 0, 0, time.UTC)
	c := &domain.Cluster{
		ID:                 "CLU-SAR001",
		Typology:           domain.TypologyCycle,
		AccountCount:       6,
		TotalFlowAmount:    45210.5,
		CycleIndicator:     true,
		LayeringDepth:      5,
		BurstVelocity:      1.2,
		DetectedTypologies: []domain.Typology{domain.TypologyCycle},
		RiskScore:          86,
		Status:             domain.ClusterInvestigating,
		Transfers: []domain.Transfer{
			{FromAccount: "ACC-0020", ToAccount: "ACC-0021", Amount: 7535.25, Timestamp: ts},
		},
	}

	out := SARSummary(c, ts)

	for _, want := range []string{
		"Cluster ID: CLU-SAR001",
		"Typology: Cycle",
		"Risk Score: 86/100",
		"Total Flow Amount: $45,210.50",
		"Number of Accounts Involved: 6",
		"Cycle Detected: Yes",
		"Layering Depth: 5",
		"None identified",
		"ACC-0020 -> ACC-0021: $7,535.25",
		"END OF SAR SUMMARY",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}

func TestMoney(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00"},
		{999.5, "999.50"},
		{1000, "1,000.00"},
		{20002, "20,002.00"},
		{1234567.891, "1,234,567.89"},
		{-2500, "-2,500.00"},
	}
	for _, tt := range tests {
		if got := Money(tt.in); got != tt.want {
			t.Errorf("Money(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteAuditCSV(t *testing.T) {
	entries := []*domain.AuditEntry{
		{
			ID:           "LOG-10001",
			Timestamp:    time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC),
			Actor:        "Risk API",
			Action:       "Transaction Declined",
			EntityType:   domain.EntityTransaction,
			EntityID:     "TX-ABC",
			ModelVersion: "fraud-rules-v1",
			Decision:     domain.DecisionDecline,
			ReasonCodes:  []string{"Transaction from new/unknown device", "Unusual transaction time"},
		},
		{
			ID:         "LOG-10002",
			Timestamp:  time.Date(2025, 5, 2, 11, 0, 0, 0, time.UTC),
			Actor:      `Reviewer "JW"`,
			Action:     "Note Added",
			EntityType: domain.EntityCase,
			EntityID:   "AML-1",
		},
	}

	var buf bytes.Buffer
	if err := WriteAuditCSV(&buf, entries); err != nil {
		t.Fatalf("WriteAuditCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "log_id,timestamp,actor,action,entity_type,entity_id,model_version,decision,reason_codes" {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], `"LOG-10001","2025-05-02T10:00:00Z"`) {
		t.Errorf("values not quoted: %q", lines[1])
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1][8] != "Transaction from new/unknown device; Unusual transaction time" {
		t.Errorf("unexpected reason codes %q", records[1][8])
	}
	if records[2][2] != `Reviewer "JW"` {
		t.Errorf("embedded quotes not escaped: %q", records[2][2])
	}
}
