//go:build integration

// Integration tests against a running Kestrel server.
//
// Run with:
//
//	go run ./cmd/kestrel &
//	go test -tags=integration ./internal/api/...
//
// KESTREL_TEST_URL overrides the default http://localhost:8080.
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func baseURL() string {
	if u := os.Getenv("KESTREL_TEST_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://localhost:8080"
}

var client = &http.Client{Timeout: 10 * time.Second}

func call(t *testing.T, method, path string, body any, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL()+path, reader)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(respBody, out); err != nil {
			t.Fatalf("Failed to decode %s %s: %v\nBody: %s", method, path, err, respBody)
		}
	}
	return resp.StatusCode
}

func waitFor(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if call(t, http.MethodGet, path, nil, nil) == http.StatusOK {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("%s not available before deadline", path)
}

func TestMain(m *testing.M) {
	resp, err := http.Get(baseURL() + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Kestrel not reachable at %s, skipping integration tests\n", baseURL())
		os.Exit(0)
	}
	resp.Body.Close()
	os.Exit(m.Run())
}

func TestScoreAndFetch(t *testing.T) {
	id := "TX-IT" + time.Now().Format("150405")

	var tx domain.Transaction
	status := call(t, http.MethodPost, "/transactions/score", map[string]any{
		"tx_id":              id,
		"amount":             2500,
		"channel":            "Wire",
		"timestamp":          time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC),
		"customer_id":        "CUST-IT1",
		"velocity_10min":     7,
		"device_change_flag": true,
		"geo_distance_km":    800,
	}, &tx)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if tx.Decision != domain.DecisionDecline || len(tx.ReasonCodes) == 0 {
		t.Errorf("expected decline with reasons, got %s %v", tx.Decision, tx.ReasonCodes)
	}

	waitFor(t, "/transactions/"+id)
}

func TestClusterCaseLifecycle(t *testing.T) {
	var cluster domain.Cluster
	if status := call(t, http.MethodPost, "/clusters/generate", map[string]string{"typology": "Fan-in"}, &cluster); status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if cluster.RiskScore < 0 || cluster.RiskScore > 100 {
		t.Errorf("cluster score out of range: %d", cluster.RiskScore)
	}
	waitFor(t, "/clusters/"+cluster.ID)

	var c domain.Case
	if status := call(t, http.MethodPost, "/cases", map[string]string{"cluster_id": cluster.ID, "reviewer": "it-reviewer"}, &c); status != http.StatusCreated {
		t.Fatalf("expected 201 opening case, got %d", status)
	}

	for _, to := range []domain.CaseStatus{domain.CaseInProgress, domain.CasePendingReview, domain.CaseFiledSAR} {
		if status := call(t, http.MethodPost, "/cases/"+c.ID+"/transition", map[string]string{"status": string(to), "actor": "it-reviewer"}, &c); status != http.StatusOK {
			t.Fatalf("transition to %s: expected 200, got %d", to, status)
		}
	}
	if c.Status != domain.CaseFiledSAR {
		t.Errorf("expected Filed SAR, got %s", c.Status)
	}

	if status := call(t, http.MethodPost, "/cases/"+c.ID+"/transition", map[string]string{"status": string(domain.CaseOpen)}, nil); status != http.StatusConflict {
		t.Errorf("expected 409 reopening a filed case, got %d", status)
	}
}
