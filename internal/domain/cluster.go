package domain

import (
	"strings"
	"time"
)

// Transfer is a single account-to-account movement of funds.
type Transfer struct {
	FromAccount string    `json:"from_account"`
	ToAccount   string    `json:"to_account"`
	Amount      float64   `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// Typology labels a mule-network transfer pattern.
type Typology string

const (
	TypologyFanIn      Typology = "Fan-in"
	TypologyFanOut     Typology = "Fan-out"
	TypologyCycle      Typology = "Cycle"
	TypologyLayering   Typology = "Layering"
	TypologyHub        Typology = "Hub"
	TypologyBurstChain Typology = "Burst Chain"
)

// Typologies returns every known typology label.
func Typologies() []Typology {
	return []Typology{
		TypologyFanIn,
		TypologyFanOut,
		TypologyCycle,
		TypologyLayering,
		TypologyHub,
		TypologyBurstChain,
	}
}

// Valid reports whether t is a known typology.
func (t Typology) Valid() bool {
	for _, known := range Typologies() {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTypology resolves a typology name, ignoring case and the
// separator used between words ("fan_out", "Fan Out", "fan-out").
func ParseTypology(name string) (Typology, error) {
	norm := normalizeTypologyName(name)
	for _, t := range Typologies() {
		if normalizeTypologyName(string(t)) == norm {
			return t, nil
		}
	}
	return "", ErrUnknownTypology
}

func normalizeTypologyName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
}

// ClusterStatus is the investigation workflow state of a cluster.
type ClusterStatus string

const (
	ClusterMonitoring    ClusterStatus = "Monitoring"
	ClusterInvestigating ClusterStatus = "Investigating"
	ClusterClosed        ClusterStatus = "Closed"
)

// Valid reports whether s is a known cluster status.
func (s ClusterStatus) Valid() bool {
	switch s {
	case ClusterMonitoring, ClusterInvestigating, ClusterClosed:
		return true
	}
	return false
}

// Cluster is a set of transfers analysed as one suspected mule network.
// All derived attributes are computed by the graph analyzer at creation.
type Cluster struct {
	ID       string   `json:"cluster_id"`
	Typology Typology `json:"typology"`

	AccountCount    int      `json:"account_count"`
	TotalFlowAmount float64  `json:"total_flow_amount"`
	HubAccounts     []string `json:"hub_accounts"`
	FanOutCount     int      `json:"fan_out_count"`
	FanInCount      int      `json:"fan_in_count"`
	CycleIndicator  bool     `json:"cycle_indicator"`
	CycleAccounts   []string `json:"cycle_accounts,omitempty"`
	LayeringDepth   int      `json:"layering_depth"`
	BurstVelocity   float64  `json:"burst_velocity"`

	DetectedTypologies []Typology             `json:"detected_typologies"`
	RiskScore          int                    `json:"risk_score"`
	Contributions      []EvidenceContribution `json:"contributions,omitempty"`

	Transfers []Transfer    `json:"transfers"`
	Status    ClusterStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// Flagged reports whether structural analysis confirmed any typology.
func (c *Cluster) Flagged() bool {
	return len(c.DetectedTypologies) > 0
}

// Accounts returns the distinct accounts in order of first appearance.
func (c *Cluster) Accounts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range c.Transfers {
		for _, acct := range []string{t.FromAccount, t.ToAccount} {
			if !seen[acct] {
				seen[acct] = true
				out = append(out, acct)
			}
		}
	}
	return out
}

// EvidenceContribution shows how one structural signal moved the cluster score.
type EvidenceContribution struct {
	Signal       string  `json:"signal"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}
