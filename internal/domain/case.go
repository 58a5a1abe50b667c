package domain

import "time"

// CaseStatus is the state of an AML investigation case.
type CaseStatus string

const (
	CaseOpen          CaseStatus = "Open"
	CaseInProgress    CaseStatus = "In Progress"
	CasePendingReview CaseStatus = "Pending Review"
	CaseFiledSAR      CaseStatus = "Filed SAR"
	CaseClosed        CaseStatus = "Closed"
)

// Valid reports whether s is a known case status.
func (s CaseStatus) Valid() bool {
	switch s {
	case CaseOpen, CaseInProgress, CasePendingReview, CaseFiledSAR, CaseClosed:
		return true
	}
	return false
}

// ClusterStatus maps a case state onto the workflow state of its cluster.
func (s CaseStatus) ClusterStatus() ClusterStatus {
	switch s {
	case CaseFiledSAR, CaseClosed:
		return ClusterClosed
	default:
		return ClusterInvestigating
	}
}

// Priority ranks how urgently a case should be reviewed.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// EvidenceItem is one entry on a case's evidence checklist.
type EvidenceItem struct {
	Item      string `json:"item"`
	Completed bool   `json:"completed"`
}

// CaseNote is a reviewer comment attached to a case.
type CaseNote struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

// Case is an investigation opened on a detected cluster.
type Case struct {
	ID                string         `json:"case_id"`
	ClusterID         string         `json:"cluster_id"`
	Typology          Typology       `json:"typology"`
	ClusterScore      int            `json:"cluster_score"`
	Priority          Priority       `json:"priority"`
	Status            CaseStatus     `json:"status"`
	AssignedReviewer  string         `json:"assigned_reviewer"`
	Narrative         string         `json:"narrative_notes"`
	Evidence          []EvidenceItem `json:"evidence_checklist"`
	Notes             []CaseNote     `json:"notes,omitempty"`
	LinkedAccounts    []string       `json:"linked_accounts"`
	RecommendedAction string         `json:"recommended_action"`
	CreatedAt         time.Time      `json:"created_date"`
	UpdatedAt         time.Time      `json:"updated_date"`
}

// AuditEntry is one row of the immutable audit trail.
type AuditEntry struct {
	ID           string    `json:"log_id"`
	Timestamp    time.Time `json:"timestamp"`
	Actor        string    `json:"actor"`
	Action       string    `json:"action"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	ModelVersion string    `json:"model_version,omitempty"`
	Decision     Decision  `json:"decision,omitempty"`
	ReasonCodes  []string  `json:"reason_codes"`
	Details      string    `json:"details"`
}

// Audit entity types.
const (
	EntityTransaction = "Transaction"
	EntityCluster     = "AMLCluster"
	EntityCase        = "AMLCase"
)
