// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for storing scored records and
// investigation state.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)

	// Cluster operations
	SaveCluster(ctx context.Context, cluster *Cluster) error
	GetCluster(ctx context.Context, clusterID string) (*Cluster, error)
	ListClusters(ctx context.Context, limit int) ([]*Cluster, error)
	UpdateClusterStatus(ctx context.Context, clusterID string, status ClusterStatus) error

	// Case operations
	SaveCase(ctx context.Context, c *Case) error
	SaveCaseWithClusterStatus(ctx context.Context, c *Case, status ClusterStatus) error
	GetCase(ctx context.Context, caseID string) (*Case, error)
	ListCases(ctx context.Context, filter CaseFilter) ([]*Case, error)

	// Audit trail
	SaveAuditEntry(ctx context.Context, entry *AuditEntry) error
	ListAuditEntries(ctx context.Context, filter AuditFilter) ([]*AuditEntry, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// TransactionFilter narrows ListTransactions. Zero values match everything.
type TransactionFilter struct {
	CustomerID string
	Decision   Decision
	Since      time.Time
	Limit      int
}

// CaseFilter narrows ListCases.
type CaseFilter struct {
	ClusterID string
	Status    CaseStatus
	Priority  Priority
}

// AuditFilter narrows ListAuditEntries.
type AuditFilter struct {
	EntityType string
	EntityID   string
	Limit      int
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite", "postgres" or "none"
	Driver string

	// SQLite specific; ":memory:" keeps everything in process
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
