// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = domain.ErrNotFound

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 100

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 && cfg.SQLitePath != MemoryPath {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a scored transaction. Saving an existing id is a no-op.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx == nil || tx.ID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}

	reasons, err := json.Marshal(tx.ReasonKeys)
	if err != nil {
		return fmt.Errorf("failed to encode reason codes: %w", err)
	}

	query := `
		INSERT INTO transactions (
			id, timestamp, amount, merchant, merchant_category, channel,
			country, state, customer_id, device_id, velocity_10min,
			avg_amount_30d, device_change, geo_distance_km, merchant_risk,
			is_fraud, risk_score, decision, reason_keys, fallback, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tx.Timestamp.UTC(), tx.Amount, tx.Merchant, tx.MerchantCategory, string(tx.Channel),
		tx.Country, tx.State, tx.CustomerID, tx.DeviceID, tx.Velocity10Min,
		tx.AvgAmount30d, boolInt(tx.DeviceChangeFlag), tx.GeoDistanceKm, tx.MerchantRisk,
		boolInt(tx.IsFraud), tx.RiskScore, string(tx.Decision), string(reasons), boolInt(tx.Fallback),
		time.Now().UTC(),
	)
	return err
}

const transactionColumns = `
	id, timestamp, amount, merchant, merchant_category, channel,
	country, state, customer_id, device_id, velocity_10min,
	avg_amount_30d, device_change, geo_distance_km, merchant_risk,
	is_fraud, risk_score, decision, reason_keys, fallback`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var channel, decision, reasons string
	var deviceChange, isFraud, fallback int

	if err := row.Scan(
		&tx.ID, &tx.Timestamp, &tx.Amount, &tx.Merchant, &tx.MerchantCategory, &channel,
		&tx.Country, &tx.State, &tx.CustomerID, &tx.DeviceID, &tx.Velocity10Min,
		&tx.AvgAmount30d, &deviceChange, &tx.GeoDistanceKm, &tx.MerchantRisk,
		&isFraud, &tx.RiskScore, &decision, &reasons, &fallback,
	); err != nil {
		return nil, err
	}

	tx.Channel = domain.Channel(channel)
	tx.Decision = domain.Decision(decision)
	tx.DeviceChangeFlag = deviceChange == 1
	tx.IsFraud = isFraud == 1
	tx.Fallback = fallback == 1
	tx.ReasonKeys = []domain.ReasonCode{}
	if err := json.Unmarshal([]byte(reasons), &tx.ReasonKeys); err != nil {
		return nil, fmt.Errorf("failed to parse reason codes for %s: %w", tx.ID, err)
	}
	tx.ReasonCodes = domain.Describe(tx.ReasonKeys)
	return &tx, nil
}

// GetTransaction retrieves a transaction by ID.
func (r *SQLRepository) GetTransaction(ctx context.Context, txID string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = ?`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), txID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// ListTransactions returns transactions matching filter, newest first.
func (r *SQLRepository) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var where []string
	var args []any

	if filter.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.Decision != "" {
		where = append(where, "decision = ?")
		args = append(args, string(filter.Decision))
	}
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UTC())
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions` +
		whereClause(where) + ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []*domain.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}
	return transactions, rows.Err()
}

// SaveCluster stores an analysed cluster. Existing clusters are replaced.
func (r *SQLRepository) SaveCluster(ctx context.Context, c *domain.Cluster) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: cluster id is required", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cluster: %w", err)
	}

	query := `
		INSERT INTO clusters (
			id, typology, risk_score, status, account_count, total_flow_amount, payload, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			typology = excluded.typology,
			risk_score = excluded.risk_score,
			status = excluded.status,
			account_count = excluded.account_count,
			total_flow_amount = excluded.total_flow_amount,
			payload = excluded.payload
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		c.ID, string(c.Typology), c.RiskScore, string(c.Status),
		c.AccountCount, c.TotalFlowAmount, string(payload), c.CreatedAt.UTC(),
	)
	return err
}

func scanCluster(row rowScanner) (*domain.Cluster, error) {
	var payload, status string
	if err := row.Scan(&payload, &status); err != nil {
		return nil, err
	}

	var c domain.Cluster
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("failed to parse cluster: %w", err)
	}
	c.Status = domain.ClusterStatus(status)
	return &c, nil
}

// GetCluster retrieves a cluster by ID.
func (r *SQLRepository) GetCluster(ctx context.Context, clusterID string) (*domain.Cluster, error) {
	query := `SELECT payload, status FROM clusters WHERE id = ?`

	c, err := scanCluster(r.db.QueryRowContext(ctx, r.rebind(query), clusterID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListClusters returns the most recent clusters, newest first.
func (r *SQLRepository) ListClusters(ctx context.Context, limit int) ([]*domain.Cluster, error) {
	query := `SELECT payload, status FROM clusters ORDER BY created_at DESC, id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), listLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	clusters := []*domain.Cluster{}
	for rows.Next() {
		c, err := scanCluster(rows)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, c)
	}
	return clusters, rows.Err()
}

// UpdateClusterStatus changes the workflow status of a cluster.
func (r *SQLRepository) UpdateClusterStatus(ctx context.Context, clusterID string, status domain.ClusterStatus) error {
	return r.updateClusterStatus(ctx, r.db, clusterID, status)
}

func (r *SQLRepository) updateClusterStatus(ctx context.Context, db execer, clusterID string, status domain.ClusterStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown cluster status %q", domain.ErrInvalidInput, status)
	}

	query := `UPDATE clusters SET status = ? WHERE id = ?`

	result, err := db.ExecContext(ctx, r.rebind(query), string(status), clusterID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveCase inserts or replaces an investigation case. A second case that is
// not Closed on the same cluster fails with domain.ErrInvalidTransition.
func (r *SQLRepository) SaveCase(ctx context.Context, c *domain.Case) error {
	return r.saveCase(ctx, r.db, c)
}

// SaveCaseWithClusterStatus saves c and sets the status of its cluster in one
// transaction. Nothing is written when either step fails.
func (r *SQLRepository) SaveCaseWithClusterStatus(ctx context.Context, c *domain.Case, status domain.ClusterStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.saveCase(ctx, tx, c); err != nil {
		return err
	}
	if err := r.updateClusterStatus(ctx, tx, c.ClusterID, status); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *SQLRepository) saveCase(ctx context.Context, db execer, c *domain.Case) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: case id is required", domain.ErrInvalidInput)
	}

	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode case: %w", err)
	}

	query := `
		INSERT INTO cases (id, cluster_id, status, priority, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			priority = excluded.priority,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	_, err = db.ExecContext(ctx, r.rebind(query),
		c.ID, c.ClusterID, string(c.Status), string(c.Priority), string(payload),
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: cluster %s already has an active case", domain.ErrInvalidTransition, c.ClusterID)
	}
	return err
}

func isUniqueViolation(err error) bool {
	return err != nil && (isPostgresUniqueViolation(err) || isSQLiteUniqueViolation(err))
}

func scanCase(row rowScanner) (*domain.Case, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		return nil, err
	}
	var c domain.Case
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, fmt.Errorf("failed to parse case: %w", err)
	}
	return &c, nil
}

// GetCase retrieves a case by ID.
func (r *SQLRepository) GetCase(ctx context.Context, caseID string) (*domain.Case, error) {
	query := `SELECT payload FROM cases WHERE id = ?`

	c, err := scanCase(r.db.QueryRowContext(ctx, r.rebind(query), caseID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCases returns cases matching filter, most recently updated first.
func (r *SQLRepository) ListCases(ctx context.Context, filter domain.CaseFilter) ([]*domain.Case, error) {
	var where []string
	var args []any

	if filter.ClusterID != "" {
		where = append(where, "cluster_id = ?")
		args = append(args, filter.ClusterID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(filter.Priority))
	}

	query := `SELECT payload FROM cases` + whereClause(where) + ` ORDER BY updated_at DESC, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cases := []*domain.Case{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// SaveAuditEntry appends an entry to the audit trail.
func (r *SQLRepository) SaveAuditEntry(ctx context.Context, e *domain.AuditEntry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("%w: audit entry id is required", domain.ErrInvalidInput)
	}

	reasons, err := json.Marshal(nonNil(e.ReasonCodes))
	if err != nil {
		return fmt.Errorf("failed to encode reason codes: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, timestamp, actor, action, entity_type, entity_id,
			model_version, decision, reason_codes, details
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		e.ID, e.Timestamp.UTC(), e.Actor, e.Action, e.EntityType, e.EntityID,
		e.ModelVersion, string(e.Decision), string(reasons), e.Details,
	)
	return err
}

// ListAuditEntries returns audit entries matching filter, newest first.
func (r *SQLRepository) ListAuditEntries(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditEntry, error) {
	var where []string
	var args []any

	if filter.EntityType != "" {
		where = append(where, "entity_type = ?")
		args = append(args, filter.EntityType)
	}
	if filter.EntityID != "" {
		where = append(where, "entity_id = ?")
		args = append(args, filter.EntityID)
	}

	query := `
		SELECT id, timestamp, actor, action, entity_type, entity_id,
			   model_version, decision, reason_codes, details
		FROM audit_entries` + whereClause(where) + `
		ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*domain.AuditEntry{}
	for rows.Next() {
		var e domain.AuditEntry
		var decision, reasons string
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.Actor, &e.Action, &e.EntityType, &e.EntityID,
			&e.ModelVersion, &decision, &reasons, &e.Details,
		); err != nil {
			return nil, err
		}
		e.Decision = domain.Decision(decision)
		if err := json.Unmarshal([]byte(reasons), &e.ReasonCodes); err != nil {
			return nil, fmt.Errorf("failed to parse reason codes for %s: %w", e.ID, err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
