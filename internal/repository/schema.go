package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    merchant TEXT NOT NULL,
    merchant_category TEXT NOT NULL,
    channel TEXT NOT NULL,
    country TEXT NOT NULL,
    state TEXT NOT NULL DEFAULT '',
    customer_id TEXT NOT NULL,
    device_id TEXT NOT NULL,
    velocity_10min INTEGER NOT NULL DEFAULT 0,
    avg_amount_30d REAL NOT NULL DEFAULT 0,
    device_change INTEGER NOT NULL DEFAULT 0,
    geo_distance_km REAL NOT NULL DEFAULT 0,
    merchant_risk REAL NOT NULL DEFAULT 0,
    is_fraud INTEGER NOT NULL DEFAULT 0,
    risk_score INTEGER NOT NULL,
    decision TEXT NOT NULL,
    reason_keys TEXT NOT NULL,
    fallback INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_transactions_decision ON transactions(decision);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(timestamp);
`

// schemaClusters stores analysed clusters. The full cluster is kept as JSON;
// status is a separate column because case management updates it.
const schemaClusters = `
CREATE TABLE IF NOT EXISTS clusters (
    id TEXT PRIMARY KEY,
    typology TEXT NOT NULL,
    risk_score INTEGER NOT NULL,
    status TEXT NOT NULL,
    account_count INTEGER NOT NULL,
    total_flow_amount REAL NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_clusters_status ON clusters(status);
CREATE INDEX IF NOT EXISTS idx_clusters_created ON clusters(created_at);
`

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT PRIMARY KEY,
    cluster_id TEXT NOT NULL,
    status TEXT NOT NULL,
    priority TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cases_cluster ON cases(cluster_id);
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(status, priority);
CREATE UNIQUE INDEX IF NOT EXISTS idx_cases_active_cluster ON cases(cluster_id) WHERE status <> 'Closed';
`

const schemaAuditEntries = `
CREATE TABLE IF NOT EXISTS audit_entries (
    id TEXT PRIMARY KEY,
    timestamp TIMESTAMP NOT NULL,
    actor TEXT NOT NULL,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    model_version TEXT NOT NULL DEFAULT '',
    decision TEXT NOT NULL DEFAULT '',
    reason_codes TEXT NOT NULL,
    details TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_entries(entity_type, entity_id);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_entries(timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaClusters,
		schemaCases,
		schemaAuditEntries,
	}
}
