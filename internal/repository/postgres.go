package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Pool limits for the pro tier. The worker is the only steady writer, so a
// small pool covers API reads plus persistence.
const (
	postgresMaxOpenConns    = 20
	postgresMaxIdleConns    = 5
	postgresConnMaxLifetime = 30 * time.Minute
	postgresPingTimeout     = 5 * time.Second
)

// openPostgres opens the pro-tier PostgreSQL store.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}

	db.SetMaxOpenConns(postgresMaxOpenConns)
	db.SetMaxIdleConns(postgresMaxIdleConns)
	db.SetConnMaxLifetime(postgresConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), postgresPingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}

	return db, nil
}

// postgresDSN renders a lib/pq keyword/value connection string. Empty
// credentials are left out so pq falls back to PGUSER and friends.
func postgresDSN(cfg domain.RepositoryConfig) string {
	port := cfg.PostgresPort
	if port == 0 {
		port = 5432
	}

	params := []struct{ key, value string }{
		{"host", orDefault(cfg.PostgresHost, "localhost")},
		{"port", strconv.Itoa(port)},
		{"user", cfg.PostgresUser},
		{"password", cfg.PostgresPassword},
		{"dbname", orDefault(cfg.PostgresDB, "kestrel")},
		{"sslmode", orDefault(cfg.PostgresSSLMode, "disable")},
		{"application_name", "kestrel"},
	}

	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.value == "" {
			continue
		}
		parts = append(parts, p.key+"="+quoteDSNValue(p.value))
	}
	return strings.Join(parts, " ")
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// quoteDSNValue quotes values containing spaces or quotes, escaping
// backslashes and single quotes the way libpq expects.
func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation pq.ErrorCode = "23505"

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
