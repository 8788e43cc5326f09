// Package postgres persists audit records to an append-only table.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"phiguard/internal/audit"
)

// Schema creates the audit table and blocks UPDATE and DELETE at the database level.
const Schema = `
CREATE TABLE IF NOT EXISTS phi_audit_log (
	id              UUID PRIMARY KEY,
	occurred_at     TIMESTAMPTZ NOT NULL,
	principal_id    TEXT,
	role            TEXT,
	session_id      TEXT,
	request_id      TEXT,
	trace_id        TEXT,
	client_ip       TEXT,
	user_agent      TEXT,
	method          TEXT NOT NULL,
	endpoint        TEXT NOT NULL,
	resource_type   TEXT,
	resource_id     TEXT,
	action          TEXT NOT NULL,
	phi_accessed    BOOLEAN NOT NULL,
	detected_fields TEXT[] NOT NULL DEFAULT '{}',
	status_code     INTEGER NOT NULL,
	success         BOOLEAN NOT NULL,
	error_code      TEXT,
	error_message   TEXT,
	stack_trace     TEXT,
	latency_ms      DOUBLE PRECISION NOT NULL,
	metadata        JSONB
);

CREATE INDEX IF NOT EXISTS idx_phi_audit_log_principal ON phi_audit_log (principal_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_phi_audit_log_resource ON phi_audit_log (resource_type, resource_id);

CREATE OR REPLACE FUNCTION phi_audit_log_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'phi_audit_log is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS phi_audit_log_no_mutation ON phi_audit_log;
CREATE TRIGGER phi_audit_log_no_mutation
	BEFORE UPDATE OR DELETE ON phi_audit_log
	FOR EACH ROW EXECUTE FUNCTION phi_audit_log_immutable();
`

// Store implements audit.Sink on Postgres.
type Store struct {
	db *sql.DB
}

// New creates a Postgres audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema applies Schema. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Emit inserts the record. Duplicate ids are rejected by the primary key rather
// than overwritten.
func (s *Store) Emit(ctx context.Context, r audit.Record) error {
	var metadata sql.NullString
	if len(r.Metadata) > 0 {
		b, err := json.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO phi_audit_log (
			id, occurred_at, principal_id, role, session_id, request_id, trace_id,
			client_ip, user_agent, method, endpoint, resource_type, resource_id,
			action, phi_accessed, detected_fields, status_code, success,
			error_code, error_message, stack_trace, latency_ms, metadata
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, $19, $20, $21, $22, $23
		)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Timestamp, nullable(r.PrincipalID), nullable(r.Role), nullable(r.SessionID),
		nullable(r.RequestID), nullable(r.TraceID), nullable(r.ClientIP), nullable(r.UserAgent),
		r.Method, r.Endpoint, nullable(r.ResourceType), nullable(r.ResourceID),
		string(r.Action), r.PHIAccessed, pq.Array(nonNil(r.DetectedFields)), r.StatusCode, r.Success,
		nullable(r.ErrorCode), nullable(r.ErrorMessage), nullable(r.StackTrace),
		float64(r.Latency.Microseconds())/1000, metadata,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Record, error) {
	return s.list(ctx, `ORDER BY occurred_at DESC LIMIT $1`, limit)
}

// ListByPrincipal returns the records of one principal, oldest first.
func (s *Store) ListByPrincipal(ctx context.Context, principalID string) ([]audit.Record, error) {
	return s.list(ctx, `WHERE principal_id = $1 ORDER BY occurred_at ASC`, principalID)
}

func (s *Store) list(ctx context.Context, clause string, arg any) ([]audit.Record, error) {
	query := `
		SELECT id, occurred_at, COALESCE(principal_id, ''), COALESCE(role, ''), COALESCE(session_id, ''),
			COALESCE(request_id, ''), COALESCE(trace_id, ''), COALESCE(client_ip, ''), COALESCE(user_agent, ''),
			method, endpoint, COALESCE(resource_type, ''), COALESCE(resource_id, ''),
			action, phi_accessed, detected_fields, status_code, success,
			COALESCE(error_code, ''), COALESCE(error_message, ''), COALESCE(stack_trace, ''), latency_ms, metadata
		FROM phi_audit_log ` + clause

	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			r         audit.Record
			action    string
			latencyMS float64
			metadata  []byte
			detected  pq.StringArray
		)
		if err := rows.Scan(
			&r.ID, &r.Timestamp, &r.PrincipalID, &r.Role, &r.SessionID,
			&r.RequestID, &r.TraceID, &r.ClientIP, &r.UserAgent,
			&r.Method, &r.Endpoint, &r.ResourceType, &r.ResourceID,
			&action, &r.PHIAccessed, &detected, &r.StatusCode, &r.Success,
			&r.ErrorCode, &r.ErrorMessage, &r.StackTrace, &latencyMS, &metadata,
		); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		r.Action = audit.Action(action)
		r.DetectedFields = []string(detected)
		r.Latency = msToDuration(latencyMS)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
