// Package audit defines the fire-and-forget audit adapter contract.
// Persistent storage of audit trails is explicitly out of scope per
// spec.md §1 — the bus only emits records; this package is one possible
// external collaborator, not a requirement the bus depends on to function.
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/acgs2/agentbus/internal/models"
)

// Record is the normalized shape handed to a Sink: either a validation
// outcome or a full deliberation workflow outcome.
type Record struct {
	Kind       string         `json:"kind"` // "validation" | "workflow"
	MessageID  string         `json:"message_id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Result     any            `json:"result"`
	RecordedAt time.Time      `json:"recorded_at"`
	Extra      map[string]any `json:"extra,omitempty"`
}

// Sink persists (or forwards) an audit record and returns a content hash
// the caller may log for later correlation, mirroring spec.md §6's
// `record(validation_result|workflow_result) → audit_hash`.
type Sink interface {
	Record(ctx context.Context, rec Record) (auditHash string, err error)
}

// Hash computes the audit hash for a record: sha256 of its canonical JSON
// encoding, hex-encoded.
func Hash(rec Record) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode audit record: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// NewValidationRecord builds a Record from a message and its outcome.
func NewValidationRecord(msg *models.AgentMessage, result models.ValidationResult) Record {
	return Record{
		Kind:       "validation",
		MessageID:  msg.MessageID,
		TenantID:   msg.TenantID,
		Result:     result,
		RecordedAt: time.Now().UTC(),
	}
}

// PostgresSink is a reference Sink backed by a Postgres append-only table,
// grounded on teacher core/noa.go's database/sql + lib/pq connect-and-ping
// pattern.
type PostgresSink struct {
	db *sql.DB
}

// NewPostgresSink opens and pings a Postgres connection, mirroring
// NewNOACore's "Initialize database connection" / "Test database
// connection" steps.
func NewPostgresSink(dataSourceName string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return &PostgresSink{db: db}, nil
}

// NewPostgresSinkFromDB wraps an already-open *sql.DB, used by tests
// against go-sqlmock.
func NewPostgresSinkFromDB(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

const insertAuditRecordSQL = `
INSERT INTO audit_records (message_id, tenant_id, kind, result, recorded_at, audit_hash)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (p *PostgresSink) Record(ctx context.Context, rec Record) (string, error) {
	hash, err := Hash(rec)
	if err != nil {
		return "", err
	}
	resultJSON, err := json.Marshal(rec.Result)
	if err != nil {
		return "", fmt.Errorf("encode audit result: %w", err)
	}
	_, err = p.db.ExecContext(ctx, insertAuditRecordSQL,
		rec.MessageID, rec.TenantID, rec.Kind, resultJSON, rec.RecordedAt, hash)
	if err != nil {
		return "", fmt.Errorf("insert audit record: %w", err)
	}
	return hash, nil
}

// Close releases the underlying connection pool.
func (p *PostgresSink) Close() error { return p.db.Close() }

// NopSink discards every record, returning only its content hash. Used
// when no audit collaborator is configured (the bus never requires one).
type NopSink struct{}

func (NopSink) Record(ctx context.Context, rec Record) (string, error) {
	return Hash(rec)
}
