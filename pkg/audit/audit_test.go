package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/acgs2/agentbus/internal/models"
)

func TestNopSinkReturnsStableHash(t *testing.T) {
	rec := NewValidationRecord(&models.AgentMessage{MessageID: "m-1"}, models.NewValidResult("cdd01ef066bc6cf2"))
	rec.RecordedAt = time.Unix(0, 0).UTC()

	h1, err := NopSink{}.Record(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := Hash(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected NopSink hash to match Hash(rec): %s vs %s", h1, h2)
	}
}

func TestPostgresSinkInsertsRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %v", err)
	}
	defer db.Close()

	sink := NewPostgresSinkFromDB(db)

	rec := NewValidationRecord(&models.AgentMessage{MessageID: "m-1", TenantID: "acme"}, models.NewValidResult("cdd01ef066bc6cf2"))

	mock.ExpectExec("INSERT INTO audit_records").
		WithArgs(rec.MessageID, rec.TenantID, rec.Kind, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	hash, err := sink.Record(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "" {
		t.Fatal("expected non-empty audit hash")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
