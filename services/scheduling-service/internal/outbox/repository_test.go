package outbox

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestFetchUnpublishedAndMarkPublished(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WithArgs(10).
		WillReturnRows(mock.NewRows([]string{
			"id", "event_id", "aggregate_type", "aggregate_id", "event_type",
			"payload", "traceparent", "tracestate", "created_at",
		}).
			AddRow(int64(1), "evt-1", "appointment", "appt-1", EventAppointmentBooked, []byte(`{}`), "", "", now).
			AddRow(int64(2), "evt-2", "appointment", "appt-2", EventAppointmentCancelled, []byte(`{}`), "", "", now))
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs([]int64{1, 2}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	records, err := repo.FetchUnpublished(ctx, tx, 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != 1 || records[0].EventType != EventAppointmentBooked {
		t.Fatalf("unexpected first record: %+v", records[0])
	}

	ids := []int64{records[0].ID, records[1].ID}
	if err := repo.MarkPublished(ctx, tx, ids); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkPublished_EmptyBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()
	repo := NewRepository(mock)

	mock.ExpectBegin()
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := mock.Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := repo.MarkPublished(ctx, tx, nil); err != nil {
		t.Fatalf("empty batch must be a no-op: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
