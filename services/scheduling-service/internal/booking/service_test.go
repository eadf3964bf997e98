package booking

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/lifecycle"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/outbox"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/storage"
)

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(storage.NewRepository(mock), outbox.NewRepository(mock), nil, logger)
	return svc, mock
}

func ruleRows(mock pgxmock.PgxPoolIface, providerID string, weekday time.Weekday, enabled bool, startMin, endMin int) *pgxmock.Rows {
	return mock.NewRows([]string{"provider_id", "weekday", "enabled", "start_minute", "end_minute"}).
		AddRow(providerID, int(weekday), enabled, startMin, endMin)
}

func appointmentRow(mock pgxmock.PgxPoolIface, id, clinicID, providerID, patientID string, startsAt, endsAt time.Time, status model.Status) *pgxmock.Rows {
	now := time.Now().UTC()
	return mock.NewRows([]string{
		"id", "clinic_id", "provider_id", "patient_id", "service_id",
		"starts_at", "ends_at", "status", "estimate_cents",
		"cancel_reason", "cancelled_by_uid", "cancelled_by_role", "cancelled_at",
		"created_at", "updated_at",
	}).AddRow(id, clinicID, providerID, patientID, "", startsAt, endsAt, string(status), nil, nil, nil, nil, nil, now, now)
}

func TestBook_OutsideAvailability(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC) // Monday
	ends := starts.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM provider_availability").
		WithArgs("prov-1", int(starts.Weekday())).
		WillReturnRows(ruleRows(mock, "prov-1", starts.Weekday(), true, 9*60, 17*60))
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		ClinicID:   "clinic-1",
		ProviderID: "prov-1",
		PatientID:  "pat-1",
		StartsAt:   starts,
		EndsAt:     ends,
		Initiator:  model.Actor{UID: "pat-1", Role: model.RolePatient},
	})
	if !errors.Is(err, ErrOutsideAvailability) {
		t.Fatalf("expected ErrOutsideAvailability, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBook_SlotConflictFromBusyInterval(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	ends := starts.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM provider_availability").
		WithArgs("prov-1", int(starts.Weekday())).
		WillReturnRows(ruleRows(mock, "prov-1", starts.Weekday(), true, 9*60, 17*60))
	mock.ExpectQuery("FROM appointments").
		WithArgs("prov-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "").
		WillReturnRows(mock.NewRows([]string{"starts_at", "ends_at"}).
			AddRow(starts.Add(15*time.Minute), starts.Add(45*time.Minute)))
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		ClinicID:   "clinic-1",
		ProviderID: "prov-1",
		PatientID:  "pat-1",
		StartsAt:   starts,
		EndsAt:     ends,
		Initiator:  model.Actor{UID: "sec-1", Role: model.RoleSecretary},
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBook_StaffBookingConfirmed(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	ends := starts.Add(30 * time.Minute)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM provider_availability").
		WithArgs("prov-1", int(starts.Weekday())).
		WillReturnRows(ruleRows(mock, "prov-1", starts.Weekday(), true, 9*60, 17*60))
	mock.ExpectQuery("FROM appointments").
		WithArgs("prov-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "").
		WillReturnRows(mock.NewRows([]string{"starts_at", "ends_at"}))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("clinic-1", "prov-1", "pat-1", pgxmock.AnyArg(), starts, ends, "confirmed", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("appt-1", now, now))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "appt-1", outbox.EventAppointmentBooked, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := svc.Book(context.Background(), BookRequest{
		ClinicID:   "clinic-1",
		ProviderID: "prov-1",
		PatientID:  "pat-1",
		StartsAt:   starts,
		EndsAt:     ends,
		Initiator:  model.Actor{UID: "sec-1", Role: model.RoleSecretary},
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if appt.Status != model.StatusConfirmed {
		t.Fatalf("expected staff booking to be confirmed, got %s", appt.Status)
	}
	if appt.ID != "appt-1" {
		t.Fatalf("expected generated id to be filled, got %q", appt.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBook_ExclusionConstraintRace(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	ends := starts.Add(30 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM provider_availability").
		WithArgs("prov-1", int(starts.Weekday())).
		WillReturnRows(ruleRows(mock, "prov-1", starts.Weekday(), true, 9*60, 17*60))
	mock.ExpectQuery("FROM appointments").
		WithArgs("prov-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "").
		WillReturnRows(mock.NewRows([]string{"starts_at", "ends_at"}))
	// The pre-check saw no conflict but a concurrent insert won the race;
	// the exclusion constraint is the last line of defense.
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("clinic-1", "prov-1", "pat-1", pgxmock.AnyArg(), starts, ends, "requested", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23P01"})
	mock.ExpectRollback()

	_, err := svc.Book(context.Background(), BookRequest{
		ClinicID:   "clinic-1",
		ProviderID: "prov-1",
		PatientID:  "pat-1",
		StartsAt:   starts,
		EndsAt:     ends,
		Initiator:  model.Actor{UID: "pat-1", Role: model.RolePatient},
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionStatus_InvalidFromTerminal(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").
		WithArgs("appt-1", "clinic-1").
		WillReturnRows(appointmentRow(mock, "appt-1", "clinic-1", "prov-1", "pat-1", starts, starts.Add(30*time.Minute), model.StatusCancelled))
	mock.ExpectRollback()

	_, err := svc.TransitionStatus(context.Background(), "clinic-1", "appt-1",
		model.StatusConfirmed, model.Actor{UID: "sec-1", Role: model.RoleSecretary}, "", "")
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionStatus_CancelRequiresReason(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").
		WithArgs("appt-1", "clinic-1").
		WillReturnRows(appointmentRow(mock, "appt-1", "clinic-1", "prov-1", "pat-1", starts, starts.Add(30*time.Minute), model.StatusConfirmed))
	mock.ExpectRollback()

	_, err := svc.TransitionStatus(context.Background(), "clinic-1", "appt-1",
		model.StatusCancelled, model.Actor{UID: "pat-1", Role: model.RolePatient}, "", "")
	if !errors.Is(err, lifecycle.ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionStatus_CancelWithReason(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").
		WithArgs("appt-1", "clinic-1").
		WillReturnRows(appointmentRow(mock, "appt-1", "clinic-1", "prov-1", "pat-1", starts, starts.Add(30*time.Minute), model.StatusConfirmed))
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("appt-1", "clinic-1", "cancelled", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "appt-1", outbox.EventAppointmentCancelled, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	appt, err := svc.TransitionStatus(context.Background(), "clinic-1", "appt-1",
		model.StatusCancelled, model.Actor{UID: "pat-1", Role: model.RolePatient}, "Feeling unwell", "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if appt.Status != model.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", appt.Status)
	}
	if appt.Cancellation == nil || appt.Cancellation.Reason != "Feeling unwell" {
		t.Fatalf("expected cancellation reason to be recorded, got %+v", appt.Cancellation)
	}
	if appt.Cancellation.ByUID != "pat-1" || appt.Cancellation.ByRole != model.RolePatient {
		t.Fatalf("expected the cancelling patient to be recorded, got %+v", appt.Cancellation)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTransitionStatus_PatientCannotConfirm(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").
		WithArgs("appt-1", "clinic-1").
		WillReturnRows(appointmentRow(mock, "appt-1", "clinic-1", "prov-1", "pat-1", starts, starts.Add(30*time.Minute), model.StatusRequested))
	mock.ExpectRollback()

	_, err := svc.TransitionStatus(context.Background(), "clinic-1", "appt-1",
		model.StatusConfirmed, model.Actor{UID: "pat-1", Role: model.RolePatient}, "", "")
	if !errors.Is(err, lifecycle.ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReschedule_StaleAppointment(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").
		WithArgs("appt-1", "clinic-1").
		WillReturnRows(appointmentRow(mock, "appt-1", "clinic-1", "prov-1", "pat-1", starts, starts.Add(30*time.Minute), model.StatusCompleted))
	mock.ExpectRollback()

	_, err := svc.Reschedule(context.Background(), "clinic-1", "appt-1",
		starts.Add(2*time.Hour), starts.Add(2*time.Hour+30*time.Minute),
		model.Actor{UID: "sec-1", Role: model.RoleSecretary})
	if !errors.Is(err, ErrStaleAppointment) {
		t.Fatalf("expected ErrStaleAppointment, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestReschedule_RoundTrip(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC) // Monday
	ends := starts.Add(30 * time.Minute)
	newStart := starts.Add(4 * time.Hour)
	newEnd := newStart.Add(30 * time.Minute)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM appointments").
		WithArgs("appt-1", "clinic-1").
		WillReturnRows(appointmentRow(mock, "appt-1", "clinic-1", "prov-1", "pat-1", starts, ends, model.StatusConfirmed))
	mock.ExpectQuery("FROM provider_availability").
		WithArgs("prov-1", int(newStart.Weekday())).
		WillReturnRows(ruleRows(mock, "prov-1", newStart.Weekday(), true, 9*60, 17*60))
	mock.ExpectQuery("FROM appointments").
		WithArgs("prov-1", pgxmock.AnyArg(), pgxmock.AnyArg(), "appt-1").
		WillReturnRows(mock.NewRows([]string{"starts_at", "ends_at"}))
	mock.ExpectQuery("UPDATE appointments").
		WithArgs("appt-1", "clinic-1", "cancelled", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("clinic-1", "prov-1", "pat-1", pgxmock.AnyArg(), newStart, newEnd, "requested", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("appt-2", now, now))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "appt-1", outbox.EventAppointmentCancelled, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "appt-2", outbox.EventAppointmentBooked, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := svc.Reschedule(context.Background(), "clinic-1", "appt-1",
		newStart, newEnd, model.Actor{UID: "sec-1", Role: model.RoleSecretary})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if res.Old.Status != model.StatusCancelled {
		t.Fatalf("expected the original to be cancelled, got %s", res.Old.Status)
	}
	if res.Old.Cancellation == nil || res.Old.Cancellation.Reason != lifecycle.RescheduleReason {
		t.Fatalf("expected the reschedule cancel reason, got %+v", res.Old.Cancellation)
	}
	if res.New.ID != "appt-2" || res.New.Status != model.StatusRequested {
		t.Fatalf("expected a requested replacement, got %s %s", res.New.ID, res.New.Status)
	}
	if !res.New.StartsAt.Equal(newStart) || !res.New.EndsAt.Equal(newEnd) {
		t.Fatalf("expected the replacement at the new interval, got %v-%v", res.New.StartsAt, res.New.EndsAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBackfillWaitlist_EmptyIsNoOp(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM waitlist_entries").
		WithArgs("clinic-1").
		WillReturnRows(mock.NewRows([]string{"id", "clinic_id", "patient_id", "service_id", "note", "created_at"}))
	mock.ExpectRollback()

	res, err := svc.BackfillWaitlist(context.Background(), "clinic-1", "prov-1",
		starts, starts.Add(30*time.Minute), "")
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if res.Filled {
		t.Fatal("expected no-op on empty waitlist")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBackfillWaitlist_ConsumesOldestEntry(t *testing.T) {
	svc, mock := newTestService(t)

	starts := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	ends := starts.Add(30 * time.Minute)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM waitlist_entries").
		WithArgs("clinic-1").
		WillReturnRows(mock.NewRows([]string{"id", "clinic_id", "patient_id", "service_id", "note", "created_at"}).
			AddRow("wl-1", "clinic-1", "pat-9", "", "", now.Add(-time.Hour)))
	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs("clinic-1", "prov-1", "pat-9", pgxmock.AnyArg(), starts, ends, "confirmed", pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("appt-2", now, now))
	mock.ExpectExec("DELETE FROM waitlist_entries").
		WithArgs("wl-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs("appointment", "appt-2", outbox.EventWaitlistBackfilled, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := svc.BackfillWaitlist(context.Background(), "clinic-1", "prov-1", starts, ends, "")
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	if !res.Filled {
		t.Fatal("expected waitlist entry to fill the slot")
	}
	if res.Appointment.PatientID != "pat-9" {
		t.Fatalf("expected the waiting patient, got %s", res.Appointment.PatientID)
	}
	if res.Appointment.Status != model.StatusConfirmed {
		t.Fatalf("expected confirmed backfill, got %s", res.Appointment.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
