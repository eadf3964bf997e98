// Package booking is the scheduling engine: atomic booking and reschedule
// transactions, the status transition executor, open-slot queries and
// waitlist backfill. Every read-check-write sequence runs inside a single
// database transaction; the appointments exclusion constraint is the
// authoritative double-booking guard, so a check that passed here can still
// lose the race and surface as ErrSlotConflict at commit.
package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/availability"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/billing"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/lifecycle"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/outbox"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/storage"
)

// conflictWindow pads the busy-interval query around a proposed interval.
// Appointments longer than this cannot exist (windows are within one day),
// so the padded range always covers every possible overlapper.
const conflictWindow = 24 * time.Hour

type Service struct {
	repo    *storage.Repository
	outbox  *outbox.Repository
	billing billing.Provider
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo *storage.Repository, outboxRepo *outbox.Repository, billingProvider billing.Provider, logger *slog.Logger) *Service {
	return &Service{
		repo:    repo,
		outbox:  outboxRepo,
		billing: billingProvider,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OpenSlots returns the bookable slots for a provider on a date, ascending
// by start. Absent or disabled availability yields an empty result.
func (s *Service) OpenSlots(ctx context.Context, clinicID, providerID string, date time.Time, granularityMinutes int) ([]model.Slot, error) {
	if granularityMinutes <= 0 {
		granularityMinutes = 30
	}

	rule, ok, err := s.repo.AvailabilityRule(ctx, s.repo.DB(), providerID, date.Weekday())
	if err != nil {
		return nil, s.classify(err)
	}
	if !ok || !rule.Enabled {
		return nil, nil
	}

	slots := availability.SlotsForDay(date, &rule, time.Duration(granularityMinutes)*time.Minute)
	if len(slots) == 0 {
		return nil, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	busy, err := s.repo.ActiveIntervals(ctx, s.repo.DB(), providerID, dayStart, dayStart.Add(24*time.Hour), "")
	if err != nil {
		return nil, s.classify(err)
	}
	return availability.FilterOpen(slots, busy), nil
}

type BookRequest struct {
	ClinicID   string
	ProviderID string
	PatientID  string
	ServiceID  string
	StartsAt   time.Time
	EndsAt     time.Time
	Initiator  model.Actor
}

// Book validates the interval against availability and live appointments and
// persists the new appointment, all in one transaction. Patient-initiated
// bookings start as requested; staff bookings start as confirmed.
func (s *Service) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if !req.EndsAt.After(req.StartsAt) {
		return model.Appointment{}, ErrOutsideAvailability
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, s.classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rule, ok, err := s.repo.AvailabilityRule(ctx, tx, req.ProviderID, req.StartsAt.Weekday())
	if err != nil {
		return model.Appointment{}, s.classify(err)
	}
	if !ok || !availability.Contains(rule, req.StartsAt, req.EndsAt) {
		return model.Appointment{}, ErrOutsideAvailability
	}

	busy, err := s.repo.ActiveIntervals(ctx, tx,
		req.ProviderID, req.StartsAt.Add(-conflictWindow), req.EndsAt.Add(conflictWindow), "")
	if err != nil {
		return model.Appointment{}, s.classify(err)
	}
	if availability.HasConflict(req.StartsAt, req.EndsAt, busy) {
		return model.Appointment{}, ErrSlotConflict
	}

	status := model.StatusRequested
	if req.Initiator.Role.IsStaff() {
		status = model.StatusConfirmed
	}

	appt := model.Appointment{
		ClinicID:   req.ClinicID,
		ProviderID: req.ProviderID,
		PatientID:  req.PatientID,
		ServiceID:  req.ServiceID,
		StartsAt:   req.StartsAt,
		EndsAt:     req.EndsAt,
		Status:     status,
	}
	if req.ServiceID != "" {
		cents, found, err := s.repo.ServicePriceCents(ctx, tx, req.ClinicID, req.ServiceID)
		if err != nil {
			return model.Appointment{}, s.classify(err)
		}
		if found {
			appt.EstimateCents = &cents
		}
	}

	if err := s.repo.InsertAppointment(ctx, tx, &appt); err != nil {
		return model.Appointment{}, s.classify(err)
	}
	if err := s.emitBooked(ctx, tx, appt); err != nil {
		return model.Appointment{}, s.classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, s.classify(err)
	}
	return appt, nil
}

type RescheduleResult struct {
	Old model.Appointment
	New model.Appointment
}

// Reschedule atomically creates a replacement appointment (requested) at the
// new interval and cancels the original with the reschedule reason. The
// original is row-locked for the duration, so a concurrent transition either
// lands before (making this call stale) or waits and then fails.
func (s *Service) Reschedule(ctx context.Context, clinicID, appointmentID string, newStart, newEnd time.Time, initiator model.Actor) (RescheduleResult, error) {
	if !newEnd.After(newStart) {
		return RescheduleResult{}, ErrOutsideAvailability
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := s.repo.AppointmentForUpdate(ctx, tx, clinicID, appointmentID)
	if err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	if !lifecycle.Reschedulable(old.Status) {
		return RescheduleResult{}, ErrStaleAppointment
	}
	if initiator.Role == model.RolePatient && initiator.UID != old.PatientID {
		return RescheduleResult{}, lifecycle.ErrNotAuthorized
	}

	rule, ok, err := s.repo.AvailabilityRule(ctx, tx, old.ProviderID, newStart.Weekday())
	if err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	if !ok || !availability.Contains(rule, newStart, newEnd) {
		return RescheduleResult{}, ErrOutsideAvailability
	}

	busy, err := s.repo.ActiveIntervals(ctx, tx,
		old.ProviderID, newStart.Add(-conflictWindow), newEnd.Add(conflictWindow), old.ID)
	if err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	if availability.HasConflict(newStart, newEnd, busy) {
		return RescheduleResult{}, ErrSlotConflict
	}

	replacement := model.Appointment{
		ClinicID:      clinicID,
		ProviderID:    old.ProviderID,
		PatientID:     old.PatientID,
		ServiceID:     old.ServiceID,
		StartsAt:      newStart,
		EndsAt:        newEnd,
		Status:        model.StatusRequested,
		EstimateCents: old.EstimateCents,
	}

	cancellation := model.Cancellation{
		Reason: lifecycle.RescheduleReason,
		ByUID:  initiator.UID,
		ByRole: initiator.Role,
		At:     s.now(),
	}
	updatedAt, err := s.repo.UpdateStatus(ctx, tx, clinicID, old.ID, model.StatusCancelled, &cancellation)
	if err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	old.Status = model.StatusCancelled
	old.Cancellation = &cancellation
	old.UpdatedAt = updatedAt

	// Insert after the cancel so the freed interval can be reused when
	// rescheduling into an overlapping slot; the exclusion constraint sees
	// the original as released within this transaction.
	if err := s.repo.InsertAppointment(ctx, tx, &replacement); err != nil {
		return RescheduleResult{}, s.classify(err)
	}

	if err := s.emitCancelled(ctx, tx, old); err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	if err := s.emitBooked(ctx, tx, replacement); err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return RescheduleResult{}, s.classify(err)
	}
	return RescheduleResult{Old: old, New: replacement}, nil
}

// TransitionStatus applies one state-machine edge to an appointment. The row
// lock makes concurrent transitions on the same appointment linearizable;
// the loser observes the winner's state and gets an invalid-transition or
// stale error instead of silently overwriting.
func (s *Service) TransitionStatus(ctx context.Context, clinicID, appointmentID string, to model.Status, actor model.Actor, reason, reasonText string) (model.Appointment, error) {
	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return model.Appointment{}, s.classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := s.repo.AppointmentForUpdate(ctx, tx, clinicID, appointmentID)
	if err != nil {
		return model.Appointment{}, s.classify(err)
	}
	if !lifecycle.CanTransition(appt.Status, to) {
		return model.Appointment{}, lifecycle.ErrInvalidTransition
	}
	if err := lifecycle.Authorize(actor, appt, to); err != nil {
		return model.Appointment{}, err
	}

	var cancellation *model.Cancellation
	if to == model.StatusCancelled {
		resolved, err := lifecycle.ResolveCancelReason(actor.Role, strings.TrimSpace(reason), strings.TrimSpace(reasonText))
		if err != nil {
			return model.Appointment{}, err
		}
		cancellation = &model.Cancellation{
			Reason: resolved,
			ByUID:  actor.UID,
			ByRole: actor.Role,
			At:     s.now(),
		}
	}

	updatedAt, err := s.repo.UpdateStatus(ctx, tx, clinicID, appt.ID, to, cancellation)
	if err != nil {
		return model.Appointment{}, s.classify(err)
	}
	appt.Status = to
	appt.UpdatedAt = updatedAt
	if cancellation != nil {
		appt.Cancellation = cancellation
	}

	switch to {
	case model.StatusCancelled:
		err = s.emitCancelled(ctx, tx, appt)
	case model.StatusCompleted:
		err = s.emitCompleted(ctx, tx, appt)
	case model.StatusNoShow:
		err = s.emit(ctx, tx, outbox.EventAppointmentNoShow, appt.ID, map[string]any{
			"appointment_id": appt.ID,
			"clinic_id":      appt.ClinicID,
			"provider_id":    appt.ProviderID,
			"patient_id":     appt.PatientID,
			"marked_at":      appt.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err != nil {
		return model.Appointment{}, s.classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, s.classify(err)
	}

	// Fast path alongside the outbox: when a synchronous billing client is
	// configured, nudge it now instead of waiting for the publisher loop.
	// Fire-and-forget; the invoice consumer dedupes by appointment id.
	if to == model.StatusCompleted && s.billing != nil {
		go s.ensureInvoice(appt)
	}
	return appt, nil
}

func (s *Service) ensureInvoice(appt model.Appointment) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.billing.EnsureInvoice(ctx, appt.ClinicID, appt); err != nil {
		s.logger.Warn("synchronous invoice nudge failed; outbox event will cover it",
			"appointment_id", appt.ID, "err", err)
	}
}

type BackfillResult struct {
	Appointment model.Appointment
	Filled      bool
}

// BackfillWaitlist offers a freed interval to the clinic's longest-waiting
// entry: a confirmed appointment is created for that patient and the entry
// is consumed, atomically. An empty waitlist is a no-op, not an error.
// The entry's service wins; fallbackServiceID (the cancelled appointment's
// service) covers entries filed without one.
func (s *Service) BackfillWaitlist(ctx context.Context, clinicID, providerID string, freedStart, freedEnd time.Time, fallbackServiceID string) (BackfillResult, error) {
	if !freedEnd.After(freedStart) {
		return BackfillResult{}, ErrOutsideAvailability
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		return BackfillResult{}, s.classify(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	entry, ok, err := s.repo.OldestWaitlistEntryForUpdate(ctx, tx, clinicID)
	if err != nil {
		return BackfillResult{}, s.classify(err)
	}
	if !ok {
		return BackfillResult{}, nil
	}

	serviceID := entry.ServiceID
	if serviceID == "" {
		serviceID = fallbackServiceID
	}

	appt := model.Appointment{
		ClinicID:   clinicID,
		ProviderID: providerID,
		PatientID:  entry.PatientID,
		ServiceID:  serviceID,
		StartsAt:   freedStart,
		EndsAt:     freedEnd,
		Status:     model.StatusConfirmed,
	}
	if serviceID != "" {
		cents, found, err := s.repo.ServicePriceCents(ctx, tx, clinicID, serviceID)
		if err != nil {
			return BackfillResult{}, s.classify(err)
		}
		if found {
			appt.EstimateCents = &cents
		}
	}

	if err := s.repo.InsertAppointment(ctx, tx, &appt); err != nil {
		return BackfillResult{}, s.classify(err)
	}
	if err := s.repo.DeleteWaitlistEntry(ctx, tx, entry.ID); err != nil {
		return BackfillResult{}, s.classify(err)
	}

	if err := s.emit(ctx, tx, outbox.EventWaitlistBackfilled, appt.ID, map[string]any{
		"appointment_id":    appt.ID,
		"clinic_id":         clinicID,
		"provider_id":       providerID,
		"patient_id":        entry.PatientID,
		"service_id":        serviceID,
		"waitlist_entry_id": entry.ID,
		"starts_at":         freedStart.UTC().Format(time.RFC3339),
		"ends_at":           freedEnd.UTC().Format(time.RFC3339),
	}); err != nil {
		return BackfillResult{}, s.classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return BackfillResult{}, s.classify(err)
	}
	return BackfillResult{Appointment: appt, Filled: true}, nil
}

func (s *Service) emitBooked(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	return s.emit(ctx, tx, outbox.EventAppointmentBooked, appt.ID, map[string]any{
		"appointment_id": appt.ID,
		"clinic_id":      appt.ClinicID,
		"provider_id":    appt.ProviderID,
		"patient_id":     appt.PatientID,
		"service_id":     appt.ServiceID,
		"status":         string(appt.Status),
		"starts_at":      appt.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":        appt.EndsAt.UTC().Format(time.RFC3339),
		"estimate_cents": appt.EstimateCents,
	})
}

func (s *Service) emitCancelled(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"clinic_id":      appt.ClinicID,
		"provider_id":    appt.ProviderID,
		"patient_id":     appt.PatientID,
		"service_id":     appt.ServiceID,
		"starts_at":      appt.StartsAt.UTC().Format(time.RFC3339),
		"ends_at":        appt.EndsAt.UTC().Format(time.RFC3339),
	}
	if appt.Cancellation != nil {
		payload["reason"] = appt.Cancellation.Reason
		payload["by_uid"] = appt.Cancellation.ByUID
		payload["by_role"] = string(appt.Cancellation.ByRole)
		payload["cancelled_at"] = appt.Cancellation.At.UTC().Format(time.RFC3339)
	}
	return s.emit(ctx, tx, outbox.EventAppointmentCancelled, appt.ID, payload)
}

// emitCompleted is the invoice-trigger signal consumed by billing.
func (s *Service) emitCompleted(ctx context.Context, tx pgx.Tx, appt model.Appointment) error {
	return s.emit(ctx, tx, outbox.EventAppointmentCompleted, appt.ID, map[string]any{
		"appointment_id": appt.ID,
		"clinic_id":      appt.ClinicID,
		"provider_id":    appt.ProviderID,
		"patient_id":     appt.PatientID,
		"service_id":     appt.ServiceID,
		"estimate_cents": appt.EstimateCents,
		"completed_at":   appt.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Service) emit(ctx context.Context, tx pgx.Tx, eventType, aggregateID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

func (s *Service) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case storage.IsConflict(err):
		return ErrSlotConflict
	case storage.IsTransient(err):
		return fmt.Errorf("%w: %v", ErrTransientStorage, err)
	default:
		return err
	}
}
