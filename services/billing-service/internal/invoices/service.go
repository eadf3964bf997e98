package invoices

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Store is the slice of the billing repository the service needs.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	EnsureInvoice(ctx context.Context, tx pgx.Tx, inv Invoice) (Invoice, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type EnsureRequest struct {
	ClinicID      string
	AppointmentID string
	PatientID     string
	ServiceID     string
	EstimateCents *int64
}

// Ensure creates the pending invoice for a completed appointment, or returns
// the existing one. Safe to call from both the Kafka consumer and the gRPC
// fast path; the appointment id is the idempotency key.
func (s *Service) Ensure(ctx context.Context, req EnsureRequest) (Invoice, error) {
	amount, currency := ResolveAmount(req.EstimateCents)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return Invoice{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inv, err := s.store.EnsureInvoice(ctx, tx, Invoice{
		ClinicID:      req.ClinicID,
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		ServiceID:     req.ServiceID,
		AmountCents:   amount,
		Currency:      currency,
		Status:        StatusPending,
	})
	if err != nil {
		return Invoice{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// EnsureInTx is Ensure for callers that already hold a transaction.
func (s *Service) EnsureInTx(ctx context.Context, tx pgx.Tx, req EnsureRequest) (Invoice, error) {
	amount, currency := ResolveAmount(req.EstimateCents)
	return s.store.EnsureInvoice(ctx, tx, Invoice{
		ClinicID:      req.ClinicID,
		AppointmentID: req.AppointmentID,
		PatientID:     req.PatientID,
		ServiceID:     req.ServiceID,
		AmountCents:   amount,
		Currency:      currency,
		Status:        StatusPending,
	})
}
