package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicflow/clinicflow/libs/db"
	"github.com/clinicflow/clinicflow/services/billing-service/internal/invoices"
)

type Repository struct {
	pool db.Beginner
}

func NewRepository(pool db.Beginner) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const invoiceColumns = `
	id::text, clinic_id, appointment_id, patient_id, COALESCE(service_id, ''),
	amount_cents, currency, status, COALESCE(stripe_session_id, ''),
	paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (invoices.Invoice, error) {
	var inv invoices.Invoice
	var status string
	err := row.Scan(
		&inv.ID, &inv.ClinicID, &inv.AppointmentID, &inv.PatientID, &inv.ServiceID,
		&inv.AmountCents, &inv.Currency, &status, &inv.StripeSessionID,
		&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return invoices.Invoice{}, err
	}
	inv.Status = invoices.Status(status)
	return inv, nil
}

// EnsureInvoice inserts the invoice unless one already exists for the
// appointment, then returns the current row either way. One appointment,
// one invoice, regardless of how many completion signals arrive.
func (r *Repository) EnsureInvoice(ctx context.Context, tx pgx.Tx, inv invoices.Invoice) (invoices.Invoice, error) {
	var serviceID *string
	if inv.ServiceID != "" {
		serviceID = &inv.ServiceID
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO invoices (clinic_id, appointment_id, patient_id, service_id, amount_cents, currency, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (appointment_id) DO NOTHING
	`, inv.ClinicID, inv.AppointmentID, inv.PatientID, serviceID, inv.AmountCents, inv.Currency, string(inv.Status))
	if err != nil {
		return invoices.Invoice{}, err
	}
	return scanInvoice(tx.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE appointment_id = $1
	`, inv.AppointmentID))
}

func (r *Repository) GetInvoice(ctx context.Context, clinicID, id string) (invoices.Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID))
}

func (r *Repository) GetInvoiceByAppointment(ctx context.Context, clinicID, appointmentID string) (invoices.Invoice, error) {
	return scanInvoice(r.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE appointment_id = $1 AND clinic_id = $2
	`, appointmentID, clinicID))
}

func (r *Repository) ListInvoices(ctx context.Context, clinicID string, status invoices.Status, limit int) ([]invoices.Invoice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE clinic_id = $1
			AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, clinicID, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []invoices.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *Repository) SetStripeSession(ctx context.Context, tx pgx.Tx, invoiceID, sessionID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE invoices
		SET stripe_session_id = $2, updated_at = now()
		WHERE id = $1
	`, invoiceID, sessionID)
	return err
}

// MarkInvoicePaid flips a pending invoice to paid. Already-paid invoices are
// left untouched so webhook replays stay idempotent.
func (r *Repository) MarkInvoicePaid(ctx context.Context, tx pgx.Tx, invoiceID string, paidAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE invoices
		SET status = 'paid', paid_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`, invoiceID, paidAt)
	return err
}

func (r *Repository) MarkInvoicePaidByStripeSession(ctx context.Context, tx pgx.Tx, sessionID string, paidAt time.Time) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		UPDATE invoices
		SET status = 'paid', paid_at = $2, updated_at = now()
		WHERE stripe_session_id = $1 AND status = 'pending'
		RETURNING id::text
	`, sessionID, paidAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return id, err
}

func (r *Repository) VoidInvoice(ctx context.Context, tx pgx.Tx, clinicID, invoiceID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE invoices
		SET status = 'void', updated_at = now()
		WHERE id = $1 AND clinic_id = $2 AND status = 'pending'
	`, invoiceID, clinicID)
	return err
}

// --- provider event dedupe ---

var ErrDuplicateProviderEvent = errors.New("provider event already recorded")

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

func (r *Repository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, e ProviderEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, e.Provider, e.ProviderEventID, e.EventType, e.Payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateProviderEvent
		}
		return err
	}
	return nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
