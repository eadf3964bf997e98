// Package storage is the scheduling engine's persistence layer. All
// conflict-sensitive writes run inside a caller-owned transaction; the
// appointments table carries an exclusion constraint over
// (provider_id, tstzrange(starts_at, ends_at)) for live statuses, so the
// database re-validates every overlap check at commit time.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicflow/clinicflow/libs/db"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/availability"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
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

// DB exposes the pool for reads that need no transaction.
func (r *Repository) DB() db.Querier {
	return r.pool
}

// --- availability rules ---

func (r *Repository) AvailabilityRule(ctx context.Context, q db.Querier, providerID string, weekday time.Weekday) (model.AvailabilityRule, bool, error) {
	var rule model.AvailabilityRule
	var wd int
	err := q.QueryRow(ctx, `
		SELECT provider_id, weekday, enabled, start_minute, end_minute
		FROM provider_availability
		WHERE provider_id = $1 AND weekday = $2
	`, providerID, int(weekday)).Scan(&rule.ProviderID, &wd, &rule.Enabled, &rule.StartMinute, &rule.EndMinute)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.AvailabilityRule{}, false, nil
	}
	if err != nil {
		return model.AvailabilityRule{}, false, err
	}
	rule.Weekday = time.Weekday(wd)
	return rule, true, nil
}

func (r *Repository) ListAvailabilityRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT provider_id, weekday, enabled, start_minute, end_minute
		FROM provider_availability
		WHERE provider_id = $1
		ORDER BY weekday ASC
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		var wd int
		if err := rows.Scan(&rule.ProviderID, &wd, &rule.Enabled, &rule.StartMinute, &rule.EndMinute); err != nil {
			return nil, err
		}
		rule.Weekday = time.Weekday(wd)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *Repository) UpsertAvailabilityRule(ctx context.Context, rule model.AvailabilityRule) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_availability (provider_id, weekday, enabled, start_minute, end_minute)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_id, weekday) DO UPDATE
		SET enabled = EXCLUDED.enabled,
			start_minute = EXCLUDED.start_minute,
			end_minute = EXCLUDED.end_minute,
			updated_at = now()
	`, rule.ProviderID, int(rule.Weekday), rule.Enabled, rule.StartMinute, rule.EndMinute)
	return err
}

// --- appointments ---

const appointmentColumns = `
	id::text, clinic_id, provider_id, patient_id, COALESCE(service_id, ''),
	starts_at, ends_at, status, estimate_cents,
	cancel_reason, cancelled_by_uid, cancelled_by_role, cancelled_at,
	created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	var cancelReason, cancelledByUID, cancelledByRole *string
	var cancelledAt *time.Time
	err := row.Scan(
		&a.ID, &a.ClinicID, &a.ProviderID, &a.PatientID, &a.ServiceID,
		&a.StartsAt, &a.EndsAt, &status, &a.EstimateCents,
		&cancelReason, &cancelledByUID, &cancelledByRole, &cancelledAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	if cancelReason != nil {
		c := model.Cancellation{Reason: *cancelReason}
		if cancelledByUID != nil {
			c.ByUID = *cancelledByUID
		}
		if cancelledByRole != nil {
			c.ByRole = model.Role(*cancelledByRole)
		}
		if cancelledAt != nil {
			c.At = *cancelledAt
		}
		a.Cancellation = &c
	}
	return a, nil
}

// ActiveIntervals loads the busy set for a provider within [from, to):
// every non-cancelled, non-no-show appointment interval, optionally
// excluding one appointment id (the reschedule origin).
func (r *Repository) ActiveIntervals(ctx context.Context, q db.Querier, providerID string, from, to time.Time, excludeID string) ([]availability.Interval, error) {
	rows, err := q.Query(ctx, `
		SELECT starts_at, ends_at
		FROM appointments
		WHERE provider_id = $1
			AND status NOT IN ('cancelled', 'no_show')
			AND starts_at < $3
			AND ends_at > $2
			AND ($4 = '' OR id::text <> $4)
		ORDER BY starts_at ASC
	`, providerID, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	return busy, rows.Err()
}

// InsertAppointment persists a new appointment and fills the generated
// fields. The exclusion constraint rejects overlapping live intervals for
// the same provider; callers map that to a slot conflict via IsConflict.
func (r *Repository) InsertAppointment(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	var serviceID *string
	if a.ServiceID != "" {
		serviceID = &a.ServiceID
	}
	return tx.QueryRow(ctx, `
		INSERT INTO appointments
			(clinic_id, provider_id, patient_id, service_id, starts_at, ends_at, status, estimate_cents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text, created_at, updated_at
	`, a.ClinicID, a.ProviderID, a.PatientID, serviceID, a.StartsAt, a.EndsAt, string(a.Status), a.EstimateCents).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (r *Repository) GetAppointment(ctx context.Context, q db.Querier, clinicID, id string) (model.Appointment, error) {
	return scanAppointment(q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND clinic_id = $2
	`, id, clinicID))
}

// AppointmentForUpdate row-locks the appointment for the duration of the
// transaction, serializing concurrent transitions per appointment id.
func (r *Repository) AppointmentForUpdate(ctx context.Context, tx pgx.Tx, clinicID, id string) (model.Appointment, error) {
	return scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND clinic_id = $2
		FOR UPDATE
	`, id, clinicID))
}

// UpdateStatus writes the new status (and cancellation record, when
// transitioning to cancelled) and bumps updated_at.
func (r *Repository) UpdateStatus(ctx context.Context, tx pgx.Tx, clinicID, id string, status model.Status, c *model.Cancellation) (time.Time, error) {
	var reason, byUID, byRole *string
	var at *time.Time
	if c != nil {
		reason = &c.Reason
		byUID = &c.ByUID
		role := string(c.ByRole)
		byRole = &role
		at = &c.At
	}
	var updatedAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3,
			cancel_reason = COALESCE($4, cancel_reason),
			cancelled_by_uid = COALESCE($5, cancelled_by_uid),
			cancelled_by_role = COALESCE($6, cancelled_by_role),
			cancelled_at = COALESCE($7, cancelled_at),
			updated_at = now()
		WHERE id = $1 AND clinic_id = $2
		RETURNING updated_at
	`, id, clinicID, string(status), reason, byUID, byRole, at).Scan(&updatedAt)
	return updatedAt, err
}

// ListFilter narrows ListAppointments. Zero values mean "any".
type ListFilter struct {
	ClinicID   string
	ProviderID string
	PatientID  string
	Status     model.Status
	From       time.Time
	To         time.Time
	Limit      int
}

func (r *Repository) ListAppointments(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE clinic_id = $1
			AND ($2 = '' OR provider_id = $2)
			AND ($3 = '' OR patient_id = $3)
			AND ($4 = '' OR status = $4)
			AND ($5::timestamptz IS NULL OR starts_at >= $5)
			AND ($6::timestamptz IS NULL OR starts_at < $6)
		ORDER BY starts_at DESC
		LIMIT $7
	`, f.ClinicID, f.ProviderID, f.PatientID, string(f.Status), nullableTime(f.From), nullableTime(f.To), f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

// --- service catalog (read model for price estimates) ---

func (r *Repository) ServicePriceCents(ctx context.Context, q db.Querier, clinicID, serviceID string) (int64, bool, error) {
	var cents int64
	err := q.QueryRow(ctx, `
		SELECT default_price_cents
		FROM clinic_services
		WHERE clinic_id = $1 AND id = $2
	`, clinicID, serviceID).Scan(&cents)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return cents, true, nil
}

// --- waitlist ---

func (r *Repository) AddWaitlistEntry(ctx context.Context, e *model.WaitlistEntry) error {
	e.ID = uuid.NewString()
	return r.pool.QueryRow(ctx, `
		INSERT INTO waitlist_entries (id, clinic_id, patient_id, service_id, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, e.ID, e.ClinicID, e.PatientID, e.ServiceID, e.Note).Scan(&e.CreatedAt)
}

func (r *Repository) ListWaitlist(ctx context.Context, clinicID string, limit int) ([]model.WaitlistEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, clinic_id, patient_id, service_id, note, created_at
		FROM waitlist_entries
		WHERE clinic_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, clinicID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		if err := rows.Scan(&e.ID, &e.ClinicID, &e.PatientID, &e.ServiceID, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// OldestWaitlistEntryForUpdate claims the longest-waiting entry for the
// clinic. SKIP LOCKED lets concurrent backfills claim distinct entries
// instead of blocking on each other.
func (r *Repository) OldestWaitlistEntryForUpdate(ctx context.Context, tx pgx.Tx, clinicID string) (model.WaitlistEntry, bool, error) {
	var e model.WaitlistEntry
	err := tx.QueryRow(ctx, `
		SELECT id::text, clinic_id, patient_id, service_id, note, created_at
		FROM waitlist_entries
		WHERE clinic_id = $1
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`, clinicID).Scan(&e.ID, &e.ClinicID, &e.PatientID, &e.ServiceID, &e.Note, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WaitlistEntry{}, false, nil
	}
	if err != nil {
		return model.WaitlistEntry{}, false, err
	}
	return e, true, nil
}

func (r *Repository) DeleteWaitlistEntry(ctx context.Context, tx pgx.Tx, id string) error {
	_, err := tx.Exec(ctx, `DELETE FROM waitlist_entries WHERE id = $1`, id)
	return err
}

// nullableTime maps the zero time onto SQL NULL so range filters can be
// optional in a single prepared query.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// --- error classification ---

// IsConflict reports an exclusion or uniqueness violation: the interval
// overlaps a live appointment that won the race.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsTransient reports contention/timeout conditions that are safe to retry:
// serialization failure, deadlock, lock timeout, statement cancel.
func IsTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03", "57014":
		return true
	}
	return false
}
