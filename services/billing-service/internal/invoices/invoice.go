// Package invoices holds the invoice model and the amount policy applied
// when an appointment completes.
package invoices

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusVoid    Status = "void"
)

type Invoice struct {
	ID              string
	ClinicID        string
	AppointmentID   string
	PatientID       string
	ServiceID       string
	AmountCents     int64
	Currency        string
	Status          Status
	StripeSessionID string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Fallback charge for completed appointments without a service estimate.
const (
	DefaultAmountCents = 5000
	DefaultCurrency    = "eur"
)

// ResolveAmount picks the invoice amount: the appointment's estimate when
// one was recorded, the flat default otherwise.
func ResolveAmount(estimateCents *int64) (int64, string) {
	if estimateCents != nil && *estimateCents > 0 {
		return *estimateCents, DefaultCurrency
	}
	return DefaultAmountCents, DefaultCurrency
}
