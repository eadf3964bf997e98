package model

import "time"

type Status string

const (
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
	StatusArrived   Status = "arrived"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusRequested, StatusConfirmed, StatusArrived, StatusCompleted, StatusCancelled, StatusNoShow:
		return Status(raw), true
	}
	return "", false
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleSecretary Role = "secretary"
	RoleDoctor    Role = "doctor"
	RolePatient   Role = "patient"
)

func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSecretary || r == RoleDoctor
}

// Actor is the caller of an engine operation, resolved by the auth layer.
type Actor struct {
	UID  string
	Role Role
}

// Cancellation records who cancelled an appointment and why.
type Cancellation struct {
	Reason string    `json:"reason"`
	ByUID  string    `json:"by_uid"`
	ByRole Role      `json:"by_role"`
	At     time.Time `json:"at"`
}

type Appointment struct {
	ID            string
	ClinicID      string
	ProviderID    string
	PatientID     string
	ServiceID     string // empty when the booking has no service attached
	StartsAt      time.Time
	EndsAt        time.Time
	Status        Status
	EstimateCents *int64
	Cancellation  *Cancellation
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Active reports whether the appointment still occupies its provider's time.
// Cancelled and no-show appointments release their interval immediately.
func (a Appointment) Active() bool {
	return a.Status != StatusCancelled && a.Status != StatusNoShow
}

// Slot is a transient bookable interval; never persisted.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type WaitlistEntry struct {
	ID        string
	ClinicID  string
	PatientID string
	ServiceID string
	Note      string
	CreatedAt time.Time
}

// AvailabilityRule is one provider weekday window. Start/End are minutes
// since midnight; Enabled false means no bookable time that day.
type AvailabilityRule struct {
	ProviderID  string
	Weekday     time.Weekday
	Enabled     bool
	StartMinute int
	EndMinute   int
}
