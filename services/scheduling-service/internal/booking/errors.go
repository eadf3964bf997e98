package booking

import "errors"

var (
	// ErrOutsideAvailability rejects intervals not fully inside an enabled
	// provider window for that weekday.
	ErrOutsideAvailability = errors.New("interval is outside provider availability")

	// ErrSlotConflict rejects intervals overlapping a live appointment.
	ErrSlotConflict = errors.New("slot overlaps an existing appointment")

	// ErrStaleAppointment rejects operations against an appointment whose
	// state changed since the caller last read it (already cancelled,
	// completed, or lost a concurrent transition race).
	ErrStaleAppointment = errors.New("appointment state changed concurrently")

	// ErrTransientStorage wraps contention and timeout failures. Callers may
	// retry with backoff; no other engine error is retryable.
	ErrTransientStorage = errors.New("transient storage failure")
)
