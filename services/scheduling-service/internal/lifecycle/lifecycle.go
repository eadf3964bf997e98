// Package lifecycle is the appointment state machine: which status
// transitions exist, which roles may perform them, and what a valid
// cancellation looks like.
package lifecycle

import (
	"errors"

	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
)

var (
	ErrInvalidTransition = errors.New("status transition not permitted from current state")
	ErrNotAuthorized     = errors.New("role is not allowed to perform this transition")
	ErrMissingReason     = errors.New("cancellation requires a reason")
)

// transitions is the closed set of legal status changes. Appointments move
// forward one step at a time; cancelled/no_show branch off any pre-terminal
// state. Terminal states have no outgoing edges.
var transitions = map[model.Status][]model.Status{
	model.StatusRequested: {model.StatusConfirmed, model.StatusCancelled, model.StatusNoShow},
	model.StatusConfirmed: {model.StatusArrived, model.StatusCancelled, model.StatusNoShow},
	model.StatusArrived:   {model.StatusCompleted, model.StatusCancelled, model.StatusNoShow},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to model.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no transition leaves the status.
func Terminal(s model.Status) bool {
	return len(transitions[s]) == 0
}

// Reschedulable statuses are exactly the cancellable ones: the reschedule
// flow cancels the original, so anything past that point is stale.
func Reschedulable(s model.Status) bool {
	return CanTransition(s, model.StatusCancelled)
}

// Authorize checks the actor's role against the requested transition.
// Staff drive appointments forward and mark no-shows; cancellation is open
// to staff and to the patient who owns the appointment.
func Authorize(actor model.Actor, appt model.Appointment, to model.Status) error {
	switch to {
	case model.StatusCancelled:
		if actor.Role.IsStaff() {
			return nil
		}
		if actor.Role == model.RolePatient && actor.UID == appt.PatientID {
			return nil
		}
		return ErrNotAuthorized
	case model.StatusConfirmed, model.StatusArrived, model.StatusCompleted, model.StatusNoShow:
		if actor.Role.IsStaff() {
			return nil
		}
		return ErrNotAuthorized
	default:
		return ErrInvalidTransition
	}
}

// Cancellation reason lists shown to each actor class. "Other" requires
// accompanying free text.
var (
	StaffCancelReasons = []string{
		"Patient request",
		"No-show",
		"Patient illness",
		"Scheduling conflict",
		"Weather / transport",
		"Provider emergency",
		"Equipment issue",
		"Insurance / payment issue",
		"Double booking",
		"Other",
	}
	PatientCancelReasons = []string{
		"Feeling unwell",
		"Schedule conflict",
		"Transport issue",
		"Cost / insurance",
		"Found earlier slot",
		"Other",
	}
)

// RescheduleReason is recorded on the original appointment when a
// reschedule replaces it.
const RescheduleReason = "Reschedule requested"

// ResolveCancelReason validates the selected reason against the actor's list
// and resolves the "Other" escape to its free text.
func ResolveCancelReason(role model.Role, reason, freeText string) (string, error) {
	if reason == "" {
		return "", ErrMissingReason
	}
	list := PatientCancelReasons
	if role.IsStaff() {
		list = StaffCancelReasons
	}
	for _, allowed := range list {
		if reason != allowed {
			continue
		}
		if reason != "Other" {
			return reason, nil
		}
		if freeText == "" {
			return "", ErrMissingReason
		}
		return freeText, nil
	}
	return "", ErrMissingReason
}
