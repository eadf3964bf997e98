package lifecycle

import (
	"errors"
	"testing"

	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
)

func TestCanTransition_ForwardPath(t *testing.T) {
	path := []model.Status{
		model.StatusRequested,
		model.StatusConfirmed,
		model.StatusArrived,
		model.StatusCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("expected %s -> %s to be legal", path[i], path[i+1])
		}
	}

	// No skipping steps.
	if CanTransition(model.StatusRequested, model.StatusArrived) {
		t.Fatal("requested -> arrived must be illegal")
	}
	if CanTransition(model.StatusConfirmed, model.StatusCompleted) {
		t.Fatal("confirmed -> completed must be illegal")
	}
	// No going backwards.
	if CanTransition(model.StatusConfirmed, model.StatusRequested) {
		t.Fatal("confirmed -> requested must be illegal")
	}
}

func TestCanTransition_TerminalStates(t *testing.T) {
	terminals := []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusNoShow}
	targets := []model.Status{
		model.StatusRequested, model.StatusConfirmed, model.StatusArrived,
		model.StatusCompleted, model.StatusCancelled, model.StatusNoShow,
	}
	for _, from := range terminals {
		if !Terminal(from) {
			t.Fatalf("expected %s to be terminal", from)
		}
		for _, to := range targets {
			if CanTransition(from, to) {
				t.Fatalf("terminal %s must not transition to %s", from, to)
			}
		}
	}
}

func TestCanTransition_CancelAndNoShowBranches(t *testing.T) {
	for _, from := range []model.Status{model.StatusRequested, model.StatusConfirmed, model.StatusArrived} {
		if !CanTransition(from, model.StatusCancelled) {
			t.Fatalf("expected %s -> cancelled to be legal", from)
		}
		if !CanTransition(from, model.StatusNoShow) {
			t.Fatalf("expected %s -> no_show to be legal", from)
		}
	}
}

func TestReschedulable(t *testing.T) {
	for _, s := range []model.Status{model.StatusRequested, model.StatusConfirmed, model.StatusArrived} {
		if !Reschedulable(s) {
			t.Fatalf("expected %s to be reschedulable", s)
		}
	}
	for _, s := range []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusNoShow} {
		if Reschedulable(s) {
			t.Fatalf("expected %s not to be reschedulable", s)
		}
	}
}

func TestAuthorize(t *testing.T) {
	appt := model.Appointment{PatientID: "pat-1"}
	staff := model.Actor{UID: "doc-1", Role: model.RoleDoctor}
	owner := model.Actor{UID: "pat-1", Role: model.RolePatient}
	stranger := model.Actor{UID: "pat-2", Role: model.RolePatient}

	for _, to := range []model.Status{model.StatusConfirmed, model.StatusArrived, model.StatusCompleted, model.StatusNoShow} {
		if err := Authorize(staff, appt, to); err != nil {
			t.Fatalf("staff must be allowed to set %s: %v", to, err)
		}
		if err := Authorize(owner, appt, to); !errors.Is(err, ErrNotAuthorized) {
			t.Fatalf("patient must not set %s, got %v", to, err)
		}
	}

	if err := Authorize(staff, appt, model.StatusCancelled); err != nil {
		t.Fatalf("staff cancel: %v", err)
	}
	if err := Authorize(owner, appt, model.StatusCancelled); err != nil {
		t.Fatalf("owning patient cancel: %v", err)
	}
	if err := Authorize(stranger, appt, model.StatusCancelled); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("non-owning patient cancel must fail, got %v", err)
	}
}

func TestResolveCancelReason(t *testing.T) {
	got, err := ResolveCancelReason(model.RoleSecretary, "Double booking", "")
	if err != nil {
		t.Fatalf("staff reason: %v", err)
	}
	if got != "Double booking" {
		t.Fatalf("expected reason passthrough, got %q", got)
	}

	// Reason lists are per role: staff reasons are invalid for patients.
	if _, err := ResolveCancelReason(model.RolePatient, "Double booking", ""); !errors.Is(err, ErrMissingReason) {
		t.Fatalf("expected ErrMissingReason, got %v", err)
	}

	got, err = ResolveCancelReason(model.RolePatient, "Found earlier slot", "")
	if err != nil {
		t.Fatalf("patient reason: %v", err)
	}
	if got != "Found earlier slot" {
		t.Fatalf("expected reason passthrough, got %q", got)
	}

	if _, err := ResolveCancelReason(model.RolePatient, "", ""); !errors.Is(err, ErrMissingReason) {
		t.Fatalf("empty reason must fail, got %v", err)
	}
	if _, err := ResolveCancelReason(model.RolePatient, "Other", ""); !errors.Is(err, ErrMissingReason) {
		t.Fatalf("Other without text must fail, got %v", err)
	}

	got, err = ResolveCancelReason(model.RoleAdmin, "Other", "flooding in the clinic")
	if err != nil {
		t.Fatalf("Other with text: %v", err)
	}
	if got != "flooding in the clinic" {
		t.Fatalf("expected free text, got %q", got)
	}
}
