package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/booking"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/lifecycle"
)

func testHandler() *SchedulingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSchedulingHandler(nil, nil, logger)
}

func TestWriteEngineError_StatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{booking.ErrOutsideAvailability, http.StatusUnprocessableEntity, "outside_availability"},
		{booking.ErrSlotConflict, http.StatusConflict, "slot_conflict"},
		{booking.ErrStaleAppointment, http.StatusConflict, "stale_appointment"},
		{lifecycle.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{lifecycle.ErrMissingReason, http.StatusBadRequest, "missing_reason"},
		{lifecycle.ErrNotAuthorized, http.StatusForbidden, "not_authorized"},
		{booking.ErrTransientStorage, http.StatusServiceUnavailable, "transient"},
		{pgx.ErrNoRows, http.StatusNotFound, "not_found"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	h := testHandler()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		h.writeEngineError(rec, tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected status %d, got %d", tc.err, tc.status, rec.Code)
		}
		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%v: decode body: %v", tc.err, err)
		}
		if body.Error.Code != tc.code {
			t.Fatalf("%v: expected code %q, got %q", tc.err, tc.code, body.Error.Code)
		}
	}
}

func TestWriteEngineError_WrappedTransient(t *testing.T) {
	h := testHandler()
	rec := httptest.NewRecorder()
	h.writeEngineError(rec, errors.Join(booking.ErrTransientStorage, errors.New("deadlock detected")))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for wrapped transient error, got %d", rec.Code)
	}
}

func TestParseInterval(t *testing.T) {
	rec := httptest.NewRecorder()
	starts, ends, ok := parseInterval(rec, "2026-02-02T10:00:00Z", "2026-02-02T10:30:00Z")
	if !ok {
		t.Fatalf("valid interval rejected: %s", rec.Body.String())
	}
	if !ends.After(starts) {
		t.Fatal("interval order lost in parsing")
	}

	for _, tc := range [][2]string{
		{"not-a-time", "2026-02-02T10:30:00Z"},
		{"2026-02-02T10:00:00Z", "not-a-time"},
		{"2026-02-02T10:30:00Z", "2026-02-02T10:00:00Z"},
		{"2026-02-02T10:00:00Z", "2026-02-02T10:00:00Z"},
	} {
		rec := httptest.NewRecorder()
		if _, _, ok := parseInterval(rec, tc[0], tc[1]); ok {
			t.Fatalf("interval %q..%q should be rejected", tc[0], tc[1])
		}
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("interval %q..%q: expected 400, got %d", tc[0], tc[1], rec.Code)
		}
	}
}
