// Package handlers exposes the scheduling engine over HTTP. Every handler
// validates and normalizes the request, resolves the caller into an engine
// actor, delegates to the booking service, and maps engine errors onto
// status codes. No scheduling rules live here.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/libs/auth"
	"github.com/clinicflow/clinicflow/libs/httpx"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/booking"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/lifecycle"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/storage"
)

type SchedulingHandler struct {
	repo   *storage.Repository
	svc    *booking.Service
	logger *slog.Logger
}

func NewSchedulingHandler(repo *storage.Repository, svc *booking.Service, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{repo: repo, svc: svc, logger: logger}
}

type bookRequest struct {
	ClinicID   string `json:"clinic_id"`
	ProviderID string `json:"provider_id"`
	PatientID  string `json:"patient_id"`
	ServiceID  string `json:"service_id"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
}

type rescheduleRequest struct {
	ClinicID      string `json:"clinic_id"`
	AppointmentID string `json:"appointment_id"`
	StartsAt      string `json:"starts_at"`
	EndsAt        string `json:"ends_at"`
}

type transitionRequest struct {
	ClinicID      string `json:"clinic_id"`
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	ReasonText    string `json:"reason_text"`
}

type backfillRequest struct {
	ClinicID   string `json:"clinic_id"`
	ProviderID string `json:"provider_id"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
	ServiceID  string `json:"service_id"`
}

type appointmentItem struct {
	AppointmentID string              `json:"appointment_id"`
	ClinicID      string              `json:"clinic_id"`
	ProviderID    string              `json:"provider_id"`
	PatientID     string              `json:"patient_id"`
	ServiceID     string              `json:"service_id,omitempty"`
	StartsAt      string              `json:"starts_at"`
	EndsAt        string              `json:"ends_at"`
	Status        string              `json:"status"`
	EstimateCents *int64              `json:"estimate_cents,omitempty"`
	Cancellation  *model.Cancellation `json:"cancellation,omitempty"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
}

func appointmentToItem(a model.Appointment) appointmentItem {
	return appointmentItem{
		AppointmentID: a.ID,
		ClinicID:      a.ClinicID,
		ProviderID:    a.ProviderID,
		PatientID:     a.PatientID,
		ServiceID:     a.ServiceID,
		StartsAt:      a.StartsAt.UTC().Format(time.RFC3339),
		EndsAt:        a.EndsAt.UTC().Format(time.RFC3339),
		Status:        string(a.Status),
		EstimateCents: a.EstimateCents,
		Cancellation:  a.Cancellation,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     a.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// PublicSlots serves GET /api/v1/public/slots for the patient booking page.
func (h *SchedulingHandler) PublicSlots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	providerID := strings.TrimSpace(r.URL.Query().Get("provider_id"))
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if clinicID == "" || providerID == "" || dateStr == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id, provider_id and date are required")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	granularity := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("granularity_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 240 {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_granularity", "granularity_minutes must be between 1 and 240")
			return
		}
		granularity = n
	}

	slots, err := h.svc.OpenSlots(r.Context(), clinicID, providerID, date, granularity)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if slots == nil {
		slots = []model.Slot{}
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}

// PublicBook serves POST /api/v1/public/book: patient self-booking without a
// staff session. The resulting appointment is requested, never confirmed.
func (h *SchedulingHandler) PublicBook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.PatientID = strings.TrimSpace(req.PatientID)
	if req.PatientID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "patient_id required")
		return
	}
	h.book(w, r, req, model.Actor{UID: req.PatientID, Role: model.RolePatient})
}

// Book serves POST /api/v1/appointments/book for authenticated callers.
func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	if actor.Role == model.RolePatient {
		req.PatientID = actor.UID
	}
	h.book(w, r, req, actor)
}

func (h *SchedulingHandler) book(w http.ResponseWriter, r *http.Request, req bookRequest, actor model.Actor) {
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	if req.ClinicID == "" || req.ProviderID == "" || req.PatientID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id, provider_id and patient_id are required")
		return
	}

	startsAt, endsAt, ok := parseInterval(w, req.StartsAt, req.EndsAt)
	if !ok {
		return
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		ClinicID:   req.ClinicID,
		ProviderID: req.ProviderID,
		PatientID:  req.PatientID,
		ServiceID:  req.ServiceID,
		StartsAt:   startsAt,
		EndsAt:     endsAt,
		Initiator:  actor,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appointmentToItem(appt))
}

// Reschedule serves POST /api/v1/appointments/reschedule. The response holds
// both sides of the swap: the cancelled original and its replacement.
func (h *SchedulingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.ClinicID == "" || req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id and appointment_id are required")
		return
	}
	startsAt, endsAt, ok := parseInterval(w, req.StartsAt, req.EndsAt)
	if !ok {
		return
	}

	res, err := h.svc.Reschedule(r.Context(), req.ClinicID, req.AppointmentID, startsAt, endsAt, actor)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]appointmentItem{
		"cancelled": appointmentToItem(res.Old),
		"created":   appointmentToItem(res.New),
	})
}

// Transition serves POST /api/v1/appointments/status.
func (h *SchedulingHandler) Transition(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.ClinicID == "" || req.AppointmentID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id and appointment_id are required")
		return
	}
	to, valid := model.ParseStatus(strings.TrimSpace(req.Status))
	if !valid {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_status", "unknown status value")
		return
	}

	appt, err := h.svc.TransitionStatus(r.Context(), req.ClinicID, req.AppointmentID, to, actor, req.Reason, req.ReasonText)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appointmentToItem(appt))
}

// Backfill serves POST /api/v1/appointments/backfill: offer a freed interval
// to the longest-waiting waitlist entry. Staff only.
func (h *SchedulingHandler) Backfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !actor.Role.IsStaff() {
		httpx.WriteError(w, http.StatusForbidden, "not_authorized", "staff role required")
		return
	}

	var req backfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ClinicID == "" || req.ProviderID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id and provider_id are required")
		return
	}
	startsAt, endsAt, ok := parseInterval(w, req.StartsAt, req.EndsAt)
	if !ok {
		return
	}

	res, err := h.svc.BackfillWaitlist(r.Context(), req.ClinicID, req.ProviderID, startsAt, endsAt, strings.TrimSpace(req.ServiceID))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if !res.Filled {
		httpx.WriteJSON(w, http.StatusOK, map[string]bool{"filled": false})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"filled":      true,
		"appointment": appointmentToItem(res.Appointment),
	})
}

// List serves GET /api/v1/appointments with optional provider/patient/status
// filters. Patients only see their own appointments.
func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	if clinicID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id required")
		return
	}

	f := storage.ListFilter{
		ClinicID:   clinicID,
		ProviderID: strings.TrimSpace(r.URL.Query().Get("provider_id")),
		PatientID:  strings.TrimSpace(r.URL.Query().Get("patient_id")),
		Limit:      100,
	}
	if actor.Role == model.RolePatient {
		f.PatientID = actor.UID
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, valid := model.ParseStatus(raw)
		if !valid {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_status", "unknown status value")
			return
		}
		f.Status = st
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "from must be RFC3339")
			return
		}
		f.From = t
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "to must be RFC3339")
			return
		}
		f.To = t
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			f.Limit = n
		}
	}

	appts, err := h.repo.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, appointmentToItem(a))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// actor resolves the authenticated caller into an engine actor.
func (h *SchedulingHandler) actor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return model.Actor{}, false
	}
	role := model.Role(a.Role)
	switch role {
	case model.RoleAdmin, model.RoleSecretary, model.RoleDoctor, model.RolePatient:
	default:
		httpx.WriteError(w, http.StatusForbidden, "not_authorized", "unknown role")
		return model.Actor{}, false
	}
	return model.Actor{UID: a.UID, Role: role}, true
}

func parseInterval(w http.ResponseWriter, startRaw, endRaw string) (time.Time, time.Time, bool) {
	startsAt, err := time.Parse(time.RFC3339, startRaw)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "starts_at must be RFC3339")
		return time.Time{}, time.Time{}, false
	}
	endsAt, err := time.Parse(time.RFC3339, endRaw)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "ends_at must be RFC3339")
		return time.Time{}, time.Time{}, false
	}
	if !endsAt.After(startsAt) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "ends_at must be after starts_at")
		return time.Time{}, time.Time{}, false
	}
	return startsAt.UTC(), endsAt.UTC(), true
}

func (h *SchedulingHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrOutsideAvailability):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "outside_availability", "requested time is outside provider availability")
	case errors.Is(err, booking.ErrSlotConflict):
		httpx.WriteError(w, http.StatusConflict, "slot_conflict", "time slot overlaps an existing appointment")
	case errors.Is(err, booking.ErrStaleAppointment):
		httpx.WriteError(w, http.StatusConflict, "stale_appointment", "appointment state changed; reload and retry")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusConflict, "invalid_transition", "status transition not permitted from current state")
	case errors.Is(err, lifecycle.ErrMissingReason):
		httpx.WriteError(w, http.StatusBadRequest, "missing_reason", "cancellation requires a reason")
	case errors.Is(err, lifecycle.ErrNotAuthorized):
		httpx.WriteError(w, http.StatusForbidden, "not_authorized", "role is not allowed to perform this operation")
	case errors.Is(err, booking.ErrTransientStorage):
		httpx.WriteError(w, http.StatusServiceUnavailable, "transient", "temporary storage failure; retry with backoff")
	case storage.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "appointment not found")
	default:
		h.logger.Error("scheduling request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
