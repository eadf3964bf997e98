package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/libs/httpx"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
)

type waitlistAddRequest struct {
	ClinicID  string `json:"clinic_id"`
	PatientID string `json:"patient_id"`
	ServiceID string `json:"service_id"`
	Note      string `json:"note"`
}

type waitlistItem struct {
	EntryID   string `json:"entry_id"`
	ClinicID  string `json:"clinic_id"`
	PatientID string `json:"patient_id"`
	ServiceID string `json:"service_id,omitempty"`
	Note      string `json:"note,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Waitlist serves /api/v1/waitlist. GET lists entries oldest first, POST
// files a new entry. Patients may only file for themselves.
func (h *SchedulingHandler) Waitlist(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listWaitlist(w, r)
	case http.MethodPost:
		h.addWaitlist(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *SchedulingHandler) listWaitlist(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !actor.Role.IsStaff() {
		httpx.WriteError(w, http.StatusForbidden, "not_authorized", "staff role required")
		return
	}

	clinicID := strings.TrimSpace(r.URL.Query().Get("clinic_id"))
	if clinicID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id required")
		return
	}
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	entries, err := h.repo.ListWaitlist(r.Context(), clinicID, limit)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	items := make([]waitlistItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, waitlistItem{
			EntryID:   e.ID,
			ClinicID:  e.ClinicID,
			PatientID: e.PatientID,
			ServiceID: e.ServiceID,
			Note:      e.Note,
			CreatedAt: e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

func (h *SchedulingHandler) addWaitlist(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req waitlistAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}
	req.ClinicID = strings.TrimSpace(req.ClinicID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	if actor.Role == model.RolePatient {
		req.PatientID = actor.UID
	}
	if req.ClinicID == "" || req.PatientID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "clinic_id and patient_id are required")
		return
	}

	entry := model.WaitlistEntry{
		ClinicID:  req.ClinicID,
		PatientID: req.PatientID,
		ServiceID: strings.TrimSpace(req.ServiceID),
		Note:      strings.TrimSpace(req.Note),
	}
	if err := h.repo.AddWaitlistEntry(r.Context(), &entry); err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, waitlistItem{
		EntryID:   entry.ID,
		ClinicID:  entry.ClinicID,
		PatientID: entry.PatientID,
		ServiceID: entry.ServiceID,
		Note:      entry.Note,
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339),
	})
}
