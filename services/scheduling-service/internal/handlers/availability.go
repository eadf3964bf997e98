package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/libs/httpx"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/availability"
	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
)

// weekdayKeys maps the wire representation (sun..sat) onto time.Weekday.
var weekdayKeys = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

var weekdayNames = map[time.Weekday]string{
	time.Sunday: "sun", time.Monday: "mon", time.Tuesday: "tue",
	time.Wednesday: "wed", time.Thursday: "thu", time.Friday: "fri",
	time.Saturday: "sat",
}

type availabilityDay struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Availability serves /api/v1/providers/{id}/availability. GET returns the
// full weekly map; PUT replaces it. Days absent from a PUT body are left
// unchanged, matching partial edits from the settings screen.
func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	providerID := providerFromPath(r.URL.Path)
	if providerID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_params", "provider id required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getAvailability(w, r, providerID)
	case http.MethodPut:
		h.putAvailability(w, r, providerID)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (h *SchedulingHandler) getAvailability(w http.ResponseWriter, r *http.Request, providerID string) {
	rules, err := h.repo.ListAvailabilityRules(r.Context(), providerID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	week := make(map[string]availabilityDay, 7)
	for key := range weekdayKeys {
		week[key] = availabilityDay{Enabled: false, Start: "09:00", End: "17:00"}
	}
	for _, rule := range rules {
		week[weekdayNames[rule.Weekday]] = availabilityDay{
			Enabled: rule.Enabled,
			Start:   availability.Clock(rule.StartMinute),
			End:     availability.Clock(rule.EndMinute),
		}
	}
	httpx.WriteJSON(w, http.StatusOK, week)
}

func (h *SchedulingHandler) putAvailability(w http.ResponseWriter, r *http.Request, providerID string) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !actor.Role.IsStaff() {
		httpx.WriteError(w, http.StatusForbidden, "not_authorized", "staff role required")
		return
	}

	var body map[string]availabilityDay
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_body", "invalid json body")
		return
	}

	rules := make([]model.AvailabilityRule, 0, len(body))
	for key, day := range body {
		weekday, known := weekdayKeys[strings.ToLower(strings.TrimSpace(key))]
		if !known {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_weekday", "weekday keys must be sun..sat")
			return
		}
		startMin, err := availability.ParseClock(day.Start)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "start must be HH:MM")
			return
		}
		endMin, err := availability.ParseClock(day.End)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_time", "end must be HH:MM")
			return
		}
		if day.Enabled && endMin <= startMin {
			httpx.WriteError(w, http.StatusBadRequest, "invalid_window", "end must be after start for enabled days")
			return
		}
		rules = append(rules, model.AvailabilityRule{
			ProviderID:  providerID,
			Weekday:     weekday,
			Enabled:     day.Enabled,
			StartMinute: startMin,
			EndMinute:   endMin,
		})
	}

	for _, rule := range rules {
		if err := h.repo.UpsertAvailabilityRule(r.Context(), rule); err != nil {
			h.writeEngineError(w, err)
			return
		}
	}
	h.getAvailability(w, r, providerID)
}

// providerFromPath extracts {id} from /api/v1/providers/{id}/availability.
func providerFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "providers" && i+1 < len(parts) {
			return strings.TrimSpace(parts[i+1])
		}
	}
	return ""
}
