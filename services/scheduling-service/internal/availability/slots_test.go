package availability

import (
	"testing"
	"time"

	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
)

func TestSlotsForDay_FullWindow(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	rule := &model.AvailabilityRule{
		ProviderID:  "prov-1",
		Weekday:     day.Weekday(),
		Enabled:     true,
		StartMinute: 8 * 60,
		EndMinute:   16 * 60,
	}

	slots := SlotsForDay(day, rule, 30*time.Minute)
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots for 08:00-16:00 at 30min, got %d", len(slots))
	}
	if !slots[0].Start.Equal(day.Add(8 * time.Hour)) {
		t.Fatalf("expected first slot at 08:00, got %s", slots[0].Start.Format(time.RFC3339))
	}
	if !slots[15].End.Equal(day.Add(16 * time.Hour)) {
		t.Fatalf("expected last slot to end at 16:00, got %s", slots[15].End.Format(time.RFC3339))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.Equal(slots[i-1].End) {
			t.Fatalf("slots not consecutive at index %d", i)
		}
	}
}

func TestSlotsForDay_DisabledOrAbsent(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)

	if got := SlotsForDay(day, nil, 30*time.Minute); len(got) != 0 {
		t.Fatalf("expected no slots for absent rule, got %d", len(got))
	}

	disabled := &model.AvailabilityRule{Enabled: false, StartMinute: 9 * 60, EndMinute: 17 * 60}
	if got := SlotsForDay(day, disabled, 30*time.Minute); len(got) != 0 {
		t.Fatalf("expected no slots for disabled rule, got %d", len(got))
	}
}

func TestSlotsForDay_DropsTrailingPartial(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	rule := &model.AvailabilityRule{
		Enabled:     true,
		StartMinute: 9 * 60,
		EndMinute:   9*60 + 50,
	}

	slots := SlotsForDay(day, rule, 30*time.Minute)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot in a 50 minute window, got %d", len(slots))
	}
	if !slots[0].End.Equal(day.Add(9*time.Hour + 30*time.Minute)) {
		t.Fatalf("expected slot to end at 09:30, got %s", slots[0].End.Format(time.RFC3339))
	}
}

func TestFilterOpen_MidWindowBooking(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	rule := &model.AvailabilityRule{Enabled: true, StartMinute: 9 * 60, EndMinute: 10 * 60}
	slots := SlotsForDay(day, rule, 30*time.Minute)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}

	// A booking strictly inside the window knocks out both half-hour slots.
	busy := []Interval{
		{Start: day.Add(9*time.Hour + 15*time.Minute), End: day.Add(9*time.Hour + 45*time.Minute)},
	}
	open := FilterOpen(slots, busy)
	if len(open) != 0 {
		t.Fatalf("expected no open slots, got %d", len(open))
	}
}

func TestOverlaps_HalfOpenBoundary(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	aStart := day.Add(9 * time.Hour)
	aEnd := day.Add(9*time.Hour + 30*time.Minute)
	bStart := aEnd
	bEnd := day.Add(10 * time.Hour)

	if Overlaps(aStart, aEnd, bStart, bEnd) {
		t.Fatal("back-to-back intervals must not overlap")
	}
	if !Overlaps(aStart, aEnd, aStart.Add(29*time.Minute), bEnd) {
		t.Fatal("one shared minute must overlap")
	}
}

func TestContains(t *testing.T) {
	rule := model.AvailabilityRule{Enabled: true, StartMinute: 9 * 60, EndMinute: 17 * 60}
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)

	if !Contains(rule, day.Add(9*time.Hour), day.Add(17*time.Hour)) {
		t.Fatal("interval equal to the window must be contained")
	}
	if Contains(rule, day.Add(8*time.Hour+30*time.Minute), day.Add(9*time.Hour+30*time.Minute)) {
		t.Fatal("interval starting before the window must not be contained")
	}
	if Contains(rule, day.Add(16*time.Hour+30*time.Minute), day.Add(17*time.Hour+30*time.Minute)) {
		t.Fatal("interval ending after the window must not be contained")
	}
	if Contains(rule, day.Add(23*time.Hour), day.Add(25*time.Hour)) {
		t.Fatal("interval crossing midnight must not be contained")
	}
	if Contains(model.AvailabilityRule{Enabled: false, StartMinute: 0, EndMinute: 24 * 60}, day.Add(9*time.Hour), day.Add(10*time.Hour)) {
		t.Fatal("disabled rule contains nothing")
	}
}

func TestParseClockAndClock(t *testing.T) {
	min, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("parse 09:30: %v", err)
	}
	if min != 570 {
		t.Fatalf("expected 570, got %d", min)
	}
	if got := Clock(570); got != "09:30" {
		t.Fatalf("expected 09:30, got %s", got)
	}

	min, err = ParseClock("24:00")
	if err != nil {
		t.Fatalf("parse 24:00: %v", err)
	}
	if min != 24*60 {
		t.Fatalf("expected 1440, got %d", min)
	}
	if got := Clock(24 * 60); got != "24:00" {
		t.Fatalf("expected 24:00, got %s", got)
	}

	for _, bad := range []string{"9", "24:01", "25:00", "09:60", "ab:cd", ""} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
