// Package availability turns per-weekday provider windows into concrete
// bookable slots and checks proposed intervals against existing bookings.
package availability

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/clinicflow/clinicflow/services/scheduling-service/internal/model"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// SlotsForDay partitions the rule's window on the given date into
// consecutive granularity-sized slots, ascending by start. A trailing
// partial interval is dropped. Nil or disabled rules yield no slots.
//
// The result is a pure function of its inputs; filtering against existing
// bookings is FilterOpen's job.
func SlotsForDay(date time.Time, rule *model.AvailabilityRule, granularity time.Duration) []model.Slot {
	if rule == nil || !rule.Enabled || granularity <= 0 {
		return nil
	}
	if rule.StartMinute >= rule.EndMinute {
		return nil
	}

	midnight := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	step := int(granularity / time.Minute)
	if step <= 0 {
		return nil
	}

	var slots []model.Slot
	for m := rule.StartMinute; m+step <= rule.EndMinute; m += step {
		slots = append(slots, model.Slot{
			Start: midnight.Add(time.Duration(m) * time.Minute),
			End:   midnight.Add(time.Duration(m+step) * time.Minute),
		})
	}
	return slots
}

// FilterOpen removes slots overlapping any busy interval.
func FilterOpen(slots []model.Slot, busy []Interval) []model.Slot {
	open := make([]model.Slot, 0, len(slots))
	for _, s := range slots {
		if !HasConflict(s.Start, s.End, busy) {
			open = append(open, s)
		}
	}
	return open
}

// HasConflict reports whether [start, end) overlaps any busy interval.
func HasConflict(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b.Start, b.End) {
			return true
		}
	}
	return false
}

// Overlaps is the half-open interval overlap predicate:
// [aStart,aEnd) and [bStart,bEnd) share at least one instant.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Contains reports whether the rule's window fully contains [start, end)
// on start's calendar day. Intervals crossing midnight are never contained.
func Contains(rule model.AvailabilityRule, start, end time.Time) bool {
	if !rule.Enabled || !end.After(start) {
		return false
	}
	midnight := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	startMin := int(start.Sub(midnight) / time.Minute)
	endMin := int(end.Sub(midnight) / time.Minute)
	if endMin <= startMin || endMin > 24*60 {
		return false
	}
	return startMin >= rule.StartMinute && endMin <= rule.EndMinute
}

// ParseClock parses "HH:MM" into minutes since midnight. "24:00" is the
// end-of-day sentinel, so a window may close at midnight.
func ParseClock(hm string) (int, error) {
	parts := strings.Split(strings.TrimSpace(hm), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time of day %q", hm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid time of day %q", hm)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", hm)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid time of day %q", hm)
	}
	return h*60 + m, nil
}

// Clock renders minutes since midnight as "HH:MM".
func Clock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
