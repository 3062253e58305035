// Package slots turns a restaurant's operating hours string into bookable slot labels.
package slots

import (
	"fmt"
	"iter"
	"strconv"
	"strings"

	"github.com/afiqaffendi/rbs/internal/models"
)

const (
	minutesPerDay  = 24 * 60
	minutesPerHalf = 12 * 60
)

// separators are tried in order; " - " must precede "-" so that spaced input keeps its sides intact.
var separators = []string{" - ", " to ", "-"}

// Hours is a parsed operating hours interval in minutes since midnight.
// End is greater than Start and may exceed 1440 when the interval crosses midnight.
type Hours struct {
	Start int
	End   int
}

// ParseClock converts "H:MM AM" or "HH:MM PM" to minutes since midnight.
// The marker is case-insensitive and the space before it is optional.
func ParseClock(s string) (int, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	var pm bool
	switch {
	case strings.HasSuffix(v, "AM"):
		v = strings.TrimSpace(strings.TrimSuffix(v, "AM"))
	case strings.HasSuffix(v, "PM"):
		v = strings.TrimSpace(strings.TrimSuffix(v, "PM"))
		pm = true
	default:
		return 0, fmt.Errorf("%w: time %q has no AM/PM marker", models.ErrConfiguration, s)
	}

	hh, mm, ok := strings.Cut(v, ":")
	if !ok {
		return 0, fmt.Errorf("%w: time %q is not H:MM", models.ErrConfiguration, s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 1 || hour > 12 {
		return 0, fmt.Errorf("%w: invalid hour in %q", models.ErrConfiguration, s)
	}
	if len(mm) != 2 {
		return 0, fmt.Errorf("%w: invalid minutes in %q", models.ErrConfiguration, s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("%w: invalid minutes in %q", models.ErrConfiguration, s)
	}

	if hour == 12 {
		hour = 0
	}
	total := hour*60 + minute
	if pm {
		total += minutesPerHalf
	}
	return total, nil
}

// FormatClock renders minutes as "H:MM AM". Values outside one day are reduced modulo 1440.
func FormatClock(minutes int) string {
	m := ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	h, mm := m/60, m%60
	marker := "AM"
	if h >= 12 {
		marker = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, mm, marker)
}

// ParseHours parses "<start> - <end>" or "<start> to <end>".
// An end at or before the start is read as the next day, so "12:00 AM - 12:00 AM" spans 24 hours.
func ParseHours(s string) (Hours, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Hours{}, fmt.Errorf("%w: operating hours are empty", models.ErrConfiguration)
	}

	var startStr, endStr string
	var found bool
	for _, sep := range separators {
		if a, b, ok := strings.Cut(raw, sep); ok {
			startStr, endStr, found = a, b, true
			break
		}
	}
	if !found {
		return Hours{}, fmt.Errorf("%w: operating hours %q have no separator", models.ErrConfiguration, s)
	}

	start, err := ParseClock(startStr)
	if err != nil {
		return Hours{}, fmt.Errorf("opening time: %w", err)
	}
	end, err := ParseClock(endStr)
	if err != nil {
		return Hours{}, fmt.Errorf("closing time: %w", err)
	}
	if end <= start {
		end += minutesPerDay
	}
	return Hours{Start: start, End: end}, nil
}

func (h Hours) String() string {
	return FormatClock(h.Start) + " - " + FormatClock(h.End)
}

// Slots yields slot labels at every step while the whole window fits before closing.
// The sequence holds no state and can be ranged over any number of times.
func (h Hours) Slots(stepMinutes, windowMinutes int) iter.Seq[string] {
	return func(yield func(string) bool) {
		if stepMinutes <= 0 || windowMinutes <= 0 {
			return
		}
		for t := h.Start; t+windowMinutes <= h.End; t += stepMinutes {
			if !yield(FormatClock(t)) {
				return
			}
		}
	}
}

// Contains reports whether label is one of the slots produced with the given step and window.
func (h Hours) Contains(label string, stepMinutes, windowMinutes int) bool {
	canonical, err := Canonical(label)
	if err != nil {
		return false
	}
	for s := range h.Slots(stepMinutes, windowMinutes) {
		if s == canonical {
			return true
		}
	}
	return false
}

// Offset places label on the Hours scale: a time earlier than Start belongs to the
// part of the interval after midnight and gets 1440 added.
func (h Hours) Offset(label string) (int, error) {
	m, err := ParseClock(label)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time slot %q", models.ErrValidation, label)
	}
	if m < h.Start {
		m += minutesPerDay
	}
	return m, nil
}

// Generate parses operatingHours and returns its slot sequence.
func Generate(operatingHours string, stepMinutes, windowMinutes int) (iter.Seq[string], error) {
	if stepMinutes <= 0 {
		return nil, fmt.Errorf("%w: step must be positive, got %d", models.ErrConfiguration, stepMinutes)
	}
	if windowMinutes <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %d", models.ErrConfiguration, windowMinutes)
	}
	h, err := ParseHours(operatingHours)
	if err != nil {
		return nil, err
	}
	return h.Slots(stepMinutes, windowMinutes), nil
}

// Canonical normalizes a slot label, e.g. "09:00 am" becomes "9:00 AM".
// Malformed labels are a validation error since they come from callers, not restaurant data.
func Canonical(label string) (string, error) {
	m, err := ParseClock(label)
	if err != nil {
		return "", fmt.Errorf("%w: invalid time slot %q", models.ErrValidation, label)
	}
	return FormatClock(m), nil
}

// Window renders the dining window that starts at label, e.g. "7:00 PM - 9:00 PM".
func Window(label string, windowMinutes int) (string, error) {
	m, err := ParseClock(label)
	if err != nil {
		return "", fmt.Errorf("%w: invalid time slot %q", models.ErrValidation, label)
	}
	return FormatClock(m) + " - " + FormatClock(m+windowMinutes), nil
}
