package flight

import (
	"fmt"
	"strings"
	"time"
)

var statusMap = map[string]Status{
	"scheduled": StatusScheduled,
	"active":    StatusActive,
	"landed":    StatusLanded,
	"cancelled": StatusCancelled,
	"diverted":  StatusDiverted,
	"incident":  StatusIncident,
	"unknown":   StatusUnknown,
}

// NormalizeStatus maps upstream status vocabulary into the closed Status
// set. Empty input yields the empty status; anything unrecognized yields
// StatusUnknown so raw upstream strings never reach subscribers.
func NormalizeStatus(raw string) Status {
	if raw == "" {
		return ""
	}
	if s, ok := statusMap[strings.ToLower(raw)]; ok {
		return s
	}
	return StatusUnknown
}

// ParseTime parses an upstream RFC3339-ish timestamp, tolerating a bare "Z"
// suffix and missing zone offsets. Returns nil when the value is absent or
// unparseable.
func ParseTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}
	return nil
}

// FormatDuration renders the gap between scheduled departure and arrival as
// h:mm:ss. Negative gaps return the empty string.
func FormatDuration(dep, arr *time.Time) string {
	if dep == nil || arr == nil {
		return ""
	}
	d := arr.Sub(*dep)
	if d < 0 {
		return ""
	}
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}

// ValidCoordinate bounds-checks a raw coordinate field (the feed models both
// axes within ±180). Out-of-range values are dropped to nil.
func ValidCoordinate(v *float64) *float64 {
	if v == nil || *v < -180 || *v > 180 {
		return nil
	}
	return v
}

// ValidDirection bounds-checks a heading in degrees, [0, 360).
func ValidDirection(v *float64) *float64 {
	if v == nil || *v < 0 || *v >= 360 {
		return nil
	}
	return v
}

// Describe builds the human-readable flight summary by concatenating, in
// fixed order, the clauses whose inputs are present:
//
//	"<airline> flight <number>" (or "Flight <number>")
//	"from <dep> to <arr>"
//	"is <status, lowercased>"
//	"with a <n> minute delay" (only when delay > 0)
//	"at gate <g>, terminal <t>" (both, gate-only, or terminal-only)
func Describe(info InfoSnapshot) string {
	var parts []string

	if info.FlightNumber != "" {
		if info.Airline != "" {
			parts = append(parts, fmt.Sprintf("%s flight %s", info.Airline, info.FlightNumber))
		} else {
			parts = append(parts, fmt.Sprintf("Flight %s", info.FlightNumber))
		}
	}

	if info.DepartureAirport != "" && info.ArrivalAirport != "" {
		parts = append(parts, fmt.Sprintf("from %s to %s", info.DepartureAirport, info.ArrivalAirport))
	}

	if info.Status != "" {
		parts = append(parts, fmt.Sprintf("is %s", strings.ToLower(string(info.Status))))
	}

	if info.Delay != nil && *info.Delay > 0 {
		parts = append(parts, fmt.Sprintf("with a %d minute delay", *info.Delay))
	}

	switch {
	case info.Gate != "" && info.Terminal != "":
		parts = append(parts, fmt.Sprintf("at gate %s, terminal %s", info.Gate, info.Terminal))
	case info.Gate != "":
		parts = append(parts, fmt.Sprintf("at gate %s", info.Gate))
	case info.Terminal != "":
		parts = append(parts, fmt.Sprintf("at terminal %s", info.Terminal))
	}

	return strings.Join(parts, " ")
}
