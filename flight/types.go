// Package flight contains the domain types shared across the service:
// immutable snapshots from the two upstream feeds and the combined frame
// pushed to subscribers.
package flight

import (
	"encoding/json"
	"time"
)

// Status is the closed set of normalized flight states. Upstream vocabulary
// outside the known mapping always normalizes to StatusUnknown.
type Status string

// Normalized flight status values.
const (
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusLanded    Status = "LANDED"
	StatusCancelled Status = "CANCELLED"
	StatusDiverted  Status = "DIVERTED"
	StatusIncident  Status = "INCIDENT"
	StatusUnknown   Status = "UNKNOWN"
)

// PositionSnapshot is point-in-time telemetry for one aircraft from the fast
// feed. Snapshots are immutable; each poll supersedes the previous snapshot
// wholesale.
type PositionSnapshot struct {
	FR24ID       string    `json:"fr24_id"`
	FlightNumber string    `json:"flight_number,omitempty"`
	Callsign     string    `json:"callsign"`
	Lat          float64   `json:"lat"`
	Lon          float64   `json:"lon"`
	Altitude     int       `json:"alt"`
	GroundSpeed  int       `json:"ground_speed"`
	Track        int       `json:"track"`
	Timestamp    time.Time `json:"timestamp"`
	AircraftType string    `json:"aircraft_type,omitempty"`
	Registration string    `json:"registration,omitempty"`
}

// LiveData is the optional in-flight telemetry block of an info snapshot.
// Out-of-range or unparseable fields are nil rather than failing the
// snapshot.
type LiveData struct {
	UpdatedTime     *time.Time `json:"updated_time,omitempty"`
	Latitude        *float64   `json:"latitude,omitempty"`
	Longitude       *float64   `json:"longitude,omitempty"`
	Altitude        *float64   `json:"altitude,omitempty"`
	Direction       *float64   `json:"direction,omitempty"`
	SpeedHorizontal *float64   `json:"speed_horizontal,omitempty"`
	SpeedVertical   *float64   `json:"speed_vertical,omitempty"`
}

// InfoSnapshot is point-in-time flight metadata from the slow feed.
type InfoSnapshot struct {
	FlightNumber     string    `json:"flight_number,omitempty"`
	Airline          string    `json:"airline,omitempty"`
	DepartureAirport string    `json:"departure_airport,omitempty"`
	ArrivalAirport   string    `json:"arrival_airport,omitempty"`
	Status           Status    `json:"flight_status,omitempty"`
	DepartureTime    string    `json:"departure_time,omitempty"`
	ArrivalTime      string    `json:"arrival_time,omitempty"`
	Duration         string    `json:"duration,omitempty"`
	Delay            *int      `json:"delay,omitempty"`
	Gate             string    `json:"gate,omitempty"`
	Terminal         string    `json:"terminal,omitempty"`
	Live             *LiveData `json:"live,omitempty"`
	Description      string    `json:"description,omitempty"`
}

// AirportDetails is static reference data for one airport, fetched from the
// position feed's airport endpoint.
type AirportDetails struct {
	Name      string            `json:"name"`
	IATA      string            `json:"iata"`
	ICAO      string            `json:"icao"`
	Lon       float64           `json:"lon"`
	Lat       float64           `json:"lat"`
	Elevation int               `json:"elevation"`
	Country   map[string]string `json:"country,omitempty"`
	City      string            `json:"city,omitempty"`
	State     string            `json:"state,omitempty"`
	Timezone  map[string]any    `json:"timezone,omitempty"`
}

// EnrichedInfoSnapshot is an InfoSnapshot extended with airport reference
// details after construction. It is immutable like the base snapshot; a
// failed airport lookup leaves the corresponding details nil.
type EnrichedInfoSnapshot struct {
	InfoSnapshot
	DepartureAirportDetails *AirportDetails `json:"departure_airport_details,omitempty"`
	ArrivalAirportDetails   *AirportDetails `json:"arrival_airport_details,omitempty"`
}

// UpdateType flags which of the two sources refreshed on an emission tick.
type UpdateType struct {
	Position   bool `json:"position"`
	FlightInfo bool `json:"flight_info"`
}

// CombinedFrame is the unit emitted to a subscriber. A frame is only built
// when at least one source was refreshed on the tick that produced it. Live
// carries the first matching aircraft; multi-target streams additionally
// carry every match in Flights.
type CombinedFrame struct {
	FlightInfo *EnrichedInfoSnapshot `json:"flight_info"`
	Live       *PositionSnapshot     `json:"live"`
	Flights    []PositionSnapshot    `json:"flights,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
	UpdateType UpdateType            `json:"update_type"`
}

// ErrorFrame is pushed in place of a CombinedFrame when a coordinator
// iteration fails; the stream stays open.
type ErrorFrame struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// InfoFrame is the single-source frame shape used by the websocket flight
// stream.
type InfoFrame struct {
	FlightInfo json.RawMessage `json:"flight_info"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Target identifies the subject of a subscription: a bounding box, a list of
// flight numbers, or a single flight identifier, optionally narrowed by
// aircraft categories and feed data sources.
type Target struct {
	Bounds      string   `json:"bounds,omitempty"`
	Flights     []string `json:"flights,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	DataSources []string `json:"data_sources,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}

// Single returns a target for one flight identifier.
func Single(flightID string) Target {
	return Target{Flights: []string{flightID}}
}

// IsZero reports whether the target selects nothing.
func (t Target) IsZero() bool {
	return t.Bounds == "" && len(t.Flights) == 0
}

// Key returns a stable identifier for the target, used in subscription keys
// and log attributes.
func (t Target) Key() string {
	if len(t.Flights) > 0 {
		key := t.Flights[0]
		for _, f := range t.Flights[1:] {
			key += "," + f
		}
		return key
	}
	if t.Bounds != "" {
		return "bounds:" + t.Bounds
	}
	return "all"
}
