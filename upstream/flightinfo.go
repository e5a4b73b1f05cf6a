package upstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/flight"
)

// InfoClient fetches enriched flight metadata from the slow-changing feed.
type InfoClient struct {
	client    client
	endpoint  string
	accessKey string
}

// InfoConfig configures an InfoClient.
type InfoConfig struct {
	Endpoint   string
	AccessKey  string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *slog.Logger
}

// NewInfoClient creates a flight-info feed client.
func NewInfoClient(cfg InfoConfig) *InfoClient {
	var doer httpDoer
	if cfg.HTTPClient != nil {
		doer = cfg.HTTPClient
	}
	return &InfoClient{
		client:    newClient("flightinfo", doer, cfg.Limiter, cfg.Logger),
		endpoint:  strings.TrimSuffix(cfg.Endpoint, "/"),
		accessKey: cfg.AccessKey,
	}
}

// infoRecord mirrors the feed's flight object. Numeric fields decode into
// json.Number tolerant pointers so unparseable values degrade to unknown
// instead of failing the snapshot.
type infoRecord struct {
	FlightStatus string `json:"flight_status"`
	Flight       struct {
		Number string `json:"number"`
	} `json:"flight"`
	Airline struct {
		Name string `json:"name"`
	} `json:"airline"`
	Departure struct {
		Airport   string   `json:"airport"`
		Scheduled string   `json:"scheduled"`
		Delay     *float64 `json:"delay"`
		Gate      string   `json:"gate"`
		Terminal  string   `json:"terminal"`
	} `json:"departure"`
	Arrival struct {
		Airport   string `json:"airport"`
		Scheduled string `json:"scheduled"`
	} `json:"arrival"`
	Live *struct {
		Updated         string   `json:"updated"`
		Latitude        *float64 `json:"latitude"`
		Longitude       *float64 `json:"longitude"`
		Altitude        *float64 `json:"altitude"`
		Direction       *float64 `json:"direction"`
		SpeedHorizontal *float64 `json:"speed_horizontal"`
		SpeedVertical   *float64 `json:"speed_vertical"`
	} `json:"live"`
}

// Fetch returns the metadata snapshot for one flight. A response with no
// matching flights yields (nil, nil): not found is an empty result, not an
// error.
func (c *InfoClient) Fetch(ctx context.Context, flightID string) (*flight.InfoSnapshot, error) {
	query := url.Values{}
	query.Set("access_key", c.accessKey)
	query.Set("flight_iata", flightID)

	body, err := c.client.get(ctx, buildURL(c.endpoint, "", query), nil)
	if err != nil {
		return nil, err
	}

	records, err := decodeEnvelope("flightinfo", body)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	var rec infoRecord
	if err := json.Unmarshal(records[0], &rec); err != nil {
		return nil, errors.WrapMalformed(err, "flightinfo", "Fetch", "decode flight object")
	}

	return buildInfoSnapshot(rec), nil
}

// buildInfoSnapshot assembles the fully-populated immutable snapshot in one
// step: status normalized into the closed set, duration computed only when
// both schedule timestamps parse, live fields range-validated.
func buildInfoSnapshot(rec infoRecord) *flight.InfoSnapshot {
	dep := flight.ParseTime(rec.Departure.Scheduled)
	arr := flight.ParseTime(rec.Arrival.Scheduled)

	info := flight.InfoSnapshot{
		FlightNumber:     rec.Flight.Number,
		Airline:          rec.Airline.Name,
		DepartureAirport: rec.Departure.Airport,
		ArrivalAirport:   rec.Arrival.Airport,
		Status:           flight.NormalizeStatus(rec.FlightStatus),
		Duration:         flight.FormatDuration(dep, arr),
		Gate:             rec.Departure.Gate,
		Terminal:         rec.Departure.Terminal,
	}
	if dep != nil {
		info.DepartureTime = dep.Format("2006-01-02T15:04:05Z07:00")
	}
	if arr != nil {
		info.ArrivalTime = arr.Format("2006-01-02T15:04:05Z07:00")
	}
	if rec.Departure.Delay != nil {
		d := int(*rec.Departure.Delay)
		info.Delay = &d
	}

	if rec.Live != nil {
		live := flight.LiveData{
			UpdatedTime:     flight.ParseTime(rec.Live.Updated),
			Latitude:        flight.ValidCoordinate(rec.Live.Latitude),
			Longitude:       flight.ValidCoordinate(rec.Live.Longitude),
			Altitude:        rec.Live.Altitude,
			Direction:       flight.ValidDirection(rec.Live.Direction),
			SpeedHorizontal: rec.Live.SpeedHorizontal,
			SpeedVertical:   rec.Live.SpeedVertical,
		}
		info.Live = &live
	}

	info.Description = flight.Describe(info)
	return &info
}
