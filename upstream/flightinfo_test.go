package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/flight"
)

const infoBody = `{"data": [{
	"flight_status": "active",
	"flight": {"number": "CA908"},
	"airline": {"name": "Air China"},
	"departure": {
		"airport": "PEK",
		"scheduled": "2024-01-01T10:00:00Z",
		"delay": 15,
		"gate": "A1",
		"terminal": "3"
	},
	"arrival": {
		"airport": "JFK",
		"scheduled": "2024-01-01T12:30:00Z"
	},
	"live": {
		"updated": "2024-01-01T11:00:00Z",
		"latitude": 45.5,
		"longitude": -73.6,
		"altitude": 11000,
		"direction": 270,
		"speed_horizontal": 850,
		"speed_vertical": 0
	}
}]}`

func newInfoServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("access_key"))
		assert.NotEmpty(t, r.URL.Query().Get("flight_iata"))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestInfoFetch_FullSnapshot(t *testing.T) {
	srv := newInfoServer(t, http.StatusOK, infoBody)
	defer srv.Close()

	c := NewInfoClient(InfoConfig{Endpoint: srv.URL, AccessKey: "k"})
	info, err := c.Fetch(context.Background(), "CA908")

	require.NoError(t, err)
	require.NotNil(t, info)

	assert.Equal(t, "CA908", info.FlightNumber)
	assert.Equal(t, "Air China", info.Airline)
	assert.Equal(t, flight.StatusActive, info.Status)
	assert.Equal(t, "2:30:00", info.Duration)
	assert.Equal(t, "PEK", info.DepartureAirport)
	assert.Equal(t, "JFK", info.ArrivalAirport)
	require.NotNil(t, info.Delay)
	assert.Equal(t, 15, *info.Delay)
	assert.Equal(t, "A1", info.Gate)
	assert.Equal(t, "3", info.Terminal)
	assert.Equal(t,
		"Air China flight CA908 from PEK to JFK is active with a 15 minute delay at gate A1, terminal 3",
		info.Description)

	require.NotNil(t, info.Live)
	require.NotNil(t, info.Live.Latitude)
	assert.Equal(t, 45.5, *info.Live.Latitude)
	require.NotNil(t, info.Live.Direction)
	assert.Equal(t, 270.0, *info.Live.Direction)
}

func TestInfoFetch_NotFoundIsEmpty(t *testing.T) {
	srv := newInfoServer(t, http.StatusOK, `{"data": []}`)
	defer srv.Close()

	c := NewInfoClient(InfoConfig{Endpoint: srv.URL, AccessKey: "k"})
	info, err := c.Fetch(context.Background(), "XX999")

	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestInfoFetch_UnknownStatusNormalized(t *testing.T) {
	srv := newInfoServer(t, http.StatusOK,
		`{"data": [{"flight_status": "taxiing", "flight": {"number": "X1"}}]}`)
	defer srv.Close()

	c := NewInfoClient(InfoConfig{Endpoint: srv.URL, AccessKey: "k"})
	info, err := c.Fetch(context.Background(), "X1")

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, flight.StatusUnknown, info.Status)
}

func TestInfoFetch_PartialScheduleOmitsDuration(t *testing.T) {
	srv := newInfoServer(t, http.StatusOK, `{"data": [{
		"flight": {"number": "X1"},
		"departure": {"scheduled": "2024-01-01T10:00:00Z"},
		"arrival": {"scheduled": "bogus"}
	}]}`)
	defer srv.Close()

	c := NewInfoClient(InfoConfig{Endpoint: srv.URL, AccessKey: "k"})
	info, err := c.Fetch(context.Background(), "X1")

	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Empty(t, info.Duration)
	assert.NotEmpty(t, info.DepartureTime)
	assert.Empty(t, info.ArrivalTime)
}

func TestInfoFetch_OutOfRangeLiveFieldsDropped(t *testing.T) {
	srv := newInfoServer(t, http.StatusOK, `{"data": [{
		"flight": {"number": "X1"},
		"live": {"latitude": 999, "longitude": 10.5, "direction": 360}
	}]}`)
	defer srv.Close()

	c := NewInfoClient(InfoConfig{Endpoint: srv.URL, AccessKey: "k"})
	info, err := c.Fetch(context.Background(), "X1")

	require.NoError(t, err)
	require.NotNil(t, info.Live)
	assert.Nil(t, info.Live.Latitude)
	assert.Nil(t, info.Live.Direction)
	require.NotNil(t, info.Live.Longitude)
	assert.Equal(t, 10.5, *info.Live.Longitude)
}

func TestInfoFetch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewInfoClient(InfoConfig{Endpoint: srv.URL, AccessKey: "k"})
	_, err := c.Fetch(context.Background(), "CA908")

	require.Error(t, err)
	assert.Equal(t, errors.KindRateLimited, errors.ClassifyKind(err))
}

func TestBuildInfoSnapshot_Deterministic(t *testing.T) {
	var rec infoRecord
	rec.Flight.Number = "CA908"
	rec.Airline.Name = "Air China"
	rec.FlightStatus = "landed"
	rec.Departure.Airport = "PEK"
	rec.Arrival.Airport = "JFK"

	a := buildInfoSnapshot(rec)
	b := buildInfoSnapshot(rec)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("snapshot construction not deterministic (-a +b):\n%s", diff)
	}
	assert.Equal(t, "Air China flight CA908 from PEK to JFK is landed", a.Description)
}
