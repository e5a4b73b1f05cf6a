package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Manu-world/flight-tracking-service/errors"
	"github.com/Manu-world/flight-tracking-service/flight"
)

func newPositionsServer(t *testing.T, status int, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/live/flight-positions/full", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		if gotQuery != nil {
			*gotQuery = r.URL.RawQuery
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestPositionsFetch_ParsesRecords(t *testing.T) {
	body := `{"data": [
		{"fr24_id":"abc","flight":"CA908","callsign":"CCA908","lat":1.0,"lon":2.0,
		 "alt":30000,"gspeed":450,"track":90,"timestamp":"2024-01-01T00:00:00Z"}
	]}`
	srv := newPositionsServer(t, http.StatusOK, body, nil)
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	snaps, err := c.Fetch(context.Background(), flight.Single("CA908"))

	require.NoError(t, err)
	require.Len(t, snaps, 1)
	want := flight.PositionSnapshot{
		FR24ID:       "abc",
		FlightNumber: "CA908",
		Callsign:     "CCA908",
		Lat:          1.0,
		Lon:          2.0,
		Altitude:     30000,
		GroundSpeed:  450,
		Track:        90,
		Timestamp:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, snaps[0])
}

func TestPositionsFetch_DropsIncompleteRecords(t *testing.T) {
	// Second record is missing callsign; it is dropped without affecting
	// the first.
	body := `{"data": [
		{"fr24_id":"abc","flight":"CA908","callsign":"CCA908","lat":1.0,"lon":2.0,
		 "alt":30000,"gspeed":450,"track":90,"timestamp":"2024-01-01T00:00:00Z"},
		{"fr24_id":"def","flight":"BA1","lat":3.0,"lon":4.0,
		 "alt":20000,"gspeed":400,"track":180,"timestamp":"2024-01-01T00:00:00Z"}
	]}`
	srv := newPositionsServer(t, http.StatusOK, body, nil)
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	snaps, err := c.Fetch(context.Background(), flight.Target{Flights: []string{"CA908", "BA1"}})

	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "abc", snaps[0].FR24ID)
}

func TestPositionsFetch_EmptyIsNotAnError(t *testing.T) {
	srv := newPositionsServer(t, http.StatusOK, `{"data": []}`, nil)
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	snaps, err := c.Fetch(context.Background(), flight.Single("XX999"))

	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestPositionsFetch_BareListResponse(t *testing.T) {
	srv := newPositionsServer(t, http.StatusOK, `[]`, nil)
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	snaps, err := c.Fetch(context.Background(), flight.Target{Bounds: "1,2,3,4"})

	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestPositionsFetch_QueryParams(t *testing.T) {
	var query string
	srv := newPositionsServer(t, http.StatusOK, `{"data": []}`, &query)
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Fetch(context.Background(), flight.Target{
		Bounds:      "50.6,46.2,14.5,22.5",
		Flights:     []string{"CA908", "BA1"},
		Categories:  []string{"P", "C"},
		DataSources: []string{"ADSB", "MLAT"},
		Limit:       100,
	})

	require.NoError(t, err)
	assert.Contains(t, query, "bounds=50.6%2C46.2%2C14.5%2C22.5")
	assert.Contains(t, query, "flights=CA908%2CBA1")
	assert.Contains(t, query, "categories=P%2CC")
	assert.Contains(t, query, "data_sources=ADSB%2CMLAT")
	assert.Contains(t, query, "limit=100")
}

func TestFetchAirport_ParsesDetails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/static/airports/PEK/full", r.URL.Path)
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer ")
		_, _ = w.Write([]byte(`{
			"name":"Beijing Capital International Airport","iata":"PEK","icao":"ZBAA",
			"lon":116.584,"lat":40.0725,"elevation":116,
			"country":{"code":"CN","name":"China"},"city":"Beijing",
			"timezone":{"name":"Asia/Shanghai","offset":28800}
		}`))
	}))
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	details, err := c.FetchAirport(context.Background(), "PEK")

	require.NoError(t, err)
	require.NotNil(t, details)
	assert.Equal(t, "PEK", details.IATA)
	assert.Equal(t, "ZBAA", details.ICAO)
	assert.Equal(t, "Beijing", details.City)
	assert.Equal(t, 116, details.Elevation)
	assert.Equal(t, "China", details.Country["name"])
}

func TestFetchAirport_UnknownCodeIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.FetchAirport(context.Background(), "XXXX")

	require.Error(t, err)
	assert.Equal(t, errors.KindNotFound, errors.ClassifyKind(err))
}

func TestPositionsFetch_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Fetch(context.Background(), flight.Single("CA908"))

	require.Error(t, err)
	assert.Equal(t, errors.KindRateLimited, errors.ClassifyKind(err))
	assert.Equal(t, 7*time.Second, errors.RetryAfter(err))
}

func TestPositionsFetch_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "bad"})
	_, err := c.Fetch(context.Background(), flight.Single("CA908"))

	require.Error(t, err)
	assert.Equal(t, errors.KindAuthInvalid, errors.ClassifyKind(err))
}

func TestPositionsFetch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Fetch(context.Background(), flight.Single("CA908"))

	require.Error(t, err)
	assert.Equal(t, errors.KindTransient, errors.ClassifyKind(err))
}

func TestPositionsFetch_MalformedBody(t *testing.T) {
	srv := newPositionsServer(t, http.StatusOK, `{"data": not json`, nil)
	defer srv.Close()

	c := NewPositionsClient(PositionsConfig{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Fetch(context.Background(), flight.Single("CA908"))

	require.Error(t, err)
	assert.Equal(t, errors.KindMalformed, errors.ClassifyKind(err))
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter("30"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("-5"))
	assert.Zero(t, parseRetryAfter("Wed, 21 Oct 2015 07:28:00 GMT"))
}
