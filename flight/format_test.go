package flight

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
	}{
		{"scheduled", StatusScheduled},
		{"active", StatusActive},
		{"ACTIVE", StatusActive},
		{"Landed", StatusLanded},
		{"cancelled", StatusCancelled},
		{"diverted", StatusDiverted},
		{"incident", StatusIncident},
		{"unknown", StatusUnknown},
		{"en-route", StatusUnknown},
		{"garbage!!", StatusUnknown},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeStatus(tt.in), "input %q", tt.in)
	}
}

func TestParseTime(t *testing.T) {
	ts := ParseTime("2024-01-01T10:00:00Z")
	require.NotNil(t, ts)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), ts.UTC())

	assert.NotNil(t, ParseTime("2024-01-01T10:00:00+03:00"))
	assert.NotNil(t, ParseTime("2024-01-01T10:00:00"))
	assert.Nil(t, ParseTime(""))
	assert.Nil(t, ParseTime("not a time"))
}

func TestFormatDuration(t *testing.T) {
	dep := ParseTime("2024-01-01T10:00:00Z")
	arr := ParseTime("2024-01-01T12:30:00Z")
	assert.Equal(t, "2:30:00", FormatDuration(dep, arr))

	longArr := ParseTime("2024-01-02T01:15:30Z")
	assert.Equal(t, "15:15:30", FormatDuration(dep, longArr))

	assert.Equal(t, "", FormatDuration(nil, arr))
	assert.Equal(t, "", FormatDuration(dep, nil))
	assert.Equal(t, "", FormatDuration(arr, dep), "negative gap omitted")
}

func TestValidCoordinate(t *testing.T) {
	ok := 120.5
	assert.Equal(t, &ok, ValidCoordinate(&ok))

	low, high := -180.0, 180.0
	assert.NotNil(t, ValidCoordinate(&low))
	assert.NotNil(t, ValidCoordinate(&high))

	out := 180.1
	assert.Nil(t, ValidCoordinate(&out))
	neg := -200.0
	assert.Nil(t, ValidCoordinate(&neg))
	assert.Nil(t, ValidCoordinate(nil))
}

func TestValidDirection(t *testing.T) {
	ok := 359.9
	assert.Equal(t, &ok, ValidDirection(&ok))

	zero := 0.0
	assert.NotNil(t, ValidDirection(&zero))

	full := 360.0
	assert.Nil(t, ValidDirection(&full))
	neg := -1.0
	assert.Nil(t, ValidDirection(&neg))
	assert.Nil(t, ValidDirection(nil))
}

func TestDescribe_AllClauses(t *testing.T) {
	delay := 15
	info := InfoSnapshot{
		FlightNumber:     "CA908",
		Airline:          "Air China",
		DepartureAirport: "PEK",
		ArrivalAirport:   "JFK",
		Status:           StatusActive,
		Delay:            &delay,
		Gate:             "A1",
		Terminal:         "3",
	}
	assert.Equal(t,
		"Air China flight CA908 from PEK to JFK is active with a 15 minute delay at gate A1, terminal 3",
		Describe(info))
}

func TestDescribe_OmitsMissingClauses(t *testing.T) {
	tests := []struct {
		name string
		info InfoSnapshot
		want string
	}{
		{
			"no airline",
			InfoSnapshot{FlightNumber: "CA908", Status: StatusLanded},
			"Flight CA908 is landed",
		},
		{
			"zero delay omitted",
			InfoSnapshot{FlightNumber: "BA1", Airline: "British Airways", Delay: intPtr(0)},
			"British Airways flight BA1",
		},
		{
			"gate only",
			InfoSnapshot{FlightNumber: "X1", Gate: "B2"},
			"Flight X1 at gate B2",
		},
		{
			"terminal only",
			InfoSnapshot{FlightNumber: "X1", Terminal: "5"},
			"Flight X1 at terminal 5",
		},
		{
			"route requires both airports",
			InfoSnapshot{FlightNumber: "X1", DepartureAirport: "PEK"},
			"Flight X1",
		},
		{
			"empty",
			InfoSnapshot{},
			"",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.info))
		})
	}
}

func TestTargetKey(t *testing.T) {
	assert.Equal(t, "CA908", Single("CA908").Key())
	assert.Equal(t, "CA908,BA1", Target{Flights: []string{"CA908", "BA1"}}.Key())
	assert.Equal(t, "bounds:50.6,46.2,14.5,22.5", Target{Bounds: "50.6,46.2,14.5,22.5"}.Key())
	assert.Equal(t, "all", Target{}.Key())
	assert.True(t, Target{}.IsZero())
	assert.False(t, Single("CA908").IsZero())
}

func intPtr(v int) *int { return &v }
