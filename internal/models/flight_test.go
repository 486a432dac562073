package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Status
	}{
		{name: "on time", input: "on_time", expected: StatusOnTime},
		{name: "delayed upper case", input: "DELAYED", expected: StatusDelayed},
		{name: "departed padded", input: " departed ", expected: StatusDeparted},
		{name: "arrived", input: "arrived", expected: StatusArrived},
		{name: "cancelled", input: "cancelled", expected: StatusCancelled},
		{name: "unknown value", input: "boarding", expected: StatusOnTime},
		{name: "empty", input: "", expected: StatusOnTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseStatus(tt.input))
		})
	}
}

func TestStatusRankOrder(t *testing.T) {
	ordered := []Status{StatusOnTime, StatusArrived, StatusDeparted, StatusDelayed, StatusCancelled}
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank(), "%s should outrank %s", ordered[i], ordered[i-1])
	}

	assert.Equal(t, StatusOnTime.Rank(), Status("bogus").Rank())
}

func TestMaxStatus(t *testing.T) {
	assert.Equal(t, StatusCancelled, MaxStatus(StatusDelayed, StatusCancelled))
	assert.Equal(t, StatusCancelled, MaxStatus(StatusCancelled, StatusArrived))
	assert.Equal(t, StatusDelayed, MaxStatus(StatusOnTime, StatusDelayed))
	assert.Equal(t, StatusOnTime, MaxStatus(Status("bogus"), StatusOnTime))
}

func TestIdentityKey(t *testing.T) {
	taipei := time.FixedZone("CST", 8*3600)
	rec := FlightRecord{
		FlightNumber:       "DA7501",
		DepartureAirport:   "TTT",
		ArrivalAirport:     "KYD",
		ScheduledDeparture: time.Date(2025, 3, 22, 7, 50, 0, 0, taipei),
	}

	key := rec.Key()
	assert.Equal(t, "DA7501", key.FlightNumber)
	assert.Equal(t, Date{Year: 2025, Month: time.March, Day: 22}, key.Date)
	assert.Equal(t, "DA7501:TTT-KYD:2025-03-22", key.String())

	// Same instant expressed in UTC falls on the previous calendar day
	utc := rec
	utc.ScheduledDeparture = time.Date(2025, 3, 21, 23, 50, 0, 0, time.UTC)
	assert.NotEqual(t, key, utc.Key())
}

func TestHasRequiredFields(t *testing.T) {
	full := FlightRecord{
		FlightNumber:       "DA7501",
		AirlineID:          "DA",
		DepartureAirport:   "TTT",
		ArrivalAirport:     "KYD",
		ScheduledDeparture: time.Date(2025, 3, 22, 7, 50, 0, 0, time.UTC),
	}
	assert.True(t, full.HasRequiredFields())

	missing := []func(r *FlightRecord){
		func(r *FlightRecord) { r.FlightNumber = "" },
		func(r *FlightRecord) { r.AirlineID = "" },
		func(r *FlightRecord) { r.DepartureAirport = "" },
		func(r *FlightRecord) { r.ArrivalAirport = "" },
		func(r *FlightRecord) { r.ScheduledDeparture = time.Time{} },
	}
	for _, mutate := range missing {
		rec := full
		mutate(&rec)
		assert.False(t, rec.HasRequiredFields())
	}
}

func TestClone(t *testing.T) {
	actual := time.Date(2025, 3, 22, 8, 5, 0, 0, time.UTC)
	price := 1200.0
	rec := FlightRecord{ActualDeparture: &actual, Price: &price}

	cp := rec.Clone()
	*cp.ActualDeparture = cp.ActualDeparture.Add(time.Hour)
	*cp.Price = 1

	assert.Equal(t, actual, *rec.ActualDeparture)
	assert.Equal(t, 1200.0, *rec.Price)
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-03-22")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-22", d.String())
	assert.Equal(t, "2025-04-01", d.AddDays(10).String())
	assert.False(t, d.IsZero())

	_, err = ParseDate("22/03/2025")
	assert.Error(t, err)

	loc := time.FixedZone("CST", 8*3600)
	at, err := d.At("07:50", loc)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 22, 7, 50, 0, 0, loc), at)

	_, err = d.At("7h50", loc)
	assert.Error(t, err)
}

func TestRouteValidate(t *testing.T) {
	tests := []struct {
		name    string
		route   Route
		wantErr bool
	}{
		{name: "valid", route: Route{Origin: "TTT", Destination: "KYD", Airline: "DA"}},
		{name: "lower case origin", route: Route{Origin: "ttt", Destination: "KYD", Airline: "DA"}, wantErr: true},
		{name: "same endpoints", route: Route{Origin: "TTT", Destination: "TTT", Airline: "DA"}, wantErr: true},
		{name: "missing airline", route: Route{Origin: "TTT", Destination: "KYD"}, wantErr: true},
		{name: "negative block", route: Route{Origin: "TTT", Destination: "KYD", Airline: "DA", BlockMinutes: -5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.route.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParamsCanonical(t *testing.T) {
	a := Params{"dep_iata": "TTT", "arr_iata": "KYD", "limit": 100}
	b := Params{"limit": 100, "arr_iata": "KYD", "dep_iata": "TTT"}

	ca, err := a.Canonical()
	require.NoError(t, err)
	cb, err := b.Canonical()
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
	assert.Equal(t, `{"arr_iata":"KYD","dep_iata":"TTT","limit":100}`, ca)

	_, err = Params{"nested": map[string]string{"a": "b"}}.Canonical()
	assert.Error(t, err)

	assert.Equal(t, "100", a.String("limit"))
	assert.Equal(t, "", a.String("missing"))
}
