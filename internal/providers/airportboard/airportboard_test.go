package airportboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"flightsync/internal/models"
	"flightsync/internal/providers"
	"flightsync/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testDate = models.Date{Year: 2025, Month: time.March, Day: 22}
	taipei   = time.FixedZone("CST", 8*60*60)
)

const sampleBoard = `{
  "airport": "TTT",
  "date": "2025-03-22",
  "flights": [
    {"airline": "DA", "flight_no": "7501", "origin": "TTT", "destination": "KYD",
     "scheduled_departure": "07:50", "scheduled_arrival": "08:20", "actual_departure": "08:05", "remark": "延誤"},
    {"airline": "da", "flight_no": "DA 7503", "origin": "TTT", "destination": "GNI",
     "scheduled_departure": "23:40", "scheduled_arrival": "23:55", "actual_departure": "00:10", "remark": "Departed"},
    {"airline": "DA", "flight_no": "7505", "origin": "TTT", "destination": "KYD",
     "scheduled_departure": "", "remark": "取消"}
  ]
}`

func TestFetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, boardPath, r.URL.Path)
		assert.Equal(t, "TTT", r.URL.Query().Get("airport"))
		assert.Equal(t, "2025-03-22", r.URL.Query().Get("date"))
		w.Write([]byte(`{"flights": []}`))
	}))
	defer server.Close()

	p := New(server.URL, WithLocation(taipei))
	payload, err := p.Fetch(context.Background(), testDate, models.Params{"airport": "TTT"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"airport": "TTT", "date": "2025-03-22", "flights": []}`, string(payload.Body))
}

func TestFetch_Misconfigured(t *testing.T) {
	_, err := New("").Fetch(context.Background(), testDate, models.Params{"airport": "TTT"})
	assert.True(t, retry.IsQuotaExceeded(err))

	_, err = New("http://localhost").Fetch(context.Background(), testDate, nil)
	assert.True(t, retry.IsQuotaExceeded(err))
}

func TestFetch_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := New(server.URL).Fetch(context.Background(), testDate, models.Params{"airport": "TTT"})
	var rl *retry.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Equal(t, 12*time.Second, rl.RetryAfter)
}

func TestNormalize(t *testing.T) {
	p := New("http://unused", WithLocation(taipei))
	records := p.Normalize(providers.RawPayload{Body: []byte(sampleBoard)})
	require.Len(t, records, 2)

	delayed := records[0]
	assert.Equal(t, "DA7501", delayed.FlightNumber)
	assert.Equal(t, "DA", delayed.AirlineID)
	assert.Equal(t, models.StatusDelayed, delayed.Status)
	require.NotNil(t, delayed.ActualDeparture)
	assert.Equal(t, time.Date(2025, 3, 22, 8, 5, 0, 0, taipei), *delayed.ActualDeparture)
	assert.Nil(t, delayed.ActualArrival)
	assert.Equal(t, models.SourceAirportBoard, delayed.Source)

	late := records[1]
	assert.Equal(t, "DA7503", late.FlightNumber)
	assert.Equal(t, models.StatusDeparted, late.Status)
	require.NotNil(t, late.ActualDeparture)
	assert.Equal(t, time.Date(2025, 3, 23, 0, 10, 0, 0, taipei), *late.ActualDeparture)
	require.NotNil(t, late.ScheduledArrival)
	assert.Equal(t, 23, late.ScheduledArrival.Hour())
}

func TestFlightNumber(t *testing.T) {
	assert.Equal(t, "DA7501", flightNumber("DA", "7501"))
	assert.Equal(t, "DA7501", flightNumber("DA", "da 7501"))
	assert.Equal(t, "7501", flightNumber("", "7501"))
	assert.Equal(t, "", flightNumber("DA", " "))
}
