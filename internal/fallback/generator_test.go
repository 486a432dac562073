package fallback

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"flightsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	taipei   = time.FixedZone("CST", 8*60*60)
	testDate = models.Date{Year: 2025, Month: time.March, Day: 22}
	routes   = []models.Route{
		{Origin: "TTT", Destination: "KYD", Airline: "DA", BlockMinutes: 30},
		{Origin: "KYD", Destination: "TTT", Airline: "DA"},
		{Origin: "TTT", Destination: "GNI", Airline: "DA", BlockMinutes: 15},
	}
)

func TestGenerate_Deterministic(t *testing.T) {
	g := New(taipei)
	first := g.Generate(testDate, routes)
	second := g.Generate(testDate, routes)
	assert.Equal(t, first, second)

	other := g.Generate(testDate.AddDays(1), routes)
	assert.NotEqual(t, first, other)
}

func TestGenerate_RecordsAreConsistent(t *testing.T) {
	records := New(taipei).Generate(testDate, routes)
	require.NotEmpty(t, records)

	perRoute := make(map[string]int)
	keys := make(map[models.IdentityKey]bool)
	for _, r := range records {
		assert.True(t, r.HasRequiredFields())
		assert.True(t, r.Status.Valid())
		assert.Equal(t, models.SourceFallback, r.Source)
		assert.Equal(t, testDate, models.DateOf(r.ScheduledDeparture))
		assert.Equal(t, testDate.In(taipei), r.FetchedAt)
		require.NotNil(t, r.ScheduledArrival)
		assert.True(t, r.ScheduledArrival.After(r.ScheduledDeparture))
		require.NotNil(t, r.Price)
		assert.NotEmpty(t, r.AircraftType)
		assert.NotEmpty(t, r.BookingLink)
		assert.False(t, keys[r.Key()], "duplicate identity key %s", r.Key())
		keys[r.Key()] = true
		perRoute[r.DepartureAirport+"-"+r.ArrivalAirport]++
	}

	for _, route := range routes {
		n := perRoute[route.String()]
		assert.GreaterOrEqual(t, n, 2, route.String())
		assert.LessOrEqual(t, n, 3, route.String())
	}
}

func TestGenerate_BlockTime(t *testing.T) {
	records := New(taipei).Generate(testDate, routes)
	for _, r := range records {
		block := r.ScheduledArrival.Sub(r.ScheduledDeparture)
		switch r.ArrivalAirport {
		case "GNI":
			assert.Equal(t, 15*time.Minute, block)
		default:
			assert.Equal(t, 30*time.Minute, block)
		}
	}
}

func TestGenerate_ActualTimesMatchStatus(t *testing.T) {
	// enough dates to draw every status at least once
	for d := 0; d < 60; d++ {
		for _, r := range New(taipei).Generate(testDate.AddDays(d), routes) {
			switch r.Status {
			case models.StatusArrived:
				assert.NotNil(t, r.ActualDeparture)
				assert.NotNil(t, r.ActualArrival)
			case models.StatusDeparted:
				assert.NotNil(t, r.ActualDeparture)
				assert.Nil(t, r.ActualArrival)
			default:
				assert.Nil(t, r.ActualDeparture)
				assert.Nil(t, r.ActualArrival)
			}
		}
	}
}

func TestGenerate_StatusDistributionFavoursOnTime(t *testing.T) {
	counts := make(map[models.Status]int)
	total := 0
	for d := 0; d < 365; d++ {
		for _, r := range New(taipei).Generate(testDate.AddDays(d), routes) {
			counts[r.Status]++
			total++
		}
	}

	onTime := float64(counts[models.StatusOnTime]) / float64(total)
	assert.InDelta(t, 0.70, onTime, 0.08)
	assert.Positive(t, counts[models.StatusCancelled])
}

func TestGenerate_SkipsInvalidRoutes(t *testing.T) {
	records := New(taipei).Generate(testDate, []models.Route{
		{Origin: "tt", Destination: "KYD", Airline: "DA"},
	})
	assert.Empty(t, records)
}

func TestLoadRoutes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
routes:
  - origin: TTT
    destination: KYD
    airline: DA
    block_minutes: 30
  - {origin: KYD, destination: TTT, airline: DA}
`), 0644))

	loaded, err := LoadRoutes(path)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, models.Route{Origin: "TTT", Destination: "KYD", Airline: "DA", BlockMinutes: 30}, loaded[0])
	assert.Equal(t, 0, loaded[1].BlockMinutes)
}

func TestGenerate_ManyRoutesForOneAirline(t *testing.T) {
	many := make([]models.Route, 400)
	for i := range many {
		many[i] = models.Route{Origin: "TTT", Destination: "KYD", Airline: "DA"}
	}

	done := make(chan []models.FlightRecord, 1)
	go func() { done <- New(taipei).Generate(testDate, many) }()

	var records []models.FlightRecord
	select {
	case records = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Generate did not return")
	}

	require.GreaterOrEqual(t, len(records), 800)
	numbers := make(map[string]bool, len(records))
	for _, r := range records {
		assert.False(t, numbers[r.FlightNumber], "duplicate flight number %s", r.FlightNumber)
		numbers[r.FlightNumber] = true
	}
	assert.Equal(t, records, New(taipei).Generate(testDate, many))
}

func TestLoadRoutes_Empty(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"empty list": "routes: []\n",
		"no key":     "# nothing here\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "routes.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			_, err := LoadRoutes(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "at least one route is required")
		})
	}
}

func TestLoadRoutes_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  - {origin: TTT, destination: TTT, airline: DA}\n"), 0644))

	_, err := LoadRoutes(path)
	assert.Error(t, err)

	_, err = LoadRoutes(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
