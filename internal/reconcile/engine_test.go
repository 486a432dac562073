package reconcile

import (
	"encoding/json"
	"testing"
	"time"

	"flightsync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var taipei = time.FixedZone("CST", 8*60*60)

func testEngine() *Engine {
	return New(map[models.Source]int{
		models.SourceDailyAir:      1,
		models.SourceAirportBoard:  2,
		models.SourceAviationStack: 3,
	})
}

func at(hour, minute int) time.Time {
	return time.Date(2025, 3, 22, hour, minute, 0, 0, taipei)
}

func ptr[T any](v T) *T { return &v }

func baseRecord(src models.Source) models.FlightRecord {
	return models.FlightRecord{
		FlightNumber:       "DA7501",
		AirlineID:          "DA",
		DepartureAirport:   "TTT",
		ArrivalAirport:     "KYD",
		ScheduledDeparture: at(7, 50),
		Status:             models.StatusOnTime,
		Source:             src,
		FetchedAt:          time.Date(2025, 3, 22, 0, 0, 0, 0, time.UTC),
	}
}

func TestReconcile_ExampleScenario(t *testing.T) {
	a := baseRecord(models.SourceDailyAir)
	a.ScheduledArrival = ptr(at(8, 20))
	a.AircraftType = "DHC6"
	a.Price = ptr(1428.0)

	b := baseRecord(models.SourceAirportBoard)
	b.Status = models.StatusDelayed
	b.ActualDeparture = ptr(at(8, 5))
	b.AircraftType = "ATR72"

	out := testEngine().Reconcile([]models.FlightRecord{b, a})
	require.Len(t, out, 1)

	merged := out[0]
	assert.Equal(t, models.StatusDelayed, merged.Status)
	require.NotNil(t, merged.ActualDeparture)
	assert.Equal(t, at(8, 5), *merged.ActualDeparture)
	assert.Equal(t, "DHC6", merged.AircraftType)
	assert.Equal(t, 1428.0, *merged.Price)
	assert.Equal(t, models.SourceDailyAir, merged.Source)
	assert.Nil(t, merged.ActualArrival)
}

func TestReconcile_SingleRecordUnchanged(t *testing.T) {
	r := baseRecord(models.SourceAviationStack)
	r.BookingLink = "https://example.test/book"

	out := testEngine().Reconcile([]models.FlightRecord{r})
	require.Len(t, out, 1)
	assert.Equal(t, r, out[0])
}

func TestReconcile_CancelledAlwaysWins(t *testing.T) {
	statuses := []models.Status{
		models.StatusOnTime, models.StatusArrived, models.StatusDeparted, models.StatusDelayed,
	}

	for _, s := range statuses {
		t.Run(string(s), func(t *testing.T) {
			trusted := baseRecord(models.SourceDailyAir)
			trusted.Status = s

			fallback := baseRecord(models.SourceFallback)
			fallback.Status = models.StatusCancelled

			out := testEngine().Reconcile([]models.FlightRecord{trusted, fallback})
			require.Len(t, out, 1)
			assert.Equal(t, models.StatusCancelled, out[0].Status)
			assert.Equal(t, models.SourceDailyAir, out[0].Source)
		})
	}
}

func TestReconcile_NullNeverOverwrites(t *testing.T) {
	base := baseRecord(models.SourceDailyAir)
	base.ActualArrival = ptr(at(8, 25))

	other := baseRecord(models.SourceAirportBoard)
	other.ActualArrival = nil
	other.ActualDeparture = ptr(at(7, 52))

	out := testEngine().Reconcile([]models.FlightRecord{other, base})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].ActualArrival)
	assert.Equal(t, at(8, 25), *out[0].ActualArrival)
	require.NotNil(t, out[0].ActualDeparture)
	assert.Equal(t, at(7, 52), *out[0].ActualDeparture)
}

func TestReconcile_ActualTimesFollowPriority(t *testing.T) {
	board := baseRecord(models.SourceAirportBoard)
	board.ActualDeparture = ptr(at(8, 5))

	api := baseRecord(models.SourceAviationStack)
	api.ActualDeparture = ptr(at(8, 10))

	out := testEngine().Reconcile([]models.FlightRecord{api, board})
	require.Len(t, out, 1)
	assert.Equal(t, at(8, 5), *out[0].ActualDeparture)
}

func TestReconcile_TieBrokenByLatestFetch(t *testing.T) {
	older := baseRecord(models.SourceDailyAir)
	older.AircraftType = "DO228"

	newer := baseRecord(models.SourceDailyAir)
	newer.AircraftType = "DHC6"
	newer.FetchedAt = older.FetchedAt.Add(time.Hour)

	out := testEngine().Reconcile([]models.FlightRecord{older, newer})
	require.Len(t, out, 1)
	assert.Equal(t, "DHC6", out[0].AircraftType)
	assert.Equal(t, newer.FetchedAt, out[0].FetchedAt)
}

func TestReconcile_UnknownSourceRanksBeforeFallback(t *testing.T) {
	e := testEngine()
	assert.Less(t, e.Priority(models.Source("charter_feed")), e.Priority(models.SourceFallback))
	assert.Greater(t, e.Priority(models.Source("charter_feed")), e.Priority(models.SourceAviationStack))
}

func TestReconcile_CommutativeOverPermutations(t *testing.T) {
	a := baseRecord(models.SourceDailyAir)
	a.Price = ptr(1428.0)

	b := baseRecord(models.SourceAirportBoard)
	b.Status = models.StatusDeparted
	b.ActualDeparture = ptr(at(7, 55))

	c := baseRecord(models.SourceAviationStack)
	c.Status = models.StatusDelayed
	c.ActualDeparture = ptr(at(8, 0))
	c.ActualArrival = ptr(at(8, 30))
	c.AircraftType = "DHC6"

	// same source and fetch time as a, different content
	d := baseRecord(models.SourceDailyAir)
	d.BookingLink = "https://example.test/book"
	d.ScheduledArrival = ptr(at(8, 20))

	other := baseRecord(models.SourceDailyAir)
	other.FlightNumber = "DA7502"
	other.DepartureAirport = "KYD"
	other.ArrivalAirport = "TTT"
	other.ScheduledDeparture = at(8, 40)

	input := []models.FlightRecord{a, b, c, d, other}
	e := testEngine()
	expected := mustJSON(t, e.Reconcile(input))

	permute(input, func(p []models.FlightRecord) {
		assert.Equal(t, expected, mustJSON(t, e.Reconcile(p)))
	})
}

func TestReconcile_OutputOrder(t *testing.T) {
	late := baseRecord(models.SourceDailyAir)
	late.FlightNumber = "DA7509"
	late.ScheduledDeparture = at(16, 0)

	earlyB := baseRecord(models.SourceDailyAir)
	earlyB.FlightNumber = "DA7503"

	earlyA := baseRecord(models.SourceDailyAir)

	out := testEngine().Reconcile([]models.FlightRecord{late, earlyB, earlyA})
	require.Len(t, out, 3)
	assert.Equal(t, "DA7501", out[0].FlightNumber)
	assert.Equal(t, "DA7503", out[1].FlightNumber)
	assert.Equal(t, "DA7509", out[2].FlightNumber)
}

func TestMerge_DoesNotAliasInput(t *testing.T) {
	a := baseRecord(models.SourceDailyAir)
	b := baseRecord(models.SourceAirportBoard)
	b.ActualDeparture = ptr(at(8, 5))

	merged := testEngine().Merge([]models.FlightRecord{a, b})
	*merged.ActualDeparture = at(9, 0)
	assert.Equal(t, at(8, 5), *b.ActualDeparture)
}

func TestReconcile_Empty(t *testing.T) {
	assert.Empty(t, testEngine().Reconcile(nil))
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

// permute calls fn with every ordering of records (Heap's algorithm)
func permute(records []models.FlightRecord, fn func([]models.FlightRecord)) {
	p := make([]models.FlightRecord, len(records))
	copy(p, records)

	var generate func(k int)
	generate = func(k int) {
		if k == 1 {
			fn(p)
			return
		}
		for i := 0; i < k; i++ {
			generate(k - 1)
			if k%2 == 0 {
				p[i], p[k-1] = p[k-1], p[i]
			} else {
				p[0], p[k-1] = p[k-1], p[0]
			}
		}
	}
	generate(len(p))
}
