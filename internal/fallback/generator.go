// Package fallback produces deterministic synthetic flights so that a round
// never ends with an empty result set.
package fallback

import (
	"fmt"
	"hash/fnv"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"flightsync/internal/models"
)

const (
	defaultBlockMinutes = 30
	defaultAircraft     = "DHC6"
	defaultBookingLink  = "https://www.dailyair.com.tw/Page/Booking"

	firstHour   = 6
	lastHour    = 22
	slotMinutes = 15

	firstNumber = 100
	numberSpan  = 900
)

// weightedStatus is one entry of the status distribution
type weightedStatus struct {
	status models.Status
	weight float64
}

var statusWeights = []weightedStatus{
	{models.StatusOnTime, 0.70},
	{models.StatusDelayed, 0.10},
	{models.StatusDeparted, 0.10},
	{models.StatusArrived, 0.05},
	{models.StatusCancelled, 0.05},
}

// Generator builds synthetic records for a date from a route table
type Generator struct {
	loc *time.Location
}

// New returns a generator placing flights in loc
func New(loc *time.Location) *Generator {
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{loc: loc}
}

// Generate returns two or three flights per valid route. The output depends
// only on the date and routes.
func (g *Generator) Generate(date models.Date, routes []models.Route) []models.FlightRecord {
	rng := rand.New(rand.NewSource(seed(date)))
	midnight := date.In(g.loc)

	records := make([]models.FlightRecord, 0, len(routes)*3)
	usedNumbers := make(map[string]bool)

	for _, route := range routes {
		if err := route.Validate(); err != nil {
			slog.Warn("Skipping invalid fallback route", "route", route.String(), "error", err)
			continue
		}

		block := route.BlockMinutes
		if block == 0 {
			block = defaultBlockMinutes
		}

		count := 2 + rng.Intn(2)
		usedSlots := make(map[int]bool, count)
		for i := 0; i < count; i++ {
			slot := pickSlot(rng, usedSlots)
			departure := midnight.Add(time.Duration(slot*slotMinutes) * time.Minute)
			arrival := departure.Add(time.Duration(block) * time.Minute)
			status := pickStatus(rng)
			price := float64(1000 + rng.Intn(20)*50)

			record := models.FlightRecord{
				FlightNumber:       pickNumber(rng, route.Airline, usedNumbers),
				AirlineID:          route.Airline,
				DepartureAirport:   route.Origin,
				ArrivalAirport:     route.Destination,
				ScheduledDeparture: departure,
				ScheduledArrival:   &arrival,
				Status:             status,
				AircraftType:       defaultAircraft,
				Price:              &price,
				BookingLink:        defaultBookingLink,
				Source:             models.SourceFallback,
				FetchedAt:          midnight,
			}
			setActualTimes(&record, departure, arrival)
			records = append(records, record)
		}
	}

	return records
}

func seed(date models.Date) int64 {
	h := fnv.New64a()
	h.Write([]byte(date.String()))
	return int64(h.Sum64())
}

// pickSlot chooses an unused quarter-hour between 06:00 and 22:45
func pickSlot(rng *rand.Rand, used map[int]bool) int {
	span := (lastHour - firstHour + 1) * 60 / slotMinutes
	for {
		slot := firstHour*60/slotMinutes + rng.Intn(span)
		if !used[slot] {
			used[slot] = true
			return slot
		}
	}
}

// pickNumber draws a three-digit flight number for airline and probes
// forward from the draw until it finds an unused one. Once all three-digit
// numbers are taken it continues into four digits.
func pickNumber(rng *rand.Rand, airline string, used map[string]bool) string {
	start := rng.Intn(numberSpan)
	for i := 0; i < numberSpan; i++ {
		n := fmt.Sprintf("%s%d", airline, firstNumber+(start+i)%numberSpan)
		if !used[n] {
			used[n] = true
			return n
		}
	}
	for n := firstNumber + numberSpan; ; n++ {
		candidate := fmt.Sprintf("%s%d", airline, n)
		if !used[candidate] {
			used[candidate] = true
			return candidate
		}
	}
}

func pickStatus(rng *rand.Rand) models.Status {
	r := rng.Float64()
	for _, w := range statusWeights {
		if r < w.weight {
			return w.status
		}
		r -= w.weight
	}
	return models.StatusOnTime
}

// setActualTimes keeps actual times consistent with the drawn status
func setActualTimes(r *models.FlightRecord, departure, arrival time.Time) {
	switch r.Status {
	case models.StatusDeparted:
		r.ActualDeparture = &departure
	case models.StatusArrived:
		dep, arr := departure, arrival
		r.ActualDeparture = &dep
		r.ActualArrival = &arr
	}
}

type routeFile struct {
	Routes []models.Route `yaml:"routes"`
}

// LoadRoutes reads a YAML route table of the form
//
//	routes:
//	  - {origin: TTT, destination: KYD, airline: DA, block_minutes: 30}
func LoadRoutes(path string) ([]models.Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file: %w", err)
	}

	var f routeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}

	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("routes file %s: at least one route is required", path)
	}
	for i, r := range f.Routes {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
	}
	return f.Routes, nil
}
