// Package reconcile merges canonical flight records from several sources
// into one record per identity key.
//
// The merge is a pure function of the multiset of input records: the input
// order never changes the output. Within a group, records are ranked by
// source priority (lower is more trusted), then by fetch time (newer first),
// then by a fixed comparison over every field, so there is always exactly
// one base record and one fill order.
package reconcile

import (
	"sort"
	"strings"
	"time"

	"flightsync/internal/models"
)

// Engine resolves conflicts using a fixed source priority table
type Engine struct {
	priorities map[models.Source]int
}

// New creates an engine. Sources missing from priorities rank just ahead of
// the fallback generator; the fallback source always ranks last.
func New(priorities map[models.Source]int) *Engine {
	p := make(map[models.Source]int, len(priorities)+1)
	for src, rank := range priorities {
		p[src] = rank
	}
	p[models.SourceFallback] = models.FallbackPriority
	return &Engine{priorities: p}
}

// Priority returns the merge rank of a source
func (e *Engine) Priority(src models.Source) int {
	if rank, ok := e.priorities[src]; ok {
		return rank
	}
	return models.FallbackPriority - 1
}

// Reconcile groups records by identity key and emits one merged record per
// key, sorted by scheduled departure, flight number, departure and arrival
// airport
func (e *Engine) Reconcile(records []models.FlightRecord) []models.FlightRecord {
	groups := make(map[models.IdentityKey][]models.FlightRecord)
	for _, r := range records {
		k := r.Key()
		groups[k] = append(groups[k], r)
	}

	out := make([]models.FlightRecord, 0, len(groups))
	for _, group := range groups {
		out = append(out, e.Merge(group))
	}

	sort.Slice(out, func(i, j int) bool {
		return outputLess(&out[i], &out[j])
	})
	return out
}

// Merge folds a group of records sharing one identity key into a single
// record. The group must be non-empty.
func (e *Engine) Merge(group []models.FlightRecord) models.FlightRecord {
	if len(group) == 1 {
		return group[0].Clone()
	}

	ranked := make([]models.FlightRecord, len(group))
	copy(ranked, group)
	sort.SliceStable(ranked, func(i, j int) bool {
		return e.less(&ranked[i], &ranked[j])
	})

	merged := ranked[0].Clone()
	for i := 1; i < len(ranked); i++ {
		fillFrom(&merged, &ranked[i])
	}
	return merged
}

// less orders records from most to least trusted
func (e *Engine) less(a, b *models.FlightRecord) bool {
	pa, pb := e.Priority(a.Source), e.Priority(b.Source)
	if pa != pb {
		return pa < pb
	}
	if !a.FetchedAt.Equal(b.FetchedAt) {
		return a.FetchedAt.After(b.FetchedAt)
	}
	return compareRecords(a, b) < 0
}

// fillFrom copies into dst every value dst is missing. Status is the
// maximum of the two under the status order.
func fillFrom(dst, src *models.FlightRecord) {
	dst.Status = models.MaxStatus(dst.Status, src.Status)

	if dst.ActualDeparture == nil && src.ActualDeparture != nil {
		t := *src.ActualDeparture
		dst.ActualDeparture = &t
	}
	if dst.ActualArrival == nil && src.ActualArrival != nil {
		t := *src.ActualArrival
		dst.ActualArrival = &t
	}
	if dst.ScheduledArrival == nil && src.ScheduledArrival != nil {
		t := *src.ScheduledArrival
		dst.ScheduledArrival = &t
	}
	if dst.Price == nil && src.Price != nil {
		p := *src.Price
		dst.Price = &p
	}
	if dst.AircraftType == "" {
		dst.AircraftType = src.AircraftType
	}
	if dst.BookingLink == "" {
		dst.BookingLink = src.BookingLink
	}
	if dst.AirlineID == "" {
		dst.AirlineID = src.AirlineID
	}
}

func outputLess(a, b *models.FlightRecord) bool {
	if !a.ScheduledDeparture.Equal(b.ScheduledDeparture) {
		return a.ScheduledDeparture.Before(b.ScheduledDeparture)
	}
	if a.FlightNumber != b.FlightNumber {
		return a.FlightNumber < b.FlightNumber
	}
	if a.DepartureAirport != b.DepartureAirport {
		return a.DepartureAirport < b.DepartureAirport
	}
	if a.ArrivalAirport != b.ArrivalAirport {
		return a.ArrivalAirport < b.ArrivalAirport
	}
	// Same instant, same flight, different calendar date (zones differ)
	return a.ScheduledDeparture.Location().String() < b.ScheduledDeparture.Location().String()
}

// compareRecords is a total order over record contents used as the last
// tie-break, so that equal-priority records fetched at the same instant
// still merge the same way regardless of input order
func compareRecords(a, b *models.FlightRecord) int {
	if c := strings.Compare(string(a.Source), string(b.Source)); c != 0 {
		return c
	}
	if c := strings.Compare(string(a.Status), string(b.Status)); c != 0 {
		return c
	}
	if c := strings.Compare(a.AirlineID, b.AirlineID); c != 0 {
		return c
	}
	if c := compareTime(&a.ScheduledDeparture, &b.ScheduledDeparture); c != 0 {
		return c
	}
	if c := compareTime(a.ScheduledArrival, b.ScheduledArrival); c != 0 {
		return c
	}
	if c := compareTime(a.ActualDeparture, b.ActualDeparture); c != 0 {
		return c
	}
	if c := compareTime(a.ActualArrival, b.ActualArrival); c != 0 {
		return c
	}
	if c := strings.Compare(a.AircraftType, b.AircraftType); c != 0 {
		return c
	}
	if c := compareFloat(a.Price, b.Price); c != 0 {
		return c
	}
	if c := strings.Compare(a.BookingLink, b.BookingLink); c != 0 {
		return c
	}
	return compareTime(&a.FetchedAt, &b.FetchedAt)
}

// compareTime orders present values before nil ones
func compareTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	}
	return strings.Compare(a.Location().String(), b.Location().String())
}

func compareFloat(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}
