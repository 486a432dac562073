package models

import (
	"fmt"
	"time"
)

// Source identifies the provider that produced a record
type Source string

const (
	SourceDailyAir      Source = "daily_air"
	SourceAirportBoard  Source = "airport_board"
	SourceAviationStack Source = "aviation_stack"
	SourceFallback      Source = "fallback"
)

// FallbackPriority ranks synthetic data behind every real provider
const FallbackPriority = 1 << 20

// FlightRecord is the canonical, normalized representation of one flight.
// Optional values are nil pointers or empty strings.
type FlightRecord struct {
	FlightNumber       string     `json:"flight_number"`
	AirlineID          string     `json:"airline_id"`
	DepartureAirport   string     `json:"departure_airport"`
	ArrivalAirport     string     `json:"arrival_airport"`
	ScheduledDeparture time.Time  `json:"scheduled_departure"`
	ScheduledArrival   *time.Time `json:"scheduled_arrival,omitempty"`
	ActualDeparture    *time.Time `json:"actual_departure,omitempty"`
	ActualArrival      *time.Time `json:"actual_arrival,omitempty"`
	Status             Status     `json:"status"`
	AircraftType       string     `json:"aircraft_type,omitempty"`
	Price              *float64   `json:"price,omitempty"`
	BookingLink        string     `json:"booking_link,omitempty"`
	Source             Source     `json:"source"`
	FetchedAt          time.Time  `json:"fetched_at"`
}

// IdentityKey groups records describing the same real-world flight
type IdentityKey struct {
	FlightNumber     string
	DepartureAirport string
	ArrivalAirport   string
	Date             Date
}

// String renders the key as FLIGHT:DEP-ARR:YYYY-MM-DD
func (k IdentityKey) String() string {
	return fmt.Sprintf("%s:%s-%s:%s", k.FlightNumber, k.DepartureAirport, k.ArrivalAirport, k.Date)
}

// Key returns the record's identity key. The calendar date is taken in the
// zone the scheduled departure was recorded in.
func (r *FlightRecord) Key() IdentityKey {
	return IdentityKey{
		FlightNumber:     r.FlightNumber,
		DepartureAirport: r.DepartureAirport,
		ArrivalAirport:   r.ArrivalAirport,
		Date:             DateOf(r.ScheduledDeparture),
	}
}

// HasRequiredFields reports whether the record carries everything needed to
// identify the flight
func (r *FlightRecord) HasRequiredFields() bool {
	return r.FlightNumber != "" &&
		r.AirlineID != "" &&
		r.DepartureAirport != "" &&
		r.ArrivalAirport != "" &&
		!r.ScheduledDeparture.IsZero()
}

// Clone returns a deep copy so merges never alias provider output
func (r FlightRecord) Clone() FlightRecord {
	out := r
	out.ScheduledArrival = cloneTime(r.ScheduledArrival)
	out.ActualDeparture = cloneTime(r.ActualDeparture)
	out.ActualArrival = cloneTime(r.ActualArrival)
	if r.Price != nil {
		p := *r.Price
		out.Price = &p
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
