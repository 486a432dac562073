package models

import "strings"

// Status is the normalized flight status
type Status string

const (
	StatusOnTime    Status = "on_time"
	StatusDelayed   Status = "delayed"
	StatusDeparted  Status = "departed"
	StatusArrived   Status = "arrived"
	StatusCancelled Status = "cancelled"
)

// statusRank is the total order used to resolve conflicting statuses.
// A higher rank wins.
var statusRank = map[Status]int{
	StatusOnTime:    1,
	StatusArrived:   2,
	StatusDeparted:  3,
	StatusDelayed:   4,
	StatusCancelled: 5,
}

// ParseStatus normalizes a source status string. Anything unrecognized
// becomes on_time.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusDelayed:
		return StatusDelayed
	case StatusDeparted:
		return StatusDeparted
	case StatusArrived:
		return StatusArrived
	case StatusCancelled:
		return StatusCancelled
	default:
		return StatusOnTime
	}
}

// Rank returns the status position in the conflict-resolution order
func (s Status) Rank() int {
	if r, ok := statusRank[s]; ok {
		return r
	}
	return statusRank[StatusOnTime]
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// MaxStatus returns whichever status ranks higher
func MaxStatus(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	if !a.Valid() {
		return StatusOnTime
	}
	return a
}
