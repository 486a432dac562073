package models

import (
	"fmt"
	"regexp"
)

var airportCodePattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Route is one directed airport pair served by an airline
type Route struct {
	Origin       string `mapstructure:"origin" yaml:"origin"`
	Destination  string `mapstructure:"destination" yaml:"destination"`
	Airline      string `mapstructure:"airline" yaml:"airline"`
	BlockMinutes int    `mapstructure:"block_minutes" yaml:"block_minutes"` // scheduled gate-to-gate time
}

// Validate checks the airport codes and airline
func (r Route) Validate() error {
	if !ValidAirportCode(r.Origin) {
		return fmt.Errorf("invalid origin airport code %q", r.Origin)
	}
	if !ValidAirportCode(r.Destination) {
		return fmt.Errorf("invalid destination airport code %q", r.Destination)
	}
	if r.Origin == r.Destination {
		return fmt.Errorf("route %s-%s has identical endpoints", r.Origin, r.Destination)
	}
	if r.Airline == "" {
		return fmt.Errorf("route %s-%s has no airline", r.Origin, r.Destination)
	}
	if r.BlockMinutes < 0 {
		return fmt.Errorf("route %s-%s has negative block time", r.Origin, r.Destination)
	}
	return nil
}

// String renders the route as ORIGIN-DESTINATION
func (r Route) String() string {
	return r.Origin + "-" + r.Destination
}

// ValidAirportCode reports whether code looks like a 3-letter IATA code
func ValidAirportCode(code string) bool {
	return airportCodePattern.MatchString(code)
}
