package domain

import "context"

// ReadingsProvider looks up current pollutant readings for a city.
type ReadingsProvider interface {
	// CityReadings returns Variant A pollutant readings for city.
	CityReadings(ctx context.Context, city string) (CityReadings, error)
}
