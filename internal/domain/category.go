package domain

import "math"

// AQI severity categories.
const (
	CategoryGood               = "Good"
	CategoryModerate           = "Moderate"
	CategorySensitiveUnhealthy = "Unhealthy for Sensitive Groups"
	CategoryUnhealthy          = "Unhealthy"
	CategoryVeryUnhealthy      = "Very Unhealthy"
	CategoryHazardous          = "Hazardous"
)

// band is one rung of the category ladder: scores up to and including
// upper map to label.
type band struct {
	upper float64
	label string
}

// ladder is evaluated top to bottom; the first band whose upper bound is
// not exceeded wins. Anything above the last bound is Hazardous.
var ladder = []band{
	{50, CategoryGood},
	{100, CategoryModerate},
	{150, CategorySensitiveUnhealthy},
	{200, CategoryUnhealthy},
	{300, CategoryVeryUnhealthy},
}

// Categories lists every label in ascending severity.
func Categories() []string {
	out := make([]string, 0, len(ladder)+1)
	for _, b := range ladder {
		out = append(out, b.label)
	}
	return append(out, CategoryHazardous)
}

// Categorize maps an AQI score to its severity label. It is total over
// float64: negative scores are Good and NaN, which compares false against
// every bound, is Hazardous.
func Categorize(aqi float64) string {
	for _, b := range ladder {
		if aqi <= b.upper {
			return b.label
		}
	}
	return CategoryHazardous
}

// RoundAQI rounds a score to two decimal places, halves away from zero.
// Magnitudes of 1e15 and above carry no fractional hundredths and are
// returned unchanged, so scaling cannot overflow a finite score to Inf.
func RoundAQI(aqi float64) float64 {
	if math.Abs(aqi) >= 1e15 || math.IsNaN(aqi) {
		return aqi
	}
	return math.Round(aqi*100) / 100
}
