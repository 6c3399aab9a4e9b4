package location

import (
	"fmt"
	"guardpost/models"
	"math"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// Point is a bare coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Distance returns the great-circle distance in meters between two points.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push a just outside [0, 1] near antipodal points.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMeters * c
}

// IsWithinArea reports whether point lies within radiusMeters of center.
// A point without coordinates is never inside.
func IsWithinArea(point *models.LocationResult, center Point, radiusMeters float64) bool {
	if !point.HasCoordinates() {
		return false
	}
	return Distance(*point.Latitude, *point.Longitude, center.Latitude, center.Longitude) <= radiusMeters
}

// Accuracy bands, best first.
const (
	AccuracyVeryHigh = "very high"
	AccuracyHigh     = "high"
	AccuracyMedium   = "medium"
	AccuracyLow      = "low"
	AccuracyVeryLow  = "very low"
	AccuracyUnknown  = "unknown"
)

// AccuracyDescription maps an accuracy radius in meters to a qualitative band.
// A nil, negative or NaN accuracy is AccuracyUnknown.
func AccuracyDescription(accuracy *float64) string {
	if accuracy == nil || math.IsNaN(*accuracy) || *accuracy < 0 {
		return AccuracyUnknown
	}
	switch a := *accuracy; {
	case a < 10:
		return AccuracyVeryHigh
	case a < 100:
		return AccuracyHigh
	case a < 1000:
		return AccuracyMedium
	case a <= 10000:
		return AccuracyLow
	default:
		return AccuracyVeryLow
	}
}

// Unavailable is shown when a result carries nothing displayable.
const Unavailable = "Location unavailable"

// FormatForDisplay renders a result for humans: error, then address, then
// coordinates with an accuracy suffix, then Unavailable.
func FormatForDisplay(result *models.LocationResult) string {
	switch {
	case result == nil:
		return Unavailable
	case result.Error != "":
		return "Location error: " + result.Error
	case result.Address != "":
		return result.Address
	case result.HasCoordinates():
		s := fmt.Sprintf("%.6f, %.6f", *result.Latitude, *result.Longitude)
		if result.Accuracy != nil {
			s += fmt.Sprintf(" (±%.0fm)", *result.Accuracy)
		}
		return s
	}
	return Unavailable
}

func validCoordinates(lat, lon float64) bool {
	return !math.IsNaN(lat) && !math.IsNaN(lon) &&
		lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
