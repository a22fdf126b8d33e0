package domain

import (
	"context"
	"errors"
	"log/slog"
)

// ErrRateLimited is returned by a Geocoder that is being throttled. Naming
// stops at the first one and leaves the remaining locations unnamed.
var ErrRateLimited = errors.New("geocoder rate limited")

// GeocodingResult contains place details returned by a geocoding provider.
type GeocodingResult struct {
	FormattedAddress string
	PlaceName        string
	Confidence       float64 // 0.0–1.0 provider confidence score
}

// Geocoder resolves coordinates to place details.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lon float64) (GeocodingResult, error)
}

// NameLocations fills in missing location names by reverse geocoding. A nil
// geocoder, a lookup error or an empty result leaves the name unset, so the
// location set is always returned whole. The input slice is not modified.
func NameLocations(ctx context.Context, locations []Location, geocoder Geocoder, logger *slog.Logger) []Location {
	out := make([]Location, len(locations))
	copy(out, locations)
	if geocoder == nil {
		return out
	}

	named := 0
	for i := range out {
		if out[i].Name != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		result, err := geocoder.ReverseGeocode(ctx, out[i].Lat, out[i].Lon)
		if errors.Is(err, ErrRateLimited) {
			logger.Warn("geocoder rate limited, leaving remaining locations unnamed", "error", err)
			break
		}
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"lat", out[i].Lat,
				"lon", out[i].Lon,
				"error", err,
			)
			continue
		}
		name := result.PlaceName
		if name == "" {
			name = result.FormattedAddress
		}
		if name != "" {
			out[i].Name = name
			named++
		}
	}
	if named > 0 {
		logger.Info("named locations via reverse geocoding", "named", named)
	}
	return out
}
