package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseEnvelope parses "minLat,minLon,maxLat,maxLon".
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return Envelope{}, fmt.Errorf("envelope must have 4 components, got %d", len(parts))
	}

	var vals [4]float64
	names := [4]string{"minLat", "minLon", "maxLat", "maxLon"}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Envelope{}, fmt.Errorf("invalid %s: %w", names[i], err)
		}
		vals[i] = v
	}

	e := Envelope{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if e.MinLat < -90 || e.MinLat > 90 || e.MaxLat < -90 || e.MaxLat > 90 {
		return Envelope{}, fmt.Errorf("latitude out of range [-90, 90]")
	}
	if e.MinLon < -180 || e.MinLon > 180 || e.MaxLon < -180 || e.MaxLon > 180 {
		return Envelope{}, fmt.Errorf("longitude out of range [-180, 180]")
	}
	if e.MinLat > e.MaxLat || e.MinLon > e.MaxLon {
		return Envelope{}, fmt.Errorf("minLat must be <= maxLat and minLon must be <= maxLon")
	}
	return e, nil
}
