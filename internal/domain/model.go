package domain

import (
	"fmt"
	"time"
)

// Location is a fixed road point considered for prediction. Locations are
// loaded once from the location source and treated as read-only afterwards.
type Location struct {
	Lat       float64 `json:"lat" db:"lat"`
	Lon       float64 `json:"lon" db:"lon"`
	Name      string  `json:"name,omitempty" db:"name"`
	RoadClass string  `json:"road_class,omitempty" db:"road_class"`
}

// Valid reports whether the coordinates are within WGS-84 bounds.
func (l Location) Valid() bool {
	return l.Lat >= -90 && l.Lat <= 90 && l.Lon >= -180 && l.Lon <= 180
}

// Provenance records how a raw score was obtained from the scoring step.
type Provenance string

const (
	// ProvenanceProbability is the positive-class column of a two-column
	// classifier output.
	ProvenanceProbability Provenance = "probability"
	// ProvenanceRegression is a single numeric model output used directly.
	ProvenanceRegression Provenance = "regression"
	// ProvenanceSynthetic marks a deterministic fallback produced when the
	// model could not be run or its output was not recognised.
	ProvenanceSynthetic Provenance = "synthetic"
)

// RawScore is the scoring step's output for one FeatureVector.
type RawScore struct {
	Vector     *FeatureVector
	Value      float64
	Provenance Provenance
}

// Probability wraps a positive-class probability.
func Probability(v *FeatureVector, p float64) RawScore {
	return RawScore{Vector: v, Value: p, Provenance: ProvenanceProbability}
}

// RegressionScore wraps an unbounded count-like model output.
func RegressionScore(v *FeatureVector, value float64) RawScore {
	return RawScore{Vector: v, Value: value, Provenance: ProvenanceRegression}
}

// Synthetic wraps a fallback score.
func Synthetic(v *FeatureVector, value float64) RawScore {
	return RawScore{Vector: v, Value: value, Provenance: ProvenanceSynthetic}
}

// Prediction is the finalized, externally visible risk record for one
// (location, hour, date).
type Prediction struct {
	Lat             float64    `json:"lat"`
	Lon             float64    `json:"lon"`
	Hour            int        `json:"hour"`
	Probability     float64    `json:"probability"`
	ConfidenceScore int        `json:"confidence_score"`
	LocationName    string     `json:"location_name,omitempty"`
	Date            string     `json:"date"`
	Source          Provenance `json:"source,omitempty"`
}

// CacheEntry is the finalized prediction set for one canonical date.
type CacheEntry struct {
	Date        string       `json:"date"`
	Predictions []Prediction `json:"predictions"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Synthetic reports whether any prediction in the entry came from the
// fallback scorer.
func (e CacheEntry) Synthetic() bool {
	for i := range e.Predictions {
		if e.Predictions[i].Source == ProvenanceSynthetic {
			return true
		}
	}
	return false
}

// Envelope is a rectangular latitude/longitude bounding box.
type Envelope struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// VirginiaEnvelope is the default region for the crash-risk map.
var VirginiaEnvelope = Envelope{MinLat: 36.5, MinLon: -83.7, MaxLat: 39.5, MaxLon: -75.2}

// Contains reports whether the point lies inside the envelope, edges included.
func (e Envelope) Contains(lat, lon float64) bool {
	return lat >= e.MinLat && lat <= e.MaxLat && lon >= e.MinLon && lon <= e.MaxLon
}

// String renders the envelope in the same "minLat,minLon,maxLat,maxLon"
// form accepted by ParseEnvelope.
func (e Envelope) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", e.MinLat, e.MinLon, e.MaxLat, e.MaxLon)
}

// ComputedSet announces a freshly computed prediction set. It is never
// produced for cache hits.
type ComputedSet struct {
	RunID       string       `json:"run_id"`
	Date        string       `json:"date"`
	ComputedAt  time.Time    `json:"computed_at"`
	Count       int          `json:"count"`
	Synthetic   bool         `json:"synthetic"`
	Predictions []Prediction `json:"predictions"`
}
