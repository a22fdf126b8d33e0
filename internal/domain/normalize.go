package domain

import "math"

// NormalizeStats counts scores removed during normalization.
type NormalizeStats struct {
	OutsideEnvelope int
	MissingLocation int
	NonFinite       int
	OutOfRange      int
}

// Dropped returns the total number of scores that produced no prediction.
func (s NormalizeStats) Dropped() int {
	return s.OutsideEnvelope + s.MissingLocation + s.NonFinite + s.OutOfRange
}

// Normalize converts raw scores into predictions. Every value is clamped into
// [0,1], confidence is derived with Confidence, and scores for locations
// outside envelope are dropped. Scores with no originating location or a NaN
// value are skipped and counted rather than failing the batch. Output order
// follows input order.
func Normalize(scores []RawScore, envelope Envelope) ([]Prediction, NormalizeStats) {
	var stats NormalizeStats
	out := make([]Prediction, 0, len(scores))

	for _, s := range scores {
		if s.Vector == nil || s.Vector.Location == nil {
			stats.MissingLocation++
			continue
		}
		if math.IsNaN(s.Value) {
			stats.NonFinite++
			continue
		}
		loc := s.Vector.Location
		if !envelope.Contains(loc.Lat, loc.Lon) {
			stats.OutsideEnvelope++
			continue
		}

		p := ClampProbability(s.Value)
		out = append(out, Prediction{
			Lat:             loc.Lat,
			Lon:             loc.Lon,
			Hour:            s.Vector.Hour,
			Probability:     p,
			ConfidenceScore: Confidence(p),
			LocationName:    loc.Name,
			Date:            s.Vector.Date,
			Source:          s.Provenance,
		})
	}
	return out, stats
}

// Revalidate re-applies the prediction invariants to a set read back from
// storage, which may predate the current envelope or come from offline
// tooling. Every kept prediction is stamped with date and its confidence is
// re-derived from the probability. Rows with a probability outside [0,1], an
// hour outside [0,23] or a point outside envelope are removed and counted.
func Revalidate(preds []Prediction, date string, envelope Envelope) ([]Prediction, NormalizeStats) {
	var stats NormalizeStats
	out := make([]Prediction, 0, len(preds))

	for _, p := range preds {
		switch {
		case math.IsNaN(p.Probability) || math.IsNaN(p.Lat) || math.IsNaN(p.Lon):
			stats.NonFinite++
			continue
		case p.Probability < 0 || p.Probability > 1 || p.Hour < 0 || p.Hour > 23:
			stats.OutOfRange++
			continue
		case !envelope.Contains(p.Lat, p.Lon):
			stats.OutsideEnvelope++
			continue
		}
		p.Date = date
		p.ConfidenceScore = Confidence(p.Probability)
		out = append(out, p)
	}
	return out, stats
}

// ClampProbability clips v into [0,1]; +Inf maps to 1 and -Inf to 0.
func ClampProbability(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Confidence returns round(100 * max(p, 1-p)) for a probability in [0,1].
// Halves round to even.
func Confidence(p float64) int {
	return int(math.RoundToEven(100 * math.Max(p, 1-p)))
}
