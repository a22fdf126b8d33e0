package scoring

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
)

const (
	baselineRisk     = 0.20
	morningRushRisk  = 0.55
	eveningRushRisk  = 0.60
	nightRisk        = 0.35
	interstateBoost  = 0.05
	weekendRushScale = 0.8
	jitterSpan       = 0.04
)

// SyntheticScore returns a deterministic, temporally plausible fallback risk
// for one feature vector. Rush hours and night are elevated over the
// baseline, and a small per-location jitter keeps neighbouring points apart.
// The result is always within [0,1].
func SyntheticScore(v *domain.FeatureVector) float64 {
	risk := baselineRisk
	switch {
	case v.Flag(domain.FeatureEveningRush):
		risk = eveningRushRisk
	case v.Flag(domain.FeatureMorningRush):
		risk = morningRushRisk
	case v.Flag(domain.FeatureNight):
		risk = nightRisk
	}
	if v.Flag(domain.FeatureIsWeekend) && v.Flag(domain.FeatureRushHour) {
		risk *= weekendRushScale
	}
	if v.Flag(domain.FeatureRoadInterstate) {
		risk += interstateBoost
	}
	risk += jitter(v)
	return math.Max(0, math.Min(1, risk))
}

// Synthesize scores every vector with SyntheticScore.
func Synthesize(vectors []domain.FeatureVector) []domain.RawScore {
	scores := make([]domain.RawScore, len(vectors))
	for i := range vectors {
		scores[i] = domain.Synthetic(&vectors[i], SyntheticScore(&vectors[i]))
	}
	return scores
}

// jitter is in [-jitterSpan/2, jitterSpan/2) and depends only on the
// location coordinates and hour.
func jitter(v *domain.FeatureVector) float64 {
	var buf [24]byte
	if v.Location != nil {
		binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(v.Location.Lat))
		binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(v.Location.Lon))
	}
	binary.LittleEndian.PutUint64(buf[16:24], uint64(v.Hour))
	h := fnv.New64a()
	_, _ = h.Write(buf[:])
	frac := float64(h.Sum64()%10000) / 10000
	return (frac - 0.5) * jitterSpan
}
