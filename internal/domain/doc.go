// Package domain models hourly crash-risk predictions for Virginia road locations.
//
// # Data Flow
//
// A prediction set is computed for one calendar date. Every configured
// [Location] is crossed with the 24 hours of that date to produce one
// [FeatureVector] per (location, hour) pair. The vectors are scored by an
// external model (see the scoring package), each score arriving as a
// [RawScore] tagged with how it was interpreted. [Normalize] turns the raw
// scores into [Prediction] records, and the finished set is cached as a
// [CacheEntry] under the canonical date key.
//
// # Dates
//
// Requests may name a date as "2025-11-22", "11/22/2025" or "11-22-2025".
// [ParseDate] accepts all three and [CanonicalDate] renders the single
// YYYY-MM-DD form used for cache keys and for the Prediction.Date field, so
// every spelling of a date resolves to the same cache entry.
//
// # Features
//
// Hour of day and day of week are encoded both as integers and as sine/cosine
// pairs over their period (24 and 7), which keeps 23:00 next to 00:00 and
// Sunday next to Monday. Rush-hour and night indicators use fixed windows:
//
//	morning rush: 07:00–09:59
//	evening rush: 16:00–18:59
//	night:        22:00–05:59
//
// Static per-location attributes (coordinates and road-class indicators) are
// copied into every row for that location. See [FeatureColumns] for the exact
// column order handed to the model.
//
// # Probability and Confidence
//
// Scores are clamped into [0,1] regardless of provenance. Confidence is
//
//	round(100 * max(p, 1-p))
//
// which is 50 at p = 0.5 and 100 at either extreme. It measures distance from
// a neutral prediction, not statistical calibration; downstream consumers
// depend on this exact scale.
//
// # Envelope
//
// An [Envelope] is a rectangular latitude/longitude bounding box. Predictions
// for locations outside it are dropped during normalization. The default
// envelope covers Virginia: latitude 36.5–39.5, longitude -83.7 to -75.2.
package domain
