// Package pipeline is the prediction orchestrator: it serves a date's
// prediction set from the cache tiers and otherwise generates, scores,
// normalizes and stores it, running at most one computation per date.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/couchcryptid/crash-risk-service/internal/observability"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"
)

// LocationSource provides the set of locations to predict for.
type LocationSource interface {
	Locations(ctx context.Context) ([]domain.Location, error)
}

// Scorer turns feature vectors into raw scores, one per vector, in order.
type Scorer interface {
	Score(ctx context.Context, vectors []domain.FeatureVector) []domain.RawScore
}

// Cache stores finalized prediction sets by date.
type Cache interface {
	Get(ctx context.Context, date string) (domain.CacheEntry, bool, error)
	Put(ctx context.Context, entry domain.CacheEntry) error
	Invalidate(ctx context.Context, date string) error
}

// Publisher announces freshly computed prediction sets.
type Publisher interface {
	Publish(ctx context.Context, set domain.ComputedSet) error
}

// Option configures optional Pipeline collaborators.
type Option func(*Pipeline)

// WithPublisher publishes every fresh computation.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithGeocoder names unnamed locations when they are first loaded.
func WithGeocoder(g domain.Geocoder) Option {
	return func(p *Pipeline) { p.geocoder = g }
}

// WithClock sets the time source that stamps computed sets. Defaults to
// real time.
func WithClock(c clockwork.Clock) Option {
	return func(p *Pipeline) { p.clock = c }
}

// Pipeline orchestrates cache lookup and prediction computation.
type Pipeline struct {
	source    LocationSource
	scorer    Scorer
	cache     Cache
	envelope  domain.Envelope
	publisher Publisher
	geocoder  domain.Geocoder
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	flights   singleflight.Group
	locFlight singleflight.Group

	locMu     sync.Mutex
	locations []domain.Location
	ready     atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(source LocationSource, scorer Scorer, cache Cache, envelope domain.Envelope, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Pipeline {
	p := &Pipeline{
		source:   source,
		scorer:   scorer,
		cache:    cache,
		envelope: envelope,
		clock:    clockwork.NewRealClock(),
		logger:   logger,
		metrics:  metrics,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type result struct {
	entry domain.CacheEntry
	fresh bool
}

// GetPredictions returns the prediction set for dateInput, computing it on a
// cache miss. Concurrent misses for the same date share one computation. If
// ctx ends first the caller stops waiting but the computation continues and
// still populates the cache. The returned slice is shared and must not be
// modified.
func (p *Pipeline) GetPredictions(ctx context.Context, dateInput string) ([]domain.Prediction, error) {
	date, err := domain.CanonicalDate(dateInput)
	if err != nil {
		p.outcome("invalid")
		return nil, err
	}

	if entry, ok := p.lookup(ctx, date); ok {
		p.outcome("hit")
		return entry.Predictions, nil
	}

	computeCtx := context.WithoutCancel(ctx)
	ch := p.flights.DoChan(date, func() (any, error) {
		return p.compute(computeCtx, date)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			p.outcome(errorOutcome(res.Err))
			return nil, res.Err
		}
		r := res.Val.(result)
		switch {
		case !r.fresh:
			p.outcome("hit")
		case res.Shared:
			p.outcome("coalesced")
		default:
			p.outcome("computed")
		}
		return r.entry.Predictions, nil
	case <-ctx.Done():
		p.outcome("abandoned")
		p.logger.Info("caller stopped waiting, computation continues", "date", date, "error", ctx.Err())
		return nil, fmt.Errorf("waiting for predictions for %s: %w", date, ctx.Err())
	}
}

// Invalidate drops dateInput from both cache tiers so the next request
// recomputes it.
func (p *Pipeline) Invalidate(ctx context.Context, dateInput string) error {
	date, err := domain.CanonicalDate(dateInput)
	if err != nil {
		return err
	}
	return p.cache.Invalidate(ctx, date)
}

// CheckReadiness returns nil once the location set has been loaded.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("location set has not been loaded yet")
	}
	return nil
}

// Warm loads the location set ahead of the first request.
func (p *Pipeline) Warm(ctx context.Context) error {
	_, err := p.loadLocations(ctx)
	return err
}

func (p *Pipeline) lookup(ctx context.Context, date string) (domain.CacheEntry, bool) {
	entry, ok, err := p.cache.Get(ctx, date)
	if err != nil {
		p.logger.Warn("cache lookup failed", "date", date, "error", err)
		return domain.CacheEntry{}, false
	}
	return entry, ok
}

// compute runs inside the single flight for date.
func (p *Pipeline) compute(ctx context.Context, date string) (result, error) {
	// A flight that finished just before this one started has already
	// stored the set.
	if entry, ok := p.lookup(ctx, date); ok {
		return result{entry: entry}, nil
	}

	p.metrics.ComputationsInFlight.Inc()
	defer p.metrics.ComputationsInFlight.Dec()
	start := p.clock.Now()

	locations, err := p.loadLocations(ctx)
	if err != nil {
		p.logger.Error("prediction computation failed", "date", date, "error", err)
		return result{}, err
	}

	vectors, err := domain.GenerateFeatures(locations, date)
	if err != nil {
		return result{}, fmt.Errorf("%w: generate features for %s: %w", domain.ErrComputation, date, err)
	}

	scores := p.scorer.Score(ctx, vectors)
	if len(scores) != len(vectors) {
		err := fmt.Errorf("%w: scorer returned %d scores for %d feature vectors", domain.ErrComputation, len(scores), len(vectors))
		p.logger.Error("prediction computation failed", "date", date, "error", err)
		return result{}, err
	}

	preds, stats := domain.Normalize(scores, p.envelope)
	p.recordDropped(stats)
	if malformed := stats.MissingLocation + stats.NonFinite; malformed > 0 && malformed == len(scores) {
		err := fmt.Errorf("%w: all %d scores were malformed", domain.ErrComputation, malformed)
		p.logger.Error("prediction computation failed", "date", date, "error", err)
		return result{}, err
	}

	entry := domain.CacheEntry{Date: date, Predictions: preds, CreatedAt: p.clock.Now().UTC()}
	if err := p.cache.Put(ctx, entry); err != nil {
		p.logger.Warn("cache write failed, serving from fast tier only", "date", date, "error", err)
	}

	runID := uuid.NewString()
	elapsed := p.clock.Since(start)
	p.metrics.ComputationDuration.Observe(elapsed.Seconds())
	p.logger.Info("predictions computed",
		"date", date,
		"run_id", runID,
		"locations", len(locations),
		"predictions", len(preds),
		"dropped", stats.Dropped(),
		"synthetic", entry.Synthetic(),
		"duration", elapsed,
	)

	p.publish(ctx, runID, entry)
	return result{entry: entry, fresh: true}, nil
}

// loadLocations returns the named location set, loading it on first use.
// Concurrent loads share one call to the source and geocoder, and locMu is
// only held to read or publish the result. A caller whose ctx ends stops
// waiting while the load carries on. Failed or empty loads are not
// remembered, so the next request tries again.
func (p *Pipeline) loadLocations(ctx context.Context) ([]domain.Location, error) {
	if locs := p.loadedLocations(); locs != nil {
		return locs, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := p.locFlight.DoChan("locations", func() (any, error) {
		if locs := p.loadedLocations(); locs != nil {
			return locs, nil
		}
		locs, err := p.source.Locations(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("%w: load locations: %w", domain.ErrComputation, err)
		}
		if len(locs) == 0 {
			return nil, fmt.Errorf("%w: location set is empty", domain.ErrNotFound)
		}
		named := domain.NameLocations(loadCtx, locs, p.geocoder, p.logger)

		p.locMu.Lock()
		p.locations = named
		p.locMu.Unlock()
		p.ready.Store(true)
		p.logger.Info("location set loaded", "locations", len(named))
		return named, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Location), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for location set: %w", ctx.Err())
	}
}

func (p *Pipeline) loadedLocations() []domain.Location {
	p.locMu.Lock()
	defer p.locMu.Unlock()
	return p.locations
}

func (p *Pipeline) publish(ctx context.Context, runID string, entry domain.CacheEntry) {
	if p.publisher == nil {
		return
	}
	set := domain.ComputedSet{
		RunID:       runID,
		Date:        entry.Date,
		ComputedAt:  entry.CreatedAt,
		Count:       len(entry.Predictions),
		Synthetic:   entry.Synthetic(),
		Predictions: entry.Predictions,
	}
	if err := p.publisher.Publish(ctx, set); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Warn("publish prediction set failed", "date", entry.Date, "run_id", runID, "error", err)
	}
}

func (p *Pipeline) recordDropped(stats domain.NormalizeStats) {
	if stats.OutsideEnvelope > 0 {
		p.metrics.PredictionsDropped.WithLabelValues("envelope").Add(float64(stats.OutsideEnvelope))
	}
	if stats.MissingLocation > 0 {
		p.metrics.PredictionsDropped.WithLabelValues("missing_location").Add(float64(stats.MissingLocation))
	}
	if stats.NonFinite > 0 {
		p.metrics.PredictionsDropped.WithLabelValues("non_finite").Add(float64(stats.NonFinite))
	}
}

func (p *Pipeline) outcome(o string) {
	p.metrics.PredictionRequests.WithLabelValues(o).Inc()
}

func errorOutcome(err error) string {
	if errors.Is(err, domain.ErrNotFound) {
		return "not_found"
	}
	return "error"
}
