// Package cache implements the two-tier prediction cache: a TTL-bound
// in-process tier in front of a durable store keyed by canonical date.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/couchcryptid/crash-risk-service/internal/observability"
)

// Store is the persistent tier. Entries never expire on their own.
type Store interface {
	Load(ctx context.Context, date string) (domain.CacheEntry, bool, error)
	Save(ctx context.Context, entry domain.CacheEntry) error
	Delete(ctx context.Context, date string) error
}

const (
	tierFast       = "fast"
	tierPersistent = "persistent"
)

// Tiered consults the fast tier, then the persistent tier, promoting
// persistent hits into the fast tier.
type Tiered struct {
	fast       *Memory
	persistent Store
	envelope   domain.Envelope
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewTiered composes the two tiers. Persistent entries are checked against
// envelope before they are served.
func NewTiered(fast *Memory, persistent Store, envelope domain.Envelope, logger *slog.Logger, metrics *observability.Metrics) *Tiered {
	return &Tiered{fast: fast, persistent: persistent, envelope: envelope, logger: logger, metrics: metrics}
}

// Get looks up the entry for date, which may be in any accepted date form.
// Persistent-tier read errors are logged and treated as a miss, as are
// persistent entries with any row that breaks the prediction invariants, so
// the date is recomputed and the stored set replaced.
func (c *Tiered) Get(ctx context.Context, date string) (domain.CacheEntry, bool, error) {
	key, err := domain.CanonicalDate(date)
	if err != nil {
		return domain.CacheEntry{}, false, err
	}

	if entry, ok := c.fast.Get(key); ok {
		c.lookup(tierFast, "hit")
		return entry, true, nil
	}
	c.lookup(tierFast, "miss")

	entry, ok, err := c.persistent.Load(ctx, key)
	switch {
	case err != nil:
		c.lookup(tierPersistent, "error")
		c.logger.Warn("persistent cache read failed", "date", key, "error", err)
		return domain.CacheEntry{}, false, nil
	case !ok:
		c.lookup(tierPersistent, "miss")
		return domain.CacheEntry{}, false, nil
	}
	preds, stats := domain.Revalidate(entry.Predictions, key, c.envelope)
	if stats.Dropped() > 0 {
		c.lookup(tierPersistent, "invalid")
		c.recordDropped(stats)
		c.logger.Warn("persistent cache entry failed validation, recomputing",
			"date", key,
			"predictions", len(entry.Predictions),
			"outside_envelope", stats.OutsideEnvelope,
			"out_of_range", stats.OutOfRange,
			"non_finite", stats.NonFinite,
		)
		return domain.CacheEntry{}, false, nil
	}
	c.lookup(tierPersistent, "hit")

	entry.Date = key
	entry.Predictions = preds
	if !c.fast.Set(key, entry) {
		c.metrics.CacheWriteErrors.WithLabelValues(tierFast).Inc()
		c.logger.Warn("fast cache rejected promoted entry", "date", key, "predictions", len(entry.Predictions))
	}
	return entry, true, nil
}

// Put writes entry to both tiers under its canonical date. A persistent-tier
// failure is returned after the fast tier has been written, so the entry is
// still served for the fast tier's TTL.
func (c *Tiered) Put(ctx context.Context, entry domain.CacheEntry) error {
	key, err := domain.CanonicalDate(entry.Date)
	if err != nil {
		return err
	}
	entry.Date = key

	if !c.fast.Set(key, entry) {
		c.metrics.CacheWriteErrors.WithLabelValues(tierFast).Inc()
		c.logger.Warn("fast cache rejected entry", "date", key, "predictions", len(entry.Predictions))
	}
	if err := c.persistent.Save(ctx, entry); err != nil {
		c.metrics.CacheWriteErrors.WithLabelValues(tierPersistent).Inc()
		return fmt.Errorf("persistent cache write for %s: %w", key, err)
	}
	return nil
}

// Invalidate removes date from both tiers.
func (c *Tiered) Invalidate(ctx context.Context, date string) error {
	key, err := domain.CanonicalDate(date)
	if err != nil {
		return err
	}
	c.fast.Delete(key)
	if err := c.persistent.Delete(ctx, key); err != nil {
		return fmt.Errorf("persistent cache delete for %s: %w", key, err)
	}
	c.logger.Info("cache entry invalidated", "date", key)
	return nil
}

func (c *Tiered) recordDropped(stats domain.NormalizeStats) {
	for reason, n := range map[string]int{
		"envelope":     stats.OutsideEnvelope,
		"out_of_range": stats.OutOfRange,
		"non_finite":   stats.NonFinite,
	} {
		if n > 0 {
			c.metrics.PredictionsDropped.WithLabelValues(reason).Add(float64(n))
		}
	}
}

func (c *Tiered) lookup(tier, result string) {
	c.metrics.CacheLookups.WithLabelValues(tier, result).Inc()
}
