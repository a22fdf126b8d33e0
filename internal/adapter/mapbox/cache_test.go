package mapbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/couchcryptid/crash-risk-service/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	mu     sync.Mutex
	calls  int
	result domain.GeocodingResult
	err    error
}

func (g *countingGeocoder) ReverseGeocode(context.Context, float64, float64) (domain.GeocodingResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	return g.result, g.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCachedGeocoder_HitsCache(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{PlaceName: "Richmond", FormattedAddress: "Richmond, Virginia"}}
	m := observability.NewMetricsForTesting()
	c := NewCachedGeocoder(inner, 10, m)

	for range 3 {
		result, err := c.ReverseGeocode(context.Background(), 37.5407, -77.4360)
		require.NoError(t, err)
		assert.Equal(t, "Richmond", result.PlaceName)
	}

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GeocodeCache.WithLabelValues("miss")))
}

func TestCachedGeocoder_DoesNotCacheEmptyOrErrors(t *testing.T) {
	inner := &countingGeocoder{}
	c := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, _ = c.ReverseGeocode(context.Background(), 37.0, -74.0)
	_, _ = c.ReverseGeocode(context.Background(), 37.0, -74.0)
	assert.Equal(t, 2, inner.calls)

	inner.err = errors.New("timeout")
	_, err := c.ReverseGeocode(context.Background(), 37.0, -74.0)
	require.Error(t, err)
	assert.Zero(t, c.Len())
}

func TestCachedGeocoder_EvictsLeastRecentlyUsed(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{PlaceName: "somewhere"}}
	c := NewCachedGeocoder(inner, 2, observability.NewMetricsForTesting())
	ctx := context.Background()

	_, _ = c.ReverseGeocode(ctx, 1, 1)
	_, _ = c.ReverseGeocode(ctx, 2, 2)
	_, _ = c.ReverseGeocode(ctx, 1, 1) // 1 becomes most recent
	_, _ = c.ReverseGeocode(ctx, 3, 3) // evicts 2
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, 2, c.Len())

	_, _ = c.ReverseGeocode(ctx, 1, 1)
	assert.Equal(t, 3, inner.calls, "1 still cached")

	_, _ = c.ReverseGeocode(ctx, 2, 2)
	assert.Equal(t, 4, inner.calls, "2 was evicted")
}

func TestCachedGeocoder_WithNameLocations(t *testing.T) {
	inner := &countingGeocoder{result: domain.GeocodingResult{PlaceName: "Interstate 64"}}
	c := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())
	locs := []domain.Location{{Lat: 37.5, Lon: -77.4}, {Lat: 37.5, Lon: -77.4}, {Lat: 37.6, Lon: -77.5, Name: "Named"}}

	out := domain.NameLocations(context.Background(), locs, c, discardLogger())

	assert.Equal(t, 1, inner.calls, "duplicate coordinates are looked up once")
	assert.Equal(t, "Interstate 64", out[0].Name)
	assert.Equal(t, "Interstate 64", out[1].Name)
	assert.Equal(t, "Named", out[2].Name)
}
