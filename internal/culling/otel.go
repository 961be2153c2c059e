package culling

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/cornerculling/extension/internal/culling"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	tickDuration metric.Float64Histogram
	bundles      metric.Int64Counter
	cacheHits    metric.Int64Counter
	indexHits    metric.Int64Counter
	sphereHits   metric.Int64Counter
	visible      metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := meter()
	var (
		out metrics
		err error
	)

	out.tickDuration, err = m.Float64Histogram(
		"culling.tick.duration",
		metric.WithDescription("Time spent in one culling tick"),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick duration histogram: %w", err)
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&out.bundles, "culling.bundles", "Bundles queued for evaluation"},
		{&out.cacheHits, "culling.cache.hits", "Bundles culled by a cached occluder"},
		{&out.indexHits, "culling.index.hits", "Bundles culled through the spatial index"},
		{&out.sphereHits, "culling.sphere.hits", "Bundles culled by a sphere occluder"},
		{&out.visible, "culling.visible", "Bundles that survived every pass"},
	}
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
	}

	return &out, nil
}

func (m *metrics) record(d time.Duration, counts TickCounts) {
	ctx := context.Background()
	m.tickDuration.Record(ctx, float64(d.Microseconds()))
	if counts.Bundles == 0 {
		return
	}
	m.bundles.Add(ctx, int64(counts.Bundles))
	m.cacheHits.Add(ctx, int64(counts.CacheHits))
	m.indexHits.Add(ctx, int64(counts.IndexHits))
	m.sphereHits.Add(ctx, int64(counts.SphereHits))
	m.visible.Add(ctx, int64(counts.Visible))
}
