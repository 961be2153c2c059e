// Package culling runs the per-tick visibility pipeline: it queues
// observer/target bundles, culls them with cached occluders and then the
// spatial index, and feeds the survivors into the hysteresis timers.
package culling

import (
	"errors"
	"fmt"
	"time"

	"github.com/gammazero/deque"

	"github.com/cornerculling/extension/internal/cache"
	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/geometry"
	"github.com/cornerculling/extension/internal/spatial"
	"github.com/cornerculling/extension/internal/visibility"
)

var (
	// ErrRosterSize is returned when a snapshot holds more characters than the roster capacity.
	ErrRosterSize = errors.New("snapshot exceeds roster capacity")
	// ErrInvalidConfig is returned for settings the pipeline cannot run with.
	ErrInvalidConfig = errors.New("invalid culling config")
)

type bundle struct {
	observer int
	target   int
	peeks    geometry.Peeks
}

// Option configures a Controller.
type Option func(*Controller)

// WithLatencyEstimator replaces the constant simulated latency.
func WithLatencyEstimator(l LatencyEstimator) Option {
	return func(c *Controller) {
		c.latency = l
	}
}

// Controller owns every piece of cross-tick culling state. It is
// single-threaded; Engine adds the locking needed by the host glue.
type Controller struct {
	cfg      config.CullingConfig
	timerMax int

	characters roster
	volumes    []geometry.PeekVolume

	generation uint32
	index      *spatial.Index
	spheres    []geometry.Sphere

	occluders *cache.OccluderCache
	timers    *visibility.Timers
	bundles   deque.Deque[bundle]

	latency  LatencyEstimator
	blocking geometry.BlockingFunc

	tick    int64
	stats   statsWindow
	metrics *metrics
}

// New creates a controller with an empty occluder set.
func New(cfg config.CullingConfig, opts ...Option) (*Controller, error) {
	if cfg.MaxCharacters <= 0 {
		return nil, fmt.Errorf("%w: maxCharacters must be positive, got %d", ErrInvalidConfig, cfg.MaxCharacters)
	}
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %d", ErrInvalidConfig, cfg.Period)
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:        cfg,
		timerMax:   cfg.EffectiveTimerMax(),
		characters: make(roster, cfg.MaxCharacters),
		volumes:    make([]geometry.PeekVolume, cfg.MaxCharacters),
		occluders:  cache.NewOccluderCache(cfg.MaxCharacters, cfg.CacheSize),
		latency:    ConstantLatency(cfg.SimulatedLatency()),
		blocking:   geometry.IsBlocking,
		stats:      statsWindow{length: int64(max(cfg.TickRate, 1))},
		metrics:    m,
	}
	c.timers = visibility.NewTimers(cfg.MaxCharacters, c.timerMax)
	if cfg.ScalarGeometry {
		c.blocking = geometry.IsBlockingScalar
	}
	for _, opt := range opts {
		opt(c)
	}
	c.InstallOccluders(nil, nil)
	return c, nil
}

// Capacity returns the roster size.
func (c *Controller) Capacity() int {
	return len(c.characters)
}

// UpdateCharacters replaces the roster. Slots past len(snapshots) become empty.
func (c *Controller) UpdateCharacters(snapshots []Character) error {
	if len(snapshots) > len(c.characters) {
		return fmt.Errorf("%w: %d > %d", ErrRosterSize, len(snapshots), len(c.characters))
	}
	n := copy(c.characters, snapshots)
	clear(c.characters[n:])

	for i := range c.characters {
		ch := &c.characters[i]
		if ch.Combatant() {
			c.volumes[i] = geometry.NewPeekVolume(ch.Eye, ch.Base, ch.Yaw, ch.Pitch, ch.Speed)
		}
	}
	return nil
}

// InstallOccluders swaps in a new occluder set, rebuilds the spatial index
// and drops every cached occluder. It returns the new generation. Spheres
// are installed as given; callers decide whether sphere occluders are on.
func (c *Controller) InstallOccluders(cuboids []geometry.Cuboid, spheres []geometry.Sphere) uint32 {
	c.generation++
	c.occluders.Clear()
	c.index = spatial.Build(cuboids, c.generation)
	c.spheres = spheres
	return c.generation
}

// Generation returns the current occluder-set generation.
func (c *Controller) Generation() uint32 {
	return c.generation
}

// Tick runs one pass of the pipeline.
func (c *Controller) Tick() {
	start := time.Now()
	c.tick++

	var counts TickCounts
	c.populate(&counts)
	c.cullWithCache(&counts)
	c.cullWithSpheres(&counts)
	c.cullWithIndex(&counts)
	c.updateVisibility(&counts)

	elapsed := time.Since(start)
	c.stats.add(elapsed, counts)
	c.metrics.record(elapsed, counts)
}

// lateralBudget bounds how far the observer may have strafed since the
// snapshot its client is rendering.
func (c *Controller) lateralBudget(observer int) float64 {
	lookahead := min(c.latency.Latency(observer), c.cfg.MaxLookahead)
	speed := min(c.characters[observer].Speed+c.cfg.SpeedMargin, c.cfg.MaxSpeed)
	return lookahead.Seconds() * speed
}

// populate queues a bundle for every hostile pair of this tick's observers
// whose timer is close enough to expiring to need re-evaluation.
func (c *Controller) populate(counts *TickCounts) {
	c.bundles.Clear()
	period := c.cfg.Period
	for i := range c.characters {
		if (i+int(c.tick%int64(period)))%period != 0 || !c.characters[i].Combatant() {
			continue
		}
		eye := c.characters[i].Eye
		lateral := c.lateralBudget(i)
		for j := range c.characters {
			if !visibility.Hostile(c.characters, i, j) || c.timers.Get(i, j) > period {
				continue
			}
			c.bundles.PushBack(bundle{
				observer: i,
				target:   j,
				peeks:    geometry.PossiblePeeks(eye, c.characters[j].Eye, lateral, c.cfg.VerticalDisplacement),
			})
		}
	}
	counts.Bundles = c.bundles.Len()
}

func (c *Controller) cullWithCache(counts *TickCounts) {
	for n := c.bundles.Len(); n > 0; n-- {
		b := c.bundles.PopFront()
		if c.occluders.TryBlock(b.observer, b.target, c.tick, &b.peeks, &c.volumes[b.target], c.index, c.blocking) {
			counts.CacheHits++
			continue
		}
		c.bundles.PushBack(b)
	}
}

func (c *Controller) cullWithSpheres(counts *TickCounts) {
	if len(c.spheres) == 0 {
		return
	}
	for n := c.bundles.Len(); n > 0; n-- {
		b := c.bundles.PopFront()
		if c.blockedBySphere(&b) {
			counts.SphereHits++
			continue
		}
		c.bundles.PushBack(b)
	}
}

func (c *Controller) blockedBySphere(b *bundle) bool {
	for i := range c.spheres {
		if geometry.IsBlockingSphere(&b.peeks, &c.volumes[b.target], &c.spheres[i]) {
			return true
		}
	}
	return false
}

func (c *Controller) cullWithIndex(counts *TickCounts) {
	if c.index.Len() == 0 {
		return
	}
	for n := c.bundles.Len(); n > 0; n-- {
		b := c.bundles.PopFront()
		ref, ok := c.index.FindBlocking(
			c.characters[b.observer].Eye,
			c.characters[b.target].Eye,
			&b.peeks,
			&c.volumes[b.target],
			c.blocking,
		)
		if ok {
			c.occluders.Record(b.observer, b.target, ref, c.tick)
			counts.IndexHits++
			continue
		}
		c.bundles.PushBack(b)
	}
}

func (c *Controller) updateVisibility(counts *TickCounts) {
	counts.Visible = c.bundles.Len()
	for c.bundles.Len() > 0 {
		b := c.bundles.PopFront()
		c.timers.Reset(b.observer, b.target)
	}
	c.timers.DecayAll(c.characters)
}

// IsVisible reports whether target may be sent to observer's client.
func (c *Controller) IsVisible(observer, target int) bool {
	if observer < 0 || target < 0 || observer >= len(c.characters) || target >= len(c.characters) {
		return false
	}
	return c.timers.IsVisible(c.characters, observer, target)
}

// VisibilityMatrix writes IsVisible for the first n slots, row-major by
// observer, into out, which must hold n*n entries.
func (c *Controller) VisibilityMatrix(n int, out []bool) {
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			out[i*n+j] = c.IsVisible(i, j)
		}
	}
}

// CachedOccluders returns the occluder refs remembered for a pair.
func (c *Controller) CachedOccluders(observer, target int) []spatial.Ref {
	return c.occluders.Entries(observer, target)
}

// Stats returns the benchmark figures collected so far.
func (c *Controller) Stats() Stats {
	return Stats{
		Ticks:          c.stats.ticks,
		Generation:     c.generation,
		Occluders:      c.index.Len() + len(c.spheres),
		RollingAverage: c.stats.rollingAvg,
		RollingMax:     c.stats.rollingMax,
		OverallAverage: c.stats.overallAverage(),
		Last:           c.stats.last,
	}
}
