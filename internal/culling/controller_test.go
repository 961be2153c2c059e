package culling

import (
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/geometry"
)

func testConfig() config.CullingConfig {
	return config.CullingConfig{
		MaxCharacters:         4,
		TickRate:              120,
		SimulatedLatencyTicks: 12,
		Period:                4,
		CacheSize:             3,
		MaxLookahead:          250 * time.Millisecond,
		MaxSpeed:              450,
		SpeedMargin:           100,
		VerticalDisplacement:  20,
	}
}

func player(team int, x, y, eyeZ, yaw float64) Character {
	return Character{
		Team:  team,
		Alive: true,
		Eye:   mgl64.Vec3{x, y, eyeZ},
		Base:  mgl64.Vec3{x, y, eyeZ - 64},
		Yaw:   yaw,
	}
}

func twoWalls() []geometry.Cuboid {
	return []geometry.Cuboid{
		geometry.NewBox(mgl64.Vec3{800, -300, -1000}, mgl64.Vec3{1000, 300, 1000}),
		geometry.NewBox(mgl64.Vec3{1800, -300, -1000}, mgl64.Vec3{2000, 300, 1000}),
	}
}

func facingPair() []Character {
	return []Character{
		player(2, 0, 0, 64, 0),
		player(3, 2800, 0, 64, 180),
	}
}

func newController(t *testing.T, cfg config.CullingConfig, opts ...Option) *Controller {
	t.Helper()
	c, err := New(cfg, opts...)
	require.NoError(t, err)
	return c
}

func run(t *testing.T, c *Controller, snapshots []Character, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		require.NoError(t, c.UpdateCharacters(snapshots))
		c.Tick()
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		edit func(*config.CullingConfig)
	}{
		{"zero characters", func(c *config.CullingConfig) { c.MaxCharacters = 0 }},
		{"zero period", func(c *config.CullingConfig) { c.Period = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.edit(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestUpdateCharacters_RosterSize(t *testing.T) {
	c := newController(t, testConfig())
	err := c.UpdateCharacters(make([]Character, 5))
	assert.ErrorIs(t, err, ErrRosterSize)
	assert.NoError(t, c.UpdateCharacters(make([]Character, 4)))
}

func TestTick_InitiallyHidden(t *testing.T) {
	c := newController(t, testConfig())
	require.NoError(t, c.UpdateCharacters(facingPair()))

	assert.False(t, c.IsVisible(0, 1))
	assert.False(t, c.IsVisible(1, 0))
}

func TestTick_TwoWallsHideBothWays(t *testing.T) {
	for _, scalar := range []bool{false, true} {
		cfg := testConfig()
		cfg.ScalarGeometry = scalar
		c := newController(t, cfg)
		c.InstallOccluders(twoWalls(), nil)

		run(t, c, facingPair(), cfg.Period)

		assert.False(t, c.IsVisible(0, 1), "scalar=%v", scalar)
		assert.False(t, c.IsVisible(1, 0), "scalar=%v", scalar)
	}
}

func TestTick_OpenFieldVisible(t *testing.T) {
	c := newController(t, testConfig())
	run(t, c, facingPair(), 4)

	assert.True(t, c.IsVisible(0, 1))
	assert.True(t, c.IsVisible(1, 0))
	assert.Empty(t, c.CachedOccluders(0, 1))
}

func TestTick_WaistHighGap(t *testing.T) {
	wall := []geometry.Cuboid{
		geometry.NewBox(mgl64.Vec3{450, -500, 40}, mgl64.Vec3{550, 500, 2000}),
	}
	tests := []struct {
		name    string
		eyeZ    float64
		visible bool
	}{
		{"standing on a ledge", 200, false},
		{"crouched behind the gap", 64, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxLookahead = 0
			cfg.VerticalDisplacement = 10
			c := newController(t, cfg)
			c.InstallOccluders(wall, nil)

			snapshots := []Character{
				player(2, 0, 0, tt.eyeZ, 0),
				player(3, 1000, 0, 64, 180),
			}
			run(t, c, snapshots, cfg.Period)

			assert.Equal(t, tt.visible, c.IsVisible(0, 1))
		})
	}
}

func TestTick_SameTeamAlwaysVisible(t *testing.T) {
	c := newController(t, testConfig())
	c.InstallOccluders(twoWalls(), nil)
	snapshots := []Character{
		player(2, 0, 0, 64, 0),
		player(2, 2800, 0, 64, 180),
	}
	run(t, c, snapshots, 4)

	assert.True(t, c.IsVisible(0, 1))
	assert.True(t, c.IsVisible(1, 0))
	assert.Zero(t, c.Stats().Last.Bundles)
}

func TestTick_StaggersObservers(t *testing.T) {
	c := newController(t, testConfig())
	snapshots := []Character{
		player(2, 0, 0, 64, 0),
		player(3, 100, 0, 64, 180),
		player(3, 200, 0, 64, 180),
		player(3, 300, 0, 64, 180),
	}

	// tick 1 evaluates slot 3, tick 2 slot 2, tick 3 slot 1, tick 4 slot 0.
	want := []int{1, 1, 1, 3}
	for tick, n := range want {
		run(t, c, snapshots, 1)
		assert.Equal(t, n, c.Stats().Last.Bundles, "tick %d", tick+1)
	}
	assert.EqualValues(t, 4, c.Stats().Ticks)
}

func TestTick_Hysteresis(t *testing.T) {
	cfg := testConfig()
	c := newController(t, cfg)
	run(t, c, facingPair(), cfg.Period)
	require.True(t, c.IsVisible(0, 1))

	c.InstallOccluders(twoWalls(), nil)
	run(t, c, facingPair(), 1)
	assert.True(t, c.IsVisible(0, 1), "a freshly blocked pair stays visible until its timer runs out")

	run(t, c, facingPair(), cfg.EffectiveTimerMax())
	assert.False(t, c.IsVisible(0, 1))
}

func TestTick_CachesBlockingOccluder(t *testing.T) {
	c := newController(t, testConfig())
	gen := c.InstallOccluders(twoWalls(), nil)

	run(t, c, facingPair(), 4)
	refs := c.CachedOccluders(0, 1)
	require.Len(t, refs, 1)
	assert.Equal(t, gen, refs[0].Generation)
	assert.Equal(t, 1, c.Stats().Last.IndexHits)

	// slot 0 comes round again on tick 8 and is culled from the cache.
	run(t, c, facingPair(), 4)
	last := c.Stats().Last
	assert.Equal(t, 1, last.Bundles)
	assert.Equal(t, 1, last.CacheHits)
	assert.Zero(t, last.IndexHits)
}

func TestInstallOccluders_Reload(t *testing.T) {
	c := newController(t, testConfig())
	assert.EqualValues(t, 1, c.Generation())

	gen := c.InstallOccluders(twoWalls(), nil)
	assert.EqualValues(t, 2, gen)
	run(t, c, facingPair(), 4)
	require.False(t, c.IsVisible(0, 1))
	require.NotEmpty(t, c.CachedOccluders(0, 1))

	gen = c.InstallOccluders(nil, nil)
	assert.EqualValues(t, 3, gen)
	assert.Empty(t, c.CachedOccluders(0, 1))

	run(t, c, facingPair(), 4)
	assert.True(t, c.IsVisible(0, 1))
	assert.True(t, c.IsVisible(1, 0))
	assert.Zero(t, c.Stats().Occluders)
}

func TestTick_SphereOccluder(t *testing.T) {
	cfg := testConfig()
	cfg.Period = 1
	cfg.SphereOccluders = true
	c := newController(t, cfg)
	c.InstallOccluders(nil, []geometry.Sphere{{Center: mgl64.Vec3{1400, 0, 64}, Radius: 300}})

	run(t, c, facingPair(), 1)

	last := c.Stats().Last
	assert.Equal(t, 2, last.Bundles)
	assert.Equal(t, 2, last.SphereHits)
	assert.False(t, c.IsVisible(0, 1))
	assert.Equal(t, 1, c.Stats().Occluders)
}

func TestInstallOccluders_SpheresIndependentOfStartupConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Period = 1
	cfg.SphereOccluders = false
	c := newController(t, cfg)
	c.InstallOccluders(nil, []geometry.Sphere{{Center: mgl64.Vec3{1400, 0, 64}, Radius: 300}})

	run(t, c, facingPair(), 1)
	assert.Equal(t, 1, c.Stats().Occluders)
	assert.False(t, c.IsVisible(0, 1))

	c.InstallOccluders(nil, nil)
	run(t, c, facingPair(), 1)
	assert.Zero(t, c.Stats().Occluders)
	assert.True(t, c.IsVisible(0, 1))
}

type fixedLatency map[int]time.Duration

func (f fixedLatency) Latency(observer int) time.Duration {
	return f[observer]
}

func TestLateralBudget(t *testing.T) {
	tests := []struct {
		name    string
		latency time.Duration
		speed   float64
		want    float64
	}{
		{"standing still", 100 * time.Millisecond, 0, 10},
		{"speed capped", 100 * time.Millisecond, 400, 45},
		{"lookahead capped", time.Second, 0, 25},
		{"no latency", 0, 250, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, testConfig(), WithLatencyEstimator(fixedLatency{0: tt.latency}))
			ch := player(2, 0, 0, 64, 0)
			ch.Speed = tt.speed
			require.NoError(t, c.UpdateCharacters([]Character{ch}))

			assert.InDelta(t, tt.want, c.lateralBudget(0), 1e-9)
		})
	}
}

func TestVisibilityMatrix(t *testing.T) {
	c := newController(t, testConfig())
	snapshots := append(facingPair(), player(2, 50, 0, 64, 0))
	run(t, c, snapshots, 4)

	out := make([]bool, 9)
	c.VisibilityMatrix(3, out)
	assert.Equal(t, []bool{
		true, true, true,
		true, true, true,
		true, true, true,
	}, out)

	c.InstallOccluders(twoWalls(), nil)
	run(t, c, snapshots, 4+c.timerMax)
	c.VisibilityMatrix(3, out)
	assert.Equal(t, []bool{
		true, false, true,
		false, true, false,
		true, false, true,
	}, out)
}

func TestStats(t *testing.T) {
	cfg := testConfig()
	cfg.TickRate = 2
	c := newController(t, cfg)
	c.InstallOccluders(twoWalls(), nil)

	run(t, c, facingPair(), 3)

	s := c.Stats()
	assert.EqualValues(t, 3, s.Ticks)
	assert.EqualValues(t, 2, s.Generation)
	assert.Equal(t, 2, s.Occluders)
	assert.GreaterOrEqual(t, s.RollingMax, s.RollingAverage)
}
