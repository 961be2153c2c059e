package handlers

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornerculling/extension/internal/cache"
	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/culling"
	"github.com/cornerculling/extension/internal/dispatcher"
	"github.com/cornerculling/extension/internal/geometry"
	"github.com/cornerculling/extension/internal/logging"
	"github.com/cornerculling/extension/internal/mapfile"
	"github.com/cornerculling/extension/internal/session"
	"github.com/cornerculling/extension/pkg/core"
)

// mockEngine implements Engine for testing
type mockEngine struct {
	mu         sync.Mutex
	generation uint32
	cuboids    int
	spheres    int
}

func (e *mockEngine) InstallOccluders(cuboids []geometry.Cuboid, spheres []geometry.Sphere) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.cuboids = len(cuboids)
	e.spheres = len(spheres)
	return e.generation
}

func (e *mockEngine) Stats() culling.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return culling.Stats{Generation: e.generation, Occluders: e.cuboids + e.spheres}
}

// mockBackend records map loads
type mockBackend struct {
	mu       sync.Mutex
	mapLoads []core.MapLoad
}

func (b *mockBackend) Init() error                                     { return nil }
func (b *mockBackend) Close() error                                    { return nil }
func (b *mockBackend) StartSession(*core.Session) error                { return nil }
func (b *mockBackend) RecordPerformance(*core.PerformanceSample) error { return nil }
func (b *mockBackend) RecordMapLoad(m *core.MapLoad) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapLoads = append(b.mapLoads, *m)
	return nil
}

func (b *mockBackend) loads() []core.MapLoad {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.MapLoad(nil), b.mapLoads...)
}

const wallAndSphere = `AABB 0 0 0 10 100 50
Sphere 5 50 10 4
`

type fixture struct {
	svc     *Service
	engine  *mockEngine
	backend *mockBackend
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.ConfigFileName), []byte(`{}`), 0644))
	require.NoError(t, config.Load(dir))
	require.NoError(t, os.WriteFile(filepath.Join(dir, mapfile.FileName("de_wall")), []byte(wallAndSphere), 0644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{engine: &mockEngine{}, backend: &mockBackend{}, dir: dir}
	f.svc = NewService(Dependencies{
		Engine:  f.engine,
		Loader:  mapfile.NewLoader(logger, dir),
		Maps:    cache.NewMapCache(),
		Session: session.NewContext(core.NewSession("1.0.0", 8, 120)),
		Backend: f.backend,
		Logger:  logger,
		Version: "1.0.0",
	})
	return f
}

func TestLoadMap(t *testing.T) {
	f := newFixture(t)

	state, err := f.svc.LoadMap(" de_wall ")
	require.NoError(t, err)
	assert.Equal(t, "de_wall", state.Name)
	assert.EqualValues(t, 1, state.Generation)
	assert.Equal(t, 1, state.Cuboids)
	assert.Zero(t, state.Spheres, "sphere occluders are disabled by default")
	assert.False(t, state.Placeholder)
	assert.Equal(t, 1, f.engine.cuboids)
	assert.Equal(t, state, f.svc.GetSessionContext().GetMap())

	loads := f.backend.loads()
	require.Len(t, loads, 1)
	assert.Equal(t, f.svc.GetSessionContext().GetSession().ID, loads[0].SessionID)
	assert.EqualValues(t, 1, loads[0].Generation)
	assert.InDelta(t, 1000, loads[0].FootprintArea, 1e-6, "sphere lies within the wall footprint")
	assert.NotEmpty(t, loads[0].Footprint)
	assert.Contains(t, string(loads[0].Footprint), "Polygon")
}

func TestLoadMap_SphereOccluders(t *testing.T) {
	f := newFixture(t)
	viper.Set("culling.sphereOccluders", true)

	state, err := f.svc.LoadMap("de_wall")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Spheres)
	assert.Equal(t, 1, f.engine.spheres)
}

func TestLoadMap_MissingFileUsesPlaceholder(t *testing.T) {
	f := newFixture(t)

	state, err := f.svc.LoadMap("de_missing")
	require.NoError(t, err)
	assert.True(t, state.Placeholder)
	assert.Equal(t, 1, state.Cuboids)

	loads := f.backend.loads()
	require.Len(t, loads, 1)
	assert.True(t, loads[0].Placeholder)
}

func TestLoadMap_WithoutBackend(t *testing.T) {
	f := newFixture(t)
	f.svc.SetBackend(nil)

	_, err := f.svc.LoadMap("de_wall")
	require.NoError(t, err)
	assert.Empty(t, f.backend.loads())

	f.svc.SetBackend(f.backend)
	_, err = f.svc.LoadMap("de_wall")
	require.NoError(t, err)
	assert.Len(t, f.backend.loads(), 1)
}

func TestLoadMap_EmptyName(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.LoadMap("  ")
	assert.ErrorIs(t, err, mapfile.ErrEmptyName)
	assert.Zero(t, f.engine.generation)
}

func TestLoadMap_ReusesParsedMap(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.LoadMap("de_wall")
	require.NoError(t, err)

	// an edited file is not seen until the cache is dropped
	require.NoError(t, os.WriteFile(filepath.Join(f.dir, mapfile.FileName("de_wall")), []byte("AABB 0 0 0 1 1 1\nAABB 5 5 5 6 6 6\n"), 0644))
	state, err := f.svc.LoadMap("de_wall")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Cuboids)
	assert.EqualValues(t, 2, state.Generation)

	msg, err := f.svc.ReloadConfig()
	require.NoError(t, err)
	assert.Equal(t, "reloaded", msg)

	state, err = f.svc.LoadMap("de_wall")
	require.NoError(t, err)
	assert.Equal(t, 2, state.Cuboids)
}

func TestReloadConfig(t *testing.T) {
	f := newFixture(t)
	reloaded := 0
	f.svc.deps.OnReload = func() { reloaded++ }

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, config.ConfigFileName), []byte(`{"culling": {"sphereOccluders": true}}`), 0644))
	msg, err := f.svc.ReloadConfig()
	require.NoError(t, err)
	assert.Equal(t, "reloaded", msg)
	assert.Equal(t, 1, reloaded)

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, config.ConfigFileName), []byte(`{"culling": {"period": 8}}`), 0644))
	msg, err = f.svc.ReloadConfig()
	require.NoError(t, err)
	assert.Equal(t, "reloaded, restart required", msg)
	assert.Equal(t, 2, reloaded)
}

func TestReloadConfig_EnablesSpheresOnNextLoad(t *testing.T) {
	f := newFixture(t)
	ctrl, err := culling.New(config.GetCullingConfig())
	require.NoError(t, err)
	engine := culling.NewEngine(ctrl)
	f.svc.deps.Engine = engine

	state, err := f.svc.LoadMap("de_wall")
	require.NoError(t, err)
	assert.Zero(t, state.Spheres)
	assert.Equal(t, 1, engine.Stats().Occluders)

	require.NoError(t, os.WriteFile(filepath.Join(f.dir, config.ConfigFileName), []byte(`{"culling": {"sphereOccluders": true}}`), 0644))
	msg, err := f.svc.ReloadConfig()
	require.NoError(t, err)
	assert.Equal(t, "reloaded", msg)

	state, err = f.svc.LoadMap("de_wall")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Spheres)
	assert.Equal(t, 2, engine.Stats().Occluders)

	loads := f.backend.loads()
	require.Len(t, loads, 2)
	assert.Equal(t, 1, loads[1].Spheres)
}

func TestRegisterHandlers(t *testing.T) {
	f := newFixture(t)
	d, err := dispatcher.New(logging.NewCommandLogger(zerolog.Nop()))
	require.NoError(t, err)
	f.svc.RegisterHandlers(d)

	assert.Equal(t, []string{":CONFIG:RELOAD:", ":MAP:CURRENT:", ":MAP:LOAD:", ":STATS:", ":VERSION:"}, d.Commands())

	result, err := d.Dispatch(dispatcher.Command{Name: ":VERSION:"})
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", result)

	result, err = d.Dispatch(dispatcher.Command{Name: ":MAP:LOAD:", Args: []string{"de_wall"}})
	require.NoError(t, err)
	assert.Equal(t, dispatcher.Queued, result)

	// Close waits for the queued load
	d.Close()

	result, err = d.Dispatch(dispatcher.Command{Name: ":MAP:CURRENT:"})
	require.NoError(t, err)
	assert.Equal(t, "de_wall", result.(session.MapState).Name)

	result, err = d.Dispatch(dispatcher.Command{Name: ":STATS:"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, result.(culling.Stats).Generation)
}
