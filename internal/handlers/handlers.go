package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cornerculling/extension/internal/cache"
	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/culling"
	"github.com/cornerculling/extension/internal/dispatcher"
	"github.com/cornerculling/extension/internal/geometry"
	"github.com/cornerculling/extension/internal/mapfile"
	"github.com/cornerculling/extension/internal/session"
	"github.com/cornerculling/extension/internal/storage"
	"github.com/cornerculling/extension/pkg/core"
)

// ErrMissingArgument is returned when a command arrives without its argument
var ErrMissingArgument = errors.New("missing argument")

// Engine is the part of the culling engine the handlers drive
type Engine interface {
	InstallOccluders(cuboids []geometry.Cuboid, spheres []geometry.Sphere) uint32
	Stats() culling.Stats
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Engine  Engine
	Loader  *mapfile.Loader
	Maps    *cache.MapCache
	Session *session.Context
	Backend storage.Backend // optional, may be set later with SetBackend
	Logger  *slog.Logger
	Version string

	// OnReload runs after the config file was re-read, to re-apply
	// settings that can change at runtime
	OnReload func()
}

// Service provides the command handlers of the host command channel
type Service struct {
	deps Dependencies

	mu      sync.RWMutex
	backend storage.Backend
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Maps == nil {
		deps.Maps = cache.NewMapCache()
	}
	return &Service{deps: deps, backend: deps.Backend}
}

// SetBackend sets the storage backend map loads are recorded to
func (s *Service) SetBackend(b storage.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

func (s *Service) getBackend() storage.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

// GetSessionContext returns the session context
func (s *Service) GetSessionContext() *session.Context {
	return s.deps.Session
}

// RegisterHandlers registers every command with the dispatcher.
// Map loads run on a dispatcher worker, off the tick thread.
func (s *Service) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(":VERSION:", func(dispatcher.Command) (any, error) {
		return s.deps.Version, nil
	})
	// only the newest pending load matters once one is in progress
	d.Register(":MAP:LOAD:", func(c dispatcher.Command) (any, error) {
		if len(c.Args) == 0 {
			return nil, fmt.Errorf("%w: map name", ErrMissingArgument)
		}
		_, err := s.LoadMap(c.Arg(0))
		return nil, err
	}, dispatcher.Async(1), dispatcher.LatestWins(), dispatcher.Logged())
	d.Register(":MAP:CURRENT:", func(dispatcher.Command) (any, error) {
		return s.deps.Session.GetMap(), nil
	})
	d.Register(":STATS:", func(dispatcher.Command) (any, error) {
		return s.deps.Engine.Stats(), nil
	})
	d.Register(":CONFIG:RELOAD:", func(dispatcher.Command) (any, error) {
		return s.ReloadConfig()
	}, dispatcher.Logged())
}

// LoadMap parses (or reuses) the occluder file for name and installs it
// into the engine. A missing file installs the placeholder map.
func (s *Service) LoadMap(name string) (session.MapState, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return session.MapState{}, mapfile.ErrEmptyName
	}

	start := time.Now()
	m, cached := s.deps.Maps.Get(name)
	if !cached {
		var err error
		m, err = s.deps.Loader.Load(name)
		if err != nil {
			return session.MapState{}, fmt.Errorf("failed to load map %s: %w", name, err)
		}
		s.deps.Maps.Set(name, m)
	}
	parseTime := time.Since(start)

	// spheres stay parsed so toggling them on only needs a reload
	var spheres []geometry.Sphere
	if config.GetCullingConfig().SphereOccluders {
		spheres = m.Spheres
	}
	generation := s.deps.Engine.InstallOccluders(m.Cuboids, spheres)

	state := session.MapState{
		Name:        m.Name,
		Path:        m.Path,
		Generation:  generation,
		Placeholder: m.Placeholder,
		Cuboids:     len(m.Cuboids),
		Spheres:     len(spheres),
		LoadedAt:    time.Now().UTC(),
	}
	s.deps.Session.SetMap(state)

	s.deps.Logger.Info("Installed map",
		"map", state.Name,
		"generation", generation,
		"cuboids", state.Cuboids,
		"spheres", state.Spheres,
		"placeholder", state.Placeholder,
		"cached", cached,
		"duration", parseTime)

	if backend := s.getBackend(); backend != nil {
		record, err := s.mapLoadRecord(m, state, parseTime)
		if err != nil {
			s.deps.Logger.Warn("Failed to encode map footprint", "map", name, "error", err)
		}
		if err := backend.RecordMapLoad(&record); err != nil {
			s.deps.Logger.Error("Failed to record map load", "map", name, "error", err)
		}
	}
	return state, nil
}

func (s *Service) mapLoadRecord(m *mapfile.Map, state session.MapState, parseTime time.Duration) (core.MapLoad, error) {
	record := core.MapLoad{
		ID:          uuid.New(),
		SessionID:   s.deps.Session.GetSession().ID,
		Time:        state.LoadedAt,
		MapName:     state.Name,
		Path:        state.Path,
		Generation:  state.Generation,
		Placeholder: state.Placeholder,
		Cuboids:     state.Cuboids,
		Spheres:     state.Spheres,
		Skipped:     m.Summary.Skipped,
		ParseTime:   parseTime,
	}

	fp := m.Summary.Footprint
	if fp.Hull.IsEmpty() {
		return record, nil
	}
	record.FootprintArea = fp.Area
	record.FootprintExtent = core.Bounds2D{MinX: fp.Min.X, MinY: fp.Min.Y, MaxX: fp.Max.X, MaxY: fp.Max.Y}
	geoJSON, err := fp.GeoJSON()
	if err != nil {
		return record, err
	}
	record.Footprint = geoJSON
	return record, nil
}

// ReloadConfig re-reads the config file and drops parsed maps so edited map
// files are picked up on their next load. Pipeline settings only take effect
// after a restart.
func (s *Service) ReloadConfig() (string, error) {
	before := config.GetCullingConfig()
	if err := config.Reload(); err != nil {
		return "", err
	}
	s.deps.Maps.Reset()
	if s.deps.OnReload != nil {
		s.deps.OnReload()
	}

	after := config.GetCullingConfig()
	// sphere occluders are applied per map load
	after.SphereOccluders = before.SphereOccluders
	if after != before {
		s.deps.Logger.Warn("Culling pipeline settings changed, restart required to apply them")
		return "reloaded, restart required", nil
	}
	return "reloaded", nil
}
