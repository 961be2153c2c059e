package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/cornerculling/extension/pkg/core"
)

// NoMap is the map name reported before the first load.
const NoMap = "No map loaded"

// MapState describes the occluder set currently installed in the engine
type MapState struct {
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Generation  uint32    `json:"generation"`
	Placeholder bool      `json:"placeholder"`
	Cuboids     int       `json:"cuboids"`
	Spheres     int       `json:"spheres"`
	LoadedAt    time.Time `json:"loadedAt"`
}

// Context holds the current session and map state
type Context struct {
	mu      sync.RWMutex
	session core.Session
	current MapState
}

// NewContext creates a new Context with no map loaded
func NewContext(s core.Session) *Context {
	return &Context{
		session: s,
		current: MapState{Name: NoMap},
	}
}

// GetSession returns the session
func (c *Context) GetSession() core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// GetMap returns the current map state
func (c *Context) GetMap() MapState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// SetMap records a newly installed map. A state older than the current one
// is ignored so that overlapping loads settle on the latest generation.
func (c *Context) SetMap(m MapState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m.Generation < c.current.Generation {
		return false
	}
	c.current = m
	return true
}

// LogAttrs returns the attributes attached to every log record.
func (c *Context) LogAttrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return []slog.Attr{
		slog.String("session", c.session.ID.String()),
		slog.String("map", c.current.Name),
		slog.Uint64("generation", uint64(c.current.Generation)),
	}
}
