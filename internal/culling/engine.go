package culling

import (
	"sync"

	"github.com/cornerculling/extension/internal/geometry"
)

// Engine serializes host calls onto a Controller. Snapshot updates, ticks,
// map installs and visibility queries never overlap.
type Engine struct {
	mu   sync.Mutex
	ctrl *Controller
}

// NewEngine wraps ctrl.
func NewEngine(ctrl *Controller) *Engine {
	return &Engine{ctrl: ctrl}
}

// Step installs the snapshots, runs one tick and, when out is non-nil,
// fills it with the visibility matrix of the submitted characters.
func (e *Engine) Step(snapshots []Character, out []bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.ctrl.UpdateCharacters(snapshots); err != nil {
		return err
	}
	e.ctrl.Tick()
	if out != nil {
		e.ctrl.VisibilityMatrix(len(snapshots), out)
	}
	return nil
}

// InstallOccluders replaces the occluder set between ticks.
func (e *Engine) InstallOccluders(cuboids []geometry.Cuboid, spheres []geometry.Sphere) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.InstallOccluders(cuboids, spheres)
}

// IsVisible reports whether target may be sent to observer's client.
func (e *Engine) IsVisible(observer, target int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.IsVisible(observer, target)
}

// Stats returns the controller's benchmark figures.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ctrl.Stats()
}

// Capacity returns the roster size.
func (e *Engine) Capacity() int {
	return e.ctrl.Capacity()
}
