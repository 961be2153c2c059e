// internal/storage/memory/memory.go
package memory

import (
	"sync"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/pkg/core"
)

// Backend keeps session records in memory and exports them to JSON on Close
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session

	mapLoads []core.MapLoad
	samples  []core.PerformanceSample

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports everything recorded. Nothing is written when no session
// was started.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	return b.exportJSON()
}

// StartSession begins a new session, dropping records of the previous one
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.mapLoads = nil
	b.samples = nil
	return nil
}

// RecordMapLoad stores a map load
func (b *Backend) RecordMapLoad(m *core.MapLoad) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapLoads = append(b.mapLoads, *m)
	return nil
}

// RecordPerformance stores a performance sample
func (b *Backend) RecordPerformance(p *core.PerformanceSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = append(b.samples, *p)
	return nil
}

// GetExportedFilePath returns the path of the last export, empty before Close.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Counts returns how many map loads and samples are held.
func (b *Backend) Counts() (mapLoads, samples int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.mapLoads), len(b.samples)
}
