// internal/storage/storage.go
package storage

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cornerculling/extension/pkg/core"
)

// ErrUnknownType is returned for a storage type no backend implements.
var ErrUnknownType = errors.New("unknown storage type")

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error

	// Recording
	RecordMapLoad(m *core.MapLoad) error
	RecordPerformance(p *core.PerformanceSample) error
}

// Exporter is an optional interface for storage backends that write a
// file on Close.
type Exporter interface {
	GetExportedFilePath() string
}

// Multi fans every call out to a set of backends. Calls run concurrently
// and the first error is returned after all backends have finished.
type Multi struct {
	backends []Backend
}

// NewMulti combines backends. A single backend is returned unwrapped.
func NewMulti(backends ...Backend) Backend {
	if len(backends) == 1 {
		return backends[0]
	}
	return &Multi{backends: backends}
}

// Backends returns the wrapped backends in order.
func (m *Multi) Backends() []Backend {
	return m.backends
}

func (m *Multi) each(fn func(Backend) error) error {
	var g errgroup.Group
	for _, b := range m.backends {
		g.Go(func() error {
			return fn(b)
		})
	}
	return g.Wait()
}

// Init initializes every backend.
func (m *Multi) Init() error {
	return m.each(func(b Backend) error {
		if err := b.Init(); err != nil {
			return fmt.Errorf("%T: %w", b, err)
		}
		return nil
	})
}

// Close closes every backend, even when some fail.
func (m *Multi) Close() error {
	return m.each(Backend.Close)
}

func (m *Multi) StartSession(s *core.Session) error {
	return m.each(func(b Backend) error { return b.StartSession(s) })
}

func (m *Multi) RecordMapLoad(ml *core.MapLoad) error {
	return m.each(func(b Backend) error { return b.RecordMapLoad(ml) })
}

func (m *Multi) RecordPerformance(p *core.PerformanceSample) error {
	return m.each(func(b Backend) error { return b.RecordPerformance(p) })
}

// GetExportedFilePath returns the first export path among the wrapped backends.
func (m *Multi) GetExportedFilePath() string {
	for _, b := range m.backends {
		if e, ok := b.(Exporter); ok {
			if p := e.GetExportedFilePath(); p != "" {
				return p
			}
		}
	}
	return ""
}
