package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cornerculling/extension/internal/culling"
	"github.com/cornerculling/extension/internal/queue"
	"github.com/cornerculling/extension/internal/session"
	"github.com/cornerculling/extension/internal/storage"
	"github.com/cornerculling/extension/pkg/core"
)

const defaultInterval = time.Second

// maxPendingSamples bounds the samples held while the backend is slow.
const maxPendingSamples = 3600

// StatsSource is the engine as seen by the monitor
type StatsSource interface {
	Stats() culling.Stats
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Stats      StatsSource
	Session    *session.Context
	Backend    storage.Backend // optional
	Logger     *slog.Logger
	StatusPath string // optional status.txt location
	Interval   time.Duration
}

// Service samples engine performance, rewrites the status file and hands
// samples to the storage backend
type Service struct {
	deps      Dependencies
	samples   *queue.Queue[core.PerformanceSample]
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	return &Service{
		deps:    deps,
		samples: queue.NewBounded[core.PerformanceSample](maxPendingSamples),
	}
}

// IsRunning returns whether the monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Sample reads the engine and session into a performance sample
func (s *Service) Sample() core.PerformanceSample {
	stats := s.deps.Stats.Stats()
	current := s.deps.Session.GetMap()
	return core.PerformanceSample{
		SessionID:      s.deps.Session.GetSession().ID,
		Time:           time.Now().UTC(),
		MapName:        current.Name,
		Generation:     stats.Generation,
		Ticks:          stats.Ticks,
		Occluders:      stats.Occluders,
		RollingAverage: stats.RollingAverage,
		RollingMax:     stats.RollingMax,
		OverallAverage: stats.OverallAverage,
		Bundles:        stats.Last.Bundles,
		CacheHits:      stats.Last.CacheHits,
		SphereHits:     stats.Last.SphereHits,
		IndexHits:      stats.Last.IndexHits,
		Visible:        stats.Last.Visible,
	}
}

// GetProgramStatus returns the status file lines for a sample
func (s *Service) GetProgramStatus(sample core.PerformanceSample) []string {
	current := s.deps.Session.GetMap()
	output := []string{
		fmt.Sprintf("map: %s (generation %d, placeholder %t)", current.Name, current.Generation, current.Placeholder),
		fmt.Sprintf("ticks: %d", sample.Ticks),
		fmt.Sprintf("occluders: %d", sample.Occluders),
		fmt.Sprintf("rolling average: %s", sample.RollingAverage),
		fmt.Sprintf("rolling max: %s", sample.RollingMax),
		fmt.Sprintf("overall average: %s", sample.OverallAverage),
	}

	lastTick, err := json.MarshalIndent(map[string]int{
		"bundles":    sample.Bundles,
		"cacheHits":  sample.CacheHits,
		"sphereHits": sample.SphereHits,
		"indexHits":  sample.IndexHits,
		"visible":    sample.Visible,
	}, "", "  ")
	if err != nil {
		lastTick = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	return append(output, string(lastTick))
}

// Pending returns the number of samples not yet handed to the backend
func (s *Service) Pending() int {
	return s.samples.Len()
}

// Dropped returns how many samples were discarded while the backend lagged
func (s *Service) Dropped() uint64 {
	return s.samples.Dropped()
}

// Start starts the sampling and writer goroutines
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusPath != "" {
		f, err := os.Create(s.deps.StatusPath)
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "path", s.deps.StatusPath, "error", err)
		} else {
			statusFile = f
		}
	}

	s.wg.Add(2)
	go s.sampleLoop(statusFile)
	go s.writeLoop()

	s.deps.Logger.Debug("Started performance monitor", "interval", s.deps.Interval)
	return nil
}

func (s *Service) sampleLoop(statusFile *os.File) {
	defer s.wg.Done()
	if statusFile != nil {
		defer statusFile.Close()
	}

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	var lastTicks int64
	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
		}

		sample := s.Sample()
		// nothing to report while the game is not stepping the engine
		if sample.Ticks == 0 || sample.Ticks == lastTicks {
			continue
		}
		lastTicks = sample.Ticks

		if statusFile != nil {
			writeStatus(statusFile, s.GetProgramStatus(sample))
		}
		if s.deps.Backend != nil {
			s.samples.Push(sample)
		}
	}
}

func writeStatus(f *os.File, lines []string) {
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	for _, line := range lines {
		_, _ = f.WriteString(line + "\n")
	}
}

func (s *Service) writeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.drain()
		}
	}
}

// drain hands all queued samples to the backend
func (s *Service) drain() {
	if s.deps.Backend == nil {
		return
	}
	for _, sample := range s.samples.Drain() {
		if err := s.deps.Backend.RecordPerformance(&sample); err != nil {
			s.deps.Logger.Error("Error recording performance sample", "error", err)
		}
	}
}

// Stop stops the monitor and hands any remaining samples to the backend
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.drain()
}
