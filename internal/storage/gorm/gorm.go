// Package gormstorage implements the storage.Backend interface on any GORM
// dialect, with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/cornerculling/extension/internal/database"
	"github.com/cornerculling/extension/internal/model"
	"github.com/cornerculling/extension/internal/model/convert"
	"github.com/cornerculling/extension/internal/queue"
	"github.com/cornerculling/extension/pkg/core"
)

const defaultFlushInterval = 2 * time.Second

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	MapLoads           *queue.Queue[model.MapLoad]
	PerformanceSamples *queue.Queue[model.PerformanceSample]
}

func newQueues() *queues {
	return &queues{
		MapLoads:           queue.New[model.MapLoad](),
		PerformanceSamples: queue.New[model.PerformanceSample](),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	sessionID string
	queues    *queues
	stopChan  chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// New creates a new GORM storage backend. Without a DB the backend only
// queues, which is how callers without a database use it in tests.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = defaultFlushInterval
	}
	return &Backend{
		deps:   deps,
		queues: newQueues(),
	}
}

// DB returns the underlying connection, nil in queue-only mode.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.stopChan = make(chan struct{})
	if b.deps.DB == nil {
		return nil
	}

	b.deps.Logger.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.startDBWriter()
	return nil
}

// Close stops the DB writer goroutine, writes whatever is still queued and
// logs the session's per-map performance.
func (b *Backend) Close() error {
	b.once.Do(func() {
		if b.stopChan != nil {
			close(b.stopChan)
		}
		b.wg.Wait()
		b.Flush()
		b.logSummary()
	})
	return nil
}

func (b *Backend) logSummary() {
	if b.deps.DB == nil || b.sessionID == "" {
		return
	}
	summaries, err := database.Summarize(b.deps.DB, b.sessionID)
	if err != nil {
		b.deps.Logger.Warn("Could not summarize session", "error", err)
		return
	}
	for _, s := range summaries {
		b.deps.Logger.Info("Session performance",
			"map", s.MapName,
			"samples", s.Samples,
			"ticks", s.Ticks,
			"avgRollingUs", s.AvgRollingUs,
			"worstRollingUs", s.WorstRollingUs)
	}
}

// StartSession inserts the session row synchronously so queued records
// can reference it.
func (b *Backend) StartSession(s *core.Session) error {
	if b.deps.DB == nil {
		return nil
	}
	gormObj := convert.CoreToSession(*s)
	if err := b.deps.DB.Where(model.Session{ID: gormObj.ID}).FirstOrCreate(&gormObj).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	b.sessionID = gormObj.ID
	return nil
}

// RecordMapLoad converts and queues a map load.
func (b *Backend) RecordMapLoad(m *core.MapLoad) error {
	b.queues.MapLoads.Push(convert.CoreToMapLoad(*m))
	return nil
}

// RecordPerformance converts and queues a performance sample.
func (b *Backend) RecordPerformance(p *core.PerformanceSample) error {
	b.queues.PerformanceSamples.Push(convert.CoreToPerformanceSample(*p))
	return nil
}

// Pending returns the number of queued rows not yet written.
func (b *Backend) Pending() int {
	return b.queues.MapLoads.Len() + b.queues.PerformanceSamples.Len()
}

// Flush drains all queues into the DB.
func (b *Backend) Flush() {
	if b.deps.DB == nil {
		return
	}
	writeQueue(b.deps.DB, b.queues.MapLoads, "map loads", b.deps.Logger)
	writeQueue(b.deps.DB, b.queues.PerformanceSamples, "performance samples", b.deps.Logger)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are put back at the front for the next cycle.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) {
	items := q.Drain()
	if len(items) == 0 {
		return
	}

	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items)
		return
	}

	if err := tx.Commit().Error; err != nil {
		log.Error("Error committing rows", "table", name, "count", len(items), "error", err)
		q.Requeue(items)
	}
}

// startDBWriter starts the background goroutine that periodically drains queues into the DB.
func (b *Backend) startDBWriter() {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.deps.FlushInterval)
		defer ticker.Stop()

		for {
			select {
			case <-b.stopChan:
				return
			case <-ticker.C:
				b.Flush()
			}
		}
	}()
}
