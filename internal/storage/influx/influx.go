// Package influx implements the storage.Backend interface on InfluxDB. When
// the server cannot be reached, points are written as line protocol to a
// gzipped backup file instead.
package influx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/pkg/core"
)

// Measurement names written by the backend.
const (
	MeasurementSession = "culling_session"
	MeasurementMapLoad = "culling_map_load"
	MeasurementTick    = "culling_tick"
)

// retention for a bucket created on first connect
const retentionSeconds = 60 * 60 * 24 * 90

// Backend handles InfluxDB connections and writes.
type Backend struct {
	cfg        config.InfluxConfig
	backupPath string
	logger     zerolog.Logger

	client     influxdb2.Client
	writer     influxdb2_api.WriteAPI
	backupFile *os.File
	backup     *gzip.Writer
	isValid    bool

	mu sync.Mutex
}

// New creates a new InfluxDB backend. backupPath receives line protocol
// when the server is unreachable.
func New(cfg config.InfluxConfig, backupPath string, log zerolog.Logger) *Backend {
	return &Backend{
		cfg:        cfg,
		backupPath: backupPath,
		logger:     log,
	}
}

// IsValid reports whether points go to the server rather than the backup file.
func (b *Backend) IsValid() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isValid
}

// Init establishes a connection to InfluxDB, falling back to the backup file.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.client = influxdb2.NewClientWithOptions(
		b.cfg.URL(),
		b.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := b.client.Ping(context.Background())
	if err != nil || !running {
		b.logger.Info().Str("backupPath", b.backupPath).
			Msg("Failed to initialize InfluxDB client, writing to backup file")
		b.client.Close()
		b.client = nil
		return b.openBackup()
	}

	if err := b.setupOrganizationAndBucket(); err != nil {
		return err
	}
	b.createWriter()
	b.isValid = true
	b.logger.Info().Str("url", b.cfg.URL()).Str("bucket", b.cfg.Bucket).Msg("InfluxDB client initialized")
	return nil
}

func (b *Backend) openBackup() error {
	if b.backupPath == "" {
		return errors.New("influxDB unreachable and no backup path configured")
	}
	file, err := os.OpenFile(b.backupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	b.backupFile = file
	b.backup = gzip.NewWriter(file)
	return nil
}

func (b *Backend) setupOrganizationAndBucket() error {
	ctx := context.Background()
	orgName := b.cfg.Org

	// ensure org exists
	influxOrg, err := b.client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		b.logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = b.client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			b.logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	// ensure bucket exists with 90 day retention
	if _, err = b.client.BucketsAPI().FindBucketByName(ctx, b.cfg.Bucket); err != nil {
		b.logger.Info().Str("bucket", b.cfg.Bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = b.client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, b.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			b.logger.Error().Err(err).Str("bucket", b.cfg.Bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

func (b *Backend) createWriter() {
	b.writer = b.client.WriteAPI(b.cfg.Org, b.cfg.Bucket)

	errorsCh := b.writer.Errors()
	go func() {
		for writeErr := range errorsCh {
			b.logger.Error().Err(writeErr).Str("bucket", b.cfg.Bucket).
				Msg("Error sending data to InfluxDB")
		}
	}()
}

// Close flushes pending points and releases the client or backup file.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		b.writer.Flush()
		b.client.Close()
		b.client = nil
		b.isValid = false
	}
	if b.backup != nil {
		err := b.backup.Close()
		if cerr := b.backupFile.Close(); err == nil {
			err = cerr
		}
		b.backup = nil
		b.backupFile = nil
		if err != nil {
			return fmt.Errorf("error closing InfluxDB backup file: %w", err)
		}
	}
	return nil
}

// writePoint writes a point to InfluxDB or backup file.
func (b *Backend) writePoint(point *influxdb2_write.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isValid {
		b.writer.WritePoint(point)
		return nil
	}
	if b.backup == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if !strings.HasSuffix(lineProtocol, "\n") {
		lineProtocol += "\n"
	}
	if _, err := b.backup.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// StartSession writes a session marker point.
func (b *Backend) StartSession(s *core.Session) error {
	return b.writePoint(SessionPoint(s))
}

// RecordMapLoad writes a map load point.
func (b *Backend) RecordMapLoad(m *core.MapLoad) error {
	return b.writePoint(MapLoadPoint(m))
}

// RecordPerformance writes a tick performance point.
func (b *Backend) RecordPerformance(p *core.PerformanceSample) error {
	return b.writePoint(PerformancePoint(p))
}

// SessionPoint builds the point for a session start.
func SessionPoint(s *core.Session) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementSession,
		map[string]string{
			"session": s.ID.String(),
			"version": s.ExtensionVersion,
		},
		map[string]interface{}{
			"max_characters": s.MaxCharacters,
			"tick_rate":      s.TickRate,
		},
		s.StartedAt,
	)
}

// MapLoadPoint builds the point for a map load.
func MapLoadPoint(m *core.MapLoad) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementMapLoad,
		map[string]string{
			"session":     m.SessionID.String(),
			"map":         m.MapName,
			"placeholder": strconv.FormatBool(m.Placeholder),
		},
		map[string]interface{}{
			"generation":     int64(m.Generation),
			"cuboids":        m.Cuboids,
			"spheres":        m.Spheres,
			"skipped":        m.Skipped,
			"parse_time_ms":  float64(m.ParseTime) / float64(time.Millisecond),
			"footprint_area": m.FootprintArea,
		},
		m.Time,
	)
}

// PerformancePoint builds the point for a performance sample.
func PerformancePoint(p *core.PerformanceSample) *influxdb2_write.Point {
	return influxdb2.NewPoint(MeasurementTick,
		map[string]string{
			"session": p.SessionID.String(),
			"map":     p.MapName,
		},
		map[string]interface{}{
			"generation":         int64(p.Generation),
			"ticks":              p.Ticks,
			"occluders":          p.Occluders,
			"rolling_average_us": p.RollingAverage.Microseconds(),
			"rolling_max_us":     p.RollingMax.Microseconds(),
			"overall_average_us": p.OverallAverage.Microseconds(),
			"bundles":            p.Bundles,
			"cache_hits":         p.CacheHits,
			"sphere_hits":        p.SphereHits,
			"index_hits":         p.IndexHits,
			"visible":            p.Visible,
		},
		p.Time,
	)
}
