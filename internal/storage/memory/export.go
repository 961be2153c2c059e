// internal/storage/memory/export.go
package memory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/cornerculling/extension/pkg/core"
)

// SessionExport is the root JSON structure
type SessionExport struct {
	SessionID        string        `json:"sessionId"`
	ExtensionVersion string        `json:"extensionVersion"`
	StartedAt        time.Time     `json:"startedAt"`
	MaxCharacters    int           `json:"maxCharacters"`
	TickRate         int           `json:"tickRate"`
	MapLoads         []MapLoadJSON `json:"mapLoads"`
	Samples          []SampleJSON  `json:"samples"`
}

// MapLoadJSON is one map load; the footprint is embedded as GeoJSON
type MapLoadJSON struct {
	Time          time.Time       `json:"time"`
	MapName       string          `json:"mapName"`
	Generation    uint32          `json:"generation"`
	Placeholder   bool            `json:"placeholder"`
	Cuboids       int             `json:"cuboids"`
	Spheres       int             `json:"spheres"`
	Skipped       int             `json:"skipped"`
	ParseTimeMs   float64         `json:"parseTimeMs"`
	FootprintArea float64         `json:"footprintArea"`
	Extent        [4]float64      `json:"extent"`
	Footprint     json.RawMessage `json:"footprint,omitempty"`
}

// SampleJSON is one performance sample, durations in microseconds
type SampleJSON struct {
	Time             time.Time `json:"time"`
	MapName          string    `json:"mapName"`
	Generation       uint32    `json:"generation"`
	Ticks            int64     `json:"ticks"`
	Occluders        int       `json:"occluders"`
	RollingAverageUs int64     `json:"rollingAverageUs"`
	RollingMaxUs     int64     `json:"rollingMaxUs"`
	OverallAverageUs int64     `json:"overallAverageUs"`
	Bundles          int       `json:"bundles"`
	CacheHits        int       `json:"cacheHits"`
	SphereHits       int       `json:"sphereHits"`
	IndexHits        int       `json:"indexHits"`
	Visible          int       `json:"visible"`
}

// exportJSON writes the session to a JSON file, gzipped when configured
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	timestamp := b.session.StartedAt.Format("20060102_150405")
	filename := fmt.Sprintf("culling_%s_%s.json", timestamp, b.session.ID.String()[:8])
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if b.cfg.CompressOutput {
		err = writeGzipJSON(f, export)
	} else {
		err = writeJSON(f, export)
	}
	if err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	export := SessionExport{
		SessionID:        b.session.ID.String(),
		ExtensionVersion: b.session.ExtensionVersion,
		StartedAt:        b.session.StartedAt,
		MaxCharacters:    b.session.MaxCharacters,
		TickRate:         b.session.TickRate,
		MapLoads:         make([]MapLoadJSON, 0, len(b.mapLoads)),
		Samples:          make([]SampleJSON, 0, len(b.samples)),
	}

	for _, m := range b.mapLoads {
		export.MapLoads = append(export.MapLoads, mapLoadToJSON(m))
	}
	for _, s := range b.samples {
		export.Samples = append(export.Samples, sampleToJSON(s))
	}
	return export
}

func mapLoadToJSON(m core.MapLoad) MapLoadJSON {
	out := MapLoadJSON{
		Time:          m.Time,
		MapName:       m.MapName,
		Generation:    m.Generation,
		Placeholder:   m.Placeholder,
		Cuboids:       m.Cuboids,
		Spheres:       m.Spheres,
		Skipped:       m.Skipped,
		ParseTimeMs:   float64(m.ParseTime) / float64(time.Millisecond),
		FootprintArea: m.FootprintArea,
		Extent: [4]float64{
			m.FootprintExtent.MinX, m.FootprintExtent.MinY,
			m.FootprintExtent.MaxX, m.FootprintExtent.MaxY,
		},
	}
	if len(m.Footprint) > 0 {
		out.Footprint = json.RawMessage(m.Footprint)
	}
	return out
}

func sampleToJSON(s core.PerformanceSample) SampleJSON {
	return SampleJSON{
		Time:             s.Time,
		MapName:          s.MapName,
		Generation:       s.Generation,
		Ticks:            s.Ticks,
		Occluders:        s.Occluders,
		RollingAverageUs: s.RollingAverage.Microseconds(),
		RollingMaxUs:     s.RollingMax.Microseconds(),
		OverallAverageUs: s.OverallAverage.Microseconds(),
		Bundles:          s.Bundles,
		CacheHits:        s.CacheHits,
		SphereHits:       s.SphereHits,
		IndexHits:        s.IndexHits,
		Visible:          s.Visible,
	}
}

func writeJSON(w io.Writer, data any) error {
	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func writeGzipJSON(w io.Writer, data any) error {
	gzWriter := gzip.NewWriter(w)
	if err := writeJSON(gzWriter, data); err != nil {
		gzWriter.Close()
		return err
	}
	if err := gzWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}
