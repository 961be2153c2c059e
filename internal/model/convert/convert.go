// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/cornerculling/extension/internal/model"
	"github.com/cornerculling/extension/pkg/core"
)

func durationToMs(d time.Duration) float32 {
	return float32(d.Seconds() * 1e3)
}

func durationToUs(d time.Duration) float32 {
	return float32(d.Seconds() * 1e6)
}

func msToDuration(ms float32) time.Duration {
	return time.Duration(float64(ms) * float64(time.Millisecond))
}

func usToDuration(us float32) time.Duration {
	return time.Duration(float64(us) * float64(time.Microsecond))
}

// parseID returns uuid.Nil for ids that do not parse.
func parseID(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		ID:               s.ID.String(),
		StartedAt:        s.StartedAt,
		ExtensionVersion: s.ExtensionVersion,
		MaxCharacters:    uint16(s.MaxCharacters),
		TickRate:         uint16(s.TickRate),
	}
}

// SessionToCore converts a GORM model.Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:               parseID(s.ID),
		StartedAt:        s.StartedAt,
		ExtensionVersion: s.ExtensionVersion,
		MaxCharacters:    int(s.MaxCharacters),
		TickRate:         int(s.TickRate),
	}
}

// CoreToMapLoad converts a core.MapLoad to a GORM model.MapLoad.
// A missing footprint is stored as JSON null.
func CoreToMapLoad(m core.MapLoad) model.MapLoad {
	footprint := datatypes.JSON("null")
	if len(m.Footprint) > 0 {
		footprint = datatypes.JSON(m.Footprint)
	}
	return model.MapLoad{
		ID:            m.ID.String(),
		SessionID:     m.SessionID.String(),
		Time:          m.Time,
		MapName:       m.MapName,
		Path:          m.Path,
		Generation:    m.Generation,
		Placeholder:   m.Placeholder,
		Cuboids:       uint32(m.Cuboids),
		Spheres:       uint32(m.Spheres),
		Skipped:       uint32(m.Skipped),
		ParseTimeMs:   durationToMs(m.ParseTime),
		FootprintArea: m.FootprintArea,
		Extent: model.Extent{
			MinX: m.FootprintExtent.MinX,
			MinY: m.FootprintExtent.MinY,
			MaxX: m.FootprintExtent.MaxX,
			MaxY: m.FootprintExtent.MaxY,
		},
		Footprint: footprint,
	}
}

// MapLoadToCore converts a GORM model.MapLoad to a core.MapLoad.
func MapLoadToCore(m model.MapLoad) core.MapLoad {
	var footprint []byte
	if len(m.Footprint) > 0 && string(m.Footprint) != "null" {
		footprint = []byte(m.Footprint)
	}
	return core.MapLoad{
		ID:            parseID(m.ID),
		SessionID:     parseID(m.SessionID),
		Time:          m.Time,
		MapName:       m.MapName,
		Path:          m.Path,
		Generation:    m.Generation,
		Placeholder:   m.Placeholder,
		Cuboids:       int(m.Cuboids),
		Spheres:       int(m.Spheres),
		Skipped:       int(m.Skipped),
		ParseTime:     msToDuration(m.ParseTimeMs),
		FootprintArea: m.FootprintArea,
		FootprintExtent: core.Bounds2D{
			MinX: m.Extent.MinX,
			MinY: m.Extent.MinY,
			MaxX: m.Extent.MaxX,
			MaxY: m.Extent.MaxY,
		},
		Footprint: footprint,
	}
}

// CoreToPerformanceSample converts a core.PerformanceSample to a GORM model.PerformanceSample.
// Durations are stored in microseconds.
func CoreToPerformanceSample(p core.PerformanceSample) model.PerformanceSample {
	return model.PerformanceSample{
		SessionID:        p.SessionID.String(),
		Time:             p.Time,
		MapName:          p.MapName,
		Generation:       p.Generation,
		Ticks:            p.Ticks,
		Occluders:        uint32(p.Occluders),
		RollingAverageUs: durationToUs(p.RollingAverage),
		RollingMaxUs:     durationToUs(p.RollingMax),
		OverallAverageUs: durationToUs(p.OverallAverage),
		LastTick: model.TickCounts{
			Bundles:    uint16(p.Bundles),
			CacheHits:  uint16(p.CacheHits),
			SphereHits: uint16(p.SphereHits),
			IndexHits:  uint16(p.IndexHits),
			Visible:    uint16(p.Visible),
		},
	}
}

// PerformanceSampleToCore converts a GORM model.PerformanceSample to a core.PerformanceSample.
func PerformanceSampleToCore(p model.PerformanceSample) core.PerformanceSample {
	return core.PerformanceSample{
		SessionID:      parseID(p.SessionID),
		Time:           p.Time,
		MapName:        p.MapName,
		Generation:     p.Generation,
		Ticks:          p.Ticks,
		Occluders:      int(p.Occluders),
		RollingAverage: usToDuration(p.RollingAverageUs),
		RollingMax:     usToDuration(p.RollingMaxUs),
		OverallAverage: usToDuration(p.OverallAverageUs),
		Bundles:        int(p.LastTick.Bundles),
		CacheHits:      int(p.LastTick.CacheHits),
		SphereHits:     int(p.LastTick.SphereHits),
		IndexHits:      int(p.LastTick.IndexHits),
		Visible:        int(p.LastTick.Visible),
	}
}
