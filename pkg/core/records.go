// pkg/core/records.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// Bounds2D is an axis-aligned rectangle on the map plane.
type Bounds2D struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// MapLoad records one occluder set installed into the engine.
type MapLoad struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	Time        time.Time
	MapName     string
	Path        string
	Generation  uint32
	Placeholder bool
	Cuboids     int
	Spheres     int
	Skipped     int
	ParseTime   time.Duration

	// XY convex hull of all occluders
	FootprintArea   float64
	FootprintExtent Bounds2D
	Footprint       []byte // GeoJSON geometry
}

// PerformanceSample is one monitor reading of the culling engine.
type PerformanceSample struct {
	SessionID  uuid.UUID
	Time       time.Time
	MapName    string
	Generation uint32
	Ticks      int64
	Occluders  int

	RollingAverage time.Duration
	RollingMax     time.Duration
	OverallAverage time.Duration

	// Counts from the most recent tick
	Bundles    int
	CacheHits  int
	SphereHits int
	IndexHits  int
	Visible    int
}
