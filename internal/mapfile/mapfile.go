// Package mapfile reads the per-map occluder description files.
package mapfile

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cornerculling/extension/internal/geo"
	"github.com/cornerculling/extension/internal/geometry"
)

var (
	// ErrEmptyName is returned when a load is requested without a map name.
	ErrEmptyName = errors.New("map name is empty")
	// ErrMalformedRecord marks a record that was skipped.
	ErrMalformedRecord = errors.New("malformed map record")
)

// FileName returns the occluder file name for a map.
func FileName(mapName string) string {
	return "culling_" + mapName + ".txt"
}

// Summary describes a loaded map for logs and storage.
type Summary struct {
	Cuboids     int
	AABBs       int
	FaceCuboids int
	Spheres     int
	Skipped     int
	Footprint   geo.Footprint
}

// Map is a parsed occluder file.
type Map struct {
	Name        string
	Path        string
	Cuboids     []geometry.Cuboid
	Spheres     []geometry.Sphere
	Placeholder bool
	LoadedAt    time.Time
	Summary     Summary
}

// Placeholder returns the stand-in map used when a file is missing or holds
// no usable record: a single unit cuboid at the origin.
func Placeholder(name string) *Map {
	return &Map{
		Name:        name,
		Cuboids:     []geometry.Cuboid{geometry.NewBox(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 1, 1})},
		Placeholder: true,
		LoadedAt:    time.Now(),
		Summary:     Summary{AABBs: 1},
	}
}

// Loader resolves map names against a directory.
type Loader struct {
	logger *slog.Logger
	dir    string
}

// NewLoader creates a loader for dir.
func NewLoader(logger *slog.Logger, dir string) *Loader {
	return &Loader{logger: logger, dir: dir}
}

// Path returns where the file for mapName is expected.
func (l *Loader) Path(mapName string) string {
	return filepath.Join(l.dir, FileName(mapName))
}

// Load reads the file for mapName. A missing or empty file is not fatal:
// the placeholder map is returned and a warning logged.
func (l *Loader) Load(mapName string) (*Map, error) {
	mapName = strings.TrimSpace(mapName)
	if mapName == "" {
		return nil, ErrEmptyName
	}

	path := l.Path(mapName)
	f, err := os.Open(path)
	if err != nil {
		l.logger.Warn("Map file not found, using placeholder", "map", mapName, "path", path, "error", err)
		return Placeholder(mapName), nil
	}
	defer f.Close()

	m, err := l.Parse(mapName, f)
	if err != nil {
		l.logger.Warn("Failed to read map file, using placeholder", "map", mapName, "path", path, "error", err)
		return Placeholder(mapName), nil
	}
	m.Path = path
	if len(m.Cuboids) == 0 && len(m.Spheres) == 0 {
		l.logger.Warn("Map file has no usable records, using placeholder", "map", mapName, "path", path, "skipped", m.Summary.Skipped)
		return Placeholder(mapName), nil
	}
	return m, nil
}

// Parse reads occluder records from r. Malformed records are skipped and
// counted; only read errors are returned.
func (l *Loader) Parse(mapName string, r io.Reader) (*Map, error) {
	records, err := scanRecords(r)
	if err != nil {
		return nil, fmt.Errorf("error scanning map file: %w", err)
	}

	m := &Map{Name: mapName, LoadedAt: time.Now()}
	for _, rec := range records {
		if err := m.add(rec); err != nil {
			m.Summary.Skipped++
			l.logger.Warn("Skipping malformed map record",
				"map", mapName,
				"line", rec.line,
				"kind", rec.keyword,
				"error", err)
		}
	}

	bounds := make([]geometry.AABB, 0, len(m.Cuboids)+len(m.Spheres))
	for i := range m.Cuboids {
		bounds = append(bounds, m.Cuboids[i].Bounds)
	}
	for i := range m.Spheres {
		bounds = append(bounds, m.Spheres[i].Bounds())
	}
	if len(bounds) > 0 {
		fp, err := geo.FootprintFromBounds(bounds)
		if err != nil {
			l.logger.Warn("Could not compute map footprint", "map", mapName, "error", err)
		} else {
			m.Summary.Footprint = fp
		}
	}

	l.logger.Debug("Parsed map file",
		"map", mapName,
		"cuboids", len(m.Cuboids),
		"spheres", len(m.Spheres),
		"skipped", m.Summary.Skipped)
	return m, nil
}

func (m *Map) add(rec record) error {
	err := rec.finite()
	if err == nil {
		err = m.addRecord(rec)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return nil
}

func (m *Map) addRecord(rec record) error {
	switch rec.keyword {
	case "Cuboid":
		vertices, err := cuboidVertices(rec.values)
		if err != nil {
			return err
		}
		c, err := geometry.BuildCuboid(vertices)
		if err != nil {
			return err
		}
		m.Cuboids = append(m.Cuboids, c)
		m.Summary.Cuboids++
	case "AABB":
		if err := rec.expect(6); err != nil {
			return err
		}
		v := rec.values
		m.Cuboids = append(m.Cuboids, geometry.NewBox(
			mgl64.Vec3{v[0], v[1], v[2]},
			mgl64.Vec3{v[3], v[4], v[5]},
		))
		m.Summary.AABBs++
	case "CuboidFaces":
		c, err := cuboidFromFaces(rec.values)
		if err != nil {
			return err
		}
		m.Cuboids = append(m.Cuboids, c)
		m.Summary.FaceCuboids++
	case "Sphere":
		if err := rec.expect(4); err != nil {
			return err
		}
		v := rec.values
		if v[3] <= 0 {
			return fmt.Errorf("sphere radius must be positive, got %g", v[3])
		}
		m.Spheres = append(m.Spheres, geometry.Sphere{Center: mgl64.Vec3{v[0], v[1], v[2]}, Radius: v[3]})
		m.Summary.Spheres++
	default:
		return fmt.Errorf("unknown record kind %q", rec.keyword)
	}
	return nil
}

// cuboidVertices expands center, scale, rotation and 8 local extents.
// Extents are scaled, rotated about X then Y then Z, then translated.
func cuboidVertices(v []float64) ([]mgl64.Vec3, error) {
	if len(v) != 33 {
		return nil, fmt.Errorf("cuboid needs 33 values, got %d", len(v))
	}
	center := mgl64.Vec3{v[0], v[1], v[2]}
	scale := mgl64.Vec3{v[3], v[4], v[5]}
	rot := mgl64.Rotate3DZ(mgl64.DegToRad(v[8])).
		Mul3(mgl64.Rotate3DY(mgl64.DegToRad(v[7]))).
		Mul3(mgl64.Rotate3DX(mgl64.DegToRad(v[6])))

	vertices := make([]mgl64.Vec3, 8)
	for i := range vertices {
		o := 9 + i*3
		extent := mgl64.Vec3{v[o] * scale[0], v[o+1] * scale[1], v[o+2] * scale[2]}
		vertices[i] = center.Add(rot.Mul3x1(extent))
	}
	return vertices, nil
}

func cuboidFromFaces(v []float64) (geometry.Cuboid, error) {
	if len(v) != 42 {
		return geometry.Cuboid{}, fmt.Errorf("face cuboid needs 42 values, got %d", len(v))
	}
	var faces [6]geometry.Face
	for i := range faces {
		o := 6 + i*6
		faces[i] = geometry.Face{
			Point:  mgl64.Vec3{v[o], v[o+1], v[o+2]},
			Normal: mgl64.Vec3{v[o+3], v[o+4], v[o+5]},
		}
		if faces[i].Normal.Len() == 0 {
			return geometry.Cuboid{}, fmt.Errorf("face %d has a zero normal", i)
		}
	}
	return geometry.NewCuboidFromFaces(
		mgl64.Vec3{v[0], v[1], v[2]},
		mgl64.Vec3{v[3], v[4], v[5]},
		faces,
	), nil
}
