package hostinterface

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/cornerculling/extension/internal/culling"
)

var (
	// ErrNoEngine is returned for ticks received before initialization finished
	ErrNoEngine = errors.New("no engine registered")
	// ErrFrameSize is returned when the flat arrays do not match the character count
	ErrFrameSize = errors.New("frame array size mismatch")
)

// Frame is one tick of host snapshots as flat arrays, one entry per slot
// (three per slot for positions).
type Frame struct {
	Teams   []int32
	Alive   []int32
	Eyes    []float32
	Bases   []float32
	Yaws    []float32
	Pitches []float32
	Speeds  []float32
}

// Count returns the number of slots in the frame.
func (f *Frame) Count() int {
	return len(f.Teams)
}

func (f *Frame) validate() error {
	n := f.Count()
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"alive", len(f.Alive), n},
		{"eyes", len(f.Eyes), 3 * n},
		{"bases", len(f.Bases), 3 * n},
		{"yaws", len(f.Yaws), n},
		{"pitches", len(f.Pitches), n},
		{"speeds", len(f.Speeds), n},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("%w: %s has %d entries, want %d", ErrFrameSize, c.name, c.got, c.want)
		}
	}
	return nil
}

// decode appends the frame's characters to dst[:0].
func (f *Frame) decode(dst []culling.Character) ([]culling.Character, error) {
	if err := f.validate(); err != nil {
		return dst[:0], err
	}
	dst = dst[:0]
	for i := range f.Teams {
		dst = append(dst, culling.Character{
			Team:  int(f.Teams[i]),
			Alive: f.Alive[i] != 0,
			Eye:   vec3(f.Eyes[3*i:]),
			Base:  vec3(f.Bases[3*i:]),
			Yaw:   float64(f.Yaws[i]),
			Pitch: float64(f.Pitches[i]),
			Speed: float64(f.Speeds[i]),
		})
	}
	return dst, nil
}

func vec3(v []float32) mgl64.Vec3 {
	return mgl64.Vec3{float64(v[0]), float64(v[1]), float64(v[2])}
}

// updateVisibility steps the engine with the frame and writes the
// row-major visibility matrix as 1/0 into out.
func (c *configStruct) updateVisibility(f *Frame, out []uint8) error {
	if c.engine == nil {
		return ErrNoEngine
	}
	n := f.Count()
	if len(out) < n*n {
		return fmt.Errorf("%w: output has %d entries, want %d", ErrFrameSize, len(out), n*n)
	}

	c.frameMu.Lock()
	defer c.frameMu.Unlock()

	var err error
	c.characters, err = f.decode(c.characters)
	if err != nil {
		return err
	}
	if cap(c.visible) < n*n {
		c.visible = make([]bool, n*n)
	}
	visible := c.visible[:n*n]

	if err := c.engine.Step(c.characters, visible); err != nil {
		return err
	}
	for i, v := range visible {
		if v {
			out[i] = 1
		} else {
			out[i] = 0
		}
	}
	return nil
}

// isVisible answers a single pair query. Before initialization every pair is
// reported visible so that the host never hides players it should show.
func (c *configStruct) isVisible(observer, target int) bool {
	if c.engine == nil {
		return true
	}
	return c.engine.IsVisible(observer, target)
}
