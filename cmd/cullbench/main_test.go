package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/mapfile"
)

const twoWalls = `# two walls between the spawns
AABB 800 -300 -1000 1000 300 1000
AABB 1800 -300 -1000 2000 300 1000
`

const duel = `name: mid duel
map: de_walls
ticks: 8
culling:
  period: 2
characters:
  - name: ct
    team: 2
    eye: [0, 0, 64]
  - name: t
    team: 3
    eye: [2800, 0, 64]
    yaw: 180
  - name: spectator
    team: 1
    eye: [0, 500, 64]
`

func testLoader(t *testing.T) *mapfile.Loader {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, mapfile.FileName("de_walls")), []byte(twoWalls), 0644))
	return mapfile.NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)), dir)
}

func defaultCulling(t *testing.T) config.CullingConfig {
	t.Helper()
	t.Cleanup(viper.Reset)
	config.LoadDefaults()
	return config.GetCullingConfig()
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario(strings.NewReader(duel))
	require.NoError(t, err)
	assert.Equal(t, "mid duel", s.Name)
	assert.Equal(t, 8, s.Ticks)
	require.Len(t, s.Characters, 3)
	assert.Equal(t, "t", s.Label(1))

	cfg := s.ApplyCulling(defaultCulling(t))
	assert.Equal(t, 2, cfg.Period)
	assert.Equal(t, 65, cfg.MaxCharacters)
	assert.Equal(t, 120, cfg.TickRate)
}

func TestParseScenario_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no characters", "name: empty\n"},
		{"unknown field", "characters:\n  - team: 2\n    colour: red\n"},
		{"bad vector", "characters:\n  - team: 2\n    eye: [1, 2]\n    base: x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestScenario_DefaultsAndMovement(t *testing.T) {
	s, err := ParseScenario(strings.NewReader(`characters:
  - team: 2
    eye: [0, 0, 64]
    velocity: [240, 0, 0]
  - team: 3
    dead: true
    eye: [100, 0, 64]
    base: [100, 0, 10]
`))
	require.NoError(t, err)
	assert.Equal(t, 120, s.Ticks)
	assert.Equal(t, "#1", s.Label(1))

	chars := s.Snapshots(60, 120, nil)
	require.Len(t, chars, 2)
	assert.InDelta(t, 120, chars[0].Eye.X(), 1e-9)
	assert.InDelta(t, 0, chars[0].Base.Z(), 1e-9)
	assert.InDelta(t, 240, chars[0].Speed, 1e-9)
	assert.False(t, chars[1].Alive)
	assert.InDelta(t, 10, chars[1].Base.Z(), 1e-9)
}

func TestRun_WallsHideOpponents(t *testing.T) {
	s, err := ParseScenario(strings.NewReader(duel))
	require.NoError(t, err)
	m, err := testLoader(t).Load(s.Map)
	require.NoError(t, err)
	require.False(t, m.Placeholder)

	res, err := Run(s, m, s.ApplyCulling(defaultCulling(t)))
	require.NoError(t, err)

	n := len(s.Characters)
	assert.False(t, res.Visible[0*n+1], "ct must not see t")
	assert.False(t, res.Visible[1*n+0], "t must not see ct")
	assert.EqualValues(t, 8, res.Stats.Ticks)
	assert.Equal(t, 2, res.Stats.Occluders)

	var buf bytes.Buffer
	WriteReport(&buf, s, m, res)
	out := buf.String()
	assert.Contains(t, out, "mid duel on de_walls (8 ticks, 3 characters)")
	assert.Contains(t, out, "occluders:       2 (generation")
	assert.NotContains(t, out, "placeholder")
}

func TestRun_OpenField(t *testing.T) {
	s, err := ParseScenario(strings.NewReader(duel))
	require.NoError(t, err)

	m := mapfile.Placeholder("de_empty")
	res, err := Run(s, m, s.ApplyCulling(defaultCulling(t)))
	require.NoError(t, err)

	n := len(s.Characters)
	assert.True(t, res.Visible[0*n+1])
	assert.True(t, res.Visible[1*n+0])

	var buf bytes.Buffer
	WriteReport(&buf, s, m, res)
	assert.Contains(t, buf.String(), "placeholder occluder used")
}

func TestWriteMapSummary(t *testing.T) {
	m, err := testLoader(t).Load("de_walls")
	require.NoError(t, err)

	var buf bytes.Buffer
	writeMapSummary(&buf, m)
	out := buf.String()
	assert.Contains(t, out, "aabbs=2")
	assert.Contains(t, out, "footprint:   720000.0 square units")
	assert.Contains(t, out, "POLYGON")
}
