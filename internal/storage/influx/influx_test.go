package influx

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/storage"
	"github.com/cornerculling/extension/pkg/core"
)

var _ storage.Backend = (*Backend)(nil)

func unreachable() config.InfluxConfig {
	return config.InfluxConfig{
		Protocol: "http",
		Host:     "127.0.0.1",
		Port:     "1",
		Org:      "culling-metrics",
		Bucket:   "culling_performance",
	}
}

func TestPerformancePoint(t *testing.T) {
	p := &core.PerformanceSample{
		MapName:        "de_dust2",
		Time:           time.Unix(1700000000, 0),
		Ticks:          500,
		RollingAverage: 150 * time.Microsecond,
		Visible:        12,
	}
	line := influxdb2_write.PointToLineProtocol(PerformancePoint(p), time.Nanosecond)

	assert.True(t, strings.HasPrefix(line, MeasurementTick+","), line)
	assert.Contains(t, line, "map=de_dust2")
	assert.Contains(t, line, "ticks=500i")
	assert.Contains(t, line, "rolling_average_us=150i")
	assert.Contains(t, line, "visible=12i")
	assert.Contains(t, line, "1700000000000000000")
}

func TestMapLoadPoint(t *testing.T) {
	m := &core.MapLoad{MapName: "de_nuke", Placeholder: true, Cuboids: 1, Time: time.Unix(1700000000, 0)}
	line := influxdb2_write.PointToLineProtocol(MapLoadPoint(m), time.Nanosecond)

	assert.True(t, strings.HasPrefix(line, MeasurementMapLoad+","), line)
	assert.Contains(t, line, "placeholder=true")
	assert.Contains(t, line, "cuboids=1i")
}

func TestBackend_FallsBackToBackupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	b := New(unreachable(), path, zerolog.Nop())

	require.NoError(t, b.Init())
	assert.False(t, b.IsValid())

	s := core.NewSession("test", 4, 64)
	require.NoError(t, b.StartSession(&s))
	require.NoError(t, b.RecordPerformance(&core.PerformanceSample{SessionID: s.ID, MapName: "de_dust2", Time: time.Now(), Ticks: 3}))
	require.NoError(t, b.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], MeasurementSession))
	assert.True(t, strings.HasPrefix(lines[1], MeasurementTick))
}

func TestBackend_NoBackupPath(t *testing.T) {
	b := New(unreachable(), "", zerolog.Nop())
	assert.Error(t, b.Init())
	assert.Error(t, b.RecordPerformance(&core.PerformanceSample{}))
	assert.NoError(t, b.Close())
}
