// internal/storage/storage_test.go
package storage_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cornerculling/extension/internal/storage"
	"github.com/cornerculling/extension/pkg/core"
)

type countingBackend struct {
	inits, closes, sessions, maps, samples atomic.Int32
	err                                    error
	path                                   string
}

func (c *countingBackend) Init() error  { c.inits.Add(1); return c.err }
func (c *countingBackend) Close() error { c.closes.Add(1); return c.err }
func (c *countingBackend) StartSession(*core.Session) error {
	c.sessions.Add(1)
	return c.err
}
func (c *countingBackend) RecordMapLoad(*core.MapLoad) error {
	c.maps.Add(1)
	return c.err
}
func (c *countingBackend) RecordPerformance(*core.PerformanceSample) error {
	c.samples.Add(1)
	return c.err
}
func (c *countingBackend) GetExportedFilePath() string { return c.path }

func TestNewMulti_Single(t *testing.T) {
	b := &countingBackend{}
	assert.Same(t, b, storage.NewMulti(b))
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &countingBackend{}, &countingBackend{path: "/tmp/out.json"}
	m := storage.NewMulti(a, b)

	require.NoError(t, m.Init())
	require.NoError(t, m.StartSession(&core.Session{}))
	require.NoError(t, m.RecordMapLoad(&core.MapLoad{}))
	require.NoError(t, m.RecordPerformance(&core.PerformanceSample{}))
	require.NoError(t, m.RecordPerformance(&core.PerformanceSample{}))
	require.NoError(t, m.Close())

	for _, c := range []*countingBackend{a, b} {
		assert.EqualValues(t, 1, c.inits.Load())
		assert.EqualValues(t, 1, c.sessions.Load())
		assert.EqualValues(t, 1, c.maps.Load())
		assert.EqualValues(t, 2, c.samples.Load())
		assert.EqualValues(t, 1, c.closes.Load())
	}

	exp, ok := m.(storage.Exporter)
	require.True(t, ok)
	assert.Equal(t, "/tmp/out.json", exp.GetExportedFilePath())
}

func TestMulti_ErrorStillReachesAll(t *testing.T) {
	boom := errors.New("boom")
	a, b := &countingBackend{err: boom}, &countingBackend{}
	m := storage.NewMulti(a, b)

	err := m.Close()
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, b.closes.Load())

	err = m.Init()
	assert.ErrorIs(t, err, boom)
}
