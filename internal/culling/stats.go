package culling

import "time"

// TickCounts are the per-pass outcomes of a single tick.
type TickCounts struct {
	Bundles    int `json:"bundles"`
	CacheHits  int `json:"cacheHits"`
	SphereHits int `json:"sphereHits"`
	IndexHits  int `json:"indexHits"`
	Visible    int `json:"visible"`
}

// Stats summarizes culling cost. Rolling figures cover the last completed
// window of one second's worth of ticks.
type Stats struct {
	Ticks          int64         `json:"ticks"`
	Generation     uint32        `json:"generation"`
	Occluders      int           `json:"occluders"`
	RollingAverage time.Duration `json:"rollingAverage"`
	RollingMax     time.Duration `json:"rollingMax"`
	OverallAverage time.Duration `json:"overallAverage"`
	Last           TickCounts    `json:"last"`
}

type statsWindow struct {
	length int64

	total       time.Duration
	ticks       int64
	windowTotal time.Duration
	windowMax   time.Duration
	rollingAvg  time.Duration
	rollingMax  time.Duration
	last        TickCounts
}

func (w *statsWindow) add(d time.Duration, counts TickCounts) {
	w.ticks++
	w.total += d
	w.windowTotal += d
	w.windowMax = max(w.windowMax, d)
	w.last = counts

	if w.length > 0 && w.ticks%w.length == 0 {
		w.rollingAvg = w.windowTotal / time.Duration(w.length)
		w.rollingMax = w.windowMax
		w.windowTotal = 0
		w.windowMax = 0
	}
}

func (w *statsWindow) overallAverage() time.Duration {
	if w.ticks == 0 {
		return 0
	}
	return w.total / time.Duration(w.ticks)
}
