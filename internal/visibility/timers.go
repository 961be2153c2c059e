// Package visibility turns per-tick culling results into a stable
// visibility relation using a countdown per ordered pair.
package visibility

// Roster is the read-only view of character state the timers need.
type Roster interface {
	Len() int
	Alive(i int) bool
	Team(i int) int
}

// Hostile reports whether i and j are distinct, alive and on different teams.
func Hostile(r Roster, i, j int) bool {
	return i != j && r.Alive(i) && r.Alive(j) && r.Team(i) != r.Team(j)
}

// Timers is a dense matrix of countdowns indexed by (observer, target).
type Timers struct {
	characters int
	max        int
	cells      []int
}

// NewTimers allocates a timer matrix for the given roster capacity.
func NewTimers(characters, timerMax int) *Timers {
	return &Timers{
		characters: characters,
		max:        timerMax,
		cells:      make([]int, characters*characters),
	}
}

// Max returns the value a reset sets.
func (t *Timers) Max() int {
	return t.max
}

// Get returns the current countdown of a pair.
func (t *Timers) Get(observer, target int) int {
	return t.cells[observer*t.characters+target]
}

// Reset marks target as just confirmed visible to observer.
func (t *Timers) Reset(observer, target int) {
	t.cells[observer*t.characters+target] = t.max
}

// DecayAll decrements every positive timer of a hostile pair by one.
func (t *Timers) DecayAll(r Roster) {
	n := min(r.Len(), t.characters)
	for i := 0; i < n; i++ {
		row := t.cells[i*t.characters : i*t.characters+n]
		for j := range row {
			if row[j] > 0 && Hostile(r, i, j) {
				row[j]--
			}
		}
	}
}

// IsVisible is true for teammates and otherwise while the pair's timer runs.
func (t *Timers) IsVisible(r Roster, observer, target int) bool {
	if observer < 0 || target < 0 || observer >= t.characters || target >= t.characters {
		return false
	}
	if r.Team(observer) == r.Team(target) {
		return true
	}
	return t.Get(observer, target) > 0
}

// Clear zeroes every timer.
func (t *Timers) Clear() {
	clear(t.cells)
}
