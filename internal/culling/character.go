package culling

import "github.com/go-gl/mathgl/mgl64"

// Character is one roster slot as supplied by the host each tick.
// A team of 1 or less marks a spectator or an empty slot.
type Character struct {
	Team  int
	Alive bool
	Eye   mgl64.Vec3
	Base  mgl64.Vec3
	Yaw   float64
	Pitch float64
	Speed float64
}

// Combatant reports whether the slot takes part in culling.
func (c *Character) Combatant() bool {
	return c.Alive && c.Team > 1
}

// roster adapts the character slice to visibility.Roster.
type roster []Character

func (r roster) Len() int         { return len(r) }
func (r roster) Alive(i int) bool { return r[i].Combatant() }
func (r roster) Team(i int) int   { return r[i].Team }
