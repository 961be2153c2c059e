// pkg/core/session.go
package core

import (
	"time"

	"github.com/google/uuid"
)

// Session is one load of the extension by the game server.
type Session struct {
	ID               uuid.UUID
	StartedAt        time.Time
	ExtensionVersion string
	MaxCharacters    int
	TickRate         int
}

// NewSession creates a session with a fresh random ID.
func NewSession(version string, maxCharacters, tickRate int) Session {
	return Session{
		ID:               uuid.New(),
		StartedAt:        time.Now().UTC(),
		ExtensionVersion: version,
		MaxCharacters:    maxCharacters,
		TickRate:         tickRate,
	}
}
