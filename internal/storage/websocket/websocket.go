package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cornerculling/extension/pkg/core"
	"github.com/cornerculling/extension/pkg/streaming"
)

// Config holds WebSocket backend configuration.
type Config struct {
	URL    string
	Secret string
}

// Backend streams culling records over WebSocket to a collector. Session
// start and end wait for an ack; map loads and samples are fire-and-forget.
// It implements storage.Backend but not storage.Exporter.
type Backend struct {
	conn *connection
	cfg  Config
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn: newConnection(logger),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.dial(b.cfg.URL, b.cfg.Secret)
}

// Close sends end_session when a session is open, then disconnects.
func (b *Backend) Close() error {
	var endErr error
	if b.conn.endSession() {
		endErr = b.sendEnvelopeAndWait(streaming.TypeEndSession, nil)
	}
	if err := b.conn.close(); err != nil {
		return err
	}
	return endErr
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

// sendEnvelopeAndWait marshals the payload and waits for a server ack.
func (b *Backend) sendEnvelopeAndWait(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	return b.conn.sendAndWait(data, msgType, ackTimeout)
}

// StartSession announces the session and waits for server ack.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := marshalEnvelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.conn.setAnnouncement(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, ackTimeout)
}

// RecordMapLoad sends the map load with its footprint as raw GeoJSON.
func (b *Backend) RecordMapLoad(m *core.MapLoad) error {
	cp := *m
	cp.Footprint = nil
	payload := streaming.MapLoadPayload{MapLoad: &cp}
	if len(m.Footprint) > 0 {
		payload.Footprint = json.RawMessage(m.Footprint)
	}
	return b.sendEnvelope(streaming.TypeMapLoad, payload)
}

func (b *Backend) RecordPerformance(p *core.PerformanceSample) error {
	return b.sendEnvelope(streaming.TypePerfSample, p)
}
