package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/cornerculling/extension/internal/queue"
	"github.com/cornerculling/extension/pkg/streaming"
)

const (
	outboxLimit = 4096
	minBackoff  = time.Second
	maxBackoff  = 30 * time.Second
	writeWait   = 10 * time.Second
	ackTimeout  = 10 * time.Second
)

var errClosed = errors.New("websocket connection closed")

// connection owns one collector socket. A single supervisor goroutine writes
// the outbox and re-dials after failures until close is called.
type connection struct {
	logger *slog.Logger
	url    string

	outbox *queue.Queue[[]byte]
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}

	mu       sync.Mutex
	conn     *ws.Conn
	closed   bool
	running  bool
	announce []byte // start_session, replayed first on every new socket
	waiters  map[string][]chan struct{}
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		logger:  logger,
		outbox:  queue.NewBounded[[]byte](outboxLimit),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
		waiters: make(map[string][]chan struct{}),
	}
}

// dial connects once and starts the supervisor. The secret travels as a
// query parameter.
func (c *connection) dial(rawURL, secret string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", secret)
	u.RawQuery = q.Encode()
	c.url = u.String()

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	go c.run(conn)
	return nil
}

func (c *connection) dialOnce() (*ws.Conn, error) {
	conn, _, err := ws.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) run(conn *ws.Conn) {
	defer close(c.exited)

	backoff := minBackoff
	for {
		err := c.serve(conn)
		if errors.Is(err, errClosed) {
			return
		}
		c.logger.Warn("WebSocket connection lost", "error", err)

		for {
			select {
			case <-c.done:
				return
			case <-time.After(backoff):
			}

			conn, err = c.redial()
			if err == nil {
				break
			}
			c.logger.Warn("WebSocket reconnect failed", "backoff", backoff, "error", err)
			backoff = min(backoff*2, maxBackoff)
		}
		backoff = minBackoff
		c.logger.Info("WebSocket reconnected")
	}
}

// redial opens a new socket and replays the session announcement on it.
func (c *connection) redial() (*ws.Conn, error) {
	conn, err := c.dialOnce()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	announce := c.announce
	c.mu.Unlock()

	if announce != nil {
		if err := write(conn, announce); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("replaying start_session: %w", err)
		}
	}
	return conn, nil
}

// serve writes queued frames to conn until a read or write fails or the
// connection is closed. Frames that could not be written stay queued.
func (c *connection) serve(conn *ws.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	readErr := make(chan error, 1)
	go func() { readErr <- c.readAcks(conn) }()

	// frames left over from the previous socket
	if c.outbox.Len() > 0 {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}

	defer func() {
		c.mu.Lock()
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		if closed {
			_ = conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
		}
		_ = conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return errClosed
		case err := <-readErr:
			return err
		case <-c.wake:
		}

		frames := c.outbox.Drain()
		for i, data := range frames {
			if err := write(conn, data); err != nil {
				c.outbox.Requeue(frames[i:])
				return err
			}
		}
	}
}

func write(conn *ws.Conn, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(ws.TextMessage, data)
}

// readAcks releases the oldest waiter for every ack the collector sends.
func (c *connection) readAcks(conn *ws.Conn) error {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != "ack" {
			c.logger.Debug("Ignoring collector message", "raw", string(message))
			continue
		}

		c.mu.Lock()
		if pending := c.waiters[ack.For]; len(pending) > 0 {
			close(pending[0])
			c.waiters[ack.For] = pending[1:]
		}
		c.mu.Unlock()
	}
}

// send queues data for the supervisor. When the collector lags the oldest
// queued frames are dropped.
func (c *connection) send(data []byte) {
	before := c.outbox.Dropped()
	c.outbox.Push(data)
	if c.outbox.Dropped() != before {
		c.logger.Warn("WebSocket outbox full, dropped oldest message", "dropped", c.outbox.Dropped())
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// sendAndWait queues data and blocks until the collector acknowledges ackFor.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	acked := make(chan struct{})
	c.mu.Lock()
	c.waiters[ackFor] = append(c.waiters[ackFor], acked)
	c.mu.Unlock()

	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-acked:
		return nil
	case <-timer.C:
		c.dropWaiter(ackFor, acked)
		return fmt.Errorf("timeout waiting for ack of %q", ackFor)
	case <-c.done:
		return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
	}
}

func (c *connection) dropWaiter(ackFor string, ch chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.waiters[ackFor]
	for i, w := range pending {
		if w == ch {
			c.waiters[ackFor] = append(pending[:i], pending[i+1:]...)
			return
		}
	}
}

func (c *connection) setAnnouncement(data []byte) {
	c.mu.Lock()
	c.announce = data
	c.mu.Unlock()
}

// endSession clears the announcement and reports whether a session was open
// on a live socket.
func (c *connection) endSession() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	open := c.announce != nil && c.conn != nil
	c.announce = nil
	return open
}

// close stops the supervisor, which sends a close frame on the live socket.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	running := c.running
	c.mu.Unlock()

	if running {
		<-c.exited
	}
	return nil
}
