package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cornerculling/extension/internal/queue"
)

var (
	// ErrUnknownCommand is returned by Dispatch for unregistered commands.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned when a queued handler already holds its limit.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned for queued commands dispatched after Close.
	ErrClosed = errors.New("dispatcher closed")
)

const instrumentationName = "github.com/cornerculling/extension/internal/dispatcher"

// Queued is the result of a command accepted by a queued handler.
const Queued = "queued"

// Command is one request from the game server: the name and the
// "|"-separated arguments that followed it.
type Command struct {
	Name     string
	Args     []string
	Received time.Time
}

// Arg returns the i-th argument, or "" if the host sent fewer.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// HandlerFunc processes a command and returns a result.
type HandlerFunc func(Command) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*options)

type options struct {
	queueSize int
	coalesce  bool
	logged    bool
}

// Async runs the handler on its own goroutine. At most size commands wait;
// further ones are rejected with ErrQueueFull.
func Async(size int) Option {
	return func(o *options) {
		o.queueSize = size
	}
}

// LatestWins makes a full Async queue drop its oldest waiting command
// instead of rejecting the new one.
func LatestWins() Option {
	return func(o *options) {
		o.coalesce = true
	}
}

// Logged adds debug logging and timing to the handler.
func Logged() Option {
	return func(o *options) {
		o.logged = true
	}
}

type worker struct {
	admit   sync.Mutex
	name    string
	limit   int
	pending *queue.Queue[Command]
	wake    chan struct{}
}

// Dispatcher routes host commands to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	workers  []*worker
	closed   bool
	done     chan struct{}
	wg       sync.WaitGroup
	logger   Logger

	pendingGauge metric.Int64ObservableGauge
	processed    metric.Int64Counter
	dropped      metric.Int64Counter
}

// New creates a Dispatcher. Metrics go to the global OTel meter, which is a
// no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		done:     make(chan struct{}),
		logger:   logger,
	}

	m := otel.Meter(instrumentationName)
	var err error

	d.pendingGauge, err = m.Int64ObservableGauge(
		"culling.commands.pending",
		metric.WithDescription("Commands waiting for a queued handler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating pending gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		d.mu.RLock()
		defer d.mu.RUnlock()
		for _, w := range d.workers {
			o.ObserveInt64(d.pendingGauge, int64(w.pending.Len()),
				metric.WithAttributes(attribute.String("command", w.name)))
		}
		return nil
	}, d.pendingGauge)
	if err != nil {
		return nil, fmt.Errorf("registering pending callback: %w", err)
	}

	if d.processed, err = m.Int64Counter(
		"culling.commands.processed",
		metric.WithDescription("Queued commands handled"),
	); err != nil {
		return nil, fmt.Errorf("creating processed counter: %w", err)
	}
	if d.dropped, err = m.Int64Counter(
		"culling.commands.dropped",
		metric.WithDescription("Queued commands rejected or superseded"),
	); err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	return d, nil
}

// Register adds a handler for the named command. Registering a name twice
// replaces the synchronous handler; any worker started for the old one keeps
// running until Close.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...Option) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	handler := h
	if o.logged {
		handler = d.withLogging(name, handler)
	}
	if o.queueSize > 0 {
		handler = d.startWorker(name, o, handler)
	}

	d.mu.Lock()
	d.handlers[name] = handler
	d.mu.Unlock()
}

// Dispatch routes a command to its handler.
func (d *Dispatcher) Dispatch(c Command) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[c.Name]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	return h(c)
}

// Commands returns the registered command names in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[name]
	return ok
}

// Close stops accepting queued commands and waits until every worker has
// handled what was already waiting.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.done)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) startWorker(name string, o options, h HandlerFunc) HandlerFunc {
	w := &worker{
		name:  name,
		limit: o.queueSize,
		wake:  make(chan struct{}, 1),
	}
	if o.coalesce {
		w.pending = queue.NewBounded[Command](o.queueSize)
	} else {
		w.pending = queue.New[Command]()
	}

	d.mu.Lock()
	d.workers = append(d.workers, w)
	d.mu.Unlock()

	cmdAttr := metric.WithAttributes(attribute.String("command", name))

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			for c, ok := w.pending.Pop(); ok; c, ok = w.pending.Pop() {
				if _, err := h(c); err != nil {
					d.logger.Error("queued command failed", "command", name, "error", err)
				}
				d.processed.Add(context.Background(), 1, cmdAttr)
			}
			select {
			case <-w.wake:
			case <-d.done:
				if w.pending.Len() == 0 {
					return
				}
			}
		}
	}()

	return func(c Command) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed {
			return nil, fmt.Errorf("%w: %s", ErrClosed, name)
		}

		w.admit.Lock()
		defer w.admit.Unlock()
		if o.coalesce {
			before := w.pending.Dropped()
			w.pending.Push(c)
			if n := w.pending.Dropped() - before; n > 0 {
				d.dropped.Add(context.Background(), int64(n), cmdAttr)
				d.logger.Debug("superseded queued command", "command", name)
			}
		} else {
			if w.pending.Len() >= w.limit {
				d.dropped.Add(context.Background(), 1, cmdAttr)
				return nil, fmt.Errorf("%w: %s", ErrQueueFull, name)
			}
			w.pending.Push(c)
		}

		select {
		case w.wake <- struct{}{}:
		default:
		}
		return Queued, nil
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(c Command) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", name, "args", len(c.Args))

		result, err := h(c)
		if err != nil {
			d.logger.Error("command failed", "command", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("command complete", "command", name, "duration", time.Since(start))
		}
		return result, err
	}
}
