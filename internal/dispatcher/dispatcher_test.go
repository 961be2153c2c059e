package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) log(level, msg string, keysAndValues []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, keysAndValues))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.log("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.log("INFO", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.log("ERROR", msg, kv) }

func (l *testLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.messages {
		if strings.Contains(m, s) {
			return true
		}
	}
	return false
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}
	t.Cleanup(d.Close)
	return d, logger
}

func TestCommand_Arg(t *testing.T) {
	c := Command{Name: ":MAP:LOAD:", Args: []string{"de_dust2"}}
	if got := c.Arg(0); got != "de_dust2" {
		t.Errorf("Arg(0) = %q", got)
	}
	if got := c.Arg(1); got != "" {
		t.Errorf("Arg(1) = %q, want empty", got)
	}
	if got := c.Arg(-1); got != "" {
		t.Errorf("Arg(-1) = %q, want empty", got)
	}
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Command
	d.Register(":VERSION:", func(c Command) (any, error) {
		got = c
		return "0.0.1", nil
	})

	result, err := d.Dispatch(Command{Name: ":VERSION:", Args: []string{"x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "0.0.1" {
		t.Errorf("expected 0.0.1, got %v", result)
	}
	if got.Arg(0) != "x" {
		t.Errorf("handler did not receive args: %+v", got)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Command{Name: ":NOPE:"})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDispatcher_AsyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var count atomic.Int32
	d.Register(":MAP:LOAD:", func(Command) (any, error) {
		count.Add(1)
		return nil, nil
	}, Async(100))

	for i := 0; i < 10; i++ {
		result, err := d.Dispatch(Command{Name: ":MAP:LOAD:"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result != Queued {
			t.Errorf("expected %q, got %v", Queued, result)
		}
	}

	d.Close()
	if got := count.Load(); got != 10 {
		t.Errorf("expected 10 handled, got %d", got)
	}
}

func TestDispatcher_AsyncRejectsWhenFull(t *testing.T) {
	d, logger := newTestDispatcher(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register(":MAP:LOAD:", func(Command) (any, error) {
		started <- struct{}{}
		<-release
		return nil, nil
	}, Async(2))

	// first command occupies the worker
	if _, err := d.Dispatch(Command{Name: ":MAP:LOAD:"}); err != nil {
		t.Fatal(err)
	}
	<-started

	for i := 0; i < 2; i++ {
		if _, err := d.Dispatch(Command{Name: ":MAP:LOAD:"}); err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
	}
	_, err := d.Dispatch(Command{Name: ":MAP:LOAD:"})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	go func() {
		for range started {
		}
	}()
	close(release)
	d.Close()
	close(started)

	if logger.contains("queued command failed") {
		t.Error("no handler returned an error")
	}
}

func TestDispatcher_LatestWins(t *testing.T) {
	d, _ := newTestDispatcher(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var handled []string
	d.Register(":MAP:LOAD:", func(c Command) (any, error) {
		mu.Lock()
		handled = append(handled, c.Arg(0))
		mu.Unlock()
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil, nil
	}, Async(1), LatestWins())

	if _, err := d.Dispatch(Command{Name: ":MAP:LOAD:", Args: []string{"first"}}); err != nil {
		t.Fatal(err)
	}
	<-started

	for _, name := range []string{"second", "third", "fourth"} {
		result, err := d.Dispatch(Command{Name: ":MAP:LOAD:", Args: []string{name}})
		if err != nil {
			t.Fatalf("dispatch %s: %v", name, err)
		}
		if result != Queued {
			t.Errorf("expected %q, got %v", Queued, result)
		}
	}

	close(release)
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(handled) != 2 || handled[0] != "first" || handled[1] != "fourth" {
		t.Errorf("expected [first fourth], got %v", handled)
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":STATS:", func(Command) (any, error) {
		return "ok", nil
	}, Logged())

	if _, err := d.Dispatch(Command{Name: ":STATS:"}); err != nil {
		t.Fatal(err)
	}
	if !logger.contains("DEBUG: handling command") || !logger.contains("DEBUG: command complete") {
		t.Errorf("expected start and completion logs, got %v", logger.messages)
	}
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":CONFIG:RELOAD:", func(Command) (any, error) {
		return nil, errors.New("bad config")
	}, Logged())

	if _, err := d.Dispatch(Command{Name: ":CONFIG:RELOAD:"}); err == nil {
		t.Fatal("expected error")
	}
	if !logger.contains("ERROR: command failed") {
		t.Errorf("expected error log, got %v", logger.messages)
	}
}

func TestDispatcher_AsyncErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register(":MAP:LOAD:", func(Command) (any, error) {
		return nil, errors.New("no such map")
	}, Async(1))

	if _, err := d.Dispatch(Command{Name: ":MAP:LOAD:"}); err != nil {
		t.Fatal(err)
	}
	d.Close()

	if !logger.contains("queued command failed") {
		t.Errorf("expected worker error log, got %v", logger.messages)
	}
}

func TestDispatcher_HasHandlerAndCommands(t *testing.T) {
	d, _ := newTestDispatcher(t)

	noop := func(Command) (any, error) { return nil, nil }
	d.Register(":VERSION:", noop)
	d.Register(":MAP:LOAD:", noop, Async(1))
	d.Register(":STATS:", noop)

	if !d.HasHandler(":STATS:") {
		t.Error("expected :STATS: to be registered")
	}
	if d.HasHandler(":SHUTDOWN:") {
		t.Error("did not expect :SHUTDOWN: to be registered")
	}

	got := d.Commands()
	want := []string{":MAP:LOAD:", ":STATS:", ":VERSION:"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Commands() = %v, want %v", got, want)
	}
}

func TestDispatcher_CloseDrainsAndRejects(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var count atomic.Int32
	d.Register(":MAP:LOAD:", func(Command) (any, error) {
		time.Sleep(time.Millisecond)
		count.Add(1)
		return nil, nil
	}, Async(10))
	d.Register(":VERSION:", func(Command) (any, error) { return "v", nil })

	for i := 0; i < 5; i++ {
		if _, err := d.Dispatch(Command{Name: ":MAP:LOAD:"}); err != nil {
			t.Fatal(err)
		}
	}
	d.Close()
	d.Close()

	if got := count.Load(); got != 5 {
		t.Errorf("expected 5 handled before Close returned, got %d", got)
	}

	_, err := d.Dispatch(Command{Name: ":MAP:LOAD:"})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if result, err := d.Dispatch(Command{Name: ":VERSION:"}); err != nil || result != "v" {
		t.Errorf("sync handlers keep working after Close: %v %v", result, err)
	}
}
