package hostinterface

import (
	"log/slog"
	"sync"

	"github.com/cornerculling/extension/internal/culling"
	"github.com/cornerculling/extension/internal/dispatcher"
)

// Engine is the culling engine as driven by the host
type Engine interface {
	Step(snapshots []culling.Character, out []bool) error
	IsVisible(observer, target int) bool
	Capacity() int
}

// Config defines how calls to this extension will be handled
var Config configStruct = configStruct{}

func init() {
	Config.Init()
}

// configStruct is the central configuration used by this library
type configStruct struct {
	// version is the value returned by CullingVersion and :VERSION:
	version string

	// dispatcher handles the string command channel
	dispatcher *dispatcher.Dispatcher

	// engine receives snapshot updates and visibility queries
	engine Engine

	logger *slog.Logger

	// scratch buffers reused across ticks, guarded by frameMu
	frameMu    sync.Mutex
	characters []culling.Character
	visible    []bool
}

// Init method initializes the config struct
func (c *configStruct) Init() {
	c.version = "No version set"
	c.logger = slog.Default()
}

// SetVersion sets the version string reported to the host
func SetVersion(version string) {
	Config.version = version
}

// SetDispatcher sets the event dispatcher for handling commands
func SetDispatcher(d *dispatcher.Dispatcher) {
	Config.dispatcher = d
}

// GetDispatcher returns the configured dispatcher, or nil if not set
func GetDispatcher() *dispatcher.Dispatcher {
	return Config.dispatcher
}

// SetEngine sets the engine that snapshot updates are stepped on
func SetEngine(e Engine) {
	Config.engine = e
}

// SetLogger sets the logger used for rejected host calls
func SetLogger(l *slog.Logger) {
	if l != nil {
		Config.logger = l
	}
}
