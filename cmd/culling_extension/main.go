package main

/*
#include <stdlib.h>
#include <stdio.h>
#include <string.h>
*/
import "C" // This is required to import the C code

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/cornerculling/extension/internal/cache"
	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/culling"
	"github.com/cornerculling/extension/internal/dispatcher"
	"github.com/cornerculling/extension/internal/handlers"
	"github.com/cornerculling/extension/internal/logging"
	"github.com/cornerculling/extension/internal/mapfile"
	"github.com/cornerculling/extension/internal/monitor"
	intOtel "github.com/cornerculling/extension/internal/otel"
	"github.com/cornerculling/extension/internal/session"
	"github.com/cornerculling/extension/internal/storage"
	"github.com/cornerculling/extension/pkg/core"
	"github.com/cornerculling/extension/pkg/hostinterface"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentExtensionVersion string = "0.0.1"
	BuildDate               string = "unknown"

	ExtensionName string = "corner_culling"
)

// file paths
var (
	// ModulePath is the absolute path to this library file.
	ModulePath string

	// ModuleFolder is the parent folder of ModulePath, where the config file is read from
	ModuleFolder string

	LogFilePath string
	LogFile     *os.File
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger carrying the session and map context
	Logger *slog.Logger

	// ZLogger is the zerolog logger used by the dispatcher and the Influx writer
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime time.Time = time.Now()

	// Services
	engine          *culling.Engine
	sessionCtx      *session.Context
	handlerService  *handlers.Service
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	graylogWriter   io.Writer

	// Storage backend (optional)
	storageBackend storage.Backend

	// servicesMu guards storageBackend and monitorService, which are set
	// by startServices and torn down by :SHUTDOWN:
	servicesMu sync.Mutex
)

// init is run automatically when the library is loaded by the host
func init() {
	var err error

	ModulePath = hostinterface.GetModulePath()
	ModuleFolder = hostinterface.GetModuleDir()

	// Initialize slog manager on stdout until the log file exists
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	// load config
	err = loadConfig()
	if err != nil {
		config.LoadDefaults()
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	LogFilePath = logging.LogFilePath(resolvePath(viper.GetString("logsDir")), ExtensionName, SessionStartTime)
	LogFile, err = logging.OpenLogFile(LogFilePath)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	// Initialize OTel provider if enabled (after log file is created)
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:        otelCfg.Enabled,
			ServiceName:    otelCfg.ServiceName,
			Version:        CurrentExtensionVersion,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      LogFile,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
			MetricInterval: config.GetMonitorConfig().Interval * 10,
			Attributes: []attribute.KeyValue{
				attribute.Int("culling.max_characters", config.GetCullingConfig().MaxCharacters),
				attribute.Int("culling.tick_rate", config.GetCullingConfig().TickRate),
			},
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		} else {
			Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
		}
	}

	if viper.GetBool("graylog.enabled") {
		w, err := logging.NewGraylogWriter(viper.GetString("graylog.address"), ExtensionName)
		if err != nil {
			Logger.Error("Failed to set up Graylog sink", "error", err)
		} else {
			graylogWriter = w
		}
	}

	setupLogging()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentExtensionVersion, "buildDate", BuildDate)

	if err := setupEngine(); err != nil {
		Logger.Error("Failed to set up culling engine!", "error", err)
		panic(err)
	}

	Logger.Info("Setting up host interface...")
	if err := setupHostInterface(); err != nil {
		Logger.Error("Failed to set up host interface!", "error", err)
		panic(err)
	}
	Logger.Info("Set up host interface")

	// the host ticks on its own thread; leave it a core
	numCPUs := runtime.NumCPU()
	Logger.Debug("Number of CPUs", "numCPUs", numCPUs)
	runtime.GOMAXPROCS(int(math.Max(float64(numCPUs-1), 1)))

	go startServices()
}

func loadConfig() error {
	return config.Load(ModuleFolder)
}

// resolvePath anchors relative config paths at the module folder
func resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ModuleFolder, p)
}

// setupLogging (re)builds the slog fan-out from the current config
func setupLogging() {
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}

	var file io.Writer
	if LogFile != nil {
		file = LogFile
	}
	SlogManager.Setup(file, viper.GetString("logLevel"), otelLogProvider, graylogWriter)

	// every record carries the session, map and generation
	Logger = SlogManager.Bind(func() []slog.Attr {
		if sessionCtx == nil {
			return nil
		}
		return sessionCtx.LogAttrs()
	})
	slog.SetDefault(Logger)
	hostinterface.SetLogger(Logger)

	var zw io.Writer = os.Stdout
	if LogFile != nil {
		zw = LogFile
	}
	level, err := zerolog.ParseLevel(viper.GetString("logLevel"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	ZLogger = zerolog.New(zw).Level(level).With().Timestamp().Str("extension", ExtensionName).Logger()
}

func setupEngine() error {
	cullingCfg := config.GetCullingConfig()
	ctrl, err := culling.New(cullingCfg)
	if err != nil {
		return err
	}
	engine = culling.NewEngine(ctrl)
	sessionCtx = session.NewContext(core.NewSession(CurrentExtensionVersion, cullingCfg.MaxCharacters, cullingCfg.TickRate))

	Logger.Info("Culling engine ready",
		"maxCharacters", cullingCfg.MaxCharacters,
		"tickRate", cullingCfg.TickRate,
		"period", cullingCfg.Period,
		"timerMax", cullingCfg.EffectiveTimerMax(),
		"scalarGeometry", cullingCfg.ScalarGeometry)
	return nil
}

func setupHostInterface() error {
	hostinterface.SetVersion(CurrentExtensionVersion)
	hostinterface.SetEngine(engine)

	d, err := dispatcher.New(logging.NewCommandLogger(ZLogger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	handlerService = handlers.NewService(handlers.Dependencies{
		Engine:   engine,
		Loader:   mapfile.NewLoader(Logger, resolvePath(config.GetCullingConfig().MapsDir)),
		Maps:     cache.NewMapCache(),
		Session:  sessionCtx,
		Logger:   Logger,
		Version:  CurrentExtensionVersion,
		OnReload: setupLogging,
	})
	handlerService.RegisterHandlers(d)
	d.Register(":SHUTDOWN:", func(dispatcher.Command) (any, error) {
		return nil, shutdown()
	}, dispatcher.Logged())

	hostinterface.SetDispatcher(d)
	eventDispatcher = d
	Logger.Info("Dispatcher initialized", "commands", d.Commands())
	return nil
}

// startServices brings up storage and the performance monitor. Map loads
// received before storage is ready are installed but not recorded.
func startServices() {
	if err := initStorage(); err != nil {
		Logger.Error("Storage unavailable, culling statistics will not be kept", "error", err)
	}

	monitorCfg := config.GetMonitorConfig()
	if !monitorCfg.Enabled {
		return
	}
	servicesMu.Lock()
	defer servicesMu.Unlock()
	monitorService = monitor.NewService(monitor.Dependencies{
		Stats:      engine,
		Session:    sessionCtx,
		Backend:    storageBackend,
		Logger:     Logger,
		StatusPath: filepath.Join(ModuleFolder, "status.txt"),
		Interval:   monitorCfg.Interval,
	})
	if err := monitorService.Start(); err != nil {
		Logger.Error("Failed to start performance monitor", "error", err)
	}
}

// shutdown stops the monitor, closes storage (exporting where the backend
// does so) and flushes telemetry. Culling keeps running.
func shutdown() error {
	servicesMu.Lock()
	mon, backend := monitorService, storageBackend
	monitorService, storageBackend = nil, nil
	servicesMu.Unlock()

	if mon != nil {
		mon.Stop()
	}

	var err error
	if backend != nil {
		handlerService.SetBackend(nil)
		if err = backend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
		if exp, ok := backend.(storage.Exporter); ok && exp.GetExportedFilePath() != "" {
			Logger.Info("Exported culling statistics", "path", exp.GetExportedFilePath())
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if OTelProvider != nil {
		if ferr := OTelProvider.Shutdown(ctx); ferr != nil {
			Logger.Error("Failed to shut down OTel provider", "error", ferr)
		}
	}
	if ferr := SlogManager.Flush(ctx); ferr != nil {
		Logger.Error("Failed to flush logs", "error", ferr)
	}
	return err
}

func main() {}
