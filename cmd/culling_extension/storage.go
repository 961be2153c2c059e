//go:build cgo

package main

import (
	"fmt"
	"path/filepath"
	"slices"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/storage"
	influxstorage "github.com/cornerculling/extension/internal/storage/influx"
	"github.com/cornerculling/extension/internal/storage/memory"
	pgstorage "github.com/cornerculling/extension/internal/storage/postgres"
	sqlitestorage "github.com/cornerculling/extension/internal/storage/sqlite"
	wsstorage "github.com/cornerculling/extension/internal/storage/websocket"
)

func initStorage() error {
	Logger.Debug("Initializing storage")

	storageCfg := config.GetStorageConfig()

	backend, err := createStorageBackend(storageCfg)
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return err
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err)
		return err
	}

	s := sessionCtx.GetSession()
	if err := backend.StartSession(&s); err != nil {
		Logger.Error("Failed to start storage session", "error", err)
		backend.Close()
		return err
	}

	servicesMu.Lock()
	storageBackend = backend
	servicesMu.Unlock()
	handlerService.SetBackend(backend)
	Logger.Info("Storage ready", "types", storageCfg.Types(), "session", s.ID)
	return nil
}

// createStorageBackend builds one backend per configured type, fanned out
// when more than one is listed
func createStorageBackend(storageCfg config.StorageConfig) (storage.Backend, error) {
	types := storageCfg.Types()
	if len(types) == 0 {
		types = []string{"memory"}
	}
	if config.GetInfluxConfig().Enabled && !slices.Contains(types, "influx") {
		types = append(types, "influx")
	}

	var backends []storage.Backend
	for _, t := range types {
		b, err := newBackend(t, storageCfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return storage.NewMulti(backends...), nil
}

func newBackend(storageType string, storageCfg config.StorageConfig) (storage.Backend, error) {
	stamp := SessionStartTime.Format("20060102_150405")

	switch storageType {
	case "memory":
		memCfg := storageCfg.Memory
		memCfg.OutputDir = resolvePath(memCfg.OutputDir)
		Logger.Info("Memory storage backend initialized", "outputDir", memCfg.OutputDir)
		return memory.New(memCfg), nil

	case "sqlite":
		sqliteDBFilePath := filepath.Join(ModuleFolder, fmt.Sprintf("%s_%s.db", ExtensionName, stamp))
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     sqliteDBFilePath,
		}, Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "dumpPath", sqliteDBFilePath)
		return backend, nil

	case "postgres":
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(config.GetDBConfig(), Logger), nil

	case "websocket":
		Logger.Info("WebSocket storage backend initialized", "url", storageCfg.WebSocket.URL)
		return wsstorage.New(wsstorage.Config{
			URL:    storageCfg.WebSocket.URL,
			Secret: storageCfg.WebSocket.Secret,
		}, Logger), nil

	case "influx":
		influxCfg := config.GetInfluxConfig()
		backupPath := filepath.Join(ModuleFolder, fmt.Sprintf("%s_influx_%s.lp.gz", ExtensionName, stamp))
		Logger.Info("InfluxDB storage backend initialized", "url", influxCfg.URL(), "backupPath", backupPath)
		return influxstorage.New(influxCfg, backupPath, ZLogger), nil

	default:
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownType, storageType)
	}
}
