// Package database opens the relational stores behind the GORM storage
// backends and holds the queries they share.
package database

import (
	"errors"
	"fmt"
	"os"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cornerculling/extension/internal/config"
	"github.com/cornerculling/extension/internal/model"
)

// ErrNoDumpPath is returned by VacuumInto without a target file.
var ErrNoDumpPath = errors.New("sqlite dump path not set")

const memoryDSN = "file::memory:?cache=shared"

// DSN returns the Postgres connection string for cfg.
func DSN(cfg config.DBConfig) string {
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=disable`,
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database)
}

// OpenPostgres connects to the database described by cfg and pings it.
func OpenPostgres(cfg config.DBConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  DSN(cfg),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(4)
	return db, nil
}

// OpenSqlite opens the SQLite file at path, or a shared in-memory database
// when path is empty.
func OpenSqlite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = memoryDSN
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting %q: %w", pragma, err)
		}
	}
	return db, nil
}

// Migrate creates or updates every table in model.DatabaseModels.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// VacuumInto writes a consistent snapshot of a SQLite database to path,
// replacing any previous snapshot.
func VacuumInto(db *gorm.DB, path string) error {
	if path == "" {
		return ErrNoDumpPath
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing previous dump: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("error dumping sqlite DB to %s: %w", path, err)
	}
	return nil
}

// MapSummary aggregates the performance samples of one session on one map.
type MapSummary struct {
	MapName        string
	Samples        int64
	Ticks          int64
	AvgRollingUs   float64
	WorstRollingUs float64
}

// Summarize returns per-map performance of a session, ordered by map name.
func Summarize(db *gorm.DB, sessionID string) ([]MapSummary, error) {
	var out []MapSummary
	err := db.Model(&model.PerformanceSample{}).
		Select("map_name, COUNT(*) AS samples, MAX(ticks) AS ticks, "+
			"AVG(rolling_average_us) AS avg_rolling_us, MAX(rolling_max_us) AS worst_rolling_us").
		Where("session_id = ?", sessionID).
		Group("map_name").
		Order("map_name").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to summarize session %s: %w", sessionID, err)
	}
	return out, nil
}

// Close closes the connection pool behind db.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
