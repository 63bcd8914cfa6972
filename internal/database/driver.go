package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	// Pure Go SQLite driver (no CGO required), registered as "sqlite"
	_ "modernc.org/sqlite"

	"github.com/drallgood/plex-audiobook-cache/internal/logger"
)

// DatabaseDriver defines the contract for database drivers
type DatabaseDriver interface {
	Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error)
	GetDialector(config *DatabaseConfig) gorm.Dialector
	PrepareDatabase(config *DatabaseConfig) error
}

func openGorm(d DatabaseDriver, config *DatabaseConfig) (*gorm.DB, error) {
	return gorm.Open(d.GetDialector(config), &gorm.Config{
		// We do our own logging
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
}

func prepareSQLiteDir(config *DatabaseConfig) error {
	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	return nil
}

func configureSQLite(db *gorm.DB, log *logger.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// SQLite serializes writers; one connection keeps writes ordered
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if err := db.Exec(pragma).Error; err != nil {
			log.Warn("Failed to apply SQLite pragma", map[string]interface{}{
				"pragma": pragma,
				"error":  err.Error(),
			})
		}
	}
	return nil
}

func configurePool(db *gorm.DB, config *DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Minute)
	return nil
}

// SQLiteDriver implements DatabaseDriver for SQLite using mattn/go-sqlite3 (cgo)
type SQLiteDriver struct{}

func (d *SQLiteDriver) Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	if err := d.PrepareDatabase(config); err != nil {
		return nil, err
	}

	db, err := openGorm(d, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}
	if err := configureSQLite(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *SQLiteDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return sqlite.Open(config.Path)
}

func (d *SQLiteDriver) PrepareDatabase(config *DatabaseConfig) error {
	return prepareSQLiteDir(config)
}

// PureSQLiteDriver implements DatabaseDriver for SQLite using modernc.org/sqlite
type PureSQLiteDriver struct{}

func (d *PureSQLiteDriver) Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	if err := d.PrepareDatabase(config); err != nil {
		return nil, err
	}

	db, err := openGorm(d, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database (pure Go): %w", err)
	}
	if err := configureSQLite(db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *PureSQLiteDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        config.Path,
	}
}

func (d *PureSQLiteDriver) PrepareDatabase(config *DatabaseConfig) error {
	return prepareSQLiteDir(config)
}

// PostgreSQLDriver implements DatabaseDriver for PostgreSQL
type PostgreSQLDriver struct{}

func (d *PostgreSQLDriver) Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	db, err := openGorm(d, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	if err := configurePool(db, config); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *PostgreSQLDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return postgres.Open(config.GetDSN())
}

// PrepareDatabase is a no-op; PostgreSQL databases are created externally
func (d *PostgreSQLDriver) PrepareDatabase(*DatabaseConfig) error {
	return nil
}

// MySQLDriver implements DatabaseDriver for MySQL/MariaDB
type MySQLDriver struct{}

func (d *MySQLDriver) Connect(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	db, err := openGorm(d, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}
	if err := configurePool(db, config); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *MySQLDriver) GetDialector(config *DatabaseConfig) gorm.Dialector {
	return mysql.Open(config.GetDSN())
}

// PrepareDatabase is a no-op; MySQL databases are created externally
func (d *MySQLDriver) PrepareDatabase(*DatabaseConfig) error {
	return nil
}

// GetDatabaseDriver returns the appropriate driver for the given database type
func GetDatabaseDriver(dbType DatabaseType) (DatabaseDriver, error) {
	switch dbType {
	case DatabaseTypeSQLite:
		return &SQLiteDriver{}, nil
	case DatabaseTypeSQLitePure:
		return &PureSQLiteDriver{}, nil
	case DatabaseTypePostgreSQL:
		return &PostgreSQLDriver{}, nil
	case DatabaseTypeMySQL, DatabaseTypeMariaDB:
		return &MySQLDriver{}, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// ConnectWithFallback connects to the configured database, falling back to a
// local SQLite file if the configuration is invalid or the server is unreachable
func ConnectWithFallback(config *DatabaseConfig, log *logger.Logger) (*gorm.DB, *DatabaseConfig, error) {
	if err := config.Validate(); err != nil {
		log.Warn("Invalid database configuration, falling back to SQLite", map[string]interface{}{
			"error": err.Error(),
			"type":  config.Type,
		})
		return connectSQLiteFallback(log)
	}

	driver, err := GetDatabaseDriver(config.Type)
	if err != nil {
		log.Warn("Unsupported database type, falling back to SQLite", map[string]interface{}{
			"error": err.Error(),
			"type":  config.Type,
		})
		return connectSQLiteFallback(log)
	}

	db, err := driver.Connect(config, log)
	if err != nil {
		if config.Type.IsSQLite() {
			return nil, nil, err
		}
		log.Warn("Failed to connect to configured database, falling back to SQLite", map[string]interface{}{
			"error": err.Error(),
			"type":  config.Type,
			"host":  config.Host,
		})
		return connectSQLiteFallback(log)
	}

	log.Info("Connected to database", map[string]interface{}{
		"type": config.Type,
		"host": config.Host,
		"path": config.Path,
	})
	return db, config, nil
}

func connectSQLiteFallback(log *logger.Logger) (*gorm.DB, *DatabaseConfig, error) {
	fallbackConfig := &DatabaseConfig{
		Type: DatabaseTypeSQLitePure,
		Path: GetDefaultDatabasePath(),
	}

	db, err := (&PureSQLiteDriver{}).Connect(fallbackConfig, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to fallback SQLite database: %w", err)
	}

	log.Info("Connected to fallback SQLite database", map[string]interface{}{
		"path": fallbackConfig.Path,
	})
	return db, fallbackConfig, nil
}
