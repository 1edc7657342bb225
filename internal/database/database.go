package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"task-tracker-api/internal/config"
	"task-tracker-api/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AllModels lists every table the service owns, in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Task{},
		&models.TaskArchive{},
		&models.TaskStatusHistory{},
		&models.SystemParameter{},
		&models.ExperimentAssignment{},
		&models.BehaviorLog{},
		&models.GoalEventLog{},
		&models.SessionLog{},
		&models.InterventionLog{},
	}
}

// LogLevel maps a config string onto the gorm logger level.
func LogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// GormConfig is shared by every connection so timestamps are always written in UTC.
func GormConfig(level logger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger:  logger.Default.LogMode(level),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}
}

// Connect opens the configured database. SQLite (pure Go, no CGO) is the
// default; MySQL is used for shared deployments.
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gcfg := GormConfig(LogLevel(cfg.LogLevel))

	switch cfg.Driver {
	case "mysql":
		db, err := gorm.Open(mysql.Open(cfg.DSN), gcfg)
		if err != nil {
			return nil, fmt.Errorf("database: connect mysql: %w", err)
		}
		return db, nil
	case "sqlite", "":
		dsn := cfg.DSN
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
		}
		db, err := gorm.Open(sqlite.Open(dsn), gcfg)
		if err != nil {
			return nil, fmt.Errorf("database: connect sqlite %s: %w", cfg.DSN, err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("database: sqlite pool: %w", err)
		}
		// SQLite only supports one writer at a time
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(time.Hour)
		return db, nil
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// Open connects and migrates in one step.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	slog.Info("database connected and migrated", "driver", cfg.Driver)
	return db, nil
}
