// Package db owns the GORM connection, schema migration and seed data.
package db

import (
	"fmt"
	"time"

	"code-judge/internal/config"
	"code-judge/internal/logging"
	"code-judge/pkg/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM instance.
type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the configured database and runs migrations. A postgres
// DSN in DATABASE_URL selects postgres; otherwise the embedded sqlite file is
// used, which keeps single-node deployments dependency-free.
func NewDatabase(cfg *config.Config) (*Database, error) {
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var (
		db  *gorm.DB
		err error
	)
	if cfg.DatabaseURL != "" {
		db, err = gorm.Open(postgres.Open(cfg.DatabaseURL), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open(cfg.SQLitePath), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	database := &Database{DB: db}
	if err := database.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logging.L().Info("database connected")
	return database, nil
}

// Migrate applies the judge schema.
func (d *Database) Migrate() error {
	return d.DB.AutoMigrate(
		&models.Language{},
		&models.Chapter{},
		&models.Exercise{},
		&models.TestCase{},
		&models.Fixture{},
		&models.User{},
		&models.UserProgress{},
		&models.Achievement{},
		&models.UserAchievement{},
	)
}

// Close closes the underlying connection pool.
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the raw gorm handle.
func (d *Database) GetDB() *gorm.DB {
	return d.DB
}
