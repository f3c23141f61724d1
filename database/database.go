package database

import (
	"errors"
	"fmt"
	"log"
	"time"

	"realm-rivals/config"
	"realm-rivals/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Open connects using the configured driver. "sqlite" is meant for local runs and tests.
func Open(cfg config.Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	gormCfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Warn),
	}

	switch cfg.DatabaseDriver {
	case "", "postgres":
		return gorm.Open(postgres.Open(cfg.DatabaseURL), gormCfg)
	case "sqlite":
		db, err := gorm.Open(sqlite.Open(cfg.DatabaseURL), gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// SQLite has a single writer; one connection keeps transactions serialized.
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
}

// Migrate runs GORM auto-migrations for the game tables.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("db connection is nil")
	}
	if err := db.AutoMigrate(
		&models.GameSession{},
		&models.SessionPlayer{},
		&models.Invitation{},
		&models.Profile{},
		&models.Character{},
		&models.OwnedCharacter{},
		&models.CoinTransaction{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Println("✅ Database schema up to date")
	return nil
}

// ForUpdate locks the selected rows until the transaction ends. SQLite has no row
// locks and already serializes writers, so the clause is only added on Postgres.
func ForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}
