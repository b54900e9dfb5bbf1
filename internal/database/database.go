package database

import (
	"database/sql"
	"fmt"

	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB bundles the GORM handle with the underlying sql.DB for the
// repositories that use raw queries.
type DB struct {
	Gorm *gorm.DB
	SQL  *sql.DB
}

// Connect opens the Postgres connection and verifies it with a ping.
func Connect(databaseURL string) (*DB, error) {
	gormDB, err := gorm.Open(gormpostgres.Open(databaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Gorm: gormDB, SQL: sqlDB}, nil
}

func (db *DB) Close() error {
	return db.SQL.Close()
}
