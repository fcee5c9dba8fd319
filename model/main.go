// Package model is the optional persistence layer: users, API keys,
// externally registered tool definitions, and the append-only invocation
// event log. The core runs fully in memory without it; deployments that
// need durability hydrate the in-memory services from these stores at
// startup.
package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store wraps the database handle. It is an explicit dependency rather
// than package state so tests and multiple gateway instances stay
// isolated.
type Store struct {
	db *gorm.DB

	now func() time.Time
}

// InitDB opens the sqlite database at dsn and migrates the schema.
func InitDB(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("database dsn is required")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open database %q", dsn)
	}

	if err := db.AutoMigrate(
		&User{},
		&APIKey{},
		&ToolDefinition{},
		&InvocationRecord{},
	); err != nil {
		return nil, errors.Wrap(err, "migrate schema")
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(err, "unwrap sql db")
	}
	return errors.Wrap(sqlDB.Close(), "close database")
}
