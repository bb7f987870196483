// Package database is the gorm-backed fleet state store. It implements the
// same contract as the memory backend on top of PostgreSQL; tests run it
// against sqlite.
package database

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"flotilla/internal/domain"
	"flotilla/internal/storage"
	"flotilla/internal/support"
)

const DefaultCertificatesMax = 1000

type Store struct {
	db              *gorm.DB
	bus             storage.Emitter
	certificatesMax int
}

var _ storage.Store = (*Store)(nil)

func New(db *gorm.DB, bus storage.Emitter, certificatesMax int) *Store {
	if bus == nil {
		bus = storage.NopEmitter{}
	}
	if certificatesMax <= 0 {
		certificatesMax = DefaultCertificatesMax
	}
	return &Store{db: db, bus: bus, certificatesMax: certificatesMax}
}

// SetupDB connects to PostgreSQL using the DB_* environment variables and
// migrates the schema.
func SetupDB() (*gorm.DB, error) {
	dbHost := support.GetEnv("DB_HOST", "localhost")
	dbPort := support.GetEnv("DB_PORT", "5432")
	dbName := support.GetEnv("DB_NAME", "flotilla")
	dbUser := support.GetEnv("DB_USERNAME", "admin")
	dbPassword := support.GetEnv("DB_PASSWORD", "admin")

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		dbHost, dbPort, dbUser, dbPassword, dbName,
	)

	silent := logger.New(
		log.Default(),
		logger.Config{
			LogLevel: logger.Silent,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: silent,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("Database migration completed.")
	return db, nil
}

// Migrate creates or updates the schema. Shared with the sqlite test setup.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userRow{},
		&projectRow{},
		&projectUserRow{},
		&windowRow{},
		&credentialRow{},
		&connectorRow{},
		&proxyRow{},
		&freeproxyRow{},
		&sourceRow{},
		&taskRow{},
		&paramRow{},
		&certificateRow{},
	)
}

func (s *Store) emit(events []domain.Event) {
	for _, event := range events {
		s.bus.Emit(event)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
