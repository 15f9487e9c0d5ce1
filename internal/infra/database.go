package infra

import (
	"fmt"

	"concentra/internal/infra/migrations"

	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDatabase establishes a GORM connection backed by pgx and applies the
// embedded SQL migrations. GORM AutoMigrate is never used: decimal precision,
// partial indexes and deferred constraints are only expressible in SQL.
func NewDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return db, nil
}

// RunMigrations applies every pending goose migration embedded in the binary.
// Integration tests call it directly against their container.
func RunMigrations(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(sqlDB, "."); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) { log.Fatal().Msgf(format, v...) }
func (gooseLogger) Printf(format string, v ...interface{}) { log.Info().Msgf(format, v...) }
