package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/erp/salesync/internal/infrastructure/config"
	"github.com/erp/salesync/internal/infrastructure/persistence/models"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database holds the database connection
type Database struct {
	DB *gorm.DB
}

type dbOptions struct {
	logger  gormlogger.Interface
	tracing bool
}

// DatabaseOption configures NewDatabase
type DatabaseOption func(*dbOptions)

// WithGormLogger sets the gorm logger
func WithGormLogger(l gormlogger.Interface) DatabaseOption {
	return func(o *dbOptions) {
		o.logger = l
	}
}

// WithTracing registers the otelgorm plugin so every query becomes a span
func WithTracing(enabled bool) DatabaseOption {
	return func(o *dbOptions) {
		o.tracing = enabled
	}
}

// NewDatabase opens a postgres or sqlite connection and configures the pool
func NewDatabase(cfg *config.DatabaseConfig, opts ...DatabaseOption) (*Database, error) {
	o := dbOptions{logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	for _, opt := range opts {
		opt(&o)
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DSN())
	default:
		dialector = postgres.Open(cfg.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 o.logger,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if o.tracing {
		dbName := "postgresql"
		if cfg.Driver == config.DriverSQLite {
			dbName = "sqlite"
		}
		if err := db.Use(otelgorm.NewPlugin(otelgorm.WithDBName(dbName), otelgorm.WithoutQueryVariables())); err != nil {
			return nil, fmt.Errorf("failed to register tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		// one writer for sqlite
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// Ping checks if the database connection is alive
func (d *Database) Ping() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Ping()
}

// AutoMigrate creates the schema from the models. Used for sqlite, where the
// SQL migrations (written for postgres) do not apply.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.IdentityModel{},
		&models.LocalRecordModel{},
		&models.ConfigParameterModel{},
		&models.FiscalYearModel{},
		&models.CommissionRuleModel{},
		&models.CommissionRecordModel{},
		&models.ActivityEntryModel{},
		&models.PayoutItemModel{},
		&models.PayoutDocumentModel{},
	)
}

func isDuplicateKey(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
