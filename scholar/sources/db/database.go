package db

import (
	"context"
	"fmt"
	"strings"

	"scholar/scholar/sources/db/models"
	"scholar/scholar/utils/logging"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type Database struct {
	DB      *gorm.DB
	Dialect string
}

// ParseURI splits a database URI into the gorm dialect and the driver DSN.
// SQLite URIs use the sqlite:///path form; sqlite:///:memory: is accepted.
func ParseURI(uri string) (dialect, dsn string, err error) {
	switch {
	case strings.HasPrefix(uri, "sqlite:///"):
		dsn = strings.TrimPrefix(uri, "sqlite:///")
		if dsn == "" {
			return "", "", fmt.Errorf("sqlite uri %q has no path", uri)
		}
		// sqlite:///rel.db is relative, sqlite:////abs.db absolute
		return DialectSQLite, dsn, nil
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return DialectPostgres, uri, nil
	case strings.Contains(uri, "host=") && strings.Contains(uri, "dbname="):
		return DialectPostgres, uri, nil
	}
	return "", "", fmt.Errorf("unsupported database uri %q", uri)
}

// NewDatabase builds the gorm handle without touching the server, so an
// unreachable database surfaces on first use rather than at boot.
func NewDatabase(uri string, debug bool) (*Database, error) {
	dialect, dsn, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	}

	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		DisableAutomaticPing: true,
		TranslateError:       true,
		Logger:               logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}
	return &Database{DB: db, Dialect: dialect}, nil
}

// CreateAll creates any missing tables and columns for every model.
func (d *Database) CreateAll(ctx context.Context) error {
	defer logging.LogDuration(ctx, "db_create_all")()
	if err := d.DB.WithContext(ctx).AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to auto-migrate: %w", err)
	}
	logging.AppLogger.Info("Database tables created successfully", zap.String("dialect", d.Dialect))
	return nil
}

func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
