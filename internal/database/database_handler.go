package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"trafficwatch/internal/domain"
	"trafficwatch/internal/support"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB *gorm.DB

	ErrNotInitialised = errors.New("database not initialised")
)

type Config struct {
	ExistingDB  *gorm.DB
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
	Migrations  []any
}

type Option func(*Config)

// SetupDB opens the shared connection and migrates the traffic models.
// Without options the driver is chosen from DB_DRIVER.
func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := Config{
		Logger:      silentLogger(),
		AutoMigrate: true,
		Migrations:  defaultMigrations(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	switch {
	case cfg.ExistingDB != nil:
		DB = cfg.ExistingDB
	default:
		if cfg.Dialector == nil {
			dialector, err := dialectorFromEnv()
			if err != nil {
				return nil, err
			}
			cfg.Dialector = dialector
		}
		gormCfg := &gorm.Config{}
		if cfg.Logger != nil {
			gormCfg.Logger = cfg.Logger
		}
		db, err := gorm.Open(cfg.Dialector, gormCfg)
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		DB = db
		configureConnectionPool(db)
	}

	if cfg.AutoMigrate && len(cfg.Migrations) > 0 {
		if err := DB.AutoMigrate(cfg.Migrations...); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Info("Database migration completed.")
	}

	return DB, nil
}

func dialectorFromEnv() (gorm.Dialector, error) {
	switch driver := strings.ToLower(support.GetEnv("DB_DRIVER", "postgres")); driver {
	case "postgres", "postgresql":
		return postgres.Open(buildDSN()), nil
	case "sqlite":
		path := support.GetEnv("DB_SQLITE_PATH", "data/trafficwatch.db")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("database: create sqlite directory: %w", err)
		}
		return sqlite.Open(path + "?_busy_timeout=5000"), nil
	default:
		return nil, fmt.Errorf("database: unsupported DB_DRIVER %q", driver)
	}
}

func buildDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		support.GetEnv("DB_HOST", "localhost"),
		support.GetEnv("DB_PORT", "5432"),
		support.GetEnv("DB_USERNAME", "trafficwatch"),
		support.GetEnv("DB_PASSWORD", "trafficwatch"),
		support.GetEnv("DB_NAME", "trafficwatch"),
	)
}

func silentLogger() logger.Interface {
	return logger.New(
		log.Default(),
		logger.Config{LogLevel: logger.Silent},
	)
}

func defaultMigrations() []any {
	return []any{
		domain.TrafficRecord{},
		domain.BlockEntry{},
		domain.SuspicionRecord{},
	}
}

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) {
		cfg.ExistingDB = db
	}
}

func WithDialector(d gorm.Dialector) Option {
	return func(cfg *Config) {
		cfg.Dialector = d
	}
}

func WithLogger(l logger.Interface) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithAutoMigrate(enabled bool) Option {
	return func(cfg *Config) {
		cfg.AutoMigrate = enabled
	}
}

func configureConnectionPool(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("database: get sql.DB", "error", err)
		return
	}

	maxOpen := support.GetEnvInt("DB_MAX_OPEN_CONNS", 32)
	maxIdle := support.GetEnvInt("DB_MAX_IDLE_CONNS", maxOpen)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if maxIdle >= 0 {
		sqlDB.SetMaxIdleConns(maxIdle)
	}
	if seconds := support.GetEnvInt("DB_CONN_MAX_LIFETIME", 300); seconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(seconds) * time.Second)
	}
	if seconds := support.GetEnvInt("DB_CONN_MAX_IDLE_TIME", 60); seconds > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(seconds) * time.Second)
	}
}

// CloseDB releases the shared connection pool.
func CloseDB() error {
	if DB == nil {
		return nil
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	DB = nil
	return sqlDB.Close()
}

func conn(ctx context.Context) (*gorm.DB, error) {
	if DB == nil {
		return nil, ErrNotInitialised
	}
	if ctx != nil {
		return DB.WithContext(ctx), nil
	}
	return DB, nil
}

// Ping reports whether the shared pool can reach the database.
func Ping(ctx context.Context) error {
	if DB == nil {
		return ErrNotInitialised
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
