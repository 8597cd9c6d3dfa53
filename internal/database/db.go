package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/kdimtricp/pairjudge/internal/models"
	"github.com/kdimtricp/pairjudge/internal/platform/logger"
)

// ErrNotFound is returned by repositories when a row does not exist or is not
// visible to the requesting user.
var ErrNotFound = errors.New("record not found")

// gormWriter sends gorm's slow query and error lines to the service logger.
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

type DB struct {
	conn   *sql.DB
	gorm   *gorm.DB
	dbType string
	log    *logger.Logger
}

type Config struct {
	Type       string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	SQLitePath string
}

func NewDB(config Config, baseLog *logger.Logger) (*DB, error) {
	var conn *sql.DB
	var dialector gorm.Dialector
	var err error

	switch config.Type {
	case "sqlite":
		conn, err = sql.Open("sqlite3", config.SQLitePath+"?_busy_timeout=5000&_foreign_keys=on")
		if err == nil {
			// SQLite serialises writers; a single connection keeps
			// transactions from tripping over "database is locked".
			conn.SetMaxOpenConns(1)
			dialector = sqlite.New(sqlite.Config{DriverName: "sqlite3", Conn: conn})
		}
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			config.Host, config.Port, config.User, config.Password, config.Name)
		conn, err = sql.Open("pgx", dsn)
		if err == nil {
			dialector = postgres.New(postgres.Config{Conn: conn})
		}
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.New(
			gormWriter{log: baseLog.With("service", "Gorm", "type", config.Type)},
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialise gorm: %w", err)
	}

	db := &DB{
		conn:   conn,
		gorm:   gormDB,
		dbType: config.Type,
		log:    baseLog.With("service", "Database", "type", config.Type),
	}

	// Only create tables for SQLite; Postgres goes through the migrator.
	if config.Type == "sqlite" {
		if err := db.createTables(); err != nil {
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	return db, nil
}

func (db *DB) createTables() error {
	return db.gorm.AutoMigrate(models.All()...)
}

// DropTables removes every table owned by the application.
func (db *DB) DropTables() error {
	all := models.All()
	for i := len(all) - 1; i >= 0; i-- {
		if err := db.gorm.Migrator().DropTable(all[i]); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}

// RecreateTables drops and recreates the schema regardless of backend.
func (db *DB) RecreateTables() error {
	if err := db.DropTables(); err != nil {
		return err
	}
	return db.createTables()
}

// RunMigrations applies pending SQL migrations from migrationsPath.
func (db *DB) RunMigrations(ctx context.Context, migrationsPath string) error {
	return NewMigrator(db.conn, db.dbType, db.log).Run(ctx, migrationsPath)
}

// Transaction runs fn inside a database transaction bound to ctx.
func (db *DB) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.gorm.WithContext(ctx).Transaction(fn)
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) GORM() *gorm.DB {
	return db.gorm
}

func (db *DB) Type() string {
	return db.dbType
}
