package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-sql-driver/mysql"
	"github.com/mylabook/opsflow/internal/config"
	_ "modernc.org/sqlite"
)

// Dialect selects the DDL flavour and a few SQL differences between drivers.
type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

// Connection wraps a *sql.DB together with the dialect it speaks.
// sql.DB manages its own pool; no extra locking is layered on top.
type Connection struct {
	db      *sql.DB
	dialect Dialect
	// Fallback is set when MySQL was unreachable and an in-memory store was opened instead.
	Fallback bool
}

var tlsOnce sync.Once

// Open connects using the configured driver. When MySQL cannot be reached and
// fallback_to_memory is enabled, an in-memory SQLite store is returned instead.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	if strings.EqualFold(cfg.Driver, string(DialectSQLite)) {
		return OpenSQLite(cfg.SQLitePath)
	}

	conn, err := OpenMySQL(ctx, cfg)
	if err == nil {
		return conn, nil
	}
	if !cfg.FallbackToMemory {
		return nil, err
	}

	log.Warn("⚠️  MySQL unavailable, falling back to in-memory store", "err", err)
	mem, memErr := OpenSQLite(":memory:")
	if memErr != nil {
		return nil, fmt.Errorf("fallback store: %w (mysql: %v)", memErr, err)
	}
	mem.Fallback = true
	return mem, nil
}

// MySQLDSN builds the driver DSN for the given settings.
func MySQLDSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}

	if isRemoteHost(cfg.Host) {
		// Remote hosts (TiDB Cloud and friends) require TLS with a matching ServerName
		tlsOnce.Do(func() {
			if err := mysql.RegisterTLSConfig("opsflow", &tls.Config{
				MinVersion: tls.VersionTLS12,
				ServerName: cfg.Host,
			}); err != nil {
				log.Error("Failed to register TLS config", "err", err)
			}
		})
		mc.TLSConfig = "opsflow"
	}
	return mc.FormatDSN()
}

// OpenMySQL opens and pings a MySQL/TiDB connection.
func OpenMySQL(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	db, err := sql.Open("mysql", MySQLDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// MaxIdleConns matches MaxOpenConns so connections are kept rather than churned
	db.SetMaxOpenConns(100)
	db.SetMaxIdleConns(100)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(3 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("✅ Connected to MySQL", "host", cfg.Host, "database", cfg.Name)
	return &Connection{db: db, dialect: DialectMySQL}, nil
}

// OpenSQLite opens a SQLite database at path. ":memory:" keeps everything in process.
func OpenSQLite(path string) (*Connection, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &Connection{db: db, dialect: DialectSQLite}, nil
}

// NewConnection wraps an existing handle (tests, sqlmock).
func NewConnection(db *sql.DB, dialect Dialect) *Connection {
	return &Connection{db: db, dialect: dialect}
}

// DB returns the underlying pool.
func (c *Connection) DB() *sql.DB {
	return c.db
}

// Dialect returns the SQL dialect in use.
func (c *Connection) Dialect() Dialect {
	return c.dialect
}

// Close closes the database connection
func (c *Connection) Close() error {
	return c.db.Close()
}

// IsDeadlock reports lock errors worth retrying:
// 1213 (deadlock found) and 1205 (lock wait timeout).
func IsDeadlock(err error) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") || strings.Contains(msg, "lock wait timeout") ||
		strings.Contains(msg, "database is locked")
}

func isRemoteHost(host string) bool {
	return host != "" && host != "127.0.0.1" && host != "localhost"
}
