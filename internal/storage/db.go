package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Supported SQL drivers.
const (
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo" // handled by OpenMongo, not Open
)

// Config describes the backing store. SQLite is the local/dev default;
// shared deployments point at MySQL, Postgres, or MongoDB.
type Config struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"` // sqlite file path
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN builds the driver-specific connection string.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case "", DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite: path required")
		}
		return c.Path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	case DriverMySQL:
		port := c.Port
		if port == 0 {
			port = 3306
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4",
			c.Username, c.Password, c.Host, port, c.Database,
		)
		if c.SSLMode == "require" {
			dsn += "&tls=true"
		}
		return dsn, nil
	case DriverPostgres:
		port := c.Port
		if port == 0 {
			port = 5432
		}
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, port, c.Username, c.Password, c.Database, sslMode,
		), nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", c.Driver)
	}
}

// DB wraps a SQL database connection with dialect helpers.
type DB struct {
	conn   *sql.DB
	driver string
	logger *zap.Logger
}

// Open opens (or for SQLite, creates) the database and runs migrations.
func Open(cfg Config, logger *zap.Logger) (*DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// SQLite only supports one writer — limit to a single connection
		// to prevent SQLITE_BUSY
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(5)
		conn.SetMaxIdleConns(2)
		conn.SetConnMaxLifetime(10 * time.Minute)
	}

	db := &DB{conn: conn, driver: driver, logger: logger}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// rebind converts ? placeholders to $N for Postgres.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// keyType is the column type for key columns. MySQL cannot index TEXT
// without a length, so keys become bounded VARCHARs there.
func (db *DB) keyType() string {
	if db.driver == DriverMySQL {
		return "VARCHAR(191)"
	}
	return "TEXT"
}

func (db *DB) timeType() string {
	switch db.driver {
	case DriverPostgres:
		return "TIMESTAMPTZ"
	case DriverMySQL:
		return "DATETIME(6)"
	default:
		return "DATETIME"
	}
}

func (db *DB) migrate() error {
	kt := db.keyType()
	tt := db.timeType()
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_content (
			page_id %s NOT NULL,
			section_key %s NOT NULL,
			field_key %s NOT NULL,
			field_value TEXT NOT NULL,
			section_order INTEGER NOT NULL DEFAULT 0,
			updated_at %s NOT NULL,
			PRIMARY KEY (page_id, section_key, field_key)
		)`, kt, kt, kt, tt),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS page_settings (
			page_id %s NOT NULL,
			setting_key %s NOT NULL,
			setting_value TEXT NOT NULL,
			updated_at %s NOT NULL,
			PRIMARY KEY (page_id, setting_key)
		)`, kt, kt, tt),
	}
	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %s: %w", m[:40], err)
		}
	}
	return nil
}

// upsertSQL builds the dialect-specific idempotent upsert for a table
// with the given key columns and updatable value columns.
func (db *DB) upsertSQL(table string, keyCols, valCols []string) string {
	cols := append(append([]string{}, keyCols...), valCols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders)

	if db.driver == DriverMySQL {
		sets := make([]string, len(valCols))
		for i, c := range valCols {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		}
		return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}

	// SQLite and Postgres share ON CONFLICT syntax.
	sets := make([]string, len(valCols))
	for i, c := range valCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		insert, strings.Join(keyCols, ", "), strings.Join(sets, ", "))
}
