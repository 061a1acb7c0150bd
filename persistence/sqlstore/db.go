package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect selects the schema flavour.
type Dialect int

const (
	SQLite Dialect = iota
	MySQL
)

func (d Dialect) String() string {
	if d == MySQL {
		return "mysql"
	}
	return "sqlite"
}

// MySQLConfig is the connection part of the persistence configuration.
type MySQLConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

// DSN renders the go-sql-driver connection string.
func (c MySQLConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = c.Addr
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = c.Database
	return cfg.FormatDSN()
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates it. Use ":memory:" for an in-memory database private to the
// returned Store.
func OpenSQLite(ctx context.Context, path string, supports1PC bool) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)", path)
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite works best with a single writer
	db.SetMaxOpenConns(1)

	return open(ctx, db, SQLite, supports1PC)
}

// OpenMySQL connects to the configured server and migrates the schema.
func OpenMySQL(ctx context.Context, cfg MySQLConfig, supports1PC bool) (*Store, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return open(ctx, db, MySQL, supports1PC)
}

func open(ctx context.Context, db *sql.DB, dialect Dialect, supports1PC bool) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := New(db, dialect, supports1PC)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	data, err := migrations.ReadFile("migrations/" + s.dialect.String() + ".sql")
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	for _, stmt := range strings.Split(string(data), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}
	return nil
}
