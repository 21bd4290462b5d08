package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"voiceassist/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// DB is a database handle that knows which SQL dialect it speaks.
type DB struct {
	*sql.DB
	Driver string
}

// Open connects to the database configured under dbType.
func Open(dbType string, cfg *config.Config) (*DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db     *sql.DB
		driver = normalizeDriver(dbType)
		err    error
	)

	switch driver {
	case "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if dbCfg.DSN == ":memory:" {
			// every pooled connection would otherwise get its own empty database
			db.SetMaxOpenConns(1)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		db, err = sql.Open("mysql", mysqlDSN(dbCfg))
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	case "pgx":
		db, err = sql.Open("pgx", postgresDSN(dbCfg))
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &DB{DB: db, Driver: driver}, nil
}

func normalizeDriver(name string) string {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	case "mysql":
		return "mysql"
	case "postgres", "postgresql", "pgx":
		return "pgx"
	}
	return strings.ToLower(name)
}

func mysqlDSN(c config.DatabaseConfig) string {
	if c.DSN != "" {
		return c.DSN
	}
	params := c.Params
	if !strings.Contains(params, "parseTime") {
		if params != "" {
			params += "&"
		}
		params += "parseTime=true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
		params,
	)
}

func postgresDSN(c config.DatabaseConfig) string {
	if c.DSN != "" {
		return c.DSN
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     c.Host + ":" + strconv.Itoa(port),
		Path:     "/" + c.DBName,
		RawQuery: c.Params,
	}
	return u.String()
}

// Rebind rewrites ? placeholders into the dialect's form.
func (d *DB) Rebind(query string) string {
	if d.Driver != "pgx" {
		return query
	}
	var (
		b strings.Builder
		n int
	)
	b.Grow(len(query) + 8)
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

// Placeholders returns n comma separated ? markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Migrate ensures the required tables are present.
func Migrate(db *DB) error {
	var stmts []string
	switch db.Driver {
	case "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS customers (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				email TEXT,
				phone TEXT,
				preferences TEXT NOT NULL DEFAULT '{}',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS appointments (
				id TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL,
				appointment_date DATETIME NOT NULL,
				service_type TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				notes TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				FOREIGN KEY(customer_id) REFERENCES customers(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				customer_id TEXT,
				session_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active',
				conversation_type TEXT NOT NULL DEFAULT 'appointment',
				started_at DATETIME NOT NULL,
				ended_at DATETIME,
				metadata TEXT NOT NULL DEFAULT '{}',
				FOREIGN KEY(customer_id) REFERENCES customers(id) ON DELETE SET NULL
			)`,
			`CREATE TABLE IF NOT EXISTS conversation_messages (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				audio_url TEXT,
				confidence_score REAL NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
			)`,
			`CREATE TABLE IF NOT EXISTS edge_cases (
				id TEXT PRIMARY KEY,
				case_name TEXT NOT NULL,
				scenario TEXT NOT NULL,
				handling_strategy TEXT NOT NULL,
				example_conversation TEXT NOT NULL DEFAULT '[]',
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_started_at ON conversations(started_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_appointments_created_at ON appointments(created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(conversation_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS customers (
				id VARCHAR(36) NOT NULL,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255),
				phone VARCHAR(64),
				preferences JSON NOT NULL,
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS appointments (
				id VARCHAR(36) NOT NULL,
				customer_id VARCHAR(36) NOT NULL,
				appointment_date DATETIME(3) NOT NULL,
				service_type VARCHAR(255) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'pending',
				notes TEXT NOT NULL,
				created_at DATETIME(3) NOT NULL,
				updated_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_appointments_created_at (created_at),
				CONSTRAINT fk_appointments_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id VARCHAR(36) NOT NULL,
				customer_id VARCHAR(36),
				session_id VARCHAR(128) NOT NULL,
				status VARCHAR(32) NOT NULL DEFAULT 'active',
				conversation_type VARCHAR(32) NOT NULL DEFAULT 'appointment',
				started_at DATETIME(3) NOT NULL,
				ended_at DATETIME(3),
				metadata JSON NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_conversations_started_at (started_at),
				CONSTRAINT fk_conversations_customer FOREIGN KEY (customer_id) REFERENCES customers(id) ON DELETE SET NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversation_messages (
				id VARCHAR(36) NOT NULL,
				conversation_id VARCHAR(36) NOT NULL,
				role VARCHAR(16) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				audio_url TEXT,
				confidence_score DOUBLE NOT NULL DEFAULT 0,
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_messages_conversation (conversation_id),
				CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS edge_cases (
				id VARCHAR(36) NOT NULL,
				case_name VARCHAR(255) NOT NULL,
				scenario TEXT NOT NULL,
				handling_strategy TEXT NOT NULL,
				example_conversation JSON NOT NULL,
				created_at DATETIME(3) NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	case "pgx":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS customers (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				email TEXT,
				phone TEXT,
				preferences JSONB NOT NULL DEFAULT '{}'::jsonb,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS appointments (
				id TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				appointment_date TIMESTAMPTZ NOT NULL,
				service_type TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'pending',
				notes TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS conversations (
				id TEXT PRIMARY KEY,
				customer_id TEXT REFERENCES customers(id) ON DELETE SET NULL,
				session_id TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'active',
				conversation_type TEXT NOT NULL DEFAULT 'appointment',
				started_at TIMESTAMPTZ NOT NULL,
				ended_at TIMESTAMPTZ,
				metadata JSONB NOT NULL DEFAULT '{}'::jsonb
			)`,
			`CREATE TABLE IF NOT EXISTS conversation_messages (
				id TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				audio_url TEXT,
				confidence_score DOUBLE PRECISION NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS edge_cases (
				id TEXT PRIMARY KEY,
				case_name TEXT NOT NULL,
				scenario TEXT NOT NULL,
				handling_strategy TEXT NOT NULL,
				example_conversation JSONB NOT NULL DEFAULT '[]'::jsonb,
				created_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_conversations_started_at ON conversations(started_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_appointments_created_at ON appointments(created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON conversation_messages(conversation_id)`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", db.Driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", db.Driver, err)
		}
	}
	return nil
}
