package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// DB is the process-wide handle opened by InitDatabase.
var DB *sqlx.DB

// ParseDatabaseURL splits a database URL into a driver name and a DSN.
// sqlite://path maps to go-sqlite3 with WAL enabled, postgres:// is passed to lib/pq as is.
func ParseDatabaseURL(raw string) (driver, dsn string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	switch u.Scheme {
	case "sqlite", "sqlite3":
		path := strings.TrimPrefix(raw, u.Scheme+"://")
		if path == "" {
			return "", "", errors.New("sqlite url has no path")
		}
		return "sqlite3", fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000&_foreign_keys=on", path), nil
	case "postgres", "postgresql":
		return "postgres", raw, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme %q", u.Scheme)
	}
}

// OpenDatabase opens and pings the database behind rawURL and creates the
// bot_config table. It does not touch the global DB.
func OpenDatabase(ctx context.Context, rawURL string) (*sqlx.DB, error) {
	driver, dsn, err := ParseDatabaseURL(rawURL)
	if err != nil {
		return nil, err
	}

	if driver == "sqlite3" {
		dir := filepath.Dir(strings.SplitN(dsn, "?", 2)[0])
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(initCtx); err != nil {
		db.Close()
		return nil, err
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(5)
		pragmas := []string{
			"PRAGMA journal_mode=WAL;",
			"PRAGMA synchronous=NORMAL;",
			"PRAGMA busy_timeout=5000;",
			"PRAGMA foreign_keys=ON;",
		}
		for _, p := range pragmas {
			if _, err := db.ExecContext(initCtx, p); err != nil {
				db.Close()
				return nil, fmt.Errorf(MsgDatabasePragmaError, p, err)
			}
		}
	}

	if _, err := db.ExecContext(initCtx, `CREATE TABLE IF NOT EXISTS bot_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf(MsgDatabaseTableError, err)
	}

	return db, nil
}

// InitDatabase opens the global DB.
func InitDatabase(ctx context.Context, rawURL string) error {
	db, err := OpenDatabase(ctx, rawURL)
	if err != nil {
		return err
	}
	DB = db
	LogDatabase(MsgDatabaseInitSuccess, db.DriverName())
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// GetBotConfig returns "" for unknown keys.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.GetContext(ctx, &value, DB.Rebind("SELECT value FROM bot_config WHERE key = ?"), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, DB.Rebind(`
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`), key, value)
	return err
}
