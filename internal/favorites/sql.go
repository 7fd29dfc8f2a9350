package favorites

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Dialect selects placeholder syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStorage is a key/value table on SQLite or PostgreSQL.
type SQLStorage struct {
	db      *sql.DB
	dialect Dialect
	table   string
	logger  *zap.Logger
}

// OpenSQLite opens (and creates) the database at path. A DSN containing
// query parameters is passed through untouched.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*SQLStorage, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.NewValidationError("sqlite path is required", "path", path)
	}
	dsn := path
	if !strings.Contains(path, "?") && path != ":memory:" {
		cleanPath := filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
			return nil, errors.NewStorageError("failed to create sqlite directory", "mkdir", cleanPath, err)
		}
		dsn = cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	return newSQLStorage(ctx, db, DialectSQLite, logger)
}

func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*SQLStorage, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.NewValidationError("postgres dsn is required", "dsn", "")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStorage(ctx, db, DialectPostgres, logger)
}

func newSQLStorage(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*SQLStorage, error) {
	logger = util.OrNop(logger)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", dialect, err)
	}

	s := &SQLStorage{
		db:      db,
		dialect: dialect,
		table:   constants.FavoritesConfig.Table,
		logger:  logger,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Favorites database connected", zap.String("dialect", string(dialect)))
	return s, nil
}

func (s *SQLStorage) migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return errors.NewStorageError("failed to create favorites table", "migrate", s.table, err)
	}
	return nil
}

func (s *SQLStorage) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStorage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = %s", s.table, s.placeholder(1))

	var value string
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Error("Favorites query failed", zap.String("key", key), zap.Error(err))
		return nil, false, errors.NewStorageError("query failed", "load", key, err)
	}
	return []byte(value), true, nil
}

func (s *SQLStorage) Save(ctx context.Context, key string, data []byte) error {
	query := fmt.Sprintf(`INSERT INTO %s (key, value, updated_at) VALUES (%s, %s, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		s.table, s.placeholder(1), s.placeholder(2))

	if _, err := s.db.ExecContext(ctx, query, key, string(data)); err != nil {
		s.logger.Error("Favorites upsert failed", zap.String("key", key), zap.Error(err))
		return errors.NewStorageError("upsert failed", "save", key, err)
	}
	return nil
}

func (s *SQLStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
