package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	mcpprov "github.com/mcp-chatbot/mcp-manager/src/providers/mcp"
)

// SQLiteConfigStorage persists configs in the mcp_servers table.
type SQLiteConfigStorage struct {
	db     *sql.DB
	logger logrus.FieldLogger
}

// NewSQLiteConfigStorage opens (and if needed creates) the database at
// path. Parent directories are created as needed.
func NewSQLiteConfigStorage(path string) (*SQLiteConfigStorage, error) {
	logger := logrus.StandardLogger().WithField("component", "store")

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteConfigStorage{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.WithField("path", path).Debug("SQLite config storage initialized")
	return s, nil
}

func (s *SQLiteConfigStorage) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS mcp_servers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			config TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_mcp_servers_name ON mcp_servers(name);
	`)
	return err
}

// Close closes the database.
func (s *SQLiteConfigStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteConfigStorage) Init(ctx context.Context, manager ClientManager) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteConfigStorage) LoadAll(ctx context.Context) ([]ServerRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, config FROM mcp_servers ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("querying servers: %w", err)
	}
	defer rows.Close()

	var out []ServerRecord
	for rows.Next() {
		var id, name, raw string
		if err := rows.Scan(&id, &name, &raw); err != nil {
			return nil, fmt.Errorf("scanning server: %w", err)
		}
		cfg, err := mcpprov.UnmarshalServerConfig([]byte(raw))
		if err != nil {
			s.logger.WithError(err).WithField("id", id).Warn("Skipping stored server with invalid config")
			continue
		}
		out = append(out, ServerRecord{ID: id, Name: name, Config: cfg})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating servers: %w", err)
	}
	return out, nil
}

func (s *SQLiteConfigStorage) Save(ctx context.Context, server ServerInsert) (ServerRecord, error) {
	raw, err := mcpprov.MarshalServerConfig(server.Config)
	if err != nil {
		return ServerRecord{}, fmt.Errorf("encoding config for %q: %w", server.Name, err)
	}

	id := server.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO mcp_servers (id, name, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			config = excluded.config,
			updated_at = excluded.updated_at
	`, id, server.Name, string(raw), now, now)
	if err != nil {
		return ServerRecord{}, fmt.Errorf("saving server %q: %w", server.Name, err)
	}
	return ServerRecord{ID: id, Name: server.Name, Config: server.Config}, nil
}

func (s *SQLiteConfigStorage) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting server %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting server %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteConfigStorage) Has(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM mcp_servers WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("looking up server %s: %w", id, err)
	}
	return true, nil
}

func (s *SQLiteConfigStorage) Get(ctx context.Context, id string) (*ServerRecord, error) {
	var name, raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, config FROM mcp_servers WHERE id = ?`, id).Scan(&name, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting server %s: %w", id, err)
	}
	cfg, err := mcpprov.UnmarshalServerConfig([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding server %s: %w", id, err)
	}
	return &ServerRecord{ID: id, Name: name, Config: cfg}, nil
}
