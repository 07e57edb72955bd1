package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"tillsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// schemaVersion is bumped whenever the persisted layout changes; openSQLite
// migrates older on-device databases forward step by step.
const schemaVersion = 1

// SQLiteStore persists the queue in a device-local SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *zerolog.Logger
}

func NewSQLiteStore(path string, logger *zerolog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect store: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("order queue store opened")
	return &SQLiteStore{db: db, logger: logger}, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("store schema version %d is newer than supported %d", version, schemaVersion)
	}

	for version < schemaVersion {
		switch version {
		case 0:
			queries := []string{
				`CREATE TABLE IF NOT EXISTS queued_orders (
					local_id TEXT PRIMARY KEY,
					status TEXT NOT NULL,
					payload TEXT NOT NULL,
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_queued_orders_created_at ON queued_orders(created_at)`,
			}
			for _, query := range queries {
				if _, err := db.Exec(query); err != nil {
					return fmt.Errorf("migrate schema to v1: %w", err)
				}
			}
		}
		version++
		if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, version)); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context) ([]models.QueuedOrder, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM queued_orders ORDER BY created_at ASC, local_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()

	var orders []models.QueuedOrder
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan queued order: %w", err)
		}
		var order models.QueuedOrder
		if err := json.Unmarshal([]byte(payload), &order); err != nil {
			return nil, fmt.Errorf("decode queued order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	return orders, nil
}

func (s *SQLiteStore) Save(ctx context.Context, orders []models.QueuedOrder) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM queued_orders`); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO queued_orders (local_id, status, payload, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range orders {
		payload, err := json.Marshal(&orders[i])
		if err != nil {
			return fmt.Errorf("encode order %s: %w", orders[i].LocalID, err)
		}
		if _, err := stmt.ExecContext(ctx,
			orders[i].LocalID, string(orders[i].Status), string(payload), orders[i].CreatedAt); err != nil {
			return fmt.Errorf("insert order %s: %w", orders[i].LocalID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
