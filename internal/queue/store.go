package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"fieldsync/internal/config"
	"fieldsync/internal/logging"
)

// Partition names. The active partition holds every item that has not yet
// fully delivered; the completed partition is the archive.
const (
	partitionActive    = "active"
	partitionCompleted = "completed"
)

// Store manages queue persistence backed by SQLite. Each partition is a
// single JSON document overwritten atomically per save; an internal mutex
// enforces the single-writer discipline across partitions.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger

	mu sync.Mutex
}

// Open initializes or connects to the queue database and applies the schema.
// A missing data directory in the config is a fatal configuration error.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil || strings.TrimSpace(cfg.Paths.DataDir) == "" {
		return nil, ErrNotConfigured
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	dbPath := filepath.Join(cfg.Paths.DataDir, "queue.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:     db,
		path:   dbPath,
		logger: logging.NewComponentLogger(logger, "queue"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the on-disk location of the queue database.
func (s *Store) Path() string {
	return s.path
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS partitions (
    name       TEXT PRIMARY KEY,
    payload    TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`

// LoadActive reads the active partition. Malformed entries are dropped
// rather than failing the read; a missing or corrupt partition document
// yields an empty list (and is healed on the next save).
func (s *Store) LoadActive(ctx context.Context) ([]*Item, error) {
	return s.loadPartition(ctx, partitionActive)
}

// LoadCompleted reads the completed partition.
func (s *Store) LoadCompleted(ctx context.Context) ([]*Item, error) {
	return s.loadPartition(ctx, partitionCompleted)
}

// SaveActive overwrites the active partition with items.
func (s *Store) SaveActive(ctx context.Context, items []*Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.savePartition(ctx, partitionActive, items)
}

// AppendCompleted appends item to the completed partition.
func (s *Store) AppendCompleted(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	completed, err := s.loadPartition(ctx, partitionCompleted)
	if err != nil {
		return err
	}
	for _, existing := range completed {
		if existing.LocalID == item.LocalID {
			return nil
		}
	}
	completed = append(completed, item)
	return s.savePartition(ctx, partitionCompleted, completed)
}

func (s *Store) loadPartition(ctx context.Context, name string) ([]*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM partitions WHERE name = ?`, name)
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("load partition %s: %w", name, err)
	}

	var raw []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		// Corrupt document. The partition is self-healing: treat it as
		// empty and let the next save overwrite it.
		s.logger.Warn("partition document corrupt; treating as empty",
			logging.String("partition", name),
			logging.Error(err),
		)
		return nil, nil
	}

	items := make([]*Item, 0, len(raw))
	dropped := 0
	for _, entry := range raw {
		var item Item
		if err := json.Unmarshal(entry, &item); err != nil {
			dropped++
			continue
		}
		if strings.TrimSpace(item.LocalID) == "" {
			dropped++
			continue
		}
		items = append(items, &item)
	}
	if dropped > 0 {
		s.logger.Warn("dropped malformed partition entries",
			logging.String("partition", name),
			logging.Int("dropped", dropped),
		)
	}
	return items, nil
}

// savePartition rewrites one partition document. Callers must hold s.mu.
func (s *Store) savePartition(ctx context.Context, name string, items []*Item) error {
	if items == nil {
		items = []*Item{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal partition %s: %w", name, err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO partitions (name, payload, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name,
		string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save partition %s: %w", name, err)
	}
	return nil
}
