// Package sqlite stores the local dataset in an SQLite file, one row per
// collection holding its JSON-encoded list.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/repository"
)

//go:embed schema.sql
var schema string

// Store is the SQLite-backed repository.Store.
type Store struct {
	db     *sql.DB
	keys   repository.Keys
	logger *zap.Logger
	now    func() time.Time
}

// New opens (or creates) the database at path and applies the schema.
func New(path string, keys repository.Keys, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: db, keys: keys, logger: logger, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot loads every collection. Missing rows read as empty lists.
func (s *Store) Snapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot

	if err := s.load(ctx, repository.CollectionAnimals, &snap.Animals); err != nil {
		return models.Snapshot{}, err
	}
	if err := s.load(ctx, repository.CollectionWeighings, &snap.Weighings); err != nil {
		return models.Snapshot{}, err
	}
	if err := s.load(ctx, repository.CollectionFeed, &snap.FeedRecords); err != nil {
		return models.Snapshot{}, err
	}
	if err := s.load(ctx, repository.CollectionIncidents, &snap.Incidents); err != nil {
		return models.Snapshot{}, err
	}

	return repository.Normalize(snap), nil
}

func (s *Store) load(ctx context.Context, c repository.Collection, dst any) error {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM collections WHERE key = ?", s.keys.For(c)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", c, err)
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return fmt.Errorf("decode %s: %w", c, err)
	}
	return nil
}

// Replace rewrites the listed collections inside one transaction.
func (s *Store) Replace(ctx context.Context, snap models.Snapshot, collections ...repository.Collection) error {
	snap = repository.Normalize(snap)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now().UTC()
	for _, c := range collections {
		payload, err := encode(snap, c)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO collections (key, payload, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			s.keys.For(c), payload, now,
		)
		if err != nil {
			return fmt.Errorf("write %s: %w", c, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("collections replaced", zap.Any("collections", collections))
	return nil
}

func encode(snap models.Snapshot, c repository.Collection) (string, error) {
	var v any
	switch c {
	case repository.CollectionAnimals:
		v = snap.Animals
	case repository.CollectionWeighings:
		v = snap.Weighings
	case repository.CollectionFeed:
		v = snap.FeedRecords
	case repository.CollectionIncidents:
		v = snap.Incidents
	default:
		return "", fmt.Errorf("unknown collection %q", c)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", c, err)
	}
	return string(b), nil
}
