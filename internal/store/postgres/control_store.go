package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/jackc/pgx/v5"
)

// ControlStore implements domain.ControlStore on the bot_controls table.
// Every change is a new row; the newest row is authoritative.
type ControlStore struct {
	db dbtx
}

// NewControlStore creates a ControlStore.
func NewControlStore(db dbtx) *ControlStore {
	return &ControlStore{db: db}
}

// Latest returns the most recently updated row or domain.ErrNotFound.
func (s *ControlStore) Latest(ctx context.Context) (domain.ControlRecord, error) {
	const q = `SELECT id, armed, live_trading, updated_at FROM bot_controls ORDER BY updated_at DESC, id DESC LIMIT 1`

	var rec domain.ControlRecord
	err := s.db.QueryRow(ctx, q).Scan(&rec.ID, &rec.Armed, &rec.LiveTrading, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ControlRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.ControlRecord{}, fmt.Errorf("postgres: latest control: %w", err)
	}
	return rec, nil
}

// Insert writes a new row and returns it with its id and timestamp.
func (s *ControlStore) Insert(ctx context.Context, rec domain.ControlRecord) (domain.ControlRecord, error) {
	const q = `INSERT INTO bot_controls (armed, live_trading) VALUES ($1, $2) RETURNING id, updated_at`

	if err := s.db.QueryRow(ctx, q, rec.Armed, rec.LiveTrading).Scan(&rec.ID, &rec.UpdatedAt); err != nil {
		return domain.ControlRecord{}, fmt.Errorf("postgres: insert control: %w", err)
	}
	return rec, nil
}

var _ domain.ControlStore = (*ControlStore)(nil)
