// Package db stores finished battles in PostgreSQL or SQLite.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/beastcall/internal/config"
	"github.com/udisondev/beastcall/internal/game/battle"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrNotFound is returned by History for an unknown battle.
var ErrNotFound = errors.New("battle not found")

// Summary is one row of the battle list.
type Summary struct {
	BattleID  uuid.UUID
	Outcome   battle.Outcome
	Reason    string
	Rounds    int32
	Actions   int
	Survivors int
	Defeated  int
	Captured  int
	StartedAt time.Time
	EndedAt   time.Time
}

// BattleRepository persists finished battles. It is a battle.ResultSink: recording
// the same battle twice keeps the first copy.
type BattleRepository interface {
	battle.ResultSink

	// Recent returns up to limit battles, most recently ended first.
	Recent(ctx context.Context, limit int) ([]Summary, error)
	// History returns the full result of a stored battle.
	History(ctx context.Context, id uuid.UUID) (battle.Result, error)
	Close() error
}

// Open opens the repository selected by cfg. An empty driver returns nil, nil.
func Open(ctx context.Context, cfg config.DatabaseConfig) (BattleRepository, error) {
	switch cfg.Driver {
	case "":
		return nil, nil
	case DriverPostgres:
		pg, err := NewPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return pg, nil
	case DriverSQLite:
		lite, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return lite, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// row is the column set shared by both drivers.
type row struct {
	Summary
	Result []byte
}

func newRow(r battle.Result) (row, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return row{}, fmt.Errorf("encoding battle %s: %w", r.BattleID, err)
	}
	return row{
		Summary: Summary{
			BattleID:  r.BattleID,
			Outcome:   r.Outcome,
			Reason:    r.Reason,
			Rounds:    r.Rounds,
			Actions:   len(r.History),
			Survivors: len(r.Survivors),
			Defeated:  len(r.Defeated),
			Captured:  len(r.Captured),
			StartedAt: r.StartedAt,
			EndedAt:   r.EndedAt,
		},
		Result: raw,
	}, nil
}

func decodeResult(id uuid.UUID, raw []byte) (battle.Result, error) {
	var r battle.Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return battle.Result{}, fmt.Errorf("decoding battle %s: %w", id, err)
	}
	return r, nil
}
