package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/udisondev/beastcall/internal/game/battle"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

// SQLite stores battles in a SQLite file, for single-player desktop builds.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	dsn := path
	if path != MemoryDSN {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// An in-memory database lives on a single connection.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	if err := RunMigrations(ctx, sqlDB, dialectSQLite); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &SQLite{db: sqlDB}, nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// Record implements battle.ResultSink.
func (s *SQLite) Record(ctx context.Context, r battle.Result) error {
	rw, err := newRow(r)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO battles (battle_id, outcome, reason, rounds, actions,
		                     survivors, defeated, captured, result, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (battle_id) DO NOTHING`,
		rw.BattleID.String(), string(rw.Outcome), rw.Reason, rw.Rounds, rw.Actions,
		rw.Survivors, rw.Defeated, rw.Captured, string(rw.Result),
		toMillis(rw.StartedAt), toMillis(rw.EndedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting battle %s: %w", r.BattleID, err)
	}
	return nil
}

// Recent implements BattleRepository.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT battle_id, outcome, reason, rounds, actions,
		       survivors, defeated, captured, started_at, ended_at
		FROM battles
		ORDER BY ended_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent battles: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var (
			sum            Summary
			id, outcome    string
			started, ended int64
		)
		if err := rows.Scan(&id, &outcome, &sum.Reason, &sum.Rounds, &sum.Actions,
			&sum.Survivors, &sum.Defeated, &sum.Captured, &started, &ended); err != nil {
			return nil, fmt.Errorf("scanning battle row: %w", err)
		}
		if sum.BattleID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing battle id %q: %w", id, err)
		}
		sum.Outcome = battle.Outcome(outcome)
		sum.StartedAt = fromMillis(started)
		sum.EndedAt = fromMillis(ended)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating battle rows: %w", err)
	}
	return out, nil
}

// History implements BattleRepository.
func (s *SQLite) History(ctx context.Context, id uuid.UUID) (battle.Result, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT result FROM battles WHERE battle_id = ?`, id.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return battle.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return battle.Result{}, fmt.Errorf("querying battle %s: %w", id, err)
	}
	return decodeResult(id, []byte(raw))
}
