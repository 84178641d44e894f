package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/udisondev/beastcall/internal/game/battle"
)

// Postgres stores battles in PostgreSQL through a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to PostgreSQL and applies migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// goose needs *sql.DB
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()
	if err := RunMigrations(ctx, sqlDB, dialectPostgres); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// Pool returns the underlying pgx pool.
func (p *Postgres) Pool() *pgxpool.Pool {
	return p.pool
}

// Record implements battle.ResultSink.
func (p *Postgres) Record(ctx context.Context, r battle.Result) error {
	rw, err := newRow(r)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO battles (battle_id, outcome, reason, rounds, actions,
		                     survivors, defeated, captured, result, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (battle_id) DO NOTHING`,
		rw.BattleID, string(rw.Outcome), rw.Reason, rw.Rounds, rw.Actions,
		rw.Survivors, rw.Defeated, rw.Captured, rw.Result, rw.StartedAt, rw.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting battle %s: %w", r.BattleID, err)
	}
	return nil
}

// Recent implements BattleRepository.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Summary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT battle_id, outcome, reason, rounds, actions,
		       survivors, defeated, captured, started_at, ended_at
		FROM battles
		ORDER BY ended_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent battles: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var outcome string
		if err := rows.Scan(&s.BattleID, &outcome, &s.Reason, &s.Rounds, &s.Actions,
			&s.Survivors, &s.Defeated, &s.Captured, &s.StartedAt, &s.EndedAt); err != nil {
			return nil, fmt.Errorf("scanning battle row: %w", err)
		}
		s.Outcome = battle.Outcome(outcome)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating battle rows: %w", err)
	}
	return out, nil
}

// History implements BattleRepository.
func (p *Postgres) History(ctx context.Context, id uuid.UUID) (battle.Result, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, `SELECT result FROM battles WHERE battle_id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return battle.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return battle.Result{}, fmt.Errorf("querying battle %s: %w", id, err)
	}
	return decodeResult(id, raw)
}
