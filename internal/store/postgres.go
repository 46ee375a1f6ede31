package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sproutvoice/backend/internal/model/conversation"
	"github.com/sproutvoice/backend/internal/model/usage"
)

// Postgres implements TurnStore and UsageStore on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and verifies the connection.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping reports store reachability for health checks.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SaveTurns writes all turns inside a single transaction.
func (p *Postgres) SaveTurns(ctx context.Context, turns ...conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrUnavailable, err)
	}
	defer tx.Rollback(ctx)

	for _, turn := range turns {
		if turn.ID == "" {
			turn.ID = uuid.NewString()
		}
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO turns (id, account_id, session_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			turn.ID, turn.AccountID, turn.SessionID, turn.Role, turn.Content, turn.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: insert turn: %v", ErrUnavailable, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit turns: %v", ErrUnavailable, err)
	}
	return nil
}

// RecentTurns returns up to limit most recent turns in chronological order.
func (p *Postgres) RecentTurns(ctx context.Context, accountID string, limit int) ([]conversation.Turn, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, account_id, session_id, role, content, created_at
		 FROM turns
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		accountID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query turns: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var newestFirst []conversation.Turn
	for rows.Next() {
		var turn conversation.Turn
		if err := rows.Scan(&turn.ID, &turn.AccountID, &turn.SessionID, &turn.Role, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan turn: %v", ErrUnavailable, err)
		}
		newestFirst = append(newestFirst, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: read turns: %v", ErrUnavailable, err)
	}

	chronological := make([]conversation.Turn, len(newestFirst))
	for i, turn := range newestFirst {
		chronological[len(newestFirst)-1-i] = turn
	}
	return chronological, nil
}

// VoiceMinutesUsed reads today's ledger row; a missing row reads as zero.
func (p *Postgres) VoiceMinutesUsed(ctx context.Context, accountID string, day time.Time) (int, error) {
	var minutes int
	err := p.pool.QueryRow(ctx,
		`SELECT voice_minutes_used FROM usage_records WHERE account_id = $1 AND day = $2`,
		accountID, usage.DayOf(day),
	).Scan(&minutes)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: read usage: %v", ErrUnavailable, err)
	}
	return minutes, nil
}

// AddVoiceMinutes performs the increment as a single conditional statement so
// concurrent sessions for one account cannot lose an update.
func (p *Postgres) AddVoiceMinutes(ctx context.Context, accountID string, day time.Time, minutes int) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO usage_records (account_id, day, voice_minutes_used)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (account_id, day)
		 DO UPDATE SET voice_minutes_used = usage_records.voice_minutes_used + EXCLUDED.voice_minutes_used`,
		accountID, usage.DayOf(day), minutes,
	)
	if err != nil {
		return fmt.Errorf("%w: add voice minutes: %v", ErrUnavailable, err)
	}
	return nil
}
