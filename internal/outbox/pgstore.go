package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// PGStore is a Postgres-backed Store, sharing internal/feature.PGStore's
// sqlx-plus-JSONB column layout. Expected schema:
//
//	outbox (alert_id pk, rule_id, token, severity, rendered_message,
//	        channels jsonb, enqueued_at, state, attempts, dedupe_key,
//	        next_attempt_at)
type PGStore struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPGStore wraps an existing *sqlx.DB. timeout bounds every query.
func NewPGStore(db *sqlx.DB, timeout time.Duration) *PGStore {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &PGStore{db: db, timeout: timeout}
}

func (p *PGStore) Enqueue(ctx context.Context, e Entry) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	channelsJSON, err := json.Marshal(e.Channels)
	if err != nil {
		return fmt.Errorf("marshal channels: %w", err)
	}

	const query = `
		INSERT INTO outbox (alert_id, rule_id, token, severity, rendered_message,
			channels, enqueued_at, state, attempts, dedupe_key, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (alert_id) DO NOTHING`

	_, err = p.db.ExecContext(ctx, query, e.AlertID, e.RuleID, e.Token, e.Severity,
		e.RenderedMessage, channelsJSON, e.EnqueuedAt, e.State, e.Attempts, e.DedupeKey, e.NextAttemptAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

func (p *PGStore) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		SELECT alert_id, rule_id, token, severity, rendered_message, channels,
			enqueued_at, state, attempts, dedupe_key, next_attempt_at
		FROM outbox
		WHERE state IN ('pending', 'in_flight') AND next_attempt_at <= $1
		ORDER BY next_attempt_at ASC
		LIMIT $2`

	rows, err := p.db.QueryxContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due outbox entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (p *PGStore) Undelivered(ctx context.Context, limit int) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		SELECT alert_id, rule_id, token, severity, rendered_message, channels,
			enqueued_at, state, attempts, dedupe_key, next_attempt_at
		FROM outbox
		WHERE state IN ('pending', 'in_flight')
		ORDER BY enqueued_at ASC
		LIMIT $1`

	rows, err := p.db.QueryxContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list undelivered outbox entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (p *PGStore) UpdateState(ctx context.Context, alertID string, state State, attempts int, nextAttemptAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		UPDATE outbox SET state = $2, attempts = $3, next_attempt_at = $4
		WHERE alert_id = $1`
	_, err := p.db.ExecContext(ctx, query, alertID, state, attempts, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("update outbox entry state: %w", err)
	}
	return nil
}

func (p *PGStore) FindByDedupeKey(ctx context.Context, key string) (*Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		SELECT alert_id, rule_id, token, severity, rendered_message, channels,
			enqueued_at, state, attempts, dedupe_key, next_attempt_at
		FROM outbox
		WHERE dedupe_key = $1
		ORDER BY enqueued_at DESC
		LIMIT 1`

	row := p.db.QueryRowxContext(ctx, query, key)
	e, err := scanEntryRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find outbox entry by dedupe key: %w", err)
	}
	return e, nil
}

func (p *PGStore) RevertStaleInFlight(ctx context.Context, now time.Time, grace time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		UPDATE outbox SET state = 'pending', next_attempt_at = $1
		WHERE state = 'in_flight' AND next_attempt_at < $2`

	res, err := p.db.ExecContext(ctx, query, now, now.Add(-grace))
	if err != nil {
		return 0, fmt.Errorf("revert stale in-flight outbox entries: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(rows *sqlx.Rows) (*Entry, error)    { return scanEntryAny(rows) }
func scanEntryRow(row *sqlx.Row) (*Entry, error)   { return scanEntryAny(row) }

func scanEntryAny(s rowScanner) (*Entry, error) {
	var (
		e            Entry
		channelsJSON []byte
	)
	if err := s.Scan(&e.AlertID, &e.RuleID, &e.Token, &e.Severity, &e.RenderedMessage,
		&channelsJSON, &e.EnqueuedAt, &e.State, &e.Attempts, &e.DedupeKey, &e.NextAttemptAt); err != nil {
		return nil, err
	}
	if len(channelsJSON) > 0 {
		if err := json.Unmarshal(channelsJSON, &e.Channels); err != nil {
			return nil, fmt.Errorf("unmarshal channels: %w", err)
		}
	}
	return &e, nil
}
