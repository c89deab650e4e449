package feature

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/autotrader/internal/model"
)

// PGStore is a Postgres-backed Store: scalar columns for the hot query
// paths, JSONB for the open-shaped attributes. Expected schema:
//
//	features  (token, name, kind, num, bool, str, ts_value, vec, timestamp, confidence, category, provenance jsonb)
//	snapshots (token, timestamp, score, confidence, features jsonb, contributions jsonb, metadata jsonb)
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

func (p *PGStore) WriteFeature(ctx context.Context, f model.Feature) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	provenanceJSON, err := json.Marshal(f.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	const query = `
		INSERT INTO features (token, name, kind, num, bool, str, ts_value, vec, timestamp, confidence, category, provenance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	var vecJSON []byte
	if f.Value.Vec != nil {
		vecJSON, err = json.Marshal(f.Value.Vec)
		if err != nil {
			return fmt.Errorf("marshal vector value: %w", err)
		}
	}

	_, err = p.db.ExecContext(ctx, query,
		f.Token, f.Name, f.Value.Kind, f.Value.Num, f.Value.Bool, f.Value.Str, f.Value.Ts, vecJSON,
		f.Timestamp, f.Confidence, f.Category, provenanceJSON)
	if err != nil {
		return fmt.Errorf("insert feature: %w", err)
	}
	return nil
}

func (p *PGStore) ReadLatest(ctx context.Context, token, name string) (*model.Feature, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		SELECT token, name, kind, num, bool, str, ts_value, vec, timestamp, confidence, category, provenance
		FROM features
		WHERE token = $1 AND name = $2
		ORDER BY timestamp DESC
		LIMIT 1`

	row := p.db.QueryRowxContext(ctx, query, token, name)
	f, err := scanFeature(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read latest feature: %w", err)
	}
	return f, nil
}

func (p *PGStore) ReadHistory(ctx context.Context, token, name string, limit int) ([]model.Feature, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		SELECT token, name, kind, num, bool, str, ts_value, vec, timestamp, confidence, category, provenance
		FROM features
		WHERE token = $1 AND name = $2
		ORDER BY timestamp DESC
		LIMIT $3`

	rows, err := p.db.QueryxContext(ctx, query, token, name, limit)
	if err != nil {
		return nil, fmt.Errorf("read feature history: %w", err)
	}
	defer rows.Close()

	var out []model.Feature
	for rows.Next() {
		f, err := scanFeatureRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (p *PGStore) WriteSnapshot(ctx context.Context, s model.GemScoreSnapshot) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// The transaction wraps only the insert; no lock is taken. The delta is
	// not read here: ComputeScoreDelta (called separately) reads the two
	// newest rows in one query, so it sees either the committed snapshot or
	// none of it.
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	featuresJSON, err := json.Marshal(s.Features)
	if err != nil {
		return fmt.Errorf("marshal features: %w", err)
	}
	contributionsJSON, err := json.Marshal(s.Contributions)
	if err != nil {
		return fmt.Errorf("marshal contributions: %w", err)
	}
	metadataJSON, err := json.Marshal(s.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO snapshots (token, timestamp, score, confidence, features, contributions, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.ExecContext(ctx, query, s.Token, s.Timestamp, s.Score, s.Confidence,
		featuresJSON, contributionsJSON, metadataJSON); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	return tx.Commit()
}

func (p *PGStore) ReadSnapshotHistory(ctx context.Context, token string, limit int) ([]model.GemScoreSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	const query = `
		SELECT token, timestamp, score, confidence, features, contributions, metadata
		FROM snapshots
		WHERE token = $1
		ORDER BY timestamp DESC
		LIMIT $2`

	rows, err := p.db.QueryxContext(ctx, query, token, limit)
	if err != nil {
		return nil, fmt.Errorf("read snapshot history: %w", err)
	}
	defer rows.Close()

	var out []model.GemScoreSnapshot
	for rows.Next() {
		s, err := scanSnapshotRows(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (p *PGStore) ComputeScoreDelta(ctx context.Context, token string) (*model.ScoreDelta, error) {
	history, err := p.ReadSnapshotHistory(ctx, token, 2)
	if err != nil {
		return nil, err
	}
	if len(history) < 2 {
		return nil, nil
	}
	current, previous := history[0], history[1]
	return buildScoreDelta(token, previous, current), nil
}

func (p *PGStore) ClearOld(ctx context.Context, maxAge time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cutoff := time.Now().Add(-maxAge)

	if _, err := p.db.ExecContext(ctx, `DELETE FROM features WHERE timestamp < $1`, cutoff); err != nil {
		return fmt.Errorf("clear old features: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `DELETE FROM snapshots WHERE timestamp < $1`, cutoff); err != nil {
		return fmt.Errorf("clear old snapshots: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFeature(row *sqlx.Row) (*model.Feature, error)     { return scanFeatureAny(row) }
func scanFeatureRows(rows *sqlx.Rows) (*model.Feature, error) { return scanFeatureAny(rows) }

func scanFeatureAny(s rowScanner) (*model.Feature, error) {
	var (
		f              model.Feature
		kind           string
		num            float64
		boolean        bool
		str            string
		tsValue        sql.NullTime
		vecJSON        []byte
		category       string
		provenanceJSON []byte
	)

	if err := s.Scan(&f.Token, &f.Name, &kind, &num, &boolean, &str, &tsValue, &vecJSON,
		&f.Timestamp, &f.Confidence, &category, &provenanceJSON); err != nil {
		return nil, err
	}

	f.Category = model.Category(category)
	f.Value.Kind = model.ValueKind(kind)
	f.Value.Num = num
	f.Value.Bool = boolean
	f.Value.Str = str
	if tsValue.Valid {
		f.Value.Ts = tsValue.Time
	}
	if len(vecJSON) > 0 {
		if err := json.Unmarshal(vecJSON, &f.Value.Vec); err != nil {
			return nil, fmt.Errorf("unmarshal vector value: %w", err)
		}
	}
	if len(provenanceJSON) > 0 {
		if err := json.Unmarshal(provenanceJSON, &f.Provenance); err != nil {
			return nil, fmt.Errorf("unmarshal provenance: %w", err)
		}
	}
	return &f, nil
}

func scanSnapshotRows(rows *sqlx.Rows) (*model.GemScoreSnapshot, error) {
	var (
		s                  model.GemScoreSnapshot
		featuresJSON       []byte
		contributionsJSON  []byte
		metadataJSON       []byte
	)

	if err := rows.Scan(&s.Token, &s.Timestamp, &s.Score, &s.Confidence,
		&featuresJSON, &contributionsJSON, &metadataJSON); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(featuresJSON, &s.Features); err != nil {
		return nil, fmt.Errorf("unmarshal features: %w", err)
	}
	if err := json.Unmarshal(contributionsJSON, &s.Contributions); err != nil {
		return nil, fmt.Errorf("unmarshal contributions: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &s, nil
}
