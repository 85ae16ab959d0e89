package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-scoring/internal/db"
	"github.com/sells-group/crm-scoring/internal/model"
)

// PostgresStore implements HistoryStore using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with its own connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS score_snapshots (
	id                TEXT PRIMARY KEY,
	subject_id        TEXT NOT NULL,
	subject_kind      TEXT NOT NULL,
	profile           TEXT NOT NULL,
	overall_score     SMALLINT NOT NULL CHECK (overall_score BETWEEN 0 AND 100),
	factors           JSONB NOT NULL,
	risk_category     TEXT NOT NULL,
	churn_probability DOUBLE PRECISION,
	recommendations   JSONB NOT NULL,
	insights          JSONB NOT NULL DEFAULT '[]',
	enrichment        TEXT NOT NULL,
	fallback_reason   TEXT NOT NULL DEFAULT '',
	confidence        DOUBLE PRECISION NOT NULL,
	previous_score    INTEGER,
	delta             INTEGER,
	computed_at       TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshots_subject_computed ON score_snapshots(subject_id, computed_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_risk ON score_snapshots(risk_category);

CREATE TABLE IF NOT EXISTS score_alerts (
	id             TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL,
	snapshot_id    TEXT NOT NULL REFERENCES score_snapshots(id),
	previous_score INTEGER NOT NULL,
	current_score  INTEGER NOT NULL,
	delta          INTEGER NOT NULL,
	resolved       BOOLEAN NOT NULL DEFAULT false,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_subject ON score_alerts(subject_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_unresolved ON score_alerts(created_at DESC) WHERE NOT resolved;
`

const pgSnapshotColumns = `id, subject_id, subject_kind, profile, overall_score, factors, risk_category,
	churn_probability, recommendations, insights, enrichment, fallback_reason, confidence,
	previous_score, delta, computed_at`

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, snap *model.ScoreSnapshot, alert *model.Alert) error {
	if err := prepareAppend(snap, alert); err != nil {
		return err
	}
	enc, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO score_snapshots (`+pgSnapshotColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			snap.ID, snap.SubjectID, string(snap.SubjectKind), string(snap.Profile), snap.OverallScore,
			enc.factors, string(snap.RiskCategory), snap.ChurnProbability,
			enc.recommendations, enc.insights, string(snap.Enrichment), snap.FallbackReason,
			snap.Confidence, snap.PreviousScore, snap.Delta, snap.ComputedAt,
		)
		if err != nil {
			return eris.Wrap(err, "postgres: insert snapshot")
		}
		if alert == nil {
			return nil
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO score_alerts (id, subject_id, snapshot_id, previous_score, current_score, delta, resolved, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			alert.ID, alert.SubjectID, alert.TriggeringSnapshotID, alert.PreviousScore,
			alert.CurrentScore, alert.Delta, alert.Resolved, alert.CreatedAt,
		)
		return eris.Wrap(err, "postgres: insert alert")
	})
}

func (s *PostgresStore) GetHistory(ctx context.Context, subjectID string, limit int) ([]model.ScoreSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSnapshotColumns+` FROM score_snapshots
		WHERE subject_id = $1 ORDER BY computed_at DESC LIMIT $2`,
		subjectID, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get history")
	}
	defer rows.Close()
	return collectPgSnapshots(rows)
}

func (s *PostgresStore) GetLatestBySubject(ctx context.Context, subjectID string) (*model.ScoreSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgSnapshotColumns+` FROM score_snapshots
		WHERE subject_id = $1 ORDER BY computed_at DESC LIMIT 1`,
		subjectID,
	)
	snap, err := scanPgSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get latest")
	}
	return snap, nil
}

func (s *PostgresStore) ListByRiskCategory(ctx context.Context, category model.RiskCategory, limit int) ([]model.ScoreSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSnapshotColumns+` FROM (
			SELECT DISTINCT ON (subject_id) `+pgSnapshotColumns+`
			FROM score_snapshots ORDER BY subject_id, computed_at DESC
		) latest
		WHERE risk_category = $1
		ORDER BY churn_probability DESC NULLS LAST, overall_score ASC, subject_id
		LIMIT $2`,
		string(category), clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list by risk")
	}
	defer rows.Close()
	return collectPgSnapshots(rows)
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, snapshot_id, previous_score, current_score, delta, resolved, created_at
		FROM score_alerts
		WHERE ($1 = '' OR subject_id = $1) AND (NOT $2 OR NOT resolved)
		ORDER BY created_at DESC LIMIT $3`,
		filter.SubjectID, filter.UnresolvedOnly, clampLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list alerts")
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.TriggeringSnapshotID, &a.PreviousScore,
			&a.CurrentScore, &a.Delta, &a.Resolved, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alert")
		}
		a.CreatedAt = a.CreatedAt.UTC()
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "postgres: iterate alerts")
}

func (s *PostgresStore) ResolveAlert(ctx context.Context, alertID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE score_alerts SET resolved = true WHERE id = $1`, alertID)
	if err != nil {
		return eris.Wrap(err, "postgres: resolve alert")
	}
	if tag.RowsAffected() == 0 {
		return model.NewError(model.ErrNotFound, alertID, eris.Errorf("alert not found: %s", alertID))
	}
	return nil
}

func scanPgSnapshot(row pgx.Row) (*model.ScoreSnapshot, error) {
	var snap model.ScoreSnapshot
	var enc encodedSnapshot
	var kind, profile, category, enrichment string
	var computedAt time.Time

	err := row.Scan(&snap.ID, &snap.SubjectID, &kind, &profile, &snap.OverallScore,
		&enc.factors, &category, &snap.ChurnProbability, &enc.recommendations, &enc.insights,
		&enrichment, &snap.FallbackReason, &snap.Confidence, &snap.PreviousScore, &snap.Delta, &computedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeSnapshot(&snap, enc); err != nil {
		return nil, err
	}
	snap.SubjectKind = model.SubjectKind(kind)
	snap.Profile = model.ProfileName(profile)
	snap.RiskCategory = model.RiskCategory(category)
	snap.Enrichment = model.EnrichmentStatus(enrichment)
	snap.ComputedAt = computedAt.UTC()
	return &snap, nil
}

func collectPgSnapshots(rows pgx.Rows) ([]model.ScoreSnapshot, error) {
	var out []model.ScoreSnapshot
	for rows.Next() {
		snap, err := scanPgSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate snapshots")
}
