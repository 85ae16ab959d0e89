package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/crm-scoring/internal/model"
)

// SQLiteStore implements HistoryStore using modernc.org/sqlite. Times are
// stored as unix microseconds.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS score_snapshots (
	id                TEXT PRIMARY KEY,
	subject_id        TEXT NOT NULL,
	subject_kind      TEXT NOT NULL,
	profile           TEXT NOT NULL,
	overall_score     INTEGER NOT NULL CHECK (overall_score BETWEEN 0 AND 100),
	factors           TEXT NOT NULL,
	risk_category     TEXT NOT NULL,
	churn_probability REAL,
	recommendations   TEXT NOT NULL,
	insights          TEXT NOT NULL,
	enrichment        TEXT NOT NULL,
	fallback_reason   TEXT NOT NULL DEFAULT '',
	confidence        REAL NOT NULL,
	previous_score    INTEGER,
	delta             INTEGER,
	computed_at       INTEGER NOT NULL
);

DROP INDEX IF EXISTS idx_snapshots_subject_computed;
CREATE UNIQUE INDEX IF NOT EXISTS uq_snapshots_subject_computed ON score_snapshots(subject_id, computed_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_risk ON score_snapshots(risk_category);

CREATE TABLE IF NOT EXISTS score_alerts (
	id             TEXT PRIMARY KEY,
	subject_id     TEXT NOT NULL,
	snapshot_id    TEXT NOT NULL REFERENCES score_snapshots(id),
	previous_score INTEGER NOT NULL,
	current_score  INTEGER NOT NULL,
	delta          INTEGER NOT NULL,
	resolved       INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_subject ON score_alerts(subject_id, created_at DESC);
`

const sqliteSnapshotColumns = `id, subject_id, subject_kind, profile, overall_score, factors, risk_category,
	churn_probability, recommendations, insights, enrichment, fallback_reason, confidence,
	previous_score, delta, computed_at`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, snap *model.ScoreSnapshot, alert *model.Alert) error {
	if err := prepareAppend(snap, alert); err != nil {
		return err
	}
	enc, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO score_snapshots (`+sqliteSnapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.SubjectID, string(snap.SubjectKind), string(snap.Profile), snap.OverallScore,
		string(enc.factors), string(snap.RiskCategory), nullFloat(snap.ChurnProbability),
		string(enc.recommendations), string(enc.insights), string(snap.Enrichment), snap.FallbackReason,
		snap.Confidence, nullInt(snap.PreviousScore), nullInt(snap.Delta), snap.ComputedAt.UnixMicro(),
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: insert snapshot")
	}

	if alert != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO score_alerts (id, subject_id, snapshot_id, previous_score, current_score, delta, resolved, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			alert.ID, alert.SubjectID, alert.TriggeringSnapshotID, alert.PreviousScore,
			alert.CurrentScore, alert.Delta, alert.Resolved, alert.CreatedAt.UnixMicro(),
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert alert")
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit append")
}

func (s *SQLiteStore) GetHistory(ctx context.Context, subjectID string, limit int) ([]model.ScoreSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSnapshotColumns+` FROM score_snapshots
		WHERE subject_id = ? ORDER BY computed_at DESC LIMIT ?`,
		subjectID, clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get history")
	}
	defer rows.Close() //nolint:errcheck
	return collectSQLiteSnapshots(rows)
}

func (s *SQLiteStore) GetLatestBySubject(ctx context.Context, subjectID string) (*model.ScoreSnapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteSnapshotColumns+` FROM score_snapshots
		WHERE subject_id = ? ORDER BY computed_at DESC LIMIT 1`,
		subjectID,
	)
	snap, err := scanSQLiteSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get latest")
	}
	return snap, nil
}

func (s *SQLiteStore) ListByRiskCategory(ctx context.Context, category model.RiskCategory, limit int) ([]model.ScoreSnapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteSnapshotColumns+` FROM score_snapshots s
		WHERE s.computed_at = (SELECT MAX(computed_at) FROM score_snapshots WHERE subject_id = s.subject_id)
		  AND s.risk_category = ?
		ORDER BY s.churn_probability IS NULL, s.churn_probability DESC, s.overall_score ASC, s.subject_id
		LIMIT ?`,
		string(category), clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list by risk")
	}
	defer rows.Close() //nolint:errcheck
	return collectSQLiteSnapshots(rows)
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error) {
	query := `SELECT id, subject_id, snapshot_id, previous_score, current_score, delta, resolved, created_at
		FROM score_alerts WHERE 1=1`
	var args []any
	if filter.SubjectID != "" {
		query += " AND subject_id = ?"
		args = append(args, filter.SubjectID)
	}
	if filter.UnresolvedOnly {
		query += " AND resolved = 0"
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, clampLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list alerts")
	}
	defer rows.Close() //nolint:errcheck

	var alerts []model.Alert
	for rows.Next() {
		var a model.Alert
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.SubjectID, &a.TriggeringSnapshotID, &a.PreviousScore,
			&a.CurrentScore, &a.Delta, &a.Resolved, &createdAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alert")
		}
		a.CreatedAt = time.UnixMicro(createdAt).UTC()
		alerts = append(alerts, a)
	}
	return alerts, eris.Wrap(rows.Err(), "sqlite: iterate alerts")
}

func (s *SQLiteStore) ResolveAlert(ctx context.Context, alertID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE score_alerts SET resolved = 1 WHERE id = ?`, alertID)
	if err != nil {
		return eris.Wrap(err, "sqlite: resolve alert")
	}
	return checkRowsAffected(res, "alert", alertID)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return model.NewError(model.ErrNotFound, id, eris.Errorf("%s not found: %s", entity, id))
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSQLiteSnapshot(row scannable) (*model.ScoreSnapshot, error) {
	var snap model.ScoreSnapshot
	var factors, recs, insights string
	var churn sql.NullFloat64
	var prev, delta sql.NullInt64
	var computedAt int64

	err := row.Scan(&snap.ID, &snap.SubjectID, &snap.SubjectKind, &snap.Profile, &snap.OverallScore,
		&factors, &snap.RiskCategory, &churn, &recs, &insights, &snap.Enrichment, &snap.FallbackReason,
		&snap.Confidence, &prev, &delta, &computedAt)
	if err != nil {
		return nil, err
	}

	if err := decodeSnapshot(&snap, encodedSnapshot{
		factors:         []byte(factors),
		recommendations: []byte(recs),
		insights:        []byte(insights),
	}); err != nil {
		return nil, err
	}
	if churn.Valid {
		v := churn.Float64
		snap.ChurnProbability = &v
	}
	if prev.Valid {
		v := int(prev.Int64)
		snap.PreviousScore = &v
	}
	if delta.Valid {
		v := int(delta.Int64)
		snap.Delta = &v
	}
	snap.ComputedAt = time.UnixMicro(computedAt).UTC()
	return &snap, nil
}

func collectSQLiteSnapshots(rows *sql.Rows) ([]model.ScoreSnapshot, error) {
	var out []model.ScoreSnapshot
	for rows.Next() {
		snap, err := scanSQLiteSnapshot(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		out = append(out, *snap)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate snapshots")
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}
