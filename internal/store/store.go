// Package store persists score snapshots and alerts. Snapshots are
// append-only; an alert is always written in the same transaction as the
// snapshot that triggered it.
package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-scoring/internal/model"
)

const (
	// DefaultLimit applies when a caller passes a non-positive limit.
	DefaultLimit = 50
	// MaxLimit bounds every list query.
	MaxLimit = 1000
)

// AlertFilter specifies criteria for listing alerts.
type AlertFilter struct {
	SubjectID      string `json:"subject_id,omitempty"`
	UnresolvedOnly bool   `json:"unresolved_only,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

// HistoryStore is the snapshot history and query surface.
type HistoryStore interface {
	// Append writes snap and, when non-nil, alert atomically.
	Append(ctx context.Context, snap *model.ScoreSnapshot, alert *model.Alert) error

	// GetHistory returns up to limit snapshots for a subject, newest first.
	GetHistory(ctx context.Context, subjectID string, limit int) ([]model.ScoreSnapshot, error)
	// GetLatestBySubject returns the newest snapshot, or nil when the
	// subject has never been scored.
	GetLatestBySubject(ctx context.Context, subjectID string) (*model.ScoreSnapshot, error)
	// ListByRiskCategory returns subjects whose latest snapshot falls in
	// category, highest churn probability first.
	ListByRiskCategory(ctx context.Context, category model.RiskCategory, limit int) ([]model.ScoreSnapshot, error)

	// Alerts
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	ResolveAlert(ctx context.Context, alertID string) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// clampLimit maps a caller-supplied limit into [1, MaxLimit].
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// prepareAppend assigns missing ids and links the alert to its snapshot.
func prepareAppend(snap *model.ScoreSnapshot, alert *model.Alert) error {
	if snap == nil {
		return eris.New("store: nil snapshot")
	}
	if snap.SubjectID == "" {
		return eris.New("store: snapshot has no subject id")
	}
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	if alert == nil {
		return nil
	}
	if alert.SubjectID != snap.SubjectID {
		return eris.Errorf("store: alert subject %s does not match snapshot subject %s", alert.SubjectID, snap.SubjectID)
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	alert.TriggeringSnapshotID = snap.ID
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = snap.ComputedAt
	}
	return nil
}

// encodedSnapshot carries the JSON columns of a snapshot.
type encodedSnapshot struct {
	factors         []byte
	recommendations []byte
	insights        []byte
}

func encodeSnapshot(snap *model.ScoreSnapshot) (encodedSnapshot, error) {
	var enc encodedSnapshot
	var err error

	factors := snap.Factors
	if factors == nil {
		factors = []model.FactorScore{}
	}
	if enc.factors, err = json.Marshal(factors); err != nil {
		return enc, eris.Wrap(err, "store: marshal factors")
	}
	if enc.recommendations, err = json.Marshal(nonNil(snap.Recommendations)); err != nil {
		return enc, eris.Wrap(err, "store: marshal recommendations")
	}
	if enc.insights, err = json.Marshal(nonNil(snap.Insights)); err != nil {
		return enc, eris.Wrap(err, "store: marshal insights")
	}
	return enc, nil
}

func decodeSnapshot(snap *model.ScoreSnapshot, enc encodedSnapshot) error {
	if err := json.Unmarshal(enc.factors, &snap.Factors); err != nil {
		return eris.Wrap(err, "store: unmarshal factors")
	}
	if err := json.Unmarshal(enc.recommendations, &snap.Recommendations); err != nil {
		return eris.Wrap(err, "store: unmarshal recommendations")
	}
	if err := json.Unmarshal(enc.insights, &snap.Insights); err != nil {
		return eris.Wrap(err, "store: unmarshal insights")
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
