package model

import "time"

// ProfileName identifies the weight profile used for a snapshot.
type ProfileName string

const (
	ProfileLead   ProfileName = "lead"
	ProfileHealth ProfileName = "health"
)

// ProfileFor returns the profile that scores subjects of kind k.
func ProfileFor(k SubjectKind) ProfileName {
	if k == SubjectAccount {
		return ProfileHealth
	}
	return ProfileLead
}

// RiskCategory is a lead grade (A..F) or an account health level.
type RiskCategory string

const (
	GradeA RiskCategory = "A"
	GradeB RiskCategory = "B"
	GradeC RiskCategory = "C"
	GradeD RiskCategory = "D"
	GradeF RiskCategory = "F"

	RiskHealthy  RiskCategory = "healthy"
	RiskAtRisk   RiskCategory = "at_risk"
	RiskCritical RiskCategory = "critical"
)

// ParseRiskCategory accepts any grade or health level.
func ParseRiskCategory(s string) (RiskCategory, bool) {
	switch c := RiskCategory(s); c {
	case GradeA, GradeB, GradeC, GradeD, GradeF, RiskHealthy, RiskAtRisk, RiskCritical:
		return c, true
	}
	return "", false
}

// EnrichmentStatus records whether AI judgment contributed to a snapshot.
type EnrichmentStatus string

const (
	EnrichmentApplied  EnrichmentStatus = "enriched"
	EnrichmentFallback EnrichmentStatus = "fallback"
)

// ScoreSnapshot is one immutable scoring result. It is created once per run
// and never updated.
type ScoreSnapshot struct {
	ID               string           `json:"id"`
	SubjectID        string           `json:"subject_id"`
	SubjectKind      SubjectKind      `json:"subject_kind"`
	Profile          ProfileName      `json:"profile"`
	OverallScore     int              `json:"overall_score"`
	Factors          []FactorScore    `json:"factors"`
	RiskCategory     RiskCategory     `json:"risk_category"`
	ChurnProbability *float64         `json:"churn_probability"`
	Recommendations  []string         `json:"recommendations"`
	Insights         []string         `json:"insights"`
	Enrichment       EnrichmentStatus `json:"enrichment"`
	FallbackReason   string           `json:"fallback_reason,omitempty"`
	Confidence       float64          `json:"confidence"`
	PreviousScore    *int             `json:"previous_score"`
	Delta            *int             `json:"delta"`
	ComputedAt       time.Time        `json:"computed_at"`
}

// Factor returns the sub-score for key, if present.
func (s *ScoreSnapshot) Factor(key FactorKey) (FactorScore, bool) {
	for _, f := range s.Factors {
		if f.Factor == key {
			return f, true
		}
	}
	return FactorScore{}, false
}

// Alert flags a significant score regression. Resolved is the only field an
// external workflow may change.
type Alert struct {
	ID                   string    `json:"id"`
	SubjectID            string    `json:"subject_id"`
	TriggeringSnapshotID string    `json:"triggering_snapshot_id"`
	PreviousScore        int       `json:"previous_score"`
	CurrentScore         int       `json:"current_score"`
	Delta                int       `json:"delta"`
	Resolved             bool      `json:"resolved"`
	CreatedAt            time.Time `json:"created_at"`
}

// TaskPriority is the follow-up task priority understood by the CRM.
type TaskPriority string

const (
	PriorityHigh   TaskPriority = "High"
	PriorityNormal TaskPriority = "Normal"
	PriorityLow    TaskPriority = "Low"
)

// FollowUpTask is work enqueued for a subject's owning user.
type FollowUpTask struct {
	SubjectID string       `json:"subject_id"`
	OwnerID   string       `json:"owner_id"`
	Message   string       `json:"message"`
	Priority  TaskPriority `json:"priority"`
	DueInDays int          `json:"due_in_days"`
}
