// Package alert detects significant score regressions and builds the
// follow-up task sent to the subject's owner.
package alert

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/model"
)

const (
	// DefaultDropThreshold is the minimum score drop that raises an alert.
	DefaultDropThreshold = 20
	// DefaultDueInDays is the follow-up task due date offset.
	DefaultDueInDays = 2
)

// TaskSink receives follow-up tasks for owning users.
type TaskSink interface {
	CreateFollowUpTask(ctx context.Context, task model.FollowUpTask) error
}

// Emitter compares consecutive snapshots of a subject.
type Emitter struct {
	threshold int
	dueInDays int
}

// NewEmitter returns an Emitter. Non-positive arguments fall back to the
// defaults.
func NewEmitter(threshold, dueInDays int) *Emitter {
	if threshold <= 0 {
		threshold = DefaultDropThreshold
	}
	if dueInDays <= 0 {
		dueInDays = DefaultDueInDays
	}
	return &Emitter{threshold: threshold, dueInDays: dueInDays}
}

// Threshold returns the configured drop threshold.
func (e *Emitter) Threshold() int { return e.threshold }

// Evaluate returns an alert when prev exists and the score fell by at
// least the threshold. First scorings and improvements never alert. The
// alert is linked to cur when the snapshot is persisted.
func (e *Emitter) Evaluate(prev, cur *model.ScoreSnapshot) *model.Alert {
	if prev == nil || cur == nil {
		return nil
	}
	drop := prev.OverallScore - cur.OverallScore
	if drop < e.threshold {
		return nil
	}
	return &model.Alert{
		SubjectID:     cur.SubjectID,
		PreviousScore: prev.OverallScore,
		CurrentScore:  cur.OverallScore,
		Delta:         cur.OverallScore - prev.OverallScore,
		CreatedAt:     cur.ComputedAt,
	}
}

// FollowUp builds the high-priority task for a.
func (e *Emitter) FollowUp(subj model.Subject, a *model.Alert) model.FollowUpTask {
	label := "Health score"
	if subj.Kind == model.SubjectLead {
		label = "Lead score"
	}
	return model.FollowUpTask{
		SubjectID: subj.ID,
		OwnerID:   subj.OwnerID,
		Message: fmt.Sprintf("%s for %s dropped from %d to %d (%d points). Please review and follow up.",
			label, subj.DisplayName(), a.PreviousScore, a.CurrentScore, -a.Delta),
		Priority:  model.PriorityHigh,
		DueInDays: e.dueInDays,
	}
}

// LogSink logs tasks instead of delivering them. It is used when no CRM
// connection is configured.
type LogSink struct{}

func (LogSink) CreateFollowUpTask(_ context.Context, task model.FollowUpTask) error {
	zap.L().Info("alert: follow-up task (not delivered)",
		zap.String("subject_id", task.SubjectID),
		zap.String("owner_id", task.OwnerID),
		zap.String("priority", string(task.Priority)),
		zap.Int("due_in_days", task.DueInDays),
		zap.String("message", task.Message),
	)
	return nil
}
