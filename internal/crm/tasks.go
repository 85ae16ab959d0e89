package crm

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/pkg/salesforce"
)

// CreateFollowUpTask inserts a Salesforce Task for the subject's owner.
// Accounts are linked through WhatId and leads through WhoId.
func (s *Source) CreateFollowUpTask(ctx context.Context, task model.FollowUpTask) error {
	kind, ok := KindForID(task.SubjectID)
	if !ok {
		return eris.New(fmt.Sprintf("crm: cannot link task to %q", task.SubjectID))
	}

	sfTask := salesforce.Task{
		OwnerID:  task.OwnerID,
		Subject:  subjectLine(kind),
		Body:     task.Message,
		Priority: string(task.Priority),
		Due:      s.now().AddDate(0, 0, task.DueInDays),
	}
	if kind == model.SubjectLead {
		sfTask.WhoID = task.SubjectID
	} else {
		sfTask.WhatID = task.SubjectID
	}

	id, err := call(ctx, s, func(ctx context.Context) (string, error) {
		return salesforce.CreateTask(ctx, s.client, sfTask)
	})
	if err != nil {
		return eris.Wrap(err, "crm: create follow-up task")
	}
	zap.L().Info("crm: follow-up task created",
		zap.String("subject_id", task.SubjectID),
		zap.String("task_id", id),
		zap.String("owner_id", task.OwnerID),
	)
	return nil
}

func subjectLine(kind model.SubjectKind) string {
	if kind == model.SubjectLead {
		return "Lead score drop: follow up"
	}
	return "Account health drop: follow up"
}
