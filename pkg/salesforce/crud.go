package salesforce

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

// Task is a follow-up activity assigned to a Salesforce user.
type Task struct {
	// WhatID links the task to an Account. Leads go through WhoID instead.
	WhatID   string
	WhoID    string
	OwnerID  string
	Subject  string
	Body     string
	Priority string
	Due      time.Time
}

func (t Task) fields() map[string]any {
	f := map[string]any{
		"Subject":      t.Subject,
		"Description":  t.Body,
		"Priority":     t.Priority,
		"Status":       "Not Started",
		"ActivityDate": t.Due.UTC().Format("2006-01-02"),
	}
	if t.WhatID != "" {
		f["WhatId"] = t.WhatID
	}
	if t.WhoID != "" {
		f["WhoId"] = t.WhoID
	}
	if t.OwnerID != "" {
		f["OwnerId"] = t.OwnerID
	}
	return f
}

// CreateTask inserts a Task and returns its Salesforce ID.
func CreateTask(ctx context.Context, c Client, t Task) (string, error) {
	if t.WhatID == "" && t.WhoID == "" {
		return "", eris.New("sf: task needs a related record")
	}
	if t.Subject == "" {
		return "", eris.New("sf: task Subject is required")
	}
	id, err := c.InsertOne(ctx, "Task", t.fields())
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("sf: create task for %s%s", t.WhatID, t.WhoID))
	}
	return id, nil
}

// UpdateRecord updates one record of sObject with the given fields.
func UpdateRecord(ctx context.Context, c Client, sObject, id string, fields map[string]any) error {
	if id == "" {
		return eris.New(fmt.Sprintf("sf: %s id is required", sObject))
	}
	if len(fields) == 0 {
		return eris.New("sf: no fields to update")
	}
	if err := c.UpdateOne(ctx, sObject, id, fields); err != nil {
		return eris.Wrap(err, fmt.Sprintf("sf: update %s %s", sObject, id))
	}
	return nil
}
