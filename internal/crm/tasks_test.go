package crm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-scoring/internal/model"
)

func TestCreateFollowUpTask(t *testing.T) {
	sf := &fakeSF{}
	src := New(sf, Config{}, noRetry())
	src.now = func() time.Time { return time.Date(2026, 4, 1, 18, 0, 0, 0, time.UTC) }

	err := src.CreateFollowUpTask(context.Background(), model.FollowUpTask{
		SubjectID: "0015e00000AcctA",
		OwnerID:   "005o",
		Message:   "Health score for Initech dropped from 85 to 60 (25 points). Please review and follow up.",
		Priority:  model.PriorityHigh,
		DueInDays: 2,
	})
	require.NoError(t, err)
	require.Len(t, sf.inserts, 1)
	rec := sf.inserts[0]
	assert.Equal(t, "0015e00000AcctA", rec["WhatId"])
	assert.Equal(t, "005o", rec["OwnerId"])
	assert.Equal(t, "High", rec["Priority"])
	assert.Equal(t, "2026-04-03", rec["ActivityDate"])
	assert.Contains(t, rec["Description"], "85 to 60")
}

func TestCreateFollowUpTask_LeadUsesWhoID(t *testing.T) {
	sf := &fakeSF{}
	src := New(sf, Config{}, noRetry())

	require.NoError(t, src.CreateFollowUpTask(context.Background(), model.FollowUpTask{
		SubjectID: "00Q5e00000LeadA", OwnerID: "005o", Message: "m", Priority: model.PriorityHigh, DueInDays: 2,
	}))
	assert.Equal(t, "00Q5e00000LeadA", sf.inserts[0]["WhoId"])
	assert.Equal(t, "Lead score drop: follow up", sf.inserts[0]["Subject"])
}

func TestCreateFollowUpTask_UnknownID(t *testing.T) {
	err := New(&fakeSF{}, Config{}, noRetry()).CreateFollowUpTask(context.Background(), model.FollowUpTask{SubjectID: "003c"})
	assert.ErrorContains(t, err, "cannot link task")
}
