package salesforce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask(t *testing.T) {
	due := time.Date(2026, 4, 3, 15, 0, 0, 0, time.UTC)

	t.Run("lead task uses WhoId", func(t *testing.T) {
		mock := &mockClient{
			insertOneFn: func(_ context.Context, sObject string, rec map[string]any) (string, error) {
				assert.Equal(t, "Task", sObject)
				assert.Equal(t, "00Qxx", rec["WhoId"])
				assert.NotContains(t, rec, "WhatId")
				assert.Equal(t, "High", rec["Priority"])
				assert.Equal(t, "2026-04-03", rec["ActivityDate"])
				assert.Equal(t, "Not Started", rec["Status"])
				return "00Tnew", nil
			},
		}
		id, err := CreateTask(context.Background(), mock, Task{WhoID: "00Qxx", Subject: "Review", Priority: "High", Due: due})
		require.NoError(t, err)
		assert.Equal(t, "00Tnew", id)
	})

	t.Run("requires related record", func(t *testing.T) {
		_, err := CreateTask(context.Background(), &mockClient{}, Task{Subject: "Review"})
		assert.ErrorContains(t, err, "related record")
	})

	t.Run("requires subject", func(t *testing.T) {
		_, err := CreateTask(context.Background(), &mockClient{}, Task{WhatID: "001"})
		assert.ErrorContains(t, err, "Subject is required")
	})

	t.Run("insert failure", func(t *testing.T) {
		mock := &mockClient{
			insertOneFn: func(context.Context, string, map[string]any) (string, error) {
				return "", errors.New("INVALID_CROSS_REFERENCE_KEY")
			},
		}
		_, err := CreateTask(context.Background(), mock, Task{WhatID: "001xx", Subject: "Review", Due: due})
		assert.ErrorContains(t, err, "create task for 001xx")
	})
}

func TestUpdateRecord(t *testing.T) {
	var gotID string
	mock := &mockClient{
		updateOneFn: func(_ context.Context, _ string, id string, _ map[string]any) error {
			gotID = id
			return nil
		},
	}
	require.NoError(t, UpdateRecord(context.Background(), mock, "Lead", "00Qxx", map[string]any{"Lead_Score__c": 81}))
	assert.Equal(t, "00Qxx", gotID)

	assert.ErrorContains(t, UpdateRecord(context.Background(), mock, "Lead", "", map[string]any{"A": 1}), "Lead id is required")
	assert.ErrorContains(t, UpdateRecord(context.Background(), mock, "Lead", "00Q", nil), "no fields")
}
