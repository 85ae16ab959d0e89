package salesforce

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func accountDescribe(_ context.Context, name string) (*SObjectDescription, error) {
	return &SObjectDescription{
		Name: name,
		Fields: []SObjectField{
			{Name: "Id", Updateable: false},
			{Name: "Health_Score__c", Updateable: true},
			{Name: "Churn_Risk__c", Updateable: true},
			{Name: "CreatedDate", Updateable: false},
		},
	}, nil
}

func TestValidateFields(t *testing.T) {
	mock := &mockClient{describeSObjectFn: accountDescribe}

	t.Run("all updateable", func(t *testing.T) {
		require.NoError(t, ValidateFields(context.Background(), mock, "Account", []string{"health_score__c", "Churn_Risk__c"}))
	})

	t.Run("reports unknown and read-only", func(t *testing.T) {
		err := ValidateFields(context.Background(), mock, "Account", []string{"CreatedDate", "Missing__c", "Health_Score__c"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown: Missing__c")
		assert.Contains(t, err.Error(), "not updateable: CreatedDate")
	})

	t.Run("describe failure", func(t *testing.T) {
		failing := &mockClient{
			describeSObjectFn: func(context.Context, string) (*SObjectDescription, error) {
				return nil, errors.New("INVALID_SESSION_ID")
			},
		}
		assert.ErrorContains(t, ValidateFields(context.Background(), failing, "Account", []string{"A"}), "validate Account fields")
	})
}
