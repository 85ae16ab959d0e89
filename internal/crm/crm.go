// Package crm adapts Salesforce records into scoring subjects, upstream
// aggregates, follow-up tasks and score write-back.
package crm

import (
	"context"
	"strings"
	"time"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/resilience"
	"github.com/sells-group/crm-scoring/pkg/salesforce"
)

// Salesforce key prefixes for the scored objects.
const (
	leadPrefix    = "00Q"
	accountPrefix = "001"
)

// Config selects the CRM fields and filters used by Source.
type Config struct {
	// ContractValueField is the numeric Contract field holding monthly value.
	ContractValueField string
	// LeadFilter and AccountFilter are SOQL conditions for active subjects.
	LeadFilter    string
	AccountFilter string
	Fields        WriteBackFields
}

// WriteBackFields names the record fields scores are pushed into. Empty
// names are skipped.
type WriteBackFields struct {
	LeadScore        string
	LeadGrade        string
	HealthScore      string
	RiskCategory     string
	ChurnProbability string
}

func (c Config) withDefaults() Config {
	if c.ContractValueField == "" {
		c.ContractValueField = "Monthly_Value__c"
	}
	if c.LeadFilter == "" {
		c.LeadFilter = "IsConverted = false"
	}
	if c.AccountFilter == "" {
		c.AccountFilter = "Type = 'Customer'"
	}
	return c
}

// Source serves every Salesforce-backed provider.
type Source struct {
	client salesforce.Client
	cfg    Config
	retry  resilience.RetryConfig
	now    func() time.Time
}

// New returns a Source over client. Transient Salesforce failures are
// retried with retry.
func New(client salesforce.Client, cfg Config, retry resilience.RetryConfig) *Source {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("salesforce", "query")
	}
	return &Source{client: client, cfg: cfg.withDefaults(), retry: retry, now: time.Now}
}

// KindForID infers the subject kind from a Salesforce record id. The second
// return is false when id is not a 15 or 18 character alphanumeric record id
// or its prefix is neither a Lead nor an Account.
func KindForID(id string) (model.SubjectKind, bool) {
	if !validRecordID(id) {
		return "", false
	}
	switch {
	case strings.HasPrefix(id, leadPrefix):
		return model.SubjectLead, true
	case strings.HasPrefix(id, accountPrefix):
		return model.SubjectAccount, true
	}
	return "", false
}

func validRecordID(id string) bool {
	if len(id) != 15 && len(id) != 18 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') {
			return false
		}
	}
	return true
}

func sobjectFor(kind model.SubjectKind) string {
	if kind == model.SubjectLead {
		return "Lead"
	}
	return "Account"
}

func call[T any](ctx context.Context, s *Source, fn func(ctx context.Context) (T, error)) (T, error) {
	return resilience.DoVal(ctx, s.retry, fn)
}
