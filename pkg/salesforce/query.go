package salesforce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Lead represents a Salesforce Lead record.
type Lead struct {
	ID            string  `json:"Id" salesforce:"Id"`
	FirstName     string  `json:"FirstName" salesforce:"FirstName"`
	LastName      string  `json:"LastName" salesforce:"LastName"`
	Title         string  `json:"Title" salesforce:"Title"`
	Email         string  `json:"Email" salesforce:"Email"`
	Company       string  `json:"Company" salesforce:"Company"`
	Website       string  `json:"Website" salesforce:"Website"`
	LeadSource    string  `json:"LeadSource" salesforce:"LeadSource"`
	Industry      string  `json:"Industry" salesforce:"Industry"`
	AnnualRevenue float64 `json:"AnnualRevenue" salesforce:"AnnualRevenue"`
	OwnerID       string  `json:"OwnerId" salesforce:"OwnerId"`
	CreatedDate   string  `json:"CreatedDate" salesforce:"CreatedDate"`
}

var leadFields = []string{
	"Id", "FirstName", "LastName", "Title", "Email", "Company", "Website",
	"LeadSource", "Industry", "AnnualRevenue", "OwnerId", "CreatedDate",
}

// Account represents a Salesforce Account record.
type Account struct {
	ID            string  `json:"Id" salesforce:"Id"`
	Name          string  `json:"Name" salesforce:"Name"`
	Website       string  `json:"Website" salesforce:"Website"`
	Industry      string  `json:"Industry" salesforce:"Industry"`
	AnnualRevenue float64 `json:"AnnualRevenue" salesforce:"AnnualRevenue"`
	Type          string  `json:"Type" salesforce:"Type"`
	OwnerID       string  `json:"OwnerId" salesforce:"OwnerId"`
	CreatedDate   string  `json:"CreatedDate" salesforce:"CreatedDate"`
}

var accountFields = []string{
	"Id", "Name", "Website", "Industry", "AnnualRevenue", "Type", "OwnerId", "CreatedDate",
}

// Case represents a Salesforce support Case.
type Case struct {
	ID          string `json:"Id" salesforce:"Id"`
	Status      string `json:"Status" salesforce:"Status"`
	Priority    string `json:"Priority" salesforce:"Priority"`
	IsClosed    bool   `json:"IsClosed" salesforce:"IsClosed"`
	CreatedDate string `json:"CreatedDate" salesforce:"CreatedDate"`
	ClosedDate  string `json:"ClosedDate" salesforce:"ClosedDate"`
}

// Activity is the shared shape of Event and Task rows used for activity
// counts.
type Activity struct {
	ID           string `json:"Id" salesforce:"Id"`
	ActivityDate string `json:"ActivityDate" salesforce:"ActivityDate"`
	CreatedDate  string `json:"CreatedDate" salesforce:"CreatedDate"`
}

type activityRow struct {
	ID               string `json:"Id" salesforce:"Id"`
	LastActivityDate string `json:"LastActivityDate" salesforce:"LastActivityDate"`
}

// IDRow decodes a query that selects only Id.
type IDRow struct {
	ID string `json:"Id" salesforce:"Id"`
}

// FindLeadByID returns the Lead with id, or nil when none exists.
func FindLeadByID(ctx context.Context, c Client, id string) (*Lead, error) {
	soql := fmt.Sprintf("SELECT %s FROM Lead WHERE Id = '%s' LIMIT 1",
		strings.Join(leadFields, ", "), escapeSoql(id))

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by id %s", id))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// FindAccountByID returns the Account with id, or nil when none exists.
func FindAccountByID(ctx context.Context, c Client, id string) (*Account, error) {
	soql := fmt.Sprintf("SELECT %s FROM Account WHERE Id = '%s' LIMIT 1",
		strings.Join(accountFields, ", "), escapeSoql(id))

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by id %s", id))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// ListIDs returns the ids of sObject rows matching where (a SOQL condition,
// empty for all rows), in id order.
func ListIDs(ctx context.Context, c Client, sObject, where string, limit int) ([]string, error) {
	soql := "SELECT Id FROM " + sObject
	if where != "" {
		soql += " WHERE " + where
	}
	soql += " ORDER BY Id"
	if limit > 0 {
		soql += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []IDRow
	if err := c.Query(ctx, soql, &rows); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: list %s ids", sObject))
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// ListCases returns the account's cases created in [since, until).
func ListCases(ctx context.Context, c Client, accountID string, since, until time.Time) ([]Case, error) {
	soql := fmt.Sprintf(
		"SELECT Id, Status, Priority, IsClosed, CreatedDate, ClosedDate FROM Case WHERE AccountId = '%s' AND CreatedDate >= %s AND CreatedDate < %s",
		escapeSoql(accountID), FormatDateTime(since), FormatDateTime(until),
	)

	var cases []Case
	if err := c.Query(ctx, soql, &cases); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: list cases for %s", accountID))
	}
	return cases, nil
}

// ListEvents returns meetings related to the record in [since, until).
func ListEvents(ctx context.Context, c Client, whatID string, since, until time.Time) ([]Activity, error) {
	soql := fmt.Sprintf(
		"SELECT Id, ActivityDate, CreatedDate FROM Event WHERE WhatId = '%s' AND ActivityDateTime >= %s AND ActivityDateTime < %s",
		escapeSoql(whatID), FormatDateTime(since), FormatDateTime(until),
	)

	var events []Activity
	if err := c.Query(ctx, soql, &events); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: list events for %s", whatID))
	}
	return events, nil
}

// ListCalls returns completed call tasks related to the record in
// [since, until).
func ListCalls(ctx context.Context, c Client, whatID string, since, until time.Time) ([]Activity, error) {
	soql := fmt.Sprintf(
		"SELECT Id, ActivityDate, CreatedDate FROM Task WHERE WhatId = '%s' AND TaskSubtype = 'Call' AND CreatedDate >= %s AND CreatedDate < %s",
		escapeSoql(whatID), FormatDateTime(since), FormatDateTime(until),
	)

	var calls []Activity
	if err := c.Query(ctx, soql, &calls); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: list calls for %s", whatID))
	}
	return calls, nil
}

// FindLastActivityDate returns the account's LastActivityDate, or nil.
func FindLastActivityDate(ctx context.Context, c Client, accountID string) (*time.Time, error) {
	soql := fmt.Sprintf("SELECT Id, LastActivityDate FROM Account WHERE Id = '%s' LIMIT 1", escapeSoql(accountID))

	var rows []activityRow
	if err := c.Query(ctx, soql, &rows); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: last activity for %s", accountID))
	}
	if len(rows) == 0 || rows[0].LastActivityDate == "" {
		return nil, nil
	}
	t, err := ParseTime(rows[0].LastActivityDate)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: last activity for %s", accountID))
	}
	return &t, nil
}

// SumActiveContracts sums field over the account's activated contracts.
// field must be a numeric Contract field, e.g. a custom monthly value.
func SumActiveContracts(ctx context.Context, c Client, accountID, field string) (float64, error) {
	soql := fmt.Sprintf("SELECT Id, %s FROM Contract WHERE AccountId = '%s' AND Status = 'Activated'",
		field, escapeSoql(accountID))

	var rows []map[string]any
	if err := c.Query(ctx, soql, &rows); err != nil {
		return 0, eris.Wrap(err, fmt.Sprintf("sf: contracts for %s", accountID))
	}
	var total float64
	for _, r := range rows {
		if v, ok := r[field].(float64); ok {
			total += v
		}
	}
	return total, nil
}

// Salesforce serializes datetimes as 2026-04-01T10:00:00.000+0000 and dates
// as 2026-04-01.
var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z",
	time.RFC3339,
	"2006-01-02",
}

// ParseTime parses a Salesforce date or datetime into UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, eris.Errorf("sf: unrecognized time %q", s)
}

// FormatDateTime renders t as an unquoted SOQL datetime literal.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

var soqlEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// escapeSoql escapes backslashes and single quotes for a SOQL string literal.
func escapeSoql(s string) string {
	return soqlEscaper.Replace(s)
}
