package model

import (
	"strings"
	"time"
)

// SubjectKind distinguishes the two kinds of scored CRM records.
type SubjectKind string

const (
	SubjectLead    SubjectKind = "lead"
	SubjectAccount SubjectKind = "account"
)

// Valid reports whether k is a known subject kind.
func (k SubjectKind) Valid() bool {
	return k == SubjectLead || k == SubjectAccount
}

// Subject is a Lead or Account being scored. It is read-only to the engine.
type Subject struct {
	ID            string      `json:"id"`
	Kind          SubjectKind `json:"kind"`
	Name          string      `json:"name,omitempty"`
	OwnerID       string      `json:"owner_id,omitempty"`
	Title         string      `json:"title,omitempty"`
	Email         string      `json:"email,omitempty"`
	CompanyName   string      `json:"company_name,omitempty"`
	Website       string      `json:"website,omitempty"`
	LeadSource    string      `json:"lead_source,omitempty"`
	Industry      string      `json:"industry,omitempty"`
	AnnualRevenue float64     `json:"annual_revenue,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
}

// EmailDomain returns the lower-cased domain part of the subject's email,
// or "" when there is no usable address.
func (s Subject) EmailDomain() string {
	at := strings.LastIndex(s.Email, "@")
	if at < 0 || at == len(s.Email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s.Email[at+1:]))
}

// DisplayName returns the best human-readable label for the subject.
func (s Subject) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.CompanyName != "":
		return s.CompanyName
	default:
		return s.ID
	}
}
