package model

import "time"

// Window is a half-open [Start, End) collection interval.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// TrailingWindow returns the window of the given length ending at end.
func TrailingWindow(end time.Time, length time.Duration) Window {
	return Window{Start: end.Add(-length), End: end}
}

// TicketStats summarizes support tickets opened in the window.
type TicketStats struct {
	Total              int     `json:"total"`
	Open               int     `json:"open"`
	HighPriority       int     `json:"high_priority"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// WebActivity summarizes marketing-site engagement.
type WebActivity struct {
	Sessions          int        `json:"sessions"`
	PageViews         int        `json:"page_views"`
	PageViewURLs      []string   `json:"page_view_urls,omitempty"`
	FormSubmissions   int        `json:"form_submissions"`
	ChatConversations int        `json:"chat_conversations"`
	LastSessionAt     *time.Time `json:"last_session_at,omitempty"`
}

// SalesActivity summarizes owner touchpoints.
type SalesActivity struct {
	Meetings          int        `json:"meetings"`
	Calls             int        `json:"calls"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}

// ContractValue holds financial size signals.
type ContractValue struct {
	MonthlyValue  float64 `json:"monthly_value"`
	AnnualRevenue float64 `json:"annual_revenue"`
}

// PaymentHistory counts invoices and how many were paid late.
type PaymentHistory struct {
	Total int `json:"total"`
	Late  int `json:"late"`
}

// ProductUsage summarizes in-product adoption.
type ProductUsage struct {
	UniqueUsers   int `json:"unique_users"`
	Sessions      int `json:"sessions"`
	FeaturesUsed  int `json:"features_used"`
	TotalFeatures int `json:"total_features"`
}

// RawAggregates is everything the collector gathered for one subject.
// Scorers read it; they never perform I/O.
type RawAggregates struct {
	Window       Window         `json:"window"`
	AsOf         time.Time      `json:"as_of"`
	Tickets      TicketStats    `json:"tickets"`
	Web          WebActivity    `json:"web"`
	Sales        SalesActivity  `json:"sales"`
	Contract     ContractValue  `json:"contract"`
	Payments     PaymentHistory `json:"payments"`
	Usage        ProductUsage   `json:"usage"`
	TenureMonths int            `json:"tenure_months"`
}

// MonthsBetween counts whole calendar months from start to end.
func MonthsBetween(start, end time.Time) int {
	if start.IsZero() || !end.After(start) {
		return 0
	}
	start, end = start.UTC(), end.UTC()
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if end.Day() < start.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
