// Package enrich asks the AI provider for judgment-based factor scores and
// narrative insights. Every failure is reported as an Unavailable result so
// callers take the deterministic path as a normal branch.
package enrich

import (
	"context"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/scoring"
)

// Reason explains why enrichment is unavailable.
type Reason string

const (
	ReasonTimeout       Reason = "timeout"
	ReasonRateLimited   Reason = "rate_limited"
	ReasonProviderError Reason = "provider_error"
	ReasonMalformed     Reason = "malformed_response"
	ReasonCircuitOpen   Reason = "circuit_open"
	ReasonDisabled      Reason = "disabled"
)

// Enrichment is a normalized AI assessment. Factor values are on the
// canonical 0–100 scale and only contain keys of the requested profile.
type Enrichment struct {
	Factors         map[model.FactorKey]int `json:"factors"`
	Insights        []string                `json:"insights"`
	Recommendations []string                `json:"recommendations"`
	Confidence      float64                 `json:"confidence"`
}

// Result is either a successful Enrichment or an Unavailable reason.
type Result struct {
	Enrichment *Enrichment
	Reason     Reason
	// Err is the underlying cause of an Unavailable result, for logging.
	Err error
}

// Success wraps e.
func Success(e *Enrichment) Result { return Result{Enrichment: e} }

// Unavailable builds the failure arm.
func Unavailable(reason Reason, err error) Result { return Result{Reason: reason, Err: err} }

// OK reports whether the result carries an enrichment.
func (r Result) OK() bool { return r.Enrichment != nil }

// Request is the context sent to the provider.
type Request struct {
	Profile    *scoring.Profile
	Subject    model.Subject
	Aggregates model.RawAggregates
}

// Enricher is implemented by Adapter and by test doubles.
type Enricher interface {
	Enrich(ctx context.Context, req Request) Result
}

// Disabled is an Enricher that is always unavailable.
type Disabled struct{}

func (Disabled) Enrich(context.Context, Request) Result {
	return Unavailable(ReasonDisabled, nil)
}
