// Package scoring implements the deterministic side of CRM scoring: weight
// profiles, factor formulas, aggregation, risk classification, churn
// estimation and static recommendations. Nothing here performs I/O.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-scoring/internal/model"
)

// WeightTolerance is the allowed deviation of a profile's weight sum from 1.0.
const WeightTolerance = 1e-6

// Band maps scores at or above Min to Category.
type Band struct {
	Min      int                `yaml:"min" json:"min"`
	Category model.RiskCategory `yaml:"category" json:"category"`
}

// Profile is an immutable weight set plus classification bands. Build one
// with NewProfile, LeadProfile or HealthProfile and share it freely.
type Profile struct {
	name    model.ProfileName
	keys    []model.FactorKey
	weights map[model.FactorKey]float64
	bands   []Band
}

// allowedFactors is the closed key set per profile.
func allowedFactors(name model.ProfileName) []model.FactorKey {
	switch name {
	case model.ProfileLead:
		return model.LeadFactors
	case model.ProfileHealth:
		return model.HealthFactors
	default:
		return nil
	}
}

// NewProfile validates and freezes a profile. Any violation is returned as
// an aggregation error: unknown or missing factor keys, negative weights, a
// weight sum outside 1.0 ± WeightTolerance, or bands that are not strictly
// descending down to a catch-all at 0.
func NewProfile(name model.ProfileName, weights map[model.FactorKey]float64, bands []Band) (*Profile, error) {
	var errs []string

	allowed := allowedFactors(name)
	if allowed == nil {
		errs = append(errs, fmt.Sprintf("unknown profile %q", name))
	}

	known := make(map[model.FactorKey]bool, len(allowed))
	for _, k := range allowed {
		known[k] = true
	}

	var unknown []string
	sum := 0.0
	for k, w := range weights {
		if allowed != nil && !known[k] {
			unknown = append(unknown, string(k))
		}
		if w < 0 {
			errs = append(errs, fmt.Sprintf("weight for %s must be >= 0", k))
		}
		sum += w
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		errs = append(errs, fmt.Sprintf("unknown factors for %s profile: %s", name, strings.Join(unknown, ", ")))
	}
	for _, k := range allowed {
		if _, ok := weights[k]; !ok {
			errs = append(errs, fmt.Sprintf("missing weight for %s", k))
		}
	}
	if math.Abs(sum-1.0) > WeightTolerance {
		errs = append(errs, fmt.Sprintf("weights must sum to 1.0, got %.6f", sum))
	}

	if len(bands) == 0 {
		errs = append(errs, "at least one band is required")
	}
	for i, b := range bands {
		if _, ok := model.ParseRiskCategory(string(b.Category)); !ok {
			errs = append(errs, fmt.Sprintf("band %d: unknown category %q", i, b.Category))
		}
		if i > 0 && b.Min >= bands[i-1].Min {
			errs = append(errs, fmt.Sprintf("band %d: min %d must be below %d", i, b.Min, bands[i-1].Min))
		}
	}
	if len(bands) > 0 && bands[len(bands)-1].Min != 0 {
		errs = append(errs, "last band must start at 0")
	}

	if len(errs) > 0 {
		return nil, model.NewError(model.ErrAggregation, "",
			eris.Errorf("scoring: invalid %s profile: %s", name, strings.Join(errs, "; ")))
	}

	p := &Profile{
		name:    name,
		keys:    append([]model.FactorKey(nil), allowed...),
		weights: make(map[model.FactorKey]float64, len(weights)),
		bands:   append([]Band(nil), bands...),
	}
	for k, w := range weights {
		p.weights[k] = w
	}
	return p, nil
}

// MustProfile panics when NewProfile fails. It is meant for the built-in
// defaults only.
func MustProfile(name model.ProfileName, weights map[model.FactorKey]float64, bands []Band) *Profile {
	p, err := NewProfile(name, weights, bands)
	if err != nil {
		panic(err)
	}
	return p
}

// DefaultLeadWeights are the built-in lead weights.
func DefaultLeadWeights() map[model.FactorKey]float64 {
	return map[model.FactorKey]float64{
		model.FactorCompanySize:   0.20,
		model.FactorJobTitle:      0.20,
		model.FactorEngagement:    0.25,
		model.FactorFit:           0.20,
		model.FactorIntentSignals: 0.15,
	}
}

// DefaultHealthWeights are the built-in account health weights.
func DefaultHealthWeights() map[model.FactorKey]float64 {
	return map[model.FactorKey]float64{
		model.FactorSupportTickets:     0.25,
		model.FactorActivityLevel:      0.20,
		model.FactorContractValue:      0.15,
		model.FactorPaymentHistory:     0.15,
		model.FactorFeatureAdoption:    0.15,
		model.FactorRelationshipLength: 0.10,
	}
}

// DefaultLeadBands grade leads A through F.
func DefaultLeadBands() []Band {
	return []Band{
		{Min: 80, Category: model.GradeA},
		{Min: 60, Category: model.GradeB},
		{Min: 40, Category: model.GradeC},
		{Min: 20, Category: model.GradeD},
		{Min: 0, Category: model.GradeF},
	}
}

// DefaultHealthBands classify accounts as healthy, at risk or critical.
func DefaultHealthBands() []Band {
	return []Band{
		{Min: 80, Category: model.RiskHealthy},
		{Min: 60, Category: model.RiskAtRisk},
		{Min: 0, Category: model.RiskCritical},
	}
}

// LeadProfile returns the built-in lead profile.
func LeadProfile() *Profile {
	return MustProfile(model.ProfileLead, DefaultLeadWeights(), DefaultLeadBands())
}

// HealthProfile returns the built-in account health profile.
func HealthProfile() *Profile {
	return MustProfile(model.ProfileHealth, DefaultHealthWeights(), DefaultHealthBands())
}

// Name returns the profile name.
func (p *Profile) Name() model.ProfileName { return p.name }

// Keys returns the profile's factor keys in presentation order.
func (p *Profile) Keys() []model.FactorKey {
	return append([]model.FactorKey(nil), p.keys...)
}

// Weight returns the weight for k, or 0 when k is not part of the profile.
func (p *Profile) Weight(k model.FactorKey) float64 { return p.weights[k] }

// Has reports whether k belongs to the profile.
func (p *Profile) Has(k model.FactorKey) bool {
	_, ok := p.weights[k]
	return ok
}

// Bands returns a copy of the classification bands.
func (p *Profile) Bands() []Band {
	return append([]Band(nil), p.bands...)
}

// WeightSum returns the sum of all weights.
func (p *Profile) WeightSum() float64 {
	sum := 0.0
	for _, w := range p.weights {
		sum += w
	}
	return sum
}
