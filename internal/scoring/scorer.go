package scoring

import (
	"github.com/sells-group/crm-scoring/internal/model"
)

// Scorer computes deterministic factor scores. It is stateless beyond its
// rules and safe for concurrent use; identical inputs always yield
// identical outputs.
type Scorer struct {
	rules LeadRules
}

// NewScorer creates a Scorer. Empty rule lists use the defaults.
func NewScorer(rules LeadRules) *Scorer {
	return &Scorer{rules: rules.withDefaults()}
}

// Score returns one FactorScore per key of p, in p's key order.
func (s *Scorer) Score(p *Profile, subj model.Subject, agg model.RawAggregates) []model.FactorScore {
	switch p.Name() {
	case model.ProfileHealth:
		return []model.FactorScore{
			supportTickets(agg.Tickets),
			activityLevel(agg.Sales, agg.AsOf),
			contractValue(agg.Contract),
			paymentHistory(agg.Payments),
			featureAdoption(agg.Usage),
			relationshipLength(agg.TenureMonths),
		}
	default:
		return []model.FactorScore{
			s.companySize(subj),
			jobTitle(subj),
			engagement(agg.Web),
			fitScore(subj),
			intentSignals(agg.Web, agg.AsOf),
		}
	}
}
