package scoring

import (
	"math"

	"github.com/sells-group/crm-scoring/internal/model"
)

// MaxChurnProbability caps the churn estimate.
const MaxChurnProbability = 0.95

// Classify maps an overall score onto p's bands.
func (p *Profile) Classify(score int) model.RiskCategory {
	for _, b := range p.bands {
		if score >= b.Min {
			return b.Category
		}
	}
	return p.bands[len(p.bands)-1].Category
}

// ChurnProbability estimates churn risk for an account from its overall
// score and factor values: a base rate by score band plus penalties for
// weak support, payment and activity factors, clamped to [0, 0.95] and
// rounded to two decimals.
func ChurnProbability(score int, factors map[model.FactorKey]int) float64 {
	var p float64
	switch {
	case score < 40:
		p = 0.7
	case score < 60:
		p = 0.4
	case score < 80:
		p = 0.2
	default:
		p = 0.05
	}

	if v, ok := factors[model.FactorSupportTickets]; ok && v < 50 {
		p += 0.1
	}
	if v, ok := factors[model.FactorPaymentHistory]; ok && v < 70 {
		p += 0.1
	}
	if v, ok := factors[model.FactorActivityLevel]; ok && v < 30 {
		p += 0.15
	}

	p = math.Max(0, math.Min(p, MaxChurnProbability))
	return math.Round(p*100) / 100
}
