package scoring

import (
	"sort"

	"github.com/sells-group/crm-scoring/internal/model"
)

// weakFactorThreshold marks a factor as worth a recommendation.
const weakFactorThreshold = 60

// maxStaticRecommendations bounds the fallback list.
const maxStaticRecommendations = 3

var factorRecommendations = map[model.FactorKey]string{
	model.FactorCompanySize:        "Confirm company size and buying committee; free-mail contacts rarely convert without a corporate contact.",
	model.FactorJobTitle:           "Identify and engage a decision maker alongside the current contact.",
	model.FactorEngagement:         "Nurture with targeted content to grow site engagement before outreach.",
	model.FactorFit:                "Qualify industry fit and collect the company website before investing sales time.",
	model.FactorIntentSignals:      "Share pricing and a demo invitation to surface buying intent.",
	model.FactorSupportTickets:     "Review open and high-priority tickets with support and agree a resolution plan.",
	model.FactorActivityLevel:      "Schedule a check-in call; the account has had little recent contact.",
	model.FactorContractValue:      "Explore expansion or upsell opportunities to grow contract value.",
	model.FactorPaymentHistory:     "Coordinate with finance on late payments and confirm billing contacts.",
	model.FactorFeatureAdoption:    "Offer onboarding or training to raise adoption of unused features.",
	model.FactorRelationshipLength: "Run an early-tenure success review to secure the relationship.",
}

var maintainRecommendations = map[model.ProfileName]string{
	model.ProfileLead:   "Strong lead: route to sales for immediate follow-up.",
	model.ProfileHealth: "Healthy account: maintain cadence and look for advocacy opportunities.",
}

// StaticRecommendations derives recommendations from the weakest factors:
// every factor under 60, lowest first and at most three. When no factor is
// weak a single profile-level recommendation is returned, so the result is
// never empty.
func StaticRecommendations(p *Profile, factors []model.FactorScore) []string {
	order := make(map[model.FactorKey]int, len(p.keys))
	for i, k := range p.keys {
		order[k] = i
	}

	weak := make([]model.FactorScore, 0, len(factors))
	for _, f := range factors {
		if f.Value < weakFactorThreshold {
			weak = append(weak, f)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool {
		if weak[i].Value != weak[j].Value {
			return weak[i].Value < weak[j].Value
		}
		return order[weak[i].Factor] < order[weak[j].Factor]
	})

	var recs []string
	for _, f := range weak {
		if len(recs) == maxStaticRecommendations {
			break
		}
		if r, ok := factorRecommendations[f.Factor]; ok {
			recs = append(recs, r)
		}
	}
	if len(recs) == 0 {
		recs = append(recs, maintainRecommendations[p.name])
	}
	return recs
}
