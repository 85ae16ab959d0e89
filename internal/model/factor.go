package model

// FactorKey names one independently computable input to an overall score.
// The set is closed; profiles reject keys outside it.
type FactorKey string

// Lead profile factors.
const (
	FactorCompanySize   FactorKey = "company_size"
	FactorJobTitle      FactorKey = "job_title"
	FactorEngagement    FactorKey = "engagement"
	FactorFit           FactorKey = "fit_score"
	FactorIntentSignals FactorKey = "intent_signals"
)

// Health profile factors.
const (
	FactorSupportTickets     FactorKey = "support_tickets"
	FactorActivityLevel      FactorKey = "activity_level"
	FactorContractValue      FactorKey = "contract_value"
	FactorPaymentHistory     FactorKey = "payment_history"
	FactorFeatureAdoption    FactorKey = "feature_adoption"
	FactorRelationshipLength FactorKey = "relationship_length"
)

// LeadFactors lists the lead profile keys in presentation order.
var LeadFactors = []FactorKey{
	FactorCompanySize, FactorJobTitle, FactorEngagement, FactorFit, FactorIntentSignals,
}

// HealthFactors lists the health profile keys in presentation order.
var HealthFactors = []FactorKey{
	FactorSupportTickets, FactorActivityLevel, FactorContractValue,
	FactorPaymentHistory, FactorFeatureAdoption, FactorRelationshipLength,
}

// ParseFactorKey maps s onto a known key. The second return is false for
// unknown names.
func ParseFactorKey(s string) (FactorKey, bool) {
	k := FactorKey(s)
	for _, f := range LeadFactors {
		if f == k {
			return k, true
		}
	}
	for _, f := range HealthFactors {
		if f == k {
			return k, true
		}
	}
	return "", false
}

// FactorSource records which scorer produced a value.
type FactorSource string

const (
	SourceDeterministic FactorSource = "deterministic"
	SourceAI            FactorSource = "ai"
)

// FactorScore is one normalized sub-score in [0,100].
type FactorScore struct {
	Factor    FactorKey    `json:"factor"`
	Value     int          `json:"value"`
	Rationale string       `json:"rationale"`
	Source    FactorSource `json:"source"`
}

// ClampScore bounds v to the canonical [0,100] scale.
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
