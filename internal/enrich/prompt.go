package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-scoring/internal/model"
)

var factorDescriptions = map[model.FactorKey]string{
	model.FactorCompanySize:        "likely company size and buying power",
	model.FactorJobTitle:           "seniority and decision authority of the contact",
	model.FactorEngagement:         "depth of website and conversational engagement",
	model.FactorFit:                "fit with an ideal customer profile",
	model.FactorIntentSignals:      "evidence of active buying intent",
	model.FactorSupportTickets:     "support burden and unresolved issues",
	model.FactorActivityLevel:      "recency and frequency of contact with the account team",
	model.FactorContractValue:      "commercial value of the relationship",
	model.FactorPaymentHistory:     "reliability of payments",
	model.FactorFeatureAdoption:    "breadth and depth of product usage",
	model.FactorRelationshipLength: "maturity of the customer relationship",
}

func systemPrompt(req Request) string {
	var b strings.Builder
	if req.Subject.Kind == model.SubjectAccount {
		b.WriteString("You assess the health and churn risk of B2B customer accounts.\n")
	} else {
		b.WriteString("You assess the sales readiness of B2B leads.\n")
	}
	b.WriteString("Score each factor from 0 (worst) to 100 (best):\n")
	for _, k := range req.Profile.Keys() {
		fmt.Fprintf(&b, "- %s: %s\n", k, factorDescriptions[k])
	}
	b.WriteString(`Reply with a single JSON object and nothing else:
{"factors": {"<factor>": <0-100>, ...}, "insights": ["..."], "recommendations": ["..."], "confidence": <0-1>, "scale": 100}
Omit a factor when the data gives no basis for judging it. Keep insights and recommendations short and specific.`)
	return b.String()
}

type promptContext struct {
	Subject    model.Subject       `json:"subject"`
	Aggregates model.RawAggregates `json:"aggregates"`
}

func userPrompt(req Request) (string, error) {
	raw, err := json.Marshal(promptContext{Subject: req.Subject, Aggregates: req.Aggregates})
	if err != nil {
		return "", eris.Wrap(err, "enrich: marshal context")
	}
	return string(raw), nil
}
