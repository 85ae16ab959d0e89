package scoring

import (
	"fmt"
	"math"
	"time"

	"github.com/sells-group/crm-scoring/internal/model"
)

func supportTickets(t model.TicketStats) model.FactorScore {
	fs := model.FactorScore{Factor: model.FactorSupportTickets, Source: model.SourceDeterministic}
	if t.Total == 0 {
		fs.Value, fs.Rationale = 100, "no tickets in window"
		return fs
	}

	score := 100
	score -= min(30, t.Open*10)
	score -= min(20, t.HighPriority*10)
	if t.AvgResolutionHours > 48 {
		score -= 10
	}
	fs.Value = max(score, 0)
	fs.Rationale = fmt.Sprintf("%d tickets, %d open, %d high priority, %.1fh avg resolution",
		t.Total, t.Open, t.HighPriority, t.AvgResolutionHours)
	return fs
}

func activityLevel(a model.SalesActivity, asOf time.Time) model.FactorScore {
	score := 50 + min(25, (a.Meetings+a.Calls)*5)
	recency := "no recorded interaction"
	if a.LastInteractionAt != nil {
		since := asOf.Sub(*a.LastInteractionAt)
		switch {
		case since < 7*24*time.Hour:
			score += 25
			recency = "interaction within 7 days"
		case since < 30*24*time.Hour:
			score += 15
			recency = "interaction within 30 days"
		default:
			recency = "last interaction over 30 days ago"
		}
	}
	return model.FactorScore{
		Factor:    model.FactorActivityLevel,
		Value:     min(score, 100),
		Rationale: fmt.Sprintf("%d meetings, %d calls, %s", a.Meetings, a.Calls, recency),
		Source:    model.SourceDeterministic,
	}
}

func contractValue(c model.ContractValue) model.FactorScore {
	monthly := c.MonthlyValue
	basis := "monthly contract value"
	if monthly <= 0 && c.AnnualRevenue > 0 {
		monthly = c.AnnualRevenue / 12
		basis = "annual revenue / 12"
	}

	var score int
	switch {
	case monthly >= 10000:
		score = 100
	case monthly >= 5000:
		score = 80
	case monthly >= 1000:
		score = 60
	default:
		score = 40
	}
	return model.FactorScore{
		Factor:    model.FactorContractValue,
		Value:     score,
		Rationale: fmt.Sprintf("%s %.2f", basis, monthly),
		Source:    model.SourceDeterministic,
	}
}

func paymentHistory(p model.PaymentHistory) model.FactorScore {
	fs := model.FactorScore{Factor: model.FactorPaymentHistory, Source: model.SourceDeterministic}
	if p.Total <= 0 {
		fs.Value, fs.Rationale = 100, "no payment history yet"
		return fs
	}
	late := min(max(p.Late, 0), p.Total)
	fs.Value = model.ClampScore(int(math.Round(100 * float64(p.Total-late) / float64(p.Total))))
	fs.Rationale = fmt.Sprintf("%d of %d payments late", late, p.Total)
	return fs
}

func featureAdoption(u model.ProductUsage) model.FactorScore {
	score := 0
	switch {
	case u.UniqueUsers >= 10:
		score += 30
	case u.UniqueUsers >= 5:
		score += 20
	case u.UniqueUsers >= 1:
		score += 10
	}
	switch {
	case u.Sessions >= 100:
		score += 30
	case u.Sessions >= 50:
		score += 20
	case u.Sessions >= 10:
		score += 10
	}
	if u.TotalFeatures > 0 {
		used := min(max(u.FeaturesUsed, 0), u.TotalFeatures)
		score += int(math.Round(40 * float64(used) / float64(u.TotalFeatures)))
	}
	return model.FactorScore{
		Factor: model.FactorFeatureAdoption,
		Value:  min(score, 100),
		Rationale: fmt.Sprintf("%d active users, %d sessions, %d/%d features",
			u.UniqueUsers, u.Sessions, u.FeaturesUsed, u.TotalFeatures),
		Source: model.SourceDeterministic,
	}
}

func relationshipLength(months int) model.FactorScore {
	var score int
	switch {
	case months >= 24:
		score = 100
	case months >= 12:
		score = 80
	case months >= 6:
		score = 60
	case months >= 3:
		score = 40
	default:
		score = 20
	}
	return model.FactorScore{
		Factor:    model.FactorRelationshipLength,
		Value:     score,
		Rationale: fmt.Sprintf("%d months as a customer", months),
		Source:    model.SourceDeterministic,
	}
}
