package scoring

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sells-group/crm-scoring/internal/model"
)

var (
	decisionMakerTitle = regexp.MustCompile(`\b(ceo|cto|cfo|president|owner|founder|[se]?vp|directors?)\b`)
	influencerTitle    = regexp.MustCompile(`\b(managers?|head|leads?|senior|principal)\b`)
	technicalTitle     = regexp.MustCompile(`\b(engineers?|developers?|architects?|analysts?)\b`)
)

var industryKeywords = []string{"software", "tech", "saas", "cloud", "digital"}

var highIntentSources = []string{"demo request", "contact form", "webinar"}

// intentPage is one page category counted at most once per window.
type intentPage struct {
	name     string
	keywords []string
	points   int
}

var intentPages = []intentPage{
	{name: "pricing", keywords: []string{"pricing", "/price"}, points: 30},
	{name: "features", keywords: []string{"features"}, points: 20},
	{name: "demo", keywords: []string{"demo"}, points: 30},
	{name: "docs", keywords: []string{"/docs", "documentation"}, points: 20},
}

const recentSessionWindow = 7 * 24 * time.Hour

func (s *Scorer) companySize(subj model.Subject) model.FactorScore {
	domain := subj.EmailDomain()
	fs := model.FactorScore{Factor: model.FactorCompanySize, Source: model.SourceDeterministic}
	switch {
	case domain == "":
		fs.Value, fs.Rationale = 30, "no email address on record"
	case domainIn(domain, s.rules.EnterpriseDomains):
		fs.Value, fs.Rationale = 100, fmt.Sprintf("enterprise domain %s", domain)
	case domainIn(domain, s.rules.FreeMailDomains):
		fs.Value, fs.Rationale = 20, fmt.Sprintf("free-mail domain %s", domain)
	default:
		fs.Value, fs.Rationale = 70, fmt.Sprintf("corporate domain %s", domain)
	}
	return fs
}

func jobTitle(subj model.Subject) model.FactorScore {
	title := fold(subj.Title)
	fs := model.FactorScore{Factor: model.FactorJobTitle, Source: model.SourceDeterministic}
	switch {
	case title == "":
		fs.Value, fs.Rationale = 30, "no title on record"
	case decisionMakerTitle.MatchString(title):
		fs.Value, fs.Rationale = 100, fmt.Sprintf("decision-maker title %q", subj.Title)
	case influencerTitle.MatchString(title):
		fs.Value, fs.Rationale = 70, fmt.Sprintf("influencer title %q", subj.Title)
	case technicalTitle.MatchString(title):
		fs.Value, fs.Rationale = 50, fmt.Sprintf("technical title %q", subj.Title)
	default:
		fs.Value, fs.Rationale = 30, fmt.Sprintf("unclassified title %q", subj.Title)
	}
	return fs
}

func engagement(web model.WebActivity) model.FactorScore {
	score := 0
	switch {
	case web.Sessions >= 3:
		score += 30
	case web.Sessions >= 1:
		score += 10
	}
	switch {
	case web.PageViews >= 10:
		score += 20
	case web.PageViews >= 5:
		score += 10
	}
	if web.FormSubmissions > 0 {
		score += 30
	}
	if web.ChatConversations > 0 {
		score += 20
	}
	return model.FactorScore{
		Factor: model.FactorEngagement,
		Value:  min(score, 100),
		Rationale: fmt.Sprintf("%d sessions, %d page views, %d forms, %d chats",
			web.Sessions, web.PageViews, web.FormSubmissions, web.ChatConversations),
		Source: model.SourceDeterministic,
	}
}

func fitScore(subj model.Subject) model.FactorScore {
	score := 0
	var reasons []string

	company := fold(subj.CompanyName)
	if containsAny(company, industryKeywords) {
		score += 40
		reasons = append(reasons, "industry keyword")
	}
	if company != "" {
		score += 20
		reasons = append(reasons, "company named")
	}
	if strings.TrimSpace(subj.Website) != "" {
		score += 20
		reasons = append(reasons, "website present")
	}
	source := fold(subj.LeadSource)
	for _, s := range highIntentSources {
		if source == s {
			score += 20
			reasons = append(reasons, "high-intent source "+subj.LeadSource)
			break
		}
	}

	rationale := "no fit signals"
	if len(reasons) > 0 {
		rationale = strings.Join(reasons, ", ")
	}
	return model.FactorScore{
		Factor:    model.FactorFit,
		Value:     min(score, 100),
		Rationale: rationale,
		Source:    model.SourceDeterministic,
	}
}

func intentSignals(web model.WebActivity, asOf time.Time) model.FactorScore {
	score := 0
	var seen []string
	for _, page := range intentPages {
		for _, u := range web.PageViewURLs {
			if containsAny(strings.ToLower(u), page.keywords) {
				score += page.points
				seen = append(seen, page.name)
				break
			}
		}
	}
	if web.LastSessionAt != nil && asOf.Sub(*web.LastSessionAt) < recentSessionWindow {
		score += 20
		seen = append(seen, "recent session")
	}

	rationale := "no intent pages viewed"
	if len(seen) > 0 {
		rationale = strings.Join(seen, ", ")
	}
	return model.FactorScore{
		Factor:    model.FactorIntentSignals,
		Value:     min(score, 100),
		Rationale: rationale,
		Source:    model.SourceDeterministic,
	}
}
