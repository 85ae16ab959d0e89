package scoring

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LeadRules holds the domain lists used by the company_size factor.
type LeadRules struct {
	EnterpriseDomains []string
	FreeMailDomains   []string
}

// DefaultLeadRules returns the built-in domain lists.
func DefaultLeadRules() LeadRules {
	return LeadRules{
		EnterpriseDomains: []string{
			"microsoft.com", "google.com", "amazon.com", "apple.com", "ibm.com",
			"oracle.com", "salesforce.com", "sap.com", "cisco.com", "intel.com",
			"adobe.com", "dell.com", "hp.com", "accenture.com", "deloitte.com",
		},
		FreeMailDomains: []string{
			"gmail.com", "googlemail.com", "yahoo.com", "hotmail.com", "outlook.com",
			"live.com", "aol.com", "icloud.com", "me.com", "protonmail.com",
			"proton.me", "gmx.com", "mail.com", "yandex.com", "zoho.com",
		},
	}
}

// withDefaults fills empty lists with the built-in ones.
func (r LeadRules) withDefaults() LeadRules {
	def := DefaultLeadRules()
	if len(r.EnterpriseDomains) == 0 {
		r.EnterpriseDomains = def.EnterpriseDomains
	}
	if len(r.FreeMailDomains) == 0 {
		r.FreeMailDomains = def.FreeMailDomains
	}
	return r
}

// domainIn reports whether domain equals or is a subdomain of any entry.
func domainIn(domain string, list []string) bool {
	for _, d := range list {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

// fold lower-cases s and strips diacritics so "Directrice Générale" and
// "directrice generale" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return cases.Fold().String(strings.TrimSpace(out))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
