package enrich

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/scoring"
)

type payload struct {
	Factors         map[string]float64 `json:"factors"`
	Insights        []string           `json:"insights"`
	Recommendations []string           `json:"recommendations"`
	Confidence      *float64           `json:"confidence"`
	Scale           *float64           `json:"scale"`
}

// cleanJSON strips markdown fences and any prose around the outermost
// JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

// Parse decodes a provider response and normalizes it for p. Values are
// rescaled from the declared scale, or from the unit interval when every
// value is at most 1 and no scale is declared. Keys outside p are dropped.
func Parse(text string, p *scoring.Profile) (*Enrichment, error) {
	var pl payload
	if err := json.Unmarshal([]byte(cleanJSON(text)), &pl); err != nil {
		return nil, eris.Wrap(err, "enrich: decode response")
	}
	if pl.Confidence == nil {
		return nil, eris.New("enrich: response has no confidence")
	}

	scale, err := resolveScale(pl)
	if err != nil {
		return nil, err
	}

	out := &Enrichment{
		Factors:         make(map[model.FactorKey]int, len(pl.Factors)),
		Insights:        compact(pl.Insights),
		Recommendations: compact(pl.Recommendations),
		Confidence:      clampUnit(*pl.Confidence),
	}
	for name, v := range pl.Factors {
		key, ok := model.ParseFactorKey(name)
		if !ok || !p.Has(key) {
			zap.L().Warn("enrich: dropping unknown factor",
				zap.String("factor", name),
				zap.String("profile", string(p.Name())),
			)
			continue
		}
		out.Factors[key] = int(math.Round(math.Max(0, math.Min(100, v*100/scale))))
	}
	return out, nil
}

func resolveScale(pl payload) (float64, error) {
	if pl.Scale != nil {
		if *pl.Scale <= 0 {
			return 0, eris.Errorf("enrich: invalid scale %v", *pl.Scale)
		}
		return *pl.Scale, nil
	}
	if len(pl.Factors) == 0 {
		return 100, nil
	}
	for _, v := range pl.Factors {
		if v > 1 {
			return 100, nil
		}
	}
	return 1, nil
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
