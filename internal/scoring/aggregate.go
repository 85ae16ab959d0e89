package scoring

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-scoring/internal/model"
)

// Merge overlays AI values on the deterministic factors. For every key of
// p the AI value wins when present; otherwise the deterministic score is
// kept. AI keys outside p are ignored. The result follows p's key order.
func Merge(p *Profile, deterministic []model.FactorScore, ai map[model.FactorKey]int) []model.FactorScore {
	byKey := make(map[model.FactorKey]model.FactorScore, len(deterministic))
	for _, f := range deterministic {
		byKey[f.Factor] = f
	}

	out := make([]model.FactorScore, 0, len(p.keys))
	for _, k := range p.keys {
		det, hasDet := byKey[k]
		if v, ok := ai[k]; ok {
			rationale := "ai assessment"
			if hasDet {
				rationale = fmt.Sprintf("ai assessment (deterministic %d: %s)", det.Value, det.Rationale)
			}
			out = append(out, model.FactorScore{
				Factor:    k,
				Value:     model.ClampScore(v),
				Rationale: rationale,
				Source:    model.SourceAI,
			})
			continue
		}
		if hasDet {
			det.Value = model.ClampScore(det.Value)
			out = append(out, det)
		}
	}
	return out
}

// Aggregate computes the weighted overall score: each factor value times
// its weight, summed, rounded half away from zero and clamped to [0,100].
// A missing factor contributes nothing. A factor outside the profile, or a
// profile whose weights do not sum to 1.0, is an aggregation error.
func Aggregate(p *Profile, factors []model.FactorScore) (int, error) {
	if p == nil {
		return 0, model.NewError(model.ErrAggregation, "", eris.New("scoring: nil profile"))
	}
	if math.Abs(p.WeightSum()-1.0) > WeightTolerance {
		return 0, model.NewError(model.ErrAggregation, "",
			eris.Errorf("scoring: %s weights sum to %.6f", p.name, p.WeightSum()))
	}

	total := 0.0
	for _, f := range factors {
		if !p.Has(f.Factor) {
			return 0, model.NewError(model.ErrAggregation, "",
				eris.Errorf("scoring: factor %s is not part of the %s profile", f.Factor, p.name))
		}
		total += float64(model.ClampScore(f.Value)) * p.Weight(f.Factor)
	}
	return model.ClampScore(int(math.Round(total))), nil
}

// FactorMap indexes factors by key.
func FactorMap(factors []model.FactorScore) map[model.FactorKey]int {
	m := make(map[model.FactorKey]int, len(factors))
	for _, f := range factors {
		m[f.Factor] = f.Value
	}
	return m
}
