package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-scoring/internal/model"
)

func TestDefaultProfiles_WeightsSumToOne(t *testing.T) {
	for _, p := range []*Profile{LeadProfile(), HealthProfile()} {
		assert.InDelta(t, 1.0, p.WeightSum(), WeightTolerance, p.Name())
	}
	assert.Len(t, LeadProfile().Keys(), 5)
	assert.Len(t, HealthProfile().Keys(), 6)
	assert.InDelta(t, 0.25, LeadProfile().Weight(model.FactorEngagement), 1e-9)
	assert.InDelta(t, 0.10, HealthProfile().Weight(model.FactorRelationshipLength), 1e-9)
}

func TestNewProfile_RejectsBadWeightSum(t *testing.T) {
	w := DefaultLeadWeights()
	w[model.FactorEngagement] = 0.30

	p, err := NewProfile(model.ProfileLead, w, DefaultLeadBands())
	require.Error(t, err)
	assert.Nil(t, p)
	assert.True(t, model.IsKind(err, model.ErrAggregation))
	assert.Contains(t, err.Error(), "weights must sum to 1.0")
}

func TestNewProfile_ToleratesFloatNoise(t *testing.T) {
	w := DefaultHealthWeights()
	w[model.FactorSupportTickets] += 5e-7
	_, err := NewProfile(model.ProfileHealth, w, DefaultHealthBands())
	assert.NoError(t, err)
}

func TestNewProfile_RejectsUnknownAndMissingFactors(t *testing.T) {
	w := DefaultLeadWeights()
	delete(w, model.FactorIntentSignals)
	w["vibes"] = 0.15

	_, err := NewProfile(model.ProfileLead, w, DefaultLeadBands())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown factors for lead profile: vibes")
	assert.Contains(t, err.Error(), "missing weight for intent_signals")
}

func TestNewProfile_RejectsHealthKeyInLeadProfile(t *testing.T) {
	w := DefaultLeadWeights()
	delete(w, model.FactorFit)
	w[model.FactorSupportTickets] = 0.20

	_, err := NewProfile(model.ProfileLead, w, DefaultLeadBands())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "support_tickets")
}

func TestNewProfile_RejectsBadBands(t *testing.T) {
	tests := []struct {
		name  string
		bands []Band
		want  string
	}{
		{"empty", nil, "at least one band"},
		{"not descending", []Band{{Min: 60, Category: model.RiskHealthy}, {Min: 80, Category: model.RiskAtRisk}, {Min: 0, Category: model.RiskCritical}}, "must be below"},
		{"no floor", []Band{{Min: 80, Category: model.RiskHealthy}, {Min: 60, Category: model.RiskAtRisk}}, "last band must start at 0"},
		{"unknown category", []Band{{Min: 0, Category: "meh"}}, "unknown category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfile(model.ProfileHealth, DefaultHealthWeights(), tt.bands)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewProfile_UnknownName(t *testing.T) {
	_, err := NewProfile("mystery", DefaultLeadWeights(), DefaultLeadBands())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown profile "mystery"`)
}

func TestProfile_IsImmutable(t *testing.T) {
	w := DefaultLeadWeights()
	p, err := NewProfile(model.ProfileLead, w, DefaultLeadBands())
	require.NoError(t, err)

	w[model.FactorEngagement] = 0.9
	keys := p.Keys()
	keys[0] = "tampered"
	bands := p.Bands()
	bands[0].Min = 1

	assert.InDelta(t, 0.25, p.Weight(model.FactorEngagement), 1e-9)
	assert.Equal(t, model.FactorCompanySize, p.Keys()[0])
	assert.Equal(t, 80, p.Bands()[0].Min)
}

func TestParseProfile(t *testing.T) {
	data := []byte(`
weights:
  support_tickets: 0.30
  activity_level: 0.20
  contract_value: 0.10
  payment_history: 0.15
  feature_adoption: 0.15
  relationship_length: 0.10
bands:
  - min: 75
    category: healthy
  - min: 50
    category: at_risk
  - min: 0
    category: critical
`)
	p, err := ParseProfile(model.ProfileHealth, data)
	require.NoError(t, err)
	assert.InDelta(t, 0.30, p.Weight(model.FactorSupportTickets), 1e-9)
	assert.Equal(t, model.RiskHealthy, p.Classify(76))
	assert.Equal(t, model.RiskAtRisk, p.Classify(50))
}

func TestParseProfile_DefaultBandsAndErrors(t *testing.T) {
	p, err := ParseProfile(model.ProfileLead, []byte(`
weights:
  company_size: 0.2
  job_title: 0.2
  engagement: 0.2
  fit_score: 0.2
  intent_signals: 0.2
`))
	require.NoError(t, err)
	assert.Equal(t, model.GradeA, p.Classify(80))

	_, err = ParseProfile(model.ProfileLead, []byte("weights: ["))
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrAggregation))

	_, err = ParseProfile(model.ProfileLead, []byte("weights:\n  company_size: 1.5\n"))
	require.Error(t, err)
}

func TestLoadProfiles(t *testing.T) {
	set, err := LoadProfiles("", "")
	require.NoError(t, err)
	assert.Equal(t, model.ProfileLead, set.For(model.SubjectLead).Name())
	assert.Equal(t, model.ProfileHealth, set.For(model.SubjectAccount).Name())

	path := filepath.Join(t.TempDir(), "health.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights:\n  support_tickets: 1.0\n"), 0o644))
	_, err = LoadProfiles("", path)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrAggregation))

	_, err = LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read lead profile")
}

func TestProfileSet_Validate(t *testing.T) {
	require.NoError(t, ProfileSet{Lead: LeadProfile(), Health: HealthProfile()}.Validate())

	err := ProfileSet{Lead: LeadProfile()}.Validate()
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.ErrAggregation))
	assert.Contains(t, err.Error(), "health profile not loaded")

	err = ProfileSet{Lead: HealthProfile(), Health: HealthProfile()}.Validate()
	assert.ErrorContains(t, err, "lead profile slot holds health profile")
}
