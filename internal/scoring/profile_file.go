package scoring

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/crm-scoring/internal/model"
)

// profileFile is the on-disk form of a profile override.
type profileFile struct {
	Weights map[string]float64 `yaml:"weights"`
	Bands   []Band             `yaml:"bands"`
}

// ParseProfile decodes a YAML profile override. Omitted bands fall back to
// the profile's defaults; weights are always required.
func ParseProfile(name model.ProfileName, data []byte) (*Profile, error) {
	var pf profileFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, model.NewError(model.ErrAggregation, "", eris.Wrapf(err, "scoring: decode %s profile", name))
	}

	weights := make(map[model.FactorKey]float64, len(pf.Weights))
	for k, w := range pf.Weights {
		weights[model.FactorKey(k)] = w
	}

	bands := pf.Bands
	if len(bands) == 0 {
		if name == model.ProfileHealth {
			bands = DefaultHealthBands()
		} else {
			bands = DefaultLeadBands()
		}
	}
	return NewProfile(name, weights, bands)
}

// LoadProfile returns the built-in profile for name, or the override at
// path when path is set.
func LoadProfile(name model.ProfileName, path string) (*Profile, error) {
	if path == "" {
		if name == model.ProfileHealth {
			return HealthProfile(), nil
		}
		if name == model.ProfileLead {
			return LeadProfile(), nil
		}
		return nil, model.NewError(model.ErrAggregation, "", eris.Errorf("scoring: unknown profile %q", name))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.NewError(model.ErrAggregation, "", eris.Wrapf(err, "scoring: read %s profile %s", name, path))
	}
	return ParseProfile(name, data)
}

// ProfileSet holds the profile for each subject kind.
type ProfileSet struct {
	Lead   *Profile
	Health *Profile
}

// For returns the profile that scores kind.
func (s ProfileSet) For(kind model.SubjectKind) *Profile {
	if kind == model.SubjectAccount {
		return s.Health
	}
	return s.Lead
}

// LoadProfiles loads both profiles, failing if either is invalid.
func LoadProfiles(leadPath, healthPath string) (ProfileSet, error) {
	lead, err := LoadProfile(model.ProfileLead, leadPath)
	if err != nil {
		return ProfileSet{}, err
	}
	health, err := LoadProfile(model.ProfileHealth, healthPath)
	if err != nil {
		return ProfileSet{}, err
	}
	return ProfileSet{Lead: lead, Health: health}, nil
}

// Validate rejects a set with a missing, misnamed or mis-weighted profile.
func (s ProfileSet) Validate() error {
	for _, want := range []struct {
		name model.ProfileName
		p    *Profile
	}{{model.ProfileLead, s.Lead}, {model.ProfileHealth, s.Health}} {
		if want.p == nil {
			return model.NewError(model.ErrAggregation, "", eris.Errorf("scoring: %s profile not loaded", want.name))
		}
		if want.p.Name() != want.name {
			return model.NewError(model.ErrAggregation, "",
				eris.Errorf("scoring: %s profile slot holds %s profile", want.name, want.p.Name()))
		}
		if d := want.p.WeightSum() - 1; d > WeightTolerance || d < -WeightTolerance {
			return model.NewError(model.ErrAggregation, "",
				eris.Errorf("scoring: %s weights sum to %.6f", want.name, want.p.WeightSum()))
		}
	}
	return nil
}
