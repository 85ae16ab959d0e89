package crm

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/pkg/salesforce"
)

// WriteBackReport counts the records written and rejected.
type WriteBackReport struct {
	Updated int               `json:"updated"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// FieldNames returns the configured write-back fields per sObject.
func (s *Source) FieldNames() map[string][]string {
	f := s.cfg.Fields
	out := map[string][]string{}
	for _, name := range []string{f.LeadScore, f.LeadGrade} {
		if name != "" {
			out["Lead"] = append(out["Lead"], name)
		}
	}
	for _, name := range []string{f.HealthScore, f.RiskCategory, f.ChurnProbability} {
		if name != "" {
			out["Account"] = append(out["Account"], name)
		}
	}
	return out
}

// ValidateWriteBack checks the write-back fields exist and are updateable.
func (s *Source) ValidateWriteBack(ctx context.Context) error {
	for sObject, fields := range s.FieldNames() {
		if err := salesforce.ValidateFields(ctx, s.client, sObject, fields); err != nil {
			return eris.Wrap(err, "crm: write-back fields")
		}
	}
	return nil
}

// WriteBack pushes each snapshot's score into its CRM record in batches.
// Per-record rejections are reported without failing the call.
func (s *Source) WriteBack(ctx context.Context, snaps []*model.ScoreSnapshot) (WriteBackReport, error) {
	report := WriteBackReport{Failed: map[string]string{}}
	grouped := map[string][]salesforce.RecordUpdate{}
	for _, snap := range snaps {
		if snap == nil {
			continue
		}
		fields := s.fieldsFor(snap)
		if len(fields) == 0 {
			continue
		}
		sObject := sobjectFor(snap.SubjectKind)
		grouped[sObject] = append(grouped[sObject], salesforce.RecordUpdate{ID: snap.SubjectID, Fields: fields})
	}

	for _, sObject := range []string{"Lead", "Account"} {
		updates := grouped[sObject]
		if len(updates) == 0 {
			continue
		}
		results, err := salesforce.BulkUpdate(ctx, s.client, sObject, updates)
		for _, r := range results {
			if r.Success {
				report.Updated++
			}
		}
		for _, r := range salesforce.Failed(results) {
			report.Failed[r.ID] = strings.Join(r.Errors, "; ")
		}
		if err != nil {
			return report, eris.Wrap(err, fmt.Sprintf("crm: write back %s scores", sObject))
		}
	}

	zap.L().Info("crm: scores written back",
		zap.Int("updated", report.Updated),
		zap.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (s *Source) fieldsFor(snap *model.ScoreSnapshot) map[string]any {
	f := s.cfg.Fields
	out := map[string]any{}
	set := func(name string, v any) {
		if name != "" {
			out[name] = v
		}
	}
	if snap.SubjectKind == model.SubjectLead {
		set(f.LeadScore, snap.OverallScore)
		set(f.LeadGrade, string(snap.RiskCategory))
		return out
	}
	set(f.HealthScore, snap.OverallScore)
	set(f.RiskCategory, string(snap.RiskCategory))
	if snap.ChurnProbability != nil {
		set(f.ChurnProbability, *snap.ChurnProbability)
	}
	return out
}
