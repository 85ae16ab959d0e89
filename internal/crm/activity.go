package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/pkg/salesforce"
)

var highPriorities = []string{"high", "critical", "urgent"}

// TicketStats summarizes the account's Cases opened in w.
func (s *Source) TicketStats(ctx context.Context, subjectID string, w model.Window) (model.TicketStats, error) {
	cases, err := call(ctx, s, func(ctx context.Context) ([]salesforce.Case, error) {
		return salesforce.ListCases(ctx, s.client, subjectID, w.Start, w.End)
	})
	if err != nil {
		return model.TicketStats{}, eris.Wrap(err, "crm: ticket stats")
	}
	return summarizeCases(subjectID, cases), nil
}

func summarizeCases(subjectID string, cases []salesforce.Case) model.TicketStats {
	stats := model.TicketStats{Total: len(cases)}
	var resolvedHours float64
	var resolved int
	for _, c := range cases {
		if !c.IsClosed {
			stats.Open++
		}
		if isHighPriority(c.Priority) {
			stats.HighPriority++
		}
		if !c.IsClosed || c.ClosedDate == "" {
			continue
		}
		opened, err1 := salesforce.ParseTime(c.CreatedDate)
		closed, err2 := salesforce.ParseTime(c.ClosedDate)
		if err1 != nil || err2 != nil {
			zap.L().Warn("crm: skipping case with unparseable dates",
				zap.String("subject_id", subjectID), zap.String("case_id", c.ID))
			continue
		}
		resolvedHours += closed.Sub(opened).Hours()
		resolved++
	}
	if resolved > 0 {
		stats.AvgResolutionHours = resolvedHours / float64(resolved)
	}
	return stats
}

func isHighPriority(p string) bool {
	p = strings.ToLower(strings.TrimSpace(p))
	for _, hp := range highPriorities {
		if p == hp {
			return true
		}
	}
	return false
}

// SalesActivity counts meetings and calls in w. The last interaction falls
// back to the account's LastActivityDate when nothing happened in w.
func (s *Source) SalesActivity(ctx context.Context, subjectID string, w model.Window) (model.SalesActivity, error) {
	var events, calls []salesforce.Activity
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = call(gctx, s, func(ctx context.Context) ([]salesforce.Activity, error) {
			return salesforce.ListEvents(ctx, s.client, subjectID, w.Start, w.End)
		})
		return err
	})
	g.Go(func() error {
		var err error
		calls, err = call(gctx, s, func(ctx context.Context) ([]salesforce.Activity, error) {
			return salesforce.ListCalls(ctx, s.client, subjectID, w.Start, w.End)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return model.SalesActivity{}, eris.Wrap(err, "crm: sales activity")
	}

	out := model.SalesActivity{Meetings: len(events), Calls: len(calls)}
	out.LastInteractionAt = latestActivity(append(events, calls...))
	if out.LastInteractionAt != nil {
		return out, nil
	}

	last, err := call(ctx, s, func(ctx context.Context) (*time.Time, error) {
		return salesforce.FindLastActivityDate(ctx, s.client, subjectID)
	})
	if err != nil {
		return model.SalesActivity{}, eris.Wrap(err, "crm: sales activity")
	}
	out.LastInteractionAt = last
	return out, nil
}

func latestActivity(acts []salesforce.Activity) *time.Time {
	var latest *time.Time
	for _, a := range acts {
		raw := a.ActivityDate
		if raw == "" {
			raw = a.CreatedDate
		}
		if raw == "" {
			continue
		}
		t, err := salesforce.ParseTime(raw)
		if err != nil {
			continue
		}
		if latest == nil || t.After(*latest) {
			latest = &t
		}
	}
	return latest
}

// ContractValue sums activated contract value and reads the account's
// annual revenue.
func (s *Source) ContractValue(ctx context.Context, subjectID string, _ model.Window) (model.ContractValue, error) {
	monthly, err := call(ctx, s, func(ctx context.Context) (float64, error) {
		return salesforce.SumActiveContracts(ctx, s.client, subjectID, s.cfg.ContractValueField)
	})
	if err != nil {
		return model.ContractValue{}, eris.Wrap(err, "crm: contract value")
	}
	acct, err := call(ctx, s, func(ctx context.Context) (*salesforce.Account, error) {
		return salesforce.FindAccountByID(ctx, s.client, subjectID)
	})
	if err != nil {
		return model.ContractValue{}, eris.Wrap(err, "crm: contract value")
	}
	if acct == nil {
		return model.ContractValue{}, eris.New(fmt.Sprintf("crm: account %s not found", subjectID))
	}
	return model.ContractValue{MonthlyValue: monthly, AnnualRevenue: acct.AnnualRevenue}, nil
}
