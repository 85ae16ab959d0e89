package crm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/pkg/salesforce"
)

// Load returns the Lead or Account with id. A missing record yields an
// ErrNotFound error and an unrecognized id an ErrInvalid error.
func (s *Source) Load(ctx context.Context, id string) (model.Subject, error) {
	kind, ok := KindForID(id)
	if !ok {
		return model.Subject{}, model.NewError(model.ErrInvalid, id,
			eris.New(fmt.Sprintf("crm: %q is not a lead or account id", id)))
	}

	var (
		subj  model.Subject
		found bool
		err   error
	)
	if kind == model.SubjectLead {
		subj, found, err = s.loadLead(ctx, id)
	} else {
		subj, found, err = s.loadAccount(ctx, id)
	}
	if err != nil {
		return model.Subject{}, model.NewError(model.ErrCollection, id, err)
	}
	if !found {
		return model.Subject{}, model.NewError(model.ErrNotFound, id,
			eris.New(fmt.Sprintf("crm: %s %s not found", sobjectFor(kind), id)))
	}
	return subj, nil
}

func (s *Source) loadLead(ctx context.Context, id string) (model.Subject, bool, error) {
	lead, err := call(ctx, s, func(ctx context.Context) (*salesforce.Lead, error) {
		return salesforce.FindLeadByID(ctx, s.client, id)
	})
	if err != nil || lead == nil {
		return model.Subject{}, false, err
	}
	name := fmt.Sprintf("%s %s", lead.FirstName, lead.LastName)
	return model.Subject{
		ID:            lead.ID,
		Kind:          model.SubjectLead,
		Name:          strings.TrimSpace(name),
		OwnerID:       lead.OwnerID,
		Title:         lead.Title,
		Email:         lead.Email,
		CompanyName:   lead.Company,
		Website:       lead.Website,
		LeadSource:    lead.LeadSource,
		Industry:      lead.Industry,
		AnnualRevenue: lead.AnnualRevenue,
		CreatedAt:     parseOptional(lead.CreatedDate),
	}, true, nil
}

func (s *Source) loadAccount(ctx context.Context, id string) (model.Subject, bool, error) {
	acct, err := call(ctx, s, func(ctx context.Context) (*salesforce.Account, error) {
		return salesforce.FindAccountByID(ctx, s.client, id)
	})
	if err != nil || acct == nil {
		return model.Subject{}, false, err
	}
	return model.Subject{
		ID:            acct.ID,
		Kind:          model.SubjectAccount,
		Name:          acct.Name,
		OwnerID:       acct.OwnerID,
		CompanyName:   acct.Name,
		Website:       acct.Website,
		Industry:      acct.Industry,
		AnnualRevenue: acct.AnnualRevenue,
		CreatedAt:     parseOptional(acct.CreatedDate),
	}, true, nil
}

// ActiveIDs lists the active subjects of kind, at most limit when limit > 0.
func (s *Source) ActiveIDs(ctx context.Context, kind model.SubjectKind, limit int) ([]string, error) {
	where := s.cfg.AccountFilter
	if kind == model.SubjectLead {
		where = s.cfg.LeadFilter
	}
	ids, err := call(ctx, s, func(ctx context.Context) ([]string, error) {
		return salesforce.ListIDs(ctx, s.client, sobjectFor(kind), where, limit)
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("crm: active %s ids", kind))
	}
	return ids, nil
}

func parseOptional(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := salesforce.ParseTime(s)
	if err != nil {
		return time.Time{}
	}
	return t
}
