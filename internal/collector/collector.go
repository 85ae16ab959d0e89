// Package collector gathers the time-windowed raw aggregates a subject is
// scored from. It fans out over the upstream providers and never computes
// scores itself.
package collector

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-scoring/internal/model"
)

var tracer = otel.Tracer("github.com/sells-group/crm-scoring/internal/collector")

// DefaultWindow is the trailing collection window.
const DefaultWindow = 30 * 24 * time.Hour

// TicketSource reports support ticket statistics.
type TicketSource interface {
	TicketStats(ctx context.Context, subjectID string, w model.Window) (model.TicketStats, error)
}

// SalesActivitySource reports meetings and calls.
type SalesActivitySource interface {
	SalesActivity(ctx context.Context, subjectID string, w model.Window) (model.SalesActivity, error)
}

// ContractSource reports contract value.
type ContractSource interface {
	ContractValue(ctx context.Context, subjectID string, w model.Window) (model.ContractValue, error)
}

// WebActivitySource reports marketing-site engagement.
type WebActivitySource interface {
	WebActivity(ctx context.Context, subjectID string, w model.Window) (model.WebActivity, error)
}

// PaymentSource reports payment history.
type PaymentSource interface {
	PaymentHistory(ctx context.Context, subjectID string, w model.Window) (model.PaymentHistory, error)
}

// UsageSource reports product usage.
type UsageSource interface {
	ProductUsage(ctx context.Context, subjectID string, w model.Window) (model.ProductUsage, error)
}

// Providers bundles the upstream sources. Leads need Web; accounts need
// the other five.
type Providers struct {
	Tickets   TicketSource
	Sales     SalesActivitySource
	Contracts ContractSource
	Web       WebActivitySource
	Payments  PaymentSource
	Usage     UsageSource
}

// Collector is the FactorCollector.
type Collector struct {
	providers Providers
	window    time.Duration
	now       func() time.Time
}

// New returns a Collector. A non-positive window selects DefaultWindow.
func New(p Providers, window time.Duration) *Collector {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Collector{providers: p, window: window, now: time.Now}
}

// Validate reports a missing provider required for kind.
func (c *Collector) Validate(kind model.SubjectKind) error {
	missing := c.missing(kind)
	if len(missing) == 0 {
		return nil
	}
	return eris.Errorf("collector: %s scoring needs providers %v", kind, missing)
}

func (c *Collector) missing(kind model.SubjectKind) []string {
	var out []string
	p := c.providers
	switch kind {
	case model.SubjectLead:
		if p.Web == nil {
			out = append(out, "web_activity")
		}
	case model.SubjectAccount:
		if p.Tickets == nil {
			out = append(out, "tickets")
		}
		if p.Sales == nil {
			out = append(out, "sales_activity")
		}
		if p.Contracts == nil {
			out = append(out, "contracts")
		}
		if p.Payments == nil {
			out = append(out, "payments")
		}
		if p.Usage == nil {
			out = append(out, "usage")
		}
	}
	return out
}

// Collect gathers aggregates over the trailing window ending now.
func (c *Collector) Collect(ctx context.Context, subj model.Subject) (model.RawAggregates, error) {
	now := c.now().UTC()
	return c.CollectWindow(ctx, subj, model.TrailingWindow(now, c.window), now)
}

// CollectWindow gathers aggregates over w as of asOf. Any provider failure
// is a collection error naming the provider.
func (c *Collector) CollectWindow(ctx context.Context, subj model.Subject, w model.Window, asOf time.Time) (model.RawAggregates, error) {
	ctx, span := tracer.Start(ctx, "collector.Collect", trace.WithAttributes(
		attribute.String("subject.id", subj.ID),
		attribute.String("subject.kind", string(subj.Kind)),
	))
	defer span.End()

	agg := model.RawAggregates{
		Window:       w,
		AsOf:         asOf,
		TenureMonths: model.MonthsBetween(subj.CreatedAt, asOf),
	}

	if !subj.Kind.Valid() {
		return agg, c.fail(span, subj.ID, eris.Errorf("collector: unknown subject kind %q", subj.Kind))
	}
	if err := c.Validate(subj.Kind); err != nil {
		return agg, c.fail(span, subj.ID, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	p := c.providers
	id := subj.ID

	if subj.Kind == model.SubjectLead {
		fetch(g, "web_activity", func() (err error) { agg.Web, err = p.Web.WebActivity(gctx, id, w); return })
	} else {
		fetch(g, "tickets", func() (err error) { agg.Tickets, err = p.Tickets.TicketStats(gctx, id, w); return })
		fetch(g, "sales_activity", func() (err error) { agg.Sales, err = p.Sales.SalesActivity(gctx, id, w); return })
		fetch(g, "contracts", func() (err error) { agg.Contract, err = p.Contracts.ContractValue(gctx, id, w); return })
		fetch(g, "payments", func() (err error) { agg.Payments, err = p.Payments.PaymentHistory(gctx, id, w); return })
		fetch(g, "usage", func() (err error) { agg.Usage, err = p.Usage.ProductUsage(gctx, id, w); return })
	}

	if err := g.Wait(); err != nil {
		return agg, c.fail(span, subj.ID, err)
	}
	if agg.Contract.AnnualRevenue == 0 {
		agg.Contract.AnnualRevenue = subj.AnnualRevenue
	}
	return agg, nil
}

// fetch runs one provider query in g. Each closure writes a distinct field
// of the aggregates, so no locking is needed.
func fetch(g *errgroup.Group, provider string, fn func() error) {
	g.Go(func() error {
		return eris.Wrapf(fn(), "collector: %s provider", provider)
	})
}

func (c *Collector) fail(span trace.Span, subjectID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return model.NewError(model.ErrCollection, subjectID, err)
}
