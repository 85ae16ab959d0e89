// Package engine runs the single-subject scoring pipeline and the batch
// runner that drives it.
package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/crm-scoring/internal/alert"
	"github.com/sells-group/crm-scoring/internal/enrich"
	"github.com/sells-group/crm-scoring/internal/lease"
	"github.com/sells-group/crm-scoring/internal/metrics"
	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/resilience"
	"github.com/sells-group/crm-scoring/internal/scoring"
	"github.com/sells-group/crm-scoring/internal/store"
)

var tracer = otel.Tracer("github.com/sells-group/crm-scoring/internal/engine")

// FallbackConfidenceCeiling caps confidence when AI enrichment was
// unavailable.
const FallbackConfidenceCeiling = 0.6

// SubjectLoader resolves a subject id to its CRM record.
type SubjectLoader interface {
	Load(ctx context.Context, id string) (model.Subject, error)
}

// Collector gathers the raw aggregates for a subject.
type Collector interface {
	Collect(ctx context.Context, subj model.Subject) (model.RawAggregates, error)
}

// Deps are the collaborators of an Engine. Enricher, Tasks, Locker and
// Metrics are optional.
type Deps struct {
	Profiles  scoring.ProfileSet
	Subjects  SubjectLoader
	Collector Collector
	Scorer    *scoring.Scorer
	Enricher  enrich.Enricher
	Emitter   *alert.Emitter
	Store     store.HistoryStore
	Tasks     alert.TaskSink
	Locker    lease.Locker
	Metrics   *metrics.Manager
}

// Config tunes an Engine.
type Config struct {
	// FallbackConfidence is the confidence recorded without AI. Values above
	// FallbackConfidenceCeiling are capped.
	FallbackConfidence float64
	// PersistRetry governs history writes. Zero selects one retry.
	PersistRetry resilience.RetryConfig
}

// Engine scores one subject at a time. It is safe for concurrent use;
// runs for the same subject are serialized by the lease.
type Engine struct {
	profiles   scoring.ProfileSet
	subjects   SubjectLoader
	collector  Collector
	scorer     *scoring.Scorer
	enricher   enrich.Enricher
	emitter    *alert.Emitter
	store      store.HistoryStore
	tasks      alert.TaskSink
	locker     lease.Locker
	metrics    *metrics.Manager
	fallback   float64
	persistCfg resilience.RetryConfig
	now        func() time.Time
}

// New validates the profiles and wires an Engine. An invalid profile set is
// an aggregation error: nothing may be scored with it.
func New(d Deps, cfg Config) (*Engine, error) {
	if err := d.Profiles.Validate(); err != nil {
		return nil, err
	}
	if d.Subjects == nil || d.Collector == nil || d.Store == nil {
		return nil, model.NewError(model.ErrInvalid, "", eris.New("engine: subjects, collector and store are required"))
	}

	e := &Engine{
		profiles:   d.Profiles,
		subjects:   d.Subjects,
		collector:  d.Collector,
		scorer:     d.Scorer,
		enricher:   d.Enricher,
		emitter:    d.Emitter,
		store:      d.Store,
		tasks:      d.Tasks,
		locker:     d.Locker,
		metrics:    d.Metrics,
		fallback:   cfg.FallbackConfidence,
		persistCfg: cfg.PersistRetry,
		now:        time.Now,
	}
	if e.scorer == nil {
		e.scorer = scoring.NewScorer(scoring.DefaultLeadRules())
	}
	if e.enricher == nil {
		e.enricher = enrich.Disabled{}
	}
	if e.emitter == nil {
		e.emitter = alert.NewEmitter(0, 0)
	}
	if e.tasks == nil {
		e.tasks = alert.LogSink{}
	}
	if e.locker == nil {
		e.locker = lease.NewLocal()
	}
	if e.fallback <= 0 || e.fallback > FallbackConfidenceCeiling {
		e.fallback = FallbackConfidenceCeiling
	}
	if e.persistCfg.MaxAttempts == 0 {
		e.persistCfg = resilience.PersistenceRetryConfig()
	}
	if e.persistCfg.OnRetry == nil {
		e.persistCfg.OnRetry = resilience.RetryLogger("store", "append")
	}
	return e, nil
}

// Profiles returns the validated profile set.
func (e *Engine) Profiles() scoring.ProfileSet { return e.profiles }

// Score runs the full pipeline for id and returns the persisted snapshot.
// Errors carry a model.ErrorKind.
func (e *Engine) Score(ctx context.Context, id string) (*model.ScoreSnapshot, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "engine.Score", trace.WithAttributes(attribute.String("subject.id", id)))
	defer span.End()

	snap, err := e.score(ctx, id)
	e.metrics.ObservePipeline(time.Since(start))
	if err != nil {
		e.metrics.SubjectFailed(string(model.KindOf(err)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("score.overall", snap.OverallScore),
		attribute.String("score.risk", string(snap.RiskCategory)),
	)
	return snap, nil
}

func (e *Engine) score(ctx context.Context, id string) (*model.ScoreSnapshot, error) {
	if id == "" {
		return nil, model.NewError(model.ErrInvalid, "", eris.New("engine: subject id is required"))
	}

	release, err := e.locker.Acquire(ctx, id)
	if err != nil {
		return nil, eris.Wrap(err, "engine: acquire subject lease")
	}
	defer release()

	subj, err := e.subjects.Load(ctx, id)
	if err != nil {
		return nil, ensureKind(err, model.ErrCollection, id)
	}
	return e.run(ctx, subj)
}

// run executes the pipeline with the subject lease held.
func (e *Engine) run(ctx context.Context, subj model.Subject) (*model.ScoreSnapshot, error) {
	log := zap.L().With(zap.String("subject_id", subj.ID), zap.String("kind", string(subj.Kind)))

	if !subj.Kind.Valid() {
		return nil, model.NewError(model.ErrInvalid, subj.ID, eris.Errorf("engine: unknown subject kind %q", subj.Kind))
	}
	p := e.profiles.For(subj.Kind)

	agg, err := e.collector.Collect(ctx, subj)
	if err != nil {
		log.Error("engine: collection failed", zap.Error(err))
		return nil, ensureKind(err, model.ErrCollection, subj.ID)
	}

	deterministic := e.scorer.Score(p, subj, agg)
	result := e.enricher.Enrich(ctx, enrich.Request{Profile: p, Subject: subj, Aggregates: agg})

	var aiFactors map[model.FactorKey]int
	if result.OK() {
		aiFactors = result.Enrichment.Factors
	}
	factors := scoring.Merge(p, deterministic, aiFactors)
	overall, err := scoring.Aggregate(p, factors)
	if err != nil {
		return nil, model.NewError(model.ErrAggregation, subj.ID, err)
	}

	snap := &model.ScoreSnapshot{
		SubjectID:    subj.ID,
		SubjectKind:  subj.Kind,
		Profile:      p.Name(),
		OverallScore: overall,
		Factors:      factors,
		RiskCategory: p.Classify(overall),
	}
	if subj.Kind == model.SubjectAccount {
		churn := scoring.ChurnProbability(overall, scoring.FactorMap(factors))
		snap.ChurnProbability = &churn
	}
	e.applyEnrichment(snap, p, result, log)

	prev, err := e.store.GetLatestBySubject(ctx, subj.ID)
	if err != nil {
		return nil, model.NewError(model.ErrPersistence, subj.ID, err)
	}
	snap.ComputedAt = e.computedAt(prev)
	if prev != nil {
		previous, delta := prev.OverallScore, overall-prev.OverallScore
		snap.PreviousScore, snap.Delta = &previous, &delta
	}

	raised := e.emitter.Evaluate(prev, snap)
	err = resilience.Do(ctx, e.persistCfg, func(ctx context.Context) error {
		return e.store.Append(ctx, snap, raised)
	})
	if err != nil {
		log.Error("engine: persist snapshot failed", zap.Error(err))
		return nil, model.NewError(model.ErrPersistence, subj.ID, err)
	}

	e.metrics.SubjectScored(string(p.Name()), string(snap.Enrichment), overall)
	log.Info("engine: subject scored",
		zap.String("profile", string(p.Name())),
		zap.Int("score", overall),
		zap.String("risk", string(snap.RiskCategory)),
		zap.String("enrichment", string(snap.Enrichment)),
		zap.Intp("delta", snap.Delta),
	)

	if raised != nil {
		e.metrics.AlertRaised(string(p.Name()))
		e.dispatchFollowUp(ctx, subj, raised, log)
	}
	return snap, nil
}

func (e *Engine) applyEnrichment(snap *model.ScoreSnapshot, p *scoring.Profile, result enrich.Result, log *zap.Logger) {
	if result.OK() {
		en := result.Enrichment
		snap.Enrichment = model.EnrichmentApplied
		snap.Confidence = en.Confidence
		snap.Insights = en.Insights
		snap.Recommendations = en.Recommendations
		if len(snap.Recommendations) == 0 {
			snap.Recommendations = scoring.StaticRecommendations(p, snap.Factors)
		}
		return
	}

	snap.Enrichment = model.EnrichmentFallback
	snap.FallbackReason = string(result.Reason)
	snap.Confidence = e.fallback
	snap.Insights = []string{}
	snap.Recommendations = scoring.StaticRecommendations(p, snap.Factors)

	e.metrics.AIUnavailable(string(result.Reason))
	fields := []zap.Field{zap.String("reason", string(result.Reason))}
	if result.Err != nil {
		fields = append(fields, zap.Error(result.Err))
	}
	if result.Reason == enrich.ReasonDisabled {
		log.Debug("engine: ai enrichment disabled", fields...)
		return
	}
	log.Warn("engine: ai enrichment unavailable, using deterministic factors", fields...)
}

// computedAt returns the current time at microsecond precision, moved past
// prev so history stays strictly ordered.
func (e *Engine) computedAt(prev *model.ScoreSnapshot) time.Time {
	now := e.now().UTC().Truncate(time.Microsecond)
	if prev != nil && !now.After(prev.ComputedAt) {
		now = prev.ComputedAt.UTC().Add(time.Microsecond)
	}
	return now
}

// dispatchFollowUp runs after the snapshot and alert are committed. A
// delivery failure leaves the durable alert in place.
func (e *Engine) dispatchFollowUp(ctx context.Context, subj model.Subject, a *model.Alert, log *zap.Logger) {
	task := e.emitter.FollowUp(subj, a)
	if err := e.tasks.CreateFollowUpTask(ctx, task); err != nil {
		e.metrics.FollowUpFailed()
		log.Error("engine: follow-up task failed",
			zap.String("alert_id", a.ID),
			zap.String("owner_id", task.OwnerID),
			zap.Error(err),
		)
		return
	}
	log.Info("engine: score drop alert raised",
		zap.String("alert_id", a.ID),
		zap.Int("previous", a.PreviousScore),
		zap.Int("current", a.CurrentScore),
	)
}

// ensureKind keeps an existing error kind and otherwise tags err with kind.
func ensureKind(err error, kind model.ErrorKind, subjectID string) error {
	if model.KindOf(err) != model.ErrUnknown {
		return err
	}
	return model.NewError(kind, subjectID, err)
}
