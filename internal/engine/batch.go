package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/crm-scoring/internal/crm"
	"github.com/sells-group/crm-scoring/internal/metrics"
	"github.com/sells-group/crm-scoring/internal/model"
)

// SubjectScorer scores one subject by id.
type SubjectScorer interface {
	Score(ctx context.Context, id string) (*model.ScoreSnapshot, error)
}

// WriteBacker pushes finished snapshots back to the CRM.
type WriteBacker interface {
	WriteBack(ctx context.Context, snaps []*model.ScoreSnapshot) (crm.WriteBackReport, error)
}

// BatchConfig tunes a BatchRunner.
type BatchConfig struct {
	Concurrency   int
	ThrottleEvery int
	ThrottleDelay time.Duration

	// SubjectTimeout bounds one subject's scoring. Keep it below the lease
	// TTL so a lease never expires under a running subject. Zero disables.
	SubjectTimeout time.Duration
}

// Report summarizes a batch run. Processed plus len(Errors) equals the
// number of distinct ids started; Skipped holds ids never started because
// the run was cancelled.
type Report struct {
	Processed int                  `json:"processed"`
	Errors    map[string]string    `json:"errors"`
	Skipped   []string             `json:"skipped,omitempty"`
	WriteBack *crm.WriteBackReport `json:"write_back,omitempty"`
}

// BatchRunner scores many subjects with a bounded worker pool.
type BatchRunner struct {
	scorer    SubjectScorer
	cfg       BatchConfig
	writeBack WriteBacker
	metrics   *metrics.Manager
	sleep     func(ctx context.Context, d time.Duration) error
}

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

// WithWriteBack pushes scores to the CRM after each run.
func WithWriteBack(w WriteBacker) BatchOption {
	return func(r *BatchRunner) { r.writeBack = w }
}

// WithMetrics records batch metrics on m.
func WithMetrics(m *metrics.Manager) BatchOption {
	return func(r *BatchRunner) { r.metrics = m }
}

// NewBatchRunner returns a runner over scorer. Profiles are validated when
// the Engine is built, so a runner never starts with a bad profile.
func NewBatchRunner(scorer SubjectScorer, cfg BatchConfig, opts ...BatchOption) *BatchRunner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	r := &BatchRunner{scorer: scorer, cfg: cfg, sleep: sleepCtx}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run scores every distinct id. Each subject fails independently. Once ctx
// is cancelled no further subject starts; subjects already running finish
// with a context detached from the cancellation, bounded by SubjectTimeout.
func (r *BatchRunner) Run(ctx context.Context, ids []string) Report {
	ids = dedupe(ids)
	report := Report{Errors: map[string]string{}}
	r.metrics.BatchStarted()

	zap.L().Info("batch: starting",
		zap.Int("subjects", len(ids)),
		zap.Int("concurrency", r.cfg.Concurrency),
	)
	start := time.Now()

	var (
		mu    sync.Mutex
		snaps []*model.ScoreSnapshot
	)
	g := new(errgroup.Group)
	g.SetLimit(r.cfg.Concurrency)

	for i, id := range ids {
		if i > 0 && r.cfg.ThrottleEvery > 0 && r.cfg.ThrottleDelay > 0 && i%r.cfg.ThrottleEvery == 0 {
			_ = r.sleep(ctx, r.cfg.ThrottleDelay)
		}
		if ctx.Err() != nil {
			mu.Lock()
			report.Skipped = append(report.Skipped, ids[i:]...)
			mu.Unlock()
			break
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				report.Skipped = append(report.Skipped, id)
				mu.Unlock()
				return nil
			}
			sctx, cancel := r.subjectContext(ctx)
			snap, err := r.scorer.Score(sctx, id)
			cancel()
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Errors[id] = err.Error()
				zap.L().Error("batch: subject failed",
					zap.String("subject_id", id),
					zap.String("kind", string(model.KindOf(err))),
					zap.Error(err),
				)
				return nil
			}
			report.Processed++
			snaps = append(snaps, snap)
			return nil
		})
	}
	_ = g.Wait()
	sort.Strings(report.Skipped)

	if r.writeBack != nil && len(snaps) > 0 {
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].SubjectID < snaps[j].SubjectID })
		wb, err := r.writeBack.WriteBack(context.WithoutCancel(ctx), snaps)
		report.WriteBack = &wb
		r.metrics.WriteBackFailed(len(wb.Failed))
		if err != nil {
			zap.L().Error("batch: score write-back failed", zap.Error(err))
		}
	}

	zap.L().Info("batch: complete",
		zap.Int("processed", report.Processed),
		zap.Int("errors", len(report.Errors)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return report
}

// subjectContext detaches from ctx cancellation and applies the per-subject
// deadline, if any.
func (r *BatchRunner) subjectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if r.cfg.SubjectTimeout <= 0 {
		return detached, func() {}
	}
	return context.WithTimeout(detached, r.cfg.SubjectTimeout)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
