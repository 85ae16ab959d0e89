package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/crm-scoring/internal/crm"
	"github.com/sells-group/crm-scoring/internal/model"
)

func TestBatch_IsolatesCollectionFailure(t *testing.T) {
	subjects := subjectMap{}
	var ids []string
	for i := 1; i <= 10; i++ {
		id := fmt.Sprintf("001%012d", i)
		subjects[id] = account(id)
		ids = append(ids, id)
	}
	failing := ids[4]
	f := newFixture(t, subjects, accountProviders{failTickets: map[string]bool{failing: true}}, nil)

	report := NewBatchRunner(f.engine, BatchConfig{Concurrency: 3}).Run(context.Background(), ids)

	assert.Equal(t, 9, report.Processed)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[failing], "collection error")
	assert.Equal(t, len(ids), report.Processed+len(report.Errors))
	assert.Empty(t, report.Skipped)

	persisted := 0
	for _, id := range ids {
		snap, err := f.store.GetLatestBySubject(context.Background(), id)
		require.NoError(t, err)
		if snap != nil {
			persisted++
		}
	}
	assert.Equal(t, 9, persisted)
}

type fakeScorer struct {
	mu     sync.Mutex
	calls  map[string]int
	fail   map[string]error
	onCall func(id string)
}

func (s *fakeScorer) Score(_ context.Context, id string) (*model.ScoreSnapshot, error) {
	if s.onCall != nil {
		s.onCall(id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[id]++
	if err := s.fail[id]; err != nil {
		return nil, err
	}
	return &model.ScoreSnapshot{SubjectID: id, SubjectKind: model.SubjectAccount, OverallScore: 70}, nil
}

func TestBatch_DedupesIDs(t *testing.T) {
	s := &fakeScorer{}
	report := NewBatchRunner(s, BatchConfig{Concurrency: 4}).Run(context.Background(), []string{"001a", "001b", "001a", "", "001b"})

	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, map[string]int{"001a": 1, "001b": 1}, s.calls)
}

func TestBatch_ErrorsCarryMessage(t *testing.T) {
	s := &fakeScorer{fail: map[string]error{
		"001b": model.NewError(model.ErrPersistence, "001b", errors.New("disk full")),
	}}
	report := NewBatchRunner(s, BatchConfig{}).Run(context.Background(), []string{"001a", "001b"})

	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, "persistence error for 001b: disk full", report.Errors["001b"])
}

func TestBatch_CancellationSkipsUnstarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var started atomic.Int32
	s := &fakeScorer{onCall: func(string) {
		if started.Add(1) == 2 {
			cancel()
		}
	}}
	ids := []string{"001a", "001b", "001c", "001d", "001e"}
	report := NewBatchRunner(s, BatchConfig{Concurrency: 1}).Run(ctx, ids)

	assert.Equal(t, 2, report.Processed, "in-flight subjects finish")
	assert.Empty(t, report.Errors)
	assert.Equal(t, []string{"001c", "001d", "001e"}, report.Skipped)
	for _, id := range report.Skipped {
		assert.Zero(t, s.calls[id])
	}
}

func TestBatch_InFlightContextNotCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sawCancelled atomic.Bool
	scorer := scorerFunc(func(ctx context.Context, id string) (*model.ScoreSnapshot, error) {
		cancel()
		sawCancelled.Store(ctx.Err() != nil)
		return &model.ScoreSnapshot{SubjectID: id}, nil
	})
	report := NewBatchRunner(scorer, BatchConfig{Concurrency: 1}).Run(ctx, []string{"001a", "001b"})

	assert.Equal(t, 1, report.Processed)
	assert.False(t, sawCancelled.Load())
	assert.Equal(t, []string{"001b"}, report.Skipped)
}

func TestBatch_SubjectTimeout(t *testing.T) {
	scorer := scorerFunc(func(ctx context.Context, id string) (*model.ScoreSnapshot, error) {
		if id == "001slow" {
			<-ctx.Done()
			return nil, model.NewError(model.ErrCollection, id, ctx.Err())
		}
		if _, ok := ctx.Deadline(); !ok {
			return nil, errors.New("no deadline")
		}
		return &model.ScoreSnapshot{SubjectID: id}, nil
	})
	r := NewBatchRunner(scorer, BatchConfig{Concurrency: 2, SubjectTimeout: 20 * time.Millisecond})

	report := r.Run(context.Background(), []string{"001fast", "001slow"})
	assert.Equal(t, 1, report.Processed)
	require.Contains(t, report.Errors, "001slow")
	assert.Contains(t, report.Errors["001slow"], context.DeadlineExceeded.Error())
}

func TestBatch_ZeroSubjectTimeoutHasNoDeadline(t *testing.T) {
	var hadDeadline atomic.Bool
	scorer := scorerFunc(func(ctx context.Context, id string) (*model.ScoreSnapshot, error) {
		_, ok := ctx.Deadline()
		hadDeadline.Store(ok)
		return &model.ScoreSnapshot{SubjectID: id}, nil
	})
	report := NewBatchRunner(scorer, BatchConfig{Concurrency: 1}).Run(context.Background(), []string{"001a"})
	assert.Equal(t, 1, report.Processed)
	assert.False(t, hadDeadline.Load())
}

func TestBatch_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &fakeScorer{}
	report := NewBatchRunner(s, BatchConfig{}).Run(ctx, []string{"001b", "001a"})
	assert.Zero(t, report.Processed)
	assert.Equal(t, []string{"001a", "001b"}, report.Skipped)
	assert.Empty(t, s.calls)
}

type scorerFunc func(ctx context.Context, id string) (*model.ScoreSnapshot, error)

func (f scorerFunc) Score(ctx context.Context, id string) (*model.ScoreSnapshot, error) { return f(ctx, id) }

func TestBatch_Throttles(t *testing.T) {
	r := NewBatchRunner(&fakeScorer{}, BatchConfig{Concurrency: 2, ThrottleEvery: 3, ThrottleDelay: time.Second})
	var pauses int
	r.sleep = func(context.Context, time.Duration) error { pauses++; return nil }

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("001%d", i)
	}
	report := r.Run(context.Background(), ids)

	assert.Equal(t, 10, report.Processed)
	assert.Equal(t, 3, pauses)
}

type recordingWriteBack struct {
	snaps []*model.ScoreSnapshot
}

func (w *recordingWriteBack) WriteBack(_ context.Context, snaps []*model.ScoreSnapshot) (crm.WriteBackReport, error) {
	w.snaps = snaps
	return crm.WriteBackReport{Updated: len(snaps) - 1, Failed: map[string]string{snaps[0].SubjectID: "locked"}}, nil
}

func TestBatch_WriteBack(t *testing.T) {
	wb := &recordingWriteBack{}
	s := &fakeScorer{fail: map[string]error{"001c": errors.New("boom")}}
	report := NewBatchRunner(s, BatchConfig{Concurrency: 3}, WithWriteBack(wb)).Run(context.Background(), []string{"001b", "001a", "001c"})

	require.Len(t, wb.snaps, 2)
	assert.Equal(t, "001a", wb.snaps[0].SubjectID)
	assert.Equal(t, "001b", wb.snaps[1].SubjectID)
	require.NotNil(t, report.WriteBack)
	assert.Equal(t, 1, report.WriteBack.Updated)
	assert.Equal(t, "locked", report.WriteBack.Failed["001a"])
}
