// Package warehouse reads web engagement, payment and product usage
// aggregates from the Postgres activity warehouse.
package warehouse

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/crm-scoring/internal/db"
	"github.com/sells-group/crm-scoring/internal/model"
	"github.com/sells-group/crm-scoring/internal/resilience"
)

// maxPageViewURLs bounds the distinct URLs returned for intent matching.
const maxPageViewURLs = 500

// Source implements the web, payment and usage providers.
type Source struct {
	pool  db.Pool
	retry resilience.RetryConfig
}

// New returns a Source over pool. Transient query failures are retried
// with retry.
func New(pool db.Pool, retry resilience.RetryConfig) *Source {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("warehouse", "query")
	}
	return &Source{pool: pool, retry: retry}
}

const webActivitySQL = `SELECT
	(SELECT count(*) FROM web_sessions WHERE subject_id = $1 AND started_at >= $2 AND started_at < $3),
	(SELECT count(*) FROM web_page_views WHERE subject_id = $1 AND viewed_at >= $2 AND viewed_at < $3),
	(SELECT count(*) FROM web_form_submissions WHERE subject_id = $1 AND submitted_at >= $2 AND submitted_at < $3),
	(SELECT count(*) FROM chat_conversations WHERE subject_id = $1 AND started_at >= $2 AND started_at < $3),
	(SELECT max(started_at) FROM web_sessions WHERE subject_id = $1 AND started_at < $3)`

const pageViewURLsSQL = `SELECT DISTINCT url FROM web_page_views
	WHERE subject_id = $1 AND viewed_at >= $2 AND viewed_at < $3
	ORDER BY url LIMIT $4`

// WebActivity returns engagement counts in w plus the distinct viewed URLs.
// The last session time looks back past the window start.
func (s *Source) WebActivity(ctx context.Context, subjectID string, w model.Window) (model.WebActivity, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (model.WebActivity, error) {
		var out model.WebActivity
		var sessions, views, forms, chats int64
		var last *time.Time

		err := s.pool.QueryRow(ctx, webActivitySQL, subjectID, w.Start, w.End).
			Scan(&sessions, &views, &forms, &chats, &last)
		if err != nil {
			return out, eris.Wrap(err, "warehouse: web activity")
		}
		out.Sessions = int(sessions)
		out.PageViews = int(views)
		out.FormSubmissions = int(forms)
		out.ChatConversations = int(chats)
		if last != nil {
			t := last.UTC()
			out.LastSessionAt = &t
		}

		rows, err := s.pool.Query(ctx, pageViewURLsSQL, subjectID, w.Start, w.End, maxPageViewURLs)
		if err != nil {
			return out, eris.Wrap(err, "warehouse: page view urls")
		}
		defer rows.Close()
		for rows.Next() {
			var url string
			if err := rows.Scan(&url); err != nil {
				return out, eris.Wrap(err, "warehouse: scan page view url")
			}
			out.PageViewURLs = append(out.PageViewURLs, url)
		}
		return out, eris.Wrap(rows.Err(), "warehouse: iterate page view urls")
	})
}

const paymentHistorySQL = `SELECT
	count(*),
	count(*) FILTER (WHERE (paid_at IS NULL AND due_at < $2) OR paid_at > due_at)
	FROM invoices WHERE account_id = $1 AND due_at < $2`

// PaymentHistory counts every invoice due before the window end, and how
// many of them were paid late or are overdue.
func (s *Source) PaymentHistory(ctx context.Context, subjectID string, w model.Window) (model.PaymentHistory, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (model.PaymentHistory, error) {
		var total, late int64
		if err := s.pool.QueryRow(ctx, paymentHistorySQL, subjectID, w.End).Scan(&total, &late); err != nil {
			return model.PaymentHistory{}, eris.Wrap(err, "warehouse: payment history")
		}
		return model.PaymentHistory{Total: int(total), Late: int(late)}, nil
	})
}

const productUsageSQL = `SELECT
	count(DISTINCT user_id),
	count(DISTINCT session_id),
	count(DISTINCT feature),
	(SELECT count(*) FROM product_features WHERE active)
	FROM product_events
	WHERE account_id = $1 AND occurred_at >= $2 AND occurred_at < $3`

// ProductUsage returns active users, sessions and adopted features in w
// against the size of the active feature catalog.
func (s *Source) ProductUsage(ctx context.Context, subjectID string, w model.Window) (model.ProductUsage, error) {
	return resilience.DoVal(ctx, s.retry, func(ctx context.Context) (model.ProductUsage, error) {
		var users, sessions, used, total int64
		err := s.pool.QueryRow(ctx, productUsageSQL, subjectID, w.Start, w.End).
			Scan(&users, &sessions, &used, &total)
		if err != nil {
			return model.ProductUsage{}, eris.Wrap(err, "warehouse: product usage")
		}
		return model.ProductUsage{
			UniqueUsers:   int(users),
			Sessions:      int(sessions),
			FeaturesUsed:  int(used),
			TotalFeatures: int(total),
		}, nil
	})
}
