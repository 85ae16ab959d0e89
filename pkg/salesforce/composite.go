package salesforce

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// maxBatchSize is the Salesforce Collections API limit per request.
const maxBatchSize = 200

// RecordUpdate holds a record ID and the fields to set on it.
type RecordUpdate struct {
	ID     string
	Fields map[string]any
}

// BulkUpdate splits updates into batches of 200 and sends each through
// UpdateCollection. Results from batches sent before a failure are returned
// with the error.
func BulkUpdate(ctx context.Context, c Client, sObject string, updates []RecordUpdate) ([]CollectionResult, error) {
	if len(updates) == 0 {
		return nil, nil
	}

	var all []CollectionResult
	for start := 0; start < len(updates); start += maxBatchSize {
		end := min(start+maxBatchSize, len(updates))

		records := make([]CollectionRecord, 0, end-start)
		for _, u := range updates[start:end] {
			records = append(records, CollectionRecord(u))
		}

		results, err := c.UpdateCollection(ctx, sObject, records)
		if err != nil {
			return all, eris.Wrap(err, fmt.Sprintf("sf: bulk update %s batch %d-%d", sObject, start, end))
		}
		all = append(all, results...)
	}
	return all, nil
}

// Failed returns the results that did not succeed.
func Failed(results []CollectionResult) []CollectionResult {
	var out []CollectionResult
	for _, r := range results {
		if !r.Success {
			out = append(out, r)
		}
	}
	return out
}
