package delivery

import (
	"context"
	"sync"

	"github.com/datagoal/datagoal/internal/models"
)

// BatchResult is the independent outcome for one run in a batch operation.
type BatchResult struct {
	ID      string
	Skipped bool // excluded by the eligibility filter, not an error
	Err     error
}

// BatchSend applies Send independently to each eligible id. Runs outside the
// sendable statuses are silently excluded. Requests are issued concurrently
// and joined; per-id failures never abort the batch.
func (c *Controller) BatchSend(ctx context.Context, ids []string, recipients []string, opts SendOpts) []BatchResult {
	return c.batch(ids, func(run *models.DeliveryRun) bool {
		switch run.Status {
		case StatusSuccess:
			return true
		case StatusReviewPending:
			return opts.ApproveDespiteReview
		default:
			return false
		}
	}, func(id string) error {
		_, err := c.sendLocked(ctx, id, recipients, opts)
		return err
	})
}

// BatchRetry applies Retry independently to each eligible id. Only failed
// runs are eligible; everything else is silently excluded.
func (c *Controller) BatchRetry(ctx context.Context, ids []string) []BatchResult {
	return c.batch(ids, func(run *models.DeliveryRun) bool {
		return run.Status == StatusFailed
	}, func(id string) error {
		_, err := c.retryLocked(ctx, id)
		return err
	})
}

// batch filters ids by eligibility, then runs op concurrently per id under
// the in-flight guard. Results preserve input order.
func (c *Controller) batch(ids []string, eligible func(*models.DeliveryRun) bool, op func(id string) error) []BatchResult {
	results := make([]BatchResult, len(ids))
	var wg sync.WaitGroup

	for i, id := range ids {
		results[i].ID = id

		run, err := Get(c.db, id)
		if err != nil {
			results[i].Err = err
			continue
		}
		if !eligible(run) {
			results[i].Skipped = true
			continue
		}

		if err := c.acquire(id); err != nil {
			results[i].Err = err
			continue
		}

		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer c.release(id)
			results[i].Err = op(id)
		}(i, id)
	}

	wg.Wait()
	return results
}
