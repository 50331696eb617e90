package extract

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ProgressFunc is called after each URL of a batch.
type ProgressFunc func(done, total int, r Result)

// ExtractMultiple extracts URLs sequentially, pausing e.Delay between
// requests. When ctx is cancelled the remaining URLs are reported as failed.
func (e *Extractor) ExtractMultiple(ctx context.Context, urls []string, onProgress ProgressFunc) []Result {
	results := make([]Result, 0, len(urls))
	for i, u := range urls {
		if i > 0 && e.Delay > 0 {
			if err := e.pause(ctx, e.Delay); err != nil {
				return appendCancelled(results, urls[i:], err)
			}
		}
		if err := ctx.Err(); err != nil {
			return appendCancelled(results, urls[i:], err)
		}

		r := e.Extract(ctx, u)
		results = append(results, r)
		if onProgress != nil {
			onProgress(len(results), len(urls), r)
		}
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	e.logger().Debug("batch extraction finished",
		zap.Int("total", len(urls)),
		zap.Int("succeeded", succeeded))
	return results
}

func (e *Extractor) pause(ctx context.Context, d time.Duration) error {
	if e.sleep != nil {
		return e.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func appendCancelled(results []Result, rest []string, err error) []Result {
	for _, u := range rest {
		results = append(results, Result{URL: u, Success: false, Error: err.Error()})
	}
	return results
}
