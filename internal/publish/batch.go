package publish

import (
	"context"
	"errors"
	"time"

	"agentx/internal/apperr"
)

// BatchResult is the outcome of one batch item.
type BatchResult struct {
	Success bool   `json:"success"`
	ID      string `json:"tweetId,omitempty"`
	URL     string `json:"url,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

func isCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// CreateBatch publishes texts one by one, pausing delay between items.
// Item failures are recorded in the results; only cancellation stops the
// batch, returning the results so far with the context error.
func (p *Publisher) CreateBatch(ctx context.Context, texts []string, delay time.Duration) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(texts))
	for i, text := range texts {
		c, err := p.Create(ctx, text, CreateOptions{})
		switch {
		case err == nil:
			results = append(results, BatchResult{Success: true, ID: c.ID, URL: c.URL})
		case isCancel(err) && ctx.Err() != nil:
			return results, ctx.Err()
		default:
			p.logger.Warn("batch create failed", "index", i, "error", err.Error())
			results = append(results, BatchResult{Error: err.Error(), Err: err})
		}
		if i < len(texts)-1 {
			if err := p.sleep(ctx, delay); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// DeleteBatch deletes ids one by one with the same semantics as CreateBatch.
func (p *Publisher) DeleteBatch(ctx context.Context, ids []string, delay time.Duration) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(ids))
	for i, id := range ids {
		err := p.Delete(ctx, id)
		switch {
		case err == nil:
			results = append(results, BatchResult{Success: true, ID: id})
		case isCancel(err) && ctx.Err() != nil:
			return results, ctx.Err()
		default:
			p.logger.Warn("batch delete failed", "tweet_id", id, "error", err.Error())
			results = append(results, BatchResult{ID: id, Error: err.Error(), Err: err})
		}
		if i < len(ids)-1 {
			if err := p.sleep(ctx, delay); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// ThreadResult is a possibly partial thread.
type ThreadResult struct {
	Posts []Created
	// FailedAt is the index of the text that failed, -1 when all were posted.
	FailedAt int
	Err      error
}

// Complete reports whether every text was posted.
func (r ThreadResult) Complete() bool { return r.FailedAt < 0 }

// CreateThread posts texts in order, each replying to the previous one.
// Every text is validated before anything is posted. The first failed post
// ends the thread; the posts created so far are returned with FailedAt set.
func (p *Publisher) CreateThread(ctx context.Context, texts []string, delay time.Duration) (ThreadResult, error) {
	if len(texts) == 0 {
		return ThreadResult{FailedAt: -1}, apperr.Validation("texts", "At least one tweet is required for a thread")
	}
	for i, t := range texts {
		if v := ValidateText(t); !v.Valid {
			return ThreadResult{FailedAt: -1}, apperr.Validation("texts", "Thread post %d: %s", i+1, v.Errors[0])
		}
	}
	res := ThreadResult{Posts: make([]Created, 0, len(texts)), FailedAt: -1}
	prev := ""
	for i, text := range texts {
		c, err := p.Create(ctx, text, CreateOptions{ReplyTo: prev})
		if err != nil {
			if isCancel(err) && ctx.Err() != nil {
				return res, ctx.Err()
			}
			p.logger.Warn("thread post failed", "index", i, "error", err.Error())
			res.FailedAt = i
			res.Err = err
			return res, nil
		}
		res.Posts = append(res.Posts, c)
		prev = c.ID
		if i < len(texts)-1 {
			if err := p.sleep(ctx, delay); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
