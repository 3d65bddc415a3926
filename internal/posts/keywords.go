package posts

import (
	"context"
	"time"

	"agentx/internal/apperr"
)

// CollectOptions drives a multi-keyword collection.
type CollectOptions struct {
	Keywords             []string
	MaxResultsPerKeyword int // default 100
	MinLikes             int
	Language             string
	StartTime            time.Time
	EndTime              time.Time
}

// KeywordCount is the raw hit count of one keyword, in input order.
type KeywordCount struct {
	Keyword string
	Count   int
	Err     error
}

// CollectResult aggregates a collection.
type CollectResult struct {
	Tweets         []Tweet
	TotalCollected int
	PerKeyword     []KeywordCount
	// ByKeyword sums PerKeyword by keyword.
	ByKeyword         map[string]int
	DuplicatesRemoved int
}

// CollectByKeywords searches each keyword in order and merges the results,
// keeping the first occurrence of every tweet id. A failing keyword counts
// as zero results; only context cancellation aborts the run.
func (c *Collector) CollectByKeywords(ctx context.Context, opts CollectOptions) (CollectResult, error) {
	if len(opts.Keywords) == 0 {
		return CollectResult{}, apperr.Validation("keywords", "At least one keyword is required")
	}
	perKeyword := opts.MaxResultsPerKeyword
	if perKeyword <= 0 {
		perKeyword = 100
	}
	res := CollectResult{
		PerKeyword: make([]KeywordCount, 0, len(opts.Keywords)),
		ByKeyword:  make(map[string]int, len(opts.Keywords)),
	}
	seen := make(map[string]struct{})
	sum := 0

	for i, kw := range opts.Keywords {
		tweets, err := c.SearchAll(ctx, kw, SearchOptions{
			MaxResults: perKeyword,
			MinLikes:   opts.MinLikes,
			Language:   opts.Language,
			StartTime:  opts.StartTime,
			EndTime:    opts.EndTime,
		}, perKeyword)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			c.logger.Warn("keyword collection failed", "keyword", kw, "error", err.Error())
			res.PerKeyword = append(res.PerKeyword, KeywordCount{Keyword: kw, Err: err})
			res.ByKeyword[kw] += 0
		} else {
			res.PerKeyword = append(res.PerKeyword, KeywordCount{Keyword: kw, Count: len(tweets)})
			res.ByKeyword[kw] += len(tweets)
			sum += len(tweets)
			for _, t := range tweets {
				if _, dup := seen[t.ID]; dup {
					continue
				}
				seen[t.ID] = struct{}{}
				res.Tweets = append(res.Tweets, t)
			}
		}
		if i < len(opts.Keywords)-1 {
			if err := c.sleep(ctx, c.keywordDelay); err != nil {
				return res, err
			}
		}
	}
	res.TotalCollected = len(res.Tweets)
	res.DuplicatesRemoved = sum - res.TotalCollected
	c.logger.Info("keyword collection finished",
		"keywords", len(opts.Keywords),
		"collected", res.TotalCollected,
		"duplicates_removed", res.DuplicatesRemoved,
	)
	return res, nil
}
