package jobs

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"agentx/internal/ingest"
	"agentx/internal/metrics"
	"agentx/internal/posts"
)

const cursorKey = "collect:last_run"

// recent search only reaches back seven days.
const searchHorizon = 7*24*time.Hour - time.Minute

// CursorStore remembers when the last run finished.
type CursorStore interface {
	SaveCursor(ctx context.Context, key, value string) error
	LoadCursor(ctx context.Context, key string) (string, bool, error)
}

// Collection is a repeatable keyword collection for one user.
type Collection struct {
	Collector *posts.Collector
	Ingester  *ingest.Ingester
	Cursors   CursorStore
	UserID    string
	Options   posts.CollectOptions
	Logger    *slog.Logger
	Now       func() time.Time
}

// Report summarises one run.
type Report struct {
	Since     time.Time
	Collected posts.CollectResult
	Saved     ingest.Result
}

func (c *Collection) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

func (c *Collection) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

// RunOnce collects posts newer than the previous run (or the search
// horizon) and saves them. The cursor only advances when every keyword
// succeeded.
func (c *Collection) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	metrics.CollectionRuns.Inc()
	defer metrics.ObserveCollectionDuration(start)

	now := c.now()
	since := now.Add(-searchHorizon)
	v, ok, err := c.Cursors.LoadCursor(ctx, cursorKey)
	switch {
	case err != nil:
		c.logger().Warn("cursor unreadable, collecting from search horizon", "key", cursorKey, "error", err.Error())
	case ok:
		ts, perr := time.Parse(time.RFC3339Nano, v)
		if perr != nil {
			c.logger().Warn("cursor malformed, collecting from search horizon", "key", cursorKey, "value", v)
		} else if ts.After(since) {
			since = ts
		}
	}
	opts := c.Options
	opts.StartTime = since
	rep := Report{Since: since}

	found, err := c.Collector.CollectByKeywords(ctx, opts)
	if err != nil {
		metrics.CollectionErrors.Inc()
		return rep, err
	}
	rep.Collected = found
	keyword := ""
	if len(opts.Keywords) == 1 {
		keyword = opts.Keywords[0]
	}
	saved, err := c.Ingester.Save(ctx, c.UserID, keyword, found.Tweets)
	rep.Saved = saved
	if err != nil {
		metrics.CollectionErrors.Inc()
		return rep, err
	}
	failed := 0
	for _, kc := range found.PerKeyword {
		if kc.Err != nil {
			failed++
		}
	}
	// A failed keyword is retried over the same window next run.
	if failed == 0 {
		if err := c.Cursors.SaveCursor(ctx, cursorKey, now.Format(time.RFC3339Nano)); err != nil {
			c.logger().Warn("could not save collection cursor", "error", err.Error())
		}
	}
	c.logger().Info("collection run finished",
		"keywords", strings.Join(opts.Keywords, ","),
		"since", since.Format(time.RFC3339),
		"collected", found.TotalCollected,
		"duplicates_removed", found.DuplicatesRemoved,
		"saved", saved.Saved,
		"already_stored", saved.Duplicates,
		"failed_keywords", failed)
	return rep, nil
}

// RunLoop runs RunOnce immediately and then on every tick until ctx is
// cancelled. Failed runs are logged and do not stop the loop.
func (c *Collection) RunLoop(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
		c.logger().Error("collection run failed", "error", err.Error())
	}
	for {
		select {
		case <-ctx.Done():
			c.logger().Info("collection loop stopped")
			return ctx.Err()
		case <-t.C:
			if _, err := c.RunOnce(ctx); err != nil && ctx.Err() == nil {
				c.logger().Error("collection run failed", "error", err.Error())
			}
		}
	}
}
