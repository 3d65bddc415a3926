package main

import (
	"context"
	"errors"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"agentx/internal/analytics"
	"agentx/internal/apperr"
	"agentx/internal/contentfilter"
	"agentx/internal/ingest"
	"agentx/internal/jobs"
	"agentx/internal/metrics"
	"agentx/internal/posts"
	"agentx/internal/publish"
	"agentx/internal/ratelimit"
	"agentx/internal/store"
	"agentx/internal/theme"
)

// SearchCmd runs a recent search.
type SearchCmd struct {
	Query     string `arg:"" help:"Search query."`
	Max       int    `help:"Maximum posts to return." default:"10"`
	MinLikes  int    `name:"min-likes" help:"Only posts with at least this many likes."`
	Lang      string `help:"Language code filter."`
	Replies   bool   `help:"Include replies."`
	Retweets  bool   `help:"Include retweets."`
	Relevancy bool   `help:"Sort by relevancy instead of recency."`
	Top       int    `help:"Print only the N most engaging posts."`
	Hourly    bool   `help:"Add an hourly engagement breakdown."`
}

func (c *SearchCmd) Run(cli *CLI) error {
	return cli.run("search", func(ctx context.Context, a *app) error {
		api, err := a.xClient(ctx)
		if err != nil {
			return err
		}
		opts := posts.SearchOptions{
			MinLikes:        c.MinLikes,
			Language:        c.Lang,
			IncludeReplies:  c.Replies,
			IncludeRetweets: c.Retweets,
		}
		if c.Relevancy {
			opts.SortOrder = "relevancy"
		}
		tweets, err := a.collector(api).SearchAll(ctx, c.Query, opts, c.Max)
		if err != nil {
			return err
		}
		if c.Top > 0 {
			tweets = analytics.TopTweets(tweets, c.Top)
		}
		out := searchView{Query: posts.BuildQuery(c.Query, opts), Tweets: tweets, Summary: analytics.Summarize(tweets)}
		if c.Hourly {
			out.Hourly = analytics.Hourly(tweets)
		}
		return a.print(out)
	})
}

type searchView struct {
	Query   string                 `json:"query"`
	Tweets  []posts.Tweet          `json:"tweets"`
	Summary analytics.Summary      `json:"summary"`
	Hourly  []analytics.HourBucket `json:"hourly,omitempty"`
}

// MetricsCmd looks up engagement metrics.
type MetricsCmd struct {
	IDs []string `arg:"" name:"id" help:"Post ids or URLs (up to 100)."`
}

func (c *MetricsCmd) Run(cli *CLI) error {
	return cli.run("metrics", func(ctx context.Context, a *app) error {
		api, err := a.xClient(ctx)
		if err != nil {
			return err
		}
		ids := tweetIDs(c.IDs)
		col := a.collector(api)
		if len(ids) == 1 {
			m, err := col.Metrics(ctx, ids[0])
			if err != nil {
				return err
			}
			return a.print(m)
		}
		ms, err := col.MetricsBatch(ctx, ids)
		if err != nil {
			return err
		}
		return a.print(ms)
	})
}

// CollectCmd collects one keyword, or every configured keyword since the
// last run.
type CollectCmd struct {
	Keyword    string `help:"Collect a single keyword instead of the configured list."`
	MaxResults int    `name:"max-results" help:"Posts per keyword (1-100)."`
	MinLikes   int    `name:"min-likes" help:"Override collection.minLikes." default:"-1"`
	Lang       string `help:"Override collection.language."`
}

func (c *CollectCmd) Run(cli *CLI) error {
	return cli.run("collect", func(ctx context.Context, a *app) error {
		api, err := a.xClient(ctx)
		if err != nil {
			return err
		}
		col := a.collector(api)
		in, err := a.ingester()
		if err != nil {
			return err
		}
		minLikes := a.cfg.Collection.MinLikes
		if c.MinLikes >= 0 {
			minLikes = c.MinLikes
		}
		lang := a.cfg.Collection.Language
		if c.Lang != "" {
			lang = c.Lang
		}
		if c.Keyword != "" {
			res, err := in.Collect(ctx, col, a.cfg.Account.UserID, ingest.Request{
				Keyword:    c.Keyword,
				MaxResults: c.MaxResults,
				MinLikes:   minLikes,
				Language:   lang,
			})
			if err != nil {
				return err
			}
			return a.print(res)
		}
		job, err := a.collectionJob(col, in)
		if err != nil {
			return err
		}
		job.Options.MinLikes, job.Options.Language = minLikes, lang
		if c.MaxResults > 0 {
			job.Options.MaxResultsPerKeyword = c.MaxResults
		}
		rep, err := job.RunOnce(ctx)
		if err != nil {
			return err
		}
		return a.print(reportView(rep))
	})
}

func (a *app) collectionJob(col *posts.Collector, in *ingest.Ingester) (*jobs.Collection, error) {
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	cc := a.cfg.Collection
	return &jobs.Collection{
		Collector: col,
		Ingester:  in,
		Cursors:   db,
		UserID:    a.cfg.Account.UserID,
		Options: posts.CollectOptions{
			Keywords:             cc.Keywords,
			MaxResultsPerKeyword: cc.MaxResultsPerKeyword,
			MinLikes:             cc.MinLikes,
			Language:             cc.Language,
		},
		Logger: a.logger,
	}, nil
}

type keywordView struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

func reportView(r jobs.Report) any {
	kws := make([]keywordView, 0, len(r.Collected.PerKeyword))
	for _, k := range r.Collected.PerKeyword {
		v := keywordView{Keyword: k.Keyword, Count: k.Count}
		if k.Err != nil {
			v.Error = k.Err.Error()
		}
		kws = append(kws, v)
	}
	return struct {
		Since             time.Time     `json:"since"`
		TotalCollected    int           `json:"totalCollected"`
		DuplicatesRemoved int           `json:"duplicatesRemoved"`
		Keywords          []keywordView `json:"keywords"`
		Saved             ingest.Result `json:"saved"`
	}{r.Since, r.Collected.TotalCollected, r.Collected.DuplicatesRemoved, kws, r.Saved}
}

// ServeCmd runs the collection loop next to the metrics endpoint.
type ServeCmd struct {
	Interval time.Duration `help:"Override collection.interval."`
	Addr     string        `help:"Override metrics.addr."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	return cli.run("serve", func(ctx context.Context, a *app) error {
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		theme.PrintBanner(a.out)

		api, err := a.xClient(ctx)
		if err != nil {
			return err
		}
		in, err := a.ingester()
		if err != nil {
			return err
		}
		job, err := a.collectionJob(a.collector(api), in)
		if err != nil {
			return err
		}
		interval := a.cfg.Collection.Interval
		if c.Interval > 0 {
			interval = c.Interval
		}
		addr := a.cfg.Metrics.Addr
		if c.Addr != "" {
			addr = c.Addr
		}

		if interval <= 0 {
			return apperr.Validation("interval", "Collection interval must be positive")
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		errc := make(chan error, 1)
		go func() {
			err := metrics.Serve(ctx, addr)
			if err != nil {
				cancel()
			}
			errc <- err
		}()
		a.logger.Info("serving", "interval", interval.String(), "metrics_addr", addr, "keywords", job.Options.Keywords)
		if err := job.RunLoop(ctx, interval); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("collection loop ended", "error", err.Error())
		}
		cancel()
		return <-errc
	})
}

// PostsCmd lists what collection stored.
type PostsCmd struct {
	Limit int `help:"Maximum posts to list." default:"20"`
}

func (c *PostsCmd) Run(cli *CLI) error {
	return cli.run("posts", func(ctx context.Context, a *app) error {
		db, err := a.store()
		if err != nil {
			return err
		}
		list, err := db.ListPosts(ctx, a.cfg.Account.UserID, c.Limit)
		if err != nil {
			return err
		}
		total, err := db.CountPosts(ctx, a.cfg.Account.UserID)
		if err != nil {
			return err
		}
		return a.print(struct {
			Total int                   `json:"total"`
			Posts []store.CollectedPost `json:"posts"`
		}{total, list})
	})
}

// ValidateCmd checks text offline.
type ValidateCmd struct {
	Text string `arg:"" help:"Post text."`
}

func (c *ValidateCmd) Run(cli *CLI) error {
	return cli.run("validate", func(_ context.Context, a *app) error {
		v := publish.ValidateText(c.Text)
		return a.print(struct {
			Valid  bool                 `json:"valid"`
			Length int                  `json:"length"`
			Errors []string             `json:"errors,omitempty"`
			Filter contentfilter.Result `json:"filter"`
		}{v.Valid, v.Length, v.Errors, contentfilter.New().Check(c.Text)})
	})
}

// RatelimitCmd reports bucket state without consuming tokens.
type RatelimitCmd struct {
	Reset string `help:"Reset the bucket of this endpoint for the current identity."`
	Clear bool   `help:"Reset every bucket."`
}

type bucketView struct {
	Endpoint   string `json:"endpoint"`
	Identifier string `json:"identifier"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	ResetIn    string `json:"resetIn"`
}

func (c *RatelimitCmd) Run(cli *CLI) error {
	return cli.run("ratelimit", func(ctx context.Context, a *app) error {
		client, err := a.xClient(ctx)
		if err != nil {
			return err
		}
		m := client.RateLimiter()
		id := client.Identifier()
		switch {
		case c.Clear:
			if err := m.ClearAll(ctx); err != nil {
				return err
			}
		case c.Reset != "":
			if err := m.Reset(ctx, c.Reset, id); err != nil {
				return err
			}
		}
		out, err := limiterReport(ctx, m, id)
		if err != nil {
			return err
		}
		return a.print(out)
	})
}

type limiterView struct {
	Identifier string       `json:"identifier"`
	FailOpen   bool         `json:"failOpen"`
	Buckets    []bucketView `json:"buckets"`
}

func limiterReport(ctx context.Context, m *ratelimit.Manager, id string) (limiterView, error) {
	out := limiterView{Identifier: id, FailOpen: m.FailOpen()}
	for _, p := range m.Policies() {
		if p.Identifier != "" && p.Identifier != id {
			continue
		}
		st, err := m.Status(ctx, p.Endpoint, id)
		if err != nil {
			return out, err
		}
		out.Buckets = append(out.Buckets, bucketView{
			Endpoint: p.Endpoint, Identifier: id,
			Limit: st.Limit, Remaining: st.Remaining, ResetIn: st.ResetIn.Round(time.Second).String(),
		})
	}
	return out, nil
}

// tweetIDs accepts bare ids and status URLs.
func tweetIDs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if id := publish.ExtractTweetID(s); id != "" {
			s = id
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
