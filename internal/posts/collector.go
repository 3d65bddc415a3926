// Package posts searches, looks up and collects tweets through the X API
// access layer.
package posts

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/retry"
	"agentx/internal/xclient"
)

const (
	tweetFields = "id,text,author_id,created_at,public_metrics,entities,lang,conversation_id"
	userFields  = "id,name,username,profile_image_url,verified,verified_type"

	// MaxLookupIDs is the per-request id cap of tweet lookup.
	MaxLookupIDs = 100
	// DefaultMaxTotal caps SearchAll when the caller passes no cap.
	DefaultMaxTotal = 1000
)

// SearchOptions narrows a recent search.
type SearchOptions struct {
	MaxResults      int // per page, clamped to 10..100; default 100
	StartTime       time.Time
	EndTime         time.Time
	SinceID         string
	UntilID         string
	SortOrder       string // recency (default) or relevancy
	NextToken       string
	MinLikes        int
	MinRetweets     int
	Language        string
	IncludeReplies  bool
	IncludeRetweets bool
}

// SearchResult is one page of search results.
type SearchResult struct {
	Tweets []Tweet
	Users  []User
	Meta   SearchMeta
}

// Collector runs read operations against the X API.
type Collector struct {
	api          xclient.API
	logger       *slog.Logger
	pageDelay    time.Duration
	keywordDelay time.Duration
	sleep        retry.SleepFunc
}

type CollectorOption func(*Collector)

// WithPageDelay sets the pause between search pages (default 1s).
func WithPageDelay(d time.Duration) CollectorOption { return func(c *Collector) { c.pageDelay = d } }

// WithKeywordDelay sets the pause between keywords (default 2s).
func WithKeywordDelay(d time.Duration) CollectorOption {
	return func(c *Collector) { c.keywordDelay = d }
}

func WithLogger(l *slog.Logger) CollectorOption {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithSleep replaces the pacing sleep.
func WithSleep(fn retry.SleepFunc) CollectorOption {
	return func(c *Collector) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func NewCollector(api xclient.API, opts ...CollectorOption) *Collector {
	c := &Collector{
		api:          api,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		pageDelay:    time.Second,
		keywordDelay: 2 * time.Second,
		sleep:        retry.Sleep,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BuildQuery appends the engagement, language and reply/retweet filters
// to query.
func BuildQuery(query string, opts SearchOptions) string {
	var b strings.Builder
	b.WriteString(query)
	if opts.MinLikes > 0 {
		b.WriteString(" min_faves:" + strconv.Itoa(opts.MinLikes))
	}
	if opts.MinRetweets > 0 {
		b.WriteString(" min_retweets:" + strconv.Itoa(opts.MinRetweets))
	}
	if opts.Language != "" {
		b.WriteString(" lang:" + opts.Language)
	}
	if !opts.IncludeReplies {
		b.WriteString(" -is:reply")
	}
	if !opts.IncludeRetweets {
		b.WriteString(" -is:retweet")
	}
	return b.String()
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func searchParams(query string, opts SearchOptions) url.Values {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 100
	}
	sortOrder := opts.SortOrder
	if sortOrder == "" {
		sortOrder = "recency"
	}
	p := url.Values{}
	p.Set("query", BuildQuery(query, opts))
	p.Set("max_results", strconv.Itoa(clamp(maxResults, 10, 100)))
	p.Set("sort_order", sortOrder)
	p.Set("tweet.fields", tweetFields)
	p.Set("user.fields", userFields)
	p.Set("expansions", "author_id")
	if !opts.StartTime.IsZero() {
		p.Set("start_time", opts.StartTime.UTC().Format(time.RFC3339))
	}
	if !opts.EndTime.IsZero() {
		p.Set("end_time", opts.EndTime.UTC().Format(time.RFC3339))
	}
	if opts.SinceID != "" {
		p.Set("since_id", opts.SinceID)
	}
	if opts.UntilID != "" {
		p.Set("until_id", opts.UntilID)
	}
	if opts.NextToken != "" {
		p.Set("next_token", opts.NextToken)
	}
	return p
}

// Search fetches one page of recent tweets matching query.
func (c *Collector) Search(ctx context.Context, query string, opts SearchOptions) (SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return SearchResult{}, apperr.Validation("query", "Search query is required")
	}
	resp, err := c.api.Get(ctx, "tweets/search/recent", searchParams(query, opts))
	if err != nil {
		return SearchResult{}, err
	}
	var raw struct {
		Data     []Tweet `json:"data"`
		Includes struct {
			Users []User `json:"users"`
		} `json:"includes"`
		Meta SearchMeta `json:"meta"`
	}
	if err := resp.Decode(&raw); err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Tweets: raw.Data, Users: raw.Includes.Users, Meta: raw.Meta}, nil
}

// SearchAll follows next_token until maxTotal tweets are gathered, a page
// comes back empty, or no token remains. Pages are spaced by the page delay.
func (c *Collector) SearchAll(ctx context.Context, query string, opts SearchOptions, maxTotal int) ([]Tweet, error) {
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotal
	}
	var out []Tweet
	opts.NextToken = ""
	for len(out) < maxTotal {
		opts.MaxResults = min(100, maxTotal-len(out))
		page, err := c.Search(ctx, query, opts)
		if err != nil {
			return out, err
		}
		out = append(out, page.Tweets...)
		if page.Meta.NextToken == "" || len(page.Tweets) == 0 {
			break
		}
		opts.NextToken = page.Meta.NextToken
		if len(out) >= maxTotal {
			break
		}
		if err := c.sleep(ctx, c.pageDelay); err != nil {
			return out, err
		}
	}
	if len(out) > maxTotal {
		out = out[:maxTotal]
	}
	return out, nil
}

// TweetsByIDs looks up to MaxLookupIDs tweets in one request.
func (c *Collector) TweetsByIDs(ctx context.Context, ids []string) ([]Tweet, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxLookupIDs {
		return nil, apperr.Validation("ids", "Maximum %d tweet IDs allowed per request", MaxLookupIDs)
	}
	p := url.Values{}
	p.Set("ids", strings.Join(ids, ","))
	p.Set("tweet.fields", tweetFields)
	p.Set("user.fields", userFields)
	p.Set("expansions", "author_id")
	resp, err := c.api.Get(ctx, "tweets", p)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Data []Tweet `json:"data"`
	}
	if err := resp.Decode(&raw); err != nil {
		return nil, err
	}
	return raw.Data, nil
}

// TweetByID returns nil, nil when the tweet does not exist.
func (c *Collector) TweetByID(ctx context.Context, id string) (*Tweet, error) {
	tweets, err := c.TweetsByIDs(ctx, []string{id})
	if err != nil {
		if xclient.IsResourceNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(tweets) == 0 {
		return nil, nil
	}
	return &tweets[0], nil
}

// Metrics returns the engagement metrics of one tweet.
func (c *Collector) Metrics(ctx context.Context, id string) (TweetMetrics, error) {
	t, err := c.TweetByID(ctx, id)
	if err != nil {
		return TweetMetrics{}, err
	}
	if t == nil {
		return TweetMetrics{}, apperr.New(apperr.KindNotFound, "Tweet not found")
	}
	return metricsOf(*t), nil
}

// MetricsBatch returns metrics for every tweet the lookup returns.
func (c *Collector) MetricsBatch(ctx context.Context, ids []string) ([]TweetMetrics, error) {
	tweets, err := c.TweetsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]TweetMetrics, 0, len(tweets))
	for _, t := range tweets {
		out = append(out, metricsOf(t))
	}
	return out, nil
}
