package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/xclient"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	path   string
	params url.Values
}

// fakeAPI answers GETs from a handler and records every call.
type fakeAPI struct {
	calls []call
	get   func(path string, params url.Values) (any, error)
}

func (f *fakeAPI) Get(_ context.Context, path string, params url.Values, _ ...xclient.CallOption) (*xclient.Response, error) {
	f.calls = append(f.calls, call{path: path, params: params})
	body, err := f.get(path, params)
	if err != nil {
		return nil, err
	}
	raw, _ := json.Marshal(body)
	return &xclient.Response{Status: 200, Data: raw}, nil
}

func (f *fakeAPI) Post(context.Context, string, any, ...xclient.CallOption) (*xclient.Response, error) {
	return nil, errors.New("unexpected post")
}

func (f *fakeAPI) Delete(context.Context, string, ...xclient.CallOption) (*xclient.Response, error) {
	return nil, errors.New("unexpected delete")
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func page(ids []string, next string) map[string]any {
	data := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		data = append(data, map[string]any{"id": id, "text": "tweet " + id})
	}
	meta := map[string]any{"result_count": len(ids)}
	if next != "" {
		meta["next_token"] = next
	}
	return map[string]any{"data": data, "meta": meta}
}

func TestBuildQueryNextJS(t *testing.T) {
	q := BuildQuery("Next.js", SearchOptions{MinLikes: 5, Language: "en"})
	assert.Equal(t, "Next.js min_faves:5 lang:en -is:reply -is:retweet", q)
	assert.True(t, strings.HasPrefix(q, "Next.js"))
}

func TestBuildQueryIncludes(t *testing.T) {
	q := BuildQuery("go", SearchOptions{MinRetweets: 2, IncludeReplies: true})
	assert.Equal(t, "go min_retweets:2 -is:retweet", q)
}

func TestSearchSendsParams(t *testing.T) {
	api := &fakeAPI{get: func(string, url.Values) (any, error) {
		return map[string]any{
			"data":     []map[string]any{{"id": "1", "text": "hello", "public_metrics": map[string]int{"like_count": 7, "impression_count": 100}}},
			"includes": map[string]any{"users": []map[string]any{{"id": "u1", "username": "gopher"}}},
			"meta":     map[string]any{"result_count": 1, "newest_id": "1", "oldest_id": "1"},
		}, nil
	}}
	c := NewCollector(api, WithSleep(noSleep))

	res, err := c.Search(context.Background(), "Next.js", SearchOptions{MinLikes: 5, Language: "en", MaxResults: 500})
	require.NoError(t, err)
	require.Len(t, api.calls, 1)
	p := api.calls[0].params
	assert.Equal(t, "tweets/search/recent", api.calls[0].path)
	assert.Contains(t, p.Get("query"), "min_faves:5")
	assert.Contains(t, p.Get("query"), "lang:en")
	assert.Contains(t, p.Get("query"), "-is:reply -is:retweet")
	assert.Equal(t, "100", p.Get("max_results"))
	assert.Equal(t, "recency", p.Get("sort_order"))
	assert.Equal(t, "author_id", p.Get("expansions"))

	require.Len(t, res.Tweets, 1)
	assert.Equal(t, 7.0, res.Tweets[0].EngagementRate())
	assert.Equal(t, "gopher", res.Users[0].Username)
	assert.Equal(t, "1", res.Meta.NewestID)
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	c := NewCollector(&fakeAPI{})
	_, err := c.Search(context.Background(), "  ", SearchOptions{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSearchAllFollowsTokensAndCaps(t *testing.T) {
	api := &fakeAPI{get: func(_ string, p url.Values) (any, error) {
		switch p.Get("next_token") {
		case "":
			return page([]string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"}, "t2"), nil
		case "t2":
			return page([]string{"11", "12", "13", "14", "15", "16", "17", "18", "19", "20"}, "t3"), nil
		default:
			return page([]string{"21", "22", "23", "24", "25", "26", "27", "28", "29", "30"}, "t4"), nil
		}
	}}
	var sleeps []time.Duration
	c := NewCollector(api, WithSleep(func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}))

	tweets, err := c.SearchAll(context.Background(), "go", SearchOptions{}, 15)
	require.NoError(t, err)
	assert.Len(t, tweets, 15)
	assert.Len(t, api.calls, 2)
	assert.Equal(t, []time.Duration{time.Second}, sleeps)
	assert.Equal(t, "15", api.calls[0].params.Get("max_results"))
	assert.Equal(t, "10", api.calls[1].params.Get("max_results"))
}

func TestSearchAllStopsWithoutToken(t *testing.T) {
	api := &fakeAPI{get: func(string, url.Values) (any, error) {
		return page([]string{"1", "2"}, ""), nil
	}}
	c := NewCollector(api, WithSleep(noSleep))
	tweets, err := c.SearchAll(context.Background(), "go", SearchOptions{}, 0)
	require.NoError(t, err)
	assert.Len(t, tweets, 2)
	assert.Len(t, api.calls, 1)
}

func TestCollectByKeywordsDedup(t *testing.T) {
	api := &fakeAPI{get: func(string, url.Values) (any, error) {
		return page([]string{"1", "2", "3"}, ""), nil
	}}
	c := NewCollector(api, WithSleep(noSleep))

	res, err := c.CollectByKeywords(context.Background(), CollectOptions{Keywords: []string{"a", "a"}})
	require.NoError(t, err)
	assert.Len(t, res.Tweets, 3)
	assert.Equal(t, 3, res.TotalCollected)
	assert.Equal(t, 3, res.DuplicatesRemoved)
	assert.Equal(t, []KeywordCount{{Keyword: "a", Count: 3}, {Keyword: "a", Count: 3}}, res.PerKeyword)
	assert.Equal(t, 6, res.ByKeyword["a"])
}

func TestCollectByKeywordsToleratesFailure(t *testing.T) {
	boom := &apperr.Error{Kind: apperr.KindUpstream, Status: 503, Message: "X API service error"}
	api := &fakeAPI{get: func(_ string, p url.Values) (any, error) {
		q := p.Get("query")
		switch {
		case strings.HasPrefix(q, "bad"):
			return nil, boom
		case strings.HasPrefix(q, "go"):
			return page([]string{"1", "2"}, ""), nil
		default:
			return page([]string{"2", "3"}, ""), nil
		}
	}}
	var sleeps int
	c := NewCollector(api, WithSleep(func(context.Context, time.Duration) error { sleeps++; return nil }))

	res, err := c.CollectByKeywords(context.Background(), CollectOptions{Keywords: []string{"go", "bad", "rust"}, MinLikes: 3})
	require.NoError(t, err)
	ids := make([]string, 0, len(res.Tweets))
	for _, tw := range res.Tweets {
		ids = append(ids, tw.ID)
	}
	assert.Equal(t, []string{"1", "2", "3"}, ids)
	assert.Equal(t, 1, res.DuplicatesRemoved)
	assert.Equal(t, 0, res.ByKeyword["bad"])
	assert.ErrorIs(t, res.PerKeyword[1].Err, boom)
	assert.Equal(t, 2, sleeps)
	assert.Contains(t, api.calls[0].params.Get("query"), "min_faves:3")
}

func TestCollectByKeywordsToleratesRequestTimeout(t *testing.T) {
	timeout := apperr.Wrap(apperr.KindUpstream, fmt.Errorf("get: %w", context.DeadlineExceeded), "Network request failed")
	api := &fakeAPI{get: func(_ string, p url.Values) (any, error) {
		if strings.HasPrefix(p.Get("query"), "slow") {
			return nil, timeout
		}
		return page([]string{"9"}, ""), nil
	}}
	c := NewCollector(api, WithSleep(noSleep))

	res, err := c.CollectByKeywords(context.Background(), CollectOptions{Keywords: []string{"slow", "go"}})
	require.NoError(t, err)
	require.Len(t, res.PerKeyword, 2)
	assert.ErrorIs(t, res.PerKeyword[0].Err, context.DeadlineExceeded)
	assert.Equal(t, 1, res.TotalCollected)
}

func TestCollectByKeywordsRequiresKeywords(t *testing.T) {
	c := NewCollector(&fakeAPI{})
	_, err := c.CollectByKeywords(context.Background(), CollectOptions{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCollectByKeywordsAbortsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeAPI{get: func(string, url.Values) (any, error) {
		cancel()
		return page([]string{"1"}, ""), nil
	}}
	c := NewCollector(api, WithSleep(noSleep))
	_, err := c.CollectByKeywords(ctx, CollectOptions{Keywords: []string{"a", "b"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, api.calls, 1)
}

func TestTweetsByIDsLimit(t *testing.T) {
	c := NewCollector(&fakeAPI{})
	ids := make([]string, 101)
	_, err := c.TweetsByIDs(context.Background(), ids)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	got, err := c.TweetsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMetrics(t *testing.T) {
	api := &fakeAPI{get: func(_ string, p url.Values) (any, error) {
		if p.Get("ids") == "missing" {
			return map[string]any{}, nil
		}
		return map[string]any{"data": []map[string]any{{
			"id": "42", "text": "t",
			"public_metrics": map[string]int{"like_count": 10, "retweet_count": 5, "reply_count": 5, "impression_count": 400, "bookmark_count": 1},
		}}}, nil
	}}
	c := NewCollector(api)

	m, err := c.Metrics(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, TweetMetrics{TweetID: "42", Likes: 10, Retweets: 5, Replies: 5, Bookmarks: 1, Impressions: 400, EngagementRate: 5}, m)

	_, err = c.Metrics(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	batch, err := c.MetricsBatch(context.Background(), []string{"42"})
	require.NoError(t, err)
	assert.Len(t, batch, 1)
}

func TestTweetByIDNotFoundList(t *testing.T) {
	api := &fakeAPI{get: func(string, url.Values) (any, error) {
		return nil, &apperr.Error{Kind: apperr.KindUpstream, Status: 200, Details: []xclient.APIError{{
			Title: "Not Found Error", Type: "https://api.twitter.com/2/problems/resource-not-found",
		}}}
	}}
	tw, err := NewCollector(api).TweetByID(context.Background(), "5")
	require.NoError(t, err)
	assert.Nil(t, tw)
}

func TestEngagementRateZeroImpressions(t *testing.T) {
	m := PublicMetrics{LikeCount: 10, RetweetCount: 5, ReplyCount: 2, ImpressionCount: 0}
	assert.Equal(t, 0.0, m.EngagementRate())
	assert.Equal(t, 0.0, ComputeEngagementRate(nil))
	assert.InDelta(t, 1.7, ComputeEngagementRate(&PublicMetrics{LikeCount: 10, RetweetCount: 5, ReplyCount: 2, ImpressionCount: 1000}), 1e-9)
}
