package xclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/ratelimit"
	"agentx/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// helper to create client against a test server
func newTestClient(ts *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithBaseURL(ts.URL),
		WithHTTPClient(ts.Client()),
		WithBearerToken("app-token"),
		WithClock(func() time.Time { return fixedNow }),
		WithRetry(retry.New(retry.DefaultPolicy(), retry.WithSleep(noSleep))),
	}
	return New(append(base, opts...)...)
}

func TestGetSendsBearerAndParsesTelemetry(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer app-token", r.Header.Get("Authorization"))
		assert.Equal(t, "/tweets/search/recent", r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("query"))
		w.Header().Set("x-rate-limit-limit", "450")
		w.Header().Set("x-rate-limit-remaining", "449")
		w.Header().Set("x-rate-limit-reset", "1746100800")
		_, _ = w.Write([]byte(`{"data":[{"id":"1","text":"hi"}],"meta":{"result_count":1}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts)
	resp, err := c.Get(context.Background(), "tweets/search/recent", url.Values{"query": {"golang"}})
	require.NoError(t, err)
	require.NotNil(t, resp.RateLimit)
	assert.Equal(t, RateLimitInfo{Limit: 450, Remaining: 449, Reset: 1746100800}, *resp.RateLimit)

	var body struct {
		Data []struct{ ID string } `json:"data"`
	}
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "1", body.Data[0].ID)

	st, err := c.RateLimiter().Status(context.Background(), ratelimit.EndpointSearchRecent, ratelimit.IdentifierApp)
	require.NoError(t, err)
	assert.Equal(t, 449, st.Remaining)
}

func TestPartialTelemetryIsAbsent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-rate-limit-limit", "300")
		w.Header().Set("x-rate-limit-remaining", "10")
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer ts.Close()

	resp, err := newTestClient(ts).Get(context.Background(), "tweets/1", nil)
	require.NoError(t, err)
	assert.Nil(t, resp.RateLimit)
}

func TestUserCredentialsWinOverBearer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"data":{"id":"9","text":"posted"}}`))
	}))
	defer ts.Close()

	c := newTestClient(ts, WithUserCredentials(Credentials{AccessToken: "user-token", ExpiresAt: fixedNow.Add(time.Hour)}))
	assert.Equal(t, ratelimit.IdentifierUser, c.Identifier())

	_, err := c.Post(context.Background(), "tweets", map[string]string{"text": "posted"})
	require.NoError(t, err)

	st, err := c.RateLimiter().Status(context.Background(), ratelimit.EndpointTweetsCreate, ratelimit.IdentifierUser)
	require.NoError(t, err)
	assert.Equal(t, 199, st.Remaining)
}

func TestMissingCredentialsFailBeforeIO(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer ts.Close()

	c := New(WithBaseURL(ts.URL), WithHTTPClient(ts.Client()))
	_, err := c.Get(context.Background(), "tweets/1", nil)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, int32(0), hits.Load())
}

func TestExpiredCredentialsFailBeforeIO(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits.Add(1) }))
	defer ts.Close()

	c := newTestClient(ts, WithUserCredentials(Credentials{AccessToken: "old", ExpiresAt: fixedNow.Add(-time.Minute)}))
	_, err := c.Get(context.Background(), "tweets/1", nil)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.Equal(t, int32(0), hits.Load())

	// no rate-limit token was spent
	st, err := c.RateLimiter().Status(context.Background(), ratelimit.EndpointTweets, ratelimit.IdentifierUser)
	require.NoError(t, err)
	assert.Equal(t, 300, st.Remaining)
}

func TestLocalAdmissionDenial(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":{"id":"1","deleted":true}}`))
	}))
	defer ts.Close()

	mgr := ratelimit.NewManager([]ratelimit.Policy{
		{Endpoint: ratelimit.EndpointTweetsDelete, MaxRequests: 2, Window: time.Minute},
	}, nil, ratelimit.WithClock(func() time.Time { return fixedNow }))
	c := newTestClient(ts, WithRateLimiter(mgr))

	for i := 0; i < 2; i++ {
		_, err := c.Delete(context.Background(), "tweets/1")
		require.NoError(t, err)
	}
	_, err := c.Delete(context.Background(), "tweets/1")
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRateLimited, e.Kind)
	assert.Equal(t, fixedNow.Add(30*time.Second), e.ResetAt)
	assert.Equal(t, int32(2), hits.Load())

	_, err = c.Delete(context.Background(), "tweets/1", SkipRateLimit())
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestStatusTranslation(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   apperr.Kind
		msg    string
	}{
		{400, `{"detail":"Invalid query"}`, apperr.KindValidation, "Invalid query"},
		{400, `{}`, apperr.KindValidation, "Invalid request"},
		{401, `{}`, apperr.KindUnauthorized, "Authentication failed"},
		{403, `{"detail":"You are not permitted"}`, apperr.KindForbidden, "You are not permitted"},
		{404, `not json`, apperr.KindNotFound, "Resource not found"},
		{409, `{}`, apperr.KindUpstream, "Unknown X API error"},
	}
	for _, tc := range cases {
		t.Run(strconv.Itoa(tc.status), func(t *testing.T) {
			var hits atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			_, err := newTestClient(ts).Get(context.Background(), "tweets/1", nil)
			e, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, tc.kind, e.Kind)
			assert.Equal(t, tc.msg, e.Message)
			assert.Equal(t, tc.status, e.HTTPStatus())
			assert.Equal(t, int32(1), hits.Load(), "non-retryable status must not be retried")
		})
	}
}

func TestServerErrorsRetriedThenSurfaced(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Get(context.Background(), "tweets/1", nil)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUpstream, e.Kind)
	assert.Equal(t, "X API service error", e.Message)
	assert.Equal(t, int32(4), hits.Load())
}

func TestUpstream429RetriedThenRecovered(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Get(context.Background(), "tweets/1", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestUpstream429ResetTime(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/tweets/2" {
			w.Header().Set("x-rate-limit-limit", "300")
			w.Header().Set("x-rate-limit-remaining", "0")
			w.Header().Set("x-rate-limit-reset", strconv.FormatInt(fixedNow.Add(2*time.Minute).Unix(), 10))
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	c := newTestClient(ts, WithRetry(retry.New(retry.Policy{MaxRetries: 0}, retry.WithSleep(noSleep))))

	_, err := c.Get(context.Background(), "tweets/1", nil)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindRateLimited, e.Kind)
	assert.Equal(t, fixedNow.Add(900*time.Second), e.ResetAt)

	_, err = c.Get(context.Background(), "tweets/2", nil)
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, fixedNow.Add(2*time.Minute).Unix(), e.ResetAt.Unix())
	assert.Contains(t, e.Message, "(in 120s)")
}

func TestErrorListInSuccessfulReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]string{{
				"title":  "Not Found Error",
				"detail": "Could not find tweet with ids: [5].",
				"type":   "https://api.twitter.com/2/problems/resource-not-found",
			}},
		})
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Get(context.Background(), "tweets", url.Values{"ids": {"5"}})
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindUpstream, e.Kind)
	assert.Equal(t, "Could not find tweet with ids: [5].", e.Message)
	assert.True(t, IsResourceNotFound(err))
}

func TestNetworkFailureIsUpstream(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c := newTestClient(ts)
	ts.Close()

	_, err := c.Get(context.Background(), "tweets/1", nil)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
}

func TestCategorize(t *testing.T) {
	cases := []struct {
		method, path, want string
	}{
		{http.MethodGet, "tweets/search/recent", ratelimit.EndpointSearchRecent},
		{http.MethodGet, "/tweets/search/recent", ratelimit.EndpointSearchRecent},
		{http.MethodGet, "tweets", ratelimit.EndpointTweets},
		{http.MethodGet, "tweets/123", ratelimit.EndpointTweets},
		{http.MethodPost, "tweets", ratelimit.EndpointTweetsCreate},
		{http.MethodDelete, "tweets/123", ratelimit.EndpointTweetsDelete},
		{http.MethodGet, "users/by/username/jack", ratelimit.EndpointUsers},
		{http.MethodGet, "spaces/search", "spaces/search"},
		{http.MethodPost, "users/1/likes", "users/1/likes"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Categorize(tc.method, tc.path), "%s %s", tc.method, tc.path)
	}
}

type stubSupplier struct {
	creds Credentials
	err   error
}

func (s stubSupplier) DecryptedTokens(context.Context, string) (Credentials, error) {
	return s.creds, s.err
}

func TestNewForUser(t *testing.T) {
	c, err := NewForUser(context.Background(), stubSupplier{creds: Credentials{AccessToken: "tok"}}, "u1")
	require.NoError(t, err)
	creds, ok := c.Credentials()
	require.True(t, ok)
	assert.Equal(t, "tok", creds.AccessToken)

	_, err = NewForUser(context.Background(), stubSupplier{err: apperr.New(apperr.KindNotFound, "no linked account")}, "u2")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestSetCredentialsSwitchesIdentifier(t *testing.T) {
	c := New(WithBearerToken("b"))
	assert.Equal(t, ratelimit.IdentifierApp, c.Identifier())
	c.SetCredentials(Credentials{AccessToken: "u"})
	assert.Equal(t, ratelimit.IdentifierUser, c.Identifier())
	c.SetCredentials(Credentials{})
	assert.Equal(t, ratelimit.IdentifierApp, c.Identifier())
}

func TestPacerSpacesRequests(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts, WithPacer(20, 1))
	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), "tweets/search/recent", url.Values{"query": {"go"}})
		require.NoError(t, err)
	}
	// burst 1 at 20/s: the second and third requests each wait ~50ms.
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.EqualValues(t, 3, hits.Load())
}

func TestPacerHonorsCancel(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer ts.Close()

	c := newTestClient(ts, WithPacer(0.1, 1))
	_, err := c.Get(context.Background(), "tweets/search/recent", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Get(ctx, "tweets/search/recent", nil)
	assert.Error(t, err)
}
