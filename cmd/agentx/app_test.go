package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/config"
	"agentx/internal/ratelimit"
	"agentx/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCLI(t *testing.T) *CLI {
	t.Helper()
	t.Setenv("X_ACCESS_TOKEN", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DBPath = filepath.Join(dir, "agentx.db")
	cfg.Credentials.BearerToken = "bearer"
	cfg.RateLimit.Policies = []ratelimit.Policy{{Endpoint: ratelimit.EndpointSearchRecent, MaxRequests: 5}}
	path := filepath.Join(dir, "agentx.yaml")
	require.NoError(t, config.Save(path, cfg))
	return &CLI{Config: path, EnvFile: []string{filepath.Join(dir, "missing.env")}, LogLevel: "error"}
}

func TestAppWiring(t *testing.T) {
	a, err := newApp(testCLI(t))
	require.NoError(t, err)
	defer a.close()
	var buf bytes.Buffer
	a.out = &buf
	ctx := context.Background()

	client, err := a.xClient(ctx)
	require.NoError(t, err)
	assert.Equal(t, ratelimit.IdentifierApp, client.Identifier())
	st, err := client.RateLimiter().Status(ctx, ratelimit.EndpointSearchRecent, ratelimit.IdentifierApp)
	require.NoError(t, err)
	assert.Equal(t, 5, st.Limit)

	_, err = a.userClient(ctx)
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	db, err := a.store()
	require.NoError(t, err)
	d, err := db.CreateDraft(ctx, store.Draft{UserID: a.cfg.Account.UserID, Text: "hello"})
	require.NoError(t, err)

	svc, err := a.reviewService()
	require.NoError(t, err)
	list, err := svc.List(ctx, a.cfg.Account.UserID, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, d.ID, list[0].ID)

	require.NoError(t, a.print(map[string]int{"n": 1}))
	assert.JSONEq(t, `{"n":1}`, buf.String())
}

func TestDraftServiceNeedsKey(t *testing.T) {
	a, err := newApp(testCLI(t))
	require.NoError(t, err)
	defer a.close()
	_, err = a.draftService(context.Background())
	assert.ErrorContains(t, err, "no API key")
}

func TestTweetIDs(t *testing.T) {
	got := tweetIDs([]string{"https://x.com/gopher/status/123?s=20", " 456 ", ""})
	assert.Equal(t, []string{"123", "456"}, got)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "boom", describe(errors.New("boom")))
	assert.Equal(t, "text: too long", describe(apperr.Validation("text", "too long")))
	msg := describe(apperr.RateLimited(time.Now().Add(30*time.Second), "limited"))
	assert.Contains(t, msg, "Rate limit exceeded. Try again in")
}
