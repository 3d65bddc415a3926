package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"agentx/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Generation, cfg.Generation)
	assert.True(t, cfg.RateLimit.FailOpen)
	assert.Equal(t, ratelimit.DefaultPolicies(), cfg.RateLimitPolicies())
}

func TestSaveLoadRoundTripWithEnvOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "agentx.yaml")
	cfg := Default()
	cfg.Account.Username = "gopher"
	cfg.Collection.Keywords = []string{"rust"}
	cfg.Collection.PageDelay = 1500 * time.Millisecond
	cfg.RateLimit.Policies = []ratelimit.Policy{{Endpoint: "tweets", MaxRequests: 10}}
	require.NoError(t, Save(path, cfg))

	t.Setenv("X_BEARER_TOKEN", "from-env")
	t.Setenv("COLLECT_KEYWORDS", "go,next.js")
	t.Setenv("RATE_LIMIT_FAIL_OPEN", "false")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "gopher", got.Account.Username)
	assert.Equal(t, "from-env", got.Credentials.BearerToken)
	assert.Equal(t, []string{"go", "next.js"}, got.Collection.Keywords)
	assert.Equal(t, 1500*time.Millisecond, got.Collection.PageDelay)
	assert.False(t, got.RateLimit.FailOpen)

	policies := got.RateLimitPolicies()
	require.Len(t, policies, 1)
	assert.Equal(t, ratelimit.Window, policies[0].Window)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	f := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(f, []byte("AGENTX_TEST_DOTENV=yes\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AGENTX_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(f, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "yes", os.Getenv("AGENTX_TEST_DOTENV"))
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.RateLimit.Store = "redis"
	assert.ErrorContains(t, cfg.Validate(), "redisURL")

	cfg = Default()
	cfg.Generation.Provider = "llama"
	assert.ErrorContains(t, cfg.Validate(), "llama")

	cfg = Default()
	cfg.RateLimit.Policies = []ratelimit.Policy{{Endpoint: "tweets"}}
	assert.Error(t, cfg.Validate())
}

func TestGenerationAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Credentials = CredentialsConfig{AnthropicAPIKey: "a", OpenAIAPIKey: "o", GeminiAPIKey: "g"}
	assert.Equal(t, "a", cfg.GenerationAPIKey())
	cfg.Generation.Provider = "OpenAI"
	assert.Equal(t, "o", cfg.GenerationAPIKey())
	cfg.Generation.Provider = "gemini"
	assert.Equal(t, "g", cfg.GenerationAPIKey())
}
