package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"agentx/internal/apperr"
	"agentx/internal/cmdlog"
	"agentx/internal/config"
	"agentx/internal/contentfilter"
	"agentx/internal/drafts"
	"agentx/internal/generation"
	"agentx/internal/ingest"
	"agentx/internal/logging"
	"agentx/internal/metrics"
	"agentx/internal/posts"
	"agentx/internal/publish"
	"agentx/internal/ratelimit"
	"agentx/internal/retry"
	"agentx/internal/store"
	"agentx/internal/xclient"
)

// app holds the wiring shared by commands. Components are built on first
// use so that offline commands never need credentials or a database.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer

	limiter *ratelimit.Manager
	db      *store.DB
	closers []func() error
}

func newApp(cli *CLI) (*app, error) {
	if err := config.LoadDotEnv(cli.EnvFile...); err != nil {
		return nil, err
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writer: os.Stderr})
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, out: os.Stdout}, nil
}

// run wraps one command with outcome logging and releases resources.
func (c *CLI) run(name string, f func(ctx context.Context, a *app) error) error {
	a, err := newApp(c)
	if err != nil {
		return err
	}
	defer a.close()
	return cmdlog.Run(a.logger, name, func() error { return f(context.Background(), a) })
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err.Error())
		}
	}
}

func (a *app) rateLimiter(ctx context.Context) (*ratelimit.Manager, error) {
	if a.limiter != nil {
		return a.limiter, nil
	}
	var st ratelimit.Store = ratelimit.NewMemoryStore()
	if strings.EqualFold(a.cfg.RateLimit.Store, "redis") {
		rs, err := ratelimit.OpenRedis(ctx, a.cfg.RateLimit.RedisURL, ratelimit.RedisOptions{})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		st = rs
	}
	a.limiter = ratelimit.NewManager(a.cfg.RateLimitPolicies(), st,
		ratelimit.WithFailOpen(a.cfg.RateLimit.FailOpen),
		ratelimit.WithLogger(a.logger))
	return a.limiter, nil
}

func (a *app) retryHandler() *retry.Handler {
	p := retry.DefaultPolicy()
	p.MaxRetries = a.cfg.Retry.MaxRetries
	if a.cfg.Retry.InitialDelay > 0 {
		p.InitialDelay = a.cfg.Retry.InitialDelay
	}
	if a.cfg.Retry.MaxDelay > 0 {
		p.MaxDelay = a.cfg.Retry.MaxDelay
	}
	if a.cfg.Retry.Multiplier > 0 {
		p.Multiplier = a.cfg.Retry.Multiplier
	}
	return retry.New(p,
		retry.WithLogger(a.logger),
		retry.WithOnRetry(func(at retry.Attempt) { metrics.IncAPIRetry(at.Target.Endpoint) }))
}

func (a *app) clientOptions(ctx context.Context) ([]xclient.Option, error) {
	limiter, err := a.rateLimiter(ctx)
	if err != nil {
		return nil, err
	}
	opts := []xclient.Option{
		xclient.WithHTTPClient(&http.Client{Timeout: a.cfg.XAPI.Timeout}),
		xclient.WithRateLimiter(limiter),
		xclient.WithRetry(a.retryHandler()),
		xclient.WithPacer(a.cfg.XAPI.PacerRPS, a.cfg.XAPI.PacerBurst),
		xclient.WithLogger(a.logger),
	}
	if a.cfg.XAPI.BaseURL != "" {
		opts = append(opts, xclient.WithBaseURL(a.cfg.XAPI.BaseURL))
	}
	return opts, nil
}

// xClient authenticates with configured tokens: user tokens win over the
// app bearer token.
func (a *app) xClient(ctx context.Context) (*xclient.Client, error) {
	opts, err := a.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	cr := a.cfg.Credentials
	opts = append(opts, xclient.WithBearerToken(cr.BearerToken))
	if cr.AccessToken != "" {
		opts = append(opts, xclient.WithUserCredentials(xclient.Credentials{
			AccessToken: cr.AccessToken, RefreshToken: cr.RefreshToken, ExpiresAt: cr.ExpiresAt,
		}))
	}
	return xclient.New(opts...), nil
}

// userClient acts for the local user: a linked account in the store wins,
// configured tokens are the fallback.
func (a *app) userClient(ctx context.Context) (*xclient.Client, error) {
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	opts, err := a.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	c, err := xclient.NewForUser(ctx, db, a.cfg.Account.UserID, opts...)
	if err == nil {
		return c, nil
	}
	if !apperr.Is(err, apperr.KindNotFound) {
		return nil, err
	}
	if a.cfg.Credentials.AccessToken == "" {
		return nil, apperr.New(apperr.KindUnauthorized, "No linked account or X_ACCESS_TOKEN; run agentx link-account")
	}
	return a.xClient(ctx)
}

func (a *app) store() (*store.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := store.Open(a.cfg.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closers = append(a.closers, db.Close)
	return db, nil
}

func (a *app) collector(api xclient.API) *posts.Collector {
	return posts.NewCollector(api,
		posts.WithPageDelay(a.cfg.Collection.PageDelay),
		posts.WithKeywordDelay(a.cfg.Collection.KeywordDelay),
		posts.WithLogger(a.logger))
}

func (a *app) publisher(api xclient.API) *publish.Publisher {
	return publish.New(api, publish.WithUsername(a.cfg.Account.Username), publish.WithLogger(a.logger))
}

func (a *app) ingester() (*ingest.Ingester, error) {
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	return ingest.New(db, a.logger), nil
}

func (a *app) draftService(ctx context.Context) (*drafts.Service, error) {
	g := a.cfg.Generation
	key := a.cfg.GenerationAPIKey()
	if key == "" {
		return nil, errors.New("no API key configured for generation provider " + g.Provider)
	}
	sender, err := generation.NewSender(ctx, g.Provider, key, g.Model, g.BaseURL)
	if err != nil {
		return nil, err
	}
	gen := generation.New(sender, generation.Config{
		MinInterval: g.MinInterval,
		MaxRetries:  g.MaxRetries,
		RetryDelay:  g.RetryDelay,
		Temperature: g.Temperature,
		MaxTokens:   g.MaxTokens,
	}, generation.WithLogger(a.logger))
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	return drafts.NewService(gen, db, contentfilter.New(), a.logger), nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
