package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"agentx/internal/posts"
	"agentx/internal/publish"
	"agentx/internal/ratelimit"
	"agentx/internal/xclient"
)

// SelftestCmd exercises the read path end to end against the live API.
type SelftestCmd struct {
	Query string `help:"Search query to try." default:"Next.js"`
}

func (c *SelftestCmd) Run(cli *CLI) error {
	return cli.run("selftest", func(ctx context.Context, a *app) error {
		client, err := a.xClient(ctx)
		if err != nil {
			return err
		}
		cr := a.cfg.Credentials
		configured := cr.BearerToken != "" || cr.AccessToken != ""
		steps := selftest(ctx, client, a.collector(client), configured, c.Query)
		if failed := report(a.out, steps); failed > 0 {
			return fmt.Errorf("%d of %d checks failed", failed, len(steps))
		}
		return nil
	})
}

type step struct {
	Name   string
	OK     bool
	Detail string
}

func selftest(ctx context.Context, client *xclient.Client, col *posts.Collector, configured bool, query string) []step {
	var steps []step
	add := func(name string, err error, detail string) bool {
		if err != nil {
			detail = err.Error()
		}
		steps = append(steps, step{Name: name, OK: err == nil, Detail: detail})
		return err == nil
	}

	if !configured {
		add("client", fmt.Errorf("no X_BEARER_TOKEN or X_ACCESS_TOKEN configured"), "")
	} else if add("client", nil, "authenticating as "+client.Identifier()) {
		res, err := col.Search(ctx, query, posts.SearchOptions{MaxResults: 10, Language: "en"})
		if add("search", err, fmt.Sprintf("%d posts for %q", len(res.Tweets), query)) {
			if len(res.Tweets) == 0 {
				add("metrics", nil, "skipped, search returned no posts")
			} else {
				// Metrics lookups need elevated access on some tiers; a refusal is not a failure.
				if m, err := col.Metrics(ctx, res.Tweets[0].ID); err != nil {
					steps = append(steps, step{Name: "metrics", OK: true, Detail: "skipped: " + err.Error()})
				} else {
					add("metrics", nil, fmt.Sprintf("post %s: %d likes, %d impressions, %.2f%% engagement",
						m.TweetID, m.Likes, m.Impressions, m.EngagementRate))
				}
			}
		}
	}

	var verr error
	if !publish.IsValidText("Hello from agentx") {
		verr = fmt.Errorf("short text rejected")
	} else if publish.IsValidText(strings.Repeat("a", publish.MaxTextLength+1)) {
		verr = fmt.Errorf("overlong text accepted")
	}
	add("validate", verr, "length limits enforced")

	st, err := client.RateLimiter().Status(ctx, ratelimit.EndpointSearchRecent, client.Identifier())
	add("ratelimit", err, fmt.Sprintf("%s: %d/%d remaining", ratelimit.EndpointSearchRecent, st.Remaining, st.Limit))
	return steps
}

// report prints one line per step and returns the number of failures.
func report(w io.Writer, steps []step) int {
	failed := 0
	for _, s := range steps {
		mark := "PASS"
		if !s.OK {
			mark = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "[%s] %-10s %s\n", mark, s.Name, s.Detail)
	}
	return failed
}
