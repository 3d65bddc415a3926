// Command agentx collects, analyses and publishes X posts under local
// rate limits.
//
// Usage:
//
//	agentx init
//	agentx selftest
//	agentx search "Next.js" --min-likes 10
//	agentx collect --keyword golang
//	agentx serve
//	agentx generate --topic "Go 1.24" --tone casual
package main

import (
	"fmt"
	"os"
	"time"

	"agentx/internal/apperr"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface.
type CLI struct {
	Init      InitCmd      `cmd:"" help:"Write a default config file."`
	Selftest  SelftestCmd  `cmd:"" help:"Check credentials, search, lookup, validation and rate limits."`
	Search    SearchCmd    `cmd:"" help:"Search recent posts."`
	Metrics   MetricsCmd   `cmd:"" help:"Show engagement metrics for posts."`
	Collect   CollectCmd   `cmd:"" help:"Collect posts by keyword and store them."`
	Serve     ServeCmd     `cmd:"" help:"Collect on an interval and expose Prometheus metrics."`
	Posts     PostsCmd     `cmd:"" help:"List stored posts."`
	Validate  ValidateCmd  `cmd:"" help:"Validate post text and run the content filter."`
	Ratelimit RatelimitCmd `cmd:"" help:"Show or reset local rate-limit buckets."`
	Post      PostCmd      `cmd:"" help:"Publish one or more posts."`
	Thread    ThreadCmd    `cmd:"" help:"Publish a thread."`
	Delete    DeleteCmd    `cmd:"" help:"Delete posts by id or URL."`
	Generate  GenerateCmd  `cmd:"" help:"Generate draft posts with a language model."`
	Drafts    DraftsCmd    `cmd:"" help:"Review generated drafts."`
	Link      LinkCmd      `cmd:"" name:"link-account" help:"Store OAuth 2.0 user tokens for the local user."`

	Config    string   `short:"c" help:"Path to config file." type:"path" default:"./agentx.yaml"`
	EnvFile   []string `name:"env-file" help:"Dotenv files to load." default:".env"`
	LogLevel  string   `help:"Log level (debug, info, warn, error); overrides the config."`
	LogFormat string   `help:"Log format (json, text); overrides the config."`
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentx"),
		kong.Description("Rate-limited X API collection, publishing and drafting."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "error:", describe(err))
		os.Exit(1)
	}
}

// describe prefers the caller-facing message of tagged errors and keeps
// the raw text for everything else, which on a CLI is the operator.
func describe(err error) string {
	e, ok := apperr.As(err)
	if !ok {
		return err.Error()
	}
	switch e.Kind {
	case apperr.KindRateLimited, apperr.KindValidation:
		return apperr.UserMessage(err, time.Now())
	}
	return err.Error()
}
