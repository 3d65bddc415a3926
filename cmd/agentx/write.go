package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/config"
	"agentx/internal/publish"
	"agentx/internal/store"
	"agentx/internal/theme"
	"agentx/internal/xclient"
)

// InitCmd writes the defaults so they can be edited.
type InitCmd struct {
	Force bool `help:"Overwrite an existing file."`
}

func (c *InitCmd) Run(cli *CLI) error {
	if _, err := os.Stat(cli.Config); err == nil && !c.Force {
		return fmt.Errorf("%s already exists; use --force to overwrite", cli.Config)
	}
	if err := config.Save(cli.Config, config.Default()); err != nil {
		return err
	}
	abs, _ := filepath.Abs(cli.Config)
	theme.PrintBanner(os.Stdout)
	fmt.Println("Config written to:", abs)
	return nil
}

// PostCmd publishes one post, or several spaced by publish.writeDelay.
type PostCmd struct {
	Texts        []string `arg:"" name:"text" help:"Post text; several texts publish a batch."`
	ReplyTo      string   `name:"reply-to" help:"Reply to this post id."`
	Quote        string   `help:"Quote this post id."`
	Media        []string `help:"Attached media ids."`
	Poll         []string `help:"Poll options (2-4)."`
	PollDuration int      `name:"poll-duration" help:"Poll duration in minutes."`
}

func (c *PostCmd) Run(cli *CLI) error {
	return cli.run("post", func(ctx context.Context, a *app) error {
		api, err := a.userClient(ctx)
		if err != nil {
			return err
		}
		p := a.publisher(api)
		if len(c.Texts) > 1 {
			if c.ReplyTo != "" || c.Quote != "" || len(c.Media) > 0 || len(c.Poll) > 0 {
				return apperr.Validation("text", "Batch posts take no reply, quote, media or poll options")
			}
			res, err := p.CreateBatch(ctx, c.Texts, a.cfg.Publish.WriteDelay)
			if err != nil {
				return err
			}
			return a.print(res)
		}
		created, err := c.publishOne(ctx, p)
		if err != nil {
			return err
		}
		return a.print(created)
	})
}

func (c *PostCmd) publishOne(ctx context.Context, p *publish.Publisher) (publish.Created, error) {
	text := c.Texts[0]
	plain := len(c.Media) == 0 && len(c.Poll) == 0
	switch {
	case plain && c.ReplyTo != "" && c.Quote == "":
		return p.Reply(ctx, text, publishID(c.ReplyTo))
	case plain && c.Quote != "" && c.ReplyTo == "":
		return p.Quote(ctx, text, publishID(c.Quote))
	}
	return p.Create(ctx, text, publish.CreateOptions{
		ReplyTo:      publishID(c.ReplyTo),
		QuoteID:      publishID(c.Quote),
		MediaIDs:     c.Media,
		PollOptions:  c.Poll,
		PollDuration: c.PollDuration,
	})
}

// ThreadCmd publishes texts as a reply chain.
type ThreadCmd struct {
	Texts []string `arg:"" name:"text" help:"Thread texts in order."`
}

func (c *ThreadCmd) Run(cli *CLI) error {
	return cli.run("thread", func(ctx context.Context, a *app) error {
		api, err := a.userClient(ctx)
		if err != nil {
			return err
		}
		res, err := a.publisher(api).CreateThread(ctx, c.Texts, a.cfg.Publish.ThreadDelay)
		if err != nil {
			return err
		}
		if perr := a.print(res.Posts); perr != nil {
			return perr
		}
		if !res.Complete() {
			return fmt.Errorf("thread stopped at post %d: %w", res.FailedAt+1, res.Err)
		}
		return nil
	})
}

// DeleteCmd removes posts.
type DeleteCmd struct {
	IDs []string `arg:"" name:"id" help:"Post ids or URLs."`
}

func (c *DeleteCmd) Run(cli *CLI) error {
	return cli.run("delete", func(ctx context.Context, a *app) error {
		api, err := a.userClient(ctx)
		if err != nil {
			return err
		}
		p := a.publisher(api)
		ids := tweetIDs(c.IDs)
		if len(ids) == 1 {
			if err := p.Delete(ctx, ids[0]); err != nil {
				return err
			}
			return a.print(map[string]any{"deleted": true, "tweetId": ids[0]})
		}
		res, err := p.DeleteBatch(ctx, ids, a.cfg.Publish.DeleteDelay)
		if err != nil {
			return err
		}
		return a.print(res)
	})
}

// LinkCmd stores user tokens obtained from an OAuth 2.0 flow.
type LinkCmd struct {
	Username     string        `help:"X username." required:""`
	XUserID      string        `name:"x-user-id" help:"X user id."`
	AccessToken  string        `name:"access-token" help:"OAuth 2.0 access token." env:"X_ACCESS_TOKEN"`
	RefreshToken string        `name:"refresh-token" help:"OAuth 2.0 refresh token." env:"X_REFRESH_TOKEN"`
	ExpiresIn    time.Duration `name:"expires-in" help:"Access token lifetime; 0 means no expiry."`
	Unlink       bool          `help:"Remove the linked account instead."`
}

func (c *LinkCmd) Run(cli *CLI) error {
	return cli.run("link-account", func(ctx context.Context, a *app) error {
		db, err := a.store()
		if err != nil {
			return err
		}
		userID := a.cfg.Account.UserID
		if c.Unlink {
			if err := db.UnlinkAccount(ctx, userID); err != nil {
				return err
			}
			return a.print(map[string]any{"unlinked": true, "userId": userID})
		}
		creds := xclient.Credentials{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken}
		if c.ExpiresIn > 0 {
			creds.ExpiresAt = time.Now().Add(c.ExpiresIn).UTC()
		}
		if err := db.LinkAccount(ctx, store.LinkedAccount{
			UserID:      userID,
			XUserID:     c.XUserID,
			Username:    c.Username,
			Credentials: creds,
		}); err != nil {
			return err
		}
		return a.print(map[string]any{"linked": true, "userId": userID, "username": c.Username})
	})
}

func publishID(s string) string {
	if id := publish.ExtractTweetID(s); id != "" {
		return id
	}
	return s
}
