package main

import (
	"context"

	"agentx/internal/drafts"
	"agentx/internal/store"
)

// GenerateCmd drafts posts with the configured model.
type GenerateCmd struct {
	Topic      string   `help:"Main topic."`
	Trending   []string `help:"Trending topics to weave in."`
	Expertise  []string `help:"Author expertise."`
	Interests  []string `help:"Author interests."`
	Tone       string   `help:"professional, casual or humorous." default:"professional" enum:"professional,casual,humorous"`
	Length     string   `help:"short, medium or long." default:"medium" enum:"short,medium,long"`
	Hashtags   bool     `help:"Include hashtags."`
	Emoji      bool     `help:"Include emojis."`
	Audience   string   `help:"Target audience."`
	Avoid      []string `help:"Topics to stay away from."`
	Variations int      `help:"Number of alternative drafts (1-5)." default:"1"`
}

func (c *GenerateCmd) options() drafts.Options {
	return drafts.Options{
		Topic:           c.Topic,
		TrendingTopics:  c.Trending,
		Expertise:       c.Expertise,
		Interests:       c.Interests,
		Tone:            drafts.Tone(c.Tone),
		Length:          drafts.Length(c.Length),
		IncludeHashtags: c.Hashtags,
		IncludeEmoji:    c.Emoji,
		AvoidTopics:     c.Avoid,
		TargetAudience:  c.Audience,
	}
}

func (c *GenerateCmd) Run(cli *CLI) error {
	return cli.run("generate", func(ctx context.Context, a *app) error {
		svc, err := a.draftService(ctx)
		if err != nil {
			return err
		}
		if c.Variations > 1 {
			list, err := svc.Variations(ctx, a.cfg.Account.UserID, c.options(), c.Variations)
			if err != nil {
				return err
			}
			return a.print(list)
		}
		d, err := svc.Generate(ctx, a.cfg.Account.UserID, c.options())
		if err != nil {
			return err
		}
		return a.print(d)
	})
}

// DraftsCmd groups the review commands.
type DraftsCmd struct {
	List       DraftsListCmd      `cmd:"" default:"withargs" help:"List drafts."`
	Approve    DraftApproveCmd    `cmd:"" help:"Approve a draft."`
	Reject     DraftRejectCmd     `cmd:"" help:"Reject a draft."`
	Delete     DraftDeleteCmd     `cmd:"" help:"Delete a draft."`
	Publish    DraftPublishCmd    `cmd:"" help:"Publish an approved draft."`
	Regenerate DraftRegenerateCmd `cmd:"" help:"Rewrite a draft with feedback."`
}

type DraftsListCmd struct {
	Status string `help:"draft, approved, rejected or posted."`
	Limit  int    `help:"Maximum drafts (1-100)." default:"10"`
}

func (c *DraftsListCmd) Run(cli *CLI) error {
	return cli.run("drafts list", func(ctx context.Context, a *app) error {
		svc, err := a.reviewService()
		if err != nil {
			return err
		}
		list, err := svc.List(ctx, a.cfg.Account.UserID, store.DraftStatus(c.Status), c.Limit)
		if err != nil {
			return err
		}
		return a.print(list)
	})
}

type DraftApproveCmd struct {
	ID string `arg:"" help:"Draft id."`
}

func (c *DraftApproveCmd) Run(cli *CLI) error {
	return cli.run("drafts approve", func(ctx context.Context, a *app) error {
		svc, err := a.reviewService()
		if err != nil {
			return err
		}
		d, err := svc.Approve(ctx, a.cfg.Account.UserID, c.ID)
		if err != nil {
			return err
		}
		return a.print(d)
	})
}

type DraftRejectCmd struct {
	ID string `arg:"" help:"Draft id."`
}

func (c *DraftRejectCmd) Run(cli *CLI) error {
	return cli.run("drafts reject", func(ctx context.Context, a *app) error {
		svc, err := a.reviewService()
		if err != nil {
			return err
		}
		d, err := svc.Reject(ctx, a.cfg.Account.UserID, c.ID)
		if err != nil {
			return err
		}
		return a.print(d)
	})
}

type DraftDeleteCmd struct {
	ID string `arg:"" help:"Draft id."`
}

func (c *DraftDeleteCmd) Run(cli *CLI) error {
	return cli.run("drafts delete", func(ctx context.Context, a *app) error {
		svc, err := a.reviewService()
		if err != nil {
			return err
		}
		if err := svc.Delete(ctx, a.cfg.Account.UserID, c.ID); err != nil {
			return err
		}
		return a.print(map[string]any{"deleted": true, "id": c.ID})
	})
}

type DraftPublishCmd struct {
	ID string `arg:"" help:"Draft id."`
}

func (c *DraftPublishCmd) Run(cli *CLI) error {
	return cli.run("drafts publish", func(ctx context.Context, a *app) error {
		svc, err := a.reviewService()
		if err != nil {
			return err
		}
		api, err := a.userClient(ctx)
		if err != nil {
			return err
		}
		created, err := svc.Publish(ctx, a.publisher(api), a.cfg.Account.UserID, c.ID)
		if err != nil {
			return err
		}
		return a.print(created)
	})
}

// reviewService works without a model; review never generates.
func (a *app) reviewService() (*drafts.Service, error) {
	db, err := a.store()
	if err != nil {
		return nil, err
	}
	return drafts.NewService(nil, db, nil, a.logger), nil
}

type DraftRegenerateCmd struct {
	ID       string `arg:"" help:"Draft id."`
	Feedback string `arg:"" help:"What to change."`
	Tone     string `default:"professional" enum:"professional,casual,humorous"`
	Length   string `default:"medium" enum:"short,medium,long"`
	Avoid    []string
}

func (c *DraftRegenerateCmd) Run(cli *CLI) error {
	return cli.run("drafts regenerate", func(ctx context.Context, a *app) error {
		svc, err := a.draftService(ctx)
		if err != nil {
			return err
		}
		d, err := svc.Regenerate(ctx, a.cfg.Account.UserID, c.ID, c.Feedback, drafts.Options{
			Tone: drafts.Tone(c.Tone), Length: drafts.Length(c.Length), AvoidTopics: c.Avoid,
		})
		if err != nil {
			return err
		}
		return a.print(d)
	})
}
