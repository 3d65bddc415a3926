// Package publish creates and deletes posts, singly, in batches and as
// reply-chained threads.
package publish

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"agentx/internal/apperr"
	"agentx/internal/retry"
	"agentx/internal/xclient"
)

const (
	DefaultPollDuration = 1440 // minutes
	minPollDuration     = 5
	maxPollDuration     = 10080

	DefaultCreateBatchDelay = 5 * time.Second
	DefaultDeleteBatchDelay = 2 * time.Second
	DefaultThreadDelay      = 2 * time.Second
)

// CreateOptions are the optional parts of a post.
type CreateOptions struct {
	ReplyTo            string
	QuoteID            string
	MediaIDs           []string
	PollOptions        []string
	PollDuration       int // minutes; default 1440
	ReplySettings      string
	SuperFollowersOnly bool
}

// Created is a published post.
type Created struct {
	ID   string `json:"tweetId"`
	Text string `json:"text"`
	URL  string `json:"url"`
}

type createRequest struct {
	Text  string `json:"text"`
	Reply *struct {
		InReplyToTweetID string `json:"in_reply_to_tweet_id"`
	} `json:"reply,omitempty"`
	QuoteTweetID string `json:"quote_tweet_id,omitempty"`
	Media        *struct {
		MediaIDs []string `json:"media_ids"`
	} `json:"media,omitempty"`
	Poll *struct {
		Options         []string `json:"options"`
		DurationMinutes int      `json:"duration_minutes"`
	} `json:"poll,omitempty"`
	ReplySettings         string `json:"reply_settings,omitempty"`
	ForSuperFollowersOnly bool   `json:"for_super_followers_only,omitempty"`
}

// Publisher writes posts through the X API.
type Publisher struct {
	api      xclient.API
	username string
	logger   *slog.Logger
	sleep    retry.SleepFunc
}

type Option func(*Publisher)

// WithUsername sets the handle used to build post URLs.
func WithUsername(u string) Option {
	return func(p *Publisher) { p.username = strings.TrimPrefix(u, "@") }
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithSleep(fn retry.SleepFunc) Option {
	return func(p *Publisher) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

func New(api xclient.API, opts ...Option) *Publisher {
	p := &Publisher{
		api:    api,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		sleep:  retry.Sleep,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func buildCreateRequest(text string, opts CreateOptions) (createRequest, error) {
	v := ValidateText(text)
	if !v.Valid {
		return createRequest{}, apperr.Validation("text", "%s", v.Errors[0])
	}
	req := createRequest{Text: strings.TrimSpace(text)}
	if opts.ReplyTo != "" {
		req.Reply = &struct {
			InReplyToTweetID string `json:"in_reply_to_tweet_id"`
		}{InReplyToTweetID: opts.ReplyTo}
	}
	req.QuoteTweetID = opts.QuoteID
	if len(opts.MediaIDs) > 0 {
		req.Media = &struct {
			MediaIDs []string `json:"media_ids"`
		}{MediaIDs: opts.MediaIDs}
	}
	if len(opts.PollOptions) > 0 {
		if len(opts.PollOptions) < 2 || len(opts.PollOptions) > 4 {
			return createRequest{}, apperr.Validation("pollOptions", "Poll must have 2-4 options")
		}
		d := opts.PollDuration
		if d == 0 {
			d = DefaultPollDuration
		}
		if d < minPollDuration || d > maxPollDuration {
			return createRequest{}, apperr.Validation("pollDuration", "Poll duration must be between %d and %d minutes", minPollDuration, maxPollDuration)
		}
		req.Poll = &struct {
			Options         []string `json:"options"`
			DurationMinutes int      `json:"duration_minutes"`
		}{Options: opts.PollOptions, DurationMinutes: d}
	}
	switch opts.ReplySettings {
	case "", "everyone", "mentionedUsers", "following":
		req.ReplySettings = opts.ReplySettings
	default:
		return createRequest{}, apperr.Validation("replySettings", "Unsupported reply settings %q", opts.ReplySettings)
	}
	req.ForSuperFollowersOnly = opts.SuperFollowersOnly
	return req, nil
}

// Create validates and publishes one post.
func (p *Publisher) Create(ctx context.Context, text string, opts CreateOptions) (Created, error) {
	req, err := buildCreateRequest(text, opts)
	if err != nil {
		return Created{}, err
	}
	resp, err := p.api.Post(ctx, "tweets", req)
	if err != nil {
		if e, ok := apperr.As(err); ok && e.Kind == apperr.KindRateLimited {
			return Created{}, &apperr.Error{
				Kind:    apperr.KindRateLimited,
				Status:  e.Status,
				Message: "Tweet rate limit exceeded. Please try again later.",
				ResetAt: e.ResetAt,
				Details: e.Details,
				Err:     err,
			}
		}
		return Created{}, err
	}
	var out struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if err := resp.Decode(&out); err != nil {
		return Created{}, err
	}
	if out.Data.ID == "" {
		return Created{}, apperr.New(apperr.KindUpstream, "X API returned no post id")
	}
	return Created{ID: out.Data.ID, Text: out.Data.Text, URL: FormatURL(p.username, out.Data.ID)}, nil
}

// Reply publishes text as a reply to id.
func (p *Publisher) Reply(ctx context.Context, text, id string) (Created, error) {
	return p.Create(ctx, text, CreateOptions{ReplyTo: id})
}

// Quote publishes text quoting id.
func (p *Publisher) Quote(ctx context.Context, text, id string) (Created, error) {
	return p.Create(ctx, text, CreateOptions{QuoteID: id})
}

// Delete removes a post.
func (p *Publisher) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation("tweetId", "Tweet ID is required")
	}
	resp, err := p.api.Delete(ctx, "tweets/"+id)
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindNotFound:
			return &apperr.Error{Kind: apperr.KindNotFound, Status: 404, Message: "Tweet not found or already deleted"}
		case apperr.KindForbidden:
			return &apperr.Error{Kind: apperr.KindForbidden, Status: 403, Message: "You do not have permission to delete this tweet"}
		}
		return err
	}
	var out struct {
		Data struct {
			Deleted bool `json:"deleted"`
		} `json:"data"`
	}
	if err := resp.Decode(&out); err != nil {
		return err
	}
	if !out.Data.Deleted {
		return apperr.New(apperr.KindUpstream, "X API did not delete post %s", id)
	}
	return nil
}
