// Package ingest runs keyword collections and persists the posts they find.
package ingest

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"agentx/internal/apperr"
	"agentx/internal/metrics"
	"agentx/internal/posts"
	"agentx/internal/store"
)

// PostStore is the persistence the ingester needs.
type PostStore interface {
	ExistsPost(ctx context.Context, tweetID, userID string) (bool, error)
	CreatePost(ctx context.Context, p store.CollectedPost) (int64, error)
}

// Request is one keyword collection.
type Request struct {
	Keyword    string
	MaxResults int // 1..100, default 10
	MinLikes   int
	Language   string
}

func (r *Request) Validate() error {
	r.Keyword = strings.TrimSpace(r.Keyword)
	if r.Keyword == "" {
		return apperr.Validation("keyword", "Keyword is required and must be a non-empty string")
	}
	if len([]rune(r.Keyword)) > 100 {
		return apperr.Validation("keyword", "Keyword must be 100 characters or less")
	}
	if r.MaxResults == 0 {
		r.MaxResults = 10
	}
	if r.MaxResults < 1 || r.MaxResults > 100 {
		return apperr.Validation("maxResults", "Max results must be a number between 1 and 100")
	}
	if r.MinLikes < 0 {
		return apperr.Validation("minLikes", "Min likes must be a non-negative number")
	}
	return nil
}

// Result counts what happened to the posts of one collection.
type Result struct {
	Keyword    string `json:"keyword,omitempty"`
	TotalFound int    `json:"totalFound"`
	Saved      int    `json:"collected"`
	Duplicates int    `json:"duplicates"`
	Skipped    int    `json:"skipped"`
	Failed     int    `json:"failed"`
}

// Ingester saves collected posts for a user.
type Ingester struct {
	store  PostStore
	logger *slog.Logger
}

func New(s PostStore, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ingester{store: s, logger: logger}
}

// Save stores tweets for userID. Posts the user already has count as
// duplicates, posts without public metrics are skipped, and a failed
// insert is logged and counted without stopping the rest.
func (in *Ingester) Save(ctx context.Context, userID, keyword string, tweets []posts.Tweet) (Result, error) {
	res := Result{Keyword: keyword, TotalFound: len(tweets)}
	for _, t := range tweets {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		exists, err := in.store.ExistsPost(ctx, t.ID, userID)
		if err != nil {
			in.logger.Error("post existence check failed", "tweet_id", t.ID, "error", err.Error())
			res.Failed++
			continue
		}
		if exists {
			res.Duplicates++
			continue
		}
		if t.PublicMetrics == nil {
			in.logger.Warn("tweet missing public metrics", "tweet_id", t.ID)
			res.Skipped++
			continue
		}
		m := t.PublicMetrics
		authorID := t.AuthorID
		if authorID == "" {
			authorID = "unknown"
		}
		_, err = in.store.CreatePost(ctx, store.CollectedPost{
			UserID:          userID,
			TweetID:         t.ID,
			AuthorID:        authorID,
			Text:            t.Text,
			Lang:            t.Lang,
			Keyword:         keyword,
			PostedAt:        t.CreatedAt,
			LikeCount:       m.LikeCount,
			RetweetCount:    m.RetweetCount,
			ReplyCount:      m.ReplyCount,
			QuoteCount:      m.QuoteCount,
			ImpressionCount: m.ImpressionCount,
			EngagementRate:  m.EngagementRate(),
		})
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			in.logger.Error("failed to save tweet", "tweet_id", t.ID, "error", err.Error())
			res.Failed++
			continue
		}
		res.Saved++
		metrics.PostsSaved.Inc()
	}
	return res, nil
}

// Collect searches req.Keyword and saves the hits for userID.
func (in *Ingester) Collect(ctx context.Context, c *posts.Collector, userID string, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	found, err := c.CollectByKeywords(ctx, posts.CollectOptions{
		Keywords:             []string{req.Keyword},
		MaxResultsPerKeyword: req.MaxResults,
		MinLikes:             req.MinLikes,
		Language:             req.Language,
	})
	if err != nil {
		return Result{}, err
	}
	if len(found.PerKeyword) == 1 && found.PerKeyword[0].Err != nil {
		return Result{}, found.PerKeyword[0].Err
	}
	res, err := in.Save(ctx, userID, req.Keyword, found.Tweets)
	if err != nil {
		return res, err
	}
	in.logger.Info("posts collected",
		"user_id", userID,
		"keyword", req.Keyword,
		"found", res.TotalFound,
		"saved", res.Saved,
		"duplicates", res.Duplicates)
	return res, nil
}
