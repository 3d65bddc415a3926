// Package drafts generates posts with a model, screens them and keeps
// them as drafts until they are approved or rejected.
package drafts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"strings"

	"agentx/internal/apperr"
	"agentx/internal/contentfilter"
	"agentx/internal/generation"
	"agentx/internal/publish"
	"agentx/internal/store"
)

// Store is the draft persistence the service needs.
type Store interface {
	CreateDraft(ctx context.Context, d store.Draft) (store.Draft, error)
	GetDraft(ctx context.Context, userID, id string) (store.Draft, error)
	ListDrafts(ctx context.Context, userID string, status store.DraftStatus, limit int) ([]store.Draft, error)
	UpdateDraftStatus(ctx context.Context, userID, id string, status store.DraftStatus) (store.Draft, error)
	DeleteDraft(ctx context.Context, userID, id string) error
}

// Generated is the model's structured reply.
type Generated struct {
	Text      string   `json:"text"`
	Hashtags  []string `json:"hashtags"`
	Reasoning string   `json:"reasoning,omitempty"`
}

// Service runs the generate, filter, save and review workflow.
const (
	draftMaxTokens = 500
	// variationSpread is added to the configured temperature so candidates differ.
	variationSpread = 0.2
)

func variationTemperature(base float64) float64 {
	return math.Min(base+variationSpread, 1)
}

type Service struct {
	gen    *generation.Client
	store  Store
	filter *contentfilter.Filter
	logger *slog.Logger
}

func NewService(gen *generation.Client, s Store, f *contentfilter.Filter, logger *slog.Logger) *Service {
	if f == nil {
		f = contentfilter.New()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{gen: gen, store: s, filter: f, logger: logger}
}

// Generate asks the model for a post, screens it and saves it as a draft.
// A post the filter rejects is not saved.
func (s *Service) Generate(ctx context.Context, userID string, opts Options) (store.Draft, error) {
	if err := opts.normalize(); err != nil {
		return store.Draft{}, apperr.Validation("options", "%s", err.Error())
	}
	post, err := generation.SendJSON[Generated](ctx, s.gen, SystemPrompt, BuildUserPrompt(opts),
		generation.SendOptions{MaxTokens: draftMaxTokens})
	if err != nil {
		return store.Draft{}, err
	}
	return s.screenAndSave(ctx, userID, opts.Topic, post)
}

// Regenerate rewrites an existing draft with feedback and saves the result
// as a new draft.
func (s *Service) Regenerate(ctx context.Context, userID, id, feedback string, opts Options) (store.Draft, error) {
	if strings.TrimSpace(feedback) == "" {
		return store.Draft{}, apperr.Validation("feedback", "Feedback is required")
	}
	if err := opts.normalize(); err != nil {
		return store.Draft{}, apperr.Validation("options", "%s", err.Error())
	}
	orig, err := s.store.GetDraft(ctx, userID, id)
	if err != nil {
		return store.Draft{}, err
	}
	post, err := generation.SendJSON[Generated](ctx, s.gen, SystemPrompt, BuildRegenerationPrompt(orig.Text, feedback, opts),
		generation.SendOptions{MaxTokens: draftMaxTokens})
	if err != nil {
		return store.Draft{}, err
	}
	return s.screenAndSave(ctx, userID, orig.Topic, post)
}

func (s *Service) screenAndSave(ctx context.Context, userID, topic string, post Generated) (store.Draft, error) {
	text := strings.TrimSpace(post.Text)
	verdict := s.filter.Check(text)
	if verdict.Recommendation == contentfilter.Reject {
		return store.Draft{}, apperr.Validation("text", "Generated post failed content filter: %s", strings.Join(verdict.Issues, ", "))
	}
	if verdict.Recommendation == contentfilter.Revise {
		s.logger.Warn("generated post has issues", "issues", verdict.Issues)
	}
	raw, err := json.Marshal(verdict)
	if err != nil {
		return store.Draft{}, err
	}
	d, err := s.store.CreateDraft(ctx, store.Draft{
		UserID:    userID,
		Text:      text,
		Hashtags:  post.Hashtags,
		Reasoning: post.Reasoning,
		Topic:     topic,
		Filter:    raw,
	})
	if err != nil {
		return store.Draft{}, err
	}
	s.logger.Info("draft saved", "draft_id", d.ID, "user_id", userID, "severity", verdict.Severity.String())
	return d, nil
}

// Variations generates count alternative drafts for the same options.
// Candidates the filter rejects are dropped; it fails only when none survive.
func (s *Service) Variations(ctx context.Context, userID string, opts Options, count int) ([]store.Draft, error) {
	if count < 1 || count > 5 {
		return nil, apperr.Validation("count", "Count must be between 1 and 5")
	}
	if err := opts.normalize(); err != nil {
		return nil, apperr.Validation("options", "%s", err.Error())
	}
	var (
		out     []store.Draft
		lastErr error
	)
	for i := 0; i < count; i++ {
		post, err := generation.SendJSON[Generated](ctx, s.gen, SystemPrompt, BuildUserPrompt(opts),
			generation.SendOptions{Temperature: variationTemperature(s.gen.Temperature()), MaxTokens: draftMaxTokens})
		if err != nil {
			return out, err
		}
		d, err := s.screenAndSave(ctx, userID, opts.Topic, post)
		if err != nil {
			if apperr.Is(err, apperr.KindValidation) {
				s.logger.Warn("variation dropped", "index", i, "error", err.Error())
				lastErr = err
				continue
			}
			return out, err
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, lastErr
	}
	return out, nil
}

// List returns drafts newest first. limit must be 1..100 (0 means 10).
func (s *Service) List(ctx context.Context, userID string, status store.DraftStatus, limit int) ([]store.Draft, error) {
	if limit == 0 {
		limit = 10
	}
	if limit < 1 || limit > 100 {
		return nil, apperr.Validation("limit", "Limit must be a number between 1 and 100")
	}
	switch status {
	case "", store.DraftPending, store.DraftApproved, store.DraftRejected, store.DraftPosted:
	default:
		return nil, apperr.Validation("status", "Unknown draft status %q", status)
	}
	return s.store.ListDrafts(ctx, userID, status, limit)
}

// Approve re-checks the draft text and marks it approved. Text that no
// longer passes validation or the filter stays a draft.
func (s *Service) Approve(ctx context.Context, userID, id string) (store.Draft, error) {
	d, err := s.store.GetDraft(ctx, userID, id)
	if err != nil {
		return store.Draft{}, err
	}
	if d.Status != store.DraftPending {
		return store.Draft{}, apperr.Validation("status", "Only drafts can be approved (status is %s)", d.Status)
	}
	if v := publish.ValidateText(d.Text); !v.Valid {
		return store.Draft{}, apperr.Validation("text", "%s", v.Errors[0])
	}
	if verdict := s.filter.Check(d.Text); verdict.Recommendation == contentfilter.Reject {
		return store.Draft{}, apperr.Validation("text", "Post cannot be approved: %s", strings.Join(verdict.Issues, ", "))
	}
	return s.store.UpdateDraftStatus(ctx, userID, id, store.DraftApproved)
}

// Reject marks the draft rejected.
func (s *Service) Reject(ctx context.Context, userID, id string) (store.Draft, error) {
	if _, err := s.store.GetDraft(ctx, userID, id); err != nil {
		return store.Draft{}, err
	}
	return s.store.UpdateDraftStatus(ctx, userID, id, store.DraftRejected)
}

func (s *Service) Delete(ctx context.Context, userID, id string) error {
	return s.store.DeleteDraft(ctx, userID, id)
}

// Publish posts an approved draft and marks it posted.
func (s *Service) Publish(ctx context.Context, p *publish.Publisher, userID, id string) (publish.Created, error) {
	d, err := s.store.GetDraft(ctx, userID, id)
	if err != nil {
		return publish.Created{}, err
	}
	if d.Status != store.DraftApproved {
		return publish.Created{}, apperr.Validation("status", "Only approved drafts can be published (status is %s)", d.Status)
	}
	c, err := p.Create(ctx, d.Text, publish.CreateOptions{})
	if err != nil {
		return publish.Created{}, err
	}
	if _, err := s.store.UpdateDraftStatus(ctx, userID, id, store.DraftPosted); err != nil {
		s.logger.Error("post published but draft status not updated", "draft_id", id, "tweet_id", c.ID, "error", err.Error())
	}
	return c, nil
}
