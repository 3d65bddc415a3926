package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agentx/internal/apperr"

	"github.com/google/uuid"
)

type DraftStatus string

const (
	DraftPending  DraftStatus = "draft"
	DraftApproved DraftStatus = "approved"
	DraftRejected DraftStatus = "rejected"
	DraftPosted   DraftStatus = "posted"
)

// Draft is a generated post awaiting review.
type Draft struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId"`
	Text      string          `json:"text"`
	Hashtags  []string        `json:"hashtags"`
	Reasoning string          `json:"reasoning,omitempty"`
	Topic     string          `json:"topic,omitempty"`
	Status    DraftStatus     `json:"status"`
	Filter    json.RawMessage `json:"filter,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CreateDraft assigns an id and timestamps and inserts d.
func (d *DB) CreateDraft(ctx context.Context, dr Draft) (Draft, error) {
	if dr.ID == "" {
		dr.ID = uuid.NewString()
	}
	if dr.Status == "" {
		dr.Status = DraftPending
	}
	now := d.now().UTC().Truncate(time.Millisecond)
	dr.CreatedAt, dr.UpdatedAt = now, now
	tags, err := json.Marshal(dr.Hashtags)
	if err != nil {
		return Draft{}, err
	}
	_, err = d.sql.ExecContext(ctx, `INSERT INTO drafts(id, user_id, text, hashtags, reasoning, topic, status, filter, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?)`,
		dr.ID, dr.UserID, dr.Text, string(tags), dr.Reasoning, dr.Topic, string(dr.Status), nullJSON(dr.Filter),
		now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return Draft{}, fmt.Errorf("insert draft: %w", err)
	}
	return dr, nil
}

// GetDraft returns userID's draft id, NotFound when missing or owned by
// someone else.
func (d *DB) GetDraft(ctx context.Context, userID, id string) (Draft, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT id, user_id, text, hashtags, COALESCE(reasoning,''), COALESCE(topic,''),
		status, filter, created_at, updated_at FROM drafts WHERE id=? AND user_id=?`, id, userID)
	dr, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, apperr.New(apperr.KindNotFound, "Draft not found")
	}
	return dr, err
}

// ListDrafts returns userID's drafts newest first, optionally by status.
func (d *DB) ListDrafts(ctx context.Context, userID string, status DraftStatus, limit int) ([]Draft, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, user_id, text, hashtags, COALESCE(reasoning,''), COALESCE(topic,''),
		status, filter, created_at, updated_at FROM drafts WHERE user_id=?`
	args := []any{userID}
	if status != "" {
		q += ` AND status=?`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Draft
	for rows.Next() {
		dr, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, dr)
	}
	return out, rows.Err()
}

// UpdateDraftStatus moves a draft to status.
func (d *DB) UpdateDraftStatus(ctx context.Context, userID, id string, status DraftStatus) (Draft, error) {
	res, err := d.sql.ExecContext(ctx, `UPDATE drafts SET status=?, updated_at=? WHERE id=? AND user_id=?`,
		string(status), d.now().UTC().UnixMilli(), id, userID)
	if err != nil {
		return Draft{}, fmt.Errorf("update draft %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Draft{}, apperr.New(apperr.KindNotFound, "Draft not found")
	}
	return d.GetDraft(ctx, userID, id)
}

// DeleteDraft removes a draft.
func (d *DB) DeleteDraft(ctx context.Context, userID, id string) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM drafts WHERE id=? AND user_id=?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.New(apperr.KindNotFound, "Draft not found")
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

func scanDraft(s scanner) (Draft, error) {
	var dr Draft
	var tags, status string
	var filter sql.NullString
	var created, updated int64
	if err := s.Scan(&dr.ID, &dr.UserID, &dr.Text, &tags, &dr.Reasoning, &dr.Topic, &status, &filter, &created, &updated); err != nil {
		return Draft{}, err
	}
	if tags != "" {
		_ = json.Unmarshal([]byte(tags), &dr.Hashtags)
	}
	if filter.Valid {
		dr.Filter = json.RawMessage(filter.String)
	}
	dr.Status = DraftStatus(status)
	dr.CreatedAt = time.UnixMilli(created).UTC()
	dr.UpdatedAt = time.UnixMilli(updated).UTC()
	return dr, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
