package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CollectedPost is a post saved by a collection run for one user.
type CollectedPost struct {
	ID              int64
	UserID          string
	TweetID         string
	AuthorID        string
	Text            string
	Lang            string
	Keyword         string
	PostedAt        time.Time
	LikeCount       int
	RetweetCount    int
	ReplyCount      int
	QuoteCount      int
	ImpressionCount int
	EngagementRate  float64
	CollectedAt     time.Time
}

// ExistsPost reports whether userID already collected tweetID.
func (d *DB) ExistsPost(ctx context.Context, tweetID, userID string) (bool, error) {
	var one int
	err := d.sql.QueryRowContext(ctx, `SELECT 1 FROM collected_posts WHERE tweet_id=? AND user_id=?`, tweetID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check post %s: %w", tweetID, err)
	}
	return true, nil
}

// CreatePost inserts p and returns its row id. A post already collected by
// the same user is rejected by the unique index.
func (d *DB) CreatePost(ctx context.Context, p CollectedPost) (int64, error) {
	if p.CollectedAt.IsZero() {
		p.CollectedAt = d.now().UTC()
	}
	res, err := d.sql.ExecContext(ctx, `INSERT INTO collected_posts(
		user_id, tweet_id, author_id, text, lang, keyword, posted_at,
		like_count, retweet_count, reply_count, quote_count, impression_count,
		engagement_rate, collected_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.UserID, p.TweetID, p.AuthorID, p.Text, p.Lang, p.Keyword, millis(p.PostedAt),
		p.LikeCount, p.RetweetCount, p.ReplyCount, p.QuoteCount, p.ImpressionCount,
		p.EngagementRate, p.CollectedAt.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert post %s: %w", p.TweetID, err)
	}
	return res.LastInsertId()
}

// ListPosts returns userID's posts, most recently collected first.
func (d *DB) ListPosts(ctx context.Context, userID string, limit int) ([]CollectedPost, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.sql.QueryContext(ctx, `SELECT id, user_id, tweet_id, COALESCE(author_id,''), text,
		COALESCE(lang,''), COALESCE(keyword,''), posted_at, like_count, retweet_count, reply_count,
		quote_count, impression_count, engagement_rate, collected_at
		FROM collected_posts WHERE user_id=? ORDER BY collected_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CollectedPost
	for rows.Next() {
		var p CollectedPost
		var posted sql.NullInt64
		var collected int64
		if err := rows.Scan(&p.ID, &p.UserID, &p.TweetID, &p.AuthorID, &p.Text, &p.Lang, &p.Keyword,
			&posted, &p.LikeCount, &p.RetweetCount, &p.ReplyCount, &p.QuoteCount, &p.ImpressionCount,
			&p.EngagementRate, &collected); err != nil {
			return nil, err
		}
		p.PostedAt = fromMillis(posted)
		p.CollectedAt = time.UnixMilli(collected).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPosts returns how many posts userID has collected.
func (d *DB) CountPosts(ctx context.Context, userID string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM collected_posts WHERE user_id=?`, userID).Scan(&n)
	return n, err
}
