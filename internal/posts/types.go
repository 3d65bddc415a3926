package posts

import "time"

// Tweet is the subset of X API v2 tweet fields the collector requests.
type Tweet struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	AuthorID       string         `json:"author_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Lang           string         `json:"lang,omitempty"`
	PublicMetrics  *PublicMetrics `json:"public_metrics,omitempty"`
	Entities       *Entities      `json:"entities,omitempty"`
}

// EngagementRate of the tweet; 0 without metrics.
func (t Tweet) EngagementRate() float64 { return ComputeEngagementRate(t.PublicMetrics) }

// HasLink reports whether the tweet carries a URL entity.
func (t Tweet) HasLink() bool { return t.Entities != nil && len(t.Entities.URLs) > 0 }

// Hashtags returns the hashtag entities without the leading '#'.
func (t Tweet) Hashtags() []string {
	if t.Entities == nil {
		return nil
	}
	out := make([]string, 0, len(t.Entities.Hashtags))
	for _, h := range t.Entities.Hashtags {
		out = append(out, h.Tag)
	}
	return out
}

// PublicMetrics are the engagement counters X reports for a tweet.
type PublicMetrics struct {
	RetweetCount    int `json:"retweet_count"`
	ReplyCount      int `json:"reply_count"`
	LikeCount       int `json:"like_count"`
	QuoteCount      int `json:"quote_count"`
	BookmarkCount   int `json:"bookmark_count"`
	ImpressionCount int `json:"impression_count"`
}

// EngagementRate is (likes+retweets+replies)/impressions*100, 0 when
// there are no impressions.
func (m PublicMetrics) EngagementRate() float64 {
	if m.ImpressionCount <= 0 {
		return 0
	}
	total := m.LikeCount + m.RetweetCount + m.ReplyCount
	return float64(total) * 100 / float64(m.ImpressionCount)
}

// ComputeEngagementRate is EngagementRate tolerating absent metrics.
func ComputeEngagementRate(m *PublicMetrics) float64 {
	if m == nil {
		return 0
	}
	return m.EngagementRate()
}

type Entities struct {
	Hashtags []struct {
		Tag string `json:"tag"`
	} `json:"hashtags,omitempty"`
	Mentions []struct {
		Username string `json:"username"`
	} `json:"mentions,omitempty"`
	URLs []struct {
		URL         string `json:"url"`
		ExpandedURL string `json:"expanded_url"`
	} `json:"urls,omitempty"`
}

// User is an expanded author.
type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Username        string `json:"username"`
	ProfileImageURL string `json:"profile_image_url,omitempty"`
	Verified        bool   `json:"verified,omitempty"`
	VerifiedType    string `json:"verified_type,omitempty"`
}

// SearchMeta is the pagination metadata of a search page.
type SearchMeta struct {
	ResultCount int    `json:"result_count"`
	NextToken   string `json:"next_token,omitempty"`
	NewestID    string `json:"newest_id,omitempty"`
	OldestID    string `json:"oldest_id,omitempty"`
}

// TweetMetrics is a flattened metrics view with the derived rate.
type TweetMetrics struct {
	TweetID        string  `json:"tweetId"`
	Likes          int     `json:"likes"`
	Retweets       int     `json:"retweets"`
	Replies        int     `json:"replies"`
	Quotes         int     `json:"quotes"`
	Bookmarks      int     `json:"bookmarks"`
	Impressions    int     `json:"impressions"`
	EngagementRate float64 `json:"engagementRate"`
}

func metricsOf(t Tweet) TweetMetrics {
	var m PublicMetrics
	if t.PublicMetrics != nil {
		m = *t.PublicMetrics
	}
	return TweetMetrics{
		TweetID:        t.ID,
		Likes:          m.LikeCount,
		Retweets:       m.RetweetCount,
		Replies:        m.ReplyCount,
		Quotes:         m.QuoteCount,
		Bookmarks:      m.BookmarkCount,
		Impressions:    m.ImpressionCount,
		EngagementRate: m.EngagementRate(),
	}
}
