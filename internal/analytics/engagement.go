package analytics

import (
	"sort"
	"strings"
	"time"

	"agentx/internal/posts"
)

// Order of an engagement ranking.
type Order int

const (
	Descending Order = iota
	Ascending
)

// SortByEngagement returns a copy of tweets ordered by engagement rate.
// The sort is stable; tweets without metrics rank as 0.
func SortByEngagement(tweets []posts.Tweet, order Order) []posts.Tweet {
	out := make([]posts.Tweet, len(tweets))
	copy(out, tweets)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].EngagementRate(), out[j].EngagementRate()
		if order == Ascending {
			return a < b
		}
		return a > b
	})
	return out
}

// TopTweets returns the n most engaging tweets; n <= 0 means 10.
func TopTweets(tweets []posts.Tweet, n int) []posts.Tweet {
	if n <= 0 {
		n = 10
	}
	sorted := SortByEngagement(tweets, Descending)
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// FilterByEngagement keeps tweets with metrics whose rate is at least min.
func FilterByEngagement(tweets []posts.Tweet, min float64) []posts.Tweet {
	var out []posts.Tweet
	for _, t := range tweets {
		if t.PublicMetrics == nil {
			continue
		}
		if t.EngagementRate() >= min {
			out = append(out, t)
		}
	}
	return out
}

// Summary aggregates a set of tweets.
type Summary struct {
	Count              int
	WithMetrics        int
	TotalImpressions   int
	TotalEngagements   int
	MeanEngagementRate float64 // over tweets with metrics
	WithLinks          int
	TopHashtags        []TagCount `json:",omitempty"`
}

// TagCount is how often a hashtag occurs in a set of tweets.
type TagCount struct {
	Tag   string
	Count int
}

const maxSummaryTags = 5

func Summarize(tweets []posts.Tweet) Summary {
	var s Summary
	s.Count = len(tweets)
	var rateSum float64
	tags := make(map[string]int)
	for _, t := range tweets {
		if t.HasLink() {
			s.WithLinks++
		}
		for _, tag := range t.Hashtags() {
			tags[strings.ToLower(tag)]++
		}
		m := t.PublicMetrics
		if m == nil {
			continue
		}
		s.WithMetrics++
		s.TotalImpressions += m.ImpressionCount
		s.TotalEngagements += m.LikeCount + m.RetweetCount + m.ReplyCount
		rateSum += m.EngagementRate()
	}
	if s.WithMetrics > 0 {
		s.MeanEngagementRate = rateSum / float64(s.WithMetrics)
	}
	s.TopHashtags = topTags(tags, maxSummaryTags)
	return s
}

// topTags orders by count then tag, keeping at most n.
func topTags(tags map[string]int, n int) []TagCount {
	out := make([]TagCount, 0, len(tags))
	for tag, c := range tags {
		out = append(out, TagCount{Tag: tag, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// HourStats is the engagement posted within one hour.
type HourStats struct {
	Tweets      int
	Likes       int
	Retweets    int
	Replies     int
	Impressions int
}

// HourlyEngagement aggregates tweets into per-hour buckets of creation time.
// Tweets without a creation time are skipped.
func HourlyEngagement(tweets []posts.Tweet) map[time.Time]HourStats {
	buckets := make(map[time.Time]HourStats)
	for _, t := range tweets {
		if t.CreatedAt.IsZero() {
			continue
		}
		c := t.CreatedAt.UTC()
		key := time.Date(c.Year(), c.Month(), c.Day(), c.Hour(), 0, 0, 0, time.UTC)
		h := buckets[key]
		h.Tweets++
		if m := t.PublicMetrics; m != nil {
			h.Likes += m.LikeCount
			h.Retweets += m.RetweetCount
			h.Replies += m.ReplyCount
			h.Impressions += m.ImpressionCount
		}
		buckets[key] = h
	}
	return buckets
}

// SortedBucketKeys returns sorted hour keys.
func SortedBucketKeys(m map[time.Time]HourStats) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// HourBucket is one row of an hourly breakdown.
type HourBucket struct {
	Hour time.Time
	HourStats
}

// Hourly returns the per-hour buckets of tweets in chronological order.
func Hourly(tweets []posts.Tweet) []HourBucket {
	buckets := HourlyEngagement(tweets)
	out := make([]HourBucket, 0, len(buckets))
	for _, k := range SortedBucketKeys(buckets) {
		out = append(out, HourBucket{Hour: k, HourStats: buckets[k]})
	}
	return out
}
