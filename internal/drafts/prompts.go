package drafts

import (
	"fmt"
	"strings"
)

type Tone string

const (
	Professional Tone = "professional"
	Casual       Tone = "casual"
	Humorous     Tone = "humorous"
)

type Length string

const (
	Short  Length = "short"
	Medium Length = "medium"
	Long   Length = "long"
)

var toneDescriptions = map[Tone]string{
	Professional: "Professional, authoritative, and trustworthy. Use industry terminology appropriately.",
	Casual:       "Conversational, friendly, and approachable. Like talking to a colleague over coffee.",
	Humorous:     "Light-hearted, witty, and entertaining. Use humor to make points memorable.",
}

var lengthTargets = map[Length]string{
	Short:  "~100-150 characters",
	Medium: "~150-220 characters",
	Long:   "~220-280 characters",
}

// SystemPrompt frames every generation request.
const SystemPrompt = `You are an expert X (formerly Twitter) post writer and social media strategist. Write engaging, high-quality posts that resonate with the target audience.

Rules:
- Keep posts concise and within 280 characters.
- Use clear, direct language and open with a hook.
- Use 2-3 relevant hashtags only when asked, emojis only when asked.
- Avoid clickbait, misleading, offensive or harmful content.
- Offer specific, original insight rather than generic statements.

Always answer with a single JSON object:
{
  "text": "The complete post text (max 280 characters)",
  "hashtags": ["hashtag1", "hashtag2"],
  "reasoning": "Brief explanation of why this post will perform well"
}`

// Options describe the post to generate.
type Options struct {
	Topic           string
	TrendingTopics  []string
	Expertise       []string
	Interests       []string
	Tone            Tone
	Length          Length
	IncludeHashtags bool
	IncludeEmoji    bool
	AvoidTopics     []string
	TargetAudience  string
}

func (o *Options) normalize() error {
	if o.Tone == "" {
		o.Tone = Professional
	}
	if o.Length == "" {
		o.Length = Medium
	}
	if _, ok := toneDescriptions[o.Tone]; !ok {
		return fmt.Errorf("tone %q is not professional, casual or humorous", o.Tone)
	}
	if _, ok := lengthTargets[o.Length]; !ok {
		return fmt.Errorf("length %q is not short, medium or long", o.Length)
	}
	return nil
}

// BuildUserPrompt renders the request for one post.
func BuildUserPrompt(o Options) string {
	var b strings.Builder
	b.WriteString("Create an engaging X post with the following requirements:\n\n")
	if o.Topic != "" {
		fmt.Fprintf(&b, "Main topic: %s\n\n", o.Topic)
	}
	if len(o.TrendingTopics) > 0 {
		fmt.Fprintf(&b, "Trending topics to consider: %s\nWork them in naturally if relevant.\n\n", strings.Join(o.TrendingTopics, ", "))
	}
	if len(o.Expertise) > 0 {
		fmt.Fprintf(&b, "Author expertise: %s\nUse it to offer a distinctive insight.\n\n", strings.Join(o.Expertise, ", "))
	}
	if len(o.Interests) > 0 {
		fmt.Fprintf(&b, "Author interests: %s\n\n", strings.Join(o.Interests, ", "))
	}
	fmt.Fprintf(&b, "Tone: %s. %s\n\n", o.Tone, toneDescriptions[o.Tone])
	fmt.Fprintf(&b, "Target length: %s\n\n", lengthTargets[o.Length])
	if o.IncludeHashtags {
		b.WriteString("Hashtags: include 2-3 relevant hashtags.\n")
	} else {
		b.WriteString("Hashtags: none in the text; return an empty array.\n")
	}
	if o.IncludeEmoji {
		b.WriteString("Emojis: use 1-2 relevant emojis.\n\n")
	} else {
		b.WriteString("Emojis: do not use emojis.\n\n")
	}
	if o.TargetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n\n", o.TargetAudience)
	}
	if len(o.AvoidTopics) > 0 {
		fmt.Fprintf(&b, "Do not mention: %s\n\n", strings.Join(o.AvoidTopics, ", "))
	}
	b.WriteString("Return ONLY the JSON object, no additional text.")
	return b.String()
}

// BuildRegenerationPrompt asks for an improved version of original.
func BuildRegenerationPrompt(original, feedback string, o Options) string {
	var b strings.Builder
	b.WriteString("Improve this X post based on feedback.\n\n")
	fmt.Fprintf(&b, "Original post:\n%q\n\n", original)
	fmt.Fprintf(&b, "Feedback:\n%s\n\n", feedback)
	fmt.Fprintf(&b, "Tone: %s\nLength: %s\n", o.Tone, o.Length)
	if len(o.AvoidTopics) > 0 {
		fmt.Fprintf(&b, "Do not mention: %s\n", strings.Join(o.AvoidTopics, ", "))
	}
	b.WriteString("\nKeep the core message. Return ONLY the JSON object.")
	return b.String()
}
