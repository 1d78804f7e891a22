package text

import (
	"html"
	"regexp"
	"strings"
)

// Entities is the structured content derived from a status text.
type Entities struct {
	Mentions   []string
	Hashtags   []string
	References []string
}

var (
	reTag     = regexp.MustCompile(`<[^>]*>`)
	reSpace   = regexp.MustCompile(`\s+`)
	reMention = regexp.MustCompile(`(?:^|[^/\w])@([a-zA-Z0-9_]+(?:@[a-zA-Z0-9.\-]+[a-zA-Z0-9]+)?)`)
	reHashtag = regexp.MustCompile(`(?:^|[^/\w])#([\p{L}\p{N}_·]+)`)
	reRef     = regexp.MustCompile(`https?://[^\s<>"']+[^\s<>"'.,;:!?)]`)
)

// Extract parses raw status text into mention handles, hashtag names and
// referenced status URIs. Hashtags are lowercased and deduplicated,
// preserving first-seen order.
func Extract(raw string) (e Entities) {
	plain := Strip(raw)
	seenMentions := map[string]bool{}
	for _, m := range reMention.FindAllStringSubmatch(plain, -1) {
		acct := strings.ToLower(m[1])
		if !seenMentions[acct] {
			seenMentions[acct] = true
			e.Mentions = append(e.Mentions, acct)
		}
	}
	seenTags := map[string]bool{}
	for _, m := range reHashtag.FindAllStringSubmatch(plain, -1) {
		tag := strings.ToLower(m[1])
		if !seenTags[tag] {
			seenTags[tag] = true
			e.Hashtags = append(e.Hashtags, tag)
		}
	}
	seenRefs := map[string]bool{}
	for _, u := range reRef.FindAllString(plain, -1) {
		if !seenRefs[u] {
			seenRefs[u] = true
			e.References = append(e.References, u)
		}
	}
	return
}

// Strip removes markup and collapses whitespace, leaving the plain text.
func Strip(raw string) string {
	plain := reTag.ReplaceAllString(raw, " ")
	plain = html.UnescapeString(plain)
	plain = reSpace.ReplaceAllString(plain, " ")
	return strings.TrimSpace(plain)
}

// Searchable produces the canonical representation keyword filters and NG
// rules match against: content warning followed by the stripped text,
// lowercased.
func Searchable(raw, spoiler string) string {
	var sb strings.Builder
	if spoiler != "" {
		sb.WriteString(spoiler)
		sb.WriteString("\n\n")
	}
	sb.WriteString(Strip(raw))
	return strings.ToLower(sb.String())
}

// EqualContent reports whether two texts are the same once markup that the
// sanitizer would discard is removed. Edits differing only in such markup
// are not material.
func EqualContent(a, b string) bool {
	return Strip(a) == Strip(b)
}
