// Package notemeta extracts metadata from note events: hashtags,
// content warnings, bridged-user markers and media URLs. All functions
// are pure and safe on events from untrusted relays.
package notemeta

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// MediaType categorizes a URL by its path extension.
type MediaType string

const (
	MediaImage   MediaType = "image"
	MediaVideo   MediaType = "video"
	MediaLink    MediaType = "link"
	MediaUnknown MediaType = "unknown"
)

// Hashtags returns the values of all "t" tags in order.
func Hashtags(tags nostr.Tags) []string {
	var out []string
	for _, tag := range tags {
		if len(tag) >= 2 && tag[0] == "t" {
			out = append(out, tag[1])
		}
	}
	return out
}

// HasContentWarning reports whether the event carries a content-warning tag.
func HasContentWarning(tags nostr.Tags) bool {
	for _, tag := range tags {
		if len(tag) >= 1 && tag[0] == "content-warning" {
			return true
		}
	}
	return false
}

// HasNsfwHashtag reports whether any hashtag is "nsfw", case-insensitively.
func HasNsfwHashtag(hashtags []string) bool {
	for _, h := range hashtags {
		if strings.EqualFold(h, "nsfw") {
			return true
		}
	}
	return false
}

// IsBridgedUser reports whether the author is bridged from another network.
// Bridges mark their events with a 3-element proxy tag whose last element
// is "activitypub".
func IsBridgedUser(tags nostr.Tags) bool {
	for _, tag := range tags {
		if len(tag) == 3 && tag[0] == "proxy" && tag[2] == "activitypub" {
			return true
		}
	}
	return false
}

// IsRootNote reports whether the note is not a reply (has no "e" tag).
func IsRootNote(tags nostr.Tags) bool {
	for _, tag := range tags {
		if len(tag) >= 1 && tag[0] == "e" {
			return false
		}
	}
	return true
}

// urlPattern matches http/https URLs in free text. Trailing punctuation
// that commonly follows a URL in prose is excluded.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

var trailingPunct = regexp.MustCompile(`[.,;:!?)\]}>]+$`)

// ExtractURLs returns all http(s) URLs found in text.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, trailingPunct.ReplaceAllString(m, ""))
	}
	return out
}

// URLType categorizes a URL by the extension of its path, ignoring the
// query string.
func URLType(rawURL string) MediaType {
	path := rawURL
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}

	dot := strings.LastIndex(path, ".")
	if dot == -1 {
		return MediaUnknown
	}

	switch strings.ToLower(path[dot:]) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return MediaImage
	case ".mp4", ".mov", ".wmv", ".m3u8":
		return MediaVideo
	default:
		return MediaLink
	}
}

// StripQueryParams returns the URL with its query string removed.
// Malformed URLs are returned unchanged.
func StripQueryParams(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	return u.String()
}

// Extractor finds media URLs in note content. Extra patterns extend the
// extension-based detection for hosts that serve media without one.
type Extractor struct {
	extraPatterns []*regexp.Regexp
}

// NewExtractor compiles the extra media URL patterns. Invalid patterns
// are an error; config validates them beforehand.
func NewExtractor(extraPatterns []string) (*Extractor, error) {
	e := &Extractor{}
	for _, p := range extraPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		e.extraPatterns = append(e.extraPatterns, re)
	}
	return e, nil
}

// MediaURLs returns the URLs in content that look like images or videos,
// query strings stripped, duplicates removed, in order of appearance.
func (e *Extractor) MediaURLs(content string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, raw := range ExtractURLs(content) {
		if !e.isMedia(raw) {
			continue
		}
		cleaned := StripQueryParams(raw)
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

func (e *Extractor) isMedia(rawURL string) bool {
	switch URLType(rawURL) {
	case MediaImage, MediaVideo:
		return true
	}
	for _, re := range e.extraPatterns {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return false
}
