// Package linkref classifies Instagram links into typed post references.
// Resolution is pure string work; no network access happens here.
package linkref

import (
	"net/url"
	"regexp"
	"strings"

	"eclipse/internal/media"
	"eclipse/internal/services"
)

// Patterns are tried in order; path segments make them mutually exclusive,
// so the first match is the only possible match.
var (
	postPattern      = regexp.MustCompile(`^/(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)/?$`)
	highlightPattern = regexp.MustCompile(`^/stories/highlights/([0-9]+)/?$`)
	storyPattern     = regexp.MustCompile(`^/stories/([A-Za-z0-9._]+)(?:/([0-9]+))?/?$`)
	profilePattern   = regexp.MustCompile(`^/([A-Za-z0-9._]+)/?$`)
	usernamePattern  = regexp.MustCompile(`^@([A-Za-z0-9._]+)$`)
)

// Reserved first path segments that look like usernames but are not.
var reservedSegments = map[string]struct{}{
	"p": {}, "reel": {}, "reels": {}, "tv": {}, "stories": {},
	"highlights": {}, "explore": {}, "accounts": {}, "about": {}, "developer": {},
}

// Resolve parses trimmed link text into a PostRef. Unrecognized input is
// reported as services.ErrLinkNotRecognized.
func Resolve(raw string) (media.PostRef, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return media.PostRef{}, services.Wrap(services.ErrLinkNotRecognized, "resolve", "", "empty input", nil)
	}

	// Bare @username asks for the user's most recent story.
	if m := usernamePattern.FindStringSubmatch(trimmed); m != nil {
		return media.PostRef{Kind: media.RefStory, PrimaryID: strings.ToLower(m[1])}, nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		parsed, err = url.Parse("https://" + trimmed)
	}
	if err != nil {
		return media.PostRef{}, services.Wrap(services.ErrLinkNotRecognized, "resolve", "", "unparseable link", err)
	}

	host := strings.ToLower(parsed.Hostname())
	if host != "instagram.com" && !strings.HasSuffix(host, ".instagram.com") {
		return media.PostRef{}, services.Wrap(services.ErrLinkNotRecognized, "resolve", "", "not an instagram link", nil)
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	if m := postPattern.FindStringSubmatch(path); m != nil {
		return media.PostRef{Kind: media.RefPost, PrimaryID: m[1]}, nil
	}
	if m := highlightPattern.FindStringSubmatch(path); m != nil {
		return media.PostRef{Kind: media.RefHighlight, PrimaryID: m[1]}, nil
	}
	if m := storyPattern.FindStringSubmatch(path); m != nil {
		if _, reserved := reservedSegments[strings.ToLower(m[1])]; !reserved {
			return media.PostRef{Kind: media.RefStory, PrimaryID: strings.ToLower(m[1]), SecondaryID: m[2]}, nil
		}
	}
	if m := profilePattern.FindStringSubmatch(path); m != nil {
		if _, reserved := reservedSegments[strings.ToLower(m[1])]; !reserved {
			return media.PostRef{Kind: media.RefStory, PrimaryID: strings.ToLower(m[1])}, nil
		}
	}

	return media.PostRef{}, services.Wrap(services.ErrLinkNotRecognized, "resolve", "", "unsupported link shape", nil)
}
