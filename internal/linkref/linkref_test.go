package linkref

import (
	"errors"
	"testing"

	"eclipse/internal/media"
	"eclipse/internal/services"
)

func TestResolveSupportedShapes(t *testing.T) {
	cases := []struct {
		name string
		link string
		want media.PostRef
	}{
		{"post", "https://www.instagram.com/p/Cxyz123_-/", media.PostRef{Kind: media.RefPost, PrimaryID: "Cxyz123_-"}},
		{"reel", "https://instagram.com/reel/DAbc987", media.PostRef{Kind: media.RefPost, PrimaryID: "DAbc987"}},
		{"reels plural", "https://www.instagram.com/reels/DAbc987/", media.PostRef{Kind: media.RefPost, PrimaryID: "DAbc987"}},
		{"igtv", "https://www.instagram.com/tv/Bqrs456/", media.PostRef{Kind: media.RefPost, PrimaryID: "Bqrs456"}},
		{"post with query", "https://www.instagram.com/p/Cxyz123/?igsh=tracking", media.PostRef{Kind: media.RefPost, PrimaryID: "Cxyz123"}},
		{"scheme omitted", "instagram.com/p/Cxyz123", media.PostRef{Kind: media.RefPost, PrimaryID: "Cxyz123"}},
		{"story with item", "https://www.instagram.com/stories/natgeo/3141592653589/", media.PostRef{Kind: media.RefStory, PrimaryID: "natgeo", SecondaryID: "3141592653589"}},
		{"story without item", "https://www.instagram.com/stories/natgeo/", media.PostRef{Kind: media.RefStory, PrimaryID: "natgeo"}},
		{"highlight", "https://www.instagram.com/stories/highlights/17895123456789/", media.PostRef{Kind: media.RefHighlight, PrimaryID: "17895123456789"}},
		{"profile path", "https://www.instagram.com/nat.geo_travel/", media.PostRef{Kind: media.RefStory, PrimaryID: "nat.geo_travel"}},
		{"bare username", "@NatGeo", media.PostRef{Kind: media.RefStory, PrimaryID: "natgeo"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.link)
			if err != nil {
				t.Fatalf("resolve %q: %v", tc.link, err)
			}
			if got != tc.want {
				t.Fatalf("resolve %q = %+v, want %+v", tc.link, got, tc.want)
			}
		})
	}
}

func TestResolveRejectsUnrecognized(t *testing.T) {
	links := []string{
		"",
		"https://example.com/p/Cxyz123/",
		"https://www.instagram.com/",
		"https://www.instagram.com/explore/tags/sunset/",
		"https://www.instagram.com/p/",
		"https://www.instagram.com/accounts/login/",
		"not a link at all with spaces",
	}
	for _, link := range links {
		if _, err := Resolve(link); !errors.Is(err, services.ErrLinkNotRecognized) {
			t.Fatalf("resolve %q: expected ErrLinkNotRecognized, got %v", link, err)
		}
	}
}

func TestResolveHighlightBeforeStory(t *testing.T) {
	// "highlights" must never be treated as a story owner username.
	got, err := Resolve("https://www.instagram.com/stories/highlights/123/")
	if err != nil {
		t.Fatal(err)
	}
	if got.Kind != media.RefHighlight || got.PrimaryID != "123" {
		t.Fatalf("got %+v", got)
	}

	// Without a highlight id there is nothing to resolve.
	for _, link := range []string{
		"https://www.instagram.com/stories/highlights/",
		"https://www.instagram.com/stories/highlights",
	} {
		if _, err := Resolve(link); !errors.Is(err, services.ErrLinkNotRecognized) {
			t.Fatalf("resolve %q: expected ErrLinkNotRecognized, got %v", link, err)
		}
	}
}
