package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestNormalizeIdentity(t *testing.T) {
	assert.Equal(t, "id-1", Normalize(RawEntry{ID: "id-1", Link: "https://x/y"}, fixedNow).Identity)
	assert.Equal(t, "https://x/y", Normalize(RawEntry{Link: "https://x/y"}, fixedNow).Identity)
	assert.Equal(t, "", Normalize(RawEntry{Title: "orphan"}, fixedNow).Identity)
}

func TestNormalizeTimestampChain(t *testing.T) {
	published := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name string
		raw  RawEntry
		want time.Time
	}{
		{"structured published", RawEntry{PublishedParsed: &published, UpdatedParsed: &updated}, published},
		{"structured updated", RawEntry{UpdatedParsed: &updated, Published: "Mon, 05 Jan 2026 10:00:00 +0000"}, updated},
		{"textual published", RawEntry{Published: "Mon, 05 Jan 2026 10:00:00 +0000", Updated: "2026-01-06T00:00:00Z"}, time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)},
		{"textual updated", RawEntry{Published: "garbage", Updated: "2026-01-06T00:00:00Z"}, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)},
		{"now", RawEntry{Published: "garbage"}, fixedNow()},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.raw, fixedNow).PublishedAt
			assert.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
		})
	}
}

func TestNormalizeBodyPrefersSummary(t *testing.T) {
	e := Normalize(RawEntry{Summary: "<p>short</p>", Content: "<div>long <em>form</em></div>"}, fixedNow)
	assert.Equal(t, "short", e.BodyText)
	assert.Equal(t, "long form", e.ContentText)

	e = Normalize(RawEntry{Content: "<div>long <em>form</em></div>"}, fixedNow)
	assert.Equal(t, "long form", e.BodyText)
}

func TestNormalizeLeadImage(t *testing.T) {
	testCases := []struct {
		name string
		raw  RawEntry
		want string
	}{
		{
			"media with extension wins",
			RawEntry{
				Media:      []string{"https://x/video.mp4", "https://x/a.JPEG"},
				Enclosures: []Link{{Href: "https://x/enc", Type: "image/png"}},
			},
			"https://x/a.JPEG",
		},
		{
			"enclosure with image type",
			RawEntry{
				Media:      []string{"https://x/noext"},
				Enclosures: []Link{{Href: "https://x/audio", Type: "audio/mpeg"}, {Href: "https://x/enc", Type: "image/png"}},
				Links:      []Link{{Href: "https://x/link", Type: "image/gif"}},
			},
			"https://x/enc",
		},
		{
			"typed link",
			RawEntry{Links: []Link{{Href: "https://x/page", Type: "text/html"}, {Href: "https://x/link", Type: "image/gif"}}},
			"https://x/link",
		},
		{"none", RawEntry{}, ""},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.raw, fixedNow).LeadImageURL)
		})
	}
}

func TestNormalizeCategories(t *testing.T) {
	e := Normalize(RawEntry{Categories: []string{" a ", "", "b"}}, fixedNow)
	assert.Equal(t, []string{"a", "b"}, e.Categories)
}

func TestNormalizeDecodesEntities(t *testing.T) {
	e := Normalize(RawEntry{
		ID:         "1",
		Title:      " A & B &amp; C ",
		Author:     "Tom &amp; Jerry",
		Categories: []string{"R&amp;D", "&#34;quoted&#34;"},
	}, fixedNow)
	assert.Equal(t, "A & B & C", e.Title)
	assert.Equal(t, "Tom & Jerry", e.Author)
	assert.Equal(t, []string{"R&D", `"quoted"`}, e.Categories)
}
