package feed

import (
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/fiffu/feedwatch/lib/models"
	"golang.org/x/net/html"
)

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// Link is a typed reference carried by an entry (enclosure or link element).
type Link struct {
	Href string
	Type string
}

// RawEntry is an entry as the parser saw it, before any fallback is applied.
type RawEntry struct {
	ID      string
	Link    string
	Title   string
	Summary string
	Content string

	Published       string
	Updated         string
	PublishedParsed *time.Time
	UpdatedParsed   *time.Time

	Author     string
	Categories []string
	Media      []string
	Enclosures []Link
	Links      []Link
}

func Normalize(raw RawEntry, now func() time.Time) models.Entry {
	content := StripHTML(raw.Content)
	body := StripHTML(raw.Summary)
	if body == "" {
		body = content
	}

	return models.Entry{
		Identity:     resolveIdentity(raw),
		PublishedAt:  resolveTimestamp(raw, now),
		Title:        decodeText(raw.Title),
		Link:         strings.TrimSpace(raw.Link),
		BodyText:     body,
		ContentText:  content,
		Author:       decodeText(raw.Author),
		Categories:   cleanCategories(raw.Categories),
		LeadImageURL: resolveLeadImage(raw),
	}
}

// decodeText resolves entity references the parser left in plain-text
// fields, which happens when a document mixes bare and escaped ampersands.
func decodeText(s string) string {
	return strings.TrimSpace(html.UnescapeString(s))
}

func resolveIdentity(raw RawEntry) string {
	if id := strings.TrimSpace(raw.ID); id != "" {
		return id
	}
	return strings.TrimSpace(raw.Link)
}

// resolveTimestamp walks published, updated, textual published, textual
// updated, then now. Feeds differ in which of these they fill in.
func resolveTimestamp(raw RawEntry, now func() time.Time) time.Time {
	if raw.PublishedParsed != nil {
		return *raw.PublishedParsed
	}
	if raw.UpdatedParsed != nil {
		return *raw.UpdatedParsed
	}
	if t, ok := parseInternetDate(raw.Published); ok {
		return t
	}
	if t, ok := parseInternetDate(raw.Updated); ok {
		return t
	}
	return now()
}

func parseInternetDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func resolveLeadImage(raw RawEntry) string {
	for _, u := range raw.Media {
		if hasImageExtension(u) {
			return u
		}
	}
	for _, enc := range raw.Enclosures {
		if isImageType(enc.Type) && enc.Href != "" {
			return enc.Href
		}
	}
	for _, link := range raw.Links {
		if isImageType(link.Type) && link.Href != "" {
			return link.Href
		}
	}
	return ""
}

func hasImageExtension(raw string) bool {
	path := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		path = u.Path
	}
	path = strings.ToLower(path)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

func isImageType(mime string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "image/")
}

func cleanCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		if c = decodeText(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}
