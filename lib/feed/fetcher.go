package feed

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/atom"
)

const defaultTimeout = 30 * time.Second

// Fetcher retrieves feeds over HTTP and normalizes their entries.
type Fetcher struct {
	transport http.RoundTripper
	userAgent string
	timeout   time.Duration
	now       func() time.Time
}

func NewFetcher(transport http.RoundTripper, userAgent string, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		transport: transport,
		userAgent: userAgent,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Fetch returns a *models.FetchError when the document cannot be retrieved and
// a *models.InvalidFeedError when it cannot be parsed into any entries.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*models.FeedDocument, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var body bytes.Buffer
	req := requests.URL(url).
		Transport(f.transport).
		Accept("application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8").
		ToBytesBuffer(&body)
	if f.userAgent != "" {
		req = req.Header("User-Agent", f.userAgent)
	}
	if err := req.Fetch(ctx); err != nil {
		return nil, &models.FetchError{URL: url, Err: err}
	}
	return f.Parse(url, body.Bytes())
}

// Parse turns a raw RSS/Atom document into a FeedDocument. A document the
// feed parser rejects, typically one cut off mid-transfer, is still accepted
// when its entries can be recovered; it is then flagged as Malformed.
func (f *Fetcher) Parse(url string, body []byte) (*models.FeedDocument, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return f.parseMalformed(url, body, err)
	}

	raws := make([]RawEntry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		raws = append(raws, rawEntry(item))
	}
	if parsed.FeedType == "atom" {
		attachAtomLinks(raws, body)
	}

	doc := &models.FeedDocument{
		URL:     url,
		Title:   parsed.Title,
		Link:    parsed.Link,
		Entries: make([]models.Entry, 0, len(raws)),
	}
	if parsed.Image != nil {
		doc.ImageURL = parsed.Image.URL
	}
	for _, raw := range raws {
		doc.Entries = append(doc.Entries, Normalize(raw, f.now))
	}
	return doc, nil
}

func (f *Fetcher) parseMalformed(url string, body []byte, parseErr error) (*models.FeedDocument, error) {
	rec := recoverEntries(body)
	if len(rec.entries) == 0 {
		return nil, &models.InvalidFeedError{URL: url, Err: parseErr}
	}

	doc := &models.FeedDocument{
		URL:       url,
		Title:     rec.title,
		Link:      rec.link,
		Entries:   make([]models.Entry, 0, len(rec.entries)),
		Malformed: true,
	}
	for _, raw := range rec.entries {
		doc.Entries = append(doc.Entries, Normalize(raw, f.now))
	}
	return doc, nil
}

func rawEntry(item *gofeed.Item) RawEntry {
	raw := RawEntry{
		ID:              item.GUID,
		Link:            item.Link,
		Title:           item.Title,
		Summary:         item.Description,
		Content:         item.Content,
		Published:       item.Published,
		Updated:         item.Updated,
		PublishedParsed: item.PublishedParsed,
		UpdatedParsed:   item.UpdatedParsed,
		Categories:      item.Categories,
	}
	if item.Author != nil {
		raw.Author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		raw.Author = item.Authors[0].Name
	}
	for _, media := range item.Extensions["media"]["content"] {
		if u := media.Attrs["url"]; u != "" {
			raw.Media = append(raw.Media, u)
		}
	}
	for _, enc := range item.Enclosures {
		if enc != nil {
			raw.Enclosures = append(raw.Enclosures, Link{Href: enc.URL, Type: enc.Type})
		}
	}
	return raw
}

// attachAtomLinks recovers typed <link> elements, which the universal
// gofeed model flattens to bare hrefs. Entries are matched by position.
func attachAtomLinks(raws []RawEntry, body []byte) {
	af, err := (&atom.Parser{}).Parse(bytes.NewReader(body))
	if err != nil || len(af.Entries) != len(raws) {
		return
	}
	for i, entry := range af.Entries {
		for _, link := range entry.Links {
			if link != nil {
				raws[i].Links = append(raws[i].Links, Link{Href: link.Href, Type: link.Type})
			}
		}
	}
}
