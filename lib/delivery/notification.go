package delivery

import (
	"crypto/md5"
	"strings"

	"github.com/fiffu/feedwatch/lib/models"
)

const (
	footerDateLayout = "02 Jan 2006 15:04:05"
	maxCategories    = 5
	ellipsis         = "..."
)

// BuildNotification turns one entry into the payload handed to senders.
func BuildNotification(doc *models.FeedDocument, entry models.Entry, feedURL string, maxLen int) *models.Notification {
	title := entry.Title
	if title == "" {
		title = entry.Link
	}
	return &models.Notification{
		Title:       title,
		URL:         entry.Link,
		Description: truncateRunes(entry.BodyText, maxLen),
		Color:       ColorForURL(feedURL),
		Timestamp:   entry.PublishedAt,
		ImageURL:    entry.LeadImageURL,
		Author:      entry.Author,
		Categories:  joinCategories(entry.Categories),
		FeedTitle:   doc.DisplayTitle(),
		FeedURL:     doc.Link,
		FeedIconURL: doc.ImageURL,
		Footer:      "Published on " + entry.PublishedAt.Format(footerDateLayout),
	}
}

// ColorForURL derives a stable embed colour from the feed URL, lifting dark
// colours so they stay readable.
func ColorForURL(url string) int {
	sum := md5.Sum([]byte(url))
	r, g, b := int(sum[0]), int(sum[1]), int(sum[2])
	if r+g+b < 300 {
		r, g, b = min(r+100, 255), min(g+100, 255), min(b+100, 255)
	}
	return r<<16 | g<<8 | b
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + ellipsis
}

func joinCategories(categories []string) string {
	if len(categories) == 0 {
		return ""
	}
	if len(categories) <= maxCategories {
		return strings.Join(categories, ", ")
	}
	return strings.Join(categories[:maxCategories], ", ") + ellipsis
}
