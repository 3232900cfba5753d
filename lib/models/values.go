package models

import (
	"crypto/sha1"
	"fmt"
	"time"
)

// Entry is a feed item after normalization. Identity is the explicit entry id,
// falling back to the permalink; it is empty when the feed gave neither.
type Entry struct {
	Identity     string
	PublishedAt  time.Time
	Title        string
	Link         string
	BodyText     string
	ContentText  string // full content blocks, used only for keyword matching
	Author       string
	Categories   []string
	LeadImageURL string
}

// FeedDocument is a fetched and normalized feed, entries in document order
// (conventionally newest first).
type FeedDocument struct {
	URL       string
	Title     string
	Link      string
	ImageURL  string
	Entries   []Entry
	Malformed bool
}

func (doc *FeedDocument) DisplayTitle() string {
	if doc.Title != "" {
		return doc.Title
	}
	return "RSS feed"
}

// Notification is the platform-neutral payload handed to senders.
type Notification struct {
	Title       string
	URL         string
	Description string
	Color       int
	Timestamp   time.Time
	ImageURL    string
	Author      string
	Categories  string
	FeedTitle   string
	FeedURL     string
	FeedIconURL string
	Footer      string
}

// LogMessage is an operational message sent to a tenant's log channel.
type LogMessage struct {
	Level     string
	Title     string
	Text      string
	Timestamp time.Time
}

func DigestContent(content string) string {
	return fmt.Sprintf("%x", sha1.Sum([]byte(content)))
}
