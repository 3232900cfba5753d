package app

import (
	"database/sql"
	"time"

	"github.com/fiffu/feedwatch/lib"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/lib/poller"
)

type TenantView struct {
	ID             string             `json:"id"`
	Destination    string             `json:"destination"`
	LogDestination *string            `json:"log_destination"`
	Keywords       []string           `json:"keywords"`
	Subscriptions  []SubscriptionView `json:"subscriptions"`
}

type SubscriptionView struct {
	URL       string  `json:"url"`
	Watermark *string `json:"watermark"`
}

type SubscribeView struct {
	URL        string  `json:"url"`
	FeedTitle  string  `json:"feed_title"`
	FeedLink   string  `json:"feed_link"`
	ImageURL   string  `json:"image_url,omitempty"`
	EntryCount int     `json:"entry_count"`
	Watermark  *string `json:"watermark"`
	Warning    string  `json:"warning,omitempty"`
}

type EntryView struct {
	Identity    string   `json:"identity"`
	Title       string   `json:"title"`
	Link        string   `json:"link"`
	PublishedAt string   `json:"published_at"`
	Author      string   `json:"author,omitempty"`
	Categories  []string `json:"categories,omitempty"`
}

type TestView struct {
	FeedTitle   string    `json:"feed_title"`
	Entry       EntryView `json:"entry"`
	Description string    `json:"description"`
	Keywords    []string  `json:"keywords"`
	Matches     bool      `json:"matches"`
}

type CycleReportView struct {
	ID           string   `json:"id"`
	Trigger      string   `json:"trigger"`
	FeedsChecked int      `json:"feeds_checked"`
	Delivered    int      `json:"delivered"`
	Filtered     int      `json:"filtered"`
	Bootstrapped int      `json:"bootstrapped"`
	Errored      int      `json:"errored"`
	Errors       []string `json:"errors"`
	ElapsedMS    int64    `json:"elapsed_ms"`
}

func (view TenantView) From(entity *models.Tenant) TenantView {
	v := TenantView{
		ID:            entity.ID,
		Destination:   entity.Destination.String(),
		Keywords:      nonNil(entity.Keywords),
		Subscriptions: FromMany[models.Subscription, SubscriptionView](entity.Subscriptions),
	}
	if entity.LogDestination != nil {
		s := entity.LogDestination.String()
		v.LogDestination = &s
	}
	return v
}

func (view SubscriptionView) From(entity models.Subscription) SubscriptionView {
	return SubscriptionView{URL: entity.URL, Watermark: nullable(entity.Watermark)}
}

func (view SubscribeView) From(res *lib.SubscribeResult) SubscribeView {
	return SubscribeView{
		URL:        res.URL,
		FeedTitle:  res.FeedTitle,
		FeedLink:   res.FeedLink,
		ImageURL:   res.ImageURL,
		EntryCount: res.EntryCount,
		Watermark:  nullable(res.Watermark),
	}
}

func (view EntryView) From(entity models.Entry) EntryView {
	return EntryView{
		Identity:    entity.Identity,
		Title:       entity.Title,
		Link:        entity.Link,
		PublishedAt: entity.PublishedAt.UTC().Format(time.RFC3339),
		Author:      entity.Author,
		Categories:  entity.Categories,
	}
}

func (view TestView) From(res *lib.TestResult) TestView {
	return TestView{
		FeedTitle:   res.Feed.DisplayTitle(),
		Entry:       EntryView{}.From(res.Entry),
		Description: res.Notification.Description,
		Keywords:    nonNil(res.Keywords),
		Matches:     res.Matches,
	}
}

func (view CycleReportView) From(report *poller.CycleReport) CycleReportView {
	errs := make([]string, len(report.Errors))
	for i, err := range report.Errors {
		errs[i] = err.Error()
	}
	return CycleReportView{
		ID:           report.ID,
		Trigger:      report.Trigger,
		FeedsChecked: report.FeedsChecked,
		Delivered:    report.Delivered,
		Filtered:     report.Filtered,
		Bootstrapped: report.Bootstrapped,
		Errored:      report.Errored,
		Errors:       errs,
		ElapsedMS:    report.Elapsed.Milliseconds(),
	}
}

type Fromable[Entity any, Repr any] interface {
	From(Entity) Repr
}

func FromMany[T any, U Fromable[T, U]](elems []T) []U {
	out := make([]U, len(elems))
	for i, t := range elems {
		var u U
		out[i] = u.From(t)
	}
	return out
}

func nullable(s sql.NullString) *string {
	if s.Valid {
		return &s.String
	}
	return nil
}
