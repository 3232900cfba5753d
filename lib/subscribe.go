package lib

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/delivery"
	"github.com/fiffu/feedwatch/lib/detector"
	"github.com/fiffu/feedwatch/lib/keywords"
	"github.com/fiffu/feedwatch/lib/models"
	"go.uber.org/zap"
)

type subscriptions struct {
	cfg      *config.Config
	log      *zap.Logger
	store    tenantStore
	fetcher  feedFetcher
	pipeline tenantLogger
	opts     detector.Options
}

type SubscribeResult struct {
	URL        string
	FeedTitle  string
	FeedLink   string
	ImageURL   string
	Color      int
	EntryCount int
	Watermark  sql.NullString
}

// Subscribe validates the feed by fetching it, then registers it with the
// watermark set to its current newest entry so that only later entries are
// delivered. dest replaces the tenant's destination when non-zero.
//
// A *models.PersistenceError is returned together with the result when the
// subscription was added but could not be saved.
func (svc *subscriptions) Subscribe(ctx context.Context, tenantID string, dest models.Destination, feedURL string) (*SubscribeResult, error) {
	feedURL, err := normalizeFeedURL(feedURL)
	if err != nil {
		return nil, err
	}
	if dest.IsZero() {
		if t, ok := svc.store.Tenant(tenantID); !ok || t.Destination.IsZero() {
			return nil, fmt.Errorf("%w: tenant %s has no destination channel", models.ErrInvalidDestination, tenantID)
		}
	}
	if t, ok := svc.store.Tenant(tenantID); ok {
		if _, exists := t.Subscriptions.Find(feedURL); exists {
			return nil, models.ErrAlreadySubscribed
		}
	}

	doc, err := svc.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}

	bootstrap := detector.Detect(doc.Entries, sql.NullString{}, svc.opts)
	result := &SubscribeResult{
		URL:        feedURL,
		FeedTitle:  doc.DisplayTitle(),
		FeedLink:   doc.Link,
		ImageURL:   doc.ImageURL,
		Color:      delivery.ColorForURL(feedURL),
		EntryCount: len(doc.Entries),
		Watermark:  bootstrap.Watermark,
	}

	err = svc.store.Subscribe(ctx, tenantID, dest, models.Subscription{URL: feedURL, Watermark: bootstrap.Watermark})
	var persistErr *models.PersistenceError
	if err != nil && !errors.As(err, &persistErr) {
		return nil, err
	}

	svc.log.Sugar().Infow("Subscribed to feed", "tenant", tenantID, "feed", feedURL, "watermark", bootstrap.Watermark.String)
	if t, ok := svc.store.Tenant(tenantID); ok {
		svc.pipeline.Log(ctx, t, delivery.LevelOK, "Feed added", fmt.Sprintf("%s\n%s", result.FeedTitle, feedURL))
	}
	return result, err
}

func (svc *subscriptions) Unsubscribe(ctx context.Context, tenantID, feedURL string) error {
	feedURL = strings.TrimSpace(feedURL)
	if err := svc.store.Unsubscribe(ctx, tenantID, feedURL); err != nil {
		return err
	}

	svc.log.Sugar().Infow("Unsubscribed from feed", "tenant", tenantID, "feed", feedURL)
	if t, ok := svc.store.Tenant(tenantID); ok {
		svc.pipeline.Log(ctx, t, delivery.LevelWarn, "Feed removed", feedURL)
	}
	return nil
}

// List returns the tenant's subscriptions in registration order.
func (svc *subscriptions) List(tenantID string) (models.Subscriptions, error) {
	t, ok := svc.store.Tenant(tenantID)
	if !ok {
		return nil, models.ErrUnknownTenant
	}
	return t.Subscriptions, nil
}

type TestResult struct {
	Feed         *models.FeedDocument
	Entry        models.Entry
	Notification *models.Notification
	Keywords     []string
	Matches      bool
}

// Test fetches a feed and previews its newest entry against the tenant's
// keyword filter. No watermark is touched.
func (svc *subscriptions) Test(ctx context.Context, tenantID, feedURL string) (*TestResult, error) {
	feedURL, err := normalizeFeedURL(feedURL)
	if err != nil {
		return nil, err
	}
	doc, err := svc.fetcher.Fetch(ctx, feedURL)
	if err != nil {
		return nil, err
	}
	if len(doc.Entries) == 0 {
		return nil, models.ErrNoEntries
	}

	var kws []string
	if t, ok := svc.store.Tenant(tenantID); ok {
		kws = t.Keywords
	}
	entry := doc.Entries[0]
	return &TestResult{
		Feed:         doc,
		Entry:        entry,
		Notification: delivery.BuildNotification(doc, entry, feedURL, svc.cfg.Delivery.DescriptionMaxLen),
		Keywords:     kws,
		Matches:      keywords.Match(entry, kws),
	}, nil
}

func normalizeFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidFeedURL, raw)
	}
	return raw, nil
}
