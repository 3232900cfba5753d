package poller

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/lib/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type nopPersister struct{}

func (nopPersister) Load(ctx context.Context) (models.Tenants, error)       { return nil, nil }
func (nopPersister) Save(ctx context.Context, tenants models.Tenants) error { return nil }

type fakeFetcher struct {
	mu    sync.Mutex
	docs  map[string]*models.FeedDocument
	errs  map[string]error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*models.FeedDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.docs[url], nil
}

func (f *fakeFetcher) set(url string, ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := &models.FeedDocument{URL: url}
	for _, id := range ids {
		doc.Entries = append(doc.Entries, models.Entry{Identity: id, Title: "post " + id})
	}
	f.docs[url] = doc
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []string
	logs      []string
	logTexts  []string
	failWith  error
}

func (d *fakeDeliverer) Deliver(ctx context.Context, tenant *models.Tenant, feedURL string, doc *models.FeedDocument, entries []models.Entry) (int, []error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		errs := make([]error, len(entries))
		for i := range errs {
			errs[i] = d.failWith
		}
		return 0, errs
	}
	for _, e := range entries {
		d.delivered = append(d.delivered, e.Identity)
	}
	return len(entries), nil
}

func (d *fakeDeliverer) Log(ctx context.Context, tenant *models.Tenant, level, title, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tenant != nil && tenant.LogDestination != nil {
		d.logs = append(d.logs, title)
		d.logTexts = append(d.logTexts, text)
	}
	return nil
}

func (d *fakeDeliverer) snapshot() ([]string, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.delivered...), append([]string(nil), d.logs...)
}

type fixture struct {
	store    *state.Store
	fetcher  *fakeFetcher
	delivery *fakeDeliverer
	poller   *Poller
	sleeps   int
}

func newFixture(t *testing.T) *fixture {
	store, err := state.NewStore(context.Background(), zap.NewNop(), nopPersister{})
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		fetcher:  &fakeFetcher{docs: map[string]*models.FeedDocument{}, errs: map[string]error{}},
		delivery: &fakeDeliverer{},
	}
	f.poller = newPoller(zap.NewNop(), store, f.fetcher, f.delivery, Options{Interval: time.Hour})
	f.poller.sleep = func(ctx context.Context, d time.Duration) bool {
		f.sleeps++
		return ctx.Err() == nil
	}
	t.Cleanup(func() { f.poller.Stop(context.Background()) })
	return f
}

func (f *fixture) subscribe(t *testing.T, tenantID, url string, watermark string) {
	sub := models.Subscription{URL: url}
	if watermark != "" {
		sub.Watermark = sql.NullString{String: watermark, Valid: true}
	}
	require.NoError(t, f.store.Subscribe(context.Background(), tenantID, models.Destination{Platform: "discord", Identifier: "1"}, sub))
}

func (f *fixture) watermark(tenantID, url string) sql.NullString {
	t, _ := f.store.Tenant(tenantID)
	i, _ := t.Subscriptions.Find(url)
	return t.Subscriptions[i].Watermark
}

func periodic() CycleRequest {
	return CycleRequest{Trigger: TriggerPeriodic}
}

func TestRunCycleBootstrapThenDeliver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "g1", "https://a/feed", "")

	f.fetcher.set("https://a/feed", "e2", "e1")
	report := f.poller.RunCycle(ctx, periodic())
	assert.Equal(t, 1, report.FeedsChecked)
	assert.Equal(t, 1, report.Bootstrapped)
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, "e2", f.watermark("g1", "https://a/feed").String)

	f.fetcher.set("https://a/feed", "e4", "e3", "e2", "e1")
	report = f.poller.RunCycle(ctx, periodic())
	assert.Equal(t, 2, report.Delivered)
	delivered, _ := f.delivery.snapshot()
	assert.Equal(t, []string{"e3", "e4"}, delivered)
	assert.Equal(t, "e4", f.watermark("g1", "https://a/feed").String)

	report = f.poller.RunCycle(ctx, periodic())
	assert.Equal(t, 0, report.Delivered)
}

func TestRunCycleKeywordFilterStillAdvances(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "g1", "https://a/feed", "e1")
	require.NoError(t, f.store.SetKeywords(ctx, "g1", []string{"genomics"}))

	f.fetcher.set("https://a/feed", "e3", "e2", "e1")
	report := f.poller.RunCycle(ctx, periodic())
	assert.Equal(t, 0, report.Delivered)
	assert.Equal(t, 2, report.Filtered)
	assert.Equal(t, "e3", f.watermark("g1", "https://a/feed").String)
}

func TestRunCycleContinuesPastFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.subscribe(t, "g1", "https://bad/feed", "x")
	f.subscribe(t, "g1", "https://good/feed", "e1")
	logs := models.Destination{Platform: "discord", Identifier: "9"}
	require.NoError(t, f.store.SetLogDestination(ctx, "g1", &logs))

	f.fetcher.errs["https://bad/feed"] = &models.FetchError{URL: "https://bad/feed", Err: errors.New("timeout")}
	f.fetcher.set("https://good/feed", "e2", "e1")

	report := f.poller.RunCycle(ctx, periodic())
	assert.Equal(t, 2, report.FeedsChecked)
	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 1, report.Delivered)
	require.Len(t, report.Errors, 1)
	var fetchErr *models.FetchError
	assert.True(t, errors.As(report.Errors[0], &fetchErr))

	_, logTitles := f.delivery.snapshot()
	assert.Equal(t, []string{"Feed check failed"}, logTitles)
	assert.Equal(t, "x", f.watermark("g1", "https://bad/feed").String)
}

func TestRunCycleReportsDeliveryFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	core, logs := observer.New(zap.ErrorLevel)
	f.poller.log = zap.New(core)

	f.subscribe(t, "g1", "https://a/feed", "e1")
	dest := models.Destination{Platform: "discord", Identifier: "9"}
	require.NoError(t, f.store.SetLogDestination(ctx, "g1", &dest))
	f.delivery.failWith = &models.DeliveryError{
		Destination: models.Destination{Platform: "telegram", Identifier: "1"},
		Err:         models.ErrUnsupportedPlatform,
	}
	f.fetcher.set("https://a/feed", "e3", "e2", "e1")

	report := f.poller.RunCycle(ctx, periodic())
	assert.Equal(t, 1, report.Errored)
	assert.Equal(t, 0, report.Delivered)
	require.Len(t, report.Errors, 2)
	assert.ErrorIs(t, report.Errors[0], models.ErrUnsupportedPlatform)

	entries := logs.FilterMessage("Failed to deliver entries").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "https://a/feed", entries[0].ContextMap()["feed"])
	assert.Equal(t, int64(2), entries[0].ContextMap()["failed"])

	f.delivery.mu.Lock()
	defer f.delivery.mu.Unlock()
	assert.Equal(t, []string{"Delivery failed"}, f.delivery.logs)
	require.Len(t, f.delivery.logTexts, 1)
	assert.Contains(t, f.delivery.logTexts[0], "2 of 2 new entries were not delivered")
	assert.Contains(t, f.delivery.logTexts[0], models.ErrUnsupportedPlatform.Error())
}

func TestRunCyclePacesBetweenFeeds(t *testing.T) {
	f := newFixture(t)
	for _, url := range []string{"https://a", "https://b", "https://c"} {
		f.subscribe(t, "g1", url, "")
		f.fetcher.set(url, "e1")
	}
	f.subscribe(t, "g2", "https://d", "")
	f.fetcher.set("https://d", "e1")

	report := f.poller.RunCycle(context.Background(), CycleRequest{Trigger: TriggerManual, TenantID: "g1"})
	assert.Equal(t, 3, report.FeedsChecked)
	assert.Equal(t, 2, f.sleeps)
}

func TestRunCycleSerializesPerFeed(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "g1", "https://a/feed", "e1")
	f.fetcher.set("https://a/feed", "e3", "e2", "e1")

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.poller.RunCycle(context.Background(), periodic())
		}()
	}
	wg.Wait()

	delivered, _ := f.delivery.snapshot()
	assert.Equal(t, []string{"e2", "e3"}, delivered)
}

func TestTrigger(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "g1", "https://a/feed", "e1")
	f.fetcher.set("https://a/feed", "e2", "e1")

	err := f.poller.Trigger(context.Background(), TriggerRequest{Invoker: "mallory", TenantID: "g1"})
	assert.ErrorIs(t, err, models.ErrNotPrivileged)
	assert.Equal(t, 0, f.fetcher.callCount())

	replies := make(chan *CycleReport, 1)
	err = f.poller.Trigger(context.Background(), TriggerRequest{
		Invoker:    "alice",
		Privileged: true,
		TenantID:   "g1",
		Reply:      func(ctx context.Context, r *CycleReport) { replies <- r },
	})
	require.NoError(t, err)

	select {
	case report := <-replies:
		assert.Equal(t, TriggerManual, report.Trigger)
		assert.Equal(t, 1, report.FeedsChecked)
		assert.Equal(t, 1, report.Delivered)
	case <-time.After(5 * time.Second):
		t.Fatal("manual cycle did not report")
	}
}

func TestStartWaitsForReadiness(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "g1", "https://a/feed", "")
	f.fetcher.set("https://a/feed", "e1")

	ready := NewReadiness()
	f.poller.wg.Add(1)
	go func() {
		defer f.poller.wg.Done()
		f.poller.startWhenReady(ready)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, f.fetcher.callCount())

	ready.Signal()
	ready.Signal()
	assert.Eventually(t, func() bool { return f.fetcher.callCount() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestStartAfterStopSchedulesNothing(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "g1", "https://a/feed", "")
	f.fetcher.set("https://a/feed", "e1")
	require.NoError(t, f.poller.Stop(context.Background()))

	ready := NewReadiness()
	ready.Signal()
	f.poller.startWhenReady(ready)

	assert.Empty(t, f.poller.cron.Entries())
	assert.Equal(t, 0, f.fetcher.callCount())
}

func TestTriggerAfterStop(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "g1", "https://a/feed", "e1")
	f.fetcher.set("https://a/feed", "e2", "e1")
	require.NoError(t, f.poller.Stop(context.Background()))

	err := f.poller.Trigger(context.Background(), TriggerRequest{Invoker: "alice", Privileged: true, TenantID: "g1"})
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.fetcher.callCount())
}

func TestTriggerRacingStop(t *testing.T) {
	f := newFixture(t)
	f.subscribe(t, "g1", "https://a/feed", "e1")
	f.fetcher.set("https://a/feed", "e1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.poller.Trigger(context.Background(), TriggerRequest{Invoker: "alice", Privileged: true, TenantID: "g1"})
		}()
	}
	require.NoError(t, f.poller.Stop(context.Background()))
	wg.Wait()

	err := f.poller.Trigger(context.Background(), TriggerRequest{Invoker: "alice", Privileged: true, TenantID: "g1"})
	assert.ErrorIs(t, err, ErrStopped)
}

func TestFeedLocks(t *testing.T) {
	locks := newFeedLocks()
	unlock := locks.Lock("g1", "a")

	acquired := make(chan struct{})
	go func() {
		locks.Lock("g1", "a")()
		close(acquired)
	}()

	otherUnlock := locks.Lock("g1", "b")
	otherUnlock()

	select {
	case <-acquired:
		t.Fatal("lock acquired twice")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}
