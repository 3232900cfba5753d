// Package poller runs polling cycles over every tenant's feeds, on a fixed
// interval and on demand.
package poller

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/delivery"
	"github.com/fiffu/feedwatch/lib/detector"
	"github.com/fiffu/feedwatch/lib/feed"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/lib/state"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.FeedDocument, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, tenant *models.Tenant, feedURL string, doc *models.FeedDocument, entries []models.Entry) (int, []error)
	Log(ctx context.Context, tenant *models.Tenant, level, title, text string) error
}

type Store interface {
	Tenants() models.Tenants
	Tenant(id string) (*models.Tenant, bool)
	SetWatermark(ctx context.Context, tenantID, url string, watermark sql.NullString) error
}

type Options struct {
	Interval       time.Duration
	PeriodicPacing time.Duration
	ManualPacing   time.Duration
	Detector       detector.Options
}

type Poller struct {
	log      *zap.Logger
	store    Store
	fetcher  Fetcher
	delivery Deliverer
	opts     Options

	locks *feedLocks
	cron  *cron.Cron
	job   cron.Job
	sleep func(ctx context.Context, d time.Duration) bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders Stop against work that starts after it, so nothing is
	// scheduled or added to wg once stopped is set.
	mu      sync.Mutex
	stopped bool
}

func NewPoller(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, store *state.Store, fetcher *feed.Fetcher, pipeline *delivery.Pipeline, ready *Readiness) *Poller {
	p := newPoller(log, store, fetcher, pipeline, Options{
		Interval:       cfg.Poller.Interval,
		PeriodicPacing: cfg.Poller.PeriodicPacing,
		ManualPacing:   cfg.Poller.ManualPacing,
		Detector:       detector.Options{MaxCandidates: cfg.Poller.MaxRotatedEntries},
	})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.startWhenReady(ready)
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Trying to stop poller")
			return p.Stop(ctx)
		},
	})
	return p
}

func newPoller(log *zap.Logger, store Store, fetcher Fetcher, deliverer Deliverer, opts Options) *Poller {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Poller{
		log:      log,
		store:    store,
		fetcher:  fetcher,
		delivery: deliverer,
		opts:     opts,
		locks:    newFeedLocks(),
		sleep:    sleepContext,
		ctx:      ctx,
		cancel:   cancel,
	}

	logger := cronLogger{log.Sugar()}
	p.cron = cron.New(cron.WithLogger(logger))
	p.job = cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(p.runPeriodic))
	return p
}

// startWhenReady runs one cycle as soon as the host is ready, then one every
// Interval. Cycles that would overlap the previous periodic run are skipped.
func (p *Poller) startWhenReady(ready *Readiness) {
	select {
	case <-ready.Done():
	case <-p.ctx.Done():
		return
	}

	// Both cases may have been ready at once.
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.log.Sugar().Infow("Poller started", "interval", p.opts.Interval.String())
	p.cron.Schedule(cron.Every(p.opts.Interval), p.job)
	p.cron.Start()
	p.mu.Unlock()

	p.job.Run()
}

func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.cancel()
	cronDone := p.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronDone.Done()
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Sugar().Info("Poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Poller) runPeriodic() {
	p.RunCycle(p.ctx, CycleRequest{Trigger: TriggerPeriodic, Pacing: p.opts.PeriodicPacing})
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Readiness is closed once by the host when it is able to deliver.
type Readiness struct {
	once sync.Once
	ch   chan struct{}
}

func NewReadiness() *Readiness {
	return &Readiness{ch: make(chan struct{})}
}

func (r *Readiness) Signal() {
	r.once.Do(func() { close(r.ch) })
}

func (r *Readiness) Done() <-chan struct{} {
	return r.ch
}

type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw("cron: "+msg, append(keysAndValues, "err", err)...)
}
