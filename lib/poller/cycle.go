package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiffu/feedwatch/lib/delivery"
	"github.com/fiffu/feedwatch/lib/detector"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

type CycleRequest struct {
	Trigger string
	// TenantID restricts the cycle to one tenant; empty means all tenants.
	TenantID string
	Pacing   time.Duration
}

// CycleReport aggregates the outcome of one cycle. Errors holds every per-feed
// and per-entry failure; none of them aborted the cycle.
type CycleReport struct {
	ID           string
	Trigger      string
	FeedsChecked int
	Delivered    int
	Filtered     int
	Bootstrapped int
	Errored      int
	Errors       []error
	Elapsed      time.Duration
}

// RunCycle polls every feed of the selected tenants in registration order.
func (p *Poller) RunCycle(ctx context.Context, req CycleRequest) *CycleReport {
	start := time.Now()
	report := &CycleReport{ID: uuid.NewString(), Trigger: req.Trigger}
	log := p.log.With(zap.String("cycle_id", report.ID), zap.String("trigger", req.Trigger))

	var tenants models.Tenants
	if req.TenantID != "" {
		if t, ok := p.store.Tenant(req.TenantID); ok {
			tenants = models.Tenants{t}
		}
	} else {
		tenants = p.store.Tenants()
	}

	metrics := &cycleMetrics{}
	first := true
loop:
	for _, tenant := range tenants {
		for _, sub := range tenant.Subscriptions {
			if !first && !p.sleep(ctx, req.Pacing) {
				break loop
			}
			first = false

			m, errs := p.pollFeed(ctx, log, tenant.ID, sub.URL)
			metrics.Add(m)
			report.Errors = append(report.Errors, errs...)
		}
	}

	report.FeedsChecked = metrics.checked
	report.Delivered = metrics.delivered
	report.Filtered = metrics.filtered
	report.Bootstrapped = metrics.bootstrapped
	report.Errored = metrics.errored
	report.Elapsed = time.Since(start)

	log.Sugar().Infow(
		fmt.Sprintf("Checked %d feeds", metrics.checked),
		metrics.logArgs()...,
	)
	log.Sugar().Infow("Cycle completed", "elapsed_msecs", int(report.Elapsed.Milliseconds()))
	return report
}

// pollFeed holds the feed's lock across fetch, detection, delivery and the
// watermark write, re-reading the subscription once the lock is held.
func (p *Poller) pollFeed(ctx context.Context, log *zap.Logger, tenantID, url string) (*cycleMetrics, []error) {
	unlock := p.locks.Lock(tenantID, url)
	defer unlock()

	m := &cycleMetrics{}
	if ctx.Err() != nil {
		return m, nil
	}

	tenant, ok := p.store.Tenant(tenantID)
	if !ok {
		return m, nil
	}
	i, ok := tenant.Subscriptions.Find(url)
	if !ok {
		return m, nil
	}
	sub := tenant.Subscriptions[i]
	m.checked = 1
	log = log.With(zap.String("tenant", tenantID), zap.String("feed", url))

	doc, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		m.errored = 1
		log.Sugar().Errorw("Failed to fetch feed", "err", err)
		p.delivery.Log(ctx, tenant, delivery.LevelError, "Feed check failed", fmt.Sprintf("%s\n%v", url, err))
		return m, []error{err}
	}
	if doc.Malformed {
		log.Sugar().Warnw("Feed is malformed, using the entries that could be recovered", "entries", len(doc.Entries))
	}
	if len(doc.Entries) == 0 {
		log.Sugar().Warnw("Feed has no entries")
		m.unchanged = 1
		return m, nil
	}

	plan := detector.NewPlan(sub, doc.Entries, tenant.Keywords, p.opts.Detector)
	switch {
	case plan.Bootstrap:
		m.bootstrapped = 1
		log.Sugar().Infow("Initialized watermark", "watermark", plan.Watermark.String)
	case len(plan.Entries) == 0:
		m.unchanged = 1
	}
	if plan.Truncated {
		log.Sugar().Warnw("Watermark not found in feed, emitting newest entries only", "limit", p.opts.Detector.MaxCandidates)
	}
	m.filtered = plan.Filtered

	var errs []error
	if len(plan.Deliver) > 0 {
		delivered, deliveryErrs := p.delivery.Deliver(ctx, tenant, url, doc, plan.Deliver)
		m.delivered = delivered
		errs = append(errs, deliveryErrs...)
		if len(deliveryErrs) > 0 {
			m.errored = 1
			log.Sugar().Errorw("Failed to deliver entries",
				"failed", len(deliveryErrs), "delivered", delivered, "err", deliveryErrs[0])
			p.delivery.Log(ctx, tenant, delivery.LevelError, "Delivery failed",
				fmt.Sprintf("%s\n%d of %d new entries were not delivered\n%v", url, len(deliveryErrs), len(plan.Deliver), deliveryErrs[0]))
		}
	}

	if plan.Advanced {
		if err := p.store.SetWatermark(ctx, tenantID, url, plan.Watermark); err != nil {
			var persistErr *models.PersistenceError
			switch {
			case errors.As(err, &persistErr):
				log.Sugar().Errorw("Watermark advanced in memory but not saved", "err", err)
				errs = append(errs, err)
			case errors.Is(err, models.ErrNotSubscribed), errors.Is(err, models.ErrUnknownTenant):
				log.Sugar().Infow("Feed was removed during the check")
			default:
				errs = append(errs, err)
			}
		}
	}
	return m, errs
}
