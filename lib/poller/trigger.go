package poller

import (
	"context"
	"fmt"

	"github.com/fiffu/feedwatch/lib/delivery"
	"github.com/fiffu/feedwatch/lib/models"
)

// ErrStopped is returned for manual checks requested after shutdown began.
var ErrStopped = fmt.Errorf("poller stopped: %w", context.Canceled)

// TriggerRequest asks for a one-off cycle on behalf of a caller.
type TriggerRequest struct {
	Invoker    string
	Privileged bool
	// TenantID restricts the cycle to one tenant; empty means all tenants.
	TenantID string
	// Reply receives the report once the cycle completes. It may be nil.
	Reply func(ctx context.Context, report *CycleReport)
}

// Trigger starts a manual cycle in the background. It returns
// ErrNotPrivileged without running anything when the caller lacks the
// permission.
func (p *Poller) Trigger(ctx context.Context, req TriggerRequest) error {
	if !req.Privileged {
		p.log.Sugar().Warnw("Rejected manual check", "invoker", req.Invoker, "tenant", req.TenantID)
		return models.ErrNotPrivileged
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.wg.Add(1)
	p.mu.Unlock()

	tenant, _ := p.store.Tenant(req.TenantID)
	p.log.Sugar().Infow("Manual check requested", "invoker", req.Invoker, "tenant", req.TenantID)
	p.delivery.Log(ctx, tenant, delivery.LevelInfo, "Manual check", fmt.Sprintf("Manual feed check requested by %s", req.Invoker))

	go func() {
		defer p.wg.Done()

		report := p.RunCycle(p.ctx, CycleRequest{
			Trigger:  TriggerManual,
			TenantID: req.TenantID,
			Pacing:   p.opts.ManualPacing,
		})
		p.delivery.Log(p.ctx, tenant, delivery.LevelOK, "Manual check finished",
			fmt.Sprintf("Feeds checked: %d\nNew entries delivered: %d", report.FeedsChecked, report.Delivered))
		if req.Reply != nil {
			req.Reply(p.ctx, report)
		}
	}()
	return nil
}
