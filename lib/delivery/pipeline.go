// Package delivery renders new entries into notifications and dispatches
// them, oldest first, through the sender registry.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	LevelInfo  = "info"
	LevelOK    = "ok"
	LevelWarn  = "warn"
	LevelError = "error"
)

type Pipeline struct {
	log     *zap.Logger
	senders senders.Registry
	maxLen  int
	now     func() time.Time
}

func NewPipeline(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, registry senders.Registry) *Pipeline {
	return &Pipeline{
		log:     log,
		senders: registry,
		maxLen:  cfg.Delivery.DescriptionMaxLen,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Deliver sends entries, which must already be in chronological order, to
// the tenant's destination. A failed entry does not stop the ones after it.
func (p *Pipeline) Deliver(ctx context.Context, tenant *models.Tenant, feedURL string, doc *models.FeedDocument, entries []models.Entry) (int, []error) {
	if len(entries) == 0 {
		return 0, nil
	}

	sender, err := p.senderFor(tenant.Destination)
	if err != nil {
		p.log.Sugar().Errorw("No sender for destination, entries not delivered",
			"tenant", tenant.ID, "feed", feedURL, "entries", len(entries), "err", err)
		errs := make([]error, 0, len(entries))
		for range entries {
			errs = append(errs, err)
		}
		return 0, errs
	}

	delivered := 0
	var errs []error
	for _, entry := range entries {
		n := BuildNotification(doc, entry, feedURL, p.maxLen)
		id, err := sender.SendNotification(ctx, tenant.Destination, n)
		if err != nil {
			err = &models.DeliveryError{Destination: tenant.Destination, Err: err}
			p.log.Sugar().Errorw("Failed to deliver entry",
				"tenant", tenant.ID, "feed", feedURL, "entry", entry.Identity, "err", err)
			errs = append(errs, err)
			continue
		}
		delivered++
		p.log.Sugar().Infow("Delivered entry",
			"tenant", tenant.ID, "feed", feedURL, "title", entry.Title, "message_id", id)
	}
	return delivered, errs
}

// Log posts an operational message to the tenant's log destination. It is a
// no-op when none is configured.
func (p *Pipeline) Log(ctx context.Context, tenant *models.Tenant, level, title, text string) error {
	if tenant == nil || tenant.LogDestination == nil {
		return nil
	}
	dest := *tenant.LogDestination

	sender, err := p.senderFor(dest)
	if err != nil {
		p.log.Sugar().Warnw("Log destination unavailable", "tenant", tenant.ID, "err", err)
		return err
	}

	msg := &models.LogMessage{Level: level, Title: title, Text: text, Timestamp: p.now()}
	if _, err := sender.SendLog(ctx, dest, msg); err != nil {
		err = &models.DeliveryError{Destination: dest, Err: err}
		p.log.Sugar().Warnw("Failed to send log message", "tenant", tenant.ID, "err", err)
		return err
	}
	return nil
}

func (p *Pipeline) senderFor(dest models.Destination) (senders.Sender, error) {
	if dest.IsZero() {
		return nil, &models.DeliveryError{Destination: dest, Err: models.ErrInvalidDestination}
	}
	sender, ok := p.senders[dest.Platform]
	if !ok {
		return nil, &models.DeliveryError{
			Destination: dest,
			Err:         fmt.Errorf("%w: %s", models.ErrUnsupportedPlatform, dest.Platform),
		}
	}
	return sender, nil
}
