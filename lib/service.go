package lib

import (
	"context"
	"database/sql"

	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/delivery"
	"github.com/fiffu/feedwatch/lib/detector"
	"github.com/fiffu/feedwatch/lib/feed"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/lib/poller"
	"github.com/fiffu/feedwatch/lib/state"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type feedFetcher interface {
	Fetch(ctx context.Context, url string) (*models.FeedDocument, error)
}

type checkTrigger interface {
	Trigger(ctx context.Context, req poller.TriggerRequest) error
}

type tenantLogger interface {
	Log(ctx context.Context, tenant *models.Tenant, level, title, text string) error
}

type tenantStore interface {
	Tenant(id string) (*models.Tenant, bool)
	Subscribe(ctx context.Context, tenantID string, dest models.Destination, sub models.Subscription) error
	Unsubscribe(ctx context.Context, tenantID, url string) error
	UpdateKeywords(ctx context.Context, tenantID string, fn func(current []string) ([]string, error)) error
	SetLogDestination(ctx context.Context, tenantID string, dest *models.Destination) error
	SetWatermark(ctx context.Context, tenantID, url string, watermark sql.NullString) error
}

// Service is the command surface shared by the chat bot and the control API.
type Service struct {
	cfg *config.Config
	log *zap.Logger

	*subscriptions
	*keywordSettings
	*logChannels
	*checks
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, store *state.Store, fetcher *feed.Fetcher, p *poller.Poller, pipeline *delivery.Pipeline) *Service {
	return newService(cfg, log, store, fetcher, p, pipeline)
}

func newService(cfg *config.Config, log *zap.Logger, store tenantStore, fetcher feedFetcher, trigger checkTrigger, pipeline tenantLogger) *Service {
	opts := detector.Options{MaxCandidates: cfg.Poller.MaxRotatedEntries}
	return &Service{
		cfg, log,
		&subscriptions{cfg, log, store, fetcher, pipeline, opts},
		&keywordSettings{log, store},
		&logChannels{log, store, pipeline},
		&checks{log, trigger},
	}
}

// Tenant returns the tenant's configuration, or ErrUnknownTenant.
func (svc *Service) Tenant(tenantID string) (*models.Tenant, error) {
	t, ok := svc.subscriptions.store.Tenant(tenantID)
	if !ok {
		return nil, models.ErrUnknownTenant
	}
	return t, nil
}

type checks struct {
	log     *zap.Logger
	trigger checkTrigger
}

// ForceCheck starts a manual cycle for one tenant. reply receives the report
// when the cycle completes.
func (c *checks) ForceCheck(ctx context.Context, tenantID, invoker string, privileged bool, reply func(context.Context, *poller.CycleReport)) error {
	return c.trigger.Trigger(ctx, poller.TriggerRequest{
		Invoker:    invoker,
		Privileged: privileged,
		TenantID:   tenantID,
		Reply:      reply,
	})
}
