package lib

import (
	"context"
	"fmt"

	"github.com/fiffu/feedwatch/lib/delivery"
	"github.com/fiffu/feedwatch/lib/models"
	"go.uber.org/zap"
)

type logChannels struct {
	log      *zap.Logger
	store    tenantStore
	pipeline tenantLogger
}

// SetLogChannel routes the tenant's operational messages to dest and posts a
// confirmation there. The channel stays configured even if the confirmation
// cannot be delivered; that error is returned so the caller can report it.
func (svc *logChannels) SetLogChannel(ctx context.Context, tenantID string, dest models.Destination) error {
	if dest.IsZero() {
		return models.ErrInvalidDestination
	}
	if err := svc.store.SetLogDestination(ctx, tenantID, &dest); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Log channel set", "tenant", tenantID, "destination", dest.String())

	t, ok := svc.store.Tenant(tenantID)
	if !ok {
		return models.ErrUnknownTenant
	}
	return svc.pipeline.Log(ctx, t, delivery.LevelOK, "Log channel configured",
		fmt.Sprintf("Feed activity for this server will be posted to %s", dest.String()))
}

// RemoveLogChannel stops operational messages. It returns ErrNoLogDestination
// when none was set.
func (svc *logChannels) RemoveLogChannel(ctx context.Context, tenantID string) error {
	before, _ := svc.store.Tenant(tenantID)
	if err := svc.store.SetLogDestination(ctx, tenantID, nil); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Log channel removed", "tenant", tenantID)
	svc.pipeline.Log(ctx, before, delivery.LevelWarn, "Log channel removed", "Feed activity will no longer be posted here")
	return nil
}
