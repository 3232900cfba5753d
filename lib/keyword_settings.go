package lib

import (
	"context"

	"github.com/fiffu/feedwatch/lib/keywords"
	"github.com/fiffu/feedwatch/lib/models"
	"go.uber.org/zap"
)

type keywordSettings struct {
	log   *zap.Logger
	store tenantStore
}

// SetKeywords replaces the keyword set. At least one keyword is required;
// use ClearKeywords to disable filtering.
func (svc *keywordSettings) SetKeywords(ctx context.Context, tenantID string, kws []string) ([]string, error) {
	next := keywords.Normalize(kws)
	if len(next) == 0 {
		return nil, models.ErrNoKeywords
	}
	err := svc.store.UpdateKeywords(ctx, tenantID, func([]string) ([]string, error) {
		return next, nil
	})
	svc.logChange(tenantID, "set", next, err)
	return next, err
}

// AddKeywords returns the full set and the keywords that were not present yet.
func (svc *keywordSettings) AddKeywords(ctx context.Context, tenantID string, kws []string) (all, added []string, err error) {
	if len(keywords.Normalize(kws)) == 0 {
		return nil, nil, models.ErrNoKeywords
	}
	err = svc.store.UpdateKeywords(ctx, tenantID, func(current []string) ([]string, error) {
		all, added = keywords.Add(current, kws)
		return all, nil
	})
	svc.logChange(tenantID, "add", added, err)
	return all, added, err
}

// RemoveKeywords returns the remaining set and the keywords actually removed.
func (svc *keywordSettings) RemoveKeywords(ctx context.Context, tenantID string, kws []string) (remaining, removed []string, err error) {
	if len(keywords.Normalize(kws)) == 0 {
		return nil, nil, models.ErrNoKeywords
	}
	err = svc.store.UpdateKeywords(ctx, tenantID, func(current []string) ([]string, error) {
		remaining, removed = keywords.Remove(current, kws)
		return remaining, nil
	})
	svc.logChange(tenantID, "remove", removed, err)
	return remaining, removed, err
}

// ClearKeywords disables filtering and returns how many keywords were dropped.
func (svc *keywordSettings) ClearKeywords(ctx context.Context, tenantID string) (int, error) {
	var cleared int
	err := svc.store.UpdateKeywords(ctx, tenantID, func(current []string) ([]string, error) {
		cleared = len(current)
		return nil, nil
	})
	svc.logChange(tenantID, "clear", nil, err)
	return cleared, err
}

// ResetKeywords restores the default keyword set.
func (svc *keywordSettings) ResetKeywords(ctx context.Context, tenantID string) ([]string, error) {
	defaults := keywords.Defaults()
	err := svc.store.UpdateKeywords(ctx, tenantID, func([]string) ([]string, error) {
		return defaults, nil
	})
	svc.logChange(tenantID, "reset", nil, err)
	return defaults, err
}

func (svc *keywordSettings) ListKeywords(tenantID string) []string {
	t, ok := svc.store.Tenant(tenantID)
	if !ok {
		return nil
	}
	return t.Keywords
}

func (svc *keywordSettings) logChange(tenantID, op string, changed []string, err error) {
	if err != nil {
		svc.log.Sugar().Errorw("Keyword update failed", "tenant", tenantID, "op", op, "err", err)
		return
	}
	svc.log.Sugar().Infow("Keywords updated", "tenant", tenantID, "op", op, "changed", changed)
}
