// Package state holds the tenant configuration document in memory and writes
// it through to a Persister after every mutation.
package state

import (
	"context"
	"database/sql"
	"sync"

	"github.com/fiffu/feedwatch/lib/models"
	"go.uber.org/zap"
)

// Persister is the durable load/save capability behind the Store.
type Persister interface {
	Load(ctx context.Context) (models.Tenants, error)
	Save(ctx context.Context, tenants models.Tenants) error
}

type Store struct {
	log       *zap.Logger
	persister Persister

	mu      sync.RWMutex
	tenants map[string]*models.Tenant
	order   []string
}

func NewStore(ctx context.Context, log *zap.Logger, persister Persister) (*Store, error) {
	loaded, err := persister.Load(ctx)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load", Err: err}
	}

	s := &Store{
		log:       log,
		persister: persister,
		tenants:   make(map[string]*models.Tenant, len(loaded)),
	}
	for _, t := range loaded {
		if _, dup := s.tenants[t.ID]; dup {
			continue
		}
		s.tenants[t.ID] = t.Clone()
		s.order = append(s.order, t.ID)
	}
	log.Sugar().Infow("State loaded", "tenants", len(s.order))
	return s, nil
}

// Tenant returns a copy of the tenant's configuration.
func (s *Store) Tenant(id string) (*models.Tenant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tenants[id]
	return t.Clone(), ok
}

// Tenants returns copies of every tenant in creation order.
func (s *Store) Tenants() models.Tenants {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Subscribe adds a feed to the tenant, creating the tenant on first use. The
// tenant's destination is replaced by dest when dest is non-zero.
func (s *Store) Subscribe(ctx context.Context, tenantID string, dest models.Destination, sub models.Subscription) error {
	return s.mutate(ctx, "subscribe", func() error {
		t := s.upsert(tenantID)
		if _, ok := t.Subscriptions.Find(sub.URL); ok {
			return models.ErrAlreadySubscribed
		}
		if !dest.IsZero() {
			t.Destination = dest
		}
		t.Subscriptions = append(t.Subscriptions, sub)
		return nil
	})
}

func (s *Store) Unsubscribe(ctx context.Context, tenantID, url string) error {
	return s.mutate(ctx, "unsubscribe", func() error {
		t, ok := s.tenants[tenantID]
		if !ok {
			return models.ErrUnknownTenant
		}
		i, ok := t.Subscriptions.Find(url)
		if !ok {
			return models.ErrNotSubscribed
		}
		t.Subscriptions = append(t.Subscriptions[:i], t.Subscriptions[i+1:]...)
		return nil
	})
}

// SetWatermark records the newest entry identity seen on a feed. It fails with
// ErrNotSubscribed when the feed was removed while it was being polled.
func (s *Store) SetWatermark(ctx context.Context, tenantID, url string, watermark sql.NullString) error {
	return s.mutate(ctx, "set_watermark", func() error {
		t, ok := s.tenants[tenantID]
		if !ok {
			return models.ErrUnknownTenant
		}
		i, ok := t.Subscriptions.Find(url)
		if !ok {
			return models.ErrNotSubscribed
		}
		t.Subscriptions[i].Watermark = watermark
		return nil
	})
}

func (s *Store) SetKeywords(ctx context.Context, tenantID string, keywords []string) error {
	return s.UpdateKeywords(ctx, tenantID, func([]string) ([]string, error) {
		return append([]string(nil), keywords...), nil
	})
}

// UpdateKeywords replaces the tenant's keywords with fn's result, atomically
// with respect to other mutations. Nothing is written when fn fails.
func (s *Store) UpdateKeywords(ctx context.Context, tenantID string, fn func(current []string) ([]string, error)) error {
	return s.mutate(ctx, "set_keywords", func() error {
		var current []string
		if t, ok := s.tenants[tenantID]; ok {
			current = append(current, t.Keywords...)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}
		s.upsert(tenantID).Keywords = next
		return nil
	})
}

// SetLogDestination sets, or clears when dest is nil, the tenant's log channel.
func (s *Store) SetLogDestination(ctx context.Context, tenantID string, dest *models.Destination) error {
	return s.mutate(ctx, "set_log_destination", func() error {
		if dest == nil {
			t, ok := s.tenants[tenantID]
			if !ok || t.LogDestination == nil {
				return models.ErrNoLogDestination
			}
			t.LogDestination = nil
			return nil
		}
		d := *dest
		s.upsert(tenantID).LogDestination = &d
		return nil
	})
}

// mutate applies fn under the write lock and saves the whole document when fn
// succeeds. A failed save leaves the in-memory change in place.
func (s *Store) mutate(ctx context.Context, op string, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := fn(); err != nil {
		return err
	}
	if err := s.persister.Save(ctx, s.snapshot()); err != nil {
		s.log.Sugar().Errorw("Failed to save state", "op", op, "err", err)
		return &models.PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) upsert(tenantID string) *models.Tenant {
	t, ok := s.tenants[tenantID]
	if !ok {
		t = &models.Tenant{ID: tenantID}
		s.tenants[tenantID] = t
		s.order = append(s.order, tenantID)
	}
	return t
}

func (s *Store) snapshot() models.Tenants {
	out := make(models.Tenants, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tenants[id].Clone())
	}
	return out
}
