package state

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/fiffu/feedwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryPersister struct {
	loaded models.Tenants
	saved  []models.Tenants
	err    error
}

func (p *memoryPersister) Load(ctx context.Context) (models.Tenants, error) {
	return p.loaded, nil
}

func (p *memoryPersister) Save(ctx context.Context, tenants models.Tenants) error {
	if p.err != nil {
		return p.err
	}
	p.saved = append(p.saved, tenants)
	return nil
}

func newTestStore(t *testing.T, p *memoryPersister) *Store {
	s, err := NewStore(context.Background(), zap.NewNop(), p)
	require.NoError(t, err)
	return s
}

var discord = models.Destination{Platform: "discord", Identifier: "42"}

func TestStoreSubscribeCreatesTenant(t *testing.T) {
	ctx := context.Background()
	p := &memoryPersister{}
	s := newTestStore(t, p)

	err := s.Subscribe(ctx, "g1", discord, models.Subscription{URL: "https://a/feed"})
	require.NoError(t, err)

	tenant, ok := s.Tenant("g1")
	require.True(t, ok)
	assert.Equal(t, discord, tenant.Destination)
	assert.Len(t, tenant.Subscriptions, 1)
	assert.Len(t, p.saved, 1)

	err = s.Subscribe(ctx, "g1", discord, models.Subscription{URL: "https://a/feed"})
	assert.ErrorIs(t, err, models.ErrAlreadySubscribed)
	assert.Len(t, p.saved, 1)
}

func TestStoreUnsubscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &memoryPersister{})

	assert.ErrorIs(t, s.Unsubscribe(ctx, "nobody", "u"), models.ErrUnknownTenant)

	require.NoError(t, s.Subscribe(ctx, "g1", discord, models.Subscription{URL: "a"}))
	require.NoError(t, s.Subscribe(ctx, "g1", discord, models.Subscription{URL: "b"}))
	assert.ErrorIs(t, s.Unsubscribe(ctx, "g1", "c"), models.ErrNotSubscribed)
	require.NoError(t, s.Unsubscribe(ctx, "g1", "a"))

	tenant, _ := s.Tenant("g1")
	assert.Equal(t, models.Subscriptions{{URL: "b"}}, tenant.Subscriptions)
}

func TestStoreSetWatermarkSavesEveryWrite(t *testing.T) {
	ctx := context.Background()
	p := &memoryPersister{}
	s := newTestStore(t, p)
	require.NoError(t, s.Subscribe(ctx, "g1", discord, models.Subscription{URL: "a"}))

	mark := sql.NullString{String: "e1", Valid: true}
	require.NoError(t, s.SetWatermark(ctx, "g1", "a", mark))
	assert.Len(t, p.saved, 2)
	assert.Equal(t, mark, p.saved[1][0].Subscriptions[0].Watermark)

	assert.ErrorIs(t, s.SetWatermark(ctx, "g1", "gone", mark), models.ErrNotSubscribed)
}

func TestStoreFailedSaveKeepsMemory(t *testing.T) {
	ctx := context.Background()
	p := &memoryPersister{}
	s := newTestStore(t, p)
	require.NoError(t, s.Subscribe(ctx, "g1", discord, models.Subscription{URL: "a"}))

	p.err = errors.New("disk full")
	mark := sql.NullString{String: "e2", Valid: true}
	err := s.SetWatermark(ctx, "g1", "a", mark)

	var persistErr *models.PersistenceError
	require.True(t, errors.As(err, &persistErr))
	assert.Equal(t, "set_watermark", persistErr.Op)

	tenant, _ := s.Tenant("g1")
	assert.Equal(t, mark, tenant.Subscriptions[0].Watermark)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &memoryPersister{})
	require.NoError(t, s.SetKeywords(ctx, "g1", []string{"AI"}))

	tenant, _ := s.Tenant("g1")
	tenant.Keywords[0] = "changed"

	again, _ := s.Tenant("g1")
	assert.Equal(t, []string{"AI"}, again.Keywords)
}

func TestStoreLogDestination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, &memoryPersister{})

	assert.ErrorIs(t, s.SetLogDestination(ctx, "g1", nil), models.ErrNoLogDestination)

	logs := models.Destination{Platform: "discord", Identifier: "7"}
	require.NoError(t, s.SetLogDestination(ctx, "g1", &logs))
	tenant, _ := s.Tenant("g1")
	assert.Equal(t, &logs, tenant.LogDestination)

	require.NoError(t, s.SetLogDestination(ctx, "g1", nil))
	tenant, _ = s.Tenant("g1")
	assert.Nil(t, tenant.LogDestination)
}

func TestStoreLoadsInOrder(t *testing.T) {
	p := &memoryPersister{loaded: models.Tenants{{ID: "b"}, {ID: "a"}, {ID: "b"}}}
	s := newTestStore(t, p)

	var ids []string
	for _, tenant := range s.Tenants() {
		ids = append(ids, tenant.ID)
	}
	assert.Equal(t, []string{"b", "a"}, ids)
}
