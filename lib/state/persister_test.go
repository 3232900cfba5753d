package state

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/fiffu/feedwatch/lib/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTenants() models.Tenants {
	return models.Tenants{
		{
			ID:          "200",
			Destination: models.Destination{Platform: "discord", Identifier: "555"},
			Subscriptions: models.Subscriptions{
				{URL: "https://z/feed", Watermark: sql.NullString{String: "z1", Valid: true}},
				{URL: "https://a/feed"},
			},
			Keywords:       []string{"AI", "santé IA"},
			LogDestination: &models.Destination{Platform: "telegram", Identifier: "-100"},
		},
		{
			ID:          "100",
			Destination: models.Destination{Platform: "email", Identifier: "ops@example.com"},
			Subscriptions: models.Subscriptions{
				{URL: "https://b/feed", Watermark: sql.NullString{String: "b9", Valid: true}},
			},
		},
	}
}

func TestSQLitePersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, err := NewSQLitePersister(filepath.Join(t.TempDir(), "state.sqlite"))
	require.NoError(t, err)
	defer p.Close()

	loaded, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, p.Save(ctx, sampleTenants()))
	loaded, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTenants(), loaded)

	// A second save replaces rather than appends.
	smaller := sampleTenants()[1:]
	require.NoError(t, p.Save(ctx, smaller))
	loaded, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, smaller, loaded)
}

func TestJSONPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewJSONPersister(filepath.Join(t.TempDir(), "data", "config.json"))

	loaded, err := p.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	require.NoError(t, p.Save(ctx, sampleTenants()))
	loaded, err = p.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleTenants(), loaded)
}

func TestJSONPersisterReadsLegacyDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{
    // written by hand
    "rss_configs": {
        "987": {"channel": 123456, "feeds": {"https://z/feed": "z1", "https://a/feed": null}}
    },
    "server_keywords": {"987": ["IA"], "654": []},
    "log_channels": {"987": 777}
}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	loaded, err := NewJSONPersister(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	g := loaded[0]
	assert.Equal(t, "987", g.ID)
	assert.Equal(t, models.Destination{Platform: "discord", Identifier: "123456"}, g.Destination)
	assert.Equal(t, models.Subscriptions{
		{URL: "https://z/feed", Watermark: sql.NullString{String: "z1", Valid: true}},
		{URL: "https://a/feed"},
	}, g.Subscriptions)
	assert.Equal(t, []string{"IA"}, g.Keywords)
	assert.Equal(t, &models.Destination{Platform: "discord", Identifier: "777"}, g.LogDestination)

	assert.Equal(t, "654", loaded[1].ID)
	assert.Empty(t, loaded[1].Subscriptions)
}

func TestJSONPersisterWritesDiscordChannelsAsNumbers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, NewJSONPersister(path).Save(context.Background(), sampleTenants()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"channel": 555`)
	assert.Contains(t, string(data), `"channel": "email:ops@example.com"`)
	assert.Contains(t, string(data), `"https://a/feed": null`)
}
