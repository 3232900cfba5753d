package state

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiffu/feedwatch/lib/models"
	"muzzammil.xyz/jsonc"
)

// JSONPersister reads and writes the bot's single-file configuration format:
//
//	{
//	  "rss_configs":     {"<tenant>": {"channel": <dest>, "feeds": {"<url>": "<watermark>" | null}}},
//	  "server_keywords": {"<tenant>": ["kw", ...]},
//	  "log_channels":    {"<tenant>": <dest>}
//	}
//
// A destination is written as a bare number for Discord channels and as
// "platform:identifier" otherwise. Comments are accepted on load.
type JSONPersister struct {
	path string
}

func NewJSONPersister(path string) *JSONPersister {
	return &JSONPersister{path}
}

type jsonDocument struct {
	RSSConfigs     orderedMap[jsonTenant]      `json:"rss_configs"`
	ServerKeywords orderedMap[[]string]        `json:"server_keywords"`
	LogChannels    orderedMap[jsonDestination] `json:"log_channels"`
}

type jsonTenant struct {
	Channel jsonDestination     `json:"channel"`
	Feeds   orderedMap[*string] `json:"feeds"`
}

func (p *JSONPersister) Load(ctx context.Context) (models.Tenants, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var doc jsonDocument
	if err := jsonc.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path, err)
	}

	byID := make(map[string]*models.Tenant)
	var out models.Tenants
	tenant := func(id string) *models.Tenant {
		if t, ok := byID[id]; ok {
			return t
		}
		t := &models.Tenant{ID: id}
		byID[id] = t
		out = append(out, t)
		return t
	}

	for _, cfg := range doc.RSSConfigs {
		t := tenant(cfg.Key)
		t.Destination = models.Destination(cfg.Value.Channel)
		for _, feed := range cfg.Value.Feeds {
			sub := models.Subscription{URL: feed.Key}
			if feed.Value != nil {
				sub.Watermark = sql.NullString{String: *feed.Value, Valid: true}
			}
			t.Subscriptions = append(t.Subscriptions, sub)
		}
	}
	for _, kws := range doc.ServerKeywords {
		tenant(kws.Key).Keywords = append([]string(nil), kws.Value...)
	}
	for _, ch := range doc.LogChannels {
		d := models.Destination(ch.Value)
		tenant(ch.Key).LogDestination = &d
	}
	return out, nil
}

func (p *JSONPersister) Save(ctx context.Context, tenants models.Tenants) error {
	var doc jsonDocument
	for _, t := range tenants {
		if !t.Destination.IsZero() || len(t.Subscriptions) > 0 {
			cfg := jsonTenant{Channel: jsonDestination(t.Destination)}
			for _, sub := range t.Subscriptions {
				var mark *string
				if sub.Watermark.Valid {
					s := sub.Watermark.String
					mark = &s
				}
				cfg.Feeds = append(cfg.Feeds, pair[*string]{sub.URL, mark})
			}
			doc.RSSConfigs = append(doc.RSSConfigs, pair[jsonTenant]{t.ID, cfg})
		}
		if t.Keywords != nil {
			doc.ServerKeywords = append(doc.ServerKeywords, pair[[]string]{t.ID, t.Keywords})
		}
		if t.LogDestination != nil {
			doc.LogChannels = append(doc.LogChannels, pair[jsonDestination]{t.ID, jsonDestination(*t.LogDestination)})
		}
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return err
	}
	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

// jsonDestination accepts a bare Discord channel id (number or numeric
// string) as well as "platform:identifier".
type jsonDestination models.Destination

func (d jsonDestination) MarshalJSON() ([]byte, error) {
	if d.Platform == "discord" {
		if _, err := strconv.ParseUint(d.Identifier, 10, 64); err == nil {
			return []byte(d.Identifier), nil
		}
	}
	return json.Marshal(models.Destination(d).String())
}

func (d *jsonDestination) UnmarshalJSON(b []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case nil:
		*d = jsonDestination{}
	case json.Number:
		*d = jsonDestination{Platform: "discord", Identifier: v.String()}
	case string:
		if v == "" {
			*d = jsonDestination{}
			return nil
		}
		if _, err := strconv.ParseUint(v, 10, 64); err == nil {
			*d = jsonDestination{Platform: "discord", Identifier: v}
			return nil
		}
		dest, err := models.ParseDestination(v)
		if err != nil {
			return err
		}
		*d = jsonDestination(dest)
	default:
		return fmt.Errorf("%w: %s", models.ErrInvalidDestination, strings.TrimSpace(string(b)))
	}
	return nil
}

type pair[V any] struct {
	Key   string
	Value V
}

// orderedMap is a JSON object that keeps its keys in document order.
type orderedMap[V any] []pair[V]

func (m orderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, kv := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *orderedMap[V]) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("expected object, got %v", tok)
	}

	var out orderedMap[V]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var v V
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		out = append(out, pair[V]{key, v})
	}
	*m = out
	return nil
}
