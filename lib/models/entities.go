package models

import (
	"database/sql"
	"fmt"
	"strings"
)

// Destination addresses a channel on one of the sender platforms,
// written as "platform:identifier" (e.g. "discord:1234", "email:a@b.c").
type Destination struct {
	Platform   string `json:"platform"`
	Identifier string `json:"identifier"`
}

func ParseDestination(s string) (Destination, error) {
	platform, ident, ok := strings.Cut(strings.TrimSpace(s), ":")
	platform = strings.ToLower(strings.TrimSpace(platform))
	ident = strings.TrimSpace(ident)
	if !ok || platform == "" || ident == "" {
		return Destination{}, fmt.Errorf("%w: %q (want platform:identifier)", ErrInvalidDestination, s)
	}
	return Destination{Platform: platform, Identifier: ident}, nil
}

func (d Destination) IsZero() bool {
	return d.Platform == "" && d.Identifier == ""
}

func (d Destination) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Platform + ":" + d.Identifier
}

// Subscription is one feed watched by a tenant. Watermark holds the identity
// of the newest entry seen on the last poll; it is invalid until the first
// poll (or the subscribe command) initializes it.
type Subscription struct {
	URL       string
	Watermark sql.NullString
}

type Subscriptions []Subscription

func (subs Subscriptions) Find(url string) (int, bool) {
	for i, sub := range subs {
		if sub.URL == url {
			return i, true
		}
	}
	return -1, false
}

// Tenant is an isolated configuration scope: one destination channel, its
// feeds, its keyword set and an optional log channel.
type Tenant struct {
	ID             string
	Destination    Destination
	Subscriptions  Subscriptions
	Keywords       []string
	LogDestination *Destination
}

func (t *Tenant) Clone() *Tenant {
	if t == nil {
		return nil
	}
	c := *t
	c.Subscriptions = append(Subscriptions(nil), t.Subscriptions...)
	c.Keywords = append([]string(nil), t.Keywords...)
	if t.LogDestination != nil {
		d := *t.LogDestination
		c.LogDestination = &d
	}
	return &c
}

type Tenants []*Tenant
