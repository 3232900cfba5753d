package senders

import (
	"context"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Sender delivers payloads to destinations on one platform. Both methods
// return the platform's message id.
type Sender interface {
	SendNotification(ctx context.Context, dest models.Destination, n *models.Notification) (string, error)
	SendLog(ctx context.Context, dest models.Destination, msg *models.LogMessage) (string, error)
}

type Registry map[string]Sender

// NewSenderRegistry registers a sender for every platform that has
// credentials configured. The discord session may be nil.
func NewSenderRegistry(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, transport http.RoundTripper, session *discordgo.Session) Registry {
	base := base{log, cfg, transport}
	registry := Registry{}

	if session != nil {
		registry[PlatformDiscord] = &discordSender{base, session}
	}
	if cfg.Telegram.Token != "" {
		if tg, err := newTelegramSender(base); err != nil {
			log.Sugar().Errorw("Telegram sender disabled", "err", err)
		} else {
			registry[PlatformTelegram] = tg
		}
	}
	if cfg.Mailgun.Domain != "" && cfg.Mailgun.APIKey != "" {
		registry[PlatformEmail] = &emailSender{base, &mailgunSender{base}}
	}

	platforms := make([]string, 0, len(registry))
	for p := range registry {
		platforms = append(platforms, p)
	}
	log.Sugar().Infow("Senders registered", "platforms", platforms)
	return registry
}

const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
	PlatformEmail    = "email"
)

type base struct {
	log       *zap.Logger
	cfg       *config.Config
	transport http.RoundTripper
}
