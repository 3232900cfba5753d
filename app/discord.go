package app

import (
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/fiffu/feedwatch/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewDiscordSession returns nil when no bot token is configured, which
// disables both the discord sender and the slash commands.
func NewDiscordSession(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) (*discordgo.Session, error) {
	if cfg.Discord.Token == "" {
		return nil, nil
	}
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, err
	}
	session.Client = &http.Client{Transport: transport}
	return session, nil
}
