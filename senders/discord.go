package senders

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fiffu/feedwatch/lib/models"
)

const (
	embedTitleLimit       = 256
	embedDescriptionLimit = 4096
	embedFieldLimit       = 1024
)

var levelColors = map[string]int{
	"info":  0x3498db,
	"warn":  0xe67e22,
	"error": 0xe74c3c,
	"ok":    0x2ecc71,
}

type discordChannel interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type discordSender struct {
	base
	session discordChannel
}

func (d *discordSender) SendNotification(ctx context.Context, dest models.Destination, n *models.Notification) (string, error) {
	return d.send(ctx, dest, NotificationEmbed(n))
}

func (d *discordSender) SendLog(ctx context.Context, dest models.Destination, msg *models.LogMessage) (string, error) {
	return d.send(ctx, dest, LogEmbed(msg))
}

func (d *discordSender) send(ctx context.Context, dest models.Destination, embed *discordgo.MessageEmbed) (string, error) {
	m, err := d.session.ChannelMessageSendEmbed(dest.Identifier, embed, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

// NotificationEmbed renders a feed entry as a Discord embed, with the feed as
// the embed author.
func NotificationEmbed(n *models.Notification) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       truncate(n.Title, embedTitleLimit),
		URL:         n.URL,
		Description: truncate(n.Description, embedDescriptionLimit),
		Color:       n.Color,
		Timestamp:   n.Timestamp.UTC().Format(time.RFC3339),
		Author: &discordgo.MessageEmbedAuthor{
			Name:    truncate(n.FeedTitle, embedTitleLimit),
			URL:     n.FeedURL,
			IconURL: n.FeedIconURL,
		},
		Footer: &discordgo.MessageEmbedFooter{Text: n.Footer},
	}
	if n.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: n.ImageURL}
	}
	if n.Author != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Author", Value: truncate(n.Author, embedFieldLimit), Inline: true,
		})
	}
	if n.Categories != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Categories", Value: truncate(n.Categories, embedFieldLimit), Inline: true,
		})
	}
	return embed
}

func LogEmbed(msg *models.LogMessage) *discordgo.MessageEmbed {
	color, ok := levelColors[msg.Level]
	if !ok {
		color = levelColors["info"]
	}
	return &discordgo.MessageEmbed{
		Title:       truncate(msg.Title, embedTitleLimit),
		Description: truncate(msg.Text, embedDescriptionLimit),
		Color:       color,
		Timestamp:   msg.Timestamp.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "feedwatch • log"},
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}
