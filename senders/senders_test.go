package senders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func testNotification() *models.Notification {
	return &models.Notification{
		Title:       "Medical AI <breakthrough>",
		URL:         "https://example.com/post/1",
		Description: "Short summary",
		Color:       0x123456,
		Timestamp:   time.Date(2026, 2, 19, 8, 0, 0, 0, time.UTC),
		ImageURL:    "https://example.com/img.png",
		Author:      "Dr. Who",
		Categories:  "health, ai",
		FeedTitle:   "Test Blog",
		FeedURL:     "https://example.com",
		Footer:      "Published on 19 Feb 2026 08:00:00",
	}
}

type fakeDiscord struct {
	channel string
	embed   *discordgo.MessageEmbed
	err     error
}

func (f *fakeDiscord) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.channel, f.embed = channelID, embed
	return &discordgo.Message{ID: "m1"}, nil
}

func TestDiscordSendNotification(t *testing.T) {
	fake := &fakeDiscord{}
	d := &discordSender{session: fake}

	id, err := d.SendNotification(context.Background(), models.Destination{Platform: "discord", Identifier: "42"}, testNotification())
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Equal(t, "42", fake.channel)

	embed := fake.embed
	assert.Equal(t, "Medical AI <breakthrough>", embed.Title)
	assert.Equal(t, 0x123456, embed.Color)
	assert.Equal(t, "2026-02-19T08:00:00Z", embed.Timestamp)
	assert.Equal(t, "Test Blog", embed.Author.Name)
	assert.Equal(t, "https://example.com/img.png", embed.Image.URL)
	require.Len(t, embed.Fields, 2)
	assert.Equal(t, "Dr. Who", embed.Fields[0].Value)
	assert.Equal(t, "Published on 19 Feb 2026 08:00:00", embed.Footer.Text)
}

func TestDiscordSendError(t *testing.T) {
	d := &discordSender{session: &fakeDiscord{err: errors.New("403")}}
	_, err := d.SendLog(context.Background(), models.Destination{Identifier: "1"}, &models.LogMessage{Level: "error", Title: "x"})
	assert.Error(t, err)
}

func TestLogEmbedColors(t *testing.T) {
	assert.Equal(t, levelColors["error"], LogEmbed(&models.LogMessage{Level: "error"}).Color)
	assert.Equal(t, levelColors["info"], LogEmbed(&models.LogMessage{Level: "whatever"}).Color)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab...", truncate("abcdefgh", 5))
	assert.Equal(t, "éé...", truncate("ééééééé", 5))
}

type fakeTelegram struct {
	sent []tgbotapi.Chattable
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 7}, nil
}

func TestTelegramSend(t *testing.T) {
	fake := &fakeTelegram{}
	tg := &telegramSender{api: fake}

	id, err := tg.SendNotification(context.Background(), models.Destination{Identifier: "-100123"}, testNotification())
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	msg := fake.sent[0].(tgbotapi.MessageConfig)
	assert.Equal(t, int64(-100123), msg.ChatID)
	assert.Equal(t, tgbotapi.ModeHTML, msg.ParseMode)
	assert.Contains(t, msg.Text, "Medical AI &lt;breakthrough&gt;")

	_, err = tg.SendLog(context.Background(), models.Destination{Identifier: "@feedwatch"}, &models.LogMessage{Level: "info", Title: "hi"})
	require.NoError(t, err)
	msg = fake.sent[1].(tgbotapi.MessageConfig)
	assert.Equal(t, "@feedwatch", msg.ChannelUsername)
	assert.True(t, msg.DisableNotification)

	_, err = tg.SendLog(context.Background(), models.Destination{Identifier: "not-a-chat"}, &models.LogMessage{})
	assert.ErrorIs(t, err, models.ErrInvalidDestination)
}

func TestFormatNotificationHTML(t *testing.T) {
	out := FormatNotificationHTML(testNotification())
	assert.True(t, strings.HasPrefix(out, `📰 <b><a href="https://example.com/post/1">`))
	assert.Contains(t, out, "<i>Test Blog</i>")
	assert.Contains(t, out, "✍️ Dr. Who")
	assert.Contains(t, out, "🏷️ health, ai")
}

type fakeMailer struct {
	subject, body, recipient string
}

func (f *fakeMailer) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	f.subject, f.body, f.recipient = subject, body, recipient
	return "<id@mailgun>", nil
}

func TestEmailSender(t *testing.T) {
	fake := &fakeMailer{}
	e := &emailSender{mailer: fake}

	id, err := e.SendNotification(context.Background(), models.Destination{Platform: "email", Identifier: "a@b.c"}, testNotification())
	require.NoError(t, err)
	assert.Equal(t, "<id@mailgun>", id)
	assert.Equal(t, "a@b.c", fake.recipient)
	assert.Equal(t, "Feedwatch: [Test Blog] Medical AI <breakthrough>", fake.subject)
	assert.Contains(t, fake.body, `href="https://example.com/post/1"`)
	assert.Contains(t, fake.body, "Medical AI &lt;breakthrough&gt;")

	_, err = e.SendLog(context.Background(), models.Destination{Identifier: "a@b.c"}, &models.LogMessage{Level: "error", Title: "Fetch failed", Text: "boom"})
	require.NoError(t, err)
	assert.Equal(t, "Feedwatch [ERROR]: Fetch failed", fake.subject)
	assert.Contains(t, fake.body, "boom")
}

func TestRegistryOnlyConfiguredPlatforms(t *testing.T) {
	cfg := &config.Config{}
	registry := NewSenderRegistry(fxtest.NewLifecycle(t), zap.NewNop(), cfg, nil, nil)
	assert.Empty(t, registry)

	cfg.Mailgun.Domain, cfg.Mailgun.APIKey = "mg.example.com", "key"
	registry = NewSenderRegistry(fxtest.NewLifecycle(t), zap.NewNop(), cfg, nil, &discordgo.Session{})
	assert.Contains(t, registry, PlatformEmail)
	assert.Contains(t, registry, PlatformDiscord)
	assert.NotContains(t, registry, PlatformTelegram)
}
