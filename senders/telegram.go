package senders

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fiffu/feedwatch/lib/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type telegramSender struct {
	base
	api telegramAPI
}

func newTelegramSender(b base) (*telegramSender, error) {
	client := &http.Client{Transport: b.transport}
	api, err := tgbotapi.NewBotAPIWithClient(b.cfg.Telegram.Token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, err
	}
	b.log.Sugar().Infow("Telegram sender authorized", "account", api.Self.UserName)
	return &telegramSender{b, api}, nil
}

func (tg *telegramSender) SendNotification(ctx context.Context, dest models.Destination, n *models.Notification) (string, error) {
	return tg.send(dest, FormatNotificationHTML(n), false)
}

func (tg *telegramSender) SendLog(ctx context.Context, dest models.Destination, msg *models.LogMessage) (string, error) {
	return tg.send(dest, FormatLogHTML(msg), true)
}

func (tg *telegramSender) send(dest models.Destination, text string, quiet bool) (string, error) {
	msg, err := newTelegramMessage(dest.Identifier, text)
	if err != nil {
		return "", err
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableNotification = quiet

	resp, err := tg.api.Send(msg)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(resp.MessageID), nil
}

// newTelegramMessage accepts a numeric chat id or an @channel username.
func newTelegramMessage(chat, text string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(chat, "@") {
		return tgbotapi.NewMessageToChannel(chat, text), nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("%w: telegram chat %q", models.ErrInvalidDestination, chat)
	}
	return tgbotapi.NewMessage(id, text), nil
}
