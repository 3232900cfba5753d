package senders

import (
	"context"
	"time"

	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/senders/email"
	"github.com/mailgun/mailgun-go/v4"
)

type mailer interface {
	Send(ctx context.Context, subject, body, recipient string) (string, error)
}

type mailgunSender struct {
	base
}

func (e *mailgunSender) Send(ctx context.Context, subject, body, recipient string) (string, error) {
	mg := mailgun.NewMailgun(e.cfg.Mailgun.Domain, e.cfg.Mailgun.APIKey)
	mg.Client().Transport = e.transport

	// Create message with empty body first.
	message := mg.NewMessage(e.cfg.Mailgun.SenderFrom, subject, "", recipient)
	// SetHtml with the payload proper. This will assign the MIME type properly.
	message.SetHtml(body)

	timeout := time.Duration(e.cfg.Mailgun.TimeoutSecs) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, id, err := mg.Send(ctx, message)
	return id, err
}

type emailSender struct {
	base
	mailer mailer
}

func (e *emailSender) SendNotification(ctx context.Context, dest models.Destination, n *models.Notification) (string, error) {
	ef := &email.NotificationEmailFormat{Notification: n}
	return e.mailer.Send(ctx, ef.Subject(), ef.Body(), dest.Identifier)
}

func (e *emailSender) SendLog(ctx context.Context, dest models.Destination, msg *models.LogMessage) (string, error) {
	ef := &email.LogEmailFormat{Message: msg}
	return e.mailer.Send(ctx, ef.Subject(), ef.Body(), dest.Identifier)
}
