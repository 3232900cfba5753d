package senders

import (
	"fmt"
	"html"
	"strings"

	"github.com/fiffu/feedwatch/lib/models"
)

func FormatNotificationHTML(n *models.Notification) string {
	var b strings.Builder

	b.WriteString("📰 <b>")
	if n.URL != "" {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(n.URL), html.EscapeString(n.Title))
	} else {
		b.WriteString(html.EscapeString(n.Title))
	}
	b.WriteString("</b>\n")

	if n.FeedTitle != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(n.FeedTitle))
	}
	if n.Description != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(n.Description))
		b.WriteString("\n")
	}
	if n.Author != "" || n.Categories != "" {
		b.WriteString("\n")
	}
	if n.Author != "" {
		fmt.Fprintf(&b, "✍️ %s\n", html.EscapeString(n.Author))
	}
	if n.Categories != "" {
		fmt.Fprintf(&b, "🏷️ %s\n", html.EscapeString(n.Categories))
	}
	if n.Footer != "" {
		fmt.Fprintf(&b, "\n<i>%s</i>", html.EscapeString(n.Footer))
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatLogHTML(msg *models.LogMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>[%s] %s</b>", html.EscapeString(strings.ToUpper(msg.Level)), html.EscapeString(msg.Title))
	if msg.Text != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(msg.Text))
	}
	return b.String()
}
