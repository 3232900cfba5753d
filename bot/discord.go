// Package bot exposes the command service as Discord slash commands. Each
// guild is a tenant; the channel a feed is added from becomes its destination.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/fiffu/feedwatch/config"
	"github.com/fiffu/feedwatch/lib"
	"github.com/fiffu/feedwatch/lib/models"
	"github.com/fiffu/feedwatch/lib/poller"
	"github.com/fiffu/feedwatch/senders"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const commandTimeout = 2 * time.Minute

type commandService interface {
	Subscribe(ctx context.Context, tenantID string, dest models.Destination, url string) (*lib.SubscribeResult, error)
	Unsubscribe(ctx context.Context, tenantID, url string) error
	List(tenantID string) (models.Subscriptions, error)
	Test(ctx context.Context, tenantID, url string) (*lib.TestResult, error)
	ForceCheck(ctx context.Context, tenantID, invoker string, privileged bool, reply func(context.Context, *poller.CycleReport)) error

	SetKeywords(ctx context.Context, tenantID string, kws []string) ([]string, error)
	AddKeywords(ctx context.Context, tenantID string, kws []string) (all, added []string, err error)
	RemoveKeywords(ctx context.Context, tenantID string, kws []string) (remaining, removed []string, err error)
	ClearKeywords(ctx context.Context, tenantID string) (int, error)
	ResetKeywords(ctx context.Context, tenantID string) ([]string, error)
	ListKeywords(tenantID string) []string

	SetLogChannel(ctx context.Context, tenantID string, dest models.Destination) error
	RemoveLogChannel(ctx context.Context, tenantID string) error
}

type Bot struct {
	log     *zap.Logger
	cfg     *config.Config
	session *discordgo.Session
	svc     commandService
	ready   *poller.Readiness

	// post sends a plain message to a channel; replaced in tests.
	post func(channelID, content string) error
}

// NewBot opens the Discord gateway and registers the slash commands. Without
// a session the bot is disabled and readiness is signalled straight away.
func NewBot(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, session *discordgo.Session, svc *lib.Service, ready *poller.Readiness) *Bot {
	b := newBot(cfg, log, session, svc, ready)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if session == nil {
				log.Sugar().Info("Discord bot disabled since no token is configured")
				ready.Signal()
				return nil
			}
			return b.open()
		},
		OnStop: func(context.Context) error {
			if session == nil {
				return nil
			}
			return session.Close()
		},
	})
	return b
}

func newBot(cfg *config.Config, log *zap.Logger, session *discordgo.Session, svc commandService, ready *poller.Readiness) *Bot {
	b := &Bot{log: log, cfg: cfg, session: session, svc: svc, ready: ready}
	b.post = func(channelID, content string) error {
		_, err := b.session.ChannelMessageSend(channelID, content)
		return err
	}
	return b
}

func (b *Bot) open() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteraction)
	b.session.Identify.Intents = discordgo.IntentsGuilds

	if err := b.session.Open(); err != nil {
		return err
	}

	cmds, err := b.session.ApplicationCommandBulkOverwrite(b.session.State.User.ID, b.cfg.Discord.GuildID, discordCommands)
	if err != nil {
		return err
	}
	b.log.Sugar().Infow("Slash commands registered", "count", len(cmds), "guild", b.cfg.Discord.GuildID)
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.log.Sugar().Infow("Discord bot is ready", "user", r.User.Username, "guilds", len(r.Guilds))
	b.ready.Signal()
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	inv, ok := parseInvocation(i.Interaction)
	if !ok {
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		b.log.Sugar().Warnw("Failed to acknowledge command", "command", inv.String(), "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	resp := b.dispatch(ctx, inv)
	edit := &discordgo.WebhookEdit{Content: &resp.content}
	if len(resp.embeds) > 0 {
		edit.Embeds = &resp.embeds
	}
	if _, err := s.InteractionResponseEdit(i.Interaction, edit, discordgo.WithContext(ctx)); err != nil {
		b.log.Sugar().Warnw("Failed to respond to command", "command", inv.String(), "err", err)
	}
}

type invocation struct {
	tenantID   string
	channelID  string
	invoker    string
	privileged bool

	command string
	sub     string
	options map[string]string
}

func (inv invocation) String() string {
	return inv.command + " " + inv.sub
}

func parseInvocation(i *discordgo.Interaction) (invocation, bool) {
	if i.GuildID == "" || i.Member == nil {
		return invocation{}, false
	}
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		return invocation{}, false
	}

	inv := invocation{
		tenantID:   i.GuildID,
		channelID:  i.ChannelID,
		privileged: i.Member.Permissions&discordgo.PermissionManageMessages != 0,
		command:    data.Name,
		sub:        data.Options[0].Name,
		options:    map[string]string{},
	}
	if i.Member.User != nil {
		inv.invoker = i.Member.User.Username
	}
	for _, opt := range data.Options[0].Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionChannel:
			inv.options[opt.Name] = opt.ChannelValue(nil).ID
		default:
			inv.options[opt.Name] = opt.StringValue()
		}
	}
	return inv, true
}

type response struct {
	content string
	embeds  []*discordgo.MessageEmbed
}

func text(format string, args ...any) response {
	return response{content: fmt.Sprintf(format, args...)}
}

func (b *Bot) dispatch(ctx context.Context, inv invocation) response {
	b.log.Sugar().Infow("Command received", "command", inv.String(), "tenant", inv.tenantID, "invoker", inv.invoker)

	var (
		resp response
		err  error
	)
	switch inv.command {
	case "feeds":
		resp, err = b.feeds(ctx, inv)
	case "keywords":
		resp, err = b.keywords(ctx, inv)
	case "logs":
		resp, err = b.logs(ctx, inv)
	default:
		err = fmt.Errorf("unknown command %q", inv.command)
	}
	if err != nil {
		b.log.Sugar().Infow("Command failed", "command", inv.String(), "tenant", inv.tenantID, "err", err)
		return text(":robot: %s", describeError(err))
	}
	return resp
}

func (b *Bot) feeds(ctx context.Context, inv invocation) (response, error) {
	url := inv.options["url"]

	switch inv.sub {
	case "add":
		dest := models.Destination{Platform: senders.PlatformDiscord, Identifier: inv.channelID}
		res, err := b.svc.Subscribe(ctx, inv.tenantID, dest, url)
		if res == nil {
			return response{}, err
		}
		msg := fmt.Sprintf(":newspaper2: Subscribed to [%s](%s), %d entries in feed", res.FeedTitle, res.URL, res.EntryCount)
		if err != nil {
			msg += "\n:warning: " + describeError(err)
		}
		return response{content: msg}, nil

	case "remove":
		if err := b.svc.Unsubscribe(ctx, inv.tenantID, url); err != nil {
			return response{}, err
		}
		return text(":newspaper2: Unsubscribed from <%s>", url), nil

	case "list":
		subs, err := b.svc.List(inv.tenantID)
		if errors.Is(err, models.ErrUnknownTenant) || (err == nil && len(subs) == 0) {
			return text(":newspaper2: No subscriptions yet"), nil
		} else if err != nil {
			return response{}, err
		}
		var sb strings.Builder
		sb.WriteString(":newspaper2: Your subscriptions:\n")
		for i, sub := range subs {
			fmt.Fprintf(&sb, "%d. <%s>\n", i+1, sub.URL)
		}
		return response{content: sb.String()}, nil

	case "test":
		res, err := b.svc.Test(ctx, inv.tenantID, url)
		if err != nil {
			return response{}, err
		}
		verdict := ":white_check_mark: passes the keyword filter"
		if !res.Matches {
			verdict = ":no_entry: filtered out by keywords"
		}
		kws := "none, every entry is delivered"
		if len(res.Keywords) > 0 {
			kws = strings.Join(res.Keywords, ", ")
		}
		return response{
			content: fmt.Sprintf("Newest entry %s\nKeywords: %s", verdict, kws),
			embeds:  []*discordgo.MessageEmbed{senders.NotificationEmbed(res.Notification)},
		}, nil

	case "check":
		channelID := inv.channelID
		err := b.svc.ForceCheck(ctx, inv.tenantID, inv.invoker, inv.privileged, func(_ context.Context, report *poller.CycleReport) {
			if err := b.post(channelID, formatReport(report)); err != nil {
				b.log.Sugar().Warnw("Failed to post check summary", "channel", channelID, "err", err)
			}
		})
		if err != nil {
			return response{}, err
		}
		return text(":mag: Checking feeds, a summary will be posted here"), nil
	}
	return response{}, fmt.Errorf("unknown subcommand %q", inv.sub)
}

func (b *Bot) keywords(ctx context.Context, inv invocation) (response, error) {
	input := splitKeywords(inv.options["keywords"])

	switch inv.sub {
	case "set":
		kws, err := b.svc.SetKeywords(ctx, inv.tenantID, input)
		if err != nil {
			return response{}, err
		}
		return text(":label: Keywords set: %s", strings.Join(kws, ", ")), nil

	case "add":
		_, added, err := b.svc.AddKeywords(ctx, inv.tenantID, input)
		if err != nil {
			return response{}, err
		}
		if len(added) == 0 {
			return text(":label: Those keywords are already in the list"), nil
		}
		return text(":label: Added: %s", strings.Join(added, ", ")), nil

	case "remove":
		_, removed, err := b.svc.RemoveKeywords(ctx, inv.tenantID, input)
		if err != nil {
			return response{}, err
		}
		if len(removed) == 0 {
			return text(":label: None of those keywords were in the list"), nil
		}
		return text(":label: Removed: %s", strings.Join(removed, ", ")), nil

	case "clear":
		n, err := b.svc.ClearKeywords(ctx, inv.tenantID)
		if err != nil {
			return response{}, err
		}
		return text(":label: Cleared %d keywords, every entry will be delivered", n), nil

	case "reset":
		kws, err := b.svc.ResetKeywords(ctx, inv.tenantID)
		if err != nil {
			return response{}, err
		}
		return text(":label: Restored %d default keywords", len(kws)), nil

	case "list":
		kws := b.svc.ListKeywords(inv.tenantID)
		if len(kws) == 0 {
			return text(":label: No keywords, every entry is delivered"), nil
		}
		return text(":label: Keywords (%d): %s", len(kws), strings.Join(kws, ", ")), nil
	}
	return response{}, fmt.Errorf("unknown subcommand %q", inv.sub)
}

func (b *Bot) logs(ctx context.Context, inv invocation) (response, error) {
	switch inv.sub {
	case "set":
		channelID := inv.options["channel"]
		if channelID == "" {
			channelID = inv.channelID
		}
		dest := models.Destination{Platform: senders.PlatformDiscord, Identifier: channelID}
		if err := b.svc.SetLogChannel(ctx, inv.tenantID, dest); err != nil {
			var deliveryErr *models.DeliveryError
			if errors.As(err, &deliveryErr) {
				return text(":warning: Log channel set to <#%s>, but posting there failed: %v", channelID, deliveryErr.Err), nil
			}
			return response{}, err
		}
		return text(":scroll: Logs will be posted to <#%s>", channelID), nil

	case "remove":
		if err := b.svc.RemoveLogChannel(ctx, inv.tenantID); err != nil {
			return response{}, err
		}
		return text(":scroll: Log channel removed"), nil
	}
	return response{}, fmt.Errorf("unknown subcommand %q", inv.sub)
}

func splitKeywords(s string) []string {
	var out []string
	for _, kw := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '\n' }) {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func formatReport(r *poller.CycleReport) string {
	msg := fmt.Sprintf(":white_check_mark: Check finished in %s: %d feeds checked, %d new entries delivered, %d filtered",
		r.Elapsed.Round(time.Second), r.FeedsChecked, r.Delivered, r.Filtered)
	if r.Errored > 0 {
		msg += fmt.Sprintf(", %d feeds failed", r.Errored)
	}
	return msg
}

func describeError(err error) string {
	var (
		fetchErr   *models.FetchError
		invalidErr *models.InvalidFeedError
		persistErr *models.PersistenceError
	)
	switch {
	case errors.Is(err, models.ErrNotPrivileged):
		return "You need the Manage Messages permission to run a check"
	case errors.Is(err, models.ErrAlreadySubscribed):
		return "This feed is already subscribed"
	case errors.Is(err, models.ErrNotSubscribed):
		return "This feed is not subscribed"
	case errors.As(err, &fetchErr):
		return fmt.Sprintf("Could not fetch the feed: %v", fetchErr.Err)
	case errors.As(err, &invalidErr):
		return "That url does not serve a valid RSS or Atom feed"
	case errors.As(err, &persistErr):
		return "The change was applied but could not be saved"
	}
	return err.Error()
}
