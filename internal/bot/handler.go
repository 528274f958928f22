package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/style"
	"github.com/robalyx/cotd/internal/subscription"
	"go.uber.org/zap"
)

const (
	fieldSuccess = "Success!"
	fieldFailure = "Failure!"
	styleColumns = 3
)

// SubscriptionService applies subscription commands.
type SubscriptionService interface {
	Subscribe(ctx context.Context, guildID, channelID, roleID snowflake.ID, styleName string) (*types.Subscription, error)
	Unsubscribe(ctx context.Context, guildID snowflake.ID, styleName string, roleID snowflake.ID) (bool, error)
	List(ctx context.Context, guildID snowflake.ID) ([]*types.Subscription, error)
	Styles() []string
}

// Command is a slash command invocation independent of its transport.
type Command struct {
	Name      string
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	Style     string
	RoleID    snowflake.ID
}

// Handler turns commands into responses.
type Handler struct {
	subs   SubscriptionService
	logger *zap.Logger
}

// NewHandler creates a command Handler.
func NewHandler(subs SubscriptionService, logger *zap.Logger) *Handler {
	return &Handler{
		subs:   subs,
		logger: logger.Named("commands"),
	}
}

// Handle runs a command and returns the reply. Mentions in replies are suppressed.
func (h *Handler) Handle(ctx context.Context, cmd Command) discord.MessageCreate {
	h.logger.Debug("Handling command",
		zap.String("command", cmd.Name),
		zap.Uint64("guildID", uint64(cmd.GuildID)))

	if cmd.GuildID == 0 && cmd.Name != CommandHelp && cmd.Name != CommandStyles {
		return reply(field(fieldFailure, "This command can only be used in a server."))
	}

	switch cmd.Name {
	case CommandHelp:
		return h.help()
	case CommandShow:
		return h.show(ctx, cmd)
	case CommandSubscribe:
		return h.subscribe(ctx, cmd)
	case CommandStyles:
		return h.styles()
	case CommandUnsubscribe:
		return h.unsubscribe(ctx, cmd)
	default:
		return reply(field(fieldFailure, "This command is not available."))
	}
}

func (h *Handler) help() discord.MessageCreate {
	return reply(
		field("/subscribe style role", "Mention a role in this channel when a map with the style becomes Cup of the Day."),
		field("/unsubscribe style role", "Remove a subscription by style and/or role."),
		field("/show", "List this server's subscriptions."),
		field("/styles", "List the valid map styles."),
	)
}

func (h *Handler) show(ctx context.Context, cmd Command) discord.MessageCreate {
	subs, err := h.subs.List(ctx, cmd.GuildID)
	if err != nil {
		return h.internalError(cmd, err)
	}

	if len(subs) == 0 {
		return reply(field(fieldFailure, "No subscriptions found for this server."))
	}

	lines := make([]string, len(subs))
	for i, sub := range subs {
		line := fmt.Sprintf("%d. %s -> <#%d>", i+1, style.Display(sub.StyleName), sub.ChannelID)
		if sub.HasRole() {
			line += fmt.Sprintf(" (<@&%d>)", sub.RoleID)
		}
		lines[i] = line
	}

	return reply(field(fmt.Sprintf("Found %d Subscription(s):", len(subs)), strings.Join(lines, "\n")))
}

func (h *Handler) subscribe(ctx context.Context, cmd Command) discord.MessageCreate {
	if strings.TrimSpace(cmd.Style) == "" {
		return reply(field(fieldFailure, "A style is required. Use /styles to see the valid map styles."))
	}

	sub, err := h.subs.Subscribe(ctx, cmd.GuildID, cmd.ChannelID, cmd.RoleID, cmd.Style)
	if errors.Is(err, subscription.ErrInvalidStyle) {
		return reply(field(fieldFailure,
			fmt.Sprintf("%s is not a valid style. Use /styles to see the valid map styles.", style.Display(cmd.Style))))
	}

	if err != nil {
		return h.internalError(cmd, err)
	}

	target := "post"
	if sub.HasRole() {
		target = fmt.Sprintf("mention <@&%d>", sub.RoleID)
	}

	return reply(
		field(fieldSuccess, fmt.Sprintf(
			"You are now subscribed to %s! I will %s here in <#%d> when this style becomes Cup of the Day.",
			style.Display(sub.StyleName), target, sub.ChannelID)),
		field("Reminder:", "If you have previously configured another role or channel for this style, "+
			"the previous configuration has been overwritten."),
	)
}

func (h *Handler) styles() discord.MessageCreate {
	names := h.subs.Styles()

	fields := []discord.EmbedField{
		field("Valid map styles according to TMX:", "(These are case insensitive.)"),
	}

	lines := make([]string, len(names))
	for i, name := range names {
		lines[i] = fmt.Sprintf("%d. %s", i+1, name)
	}

	// Condensed three column layout
	batch := (len(lines) + styleColumns - 1) / styleColumns
	inline := true

	for start := 0; start < len(lines); start += batch {
		end := min(start+batch, len(lines))
		fields = append(fields, discord.EmbedField{
			Name:   "",
			Value:  strings.Join(lines[start:end], "\n"),
			Inline: &inline,
		})
	}

	return reply(fields...)
}

func (h *Handler) unsubscribe(ctx context.Context, cmd Command) discord.MessageCreate {
	deleted, err := h.subs.Unsubscribe(ctx, cmd.GuildID, cmd.Style, cmd.RoleID)
	if errors.Is(err, subscription.ErrFilterRequired) {
		return reply(field(fieldFailure, "At minimum, one of Style or Role is required."))
	}

	if err != nil {
		return h.internalError(cmd, err)
	}

	target := style.Display(cmd.Style)
	if target == "" {
		target = fmt.Sprintf("<@&%d>", cmd.RoleID)
	}

	if !deleted {
		return reply(field(fieldFailure, fmt.Sprintf("Subscription not found for %s - nothing to delete.", target)))
	}

	return reply(field(fieldSuccess, fmt.Sprintf("Unsubscribed from %s notifications.", target)))
}

func (h *Handler) internalError(cmd Command, err error) discord.MessageCreate {
	h.logger.Error("Command failed",
		zap.String("command", cmd.Name),
		zap.Uint64("guildID", uint64(cmd.GuildID)),
		zap.Error(err))

	return reply(field(fieldFailure, "Something went wrong. Please try again later."))
}

func field(name, value string) discord.EmbedField {
	return discord.EmbedField{Name: name, Value: value}
}

// reply wraps fields in a single embed with all mentions suppressed.
func reply(fields ...discord.EmbedField) discord.MessageCreate {
	return discord.MessageCreate{
		Embeds:          []discord.Embed{{Fields: fields}},
		AllowedMentions: &discord.AllowedMentions{},
	}
}
