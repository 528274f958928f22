package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"go.uber.org/zap"
)

// Gateway receives slash commands over the Discord gateway.
type Gateway struct {
	client  bot.Client
	handler *Handler
	logger  *zap.Logger
}

// NewGateway configures a gateway client that answers slash commands with the handler.
func NewGateway(token string, handler *Handler, logger *zap.Logger) (*Gateway, error) {
	g := &Gateway{
		handler: handler,
		logger:  logger.Named("gateway"),
	}

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(gateway.IntentGuilds),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnApplicationCommandInteraction: g.handleApplicationCommandInteraction,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway client: %w", err)
	}

	g.client = client

	return g, nil
}

// Open connects to the gateway.
func (g *Gateway) Open(ctx context.Context) error {
	g.logger.Info("Opening gateway")
	return g.client.OpenGateway(ctx)
}

// Close gracefully shuts down the gateway connection.
func (g *Gateway) Close(ctx context.Context) {
	g.logger.Info("Closing gateway")
	g.client.Close(ctx)
}

// handleApplicationCommandInteraction answers a slash command.
func (g *Gateway) handleApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	if event.Data.Type() != discord.ApplicationCommandTypeSlash {
		return
	}

	start := time.Now()
	data := event.SlashCommandInteractionData()

	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("Panic in application command interaction handler", zap.Any("panic", r))
		}
		g.logger.Debug("Application command interaction handled",
			zap.String("command", data.CommandName()),
			zap.Duration("duration", time.Since(start)))
	}()

	cmd := Command{
		Name:      data.CommandName(),
		ChannelID: event.ChannelID(),
	}

	if guildID := event.GuildID(); guildID != nil {
		cmd.GuildID = *guildID
	}

	if style, ok := data.OptString(OptionStyle); ok {
		cmd.Style = style
	}

	if role, ok := data.OptSnowflake(OptionRole); ok {
		cmd.RoleID = role
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := event.CreateMessage(g.handler.Handle(ctx, cmd)); err != nil {
		g.logger.Error("Failed to respond to command", zap.String("command", cmd.Name), zap.Error(err))
	}
}
