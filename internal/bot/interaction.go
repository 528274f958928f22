package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

// ErrUnsupportedInteraction is returned for interaction types other than ping and slash commands.
var ErrUnsupportedInteraction = errors.New("unsupported interaction type")

// interactionPayload is the subset of an HTTP interaction we read.
type interactionPayload struct {
	Type      discord.InteractionType `json:"type"`
	GuildID   string                  `json:"guild_id"`   //nolint:tagliatelle // Discord uses snake_case
	ChannelID string                  `json:"channel_id"` //nolint:tagliatelle // Discord uses snake_case
	Data      struct {
		Name    string `json:"name"`
		Options []struct {
			Name  string `json:"name"`
			Value any    `json:"value"`
		} `json:"options"`
	} `json:"data"`
}

// HandleInteraction answers a raw HTTP interaction body.
func (h *Handler) HandleInteraction(ctx context.Context, body []byte) (discord.InteractionResponse, error) {
	var payload interactionPayload
	if err := sonic.Unmarshal(body, &payload); err != nil {
		return discord.InteractionResponse{}, fmt.Errorf("invalid interaction payload: %w", err)
	}

	switch payload.Type {
	case discord.InteractionTypePing:
		return discord.InteractionResponse{Type: discord.InteractionResponseTypePong}, nil
	case discord.InteractionTypeApplicationCommand:
		cmd, err := payload.command()
		if err != nil {
			return discord.InteractionResponse{}, err
		}

		return discord.InteractionResponse{
			Type: discord.InteractionResponseTypeCreateMessage,
			Data: h.Handle(ctx, cmd),
		}, nil
	default:
		return discord.InteractionResponse{}, fmt.Errorf("%w: %d", ErrUnsupportedInteraction, payload.Type)
	}
}

// command converts the payload into a Command.
func (p *interactionPayload) command() (Command, error) {
	cmd := Command{Name: p.Data.Name}

	var err error
	if cmd.GuildID, err = parseOptionalID(p.GuildID); err != nil {
		return Command{}, fmt.Errorf("invalid guild_id: %w", err)
	}

	if cmd.ChannelID, err = parseOptionalID(p.ChannelID); err != nil {
		return Command{}, fmt.Errorf("invalid channel_id: %w", err)
	}

	for _, opt := range p.Data.Options {
		value := fmt.Sprint(opt.Value)

		switch opt.Name {
		case OptionStyle:
			cmd.Style = value
		case OptionRole:
			if cmd.RoleID, err = parseOptionalID(value); err != nil {
				return Command{}, fmt.Errorf("invalid role: %w", err)
			}
		}
	}

	return cmd, nil
}

func parseOptionalID(s string) (snowflake.ID, error) {
	if s == "" {
		return 0, nil
	}

	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}

	return snowflake.ID(id), nil
}
