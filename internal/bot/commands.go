package bot

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// Command names.
const (
	CommandHelp        = "help"
	CommandShow        = "show"
	CommandSubscribe   = "subscribe"
	CommandStyles      = "styles"
	CommandUnsubscribe = "unsubscribe"
)

// Option names.
const (
	OptionStyle = "style"
	OptionRole  = "role"
)

// Commands returns the slash command definitions.
func Commands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        CommandHelp,
			Description: "Show what this bot can do",
		},
		discord.SlashCommandCreate{
			Name:        CommandShow,
			Description: "Show this server's Cup of the Day subscriptions",
		},
		discord.SlashCommandCreate{
			Name:        CommandSubscribe,
			Description: "Get mentioned in this channel when a map style becomes Cup of the Day",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        OptionStyle,
					Description: "Map style, see /styles",
					Required:    true,
				},
				discord.ApplicationCommandOptionRole{
					Name:        OptionRole,
					Description: "Role to mention",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        CommandStyles,
			Description: "List the valid map styles",
		},
		discord.SlashCommandCreate{
			Name:        CommandUnsubscribe,
			Description: "Remove a subscription by style and/or role",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        OptionStyle,
					Description: "Map style to stop notifications for",
				},
				discord.ApplicationCommandOptionRole{
					Name:        OptionRole,
					Description: "Role to stop mentioning",
				},
			},
		},
	}
}

// RegisterCommands replaces the application's global commands.
func RegisterCommands(ctx context.Context, apps rest.Applications, appID snowflake.ID) error {
	if _, err := apps.SetGlobalCommands(appID, Commands(), rest.WithCtx(ctx)); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	return nil
}
