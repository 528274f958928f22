package bot_test

import (
	"testing"

	"github.com/disgoorg/disgo/discord"
	"github.com/robalyx/cotd/internal/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	t.Parallel()

	byName := make(map[string]discord.SlashCommandCreate)
	for _, cmd := range bot.Commands() {
		slash, ok := cmd.(discord.SlashCommandCreate)
		require.True(t, ok)
		byName[slash.Name] = slash
	}

	assert.Len(t, byName, 5)

	subscribe := byName[bot.CommandSubscribe]
	require.Len(t, subscribe.Options, 2)
	for _, opt := range subscribe.Options {
		switch o := opt.(type) {
		case discord.ApplicationCommandOptionString:
			assert.True(t, o.Required)
		case discord.ApplicationCommandOptionRole:
			assert.True(t, o.Required)
		default:
			t.Fatalf("unexpected option type %T", opt)
		}
	}

	unsubscribe := byName[bot.CommandUnsubscribe]
	require.Len(t, unsubscribe.Options, 2)
	for _, opt := range unsubscribe.Options {
		switch o := opt.(type) {
		case discord.ApplicationCommandOptionString:
			assert.False(t, o.Required)
		case discord.ApplicationCommandOptionRole:
			assert.False(t, o.Required)
		}
	}
}
