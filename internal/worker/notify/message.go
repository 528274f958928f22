package notify

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/style"
)

const (
	// MessageTitle is the embed title of every notification.
	MessageTitle = "It's Cup of the Day time!"
	// MessageURL links the embed to the rotation page.
	MessageURL = "https://trackmania.io/#/totd"
)

// BuildMessage renders the notification for one subscription.
func BuildMessage(track *types.Track, sub *types.Subscription) discord.MessageCreate {
	tags := make([]string, len(track.Tags))
	for i, tag := range track.Tags {
		tags[i] = style.Display(tag)
	}

	embed := discord.Embed{
		Title: MessageTitle,
		URL:   MessageURL,
		Fields: []discord.EmbedField{
			{
				Name:  fmt.Sprintf("%s by %s (AT: %.3f)", track.Name, track.Author, track.AuthorTime),
				Value: fmt.Sprintf("TMX says this map is %s!", strings.Join(tags, " / ")),
			},
		},
	}

	if track.ThumbnailURL != "" {
		embed.Image = &discord.EmbedResource{URL: track.ThumbnailURL}
	}

	msg := discord.MessageCreate{
		Embeds:          []discord.Embed{embed},
		AllowedMentions: &discord.AllowedMentions{},
	}

	if sub.HasRole() {
		msg.Content = fmt.Sprintf("<@&%d>", sub.RoleID)
		msg.AllowedMentions.Roles = []snowflake.ID{sub.RoleID}
	}

	return msg
}
