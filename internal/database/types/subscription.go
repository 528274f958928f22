package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Subscription routes notifications for one style to a guild channel.
// A guild has at most one subscription per style.
type Subscription struct {
	ID        int64        `bun:",pk,autoincrement"                            json:"id"`
	GuildID   snowflake.ID `bun:",notnull,unique:guild_style"                  json:"guildId"`
	ChannelID snowflake.ID `bun:",notnull"                                     json:"channelId"`
	RoleID    snowflake.ID `bun:",nullzero"                                    json:"roleId,omitempty"`
	StyleID   int          `bun:",notnull,unique:guild_style"                  json:"styleId"`
	StyleName string       `bun:",scanonly"                                    json:"style"`
	CreatedAt time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time    `bun:",nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

// HasRole reports whether notifications should mention a role.
func (s *Subscription) HasRole() bool {
	return s.RoleID != 0
}
