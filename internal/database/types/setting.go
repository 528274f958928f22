package types

import (
	"time"
)

// BotSettingID is the primary key of the single bot settings row.
const BotSettingID = 1

// BotSetting stores bot-wide toggles that admins can change at runtime.
type BotSetting struct {
	ID                   uint64    `bun:",pk"                                          json:"-"`
	NotificationsEnabled bool      `bun:",notnull"                                     json:"notificationsEnabled"`
	UpdatedAt            time.Time `bun:",nullzero,notnull,default:current_timestamp" json:"updatedAt"`
	lastRefresh          time.Time `bun:"-"` // In-memory cache control
}

// NeedsRefresh checks if the settings need to be refreshed.
func (s *BotSetting) NeedsRefresh() bool {
	return time.Since(s.lastRefresh) > 5*time.Minute
}

// UpdateRefreshTime updates the last refresh time to now.
func (s *BotSetting) UpdateRefreshTime() {
	s.lastRefresh = time.Now()
}
