package notify

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// DispatchError describes a notification that could not be delivered.
type DispatchError struct {
	SubscriptionID int64
	ChannelID      snowflake.ID
	StatusCode     int
	Err            error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("failed to dispatch notification (subscriptionID=%d, channelID=%d, status=%d): %v",
		e.SubscriptionID, e.ChannelID, e.StatusCode, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
