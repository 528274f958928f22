package bot

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// Dispatcher sends notification messages through the Discord REST API.
type Dispatcher struct {
	channels rest.Channels
	timeout  time.Duration
}

// NewDispatcher creates a Dispatcher. Each send is bounded by timeout.
func NewDispatcher(channels rest.Channels, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
	}
}

// Send posts the message to the channel. The returned status is the HTTP
// status of the response, or 0 when no response was received.
func (d *Dispatcher) Send(ctx context.Context, channelID snowflake.ID, msg discord.MessageCreate) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if _, err := d.channels.CreateMessage(channelID, msg, rest.WithCtx(ctx)); err != nil {
		return StatusCode(err), err
	}

	return http.StatusOK, nil
}

// StatusCode extracts the HTTP status from a Discord REST error.
func StatusCode(err error) int {
	var restErr *rest.Error
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}

	return 0
}
