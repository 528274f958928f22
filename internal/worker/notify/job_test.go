package notify_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"github.com/robalyx/cotd/internal/database/models"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/redis"
	"github.com/robalyx/cotd/internal/worker/core"
	"github.com/robalyx/cotd/internal/worker/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var errForbidden = errors.New("missing access")

type fakeTracks struct {
	track *types.Track
}

func (f *fakeTracks) GetCurrentTrack(context.Context) (*types.Track, error) {
	if f.track == nil {
		return nil, models.ErrTrackNotFound
	}

	return f.track, nil
}

// fakeSubs matches styles case-insensitively like the database query does.
type fakeSubs struct {
	subs []*types.Subscription
}

func (f *fakeSubs) FindMatching(_ context.Context, tags []string) ([]*types.Subscription, error) {
	var matched []*types.Subscription
	for _, sub := range f.subs {
		for _, tag := range tags {
			if strings.EqualFold(sub.StyleName, tag) {
				matched = append(matched, sub)
				break
			}
		}
	}

	return matched, nil
}

type sentMessage struct {
	channelID snowflake.ID
	msg       discord.MessageCreate
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[snowflake.ID]int
}

func (f *fakeSender) Send(_ context.Context, channelID snowflake.ID, msg discord.MessageCreate) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, sentMessage{channelID: channelID, msg: msg})

	if status, ok := f.failFor[channelID]; ok {
		return status, errForbidden
	}

	return 200, nil
}

func testTrack() *types.Track {
	return &types.Track{
		UID:          "uid-1",
		Date:         time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		Name:         "Test Map",
		Author:       "Alice",
		AuthorTime:   45.231,
		Tags:         []string{"speed", "tech"},
		ThumbnailURL: "https://img/thumb.jpg",
	}
}

func newJob(t *testing.T, tracks *fakeTracks, subs *fakeSubs, sender *fakeSender) *notify.Job {
	t.Helper()

	logger := zaptest.NewLogger(t)

	return notify.New(tracks, subs, sender, redis.NewJobLock(nil, time.Minute, logger),
		core.NewMonitor(nil, "test", logger), 4, logger)
}

func TestNotifyEndToEnd(t *testing.T) {
	t.Parallel()

	subs := &fakeSubs{subs: []*types.Subscription{
		{ID: 1, GuildID: 1, ChannelID: 100, RoleID: 50, StyleName: "speed"},
	}}
	sender := &fakeSender{}
	tracks := &fakeTracks{track: testTrack()}

	summary, err := newJob(t, tracks, subs, sender).Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Matched)
	assert.Equal(t, 1, summary.Sent)
	assert.Empty(t, summary.Failed)

	require.Len(t, sender.sent, 1)
	got := sender.sent[0]
	assert.Equal(t, snowflake.ID(100), got.channelID)
	assert.Equal(t, "<@&50>", got.msg.Content)
	require.Len(t, got.msg.Embeds, 1)
	require.Len(t, got.msg.Embeds[0].Fields, 1)
	assert.Contains(t, got.msg.Embeds[0].Fields[0].Name, "45.231")
}

func TestNotifyMatchesCaseInsensitively(t *testing.T) {
	t.Parallel()

	track := testTrack()
	track.Tags = []string{"Speed", "Tech"}

	subs := &fakeSubs{subs: []*types.Subscription{
		{ID: 1, ChannelID: 100, StyleName: "speed"},
		{ID: 2, ChannelID: 200, StyleName: "race"},
	}}
	sender := &fakeSender{}

	summary, err := newJob(t, &fakeTracks{}, subs, sender).Run(t.Context(), track)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Sent)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, snowflake.ID(100), sender.sent[0].channelID)
}

func TestNotifyFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	subs := &fakeSubs{subs: []*types.Subscription{
		{ID: 1, ChannelID: 100, StyleName: "tech"},
		{ID: 2, ChannelID: 200, StyleName: "tech"},
		{ID: 3, ChannelID: 300, StyleName: "speed"},
	}}
	sender := &fakeSender{failFor: map[snowflake.ID]int{200: 403}}

	summary, err := newJob(t, &fakeTracks{}, subs, sender).Run(t.Context(), testTrack())
	require.NoError(t, err)

	assert.Len(t, sender.sent, 3, "every subscription is attempted")
	assert.Equal(t, 3, summary.Matched)
	assert.Equal(t, 2, summary.Sent)
	require.Len(t, summary.Failed, 1)

	failure := summary.Failed[0]
	assert.Equal(t, int64(2), failure.SubscriptionID)
	assert.Equal(t, snowflake.ID(200), failure.ChannelID)
	assert.Equal(t, 403, failure.StatusCode)
	require.ErrorIs(t, failure, errForbidden)

	var dispatchErr *notify.DispatchError
	require.ErrorAs(t, error(failure), &dispatchErr)
}

func TestNotifyWithoutCurrentMap(t *testing.T) {
	t.Parallel()

	subs := &fakeSubs{subs: []*types.Subscription{{ID: 1, ChannelID: 100, StyleName: "tech"}}}
	sender := &fakeSender{}

	summary, err := newJob(t, &fakeTracks{}, subs, sender).Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Matched)
	assert.Empty(t, sender.sent)
}

func TestNotifySkipsWhenAlreadyRunning(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	lock := redis.NewJobLock(nil, time.Minute, logger)
	sender := &fakeSender{}
	subs := &fakeSubs{subs: []*types.Subscription{{ID: 1, ChannelID: 100, StyleName: "tech"}}}
	job := notify.New(&fakeTracks{}, subs, sender, lock, nil, 1, logger)

	release, err := lock.Acquire(t.Context(), notify.JobName)
	require.NoError(t, err)
	defer release()

	_, err = job.Run(t.Context(), testTrack())
	require.ErrorIs(t, err, redis.ErrLockHeld)
	assert.Empty(t, sender.sent)
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()

	track := testTrack()

	t.Run("with role", func(t *testing.T) {
		t.Parallel()

		msg := notify.BuildMessage(track, &types.Subscription{RoleID: 50})
		assert.Equal(t, "<@&50>", msg.Content)
		require.NotNil(t, msg.AllowedMentions)
		assert.Equal(t, []snowflake.ID{50}, msg.AllowedMentions.Roles)
		assert.Empty(t, msg.AllowedMentions.Users)

		require.Len(t, msg.Embeds, 1)
		embed := msg.Embeds[0]
		assert.Equal(t, "It's Cup of the Day time!", embed.Title)
		assert.Equal(t, "https://trackmania.io/#/totd", embed.URL)
		require.NotNil(t, embed.Image)
		assert.Equal(t, "https://img/thumb.jpg", embed.Image.URL)
		require.Len(t, embed.Fields, 1)
		assert.Equal(t, "Test Map by Alice (AT: 45.231)", embed.Fields[0].Name)
		assert.Equal(t, "TMX says this map is SPEED / TECH!", embed.Fields[0].Value)
	})

	t.Run("without role", func(t *testing.T) {
		t.Parallel()

		msg := notify.BuildMessage(track, &types.Subscription{})
		assert.Empty(t, msg.Content)
		require.NotNil(t, msg.AllowedMentions)
		assert.Empty(t, msg.AllowedMentions.Roles)
	})

	t.Run("pads author time", func(t *testing.T) {
		t.Parallel()

		other := *track
		other.AuthorTime = 30
		msg := notify.BuildMessage(&other, &types.Subscription{})
		assert.Equal(t, "Test Map by Alice (AT: 30.000)", msg.Embeds[0].Fields[0].Name)
	})
}
