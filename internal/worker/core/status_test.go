package core_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/robalyx/cotd/internal/worker/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMonitorRedis(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	monitor := core.NewMonitor(client, "instance-1", zaptest.NewLogger(t))
	monitor.ReportStatus(t.Context(), core.Status{Job: "refresh", RunID: "a", State: "fetching"})
	monitor.ReportStatus(t.Context(), core.Status{Job: "refresh", RunID: "a", State: "done", Outcome: "persisted"})
	monitor.ReportStatus(t.Context(), core.Status{Job: "notify", RunID: "b", State: "done", Error: "boom"})

	assert.True(t, mr.Exists("cotd:job:refresh"))
	assert.True(t, mr.TTL("cotd:job:refresh") > 0)

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	assert.Equal(t, "notify", statuses[0].Job)
	assert.Equal(t, "boom", statuses[0].Error)
	assert.Equal(t, "refresh", statuses[1].Job)
	assert.Equal(t, "done", statuses[1].State)
	assert.Equal(t, "persisted", statuses[1].Outcome)
	assert.Equal(t, "instance-1", statuses[1].InstanceID)
	assert.False(t, statuses[1].UpdatedAt.IsZero())
}

func TestMonitorInMemory(t *testing.T) {
	t.Parallel()

	monitor := core.NewMonitor(nil, "instance-1", zaptest.NewLogger(t))
	monitor.ReportStatus(t.Context(), core.Status{Job: "refresh", State: "persisting"})

	statuses, err := monitor.GetAllStatuses(t.Context())
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "persisting", statuses[0].State)
}

func TestNilMonitorIgnoresReports(t *testing.T) {
	t.Parallel()

	var monitor *core.Monitor
	assert.NotPanics(t, func() {
		monitor.ReportStatus(t.Context(), core.Status{Job: "refresh"})
	})
}
