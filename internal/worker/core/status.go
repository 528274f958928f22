// Package core holds the pieces shared by the scheduled jobs.
package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/rueidis"
	"go.uber.org/zap"
)

// StatusTTL is how long a job's last reported status is kept.
const StatusTTL = 7 * 24 * time.Hour

// statusKeyPrefix namespaces job status keys.
const statusKeyPrefix = "cotd:job:"

// Status represents a job's most recent run.
type Status struct {
	Job        string    `json:"job"`
	RunID      string    `json:"runId"`
	InstanceID string    `json:"instanceId,omitempty"`
	State      string    `json:"state"`
	Outcome    string    `json:"outcome,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Monitor stores job statuses in Redis, or in memory when no client is set.
type Monitor struct {
	client     rueidis.Client
	instanceID string
	logger     *zap.Logger
	mu         sync.Mutex
	local      map[string]Status
}

// NewMonitor creates a new job status monitor.
func NewMonitor(client rueidis.Client, instanceID string, logger *zap.Logger) *Monitor {
	return &Monitor{
		client:     client,
		instanceID: instanceID,
		logger:     logger.Named("job_monitor"),
		local:      make(map[string]Status),
	}
}

// ReportStatus records the job's status. Failures are logged, never returned,
// so reporting can not interrupt a run.
func (m *Monitor) ReportStatus(ctx context.Context, status Status) {
	if m == nil {
		return
	}

	status.UpdatedAt = time.Now()
	status.InstanceID = m.instanceID

	m.mu.Lock()
	m.local[status.Job] = status
	m.mu.Unlock()

	if m.client == nil {
		return
	}

	data, err := sonic.Marshal(status)
	if err != nil {
		m.logger.Error("Failed to marshal job status", zap.String("job", status.Job), zap.Error(err))
		return
	}

	err = m.client.Do(ctx, m.client.B().Set().Key(statusKeyPrefix+status.Job).Value(string(data)).Ex(StatusTTL).Build()).Error()
	if err != nil {
		m.logger.Warn("Failed to store job status", zap.String("job", status.Job), zap.Error(err))
	}
}

// GetAllStatuses retrieves every job's last status ordered by job name.
func (m *Monitor) GetAllStatuses(ctx context.Context) ([]Status, error) {
	if m.client == nil {
		m.mu.Lock()
		statuses := make([]Status, 0, len(m.local))
		for _, status := range m.local {
			statuses = append(statuses, status)
		}
		m.mu.Unlock()

		sortStatuses(statuses)

		return statuses, nil
	}

	keys, err := m.client.Do(ctx, m.client.B().Keys().Pattern(statusKeyPrefix+"*").Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to get job keys: %w", err)
	}

	statuses := make([]Status, 0, len(keys))

	for _, key := range keys {
		data, err := m.client.Do(ctx, m.client.B().Get().Key(key).Build()).AsBytes()
		if err != nil {
			m.logger.Error("Failed to get job status", zap.String("key", key), zap.Error(err))
			continue
		}

		var status Status
		if err := sonic.Unmarshal(data, &status); err != nil {
			m.logger.Error("Failed to unmarshal job status", zap.String("key", key), zap.Error(err))
			continue
		}

		statuses = append(statuses, status)
	}

	sortStatuses(statuses)

	return statuses, nil
}

func sortStatuses(statuses []Status) {
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Job < statuses[j].Job
	})
}
