package refresh

// State is a stage of a refresh run.
type State int

const (
	StateIdle State = iota
	StateFetching
	StatePersisting
	StateNotifyTriggered
	StateDone
)

// String returns the state name used in logs and job status.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StatePersisting:
		return "persisting"
	case StateNotifyTriggered:
		return "notify_triggered"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Outcome summarizes how a run ended.
type Outcome string

const (
	// OutcomeLocked means another run held the lock.
	OutcomeLocked Outcome = "locked"
	// OutcomeSkipped means the current map could not be fetched this cycle.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the run stopped on an unexpected error.
	OutcomeFailed Outcome = "failed"
	// OutcomePersisted means the map was stored and no notification was sent.
	OutcomePersisted Outcome = "persisted"
	// OutcomeNotified means the map was stored and handed to the notify job.
	OutcomeNotified Outcome = "notified"
	// OutcomeNotifyFailed means the map was stored but the notify job did not complete.
	OutcomeNotifyFailed Outcome = "notify_failed"
)
