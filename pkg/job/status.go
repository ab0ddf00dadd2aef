package job

// Status is the lifecycle state of a submission job.
//
// NOTE: These values are persisted in the jobs table and are part of the
// stable on-disk contract.
type Status string

const (
	StatusCreated       Status = "CREATED"
	StatusInitializing  Status = "INITIALIZING"
	StatusStagingInputs Status = "STAGING_INPUTS"
	StatusSubmitting    Status = "SUBMITTING"
	StatusSubmitted     Status = "SUBMITTED"
	StatusFinished      Status = "FINISHED"
	StatusFailed        Status = "FAILED"
	StatusStopped       Status = "STOPPED"
)

// progression is the success path. A job only ever moves one step along it.
var progression = []Status{
	StatusCreated,
	StatusInitializing,
	StatusStagingInputs,
	StatusSubmitting,
	StatusSubmitted,
	StatusFinished,
}

// TerminalStatuses lists the statuses from which no further transition is allowed.
var TerminalStatuses = []Status{StatusFinished, StatusFailed, StatusStopped}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// IsRunning reports whether a job in status s occupies a concurrency slot:
// past CREATED and not yet terminal.
func (s Status) IsRunning() bool {
	return s.IsValid() && s != StatusCreated && !s.IsTerminal()
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusInitializing, StatusStagingInputs, StatusSubmitting,
		StatusSubmitted, StatusFinished, StatusFailed, StatusStopped:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is permitted.
// Re-applying the current status is always permitted and is a no-op.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() || !next.IsValid() {
		return false
	}
	switch next {
	case StatusFailed, StatusStopped:
		return true
	}
	for i, st := range progression[:len(progression)-1] {
		if st == s {
			return progression[i+1] == next
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}
