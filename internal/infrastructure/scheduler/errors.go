package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a run is requested on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")
)
