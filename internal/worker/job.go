package worker

import "errors"

var (
	// ErrDispatcherBusy is returned when the pending-turn queue is full.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	// ErrDispatcherStopped is returned for jobs submitted to, or still queued in, a stopped dispatcher.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

type JobType int

const (
	Run JobType = iota
	Stop
)

// Job is one unit of work bound to a session key.
type Job struct {
	Type      JobType
	SessionID string
	Fn        func()

	result chan error
}

func (job Job) finish(err error) {
	if job.result != nil {
		job.result <- err
	}
}
