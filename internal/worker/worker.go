package worker

import (
	"fmt"
	"runtime/debug"
)

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
	done       func(Job, error)
}

func NewWorker(id int, pool *jobChannelPool, done func(Job, error)) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
		done:       done,
	}
}

func (w *Worker) Start() {
	go func() {
		for {
			job := <-w.jobChannel
			if job.Type == Stop {
				w.pool.retire(w.jobChannel)
				return
			}
			err := w.execute(job)
			w.done(job, err)
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

// execute runs the job, turning a panic into an error so the worker survives.
func (w *Worker) execute(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker-%d: job for session %s panicked: %v\n%s", w.id, job.SessionID, r, debug.Stack())
		}
	}()
	job.Fn()
	return nil
}
