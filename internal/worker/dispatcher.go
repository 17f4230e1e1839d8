package worker

import (
	"container/list"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type sessionQueue struct {
	jobs     []Job
	enqueued bool // in the ready list
	running  bool // a job of this session is on a worker
}

// DispatcherConfig sizes the worker pool and the pending-job bound.
type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
}

// Dispatcher runs jobs on a bounded worker pool. Jobs sharing a session ID run
// one at a time in submission order; different sessions run concurrently.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	logger   logrus.FieldLogger

	mu        sync.Mutex
	queues    map[string]*sessionQueue // job queue for each session
	ready     *list.List               // sessions with a job and nothing running
	positions map[string]*list.Element
	pending   int
	limit     int
	stopped   bool
	inflight  sync.WaitGroup // jobs handed to a worker

	wake     chan struct{}
	quit     chan struct{}
	loopDone chan struct{}
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Workers int `json:"workers"`
	Idle    int `json:"idle"`
	Pending int `json:"pending"`
}

func NewDispatcher(cfg DispatcherConfig, logger logrus.FieldLogger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	d := &Dispatcher{
		JobQueue:  make(chan Job, cfg.QueueSize),
		logger:    logger.WithField("component", "dispatcher"),
		queues:    make(map[string]*sessionQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		limit:     cfg.QueueSize,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	d.pool = newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, d.complete)

	// Warm up workers.
	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues fn behind any earlier job of the same session. The returned
// channel yields exactly one value: nil after fn returned, or the reason it
// did not complete.
func (d *Dispatcher) Submit(sessionID string, fn func()) (<-chan error, error) {
	job := Job{Type: Run, SessionID: sessionID, Fn: fn, result: make(chan error, 1)}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return nil, ErrDispatcherStopped
	}
	if d.pending >= d.limit {
		return nil, ErrDispatcherBusy
	}
	d.pending++
	// len(JobQueue) <= pending <= limit, so this never blocks.
	d.JobQueue <- job
	return job.result, nil
}

func (d *Dispatcher) run() {
	defer close(d.loopDone)
	for {
		// dispatch one job of the session in the front of the ready list
		if d.dispatchOne() {
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.wake:
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.SessionID]
	if q == nil {
		q = &sessionQueue{}
		d.queues[job.SessionID] = q
	}
	q.jobs = append(q.jobs, job)
	d.markReadyLocked(job.SessionID, q)
}

func (d *Dispatcher) markReadyLocked(sessionID string, q *sessionQueue) {
	if q.enqueued || q.running || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[sessionID] = d.ready.PushBack(sessionID)
}

// dispatchOne takes the first ready session and hands its oldest job to a worker.
func (d *Dispatcher) dispatchOne() bool {
	// drain submissions first so FIFO order within a session is kept
	for {
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
			continue
		default:
		}
		break
	}

	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	sessionID := elem.Value.(string)
	q := d.queues[sessionID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.inflight.Add(1)
	d.ready.Remove(elem)
	delete(d.positions, sessionID)
	d.mu.Unlock()

	workerChan, ok := d.pool.acquire()
	if !ok {
		d.complete(job, ErrDispatcherStopped)
		return false
	}
	d.logger.Debugf("assign job for session %s to worker-%d", sessionID, d.pool.workerID(workerChan))
	workerChan <- job
	return true
}

// complete is called by a worker when a job returns. It releases the session so
// its next job becomes dispatchable.
func (d *Dispatcher) complete(job Job, err error) {
	if err != nil && err != ErrDispatcherStopped {
		d.logger.WithError(err).WithField("session", job.SessionID).Error("job failed")
	}

	d.mu.Lock()
	d.pending--
	if q, ok := d.queues[job.SessionID]; ok {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, job.SessionID)
		} else if !d.stopped {
			d.markReadyLocked(job.SessionID, q)
		}
	}
	d.mu.Unlock()
	job.finish(err)
	d.inflight.Done()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Stats reports worker and queue occupancy.
func (d *Dispatcher) Stats() Stats {
	running, idle := d.pool.stats()
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{Workers: running, Idle: idle, Pending: d.pending}
}

// Stop rejects new jobs, fails every job that has not started and waits for
// running jobs to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.quit)
	d.pool.close()
	<-d.loopDone

	var dropped []Job
	d.mu.Lock()
	for {
		select {
		case job := <-d.JobQueue:
			dropped = append(dropped, job)
			continue
		default:
		}
		break
	}
	for sessionID, q := range d.queues {
		dropped = append(dropped, q.jobs...)
		q.jobs = nil
		if !q.running {
			delete(d.queues, sessionID)
		}
	}
	d.ready.Init()
	clear(d.positions)
	d.pending -= len(dropped)
	d.mu.Unlock()

	for _, job := range dropped {
		job.finish(ErrDispatcherStopped)
	}
	d.inflight.Wait()
}
