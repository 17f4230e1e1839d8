package worker

import (
	"sync"
	"time"
)

type workerMeta struct {
	id        int
	ch        chan Job
	lastUsed  time.Time
	enqueued  bool // is in the idle queue
	discarded bool // is targeted as delete
}

type jobChannelPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	idle     []*workerMeta
	metadata map[chan Job]*workerMeta
	min      int
	max      int
	running  int
	nextID   int
	expiry   time.Duration
	closed   bool
	quit     chan struct{}
	done     func(Job, error)
}

const defaultWorkerIdle = 30 * time.Second

func newJobChannelPool(minWorkers, maxWorkers int, idle time.Duration, done func(Job, error)) *jobChannelPool {
	if idle <= 0 {
		idle = defaultWorkerIdle
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers < minWorkers {
		maxWorkers = minWorkers
	}
	p := &jobChannelPool{
		metadata: make(map[chan Job]*workerMeta),
		min:      minWorkers,
		max:      maxWorkers,
		expiry:   idle,
		quit:     make(chan struct{}),
		done:     done,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.purgeStaleWorkers()
	return p
}

// newWorkerLocked registers a worker; caller holds p.mu and starts it after unlocking.
func (p *jobChannelPool) newWorkerLocked() (*Worker, *workerMeta) {
	p.nextID++
	worker := NewWorker(p.nextID, p, p.done)
	meta := &workerMeta{id: p.nextID, ch: worker.jobChannel}
	p.metadata[worker.jobChannel] = meta
	p.running++
	return worker, meta
}

// spawnWorker add a new idle worker, great for warm up
func (p *jobChannelPool) spawnWorker() {
	p.mu.Lock()
	if p.closed || p.running >= p.max {
		p.mu.Unlock()
		return
	}
	worker, meta := p.newWorkerLocked()
	meta.enqueued = true
	meta.lastUsed = time.Now()
	p.idle = append(p.idle, meta)
	p.mu.Unlock()
	worker.Start()
}

// acquire get an idle worker, or spawn a new one. It reports false once the pool is closed.
func (p *jobChannelPool) acquire() (chan Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.closed {
			return nil, false
		}
		// get an idle worker
		if meta := p.popIdleLocked(); meta != nil {
			return meta.ch, true
		}
		if p.running < p.max {
			worker, _ := p.newWorkerLocked()
			worker.Start()
			return worker.jobChannel, true
		}
		p.cond.Wait()
	}
}

// Release puts a worker back into the idle queue. It reports false when the
// worker should exit instead.
func (p *jobChannelPool) Release(ch chan Job) bool {
	p.mu.Lock()
	meta, ok := p.metadata[ch]
	if !ok || meta.discarded || p.closed {
		p.mu.Unlock()
		return false
	}
	if !meta.enqueued {
		meta.enqueued = true
		meta.lastUsed = time.Now()
		p.idle = append(p.idle, meta)
	}
	p.mu.Unlock()
	p.cond.Signal()
	return true
}

// retire delete a worker
func (p *jobChannelPool) retire(ch chan Job) {
	p.mu.Lock()
	if meta, ok := p.metadata[ch]; ok {
		delete(p.metadata, ch)
		meta.discarded = true
		if p.running > 0 {
			p.running--
		}
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}

// popIdleLocked check if pool has an idle worker, then return
func (p *jobChannelPool) popIdleLocked() *workerMeta {
	for len(p.idle) > 0 {
		meta := p.idle[0]
		p.idle = p.idle[1:]
		if meta.discarded {
			continue
		}
		meta.enqueued = false
		return meta
	}
	return nil
}

func (p *jobChannelPool) workerID(ch chan Job) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if meta, ok := p.metadata[ch]; ok {
		return meta.id
	}
	return -1
}

func (p *jobChannelPool) stats() (running, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running, len(p.idle)
}

// purgeStaleWorkers call shutdownExpired when expiry time comes
func (p *jobChannelPool) purgeStaleWorkers() {
	ticker := time.NewTicker(p.expiry)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.shutdownExpired()
		case <-p.quit:
			return
		}
	}
}

// shutdownExpired retire all the expired worker
func (p *jobChannelPool) shutdownExpired() {
	var stale []*workerMeta
	now := time.Now()

	p.mu.Lock()
	if len(p.idle) == 0 || p.running <= p.min {
		p.mu.Unlock()
		return
	}
	remaining := p.idle[:0] // keep the original array
	for _, meta := range p.idle {
		if meta.discarded { // discarded currently deleting worker
			continue
		}
		if now.Sub(meta.lastUsed) >= p.expiry && p.running-len(stale) > p.min {
			meta.discarded = true
			meta.enqueued = false
			stale = append(stale, meta) // into the stale array, will delete
			continue
		}
		remaining = append(remaining, meta) // into the remaining array
	}
	p.idle = remaining
	p.mu.Unlock()

	for _, meta := range stale {
		meta.ch <- Job{Type: Stop}
	}
}

// close stops idle workers now; busy workers exit once their job returns.
func (p *jobChannelPool) close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.quit)
	idle := p.idle
	p.idle = nil
	for _, meta := range idle {
		meta.enqueued = false
		meta.discarded = true
	}
	p.mu.Unlock()
	p.cond.Broadcast()

	for _, meta := range idle {
		meta.ch <- Job{Type: Stop}
	}
}
