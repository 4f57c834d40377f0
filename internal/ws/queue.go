package ws

import (
	"errors"
	"sync"
)

var (
	ErrTurnInProgress = errors.New("ws: a turn is already in progress")
	ErrQueueFull      = errors.New("ws: inbound queue is full")
	errQueueClosed    = errors.New("ws: queue closed")
)

const (
	PolicyReject = "reject"
	PolicyFIFO   = "fifo"
)

// TurnQueue admits at most one inbound job at a time to the call worker.
// While a job is in flight, PolicyReject refuses new jobs and PolicyFIFO
// queues up to size of them strictly behind it.
type TurnQueue struct {
	mu     sync.Mutex
	policy string
	size   int
	busy   bool
	queued int
	closed bool
	ch     chan job
}

func NewTurnQueue(policy string, size int) *TurnQueue {
	if policy != PolicyFIFO {
		policy = PolicyReject
		size = 0
	}
	if size < 0 {
		size = 0
	}
	// One slot for the in-flight job plus the queue; sends never block.
	return &TurnQueue{policy: policy, size: size, ch: make(chan job, size+1)}
}

// Jobs is consumed by the single call worker. It is closed by Close.
func (q *TurnQueue) Jobs() <-chan job { return q.ch }

// Hold marks the worker busy without a job, e.g. while the greeting is spoken.
func (q *TurnQueue) Hold() {
	q.mu.Lock()
	q.busy = true
	q.mu.Unlock()
}

// Offer admits j or returns ErrTurnInProgress / ErrQueueFull.
func (q *TurnQueue) Offer(j job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return errQueueClosed
	}
	if !q.busy {
		q.busy = true
		q.ch <- j
		return nil
	}
	if q.policy == PolicyReject {
		return ErrTurnInProgress
	}
	if q.queued >= q.size {
		return ErrQueueFull
	}
	q.queued++
	q.ch <- j
	return nil
}

// Done is called by the worker after each job, and after the greeting.
func (q *TurnQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.queued > 0 {
		// The next job is already in the channel; stay busy.
		q.queued--
		return
	}
	q.busy = false
}

func (q *TurnQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
