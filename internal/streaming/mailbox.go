package streaming

import "sync"

// mailbox is an unbounded FIFO of work for the dispatcher. Posting never
// blocks, so timer and process goroutines cannot stall on a busy manager.
type mailbox struct {
	mu     sync.Mutex
	queue  []func()
	ready  chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

// post enqueues fn. It reports false once the mailbox is closed.
func (mb *mailbox) post(fn func()) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.queue = append(mb.queue, fn)
	mb.mu.Unlock()

	select {
	case mb.ready <- struct{}{}:
	default:
	}
	return true
}

// next pops the oldest queued item.
func (mb *mailbox) next() (func(), bool) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.queue) == 0 {
		return nil, false
	}
	fn := mb.queue[0]
	mb.queue[0] = nil
	mb.queue = mb.queue[1:]
	return fn, true
}

func (mb *mailbox) len() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return len(mb.queue)
}

// close rejects further posts and discards queued work.
func (mb *mailbox) close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.closed = true
	mb.queue = nil
}
