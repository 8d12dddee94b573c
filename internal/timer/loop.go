package timer

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyRunning is returned by Start when the loop is running.
var ErrAlreadyRunning = errors.New("timer loop already running")

// Loop is the wall-clock Service. Callbacks run one at a time on the loop's
// goroutine, so they must not block.
type Loop struct {
	mu      sync.Mutex
	q       queue
	seq     uint64
	wake    chan struct{}
	logger  *slog.Logger
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Loop. Timers may be armed before Start; they fire once the
// loop is running.
func New() *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the loop.
func (l *Loop) WithLogger(logger *slog.Logger) *Loop {
	l.logger = logger
	return l
}

// Start launches the dispatch goroutine.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		return ErrAlreadyRunning
	}

	ctx, l.cancel = context.WithCancel(ctx)
	l.running = true

	l.wg.Add(1)
	go l.run(ctx)

	return nil
}

// Stop halts the loop and waits for an in-flight callback to return.
// Armed timers are kept but will not fire until the loop is restarted.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.cancel()
	l.running = false
	l.mu.Unlock()

	l.wg.Wait()
}

func (l *Loop) Now() time.Time { return time.Now() }

func (l *Loop) ArmAt(at time.Time, fn func()) *Handle {
	l.mu.Lock()
	l.seq++
	h := &Handle{at: at, seq: l.seq, fn: fn}
	heap.Push(&l.q, h)
	first := l.q.peek() == h
	l.mu.Unlock()

	if first {
		l.notify()
	}
	return h
}

func (l *Loop) ArmAfter(d time.Duration, fn func()) *Handle {
	return l.ArmAt(time.Now().Add(d), fn)
}

func (l *Loop) Cancel(h *Handle) {
	if h == nil {
		return
	}
	l.mu.Lock()
	l.q.remove(h)
	l.mu.Unlock()
}

func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q.Len()
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	t := time.NewTimer(time.Hour)
	t.Stop()
	defer t.Stop()

	for {
		l.mu.Lock()
		due := l.q.popDue(time.Now())
		next := l.q.peek()
		var at time.Time
		if next != nil {
			at = next.at
		}
		l.mu.Unlock()

		if due != nil {
			l.fire(due)
			continue
		}

		var timerC <-chan time.Time
		if next != nil {
			t.Reset(max(time.Until(at), 0))
			timerC = t.C
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-timerC:
		}
		t.Stop()
	}
}

func (l *Loop) fire(h *Handle) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("timer callback panicked", slog.Any("panic", r))
		}
	}()
	h.fn()
}
