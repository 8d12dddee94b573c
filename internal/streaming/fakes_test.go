package streaming

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/jmylchreest/loopcast/internal/events"
	"github.com/jmylchreest/loopcast/internal/ffmpeg"
	"github.com/jmylchreest/loopcast/internal/transcoder"
)

// fakeProc is a scripted encoder process.
type fakeProc struct {
	pid     int
	spec    transcoder.Spec
	onEvent transcoder.EventFunc
	done    chan struct{}

	mu     sync.Mutex
	exited bool
	killed bool
}

func (p *fakeProc) PID() int                    { return p.pid }
func (p *fakeProc) Done() <-chan struct{}       { return p.done }
func (p *fakeProc) Progress() ffmpeg.Progress   { return ffmpeg.Progress{Frame: 42} }
func (p *fakeProc) Stats() *ffmpeg.ProcessStats { return nil }
func (p *fakeProc) StderrTail() []string        { return nil }

func (p *fakeProc) start() { p.onEvent(transcoder.Event{Kind: transcoder.EventStarted}) }

func (p *fakeProc) log(line string) { p.onEvent(transcoder.Event{Kind: transcoder.EventStderr, Line: line}) }

func (p *fakeProc) exit() { p.terminate(transcoder.Event{Kind: transcoder.EventEnded}) }

func (p *fakeProc) fail(message string) { p.terminate(transcoder.Event{Kind: transcoder.EventErrored, Message: message}) }

func (p *fakeProc) inject(ev transcoder.Event) { p.onEvent(ev) }

func (p *fakeProc) Kill() error {
	p.terminate(transcoder.Event{Kind: transcoder.EventErrored, Message: "signal: killed", Killed: true})
	return nil
}

func (p *fakeProc) terminate(ev transcoder.Event) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.killed = ev.Killed
	p.mu.Unlock()

	p.onEvent(ev)
	close(p.done)
}

func (p *fakeProc) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

func (p *fakeProc) hasExited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

// fakeSpawner hands out fakeProcs. With autoStart each process reports
// Started as soon as it is spawned.
type fakeSpawner struct {
	mu        sync.Mutex
	procs     []*fakeProc
	autoStart bool
	err       error
}

func (s *fakeSpawner) Spawn(_ context.Context, spec transcoder.Spec, onEvent transcoder.EventFunc) (transcoder.Handle, error) {
	s.mu.Lock()
	if s.err != nil {
		err := s.err
		s.mu.Unlock()
		return nil, err
	}
	p := &fakeProc{
		pid:     1000 + len(s.procs),
		spec:    spec,
		onEvent: onEvent,
		done:    make(chan struct{}),
	}
	s.procs = append(s.procs, p)
	autoStart := s.autoStart
	s.mu.Unlock()

	if autoStart {
		p.start()
	}
	return p, nil
}

func (s *fakeSpawner) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) last() *fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

func (s *fakeSpawner) all() []*fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fakeProc(nil), s.procs...)
}

// recorder is an events.Sink that keeps everything it is told.
type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) Notify(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, e)
}

func (r *recorder) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.evs...)
}

func (r *recorder) types() []events.Type {
	var out []events.Type
	for _, e := range r.all() {
		out = append(out, e.Type)
	}
	return out
}

func (r *recorder) count(t events.Type) int {
	n := 0
	for _, e := range r.all() {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) lastOf(t events.Type) (events.Event, bool) {
	evs := r.all()
	for i := len(evs) - 1; i >= 0; i-- {
		if evs[i].Type == t {
			return evs[i], true
		}
	}
	return events.Event{}, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = nil
}

// lockedBuffer is a log destination shared with the dispatcher goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var errSpawn = errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
